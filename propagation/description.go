// Package propagation describes the stratified acoustic medium and turns it
// into a cached grid of source-to-sensor responses that can be queried at
// arbitrary ranges and source depths.
package propagation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"math"
	"os"
	"path/filepath"

	"github.com/signalsfoundry/acoustic-scene-sim/model"
)

// Description is the ordered depth -> layer table of a water column.
// Depths are strictly increasing, the first entry is water at depth 0 and
// every layer governs the range up to the next entry.
type Description struct {
	entries []entry
}

type entry struct {
	depthM float64
	layer  model.Layer
}

// NewDescription returns an empty description. Add a water layer at depth 0
// before use.
func NewDescription() *Description {
	return &Description{}
}

// NewIsovelocity returns a description with one water layer and, when
// bottomDepthM > 0, a seabed of the given type at that depth.
func NewIsovelocity(speedMS, bottomDepthM float64, bottom model.BottomType) (*Description, error) {
	d := NewDescription()
	if err := d.Add(0, model.Water{SpeedMS: speedMS}); err != nil {
		return nil, err
	}
	if bottomDepthM > 0 {
		if err := d.Add(bottomDepthM, model.NewSeabed(bottom)); err != nil {
			return nil, err
		}
	}
	return d, d.Validate()
}

// Add inserts layer at depthM keeping depth order. A layer already present
// at the same depth is replaced.
func (d *Description) Add(depthM float64, layer model.Layer) error {
	if layer == nil {
		return configErrorf("nil layer at depth %v m", depthM)
	}
	if depthM < 0 || math.IsNaN(depthM) || math.IsInf(depthM, 0) {
		return configErrorf("invalid layer depth %v m", depthM)
	}
	if depthM == 0 && layer.Kind() != model.LayerKindWater {
		return configErrorf("reference layer at depth 0 must be water, got %s", layer)
	}
	if w, ok := layer.(model.Water); ok && (w.SpeedMS <= 0 || math.IsNaN(w.SpeedMS)) {
		return configErrorf("water layer at %v m has invalid speed %v m/s", depthM, w.SpeedMS)
	}
	if s, ok := layer.(model.Seabed); ok && !s.Type.Valid() {
		return configErrorf("seabed at %v m has unknown type %d", depthM, int(s.Type))
	}

	layer = cloneLayer(layer)
	for i, e := range d.entries {
		if e.depthM == depthM {
			d.entries[i].layer = layer
			return nil
		}
		if e.depthM > depthM {
			d.entries = append(d.entries, entry{})
			copy(d.entries[i+1:], d.entries[i:])
			d.entries[i] = entry{depthM: depthM, layer: layer}
			return nil
		}
	}
	d.entries = append(d.entries, entry{depthM: depthM, layer: layer})
	return nil
}

// Remove deletes the layer starting at depthM. The depth-0 reference layer
// cannot be removed.
func (d *Description) Remove(depthM float64) error {
	if depthM == 0 {
		return configErrorf("cannot remove the reference layer at depth 0")
	}
	for i, e := range d.entries {
		if e.depthM == depthM {
			d.entries = append(d.entries[:i], d.entries[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: no layer at depth %v m", ErrLayerNotFound, depthM)
}

// All yields the (depth, layer) pairs in increasing depth order.
func (d *Description) All() iter.Seq2[float64, model.Layer] {
	return func(yield func(float64, model.Layer) bool) {
		for _, e := range d.entries {
			if !yield(e.depthM, cloneLayer(e.layer)) {
				return
			}
		}
	}
}

// Len returns the number of layers.
func (d *Description) Len() int { return len(d.entries) }

// LayerAt returns the layer governing depthM.
func (d *Description) LayerAt(depthM float64) (model.Layer, bool) {
	var found model.Layer
	for _, e := range d.entries {
		if e.depthM > depthM {
			break
		}
		found = e.layer
	}
	if found == nil {
		return nil, false
	}
	return cloneLayer(found), true
}

// Bottom returns the depth and layer of the first seabed entry.
func (d *Description) Bottom() (float64, model.Seabed, bool) {
	for _, e := range d.entries {
		if s, ok := e.layer.(model.Seabed); ok {
			return e.depthM, cloneLayer(s).(model.Seabed), true
		}
	}
	return 0, model.Seabed{}, false
}

// BottomDepth returns the depth of the first seabed entry.
func (d *Description) BottomDepth() (float64, bool) {
	depth, _, ok := d.Bottom()
	return depth, ok
}

// MeanWaterSpeed returns the thickness-weighted sound speed of the water
// column down to the bottom, or down to the deepest water entry when the
// column has no seabed.
func (d *Description) MeanWaterSpeed() float64 {
	var sum, thickness float64
	for i, e := range d.entries {
		w, ok := e.layer.(model.Water)
		if !ok {
			break
		}
		if i+1 >= len(d.entries) {
			if thickness == 0 {
				return w.SpeedMS
			}
			break
		}
		h := d.entries[i+1].depthM - e.depthM
		sum += w.SpeedMS * h
		thickness += h
	}
	if thickness == 0 {
		return 0
	}
	return sum / thickness
}

// Validate checks the structural invariants of the description.
func (d *Description) Validate() error {
	if len(d.entries) == 0 {
		return configErrorf("description has no layers")
	}
	if d.entries[0].depthM != 0 || d.entries[0].layer.Kind() != model.LayerKindWater {
		return configErrorf("first layer must be water at depth 0")
	}
	seenBottom := false
	for i, e := range d.entries {
		if i > 0 && e.depthM <= d.entries[i-1].depthM {
			return configErrorf("depths not strictly increasing at %v m", e.depthM)
		}
		switch e.layer.Kind() {
		case model.LayerKindBottom:
			seenBottom = true
		case model.LayerKindWater:
			if seenBottom {
				return configErrorf("water layer at %v m lies below the seabed", e.depthM)
			}
		}
	}
	return nil
}

// Equal reports whether both descriptions hold the same ordered pairs.
func (d *Description) Equal(other *Description) bool {
	if d == nil || other == nil {
		return d == other
	}
	if len(d.entries) != len(other.entries) {
		return false
	}
	for i := range d.entries {
		if d.entries[i].depthM != other.entries[i].depthM ||
			!model.SameLayer(d.entries[i].layer, other.entries[i].layer) {
			return false
		}
	}
	return true
}

// Clone returns an independent copy.
func (d *Description) Clone() *Description {
	out := &Description{entries: make([]entry, len(d.entries))}
	for i, e := range d.entries {
		out.entries[i] = entry{depthM: e.depthM, layer: cloneLayer(e.layer)}
	}
	return out
}

func (d *Description) String() string {
	var buf bytes.Buffer
	for i, e := range d.entries {
		if i > 0 {
			buf.WriteString("; ")
		}
		fmt.Fprintf(&buf, "%g m: %s", e.depthM, e.layer)
	}
	return buf.String()
}

func cloneLayer(l model.Layer) model.Layer {
	if s, ok := l.(model.Seabed); ok && s.Seed != nil {
		seed := *s.Seed
		s.Seed = &seed
		return s
	}
	return l
}

// ---- persistence ----

// layerRecord is the persisted shape of one layer; value is a sound speed
// in m/s for water and a bottom type name for seabeds.
type layerRecord struct {
	Depth float64         `json:"depth"`
	Kind  model.LayerKind `json:"kind"`
	Value json.RawMessage `json:"value"`
	Seed  *int64          `json:"seed,omitempty"`
}

// MarshalJSON encodes the description as an ordered list of layer records.
func (d *Description) MarshalJSON() ([]byte, error) {
	records := make([]layerRecord, 0, len(d.entries))
	for _, e := range d.entries {
		rec := layerRecord{Depth: e.depthM, Kind: e.layer.Kind()}
		var (
			value []byte
			err   error
		)
		switch l := e.layer.(type) {
		case model.Water:
			value, err = json.Marshal(l.SpeedMS)
		case model.Seabed:
			value, err = json.Marshal(l.Type.String())
			rec.Seed = l.Seed
		default:
			err = fmt.Errorf("unsupported layer %T", e.layer)
		}
		if err != nil {
			return nil, err
		}
		rec.Value = value
		records = append(records, rec)
	}
	return json.Marshal(records)
}

// UnmarshalJSON decodes and validates a list of layer records. Records must
// already be in strictly increasing depth order.
func (d *Description) UnmarshalJSON(data []byte) error {
	var records []layerRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("%w: decode description: %v", ErrConfiguration, err)
	}
	out := NewDescription()
	for i, rec := range records {
		if i > 0 && rec.Depth <= records[i-1].Depth {
			return configErrorf("record %d: depth %v m not greater than %v m", i, rec.Depth, records[i-1].Depth)
		}
		var layer model.Layer
		switch rec.Kind {
		case model.LayerKindWater:
			var speed float64
			if err := json.Unmarshal(rec.Value, &speed); err != nil {
				return configErrorf("record %d: water value: %v", i, err)
			}
			layer = model.Water{SpeedMS: speed}
		case model.LayerKindBottom:
			var name string
			if err := json.Unmarshal(rec.Value, &name); err != nil {
				return configErrorf("record %d: bottom value: %v", i, err)
			}
			bt, err := model.ParseBottomType(name)
			if err != nil {
				return configErrorf("record %d: %v", i, err)
			}
			layer = model.Seabed{Type: bt, Seed: rec.Seed}
		default:
			return configErrorf("record %d: unknown layer kind %q", i, rec.Kind)
		}
		if err := out.Add(rec.Depth, layer); err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
	}
	if err := out.Validate(); err != nil {
		return err
	}
	d.entries = out.entries
	return nil
}

// Save writes the description as indented JSON. Saving a loaded description
// reproduces the loaded bytes.
func (d *Description) Save(w io.Writer) error {
	raw, err := d.MarshalJSON()
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return err
	}
	buf.WriteByte('\n')
	_, err = w.Write(buf.Bytes())
	return err
}

// Load reads a description written by Save.
func Load(r io.Reader) (*Description, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	d := NewDescription()
	if err := d.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return d, nil
}

// SaveFile writes the description to path through a temporary file in the
// same directory so readers never see a partial file.
func (d *Description) SaveFile(path string) error {
	var buf bytes.Buffer
	if err := d.Save(&buf); err != nil {
		return err
	}
	return writeFileAtomic(path, buf.Bytes())
}

// LoadFile reads a description from path.
func LoadFile(path string) (*Description, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	d, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return d, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return err
	}
	return nil
}
