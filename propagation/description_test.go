package propagation

import (
	"bytes"
	"errors"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/signalsfoundry/acoustic-scene-sim/model"
)

func mustAdd(t *testing.T, d *Description, depth float64, layer model.Layer) {
	t.Helper()
	if err := d.Add(depth, layer); err != nil {
		t.Fatalf("Add(%v, %v): %v", depth, layer, err)
	}
}

func TestDescriptionAddKeepsDepthOrder(t *testing.T) {
	d := NewDescription()
	mustAdd(t, d, 50, model.NewSeabed(model.BottomSand))
	mustAdd(t, d, 20, model.Water{SpeedMS: 1510})
	mustAdd(t, d, 0, model.Water{SpeedMS: 1500})
	mustAdd(t, d, 20, model.Water{SpeedMS: 1520}) // replaces

	if d.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", d.Len())
	}
	if err := d.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	var depths []float64
	first := true
	for depth, layer := range d.All() {
		if first {
			if depth != 0 || layer.Kind() != model.LayerKindWater {
				t.Fatalf("first entry = (%v, %v), want water at 0", depth, layer)
			}
			first = false
		}
		depths = append(depths, depth)
	}
	for i := 1; i < len(depths); i++ {
		if depths[i] <= depths[i-1] {
			t.Fatalf("depths not strictly increasing: %v", depths)
		}
	}

	layer, ok := d.LayerAt(35)
	if !ok || !model.SameLayer(layer, model.Water{SpeedMS: 1520}) {
		t.Fatalf("LayerAt(35) = %v, want replaced water layer", layer)
	}
	if bottom, ok := d.BottomDepth(); !ok || bottom != 50 {
		t.Fatalf("BottomDepth() = %v, %v, want 50", bottom, ok)
	}
}

func TestDescriptionAddRejectsInvalidLayers(t *testing.T) {
	cases := []struct {
		name  string
		depth float64
		layer model.Layer
	}{
		{"seabed at reference depth", 0, model.NewSeabed(model.BottomClay)},
		{"negative depth", -1, model.Water{SpeedMS: 1500}},
		{"nil layer", 10, nil},
		{"non-positive speed", 10, model.Water{SpeedMS: 0}},
		{"unknown bottom", 10, model.Seabed{Type: model.BottomType(99)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := NewDescription().Add(tc.depth, tc.layer)
			if !errors.Is(err, ErrConfiguration) {
				t.Fatalf("Add error = %v, want ErrConfiguration", err)
			}
		})
	}
}

func TestDescriptionRemove(t *testing.T) {
	d, err := NewIsovelocity(1500, 50, model.BottomSand)
	if err != nil {
		t.Fatalf("NewIsovelocity: %v", err)
	}
	if err := d.Remove(0); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("Remove(0) error = %v, want ErrConfiguration", err)
	}
	if err := d.Remove(7); !errors.Is(err, ErrLayerNotFound) {
		t.Fatalf("Remove(7) error = %v, want ErrLayerNotFound", err)
	}
	if err := d.Remove(50); err != nil {
		t.Fatalf("Remove(50): %v", err)
	}
	if d.Len() != 1 {
		t.Fatalf("Len() = %d after removal, want 1", d.Len())
	}
}

func TestDescriptionValidate(t *testing.T) {
	if err := NewDescription().Validate(); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("empty description error = %v, want ErrConfiguration", err)
	}

	d := NewDescription()
	mustAdd(t, d, 0, model.Water{SpeedMS: 1500})
	mustAdd(t, d, 30, model.NewSeabed(model.BottomSilt))
	mustAdd(t, d, 40, model.Water{SpeedMS: 1500})
	if err := d.Validate(); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("water below seabed error = %v, want ErrConfiguration", err)
	}
}

func TestMeanWaterSpeed(t *testing.T) {
	d := NewDescription()
	mustAdd(t, d, 0, model.Water{SpeedMS: 1500})
	mustAdd(t, d, 20, model.Water{SpeedMS: 1520})
	mustAdd(t, d, 50, model.NewSeabed(model.BottomSand))

	want := (1500.0*20 + 1520.0*30) / 50
	if got := d.MeanWaterSpeed(); math.Abs(got-want) > 1e-9 {
		t.Fatalf("MeanWaterSpeed() = %v, want %v", got, want)
	}

	open := NewDescription()
	mustAdd(t, open, 0, model.Water{SpeedMS: 1490})
	if got := open.MeanWaterSpeed(); got != 1490 {
		t.Fatalf("MeanWaterSpeed() without bottom = %v, want 1490", got)
	}
}

func TestSaveLoadSaveIsByteIdentical(t *testing.T) {
	seeded := NewDescription()
	mustAdd(t, seeded, 0, model.Water{SpeedMS: 1500})
	mustAdd(t, seeded, 12.5, model.Water{SpeedMS: 1496.25})
	mustAdd(t, seeded, 80, model.NewSeededSeabed(model.BottomGravel, 42))

	iso, err := NewIsovelocity(1500, 50, model.BottomChalk)
	if err != nil {
		t.Fatalf("NewIsovelocity: %v", err)
	}
	waterOnly := NewDescription()
	mustAdd(t, waterOnly, 0, model.Water{SpeedMS: 1480})

	for _, d := range []*Description{seeded, iso, waterOnly} {
		var first bytes.Buffer
		if err := d.Save(&first); err != nil {
			t.Fatalf("Save: %v", err)
		}
		loaded, err := Load(bytes.NewReader(first.Bytes()))
		if err != nil {
			t.Fatalf("Load(%s): %v", first.String(), err)
		}
		if !loaded.Equal(d) {
			t.Fatalf("loaded %v, want %v", loaded, d)
		}
		var second bytes.Buffer
		if err := loaded.Save(&second); err != nil {
			t.Fatalf("Save: %v", err)
		}
		if !bytes.Equal(first.Bytes(), second.Bytes()) {
			t.Fatalf("round trip changed bytes:\n%s\nvs\n%s", first.String(), second.String())
		}
	}
}

func TestLoadRejectsMalformedRecords(t *testing.T) {
	cases := map[string]string{
		"unordered":       `[{"depth":0,"kind":"water","value":1500},{"depth":30,"kind":"bottom","value":"sand"},{"depth":10,"kind":"water","value":1500}]`,
		"no water at top": `[{"depth":0,"kind":"bottom","value":"sand"}]`,
		"unknown kind":    `[{"depth":0,"kind":"water","value":1500},{"depth":10,"kind":"lava","value":1}]`,
		"unknown bottom":  `[{"depth":0,"kind":"water","value":1500},{"depth":10,"kind":"bottom","value":"mud"}]`,
		"not json":        `depth=0`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(strings.NewReader(raw)); !errors.Is(err, ErrConfiguration) {
				t.Fatalf("Load error = %v, want ErrConfiguration", err)
			}
		})
	}
}

func TestSaveFileLoadFile(t *testing.T) {
	d, err := NewIsovelocity(1500, 50, model.BottomBasalt)
	if err != nil {
		t.Fatalf("NewIsovelocity: %v", err)
	}
	path := filepath.Join(t.TempDir(), "channel.json")
	if err := d.SaveFile(path); err != nil {
		t.Fatalf("SaveFile: %v", err)
	}
	loaded, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if !loaded.Equal(d) {
		t.Fatalf("LoadFile = %v, want %v", loaded, d)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	d := NewDescription()
	mustAdd(t, d, 0, model.Water{SpeedMS: 1500})
	mustAdd(t, d, 40, model.NewSeededSeabed(model.BottomSand, 7))

	c := d.Clone()
	mustAdd(t, d, 20, model.Water{SpeedMS: 1510})
	if c.Equal(d) {
		t.Fatalf("clone followed a mutation of the original")
	}
	if err := d.Remove(20); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if !c.Equal(d) {
		t.Fatalf("clone %v differs from restored original %v", c, d)
	}
}
