package model

import (
	"fmt"
	"math/rand/v2"
	"strings"
)

// BottomType identifies a seabed sediment class.
type BottomType int

const (
	BottomClay BottomType = iota
	BottomSilt
	BottomSand
	BottomGravel
	BottomMoraine
	BottomChalk
	BottomLimestone
	BottomBasalt
)

var bottomNames = [...]string{
	BottomClay:      "clay",
	BottomSilt:      "silt",
	BottomSand:      "sand",
	BottomGravel:    "gravel",
	BottomMoraine:   "moraine",
	BottomChalk:     "chalk",
	BottomLimestone: "limestone",
	BottomBasalt:    "basalt",
}

// BottomTypes lists every known sediment class in declaration order.
func BottomTypes() []BottomType {
	out := make([]BottomType, len(bottomNames))
	for i := range bottomNames {
		out[i] = BottomType(i)
	}
	return out
}

func (b BottomType) String() string {
	if b < 0 || int(b) >= len(bottomNames) {
		return fmt.Sprintf("bottom(%d)", int(b))
	}
	return bottomNames[b]
}

// Valid reports whether b is a declared sediment class.
func (b BottomType) Valid() bool {
	return b >= 0 && int(b) < len(bottomNames)
}

// ParseBottomType maps a case-insensitive name back to a BottomType.
func ParseBottomType(name string) (BottomType, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range bottomNames {
		if n == name {
			return BottomType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown bottom type %q", name)
}

// Geoacoustic holds the properties a propagation model needs from a
// sediment: speeds and densities are ratios to the overlying water.
type Geoacoustic struct {
	SpeedRatio    float64
	DensityRatio  float64
	AttenuationDB float64 // dB per wavelength
}

// Values after Jensen et al., Computational Ocean Acoustics, table 1.3.
var bottomProperties = [...]Geoacoustic{
	BottomClay:      {SpeedRatio: 1.00, DensityRatio: 1.5, AttenuationDB: 0.2},
	BottomSilt:      {SpeedRatio: 1.05, DensityRatio: 1.7, AttenuationDB: 1.0},
	BottomSand:      {SpeedRatio: 1.10, DensityRatio: 1.9, AttenuationDB: 0.8},
	BottomGravel:    {SpeedRatio: 1.20, DensityRatio: 2.0, AttenuationDB: 0.6},
	BottomMoraine:   {SpeedRatio: 1.30, DensityRatio: 2.1, AttenuationDB: 0.4},
	BottomChalk:     {SpeedRatio: 1.60, DensityRatio: 2.2, AttenuationDB: 0.2},
	BottomLimestone: {SpeedRatio: 2.00, DensityRatio: 2.4, AttenuationDB: 0.1},
	BottomBasalt:    {SpeedRatio: 3.50, DensityRatio: 2.7, AttenuationDB: 0.1},
}

// Properties returns the nominal geoacoustic properties of b.
func (b BottomType) Properties() Geoacoustic {
	if !b.Valid() {
		return bottomProperties[BottomSand]
	}
	return bottomProperties[b]
}

// LayerKind discriminates the layer variants in persisted descriptions.
type LayerKind string

const (
	LayerKindWater  LayerKind = "water"
	LayerKindBottom LayerKind = "bottom"
)

// Layer is the medium property governing a depth range of the column.
type Layer interface {
	Kind() LayerKind
	String() string
}

// Water is a water layer with a compressional sound speed.
type Water struct {
	SpeedMS float64
}

func (Water) Kind() LayerKind { return LayerKindWater }

func (w Water) String() string { return fmt.Sprintf("water(%.1f m/s)", w.SpeedMS) }

// Seabed is a sediment layer. A non-nil Seed perturbs the nominal
// properties deterministically.
type Seabed struct {
	Type BottomType
	Seed *int64
}

// NewSeabed returns an unperturbed sediment layer.
func NewSeabed(t BottomType) Seabed { return Seabed{Type: t} }

// NewSeededSeabed returns a sediment layer whose properties vary with seed.
func NewSeededSeabed(t BottomType, seed int64) Seabed {
	return Seabed{Type: t, Seed: &seed}
}

func (Seabed) Kind() LayerKind { return LayerKindBottom }

func (s Seabed) String() string {
	if s.Seed != nil {
		return fmt.Sprintf("bottom(%s, seed=%d)", s.Type, *s.Seed)
	}
	return fmt.Sprintf("bottom(%s)", s.Type)
}

// Properties returns the sediment properties, perturbed by up to ±5 % in
// speed and density when the layer is seeded.
func (s Seabed) Properties() Geoacoustic {
	p := s.Type.Properties()
	if s.Seed == nil {
		return p
	}
	rng := rand.New(rand.NewPCG(uint64(*s.Seed), uint64(s.Type)+1))
	p.SpeedRatio *= 1 + 0.05*(2*rng.Float64()-1)
	p.DensityRatio *= 1 + 0.05*(2*rng.Float64()-1)
	return p
}

// SameLayer reports whether two layers describe the same medium.
func SameLayer(a, b Layer) bool {
	switch la := a.(type) {
	case Water:
		lb, ok := b.(Water)
		return ok && la.SpeedMS == lb.SpeedMS
	case Seabed:
		lb, ok := b.(Seabed)
		if !ok || la.Type != lb.Type {
			return false
		}
		if la.Seed == nil || lb.Seed == nil {
			return la.Seed == nil && lb.Seed == nil
		}
		return *la.Seed == *lb.Seed
	default:
		return false
	}
}
