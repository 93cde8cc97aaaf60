package core

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/signalsfoundry/acoustic-scene-sim/model"
)

const maxSpeedFactor = 1.25

// classStats are the per-class means and spreads that ShipParameters draws
// from. Speeds are in knots.
type classStats struct {
	levelDB      float64
	lengthM      float64
	lengthSpread float64
	cruiseKt     float64
	draftM       float64
	minBlades    int
	maxBlades    int
	shafts       int
	rotationHz   float64
}

var shipClasses = [...]classStats{
	model.ShipBulker:         {levelDB: 140, lengthM: 200, lengthSpread: 30, cruiseKt: 14, draftM: 11, minBlades: 4, maxBlades: 5, shafts: 1, rotationHz: 1.6},
	model.ShipContainer:      {levelDB: 142, lengthM: 280, lengthSpread: 60, cruiseKt: 20, draftM: 12, minBlades: 5, maxBlades: 6, shafts: 1, rotationHz: 1.5},
	model.ShipCruise:         {levelDB: 138, lengthM: 250, lengthSpread: 50, cruiseKt: 18, draftM: 8, minBlades: 4, maxBlades: 5, shafts: 2, rotationHz: 2.2},
	model.ShipDredger:        {levelDB: 136, lengthM: 100, lengthSpread: 30, cruiseKt: 11, draftM: 6, minBlades: 4, maxBlades: 4, shafts: 2, rotationHz: 3},
	model.ShipFishing:        {levelDB: 130, lengthM: 30, lengthSpread: 10, cruiseKt: 10, draftM: 3.5, minBlades: 3, maxBlades: 4, shafts: 1, rotationHz: 5},
	model.ShipGovernment:     {levelDB: 133, lengthM: 60, lengthSpread: 20, cruiseKt: 14, draftM: 4, minBlades: 4, maxBlades: 5, shafts: 2, rotationHz: 4},
	model.ShipNaval:          {levelDB: 128, lengthM: 120, lengthSpread: 40, cruiseKt: 18, draftM: 5, minBlades: 5, maxBlades: 7, shafts: 2, rotationHz: 2.5},
	model.ShipOther:          {levelDB: 132, lengthM: 50, lengthSpread: 25, cruiseKt: 12, draftM: 4, minBlades: 3, maxBlades: 5, shafts: 1, rotationHz: 4},
	model.ShipPassenger:      {levelDB: 137, lengthM: 120, lengthSpread: 40, cruiseKt: 18, draftM: 5, minBlades: 4, maxBlades: 5, shafts: 2, rotationHz: 3},
	model.ShipRecreational:   {levelDB: 125, lengthM: 12, lengthSpread: 4, cruiseKt: 20, draftM: 1.2, minBlades: 3, maxBlades: 3, shafts: 1, rotationHz: 15},
	model.ShipResearch:       {levelDB: 131, lengthM: 70, lengthSpread: 20, cruiseKt: 12, draftM: 5, minBlades: 4, maxBlades: 5, shafts: 2, rotationHz: 3},
	model.ShipTanker:         {levelDB: 141, lengthM: 230, lengthSpread: 40, cruiseKt: 14, draftM: 13, minBlades: 4, maxBlades: 5, shafts: 1, rotationHz: 1.5},
	model.ShipTug:            {levelDB: 135, lengthM: 30, lengthSpread: 6, cruiseKt: 12, draftM: 4.5, minBlades: 4, maxBlades: 5, shafts: 2, rotationHz: 5},
	model.ShipVehicleCarrier: {levelDB: 139, lengthM: 200, lengthSpread: 20, cruiseKt: 19, draftM: 9, minBlades: 5, maxBlades: 5, shafts: 1, rotationHz: 1.8},
}

func classLevelDB(t model.ShipType) float64 {
	if !t.Valid() {
		return 0
	}
	return shipClasses[t].levelDB
}

// ShipParameters draws a plausible propulsion plant for the class. The
// result depends only on (t, seed).
func ShipParameters(t model.ShipType, seed int64) (PropulsionParams, error) {
	if !t.Valid() {
		return PropulsionParams{}, fmt.Errorf("ship parameters: invalid ship type %d", int(t))
	}
	stats := shipClasses[t]
	rng := rand.New(rand.NewPCG(uint64(seed), 0x736869700000|uint64(t)))
	spread := func() float64 { return 2*rng.Float64() - 1 }

	length := math.Max(5, stats.lengthM+stats.lengthSpread*spread())
	cruise := Knots(stats.cruiseKt) * (1 + 0.1*spread())
	blades := stats.minBlades + rng.IntN(stats.maxBlades-stats.minBlades+1)
	rotation := stats.rotationHz * (1 + 0.1*spread())

	return PropulsionParams{
		ShipType:         t,
		NBlades:          blades,
		NShafts:          stats.shafts,
		LengthM:          length,
		CruiseSpeedMS:    cruise,
		CruiseRotationHz: rotation,
		MaxSpeedMS:       maxSpeedFactor * cruise,
		DraftM:           stats.draftM * length / stats.lengthM,
		Seed:             seed,
	}, nil
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(math.Round(s * float64(time.Second)))
}
