package model

import (
	"fmt"
	"strings"
)

// ShipType is the vessel class used to pick propulsion statistics.
type ShipType int

const (
	ShipBulker ShipType = iota
	ShipContainer
	ShipCruise
	ShipDredger
	ShipFishing
	ShipGovernment
	ShipNaval
	ShipOther
	ShipPassenger
	ShipRecreational
	ShipResearch
	ShipTanker
	ShipTug
	ShipVehicleCarrier
)

var shipNames = [...]string{
	ShipBulker:         "bulker",
	ShipContainer:      "container_ship",
	ShipCruise:         "cruise",
	ShipDredger:        "dredger",
	ShipFishing:        "fishing",
	ShipGovernment:     "government",
	ShipNaval:          "naval",
	ShipOther:          "other",
	ShipPassenger:      "passenger",
	ShipRecreational:   "recreational",
	ShipResearch:       "research",
	ShipTanker:         "tanker",
	ShipTug:            "tug",
	ShipVehicleCarrier: "vehicle_carrier",
}

// ShipTypes lists every vessel class in declaration order.
func ShipTypes() []ShipType {
	out := make([]ShipType, len(shipNames))
	for i := range shipNames {
		out[i] = ShipType(i)
	}
	return out
}

func (s ShipType) String() string {
	if s < 0 || int(s) >= len(shipNames) {
		return fmt.Sprintf("ship(%d)", int(s))
	}
	return shipNames[s]
}

// Valid reports whether s is a declared vessel class.
func (s ShipType) Valid() bool {
	return s >= 0 && int(s) < len(shipNames)
}

// ParseShipType maps a case-insensitive name back to a ShipType.
func ParseShipType(name string) (ShipType, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range shipNames {
		if n == name {
			return ShipType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown ship type %q", name)
}
