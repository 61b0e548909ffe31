package model

import "strings"

// ItemKind is the navigation command of a mission item.
type ItemKind int

const (
	ItemWaypoint ItemKind = iota
	ItemTakeoff
	ItemLand
)

func (k ItemKind) String() string {
	switch k {
	case ItemTakeoff:
		return "TAKEOFF"
	case ItemLand:
		return "LAND"
	default:
		return "WAYPOINT"
	}
}

// ParseItemKind maps a wire token to an ItemKind, ignoring case.
// Unknown tokens report ok=false and yield ItemWaypoint.
func ParseItemKind(s string) (kind ItemKind, ok bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "WAYPOINT":
		return ItemWaypoint, true
	case "TAKEOFF":
		return ItemTakeoff, true
	case "LAND":
		return ItemLand, true
	default:
		return ItemWaypoint, false
	}
}

// MissionItem is one step of a flight plan. Altitude is relative to home, in meters.
type MissionItem struct {
	Latitude  float64
	Longitude float64
	Altitude  float64
	Kind      ItemKind
}
