package sim

import (
	"slices"
	"sort"
)

// Zone is a speed-limit sign: from Position onwards SpeedLimit applies.
type Zone struct {
	Position   float64 `json:"position"`    // metres
	SpeedLimit float64 `json:"speed_limit"` // m/s
}

// orderedZones returns zones sorted by position. The caller's slice is
// left untouched; an already-sorted input is returned as is.
func orderedZones(zones []Zone) []Zone {
	byPosition := func(a, b Zone) int {
		switch {
		case a.Position < b.Position:
			return -1
		case a.Position > b.Position:
			return 1
		}
		return 0
	}
	if slices.IsSortedFunc(zones, byPosition) {
		return zones
	}
	sorted := slices.Clone(zones)
	slices.SortStableFunc(sorted, byPosition)
	return sorted
}

// LimitAt returns the speed limit of the last zone whose threshold is at
// or before position. ok is false when position precedes every zone.
// zones must be sorted by position.
func LimitAt(zones []Zone, position float64) (limit float64, ok bool) {
	i := sort.Search(len(zones), func(i int) bool { return zones[i].Position > position })
	if i == 0 {
		return 0, false
	}
	return zones[i-1].SpeedLimit, true
}
