// Package intent selects the action a vehicle takes for a single tick.
//
// The selector is a memoryless classifier: it maps the current
// perception and the speed/target comparison to one Intent. The only
// state that survives between ticks is the vehicle's kinematic record,
// including the optional lane-change hold timer configured by its Policy.
//
// Dependency rule: intent depends on vehicle and perception only.
package intent

import (
	"github.com/banshee-data/lanesim/internal/traffic/perception"
	"github.com/banshee-data/lanesim/internal/traffic/vehicle"
)

// Decide returns the intent for s given its perception p. The first
// matching rule wins:
//
//  1. Blocked ahead: change lane to the first free side in the policy's
//     order, otherwise decelerate.
//  2. Clear ahead: decelerate when more than the policy tolerance over the
//     target speed, accelerate when under it, otherwise cruise.
func Decide(s vehicle.State, p perception.Perception) vehicle.Intent {
	if p.CarFront {
		for _, in := range laneChangeOrder(s.Policy.Order()) {
			if laneChangeAvailable(s, p, in) {
				return in
			}
		}
		return vehicle.Decelerate
	}

	target := s.TargetSpeed()
	switch {
	case s.Speed-target > s.Policy.Tolerance():
		return vehicle.Decelerate
	case s.Speed < target:
		return vehicle.Accelerate
	default:
		return vehicle.Cruise
	}
}

func laneChangeOrder(order vehicle.LaneChangeOrder) [2]vehicle.Intent {
	if order == vehicle.RightFirst {
		return [2]vehicle.Intent{vehicle.LaneChangeRight, vehicle.LaneChangeLeft}
	}
	return [2]vehicle.Intent{vehicle.LaneChangeLeft, vehicle.LaneChangeRight}
}

func laneChangeAvailable(s vehicle.State, p perception.Perception, in vehicle.Intent) bool {
	return !p.Blocked(in) && s.HasLane(in.LaneDelta()) && s.CanChangeLane()
}
