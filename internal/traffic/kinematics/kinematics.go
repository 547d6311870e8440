// Package kinematics applies a chosen intent to a vehicle over one time
// step.
//
// Displacement uses the post-update speed: the speed change of the tick
// takes effect on the same tick's displacement. For example 10 m/s
// accelerating at 8 m/s² for 0.5 s ends at 14 m/s having moved 7 m.
//
// Dependency rule: kinematics depends only on vehicle.
package kinematics

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/lanesim/internal/traffic/vehicle"
)

var (
	// ErrInvalidTimestep is returned for a negative or non-finite dt.
	ErrInvalidTimestep = errors.New("invalid timestep")
	// ErrUnknownIntent is returned for an intent outside the declared set.
	ErrUnknownIntent = errors.New("unknown intent")
)

// ValidateTimestep checks that dt is finite and non-negative.
func ValidateTimestep(dt float64) error {
	if math.IsNaN(dt) || math.IsInf(dt, 0) || dt < 0 {
		return fmt.Errorf("%w: dt=%v", ErrInvalidTimestep, dt)
	}
	return nil
}

// Integrate returns the state of s after applying in for dt seconds. The
// input is never modified.
//
// A lane change that would leave [0, LaneCount) is downgraded to
// Decelerate, and the returned state records the intent actually applied.
func Integrate(s vehicle.State, in vehicle.Intent, dt float64) (vehicle.State, error) {
	if err := ValidateTimestep(dt); err != nil {
		return s, err
	}
	if !in.Valid() {
		return s, fmt.Errorf("%w: %q", ErrUnknownIntent, in)
	}

	next := s
	next.LaneChangeHold = max(s.LaneChangeHold-dt, 0)

	if in.IsLaneChange() && !s.HasLane(in.LaneDelta()) {
		in = vehicle.Decelerate
	}

	switch in {
	case vehicle.Accelerate:
		next.Speed += s.Acceleration * dt
	case vehicle.Decelerate:
		next.Speed = max(s.Speed+s.Deceleration*dt, 0)
	case vehicle.LaneChangeLeft, vehicle.LaneChangeRight:
		next.Lane += in.LaneDelta()
		next.LaneChangeHold = s.Policy.MinLaneChangeInterval
	case vehicle.Cruise:
	}

	next.Position += next.Speed * dt
	next.Intent = in
	return next, nil
}
