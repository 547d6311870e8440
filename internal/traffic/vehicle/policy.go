package vehicle

import (
	"fmt"
	"math"
)

// LaneChangeOrder selects which side is tried first when a vehicle is
// blocked ahead.
type LaneChangeOrder string

const (
	LeftFirst  LaneChangeOrder = "left_first"
	RightFirst LaneChangeOrder = "right_first"
)

// DefaultSpeedTolerance is how far (m/s) a vehicle may exceed its target
// speed before it decelerates.
const DefaultSpeedTolerance = 1.0

// Policy holds the behavioural knobs chosen when a vehicle is created.
// The zero value is valid and reproduces the baseline driver: left lane
// first, 1 m/s tolerance, no lane-change commitment period.
type Policy struct {
	LaneChangeOrder LaneChangeOrder `json:"lane_change_order,omitempty"`

	// SpeedTolerance overrides DefaultSpeedTolerance when set. An explicit
	// zero makes any overspeed trigger a deceleration.
	SpeedTolerance *float64 `json:"speed_tolerance,omitempty"`

	// MinLaneChangeInterval is the number of seconds after a lane change
	// during which no further lane change is allowed. Zero disables the
	// hold and intent is recomputed from scratch every tick.
	MinLaneChangeInterval float64 `json:"min_lane_change_interval,omitempty"`
}

// Order returns the lane-change order, defaulting to LeftFirst.
func (p Policy) Order() LaneChangeOrder {
	if p.LaneChangeOrder == "" {
		return LeftFirst
	}
	return p.LaneChangeOrder
}

// Tolerance returns the overspeed tolerance in m/s.
func (p Policy) Tolerance() float64 {
	if p.SpeedTolerance == nil {
		return DefaultSpeedTolerance
	}
	return *p.SpeedTolerance
}

// Validate checks the policy values.
func (p Policy) Validate() error {
	switch p.LaneChangeOrder {
	case "", LeftFirst, RightFirst:
	default:
		return fmt.Errorf("unknown lane_change_order %q", p.LaneChangeOrder)
	}
	if tol := p.Tolerance(); math.IsNaN(tol) || math.IsInf(tol, 0) || tol < 0 {
		return fmt.Errorf("speed_tolerance must be finite and non-negative, got %v", tol)
	}
	if math.IsNaN(p.MinLaneChangeInterval) || math.IsInf(p.MinLaneChangeInterval, 0) || p.MinLaneChangeInterval < 0 {
		return fmt.Errorf("min_lane_change_interval must be finite and non-negative, got %v", p.MinLaneChangeInterval)
	}
	return nil
}
