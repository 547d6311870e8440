package vehicle

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidVehicleConfig is returned when a vehicle cannot be constructed
// from the supplied parameters.
var ErrInvalidVehicleConfig = errors.New("invalid vehicle config")

// ID identifies a vehicle for the lifetime of a simulation run.
type ID int64

// Params are the values a vehicle is created with.
type Params struct {
	Lane         int     `json:"lane"`
	LaneCount    int     `json:"lane_count"`
	Position     float64 `json:"position"`     // metres, rear bumper
	Speed        float64 `json:"speed"`        // m/s
	SpeedLimit   float64 `json:"speed_limit"`  // m/s
	Acceleration float64 `json:"acceleration"` // m/s², >= 0
	Deceleration float64 `json:"deceleration"` // m/s², < 0
	Length       float64 `json:"length"`       // metres

	// SpeedPreferenceOffset biases the target speed (m/s). Negative values
	// model a cautious driver.
	SpeedPreferenceOffset float64 `json:"speed_preference_offset,omitempty"`

	Policy Policy `json:"policy"`
}

// State is the full per-vehicle record held by the simulation.
type State struct {
	ID ID `json:"id"`
	Params

	Intent     Intent  `json:"intent"`
	Finished   bool    `json:"finished"`
	FinishTime float64 `json:"finish_time,omitempty"` // simulation seconds

	// LaneChangeHold is the remaining commitment period (seconds) after a
	// lane change. Lane changes are unavailable while it is positive.
	LaneChangeHold float64 `json:"lane_change_hold,omitempty"`
}

// New validates p and returns the initial state for vehicle id.
func New(id ID, p Params) (State, error) {
	if err := p.Validate(); err != nil {
		return State{}, fmt.Errorf("vehicle %d: %w", id, err)
	}
	return State{ID: id, Params: p, Intent: Cruise}, nil
}

// Validate checks the construction invariants. Every failure wraps
// ErrInvalidVehicleConfig.
func (p Params) Validate() error {
	finite := []struct {
		name string
		v    float64
	}{
		{"position", p.Position},
		{"speed", p.Speed},
		{"speed_limit", p.SpeedLimit},
		{"acceleration", p.Acceleration},
		{"deceleration", p.Deceleration},
		{"length", p.Length},
		{"speed_preference_offset", p.SpeedPreferenceOffset},
	}
	for _, f := range finite {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return fmt.Errorf("%w: %s must be finite, got %v", ErrInvalidVehicleConfig, f.name, f.v)
		}
	}
	// Zero deceleration would make the stopping distance divide by zero.
	if p.Deceleration >= 0 {
		return fmt.Errorf("%w: deceleration must be negative, got %v", ErrInvalidVehicleConfig, p.Deceleration)
	}
	if p.Acceleration < 0 {
		return fmt.Errorf("%w: acceleration must be non-negative, got %v", ErrInvalidVehicleConfig, p.Acceleration)
	}
	if p.LaneCount < 1 {
		return fmt.Errorf("%w: lane_count must be at least 1, got %d", ErrInvalidVehicleConfig, p.LaneCount)
	}
	if p.Lane < 0 || p.Lane >= p.LaneCount {
		return fmt.Errorf("%w: lane %d outside [0, %d)", ErrInvalidVehicleConfig, p.Lane, p.LaneCount)
	}
	if p.Speed < 0 {
		return fmt.Errorf("%w: speed must be non-negative, got %v", ErrInvalidVehicleConfig, p.Speed)
	}
	if p.Length < 0 {
		return fmt.Errorf("%w: length must be non-negative, got %v", ErrInvalidVehicleConfig, p.Length)
	}
	if err := p.Policy.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidVehicleConfig, err)
	}
	return nil
}

// StoppingDistance returns the distance needed to reach zero speed under
// full braking: speed² / (2·|deceleration|). Finished vehicles are parked
// and report zero.
func (s State) StoppingDistance() float64 {
	if s.Finished || s.Deceleration >= 0 {
		return 0
	}
	return (s.Speed * s.Speed) / (2 * -s.Deceleration)
}

// Front returns the position of the front bumper.
func (s State) Front() float64 {
	return s.Position + s.Length
}

// TargetSpeed is the speed the driver aims for when the road ahead is clear.
func (s State) TargetSpeed() float64 {
	return s.SpeedLimit + s.SpeedPreferenceOffset
}

// HasLane reports whether a lane change by delta stays on the road.
func (s State) HasLane(delta int) bool {
	target := s.Lane + delta
	return target >= 0 && target < s.LaneCount
}

// CanChangeLane reports whether the lane-change commitment period has
// elapsed.
func (s State) CanChangeLane() bool {
	return s.LaneChangeHold <= 0
}
