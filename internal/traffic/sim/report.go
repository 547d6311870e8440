package sim

import "github.com/banshee-data/lanesim/internal/traffic/vehicle"

// VehicleSnapshot is a point-in-time view of a vehicle for external
// consumers such as renderers and statistics collectors.
type VehicleSnapshot struct {
	ID         vehicle.ID     `json:"id"`
	Position   float64        `json:"position"`    // metres
	Speed      float64        `json:"speed"`       // m/s
	SpeedLimit float64        `json:"speed_limit"` // m/s
	Lane       int            `json:"lane"`
	Intent     vehicle.Intent `json:"intent"`
	Finished   bool           `json:"finished"`
}

func snapshotOf(v vehicle.State) VehicleSnapshot {
	return VehicleSnapshot{
		ID:         v.ID,
		Position:   v.Position,
		Speed:      v.Speed,
		SpeedLimit: v.SpeedLimit,
		Lane:       v.Lane,
		Intent:     v.Intent,
		Finished:   v.Finished,
	}
}

// TickReport is published to observers after every committed tick.
type TickReport struct {
	Tick     int               `json:"tick"`
	Time     float64           `json:"time"` // simulation seconds after the tick
	Dt       float64           `json:"dt"`
	Vehicles []VehicleSnapshot `json:"vehicles"`
}

// Observer receives post-tick reports. ObserveTick is called on the
// goroutine that called Tick, after the simulation lock is released.
type Observer interface {
	ObserveTick(TickReport)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(TickReport)

// ObserveTick calls f(r).
func (f ObserverFunc) ObserveTick(r TickReport) { f(r) }
