// Package stats accumulates per-vehicle run statistics from simulation tick
// reports. A Collector is attached to a simulation as an observer; the
// simulation itself knows nothing about statistics.
package stats

import (
	"cmp"
	"math"
	"slices"
	"sync"

	"github.com/samber/lo"

	"github.com/banshee-data/lanesim/internal/traffic/sim"
	"github.com/banshee-data/lanesim/internal/traffic/vehicle"
)

// VehicleStats is the summary of one vehicle's run. Speeds are m/s,
// distances metres and times simulation seconds.
type VehicleStats struct {
	ID            vehicle.ID `json:"id"`
	StartPosition float64    `json:"start_position"`
	Position      float64    `json:"position"`
	Lane          int        `json:"lane"`
	Elapsed       float64    `json:"elapsed"`
	MinSpeed      float64    `json:"min_speed"`
	MaxSpeed      float64    `json:"max_speed"`
	Finished      bool       `json:"finished"`
	FinishTime    float64    `json:"finish_time,omitempty"`
}

// Distance is how far the vehicle has travelled since it was first seen.
func (v VehicleStats) Distance() float64 {
	return v.Position - v.StartPosition
}

// AvgSpeed is Distance over Elapsed, or 0 before any time has elapsed.
func (v VehicleStats) AvgSpeed() float64 {
	if v.Elapsed <= 0 {
		return 0
	}
	return v.Distance() / v.Elapsed
}

type row struct {
	VehicleStats
	sampled bool
}

// Collector implements sim.Observer.
type Collector struct {
	mu   sync.Mutex
	rows map[vehicle.ID]*row
}

// NewCollector returns an empty collector.
func NewCollector() *Collector {
	return &Collector{rows: make(map[vehicle.ID]*row)}
}

// Start records the starting position of every vehicle in snaps. Vehicles
// first seen in a tick report start from their post-tick position instead.
func (c *Collector) Start(snaps []sim.VehicleSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, v := range snaps {
		c.rows[v.ID] = &row{VehicleStats: VehicleStats{
			ID:            v.ID,
			StartPosition: v.Position,
			Position:      v.Position,
			Lane:          v.Lane,
			Finished:      v.Finished,
		}}
	}
}

// ObserveTick folds one tick report into the per-vehicle rows. Time only
// accrues for vehicles that were still running when the tick began, and
// the speed of the finishing tick is not sampled because finishing parks
// the vehicle.
func (c *Collector) ObserveTick(r sim.TickReport) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, v := range r.Vehicles {
		rw, ok := c.rows[v.ID]
		if !ok {
			rw = &row{VehicleStats: VehicleStats{ID: v.ID, StartPosition: v.Position}}
			c.rows[v.ID] = rw
		}
		if rw.Finished {
			continue
		}

		rw.Elapsed += r.Dt
		rw.Position = v.Position
		rw.Lane = v.Lane

		if v.Finished {
			rw.Finished = true
			rw.FinishTime = r.Time
			continue
		}
		if !rw.sampled {
			rw.MinSpeed, rw.MaxSpeed = math.Inf(1), math.Inf(-1)
			rw.sampled = true
		}
		rw.MinSpeed = min(rw.MinSpeed, v.Speed)
		rw.MaxSpeed = max(rw.MaxSpeed, v.Speed)
	}
}

// Results returns one row per vehicle, sorted by ID. Vehicles that were
// never sampled report zero min and max speed.
func (c *Collector) Results() []VehicleStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := lo.MapToSlice(c.rows, func(_ vehicle.ID, rw *row) VehicleStats {
		return rw.VehicleStats
	})
	slices.SortFunc(out, func(a, b VehicleStats) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// Finished returns the rows of vehicles that crossed the finish line,
// ordered by finish time then ID.
func (c *Collector) Finished() []VehicleStats {
	done := lo.Filter(c.Results(), func(v VehicleStats, _ int) bool { return v.Finished })
	slices.SortStableFunc(done, func(a, b VehicleStats) int { return cmp.Compare(a.FinishTime, b.FinishTime) })
	return done
}
