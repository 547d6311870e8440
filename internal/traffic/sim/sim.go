// Package sim drives every vehicle on the road through one tick at a time.
//
// Each tick has three phases:
//
//  1. Zone pass - every unfinished vehicle receives the speed limit of the
//     last sign at or before its position.
//
//  2. Decision pass - a copy of all vehicle records is taken, then every
//     unfinished vehicle perceives, decides and integrates against that
//     copy. No vehicle sees another's same-tick update, so the result does
//     not depend on processing order. With Options.Workers > 1 the pass is
//     split across goroutines and joined before commit.
//
//  3. Commit - the new records replace the arena in one step; vehicles
//     past the course end are marked finished, parked and frozen. They stay
//     visible to perception as static obstacles.
//
// The Simulation owns its arena exclusively. Callers hold Handles and read
// state through Snapshot.
package sim

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/banshee-data/lanesim/internal/monitoring"
	"github.com/banshee-data/lanesim/internal/traffic/kinematics"
	"github.com/banshee-data/lanesim/internal/traffic/vehicle"
)

var (
	// ErrDuplicateVehicleID is returned when registering a vehicle whose ID
	// is already in the arena.
	ErrDuplicateVehicleID = errors.New("duplicate vehicle id")
	// ErrUnknownHandle is returned for a handle that was never issued.
	ErrUnknownHandle = errors.New("unknown vehicle handle")
	// ErrInvalidTimestep is returned by Tick for a negative or non-finite dt.
	ErrInvalidTimestep = kinematics.ErrInvalidTimestep
)

// Handle addresses a vehicle record in the arena.
type Handle int

// Options configures a Simulation.
type Options struct {
	// LaneCount is the number of lanes on the road. Every vehicle must
	// agree with it.
	LaneCount int

	// CourseEnd is the finish line position in metres. Zero or negative
	// disables finishing.
	CourseEnd float64

	// Workers is the number of goroutines used for the decision pass.
	// Values below 2 run the pass sequentially.
	Workers int

	// Observers receive a TickReport after every committed tick.
	Observers []Observer
}

// Simulation is the vehicle arena plus the simulation clock.
type Simulation struct {
	RunID string

	laneCount int
	courseEnd float64
	workers   int

	vehicles []vehicle.State
	byID     map[vehicle.ID]Handle
	nextID   vehicle.ID

	time  float64
	ticks int

	observers []Observer

	mu sync.RWMutex
}

// New creates an empty simulation.
func New(opts Options) (*Simulation, error) {
	if opts.LaneCount < 1 {
		return nil, fmt.Errorf("lane count must be at least 1, got %d", opts.LaneCount)
	}
	if math.IsNaN(opts.CourseEnd) || math.IsInf(opts.CourseEnd, 0) {
		return nil, fmt.Errorf("course end must be finite, got %v", opts.CourseEnd)
	}
	s := &Simulation{
		RunID:     fmt.Sprintf("run_%s", uuid.NewString()),
		laneCount: opts.LaneCount,
		courseEnd: opts.CourseEnd,
		workers:   max(opts.Workers, 1),
		byID:      make(map[vehicle.ID]Handle),
		observers: slices.Clone(opts.Observers),
	}
	monitoring.Debugf("sim %s: %d lanes, course end %.1f m, %d workers", s.RunID, s.laneCount, s.courseEnd, s.workers)
	return s, nil
}

// Subscribe adds an observer for subsequent ticks.
func (s *Simulation) Subscribe(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

// CreateVehicle assigns the next free ID, validates p and adds the vehicle
// to the arena.
func (s *Simulation) CreateVehicle(p vehicle.Params) (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := vehicle.New(s.nextID, p)
	if err != nil {
		return 0, err
	}
	return s.register(st)
}

// Register adds an externally constructed record to the arena. The ID must
// not already be present; later CreateVehicle calls never reuse it.
func (s *Simulation) Register(st vehicle.State) (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := st.Params.Validate(); err != nil {
		return 0, fmt.Errorf("vehicle %d: %w", st.ID, err)
	}
	if !st.Intent.Valid() {
		st.Intent = vehicle.Cruise
	}
	return s.register(st)
}

func (s *Simulation) register(st vehicle.State) (Handle, error) {
	if _, exists := s.byID[st.ID]; exists {
		return 0, fmt.Errorf("vehicle %d: %w", st.ID, ErrDuplicateVehicleID)
	}
	if st.LaneCount != s.laneCount {
		return 0, fmt.Errorf("vehicle %d: %w: lane_count %d does not match road lane count %d",
			st.ID, vehicle.ErrInvalidVehicleConfig, st.LaneCount, s.laneCount)
	}

	h := Handle(len(s.vehicles))
	s.vehicles = append(s.vehicles, st)
	s.byID[st.ID] = h
	if st.ID >= s.nextID {
		s.nextID = st.ID + 1
	}
	return h, nil
}

// Tick advances every unfinished vehicle by dt seconds. zones are the
// speed-limit signs in effect for this tick; they need not be sorted and
// are not modified. An invalid dt is rejected before any state changes.
func (s *Simulation) Tick(zones []Zone, dt float64) error {
	if err := kinematics.ValidateTimestep(dt); err != nil {
		return err
	}

	s.mu.Lock()
	ordered := orderedZones(zones)

	// The snapshot is a private copy: zone limits are applied to it so a
	// failed tick leaves the arena untouched.
	snapshot := slices.Clone(s.vehicles)
	for i := range snapshot {
		if snapshot[i].Finished {
			continue
		}
		if limit, ok := LimitAt(ordered, snapshot[i].Position); ok {
			snapshot[i].SpeedLimit = limit
		}
	}

	next, err := s.decide(snapshot, dt)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("tick %d: %w", s.ticks+1, err)
	}

	now := s.time + dt
	for i := range next {
		v := &next[i]
		if v.Finished || s.courseEnd <= 0 || v.Position < s.courseEnd {
			continue
		}
		v.Finished = true
		v.FinishTime = now
		v.Speed = 0
		monitoring.Debugf("sim %s: vehicle %d finished at t=%.2fs", s.RunID, v.ID, now)
	}

	s.vehicles = next
	s.time = now
	s.ticks++

	report := TickReport{
		Tick:     s.ticks,
		Time:     s.time,
		Dt:       dt,
		Vehicles: s.snapshotsLocked(),
	}
	observers := slices.Clone(s.observers)
	s.mu.Unlock()

	for _, o := range observers {
		o.ObserveTick(report)
	}
	return nil
}

// Snapshot returns the externally visible state of the vehicle at h.
func (s *Simulation) Snapshot(h Handle) (VehicleSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if h < 0 || int(h) >= len(s.vehicles) {
		return VehicleSnapshot{}, fmt.Errorf("%w: %d", ErrUnknownHandle, h)
	}
	return snapshotOf(s.vehicles[h]), nil
}

// Snapshots returns the state of every vehicle in handle order.
func (s *Simulation) Snapshots() []VehicleSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotsLocked()
}

// State returns a copy of the full record at h, including parameters.
func (s *Simulation) State(h Handle) (vehicle.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if h < 0 || int(h) >= len(s.vehicles) {
		return vehicle.State{}, fmt.Errorf("%w: %d", ErrUnknownHandle, h)
	}
	return s.vehicles[h], nil
}

// Handles returns every issued handle in creation order.
func (s *Simulation) Handles() []Handle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	hs := make([]Handle, len(s.vehicles))
	for i := range hs {
		hs[i] = Handle(i)
	}
	return hs
}

// Len returns the number of vehicles in the arena.
func (s *Simulation) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vehicles)
}

// Time returns the simulation clock in seconds.
func (s *Simulation) Time() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.time
}

// Ticks returns the number of committed ticks.
func (s *Simulation) Ticks() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ticks
}

// LaneCount returns the number of lanes on the road.
func (s *Simulation) LaneCount() int { return s.laneCount }

// CourseEnd returns the finish line position, or zero when disabled.
func (s *Simulation) CourseEnd() float64 { return s.courseEnd }

// AllFinished reports whether every vehicle has crossed the course end.
// An empty arena is not finished.
func (s *Simulation) AllFinished() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.vehicles) == 0 {
		return false
	}
	for i := range s.vehicles {
		if !s.vehicles[i].Finished {
			return false
		}
	}
	return true
}

func (s *Simulation) snapshotsLocked() []VehicleSnapshot {
	out := make([]VehicleSnapshot, len(s.vehicles))
	for i := range s.vehicles {
		out[i] = snapshotOf(s.vehicles[i])
	}
	return out
}
