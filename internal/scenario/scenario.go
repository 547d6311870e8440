// Package scenario builds a road, its speed signs and its traffic from a
// SimConfig, and drives the resulting simulation to completion.
//
// All randomness comes from the *rand.Rand passed in, so a scenario is
// reproducible from its seed.
package scenario

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/samber/lo"

	"github.com/banshee-data/lanesim/internal/config"
	"github.com/banshee-data/lanesim/internal/traffic/sim"
	"github.com/banshee-data/lanesim/internal/traffic/vehicle"
	"github.com/banshee-data/lanesim/internal/units"
)

const (
	// firstTrafficOffset is how far ahead of the course start each lane's
	// spawn cursor begins, so traffic never spawns on top of the lead car.
	firstTrafficOffset = 80.0

	minSpawnSpeedFraction = 0.65
	maxSpawnSpeedFraction = 0.9

	// minBrake keeps jittered deceleration strictly negative.
	minBrake = 0.5
)

// NewRand returns the deterministic generator used for a given seed.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

func uniform(rng *rand.Rand, low, high float64) float64 {
	return low + rng.Float64()*(high-low)
}

// Zones places speed signs from FirstSignPosition up to the course end,
// with spacing uniform in [SignSpacingMin, SignSpacingMax] and limits drawn
// from SignLimitsKMH. Limits are returned in m/s, ordered by position.
func Zones(cfg *config.SimConfig, rng *rand.Rand) []sim.Zone {
	limits := cfg.GetSignLimitsKMH()
	end := cfg.GetCourseEnd()

	var zones []sim.Zone
	for pos := cfg.GetFirstSignPosition(); pos < end; pos += uniform(rng, cfg.GetSignSpacingMin(), cfg.GetSignSpacingMax()) {
		kmh := limits[rng.IntN(len(limits))]
		zones = append(zones, sim.Zone{Position: pos, SpeedLimit: units.KMHToMPS(kmh)})
	}
	return zones
}

// Spawn adds the lead vehicle and TrafficCount traffic vehicles to s and
// returns their handles, lead first.
//
// The lead starts at the course start in PlayerLane. Each traffic vehicle
// picks a random lane and is placed ahead of the previous vehicle in that
// lane by VehicleLength + MinGap + U(0, GapJitter), starting at 65-90% of
// the start limit.
func Spawn(s *sim.Simulation, cfg *config.SimConfig, rng *rand.Rand) ([]sim.Handle, error) {
	laneCount := cfg.GetLaneCount()
	if laneCount != s.LaneCount() {
		return nil, fmt.Errorf("config has %d lanes, simulation has %d", laneCount, s.LaneCount())
	}

	start := cfg.GetCourseStart()
	startLimit := units.KMHToMPS(cfg.GetStartLimitKMH())
	policy := cfg.Policy()

	params := func(index, lane int, pos, speed float64) vehicle.Params {
		accel := uniform(rng, cfg.GetBaseAcceleration()-cfg.GetAccelerationJitter(), cfg.GetBaseAcceleration()+cfg.GetAccelerationJitter())
		decel := uniform(rng, cfg.GetBaseDeceleration()-cfg.GetDecelerationJitter(), cfg.GetBaseDeceleration()+cfg.GetDecelerationJitter())
		return vehicle.Params{
			Lane:                  lane,
			LaneCount:             laneCount,
			Position:              pos,
			Speed:                 speed,
			SpeedLimit:            startLimit,
			Acceleration:          max(accel, 0),
			Deceleration:          lo.Clamp(decel, -math.MaxFloat64, -minBrake),
			Length:                cfg.GetVehicleLength(),
			SpeedPreferenceOffset: cfg.GetSpeedPreference(index),
			Policy:                policy,
		}
	}

	handles := make([]sim.Handle, 0, cfg.GetTrafficCount()+1)

	lead, err := s.CreateVehicle(params(0, cfg.GetPlayerLane(), start, units.KMHToMPS(cfg.GetPlayerSpeedKMH())))
	if err != nil {
		return nil, fmt.Errorf("spawn lead: %w", err)
	}
	handles = append(handles, lead)

	cursor := lo.Times(laneCount, func(int) float64 { return start + firstTrafficOffset })
	spacing := cfg.GetVehicleLength() + cfg.GetMinGap()

	for i := 0; i < cfg.GetTrafficCount(); i++ {
		lane := rng.IntN(laneCount)
		pos := cursor[lane] + spacing + rng.Float64()*cfg.GetGapJitter()
		cursor[lane] = pos

		speed := uniform(rng, minSpawnSpeedFraction, maxSpawnSpeedFraction) * startLimit
		h, err := s.CreateVehicle(params(i+1, lane, pos, speed))
		if err != nil {
			return nil, fmt.Errorf("spawn traffic %d: %w", i, err)
		}
		handles = append(handles, h)
	}
	return handles, nil
}

// Build creates a simulation from cfg with its signs and traffic in place.
// Signs are drawn before traffic so both depend only on the seed.
func Build(cfg *config.SimConfig, observers ...sim.Observer) (*sim.Simulation, []sim.Zone, error) {
	s, err := sim.New(sim.Options{
		LaneCount: cfg.GetLaneCount(),
		CourseEnd: cfg.GetCourseEnd(),
		Workers:   cfg.GetWorkers(),
		Observers: observers,
	})
	if err != nil {
		return nil, nil, err
	}

	rng := NewRand(cfg.GetSeed())
	zones := Zones(cfg, rng)
	if _, err := Spawn(s, cfg, rng); err != nil {
		return nil, nil, err
	}
	return s, zones, nil
}
