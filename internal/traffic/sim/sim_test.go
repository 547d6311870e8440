package sim

import (
	"math"
	"math/rand/v2"
	"slices"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/lanesim/internal/monitoring"
	"github.com/banshee-data/lanesim/internal/traffic/vehicle"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	m.Run()
}

func newSim(t *testing.T, opts Options) *Simulation {
	t.Helper()
	if opts.LaneCount == 0 {
		opts.LaneCount = 3
	}
	s, err := New(opts)
	require.NoError(t, err)
	return s
}

func params(lane int, pos, speed, limit float64) vehicle.Params {
	return vehicle.Params{
		Lane:         lane,
		LaneCount:    3,
		Position:     pos,
		Speed:        speed,
		SpeedLimit:   limit,
		Acceleration: 8,
		Deceleration: -10,
		Length:       5,
	}
}

func mustCreate(t *testing.T, s *Simulation, p vehicle.Params) Handle {
	t.Helper()
	h, err := s.CreateVehicle(p)
	require.NoError(t, err)
	return h
}

func mustSnapshot(t *testing.T, s *Simulation, h Handle) VehicleSnapshot {
	t.Helper()
	snap, err := s.Snapshot(h)
	require.NoError(t, err)
	return snap
}

func TestNew(t *testing.T) {
	t.Parallel()

	s := newSim(t, Options{LaneCount: 2})
	assert.True(t, strings.HasPrefix(s.RunID, "run_"))
	assert.Equal(t, 2, s.LaneCount())
	assert.Zero(t, s.Len())
	assert.False(t, s.AllFinished())
	assert.Zero(t, s.CourseEnd())
	assert.Equal(t, 500.0, newSim(t, Options{LaneCount: 1, CourseEnd: 500}).CourseEnd())

	_, err := New(Options{LaneCount: 0})
	require.Error(t, err)
	_, err = New(Options{LaneCount: 1, CourseEnd: math.NaN()})
	require.Error(t, err)
}

func TestTick_CruiseAtLimit(t *testing.T) {
	t.Parallel()

	s := newSim(t, Options{})
	p := params(0, 0, 33.3, 33.3)
	p.Deceleration = -12
	h := mustCreate(t, s, p)

	require.NoError(t, s.Tick(nil, 1.0))

	snap := mustSnapshot(t, s, h)
	assert.Equal(t, vehicle.Cruise, snap.Intent)
	assert.InDelta(t, 33.3, snap.Position, 1e-9)
	assert.InDelta(t, 33.3, snap.Speed, 1e-9)
	assert.InDelta(t, 1.0, s.Time(), 1e-12)
	assert.Equal(t, 1, s.Ticks())
}

func TestTick_AccelerateBelowLimit(t *testing.T) {
	t.Parallel()

	s := newSim(t, Options{})
	p := params(1, 0, 10, 40)
	p.Deceleration = -12
	h := mustCreate(t, s, p)

	require.NoError(t, s.Tick(nil, 0.5))

	snap := mustSnapshot(t, s, h)
	assert.Equal(t, vehicle.Accelerate, snap.Intent)
	assert.InDelta(t, 14.0, snap.Speed, 1e-9)
	assert.InDelta(t, 7.0, snap.Position, 1e-9)
}

func TestTick_LaneChangeLeftWhenBlocked(t *testing.T) {
	t.Parallel()

	s := newSim(t, Options{})
	// Stopping distance 20²/20 = 20; envelope ends at 5 + 20 = 25.
	subject := mustCreate(t, s, params(1, 0, 20, 30))
	mustCreate(t, s, params(1, 15, 30, 30))

	require.NoError(t, s.Tick(nil, 0.1))

	snap := mustSnapshot(t, s, subject)
	assert.Equal(t, vehicle.LaneChangeLeft, snap.Intent)
	assert.Equal(t, 2, snap.Lane)
	assert.InDelta(t, 20.0, snap.Speed, 1e-9)
}

func TestTick_BoxedInDecelerates(t *testing.T) {
	t.Parallel()

	s := newSim(t, Options{})
	subject := mustCreate(t, s, params(1, 0, 20, 30))
	mustCreate(t, s, params(1, 15, 30, 30))
	mustCreate(t, s, params(2, 2, 30, 30))
	mustCreate(t, s, params(0, 2, 30, 30))

	require.NoError(t, s.Tick(nil, 0.5))

	snap := mustSnapshot(t, s, subject)
	assert.Equal(t, vehicle.Decelerate, snap.Intent)
	assert.InDelta(t, 15.0, snap.Speed, 1e-9)
	assert.Equal(t, 1, snap.Lane)
}

func TestTick_BoxedInClampsAtZero(t *testing.T) {
	t.Parallel()

	s := newSim(t, Options{LaneCount: 1})
	p := params(0, 0, 2, 30)
	p.LaneCount = 1
	subject := mustCreate(t, s, p)
	q := params(0, 5.1, 0, 0)
	q.LaneCount = 1
	mustCreate(t, s, q)

	require.NoError(t, s.Tick(nil, 0.5))

	snap := mustSnapshot(t, s, subject)
	assert.Equal(t, vehicle.Decelerate, snap.Intent)
	assert.Zero(t, snap.Speed)
	assert.Zero(t, snap.Position)
}

// TestTick_SnapshotIsolation places A inside B's braking envelope at tick
// start, fast enough to leave it during the tick. B must react to A's
// pre-tick position whatever the arena order or worker count.
func TestTick_SnapshotIsolation(t *testing.T) {
	t.Parallel()

	mk := func(id vehicle.ID, p vehicle.Params) vehicle.State {
		p.LaneCount = 2
		st, err := vehicle.New(id, p)
		require.NoError(t, err)
		return st
	}
	a := mk(1, params(0, 20, 30, 30)) // front, cruising away
	b := mk(2, params(0, 0, 20, 30))  // behind, envelope reaches 25

	run := func(workers int, order ...vehicle.State) map[vehicle.ID]VehicleSnapshot {
		s := newSim(t, Options{LaneCount: 2, Workers: workers})
		for _, st := range order {
			_, err := s.Register(st)
			require.NoError(t, err)
		}
		require.NoError(t, s.Tick(nil, 1.0))
		out := make(map[vehicle.ID]VehicleSnapshot)
		for _, snap := range s.Snapshots() {
			out[snap.ID] = snap
		}
		return out
	}

	ab := run(1, a, b)
	ba := run(1, b, a)
	parallel := run(4, b, a)

	assert.Equal(t, vehicle.LaneChangeLeft, ab[2].Intent)
	assert.Equal(t, 1, ab[2].Lane)
	assert.Equal(t, vehicle.Cruise, ab[1].Intent)
	assert.InDelta(t, 50.0, ab[1].Position, 1e-9)

	if diff := cmp.Diff(ab, ba); diff != "" {
		t.Errorf("result depends on arena order (-ab +ba):\n%s", diff)
	}
	if diff := cmp.Diff(ab, parallel); diff != "" {
		t.Errorf("result depends on worker count (-sequential +parallel):\n%s", diff)
	}
}

func TestTick_InvalidTimestepIsAtomic(t *testing.T) {
	t.Parallel()

	calls := 0
	s := newSim(t, Options{Observers: []Observer{ObserverFunc(func(TickReport) { calls++ })}})
	mustCreate(t, s, params(0, 0, 10, 40))
	before := s.Snapshots()

	for _, dt := range []float64{-1, math.NaN(), math.Inf(1)} {
		err := s.Tick([]Zone{{Position: -100, SpeedLimit: 5}}, dt)
		require.ErrorIs(t, err, ErrInvalidTimestep, "dt=%v", dt)
	}

	if diff := cmp.Diff(before, s.Snapshots()); diff != "" {
		t.Errorf("rejected tick mutated state (-before +after):\n%s", diff)
	}
	assert.Zero(t, s.Time())
	assert.Zero(t, s.Ticks())
	assert.Zero(t, calls)
}

func TestRegister_DuplicateID(t *testing.T) {
	t.Parallel()

	s := newSim(t, Options{})
	st, err := vehicle.New(5, params(0, 0, 10, 30))
	require.NoError(t, err)

	_, err = s.Register(st)
	require.NoError(t, err)

	_, err = s.Register(st)
	require.ErrorIs(t, err, ErrDuplicateVehicleID)
	assert.Equal(t, 1, s.Len())

	// IDs are never reused: the next generated ID follows the highest seen.
	h := mustCreate(t, s, params(1, 0, 10, 30))
	assert.Equal(t, vehicle.ID(6), mustSnapshot(t, s, h).ID)
}

func TestCreateVehicle_MonotonicIDs(t *testing.T) {
	t.Parallel()

	s := newSim(t, Options{})
	var ids []vehicle.ID
	for i := 0; i < 4; i++ {
		h := mustCreate(t, s, params(i%3, float64(i)*50, 10, 30))
		ids = append(ids, mustSnapshot(t, s, h).ID)
	}
	assert.Equal(t, []vehicle.ID{0, 1, 2, 3}, ids)
	assert.Len(t, s.Handles(), 4)
}

func TestCreateVehicle_Rejects(t *testing.T) {
	t.Parallel()

	s := newSim(t, Options{})

	p := params(0, 0, 10, 30)
	p.Deceleration = 0
	_, err := s.CreateVehicle(p)
	require.ErrorIs(t, err, vehicle.ErrInvalidVehicleConfig)

	p = params(0, 0, 10, 30)
	p.LaneCount = 4
	_, err = s.CreateVehicle(p)
	require.ErrorIs(t, err, vehicle.ErrInvalidVehicleConfig, "lane count must match the road")

	assert.Zero(t, s.Len())
}

func TestSnapshot_UnknownHandle(t *testing.T) {
	t.Parallel()

	s := newSim(t, Options{})
	_, err := s.Snapshot(0)
	require.ErrorIs(t, err, ErrUnknownHandle)
	_, err = s.State(-1)
	require.ErrorIs(t, err, ErrUnknownHandle)
}

func TestTick_ZonesSetSpeedLimit(t *testing.T) {
	t.Parallel()

	s := newSim(t, Options{})
	early := mustCreate(t, s, params(0, -50, 10, 30))
	mid := mustCreate(t, s, params(1, 150, 10, 30))
	late := mustCreate(t, s, params(2, 500, 10, 30))

	// Deliberately unsorted.
	zones := []Zone{
		{Position: 400, SpeedLimit: 60},
		{Position: 0, SpeedLimit: 20},
		{Position: 100, SpeedLimit: 40},
	}
	original := slices.Clone(zones)

	require.NoError(t, s.Tick(zones, 0.1))

	assert.InDelta(t, 30.0, mustSnapshot(t, s, early).SpeedLimit, 1e-9, "before every sign keeps its limit")
	assert.InDelta(t, 40.0, mustSnapshot(t, s, mid).SpeedLimit, 1e-9)
	assert.InDelta(t, 60.0, mustSnapshot(t, s, late).SpeedLimit, 1e-9)
	assert.Equal(t, original, zones, "caller's zones must not be reordered")
}

func TestTick_FinishFreezesVehicle(t *testing.T) {
	t.Parallel()

	var reports []TickReport
	s := newSim(t, Options{CourseEnd: 10})
	s.Subscribe(ObserverFunc(func(r TickReport) { reports = append(reports, r) }))

	h := mustCreate(t, s, params(0, 0, 20, 20))
	require.NoError(t, s.Tick(nil, 0.5))

	st, err := s.State(h)
	require.NoError(t, err)
	assert.True(t, st.Finished)
	assert.InDelta(t, 0.5, st.FinishTime, 1e-12)
	assert.Zero(t, st.Speed)
	assert.InDelta(t, 10.0, st.Position, 1e-9)
	assert.True(t, s.AllFinished())

	require.NoError(t, s.Tick([]Zone{{Position: 0, SpeedLimit: 99}}, 0.5))
	frozen, err := s.State(h)
	require.NoError(t, err)
	if diff := cmp.Diff(st, frozen); diff != "" {
		t.Errorf("finished vehicle changed (-before +after):\n%s", diff)
	}

	require.Len(t, reports, 2)
	assert.Equal(t, 1, reports[0].Tick)
	assert.True(t, reports[0].Vehicles[0].Finished)
	assert.InDelta(t, 1.0, reports[1].Time, 1e-12)
}

func TestTick_FinishedVehicleIsObstacle(t *testing.T) {
	t.Parallel()

	s := newSim(t, Options{LaneCount: 1, CourseEnd: 100})
	p := params(0, 100, 0, 0)
	p.LaneCount = 1
	parked := mustCreate(t, s, p)

	require.NoError(t, s.Tick(nil, 0.1))
	require.True(t, mustSnapshot(t, s, parked).Finished)

	// Follower envelope: front 96 + 10²/20 = 101 reaches the parked rear bumper.
	q := params(0, 91, 10, 30)
	q.LaneCount = 1
	follower := mustCreate(t, s, q)

	require.NoError(t, s.Tick(nil, 0.1))
	assert.Equal(t, vehicle.Decelerate, mustSnapshot(t, s, follower).Intent)

	for i := 0; i < 100; i++ {
		require.NoError(t, s.Tick(nil, 0.1))
	}
	snap := mustSnapshot(t, s, follower)
	assert.Less(t, snap.Position, 100.0, "follower must not drive through the parked vehicle")
	assert.False(t, snap.Finished)
	assert.InDelta(t, 100.0, mustSnapshot(t, s, parked).Position, 1e-12)
}

// TestTick_Invariants runs a crowded random road and checks the speed and
// lane bounds after every tick, for both sequential and parallel passes.
func TestTick_Invariants(t *testing.T) {
	t.Parallel()

	build := func(workers int) *Simulation {
		rng := rand.New(rand.NewPCG(42, 7))
		s := newSim(t, Options{LaneCount: 4, CourseEnd: 2000, Workers: workers})
		for i := 0; i < 40; i++ {
			p := vehicle.Params{
				Lane:                  rng.IntN(4),
				LaneCount:             4,
				Position:              rng.Float64() * 400,
				Speed:                 rng.Float64() * 40,
				SpeedLimit:            20 + rng.Float64()*20,
				Acceleration:          4 + rng.Float64()*8,
				Deceleration:          -(8 + rng.Float64()*8),
				Length:                4.5,
				SpeedPreferenceOffset: rng.Float64()*10 - 5,
			}
			if i%5 == 0 {
				p.Policy = vehicle.Policy{LaneChangeOrder: vehicle.RightFirst, MinLaneChangeInterval: 1}
			}
			mustCreate(t, s, p)
		}
		return s
	}

	zones := []Zone{{Position: 0, SpeedLimit: 30}, {Position: 500, SpeedLimit: 15}, {Position: 900, SpeedLimit: 35}}
	seq := build(1)
	par := build(3)

	for tick := 0; tick < 300; tick++ {
		require.NoError(t, seq.Tick(zones, 1.0/30))
		require.NoError(t, par.Tick(zones, 1.0/30))

		for _, snap := range seq.Snapshots() {
			require.GreaterOrEqual(t, snap.Speed, 0.0, "tick %d vehicle %d", tick, snap.ID)
			require.GreaterOrEqual(t, snap.Lane, 0)
			require.Less(t, snap.Lane, 4)
			require.True(t, snap.Intent.Valid())
		}
	}

	if diff := cmp.Diff(seq.Snapshots(), par.Snapshots()); diff != "" {
		t.Errorf("parallel pass diverged (-sequential +parallel):\n%s", diff)
	}
}

func TestLimitAt(t *testing.T) {
	t.Parallel()

	zones := []Zone{{Position: 0, SpeedLimit: 10}, {Position: 100, SpeedLimit: 20}, {Position: 100, SpeedLimit: 25}}

	tests := []struct {
		pos    float64
		want   float64
		wantOK bool
	}{
		{-1, 0, false},
		{0, 10, true},
		{99.9, 10, true},
		{100, 25, true},
		{1e6, 25, true},
	}
	for _, tt := range tests {
		got, ok := LimitAt(zones, tt.pos)
		assert.Equal(t, tt.wantOK, ok, "pos=%v", tt.pos)
		assert.InDelta(t, tt.want, got, 1e-12, "pos=%v", tt.pos)
	}

	_, ok := LimitAt(nil, 5)
	assert.False(t, ok)
}
