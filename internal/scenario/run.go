package scenario

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/banshee-data/lanesim/internal/config"
	"github.com/banshee-data/lanesim/internal/monitoring"
	"github.com/banshee-data/lanesim/internal/timeutil"
	"github.com/banshee-data/lanesim/internal/traffic/sim"
)

// StopReason says why Run returned.
type StopReason string

const (
	StopAllFinished StopReason = "all_finished"
	StopMaxTime     StopReason = "max_time"
	StopCancelled   StopReason = "cancelled"
	StopError       StopReason = "error"
)

// RunOptions controls the run loop.
type RunOptions struct {
	// Dt is the per-tick timestep in seconds.
	Dt float64

	// MaxTime caps the simulated seconds. Zero or negative means no cap,
	// in which case the run ends only when every vehicle finishes or ctx
	// is cancelled.
	MaxTime float64

	// Realtime paces ticks against the wall clock. A value of 1 runs at
	// real speed, 50 runs fifty times faster. Zero runs flat out.
	Realtime float64

	// Clock is used for pacing and wall-time measurement. Defaults to
	// timeutil.RealClock.
	Clock timeutil.Clock
}

// RunOptionsFromConfig maps the clock section of cfg onto RunOptions.
func RunOptionsFromConfig(cfg *config.SimConfig) RunOptions {
	return RunOptions{Dt: cfg.GetDt(), MaxTime: cfg.GetMaxTime(), Realtime: cfg.GetRealtime()}
}

// RunResult summarises a finished run.
type RunResult struct {
	Ticks   int           `json:"ticks"`
	SimTime float64       `json:"sim_time"`
	Wall    time.Duration `json:"wall_ns"`
	Reason  StopReason    `json:"reason"`
}

// Run ticks s with zones until every vehicle has finished, MaxTime is
// reached or ctx is cancelled. On cancellation the partial result is
// returned together with ctx.Err().
func Run(ctx context.Context, s *sim.Simulation, zones []sim.Zone, opts RunOptions) (RunResult, error) {
	clock := opts.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	if !(opts.Dt > 0) || math.IsInf(opts.Dt, 0) {
		return RunResult{}, fmt.Errorf("%w: run dt must be positive, got %v", sim.ErrInvalidTimestep, opts.Dt)
	}
	// A cap too large to count in ticks is treated as no cap.
	maxTicks := math.MaxInt
	if opts.MaxTime > 0 {
		if n := math.Ceil(opts.MaxTime/opts.Dt - 1e-9); n < float64(math.MaxInt) {
			maxTicks = int(n)
		}
	}

	var ticker timeutil.Ticker
	if opts.Realtime > 0 {
		interval := time.Duration(opts.Dt / opts.Realtime * float64(time.Second))
		if interval > 0 {
			ticker = clock.NewTicker(interval)
			defer ticker.Stop()
		}
	}

	began := clock.Now()
	startTicks := s.Ticks()
	result := func(reason StopReason) RunResult {
		return RunResult{
			Ticks:   s.Ticks() - startTicks,
			SimTime: s.Time(),
			Wall:    clock.Since(began),
			Reason:  reason,
		}
	}

	monitoring.Logf("run %s: %d vehicles, %d zones, dt=%.4fs, max_time=%.1fs", s.RunID, s.Len(), len(zones), opts.Dt, opts.MaxTime)

	for {
		if s.AllFinished() {
			res := result(StopAllFinished)
			monitoring.Logf("run %s: all vehicles finished at t=%.2fs after %d ticks", s.RunID, res.SimTime, res.Ticks)
			return res, nil
		}
		if s.Ticks()-startTicks >= maxTicks {
			res := result(StopMaxTime)
			monitoring.Logf("run %s: max time reached at t=%.2fs", s.RunID, res.SimTime)
			return res, nil
		}

		select {
		case <-ctx.Done():
			return result(StopCancelled), ctx.Err()
		default:
		}

		if err := s.Tick(zones, opts.Dt); err != nil {
			return result(StopError), fmt.Errorf("run %s: %w", s.RunID, err)
		}

		if ticker != nil {
			select {
			case <-ctx.Done():
				return result(StopCancelled), ctx.Err()
			case <-ticker.C():
			}
		}
	}
}
