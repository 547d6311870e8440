package sim

import (
	"sync"

	"github.com/samber/lo"

	"github.com/banshee-data/lanesim/internal/traffic/intent"
	"github.com/banshee-data/lanesim/internal/traffic/kinematics"
	"github.com/banshee-data/lanesim/internal/traffic/perception"
	"github.com/banshee-data/lanesim/internal/traffic/vehicle"
)

// decide runs perceive → decide → integrate for every unfinished vehicle
// against snapshot and returns the next records. snapshot is read-only;
// each vehicle writes only its own slot of the result.
func (s *Simulation) decide(snapshot []vehicle.State, dt float64) ([]vehicle.State, error) {
	next := make([]vehicle.State, len(snapshot))
	copy(next, snapshot)

	active := make([]int, 0, len(snapshot))
	for i := range snapshot {
		if !snapshot[i].Finished {
			active = append(active, i)
		}
	}
	if len(active) == 0 {
		return next, nil
	}

	if s.workers < 2 || len(active) < 2 {
		for _, i := range active {
			st, err := advance(snapshot, i, dt)
			if err != nil {
				return nil, err
			}
			next[i] = st
		}
		return next, nil
	}

	chunkSize := (len(active) + s.workers - 1) / s.workers
	chunks := lo.Chunk(active, chunkSize)
	errs := make([]error, len(chunks))

	var wg sync.WaitGroup
	for c, chunk := range chunks {
		wg.Add(1)
		go func(c int, chunk []int) {
			defer wg.Done()
			for _, i := range chunk {
				st, err := advance(snapshot, i, dt)
				if err != nil {
					errs[c] = err
					return
				}
				next[i] = st
			}
		}(c, chunk)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return next, nil
}

// advance computes the next record for snapshot[i].
func advance(snapshot []vehicle.State, i int, dt float64) (vehicle.State, error) {
	self := snapshot[i]
	p := perception.Analyze(self, snapshot)
	in := intent.Decide(self, p)
	return kinematics.Integrate(self, in, dt)
}
