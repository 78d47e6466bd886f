package sim

import (
	"context"
	"sync"
)

// Builder creates the simulator for run idx. Every run gets its own engine,
// so runs share nothing but what the builder hands them.
type Builder func(idx int) (*Simulator, error)

type Ensemble struct {
	build   Builder
	numRuns int
}

func NewEnsemble(build Builder, numRuns int) *Ensemble {
	return &Ensemble{build: build, numRuns: numRuns}
}

// Run executes every run concurrently and returns the results in run
// order. The first error in run order is returned.
func (e *Ensemble) Run(ctx context.Context, cfg Config) ([]*Result, error) {
	results := make([]*Result, e.numRuns)
	errs := make([]error, e.numRuns)

	var wg sync.WaitGroup
	for i := 0; i < e.numRuns; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()

			s, err := e.build(idx)
			if err != nil {
				errs[idx] = err
				return
			}
			defer s.Engine().Close()
			results[idx], errs[idx] = s.Run(ctx, cfg)
		}(i)
	}

	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	return results, nil
}
