package shapes

import (
	"errors"
	"runtime"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"

	"github.com/san-kum/rigidsim/internal/scene"
)

// Result is the outcome of one shape in a batch. Analytic is set for
// planes and spheres, which have no mesh.
type Result struct {
	Mesh     Mesh
	Analytic bool
	Err      error
}

// Tessellator meshes batches of shapes on a reusable worker pool.
type Tessellator struct {
	pool worker.DynamicWorkerPool
	mu   sync.Mutex
}

// NewTessellator starts a pool of n workers. n <= 0 uses one per CPU.
func NewTessellator(n int) *Tessellator {
	if n <= 0 {
		n = runtime.NumCPU()
	}
	return &Tessellator{pool: worker.NewDynamicWorkerPool(n, 256, time.Second)}
}

// TessellateAll meshes every shape in parallel. Results keep the order of
// shapes.
func (t *Tessellator) TessellateAll(shapes []scene.Shape) []Result {
	t.mu.Lock()
	defer t.mu.Unlock()

	results := make([]Result, len(shapes))
	// pool.Wait blocks until workers idle out, so a WaitGroup marks the
	// end of the batch.
	var wg sync.WaitGroup
	for i, s := range shapes {
		wg.Add(1)
		t.pool.SubmitTask(worker.Task{
			ID:      i,
			Payload: s,
			Do: func() (any, error) {
				defer wg.Done()
				mesh, err := Tessellate(s)
				if errors.Is(err, ErrAnalytic) {
					results[i] = Result{Analytic: true}
					return nil, nil
				}
				results[i] = Result{Mesh: mesh, Err: err}
				return mesh, err
			},
		})
	}
	wg.Wait()
	return results
}

func (t *Tessellator) Close() {
	t.pool.Stop()
}
