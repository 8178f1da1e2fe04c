package propagation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/orbital/orbwatch/internal/catalog"
	"github.com/orbital/orbwatch/internal/transform"
)

// propagateJob is a unit of work for the worker pool.
type propagateJob struct {
	snap       catalog.ElementSnapshot
	targetTime time.Time
	gmst       float64 // precomputed GMST for targetTime
}

type propagateResult struct {
	state     State
	err       error
	catalogID int
}

// Pool runs per-object propagation on a fixed number of goroutines.
type Pool struct {
	workers int
	logger  *slog.Logger
}

// NewPool creates a propagation worker pool.
func NewPool(workers int, logger *slog.Logger) *Pool {
	return &Pool{workers: workers, logger: logger}
}

// PropagateBatch propagates all snapshots to the target time. A single
// object's failure is logged and skipped, never aborting the batch.
// Returns the successful states plus success/error counts.
func (p *Pool) PropagateBatch(ctx context.Context, snaps []catalog.ElementSnapshot, targetTime time.Time) ([]State, int, int) {
	if len(snaps) == 0 {
		return nil, 0, 0
	}

	// GMST is the same for every object at one instant; compute once.
	gmst := transform.GMST(targetTime)

	jobs := make(chan propagateJob, p.workers*2)
	results := make(chan propagateResult, p.workers*2)

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				state, err := propagateWithGMST(job.snap, job.targetTime, job.gmst)
				result := propagateResult{state: state, err: err, catalogID: job.snap.CatalogID}
				select {
				case results <- result:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, snap := range snaps {
			job := propagateJob{snap: snap, targetTime: targetTime, gmst: gmst}
			select {
			case jobs <- job:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	states := make([]State, 0, len(snaps))
	var successCount, errorCount int

	for result := range results {
		if result.err != nil {
			errorCount++
			p.logger.Warn("propagation failed",
				"catalog_id", result.catalogID,
				"error", result.err,
			)
			continue
		}
		successCount++
		states = append(states, result.state)
	}

	return states, successCount, errorCount
}
