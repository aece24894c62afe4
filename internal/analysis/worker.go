package analysis

import (
	"context"
	"time"

	"github.com/grpck/sarscan/internal/monitoring"
	"github.com/grpck/sarscan/internal/timeutil"
)

// Worker periodically re-scores every device while scanners keep feeding the
// database, so field tablets always read reasonably fresh confidence values.
type Worker struct {
	Runner   *Runner
	Interval time.Duration
	Clock    timeutil.Clock
	StopChan chan struct{}
}

// NewWorker builds a Worker on the real clock.
func NewWorker(runner *Runner, interval time.Duration) *Worker {
	return &Worker{
		Runner:   runner,
		Interval: interval,
		Clock:    timeutil.RealClock{},
		StopChan: make(chan struct{}),
	}
}

// Start runs the periodic loop in a goroutine.
func (w *Worker) Start() {
	go func() {
		ticker := w.Clock.NewTicker(w.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C():
				if err := w.RunOnce(context.Background()); err != nil {
					monitoring.Logf("analysis worker run error: %v", err)
				}
			case <-w.StopChan:
				return
			}
		}
	}()
}

// Stop requests the worker to stop.
func (w *Worker) Stop() {
	close(w.StopChan)
}

// RunOnce executes a single apply pass.
func (w *Worker) RunOnce(ctx context.Context) error {
	_, err := w.Runner.Apply(ctx)
	return err
}
