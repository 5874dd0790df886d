package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/foxzi/outreach/internal/engine"
	"github.com/foxzi/outreach/internal/metrics"
)

// Worker triggers periodic processing rounds on a cron schedule. Rounds
// never overlap: if the previous round is still inside its time budget, a
// new tick is skipped rather than queued.
type Worker struct {
	driver  *engine.Driver
	cron    *cron.Cron
	spec    string
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu      sync.Mutex
	running bool

	ctx    context.Context
	cancel context.CancelFunc
}

func New(driver *engine.Driver, spec string, m *metrics.Metrics, logger *slog.Logger) *Worker {
	return &Worker{
		driver:  driver,
		cron:    cron.New(),
		spec:    spec,
		metrics: m,
		logger:  logger.With("component", "worker"),
	}
}

// Start registers the schedule and begins ticking.
func (w *Worker) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)

	if _, err := w.cron.AddFunc(w.spec, w.tick); err != nil {
		return fmt.Errorf("failed to register schedule %q: %w", w.spec, err)
	}
	w.cron.Start()
	w.logger.Info("worker started", "schedule", w.spec)
	return nil
}

// Stop halts the schedule and waits for a running round to finish.
func (w *Worker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	stopCtx := w.cron.Stop()
	<-stopCtx.Done()
	w.logger.Info("worker stopped")
}

// Trigger runs one round immediately, outside the schedule.
func (w *Worker) Trigger(ctx context.Context) (int, error) {
	return w.run(ctx)
}

func (w *Worker) tick() {
	if _, err := w.run(w.ctx); err != nil && err != context.Canceled {
		w.logger.Error("processing round failed", "error", err)
	}
}

func (w *Worker) run(ctx context.Context) (int, error) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		w.logger.Warn("previous round still running, skipping")
		if w.metrics != nil {
			w.metrics.WorkerSkippedTotal.Inc()
		}
		return 0, nil
	}
	w.running = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	start := time.Now()
	processed, err := w.driver.ProcessDue(ctx)

	if w.metrics != nil {
		w.metrics.WorkerRunsTotal.Inc()
		w.metrics.WorkerRunDuration.Observe(time.Since(start).Seconds())
	}
	if processed > 0 || err != nil {
		w.logger.Info("processing round finished", "attempted", processed, "duration", time.Since(start), "error", err)
	}
	return processed, err
}
