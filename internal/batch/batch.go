// Package batch runs random-city batches on a single background worker.
package batch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/city-weather/internal/models"
)

// ErrBusy is returned by Submit while another batch is running.
var ErrBusy = errors.New("a batch is already running")

// Fetcher is implemented by the service layer.
type Fetcher interface {
	FetchRandom(ctx context.Context, n int) (models.Batch, error)
}

// Result is delivered to the Submit callback when a batch finishes.
type Result struct {
	Batch models.Batch
	Err   error
}

// Runner runs at most one batch at a time off the caller's goroutine.
type Runner struct {
	fetcher Fetcher
	logger  *zap.Logger
	busy    atomic.Bool
	wg      sync.WaitGroup
}

// NewRunner creates a Runner over fetcher.
func NewRunner(fetcher Fetcher, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{fetcher: fetcher, logger: logger}
}

// Submit starts a batch of n cities in the background and returns immediately.
// done is called from the worker goroutine with the outcome. Returns ErrBusy
// without starting anything when a batch is already in progress.
func (r *Runner) Submit(ctx context.Context, n int, done func(Result)) error {
	if !r.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.busy.Store(false)

		start := time.Now()
		b, err := r.fetcher.FetchRandom(ctx, n)
		r.logger.Debug("batch finished",
			zap.Int("requested", n),
			zap.Int("succeeded", len(b.Records)),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		if done != nil {
			done(Result{Batch: b, Err: err})
		}
	}()
	return nil
}

// Busy reports whether a batch is running.
func (r *Runner) Busy() bool {
	return r.busy.Load()
}

// Wait blocks until the running batch, if any, has delivered its result.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// RunPeriodic submits a batch of n cities now and then at every interval until
// ctx is done. Ticks that land while a batch is still running are skipped.
func (r *Runner) RunPeriodic(ctx context.Context, n int, interval time.Duration) error {
	r.tick(ctx, n)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.tick(ctx, n)
		}
	}
}

func (r *Runner) tick(ctx context.Context, n int) {
	err := r.Submit(ctx, n, func(res Result) {
		if res.Err != nil {
			r.logger.Warn("periodic sample failed", zap.Error(res.Err))
			return
		}
		r.logger.Info("periodic sample complete",
			zap.Int("cities", res.Batch.Statistics.TotalCities),
			zap.String("coldest_city", res.Batch.Statistics.ColdestCity),
			zap.Float64("average_temperature", res.Batch.Statistics.AverageTemperature),
		)
	})
	if errors.Is(err, ErrBusy) {
		r.logger.Debug("periodic sample skipped, batch still running")
	}
}
