package batch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kjstillabower/city-weather/internal/models"
)

type blockingFetcher struct {
	release chan struct{}
	calls   atomic.Int32
	err     error
}

func (f *blockingFetcher) FetchRandom(ctx context.Context, n int) (models.Batch, error) {
	f.calls.Add(1)
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return models.Batch{}, ctx.Err()
		}
	}
	if f.err != nil {
		return models.Batch{}, f.err
	}
	recs := make([]models.WeatherRecord, n)
	return models.Batch{Records: recs, Statistics: models.Statistics{TotalCities: n}}, nil
}

func TestRunner_SubmitDeliversResult(t *testing.T) {
	r := NewRunner(&blockingFetcher{}, nil)
	got := make(chan Result, 1)

	if err := r.Submit(context.Background(), 4, func(res Result) { got <- res }); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	select {
	case res := <-got:
		if res.Err != nil || len(res.Batch.Records) != 4 {
			t.Errorf("result = %+v", res)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("callback not called")
	}
	r.Wait()
	if r.Busy() {
		t.Error("Busy() = true after completion")
	}
}

func TestRunner_SecondSubmitIsBusy(t *testing.T) {
	f := &blockingFetcher{release: make(chan struct{})}
	r := NewRunner(f, nil)

	if err := r.Submit(context.Background(), 1, nil); err != nil {
		t.Fatalf("first Submit() error = %v", err)
	}
	if !r.Busy() {
		t.Error("Busy() = false while batch runs")
	}
	if err := r.Submit(context.Background(), 1, nil); !errors.Is(err, ErrBusy) {
		t.Errorf("second Submit() error = %v, want ErrBusy", err)
	}
	close(f.release)
	r.Wait()

	if err := r.Submit(context.Background(), 1, nil); err != nil {
		t.Errorf("Submit() after completion error = %v", err)
	}
	r.Wait()
	if n := f.calls.Load(); n != 2 {
		t.Errorf("fetch calls = %d, want 2", n)
	}
}

func TestRunner_ErrorDelivered(t *testing.T) {
	boom := errors.New("no data")
	r := NewRunner(&blockingFetcher{err: boom}, nil)
	var got error
	if err := r.Submit(context.Background(), 2, func(res Result) { got = res.Err }); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	r.Wait()
	if !errors.Is(got, boom) {
		t.Errorf("result error = %v, want %v", got, boom)
	}
}

func TestRunner_RunPeriodic(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	f := &blockingFetcher{}
	r := NewRunner(f, zap.New(core))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.RunPeriodic(ctx, 3, 20*time.Millisecond) }()

	deadline := time.Now().Add(2 * time.Second)
	for f.calls.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("RunPeriodic() error = %v, want context.Canceled", err)
	}
	r.Wait()

	if f.calls.Load() < 2 {
		t.Errorf("fetch calls = %d, want at least 2", f.calls.Load())
	}
	if logs.FilterMessage("periodic sample complete").Len() == 0 {
		t.Error("expected periodic sample log entries")
	}
}
