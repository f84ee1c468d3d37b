package watch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jgoulah/submeter/internal/usage"
	"github.com/jgoulah/submeter/pkg/models"
)

type fakeLatest struct {
	mu    sync.Mutex
	calls int
	fail  func(n int) bool
}

func (f *fakeLatest) FetchLatest(ctx context.Context) (models.Sample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail != nil && f.fail(f.calls) {
		return models.Sample{}, errors.New("timeout")
	}
	return models.Sample{Timestamp: time.Now(), Value: float64(f.calls)}, nil
}

type windowFunc func(ctx context.Context, center time.Time, radius time.Duration) ([]models.Sample, error)

func (f windowFunc) FetchWindow(ctx context.Context, center time.Time, radius time.Duration) ([]models.Sample, error) {
	return f(ctx, center, radius)
}

func TestRun_ValidatesOptions(t *testing.T) {
	if err := Run(context.Background(), Options{Interval: time.Second}); err == nil {
		t.Error("expected error without a fetcher")
	}
	if err := Run(context.Background(), Options{Latest: &fakeLatest{}}); err == nil {
		t.Error("expected error without an interval")
	}
}

func TestRun_PollsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := &fakeLatest{}
	var mu sync.Mutex
	var values []float64

	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, Options{
			Interval: 5 * time.Millisecond,
			Latest:   f,
			OnLatest: func(s models.Sample) {
				mu.Lock()
				values = append(values, s.Value)
				n := len(values)
				mu.Unlock()
				if n == 3 {
					cancel()
				}
			},
		})
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watch loop did not stop")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(values) < 3 || values[0] != 1 {
		t.Errorf("unexpected values %v", values)
	}
}

func TestRun_ErrorsDoNotStopLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := &fakeLatest{fail: func(n int) bool { return n <= 2 }}
	var errCount int
	var mu sync.Mutex

	done := make(chan struct{})
	go func() {
		defer close(done)
		Run(ctx, Options{
			Interval: 5 * time.Millisecond,
			Latest:   f,
			OnError: func(error) {
				mu.Lock()
				errCount++
				mu.Unlock()
			},
			OnLatest: func(models.Sample) { cancel() },
		})
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("watch loop did not recover from errors")
	}

	mu.Lock()
	defer mu.Unlock()
	if errCount != 2 {
		t.Errorf("expected 2 reported errors, got %d", errCount)
	}
}

func TestRun_MonthToDate(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	resolver := usage.NewResolver(windowFunc(func(ctx context.Context, center time.Time, radius time.Duration) ([]models.Sample, error) {
		if center.Equal(now) {
			return []models.Sample{{Timestamp: now, Value: 150}}, nil
		}
		return []models.Sample{{Timestamp: center, Value: 100}}, nil
	}), time.UTC, usage.WithClock(func() time.Time { return now }))

	got := make(chan models.UsageResult, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		Run(ctx, Options{
			Interval:    time.Hour,
			Latest:      &fakeLatest{},
			MonthToDate: resolver,
			OnUsage: func(r models.UsageResult) {
				got <- r
				cancel()
			},
		})
	}()

	select {
	case r := <-got:
		if r.UsageKWh != 50 || !r.Range.ToDate || r.Range.Start != "2024-06-01" {
			t.Errorf("unexpected month-to-date result %+v", r)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no month-to-date result")
	}
	<-done
}
