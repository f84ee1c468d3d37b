package usage

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/jgoulah/submeter/pkg/models"
)

// fakeFetcher serves fixed windows keyed by center instant
type fakeFetcher struct {
	mu      sync.Mutex
	windows map[int64][]models.Sample
	err     error
	centers []time.Time
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{windows: make(map[int64][]models.Sample)}
}

func (f *fakeFetcher) set(center time.Time, samples ...models.Sample) {
	f.windows[center.Unix()] = samples
}

func (f *fakeFetcher) FetchWindow(ctx context.Context, center time.Time, radius time.Duration) ([]models.Sample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.centers = append(f.centers, center)
	if f.err != nil {
		return nil, f.err
	}
	return f.windows[center.Unix()], nil
}

func (f *fakeFetcher) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.centers)
}

func mustRange(t *testing.T, start, end string) models.DateRange {
	t.Helper()
	r, err := ParseRange(start, end)
	if err != nil {
		t.Fatalf("ParseRange(%q, %q): %v", start, end, err)
	}
	return r
}

func sample(ts time.Time, v float64) models.Sample {
	return models.Sample{Timestamp: ts, Value: v}
}

var (
	juneStart = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	juneEnd   = time.Date(2024, 6, 30, 23, 59, 59, 0, time.UTC)
)

func TestCompute(t *testing.T) {
	f := newFakeFetcher()
	f.set(juneStart,
		sample(juneStart.Add(-50*time.Minute), 99.0),
		sample(juneStart.Add(5*time.Minute), 100.0),
		sample(juneStart.Add(40*time.Minute), 101.0),
	)
	f.set(juneEnd,
		sample(juneEnd.Add(-2*time.Hour), 240.0),
		sample(juneEnd.Add(-10*time.Minute), 250.5),
		sample(juneEnd.Add(3*time.Hour), 260.0),
	)

	r := NewResolver(f, time.UTC)
	res, err := r.Compute(context.Background(), mustRange(t, "2024-06-01", "2024-06-30"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.StartSample.Value != 100.0 {
		t.Errorf("expected start reading 100, got %v", res.StartSample.Value)
	}
	if res.EndSample.Value != 250.5 {
		t.Errorf("expected end reading 250.5, got %v", res.EndSample.Value)
	}
	if res.UsageKWh != res.EndSample.Value-res.StartSample.Value {
		t.Errorf("usage %v does not equal end-start", res.UsageKWh)
	}
	if res.Range.Start != "2024-06-01" || res.Range.End != "2024-06-30" {
		t.Errorf("unexpected range %+v", res.Range)
	}
	if f.calls() != 2 {
		t.Errorf("expected 2 window fetches, got %d", f.calls())
	}
}

func TestCompute_Idempotent(t *testing.T) {
	f := newFakeFetcher()
	f.set(juneStart, sample(juneStart, 10.125))
	f.set(juneEnd, sample(juneEnd, 20.25))

	r := NewResolver(f, time.UTC)
	rng := mustRange(t, "2024-06-01", "2024-06-30")

	first, err := r.Compute(context.Background(), rng)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := r.Compute(context.Background(), rng)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != second {
		t.Errorf("expected identical results, got %+v and %+v", first, second)
	}
	if math.Float64bits(first.UsageKWh) != math.Float64bits(second.UsageKWh) {
		t.Error("usage values differ bitwise")
	}
}

func TestCompute_Failures(t *testing.T) {
	fetchErr := errors.New("connection refused")

	tests := []struct {
		name    string
		setup   func(f *fakeFetcher)
		wantErr error
	}{
		{
			name: "negative usage",
			setup: func(f *fakeFetcher) {
				f.set(juneStart, sample(juneStart, 120.0))
				f.set(juneEnd, sample(juneEnd, 100.0))
			},
			wantErr: ErrNegativeUsage,
		},
		{
			name: "empty start window",
			setup: func(f *fakeFetcher) {
				f.set(juneEnd, sample(juneEnd, 100.0))
			},
			wantErr: ErrNoDataInRange,
		},
		{
			name: "empty end window",
			setup: func(f *fakeFetcher) {
				f.set(juneStart, sample(juneStart, 100.0))
			},
			wantErr: ErrNoDataInRange,
		},
		{
			name: "non-numeric selected reading",
			setup: func(f *fakeFetcher) {
				f.set(juneStart, sample(juneStart, math.NaN()))
				f.set(juneEnd, sample(juneEnd, 100.0))
			},
			wantErr: ErrInvalidReading,
		},
		{
			name: "infinite selected reading",
			setup: func(f *fakeFetcher) {
				f.set(juneStart, sample(juneStart, 1.0))
				f.set(juneEnd, sample(juneEnd, math.Inf(1)))
			},
			wantErr: ErrInvalidReading,
		},
		{
			name: "fetch failure",
			setup: func(f *fakeFetcher) {
				f.err = fetchErr
			},
			wantErr: fetchErr,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeFetcher()
			tt.setup(f)

			_, err := NewResolver(f, time.UTC).Compute(context.Background(), mustRange(t, "2024-06-01", "2024-06-30"))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestCompute_UnselectedBadReadingIgnored(t *testing.T) {
	f := newFakeFetcher()
	f.set(juneStart,
		sample(juneStart.Add(-30*time.Hour), math.NaN()),
		sample(juneStart.Add(time.Minute), 50.0),
	)
	f.set(juneEnd, sample(juneEnd, 75.0))

	res, err := NewResolver(f, time.UTC).Compute(context.Background(), mustRange(t, "2024-06-01", "2024-06-30"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.UsageKWh != 25.0 {
		t.Errorf("expected 25 kWh, got %v", res.UsageKWh)
	}
}

func TestCompute_InvalidDateMakesNoRequest(t *testing.T) {
	f := newFakeFetcher()
	r := NewResolver(f, time.UTC)

	for _, rng := range []models.DateRange{
		{Start: "13-40-2024", End: "2024-06-30"},
		{Start: "2024-06-01", End: "2024/01/01"},
	} {
		_, err := r.Compute(context.Background(), rng)
		if !errors.Is(err, ErrInvalidDateFormat) {
			t.Errorf("expected ErrInvalidDateFormat for %+v, got %v", rng, err)
		}
	}
	if f.calls() != 0 {
		t.Errorf("expected no fetches, got %d", f.calls())
	}
}

func TestCompute_ThisMonthTargetsNow(t *testing.T) {
	ny := mustLoad(t, "America/New_York")
	now := time.Date(2024, 6, 15, 10, 0, 0, 0, ny)
	monthStart := time.Date(2024, 6, 1, 0, 0, 0, 0, ny)

	f := newFakeFetcher()
	f.set(monthStart, sample(monthStart.Add(20*time.Minute), 1000.0))
	f.set(now, sample(now.Add(-90*time.Minute), 1180.0))

	r := NewResolver(f, ny, WithClock(func() time.Time { return now }))
	res, err := r.Compute(context.Background(), ThisMonth(now, ny))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.UsageKWh != 180.0 {
		t.Errorf("expected 180 kWh, got %v", res.UsageKWh)
	}
	if res.Range.End != "2024-06-15" {
		t.Errorf("expected civil end 2024-06-15, got %s", res.Range.End)
	}

	monthEnd := time.Date(2024, 6, 30, 23, 59, 59, 0, ny)
	for _, c := range f.centers {
		if c.Equal(monthEnd) {
			t.Errorf("end target should be now, not %v", monthEnd)
		}
	}
	var sawNow bool
	for _, c := range f.centers {
		if c.Equal(now) {
			sawNow = true
		}
	}
	if !sawNow {
		t.Errorf("expected a window centered on now, got %v", f.centers)
	}
}

func TestCompute_WindowRadius(t *testing.T) {
	var got []time.Duration
	var mu sync.Mutex
	f := fetcherFunc(func(ctx context.Context, center time.Time, radius time.Duration) ([]models.Sample, error) {
		mu.Lock()
		got = append(got, radius)
		mu.Unlock()
		return []models.Sample{sample(center, 1)}, nil
	})

	if _, err := NewResolver(f, time.UTC).Compute(context.Background(), mustRange(t, "2024-06-01", "2024-06-02")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, d := range got {
		if d != 48*time.Hour {
			t.Errorf("expected 48h radius, got %v", d)
		}
	}

	got = nil
	if _, err := NewResolver(f, time.UTC, WithRadius(6*time.Hour)).Compute(context.Background(), mustRange(t, "2024-06-01", "2024-06-02")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, d := range got {
		if d != 6*time.Hour {
			t.Errorf("expected 6h radius, got %v", d)
		}
	}
}

type fetcherFunc func(ctx context.Context, center time.Time, radius time.Duration) ([]models.Sample, error)

func (f fetcherFunc) FetchWindow(ctx context.Context, center time.Time, radius time.Duration) ([]models.Sample, error) {
	return f(ctx, center, radius)
}

func TestCompute_NewerCallSupersedesInFlight(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	started := make(chan struct{}, 2)

	f := fetcherFunc(func(ctx context.Context, center time.Time, radius time.Duration) ([]models.Sample, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()

		if n <= 2 {
			started <- struct{}{}
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return []models.Sample{sample(center, float64(center.Unix()))}, nil
	})

	r := NewResolver(f, time.UTC)
	rng := mustRange(t, "2024-06-01", "2024-06-30")

	firstErr := make(chan error, 1)
	go func() {
		_, err := r.Compute(context.Background(), rng)
		firstErr <- err
	}()
	<-started
	<-started

	res, err := r.Compute(context.Background(), rng)
	if err != nil {
		t.Fatalf("second computation failed: %v", err)
	}
	if res.UsageKWh <= 0 {
		t.Errorf("expected positive usage, got %v", res.UsageKWh)
	}

	select {
	case err := <-firstErr:
		if !errors.Is(err, ErrSuperseded) {
			t.Errorf("expected ErrSuperseded, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("first computation never returned")
	}
}
