package usage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/jgoulah/submeter/pkg/models"
)

// DefaultWindowRadius tolerates sparse sampling around a target instant
const DefaultWindowRadius = 48 * time.Hour

// WindowFetcher retrieves the samples around an instant
type WindowFetcher interface {
	FetchWindow(ctx context.Context, center time.Time, radius time.Duration) ([]models.Sample, error)
}

// Option configures a Resolver
type Option func(*Resolver)

// WithRadius overrides the window radius
func WithRadius(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.radius = d
		}
	}
}

// WithClock overrides the source of "now" used for month-to-date ranges
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		if now != nil {
			r.now = now
		}
	}
}

// WithLogger sets the resolver's logger
func WithLogger(log zerolog.Logger) Option {
	return func(r *Resolver) {
		r.log = log
	}
}

// Resolver turns a civil date range into a usage delta. Only the most recent
// Compute call on a Resolver yields a result; older in-flight calls are
// cancelled and return ErrSuperseded.
type Resolver struct {
	fetcher WindowFetcher
	loc     *time.Location
	radius  time.Duration
	now     func() time.Time
	log     zerolog.Logger

	mu         sync.Mutex
	generation uint64
	cancel     context.CancelFunc
}

// NewResolver creates a resolver that interprets civil dates in loc
func NewResolver(fetcher WindowFetcher, loc *time.Location, opts ...Option) *Resolver {
	if loc == nil {
		loc = time.UTC
	}
	r := &Resolver{
		fetcher: fetcher,
		loc:     loc,
		radius:  DefaultWindowRadius,
		now:     time.Now,
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Location returns the zone civil dates are resolved in
func (r *Resolver) Location() *time.Location {
	return r.loc
}

// Now returns the resolver clock's current instant
func (r *Resolver) Now() time.Time {
	return r.now()
}

// Compute resolves the readings bounding rng and returns their difference
func (r *Resolver) Compute(ctx context.Context, rng models.DateRange) (models.UsageResult, error) {
	startTarget, endTarget, err := Targets(rng, r.loc, r.now())
	if err != nil {
		return models.UsageResult{}, err
	}

	ctx, gen, done := r.begin(ctx)
	defer done()

	var startWindow, endWindow []models.Sample
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		samples, err := r.fetcher.FetchWindow(gctx, startTarget, r.radius)
		if err != nil {
			return fmt.Errorf("fetching start window: %w", err)
		}
		startWindow = samples
		return nil
	})
	g.Go(func() error {
		samples, err := r.fetcher.FetchWindow(gctx, endTarget, r.radius)
		if err != nil {
			return fmt.Errorf("fetching end window: %w", err)
		}
		endWindow = samples
		return nil
	})
	err = g.Wait()

	if !r.current(gen) {
		r.log.Debug().Uint64("generation", gen).Msg("discarding superseded computation")
		return models.UsageResult{}, ErrSuperseded
	}
	if err != nil {
		return models.UsageResult{}, err
	}

	startSample, ok := Nearest(startWindow, startTarget, SeedFirst)
	if !ok {
		return models.UsageResult{}, fmt.Errorf("%w: no samples near %s", ErrNoDataInRange, startTarget.Format(time.RFC3339))
	}
	endSample, ok := Nearest(endWindow, endTarget, SeedLast)
	if !ok {
		return models.UsageResult{}, fmt.Errorf("%w: no samples near %s", ErrNoDataInRange, endTarget.Format(time.RFC3339))
	}

	if !finite(startSample.Value) || !finite(endSample.Value) {
		return models.UsageResult{}, fmt.Errorf("%w: start=%v end=%v", ErrInvalidReading, startSample.Value, endSample.Value)
	}

	delta := endSample.Value - startSample.Value
	if delta < 0 {
		return models.UsageResult{}, fmt.Errorf("%w: start reading %.2f exceeds end reading %.2f", ErrNegativeUsage, startSample.Value, endSample.Value)
	}

	r.log.Debug().
		Str("start", rng.Start).
		Str("end", rng.End).
		Time("start_sample", startSample.Timestamp).
		Time("end_sample", endSample.Timestamp).
		Float64("kwh", delta).
		Msg("computed usage")

	return models.UsageResult{
		StartSample: startSample,
		EndSample:   endSample,
		UsageKWh:    delta,
		Range:       rng,
	}, nil
}

// begin registers a new computation, cancelling any that is still in flight
func (r *Resolver) begin(parent context.Context) (context.Context, uint64, func()) {
	ctx, cancel := context.WithCancel(parent)

	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
	}
	r.generation++
	gen := r.generation
	r.cancel = cancel
	r.mu.Unlock()

	return ctx, gen, func() {
		r.mu.Lock()
		if r.generation == gen {
			r.cancel = nil
		}
		r.mu.Unlock()
		cancel()
	}
}

func (r *Resolver) current(gen uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.generation == gen
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// IsUserError reports whether err stems from input or data rather than transport
func IsUserError(err error) bool {
	return errors.Is(err, ErrInvalidDateFormat) ||
		errors.Is(err, ErrNoDataInRange) ||
		errors.Is(err, ErrInvalidReading) ||
		errors.Is(err, ErrNegativeUsage)
}
