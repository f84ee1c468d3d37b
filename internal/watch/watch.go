package watch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jgoulah/submeter/internal/usage"
	"github.com/jgoulah/submeter/pkg/models"
)

// LatestFetcher retrieves the most recent sample
type LatestFetcher interface {
	FetchLatest(ctx context.Context) (models.Sample, error)
}

// Options configures the refresh loop
type Options struct {
	Interval time.Duration
	Latest   LatestFetcher

	// MonthToDate, when set, is recomputed for the current month on every tick
	MonthToDate *usage.Resolver

	OnLatest func(models.Sample)
	OnUsage  func(models.UsageResult)
	OnError  func(error)
	Logger   zerolog.Logger
}

// Run polls the latest reading immediately and then every Interval until ctx is done.
// Tick failures are reported to OnError and never stop the loop.
func Run(ctx context.Context, opts Options) error {
	if opts.Latest == nil {
		return errors.New("watch: no latest fetcher")
	}
	if opts.Interval <= 0 {
		return fmt.Errorf("watch: interval must be positive, got %v", opts.Interval)
	}

	var wg sync.WaitGroup
	defer wg.Wait()

	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	for {
		tick(ctx, &opts, &wg)

		select {
		case <-ctx.Done():
			opts.Logger.Debug().Msg("watch stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func tick(ctx context.Context, opts *Options, wg *sync.WaitGroup) {
	// Month-to-date runs alongside the latest fetch so a slow range never delays it
	if opts.MonthToDate != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := opts.MonthToDate
			result, err := r.Compute(ctx, usage.ThisMonth(r.Now(), r.Location()))
			switch {
			case errors.Is(err, usage.ErrSuperseded):
				opts.Logger.Debug().Msg("month-to-date superseded by next tick")
			case err != nil:
				report(opts, fmt.Errorf("computing month-to-date usage: %w", err))
			case opts.OnUsage != nil:
				opts.OnUsage(result)
			}
		}()
	}

	s, err := opts.Latest.FetchLatest(ctx)
	if err != nil {
		report(opts, fmt.Errorf("fetching latest reading: %w", err))
		return
	}
	if opts.OnLatest != nil {
		opts.OnLatest(s)
	}
}

func report(opts *Options, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	opts.Logger.Warn().Err(err).Msg("refresh failed")
	if opts.OnError != nil {
		opts.OnError(err)
	}
}
