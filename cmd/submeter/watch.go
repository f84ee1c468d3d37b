package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jgoulah/submeter/internal/publisher"
	"github.com/jgoulah/submeter/internal/report"
	"github.com/jgoulah/submeter/internal/usage"
	"github.com/jgoulah/submeter/internal/watch"
	"github.com/jgoulah/submeter/pkg/models"
)

var (
	watchMonthToDate bool
	watchPublish     bool
	watchInterval    time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Refresh the latest reading on an interval",
	Long: `Fetches the latest reading immediately and then every refresh_interval (default
60s) until interrupted. Fetch failures are reported and the loop keeps running.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().BoolVar(&watchMonthToDate, "month-to-date", false, "Also recompute this month's usage on every refresh")
	watchCmd.Flags().BoolVar(&watchPublish, "publish", false, "Publish each refresh to MQTT / Home Assistant")
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 0, "Override refresh_interval")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	log := newLogger()
	client := newClient(cfg, log)

	interval := cfg.GetRefreshInterval()
	if watchInterval > 0 {
		interval = watchInterval
	}

	var resolver *usage.Resolver
	if watchMonthToDate {
		if resolver, err = newResolver(cfg, client, log); err != nil {
			return err
		}
	}

	var pub *publisher.Publisher
	if watchPublish {
		if pub, err = newPublisher(cfg); err != nil {
			return err
		}
		defer pub.Close()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Dur("interval", interval).Bool("month_to_date", watchMonthToDate).Msg("watching latest reading")

	return watch.Run(ctx, watch.Options{
		Interval:    interval,
		Latest:      client,
		MonthToDate: resolver,
		Logger:      log,
		OnLatest: func(s models.Sample) {
			fmt.Println(report.Latest(s, loc, time.Now()))
			if pub != nil {
				if err := pub.PublishLatest(ctx, s); err != nil && ctx.Err() != context.Canceled {
					log.Warn().Err(err).Msg("publishing latest reading")
				}
			}
		},
		OnUsage: func(r models.UsageResult) {
			fmt.Println(report.Summary(r))
			if pub != nil {
				if err := pub.PublishUsage(ctx, r); err != nil {
					log.Warn().Err(err).Msg("publishing usage")
				}
			}
		},
		OnError: func(err error) {
			fmt.Fprintln(os.Stderr, statusMessage(err))
		},
	})
}
