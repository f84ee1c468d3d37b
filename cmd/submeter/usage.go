package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jgoulah/submeter/internal/report"
	"github.com/jgoulah/submeter/internal/usage"
	"github.com/jgoulah/submeter/pkg/models"
)

var (
	usageExport  bool
	usageDir     string
	usageSave    bool
	usagePublish bool
)

var usageCmd = &cobra.Command{
	Use:   "usage <start> <end> | this | last",
	Short: "Compute energy usage over a date range",
	Long: `Computes kWh used between two civil dates (YYYY-MM-DD, inclusive) from the
readings nearest midnight of the start date and 23:59:59 of the end date.

"this" computes month-to-date usage ending now; "last" computes the previous
calendar month.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runUsage,
}

func init() {
	usageCmd.Flags().BoolVar(&usageExport, "export", false, "Write a plain-text usage report")
	usageCmd.Flags().StringVar(&usageDir, "dir", "", "Directory for exported reports (default: export_dir from config)")
	usageCmd.Flags().BoolVar(&usageSave, "save", false, "Record the result in the report history database")
	usageCmd.Flags().BoolVar(&usagePublish, "publish", false, "Publish the result to MQTT / Home Assistant")
	rootCmd.AddCommand(usageCmd)
}

// rangeFromArgs resolves command arguments to a date range
func rangeFromArgs(args []string, now time.Time, loc *time.Location) (models.DateRange, error) {
	if len(args) == 1 {
		if r, ok := usage.Preset(args[0], now, loc); ok {
			return r, nil
		}
		if _, err := usage.ParseDate(args[0], loc); err != nil {
			return models.DateRange{}, err
		}
		return models.DateRange{}, errMissingDate
	}
	return usage.ParseRange(args[0], args[1])
}

func runUsage(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log := newLogger()
	resolver, err := newResolver(cfg, newClient(cfg, log), log)
	if err != nil {
		return err
	}

	rng, err := rangeFromArgs(args, resolver.Now(), resolver.Location())
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	result, err := resolver.Compute(ctx, rng)
	if err != nil {
		return err
	}
	fmt.Println(report.Summary(result))

	if usageSave {
		db, err := openDB()
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer db.Close()

		saved, err := db.SaveReport(result)
		if err != nil {
			return err
		}
		fmt.Printf("✓ Saved report %s\n", saved.ID)
	}

	if usageExport {
		dir := usageDir
		if dir == "" {
			dir = cfg.GetExportDir()
		}
		path, err := report.Write(dir, &result, cfg.GetSiteLabel())
		if err != nil {
			return err
		}
		fmt.Printf("Exported report to %s\n", path)
	}

	if usagePublish {
		pub, err := newPublisher(cfg)
		if err != nil {
			return err
		}
		defer pub.Close()

		if err := pub.PublishUsage(ctx, result); err != nil {
			return fmt.Errorf("publishing usage: %w", err)
		}
		fmt.Println("✓ Published usage")
	}

	return nil
}
