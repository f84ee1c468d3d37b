package main

import (
	"fmt"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/jgoulah/submeter/internal/database"
	"github.com/jgoulah/submeter/internal/report"
)

var (
	publishAll   bool
	publishLimit int
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish saved usage results to MQTT / Home Assistant",
	Long:  `Reads saved usage results from the database and publishes the unpublished ones to MQTT and Home Assistant.`,
	Args:  cobra.NoArgs,
	RunE:  runPublish,
}

func init() {
	publishCmd.Flags().BoolVar(&publishAll, "all", false, "Force republish all reports (ignore published flag)")
	publishCmd.Flags().IntVar(&publishLimit, "limit", 0, "Limit number of reports to publish (0 = no limit)")
	rootCmd.AddCommand(publishCmd)
}

func runPublish(cmd *cobra.Command, args []string) error {
	fmt.Printf("=== Publish started at %s ===\n", time.Now().Format("2006-01-02 15:04:05 MST"))

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	pub, err := newPublisher(cfg)
	if err != nil {
		return err
	}
	defer pub.Close()

	// Open database
	db, err := openDB()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	data, err := db.ListReports(0)
	if err != nil {
		return fmt.Errorf("listing reports: %w", err)
	}
	if !publishAll {
		data = lo.Filter(data, func(r database.SavedReport, _ int) bool {
			return !r.Published
		})
	}

	if len(data) == 0 {
		fmt.Println("No unpublished reports found")
		return nil
	}

	// Apply limit if specified
	if publishLimit > 0 && len(data) > publishLimit {
		data = data[:publishLimit]
		fmt.Printf("Limiting to %d reports (--limit flag)\n", publishLimit)
	}

	published := 0
	for i, r := range data {
		fmt.Printf("[%d/%d] Publishing %s (%.2f kWh)... ", i+1, len(data), report.Filename(r.Result.Range), r.Result.UsageKWh)
		if err := pub.PublishUsage(cmd.Context(), r.Result); err != nil {
			fmt.Printf("FAILED: %v\n", err)
			continue
		}

		if err := db.MarkPublished(r.ID); err != nil {
			fmt.Printf("✓ (warning: failed to mark as published: %v)\n", err)
		} else {
			fmt.Printf("✓\n")
		}
		published++
	}

	fmt.Printf("Successfully published %d/%d reports\n", published, len(data))
	return nil
}
