package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jgoulah/submeter/internal/report"
)

var latestPublish bool

var latestCmd = &cobra.Command{
	Use:   "latest",
	Short: "Show the latest meter reading",
	Long:  `Fetches the most recent cumulative kWh reading from the configured ThingSpeak channel.`,
	Args:  cobra.NoArgs,
	RunE:  runLatest,
}

func init() {
	latestCmd.Flags().BoolVar(&latestPublish, "publish", false, "Also publish the reading to MQTT / Home Assistant")
	rootCmd.AddCommand(latestCmd)
}

func runLatest(cmd *cobra.Command, args []string) error {
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

	ctx := cmd.Context()
	s, err := client.FetchLatest(ctx)
	if err != nil {
		return err
	}
	fmt.Println(report.Latest(s, loc, time.Now()))

	if latestPublish {
		pub, err := newPublisher(cfg)
		if err != nil {
			return err
		}
		defer pub.Close()

		if err := pub.PublishLatest(ctx, s); err != nil {
			return fmt.Errorf("publishing latest reading: %w", err)
		}
		fmt.Println("✓ Published latest reading")
	}

	return nil
}
