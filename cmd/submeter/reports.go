package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jgoulah/submeter/internal/report"
)

var reportsLimit int

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "List saved usage results",
	Long:  `Displays the usage results recorded with 'submeter usage --save', newest first.`,
	Args:  cobra.NoArgs,
	RunE:  runReports,
}

func init() {
	reportsCmd.Flags().IntVar(&reportsLimit, "limit", 20, "Maximum number of reports to show (0 = all)")
	rootCmd.AddCommand(reportsCmd)
}

func runReports(cmd *cobra.Command, args []string) error {
	// Open database
	db, err := openDB()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	data, err := db.ListReports(reportsLimit)
	if err != nil {
		return fmt.Errorf("listing reports: %w", err)
	}

	if len(data) == 0 {
		fmt.Println("No saved reports")
		return nil
	}

	fmt.Println("------------------------------------------------------------------------------")
	fmt.Printf("%-36s  %-10s  %-10s  %10s  %s\n", "ID", "From", "To", "kWh", "Saved")
	fmt.Println("------------------------------------------------------------------------------")

	for _, r := range data {
		to := report.FormatDate(r.Result.Range.End)
		if r.Result.Range.ToDate {
			to += "*"
		}
		fmt.Printf("%-36s  %-10s  %-10s  %10.2f  %s\n",
			r.ID,
			report.FormatDate(r.Result.Range.Start),
			to,
			r.Result.UsageKWh,
			humanize.Time(r.CreatedAt),
		)
	}

	fmt.Println("------------------------------------------------------------------------------")
	fmt.Printf("%d reports (* = month to date)\n", len(data))
	return nil
}
