package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jgoulah/submeter/internal/config"
	"github.com/jgoulah/submeter/internal/database"
	"github.com/jgoulah/submeter/internal/report"
)

var (
	exportID     string
	exportDir    string
	exportStdout bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a saved usage result as a text report",
	Long: `Writes the most recently saved usage result (see 'submeter usage --save') as a
plain-text report named usage-report-<start>-to-<end>.txt.`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportID, "id", "", "Export a specific saved report instead of the latest")
	exportCmd.Flags().StringVar(&exportDir, "dir", "", "Output directory (default: export_dir from config)")
	exportCmd.Flags().BoolVar(&exportStdout, "stdout", false, "Print the report instead of writing a file")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	// Export needs no channel, so the config is not validated here
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	db, err := openDB()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	var saved *database.SavedReport
	if exportID != "" {
		saved, err = db.GetReport(exportID)
	} else {
		saved, err = db.LatestReport()
	}
	if err != nil {
		return err
	}

	if exportStdout {
		content, err := report.Format(&saved.Result, cfg.GetSiteLabel())
		if err != nil {
			return err
		}
		fmt.Println(content)
		return nil
	}

	dir := exportDir
	if dir == "" {
		dir = cfg.GetExportDir()
	}
	path, err := report.Write(dir, &saved.Result, cfg.GetSiteLabel())
	if err != nil {
		return err
	}

	fmt.Printf("Exported report to %s\n", path)
	return nil
}
