package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jgoulah/submeter/internal/config"
	"github.com/jgoulah/submeter/internal/database"
	"github.com/jgoulah/submeter/internal/logging"
	"github.com/jgoulah/submeter/internal/publisher"
	"github.com/jgoulah/submeter/internal/thingspeak"
	"github.com/jgoulah/submeter/internal/usage"
)

// errNoDestination is returned when publishing is requested with nothing enabled
var errNoDestination = errors.New("neither MQTT nor Home Assistant is enabled in config")

var (
	cfgFile string
	dbPath  string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "submeter",
	Short: "Report sub-meter energy usage from a ThingSpeak channel",
	Long: `Submeter reads cumulative kWh readings from a ThingSpeak channel.
It shows the latest reading, computes usage over a date range from the readings
nearest each end of the range, and exports plain-text usage reports.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "report history database (default is ./data.db)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// getConfigPath returns the config file path
func getConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.DefaultConfigPath()
}

// getDBPath returns the database file path (local directory)
func getDBPath() string {
	if dbPath != "" {
		return dbPath
	}
	return "data.db"
}

// loadConfig loads and validates the configuration file
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// openDB opens the database connection
func openDB() (*database.DB, error) {
	path := getDBPath()

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	return database.New(path)
}

func newLogger() zerolog.Logger {
	return logging.New(os.Stderr, verbose)
}

// newClient creates the ThingSpeak client for the configured channel
func newClient(cfg *config.Config, log zerolog.Logger) *thingspeak.Client {
	return thingspeak.New(thingspeak.Options{
		BaseURL:    cfg.ThingSpeak.GetBaseURL(),
		ChannelID:  cfg.ThingSpeak.ChannelID,
		ReadAPIKey: cfg.ThingSpeak.ReadAPIKey,
		Field:      cfg.ThingSpeak.GetField(),
		MaxResults: cfg.ThingSpeak.GetMaxResults(),
		Timeout:    cfg.ThingSpeak.GetTimeout(),
		Logger:     log,
	})
}

// newResolver creates a usage resolver backed by client
func newResolver(cfg *config.Config, client *thingspeak.Client, log zerolog.Logger) (*usage.Resolver, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	return usage.NewResolver(client, loc,
		usage.WithRadius(cfg.GetWindowRadius()),
		usage.WithLogger(log),
	), nil
}

// newPublisher connects to the configured publishing destinations
func newPublisher(cfg *config.Config) (*publisher.Publisher, error) {
	pub, err := publisher.New(cfg.MQTT, cfg.HomeAssistant)
	if err != nil {
		return nil, fmt.Errorf("creating publisher: %w", err)
	}
	if !pub.Enabled() {
		return nil, errNoDestination
	}
	return pub, nil
}
