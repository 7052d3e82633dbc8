// Package main is the batch matcher CLI. It ranks importers for every exporter from
// CSV exports, replays and records swipes, and inspects the news overlay.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/onnwee/tradematch/internal/config"
	"github.com/onnwee/tradematch/internal/ingest"
	"github.com/onnwee/tradematch/internal/matching"
	"github.com/onnwee/tradematch/internal/middleware"
)

const serviceName = "tradematch-matcher"

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

// cli carries the persistent flags and the state resolved from them before any
// subcommand runs.
type cli struct {
	configPath string
	envFile    string
	logLevel   string

	cfg    *config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	rootCmd := &cobra.Command{
		Use:          "matcher",
		Short:        "Rank importers for exporters from trade CSV exports",
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup(cmd)
		},
	}
	rootCmd.PersistentFlags().StringVar(&c.configPath, "config", "", "path to a YAML config file (env vars take precedence)")
	rootCmd.PersistentFlags().StringVar(&c.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	rootCmd.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "log level (debug, info, warn, error); overrides LOG_LEVEL")

	rootCmd.AddCommand(c.runCmd())
	rootCmd.AddCommand(c.swipeCmd())
	rootCmd.AddCommand(c.overlayCmd())
	return rootCmd
}

// setup loads the dotenv file and configuration and builds the logger. Range and
// presence checks are left to each subcommand because they apply flag overrides first.
func (c *cli) setup(cmd *cobra.Command) error {
	if c.envFile != "" {
		// A missing .env file is normal outside local development
		if err := godotenv.Load(c.envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", c.envFile, err)
		}
	}

	cfg, errs := config.Load(c.configPath)
	if cfg == nil {
		return errors.Join(errs...)
	}
	var parseErrs []error
	for _, err := range errs {
		if errors.Is(err, config.ErrInvalidValue) {
			parseErrs = append(parseErrs, err)
		}
	}
	if len(parseErrs) > 0 {
		return errors.Join(parseErrs...)
	}
	c.cfg = cfg

	level := cfg.LogLevel
	if c.logLevel != "" {
		level = c.logLevel
	}
	c.logger = middleware.NewLoggerTo(cmd.ErrOrStderr(), cfg.Env, middleware.ParseLevel(level))
	return nil
}

// validate runs the full configuration check after flag overrides are applied.
func (c *cli) validate() error {
	return errors.Join(c.cfg.Validate()...)
}

func (c *cli) loader() *ingest.Loader {
	return ingest.NewLoader(ingest.Config{Logger: c.logger})
}

func (c *cli) loadCatalog() (*matching.Catalog, error) {
	catalog, err := matching.LoadCatalog(c.loader(), matching.CatalogFiles{
		Buyers:    c.cfg.BuyersCSV,
		Exporters: c.cfg.ExportersCSV,
		News:      c.cfg.NewsCSV,
	}, c.cfg.News)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	return catalog, nil
}

// catalogFlags override the CSV inputs from configuration.
type catalogFlags struct {
	buyers      string
	exporters   string
	news        string
	calibration string
}

func (f *catalogFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.buyers, "buyers", "", "importer CSV (overrides BUYERS_CSV)")
	cmd.Flags().StringVar(&f.exporters, "exporters", "", "exporter CSV (overrides EXPORTERS_CSV)")
	cmd.Flags().StringVar(&f.news, "news", "", "global news CSV (overrides NEWS_CSV)")
	cmd.Flags().StringVar(&f.calibration, "calibration", "", "scoring calibration JSON (overrides CALIBRATION_PATH)")
}

func (f *catalogFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("buyers") {
		cfg.BuyersCSV = f.buyers
	}
	if cmd.Flags().Changed("exporters") {
		cfg.ExportersCSV = f.exporters
	}
	if cmd.Flags().Changed("news") {
		cfg.NewsCSV = f.news
	}
	if cmd.Flags().Changed("calibration") {
		cfg.CalibrationPath = f.calibration
	}
}

// storeFlags override the feedback store selection.
type storeFlags struct {
	backend    string
	sqlitePath string
}

func (f *storeFlags) register(cmd *cobra.Command, defaultBackend string) {
	cmd.Flags().StringVar(&f.backend, "store", defaultBackend, "feedback store: memory, sqlite, postgres or redis (overrides FEEDBACK_STORE)")
	cmd.Flags().StringVar(&f.sqlitePath, "sqlite-path", "", "SQLite database file (overrides SQLITE_PATH)")
}

// apply sets the backend when the flag was given, or when the configured backend is
// the default and this command prefers another one.
func (f *storeFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("store") || cfg.FeedbackStore == config.DefaultFeedbackStore {
		cfg.FeedbackStore = f.backend
	}
	if cmd.Flags().Changed("sqlite-path") {
		cfg.SQLitePath = f.sqlitePath
	}
}
