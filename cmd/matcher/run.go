package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/onnwee/tradematch/internal/config"
	"github.com/onnwee/tradematch/internal/export"
	"github.com/onnwee/tradematch/internal/feedback"
	"github.com/onnwee/tradematch/internal/ingest"
	"github.com/onnwee/tradematch/internal/matching"
	"github.com/onnwee/tradematch/internal/ranking"
	"github.com/onnwee/tradematch/internal/tracing"
)

// ErrPresignWithoutS3 is returned when --presign is given without --s3.
var ErrPresignWithoutS3 = errors.New("--presign requires --s3")

func (c *cli) runCmd() *cobra.Command {
	var (
		inputs     catalogFlags
		storeOpts  storeFlags
		swipesPath string
		topN       int
		workers    int
		out        string
		uploadS3   bool
		presign    bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Rank buyers for every exporter and write the decks",
		Long: `Loads the buyer, exporter and news CSVs, optionally replays a swipe history
into the feedback store, ranks every exporter in parallel and writes the decks as
JSON to stdout, a file, or S3-compatible object storage.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			inputs.apply(cmd, c.cfg)
			storeOpts.apply(cmd, c.cfg)
			if cmd.Flags().Changed("top-n") {
				c.cfg.TopN = topN
			}
			if cmd.Flags().Changed("workers") {
				c.cfg.Workers = workers
			}
			if err := c.validate(); err != nil {
				return err
			}
			if presign && !uploadS3 {
				return ErrPresignWithoutS3
			}

			sinks := []export.Sink{localSink(cmd, out)}
			var s3Sink *export.S3Sink
			if uploadS3 {
				var err error
				if s3Sink, err = newS3Sink(c.cfg); err != nil {
					return err
				}
				sinks = append(sinks, s3Sink)
			}

			provider, err := tracing.NewProvider(tracing.Config{
				ServiceName:    serviceName,
				ServiceVersion: version,
				Enabled:        c.cfg.TracingEnabled,
				Environment:    c.cfg.Env,
				ExporterType:   c.cfg.TracingExporter,
				OTLPEndpoint:   c.cfg.TracingEndpoint,
				SamplingRate:   c.cfg.TracingSamplingRate,
				InsecureMode:   c.cfg.TracingInsecure,
			})
			if err != nil {
				return fmt.Errorf("failed to initialize tracing: %w", err)
			}
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := provider.Shutdown(ctx); err != nil {
					c.logger.Error("failed to shut down tracing", "error", err)
				}
			}()

			ctx := cmd.Context()
			doc, err := c.rank(ctx, swipesPath)
			if err != nil {
				return err
			}

			for _, sink := range sinks {
				location, err := sink.Write(ctx, doc)
				if err != nil {
					return err
				}
				c.logger.Info("decks written", "location", location, "exporters", doc.ExporterCount)
			}

			if presign {
				url, expires, err := s3Sink.PresignGet(ctx, s3Sink.ObjectKey(doc.GeneratedAt))
				if err != nil {
					return err
				}
				c.logger.Info("presigned download URL", "url", url, "expires_at", expires.UTC().Format(time.RFC3339))
			}
			return nil
		},
	}

	inputs.register(cmd)
	storeOpts.register(cmd, config.StoreMemory)
	cmd.Flags().StringVar(&swipesPath, "swipes", "", "swipe history CSV (Exporter_ID, Buyer_ID, Direction) replayed before ranking")
	cmd.Flags().IntVar(&topN, "top-n", config.DefaultTopN, "matches kept per exporter (overrides TOP_N)")
	cmd.Flags().IntVar(&workers, "workers", 0, "parallel ranking workers, 0 for GOMAXPROCS (overrides WORKERS)")
	cmd.Flags().StringVarP(&out, "out", "o", "-", "output file, or - for stdout")
	cmd.Flags().BoolVar(&uploadS3, "s3", false, "also upload the decks to the configured S3 bucket")
	cmd.Flags().BoolVar(&presign, "presign", false, "log a presigned download URL for the uploaded decks")
	return cmd
}

// rank wires the scorer, feedback store and orchestrator, replays the swipe history
// when one is given and ranks every exporter in the catalog.
func (c *cli) rank(ctx context.Context, swipesPath string) (export.Document, error) {
	catalog, err := c.loadCatalog()
	if err != nil {
		return export.Document{}, err
	}

	weights, err := ranking.LoadCalibration(c.cfg.CalibrationPath)
	if err != nil {
		return export.Document{}, err
	}
	scorer, err := ranking.NewScorer(weights)
	if err != nil {
		return export.Document{}, fmt.Errorf("failed to create scorer: %w", err)
	}

	store, err := c.openStore(ctx)
	if err != nil {
		return export.Document{}, err
	}
	defer store.Close()

	engine, err := c.newEngine(store)
	if err != nil {
		return export.Document{}, err
	}

	if swipesPath != "" {
		records, _, err := c.loader().LoadSwipes(swipesPath)
		if err != nil {
			return export.Document{}, err
		}
		if _, err := replaySwipes(ctx, engine, catalog, records, c.logger); err != nil {
			return export.Document{}, err
		}
	}

	orchestrator, err := matching.NewOrchestrator(matching.OrchestratorConfig{
		Scorer:   scorer,
		Catalog:  catalog,
		Feedback: engine,
		Config:   c.cfg.MatchingConfig(),
		Logger:   c.logger,
	})
	if err != nil {
		return export.Document{}, err
	}

	decks, err := orchestrator.Run(ctx, catalog.Exporters(), catalog.Buyers())
	if err != nil {
		return export.Document{}, fmt.Errorf("ranking failed: %w", err)
	}
	return export.NewDocument(decks, time.Now()), nil
}

func (c *cli) openStore(ctx context.Context) (*feedback.Store, error) {
	store, err := feedback.OpenStore(ctx, feedback.StoreConfig{
		Backend:     c.cfg.FeedbackStore,
		DatabaseURL: c.cfg.DatabaseURL,
		SQLitePath:  c.cfg.SQLitePath,
		RedisURL:    c.cfg.RedisURL,
		Logger:      c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open feedback store: %w", err)
	}
	return store, nil
}

func (c *cli) newEngine(store *feedback.Store) (*feedback.Engine, error) {
	cfg := c.cfg.Feedback
	return feedback.NewEngine(store.Repository, feedback.EngineConfig{Config: &cfg, Logger: c.logger})
}

// replayStats counts the outcome of a swipe history replay.
type replayStats struct {
	Applied int
	Skipped int
}

// replaySwipes feeds historical swipes through the engine in file order. Rows naming
// an unknown exporter or buyer, or carrying an unreadable direction, are skipped with a
// warning; a store failure aborts the replay.
func replaySwipes(ctx context.Context, engine *feedback.Engine, catalog *matching.Catalog, records []ingest.SwipeRecord, logger *slog.Logger) (replayStats, error) {
	var stats replayStats
	for i, rec := range records {
		dir, err := feedback.ParseDirection(rec.Direction)
		if err != nil {
			logger.Warn("skipping swipe", "row", i+1, "error", err)
			stats.Skipped++
			continue
		}
		if _, ok := catalog.Exporter(rec.ExporterID); !ok {
			logger.Warn("skipping swipe for unknown exporter", "row", i+1, "exporter_id", rec.ExporterID)
			stats.Skipped++
			continue
		}
		buyer, ok := catalog.Buyer(rec.BuyerID)
		if !ok {
			logger.Warn("skipping swipe for unknown buyer", "row", i+1, "buyer_id", rec.BuyerID)
			stats.Skipped++
			continue
		}

		if _, err := engine.ProcessSwipe(ctx, rec.ExporterID, buyer, dir); err != nil {
			return stats, fmt.Errorf("failed to replay swipe on row %d: %w", i+1, err)
		}
		stats.Applied++
	}

	logger.Info("swipe history replayed", "applied", stats.Applied, "skipped", stats.Skipped)
	return stats, nil
}

func localSink(cmd *cobra.Command, out string) export.Sink {
	if out == "" || out == "-" {
		return export.NewWriterSink(cmd.OutOrStdout(), "stdout")
	}
	return export.NewFileSink(out)
}

func newS3Sink(cfg *config.Config) (*export.S3Sink, error) {
	sink, err := export.NewS3Sink(export.S3Config{
		Bucket:          cfg.S3Bucket,
		Region:          cfg.S3Region,
		Endpoint:        cfg.S3Endpoint,
		AccessKeyID:     cfg.S3AccessKeyID,
		SecretAccessKey: cfg.S3SecretAccessKey,
		Prefix:          cfg.S3Prefix,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to configure S3 export: %w", err)
	}
	return sink, nil
}
