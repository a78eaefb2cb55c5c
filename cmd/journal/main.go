package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kenshin579/auto-trading-journal/internal/config"
	"github.com/kenshin579/auto-trading-journal/internal/dashboard"
	"github.com/kenshin579/auto-trading-journal/internal/database"
	"github.com/kenshin579/auto-trading-journal/internal/ledger"
	"github.com/kenshin579/auto-trading-journal/internal/logger"
	"github.com/kenshin579/auto-trading-journal/internal/models"
	"github.com/kenshin579/auto-trading-journal/internal/sheets"
)

// sheetBatch is one entry of the records export: the target sheet, its
// layout, and the parsed records destined for it.
type sheetBatch struct {
	Sheet   string               `json:"sheet"`
	Layout  string               `json:"layout"`
	Records []models.TradeRecord `json:"records"`
}

func main() {
	// Load application configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		// We can't use the logger here because it's not initialized yet.
		panic(fmt.Sprintf("could not load config: %v", err))
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("Configuration loaded")

	// Initialize database
	db, err := database.NewDatabase(cfg.Database.DSN)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	log.Info("Database connection successful and schema migrated.")

	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigchan := make(chan os.Signal, 1)
		signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
		<-sigchan
		log.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	// Initialize Sheets client
	client, err := sheets.NewClient(ctx, &cfg.Sheets, log)
	if err != nil {
		log.Fatal("Failed to connect to Sheets API", zap.Error(err))
	}
	log.Info("Successfully connected to Sheets API.")

	batches, err := loadBatches(cfg.Journal.RecordsFile)
	if err != nil {
		log.Fatal("Failed to load records file", zap.Error(err))
	}

	engine := ledger.NewEngine(log, &cfg, client, db)
	log.Info("Starting append run",
		zap.String("run_id", engine.RunID()),
		zap.Int("batches", len(batches)),
		zap.Bool("dry_run", cfg.Journal.DryRun))

	// One failing sheet must not block the others.
	failures := 0
	for _, batch := range batches {
		if ctx.Err() != nil {
			break
		}
		kind, err := ledger.ParseLayout(batch.Layout)
		if err != nil {
			log.Error("Skipping batch", zap.String("sheet", batch.Sheet), zap.Error(err))
			failures++
			continue
		}
		if _, err := engine.EnsureSheet(ctx, batch.Sheet, kind); err != nil {
			log.Error("Could not prepare sheet", zap.String("sheet", batch.Sheet), zap.Error(err))
			failures++
			continue
		}
		inserted, err := engine.AppendRecords(ctx, batch.Sheet, batch.Records, kind)
		if err != nil {
			log.Error("Append failed", zap.String("sheet", batch.Sheet),
				zap.Int("inserted", inserted), zap.Error(err))
			failures++
			continue
		}
		log.Info("Sheet reconciled", zap.String("sheet", batch.Sheet),
			zap.Int("inserted", inserted),
			zap.Int("duplicates", len(batch.Records)-inserted))
	}

	if cfg.Journal.Dashboard && !cfg.Journal.DryRun && ctx.Err() == nil {
		if err := regenerateDashboard(ctx, log, &cfg, client, engine); err != nil {
			log.Error("Dashboard regeneration failed", zap.Error(err))
			failures++
		}
	}

	cancel()
	if failures > 0 {
		log.Warn("Run finished with failures", zap.Int("failures", failures))
		os.Exit(1)
	}
	log.Info("Run finished.")
}

// loadBatches reads the JSON export produced by the upstream broker
// parser.
func loadBatches(path string) ([]sheetBatch, error) {
	if path == "" {
		return nil, fmt.Errorf("journal.records_file is not set")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read records file: %w", err)
	}
	var batches []sheetBatch
	if err := json.Unmarshal(data, &batches); err != nil {
		return nil, fmt.Errorf("could not parse records file: %w", err)
	}
	return batches, nil
}

// regenerateDashboard reads every trade sheet back and rebuilds the
// dashboard from the result.
func regenerateDashboard(ctx context.Context, log *zap.Logger, cfg *config.Config, client sheets.API, engine *ledger.Engine) error {
	records, err := engine.ReadAllRecords(ctx)
	if err != nil {
		return fmt.Errorf("could not read trade sheets: %w", err)
	}
	retry := ledger.NewRetryer(cfg.Sheets.RetryAttempts,
		time.Duration(cfg.Sheets.RetryInitialSecs)*time.Second, log)
	return dashboard.NewGenerator(log, client, retry).Generate(ctx, records)
}
