package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"ost-tracker/config"
	"ost-tracker/ingest"
	"ost-tracker/models"
	"ost-tracker/storage"
)

func main() {
	logging, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logging.Sync()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("Config load error", zap.Error(err))
	}

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, logging)
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		logging.Fatal("Failed to connect to database", zap.Error(err))
	}
	logging.Info("Successfully connected to tracker database.")

	if err := db.AutoMigrate(&models.Journal{}, &models.Paper{}, &models.ImportRun{}); err != nil {
		logging.Fatal("Failed to migrate database", zap.Error(err))
	}

	path, err := sourcePath(cfg, logging)
	if err != nil {
		logging.Fatal("No source file", zap.Error(err))
	}

	journalStore := storage.NewJournalStorage(db, logging)
	paperStore := storage.NewPaperStorage(db)
	runStore := storage.NewRunStorage(db)

	journals, err := journalStore.LoadAll()
	if err != nil {
		logging.Fatal("Failed to load journal registry", zap.Error(err))
	}
	index := ingest.NewJournalIndex(journals, logging)

	// Im Dry-Run landen neu angelegte Journale nur im Speicher.
	var creator ingest.JournalCreator = journalStore
	if cfg.DryRun {
		creator = ingest.NewMemoryJournalCreator(maxJournalID(journals))
	}
	resolver := ingest.NewResolver(index, creator, cfg.CreateJournals, logging)
	scorer := ingest.NewScorer(cfg.IncludeOpenAccess)

	skipRows := int64(cfg.SkipRows)
	if cfg.Resume {
		last, err := runStore.LastAborted(path)
		if err != nil {
			logging.Fatal("Failed to look up aborted runs", zap.Error(err))
		}
		if last != nil && last.LastCommittedRow > skipRows {
			skipRows = last.LastCommittedRow
			logging.Info("Setze abgebrochenen Lauf fort",
				zap.String("run_id", last.RunID),
				zap.Int64("skip_rows", skipRows))
		}
	}

	pipeline := ingest.NewPipeline(paperStore, runStore, resolver, scorer, ingest.Options{
		ChunkSize:      cfg.ChunkSize,
		BatchSize:      cfg.BatchSize,
		MinBatchSize:   cfg.MinBatchSize,
		RowLimit:       int64(cfg.RowLimit),
		SkipRows:       skipRows,
		DryRun:         cfg.DryRun,
		UpdateExisting: cfg.UpdateExisting,
		RequireJournal: cfg.RequireJournal,
		Format:         cfg.SourceFormat,
		MemoryLimitMB:  cfg.MemoryLimitMB,
	}, logging)

	if _, err := pipeline.Run(path); err != nil {
		logging.Fatal("Import failed", zap.Error(err))
	}
}

// serveMetrics stellt die Laufzähler unter /metrics bereit, solange der
// Import läuft. Der Endpunkt ist optional und endet mit dem Prozess.
func serveMetrics(addr string, logging *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", ingest.MetricsHandler())
	logging.Info("Metrics-Endpunkt gestartet", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logging.Error("Metrics-Endpunkt beendet", zap.Error(err))
	}
}

// sourcePath bestimmt die Exportdatei: erstes Argument, oder Abruf aus
// dem konfigurierten S3-Bucket, wenn kein Argument übergeben wurde.
func sourcePath(cfg *config.Config, logging *zap.Logger) (string, error) {
	if len(os.Args) > 1 {
		return os.Args[1], nil
	}
	if cfg.SourceS3Key == "" {
		return "", os.ErrNotExist
	}

	client, err := storage.NewS3Client(cfg)
	if err != nil {
		return "", err
	}
	dest := filepath.Join(os.TempDir(), filepath.Base(cfg.SourceS3Key))
	n, err := storage.DownloadFile(context.Background(), client, cfg.SourceS3Bucket, cfg.SourceS3Key, dest)
	if err != nil {
		return "", err
	}
	logging.Info("Exportdatei aus S3 geladen",
		zap.String("bucket", cfg.SourceS3Bucket),
		zap.String("key", cfg.SourceS3Key),
		zap.Int64("bytes", n))
	return dest, nil
}

func maxJournalID(journals []models.Journal) uint {
	var max uint
	for i := range journals {
		if journals[i].ID > max {
			max = journals[i].ID
		}
	}
	return max
}
