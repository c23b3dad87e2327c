package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config enthält alle Konfigurationsparameter aus Umgebungsvariablen.
type Config struct {
	DBHost     string `envconfig:"DB_HOST" required:"true"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" required:"true"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" required:"true"`

	// Importlauf-Parameter. Die Defaults entsprechen den bewährten Werten
	// der historischen Importskripte (Chunk 1000, Batch 500).
	ChunkSize      int    `envconfig:"CHUNK_SIZE" default:"1000"`
	BatchSize      int    `envconfig:"BATCH_SIZE" default:"500"`
	RowLimit       int    `envconfig:"ROW_LIMIT" default:"0"`
	SkipRows       int    `envconfig:"SKIP_ROWS" default:"0"`
	DryRun         bool   `envconfig:"DRY_RUN" default:"false"`
	UpdateExisting bool   `envconfig:"UPDATE_EXISTING" default:"false"`
	CreateJournals bool   `envconfig:"CREATE_JOURNALS" default:"false"`
	RequireJournal bool   `envconfig:"REQUIRE_JOURNAL" default:"false"`
	Resume         bool   `envconfig:"RESUME" default:"false"`
	SourceFormat   string `envconfig:"SOURCE_FORMAT" default:"auto"`

	// Open Access zählt per Default als sechster Kernindikator.
	IncludeOpenAccess bool `envconfig:"INCLUDE_OPEN_ACCESS" default:"true"`

	// Heap-Schwelle, ab der zwischen Chunks aufgeräumt wird.
	MemoryLimitMB int `envconfig:"MEMORY_LIMIT_MB" default:"2048"`
	MinBatchSize  int `envconfig:"MIN_BATCH_SIZE" default:"50"`

	// Adresse für den /metrics-Endpunkt während des Laufs; leer lassen,
	// um die Exposition abzuschalten.
	MetricsAddr string `envconfig:"METRICS_ADDR"`

	// Optionaler Abruf der Quelldatei aus einem S3-kompatiblen Speicher,
	// bevor der Import startet (leer lassen für lokale Dateien).
	SourceS3URL    string `envconfig:"SOURCE_S3_URL"`
	SourceS3Region string `envconfig:"SOURCE_S3_REGION" default:"eu-central-1"`
	SourceS3Bucket string `envconfig:"SOURCE_S3_BUCKET"`
	SourceS3Key    string `envconfig:"SOURCE_S3_KEY"`
	SourceS3Access string `envconfig:"SOURCE_S3_ACCESS_KEY"`
	SourceS3Secret string `envconfig:"SOURCE_S3_SECRET_KEY"`
}

// DSN gibt den Data Source Name für die PostgreSQL-Verbindung zurück.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

// Load lädt die Konfiguration aus den Umgebungsvariablen.
func Load() (*Config, error) {
	_ = godotenv.Load()
	var c Config
	err := envconfig.Process("", &c)
	return &c, err
}
