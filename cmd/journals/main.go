package main

import (
	"log"
	"os"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"ost-tracker/config"
	"ost-tracker/models"
	"ost-tracker/storage"
)

// Lädt das NLM-Journalregister aus einer CSV-Datei in die Datenbank.
// Aufruf: journals <register.csv[.gz]>
func main() {
	if len(os.Args) < 2 {
		log.Fatal("Aufruf: journals <register.csv>")
	}

	logging, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logging.Sync()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("Config load error", zap.Error(err))
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		logging.Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := db.AutoMigrate(&models.Journal{}); err != nil {
		logging.Fatal("Failed to migrate database", zap.Error(err))
	}

	store := storage.NewJournalStorage(db, logging)
	imported, err := store.ImportRegistryCSV(os.Args[1])
	if err != nil {
		logging.Fatal("Registry import failed", zap.Error(err))
	}
	logging.Info("Registry import finished", zap.Int64("journals", imported))
}
