package storage

import (
	"errors"

	"gorm.io/gorm"

	"ost-tracker/models"
)

// RunStorage persistiert Importläufe samt Checkpoints.
type RunStorage struct {
	db *gorm.DB
}

// NewRunStorage erstellt die Importlauf-Ablage.
func NewRunStorage(db *gorm.DB) *RunStorage {
	return &RunStorage{db: db}
}

// Begin legt den Laufdatensatz an.
func (s *RunStorage) Begin(run *models.ImportRun) error {
	return s.db.Create(run).Error
}

// Checkpoint schreibt den Fortschritt nach einem committeten Batch fort.
func (s *RunStorage) Checkpoint(run *models.ImportRun) error {
	return s.db.Save(run).Error
}

// Finish schließt den Laufdatensatz ab.
func (s *RunStorage) Finish(run *models.ImportRun) error {
	return s.db.Save(run).Error
}

// LastAborted liefert den jüngsten abgebrochenen Lauf für eine
// Quelldatei, für die Wiederaufnahme über Skip-Rows.
func (s *RunStorage) LastAborted(sourceFile string) (*models.ImportRun, error) {
	var run models.ImportRun
	err := s.db.Where("source_file = ? AND status = ?", sourceFile, models.RunStatusAborted).
		Order("created_at DESC").First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}
