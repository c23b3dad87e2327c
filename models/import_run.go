package models

import (
	"time"

	"gorm.io/datatypes"
)

// Status eines Importlaufs.
const (
	RunStatusRunning  = "running"
	RunStatusFinished = "finished"
	RunStatusAborted  = "aborted"
)

// ImportRun protokolliert einen Importlauf und hält den Fortschritt für
// die Wiederaufnahme fest. LastCommittedRow wird nach jedem committeten
// Batch aktualisiert; ein Folgelauf kann dort mit Skip-Rows aufsetzen.
type ImportRun struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	RunID      string `json:"run_id" gorm:"size:36;uniqueIndex;not null"`
	SourceFile string `json:"source_file" gorm:"size:500"`
	Format     string `json:"format" gorm:"size:20"`
	Status     string `json:"status" gorm:"size:20;index"`
	DryRun     bool   `json:"dry_run"`

	LastCommittedRow int64 `json:"last_committed_row"`

	Processed int64 `json:"processed"`
	Created   int64 `json:"created"`
	Updated   int64 `json:"updated"`
	Skipped   int64 `json:"skipped"`
	Errored   int64 `json:"errored"`

	// Report hält die vollständige Laufbilanz als JSON, inklusive der
	// Häufigkeitstabelle unaufgelöster Journaltitel.
	Report datatypes.JSON `json:"report,omitempty"`

	FinishedAt *time.Time `json:"finished_at,omitempty"`
}
