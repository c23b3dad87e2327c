package storage

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"ost-tracker/ingest"
	"ost-tracker/models"
)

// PaperStorage ist die GORM-Implementierung der Upsert-Engine und der
// Bestandssuche für die Deduplizierung.
type PaperStorage struct {
	db *gorm.DB
}

// NewPaperStorage erstellt die Paper-Ablage.
func NewPaperStorage(db *gorm.DB) *PaperStorage {
	return &PaperStorage{db: db}
}

func (s *PaperStorage) findBy(column, value string) (*models.Paper, error) {
	var paper models.Paper
	err := s.db.Where(column+" = ?", value).First(&paper).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &paper, nil
}

// FindByEPMCID sucht ein Paper über den primären externen Identifier.
func (s *PaperStorage) FindByEPMCID(epmcID string) (*models.Paper, error) {
	return s.findBy("epmc_id", epmcID)
}

// FindByPMID sucht ein Paper über die PubMed-ID.
func (s *PaperStorage) FindByPMID(pmid string) (*models.Paper, error) {
	return s.findBy("pmid", pmid)
}

// FindByPMCID sucht ein Paper über die PubMed-Central-ID.
func (s *PaperStorage) FindByPMCID(pmcid string) (*models.Paper, error) {
	return s.findBy("pmcid", pmcid)
}

// FindByDOI sucht ein Paper über die DOI.
func (s *PaperStorage) FindByDOI(doi string) (*models.Paper, error) {
	return s.findBy("doi", doi)
}

// UpsertBatch schreibt einen Batch in genau einer Transaktion. Creates
// laufen als konflikttoleranter Bulk-Insert über den epmc_id-Schlüssel;
// bereits vorhandene Schlüssel werden verworfen und als Konflikt
// gemeldet (Erster gewinnt). Updates schreiben den kompletten Satz neu,
// inklusive neu berechnetem Score.
func (s *PaperStorage) UpsertBatch(items []ingest.BatchItem) (ingest.BatchResult, error) {
	var result ingest.BatchResult
	if len(items) == 0 {
		return result, nil
	}

	var creates []*models.Paper
	var updates []*models.Paper
	for _, item := range items {
		switch item.Action {
		case ingest.ActionCreate:
			creates = append(creates, item.Paper)
		case ingest.ActionUpdate:
			updates = append(updates, item.Paper)
		}
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if len(creates) > 0 {
			res := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "epmc_id"}},
				DoNothing: true,
			}).Create(&creates)
			if res.Error != nil {
				return fmt.Errorf("bulk-insert: %w", res.Error)
			}
			result.Created = res.RowsAffected
			result.Conflicts = int64(len(creates)) - res.RowsAffected
		}
		for _, paper := range updates {
			if err := tx.Save(paper).Error; err != nil {
				return fmt.Errorf("update epmc_id %s: %w", paper.EPMCID, err)
			}
			result.Updated++
		}
		return nil
	})
	if err != nil {
		return ingest.BatchResult{}, err
	}
	return result, nil
}
