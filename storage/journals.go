package storage

import (
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"ost-tracker/ingest"
	"ost-tracker/models"
)

// JournalStorage verwaltet das Journalregister.
type JournalStorage struct {
	db  *gorm.DB
	log *zap.Logger
}

// NewJournalStorage erstellt die Journal-Ablage.
func NewJournalStorage(db *gorm.DB, log *zap.Logger) *JournalStorage {
	return &JournalStorage{db: db, log: log}
}

// LoadAll lädt das komplette Register für den Aufbau des Journalindex.
func (s *JournalStorage) LoadAll() ([]models.Journal, error) {
	var journals []models.Journal
	if err := s.db.Find(&journals).Error; err != nil {
		return nil, fmt.Errorf("journalregister laden: %w", err)
	}
	return journals, nil
}

// CreateJournal legt ein Journal aus den Rohangaben einer Exportzeile
// an. Existiert bereits eines mit demselben vollen Titel, wird dieses
// zurückgegeben statt ein Duplikat zu erzeugen.
func (s *JournalStorage) CreateJournal(title, issn string) (*models.Journal, error) {
	var existing models.Journal
	err := s.db.Where("title_full = ?", title).First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	abbrev := title
	if r := []rune(abbrev); len(r) > 200 {
		abbrev = string(r[:200])
	}
	journal := models.Journal{
		TitleFull:         title,
		TitleAbbreviation: abbrev,
		ISSNElectronic:    issn,
	}
	if err := s.db.Create(&journal).Error; err != nil {
		return nil, err
	}
	return &journal, nil
}

// registryBatchSize für den Bulk-Import des NLM-Registers.
const registryBatchSize = 1000

// ImportRegistryCSV lädt das NLM-Journalregister aus einer CSV-Datei in
// die Datenbank. Vorhandene NLM-IDs bleiben unangetastet.
func (s *JournalStorage) ImportRegistryCSV(path string) (int64, error) {
	reader, err := ingest.NewTableReader(path, ingest.ReaderOptions{ChunkSize: registryBatchSize}, s.log)
	if err != nil {
		return 0, err
	}
	defer reader.Close()

	index := reader.Index()
	get := func(row []string, col string) string {
		if i, ok := index[col]; ok && i < len(row) {
			return ingest.CleanText(row[i], 0)
		}
		return ""
	}

	var imported int64
	for {
		chunk, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return imported, err
		}
		for _, rowErr := range chunk.Errors {
			s.log.Warn("Registerzeile nicht lesbar", zap.Int64("zeile", rowErr.Row), zap.Error(rowErr.Err))
		}

		batch := make([]models.Journal, 0, len(chunk.Rows))
		for _, row := range chunk.Rows {
			j := models.Journal{
				TitleAbbreviation: ingest.CleanText(get(row.Fields, "title_abbreviation"), 200),
				TitleFull:         get(row.Fields, "title_full"),
				ISSNPrint:         ingest.CleanISSN(get(row.Fields, "issn_print")),
				ISSNElectronic:    ingest.CleanISSN(get(row.Fields, "issn_electronic")),
				ISSNLinking:       ingest.CleanISSN(get(row.Fields, "issn_linking")),
				Publisher:         ingest.CleanText(get(row.Fields, "publisher"), 500),
				Country:           ingest.CleanText(get(row.Fields, "country"), 100),
				Language:          ingest.CleanText(get(row.Fields, "language"), 100),
				BroadSubjectTerms: get(row.Fields, "broad_subject_terms"),
			}
			if nlm := get(row.Fields, "nlm_id"); nlm != "" {
				j.NLMID = &nlm
			}
			if y, ok := ingest.CleanYear(get(row.Fields, "publication_start_year")); ok {
				j.PublicationStartYear = &y
			}
			if y, ok := ingest.CleanYear(get(row.Fields, "publication_end_year")); ok {
				j.PublicationEndYear = &y
			}
			// Abkürzung aus dem vollen Titel ableiten, wenn das Register
			// keine führt.
			if j.TitleAbbreviation == "" && j.TitleFull != "" {
				j.TitleAbbreviation = ingest.CleanText(j.TitleFull, 50)
			}
			if j.TitleAbbreviation == "" && j.TitleFull == "" {
				continue
			}
			batch = append(batch, j)
		}
		if len(batch) == 0 {
			continue
		}
		res := s.db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "nlm_id"}},
			DoNothing: true,
		}).Create(&batch)
		if res.Error != nil {
			return imported, fmt.Errorf("registerbatch schreiben: %w", res.Error)
		}
		imported += res.RowsAffected
	}

	s.log.Info("Journalregister importiert", zap.Int64("journals", imported))
	return imported, nil
}

// Backfill ergänzt beschreibende Felder eines Journals, überschreibt
// aber nie bereits belegte Werte.
func (s *JournalStorage) Backfill(id uint, src *models.Journal) error {
	var journal models.Journal
	if err := s.db.First(&journal, id).Error; err != nil {
		return err
	}

	changed := false
	fill := func(dst *string, val string) {
		if *dst == "" && val != "" {
			*dst = val
			changed = true
		}
	}
	fill(&journal.TitleFull, src.TitleFull)
	fill(&journal.ISSNPrint, src.ISSNPrint)
	fill(&journal.ISSNElectronic, src.ISSNElectronic)
	fill(&journal.ISSNLinking, src.ISSNLinking)
	fill(&journal.Publisher, src.Publisher)
	fill(&journal.Country, src.Country)
	fill(&journal.Language, src.Language)
	fill(&journal.BroadSubjectTerms, src.BroadSubjectTerms)
	if journal.NLMID == nil && src.NLMID != nil {
		journal.NLMID = src.NLMID
		changed = true
	}

	if !changed {
		return nil
	}
	return s.db.Save(&journal).Error
}
