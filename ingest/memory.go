package ingest

import "ost-tracker/models"

// MemoryJournalCreator legt Journale nur im Speicher an. Wird im
// Dry-Run verwendet, damit die Auflösungskette samt Neuanlage
// durchlaufen werden kann, ohne die Datenbank zu berühren.
type MemoryJournalCreator struct {
	nextID  uint
	Created []*models.Journal
}

// NewMemoryJournalCreator startet die IDs oberhalb des echten Bestands,
// damit sie nicht mit Register-IDs kollidieren.
func NewMemoryJournalCreator(startID uint) *MemoryJournalCreator {
	return &MemoryJournalCreator{nextID: startID + 1}
}

// CreateJournal erzeugt ein flüchtiges Journal mit fortlaufender ID.
func (c *MemoryJournalCreator) CreateJournal(title, issn string) (*models.Journal, error) {
	j := &models.Journal{
		ID:                c.nextID,
		TitleFull:         title,
		TitleAbbreviation: CleanText(title, 200),
		ISSNElectronic:    issn,
	}
	c.nextID++
	c.Created = append(c.Created, j)
	return j, nil
}
