package models

import (
	"strings"
	"time"
)

// Journal repräsentiert eine Zeitschrift aus dem kanonischen NLM-Register.
type Journal struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Stabiler Register-Identifier; kann fehlen (z.B. bei nachträglich
	// angelegten Journals). NULL-Werte kollidieren nicht im Unique-Index.
	NLMID *string `json:"nlm_id,omitempty" gorm:"column:nlm_id;size:50;uniqueIndex"`

	TitleAbbreviation string `json:"title_abbreviation" gorm:"size:200;index"`
	TitleFull         string `json:"title_full" gorm:"type:text"`

	// ISSN-Varianten (Print/Elektronisch/Linking); keine davon ist
	// registerweit garantiert eindeutig.
	ISSNPrint      string `json:"issn_print,omitempty" gorm:"column:issn_print;size:9"`
	ISSNElectronic string `json:"issn_electronic,omitempty" gorm:"column:issn_electronic;size:9"`
	ISSNLinking    string `json:"issn_linking,omitempty" gorm:"column:issn_linking;size:9"`

	Publisher string `json:"publisher,omitempty" gorm:"size:500;index"`
	Country   string `json:"country,omitempty" gorm:"size:100;index"`
	Language  string `json:"language,omitempty" gorm:"size:100"`

	// Semikolon-getrennte Fachgebietsliste aus dem NLM-Register.
	BroadSubjectTerms string `json:"broad_subject_terms,omitempty" gorm:"type:text"`

	PublicationStartYear *int `json:"publication_start_year,omitempty"`
	PublicationEndYear   *int `json:"publication_end_year,omitempty"`
}

// PrimarySubjectTerm gibt das erste Fachgebiet der Semikolon-Liste zurück.
func (j *Journal) PrimarySubjectTerm() string {
	term, _, _ := strings.Cut(j.BroadSubjectTerms, ";")
	return strings.TrimSpace(term)
}

// ISSNVariants liefert alle gesetzten ISSN-Werte des Journals.
func (j *Journal) ISSNVariants() []string {
	var out []string
	for _, v := range []string{j.ISSNPrint, j.ISSNElectronic, j.ISSNLinking} {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
