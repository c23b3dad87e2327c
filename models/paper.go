package models

import (
	"time"
)

// Paper repräsentiert eine wissenschaftliche Studie samt ihrer
// Transparenz-Indikatoren aus einem rtransparent-Export.
type Paper struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Primärer externer Identifier: PMID > PMCID > DOI-Schlüssel > Fallback.
	// Die Eindeutigkeit wird zusätzlich vom Deduplicator erzwungen, weil
	// die Identifier-Wahl von Zeile zu Zeile variiert.
	EPMCID string `json:"epmc_id" gorm:"column:epmc_id;size:220;uniqueIndex;not null"`

	PMID  string `json:"pmid,omitempty" gorm:"column:pmid;size:20;index"`
	PMCID string `json:"pmcid,omitempty" gorm:"column:pmcid;size:20;index"`
	DOI   string `json:"doi,omitempty" gorm:"column:doi;size:200;index"`

	Title        string `json:"title" gorm:"type:text"`
	AuthorString string `json:"author_string,omitempty" gorm:"type:text"`

	// Schwache Referenz auf das Register; NULL wenn keine Auflösung möglich
	// war und Auto-Create deaktiviert ist.
	JournalID    *uint  `json:"journal_id,omitempty" gorm:"index"`
	JournalTitle string `json:"journal_title,omitempty" gorm:"size:200;index"`
	JournalISSN  string `json:"journal_issn,omitempty" gorm:"column:journal_issn;size:20"`

	PubYear              int        `json:"pub_year,omitempty" gorm:"index"`
	FirstPublicationDate *time.Time `json:"first_publication_date,omitempty"`

	BroadSubjectCategory string `json:"broad_subject_category,omitempty" gorm:"size:200;index"`

	// Transparenz-Indikatoren (rtransparent-Vorhersagen + Open Access)
	IsOpenData     bool `json:"is_open_data" gorm:"index"`
	IsOpenCode     bool `json:"is_open_code" gorm:"index"`
	IsCOIPred      bool `json:"is_coi_pred" gorm:"column:is_coi_pred"`
	IsFundPred     bool `json:"is_fund_pred" gorm:"column:is_fund_pred"`
	IsRegisterPred bool `json:"is_register_pred" gorm:"column:is_register_pred"`
	IsOpenAccess   bool `json:"is_open_access"`

	// Abgeleitete Werte; werden bei jedem Schreibvorgang aus den
	// Indikatoren neu berechnet und nie aus der Quelle übernommen.
	TransparencyScore    int     `json:"transparency_score" gorm:"index"`
	TransparencyScorePct float64 `json:"transparency_score_pct"`

	AssessmentTool string `json:"assessment_tool,omitempty" gorm:"size:50;default:'rtransparent'"`
}

// Identifiers fasst alle Nachschlage-Schlüssel des Papers zusammen.
func (p *Paper) Identifiers() map[string]string {
	ids := map[string]string{}
	if p.EPMCID != "" {
		ids["epmc_id"] = p.EPMCID
	}
	if p.PMID != "" {
		ids["pmid"] = p.PMID
	}
	if p.PMCID != "" {
		ids["pmcid"] = p.PMCID
	}
	if p.DOI != "" {
		ids["doi"] = p.DOI
	}
	return ids
}
