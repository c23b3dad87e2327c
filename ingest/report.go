package ingest

import "sort"

// RunReport ist die Laufbilanz. Sie wird am Ende jedes Laufs ausgegeben,
// auch bei Abbruch, und als JSON am Importlauf persistiert.
type RunReport struct {
	Processed int64 `json:"processed"`
	Created   int64 `json:"created"`
	Updated   int64 `json:"updated"`
	Skipped   int64 `json:"skipped"`
	Errored   int64 `json:"errored"`

	JournalsMatched   int64 `json:"journals_matched"`
	JournalsCreated   int64 `json:"journals_created"`
	JournalsUnmatched int64 `json:"journals_unmatched"`
	Latin1Rows        int64 `json:"latin1_rows"`

	// UnmatchedJournals zählt pro Journaltitel, wie oft die Auflösung
	// scheiterte. Grundlage für die Registerpflege.
	UnmatchedJournals map[string]int64 `json:"unmatched_journals,omitempty"`

	ByStrategy map[MatchStrategy]int64 `json:"by_strategy,omitempty"`
}

// NewRunReport initialisiert eine leere Laufbilanz.
func NewRunReport() *RunReport {
	return &RunReport{
		UnmatchedJournals: make(map[string]int64),
		ByStrategy:        make(map[MatchStrategy]int64),
	}
}

// RecordUnmatched vermerkt einen nicht auflösbaren Journaltitel.
func (r *RunReport) RecordUnmatched(title string) {
	if title == "" {
		title = "(ohne titel)"
	}
	r.UnmatchedJournals[title]++
	r.JournalsUnmatched++
}

// UnmatchedEntry ist ein Eintrag der Häufigkeitstabelle.
type UnmatchedEntry struct {
	Title string `json:"title"`
	Count int64  `json:"count"`
}

// TopUnmatched liefert die n häufigsten unaufgelösten Journaltitel,
// absteigend nach Häufigkeit, bei Gleichstand alphabetisch.
func (r *RunReport) TopUnmatched(n int) []UnmatchedEntry {
	entries := make([]UnmatchedEntry, 0, len(r.UnmatchedJournals))
	for title, count := range r.UnmatchedJournals {
		entries = append(entries, UnmatchedEntry{Title: title, Count: count})
	}
	sort.Slice(entries, func(a, b int) bool {
		if entries[a].Count != entries[b].Count {
			return entries[a].Count > entries[b].Count
		}
		return entries[a].Title < entries[b].Title
	})
	if n > 0 && len(entries) > n {
		entries = entries[:n]
	}
	return entries
}
