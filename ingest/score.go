package ingest

import "math"

// Scorer berechnet den zusammengesetzten Transparenz-Score. Open Access
// zählt konfigurierbar als sechster Kernindikator mit; die Prozentbasis
// folgt der Indikatorzahl.
type Scorer struct {
	includeOpenAccess bool
}

// NewScorer erzeugt einen Scorer mit fixer Indikatorbasis für den Lauf.
func NewScorer(includeOpenAccess bool) *Scorer {
	return &Scorer{includeOpenAccess: includeOpenAccess}
}

// Indicators gibt die Prozentbasis N zurück (5 oder 6).
func (s *Scorer) Indicators() int {
	if s.includeOpenAccess {
		return 6
	}
	return 5
}

// Score zählt die erfüllten Indikatoren und liefert den Anteil in
// Prozent, gerundet auf eine Nachkommastelle. Der Score wird bei jedem
// Schreibvorgang neu berechnet und nie aus der Quelldatei übernommen.
func (s *Scorer) Score(rec *Record) (int, float64) {
	count := 0
	for _, set := range []bool{rec.IsOpenData, rec.IsOpenCode, rec.IsCOIPred, rec.IsFundPred, rec.IsRegisterPred} {
		if set {
			count++
		}
	}
	if s.includeOpenAccess && rec.IsOpenAccess {
		count++
	}
	pct := math.Round(float64(count)/float64(s.Indicators())*1000) / 10
	return count, pct
}
