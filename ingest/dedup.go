package ingest

import (
	"fmt"
	"hash/fnv"
	"strconv"

	"go.uber.org/zap"

	"ost-tracker/models"
)

// Action ist die Dedup-Entscheidung für eine Zeile.
type Action int

const (
	ActionCreate Action = iota
	ActionUpdate
	ActionSkip
)

func (a Action) String() string {
	switch a {
	case ActionCreate:
		return "create"
	case ActionUpdate:
		return "update"
	default:
		return "skip"
	}
}

// Decision trägt die Entscheidung samt dem bestehenden Datensatz bei
// einem Update.
type Decision struct {
	Action   Action
	EPMCID   string
	Existing *models.Paper
	// MatchedBy nennt den Identifier, über den der Bestand gefunden wurde.
	MatchedBy string
}

// PaperLookup ist die Leseseite des Bestands, gegen die dedupliziert
// wird. Nil-Paper ohne Fehler bedeutet: kein Treffer.
type PaperLookup interface {
	FindByEPMCID(epmcID string) (*models.Paper, error)
	FindByPMID(pmid string) (*models.Paper, error)
	FindByPMCID(pmcid string) (*models.Paper, error)
	FindByDOI(doi string) (*models.Paper, error)
}

// PreferredEPMCID wählt den primären externen Identifier einer Zeile:
// PMID vor PMCID vor DOI-Schlüssel. Zeilen ganz ohne Identifier bekommen
// einen deterministischen Ersatzschlüssel aus den stabilen Feldern,
// damit Wiederholungsläufe idempotent bleiben.
func PreferredEPMCID(rec *Record) string {
	switch {
	case rec.EPMCID != "":
		return rec.EPMCID
	case rec.PMID != "":
		return rec.PMID
	case rec.PMCID != "":
		return rec.PMCID
	case rec.DOI != "":
		return "DOI_" + rec.DOI
	}
	h := fnv.New64a()
	h.Write([]byte(rec.Title))
	h.Write([]byte{0})
	h.Write([]byte(rec.JournalTitle))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(rec.PubYear)))
	return fmt.Sprintf("UNK_%016x", h.Sum64())
}

// Deduplicator entscheidet pro Zeile zwischen Create, Update und Skip.
// Er kombiniert den Bestand in der Datenbank mit einem In-Run-Gedächtnis
// für Duplikate innerhalb derselben Datei.
type Deduplicator struct {
	store          PaperLookup
	updateExisting bool
	seen           map[string]bool
	log            *zap.Logger
}

// NewDeduplicator initialisiert den Deduplicator für einen Lauf.
func NewDeduplicator(store PaperLookup, updateExisting bool, log *zap.Logger) *Deduplicator {
	return &Deduplicator{
		store:          store,
		updateExisting: updateExisting,
		seen:           make(map[string]bool),
		log:            log,
	}
}

// seenKeys liefert alle Identifier-Schlüssel einer Zeile für das
// In-Run-Gedächtnis.
func seenKeys(rec *Record, epmcID string) []string {
	keys := []string{"epmc:" + epmcID}
	if rec.PMID != "" {
		keys = append(keys, "pmid:"+rec.PMID)
	}
	if rec.PMCID != "" {
		keys = append(keys, "pmcid:"+rec.PMCID)
	}
	if rec.DOI != "" {
		keys = append(keys, "doi:"+rec.DOI)
	}
	return keys
}

// ShouldProcess prüft eine Zeile gegen In-Run-Gedächtnis und Bestand.
// Die Nachschlagepriorität ist epmc_id, pmid, pmcid, doi; bei
// widersprüchlichen Treffern gewinnt der ranghöchste Identifier und der
// Konflikt wird geloggt. Wiederholte Sichtungen innerhalb eines Laufs
// werden immer übersprungen, die erste Fassung gewinnt. Ins Gedächtnis
// aufgenommen wird eine Zeile erst durch MarkSeen, damit fehlgeschlagene
// Zeilen bei einer späteren Sichtung erneut verarbeitet werden können.
func (d *Deduplicator) ShouldProcess(rec *Record) (Decision, error) {
	epmcID := PreferredEPMCID(rec)

	for _, k := range seenKeys(rec, epmcID) {
		if d.seen[k] {
			return Decision{Action: ActionSkip, EPMCID: epmcID, MatchedBy: k}, nil
		}
	}

	existing, matchedBy, err := d.lookup(rec, epmcID)
	if err != nil {
		return Decision{}, err
	}
	if existing == nil {
		return Decision{Action: ActionCreate, EPMCID: epmcID}, nil
	}
	if d.updateExisting {
		return Decision{Action: ActionUpdate, EPMCID: epmcID, Existing: existing, MatchedBy: matchedBy}, nil
	}
	return Decision{Action: ActionSkip, EPMCID: epmcID, Existing: existing, MatchedBy: matchedBy}, nil
}

// MarkSeen nimmt alle Identifier einer Zeile ins In-Run-Gedächtnis auf.
// Der Aufruf gehört an die Stelle, an der die Zeile tatsächlich in einen
// Batch übernommen wird.
func (d *Deduplicator) MarkSeen(rec *Record, epmcID string) {
	for _, k := range seenKeys(rec, epmcID) {
		d.seen[k] = true
	}
}

func (d *Deduplicator) lookup(rec *Record, epmcID string) (*models.Paper, string, error) {
	type source struct {
		name string
		val  string
		fn   func(string) (*models.Paper, error)
	}
	sources := []source{
		{"epmc_id", epmcID, d.store.FindByEPMCID},
		{"pmid", rec.PMID, d.store.FindByPMID},
		{"pmcid", rec.PMCID, d.store.FindByPMCID},
		{"doi", rec.DOI, d.store.FindByDOI},
	}

	var first *models.Paper
	var firstBy string
	for _, p := range sources {
		if p.val == "" {
			continue
		}
		found, err := p.fn(p.val)
		if err != nil {
			return nil, "", fmt.Errorf("bestandssuche über %s: %w", p.name, err)
		}
		if found == nil {
			continue
		}
		if first == nil {
			first = found
			firstBy = p.name
			continue
		}
		if found.ID != first.ID {
			// Widersprüchliche Identifier verweisen auf verschiedene
			// Bestandssätze; der ranghöhere Treffer bleibt maßgeblich.
			d.log.Warn("Identifier-Konflikt im Bestand",
				zap.String("epmc_id", epmcID),
				zap.String("treffer", firstBy),
				zap.String("konflikt", p.name),
				zap.Uint("bestand_id", first.ID),
				zap.Uint("konflikt_id", found.ID))
			break
		}
	}
	return first, firstBy, nil
}
