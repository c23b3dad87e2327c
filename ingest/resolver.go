package ingest

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"ost-tracker/models"
)

// MatchStrategy benennt die Stufe der Auflösungskette, die ein Journal
// gefunden hat.
type MatchStrategy string

const (
	MatchNLM       MatchStrategy = "nlm_id"
	MatchISSN      MatchStrategy = "issn"
	MatchTitle     MatchStrategy = "title_exact"
	MatchSubstring MatchStrategy = "title_substring"
	MatchCreated   MatchStrategy = "created"
	MatchNone      MatchStrategy = "none"
)

// JournalCreator legt bei Bedarf ein neues Journal an. Im Dry-Run steckt
// dahinter eine reine In-Memory-Implementierung.
type JournalCreator interface {
	CreateJournal(title, issn string) (*models.Journal, error)
}

type titleEntry struct {
	norm string
	id   uint
}

// JournalIndex ist das einmal pro Lauf aufgebaute Nachschlagewerk über
// das Journalregister. Die Schlüssel sind typisiert (nlm:, issn:,
// title:), damit sich die Namensräume nicht gegenseitig überschreiben.
type JournalIndex struct {
	keys map[string]uint
	// titles ist nach Normalform sortiert, damit die Substring-Suche
	// bei mehreren Treffern deterministisch denselben wählt.
	titles     []titleEntry
	Collisions int
	log        *zap.Logger
}

// NewJournalIndex baut den Index aus dem vollständigen Register auf.
// Bei Schlüsselkollisionen gewinnt der zuerst indexierte Eintrag; die
// Kollision wird gezählt.
func NewJournalIndex(journals []models.Journal, log *zap.Logger) *JournalIndex {
	idx := &JournalIndex{
		keys: make(map[string]uint, len(journals)*4),
		log:  log,
	}
	for i := range journals {
		idx.add(&journals[i])
	}
	sort.Slice(idx.titles, func(a, b int) bool {
		if idx.titles[a].norm != idx.titles[b].norm {
			return idx.titles[a].norm < idx.titles[b].norm
		}
		return idx.titles[a].id < idx.titles[b].id
	})
	log.Info("Journalindex aufgebaut",
		zap.Int("journals", len(journals)),
		zap.Int("schluessel", len(idx.keys)),
		zap.Int("kollisionen", idx.Collisions))
	return idx
}

func (idx *JournalIndex) add(j *models.Journal) {
	if j.NLMID != nil && *j.NLMID != "" {
		idx.set("nlm:"+*j.NLMID, j.ID)
	}
	for _, issn := range j.ISSNVariants() {
		if clean := CleanISSN(issn); clean != "" {
			idx.set("issn:"+clean, j.ID)
		}
	}
	for _, title := range []string{j.TitleAbbreviation, j.TitleFull} {
		if norm := NormalizeTitle(title); norm != "" {
			if idx.set("title:"+norm, j.ID) {
				idx.titles = append(idx.titles, titleEntry{norm: norm, id: j.ID})
			}
		}
	}
}

// set trägt einen Schlüssel ein; false bei Kollision (Erster gewinnt).
func (idx *JournalIndex) set(key string, id uint) bool {
	if prev, ok := idx.keys[key]; ok {
		if prev != id {
			idx.Collisions++
		}
		return false
	}
	idx.keys[key] = id
	return true
}

// Insert nimmt ein nachträglich angelegtes Journal in den Index auf,
// damit Folgezeilen desselben Laufs es wiederfinden.
func (idx *JournalIndex) Insert(j *models.Journal) {
	before := len(idx.titles)
	idx.add(j)
	if len(idx.titles) > before {
		sort.Slice(idx.titles, func(a, b int) bool {
			if idx.titles[a].norm != idx.titles[b].norm {
				return idx.titles[a].norm < idx.titles[b].norm
			}
			return idx.titles[a].id < idx.titles[b].id
		})
	}
}

// lookupSubstring sucht den ersten Indextitel (in Sortierordnung), der
// den Suchtitel enthält oder in ihm enthalten ist. Kurze Normalformen
// werden übersprungen, weil sie zu viele Scheintreffer erzeugen.
const minSubstringLen = 10

func (idx *JournalIndex) lookupSubstring(norm string) (uint, bool) {
	if len(norm) < minSubstringLen {
		return 0, false
	}
	for _, e := range idx.titles {
		if len(e.norm) < minSubstringLen {
			continue
		}
		if strings.Contains(e.norm, norm) || strings.Contains(norm, e.norm) {
			return e.id, true
		}
	}
	return 0, false
}

// Resolver löst Journalangaben einer Exportzeile gegen den Index auf.
type Resolver struct {
	idx     *JournalIndex
	creator JournalCreator
	// create steuert, ob unaufgelöste Journale neu angelegt werden.
	create bool
	log    *zap.Logger
}

// NewResolver verdrahtet Index und optionalen Creator.
func NewResolver(idx *JournalIndex, creator JournalCreator, create bool, log *zap.Logger) *Resolver {
	return &Resolver{idx: idx, creator: creator, create: create, log: log}
}

// Resolve durchläuft die Auflösungskette: NLM-ID, ISSN-Varianten,
// exakter Titel, Titel-Substring, optional Neuanlage. Kein Treffer
// liefert (nil, MatchNone) — es gibt bewusst kein stilles Default-Journal.
func (r *Resolver) Resolve(nlmID, title, issnField string) (*uint, MatchStrategy, error) {
	if nlmID != "" {
		if id, ok := r.idx.keys["nlm:"+nlmID]; ok {
			return &id, MatchNLM, nil
		}
	}

	for _, raw := range SplitISSNField(issnField) {
		if clean := CleanISSN(raw); clean != "" {
			if id, ok := r.idx.keys["issn:"+clean]; ok {
				return &id, MatchISSN, nil
			}
		}
	}

	norm := NormalizeTitle(title)
	if norm != "" {
		if id, ok := r.idx.keys["title:"+norm]; ok {
			return &id, MatchTitle, nil
		}
		if id, ok := r.idx.lookupSubstring(norm); ok {
			return &id, MatchSubstring, nil
		}
	}

	if r.create && title != "" {
		issn := ""
		if parts := SplitISSNField(issnField); len(parts) > 0 {
			issn = CleanISSN(parts[0])
		}
		j, err := r.creator.CreateJournal(title, issn)
		if err != nil {
			return nil, MatchNone, fmt.Errorf("journal %q anlegen: %w", title, err)
		}
		r.idx.Insert(j)
		id := j.ID
		return &id, MatchCreated, nil
	}

	return nil, MatchNone, nil
}
