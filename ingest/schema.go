package ingest

import (
	"fmt"
	"time"

	"github.com/araddon/dateparse"
)

// Format bezeichnet eines der drei historischen CSV-Layouts der
// rtransparent-Exporte.
type Format string

const (
	// FormatBasic: medicaltransparency_opendata.csv — schlanke Spalten
	// ohne EPMC-Metadaten.
	FormatBasic Format = "basic"
	// FormatEPMC: transparency_YYYY_MM.csv — volle EPMC-Metadaten mit
	// rt_all_-präfixierten Indikatorspalten.
	FormatEPMC Format = "epmc"
	// FormatComprehensive: indicators_all.csv — feingranulare
	// Indikatoren mit abweichenden Spaltennamen (pmcid_pmc, is_data_pred).
	FormatComprehensive Format = "comprehensive"
)

// Record ist die typisierte Form einer Exportzeile. Alle Feldbereinigung
// passiert beim Extrahieren; nachgelagerte Stufen sehen nur noch saubere
// Werte.
type Record struct {
	RowNum int64

	EPMCID string
	PMID   string
	PMCID  string
	DOI    string

	Title        string
	AuthorString string

	JournalTitle string
	JournalISSN  string

	PubYear              int
	FirstPublicationDate *time.Time

	BroadSubjectCategory string

	IsOpenData     bool
	IsOpenCode     bool
	IsCOIPred      bool
	IsFundPred     bool
	IsRegisterPred bool
	IsOpenAccess   bool
}

// Schema beschreibt, aus welchen Spalten eines Layouts die logischen
// Felder eines Records stammen. Pro Feld gilt der erste belegte
// Kandidat.
type Schema struct {
	Format   Format
	Required []string

	epmcID       []string
	pmid         []string
	pmcid        []string
	doi          []string
	title        []string
	authorString []string
	journalTitle []string
	journalISSN  []string
	pubYear      []string
	firstPubDate []string
	subject      []string

	openData     []string
	openCode     []string
	coiPred      []string
	fundPred     []string
	registerPred []string
	openAccess   []string
}

var schemas = map[Format]*Schema{
	FormatBasic: {
		Format:       FormatBasic,
		Required:     []string{"is_coi_pred"},
		pmid:         []string{"pmid"},
		pmcid:        []string{"pmcid"},
		doi:          []string{"doi"},
		title:        []string{"title"},
		authorString: []string{"authorString"},
		journalTitle: []string{"journalTitle"},
		journalISSN:  []string{"journalIssn"},
		pubYear:      []string{"pubYear"},
		firstPubDate: []string{"firstPublicationDate"},
		subject:      []string{"category"},
		openData:     []string{"is_open_data"},
		openCode:     []string{"is_open_code"},
		coiPred:      []string{"is_coi_pred"},
		fundPred:     []string{"is_fund_pred"},
		registerPred: []string{"is_register_pred"},
		openAccess:   []string{"isOpenAccess"},
	},
	FormatEPMC: {
		Format:       FormatEPMC,
		Required:     []string{"id", "rt_all_is_coi_pred"},
		epmcID:       []string{"id"},
		pmid:         []string{"pmid"},
		pmcid:        []string{"pmcid"},
		doi:          []string{"doi"},
		title:        []string{"title"},
		authorString: []string{"authorString"},
		journalTitle: []string{"journalTitle"},
		journalISSN:  []string{"journalIssn"},
		pubYear:      []string{"pubYear"},
		firstPubDate: []string{"firstPublicationDate"},
		subject:      []string{"category"},
		openData:     []string{"rt_data_is_open_data", "rt_all_is_open_data"},
		openCode:     []string{"rt_data_is_open_code", "rt_all_is_open_code"},
		coiPred:      []string{"rt_all_is_coi_pred"},
		fundPred:     []string{"rt_all_is_fund_pred"},
		registerPred: []string{"rt_all_is_register_pred"},
		openAccess:   []string{"isOpenAccess"},
	},
	FormatComprehensive: {
		Format:       FormatComprehensive,
		Required:     []string{"is_data_pred"},
		pmid:         []string{"pmid", "PMID"},
		pmcid:        []string{"pmcid_pmc", "pmcid", "PMCID"},
		doi:          []string{"doi", "DOI"},
		title:        []string{"title", "Title", "paper_title"},
		authorString: []string{"author", "authors", "authorString"},
		journalTitle: []string{"journal", "journalTitle"},
		journalISSN:  []string{"journalIssn", "issn"},
		pubYear:      []string{"year", "pub_year", "pubYear"},
		firstPubDate: []string{"firstPublicationDate"},
		subject:      []string{"field", "subject"},
		openData:     []string{"is_data_pred"},
		openCode:     []string{"is_code_pred"},
		coiPred:      []string{"is_coi_pred"},
		fundPred:     []string{"is_fund_pred"},
		registerPred: []string{"is_register_pred"},
		openAccess:   []string{"isOpenAccess"},
	},
}

// SchemaFor gibt den Spaltenbeschreiber für ein Layout zurück.
func SchemaFor(f Format) (*Schema, error) {
	s, ok := schemas[f]
	if !ok {
		return nil, fmt.Errorf("unbekanntes CSV-Format %q", f)
	}
	return s, nil
}

// DetectFormat erkennt das Layout anhand der Kopfzeile. Die Merkmale
// entsprechen den bekannten Exportvarianten; im Zweifel gilt das
// Basis-Layout.
func DetectFormat(header []string) Format {
	cols := make(map[string]bool, len(header))
	for _, h := range header {
		cols[h] = true
	}
	switch {
	case cols["pmcid_pmc"] && cols["is_data_pred"]:
		return FormatComprehensive
	case cols["rt_all_is_coi_pred"] && cols["inEPMC"]:
		return FormatEPMC
	default:
		return FormatBasic
	}
}

// Validate prüft, ob die Kopfzeile alle Pflichtspalten des Layouts
// enthält. Fehlende Pflichtspalten sind ein fataler Konfigurationsfehler.
func (s *Schema) Validate(header []string) error {
	cols := make(map[string]bool, len(header))
	for _, h := range header {
		cols[h] = true
	}
	for _, req := range s.Required {
		if !cols[req] {
			return fmt.Errorf("pflichtspalte %q fehlt im %s-Layout", req, s.Format)
		}
	}
	return nil
}

// Extract baut aus einer Rohzeile einen typisierten Record. row ist die
// Spaltenliste der CSV-Zeile, index die Zuordnung Spaltenname -> Position.
func (s *Schema) Extract(rowNum int64, row []string, index map[string]int) Record {
	get := func(candidates []string) string {
		for _, c := range candidates {
			if i, ok := index[c]; ok && i < len(row) {
				if v := CleanIdentifier(row[i]); v != "" {
					return v
				}
			}
		}
		return ""
	}

	rec := Record{
		RowNum:               rowNum,
		EPMCID:               get(s.epmcID),
		PMID:                 get(s.pmid),
		PMCID:                get(s.pmcid),
		DOI:                  get(s.doi),
		Title:                CleanText(get(s.title), 0),
		AuthorString:         CleanText(get(s.authorString), 0),
		JournalTitle:         CleanText(get(s.journalTitle), 200),
		JournalISSN:          CleanText(get(s.journalISSN), 20),
		BroadSubjectCategory: CleanText(get(s.subject), 200),
		IsOpenData:           CleanBool(get(s.openData)),
		IsOpenCode:           CleanBool(get(s.openCode)),
		IsCOIPred:            CleanBool(get(s.coiPred)),
		IsFundPred:           CleanBool(get(s.fundPred)),
		IsRegisterPred:       CleanBool(get(s.registerPred)),
		IsOpenAccess:         CleanBool(get(s.openAccess)),
	}

	if raw := get(s.firstPubDate); raw != "" {
		if t, err := dateparse.ParseAny(raw); err == nil {
			rec.FirstPublicationDate = &t
			rec.PubYear = t.Year()
		}
	}
	if rec.PubYear == 0 {
		if y, ok := CleanYear(get(s.pubYear)); ok {
			rec.PubYear = y
		}
	}
	return rec
}
