package ingest

import (
	"strconv"
	"strings"
)

// nullTokens sind Platzhalterwerte, die CSV-Exporte für fehlende
// Felder verwenden. Sie werden überall als "leer" behandelt.
var nullTokens = map[string]bool{
	"":     true,
	"null": true,
	"none": true,
	"nan":  true,
	"n/a":  true,
}

// isNullToken prüft, ob ein Rohwert als fehlend gilt.
func isNullToken(s string) bool {
	return nullTokens[strings.ToLower(strings.TrimSpace(s))]
}

// CleanIdentifier bereinigt Identifier-Felder (PMID, PMCID, DOI).
// Platzhalterwerte werden zu einem Leerstring.
func CleanIdentifier(value string) string {
	value = strings.TrimSpace(value)
	if isNullToken(value) {
		return ""
	}
	return value
}

// CleanText bereinigt Textfelder und kürzt sie auf maxLen Zeichen.
// maxLen 0 bedeutet keine Begrenzung. Gekürzt wird nach Runen, damit
// kein ungültiges UTF-8 entsteht.
func CleanText(value string, maxLen int) string {
	value = strings.TrimSpace(value)
	if isNullToken(value) {
		return ""
	}
	if maxLen > 0 {
		if r := []rune(value); len(r) > maxLen {
			value = string(r[:maxLen])
		}
	}
	return value
}

// CleanBool interpretiert die Wahrheitswert-Schreibweisen der Exporte:
// true/1/yes/t/y (case-insensitiv) sowie das Y/N-Schema der
// EPMC-Metadatenspalten. Alles andere ist false.
func CleanBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes", "t", "y":
		return true
	}
	return false
}

// CleanInt parst Ganzzahlen, auch wenn der Export sie als Float
// serialisiert hat ("2021.0"). 0 bei nicht parsebaren Werten, ok
// signalisiert ob ein Wert vorhanden war.
func CleanInt(value string) (int, bool) {
	value = strings.TrimSpace(value)
	if isNullToken(value) {
		return 0, false
	}
	if n, err := strconv.Atoi(value); err == nil {
		return n, true
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return int(f), true
	}
	return 0, false
}

// CleanYear extrahiert ein plausibles Publikationsjahr (1800-2100).
// Die Exporte enthalten auch Bereiche ("2000 - 2004"), offene Angaben
// ("2000+") und Schranken ("<2000"); es zählen die ersten vier Ziffern.
func CleanYear(value string) (int, bool) {
	value = strings.TrimSpace(value)
	if isNullToken(value) {
		return 0, false
	}
	value = strings.TrimPrefix(value, "<")
	if len(value) < 4 {
		return 0, false
	}
	year, err := strconv.Atoi(value[:4])
	if err != nil {
		return 0, false
	}
	if year < 1800 || year > 2100 {
		return 0, false
	}
	return year, true
}

// CleanISSN normalisiert eine einzelne ISSN auf das Format NNNN-NNNN.
// Präfixe wie "issn:" werden entfernt, reine Ziffernfolgen mit acht
// Stellen neu formatiert. Überlange Werte werden deterministisch auf
// die Speicherbreite gekürzt, zu kurze ergeben einen Leerstring.
func CleanISSN(value string) string {
	value = strings.TrimSpace(value)
	if isNullToken(value) {
		return ""
	}
	lower := strings.ToLower(value)
	if strings.HasPrefix(lower, "issn:") {
		value = strings.TrimSpace(value[len("issn:"):])
	}
	var b strings.Builder
	for _, c := range strings.ToUpper(value) {
		if (c >= '0' && c <= '9') || c == 'X' {
			b.WriteRune(c)
		}
	}
	digits := b.String()
	if len(digits) < 8 {
		return ""
	}
	digits = digits[:8]
	return digits[:4] + "-" + digits[4:]
}

// SplitISSNField zerlegt ein Roh-ISSN-Feld, das mehrere Werte mit
// Semikolon, Komma oder Pipe trennen kann, in einzelne Kandidaten.
func SplitISSNField(value string) []string {
	value = strings.TrimSpace(value)
	if isNullToken(value) {
		return nil
	}
	parts := []string{value}
	for _, sep := range []string{";", ",", "|"} {
		if strings.Contains(value, sep) {
			parts = strings.Split(value, sep)
			break
		}
	}
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// titlePrefixes und titleSuffixes decken die häufigsten
// Benennungsvarianten zwischen Export und NLM-Register ab.
var (
	titlePrefixes = []string{"the ", "journal of ", "international "}
	titleSuffixes = []string{" journal", " magazine", " review"}
)

// NormalizeTitle bildet einen Journaltitel auf seine Vergleichsform ab:
// Kleinschreibung, ohne Randleerzeichen, ohne Schlusspunkt und ohne
// die generischen Präfixe/Suffixe.
func NormalizeTitle(title string) string {
	title = strings.ToLower(strings.TrimSpace(title))
	title = strings.TrimRight(title, ".")
	for _, p := range titlePrefixes {
		if strings.HasPrefix(title, p) {
			title = title[len(p):]
			break
		}
	}
	for _, s := range titleSuffixes {
		if strings.HasSuffix(title, s) {
			title = title[:len(title)-len(s)]
			break
		}
	}
	return strings.TrimSpace(title)
}
