package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/klauspost/pgzip"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"
)

// RowError beschreibt eine einzelne nicht verwertbare Zeile. Zeilenfehler
// brechen den Chunk nie ab, sie werden gezählt und gemeldet.
type RowError struct {
	Row int64
	Err error
}

func (e RowError) Error() string {
	return fmt.Sprintf("zeile %d: %v", e.Row, e.Err)
}

// Row ist eine Rohzeile mit ihrer 1-basierten Datenzeilennummer
// (Kopfzeile nicht mitgezählt).
type Row struct {
	Num    int64
	Fields []string
}

// Chunk fasst die Zeilen eines Lesefensters zusammen.
type Chunk struct {
	Rows   []Row
	Errors []RowError
}

// ReaderOptions steuern das Leseverhalten.
type ReaderOptions struct {
	ChunkSize int
	// SkipRows überspringt Datenzeilen nach der Kopfzeile, z.B. für die
	// Wiederaufnahme eines abgebrochenen Laufs.
	SkipRows int64
}

// TableReader liest Exporte zeilenweise in Chunks fester Größe, damit
// der Speicherbedarf unabhängig von der Dateigröße bleibt. Dateien mit
// Endung .gz werden transparent dekomprimiert.
type TableReader struct {
	file    *os.File
	gz      *pgzip.Reader
	csv     *csv.Reader
	opts    ReaderOptions
	header  []string
	index   map[string]int
	rowNum  int64
	latin1  int64
	skipped bool
	log     *zap.Logger
}

// NewTableReader öffnet die Exportdatei und liest die Kopfzeile. Eine
// unlesbare Datei oder eine leere Kopfzeile ist ein fataler Fehler.
func NewTableReader(path string, opts ReaderOptions, log *zap.Logger) (*TableReader, error) {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 1000
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("exportdatei öffnen: %w", err)
	}

	r := &TableReader{file: f, opts: opts, log: log}

	var src io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("gzip-strom öffnen: %w", err)
		}
		r.gz = gz
		src = gz
	}

	cr := csv.NewReader(src)
	cr.LazyQuotes = true
	cr.ReuseRecord = false
	r.csv = cr

	header, err := cr.Read()
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("kopfzeile lesen: %w", err)
	}
	// Ein BOM am Dateianfang hängt sonst am ersten Spaltennamen.
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	r.header = header
	r.index = make(map[string]int, len(header))
	for i, h := range header {
		r.index[strings.TrimSpace(h)] = i
	}
	// Zeilen mit abweichender Spaltenzahl sollen als Zeilenfehler
	// auftauchen, nicht den Lauf abbrechen.
	cr.FieldsPerRecord = -1
	return r, nil
}

// Header gibt die Spaltennamen der Kopfzeile zurück.
func (r *TableReader) Header() []string { return r.header }

// Index gibt die Zuordnung Spaltenname -> Position zurück.
func (r *TableReader) Index() map[string]int { return r.index }

// Latin1Rows zählt, wie viele Zeilen über den Latin-1-Fallback
// dekodiert wurden.
func (r *TableReader) Latin1Rows() int64 { return r.latin1 }

// Next liest den nächsten Chunk. io.EOF signalisiert das Dateiende;
// ein teilgefüllter letzter Chunk wird vor dem EOF noch ausgeliefert.
func (r *TableReader) Next() (*Chunk, error) {
	if !r.skipped && r.opts.SkipRows > 0 {
		if err := r.skip(r.opts.SkipRows); err != nil {
			return nil, err
		}
	}
	r.skipped = true

	chunk := &Chunk{Rows: make([]Row, 0, r.opts.ChunkSize)}
	for len(chunk.Rows) < r.opts.ChunkSize {
		fields, err := r.csv.Read()
		if errors.Is(err, io.EOF) {
			if len(chunk.Rows) > 0 || len(chunk.Errors) > 0 {
				return chunk, nil
			}
			return nil, io.EOF
		}
		r.rowNum++
		if err != nil {
			chunk.Errors = append(chunk.Errors, RowError{Row: r.rowNum, Err: err})
			continue
		}
		if len(fields) != len(r.header) {
			chunk.Errors = append(chunk.Errors, RowError{
				Row: r.rowNum,
				Err: fmt.Errorf("%d spalten statt %d", len(fields), len(r.header)),
			})
			continue
		}
		r.decodeRow(fields)
		chunk.Rows = append(chunk.Rows, Row{Num: r.rowNum, Fields: fields})
	}
	return chunk, nil
}

// decodeRow repariert Felder, die kein gültiges UTF-8 sind. Ältere
// Exporte sind Latin-1-kodiert; der Fallback wird gezählt und geloggt,
// niemals still angewandt.
func (r *TableReader) decodeRow(fields []string) {
	fixed := false
	for i, f := range fields {
		if utf8.ValidString(f) {
			continue
		}
		if dec, err := charmap.ISO8859_1.NewDecoder().String(f); err == nil {
			fields[i] = dec
			fixed = true
		}
	}
	if fixed {
		r.latin1++
		if r.latin1 == 1 {
			r.log.Warn("Export enthält Latin-1-kodierte Zeilen, Fallback-Dekodierung aktiv",
				zap.Int64("zeile", r.rowNum))
		}
	}
}

func (r *TableReader) skip(n int64) error {
	for i := int64(0); i < n; i++ {
		_, err := r.csv.Read()
		if errors.Is(err, io.EOF) {
			return io.EOF
		}
		r.rowNum++
		// Fehlerhafte Zeilen im Skip-Bereich wurden im Vorlauf bereits
		// gemeldet und zählen hier nur als übersprungen.
	}
	return nil
}

// Close gibt alle Ressourcen des Readers frei.
func (r *TableReader) Close() error {
	if r.gz != nil {
		r.gz.Close()
	}
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}
