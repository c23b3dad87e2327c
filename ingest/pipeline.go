package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"ost-tracker/models"
)

// BatchItem ist ein Schreibauftrag für die Upsert-Engine.
type BatchItem struct {
	Action Action
	Paper  *models.Paper
}

// BatchResult meldet die tatsächlichen Schreibzahlen eines Batches.
// Conflicts zählt Creates, die wegen eines bereits vorhandenen
// epmc_id-Schlüssels verworfen wurden.
type BatchResult struct {
	Created   int64
	Updated   int64
	Conflicts int64
}

// PaperStore ist die Schreib- und Leseseite des Paper-Bestands.
type PaperStore interface {
	PaperLookup
	// UpsertBatch schreibt einen Batch in genau einer Transaktion.
	// Schlägt die Transaktion fehl, ist kein Teil des Batches persistiert.
	UpsertBatch(items []BatchItem) (BatchResult, error)
}

// RunStore persistiert den Importlauf für Protokoll und Wiederaufnahme.
type RunStore interface {
	Begin(run *models.ImportRun) error
	Checkpoint(run *models.ImportRun) error
	Finish(run *models.ImportRun) error
}

// Options bündelt die Laufparameter des Imports.
type Options struct {
	ChunkSize    int
	BatchSize    int
	MinBatchSize int
	RowLimit     int64
	SkipRows     int64

	DryRun         bool
	UpdateExisting bool
	RequireJournal bool

	// Format "auto" aktiviert die Erkennung anhand der Kopfzeile.
	Format        string
	MemoryLimitMB int
}

// Pipeline verdrahtet Reader, Normalisierung, Journalauflösung,
// Deduplizierung, Scoring und Upsert zu einem sequenziellen Lauf.
// Es läuft bewusst genau ein Lauf zur Zeit; die Chunks werden strikt
// nacheinander verarbeitet.
type Pipeline struct {
	store    PaperStore
	runs     RunStore
	resolver *Resolver
	scorer   *Scorer
	opts     Options
	log      *zap.Logger
}

// NewPipeline baut eine Pipeline aus den fertig konfigurierten Stufen.
func NewPipeline(store PaperStore, runs RunStore, resolver *Resolver, scorer *Scorer, opts Options, log *zap.Logger) *Pipeline {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 500
	}
	if opts.MinBatchSize <= 0 {
		opts.MinBatchSize = 50
	}
	return &Pipeline{
		store:    store,
		runs:     runs,
		resolver: resolver,
		scorer:   scorer,
		opts:     opts,
		log:      log,
	}
}

// Run verarbeitet die Exportdatei unter path vollständig. Die Laufbilanz
// wird immer zurückgegeben, auch wenn der Lauf mit Fehler abbricht.
func (p *Pipeline) Run(path string) (*RunReport, error) {
	report := NewRunReport()

	reader, err := NewTableReader(path, ReaderOptions{
		ChunkSize: p.opts.ChunkSize,
		SkipRows:  p.opts.SkipRows,
	}, p.log)
	if err != nil {
		return report, err
	}
	defer reader.Close()

	schema, err := p.resolveSchema(reader.Header())
	if err != nil {
		return report, err
	}

	run := &models.ImportRun{
		RunID:      uuid.NewString(),
		SourceFile: path,
		Format:     string(schema.Format),
		Status:     models.RunStatusRunning,
		DryRun:     p.opts.DryRun,
	}
	if err := p.beginRun(run); err != nil {
		return report, err
	}

	p.log.Info("Importlauf gestartet",
		zap.String("run_id", run.RunID),
		zap.String("datei", path),
		zap.String("format", string(schema.Format)),
		zap.Bool("dry_run", p.opts.DryRun),
		zap.Int64("skip_rows", p.opts.SkipRows))

	runErr := p.process(reader, schema, run, report)

	report.Latin1Rows = reader.Latin1Rows()
	p.finishRun(run, report, runErr)
	p.logSummary(run, report, runErr)
	return report, runErr
}

func (p *Pipeline) resolveSchema(header []string) (*Schema, error) {
	format := Format(p.opts.Format)
	if p.opts.Format == "" || p.opts.Format == "auto" {
		format = DetectFormat(header)
	}
	schema, err := SchemaFor(format)
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(header); err != nil {
		return nil, err
	}
	return schema, nil
}

func (p *Pipeline) process(reader *TableReader, schema *Schema, run *models.ImportRun, report *RunReport) error {
	dedup := NewDeduplicator(p.store, p.opts.UpdateExisting, p.log)
	guard := NewResourceGuard(p.opts.MemoryLimitMB, p.opts.MinBatchSize, p.log)

	batchSize := p.opts.BatchSize
	var batch []BatchItem
	var batchLastRow int64

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if !p.opts.DryRun {
			res, err := p.store.UpsertBatch(batch)
			if err != nil {
				return fmt.Errorf("batch bis zeile %d schreiben: %w", batchLastRow, err)
			}
			// Verworfene Creates waren in-batch- oder laufübergreifende
			// Duplikate und zählen als übersprungen.
			report.Created += res.Created
			report.Updated += res.Updated
			report.Skipped += res.Conflicts
			createdCounter.Add(float64(res.Created))
			updatedCounter.Add(float64(res.Updated))
			skippedCounter.Add(float64(res.Conflicts))
		} else {
			for _, item := range batch {
				if item.Action == ActionCreate {
					report.Created++
				} else {
					report.Updated++
				}
			}
		}
		// Die Zeilennummern des Readers zählen ab Dateianfang, auch über
		// übersprungene Zeilen hinweg.
		run.LastCommittedRow = batchLastRow
		p.syncRunCounts(run, report)
		if err := p.checkpointRun(run); err != nil {
			return err
		}
		batch = batch[:0]
		return nil
	}

	for {
		chunk, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}

		for _, rowErr := range chunk.Errors {
			report.Errored++
			erroredCounter.Inc()
			p.log.Warn("Zeile nicht lesbar", zap.Int64("zeile", rowErr.Row), zap.Error(rowErr.Err))
		}

		for i := range chunk.Rows {
			row := &chunk.Rows[i]
			if p.opts.RowLimit > 0 && report.Processed >= p.opts.RowLimit {
				return flush()
			}
			report.Processed++
			processedCounter.Inc()

			rec := schema.Extract(row.Num, row.Fields, reader.Index())
			item, ok := p.processRecord(&rec, dedup, report)
			if !ok {
				continue
			}
			batch = append(batch, item)
			batchLastRow = row.Num
			if len(batch) >= batchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}

		batchSize = guard.CheckAfterChunk(batchSize)
	}

	return flush()
}

// processRecord führt Dedup, Journalauflösung und Scoring für eine
// Zeile aus. ok ist false, wenn die Zeile nicht in den Batch gehört.
func (p *Pipeline) processRecord(rec *Record, dedup *Deduplicator, report *RunReport) (BatchItem, bool) {
	decision, err := dedup.ShouldProcess(rec)
	if err != nil {
		report.Errored++
		erroredCounter.Inc()
		p.log.Warn("Deduplizierung fehlgeschlagen", zap.Int64("zeile", rec.RowNum), zap.Error(err))
		return BatchItem{}, false
	}
	if decision.Action == ActionSkip {
		report.Skipped++
		skippedCounter.Inc()
		return BatchItem{}, false
	}

	journalID, strategy, err := p.resolver.Resolve("", rec.JournalTitle, rec.JournalISSN)
	if err != nil {
		report.Errored++
		erroredCounter.Inc()
		p.log.Warn("Journalauflösung fehlgeschlagen", zap.Int64("zeile", rec.RowNum), zap.Error(err))
		return BatchItem{}, false
	}
	report.ByStrategy[strategy]++
	switch strategy {
	case MatchNone:
		report.RecordUnmatched(rec.JournalTitle)
		unmatchedCounter.Inc()
		if p.opts.RequireJournal {
			report.Skipped++
			skippedCounter.Inc()
			return BatchItem{}, false
		}
	case MatchCreated:
		report.JournalsCreated++
		report.JournalsMatched++
	default:
		report.JournalsMatched++
	}

	score, pct := p.scorer.Score(rec)

	var paper *models.Paper
	if decision.Action == ActionUpdate {
		paper = decision.Existing
	} else {
		paper = &models.Paper{}
	}
	paper.EPMCID = decision.EPMCID
	paper.PMID = rec.PMID
	paper.PMCID = rec.PMCID
	paper.DOI = rec.DOI
	paper.Title = rec.Title
	paper.AuthorString = rec.AuthorString
	paper.JournalID = journalID
	paper.JournalTitle = rec.JournalTitle
	paper.JournalISSN = rec.JournalISSN
	paper.PubYear = rec.PubYear
	paper.FirstPublicationDate = rec.FirstPublicationDate
	paper.BroadSubjectCategory = rec.BroadSubjectCategory
	paper.IsOpenData = rec.IsOpenData
	paper.IsOpenCode = rec.IsOpenCode
	paper.IsCOIPred = rec.IsCOIPred
	paper.IsFundPred = rec.IsFundPred
	paper.IsRegisterPred = rec.IsRegisterPred
	paper.IsOpenAccess = rec.IsOpenAccess
	paper.TransparencyScore = score
	paper.TransparencyScorePct = pct
	paper.AssessmentTool = "rtransparent"

	// Erst jetzt steht fest, dass die Zeile in den Batch übernommen wird;
	// vorher gescheiterte Zeilen bleiben für spätere Sichtungen offen.
	dedup.MarkSeen(rec, decision.EPMCID)
	return BatchItem{Action: decision.Action, Paper: paper}, true
}

func (p *Pipeline) syncRunCounts(run *models.ImportRun, report *RunReport) {
	run.Processed = report.Processed
	run.Created = report.Created
	run.Updated = report.Updated
	run.Skipped = report.Skipped
	run.Errored = report.Errored
}

func (p *Pipeline) beginRun(run *models.ImportRun) error {
	if p.opts.DryRun {
		return nil
	}
	if err := p.runs.Begin(run); err != nil {
		return fmt.Errorf("importlauf anlegen: %w", err)
	}
	return nil
}

func (p *Pipeline) checkpointRun(run *models.ImportRun) error {
	if p.opts.DryRun {
		return nil
	}
	if err := p.runs.Checkpoint(run); err != nil {
		return fmt.Errorf("importlauf fortschreiben: %w", err)
	}
	return nil
}

func (p *Pipeline) finishRun(run *models.ImportRun, report *RunReport, runErr error) {
	run.Status = models.RunStatusFinished
	if runErr != nil {
		run.Status = models.RunStatusAborted
	}
	now := time.Now()
	run.FinishedAt = &now
	p.syncRunCounts(run, report)
	if raw, err := json.Marshal(report); err == nil {
		run.Report = datatypes.JSON(raw)
	}
	if p.opts.DryRun {
		return
	}
	if err := p.runs.Finish(run); err != nil {
		p.log.Error("Importlauf konnte nicht abgeschlossen werden", zap.Error(err))
	}
}

// logSummary gibt die Laufbilanz aus. Sie erscheint bei jedem Lauf,
// auch nach einem Abbruch.
func (p *Pipeline) logSummary(run *models.ImportRun, report *RunReport, runErr error) {
	fields := []zap.Field{
		zap.String("run_id", run.RunID),
		zap.String("status", run.Status),
		zap.Int64("verarbeitet", report.Processed),
		zap.Int64("angelegt", report.Created),
		zap.Int64("aktualisiert", report.Updated),
		zap.Int64("uebersprungen", report.Skipped),
		zap.Int64("fehler", report.Errored),
		zap.Int64("journals_ohne_treffer", report.JournalsUnmatched),
		zap.Int64("journals_angelegt", report.JournalsCreated),
		zap.Int64("latin1_zeilen", report.Latin1Rows),
		zap.Int64("letzte_committete_zeile", run.LastCommittedRow),
	}
	if runErr != nil {
		fields = append(fields, zap.Error(runErr))
		p.log.Error("Importlauf abgebrochen", fields...)
	} else {
		p.log.Info("Importlauf abgeschlossen", fields...)
	}

	for _, e := range report.TopUnmatched(20) {
		p.log.Info("Journal ohne Registereintrag",
			zap.String("titel", e.Title),
			zap.Int64("haeufigkeit", e.Count))
	}
}
