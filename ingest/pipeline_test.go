package ingest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ost-tracker/models"
)

// fakeStore hält Papers im Speicher und bildet das Verhalten der
// Upsert-Engine nach: konflikttolerante Creates, volle Updates.
type fakeStore struct {
	*fakeLookup
	nextID  uint
	batches [][]BatchItem
	failAll bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{fakeLookup: newFakeLookup(), nextID: 1}
}

func (s *fakeStore) UpsertBatch(items []BatchItem) (BatchResult, error) {
	if s.failAll {
		return BatchResult{}, assert.AnError
	}
	copied := make([]BatchItem, len(items))
	copy(copied, items)
	s.batches = append(s.batches, copied)

	var res BatchResult
	for _, item := range items {
		switch item.Action {
		case ActionCreate:
			if _, exists := s.byEPMC[item.Paper.EPMCID]; exists {
				res.Conflicts++
				continue
			}
			item.Paper.ID = s.nextID
			s.nextID++
			s.add(item.Paper)
			res.Created++
		case ActionUpdate:
			s.add(item.Paper)
			res.Updated++
		}
	}
	return res, nil
}

// fakeRuns protokolliert die Checkpoints des Laufs.
type fakeRuns struct {
	begun       bool
	checkpoints []int64
	finished    *models.ImportRun
}

func (r *fakeRuns) Begin(run *models.ImportRun) error { r.begun = true; return nil }
func (r *fakeRuns) Checkpoint(run *models.ImportRun) error {
	r.checkpoints = append(r.checkpoints, run.LastCommittedRow)
	return nil
}
func (r *fakeRuns) Finish(run *models.ImportRun) error { r.finished = run; return nil }

const basicHeader = "pmid,pmcid,doi,title,authorString,journalTitle,journalIssn,firstPublicationDate,is_open_data,is_open_code,is_coi_pred,is_fund_pred,is_register_pred\n"

func writeExport(t *testing.T, rows string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "export.csv")
	require.NoError(t, os.WriteFile(path, []byte(basicHeader+rows), 0o644))
	return path
}

type pipelineEnv struct {
	store *fakeStore
	runs  *fakeRuns
}

func runPipeline(t *testing.T, path string, opts Options, env *pipelineEnv) (*RunReport, error) {
	t.Helper()
	idx := NewJournalIndex(testJournals(), zap.NewNop())
	creator := NewMemoryJournalCreator(100)
	resolver := NewResolver(idx, creator, false, zap.NewNop())
	scorer := NewScorer(true)
	p := NewPipeline(env.store, env.runs, resolver, scorer, opts, zap.NewNop())
	return p.Run(path)
}

func TestPipelineCreatesPapers(t *testing.T) {
	path := writeExport(t,
		"11,PMC11,10.1/a,Studie A,Autor A,The Lancet,0140-6736,2021-01-02,true,false,true,false,true\n"+
			"12,,10.1/b,Studie B,Autor B,Journal of Dental Research,0022-0345,2020-05-01,false,false,false,false,false\n")

	env := &pipelineEnv{store: newFakeStore(), runs: &fakeRuns{}}
	report, err := runPipeline(t, path, Options{ChunkSize: 10, BatchSize: 10}, env)
	require.NoError(t, err)

	assert.Equal(t, int64(2), report.Processed)
	assert.Equal(t, int64(2), report.Created)
	assert.Equal(t, int64(0), report.Skipped)
	assert.Equal(t, int64(0), report.Errored)
	assert.Equal(t, int64(2), report.JournalsMatched)

	paper := env.store.byEPMC["11"]
	require.NotNil(t, paper)
	assert.Equal(t, "11", paper.PMID)
	require.NotNil(t, paper.JournalID)
	assert.Equal(t, uint(1), *paper.JournalID)
	assert.Equal(t, 3, paper.TransparencyScore)
	assert.Equal(t, 50.0, paper.TransparencyScorePct)
	require.NotNil(t, paper.FirstPublicationDate)
	assert.Equal(t, 2021, paper.PubYear)

	require.True(t, env.runs.begun)
	require.NotNil(t, env.runs.finished)
	assert.Equal(t, models.RunStatusFinished, env.runs.finished.Status)
	assert.NotEmpty(t, env.runs.finished.Report)
}

func TestPipelineIdempotentRerun(t *testing.T) {
	rows := "11,,,Studie A,Autor A,The Lancet,0140-6736,,true,false,false,false,false\n"
	path := writeExport(t, rows)

	env := &pipelineEnv{store: newFakeStore(), runs: &fakeRuns{}}
	_, err := runPipeline(t, path, Options{ChunkSize: 10, BatchSize: 10}, env)
	require.NoError(t, err)

	// Zweiter Lauf über dieselbe Datei erzeugt nichts Neues.
	env.runs = &fakeRuns{}
	report, err := runPipeline(t, path, Options{ChunkSize: 10, BatchSize: 10}, env)
	require.NoError(t, err)
	assert.Equal(t, int64(0), report.Created)
	assert.Equal(t, int64(1), report.Skipped)
	assert.Len(t, env.store.byEPMC, 1)
}

func TestPipelineUpdateExisting(t *testing.T) {
	env := &pipelineEnv{store: newFakeStore(), runs: &fakeRuns{}}
	path := writeExport(t, "11,,,Alte Fassung,,The Lancet,,,false,false,false,false,false\n")
	_, err := runPipeline(t, path, Options{ChunkSize: 10, BatchSize: 10}, env)
	require.NoError(t, err)
	assert.Equal(t, 0, env.store.byEPMC["11"].TransparencyScore)

	path = writeExport(t, "11,,,Neue Fassung,,The Lancet,,,true,true,true,false,false\n")
	env.runs = &fakeRuns{}
	report, err := runPipeline(t, path, Options{ChunkSize: 10, BatchSize: 10, UpdateExisting: true}, env)
	require.NoError(t, err)

	assert.Equal(t, int64(1), report.Updated)
	paper := env.store.byEPMC["11"]
	assert.Equal(t, "Neue Fassung", paper.Title)
	// Der Score wird beim Update neu berechnet.
	assert.Equal(t, 3, paper.TransparencyScore)
	assert.Equal(t, 50.0, paper.TransparencyScorePct)
}

func TestPipelineDryRunPersistsNothing(t *testing.T) {
	path := writeExport(t, "11,,,Studie A,,The Lancet,,,true,false,false,false,false\n")

	env := &pipelineEnv{store: newFakeStore(), runs: &fakeRuns{}}
	report, err := runPipeline(t, path, Options{ChunkSize: 10, BatchSize: 10, DryRun: true}, env)
	require.NoError(t, err)

	// Die Bilanz entsteht trotzdem, aber weder Papers noch Laufprotokoll
	// werden geschrieben.
	assert.Equal(t, int64(1), report.Processed)
	assert.Equal(t, int64(1), report.Created)
	assert.Empty(t, env.store.byEPMC)
	assert.Empty(t, env.store.batches)
	assert.False(t, env.runs.begun)
	assert.Nil(t, env.runs.finished)
}

func TestPipelineUnmatchedJournals(t *testing.T) {
	path := writeExport(t,
		"11,,,Studie A,,Unbekanntes Blatt,,,false,false,false,false,false\n"+
			"12,,,Studie B,,Unbekanntes Blatt,,,false,false,false,false,false\n"+
			"13,,,Studie C,,The Lancet,,,false,false,false,false,false\n")

	env := &pipelineEnv{store: newFakeStore(), runs: &fakeRuns{}}
	report, err := runPipeline(t, path, Options{ChunkSize: 10, BatchSize: 10}, env)
	require.NoError(t, err)

	// Ohne Registereintrag wird das Paper trotzdem angelegt, nur ohne
	// Journalreferenz.
	assert.Equal(t, int64(3), report.Created)
	assert.Equal(t, int64(2), report.JournalsUnmatched)
	assert.Nil(t, env.store.byEPMC["11"].JournalID)
	assert.NotNil(t, env.store.byEPMC["13"].JournalID)

	top := report.TopUnmatched(5)
	require.Len(t, top, 1)
	assert.Equal(t, "Unbekanntes Blatt", top[0].Title)
	assert.Equal(t, int64(2), top[0].Count)
}

func TestPipelineRequireJournalSkips(t *testing.T) {
	path := writeExport(t, "11,,,Studie A,,Unbekanntes Blatt,,,false,false,false,false,false\n")

	env := &pipelineEnv{store: newFakeStore(), runs: &fakeRuns{}}
	report, err := runPipeline(t, path, Options{ChunkSize: 10, BatchSize: 10, RequireJournal: true}, env)
	require.NoError(t, err)

	assert.Equal(t, int64(1), report.Skipped)
	assert.Equal(t, int64(0), report.Created)
	assert.Empty(t, env.store.byEPMC)
}

func TestPipelineRowLimit(t *testing.T) {
	path := writeExport(t,
		"11,,,A,,The Lancet,,,false,false,false,false,false\n"+
			"12,,,B,,The Lancet,,,false,false,false,false,false\n"+
			"13,,,C,,The Lancet,,,false,false,false,false,false\n")

	env := &pipelineEnv{store: newFakeStore(), runs: &fakeRuns{}}
	report, err := runPipeline(t, path, Options{ChunkSize: 10, BatchSize: 10, RowLimit: 2}, env)
	require.NoError(t, err)

	assert.Equal(t, int64(2), report.Processed)
	assert.Len(t, env.store.byEPMC, 2)
}

func TestPipelineCheckpointsPerBatch(t *testing.T) {
	path := writeExport(t,
		"11,,,A,,The Lancet,,,false,false,false,false,false\n"+
			"12,,,B,,The Lancet,,,false,false,false,false,false\n"+
			"13,,,C,,The Lancet,,,false,false,false,false,false\n")

	env := &pipelineEnv{store: newFakeStore(), runs: &fakeRuns{}}
	_, err := runPipeline(t, path, Options{ChunkSize: 10, BatchSize: 2}, env)
	require.NoError(t, err)

	// Zwei Batches (2+1), nach jedem ein Checkpoint auf die letzte
	// committete Zeile.
	require.Len(t, env.store.batches, 2)
	assert.Equal(t, []int64{2, 3}, env.runs.checkpoints)
	require.NotNil(t, env.runs.finished)
	assert.Equal(t, int64(3), env.runs.finished.LastCommittedRow)
}

func TestPipelineBatchFailureAborts(t *testing.T) {
	path := writeExport(t, "11,,,A,,The Lancet,,,false,false,false,false,false\n")

	env := &pipelineEnv{store: newFakeStore(), runs: &fakeRuns{}}
	env.store.failAll = true
	report, err := runPipeline(t, path, Options{ChunkSize: 10, BatchSize: 10}, env)
	require.Error(t, err)

	// Die Bilanz wird auch beim Abbruch geliefert und der Lauf als
	// abgebrochen markiert.
	assert.Equal(t, int64(1), report.Processed)
	require.NotNil(t, env.runs.finished)
	assert.Equal(t, models.RunStatusAborted, env.runs.finished.Status)
}

func TestPipelineCountsRowErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "export.csv")
	content := basicHeader +
		"11,,,A,,The Lancet,,,false,false,false,false,false\n" +
		"kaputt,zeile\n" +
		"12,,,B,,The Lancet,,,false,false,false,false,false\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	env := &pipelineEnv{store: newFakeStore(), runs: &fakeRuns{}}
	report, err := runPipeline(t, path, Options{ChunkSize: 10, BatchSize: 10}, env)
	require.NoError(t, err)

	assert.Equal(t, int64(1), report.Errored)
	assert.Equal(t, int64(2), report.Processed)
	assert.Len(t, env.store.byEPMC, 2)
}

func TestPipelineResumeWithSkipRows(t *testing.T) {
	path := writeExport(t,
		"11,,,A,,The Lancet,,,false,false,false,false,false\n"+
			"12,,,B,,The Lancet,,,false,false,false,false,false\n"+
			"13,,,C,,The Lancet,,,false,false,false,false,false\n")

	env := &pipelineEnv{store: newFakeStore(), runs: &fakeRuns{}}
	report, err := runPipeline(t, path, Options{ChunkSize: 10, BatchSize: 10, SkipRows: 2}, env)
	require.NoError(t, err)

	assert.Equal(t, int64(1), report.Processed)
	require.Len(t, env.store.byEPMC, 1)
	assert.NotNil(t, env.store.byEPMC["13"])
	// Der Checkpoint zählt absolut ab Dateianfang weiter.
	require.NotNil(t, env.runs.finished)
	assert.Equal(t, int64(3), env.runs.finished.LastCommittedRow)
}

// failingCreator schlägt bei jeder Journal-Neuanlage fehl.
type failingCreator struct{}

func (failingCreator) CreateJournal(title, issn string) (*models.Journal, error) {
	return nil, assert.AnError
}

func TestPipelineRetriesRowsAfterResolveError(t *testing.T) {
	path := writeExport(t,
		"11,,,Studie A,,Unbekanntes Blatt,,,false,false,false,false,false\n"+
			"11,,,Studie A,,Unbekanntes Blatt,,,false,false,false,false,false\n")

	env := &pipelineEnv{store: newFakeStore(), runs: &fakeRuns{}}
	idx := NewJournalIndex(testJournals(), zap.NewNop())
	resolver := NewResolver(idx, failingCreator{}, true, zap.NewNop())
	p := NewPipeline(env.store, env.runs, resolver, NewScorer(true), Options{ChunkSize: 10, BatchSize: 10}, zap.NewNop())

	report, err := p.Run(path)
	require.NoError(t, err)

	// Beide Sichtungen scheitern an der Journalauflösung. Die zweite darf
	// nicht als In-Run-Duplikat verschluckt werden, weil die erste nie in
	// einen Batch gelangt ist.
	assert.Equal(t, int64(2), report.Errored)
	assert.Equal(t, int64(0), report.Skipped)
	assert.Empty(t, env.store.byEPMC)
}

func TestPipelineInFileDuplicates(t *testing.T) {
	path := writeExport(t,
		"11,,,Erste Fassung,,The Lancet,,,true,false,false,false,false\n"+
			"11,,,Zweite Fassung,,The Lancet,,,false,false,false,false,false\n")

	env := &pipelineEnv{store: newFakeStore(), runs: &fakeRuns{}}
	report, err := runPipeline(t, path, Options{ChunkSize: 10, BatchSize: 10, UpdateExisting: true}, env)
	require.NoError(t, err)

	// Duplikate innerhalb der Datei: die erste Fassung gewinnt.
	assert.Equal(t, int64(1), report.Created)
	assert.Equal(t, int64(1), report.Skipped)
	assert.Equal(t, "Erste Fassung", env.store.byEPMC["11"].Title)
}
