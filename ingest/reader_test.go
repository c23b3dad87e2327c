package ingest

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/pgzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeTempCSV(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func readAll(t *testing.T, r *TableReader) ([]Row, []RowError) {
	t.Helper()
	var rows []Row
	var errs []RowError
	for {
		chunk, err := r.Next()
		if err == io.EOF {
			return rows, errs
		}
		require.NoError(t, err)
		rows = append(rows, chunk.Rows...)
		errs = append(errs, chunk.Errors...)
	}
}

func TestReaderChunking(t *testing.T) {
	path := writeTempCSV(t, "export.csv", "pmid,title\n1,a\n2,b\n3,c\n4,d\n5,e\n")

	r, err := NewTableReader(path, ReaderOptions{ChunkSize: 2}, zap.NewNop())
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, []string{"pmid", "title"}, r.Header())

	chunk, err := r.Next()
	require.NoError(t, err)
	require.Len(t, chunk.Rows, 2)
	assert.Equal(t, int64(1), chunk.Rows[0].Num)
	assert.Equal(t, []string{"1", "a"}, chunk.Rows[0].Fields)

	chunk, err = r.Next()
	require.NoError(t, err)
	assert.Len(t, chunk.Rows, 2)

	// Letzter, teilgefüllter Chunk.
	chunk, err = r.Next()
	require.NoError(t, err)
	require.Len(t, chunk.Rows, 1)
	assert.Equal(t, int64(5), chunk.Rows[0].Num)

	_, err = r.Next()
	assert.Equal(t, io.EOF, err)
}

func TestReaderSkipRows(t *testing.T) {
	path := writeTempCSV(t, "export.csv", "pmid,title\n1,a\n2,b\n3,c\n")

	r, err := NewTableReader(path, ReaderOptions{ChunkSize: 10, SkipRows: 2}, zap.NewNop())
	require.NoError(t, err)
	defer r.Close()

	rows, errs := readAll(t, r)
	require.Len(t, rows, 1)
	assert.Empty(t, errs)
	// Die Zeilennummerierung läuft über die übersprungenen Zeilen weiter.
	assert.Equal(t, int64(3), rows[0].Num)
	assert.Equal(t, []string{"3", "c"}, rows[0].Fields)
}

func TestReaderMalformedRow(t *testing.T) {
	// Zeile 2 hat eine Spalte zu viel.
	path := writeTempCSV(t, "export.csv", "pmid,title\n1,a\n2,b,EXTRA\n3,c\n")

	r, err := NewTableReader(path, ReaderOptions{ChunkSize: 10}, zap.NewNop())
	require.NoError(t, err)
	defer r.Close()

	rows, errs := readAll(t, r)
	assert.Len(t, rows, 2)
	require.Len(t, errs, 1)
	assert.Equal(t, int64(2), errs[0].Row)
}

func TestReaderGzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "export.csv.gz")
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := pgzip.NewWriter(f)
	_, err = gz.Write([]byte("pmid,title\n1,a\n2,b\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())

	r, err := NewTableReader(path, ReaderOptions{ChunkSize: 10}, zap.NewNop())
	require.NoError(t, err)
	defer r.Close()

	rows, errs := readAll(t, r)
	assert.Len(t, rows, 2)
	assert.Empty(t, errs)
}

func TestReaderLatin1Fallback(t *testing.T) {
	// 0xE9 ist Latin-1 für 'é' und kein gültiges UTF-8.
	content := append([]byte("pmid,title\n1,Journal M"), 0xE9)
	content = append(content, []byte("dical\n2,plain\n")...)
	path := filepath.Join(t.TempDir(), "export.csv")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	r, err := NewTableReader(path, ReaderOptions{ChunkSize: 10}, zap.NewNop())
	require.NoError(t, err)
	defer r.Close()

	rows, errs := readAll(t, r)
	require.Len(t, rows, 2)
	assert.Empty(t, errs)
	assert.Equal(t, "Journal Médical", rows[0].Fields[1])
	assert.Equal(t, int64(1), r.Latin1Rows())
}

func TestReaderMissingFile(t *testing.T) {
	_, err := NewTableReader(filepath.Join(t.TempDir(), "fehlt.csv"), ReaderOptions{}, zap.NewNop())
	assert.Error(t, err)
}

func TestReaderStripsBOM(t *testing.T) {
	path := writeTempCSV(t, "export.csv", "\ufeffpmid,title\n1,a\n")

	r, err := NewTableReader(path, ReaderOptions{ChunkSize: 10}, zap.NewNop())
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, "pmid", r.Header()[0])
	_, ok := r.Index()["pmid"]
	assert.True(t, ok)
}
