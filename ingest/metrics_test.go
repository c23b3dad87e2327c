package ingest

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsHandlerExposesCounters(t *testing.T) {
	processedCounter.Inc()
	erroredCounter.Inc()

	srv := httptest.NewServer(MetricsHandler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	// Alle Laufzähler sind über den Endpunkt abfragbar.
	for _, name := range []string{
		"papers_processed_total",
		"papers_created_total",
		"papers_updated_total",
		"papers_skipped_total",
		"papers_errored_total",
		"journals_unmatched_total",
	} {
		assert.Contains(t, string(body), name)
	}
}
