package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()
	m.Upload("complete")
	m.Upload("complete")
	m.Upload("duplicate")
	m.Batch(10, 2, 0.01)
	m.Retry()
	m.Search()
	m.Export("csv")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.uploads.WithLabelValues("complete")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.uploads.WithLabelValues("duplicate")))
	assert.Equal(t, 10.0, testutil.ToFloat64(m.recordsIndexed))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.recordsFailed))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.batchRetries))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.searches))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.exports.WithLabelValues("csv")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.Upload("complete")
	m.Batch(1, 0, 0)
	m.Retry()
	m.Search()
	m.Export("xlsx")
	assert.Nil(t, m.Registry())
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.Search()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "leakscan_searches_total 1"))
}
