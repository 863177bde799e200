package sbmark

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsObserve(t *testing.T) {
	m := NewMetrics()
	m.SetRunInfo(3, 1000, 4096)
	m.Observe(Outcome{Operation: ModeGet, Status: 200, Class: Success, Check: true})
	m.Observe(Outcome{Operation: ModeGet, Status: 404, Class: CriticalError})
	m.Observe(Outcome{Operation: ModeGet, Status: 429, Class: ClientError})
	m.Observe(Outcome{Operation: ModeGet, Status: 503, Class: ServerError})
	m.Observe(Outcome{Operation: ModeGet, Status: 503, Class: ServerError})
	m.IterationDropped()

	assert.Equal(t, 3.0, testutil.ToFloat64(m.buckets))
	assert.Equal(t, 1000.0, testutil.ToFloat64(m.initialObjects))
	assert.Equal(t, 4096.0, testutil.ToFloat64(m.putObjectSize))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.iterations))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.droppedIterations))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.criticalErrors.WithLabelValues("404")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.clientErrors.WithLabelValues("429")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.serverErrors.WithLabelValues("503")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.checks.WithLabelValues("pass")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.checks.WithLabelValues("fail")))
}

func TestMetricsHandler(t *testing.T) {
	m := NewMetrics()
	m.SeedObjectCreated()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "s3bench_seed_objects_created 1")
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.SetRunInfo(1, 1, 1)
	m.SeedObjectCreated()
	m.IterationDropped()
	m.Observe(Outcome{})
}
