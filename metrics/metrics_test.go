package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorCounters(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.JobSubmitted("KOT")
	c.JobSubmitted("KOT")
	c.JobSubmitted("INVOICE")
	c.JobStarted("KOT")
	c.JobRetried("KOT")
	c.JobCompleted("KOT")
	c.JobFailed("INVOICE")
	c.SetQueueDepth(4)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.jobsSubmitted.WithLabelValues("KOT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.jobsSubmitted.WithLabelValues("INVOICE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.jobsStarted.WithLabelValues("KOT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.jobsRetried.WithLabelValues("KOT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.jobsCompleted.WithLabelValues("KOT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.jobsFailed.WithLabelValues("INVOICE")))
	assert.Equal(t, 4.0, testutil.ToFloat64(c.queueDepth))
}

func TestConnectionStateMovesFlag(t *testing.T) {
	c := NewCollector(nil)

	c.SetConnectionState("connecting")
	c.SetConnectionState("connected")

	assert.Equal(t, 0.0, testutil.ToFloat64(c.connectionState.WithLabelValues("connecting")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.connectionState.WithLabelValues("connected")))

	c.SetConnectionState("connected")
	assert.Equal(t, 1.0, testutil.ToFloat64(c.connectionState.WithLabelValues("connected")))
}

func TestObserveSend(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.ObserveSend("socket", 30*time.Millisecond)

	assert.Equal(t, 1, testutil.CollectAndCount(c.sendDuration))
}

func TestNilCollector(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.JobSubmitted("KOT")
		c.JobStarted("KOT")
		c.JobCompleted("KOT")
		c.JobFailed("KOT")
		c.JobRetried("KOT")
		c.SetQueueDepth(1)
		c.SetConnectionState("error")
		c.ObserveSend("cable", time.Second)
	})
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.JobSubmitted("BARCODE")

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `posprint_jobs_submitted_total{job_type="BARCODE"} 1`)
}
