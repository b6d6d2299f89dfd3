package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordHTTPRequest(t *testing.T) {
	m := NewWith(prometheus.NewRegistry(), "test")

	m.RecordHTTPRequest("POST", "/api/v1/tasks", 202, 120*time.Millisecond)
	m.RecordHTTPRequest("POST", "/api/v1/tasks", 202, 80*time.Millisecond)
	m.RecordHTTPRequest("POST", "/api/v1/tasks", 429, 2*time.Millisecond)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "/api/v1/tasks", "202")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "/api/v1/tasks", "429")))
}

func TestRecordTaskLifecycle(t *testing.T) {
	m := NewWith(prometheus.NewRegistry(), "test")

	m.RecordTaskSubmitted("replicate", "image")
	m.RecordTaskSubmitted("replicate", "image")
	m.RecordTaskSettled("replicate", "completed", 12*time.Second)
	m.RecordTaskSettled("replicate", "failed", 3*time.Second)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.TasksSubmittedTotal.WithLabelValues("replicate", "image")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.TasksSettledTotal.WithLabelValues("replicate", "completed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.TasksSettledTotal.WithLabelValues("replicate", "failed")))
}

func TestRecordLedgerEntry_UsesAbsoluteAmount(t *testing.T) {
	m := NewWith(prometheus.NewRegistry(), "test")

	m.RecordLedgerEntry("spend", -10)
	m.RecordLedgerEntry("refund", 10)

	assert.Equal(t, float64(10), testutil.ToFloat64(m.TokensMovedTotal.WithLabelValues("spend")))
	assert.Equal(t, float64(10), testutil.ToFloat64(m.TokensMovedTotal.WithLabelValues("refund")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.LedgerEntriesTotal.WithLabelValues("spend")))
}

func TestRecordWebhookAndDenials(t *testing.T) {
	m := NewWith(prometheus.NewRegistry(), "test")

	m.RecordWebhook("luma", "applied")
	m.RecordWebhook("luma", "duplicate")
	m.RecordAdmissionDenied("rate_limited")

	assert.Equal(t, float64(1), testutil.ToFloat64(m.WebhooksTotal.WithLabelValues("luma", "applied")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.WebhooksTotal.WithLabelValues("luma", "duplicate")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.AdmissionsDeniedTotal.WithLabelValues("rate_limited")))
}
