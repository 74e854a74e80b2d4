package observability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetrics_Snapshot(t *testing.T) {
	m := NewMetrics()
	m.RecordRequest("/api/tickets", "GET", 200, time.Millisecond)
	m.RecordRequest("/api/tickets", "GET", 200, time.Millisecond)
	m.RecordError("/api/tickets", "POST", "VALIDATION_FAILED")
	m.RecordStep("triage", "fetch-ticket", "ok")
	m.RecordRun("triage", "succeeded")

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap["requests"]["/api/tickets|GET|200"])
	assert.Equal(t, int64(1), snap["errors"]["/api/tickets|POST|VALIDATION_FAILED"])
	assert.Equal(t, int64(1), snap["workflow_steps"]["triage|fetch-ticket|ok"])
	assert.Equal(t, int64(1), snap["workflow_runs"]["triage|succeeded"])

	snap["requests"]["/api/tickets|GET|200"] = 99
	assert.Equal(t, int64(2), m.Snapshot()["requests"]["/api/tickets|GET|200"], "snapshot must be a copy")
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.RecordRequest("/", "GET", 200, 0)
	m.RecordStep("triage", "x", "ok")
	assert.Empty(t, m.Snapshot())
}
