package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExporterRecords(t *testing.T) {
	exporter := NewExporter(DefaultConfig())

	exporter.RecordDive("success", 3*time.Second)
	exporter.RecordDive("timeout", 45*time.Second)
	exporter.SetQueueDepth(2, 1)
	exporter.SetQuickMode(true)
	exporter.RecordEngagement("like")
	exporter.RecordEngagement("like")
	exporter.RecordEngagement("reply")
	exporter.RecordInference("local", 800*time.Millisecond, true)
	exporter.RecordInference("cloud", 2*time.Second, false)
	exporter.RecordCircuitTransition("http://local", "open")
	exporter.SetInferenceQueueDepth("local", 1)

	req := httptest.NewRequest("GET", "/metrics", http.NoBody)
	w := httptest.NewRecorder()
	exporter.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	assert.Contains(t, body, "autopilot_dive_tasks_total")
	assert.Contains(t, body, `autopilot_dive_tasks_total{status="timeout"} 1`)
	assert.Contains(t, body, `autopilot_engagement_actions_total{category="like"} 2`)
	assert.Contains(t, body, `autopilot_inference_requests_total{backend="cloud",status="error"} 1`)
	assert.Contains(t, body, `autopilot_inference_circuit_transitions_total{endpoint="http://local",to_state="open"} 1`)
	assert.Contains(t, body, "autopilot_dive_quick_mode 1")
	assert.Contains(t, body, "autopilot_dive_queue_depth 2")
}

func TestExporterUsesInjectedRegistry(t *testing.T) {
	registry := prometheus.NewRegistry()
	exporter := NewExporter(Config{Registry: registry})

	assert.Same(t, registry, exporter.Registry())

	exporter.RecordDive("success", time.Second)
	families, err := registry.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
