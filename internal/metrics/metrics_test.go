package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, rec.Code)
	return rec.Body.String()
}

func TestCountersIncrement(t *testing.T) {
	m := New()
	m.Message("accepted")
	m.Message("accepted")
	m.Message("duplicate")
	m.ExitRequest(false)

	body := scrape(t, m)
	assert.Contains(t, body, `relay_messages_total{outcome="accepted"} 2`)
	assert.Contains(t, body, `relay_messages_total{outcome="duplicate"} 1`)
	assert.Contains(t, body, `relay_exit_requests_total{created="false"} 1`)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Message("accepted")
		m.RosterReload(false)
		m.ObserveHTTP("push_message", 200, 0.1)
	})
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New()
	m.Event("trade_opened")
	assert.Contains(t, scrape(t, m), `relay_events_total{kind="trade_opened"} 1`)
}
