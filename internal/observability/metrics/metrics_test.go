package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestCountersExposed(t *testing.T) {
	t.Parallel()
	m := New()
	m.ReminderFired()
	m.ReminderFired()
	m.DeliveryFailed()
	m.SaveFailed()
	m.Rescheduled()
	m.TickObserved(3 * time.Millisecond)
	m.ReminderCount(2, 1)
	m.HTTPRequest("GET", "200")

	body := scrape(t, m)
	assert.Contains(t, body, "nudge_reminders_fired_total 2")
	assert.Contains(t, body, "nudge_delivery_errors_total 1")
	assert.Contains(t, body, "nudge_store_save_errors_total 1")
	assert.Contains(t, body, "nudge_reschedules_total 1")
	assert.Contains(t, body, "nudge_ticks_total 1")
	assert.Contains(t, body, "nudge_tick_duration_seconds_count 1")
	assert.Contains(t, body, `nudge_reminders{state="enabled"} 2`)
	assert.Contains(t, body, `nudge_reminders{state="disabled"} 1`)
	assert.Contains(t, body, `nudge_http_requests_total{code="200",method="GET"} 1`)
}

func TestInstancesAreIndependent(t *testing.T) {
	t.Parallel()
	a, b := New(), New()
	a.ReminderFired()

	assert.Contains(t, scrape(t, a), "nudge_reminders_fired_total 1")
	assert.Contains(t, scrape(t, b), "nudge_reminders_fired_total 0")
}
