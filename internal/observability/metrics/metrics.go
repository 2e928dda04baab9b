// Package metrics exposes Prometheus counters for the reminder engine and
// the HTTP surface. Each Metrics owns its registry so tests and multiple
// instances never collide on the global one.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "nudge"

type Metrics struct {
	reg *prometheus.Registry

	fired          prometheus.Counter
	deliveryErrors prometheus.Counter
	saveErrors     prometheus.Counter
	reschedules    prometheus.Counter
	ticks          prometheus.Counter
	tickDuration   prometheus.Histogram
	reminders      *prometheus.GaugeVec
	httpRequests   *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		fired: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_fired_total",
			Help:      "Reminder occurrences matched and handed to the dispatcher.",
		}),
		deliveryErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_errors_total",
			Help:      "Dispatcher calls that returned an error or panicked.",
		}),
		saveErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_save_errors_total",
			Help:      "Failed writes of the reminder collection.",
		}),
		reschedules: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reschedules_total",
			Help:      "Full recomputations of every enabled reminder's occurrences.",
		}),
		ticks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Minute checks performed by the engine.",
		}),
		tickDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Time spent in one tick including delivery.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}),
		reminders: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reminders",
			Help:      "Reminders currently defined, by state.",
		}, []string{"state"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP API requests by method and status code.",
		}, []string{"method", "code"}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) ReminderFired()  { m.fired.Inc() }
func (m *Metrics) DeliveryFailed() { m.deliveryErrors.Inc() }
func (m *Metrics) SaveFailed()     { m.saveErrors.Inc() }
func (m *Metrics) Rescheduled()    { m.reschedules.Inc() }

func (m *Metrics) TickObserved(d time.Duration) {
	m.ticks.Inc()
	m.tickDuration.Observe(d.Seconds())
}

func (m *Metrics) ReminderCount(enabled, disabled int) {
	m.reminders.WithLabelValues("enabled").Set(float64(enabled))
	m.reminders.WithLabelValues("disabled").Set(float64(disabled))
}

func (m *Metrics) HTTPRequest(method, code string) {
	m.httpRequests.WithLabelValues(method, code).Inc()
}
