// Package metrics exposes the relay's Prometheus collectors:
//
//	relay_messages_total{outcome}          inbound pushes by outcome (accepted|duplicate|skipped|abandoned)
//	relay_deliveries_total{result}         delivery acks (sent|failed|exhausted)
//	relay_classifier_requests_total{result} classifier calls (ok|error|open|limited)
//	relay_trades_total{status}             trade transitions by target status
//	relay_exit_requests_total{created}     sell requests by whether a row was created
//	relay_events_total{kind}               journaled events by kind
//	relay_roster_reloads_total{result}     roster reloads (ok|error)
//	relay_http_request_duration_seconds{action,code}
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	messages      *prometheus.CounterVec
	deliveries    *prometheus.CounterVec
	classifier    *prometheus.CounterVec
	trades        *prometheus.CounterVec
	exitRequests  *prometheus.CounterVec
	events        *prometheus.CounterVec
	rosterReloads *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
}

// New builds a Metrics instance backed by its own registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_messages_total",
			Help: "Inbound messages by outcome",
		}, []string{"outcome"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_deliveries_total",
			Help: "Delivery acknowledgements by result",
		}, []string{"result"}),
		classifier: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_classifier_requests_total",
			Help: "Classifier calls by result",
		}, []string{"result"}),
		trades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_trades_total",
			Help: "Trade transitions by target status",
		}, []string{"status"}),
		exitRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_exit_requests_total",
			Help: "Exit requests by whether a sell row was created",
		}, []string{"created"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_events_total",
			Help: "Journaled events by kind",
		}, []string{"kind"}),
		rosterReloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_roster_reloads_total",
			Help: "Roster reloads by result",
		}, []string{"result"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "relay_http_request_duration_seconds",
			Help:    "Worker API latency by action and status code",
			Buckets: prometheus.DefBuckets,
		}, []string{"action", "code"}),
	}
	m.registry.MustRegister(
		m.messages, m.deliveries, m.classifier, m.trades,
		m.exitRequests, m.events, m.rosterReloads, m.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Message(outcome string) {
	if m != nil {
		m.messages.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) Delivery(result string) {
	if m != nil {
		m.deliveries.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) Classifier(result string) {
	if m != nil {
		m.classifier.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) Trade(status string) {
	if m != nil {
		m.trades.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) ExitRequest(created bool) {
	if m != nil {
		m.exitRequests.WithLabelValues(strconv.FormatBool(created)).Inc()
	}
}

func (m *Metrics) Event(kind string) {
	if m != nil {
		m.events.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) RosterReload(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.rosterReloads.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveHTTP(action string, code int, seconds float64) {
	if m != nil {
		m.httpDuration.WithLabelValues(action, strconv.Itoa(code)).Observe(seconds)
	}
}
