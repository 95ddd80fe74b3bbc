// Package metrics provides Prometheus metrics for the collaboration hub.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// wsConnections is the number of live WebSocket connections.
	wsConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "naskah_ws_connections",
		Help: "Number of live WebSocket connections",
	})

	// sessionsActive is the number of documents with a live session.
	sessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "naskah_sessions_active",
		Help: "Number of document sessions held in memory",
	})

	// eventsTotal counts inbound socket events.
	// Labels:
	//   - type: event type (e.g., "document-change", "add-comment")
	eventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "naskah_events_total",
			Help: "Total number of inbound socket events",
		},
		[]string{"type"},
	)

	// autoSaveTotal counts debounced flushes.
	// Labels:
	//   - status: "success" or "failed"
	autoSaveTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "naskah_autosave_total",
			Help: "Total number of auto-save flushes",
		},
		[]string{"status"},
	)

	autoSaveDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "naskah_autosave_duration_seconds",
		Help:    "Duration of auto-save writes in seconds",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})

	// authFailuresTotal counts rejected handshakes.
	// Labels:
	//   - reason: "missing" or "invalid"
	authFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "naskah_auth_failures_total",
			Help: "Total number of rejected authentication attempts",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(wsConnections)
	prometheus.MustRegister(sessionsActive)
	prometheus.MustRegister(eventsTotal)
	prometheus.MustRegister(autoSaveTotal)
	prometheus.MustRegister(autoSaveDuration)
	prometheus.MustRegister(authFailuresTotal)
}

func ConnectionOpened() { wsConnections.Inc() }
func ConnectionClosed() { wsConnections.Dec() }
func SessionOpened()    { sessionsActive.Inc() }
func SessionClosed()    { sessionsActive.Dec() }

func RecordEvent(eventType string) {
	eventsTotal.WithLabelValues(eventType).Inc()
}

// RecordAutoSave records one flush and how long the write took.
func RecordAutoSave(ok bool, durationSeconds float64) {
	status := "success"
	if !ok {
		status = "failed"
	}
	autoSaveTotal.WithLabelValues(status).Inc()
	autoSaveDuration.Observe(durationSeconds)
}

func RecordAuthFailure(reason string) {
	authFailuresTotal.WithLabelValues(reason).Inc()
}
