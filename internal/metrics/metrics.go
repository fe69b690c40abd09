// Package metrics regroupe les métriques Prometheus du service.
// Toutes les méthodes acceptent un receiver nil (tests, outils CLI).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Raisons de drop d'une notification.
const (
	DropBufferFull   = "buffer_full"
	DropNoSubscriber = "no_subscriber"
	DropSlowConsumer = "slow_consumer"
	DropHubClosed    = "hub_closed"
	DropBridgeFailed = "bridge_failed"
)

type Metrics struct {
	EventsPublished     *prometheus.CounterVec
	EventsDelivered     *prometheus.CounterVec
	EventsDropped       *prometheus.CounterVec
	ActiveSubscriptions prometheus.Gauge
	GraphRetries        *prometheus.CounterVec
	LikeToggles         *prometheus.CounterVec
}

// New enregistre les collecteurs sur reg (prometheus.DefaultRegisterer en prod,
// un prometheus.NewRegistry() dans les tests pour éviter les doublons).
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		EventsPublished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "social_events_published_total",
			Help: "Change events handed to the notification hub",
		}, []string{"kind"}),
		EventsDelivered: f.NewCounterVec(prometheus.CounterOpts{
			Name: "social_events_delivered_total",
			Help: "Change events written to a live connection's send buffer",
		}, []string{"kind"}),
		EventsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "social_events_dropped_total",
			Help: "Change events dropped before reaching a live connection",
		}, []string{"reason"}),
		ActiveSubscriptions: f.NewGauge(prometheus.GaugeOpts{
			Name: "social_ws_subscriptions",
			Help: "Currently subscribed live connections",
		}),
		GraphRetries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "social_graph_conflict_retries_total",
			Help: "Follow/unfollow attempts retried after a storage conflict",
		}, []string{"op"}),
		LikeToggles: f.NewCounterVec(prometheus.CounterOpts{
			Name: "social_like_toggles_total",
			Help: "Like toggles by resulting membership",
		}, []string{"liked"}),
	}
}

func (m *Metrics) Published(kind string) {
	if m != nil {
		m.EventsPublished.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) Delivered(kind string) {
	if m != nil {
		m.EventsDelivered.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) Dropped(reason string) {
	if m != nil {
		m.EventsDropped.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) SubscriptionOpened() {
	if m != nil {
		m.ActiveSubscriptions.Inc()
	}
}

func (m *Metrics) SubscriptionClosed() {
	if m != nil {
		m.ActiveSubscriptions.Dec()
	}
}

func (m *Metrics) GraphRetry(op string) {
	if m != nil {
		m.GraphRetries.WithLabelValues(op).Inc()
	}
}

func (m *Metrics) LikeToggled(liked bool) {
	if m == nil {
		return
	}
	label := "false"
	if liked {
		label = "true"
	}
	m.LikeToggles.WithLabelValues(label).Inc()
}
