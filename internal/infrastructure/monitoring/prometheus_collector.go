package monitoring

import (
	"time"

	"quillroom/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type PrometheusCollector struct {
	// Gauges
	connectionsActive prometheus.Gauge
	roomsActive       prometheus.Gauge

	// Counters
	connectionsTotal       prometheus.Counter
	membershipMutations    *prometheus.CounterVec
	presenceUpdates        *prometheus.CounterVec
	profileLookupFailures  prometheus.Counter
	snapshotsDropped       prometheus.Counter
	authorizationDenied    *prometheus.CounterVec

	// Histograms
	connectionDuration prometheus.Histogram
	broadcastLatency   prometheus.Histogram
	directoryLatency   prometheus.Histogram

	// Per-room metrics
	roomConnectionCount *prometheus.GaugeVec
}

func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{
		connectionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "quillroom_connections_active",
			Help: "Number of live presence connections",
		}),

		roomsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "quillroom_rooms_active",
			Help: "Number of document rooms with at least one connection",
		}),

		connectionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "quillroom_connections_total",
			Help: "Total number of presence connections accepted",
		}),

		membershipMutations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "quillroom_membership_mutations_total",
			Help: "Membership mutations by operation and outcome",
		}, []string{"operation", "outcome"}),

		presenceUpdates: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "quillroom_presence_updates_total",
			Help: "Inbound presence updates by message type",
		}, []string{"type"}),

		profileLookupFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "quillroom_profile_lookup_failures_total",
			Help: "Directory lookups that fell back to the anonymous profile",
		}),

		snapshotsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "quillroom_snapshots_dropped_total",
			Help: "Room snapshots dropped because a subscriber was slow",
		}),

		authorizationDenied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "quillroom_authorization_denied_total",
			Help: "Denied access checks by operation",
		}, []string{"operation"}),

		connectionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "quillroom_connection_duration_seconds",
			Help:    "Lifetime of presence connections",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),

		broadcastLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "quillroom_broadcast_latency_seconds",
			Help:    "Time from a presence update to delivery of the room snapshot",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}),

		directoryLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "quillroom_directory_lookup_duration_seconds",
			Help:    "Duration of external directory lookups",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}),

		roomConnectionCount: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "quillroom_room_connection_count",
			Help: "Number of connections per document room",
		}, []string{"document_id"}),
	}
}

func (p *PrometheusCollector) RecordConnectionOpened(documentID domain.DocumentID) {
	p.connectionsActive.Inc()
	p.connectionsTotal.Inc()
	p.roomConnectionCount.WithLabelValues(string(documentID)).Inc()
}

func (p *PrometheusCollector) RecordConnectionClosed(documentID domain.DocumentID, lifetime time.Duration) {
	p.connectionsActive.Dec()
	p.connectionDuration.Observe(lifetime.Seconds())
	p.roomConnectionCount.WithLabelValues(string(documentID)).Dec()
}

func (p *PrometheusCollector) RecordRoomOpened() {
	p.roomsActive.Inc()
}

func (p *PrometheusCollector) RecordRoomClosed(documentID domain.DocumentID) {
	p.roomsActive.Dec()
	p.roomConnectionCount.DeleteLabelValues(string(documentID))
}

func (p *PrometheusCollector) RecordMembershipMutation(operation string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	p.membershipMutations.WithLabelValues(operation, outcome).Inc()
}

func (p *PrometheusCollector) RecordPresenceUpdate(messageType string) {
	p.presenceUpdates.WithLabelValues(messageType).Inc()
}

func (p *PrometheusCollector) RecordProfileLookupFailure() {
	p.profileLookupFailures.Inc()
}

func (p *PrometheusCollector) RecordSnapshotDropped() {
	p.snapshotsDropped.Inc()
}

func (p *PrometheusCollector) RecordAuthorizationDenied(operation string) {
	p.authorizationDenied.WithLabelValues(operation).Inc()
}

func (p *PrometheusCollector) RecordBroadcastLatency(latency time.Duration) {
	p.broadcastLatency.Observe(latency.Seconds())
}

func (p *PrometheusCollector) RecordDirectoryLookup(duration time.Duration) {
	p.directoryLatency.Observe(duration.Seconds())
}
