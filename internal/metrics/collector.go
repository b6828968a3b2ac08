package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// -------------------------------------------------------------------------
// Prometheus Metric Constants
// -------------------------------------------------------------------------

const (
	namespace = "netpeer"
	subsystem = "peer"
)

// Label names.
const (
	labelRole      = "role" // "host" or "client"
	labelMsgType   = "message_type"
	labelKind      = "kind"
	labelOwnerKind = "owner_kind"
)

// -------------------------------------------------------------------------
// Collector — Prometheus Peer Metrics
// -------------------------------------------------------------------------

// Collector holds all peer-daemon Prometheus metrics.
//
//   - ConnectedClients tracks currently connected clients (host only).
//   - MessagesSent/MessagesReceived track dispatch volume per message type.
//   - PropertyStreamBacklog tracks pending property-stream sends awaiting
//     acknowledgement.
//   - BoundObjects tracks live bound-object registrations.
//   - AuthorityDelegations counts authority grant/revoke operations.
//   - RejectedMessages counts messages dropped by direction/authority/rate
//     checks, labeled by rejection kind for alerting.
type Collector struct {
	// ConnectedClients is the number of clients currently connected to a host.
	ConnectedClients prometheus.Gauge

	// MessagesSent counts dispatched outbound messages per message type.
	MessagesSent *prometheus.CounterVec

	// MessagesReceived counts handled inbound messages per message type.
	MessagesReceived *prometheus.CounterVec

	// PropertyStreamBacklog tracks pending property-stream sends not yet
	// acknowledged, labeled by role.
	PropertyStreamBacklog *prometheus.GaugeVec

	// BoundObjects is the number of currently bound objects, labeled by
	// owner kind (host-default vs. client-delegated).
	BoundObjects *prometheus.GaugeVec

	// AuthorityDelegations counts authority grant/revoke operations.
	AuthorityDelegations *prometheus.CounterVec

	// RejectedMessages counts messages rejected by HandleMessage, labeled by
	// rejection kind (direction, authority, malformed, rate_limited).
	RejectedMessages *prometheus.CounterVec
}

// NewCollector creates a Collector with all peer metrics registered against
// the provided prometheus.Registerer. If reg is nil, prometheus.DefaultRegisterer
// is used.
//
// All metrics are created with the "netpeer_peer_" prefix (namespace_subsystem)
// to avoid collisions with other exporters.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.ConnectedClients,
		c.MessagesSent,
		c.MessagesReceived,
		c.PropertyStreamBacklog,
		c.BoundObjects,
		c.AuthorityDelegations,
		c.RejectedMessages,
	)

	return c
}

// newMetrics creates all Prometheus metric vectors without registering them.
func newMetrics() *Collector {
	return &Collector{
		ConnectedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "connected_clients",
			Help:      "Number of clients currently connected to the host.",
		}),

		MessagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "messages_sent_total",
			Help:      "Total messages dispatched outbound, labeled by message type.",
		}, []string{labelRole, labelMsgType}),

		MessagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "messages_received_total",
			Help:      "Total messages handled inbound, labeled by message type.",
		}, []string{labelRole, labelMsgType}),

		PropertyStreamBacklog: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "property_stream_backlog",
			Help:      "Pending property-stream sends not yet acknowledged.",
		}, []string{labelRole}),

		BoundObjects: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "bound_objects",
			Help:      "Number of currently bound objects, labeled by owner kind.",
		}, []string{labelOwnerKind}),

		AuthorityDelegations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "authority_delegations_total",
			Help:      "Total authority grant/revoke operations, labeled by kind (grant, revoke).",
		}, []string{labelKind}),

		RejectedMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "rejected_messages_total",
			Help:      "Total messages rejected by HandleMessage, labeled by rejection kind.",
		}, []string{labelKind}),
	}
}

// -------------------------------------------------------------------------
// Client Lifecycle
// -------------------------------------------------------------------------

// IncConnectedClients increments the connected clients gauge.
// Called when a host finishes a new client's handshake.
func (c *Collector) IncConnectedClients() {
	c.ConnectedClients.Inc()
}

// DecConnectedClients decrements the connected clients gauge.
// Called when a host cleans up a disconnected client.
func (c *Collector) DecConnectedClients() {
	c.ConnectedClients.Dec()
}

// -------------------------------------------------------------------------
// Message Counters
// -------------------------------------------------------------------------

// IncMessagesSent increments the outbound message counter for role and
// messageType.
func (c *Collector) IncMessagesSent(role, messageType string) {
	c.MessagesSent.WithLabelValues(role, messageType).Inc()
}

// IncMessagesReceived increments the inbound message counter for role and
// messageType.
func (c *Collector) IncMessagesReceived(role, messageType string) {
	c.MessagesReceived.WithLabelValues(role, messageType).Inc()
}

// IncRejectedMessages increments the rejected-message counter for the given
// rejection kind (e.g., "direction", "authority", "malformed", "rate_limited").
func (c *Collector) IncRejectedMessages(kind string) {
	c.RejectedMessages.WithLabelValues(kind).Inc()
}

// -------------------------------------------------------------------------
// Property Stream
// -------------------------------------------------------------------------

// SetPropertyStreamBacklog sets the pending-send gauge for role to n.
func (c *Collector) SetPropertyStreamBacklog(role string, n int) {
	c.PropertyStreamBacklog.WithLabelValues(role).Set(float64(n))
}

// -------------------------------------------------------------------------
// Bound Objects & Authority
// -------------------------------------------------------------------------

// SetBoundObjects sets the bound-object gauge for ownerKind to n.
func (c *Collector) SetBoundObjects(ownerKind string, n int) {
	c.BoundObjects.WithLabelValues(ownerKind).Set(float64(n))
}

// IncAuthorityGranted increments the authority-delegation counter for a grant.
func (c *Collector) IncAuthorityGranted() {
	c.AuthorityDelegations.WithLabelValues("grant").Inc()
}

// IncAuthorityRevoked increments the authority-delegation counter for a revoke.
func (c *Collector) IncAuthorityRevoked() {
	c.AuthorityDelegations.WithLabelValues("revoke").Inc()
}
