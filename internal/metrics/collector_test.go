package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/nginetechnologies/sceneri-core-sub009/internal/metrics"
)

func TestNewCollector(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)

	if c.ConnectedClients == nil {
		t.Error("ConnectedClients is nil")
	}
	if c.MessagesSent == nil {
		t.Error("MessagesSent is nil")
	}
	if c.MessagesReceived == nil {
		t.Error("MessagesReceived is nil")
	}
	if c.PropertyStreamBacklog == nil {
		t.Error("PropertyStreamBacklog is nil")
	}
	if c.BoundObjects == nil {
		t.Error("BoundObjects is nil")
	}
	if c.AuthorityDelegations == nil {
		t.Error("AuthorityDelegations is nil")
	}
	if c.RejectedMessages == nil {
		t.Error("RejectedMessages is nil")
	}

	// Verify all metrics are registered by gathering them.
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}

	// No data yet, so families may be empty -- but registration must not panic.
	_ = families
}

func TestConnectedClients(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)

	c.IncConnectedClients()
	c.IncConnectedClients()

	if val := gaugeValue(t, c.ConnectedClients); val != 2 {
		t.Errorf("ConnectedClients = %v, want 2", val)
	}

	c.DecConnectedClients()

	if val := gaugeValue(t, c.ConnectedClients); val != 1 {
		t.Errorf("ConnectedClients = %v, want 1", val)
	}
}

func TestMessageCounters(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)

	c.IncMessagesSent("host", "ObjectBound")
	c.IncMessagesSent("host", "ObjectBound")
	c.IncMessagesSent("host", "LocalPeerConnected")

	if val := counterVecValue(t, c.MessagesSent, "host", "ObjectBound"); val != 2 {
		t.Errorf("MessagesSent(host, ObjectBound) = %v, want 2", val)
	}

	c.IncMessagesReceived("client", "RegisterNewMessageType")

	if val := counterVecValue(t, c.MessagesReceived, "client", "RegisterNewMessageType"); val != 1 {
		t.Errorf("MessagesReceived(client, RegisterNewMessageType) = %v, want 1", val)
	}
}

func TestRejectedMessages(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)

	c.IncRejectedMessages("direction")
	c.IncRejectedMessages("direction")
	c.IncRejectedMessages("authority")

	if val := counterVecValue(t, c.RejectedMessages, "direction"); val != 2 {
		t.Errorf("RejectedMessages(direction) = %v, want 2", val)
	}
	if val := counterVecValue(t, c.RejectedMessages, "authority"); val != 1 {
		t.Errorf("RejectedMessages(authority) = %v, want 1", val)
	}
}

func TestPropertyStreamBacklog(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)

	c.SetPropertyStreamBacklog("host", 5)

	if val := gaugeVecValue(t, c.PropertyStreamBacklog, "host"); val != 5 {
		t.Errorf("PropertyStreamBacklog(host) = %v, want 5", val)
	}

	c.SetPropertyStreamBacklog("host", 2)

	if val := gaugeVecValue(t, c.PropertyStreamBacklog, "host"); val != 2 {
		t.Errorf("PropertyStreamBacklog(host) = %v, want 2", val)
	}
}

func TestBoundObjectsAndAuthority(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)

	c.SetBoundObjects("host_default", 10)
	c.SetBoundObjects("client_delegated", 3)

	if val := gaugeVecValue(t, c.BoundObjects, "host_default"); val != 10 {
		t.Errorf("BoundObjects(host_default) = %v, want 10", val)
	}
	if val := gaugeVecValue(t, c.BoundObjects, "client_delegated"); val != 3 {
		t.Errorf("BoundObjects(client_delegated) = %v, want 3", val)
	}

	c.IncAuthorityGranted()
	c.IncAuthorityGranted()
	c.IncAuthorityRevoked()

	if val := counterVecValue(t, c.AuthorityDelegations, "grant"); val != 2 {
		t.Errorf("AuthorityDelegations(grant) = %v, want 2", val)
	}
	if val := counterVecValue(t, c.AuthorityDelegations, "revoke"); val != 1 {
		t.Errorf("AuthorityDelegations(revoke) = %v, want 1", val)
	}
}

// -------------------------------------------------------------------------
// Helpers
// -------------------------------------------------------------------------

// gaugeValue reads the current value of a plain Gauge.
func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()

	m := &dto.Metric{}
	if err := g.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}

	return m.GetGauge().GetValue()
}

// gaugeVecValue reads the current value of a GaugeVec with the given labels.
func gaugeVecValue(t *testing.T, vec *prometheus.GaugeVec, labels ...string) float64 {
	t.Helper()

	gauge, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues(%v): %v", labels, err)
	}

	m := &dto.Metric{}
	if err := gauge.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}

	return m.GetGauge().GetValue()
}

// counterVecValue reads the current value of a CounterVec with the given labels.
func counterVecValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()

	counter, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues(%v): %v", labels, err)
	}

	m := &dto.Metric{}
	if err := counter.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}

	return m.GetCounter().GetValue()
}
