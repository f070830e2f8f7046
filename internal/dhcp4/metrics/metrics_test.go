package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hhubb22/herald/internal/dhcp4/metrics"
	"github.com/hhubb22/herald/internal/dhcp4/statemachine"
)

func TestMetrics_CountersIncrementIndependently(t *testing.T) {
	m := metrics.New()
	registry := prometheus.NewRegistry()
	m.Register(registry)

	m.IncDiscoverSent()
	m.IncDiscoverSent()
	m.IncRequestSent()
	m.IncNAKReceived()
	m.IncLeaseAcquired()
	m.ObserveState(statemachine.StateBound)

	families, err := registry.Gather()
	require.NoError(t, err)

	counts := map[string]float64{}
	for _, f := range families {
		for _, metric := range f.GetMetric() {
			switch {
			case metric.GetCounter() != nil:
				counts[f.GetName()] = metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				counts[f.GetName()] = metric.GetGauge().GetValue()
			}
		}
	}

	assert.Equal(t, 2.0, counts["dhcp4_discovers_sent_total"])
	assert.Equal(t, 1.0, counts["dhcp4_requests_sent_total"])
	assert.Equal(t, 1.0, counts["dhcp4_naks_received_total"])
	assert.Equal(t, 1.0, counts["dhcp4_leases_acquired_total"])
	assert.Equal(t, float64(statemachine.StateBound), counts["dhcp4_state"])
}

func TestServer_EmptyAddrIsNoOp(t *testing.T) {
	registry := prometheus.NewRegistry()
	s := metrics.NewServer("", registry)

	s.Start(func(err error) { t.Fatalf("unexpected listen error: %s", err) })
	assert.NoError(t, s.Stop(nil))
}
