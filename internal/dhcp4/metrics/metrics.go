// Package metrics exposes Prometheus observability hooks for a DHCPv4
// client run: DORA attempt/retransmit/NAK counters and a gauge for the
// current state machine state, plus a [Server] that serves a registry's
// metrics over HTTP at /metrics.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hhubb22/herald/internal/dhcp4/statemachine"
)

// Metrics is one client run's set of DHCP counters and gauges, scoped to
// a struct instance rather than package-level globals, since a client
// run is not a process-wide singleton.
type Metrics struct {
	discoversSent  prometheus.Counter
	requestsSent   prometheus.Counter
	retransmits    prometheus.Counter
	naksReceived   prometheus.Counter
	leasesAcquired prometheus.Counter
	currentState   prometheus.Gauge
}

// New builds a [Metrics] set. Call [Metrics.Register] to attach it to a
// registry.
func New() *Metrics {
	return &Metrics{
		discoversSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dhcp4_discovers_sent_total",
			Help: "Total number of DHCPDISCOVER datagrams sent.",
		}),
		requestsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dhcp4_requests_sent_total",
			Help: "Total number of DHCPREQUEST datagrams sent, including retransmits.",
		}),
		retransmits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dhcp4_retransmits_total",
			Help: "Total number of Send actions issued in response to a Timeout, of either DISCOVER or REQUEST.",
		}),
		naksReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dhcp4_naks_received_total",
			Help: "Total number of DHCPNAK datagrams that restarted the client at Init.",
		}),
		leasesAcquired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dhcp4_leases_acquired_total",
			Help: "Total number of DHCPACK datagrams that produced a StoreLease action.",
		}),
		currentState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dhcp4_state",
			Help: "Current client state machine state (0=Init, 1=Selecting, 2=Requesting, 3=Bound).",
		}),
	}
}

// Register attaches every collector to registry.
func (m *Metrics) Register(registry *prometheus.Registry) {
	registry.MustRegister(
		m.discoversSent,
		m.requestsSent,
		m.retransmits,
		m.naksReceived,
		m.leasesAcquired,
		m.currentState,
	)
}

// ObserveState updates the state gauge.
func (m *Metrics) ObserveState(s statemachine.State) {
	m.currentState.Set(float64(s))
}

// IncDiscoverSent increments the DISCOVER counter.
func (m *Metrics) IncDiscoverSent() { m.discoversSent.Inc() }

// IncRequestSent increments the REQUEST counter.
func (m *Metrics) IncRequestSent() { m.requestsSent.Inc() }

// IncRetransmit increments the retransmit counter.
func (m *Metrics) IncRetransmit() { m.retransmits.Inc() }

// IncNAKReceived increments the NAK counter.
func (m *Metrics) IncNAKReceived() { m.naksReceived.Inc() }

// IncLeaseAcquired increments the lease-acquired counter.
func (m *Metrics) IncLeaseAcquired() { m.leasesAcquired.Inc() }

// Server serves a registry's collected metrics over HTTP at /metrics.
type Server struct {
	addr     string
	registry *prometheus.Registry
	http     *http.Server
}

// NewServer returns a Server that will serve registry's metrics on addr
// once started. addr may be empty, in which case [Server.Start] and
// [Server.Stop] are no-ops.
func NewServer(addr string, registry *prometheus.Registry) *Server {
	return &Server{addr: addr, registry: registry}
}

// shutdownTimeout bounds how long Stop waits for an in-flight scrape.
const shutdownTimeout = 2 * time.Second

// Start runs the metrics HTTP server in the background. It returns
// immediately; listen failures are reported to errFn rather than
// panicking the caller, since a metrics endpoint failing to bind should
// not abort a DHCP lease acquisition in progress.
func (s *Server) Start(errFn func(error)) {
	if s.addr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	s.http = &http.Server{Addr: s.addr, Handler: mux}

	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errFn(err)
		}
	}()
}

// Stop gracefully shuts the metrics server down, if it was started.
func (s *Server) Stop(ctx context.Context) error {
	if s.http == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	return s.http.Shutdown(ctx)
}
