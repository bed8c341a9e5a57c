// Package metrics exposes the broker's Prometheus collectors. The event
// loop calls these as plain method calls at the points it already
// mutates state — never as a dispatch path — so instrumentation can
// never perturb the ordering guarantees of spec.md §5.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Recorder is the narrow interface internal/loop depends on, so tests
// can supply a no-op implementation without pulling in Prometheus.
type Recorder interface {
	ClientRegistered()
	ClientUnregistered()
	RequestStarted(backend string)
	RequestEnded(backend, reason string)
	DaemonStateChanged(started bool)
}

// Prometheus is the production Recorder, registered against reg.
type Prometheus struct {
	clients        prometheus.Gauge
	requests       *prometheus.GaugeVec
	requestsEnded  *prometheus.CounterVec
	daemonStarts   prometheus.Counter
	daemonStops    prometheus.Counter
}

// NewPrometheus creates and registers the broker's collectors against
// reg. Passing prometheus.NewRegistry() (rather than the global default
// registry) lets multiple brokers coexist in one process, e.g. in tests.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	p := &Prometheus{
		clients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "nsdbroker",
			Name:      "clients",
			Help:      "Number of registered clients.",
		}),
		requests: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "nsdbroker",
			Name:      "requests",
			Help:      "Number of outstanding requests by backend.",
		}, []string{"backend"}),
		requestsEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nsdbroker",
			Name:      "requests_ended_total",
			Help:      "Requests that ended, by backend and reason.",
		}, []string{"backend", "reason"}),
		daemonStarts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nsdbroker",
			Name:      "daemon_starts_total",
			Help:      "Legacy daemon start transitions.",
		}),
		daemonStops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nsdbroker",
			Name:      "daemon_stops_total",
			Help:      "Legacy daemon stop transitions.",
		}),
	}
	reg.MustRegister(p.clients, p.requests, p.requestsEnded, p.daemonStarts, p.daemonStops)
	return p
}

func (p *Prometheus) ClientRegistered()   { p.clients.Inc() }
func (p *Prometheus) ClientUnregistered() { p.clients.Dec() }

func (p *Prometheus) RequestStarted(backend string) {
	p.requests.WithLabelValues(backend).Inc()
}

func (p *Prometheus) RequestEnded(backend, reason string) {
	p.requests.WithLabelValues(backend).Dec()
	p.requestsEnded.WithLabelValues(backend, reason).Inc()
}

func (p *Prometheus) DaemonStateChanged(started bool) {
	if started {
		p.daemonStarts.Inc()
		return
	}
	p.daemonStops.Inc()
}

// Noop is a Recorder that does nothing, the default for library callers
// who don't want Prometheus wired in.
type Noop struct{}

func (Noop) ClientRegistered()              {}
func (Noop) ClientUnregistered()            {}
func (Noop) RequestStarted(string)          {}
func (Noop) RequestEnded(string, string)    {}
func (Noop) DaemonStateChanged(bool)        {}
