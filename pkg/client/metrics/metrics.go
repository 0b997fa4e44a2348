// Package metrics exposes the tunnel pool and request counters of a running
// devproxy process on a small /metrics endpoint alongside the proxy.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the gauges/counters for one running devproxy process.
type Registry struct {
	registry *prometheus.Registry

	openTunnels   prometheus.Gauge
	requestsTotal *prometheus.CounterVec
	tunnelEvicted prometheus.Counter
}

// NewRegistry builds and registers a fresh Registry.
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
		openTunnels: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "devproxy",
			Name:      "open_tunnels",
			Help:      "Number of currently active port-forward tunnels.",
		}),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "devproxy",
			Name:      "requests_total",
			Help:      "Number of proxied requests by outcome status code.",
		}, []string{"status"}),
		tunnelEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "devproxy",
			Name:      "tunnel_evictions_total",
			Help:      "Number of tunnels evicted by the maintenance loop.",
		}),
	}
	r.registry.MustRegister(r.openTunnels, r.requestsTotal, r.tunnelEvicted)
	return r
}

// SetOpenTunnels records the current size of the tunnel pool.
func (r *Registry) SetOpenTunnels(n int) {
	r.openTunnels.Set(float64(n))
}

// AddTunnelEvictions records that n tunnels were evicted by a maintenance
// tick.
func (r *Registry) AddTunnelEvictions(n int) {
	r.tunnelEvicted.Add(float64(n))
}

// Handler returns the HTTP handler serving this registry's metrics.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Instrument wraps next so every response status code is counted.
func (r *Registry) Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, req)
		r.requestsTotal.WithLabelValues(statusClass(sw.status)).Inc()
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func statusClass(status int) string {
	switch status / 100 {
	case 2:
		return "2xx"
	case 3:
		return "3xx"
	case 4:
		return "4xx"
	case 5:
		return "5xx"
	default:
		return "other"
	}
}
