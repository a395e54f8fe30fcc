package observability

import (
	"net/http"
	"time"

	"github.com/pipstrip/pipstrip/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	responsesTotal         *prometheus.CounterVec
	directivesRemovedTotal *prometheus.CounterVec
	responseDuration       *prometheus.HistogramVec
	interceptorAttached    prometheus.Gauge
	configReloadsTotal     *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		responsesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "pipstrip_responses_total", Help: "Total intercepted responses"},
			[]string{"source", "route", "outcome"},
		),
		directivesRemovedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "pipstrip_directives_removed_total", Help: "Total Feature-Policy directives removed"},
			[]string{"source", "route"},
		),
		responseDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pipstrip_response_duration_seconds",
				Help:    "Response duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"source", "route"},
		),
		interceptorAttached: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "pipstrip_interceptor_attached", Help: "1 when the interceptor is attached"},
		),
		configReloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "pipstrip_config_reloads_total", Help: "Config reload attempts"},
			[]string{"result"},
		),
	}

	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.responsesTotal,
		m.directivesRemovedTotal,
		m.responseDuration,
		m.interceptorAttached,
		m.configReloadsTotal,
	)

	return m
}

func (m *Metrics) Handler(reg *prometheus.Registry) http.Handler {
	if reg == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

func (m *Metrics) Observe(event logging.Event) {
	if m == nil {
		return
	}

	route := event.RouteID
	if route == "" {
		route = "none"
	}

	m.responsesTotal.WithLabelValues(event.Source, route, event.Outcome).Inc()
	m.responseDuration.WithLabelValues(event.Source, route).Observe((time.Duration(event.DurationMS) * time.Millisecond).Seconds())
	if event.Removed > 0 {
		m.directivesRemovedTotal.WithLabelValues(event.Source, route).Add(float64(event.Removed))
	}
}

func (m *Metrics) SetAttached(attached bool) {
	if m == nil {
		return
	}
	if attached {
		m.interceptorAttached.Set(1)
		return
	}
	m.interceptorAttached.Set(0)
}

func (m *Metrics) ObserveReload(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.configReloadsTotal.WithLabelValues(result).Inc()
}
