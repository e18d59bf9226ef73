package metrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTPMetrics holds scrape-based request and access-control instruments.
type HTTPMetrics struct {
	registerer prometheus.Registerer
	gatherer   prometheus.Gatherer

	requests       *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	authzDecisions *prometheus.CounterVec
}

// NewHTTPMetrics registers instruments on the default prometheus registry.
func NewHTTPMetrics(cfg Config) (*HTTPMetrics, error) {
	return newHTTPMetrics(prometheus.DefaultRegisterer, prometheus.DefaultGatherer, cfg)
}

func newHTTPMetrics(registerer prometheus.Registerer, gatherer prometheus.Gatherer, cfg Config) (*HTTPMetrics, error) {
	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "membership"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	m := &HTTPMetrics{
		registerer: registerer,
		gatherer:   gatherer,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "membership_http_requests_total",
			Help:        "HTTP requests by route, method and status code.",
			ConstLabels: constLabels,
		}, []string{"route", "method", "status_code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "membership_http_request_duration_seconds",
			Help:        "HTTP request latency by route.",
			Buckets:     []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			ConstLabels: constLabels,
		}, []string{"route", "method"}),
		authzDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "membership_authorization_decisions_total",
			Help:        "Permission checks by permission and decision.",
			ConstLabels: constLabels,
		}, []string{"permission", "decision"}),
	}

	for _, c := range []prometheus.Collector{m.requests, m.duration, m.authzDecisions} {
		if err := registerer.Register(c); err != nil {
			if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
				switch existing := already.ExistingCollector.(type) {
				case *prometheus.CounterVec:
					if c == m.requests {
						m.requests = existing
					} else {
						m.authzDecisions = existing
					}
				case *prometheus.HistogramVec:
					m.duration = existing
				}
				continue
			}
			return nil, err
		}
	}
	return m, nil
}

// RecordAuthorization counts an allow or deny decision.
func (m *HTTPMetrics) RecordAuthorization(permission string, allowed bool) {
	if m == nil {
		return
	}
	decision := "deny"
	if allowed {
		decision = "allow"
	}
	m.authzDecisions.WithLabelValues(permission, decision).Inc()
}

// GinMiddleware records request counts and latency by matched route.
func (m *HTTPMetrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		method := c.Request.Method
		m.requests.WithLabelValues(route, method, strconv.Itoa(c.Writer.Status())).Inc()
		m.duration.WithLabelValues(route, method).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the prometheus scrape endpoint.
func (m *HTTPMetrics) Handler() gin.HandlerFunc {
	gatherer := prometheus.DefaultGatherer
	if m != nil && m.gatherer != nil {
		gatherer = m.gatherer
	}
	h := promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
	return gin.WrapH(h)
}
