package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zapagenda/zapagenda/libs/httpx"
)

const Namespace = "zapagenda"

// Registry is a per-process registry carrying the Go and process collectors
// plus whatever each service registers on top.
type Registry struct {
	*prometheus.Registry
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

func NewRegistry(service string) *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	constLabels := prometheus.Labels{"service": service}
	r := &Registry{
		Registry: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   Namespace,
			Subsystem:   "http",
			Name:        "requests_total",
			Help:        "HTTP requests by route pattern, method and status code.",
			ConstLabels: constLabels,
		}, []string{"route", "method", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   Namespace,
			Subsystem:   "http",
			Name:        "request_duration_seconds",
			Help:        "HTTP request latency by route pattern.",
			ConstLabels: constLabels,
			Buckets:     prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
	reg.MustRegister(r.httpRequests, r.httpDuration)
	return r
}

func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.Registry, promhttp.HandlerOpts{Registry: r.Registry})
}

// Middleware records request counts and latency. The route label is the
// matched ServeMux pattern so ids never end up as label values.
func (r *Registry) Middleware() httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			start := time.Now()
			sw := httpx.NewStatusRecorder(w)
			next.ServeHTTP(sw, req)

			route := req.Pattern
			if route == "" {
				route = "unmatched"
			}
			r.httpRequests.WithLabelValues(route, req.Method, strconv.Itoa(sw.Status())).Inc()
			r.httpDuration.WithLabelValues(route, req.Method).Observe(time.Since(start).Seconds())
		})
	}
}
