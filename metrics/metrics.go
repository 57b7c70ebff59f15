package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"interoprelay/types"
)

const namespaceRoot = "interop_relayer"

// Recorder is what the relay components report to
type Recorder interface {
	ObserveRequest(route, method string, code int, elapsed time.Duration)
	RelayOutcome(status types.Status)
	FlowsInFlight(delta int)
	BlockProcessed(chainID uint64, height uint64)
}

type Nop struct{}

func (Nop) ObserveRequest(string, string, int, time.Duration) {}
func (Nop) RelayOutcome(types.Status)                         {}
func (Nop) FlowsInFlight(int)                                 {}
func (Nop) BlockProcessed(uint64, uint64)                     {}

type Prometheus struct {
	registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	relayOutcomes   *prometheus.CounterVec
	flowsInFlight   prometheus.Gauge
	processedHeight *prometheus.GaugeVec
}

func NewPrometheus() *Prometheus {
	p := &Prometheus{
		registry: prometheus.NewRegistry(),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespaceRoot,
			Name:      "http_request_duration_seconds",
			Help:      "duration of status API requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method", "code"}),
		relayOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespaceRoot,
			Name:      "relay_outcomes_total",
			Help:      "relay flows that reached a terminal status",
		}, []string{"status"}),
		flowsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespaceRoot,
			Name:      "relay_flows_in_flight",
			Help:      "relay flows that have not reached a terminal status",
		}),
		processedHeight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespaceRoot,
			Name:      "processed_block_height",
			Help:      "last block fully handled by the watcher",
		}, []string{"chain"}),
	}

	p.registry.MustRegister(
		p.requestDuration,
		p.relayOutcomes,
		p.flowsInFlight,
		p.processedHeight,
		collectors.NewGoCollector(),
	)
	return p
}

func (p *Prometheus) ObserveRequest(route, method string, code int, elapsed time.Duration) {
	p.requestDuration.WithLabelValues(route, method, strconv.Itoa(code)).Observe(elapsed.Seconds())
}

func (p *Prometheus) RelayOutcome(status types.Status) {
	p.relayOutcomes.WithLabelValues(string(status)).Inc()
}

func (p *Prometheus) FlowsInFlight(delta int) {
	p.flowsInFlight.Add(float64(delta))
}

func (p *Prometheus) BlockProcessed(chainID uint64, height uint64) {
	p.processedHeight.WithLabelValues(strconv.FormatUint(chainID, 10)).Set(float64(height))
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Middleware observes every request under its chi route pattern
func Middleware(rec Recorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			code := ww.Status()
			if code == 0 {
				code = http.StatusOK
			}
			rec.ObserveRequest(route, r.Method, code, time.Since(start))
		})
	}
}
