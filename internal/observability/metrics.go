package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Client-side (SDK) metrics.
var (
	OutboundRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rtb_outbound_requests_total",
			Help: "Outbound ad/report requests by HTTP status code",
		}, []string{"code"},
	)
	OutboundLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "rtb_outbound_request_duration_seconds",
		Help:    "Outbound request latency seconds",
		Buckets: prometheus.DefBuckets,
	})
	OutboundInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rtb_outbound_in_flight",
		Help: "In-flight outbound HTTP requests",
	})
	OutboundErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rtb_outbound_errors_total",
			Help: "Outbound transport errors by type",
		}, []string{"type"},
	)
	SlotOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rtb_slot_outcomes_total",
			Help: "Single-slot request outcomes by status code",
		}, []string{"code"},
	)
	BatchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "rtb_batch_duration_seconds",
		Help:    "Time from batch dispatch to batch callback",
		Buckets: prometheus.DefBuckets,
	})
	BatchSlotsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rtb_batch_slots_dropped_total",
		Help: "Slots whose outcome was left out of a batch aggregate",
	})
	BatchDeadlines = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rtb_batch_deadline_total",
		Help: "Batches delivered at the deadline with slots still pending",
	})
	Beacons = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rtb_beacons_total",
			Help: "Tracking reports dispatched by kind",
		}, []string{"kind"},
	)
	WorkersActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rtb_workers_active",
		Help: "Worker pool tasks currently running",
	})
)

// Sandbox server metrics.
var (
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sandbox_requests_total",
			Help: "Total sandbox requests",
		}, []string{"code"},
	)
	Latency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sandbox_request_duration_seconds",
		Help:    "Request latency seconds",
		Buckets: prometheus.DefBuckets,
	})
	InFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sandbox_in_flight",
		Help: "In-flight HTTP requests",
	})
	RequestErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sandbox_request_errors_total",
			Help: "Total errors by type",
		}, []string{"type"},
	)
)

func init() {
	prometheus.MustRegister(
		OutboundRequests, OutboundLatency, OutboundInFlight, OutboundErrors,
		SlotOutcomes, BatchDuration, BatchSlotsDropped, BatchDeadlines, Beacons, WorkersActive,
		RequestsTotal, Latency, InFlight, RequestErrors,
	)
}

func MetricsHandler() http.Handler { return promhttp.Handler() }

type rec struct {
	http.ResponseWriter
	code int
}

func (r *rec) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func Measure(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		InFlight.Inc()
		defer InFlight.Dec()

		rr := &rec{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rr, r)

		Latency.Observe(time.Since(start).Seconds())
		RequestsTotal.WithLabelValues(strconv.Itoa(rr.code)).Inc()
	})
}

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

// MeasureTransport is Measure for outbound requests.
func MeasureTransport(next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		start := time.Now()
		OutboundInFlight.Inc()
		defer OutboundInFlight.Dec()

		resp, err := next.RoundTrip(r)
		OutboundLatency.Observe(time.Since(start).Seconds())
		if err != nil {
			OutboundErrors.WithLabelValues("round_trip").Inc()
			return nil, err
		}
		OutboundRequests.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()
		return resp, nil
	})
}
