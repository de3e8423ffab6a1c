package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "auction_worker"

// Metrics groups the worker's collectors. A nil *Metrics records nothing, so
// components can be built without one in tests.
type Metrics struct {
	bids             *prometheus.CounterVec
	stageTransitions *prometheus.CounterVec
	timerLateness    *prometheus.HistogramVec
	timerMisfires    *prometheus.CounterVec
	dbRetries        *prometheus.CounterVec
	kafkaMessages    *prometheus.CounterVec
	kafkaDuration    *prometheus.HistogramVec

	httpInFlight        prometheus.Gauge
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// New registers every collector on reg, which also backs Handler.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		bids: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bids_total",
			Help:      "Bid submissions by discipline and outcome.",
		}, []string{"discipline", "result"}),
		stageTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_transitions_total",
			Help:      "Committed stage transitions by kind.",
		}, []string{"kind"}),
		timerLateness: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "timer_lateness_seconds",
			Help:      "Delay between a timer's scheduled and actual fire time.",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 30, 100, 300},
		}, []string{"job"}),
		timerMisfires: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "timer_misfires_total",
			Help:      "Timers that fired later than the misfire grace window.",
		}, []string{"job"}),
		dbRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "db_retries_total",
			Help:      "Document store attempts that failed and were retried.",
		}, []string{"op"}),
		kafkaMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_messages_total",
			Help:      "Kafka messages by direction and outcome.",
		}, []string{"direction", "result"}),
		kafkaDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_duration_seconds",
			Help:      "Kafka publish and handle latencies.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"direction"}),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_in_flight_requests",
			Help: "In-flight HTTP requests.",
		}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		gatherer: reg,
	}

	reg.MustRegister(
		m.bids, m.stageTransitions, m.timerLateness, m.timerMisfires, m.dbRetries,
		m.kafkaMessages, m.kafkaDuration,
		m.httpInFlight, m.httpRequestsTotal, m.httpRequestDuration,
	)
	return m
}

func (m *Metrics) BidAccepted(discipline string) {
	if m == nil {
		return
	}
	m.bids.WithLabelValues(discipline, "accepted").Inc()
}

func (m *Metrics) BidRejected(discipline string) {
	if m == nil {
		return
	}
	m.bids.WithLabelValues(discipline, "rejected").Inc()
}

func (m *Metrics) StageTransition(kind string) {
	if m == nil {
		return
	}
	m.stageTransitions.WithLabelValues(kind).Inc()
}

// TimerFired records how late a timer ran and whether it missed its grace.
func (m *Metrics) TimerFired(job string, lateness time.Duration, misfired bool) {
	if m == nil {
		return
	}
	m.timerLateness.WithLabelValues(job).Observe(lateness.Seconds())
	if misfired {
		m.timerMisfires.WithLabelValues(job).Inc()
	}
}

func (m *Metrics) DBRetry(op string) {
	if m == nil {
		return
	}
	m.dbRetries.WithLabelValues(op).Inc()
}

func (m *Metrics) KafkaMessage(direction string, d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.kafkaMessages.WithLabelValues(direction, result).Inc()
	m.kafkaDuration.WithLabelValues(direction).Observe(d.Seconds())
}

// Handler exposes the registry the collectors were registered on.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Instrument measures request count, latency and in-flight requests.
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.httpInFlight.Inc()
		defer m.httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		status := strconv.Itoa(sw.code)
		m.httpRequestDuration.WithLabelValues(r.Method, r.URL.Path, status).Observe(time.Since(start).Seconds())
		m.httpRequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
	})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
