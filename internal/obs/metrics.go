package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP-level metrics.
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	ready = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "service_ready",
		Help: "1 when the service considers itself ready.",
	})
)

// Circulation metrics.
var (
	loansCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "circ_loans_created_total",
		Help: "Loans created.",
	})
	loansReturnedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "circ_loans_returned_total",
		Help: "Loans returned.",
	})
	finesAssessedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "circ_fines_assessed_total",
		Help: "Fines assessed on late returns.",
	})
	outOfStockTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "circ_out_of_stock_total",
		Help: "Borrow attempts rejected for lack of copies.",
	})
)

// Init registers all metrics in the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration, ready,
		loansCreatedTotal, loansReturnedTotal, finesAssessedTotal, outOfStockTotal,
	)
}

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetReady records the readiness state for scraping.
func SetReady(ok bool) {
	if ok {
		ready.Set(1)
	} else {
		ready.Set(0)
	}
}

func CountLoanCreated()  { loansCreatedTotal.Inc() }
func CountLoanReturned() { loansReturnedTotal.Inc() }
func CountFineAssessed() { finesAssessedTotal.Inc() }
func CountOutOfStock()   { outOfStockTotal.Inc() }

// CanonicalPath collapses per-entity URL segments so metric labels stay
// low-cardinality.
func CanonicalPath(p string) string {
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	if p == "" {
		return "/"
	}
	segs := strings.Split(p, "/")
	// /v1/<collection>/<id>[/<action>]
	if len(segs) >= 4 && segs[1] == "v1" {
		switch segs[2] {
		case "loans", "fines", "books", "notifications", "users":
			if segs[3] != "" {
				segs[3] = ":id"
				if len(segs) > 5 {
					return p
				}
				return strings.Join(segs, "/")
			}
		}
	}
	return p
}

// Instrument wraps a handler with RPS/latency/in-flight measurement.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
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
