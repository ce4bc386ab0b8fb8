package analytics

import (
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
)

// Snapshot is a point-in-time copy of the aggregated counters.
type Snapshot struct {
	TotalRequests int64            `json:"totalRequests"`
	ByStatus      map[int]int64    `json:"byStatus"`
	ByRoute       map[string]int64 `json:"byRoute"`
	Since         time.Time        `json:"since"`
}

// Aggregator collects request analytics for one server instance.
// It owns its prometheus registry so several instances can coexist in tests.
type Aggregator struct {
	registry *prometheus.Registry

	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight prometheus.Gauge

	mu       sync.Mutex
	total    int64
	byStatus map[int]int64
	byRoute  map[string]int64
	since    time.Time
	now      func() time.Time
}

func NewAggregator() *Aggregator {
	a := &Aggregator{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		inFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
		),
		now: time.Now,
	}
	a.registry.MustRegister(a.requests, a.duration, a.inFlight)
	a.resetCounters()
	return a
}

// Registry exposes the aggregator's collectors for scraping.
func (a *Aggregator) Registry() *prometheus.Registry {
	return a.registry
}

// Record adds one finished request.
func (a *Aggregator) Record(method, route string, status int, elapsed time.Duration) {
	a.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	a.duration.WithLabelValues(method, route).Observe(elapsed.Seconds())

	a.mu.Lock()
	a.total++
	a.byStatus[status]++
	a.byRoute[method+" "+route]++
	a.mu.Unlock()
}

func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	byStatus := make(map[int]int64, len(a.byStatus))
	for k, v := range a.byStatus {
		byStatus[k] = v
	}
	byRoute := make(map[string]int64, len(a.byRoute))
	for k, v := range a.byRoute {
		byRoute[k] = v
	}
	return Snapshot{TotalRequests: a.total, ByStatus: byStatus, ByRoute: byRoute, Since: a.since}
}

// Reset zeroes every counter, including the exported prometheus series.
func (a *Aggregator) Reset() {
	a.requests.Reset()
	a.duration.Reset()

	a.mu.Lock()
	a.resetCounters()
	a.mu.Unlock()
}

func (a *Aggregator) resetCounters() {
	a.total = 0
	a.byStatus = make(map[int]int64)
	a.byRoute = make(map[string]int64)
	a.since = a.now()
}

// Middleware records every request passing through the fiber app. statusOf
// maps a handler error to the status the app error handler will write; nil
// falls back to fiber.Error codes and 500.
func (a *Aggregator) Middleware(statusOf func(error) int) fiber.Handler {
	return func(c *fiber.Ctx) error {
		a.inFlight.Inc()
		defer a.inFlight.Dec()

		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			// The app error handler has not run yet
			status = defaultStatus(err)
			if statusOf != nil {
				status = statusOf(err)
			}
		}

		// Route pattern keeps label cardinality bounded
		route := c.Route().Path
		a.Record(c.Method(), route, status, time.Since(start))
		return err
	}
}

func defaultStatus(err error) int {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return fiber.StatusInternalServerError
}
