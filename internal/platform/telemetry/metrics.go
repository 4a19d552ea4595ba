package telemetry

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/labstack/echo/v4"
)

// Metric family names. Series keys are fully rendered Prometheus series
// strings built from these, so the registry needs no label schema of its
// own.
const (
	metricHTTPRequests = "medbook_http_requests_total"
	metricHTTPDuration = "medbook_http_request_duration_seconds"
	metricHTTPInFlight = "medbook_http_in_flight_requests"
	metricBookingOps   = "medbook_booking_operations_total"
)

// familyHelp maps a metric family to its HELP/TYPE exposition lines.
var familyHelp = map[string][2]string{
	metricHTTPRequests: {"Completed HTTP requests by method, route and status.", "counter"},
	metricHTTPDuration: {"HTTP request latency in seconds by route.", "histogram"},
	metricHTTPInFlight: {"HTTP requests currently being served.", "gauge"},
	metricBookingOps:   {"Booking engine operations by operation and outcome.", "counter"},
}

// latencyBuckets are the histogram upper bounds in seconds. Availability
// resolution dominates read latency, so the tail reaches 10s.
var latencyBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// series renders a Prometheus series key from a family name and label
// pairs. Labels are sorted so the same logical series always maps to the
// same key.
func series(family string, pairs ...string) string {
	if len(pairs) == 0 {
		return family
	}
	type kv struct{ k, v string }
	labels := make([]kv, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		labels = append(labels, kv{pairs[i], pairs[i+1]})
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i].k < labels[j].k })

	var b strings.Builder
	b.WriteString(family)
	b.WriteByte('{')
	for i, l := range labels {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%s=%q", l.k, l.v)
	}
	b.WriteByte('}')
	return b.String()
}

// hist accumulates observations with cumulative bucket counts, so export
// is a straight read.
type hist struct {
	bounds []float64
	counts []int64
	total  int64
	sum    float64
}

func newHist(bounds []float64) *hist {
	return &hist{bounds: bounds, counts: make([]int64, len(bounds))}
}

func (h *hist) observe(v float64) {
	for i, b := range h.bounds {
		if v <= b {
			h.counts[i]++
		}
	}
	h.total++
	h.sum += v
}

// registry holds every metric behind one mutex. Contention is a non-issue
// at the request rates a single booking instance serves; the simplicity
// pays for itself in export, which sees a consistent snapshot for free.
type registry struct {
	mu       sync.Mutex
	counters map[string]int64
	gauges   map[string]int64
	hists    map[string]*hist
}

func newRegistry() *registry {
	return &registry{
		counters: make(map[string]int64),
		gauges:   make(map[string]int64),
		hists:    make(map[string]*hist),
	}
}

func (r *registry) addCounter(key string, delta int64) {
	r.mu.Lock()
	r.counters[key] += delta
	r.mu.Unlock()
}

func (r *registry) counterValue(key string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters[key]
}

func (r *registry) addGauge(key string, delta int64) {
	r.mu.Lock()
	r.gauges[key] += delta
	r.mu.Unlock()
}

func (r *registry) gaugeValue(key string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gauges[key]
}

func (r *registry) observe(key string, bounds []float64, v float64) {
	r.mu.Lock()
	h, ok := r.hists[key]
	if !ok {
		h = newHist(bounds)
		r.hists[key] = h
	}
	h.observe(v)
	r.mu.Unlock()
}

func (r *registry) histSnapshot(key string) *hist {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.hists[key]
	if !ok {
		return nil
	}
	cp := &hist{
		bounds: h.bounds,
		counts: append([]int64(nil), h.counts...),
		total:  h.total,
		sum:    h.sum,
	}
	return cp
}

// MetricsMiddleware records request count, in-flight gauge and per-route
// latency for every request that passes through it.
func (tp *TelemetryProvider) MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if tp.cfg.DisableMetrics {
				return next(c)
			}

			tp.reg.addGauge(metricHTTPInFlight, 1)
			start := time.Now()

			err := next(c)

			elapsed := time.Since(start).Seconds()
			tp.reg.addGauge(metricHTTPInFlight, -1)

			route := routePattern(c)
			method := c.Request().Method

			tp.reg.addCounter(series(metricHTTPRequests,
				"method", method, "route", route,
				"status", statusClass(responseStatus(c, err))), 1)
			tp.reg.observe(series(metricHTTPDuration, "route", route),
				latencyBuckets, elapsed)

			return err
		}
	}
}

// routePattern prefers the registered route (with :params) over the raw
// URL path, keeping series cardinality bounded.
func routePattern(c echo.Context) string {
	if p := c.Path(); p != "" {
		return p
	}
	return c.Request().URL.Path
}

// responseStatus resolves the status a request will be answered with.
// When the handler returned an error the response is not written yet, so
// the status has to come from the error itself.
func responseStatus(c echo.Context, err error) int {
	if err == nil || c.Response().Committed {
		return c.Response().Status
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return http.StatusInternalServerError
}

// extractAPIResource pulls the resource segment out of a versioned API
// path: "/api/v1/appointments/123" yields "appointments". Paths outside
// the API surface, and segments that are not plain lowercase names,
// yield "".
func extractAPIResource(path string) string {
	rest, ok := strings.CutPrefix(path, "/api/v1/")
	if !ok {
		return ""
	}
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		rest = rest[:i]
	}
	if rest == "" || !unicode.IsLower(rune(rest[0])) {
		return ""
	}
	return rest
}

// statusClass folds an HTTP status into its class string ("2xx", "4xx",
// ...), keeping the request counter's label cardinality small.
func statusClass(status int) string {
	if status < 100 || status > 599 {
		return "unknown"
	}
	return strconv.Itoa(status/100) + "xx"
}
