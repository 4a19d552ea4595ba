package telemetry

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func newProvider(cfg TelemetryConfig) *TelemetryProvider {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "test-service"
	}
	return NewTelemetryProvider(cfg)
}

func serve(t *testing.T, tp *TelemetryProvider, method, target string, handler echo.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	e.Use(tp.MetricsMiddleware())
	e.Use(tp.TracingMiddleware())
	e.Add(method, "/api/v1/appointments/:id", handler)
	e.Add(method, "/api/v1/doctors/:id/availability", handler)
	e.GET("/health", handler)

	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func ok(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func TestSeries_LabelOrderIsCanonical(t *testing.T) {
	a := series("m", "route", "/x", "method", "GET")
	b := series("m", "method", "GET", "route", "/x")
	if a != b {
		t.Fatalf("series keys differ for same labels: %q vs %q", a, b)
	}
	want := `m{method="GET",route="/x"}`
	if a != want {
		t.Errorf("series = %q, want %q", a, want)
	}
	if got := series("bare"); got != "bare" {
		t.Errorf("unlabeled series = %q, want bare name", got)
	}
}

func TestHist_CumulativeBuckets(t *testing.T) {
	h := newHist([]float64{0.1, 0.5, 1})
	for _, v := range []float64{0.05, 0.3, 0.7, 2} {
		h.observe(v)
	}
	want := []int64{1, 2, 3}
	for i, c := range h.counts {
		if c != want[i] {
			t.Errorf("bucket %d = %d, want %d", i, c, want[i])
		}
	}
	if h.total != 4 {
		t.Errorf("total = %d, want 4", h.total)
	}
	if h.sum != 0.05+0.3+0.7+2 {
		t.Errorf("sum = %g", h.sum)
	}
}

func TestBookingCounters(t *testing.T) {
	tp := newProvider(TelemetryConfig{})

	tp.BookingOutcome("booked")
	tp.BookingOutcome("booked")
	tp.BookingOutcome("conflict")
	tp.BookingOperationCounter("cancel", "ok")

	cases := []struct {
		operation, outcome string
		want               int64
	}{
		{"book", "booked", 2},
		{"book", "conflict", 1},
		{"cancel", "ok", 1},
		{"book", "transient", 0},
	}
	for _, tc := range cases {
		key := series(metricBookingOps, "operation", tc.operation, "outcome", tc.outcome)
		if got := tp.reg.counterValue(key); got != tc.want {
			t.Errorf("%s/%s = %d, want %d", tc.operation, tc.outcome, got, tc.want)
		}
	}
}

func TestMetricsMiddleware_RecordsRequest(t *testing.T) {
	tp := newProvider(TelemetryConfig{})

	rec := serve(t, tp, http.MethodGet, "/api/v1/appointments/abc", ok)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	key := series(metricHTTPRequests,
		"method", "GET", "route", "/api/v1/appointments/:id", "status", "2xx")
	if got := tp.reg.counterValue(key); got != 1 {
		t.Errorf("request counter = %d, want 1", got)
	}

	h := tp.reg.histSnapshot(series(metricHTTPDuration, "route", "/api/v1/appointments/:id"))
	if h == nil || h.total != 1 {
		t.Errorf("latency histogram missing or empty: %+v", h)
	}

	if got := tp.reg.gaugeValue(metricHTTPInFlight); got != 0 {
		t.Errorf("in-flight gauge = %d after request completed, want 0", got)
	}
}

func TestMetricsMiddleware_StatusClass(t *testing.T) {
	tp := newProvider(TelemetryConfig{})

	serve(t, tp, http.MethodGet, "/api/v1/appointments/missing", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "no such appointment")
	})

	key := series(metricHTTPRequests,
		"method", "GET", "route", "/api/v1/appointments/:id", "status", "4xx")
	if got := tp.reg.counterValue(key); got != 1 {
		t.Errorf("4xx counter = %d, want 1", got)
	}
}

func TestMetricsMiddleware_Disabled(t *testing.T) {
	tp := newProvider(TelemetryConfig{DisableMetrics: true})

	serve(t, tp, http.MethodGet, "/health", ok)

	tp.reg.mu.Lock()
	n := len(tp.reg.counters) + len(tp.reg.hists)
	tp.reg.mu.Unlock()
	if n != 0 {
		t.Errorf("disabled metrics still recorded %d series", n)
	}
}

func TestTracingMiddleware_RecordsSpan(t *testing.T) {
	tp := newProvider(TelemetryConfig{})

	e := echo.New()
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set("practice_id", "practice-a")
			return next(c)
		}
	})
	e.Use(tp.TracingMiddleware())
	e.GET("/api/v1/doctors/:id/availability", ok)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/doctors/d1/availability?from=2027-03-01", nil)
	e.ServeHTTP(httptest.NewRecorder(), req)

	spans := tp.Spans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	s := spans[0]
	if s.Name != "GET /api/v1/doctors/:id/availability" {
		t.Errorf("span name = %q", s.Name)
	}
	if s.Failed {
		t.Error("200 span marked failed")
	}
	if s.TraceID == "" || s.SpanID == "" || len(s.TraceID) != 32 {
		t.Errorf("span ids = %q / %q", s.TraceID, s.SpanID)
	}
	if s.Duration() < 0 {
		t.Errorf("negative duration %v", s.Duration())
	}
	for k, want := range map[string]string{
		"http.method":      "GET",
		"http.route":       "/api/v1/doctors/:id/availability",
		"http.status_code": "200",
		"api.resource":     "doctors",
		"practice.id":      "practice-a",
	} {
		if got := s.Attributes[k]; got != want {
			t.Errorf("attr %s = %q, want %q", k, got, want)
		}
	}
}

func TestTracingMiddleware_MarksServerErrors(t *testing.T) {
	tp := newProvider(TelemetryConfig{})

	serve(t, tp, http.MethodGet, "/api/v1/appointments/a1", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusInternalServerError, "boom")
	})

	spans := tp.Spans()
	if len(spans) != 1 || !spans[0].Failed {
		t.Fatalf("500 span not marked failed: %+v", spans)
	}
}

func TestTracingMiddleware_Disabled(t *testing.T) {
	tp := newProvider(TelemetryConfig{DisableTracing: true})
	serve(t, tp, http.MethodGet, "/health", ok)
	if n := len(tp.Spans()); n != 0 {
		t.Errorf("disabled tracing still recorded %d spans", n)
	}
}

func TestSpanBuffer_OverwritesOldest(t *testing.T) {
	b := newSpanBuffer(3)
	base := time.Date(2027, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		b.add(&Span{Name: "s", Start: base.Add(time.Duration(i) * time.Minute)})
	}
	got := b.all()
	if len(got) != 3 {
		t.Fatalf("retained %d spans, want 3", len(got))
	}
	// Oldest two were overwritten.
	if !got[0].Start.Equal(base.Add(2 * time.Minute)) {
		t.Errorf("oldest retained span starts %v, want %v", got[0].Start, base.Add(2*time.Minute))
	}
	if !got[2].Start.Equal(base.Add(4 * time.Minute)) {
		t.Errorf("newest retained span starts %v", got[2].Start)
	}
}

func TestPrometheusHandler_Exposition(t *testing.T) {
	tp := newProvider(TelemetryConfig{})

	serve(t, tp, http.MethodGet, "/api/v1/appointments/a1", ok)
	serve(t, tp, http.MethodGet, "/api/v1/appointments/a2", ok)
	tp.BookingOutcome("booked")

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := tp.PrometheusHandler()(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	body := rec.Body.String()

	for _, want := range []string{
		"# TYPE medbook_http_requests_total counter",
		`medbook_http_requests_total{method="GET",route="/api/v1/appointments/:id",status="2xx"} 2`,
		"# TYPE medbook_http_request_duration_seconds histogram",
		`medbook_http_request_duration_seconds_bucket{route="/api/v1/appointments/:id",le="+Inf"} 2`,
		`medbook_http_request_duration_seconds_count{route="/api/v1/appointments/:id"} 2`,
		`medbook_booking_operations_total{operation="book",outcome="booked"} 1`,
		"# TYPE medbook_http_in_flight_requests gauge",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("exposition missing %q\n%s", want, body)
		}
	}

	// Scrapes are deterministic.
	rec2 := httptest.NewRecorder()
	c2 := e.NewContext(httptest.NewRequest(http.MethodGet, "/metrics", nil), rec2)
	if err := tp.PrometheusHandler()(c2); err != nil {
		t.Fatalf("second scrape: %v", err)
	}
	if rec2.Body.String() != body {
		t.Error("two scrapes of unchanged state differ")
	}
}

func TestExtractAPIResource(t *testing.T) {
	cases := []struct {
		path string
		want string
	}{
		{"/api/v1/appointments/123", "appointments"},
		{"/api/v1/doctors", "doctors"},
		{"/api/v1/doctors/d1/availability", "doctors"},
		{"/api/v1/", ""},
		{"/health", ""},
		{"/internal/debug", ""},
		{"/api/v1/$batch", ""},
	}
	for _, tc := range cases {
		if got := extractAPIResource(tc.path); got != tc.want {
			t.Errorf("extractAPIResource(%q) = %q, want %q", tc.path, got, tc.want)
		}
	}
}

func TestStatusClass(t *testing.T) {
	cases := map[int]string{
		200: "2xx", 201: "2xx", 301: "3xx", 404: "4xx", 503: "5xx", 42: "unknown", 0: "unknown",
	}
	for in, want := range cases {
		if got := statusClass(in); got != want {
			t.Errorf("statusClass(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestServiceLabels_Defaults(t *testing.T) {
	tp := NewTelemetryProvider(TelemetryConfig{})
	labels := tp.ServiceLabels()
	if labels["service"] != "medbook-server" {
		t.Errorf("default service = %q", labels["service"])
	}
	if labels["environment"] != "development" {
		t.Errorf("default environment = %q", labels["environment"])
	}
}
