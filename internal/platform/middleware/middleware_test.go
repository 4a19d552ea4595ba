package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func logLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("log line is not JSON: %v\n%s", err, buf.String())
	}
	return m
}

func TestRequestID_GeneratesNew(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := RequestID()(func(c echo.Context) error {
		if rid, _ := c.Get("request_id").(string); rid == "" {
			t.Error("request_id missing from context")
		}
		return c.String(http.StatusOK, "ok")
	})
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("X-Request-ID response header missing")
	}
}

func TestRequestID_PreservesExisting(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "my-custom-id")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := RequestID()(func(c echo.Context) error {
		if rid, _ := c.Get("request_id").(string); rid != "my-custom-id" {
			t.Errorf("request_id = %q, want my-custom-id", rid)
		}
		return c.String(http.StatusOK, "ok")
	})
	h(c)

	if got := rec.Header().Get(RequestIDHeader); got != "my-custom-id" {
		t.Errorf("response header = %q, want my-custom-id", got)
	}
}

func TestLogger_EmitsStructuredLine(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/doctors", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("request_id", "req-42")
	c.Set("practice_id", "practice-a")

	h := Logger(logger)(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	line := logLine(t, &buf)
	for field, want := range map[string]any{
		"level":       "info",
		"request_id":  "req-42",
		"practice_id": "practice-a",
		"method":      "GET",
		"path":        "/api/v1/doctors",
		"status":      float64(200),
	} {
		if got := line[field]; got != want {
			t.Errorf("log field %s = %v, want %v", field, got, want)
		}
	}
	if _, ok := line["latency"]; !ok {
		t.Error("latency missing from log line")
	}
}

func TestLogger_ErrorsLogAtErrorLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/boom", nil), httptest.NewRecorder())

	h := Logger(logger)(func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusBadGateway, "upstream down")
	})
	if err := h(c); err == nil {
		t.Fatal("handler error not propagated")
	}

	line := logLine(t, &buf)
	if line["level"] != "error" {
		t.Errorf("level = %v, want error", line["level"])
	}
	if line["error"] == nil {
		t.Error("error field missing")
	}
}

func TestRecovery_CatchesPanic(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/panic", nil), httptest.NewRecorder())
	c.Set("request_id", "req-9")

	h := Recovery(logger)(func(c echo.Context) error {
		panic("boom")
	})
	err := h(c)
	if err == nil {
		t.Fatal("expected error from recovered panic")
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusInternalServerError {
		t.Fatalf("err = %v, want 500 HTTPError", err)
	}

	line := logLine(t, &buf)
	if line["panic"] != "boom" || line["request_id"] != "req-9" {
		t.Errorf("panic log line = %v", line)
	}
	if stack, _ := line["stack"].(string); stack == "" {
		t.Error("stack trace missing from panic log")
	}
}

func TestRecovery_PassesThrough(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/ok", nil), httptest.NewRecorder())

	h := Recovery(zerolog.Nop())(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
