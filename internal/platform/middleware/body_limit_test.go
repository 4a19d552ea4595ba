package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestParseLimit(t *testing.T) {
	cases := []struct {
		input string
		want  int64
	}{
		{"1M", 1 << 20},
		{"10M", 10 << 20},
		{"2MB", 2 << 20},
		{"512K", 512 << 10},
		{"4KB", 4 << 10},
		{"1G", 1 << 30},
		{"1024", 1024},
		{" 5M ", 5 << 20},
		{"", 1 << 20},
		{"invalid", 1 << 20},
		{"0", 1 << 20},
		{"-3M", 1 << 20},
	}
	for _, tc := range cases {
		if got := parseLimit(tc.input); got != tc.want {
			t.Errorf("parseLimit(%q) = %d, want %d", tc.input, got, tc.want)
		}
	}
}

// runBodyLimited sends one request through BodyLimit into a handler that
// drains the body. It reports the recorder, the handler error and whether
// the handler ran.
func runBodyLimited(t *testing.T, defaultLimit, scheduleLimit, method, path string, body []byte, contentLength int64) (*httptest.ResponseRecorder, error, bool) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if contentLength != 0 {
		req.ContentLength = contentLength
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	called := false
	h := BodyLimit(defaultLimit, scheduleLimit)(func(c echo.Context) error {
		called = true
		if _, err := io.ReadAll(c.Request().Body); err != nil {
			return err
		}
		return c.String(http.StatusOK, "ok")
	})
	return rec, h(c), called
}

func TestBodyLimit_AllowsSmallBody(t *testing.T) {
	rec, err, called := runBodyLimited(t, "1M", "10M",
		http.MethodPost, "/api/v1/patients", []byte(`{"name":"Alice Park"}`), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called || rec.Code != http.StatusOK {
		t.Errorf("called=%v code=%d", called, rec.Code)
	}
}

func TestBodyLimit_RejectsByContentLength(t *testing.T) {
	rec, err, called := runBodyLimited(t, "1K", "10M",
		http.MethodPost, "/api/v1/appointments", bytes.Repeat([]byte("x"), 2048), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if called {
		t.Error("handler ran despite oversized Content-Length")
	}
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", rec.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode 413 body: %v", err)
	}
	if body["error"] == "" {
		t.Error("413 body has no error message")
	}
}

func TestBodyLimit_ScheduleReplaceGetsLargerTier(t *testing.T) {
	// 2 KiB template: over the 1K default, under the 10M schedule tier.
	payload := bytes.Repeat([]byte("x"), 2048)

	_, err, called := runBodyLimited(t, "1K", "10M",
		http.MethodPut, "/api/v1/doctors/doc-1/schedule", payload, 0)
	if err != nil || !called {
		t.Errorf("schedule replace within tier: err=%v called=%v", err, called)
	}

	// Same payload over both tiers is still rejected.
	rec, err, called := runBodyLimited(t, "512", "1K",
		http.MethodPut, "/api/v1/doctors/doc-1/schedule", payload, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if called || rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("oversized schedule: called=%v code=%d", called, rec.Code)
	}
}

func TestIsScheduleReplace(t *testing.T) {
	cases := []struct {
		method, path string
		want         bool
	}{
		{http.MethodPut, "/api/v1/doctors/d1/schedule", true},
		{http.MethodPut, "/api/v1/doctors/d1/schedule/", true},
		{http.MethodPost, "/api/v1/doctors/d1/schedule", false},
		{http.MethodPut, "/api/v1/appointments", false},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		if got := isScheduleReplace(req); got != tc.want {
			t.Errorf("isScheduleReplace(%s %s) = %v, want %v", tc.method, tc.path, got, tc.want)
		}
	}
}

func TestBodyLimit_SkipsNilBody(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/patients", nil), httptest.NewRecorder())

	called := false
	h := BodyLimit("1M", "10M")(func(c echo.Context) error {
		called = true
		return c.String(http.StatusOK, "ok")
	})
	if err := h(c); err != nil || !called {
		t.Errorf("GET without body: err=%v called=%v", err, called)
	}
}

func TestBodyLimit_EnforcesLimitDuringRead(t *testing.T) {
	// No declared length: the limit must bite while reading.
	_, err, called := runBodyLimited(t, "512", "10M",
		http.MethodPost, "/api/v1/appointments", bytes.Repeat([]byte("a"), 1024), -1)
	if !called {
		t.Fatal("handler should start reading before the limit trips")
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("err = %v, want 413 HTTPError", err)
	}
}

func TestLimitedBody_StaysFailedAfterOverflow(t *testing.T) {
	b := &limitedBody{rc: io.NopCloser(bytes.NewReader(bytes.Repeat([]byte("z"), 100))), remaining: 10}

	buf := make([]byte, 64)
	if _, err := b.Read(buf); err == nil {
		t.Fatal("read past limit did not fail")
	}
	if _, err := b.Read(buf); err == nil {
		t.Fatal("subsequent read after overflow did not fail")
	}
}
