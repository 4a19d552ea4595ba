package telemetry

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// Span is one completed request's trace record.
type Span struct {
	TraceID    string            `json:"trace_id"`
	SpanID     string            `json:"span_id"`
	Name       string            `json:"name"`
	Start      time.Time         `json:"start"`
	End        time.Time         `json:"end"`
	Failed     bool              `json:"failed"`
	Attributes map[string]string `json:"attributes"`
}

// Duration is the span's wall-clock length.
func (s *Span) Duration() time.Duration {
	return s.End.Sub(s.Start)
}

// spanBuffer retains the most recent spans in a fixed ring. Once full,
// new spans overwrite the oldest.
type spanBuffer struct {
	mu    sync.Mutex
	ring  []*Span
	next  int
	count int
}

func newSpanBuffer(limit int) *spanBuffer {
	return &spanBuffer{ring: make([]*Span, limit)}
}

func (b *spanBuffer) add(s *Span) {
	b.mu.Lock()
	b.ring[b.next] = s
	b.next = (b.next + 1) % len(b.ring)
	if b.count < len(b.ring) {
		b.count++
	}
	b.mu.Unlock()
}

// all returns retained spans oldest first.
func (b *spanBuffer) all() []*Span {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*Span, 0, b.count)
	start := b.next - b.count
	if start < 0 {
		start += len(b.ring)
	}
	for i := 0; i < b.count; i++ {
		out = append(out, b.ring[(start+i)%len(b.ring)])
	}
	return out
}

// Spans returns the retained span records, oldest first.
func (tp *TelemetryProvider) Spans() []*Span {
	return tp.spans.all()
}

// TracingMiddleware records a span for every request: route, method,
// status, the API resource touched and the practice the request ran
// under.
func (tp *TelemetryProvider) TracingMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if tp.cfg.DisableTracing {
				return next(c)
			}

			start := time.Now()
			err := next(c)
			end := time.Now()

			req := c.Request()
			route := routePattern(c)
			status := responseStatus(c, err)

			attrs := map[string]string{
				"http.method":      req.Method,
				"http.route":       route,
				"http.status_code": strconv.Itoa(status),
				"http.url":         req.URL.String(),
			}
			if res := extractAPIResource(req.URL.Path); res != "" {
				attrs["api.resource"] = res
			}
			if v, ok := c.Get("practice_id").(string); ok && v != "" {
				attrs["practice.id"] = v
			}

			tp.spans.add(&Span{
				TraceID:    randomHex(16),
				SpanID:     randomHex(8),
				Name:       req.Method + " " + route,
				Start:      start,
				End:        end,
				Failed:     status >= 500,
				Attributes: attrs,
			})

			return err
		}
	}
}

func randomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
