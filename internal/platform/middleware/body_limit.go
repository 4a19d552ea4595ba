package middleware

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

// BodyLimit caps request body size. defaultLimit applies to most
// endpoints; weekly template replacements (PUT .../schedule) carry a full
// week of entries in one request and get the larger scheduleLimit.
//
// Limits are human-readable strings: a bare number is bytes, and K / M /
// G suffixes (optionally with a trailing B) scale it. Oversized requests
// are answered with 413 and a JSON error body.
func BodyLimit(defaultLimit string, scheduleLimit string) echo.MiddlewareFunc {
	defaultBytes := parseLimit(defaultLimit)
	scheduleBytes := parseLimit(scheduleLimit)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Body == nil || req.Body == http.NoBody {
				return next(c)
			}

			limit := defaultBytes
			if isScheduleReplace(req) {
				limit = scheduleBytes
			}

			// Declared length allows rejecting before reading anything.
			if req.ContentLength > limit {
				return payloadTooLargeError(c, limit)
			}

			// The reader still enforces the limit for chunked bodies and
			// lying Content-Length headers.
			req.Body = &limitedBody{rc: req.Body, remaining: limit}

			return next(c)
		}
	}
}

func isScheduleReplace(req *http.Request) bool {
	return req.Method == http.MethodPut &&
		strings.HasSuffix(strings.TrimSuffix(req.URL.Path, "/"), "/schedule")
}

var errBodyTooLarge = echo.NewHTTPError(http.StatusRequestEntityTooLarge, "request body too large")

// limitedBody fails the read once more than the allowed bytes have been
// consumed.
type limitedBody struct {
	rc        io.ReadCloser
	remaining int64
}

func (b *limitedBody) Read(p []byte) (int, error) {
	if b.remaining < 0 {
		return 0, errBodyTooLarge
	}
	// Read one byte past the limit so overflow is detectable.
	if int64(len(p)) > b.remaining+1 {
		p = p[:b.remaining+1]
	}
	n, err := b.rc.Read(p)
	b.remaining -= int64(n)
	if b.remaining < 0 {
		return 0, errBodyTooLarge
	}
	return n, err
}

func (b *limitedBody) Close() error {
	return b.rc.Close()
}

func payloadTooLargeError(c echo.Context, limit int64) error {
	return c.JSON(http.StatusRequestEntityTooLarge, map[string]string{
		"error": fmt.Sprintf("request body exceeds maximum allowed size of %d bytes", limit),
	})
}

var sizeSuffixes = []struct {
	suffix string
	mult   int64
}{
	{"GB", 1 << 30}, {"G", 1 << 30},
	{"MB", 1 << 20}, {"M", 1 << 20},
	{"KB", 1 << 10}, {"K", 1 << 10},
}

// parseLimit converts a size string to bytes, falling back to 1 MB when
// the string is empty or malformed.
func parseLimit(s string) int64 {
	const fallback = 1 << 20

	s = strings.ToUpper(strings.TrimSpace(s))
	mult := int64(1)
	for _, sz := range sizeSuffixes {
		if rest, ok := strings.CutSuffix(s, sz.suffix); ok {
			s, mult = rest, sz.mult
			break
		}
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return fallback
	}
	return n * mult
}
