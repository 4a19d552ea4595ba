package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// RequestTimeout bounds handler execution with a context deadline. When
// the deadline fires first the client gets a 504 with a JSON error body
// and the handler's context is cancelled so in-flight queries abort.
//
// Handlers that legitimately need longer (report exports, bulk schedule
// imports) should derive their own context rather than raising the
// server-wide limit.
func RequestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))

			done := make(chan error, 1)
			go func() { done <- next(c) }()

			select {
			case err := <-done:
				return err
			case <-ctx.Done():
				if ctx.Err() != context.DeadlineExceeded {
					// Client went away; nothing useful to write.
					return ctx.Err()
				}
				if c.Response().Committed {
					return nil
				}
				return c.JSON(http.StatusGatewayTimeout, map[string]string{
					"error": "request processing exceeded the allowed time limit",
				})
			}
		}
	}
}
