package middleware

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"
)

// Timeout bounds the request context.  Handlers pass the context down to
// the store, so a slow database surfaces as a context error instead of a
// hung connection.  A committed transition is not undone by the timeout.
func Timeout(d time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if d <= 0 {
			return next
		}
		return func(c echo.Context) error {
			ctx, cancel := context.WithTimeout(c.Request().Context(), d)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}
