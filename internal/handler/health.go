package handler // HTTP handlers for the spot confirmation API

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Health is the liveness probe used by load balancers.  It always answers
// "ok" with 200 while the process is serving.
func Health(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}
