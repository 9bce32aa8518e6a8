package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/spot-confirmation/internal/dashboard"
	"github.com/iliyamo/spot-confirmation/internal/middleware"
)

// DashboardHandler serves the promoter's deadline summary.
type DashboardHandler struct {
	Dash *dashboard.Service
}

func NewDashboardHandler(d *dashboard.Service) *DashboardHandler {
	return &DashboardHandler{Dash: d}
}

// Summary handles GET /v1/dashboard?window=24h.
func (h *DashboardHandler) Summary(c echo.Context) error {
	window := dashboard.DefaultWindow
	if raw := c.QueryParam("window"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return badRequest(c, "window must be a positive duration such as 24h")
		}
		window = d
	}
	sum, err := h.Dash.SummarizeForPromoter(c.Request().Context(), middleware.CurrentUserID(c), window)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, sum)
}
