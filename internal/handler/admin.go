package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/spot-confirmation/internal/sweeper"
)

// cycleRunner is satisfied by *sweeper.Sweeper.
type cycleRunner interface {
	RunCycle(ctx context.Context) (sweeper.Result, error)
}

// AdminHandler holds operator-only endpoints.
type AdminHandler struct {
	Sweeper cycleRunner
}

func NewAdminHandler(s cycleRunner) *AdminHandler {
	return &AdminHandler{Sweeper: s}
}

// Sweep handles POST /v1/admin/sweep by running one cycle inline.
func (h *AdminHandler) Sweep(c echo.Context) error {
	res, err := h.Sweeper.RunCycle(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}
