package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/spot-confirmation/internal/confirmation"
	"github.com/iliyamo/spot-confirmation/internal/repository"
)

// errorStatus maps a service error to an HTTP status and a stable code.
type errorStatus struct {
	err    error
	status int
	code   string
}

var errorStatuses = []errorStatus{
	{confirmation.ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
	{confirmation.ErrInvalidDeadline, http.StatusBadRequest, "invalid_deadline"},
	{confirmation.ErrSpotNotFound, http.StatusNotFound, "spot_not_found"},
	{confirmation.ErrEventNotFound, http.StatusNotFound, "event_not_found"},
	{confirmation.ErrUnauthorized, http.StatusForbidden, "not_event_owner"},
	{confirmation.ErrNotAssignedToComedian, http.StatusForbidden, "not_assigned"},
	{confirmation.ErrDeadlineExpired, http.StatusGone, "deadline_expired"},
	{confirmation.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{confirmation.ErrDeadlineMustAdvance, http.StatusConflict, "deadline_must_advance"},
	{confirmation.ErrSchedulingConflict, http.StatusConflict, "scheduling_conflict"},
	{confirmation.ErrConcurrentModification, http.StatusConflict, "concurrent_modification"},
	{repository.ErrConflict, http.StatusConflict, "already_exists"},
	{context.DeadlineExceeded, http.StatusServiceUnavailable, "timeout"},
}

func classify(err error) (int, string) {
	for _, s := range errorStatuses {
		if errors.Is(err, s.err) {
			return s.status, s.code
		}
	}
	return http.StatusInternalServerError, "internal"
}

// writeError renders err as {"error": code, "message": text}.  Concurrent
// modification is retryable, so it carries Retry-After.
func writeError(c echo.Context, err error) error {
	status, code := classify(err)
	if errors.Is(err, confirmation.ErrConcurrentModification) {
		c.Response().Header().Set("Retry-After", "1")
	}
	return c.JSON(status, echo.Map{"error": code, "message": confirmation.UserMessage(err)})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_input", "message": msg})
}
