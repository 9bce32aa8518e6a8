package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/spot-confirmation/internal/confirmation"
	"github.com/iliyamo/spot-confirmation/internal/middleware"
)

// SpotHandler exposes the confirmation state machine over HTTP.  The
// caller's identity always comes from the access token, never the body.
type SpotHandler struct {
	Svc *confirmation.Service
}

// NewSpotHandler panics on a nil service.
func NewSpotHandler(svc *confirmation.Service) *SpotHandler {
	if svc == nil {
		panic("nil confirmation service passed to NewSpotHandler")
	}
	return &SpotHandler{Svc: svc}
}

// Invite handles POST /v1/spots/:id/invite.
func (h *SpotHandler) Invite(c echo.Context) error {
	var req inviteReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	out, err := h.Svc.Invite(c.Request().Context(), req.input(c.Param("id"), middleware.CurrentUserID(c)))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toOutcomeResp(out))
}

// InviteBatch handles POST /v1/spots/invite.  Each invite succeeds or
// fails on its own; the response lists them in request order.
func (h *SpotHandler) InviteBatch(c echo.Context) error {
	var req batchInviteReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if len(req.Invites) == 0 {
		return badRequest(c, "invites must not be empty")
	}

	promoter := middleware.CurrentUserID(c)
	inputs := make([]confirmation.InviteInput, 0, len(req.Invites))
	for _, r := range req.Invites {
		inputs = append(inputs, r.input("", promoter))
	}

	results := h.Svc.InviteMany(c.Request().Context(), inputs)
	items := make([]batchItemResp, 0, len(results))
	for _, r := range results {
		item := batchItemResp{SpotID: r.Input.SpotID}
		if r.Err != nil {
			_, item.Error = classify(r.Err)
			item.Message = confirmation.UserMessage(r.Err)
		} else {
			o := toOutcomeResp(r.Outcome)
			item.Outcome = &o
		}
		items = append(items, item)
	}
	return c.JSON(http.StatusOK, echo.Map{"results": items})
}

// Confirm handles POST /v1/spots/:id/confirm.
func (h *SpotHandler) Confirm(c echo.Context) error {
	out, err := h.Svc.Confirm(c.Request().Context(), c.Param("id"), middleware.CurrentUserID(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toOutcomeResp(out))
}

// Decline handles POST /v1/spots/:id/decline.  The body is optional.
func (h *SpotHandler) Decline(c echo.Context) error {
	var req declineReq
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return badRequest(c, "invalid body")
		}
	}
	out, err := h.Svc.Decline(c.Request().Context(), c.Param("id"), middleware.CurrentUserID(c), req.Notes)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toOutcomeResp(out))
}

// Extend handles POST /v1/spots/:id/extend.
func (h *SpotHandler) Extend(c echo.Context) error {
	var req extendReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if req.Deadline == nil {
		return badRequest(c, "deadline is required")
	}
	out, err := h.Svc.ExtendDeadline(c.Request().Context(), confirmation.ExtendInput{
		SpotID:      c.Param("id"),
		PromoterID:  middleware.CurrentUserID(c),
		NewDeadline: *req.Deadline,
		Reason:      req.Reason,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toOutcomeResp(out))
}

// Get handles GET /v1/spots/:id.
func (h *SpotHandler) Get(c echo.Context) error {
	s, err := h.Svc.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toSpotResp(s))
}

// History handles GET /v1/spots/:id/history, oldest entry first.
func (h *SpotHandler) History(c echo.Context) error {
	entries, err := h.Svc.History(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"spot_id": c.Param("id"), "history": toHistoryResp(entries)})
}
