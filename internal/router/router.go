package router // package router wires handlers and middleware onto Echo

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/spot-confirmation/internal/handler"
	"github.com/iliyamo/spot-confirmation/internal/middleware"
)

// Deps is everything the routes need.  Limiter may be nil.
type Deps struct {
	JWTSecret string
	Timeout   time.Duration
	Logger    logrus.FieldLogger
	Gatherer  prometheus.Gatherer
	Limiter   *middleware.RateLimiter

	Spots     *handler.SpotHandler
	Dashboard *handler.DashboardHandler
	Admin     *handler.AdminHandler
}

// RegisterRoutes registers the unauthenticated probes and the /v1 API.
func RegisterRoutes(e *echo.Echo, d Deps) {
	e.GET("/healthz", handler.Health)
	if d.Gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	// JWT runs before the logger and limiter so both can key on the caller.
	v1 := e.Group("/v1",
		middleware.JWTAuth(d.JWTSecret),
		middleware.RequestLogger(d.Logger),
		d.Limiter.Middleware(),
	)
	if d.Timeout > 0 {
		v1.Use(middleware.Timeout(d.Timeout))
	}

	promoter := middleware.RequireRole(middleware.RolePromoter)
	comedian := middleware.RequireRole(middleware.RoleComedian)

	v1.POST("/spots/invite", d.Spots.InviteBatch, promoter)
	v1.POST("/spots/:id/invite", d.Spots.Invite, promoter)
	v1.POST("/spots/:id/extend", d.Spots.Extend, promoter)
	v1.POST("/spots/:id/confirm", d.Spots.Confirm, comedian)
	v1.POST("/spots/:id/decline", d.Spots.Decline, comedian)
	v1.GET("/spots/:id", d.Spots.Get)
	v1.GET("/spots/:id/history", d.Spots.History)

	v1.GET("/dashboard", d.Dashboard.Summary, promoter)

	admin := v1.Group("/admin", middleware.RequireRole(middleware.RoleAdmin))
	admin.POST("/sweep", d.Admin.Sweep)
}
