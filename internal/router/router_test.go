package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/spot-confirmation/internal/confirmation"
	"github.com/iliyamo/spot-confirmation/internal/dashboard"
	"github.com/iliyamo/spot-confirmation/internal/handler"
	"github.com/iliyamo/spot-confirmation/internal/metrics"
	"github.com/iliyamo/spot-confirmation/internal/model"
	"github.com/iliyamo/spot-confirmation/internal/reminder"
	"github.com/iliyamo/spot-confirmation/internal/repository"
	"github.com/iliyamo/spot-confirmation/internal/sweeper"
	"github.com/iliyamo/spot-confirmation/internal/utils"
)

const secret = "router-secret"

func newServer(t *testing.T) (*echo.Echo, *logtest.Hook) {
	t.Helper()
	ctx := context.Background()
	store := repository.NewMemoryStore()
	require.NoError(t, store.PutEvent(ctx, model.Event{ID: "ev-1", PromoterID: "pro-1", StartsAt: time.Now().Add(48 * time.Hour)}))
	require.NoError(t, store.CreateSpot(ctx, model.Spot{ID: "spot-1", EventID: "ev-1", PaymentAmount: decimal.Zero}))

	logger, hook := logtest.NewNullLogger()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	svc := confirmation.New(store, store, confirmation.WithLogger(logger), confirmation.WithMetrics(m))
	policy, err := reminder.NewPolicy(reminder.DefaultTiers()...)
	require.NoError(t, err)
	sw := sweeper.New(svc, policy, nil, sweeper.Config{Logger: logger, Metrics: m})

	e := echo.New()
	RegisterRoutes(e, Deps{
		JWTSecret: secret,
		Timeout:   5 * time.Second,
		Logger:    logger,
		Gatherer:  reg,
		Spots:     handler.NewSpotHandler(svc),
		Dashboard: handler.NewDashboardHandler(dashboard.NewService(store, store, nil)),
		Admin:     handler.NewAdminHandler(sw),
	})
	return e, hook
}

func token(t *testing.T, sub, role string) string {
	t.Helper()
	tok, err := utils.NewAccessToken(secret, sub, role, time.Hour)
	require.NoError(t, err)
	return tok.Token
}

func send(e *echo.Echo, method, path, tok, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if tok != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestProbes(t *testing.T) {
	e, _ := newServer(t)

	assert.Equal(t, http.StatusOK, send(e, http.MethodGet, "/healthz", "", "").Code)

	rec := send(e, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "spots_")
}

func TestConfirmationFlow(t *testing.T) {
	e, hook := newServer(t)
	pro := token(t, "pro-1", "promoter")
	com := token(t, "com-1", "comedian")

	rec := send(e, http.MethodPost, "/v1/spots/spot-1/invite", pro, `{"comedian_id":"com-1","deadline_hours":2}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = send(e, http.MethodPost, "/v1/spots/spot-1/confirm", com, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"status":"confirmed"`)

	rec = send(e, http.MethodGet, "/v1/spots/spot-1/history", com, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"to_status":"confirmed"`)

	rec = send(e, http.MethodGet, "/v1/dashboard", pro, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"confirmed_today":1`)

	var logged bool
	for _, entry := range hook.AllEntries() {
		if entry.Message == "request processed" && entry.Data["user_id"] == "com-1" {
			logged = true
		}
	}
	assert.True(t, logged)
}

func TestBatchInviteRoute(t *testing.T) {
	e, _ := newServer(t)

	rec := send(e, http.MethodPost, "/v1/spots/invite", token(t, "pro-1", "PROMOTER"), `{"invites":[{"spot_id":"spot-1","comedian_id":"com-1"}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"results"`)
}

func TestRoleEnforcement(t *testing.T) {
	e, _ := newServer(t)

	cases := []struct {
		name, method, path, sub, role string
		want                          int
	}{
		{"no token", http.MethodGet, "/v1/spots/spot-1", "", "", http.StatusUnauthorized},
		{"comedian cannot invite", http.MethodPost, "/v1/spots/spot-1/invite", "com-1", "COMEDIAN", http.StatusForbidden},
		{"promoter cannot confirm", http.MethodPost, "/v1/spots/spot-1/confirm", "pro-1", "PROMOTER", http.StatusForbidden},
		{"comedian cannot read dashboard", http.MethodGet, "/v1/dashboard", "com-1", "COMEDIAN", http.StatusForbidden},
		{"promoter cannot sweep", http.MethodPost, "/v1/admin/sweep", "pro-1", "PROMOTER", http.StatusForbidden},
		{"admin sweeps", http.MethodPost, "/v1/admin/sweep", "ops", "ADMIN", http.StatusOK},
		{"anyone reads a spot", http.MethodGet, "/v1/spots/spot-1", "com-7", "COMEDIAN", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tok := ""
			if tc.sub != "" {
				tok = token(t, tc.sub, tc.role)
			}
			body := ""
			if tc.method == http.MethodPost {
				body = `{"comedian_id":"com-1"}`
			}
			assert.Equal(t, tc.want, send(e, tc.method, tc.path, tok, body).Code)
		})
	}
}
