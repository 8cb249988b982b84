package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/flight-seat-lock/internal/cleanup"
	"github.com/iliyamo/flight-seat-lock/internal/handler"
	"github.com/iliyamo/flight-seat-lock/internal/metrics"
	"github.com/iliyamo/flight-seat-lock/internal/seatlock"
	"github.com/iliyamo/flight-seat-lock/internal/seatlock/seatlocktest"
)

func newEcho(t *testing.T, jwtSecret string) *echo.Echo {
	t.Helper()
	_, rdb := seatlocktest.NewStore(t)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	registry := seatlock.NewRegistry(rdb, 0)
	locks := seatlock.NewManager(rdb, seatlocktest.NewOccupancy(), registry, seatlock.WithMetrics(m))
	sessions := seatlock.NewBookingSessions(rdb, 0)
	orch := cleanup.NewOrchestrator(locks, registry, sessions, seatlock.NewActivity(rdb, 0), cleanup.WithMetrics(m))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = orch.Close(ctx)
	})

	e := echo.New()
	e.Validator = handler.NewRequestValidator()
	RegisterRoutes(e, reg, map[string]handler.Check{
		"redis": func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	})
	RegisterSeats(e, handler.NewSeatHandler(locks, registry, sessions, orch, seatlocktest.NewOccupancy()), jwtSecret, nil)
	return e
}

func serve(e *echo.Echo, method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestOperationalRoutes(t *testing.T) {
	e := newEcho(t, "")

	assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/healthz", "", "").Code)
	assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/readyz", "", "").Code)

	acquire := `{"userId":"alice","sessionId":"s1","flightId":"100","seatId":"1A"}`
	require.Equal(t, http.StatusOK, serve(e, http.MethodPost, "/v1/seats/acquire", acquire, "").Code)

	rec := serve(e, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `seatlock_acquisitions_total{result="granted"} 1`)
}

func TestSeatRoutesRequireTokenWhenConfigured(t *testing.T) {
	e := newEcho(t, "secret")
	acquire := `{"userId":"alice","sessionId":"s1","flightId":"100","seatId":"1A"}`

	assert.Equal(t, http.StatusUnauthorized, serve(e, http.MethodPost, "/v1/seats/acquire", acquire, "").Code)

	token := func(sub string) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": sub}).SignedString([]byte("secret"))
		require.NoError(t, err)
		return s
	}
	assert.Equal(t, http.StatusForbidden, serve(e, http.MethodPost, "/v1/seats/acquire", acquire, token("bob")).Code)
	assert.Equal(t, http.StatusOK, serve(e, http.MethodPost, "/v1/seats/acquire", acquire, token("alice")).Code)

	// the unload beacon carries no token
	rec := serve(e, http.MethodPost, "/v1/cleanup-booking", `{"userId":"alice","sessionId":"s1"}`, "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
}
