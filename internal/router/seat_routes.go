package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/flight-seat-lock/internal/handler"
	"github.com/iliyamo/flight-seat-lock/internal/middleware"
)

// RegisterSeats registers the shopper endpoints under /v1.  When
// jwtSecret is set every route except the unload beacon requires a bearer
// token whose subject matches the userId acted for.  limiter, when
// non-nil, runs after authentication so buckets can be keyed by user.
func RegisterSeats(e *echo.Echo, h *handler.SeatHandler, jwtSecret string, limiter echo.MiddlewareFunc) {
	var mw []echo.MiddlewareFunc
	if jwtSecret != "" {
		mw = append(mw, middleware.JWTAuth(jwtSecret))
	}
	if limiter != nil {
		mw = append(mw, limiter)
	}
	g := e.Group("/v1", mw...)

	// seat locks
	g.POST("/seats/acquire", h.Acquire)
	g.POST("/seats/release", h.Release)
	g.GET("/flights/:flightId/seats", h.Availability)
	g.GET("/flights/:flightId/seats/:seatId/lock", h.Status)
	g.GET("/users/:userId/flights/:flightId/seats", h.UserSeats)
	g.DELETE("/users/:userId/flights/:flightId/seats", h.ReleaseFlight)

	// cleanup
	g.POST("/cleanup/seat", h.ReleaseOne)
	g.POST("/cleanup/all", h.ReleaseAll)
	g.POST("/cleanup/booking", h.ReleaseBooking)
	g.POST("/cleanup/immediate", h.Immediate)

	// booking sessions
	g.POST("/booking-sessions", h.CreateSession)
	g.GET("/booking-sessions/:ref", h.GetSession)
	g.POST("/booking/activity", h.Activity)
	g.POST("/booking/visibility", h.Visibility)
	g.POST("/booking/quit", h.Quit)

	// sendBeacon cannot set an Authorization header; the random
	// sessionId is what scopes the cleanup.
	if limiter != nil {
		e.POST("/v1/cleanup-booking", h.Beacon, limiter)
	} else {
		e.POST("/v1/cleanup-booking", h.Beacon)
	}
}
