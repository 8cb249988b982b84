// Package handler exposes the seat locking core over HTTP.  Every
// response is a JSON object carrying a success flag and a message the
// seat picker can show as is.
package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/flight-seat-lock/internal/cleanup"
	"github.com/iliyamo/flight-seat-lock/internal/middleware"
	"github.com/iliyamo/flight-seat-lock/internal/seatlock"
)

// OccupancyLister reports the seats of a flight that are sold for good.
type OccupancyLister interface {
	OccupiedSeats(ctx context.Context, flightID string) ([]string, error)
}

// SeatHandler groups the components behind the seat, cleanup and booking
// session endpoints.
type SeatHandler struct {
	Locks     *seatlock.Manager
	Registry  *seatlock.Registry
	Sessions  *seatlock.BookingSessions
	Cleanup   *cleanup.Orchestrator
	Occupancy OccupancyLister
}

// NewSeatHandler wires a SeatHandler.  All dependencies must be non-nil.
func NewSeatHandler(locks *seatlock.Manager, registry *seatlock.Registry, sessions *seatlock.BookingSessions, orch *cleanup.Orchestrator, occupancy OccupancyLister) *SeatHandler {
	if locks == nil || registry == nil || sessions == nil || orch == nil || occupancy == nil {
		panic("nil dependency passed to NewSeatHandler")
	}
	return &SeatHandler{
		Locks:     locks,
		Registry:  registry,
		Sessions:  sessions,
		Cleanup:   orch,
		Occupancy: occupancy,
	}
}

const retryMessage = "We could not process your request right now. Please try again."

// ownerRequest identifies the shopper session a request acts for.
type ownerRequest struct {
	UserID    string `json:"userId" validate:"required,lockid"`
	SessionID string `json:"sessionId" validate:"required,lockid"`
}

func (r ownerRequest) owner() seatlock.Owner {
	return seatlock.Owner{UserID: r.UserID, SessionID: r.SessionID}
}

type seatRequest struct {
	ownerRequest
	FlightID string `json:"flightId" validate:"required,lockid"`
	SeatID   string `json:"seatId" validate:"required,lockid"`
}

func (r seatRequest) seat() seatlock.SeatRef {
	return seatlock.SeatRef{FlightID: r.FlightID, SeatID: r.SeatID}
}

// bind decodes and validates the request body.  Failures wrap
// seatlock.ErrInvalidArgument so fail maps them to 400.
func bind(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return fmt.Errorf("%w: invalid request body", seatlock.ErrInvalidArgument)
	}
	if err := c.Validate(req); err != nil {
		return fmt.Errorf("%w: %v", seatlock.ErrInvalidArgument, err)
	}
	return nil
}

// authorize rejects callers acting for another user.  It is a no-op when
// authentication is disabled.
func authorize(c echo.Context, userID string) error {
	if !middleware.ActsFor(c, userID) {
		return fmt.Errorf("%w: caller %s may not act for %s", seatlock.ErrNotOwner, middleware.CallerID(c), userID)
	}
	return nil
}

// interacted restarts the owner's inactivity countdown after a seat
// was picked or dropped.  The seat operation has already succeeded, so a
// failure here is only logged.
func (h *SeatHandler) interacted(c echo.Context, owner seatlock.Owner) {
	if err := h.Cleanup.Interact(c.Request().Context(), owner); err != nil {
		c.Logger().Warnf("record activity for %s/%s: %v", owner.UserID, owner.SessionID, err)
	}
}

func respond(c echo.Context, status int, message string, fields echo.Map) error {
	body := echo.Map{"success": status < http.StatusBadRequest, "message": message}
	for k, v := range fields {
		body[k] = v
	}
	return c.JSON(status, body)
}

// fail maps err to a status and a shopper facing message.  seat, when
// non-empty, names the seat in denial messages.
func fail(c echo.Context, err error, seat string) error {
	switch {
	case errors.Is(err, seatlock.ErrInvalidArgument):
		return respond(c, http.StatusBadRequest, err.Error(), nil)
	case errors.Is(err, seatlock.ErrSeatHeld):
		return respond(c, http.StatusConflict, fmt.Sprintf("Seat %s is currently being booked by another passenger. Please choose a different seat.", seat), nil)
	case errors.Is(err, seatlock.ErrSeatOccupied):
		return respond(c, http.StatusConflict, fmt.Sprintf("Seat %s has already been booked. Please choose a different seat.", seat), nil)
	case errors.Is(err, seatlock.ErrNotOwner):
		return respond(c, http.StatusForbidden, "This seat is held by another booking session.", nil)
	case errors.Is(err, seatlock.ErrContention):
		c.Logger().Infof("contention on %s %s: %v", c.Request().Method, c.Path(), err)
		return respond(c, http.StatusServiceUnavailable, retryMessage, nil)
	default:
		c.Logger().Errorf("%s %s: %v", c.Request().Method, c.Path(), err)
		return respond(c, http.StatusServiceUnavailable, retryMessage, nil)
	}
}

// cleanupResult reports a bulk release.  Partial failures are logged and
// only show up as success=false; the store TTL finishes the job.
func cleanupResult(c echo.Context, report cleanup.Report, err error) error {
	if errors.Is(err, seatlock.ErrInvalidArgument) {
		return fail(c, err, "")
	}
	if err != nil {
		c.Logger().Warnf("cleanup %s incomplete: %v", c.Path(), err)
		return c.JSON(http.StatusOK, echo.Map{
			"success": false,
			"message": "Some seats could not be released yet. They will be freed automatically.",
			"report":  report,
		})
	}
	return respond(c, http.StatusOK, fmt.Sprintf("Released %d seat(s).", report.Released), echo.Map{"report": report})
}
