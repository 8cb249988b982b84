package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/flight-seat-lock/internal/model"
	"github.com/iliyamo/flight-seat-lock/internal/seatlock"
)

type createSessionRequest struct {
	UserID            string `json:"userId" validate:"required,lockid"`
	DepartureFlightID string `json:"departureFlightId" validate:"required,lockid"`
	ReturnFlightID    string `json:"returnFlightId" validate:"omitempty,lockid"`
	BookingReference  string `json:"bookingReference" validate:"omitempty,lockid"`
}

// newBookingReference returns a short reference such as BK-1F3A9C0E.
func newBookingReference() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "BK-" + strings.ToUpper(id[:8])
}

func sessionView(s model.BookingSession) echo.Map {
	return echo.Map{
		"bookingReference":  s.BookingReference,
		"userId":            s.UserID,
		"departureFlightId": s.DepartureFlightID,
		"returnFlightId":    s.ReturnFlightID,
		"roundTrip":         s.RoundTrip(),
		"expiresAt":         s.Expiry().UTC().Format(time.RFC3339),
	}
}

// CreateSession handles POST /v1/booking-sessions.  It issues the
// sessionId the browser tab uses as half of its lock ownership, records
// the booking session and starts the inactivity timer.
func (h *SeatHandler) CreateSession(c echo.Context) error {
	var req createSessionRequest
	if err := bind(c, &req); err != nil {
		return fail(c, err, "")
	}
	if err := authorize(c, req.UserID); err != nil {
		return fail(c, err, "")
	}
	if req.BookingReference == "" {
		req.BookingReference = newBookingReference()
	}
	ctx := c.Request().Context()
	session, err := h.Sessions.Create(ctx, seatlock.NewBooking{
		UserID:            req.UserID,
		BookingReference:  req.BookingReference,
		DepartureFlightID: req.DepartureFlightID,
		ReturnFlightID:    req.ReturnFlightID,
	})
	if err != nil {
		return fail(c, err, "")
	}
	owner := seatlock.Owner{UserID: req.UserID, SessionID: uuid.NewString()}
	if _, err := h.Cleanup.Touch(ctx, owner, session.BookingReference); err != nil {
		// the locks still expire on their own
		c.Logger().Warnf("start activity for %s: %v", owner.UserID, err)
	}
	view := sessionView(session)
	view["sessionId"] = owner.SessionID
	return respond(c, http.StatusCreated, "Booking session started.", view)
}

// GetSession handles GET /v1/booking-sessions/:ref.
func (h *SeatHandler) GetSession(c echo.Context) error {
	ref := c.Param("ref")
	if !seatlock.IsValidID(ref) {
		return respond(c, http.StatusBadRequest, "invalid booking reference", nil)
	}
	session, found, err := h.Sessions.Get(c.Request().Context(), ref)
	if err != nil {
		return fail(c, err, "")
	}
	if !found {
		return respond(c, http.StatusNotFound, "Booking session not found or expired.", nil)
	}
	if err := authorize(c, session.UserID); err != nil {
		return fail(c, err, "")
	}
	return respond(c, http.StatusOK, "ok", sessionView(session))
}

type activityRequest struct {
	ownerRequest
	BookingReference string `json:"bookingReference" validate:"omitempty,lockid"`
}

// Activity handles POST /v1/booking/activity.  The seat picker calls it
// on user interaction to keep the inactivity timer from firing.
func (h *SeatHandler) Activity(c echo.Context) error {
	var req activityRequest
	if err := bind(c, &req); err != nil {
		return fail(c, err, "")
	}
	if err := authorize(c, req.UserID); err != nil {
		return fail(c, err, "")
	}
	rec, err := h.Cleanup.Touch(c.Request().Context(), req.owner(), req.BookingReference)
	if err != nil {
		return fail(c, err, "")
	}
	return respond(c, http.StatusOK, "ok", echo.Map{
		"lastActivity": rec.LastActivity().UTC().Format(time.RFC3339),
	})
}

type visibilityRequest struct {
	ownerRequest
	Hidden bool `json:"hidden"`
}

// Visibility handles POST /v1/booking/visibility.  A hidden tab arms a
// short timer; becoming visible again cancels it.
func (h *SeatHandler) Visibility(c echo.Context) error {
	var req visibilityRequest
	if err := bind(c, &req); err != nil {
		return fail(c, err, "")
	}
	if err := authorize(c, req.UserID); err != nil {
		return fail(c, err, "")
	}
	h.Cleanup.SetHidden(req.owner(), req.Hidden)
	return respond(c, http.StatusOK, "ok", echo.Map{"hidden": req.Hidden})
}

// Quit handles POST /v1/booking/quit.
func (h *SeatHandler) Quit(c echo.Context) error {
	var req activityRequest
	if err := bind(c, &req); err != nil {
		return fail(c, err, "")
	}
	if err := authorize(c, req.UserID); err != nil {
		return fail(c, err, "")
	}
	report, err := h.Cleanup.HandleQuit(c.Request().Context(), req.owner(), req.BookingReference)
	return cleanupResult(c, report, err)
}
