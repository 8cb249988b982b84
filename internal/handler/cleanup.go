package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/flight-seat-lock/internal/seatlock"
)

// ReleaseOne handles POST /v1/cleanup/seat (seat deselected).
func (h *SeatHandler) ReleaseOne(c echo.Context) error {
	var req seatRequest
	if err := bind(c, &req); err != nil {
		return fail(c, err, "")
	}
	if err := authorize(c, req.UserID); err != nil {
		return fail(c, err, req.SeatID)
	}
	out, err := h.Cleanup.ReleaseOne(c.Request().Context(), req.owner(), req.seat())
	if err != nil {
		return fail(c, err, req.SeatID)
	}
	h.interacted(c, req.owner())
	return respond(c, http.StatusOK, "Seat "+req.SeatID+" deselected.", echo.Map{"outcome": out.String()})
}

// ReleaseAll handles POST /v1/cleanup/all.
func (h *SeatHandler) ReleaseAll(c echo.Context) error {
	var req ownerRequest
	if err := bind(c, &req); err != nil {
		return fail(c, err, "")
	}
	if err := authorize(c, req.UserID); err != nil {
		return fail(c, err, "")
	}
	report, err := h.Cleanup.ReleaseAll(c.Request().Context(), req.owner())
	return cleanupResult(c, report, err)
}

type bookingCleanupRequest struct {
	BookingReference string `json:"bookingReference" validate:"required,lockid"`
	SessionID        string `json:"sessionId" validate:"required,lockid"`
}

// ReleaseBooking handles POST /v1/cleanup/booking: releases the seats of
// the user behind a booking reference and drops the booking session.
func (h *SeatHandler) ReleaseBooking(c echo.Context) error {
	var req bookingCleanupRequest
	if err := bind(c, &req); err != nil {
		return fail(c, err, "")
	}
	ctx := c.Request().Context()
	session, found, err := h.Sessions.Get(ctx, req.BookingReference)
	if err != nil {
		return fail(c, err, "")
	}
	if found {
		if err := authorize(c, session.UserID); err != nil {
			return fail(c, err, "")
		}
	}
	report, err := h.Cleanup.ReleaseAllForBookingReference(ctx, req.BookingReference, req.SessionID)
	return cleanupResult(c, report, err)
}

// Immediate handles POST /v1/cleanup/immediate.
func (h *SeatHandler) Immediate(c echo.Context) error {
	var req ownerRequest
	if err := bind(c, &req); err != nil {
		return fail(c, err, "")
	}
	if err := authorize(c, req.UserID); err != nil {
		return fail(c, err, "")
	}
	report, err := h.Cleanup.ImmediateCleanup(c.Request().Context(), req.owner())
	return cleanupResult(c, report, err)
}

type beaconRequest struct {
	UserID           string `json:"userId"`
	SessionID        string `json:"sessionId"`
	BookingReference string `json:"bookingReference"`
}

// Beacon handles POST /v1/cleanup-booking, sent by navigator.sendBeacon
// when the page unloads.  Browsers send it as text/plain or a Blob, so
// the body is decoded as JSON whatever the content type says.  The
// response is 202 before any cleanup runs; nobody is waiting for it.
func (h *SeatHandler) Beacon(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, 4<<10))
	if err != nil {
		return respond(c, http.StatusBadRequest, "unreadable body", nil)
	}
	var req beaconRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return respond(c, http.StatusBadRequest, "invalid beacon payload", nil)
	}
	owner := seatlock.Owner{UserID: req.UserID, SessionID: req.SessionID}
	if !seatlock.IsValidID(owner.UserID) || !seatlock.IsValidID(owner.SessionID) {
		return respond(c, http.StatusBadRequest, "userId and sessionId are required", nil)
	}
	if req.BookingReference != "" && !seatlock.IsValidID(req.BookingReference) {
		req.BookingReference = ""
	}
	h.Cleanup.Abandon(c.Request().Context(), owner, req.BookingReference)
	return respond(c, http.StatusAccepted, "cleanup scheduled", nil)
}
