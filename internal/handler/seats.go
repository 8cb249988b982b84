package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/flight-seat-lock/internal/seatlock"
)

// Acquire handles POST /v1/seats/acquire.  A repeated call by the same
// session renews the lock.
func (h *SeatHandler) Acquire(c echo.Context) error {
	var req seatRequest
	if err := bind(c, &req); err != nil {
		return fail(c, err, "")
	}
	if err := authorize(c, req.UserID); err != nil {
		return fail(c, err, req.SeatID)
	}
	grant, err := h.Locks.Acquire(c.Request().Context(), req.seat(), req.owner())
	if err != nil {
		return fail(c, err, req.SeatID)
	}
	h.interacted(c, req.owner())
	msg := "Seat " + req.SeatID + " is reserved for you."
	if grant.Renewed {
		msg = "Seat " + req.SeatID + " reservation extended."
	}
	return respond(c, http.StatusOK, msg, echo.Map{
		"expiresAt":  grant.ExpiresAt.UTC().Format(time.RFC3339),
		"renewed":    grant.Renewed,
		"ttlSeconds": int(h.Locks.LockTTL().Seconds()),
	})
}

// Release handles POST /v1/seats/release.  Releasing a seat that is not
// locked succeeds.
func (h *SeatHandler) Release(c echo.Context) error {
	var req seatRequest
	if err := bind(c, &req); err != nil {
		return fail(c, err, "")
	}
	if err := authorize(c, req.UserID); err != nil {
		return fail(c, err, req.SeatID)
	}
	out, err := h.Locks.Release(c.Request().Context(), req.seat(), req.owner())
	if err != nil {
		return fail(c, err, req.SeatID)
	}
	h.interacted(c, req.owner())
	msg := "Seat " + req.SeatID + " released."
	if out == seatlock.NotLocked {
		msg = "Seat " + req.SeatID + " was not locked."
	}
	return respond(c, http.StatusOK, msg, echo.Map{"outcome": out.String()})
}

// Status handles GET /v1/flights/:flightId/seats/:seatId/lock.
func (h *SeatHandler) Status(c echo.Context) error {
	seat := seatlock.SeatRef{FlightID: c.Param("flightId"), SeatID: c.Param("seatId")}
	if !seatlock.IsValidID(seat.FlightID) || !seatlock.IsValidID(seat.SeatID) {
		return respond(c, http.StatusBadRequest, "invalid flight or seat id", nil)
	}
	st := h.Locks.Status(c.Request().Context(), seat)
	fields := echo.Map{"locked": st.Locked}
	if st.Locked {
		fields["lockedBy"] = st.LockedBy
		fields["expiresAt"] = st.ExpiresAt.UTC().Format(time.RFC3339)
	}
	return respond(c, http.StatusOK, "ok", fields)
}

// UserSeats handles GET /v1/users/:userId/flights/:flightId/seats and
// lists the seats the registry records for the user on that flight.
func (h *SeatHandler) UserSeats(c echo.Context) error {
	userID, flightID := c.Param("userId"), c.Param("flightId")
	if err := authorize(c, userID); err != nil {
		return fail(c, err, "")
	}
	seats, err := h.Registry.Seats(c.Request().Context(), userID, flightID)
	if err != nil {
		return fail(c, err, "")
	}
	if seats == nil {
		seats = []string{}
	}
	return respond(c, http.StatusOK, "ok", echo.Map{"flightId": flightID, "seats": seats})
}

// ReleaseFlight handles DELETE /v1/users/:userId/flights/:flightId/seats?sessionId=.
func (h *SeatHandler) ReleaseFlight(c echo.Context) error {
	owner := seatlock.Owner{UserID: c.Param("userId"), SessionID: c.QueryParam("sessionId")}
	if !seatlock.IsValidID(owner.SessionID) {
		return respond(c, http.StatusBadRequest, "sessionId query parameter is required", nil)
	}
	if err := authorize(c, owner.UserID); err != nil {
		return fail(c, err, "")
	}
	report, err := h.Cleanup.ReleaseFlight(c.Request().Context(), owner, c.Param("flightId"))
	return cleanupResult(c, report, err)
}

type lockView struct {
	SeatID    string `json:"seatId"`
	LockedBy  string `json:"lockedBy"`
	ExpiresAt string `json:"expiresAt"`
}

// Availability handles GET /v1/flights/:flightId/seats: sold seats from
// the durable store plus the seats currently locked.
func (h *SeatHandler) Availability(c echo.Context) error {
	flightID := c.Param("flightId")
	if !seatlock.IsValidID(flightID) {
		return respond(c, http.StatusBadRequest, "invalid flight id", nil)
	}
	ctx := c.Request().Context()
	occupied, err := h.Occupancy.OccupiedSeats(ctx, flightID)
	if err != nil {
		c.Logger().Errorf("occupied seats for %s: %v", flightID, err)
		return respond(c, http.StatusServiceUnavailable, retryMessage, nil)
	}
	locks, err := h.Locks.FlightLocks(ctx, flightID)
	if err != nil {
		return fail(c, err, "")
	}
	views := make([]lockView, 0, len(locks))
	for _, l := range locks {
		views = append(views, lockView{
			SeatID:    l.SeatID,
			LockedBy:  l.UserID,
			ExpiresAt: l.Expiry().UTC().Format(time.RFC3339),
		})
	}
	if occupied == nil {
		occupied = []string{}
	}
	return respond(c, http.StatusOK, "ok", echo.Map{
		"flightId": flightID,
		"occupied": occupied,
		"locked":   views,
	})
}
