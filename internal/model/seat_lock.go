package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// SeatLock represents a temporary hold on one seat of one flight while
// a shopper moves through seat selection and payment.  At most one
// lock exists per (FlightID, SeatID); the store's create-if-absent
// enforces that.  The lock belongs to the (UserID, SessionID) pair
// recorded inside it and to nobody else.
//
// Fields:
//
//	UserID    – account that holds the seat.
//	FlightID  – flight the seat belongs to.
//	SeatID    – seat being held (e.g. "12C").
//	SessionID – browser tab / booking attempt that owns the hold.
//	ExpiresAt – absolute expiry in Unix milliseconds.
type SeatLock struct {
	UserID    string `json:"userId"`
	FlightID  string `json:"flightId"`
	SeatID    string `json:"seatId"`
	SessionID string `json:"sessionId"`
	ExpiresAt int64  `json:"expiresAt"`
}

// NewSeatLock builds a lock that expires ttl after now.
func NewSeatLock(userID, flightID, seatID, sessionID string, now time.Time, ttl time.Duration) SeatLock {
	return SeatLock{
		UserID:    userID,
		FlightID:  flightID,
		SeatID:    seatID,
		SessionID: sessionID,
		ExpiresAt: now.Add(ttl).UnixMilli(),
	}
}

// OwnedBy reports whether the lock belongs to the given user session.
// Ownership is the pair, never the user alone.
func (l SeatLock) OwnedBy(userID, sessionID string) bool {
	return l.UserID == userID && l.SessionID == sessionID
}

// Expiry returns ExpiresAt as a UTC time.
func (l SeatLock) Expiry() time.Time {
	return time.UnixMilli(l.ExpiresAt).UTC()
}

// Encode serialises the lock for storage.
func (l SeatLock) Encode() ([]byte, error) {
	return json.Marshal(l)
}

// DecodeSeatLock parses a stored lock and rejects records that are
// missing any identifying field or an expiry.
func DecodeSeatLock(data []byte) (SeatLock, error) {
	var l SeatLock
	if err := decodeStrict(data, &l); err != nil {
		return SeatLock{}, fmt.Errorf("seat lock: %w", err)
	}
	if l.UserID == "" || l.FlightID == "" || l.SeatID == "" || l.SessionID == "" || l.ExpiresAt <= 0 {
		return SeatLock{}, fmt.Errorf("seat lock: %w: missing required field", ErrMalformedRecord)
	}
	return l, nil
}
