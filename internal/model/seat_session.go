package model

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"
)

// UserSeatSession is the index of seats one user holds on one flight.
// It lets bulk cleanup find a user's locks without scanning every lock
// key.  Each listed seat should have a live SeatLock owned by UserID;
// a lock may briefly exist before its seat is listed here.
type UserSeatSession struct {
	UserID   string   `json:"userId"`
	FlightID string   `json:"flightId"`
	Seats    []string `json:"seats"`
}

// Add appends seatID when it is not already present and reports
// whether the set changed.
func (s *UserSeatSession) Add(seatID string) bool {
	if slices.Contains(s.Seats, seatID) {
		return false
	}
	s.Seats = append(s.Seats, seatID)
	return true
}

// Remove drops seatID and reports whether the set changed.
func (s *UserSeatSession) Remove(seatID string) bool {
	i := slices.Index(s.Seats, seatID)
	if i < 0 {
		return false
	}
	s.Seats = slices.Delete(s.Seats, i, i+1)
	return true
}

// Empty reports whether no seats remain.
func (s UserSeatSession) Empty() bool { return len(s.Seats) == 0 }

func (s UserSeatSession) Encode() ([]byte, error) {
	if s.Seats == nil {
		s.Seats = []string{}
	}
	return json.Marshal(s)
}

func DecodeUserSeatSession(data []byte) (UserSeatSession, error) {
	var s UserSeatSession
	if err := decodeStrict(data, &s); err != nil {
		return UserSeatSession{}, fmt.Errorf("user seat session: %w", err)
	}
	if s.UserID == "" || s.FlightID == "" {
		return UserSeatSession{}, fmt.Errorf("user seat session: %w: missing required field", ErrMalformedRecord)
	}
	for _, seat := range s.Seats {
		if seat == "" {
			return UserSeatSession{}, fmt.Errorf("user seat session: %w: empty seat id", ErrMalformedRecord)
		}
	}
	return s, nil
}

// UserActivity records the last interaction of a user's booking
// session.  The inactivity timer consults it so that activity seen by
// another process instance postpones cleanup.
type UserActivity struct {
	UserID           string `json:"userId"`
	SessionID        string `json:"sessionId"`
	BookingReference string `json:"bookingReference,omitempty"`
	LastActivityAt   int64  `json:"lastActivityAt"`
}

// LastActivity returns LastActivityAt as a UTC time.
func (a UserActivity) LastActivity() time.Time {
	return time.UnixMilli(a.LastActivityAt).UTC()
}

func (a UserActivity) Encode() ([]byte, error) { return json.Marshal(a) }

func DecodeUserActivity(data []byte) (UserActivity, error) {
	var a UserActivity
	if err := decodeStrict(data, &a); err != nil {
		return UserActivity{}, fmt.Errorf("user activity: %w", err)
	}
	if a.UserID == "" || a.SessionID == "" || a.LastActivityAt <= 0 {
		return UserActivity{}, fmt.Errorf("user activity: %w: missing required field", ErrMalformedRecord)
	}
	return a, nil
}
