package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// BookingSession groups one booking attempt under its reference so
// cleanup and finalization can cascade across both legs of a round
// trip.
//
// Fields:
//
//	UserID            – shopper who started the booking.
//	BookingReference  – reference shown to the shopper and the payment provider.
//	DepartureFlightID – outbound leg.
//	ReturnFlightID    – inbound leg, empty for one-way trips.
//	SelectedSeats     – seats picked per leg.
//	ExpiresAt         – absolute expiry in Unix milliseconds.
type BookingSession struct {
	UserID            string        `json:"userId"`
	BookingReference  string        `json:"bookingReference"`
	DepartureFlightID string        `json:"departureFlightId"`
	ReturnFlightID    string        `json:"returnFlightId,omitempty"`
	SelectedSeats     SelectedSeats `json:"selectedSeats"`
	ExpiresAt         int64         `json:"expiresAt"`
}

// SelectedSeats holds the seats chosen for each leg.
type SelectedSeats struct {
	Departure []string `json:"departure"`
	Return    []string `json:"return,omitempty"`
}

// NewBookingSession builds a session expiring ttl after now.
func NewBookingSession(userID, reference, departureFlightID, returnFlightID string, now time.Time, ttl time.Duration) BookingSession {
	s := BookingSession{
		UserID:            userID,
		BookingReference:  reference,
		DepartureFlightID: departureFlightID,
		ReturnFlightID:    returnFlightID,
		SelectedSeats:     SelectedSeats{Departure: []string{}},
		ExpiresAt:         now.Add(ttl).UnixMilli(),
	}
	if returnFlightID != "" {
		s.SelectedSeats.Return = []string{}
	}
	return s
}

// Flights lists the flights covered by the session, departure first.
func (s BookingSession) Flights() []string {
	if s.ReturnFlightID == "" || s.ReturnFlightID == s.DepartureFlightID {
		return []string{s.DepartureFlightID}
	}
	return []string{s.DepartureFlightID, s.ReturnFlightID}
}

// RoundTrip reports whether the session has a return leg.
func (s BookingSession) RoundTrip() bool { return s.ReturnFlightID != "" }

func (s BookingSession) Expiry() time.Time {
	return time.UnixMilli(s.ExpiresAt).UTC()
}

func (s BookingSession) Encode() ([]byte, error) { return json.Marshal(s) }

func DecodeBookingSession(data []byte) (BookingSession, error) {
	var s BookingSession
	if err := decodeStrict(data, &s); err != nil {
		return BookingSession{}, fmt.Errorf("booking session: %w", err)
	}
	if s.UserID == "" || s.BookingReference == "" || s.DepartureFlightID == "" {
		return BookingSession{}, fmt.Errorf("booking session: %w: missing required field", ErrMalformedRecord)
	}
	return s, nil
}

// FlightSeat names one seat on one flight.
type FlightSeat struct {
	FlightID string `json:"flightId"`
	SeatID   string `json:"seatId"`
}
