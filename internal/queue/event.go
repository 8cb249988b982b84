// Package queue defines the messages exchanged over the broker and the
// consumer and publisher that carry them.
package queue

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/iliyamo/flight-seat-lock/internal/model"
)

// Payment event types.
const (
	PaymentSucceeded = "payment.succeeded"
	PaymentFailed    = "payment.failed"
)

// ErrMalformedEvent is returned for payloads that cannot be processed.
var ErrMalformedEvent = errors.New("malformed event")

// PaymentEvent reports the outcome of a payment.  The same payload is
// accepted from the payment webhook and from the payment.events queue.
type PaymentEvent struct {
	ID               string `json:"id"`
	Type             string `json:"type"`
	UserID           string `json:"userId"`
	SessionID        string `json:"sessionId"`
	BookingReference string `json:"bookingReference,omitempty"`
	BookingID        int64  `json:"bookingId,omitempty"`
	Reason           string `json:"reason,omitempty"`
}

// DecodePaymentEvent parses body and checks the fields every event
// needs.
func DecodePaymentEvent(body []byte) (PaymentEvent, error) {
	var ev PaymentEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return PaymentEvent{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if ev.Type == "" || ev.UserID == "" || ev.SessionID == "" {
		return PaymentEvent{}, fmt.Errorf("%w: type, userId and sessionId are required", ErrMalformedEvent)
	}
	if ev.BookingID < 0 {
		return PaymentEvent{}, fmt.Errorf("%w: negative bookingId", ErrMalformedEvent)
	}
	return ev, nil
}

// SeatsFinalizedEvent is published after seats became durably occupied
// and their transient locks were cleared.
type SeatsFinalizedEvent struct {
	EventID          string             `json:"event_id"`
	UserID           string             `json:"user_id"`
	BookingReference string             `json:"booking_reference,omitempty"`
	BookingID        int64              `json:"booking_id,omitempty"`
	Seats            []model.FlightSeat `json:"seats"`
	Conflicts        []model.FlightSeat `json:"conflicts,omitempty"`
	FinalizedAt      string             `json:"finalized_at"`
}
