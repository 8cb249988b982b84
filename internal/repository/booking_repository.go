package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Booking states stored in bookings.bookingstatus.
const (
	BookingPending   = "Pending"
	BookingConfirmed = "Confirmed"
	BookingCancelled = "Cancelled"
)

// BookingRepo moves bookings between states.  Both transitions are
// idempotent so payment events may be delivered more than once.
type BookingRepo struct {
	db *sql.DB
}

// NewBookingRepo returns a new BookingRepo bound to the provided database.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

// CancelBooking marks a pending booking as cancelled.  Cancelling an
// already cancelled booking succeeds; cancelling a confirmed one
// returns ErrConflict.
func (r *BookingRepo) CancelBooking(ctx context.Context, bookingID int64) error {
	return r.transition(ctx, bookingID, BookingCancelled)
}

// ConfirmBooking marks a pending booking as confirmed.  Confirming twice
// succeeds; confirming a cancelled booking returns ErrConflict.
func (r *BookingRepo) ConfirmBooking(ctx context.Context, bookingID int64) error {
	return r.transition(ctx, bookingID, BookingConfirmed)
}

// Status returns the current state of a booking.
func (r *BookingRepo) Status(ctx context.Context, bookingID int64) (string, error) {
	var status string
	err := r.db.QueryRowContext(ctx,
		`SELECT bookingstatus FROM bookings WHERE bookingid = ?`, bookingID,
	).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return status, nil
}

func (r *BookingRepo) transition(ctx context.Context, bookingID int64, to string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE bookings SET bookingstatus = ? WHERE bookingid = ? AND bookingstatus = ?`,
		to, bookingID, BookingPending,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return nil
	}
	// nothing changed: either already there, gone, or in the other final state
	status, err := r.Status(ctx, bookingID)
	if err != nil {
		return err
	}
	if status == to {
		return nil
	}
	return fmt.Errorf("booking %d is %s: %w", bookingID, status, ErrConflict)
}
