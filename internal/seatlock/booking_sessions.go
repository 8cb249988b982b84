package seatlock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/flight-seat-lock/internal/model"
)

// NewBooking is the input for BookingSessions.Create.
type NewBooking struct {
	UserID            string `validate:"lockid"`
	BookingReference  string `validate:"lockid"`
	DepartureFlightID string `validate:"lockid"`
	ReturnFlightID    string `validate:"omitempty,lockid"`
}

// BookingSessions stores the booking_session records that tie the legs
// of one booking together.
type BookingSessions struct {
	rdb redis.UniversalClient
	ttl time.Duration
	settings
}

func NewBookingSessions(rdb redis.UniversalClient, ttl time.Duration, opts ...Option) *BookingSessions {
	if ttl <= 0 {
		ttl = DefaultBookingSessionTTL
	}
	return &BookingSessions{rdb: rdb, ttl: ttl, settings: newSettings(opts)}
}

// Create stores a new session.  If the reference is already taken by
// the same user the stored session is returned unchanged; a reference
// taken by another user yields ErrNotOwner.
func (b *BookingSessions) Create(ctx context.Context, in NewBooking) (model.BookingSession, error) {
	if err := validateAll(in); err != nil {
		return model.BookingSession{}, err
	}
	s := model.NewBookingSession(in.UserID, in.BookingReference, in.DepartureFlightID, in.ReturnFlightID, b.now(), b.ttl)
	payload, err := s.Encode()
	if err != nil {
		return model.BookingSession{}, fmt.Errorf("encode booking session: %w", err)
	}
	key := BookingSessionKey(in.BookingReference)
	// A second round covers a session that expired between SETNX and GET.
	for attempt := 0; attempt < 2; attempt++ {
		created, err := b.rdb.SetNX(ctx, key, payload, b.ttl).Result()
		if err != nil {
			return model.BookingSession{}, fmt.Errorf("%w: create booking session: %v", ErrStoreUnavailable, err)
		}
		if created {
			return s, nil
		}
		existing, found, err := b.Get(ctx, in.BookingReference)
		if err != nil {
			return model.BookingSession{}, err
		}
		if !found {
			continue
		}
		if existing.UserID != in.UserID {
			return model.BookingSession{}, ErrNotOwner
		}
		return existing, nil
	}
	return model.BookingSession{}, fmt.Errorf("create booking session %s: %w", in.BookingReference, ErrContention)
}

// Get loads the session for reference.  found is false when the session
// is absent or expired.
func (b *BookingSessions) Get(ctx context.Context, reference string) (model.BookingSession, bool, error) {
	if err := validateID("booking reference", reference); err != nil {
		return model.BookingSession{}, false, err
	}
	raw, err := b.rdb.Get(ctx, BookingSessionKey(reference)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.BookingSession{}, false, nil
	}
	if err != nil {
		return model.BookingSession{}, false, fmt.Errorf("%w: read booking session: %v", ErrStoreUnavailable, err)
	}
	s, err := model.DecodeBookingSession(raw)
	if err != nil {
		return model.BookingSession{}, false, err
	}
	if s.BookingReference != reference {
		return model.BookingSession{}, false, fmt.Errorf("booking session: %w: key/record mismatch", model.ErrMalformedRecord)
	}
	return s, true, nil
}

func (b *BookingSessions) Delete(ctx context.Context, reference string) error {
	if err := validateID("booking reference", reference); err != nil {
		return err
	}
	if err := b.rdb.Del(ctx, BookingSessionKey(reference)).Err(); err != nil {
		return fmt.Errorf("%w: delete booking session: %v", ErrStoreUnavailable, err)
	}
	return nil
}
