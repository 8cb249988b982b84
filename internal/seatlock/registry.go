package seatlock

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/flight-seat-lock/internal/model"
)

const maxTxAttempts = 5

// Registry maintains, per (user, flight), the set of seats the user
// currently holds so that bulk release does not have to scan every lock.
// The registry is an index; the locks themselves are authoritative.
type Registry struct {
	rdb redis.UniversalClient
	ttl time.Duration
	settings
}

// NewRegistry returns a registry whose entries live for ttl after their
// last addition.  ttl is raised to the lock TTL when shorter so an entry
// never vanishes while a lock it indexes is still alive.
func NewRegistry(rdb redis.UniversalClient, ttl time.Duration, opts ...Option) *Registry {
	s := newSettings(opts)
	if ttl < s.lockTTL {
		ttl = s.lockTTL
	}
	return &Registry{rdb: rdb, ttl: ttl, settings: s}
}

// TTL returns the lifetime applied to registry entries.
func (r *Registry) TTL() time.Duration { return r.ttl }

// AddSeat records seatID for the user on flightID and refreshes the
// entry's expiry.
func (r *Registry) AddSeat(ctx context.Context, userID, flightID, seatID string) error {
	return r.update(ctx, userID, flightID, func(s *model.UserSeatSession) bool {
		s.Add(seatID)
		return true
	})
}

// RemoveSeat drops seatID; the entry is deleted once empty.
func (r *Registry) RemoveSeat(ctx context.Context, userID, flightID, seatID string) error {
	return r.update(ctx, userID, flightID, func(s *model.UserSeatSession) bool {
		return s.Remove(seatID)
	})
}

// Seats returns the seats recorded for the user on flightID.
func (r *Registry) Seats(ctx context.Context, userID, flightID string) ([]string, error) {
	if err := validateID("user id", userID); err != nil {
		return nil, err
	}
	if err := validateID("flight id", flightID); err != nil {
		return nil, err
	}
	raw, err := r.rdb.Get(ctx, UserSeatsKey(userID, flightID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read registry: %v", ErrStoreUnavailable, err)
	}
	s, err := r.decode(raw, userID, flightID)
	if err != nil {
		return nil, err
	}
	return s.Seats, nil
}

// Flights lists every flight for which the user has a registry entry.
// It scans keys and is meant for cleanup paths only.
func (r *Registry) Flights(ctx context.Context, userID string) ([]string, error) {
	if err := validateID("user id", userID); err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	iter := r.rdb.Scan(ctx, 0, userSeatsPattern(userID), scanCount).Iterator()
	for iter.Next(ctx) {
		if flightID, ok := parseUserSeatsKey(iter.Val(), userID); ok {
			seen[flightID] = struct{}{}
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("%w: scan registry: %v", ErrStoreUnavailable, err)
	}
	flights := make([]string, 0, len(seen))
	for f := range seen {
		flights = append(flights, f)
	}
	slices.Sort(flights)
	return flights, nil
}

// Delete removes the user's entry for flightID.
func (r *Registry) Delete(ctx context.Context, userID, flightID string) error {
	if err := r.rdb.Del(ctx, UserSeatsKey(userID, flightID)).Err(); err != nil {
		return fmt.Errorf("%w: delete registry: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// update runs an optimistic read-modify-write of one entry.  mutate
// reports whether the entry must be written back.
func (r *Registry) update(ctx context.Context, userID, flightID string, mutate func(*model.UserSeatSession) bool) error {
	if err := validateID("user id", userID); err != nil {
		return err
	}
	if err := validateID("flight id", flightID); err != nil {
		return err
	}
	key := UserSeatsKey(userID, flightID)

	txf := func(tx *redis.Tx) error {
		s := model.UserSeatSession{UserID: userID, FlightID: flightID}
		raw, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			if stored, derr := r.decode(raw, userID, flightID); derr == nil {
				s = stored
			} else {
				r.logger.Warnf("replacing unreadable registry entry %s: %v", key, derr)
			}
		}
		if !mutate(&s) {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if s.Empty() {
				pipe.Del(ctx, key)
				return nil
			}
			payload, err := s.Encode()
			if err != nil {
				return err
			}
			pipe.Set(ctx, key, payload, r.ttl)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err := r.rdb.Watch(ctx, txf, key)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return fmt.Errorf("%w: update registry: %v", ErrStoreUnavailable, err)
	}
	return fmt.Errorf("registry %s: %w", key, ErrContention)
}

func (r *Registry) decode(raw []byte, userID, flightID string) (model.UserSeatSession, error) {
	s, err := model.DecodeUserSeatSession(raw)
	if err != nil {
		return model.UserSeatSession{}, err
	}
	if s.UserID != userID || s.FlightID != flightID {
		return model.UserSeatSession{}, fmt.Errorf("user seat session: %w: key/record mismatch", model.ErrMalformedRecord)
	}
	return s, nil
}
