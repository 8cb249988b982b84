package seatlock

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/iliyamo/flight-seat-lock/internal/model"
)

// maxAttempts bounds retries when a lock key changes between the read
// and the conditional write that follows it.
const maxAttempts = 3

var tracer = otel.Tracer("github.com/iliyamo/flight-seat-lock/internal/seatlock")

// OccupancyChecker reports whether a seat has been sold for good.
type OccupancyChecker interface {
	IsOccupied(ctx context.Context, flightID, seatID string) (bool, error)
}

// SeatRef identifies one seat on one flight.
type SeatRef struct {
	FlightID string `validate:"lockid"`
	SeatID   string `validate:"lockid"`
}

// Owner identifies the user session that holds a lock.
type Owner struct {
	UserID    string `validate:"lockid"`
	SessionID string `validate:"lockid"`
}

// Grant describes a successful acquisition.
type Grant struct {
	ExpiresAt time.Time
	// Renewed is set when the caller already held the seat and the
	// call only extended the lock.
	Renewed bool
}

type ReleaseOutcome int

const (
	// NotLocked means there was nothing to release.
	NotLocked ReleaseOutcome = iota
	Released
)

func (o ReleaseOutcome) String() string {
	if o == Released {
		return "released"
	}
	return "not_locked"
}

// Status is the read-only view of one seat's lock.
type Status struct {
	Locked    bool
	LockedBy  string
	ExpiresAt time.Time
}

// Manager acquires, renews, releases and inspects seat locks.
type Manager struct {
	rdb       redis.UniversalClient
	occupancy OccupancyChecker
	registry  *Registry
	settings
}

func NewManager(rdb redis.UniversalClient, occupancy OccupancyChecker, registry *Registry, opts ...Option) *Manager {
	if rdb == nil || occupancy == nil || registry == nil {
		panic("nil dependency passed to seatlock.NewManager")
	}
	return &Manager{
		rdb:       rdb,
		occupancy: occupancy,
		registry:  registry,
		settings:  newSettings(opts),
	}
}

// LockTTL returns the lifetime given to new and renewed locks.
func (m *Manager) LockTTL() time.Duration { return m.lockTTL }

// Acquire places a lock on seat for owner, or extends it when owner
// already holds it.  Denials come back as ErrSeatOccupied or
// ErrSeatHeld; ErrStoreUnavailable means the outcome is unknown.
func (m *Manager) Acquire(ctx context.Context, seat SeatRef, owner Owner) (Grant, error) {
	if err := validateAll(seat, owner); err != nil {
		m.metrics.Acquisition("invalid")
		return Grant{}, err
	}
	ctx, span := tracer.Start(ctx, "seatlock.Acquire", trace.WithAttributes(seatAttrs(seat, owner)...))
	defer span.End()

	occupied, err := m.occupancy.IsOccupied(ctx, seat.FlightID, seat.SeatID)
	if err != nil {
		m.metrics.Acquisition("error")
		return Grant{}, m.unavailable(span, "occupancy check", err)
	}
	if occupied {
		m.metrics.Acquisition("occupied")
		return Grant{}, ErrSeatOccupied
	}

	key := SeatLockKey(seat.FlightID, seat.SeatID)
	for attempt := 0; attempt < maxAttempts; attempt++ {
		lock := model.NewSeatLock(owner.UserID, seat.FlightID, seat.SeatID, owner.SessionID, m.now(), m.lockTTL)
		payload, err := lock.Encode()
		if err != nil {
			return Grant{}, fmt.Errorf("encode lock: %w", err)
		}

		created, err := m.rdb.SetNX(ctx, key, payload, m.lockTTL).Result()
		if err != nil {
			m.metrics.Acquisition("error")
			return Grant{}, m.unavailable(span, "create lock", err)
		}
		if created {
			m.register(ctx, seat, owner)
			m.metrics.Acquisition("granted")
			span.SetAttributes(attribute.String("seatlock.result", "granted"))
			return Grant{ExpiresAt: lock.Expiry()}, nil
		}

		raw, err := m.rdb.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			// expired between SETNX and GET
			continue
		}
		if err != nil {
			m.metrics.Acquisition("error")
			return Grant{}, m.unavailable(span, "read lock", err)
		}
		existing, err := model.DecodeSeatLock(raw)
		if err != nil {
			m.logger.Warnf("unreadable lock at %s treated as held: %v", key, err)
			m.metrics.Acquisition("held")
			return Grant{}, ErrSeatHeld
		}
		if !existing.OwnedBy(owner.UserID, owner.SessionID) {
			m.metrics.Acquisition("held")
			span.SetAttributes(attribute.String("seatlock.result", "held"))
			return Grant{}, ErrSeatHeld
		}

		swapped, err := compareAndSetScript.Run(ctx, m.rdb, []string{key}, raw, payload, m.lockTTL.Milliseconds()).Int()
		if err != nil {
			m.metrics.Acquisition("error")
			return Grant{}, m.unavailable(span, "renew lock", err)
		}
		if swapped == 0 {
			continue
		}
		m.register(ctx, seat, owner)
		m.metrics.Acquisition("renewed")
		span.SetAttributes(attribute.String("seatlock.result", "renewed"))
		return Grant{ExpiresAt: lock.Expiry(), Renewed: true}, nil
	}
	m.metrics.Acquisition("held")
	return Grant{}, ErrSeatHeld
}

// Release removes owner's lock on seat.  A missing lock is not an error
// and yields NotLocked; a lock held by someone else yields ErrNotOwner
// and is never deleted.
func (m *Manager) Release(ctx context.Context, seat SeatRef, owner Owner) (ReleaseOutcome, error) {
	if err := validateAll(seat, owner); err != nil {
		return NotLocked, err
	}
	ctx, span := tracer.Start(ctx, "seatlock.Release", trace.WithAttributes(seatAttrs(seat, owner)...))
	defer span.End()

	key := SeatLockKey(seat.FlightID, seat.SeatID)
	for attempt := 0; attempt < maxAttempts; attempt++ {
		raw, err := m.rdb.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			m.unregister(ctx, seat, owner)
			m.metrics.Release("not_locked")
			return NotLocked, nil
		}
		if err != nil {
			m.metrics.Release("error")
			return NotLocked, m.unavailable(span, "read lock", err)
		}
		existing, err := model.DecodeSeatLock(raw)
		if err != nil {
			m.metrics.Release("not_owner")
			return NotLocked, fmt.Errorf("%w: %v", ErrNotOwner, err)
		}
		if !existing.OwnedBy(owner.UserID, owner.SessionID) {
			m.metrics.Release("not_owner")
			return NotLocked, ErrNotOwner
		}

		deleted, err := compareAndDeleteScript.Run(ctx, m.rdb, []string{key}, raw).Int()
		if err != nil {
			m.metrics.Release("error")
			return NotLocked, m.unavailable(span, "delete lock", err)
		}
		if deleted == 0 {
			continue
		}
		m.unregister(ctx, seat, owner)
		m.metrics.Release("released")
		return Released, nil
	}
	m.metrics.Release("error")
	return NotLocked, fmt.Errorf("release %s: %w", key, ErrContention)
}

// Status reports whether seat is locked.  It never fails: store errors
// and unreadable records read as unlocked so seat maps keep rendering.
func (m *Manager) Status(ctx context.Context, seat SeatRef) Status {
	lock, found, err := m.Lookup(ctx, seat)
	if err != nil {
		m.logger.Warnf("status %s/%s: %v", seat.FlightID, seat.SeatID, err)
		return Status{}
	}
	if !found {
		return Status{}
	}
	return Status{Locked: true, LockedBy: lock.UserID, ExpiresAt: lock.Expiry()}
}

// Lookup returns the current lock on seat.  Unlike Status it reports
// store and decoding errors to the caller.
func (m *Manager) Lookup(ctx context.Context, seat SeatRef) (model.SeatLock, bool, error) {
	if err := validateAll(seat); err != nil {
		return model.SeatLock{}, false, err
	}
	raw, err := m.rdb.Get(ctx, SeatLockKey(seat.FlightID, seat.SeatID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.SeatLock{}, false, nil
	}
	if err != nil {
		return model.SeatLock{}, false, fmt.Errorf("%w: read lock: %v", ErrStoreUnavailable, err)
	}
	lock, err := model.DecodeSeatLock(raw)
	if err != nil {
		return model.SeatLock{}, false, err
	}
	return lock, true, nil
}

// SweepOwner scans every seat lock and releases those owned by owner.
// It catches locks whose registry entry was never written.  Failures on
// individual keys are collected and do not stop the sweep.
func (m *Manager) SweepOwner(ctx context.Context, owner Owner) (int, error) {
	if err := validateAll(owner); err != nil {
		return 0, err
	}
	ctx, span := tracer.Start(ctx, "seatlock.SweepOwner", trace.WithAttributes(
		attribute.String("seatlock.user_id", owner.UserID),
		attribute.String("seatlock.session_id", owner.SessionID),
	))
	defer span.End()

	seats, errs := m.scanOwned(ctx, owner)
	released := 0
	for _, seat := range seats {
		outcome, err := m.Release(ctx, seat, owner)
		if err != nil {
			if !errors.Is(err, ErrNotOwner) {
				errs = append(errs, err)
			}
			continue
		}
		if outcome == Released {
			released++
		}
	}
	span.SetAttributes(attribute.Int("seatlock.released", released))
	return released, errors.Join(errs...)
}

// OwnedLocks returns every seat currently locked by owner, whether or not
// the registry lists it.  Unlike SweepOwner it fails on the first
// unreadable key, since callers rely on the answer being complete.
func (m *Manager) OwnedLocks(ctx context.Context, owner Owner) ([]SeatRef, error) {
	if err := validateAll(owner); err != nil {
		return nil, err
	}
	seats, errs := m.scanOwned(ctx, owner)
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return seats, nil
}

func (m *Manager) scanOwned(ctx context.Context, owner Owner) ([]SeatRef, []error) {
	var (
		seats []SeatRef
		errs  []error
	)
	iter := m.rdb.Scan(ctx, 0, seatLockPattern(), scanCount).Iterator()
	for iter.Next(ctx) {
		seat, ok := parseSeatLockKey(iter.Val())
		if !ok {
			continue
		}
		lock, found, err := m.Lookup(ctx, seat)
		if err != nil {
			if !errors.Is(err, model.ErrMalformedRecord) {
				errs = append(errs, err)
			}
			continue
		}
		if found && lock.OwnedBy(owner.UserID, owner.SessionID) {
			seats = append(seats, seat)
		}
	}
	if err := iter.Err(); err != nil {
		errs = append(errs, fmt.Errorf("%w: scan locks: %v", ErrStoreUnavailable, err))
	}
	return seats, errs
}

// FlightLocks returns the live locks on one flight, ordered by seat.
// Unreadable records are skipped.
func (m *Manager) FlightLocks(ctx context.Context, flightID string) ([]model.SeatLock, error) {
	if err := validateID("flight id", flightID); err != nil {
		return nil, err
	}
	locks := []model.SeatLock{}
	iter := m.rdb.Scan(ctx, 0, flightLockPattern(flightID), scanCount).Iterator()
	for iter.Next(ctx) {
		seat, ok := parseSeatLockKey(iter.Val())
		if !ok || seat.FlightID != flightID {
			continue
		}
		lock, found, err := m.Lookup(ctx, seat)
		if errors.Is(err, model.ErrMalformedRecord) || (err == nil && !found) {
			continue
		}
		if err != nil {
			return nil, err
		}
		locks = append(locks, lock)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("%w: scan locks: %v", ErrStoreUnavailable, err)
	}
	slices.SortFunc(locks, func(a, b model.SeatLock) int { return strings.Compare(a.SeatID, b.SeatID) })
	return locks, nil
}

func (m *Manager) register(ctx context.Context, seat SeatRef, owner Owner) {
	if err := m.registry.AddSeat(ctx, owner.UserID, seat.FlightID, seat.SeatID); err != nil {
		// The lock stands; bulk cleanup falls back to SweepOwner and the TTL.
		m.logger.Warnf("register %s/%s for %s: %v", seat.FlightID, seat.SeatID, owner.UserID, err)
	}
}

func (m *Manager) unregister(ctx context.Context, seat SeatRef, owner Owner) {
	if err := m.registry.RemoveSeat(ctx, owner.UserID, seat.FlightID, seat.SeatID); err != nil {
		m.logger.Warnf("unregister %s/%s for %s: %v", seat.FlightID, seat.SeatID, owner.UserID, err)
	}
}

func (m *Manager) unavailable(span trace.Span, op string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, op)
	m.logger.Errorf("%s: %v", op, err)
	return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, err)
}

func seatAttrs(seat SeatRef, owner Owner) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("seatlock.flight_id", seat.FlightID),
		attribute.String("seatlock.seat_id", seat.SeatID),
		attribute.String("seatlock.user_id", owner.UserID),
		attribute.String("seatlock.session_id", owner.SessionID),
	}
}
