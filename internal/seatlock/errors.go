// Package seatlock owns every write to the lock store: seat locks, the
// per-user seat registry, booking sessions and activity records.  Other
// packages go through the types defined here and never touch those keys
// directly.
//
// The sentinel errors below let callers tell the denial kinds apart.
// ErrSeatHeld and ErrSeatOccupied are ordinary outcomes of seat selection;
// ErrStoreUnavailable means the answer is unknown and the caller should
// retry rather than treat the seat as taken.
package seatlock

import "errors"

var (
	// ErrInvalidArgument is returned when an identifier is empty or
	// contains characters reserved by the key layout.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrSeatHeld is returned when another user session holds the seat.
	ErrSeatHeld = errors.New("seat is held by another user")

	// ErrSeatOccupied is returned when the seat is already sold.
	ErrSeatOccupied = errors.New("seat is permanently occupied")

	// ErrNotOwner is returned when a release targets a lock owned by a
	// different user session.  The lock is left untouched.
	ErrNotOwner = errors.New("cannot release lock held by another user")

	// ErrStoreUnavailable wraps failures to reach the lock store or the
	// occupancy store.
	ErrStoreUnavailable = errors.New("lock store unavailable")

	// ErrContention is returned when an optimistic update kept losing
	// to concurrent writers.
	ErrContention = errors.New("concurrent modification, retry")
)
