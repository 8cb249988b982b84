package seatlock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/flight-seat-lock/internal/seatlock/seatlocktest"
)

type fixture struct {
	mr        *miniredis.Miniredis
	rdb       *redis.Client
	occupancy *seatlocktest.Occupancy
	registry  *Registry
	manager   *Manager
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	mr, rdb := seatlocktest.NewStore(t)
	occ := seatlocktest.NewOccupancy()
	reg := NewRegistry(rdb, DefaultBookingSessionTTL, opts...)
	return &fixture{
		mr:        mr,
		rdb:       rdb,
		occupancy: occ,
		registry:  reg,
		manager:   NewManager(rdb, occ, reg, opts...),
	}
}

var (
	seat12C = SeatRef{FlightID: "100", SeatID: "12C"}
	alice   = Owner{UserID: "alice", SessionID: "tab-1"}
	bob     = Owner{UserID: "bob", SessionID: "tab-9"}
)

func TestAcquireGrantsAndRegisters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	grant, err := f.manager.Acquire(ctx, seat12C, alice)
	require.NoError(t, err)
	assert.False(t, grant.Renewed)

	assert.True(t, f.mr.Exists("seat_lock:100:12C"))
	ttl := f.mr.TTL("seat_lock:100:12C")
	assert.InDelta(t, DefaultLockTTL.Seconds(), ttl.Seconds(), 1)

	seats, err := f.registry.Seats(ctx, "alice", "100")
	require.NoError(t, err)
	assert.Equal(t, []string{"12C"}, seats)

	st := f.manager.Status(ctx, seat12C)
	assert.True(t, st.Locked)
	assert.Equal(t, "alice", st.LockedBy)
	assert.Equal(t, grant.ExpiresAt, st.ExpiresAt)
}

func TestAcquireMutualExclusion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const contenders = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []string
		denied  int
	)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			owner := Owner{UserID: fmt.Sprintf("user-%d", i), SessionID: "s"}
			_, err := f.manager.Acquire(ctx, seat12C, owner)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners = append(winners, owner.UserID)
			case errors.Is(err, ErrSeatHeld):
				denied++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	require.Len(t, winners, 1)
	assert.Equal(t, contenders-1, denied)
	assert.Equal(t, winners[0], f.manager.Status(ctx, seat12C).LockedBy)
}

func TestAcquireRenewalExtendsExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newFixture(t, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	first, err := f.manager.Acquire(ctx, seat12C, alice)
	require.NoError(t, err)

	now = now.Add(5 * time.Minute)
	f.mr.FastForward(5 * time.Minute)

	second, err := f.manager.Acquire(ctx, seat12C, alice)
	require.NoError(t, err)
	assert.True(t, second.Renewed)
	assert.True(t, second.ExpiresAt.After(first.ExpiresAt))
	assert.InDelta(t, DefaultLockTTL.Seconds(), f.mr.TTL("seat_lock:100:12C").Seconds(), 1)

	seats, err := f.registry.Seats(ctx, "alice", "100")
	require.NoError(t, err)
	assert.Equal(t, []string{"12C"}, seats, "renewal must not duplicate the registry entry")
}

func TestAcquireSameUserOtherSessionIsHeld(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.manager.Acquire(ctx, seat12C, alice)
	require.NoError(t, err)

	_, err = f.manager.Acquire(ctx, seat12C, Owner{UserID: "alice", SessionID: "tab-2"})
	require.ErrorIs(t, err, ErrSeatHeld)
}

func TestAcquireOccupiedSeat(t *testing.T) {
	f := newFixture(t)
	f.occupancy.Occupy("100", "12C")

	_, err := f.manager.Acquire(context.Background(), seat12C, alice)
	require.ErrorIs(t, err, ErrSeatOccupied)
	assert.False(t, f.mr.Exists("seat_lock:100:12C"))
}

func TestAcquireFailsClosedWhenOccupancyUnknown(t *testing.T) {
	f := newFixture(t)
	f.occupancy.SetErr(errors.New("mysql: connection refused"))

	_, err := f.manager.Acquire(context.Background(), seat12C, alice)
	require.ErrorIs(t, err, ErrStoreUnavailable)
	assert.False(t, f.mr.Exists("seat_lock:100:12C"))
}

func TestAcquireStoreDown(t *testing.T) {
	f := newFixture(t)
	f.mr.Close()

	_, err := f.manager.Acquire(context.Background(), seat12C, alice)
	require.ErrorIs(t, err, ErrStoreUnavailable)
	assert.NotErrorIs(t, err, ErrSeatHeld)
}

func TestAcquireRejectsBadIdentifiers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, seat := range []SeatRef{
		{FlightID: "", SeatID: "1A"},
		{FlightID: "100", SeatID: "1:A"},
		{FlightID: "10*", SeatID: "1A"},
		{FlightID: "100", SeatID: "1 A"},
	} {
		_, err := f.manager.Acquire(ctx, seat, alice)
		assert.ErrorIs(t, err, ErrInvalidArgument, "%+v", seat)
	}
	_, err := f.manager.Acquire(ctx, seat12C, Owner{UserID: "alice"})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestAcquireTreatsMalformedLockAsHeld(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.mr.Set("seat_lock:100:12C", "locked-by-legacy"))

	_, err := f.manager.Acquire(context.Background(), seat12C, alice)
	require.ErrorIs(t, err, ErrSeatHeld)

	got, _ := f.mr.Get("seat_lock:100:12C")
	assert.Equal(t, "locked-by-legacy", got)
	assert.False(t, f.manager.Status(context.Background(), seat12C).Locked)
}

func TestReleaseIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.manager.Acquire(ctx, seat12C, alice)
	require.NoError(t, err)

	out, err := f.manager.Release(ctx, seat12C, alice)
	require.NoError(t, err)
	assert.Equal(t, Released, out)

	out, err = f.manager.Release(ctx, seat12C, alice)
	require.NoError(t, err)
	assert.Equal(t, NotLocked, out)

	assert.False(t, f.mr.Exists("seat_lock:100:12C"))
	assert.False(t, f.mr.Exists("user_seats:alice:100"), "empty registry entry is deleted")
}

func TestReleaseProtectsOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.manager.Acquire(ctx, seat12C, alice)
	require.NoError(t, err)

	for _, intruder := range []Owner{bob, {UserID: "alice", SessionID: "tab-2"}} {
		_, err = f.manager.Release(ctx, seat12C, intruder)
		require.ErrorIs(t, err, ErrNotOwner)
	}

	st := f.manager.Status(ctx, seat12C)
	assert.True(t, st.Locked)
	assert.Equal(t, "alice", st.LockedBy)
}

func TestExpiredLockSelfHeals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.manager.Acquire(ctx, seat12C, alice)
	require.NoError(t, err)

	f.mr.FastForward(DefaultLockTTL + time.Second)
	assert.False(t, f.manager.Status(ctx, seat12C).Locked)

	grant, err := f.manager.Acquire(ctx, seat12C, bob)
	require.NoError(t, err)
	assert.False(t, grant.Renewed)
	assert.Equal(t, "bob", f.manager.Status(ctx, seat12C).LockedBy)
}

// Alice holds 12C, Bob is refused, Alice leaves, Bob gets it.
func TestScenarioHandover(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.manager.Acquire(ctx, seat12C, alice)
	require.NoError(t, err)

	_, err = f.manager.Acquire(ctx, seat12C, bob)
	require.ErrorIs(t, err, ErrSeatHeld)

	out, err := f.manager.Release(ctx, seat12C, alice)
	require.NoError(t, err)
	require.Equal(t, Released, out)

	_, err = f.manager.Acquire(ctx, seat12C, bob)
	require.NoError(t, err)
	assert.Equal(t, "bob", f.manager.Status(ctx, seat12C).LockedBy)
}

func TestStatusFailsOpen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.manager.Acquire(ctx, seat12C, alice)
	require.NoError(t, err)

	f.mr.Close()
	assert.Equal(t, Status{}, f.manager.Status(ctx, seat12C))

	_, _, err = f.manager.Lookup(ctx, seat12C)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestSweepOwnerCatchesUnregisteredLocks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.manager.Acquire(ctx, seat12C, alice)
	require.NoError(t, err)
	_, err = f.manager.Acquire(ctx, SeatRef{FlightID: "200", SeatID: "3A"}, alice)
	require.NoError(t, err)
	_, err = f.manager.Acquire(ctx, SeatRef{FlightID: "100", SeatID: "12D"}, bob)
	require.NoError(t, err)

	// simulate the window where the registry write never landed
	f.mr.Del("user_seats:alice:100")
	f.mr.Del("user_seats:alice:200")

	n, err := f.manager.SweepOwner(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.False(t, f.mr.Exists("seat_lock:100:12C"))
	assert.False(t, f.mr.Exists("seat_lock:200:3A"))
	assert.True(t, f.mr.Exists("seat_lock:100:12D"))
}

func TestFlightLocks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.manager.Acquire(ctx, SeatRef{FlightID: "100", SeatID: "2B"}, bob)
	require.NoError(t, err)
	_, err = f.manager.Acquire(ctx, SeatRef{FlightID: "100", SeatID: "1A"}, alice)
	require.NoError(t, err)
	_, err = f.manager.Acquire(ctx, SeatRef{FlightID: "1000", SeatID: "1A"}, alice)
	require.NoError(t, err)
	require.NoError(t, f.mr.Set("seat_lock:100:9Z", "garbage"))

	locks, err := f.manager.FlightLocks(ctx, "100")
	require.NoError(t, err)
	require.Len(t, locks, 2)
	assert.Equal(t, "1A", locks[0].SeatID)
	assert.Equal(t, "alice", locks[0].UserID)
	assert.Equal(t, "2B", locks[1].SeatID)
}
