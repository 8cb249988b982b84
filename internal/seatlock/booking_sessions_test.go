package seatlock

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/flight-seat-lock/internal/model"
	"github.com/iliyamo/flight-seat-lock/internal/seatlock/seatlocktest"
)

func TestBookingSessionsCreateAndGet(t *testing.T) {
	mr, rdb := seatlocktest.NewStore(t)
	sessions := NewBookingSessions(rdb, 0)
	ctx := context.Background()

	s, err := sessions.Create(ctx, NewBooking{
		UserID:            "alice",
		BookingReference:  "BK-7",
		DepartureFlightID: "100",
		ReturnFlightID:    "101",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"100", "101"}, s.Flights())
	assert.InDelta(t, DefaultBookingSessionTTL.Seconds(), mr.TTL("booking_session:BK-7").Seconds(), 1)

	got, found, err := sessions.Get(ctx, "BK-7")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, s.Flights(), got.Flights())
	assert.Equal(t, s.ExpiresAt, got.ExpiresAt)
	assert.True(t, got.RoundTrip())

	// same user again gets the stored session back
	again, err := sessions.Create(ctx, NewBooking{UserID: "alice", BookingReference: "BK-7", DepartureFlightID: "555"})
	require.NoError(t, err)
	assert.Equal(t, "100", again.DepartureFlightID)

	_, err = sessions.Create(ctx, NewBooking{UserID: "bob", BookingReference: "BK-7", DepartureFlightID: "100"})
	require.ErrorIs(t, err, ErrNotOwner)

	require.NoError(t, sessions.Delete(ctx, "BK-7"))
	_, found, err = sessions.Get(ctx, "BK-7")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestBookingSessionsExpire(t *testing.T) {
	mr, rdb := seatlocktest.NewStore(t)
	sessions := NewBookingSessions(rdb, time.Minute)
	ctx := context.Background()

	_, err := sessions.Create(ctx, NewBooking{UserID: "alice", BookingReference: "BK-1", DepartureFlightID: "100"})
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)
	_, found, err := sessions.Get(ctx, "BK-1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestBookingSessionsValidate(t *testing.T) {
	_, rdb := seatlocktest.NewStore(t)
	sessions := NewBookingSessions(rdb, 0)

	_, err := sessions.Create(context.Background(), NewBooking{UserID: "alice", BookingReference: "BK:1", DepartureFlightID: "100"})
	require.ErrorIs(t, err, ErrInvalidArgument)
	_, err = sessions.Create(context.Background(), NewBooking{UserID: "alice", BookingReference: "BK-1", DepartureFlightID: "100", ReturnFlightID: "1 01"})
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestActivityTouchAndClear(t *testing.T) {
	mr, rdb := seatlocktest.NewStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	activity := NewActivity(rdb, 0, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	_, err := activity.Touch(ctx, alice, "BK-7")
	require.NoError(t, err)
	assert.InDelta(t, DefaultUserSessionTTL.Seconds(), mr.TTL("user_session:alice").Seconds(), 1)

	rec, found, err := activity.Get(ctx, "alice")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, now, rec.LastActivity())
	assert.Equal(t, "BK-7", rec.BookingReference)

	// a different session of the same user does not clear the record
	require.NoError(t, activity.Clear(ctx, Owner{UserID: "alice", SessionID: "tab-2"}))
	assert.True(t, mr.Exists("user_session:alice"))

	require.NoError(t, activity.Clear(ctx, alice))
	assert.False(t, mr.Exists("user_session:alice"))
	require.NoError(t, activity.Clear(ctx, alice))
}

// beforeHook runs fn ahead of every command sent through the client.
type beforeHook func(cmd redis.Cmder)

func (h beforeHook) DialHook(next redis.DialHook) redis.DialHook { return next }

func (h beforeHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		h(cmd)
		return next(ctx, cmd)
	}
}

func (h beforeHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func TestBookingSessionsCreateRaceAfterExpiry(t *testing.T) {
	const key = "booking_session:BK-9"
	bobs, err := model.NewBookingSession("bob", "BK-9", "100", "", time.Now(), time.Hour).Encode()
	require.NoError(t, err)

	// The stored session vanishes before each GET and another writer
	// claims the reference again before the next SETNX.
	setup := func(t *testing.T, rounds int) *BookingSessions {
		mr, rdb := seatlocktest.NewStore(t)
		require.NoError(t, mr.Set(key, string(bobs)))
		var gets, sets int
		rdb.AddHook(beforeHook(func(cmd redis.Cmder) {
			args := cmd.Args()
			if len(args) < 2 || args[1] != key {
				return
			}
			switch cmd.Name() {
			case "get":
				gets++
				if gets <= rounds {
					mr.Del(key)
				}
			case "set":
				sets++
				if sets > 1 {
					require.NoError(t, mr.Set(key, string(bobs)))
				}
			}
		}))
		return NewBookingSessions(rdb, 0)
	}

	t.Run("other user wins the retry", func(t *testing.T) {
		sessions := setup(t, 1)
		_, err := sessions.Create(context.Background(), NewBooking{UserID: "alice", BookingReference: "BK-9", DepartureFlightID: "200"})
		require.ErrorIs(t, err, ErrNotOwner)
	})

	t.Run("reference keeps flapping", func(t *testing.T) {
		sessions := setup(t, 2)
		_, err := sessions.Create(context.Background(), NewBooking{UserID: "alice", BookingReference: "BK-9", DepartureFlightID: "200"})
		require.ErrorIs(t, err, ErrContention)
	})
}
