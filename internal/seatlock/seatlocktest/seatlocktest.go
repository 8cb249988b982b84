// Package seatlocktest provides an in-process lock store and an
// in-memory occupancy table for tests.
package seatlocktest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// NewStore starts a miniredis server and returns it with a connected
// client.  Both are closed when the test ends.
func NewStore(t testing.TB) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

// Occupancy is a durable occupancy table backed by a map.  SetErr
// makes every later call fail.
type Occupancy struct {
	mu       sync.Mutex
	occupied map[string]int64
	writes   int
	err      error
}

func NewOccupancy() *Occupancy {
	return &Occupancy{occupied: make(map[string]int64)}
}

func (o *Occupancy) IsOccupied(_ context.Context, flightID, seatID string) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return false, o.err
	}
	_, ok := o.occupied[flightID+"/"+seatID]
	return ok, nil
}

func (o *Occupancy) MarkOccupied(_ context.Context, flightID, seatID string, bookingID int64) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return o.err
	}
	o.occupied[flightID+"/"+seatID] = bookingID
	o.writes++
	return nil
}

// OccupiedSeats lists the sold seats of flightID in seat order.
func (o *Occupancy) OccupiedSeats(_ context.Context, flightID string) ([]string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return nil, o.err
	}
	var seats []string
	for k := range o.occupied {
		if f, s, ok := strings.Cut(k, "/"); ok && f == flightID {
			seats = append(seats, s)
		}
	}
	sort.Strings(seats)
	return seats, nil
}

// Occupy marks a seat as sold without counting a write.
func (o *Occupancy) Occupy(flightID, seatID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.occupied[flightID+"/"+seatID] = 0
}

// Writes returns how many MarkOccupied calls succeeded.
func (o *Occupancy) Writes() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.writes
}

func (o *Occupancy) SetErr(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.err = err
}
