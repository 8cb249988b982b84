package cleanup

import (
	"sync"
	"time"
)

type timerKind int

const (
	inactivityTimer timerKind = iota
	tabHiddenTimer
)

func (k timerKind) String() string {
	if k == tabHiddenTimer {
		return "tab_hidden"
	}
	return "inactivity"
}

type timerKey struct {
	kind      timerKind
	userID    string
	sessionID string
}

type pending struct {
	timer *time.Timer
	gen   uint64
}

// Monitor holds the per-session timers of this process.  Scheduling a
// timer replaces any timer already set for the same key; a replaced or
// cancelled timer never runs its callback, even if it had already
// fired and was waiting for the lock.
type Monitor struct {
	mu     sync.Mutex
	timers map[timerKey]pending
	gen    uint64
	closed bool
}

func NewMonitor() *Monitor {
	return &Monitor{timers: make(map[timerKey]pending)}
}

// Schedule arms fn to run after d for key.
func (m *Monitor) Schedule(key timerKey, d time.Duration, fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	if p, ok := m.timers[key]; ok {
		p.timer.Stop()
	}
	m.gen++
	gen := m.gen
	m.timers[key] = pending{
		gen:   gen,
		timer: time.AfterFunc(d, func() { m.fire(key, gen, fn) }),
	}
}

func (m *Monitor) fire(key timerKey, gen uint64, fn func()) {
	m.mu.Lock()
	p, ok := m.timers[key]
	if !ok || p.gen != gen || m.closed {
		m.mu.Unlock()
		return
	}
	delete(m.timers, key)
	m.mu.Unlock()
	fn()
}

// Cancel stops the timer for key and reports whether one was pending.
func (m *Monitor) Cancel(key timerKey) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.timers[key]
	if !ok {
		return false
	}
	p.timer.Stop()
	delete(m.timers, key)
	return true
}

// Forget cancels every timer of one user session.
func (m *Monitor) Forget(userID, sessionID string) {
	m.Cancel(timerKey{kind: inactivityTimer, userID: userID, sessionID: sessionID})
	m.Cancel(timerKey{kind: tabHiddenTimer, userID: userID, sessionID: sessionID})
}

// Pending reports whether a timer is armed for key.
func (m *Monitor) Pending(key timerKey) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.timers[key]
	return ok
}

// Len returns the number of armed timers.
func (m *Monitor) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

// Close stops every timer.  Later calls to Schedule are ignored.
func (m *Monitor) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, p := range m.timers {
		p.timer.Stop()
		delete(m.timers, key)
	}
	m.closed = true
}
