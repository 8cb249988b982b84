package seatlock

import (
	"time"

	"github.com/labstack/gommon/log"

	"github.com/iliyamo/flight-seat-lock/internal/metrics"
)

// Option customises the components in this package.  Options that do
// not apply to a component are ignored by it.
type Option func(*settings)

type settings struct {
	lockTTL time.Duration
	now     func() time.Time
	logger  *log.Logger
	metrics *metrics.Metrics
}

func newSettings(opts []Option) settings {
	s := settings{
		lockTTL: DefaultLockTTL,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(&s)
	}
	if s.logger == nil {
		s.logger = log.New("seatlock")
	}
	return s
}

// WithLockTTL overrides the seat lock lifetime.
func WithLockTTL(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.lockTTL = d
		}
	}
}

// WithClock replaces time.Now for expiry timestamps.  The store still
// enforces expiry on its own clock.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}

func WithLogger(l *log.Logger) Option {
	return func(s *settings) { s.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *settings) { s.metrics = m }
}
