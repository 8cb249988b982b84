package cleanup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/labstack/gommon/log"

	"github.com/iliyamo/flight-seat-lock/internal/metrics"
)

// DefaultDispatchTimeout bounds each background cleanup task.
const DefaultDispatchTimeout = 10 * time.Second

// Dispatcher runs cleanup work that nobody waits for: browser unload
// beacons and timer expiries.  Tasks are detached from the caller's
// cancellation, bounded by a timeout, and their errors are logged and
// dropped.  Tasks handed over after Wait has begun are dropped.
type Dispatcher struct {
	mu      sync.Mutex
	closed  bool
	wg      sync.WaitGroup
	timeout time.Duration
	logger  *log.Logger
	metrics *metrics.Metrics
}

func NewDispatcher(timeout time.Duration, logger *log.Logger, m *metrics.Metrics) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultDispatchTimeout
	}
	if logger == nil {
		logger = log.New("cleanup")
	}
	return &Dispatcher{timeout: timeout, logger: logger, metrics: m}
}

// Go starts fn in its own goroutine.  Values carried by parent (trace
// spans, request ids) are kept; its deadline and cancellation are not.
func (d *Dispatcher) Go(parent context.Context, name string, fn func(context.Context) error) {
	if parent == nil {
		parent = context.Background()
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.metrics.Dispatched("dropped")
		d.logger.Warnf("background %s dropped: shutting down", name)
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), d.timeout)
		defer cancel()

		err := func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("panic: %v", r)
				}
			}()
			return fn(ctx)
		}()
		if err != nil {
			d.metrics.Dispatched("failed")
			d.logger.Warnf("background %s: %v", name, err)
			return
		}
		d.metrics.Dispatched("ok")
	}()
}

// Wait blocks until every started task has finished or ctx is done.
// No task is accepted once Wait has been called.
func (d *Dispatcher) Wait(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
