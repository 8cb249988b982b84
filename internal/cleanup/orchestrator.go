// Package cleanup releases seat locks when a booking attempt ends: a
// seat is deselected, the shopper quits, goes idle, closes the tab or
// hides it, or the payment fails.  Every path ends in the seatlock
// Manager; this package only decides which seats and when.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/labstack/gommon/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/iliyamo/flight-seat-lock/internal/metrics"
	"github.com/iliyamo/flight-seat-lock/internal/seatlock"
)

// Default timer durations.
const (
	DefaultInactivityTimeout = 15 * time.Minute
	DefaultTabHiddenTimeout  = 30 * time.Second
)

// Trigger names the path that started a cleanup.  It labels metrics and
// log lines.
type Trigger string

const (
	TriggerDeselect      Trigger = "deselect"
	TriggerManual        Trigger = "manual"
	TriggerQuit          Trigger = "quit"
	TriggerInactivity    Trigger = "inactivity"
	TriggerBeacon        Trigger = "beacon"
	TriggerTabHidden     Trigger = "tab_hidden"
	TriggerPaymentFailed Trigger = "payment_failed"
	TriggerFinalized     Trigger = "finalized"
)

var tracer = otel.Tracer("github.com/iliyamo/flight-seat-lock/internal/cleanup")

// BookingCanceller marks a pending booking as cancelled in the durable
// store.  It must tolerate bookings that are already cancelled.
type BookingCanceller interface {
	CancelBooking(ctx context.Context, bookingID int64) error
}

// Report summarises a bulk release.
type Report struct {
	Released  int `json:"released"`
	NotLocked int `json:"notLocked"`
	// Skipped counts seats held by another session of the same user.
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

func (r *Report) merge(o Report) {
	r.Released += o.Released
	r.NotLocked += o.NotLocked
	r.Skipped += o.Skipped
	r.Failed += o.Failed
}

// Orchestrator implements every cleanup path on top of the seatlock
// components.
type Orchestrator struct {
	locks    *seatlock.Manager
	registry *seatlock.Registry
	sessions *seatlock.BookingSessions
	activity *seatlock.Activity

	bookings   BookingCanceller
	monitor    *Monitor
	dispatcher *Dispatcher

	inactivity      time.Duration
	tabHidden       time.Duration
	dispatchTimeout time.Duration
	now             func() time.Time
	logger          *log.Logger
	metrics         *metrics.Metrics
}

type Option func(*Orchestrator)

// WithBookingCanceller enables booking cancellation on payment failure.
func WithBookingCanceller(b BookingCanceller) Option {
	return func(o *Orchestrator) { o.bookings = b }
}

func WithInactivityTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.inactivity = d
		}
	}
}

func WithTabHiddenTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.tabHidden = d
		}
	}
}

func WithDispatchTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.dispatchTimeout = d }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

func WithLogger(l *log.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

func NewOrchestrator(locks *seatlock.Manager, registry *seatlock.Registry, sessions *seatlock.BookingSessions, activity *seatlock.Activity, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		locks:      locks,
		registry:   registry,
		sessions:   sessions,
		activity:   activity,
		monitor:    NewMonitor(),
		inactivity: DefaultInactivityTimeout,
		tabHidden:  DefaultTabHiddenTimeout,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = log.New("cleanup")
	}
	o.dispatcher = NewDispatcher(o.dispatchTimeout, o.logger, o.metrics)
	return o
}

// ReleaseOne releases a single seat, e.g. when the shopper deselects it.
func (o *Orchestrator) ReleaseOne(ctx context.Context, owner seatlock.Owner, seat seatlock.SeatRef) (seatlock.ReleaseOutcome, error) {
	return o.locks.Release(ctx, seat, owner)
}

// ReleaseAll releases every seat the registry lists for owner's user
// across all flights.  Each seat is attempted independently; failures
// are joined into the returned error and counted in the report.
func (o *Orchestrator) ReleaseAll(ctx context.Context, owner seatlock.Owner) (Report, error) {
	return o.releaseAll(ctx, owner, TriggerManual)
}

func (o *Orchestrator) releaseAll(ctx context.Context, owner seatlock.Owner, trigger Trigger) (Report, error) {
	ctx, span := tracer.Start(ctx, "cleanup.ReleaseAll")
	defer span.End()
	span.SetAttributes(
		attribute.String("cleanup.trigger", string(trigger)),
		attribute.String("cleanup.user_id", owner.UserID),
	)

	flights, err := o.registry.Flights(ctx, owner.UserID)
	if err != nil {
		o.metrics.Cleanup(string(trigger), 0, true)
		return Report{}, fmt.Errorf("list flights: %w", err)
	}
	var (
		report Report
		errs   []error
	)
	for _, flightID := range flights {
		r, err := o.releaseFlight(ctx, owner, flightID)
		report.merge(r)
		if err != nil {
			errs = append(errs, err)
		}
	}
	err = errors.Join(errs...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "partial cleanup")
	}
	o.metrics.Cleanup(string(trigger), report.Released, report.Failed > 0 || err != nil)
	return report, err
}

// ReleaseFlight releases owner's seats on one flight.
func (o *Orchestrator) ReleaseFlight(ctx context.Context, owner seatlock.Owner, flightID string) (Report, error) {
	r, err := o.releaseFlight(ctx, owner, flightID)
	o.metrics.Cleanup(string(TriggerManual), r.Released, r.Failed > 0 || err != nil)
	return r, err
}

func (o *Orchestrator) releaseFlight(ctx context.Context, owner seatlock.Owner, flightID string) (Report, error) {
	seats, err := o.registry.Seats(ctx, owner.UserID, flightID)
	if err != nil && !errors.Is(err, seatlock.ErrStoreUnavailable) && !errors.Is(err, seatlock.ErrInvalidArgument) {
		// unreadable entry: nothing to enumerate, drop it
		o.logger.Warnf("dropping registry %s/%s: %v", owner.UserID, flightID, err)
		return Report{}, o.registry.Delete(ctx, owner.UserID, flightID)
	}
	if err != nil {
		return Report{}, err
	}

	var (
		report Report
		errs   []error
	)
	for _, seatID := range seats {
		out, err := o.locks.Release(ctx, seatlock.SeatRef{FlightID: flightID, SeatID: seatID}, owner)
		switch {
		case errors.Is(err, seatlock.ErrNotOwner):
			report.Skipped++
		case err != nil:
			report.Failed++
			errs = append(errs, fmt.Errorf("seat %s/%s: %w", flightID, seatID, err))
		case out == seatlock.Released:
			report.Released++
		default:
			report.NotLocked++
		}
	}
	// Entries still listing seats of another session or seats that
	// failed to release are kept so a later pass can find them.
	if report.Skipped == 0 && report.Failed == 0 {
		if err := o.registry.Delete(ctx, owner.UserID, flightID); err != nil {
			errs = append(errs, err)
		}
	}
	return report, errors.Join(errs...)
}

// ReleaseAllForBookingReference releases the seats of the user behind a
// booking session and deletes the session.  An unknown or expired
// reference is a no-op.
func (o *Orchestrator) ReleaseAllForBookingReference(ctx context.Context, reference, sessionID string) (Report, error) {
	return o.releaseBooking(ctx, reference, sessionID, TriggerManual)
}

func (o *Orchestrator) releaseBooking(ctx context.Context, reference, sessionID string, trigger Trigger) (Report, error) {
	session, found, err := o.sessions.Get(ctx, reference)
	if err != nil {
		return Report{}, fmt.Errorf("load booking session: %w", err)
	}
	if !found {
		return Report{}, nil
	}
	report, err := o.releaseAll(ctx, seatlock.Owner{UserID: session.UserID, SessionID: sessionID}, trigger)
	if derr := o.sessions.Delete(ctx, reference); derr != nil {
		err = errors.Join(err, derr)
	}
	return report, err
}

// ImmediateCleanup releases everything owner holds, including locks the
// registry missed, and clears the session's activity record.
func (o *Orchestrator) ImmediateCleanup(ctx context.Context, owner seatlock.Owner) (Report, error) {
	return o.immediate(ctx, owner, TriggerManual)
}

func (o *Orchestrator) immediate(ctx context.Context, owner seatlock.Owner, trigger Trigger) (Report, error) {
	report, err := o.releaseAll(ctx, owner, trigger)
	swept, serr := o.locks.SweepOwner(ctx, owner)
	report.Released += swept
	if serr != nil {
		err = errors.Join(err, serr)
	}
	if cerr := o.activity.Clear(ctx, owner); cerr != nil {
		o.logger.Warnf("clear activity for %s: %v", owner.UserID, cerr)
	}
	o.monitor.Forget(owner.UserID, owner.SessionID)
	return report, err
}

// HandleQuit ends a booking attempt: everything owner holds is released
// and the booking session, if any, is removed.
func (o *Orchestrator) HandleQuit(ctx context.Context, owner seatlock.Owner, reference string) (Report, error) {
	return o.quit(ctx, owner, reference, TriggerQuit)
}

func (o *Orchestrator) quit(ctx context.Context, owner seatlock.Owner, reference string, trigger Trigger) (Report, error) {
	report, err := o.immediate(ctx, owner, trigger)
	if reference != "" {
		if berr := o.dropBooking(ctx, reference, owner); berr != nil {
			err = errors.Join(err, berr)
		}
	}
	if err != nil {
		o.logger.Warnf("%s cleanup for %s/%s incomplete: %v", trigger, owner.UserID, owner.SessionID, err)
	} else {
		o.logger.Infof("%s cleanup for %s/%s released %d seats", trigger, owner.UserID, owner.SessionID, report.Released)
	}
	return report, err
}

// dropBooking deletes the booking session once its user's seats are
// gone.  A reference that belongs to another user is left alone.
func (o *Orchestrator) dropBooking(ctx context.Context, reference string, owner seatlock.Owner) error {
	session, found, err := o.sessions.Get(ctx, reference)
	if err != nil {
		return fmt.Errorf("load booking session: %w", err)
	}
	if !found {
		return nil
	}
	if session.UserID != owner.UserID {
		o.logger.Warnf("booking %s belongs to %s, not %s; kept", reference, session.UserID, owner.UserID)
		return nil
	}
	return o.sessions.Delete(ctx, reference)
}

// PaymentFailure describes a failed or abandoned payment.
type PaymentFailure struct {
	Owner            seatlock.Owner
	BookingReference string
	BookingID        int64
	Reason           string
}

// HandlePaymentFailure cancels the pending booking, when there is one,
// and releases the shopper's seats.  A failed cancellation is logged and
// does not prevent the release.  Duplicate deliveries are harmless.
func (o *Orchestrator) HandlePaymentFailure(ctx context.Context, p PaymentFailure) (Report, error) {
	if p.Reason != "" {
		o.logger.Infof("payment failed for %s: %s", p.Owner.UserID, p.Reason)
	}
	if p.BookingID > 0 && o.bookings != nil {
		if err := o.bookings.CancelBooking(ctx, p.BookingID); err != nil {
			o.logger.Errorf("cancel booking %d: %v", p.BookingID, err)
		}
	}
	return o.quit(ctx, p.Owner, p.BookingReference, TriggerPaymentFailed)
}

// Finish clears the transient state of a booking whose seats are now
// durably occupied.
func (o *Orchestrator) Finish(ctx context.Context, owner seatlock.Owner, reference string) (Report, error) {
	return o.quit(ctx, owner, reference, TriggerFinalized)
}

// Forget drops the session's timers without releasing anything.
func (o *Orchestrator) Forget(owner seatlock.Owner) {
	o.monitor.Forget(owner.UserID, owner.SessionID)
}

// Close stops every timer and waits for background tasks until ctx is
// done.
func (o *Orchestrator) Close(ctx context.Context) error {
	o.monitor.Close()
	return o.dispatcher.Wait(ctx)
}
