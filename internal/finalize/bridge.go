// Package finalize turns the seat locks of a paid booking into durable
// occupancy.  Occupancy is written first and the transient locks are
// cleared only after every write succeeded, so a seat is never left
// neither locked nor occupied.
package finalize

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/gommon/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/iliyamo/flight-seat-lock/internal/cleanup"
	"github.com/iliyamo/flight-seat-lock/internal/metrics"
	"github.com/iliyamo/flight-seat-lock/internal/model"
	"github.com/iliyamo/flight-seat-lock/internal/queue"
	"github.com/iliyamo/flight-seat-lock/internal/seatlock"
)

var tracer = otel.Tracer("github.com/iliyamo/flight-seat-lock/internal/finalize")

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	if err := seatlock.RegisterValidations(v); err != nil {
		panic(err)
	}
	return v
}

// OccupancyWriter records a seat as sold.  It must be idempotent.
type OccupancyWriter interface {
	MarkOccupied(ctx context.Context, flightID, seatID string, bookingID int64) error
}

// BookingConfirmer moves a pending booking to confirmed.  It must be
// idempotent.
type BookingConfirmer interface {
	ConfirmBooking(ctx context.Context, bookingID int64) error
}

type Publisher interface {
	PublishSeatsFinalized(ctx context.Context, ev queue.SeatsFinalizedEvent) error
}

// Payment is a successful payment for the seats held by a session.
type Payment struct {
	EventID          string
	UserID           string `validate:"lockid"`
	SessionID        string `validate:"lockid"`
	BookingReference string `validate:"omitempty,lockid"`
	BookingID        int64  `validate:"gte=0"`
}

// Result lists what Finalize did.  Conflicts are seats the registry
// listed whose lock belongs to someone else; they are not written.
type Result struct {
	Finalized []model.FlightSeat `json:"finalized"`
	Conflicts []model.FlightSeat `json:"conflicts"`
	Cleanup   cleanup.Report     `json:"cleanup"`
}

type Bridge struct {
	locks     *seatlock.Manager
	registry  *seatlock.Registry
	sessions  *seatlock.BookingSessions
	cleanup   *cleanup.Orchestrator
	occupancy OccupancyWriter

	bookings  BookingConfirmer
	publisher Publisher
	audit     io.Writer
	now       func() time.Time
	logger    *log.Logger
	metrics   *metrics.Metrics
}

type Option func(*Bridge)

func WithBookingConfirmer(c BookingConfirmer) Option { return func(b *Bridge) { b.bookings = c } }
func WithPublisher(p Publisher) Option               { return func(b *Bridge) { b.publisher = p } }

// WithAuditLog appends one line per finalized booking to w.
func WithAuditLog(w io.Writer) Option { return func(b *Bridge) { b.audit = w } }

func WithLogger(l *log.Logger) Option       { return func(b *Bridge) { b.logger = l } }
func WithMetrics(m *metrics.Metrics) Option { return func(b *Bridge) { b.metrics = m } }
func WithClock(now func() time.Time) Option { return func(b *Bridge) { b.now = now } }

func NewBridge(locks *seatlock.Manager, registry *seatlock.Registry, sessions *seatlock.BookingSessions, orch *cleanup.Orchestrator, occupancy OccupancyWriter, opts ...Option) *Bridge {
	b := &Bridge{
		locks:     locks,
		registry:  registry,
		sessions:  sessions,
		cleanup:   orch,
		occupancy: occupancy,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = log.New("finalize")
	}
	return b
}

// Finalize writes durable occupancy for every seat the paying session
// holds, confirms the booking and then clears the transient state.  If
// any durable write fails nothing is released and the error is
// returned, so the caller can retry with the locks still in place.
// Repeating a completed call finds nothing left to do.
func (b *Bridge) Finalize(ctx context.Context, p Payment) (Result, error) {
	if err := validate.Struct(p); err != nil {
		return Result{}, fmt.Errorf("%w: %v", seatlock.ErrInvalidArgument, err)
	}
	ctx, span := tracer.Start(ctx, "finalize.Finalize")
	defer span.End()
	span.SetAttributes(
		attribute.String("finalize.user_id", p.UserID),
		attribute.String("finalize.booking_reference", p.BookingReference),
		attribute.Int64("finalize.booking_id", p.BookingID),
	)
	owner := seatlock.Owner{UserID: p.UserID, SessionID: p.SessionID}

	// The registry can miss a seat whose index write failed after the
	// grant; Finish would still release it, so it is finalized here too.
	owned, err := b.locks.OwnedLocks(ctx, owner)
	if err != nil {
		return Result{}, b.fail(span, fmt.Errorf("scan held seats: %w", err))
	}
	flights, err := b.flights(ctx, p, owned)
	if err != nil {
		return Result{}, b.fail(span, err)
	}

	res := Result{Finalized: []model.FlightSeat{}, Conflicts: []model.FlightSeat{}}
	for _, flightID := range flights {
		seats, err := b.registry.Seats(ctx, p.UserID, flightID)
		if err != nil {
			return Result{}, b.fail(span, fmt.Errorf("list seats on %s: %w", flightID, err))
		}
		for _, seatID := range withHeld(seats, owned, flightID) {
			fs := model.FlightSeat{FlightID: flightID, SeatID: seatID}
			lock, found, err := b.locks.Lookup(ctx, seatlock.SeatRef{FlightID: flightID, SeatID: seatID})
			switch {
			case errors.Is(err, model.ErrMalformedRecord):
				res.Conflicts = append(res.Conflicts, fs)
				continue
			case err != nil:
				return Result{}, b.fail(span, fmt.Errorf("check %s/%s: %w", flightID, seatID, err))
			case found && !lock.OwnedBy(owner.UserID, owner.SessionID):
				res.Conflicts = append(res.Conflicts, fs)
				continue
			}
			if err := b.occupancy.MarkOccupied(ctx, flightID, seatID, p.BookingID); err != nil {
				b.metrics.Finalized("write_failed", 1)
				return Result{}, b.fail(span, fmt.Errorf("mark %s/%s occupied: %w", flightID, seatID, err))
			}
			res.Finalized = append(res.Finalized, fs)
		}
	}

	if p.BookingID > 0 && b.bookings != nil {
		if err := b.bookings.ConfirmBooking(ctx, p.BookingID); err != nil {
			return Result{}, b.fail(span, fmt.Errorf("confirm booking %d: %w", p.BookingID, err))
		}
	}
	b.metrics.Finalized("occupied", len(res.Finalized))
	b.metrics.Finalized("conflict", len(res.Conflicts))
	if len(res.Conflicts) > 0 {
		b.logger.Warnf("booking %s for %s: %d seats held by another session", p.BookingReference, p.UserID, len(res.Conflicts))
	}

	report, err := b.cleanup.Finish(ctx, owner, p.BookingReference)
	if err != nil {
		// occupancy is durable; leftover locks expire on their own
		b.logger.Warnf("post-finalization cleanup for %s: %v", p.UserID, err)
	}
	res.Cleanup = report

	b.announce(ctx, p, res)
	return res, nil
}

// flights lists the flights to finalize: those of the booking session
// when it exists, otherwise every flight the user has registered seats
// on or the session holds locks on.
func (b *Bridge) flights(ctx context.Context, p Payment, owned []seatlock.SeatRef) ([]string, error) {
	if p.BookingReference != "" {
		session, found, err := b.sessions.Get(ctx, p.BookingReference)
		if err != nil && !errors.Is(err, model.ErrMalformedRecord) {
			return nil, fmt.Errorf("load booking session: %w", err)
		}
		if found {
			if session.UserID != p.UserID {
				return nil, fmt.Errorf("booking %s: %w", p.BookingReference, seatlock.ErrNotOwner)
			}
			return session.Flights(), nil
		}
	}
	flights, err := b.registry.Flights(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	for _, ref := range owned {
		if !slices.Contains(flights, ref.FlightID) {
			flights = append(flights, ref.FlightID)
		}
	}
	slices.Sort(flights)
	return flights, nil
}

// withHeld appends the seats owned locks cover on flightID that listed
// does not already contain.
func withHeld(listed []string, owned []seatlock.SeatRef, flightID string) []string {
	seats := slices.Clone(listed)
	for _, ref := range owned {
		if ref.FlightID == flightID && !slices.Contains(seats, ref.SeatID) {
			seats = append(seats, ref.SeatID)
		}
	}
	return seats
}

func (b *Bridge) announce(ctx context.Context, p Payment, res Result) {
	at := b.now().UTC()
	if b.audit != nil {
		line := fmt.Sprintf("[%s] Seats finalized | event=%s | user_id=%s | session_id=%s | booking_ref=%s | booking_id=%d | seats=%s | conflicts=%s\n",
			at.Format(time.RFC3339), p.EventID, p.UserID, p.SessionID, p.BookingReference, p.BookingID, joinSeats(res.Finalized), joinSeats(res.Conflicts))
		if _, err := io.WriteString(b.audit, line); err != nil {
			b.logger.Warnf("audit log: %v", err)
		}
	}
	if b.publisher == nil || len(res.Finalized) == 0 {
		return
	}
	ev := queue.SeatsFinalizedEvent{
		EventID:          p.EventID,
		UserID:           p.UserID,
		BookingReference: p.BookingReference,
		BookingID:        p.BookingID,
		Seats:            res.Finalized,
		Conflicts:        res.Conflicts,
		FinalizedAt:      at.Format(time.RFC3339),
	}
	if err := b.publisher.PublishSeatsFinalized(ctx, ev); err != nil {
		b.logger.Warnf("publish finalized event for %s: %v", p.UserID, err)
	}
}

func (b *Bridge) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, "finalize failed")
	b.logger.Errorf("finalize: %v", err)
	return err
}

func joinSeats(seats []model.FlightSeat) string {
	parts := make([]string, len(seats))
	for i, s := range seats {
		parts[i] = s.FlightID + "/" + s.SeatID
	}
	return "[" + strings.Join(parts, ",") + "]"
}
