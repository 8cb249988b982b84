package finalize

import (
	"context"

	"github.com/iliyamo/flight-seat-lock/internal/cleanup"
	"github.com/iliyamo/flight-seat-lock/internal/queue"
	"github.com/iliyamo/flight-seat-lock/internal/seatlock"
)

// Handle routes a payment event to finalization or to failure cleanup.
// It backs both the payment webhook and the queue consumer.  Event types
// it does not know are acknowledged and ignored.
func (b *Bridge) Handle(ctx context.Context, ev queue.PaymentEvent) error {
	switch ev.Type {
	case queue.PaymentSucceeded:
		_, err := b.Finalize(ctx, Payment{
			EventID:          ev.ID,
			UserID:           ev.UserID,
			SessionID:        ev.SessionID,
			BookingReference: ev.BookingReference,
			BookingID:        ev.BookingID,
		})
		return err
	case queue.PaymentFailed:
		_, err := b.cleanup.HandlePaymentFailure(ctx, cleanup.PaymentFailure{
			Owner:            seatlock.Owner{UserID: ev.UserID, SessionID: ev.SessionID},
			BookingReference: ev.BookingReference,
			BookingID:        ev.BookingID,
			Reason:           ev.Reason,
		})
		if err != nil {
			// the TTL finishes whatever cleanup could not
			b.logger.Warnf("payment failure cleanup for %s: %v", ev.UserID, err)
		}
		return nil
	default:
		b.logger.Infof("ignoring payment event %s of type %q", ev.ID, ev.Type)
		return nil
	}
}
