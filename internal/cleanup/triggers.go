package cleanup

import (
	"context"
	"time"

	"github.com/iliyamo/flight-seat-lock/internal/model"
	"github.com/iliyamo/flight-seat-lock/internal/seatlock"
)

// Touch records activity for owner and restarts its inactivity timer.
func (o *Orchestrator) Touch(ctx context.Context, owner seatlock.Owner, reference string) (model.UserActivity, error) {
	rec, err := o.activity.Touch(ctx, owner, reference)
	if err != nil {
		return model.UserActivity{}, err
	}
	o.armInactivity(owner, reference, o.inactivity)
	return rec, nil
}

// Interact records a seat selection or deselection as activity.  The
// booking reference already recorded for the same session is kept.
func (o *Orchestrator) Interact(ctx context.Context, owner seatlock.Owner) error {
	var reference string
	if rec, found, err := o.activity.Get(ctx, owner.UserID); err == nil && found && rec.SessionID == owner.SessionID {
		reference = rec.BookingReference
	}
	_, err := o.Touch(ctx, owner, reference)
	return err
}

func (o *Orchestrator) armInactivity(owner seatlock.Owner, reference string, d time.Duration) {
	key := timerKey{kind: inactivityTimer, userID: owner.UserID, sessionID: owner.SessionID}
	o.monitor.Schedule(key, d, func() {
		o.dispatcher.Go(context.Background(), "inactivity cleanup", func(ctx context.Context) error {
			return o.onInactive(ctx, owner, reference)
		})
	})
}

// onInactive runs when the local timer expires.  Another instance may
// have seen activity since; the shared record decides.
func (o *Orchestrator) onInactive(ctx context.Context, owner seatlock.Owner, reference string) error {
	rec, found, err := o.activity.Get(ctx, owner.UserID)
	if err != nil {
		o.logger.Warnf("read activity for %s: %v", owner.UserID, err)
	}
	if found && rec.SessionID == owner.SessionID {
		if idle := o.now().Sub(rec.LastActivity()); idle < o.inactivity {
			o.armInactivity(owner, reference, o.inactivity-idle)
			return nil
		}
	}
	_, err = o.quit(ctx, owner, reference, TriggerInactivity)
	return err
}

// SetHidden arms the tab-hidden timer when hidden is true and cancels it
// otherwise.  Expiry releases everything the session holds.
func (o *Orchestrator) SetHidden(owner seatlock.Owner, hidden bool) {
	key := timerKey{kind: tabHiddenTimer, userID: owner.UserID, sessionID: owner.SessionID}
	if !hidden {
		o.monitor.Cancel(key)
		return
	}
	o.monitor.Schedule(key, o.tabHidden, func() {
		o.dispatcher.Go(context.Background(), "tab hidden cleanup", func(ctx context.Context) error {
			_, err := o.immediate(ctx, owner, TriggerTabHidden)
			return err
		})
	})
}

// Abandon queues a full cleanup for a session whose page was unloaded
// and returns at once.  The work outlives ctx.
func (o *Orchestrator) Abandon(ctx context.Context, owner seatlock.Owner, reference string) {
	o.dispatcher.Go(ctx, "beacon cleanup", func(ctx context.Context) error {
		_, err := o.quit(ctx, owner, reference, TriggerBeacon)
		return err
	})
}

// TimerPending reports whether owner has an armed timer of the given
// kind ("inactivity" or "tab_hidden").
func (o *Orchestrator) TimerPending(owner seatlock.Owner, kind string) bool {
	k := inactivityTimer
	if kind == tabHiddenTimer.String() {
		k = tabHiddenTimer
	}
	return o.monitor.Pending(timerKey{kind: k, userID: owner.UserID, sessionID: owner.SessionID})
}
