package seatlock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/flight-seat-lock/internal/model"
)

// Activity keeps the user_session record: the last time a user's
// booking session showed signs of life.
type Activity struct {
	rdb redis.UniversalClient
	ttl time.Duration
	settings
}

func NewActivity(rdb redis.UniversalClient, ttl time.Duration, opts ...Option) *Activity {
	if ttl <= 0 {
		ttl = DefaultUserSessionTTL
	}
	return &Activity{rdb: rdb, ttl: ttl, settings: newSettings(opts)}
}

// Touch records activity for owner now and returns the stored record.
func (a *Activity) Touch(ctx context.Context, owner Owner, bookingReference string) (model.UserActivity, error) {
	if err := validateAll(owner); err != nil {
		return model.UserActivity{}, err
	}
	if bookingReference != "" {
		if err := validateID("booking reference", bookingReference); err != nil {
			return model.UserActivity{}, err
		}
	}
	rec := model.UserActivity{
		UserID:           owner.UserID,
		SessionID:        owner.SessionID,
		BookingReference: bookingReference,
		LastActivityAt:   a.now().UnixMilli(),
	}
	payload, err := rec.Encode()
	if err != nil {
		return model.UserActivity{}, fmt.Errorf("encode activity: %w", err)
	}
	if err := a.rdb.Set(ctx, UserSessionKey(owner.UserID), payload, a.ttl).Err(); err != nil {
		return model.UserActivity{}, fmt.Errorf("%w: write activity: %v", ErrStoreUnavailable, err)
	}
	return rec, nil
}

// Get returns the latest activity record for userID.
func (a *Activity) Get(ctx context.Context, userID string) (model.UserActivity, bool, error) {
	raw, found, err := a.read(ctx, userID)
	if err != nil || !found {
		return model.UserActivity{}, found, err
	}
	rec, err := model.DecodeUserActivity(raw)
	if err != nil {
		return model.UserActivity{}, false, err
	}
	return rec, true, nil
}

// Clear deletes the record if it still belongs to owner's session, so a
// newer session of the same user is left alone.
func (a *Activity) Clear(ctx context.Context, owner Owner) error {
	if err := validateAll(owner); err != nil {
		return err
	}
	raw, found, err := a.read(ctx, owner.UserID)
	if err != nil || !found {
		return err
	}
	rec, err := model.DecodeUserActivity(raw)
	if err == nil && rec.SessionID != owner.SessionID {
		return nil
	}
	// unreadable records are dropped too
	if err := compareAndDeleteScript.Run(ctx, a.rdb, []string{UserSessionKey(owner.UserID)}, raw).Err(); err != nil {
		return fmt.Errorf("%w: clear activity: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (a *Activity) read(ctx context.Context, userID string) ([]byte, bool, error) {
	if err := validateID("user id", userID); err != nil {
		return nil, false, err
	}
	raw, err := a.rdb.Get(ctx, UserSessionKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: read activity: %v", ErrStoreUnavailable, err)
	}
	return raw, true, nil
}
