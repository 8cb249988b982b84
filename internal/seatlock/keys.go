package seatlock

import (
	"strings"
	"time"
)

// Lifetimes shared with every deployment that reads the same store.
const (
	DefaultLockTTL           = 900 * time.Second
	DefaultBookingSessionTTL = 1800 * time.Second
	DefaultUserSessionTTL    = 3600 * time.Second
)

const (
	seatLockPrefix       = "seat_lock"
	userSeatsPrefix      = "user_seats"
	bookingSessionPrefix = "booking_session"
	userSessionPrefix    = "user_session"

	scanCount = 200
)

// SeatLockKey is seat_lock:{flightId}:{seatId}.
func SeatLockKey(flightID, seatID string) string {
	return seatLockPrefix + ":" + flightID + ":" + seatID
}

// UserSeatsKey is user_seats:{userId}:{flightId}.
func UserSeatsKey(userID, flightID string) string {
	return userSeatsPrefix + ":" + userID + ":" + flightID
}

func BookingSessionKey(reference string) string {
	return bookingSessionPrefix + ":" + reference
}

func UserSessionKey(userID string) string {
	return userSessionPrefix + ":" + userID
}

func userSeatsPattern(userID string) string {
	return userSeatsPrefix + ":" + userID + ":*"
}

func seatLockPattern() string {
	return seatLockPrefix + ":*"
}

func flightLockPattern(flightID string) string {
	return seatLockPrefix + ":" + flightID + ":*"
}

// parseUserSeatsKey extracts the flight from a registry key that
// belongs to userID.
func parseUserSeatsKey(key, userID string) (string, bool) {
	rest, ok := strings.CutPrefix(key, userSeatsPrefix+":"+userID+":")
	if !ok || !IsValidID(rest) {
		return "", false
	}
	return rest, true
}

func parseSeatLockKey(key string) (SeatRef, bool) {
	rest, ok := strings.CutPrefix(key, seatLockPrefix+":")
	if !ok {
		return SeatRef{}, false
	}
	flightID, seatID, ok := strings.Cut(rest, ":")
	if !ok || !IsValidID(flightID) || !IsValidID(seatID) {
		return SeatRef{}, false
	}
	return SeatRef{FlightID: flightID, SeatID: seatID}, true
}
