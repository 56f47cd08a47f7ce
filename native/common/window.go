package common

import (
	"errors"
	"time"
)

var ErrMaxOperationsReached = errors.New("max operations reached")

// DailyWindow is the default spacing between two rate limited operations.
const DailyWindow = 24 * time.Hour

// CheckOperationWindow verifies that at least period has elapsed since the
// last successful operation. Timestamps are unix seconds; a zero last value
// means the operation never ran.
func CheckOperationWindow(period time.Duration, now, last uint64) error {
	if last == 0 || period <= 0 {
		return nil
	}
	if now < last+uint64(period/time.Second) {
		return ErrMaxOperationsReached
	}
	return nil
}
