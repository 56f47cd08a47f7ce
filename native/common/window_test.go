package common

import (
	"errors"
	"testing"
)

func TestCheckOperationWindow(t *testing.T) {
	const day = uint64(86_400)
	start := uint64(1_700_000_000)

	if err := CheckOperationWindow(DailyWindow, start, 0); err != nil {
		t.Fatalf("first operation should pass, got %v", err)
	}
	if err := CheckOperationWindow(DailyWindow, start+day-1, start); !errors.Is(err, ErrMaxOperationsReached) {
		t.Fatalf("expected ErrMaxOperationsReached inside the window, got %v", err)
	}
	if err := CheckOperationWindow(DailyWindow, start+day, start); err != nil {
		t.Fatalf("expected window to reopen after a full day, got %v", err)
	}
	if err := CheckOperationWindow(0, start, start); err != nil {
		t.Fatalf("a zero period disables the limit, got %v", err)
	}
}
