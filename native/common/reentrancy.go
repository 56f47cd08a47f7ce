package common

import (
	"errors"
	"sync"
)

var ErrReentrantCall = errors.New("reentrancy guard: reentrant call")

// ReentrancyGuard rejects nested entry into a guarded section. Callers pair
// Enter with a deferred Exit so the flag clears on every return path.
type ReentrancyGuard struct {
	mu      sync.Mutex
	entered bool
}

// Enter marks the section as busy or fails with ErrReentrantCall.
func (g *ReentrancyGuard) Enter() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.entered {
		return ErrReentrantCall
	}
	g.entered = true
	return nil
}

// Exit releases the section.
func (g *ReentrancyGuard) Exit() {
	g.mu.Lock()
	g.entered = false
	g.mu.Unlock()
}
