package common

import (
	"errors"
	"fmt"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

var (
	ErrModulePaused = errors.New("module paused")
	errNoPauseStore = errors.New("pausable: pause store not configured")
)

// ModulePausedError names the paused module and matches ErrModulePaused.
type ModulePausedError struct {
	Module string
}

func (e *ModulePausedError) Error() string {
	return fmt.Sprintf("%s: %s", ErrModulePaused, e.Module)
}

func (e *ModulePausedError) Unwrap() error { return ErrModulePaused }

// PauseView reads pause flags by module name.
type PauseView interface {
	IsPaused(module string) bool
}

// PauseStore persists pause flags.
type PauseStore interface {
	PauseView
	SetPaused(module string, paused bool) error
}

// Pausable gives a module owner-restricted pause and unpause entry points
// backed by a shared PauseStore.
type Pausable struct {
	Module string
	Owner  ethcommon.Address
	Store  PauseStore
}

// Pause flips the module into the paused state.
func (p *Pausable) Pause(caller ethcommon.Address) error {
	return p.set(caller, true)
}

// Unpause clears the paused state.
func (p *Pausable) Unpause(caller ethcommon.Address) error {
	return p.set(caller, false)
}

// Paused reports the current flag.
func (p *Pausable) Paused() bool {
	if p == nil || p.Store == nil {
		return false
	}
	return p.Store.IsPaused(p.Module)
}

// Check fails with ErrModulePaused while the module is paused.
func (p *Pausable) Check() error {
	if p == nil {
		return nil
	}
	return Guard(p.Store, p.Module)
}

// Guard fails with a ModulePausedError when module is paused in p.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" || !p.IsPaused(module) {
		return nil
	}
	return &ModulePausedError{Module: module}
}

func (p *Pausable) set(caller ethcommon.Address, paused bool) error {
	if caller != p.Owner {
		return &NotOwnerError{Owner: p.Owner, Caller: caller}
	}
	if p.Store == nil {
		return errNoPauseStore
	}
	return p.Store.SetPaused(p.Module, paused)
}
