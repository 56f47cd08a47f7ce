package common

import (
	"errors"
	"testing"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

type memPauses map[string]bool

func (m memPauses) IsPaused(module string) bool { return m[module] }

func (m memPauses) SetPaused(module string, paused bool) error {
	m[module] = paused
	return nil
}

func TestPausableOwnerGating(t *testing.T) {
	owner := ethcommon.HexToAddress("0x01")
	stranger := ethcommon.HexToAddress("0x02")
	p := &Pausable{Module: "actions.vault", Owner: owner, Store: memPauses{}}

	var notOwner *NotOwnerError
	if err := p.Pause(stranger); !errors.As(err, &notOwner) || !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected NotOwnerError, got %v", err)
	}
	if notOwner.Owner != owner || notOwner.Caller != stranger {
		t.Fatalf("unexpected error arguments: %+v", notOwner)
	}
	if err := p.Pause(owner); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if err := p.Check(); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	if err := p.Unpause(stranger); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner on unpause, got %v", err)
	}
	if err := p.Unpause(owner); err != nil {
		t.Fatalf("unpause: %v", err)
	}
	if p.Paused() {
		t.Fatalf("expected module to be live after unpause")
	}
}

func TestRequireNonZero(t *testing.T) {
	if err := RequireNonZero(ethcommon.HexToAddress("0x01"), ethcommon.Address{}); !errors.Is(err, ErrCannotSetToAddressZero) {
		t.Fatalf("expected ErrCannotSetToAddressZero, got %v", err)
	}
	if err := RequireNonZero(ethcommon.HexToAddress("0x01")); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
}
