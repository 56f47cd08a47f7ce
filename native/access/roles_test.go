package access

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"cdpproxy/core/state"
	"cdpproxy/storage"
)

func TestGrantAndRevoke(t *testing.T) {
	admin := common.HexToAddress("0x01")
	manager := common.HexToAddress("0x02")
	c := NewController(state.NewManager(storage.NewMemDB()))

	if err := c.GrantRole(manager, ManagerRole, manager); !errors.Is(err, ErrMissingRole) {
		t.Fatalf("expected ErrMissingRole, got %v", err)
	}
	c.Bootstrap(admin)
	if err := c.GrantRole(admin, ManagerRole, manager); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if !c.HasRole(ManagerRole, manager) {
		t.Fatalf("expected manager role")
	}
	if err := c.RevokeRole(admin, ManagerRole, manager); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if c.HasRole(ManagerRole, manager) {
		t.Fatalf("role survived revoke")
	}
}
