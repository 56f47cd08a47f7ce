package access

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"cdpproxy/core/state"
	"cdpproxy/core/vm"
)

// Address is where the access controller lives.
var Address = vm.ModuleAddress("access")

var (
	// AdminRole may grant and revoke every role.
	AdminRole = common.Hash{}
	// ManagerRole may list and unlist vault managers.
	ManagerRole = common.BytesToHash(ethcrypto.Keccak256([]byte("MANAGER_ROLE")))
)

var ErrMissingRole = errors.New("access: caller lacks admin role")

// Controller is a role registry keyed by 32-byte role ids.
type Controller struct {
	st *state.Manager
}

func NewController(st *state.Manager) *Controller {
	return &Controller{st: st}
}

func roleKey(role common.Hash, account common.Address) []byte {
	return state.Key("access/role", role.Bytes(), account.Bytes())
}

// HasRole reports whether account holds role.
func (c *Controller) HasRole(role common.Hash, account common.Address) bool {
	raw, err := c.st.GetRaw(roleKey(role, account))
	return err == nil && len(raw) > 0
}

// Bootstrap grants the admin role without a caller check. Genesis only.
func (c *Controller) Bootstrap(admin common.Address) {
	c.st.PutRaw(roleKey(AdminRole, admin), []byte{1})
}

// GrantRole gives role to account.
func (c *Controller) GrantRole(caller common.Address, role common.Hash, account common.Address) error {
	if !c.HasRole(AdminRole, caller) {
		return ErrMissingRole
	}
	c.st.PutRaw(roleKey(role, account), []byte{1})
	return nil
}

// RevokeRole takes role away from account.
func (c *Controller) RevokeRole(caller common.Address, role common.Hash, account common.Address) error {
	if !c.HasRole(AdminRole, caller) {
		return ErrMissingRole
	}
	c.st.Delete(roleKey(role, account))
	return nil
}

// RoleID maps a role name to its id. "DEFAULT_ADMIN_ROLE" is the admin role,
// any other name hashes like MANAGER_ROLE does.
func RoleID(name string) common.Hash {
	if name == "DEFAULT_ADMIN_ROLE" {
		return AdminRole
	}
	return common.BytesToHash(ethcrypto.Keccak256([]byte(name)))
}
