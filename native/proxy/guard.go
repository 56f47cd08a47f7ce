package proxy

import (
	"github.com/ethereum/go-ethereum/common"

	"cdpproxy/core/events"
	"cdpproxy/core/state"
	"cdpproxy/core/vm"
	nativecommon "cdpproxy/native/common"
)

// Guard is the permission allow-list of one account, keyed by
// (caller, target, selector). Every guard instance shares this code and
// keeps its data under its own address.
type Guard struct {
	reg *Registry
}

type guardRecord struct {
	Registry common.Address
	Account  common.Address
}

func guardKey(guard common.Address) []byte {
	return state.Key("proxy/guard", guard.Bytes())
}

func permissionKey(guard, caller, target common.Address, sel vm.Selector) []byte {
	return state.Key("proxy/permission", guard.Bytes(), caller.Bytes(), target.Bytes(), sel[:])
}

// Initialize binds the guard at addr to its registry and account. It can run
// only once per guard.
func (g *Guard) Initialize(addr, registry, account common.Address) error {
	if err := nativecommon.RequireNonZero(registry, account); err != nil {
		return err
	}
	st := g.reg.env.State()
	if ok, err := st.KVGet(guardKey(addr), nil); err != nil {
		return err
	} else if ok {
		return ErrAlreadyInitialized
	}
	return st.KVPut(guardKey(addr), guardRecord{Registry: registry, Account: account})
}

// OwningAccount returns the account the guard at addr protects.
func (g *Guard) OwningAccount(addr common.Address) (common.Address, error) {
	var rec guardRecord
	ok, err := g.reg.env.State().KVGet(guardKey(addr), &rec)
	if err != nil {
		return common.Address{}, err
	}
	if !ok {
		return common.Address{}, ErrGuardNotInitialized
	}
	return rec.Account, nil
}

// SetPermission writes one allow-list entry of the guard at msg.To. Only the
// owning account's owner or the account itself may write. The event is
// emitted even when the value does not change.
func (g *Guard) SetPermission(msg vm.Message, caller, target common.Address, sel vm.Selector, allowed bool) error {
	guard := msg.Self()
	account, err := g.OwningAccount(guard)
	if err != nil {
		return err
	}
	ps, err := g.reg.ProxyState(account)
	if err != nil {
		return err
	}
	if msg.Caller != account && (ps.Owner == (common.Address{}) || msg.Caller != ps.Owner) {
		return ErrUnauthorizedCaller
	}
	key := permissionKey(guard, caller, target, sel)
	if allowed {
		g.reg.env.State().PutRaw(key, []byte{1})
	} else {
		g.reg.env.State().Delete(key)
	}
	g.reg.env.Emit(events.ProxyPermissionSet{
		Guard:    guard,
		Account:  account,
		Caller:   caller,
		Target:   target,
		Selector: sel,
		Allowed:  allowed,
	})
	return nil
}

// Permission reports whether caller may run selector on target through the
// account protected by guard.
func (g *Guard) Permission(guard, caller, target common.Address, sel vm.Selector) bool {
	raw, err := g.reg.env.State().GetRaw(permissionKey(guard, caller, target, sel))
	return err == nil && len(raw) > 0
}
