package proxy

import (
	"github.com/ethereum/go-ethereum/common"

	"cdpproxy/core/events"
	"cdpproxy/core/state"
	"cdpproxy/core/vm"
	nativecommon "cdpproxy/native/common"
)

const (
	KindRegistry vm.Kind = "proxy.registry"
	KindAccount  vm.Kind = "proxy.account"
	KindGuard    vm.Kind = "proxy.guard"
)

// DefaultMinGas is the gas floor new accounts start with.
const DefaultMinGas uint64 = 5000

// RegistryAddress is where the account registry lives.
var RegistryAddress = vm.ModuleAddress("proxy.registry")

// ProxyState is the registry's record of one account.
type ProxyState struct {
	Owner  common.Address
	Guard  common.Address
	MinGas uint64
}

// Registry deploys smart accounts and their permission guards and keeps the
// one account per owner mapping.
type Registry struct {
	env     *vm.Env
	address common.Address
	account *Account
	guard   *Guard
}

// NewRegistry creates the registry at address and binds the account and
// guard code kinds in env.
func NewRegistry(env *vm.Env, address common.Address) *Registry {
	r := &Registry{env: env, address: address}
	r.account = &Account{reg: r}
	r.guard = &Guard{reg: r}
	env.Bind(KindRegistry, r)
	env.Bind(KindAccount, r.account)
	env.Bind(KindGuard, r.guard)
	return r
}

// Address returns the registry address.
func (r *Registry) Address() common.Address { return r.address }

// Accounts returns the shared account implementation.
func (r *Registry) Accounts() *Account { return r.account }

// Guards returns the shared guard implementation.
func (r *Registry) Guards() *Guard { return r.guard }

func stateKey(account common.Address) []byte {
	return state.Key("proxy/state", account.Bytes())
}

func currentKey(owner common.Address) []byte {
	return state.Key("proxy/current", owner.Bytes())
}

func pendingKey(account common.Address) []byte {
	return state.Key("proxy/pending", account.Bytes())
}

var nonceKey = state.Key("proxy/nonce")

func (r *Registry) nextAddress() (common.Address, error) {
	var nonce uint64
	if _, err := r.env.State().KVGet(nonceKey, &nonce); err != nil {
		return common.Address{}, err
	}
	if err := r.env.State().KVPut(nonceKey, nonce+1); err != nil {
		return common.Address{}, err
	}
	return vm.DeriveAddress(r.address, nonce), nil
}

// ProxyState returns the record of account. Accounts whose code is gone
// report the zero state.
func (r *Registry) ProxyState(account common.Address) (ProxyState, error) {
	if r.env.CodeKind(account) != KindAccount {
		return ProxyState{}, nil
	}
	var ps ProxyState
	if _, err := r.env.State().KVGet(stateKey(account), &ps); err != nil {
		return ProxyState{}, err
	}
	return ps, nil
}

// CurrentAccount returns the live account owned by owner, or zero.
func (r *Registry) CurrentAccount(owner common.Address) (common.Address, error) {
	var account common.Address
	if _, err := r.env.State().KVGet(currentKey(owner), &account); err != nil {
		return common.Address{}, err
	}
	if account == (common.Address{}) {
		return common.Address{}, nil
	}
	ps, err := r.ProxyState(account)
	if err != nil {
		return common.Address{}, err
	}
	if ps.Owner != owner {
		return common.Address{}, nil
	}
	return account, nil
}

// PendingOwner returns the address allowed to claim account.
func (r *Registry) PendingOwner(account common.Address) (common.Address, error) {
	var pending common.Address
	if _, err := r.env.State().KVGet(pendingKey(account), &pending); err != nil {
		return common.Address{}, err
	}
	return pending, nil
}

// IsAccount reports whether addr is a live account.
func (r *Registry) IsAccount(addr common.Address) bool {
	return r.env.CodeKind(addr) == KindAccount
}

// Deploy creates an account and guard owned by caller.
func (r *Registry) Deploy(caller common.Address) (common.Address, error) {
	var account common.Address
	err := r.env.Apply(func() error {
		existing, err := r.CurrentAccount(caller)
		if err != nil {
			return err
		}
		if existing != (common.Address{}) {
			return &AlreadyOwnerError{Owner: caller, Account: existing}
		}
		if account, err = r.nextAddress(); err != nil {
			return err
		}
		if err := r.env.Install(account, KindAccount); err != nil {
			return err
		}
		guard, err := r.newGuard(account)
		if err != nil {
			return err
		}
		ps := ProxyState{Owner: caller, Guard: guard, MinGas: DefaultMinGas}
		if err := r.env.State().KVPut(stateKey(account), ps); err != nil {
			return err
		}
		if err := r.env.State().KVPut(currentKey(caller), account); err != nil {
			return err
		}
		r.env.Emit(events.ProxyDeployed{Owner: caller, Account: account, Guard: guard, MinGas: ps.MinGas})
		return nil
	})
	if err != nil {
		return common.Address{}, err
	}
	return account, nil
}

func (r *Registry) newGuard(account common.Address) (common.Address, error) {
	guard, err := r.nextAddress()
	if err != nil {
		return common.Address{}, err
	}
	if err := r.env.Install(guard, KindGuard); err != nil {
		return common.Address{}, err
	}
	if err := r.guard.Initialize(guard, r.address, account); err != nil {
		return common.Address{}, err
	}
	return guard, nil
}

func (r *Registry) ownedState(caller, account common.Address) (ProxyState, error) {
	ps, err := r.ProxyState(account)
	if err != nil {
		return ProxyState{}, err
	}
	if ps.Owner != caller {
		return ProxyState{}, &nativecommon.NotOwnerError{Owner: ps.Owner, Caller: caller}
	}
	return ps, nil
}

// TransferOwnership nominates newOwner. Ownership moves only once the
// nominee claims it.
func (r *Registry) TransferOwnership(caller, account, newOwner common.Address) error {
	ps, err := r.ownedState(caller, account)
	if err != nil {
		return err
	}
	if err := nativecommon.RequireNonZero(newOwner); err != nil {
		return err
	}
	existing, err := r.CurrentAccount(newOwner)
	if err != nil {
		return err
	}
	if existing != (common.Address{}) {
		return &AlreadyOwnerError{Owner: newOwner, Account: existing}
	}
	if err := r.env.State().KVPut(pendingKey(account), newOwner); err != nil {
		return err
	}
	r.env.Emit(events.ProxyOwnershipTransferred{Account: account, Owner: ps.Owner, PendingOwner: newOwner})
	return nil
}

// ClaimOwnership completes a transfer. With clearPermissions the account
// gets a fresh, empty guard.
func (r *Registry) ClaimOwnership(caller, account common.Address, clearPermissions bool) error {
	return r.env.Apply(func() error {
		pending, err := r.PendingOwner(account)
		if err != nil {
			return err
		}
		if pending != caller || caller == (common.Address{}) {
			return &CallerNotPendingOwnerError{Caller: caller, PendingOwner: pending}
		}
		existing, err := r.CurrentAccount(caller)
		if err != nil {
			return err
		}
		if existing != (common.Address{}) {
			return &AlreadyOwnerError{Owner: caller, Account: existing}
		}
		ps, err := r.ProxyState(account)
		if err != nil {
			return err
		}
		if ps.Owner == (common.Address{}) {
			return ErrAccountNotFound
		}
		r.env.State().Delete(currentKey(ps.Owner))
		r.env.State().Delete(pendingKey(account))
		if clearPermissions {
			if ps.Guard, err = r.newGuard(account); err != nil {
				return err
			}
		}
		ps.Owner = caller
		if err := r.env.State().KVPut(stateKey(account), ps); err != nil {
			return err
		}
		if err := r.env.State().KVPut(currentKey(caller), account); err != nil {
			return err
		}
		r.env.Emit(events.ProxyOwnershipClaimed{Account: account, Owner: caller, ClearPermissions: clearPermissions})
		return nil
	})
}

// ClearPermissions installs a fresh guard on account.
func (r *Registry) ClearPermissions(caller, account common.Address) error {
	return r.env.Apply(func() error {
		ps, err := r.ownedState(caller, account)
		if err != nil {
			return err
		}
		if ps.Guard, err = r.newGuard(account); err != nil {
			return err
		}
		if err := r.env.State().KVPut(stateKey(account), ps); err != nil {
			return err
		}
		r.env.Emit(events.ProxyPermissionsCleared{Account: account, Guard: ps.Guard})
		return nil
	})
}

// SetMinGas changes the gas floor of account.
func (r *Registry) SetMinGas(caller, account common.Address, minGas uint64) error {
	ps, err := r.ownedState(caller, account)
	if err != nil {
		return err
	}
	ps.MinGas = minGas
	if err := r.env.State().KVPut(stateKey(account), ps); err != nil {
		return err
	}
	r.env.Emit(events.ProxyMinGasSet{Account: account, MinGas: minGas})
	return nil
}
