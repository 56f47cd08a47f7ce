package actions

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"cdpproxy/core/events"
	"cdpproxy/core/vm"
	nativecommon "cdpproxy/native/common"
	"cdpproxy/native/proxy"
)

// OperationGas is the budget a module hands to an account when it runs the
// in-account half of a flashloan operation.
const OperationGas uint64 = 1_000_000

// Code kinds the node binds the modules under.
const (
	KindVault      vm.Kind = "actions.vault"
	KindSwap       vm.Kind = "actions.swap"
	KindLeverage   vm.Kind = "actions.leverage"
	KindRebalance  vm.Kind = "actions.rebalance"
	KindEmptyVault vm.Kind = "actions.empty_vault"
	KindProxy      vm.Kind = "actions.proxy"
)

var (
	SelPause   = vm.SelectorOf("pause()")
	SelUnpause = vm.SelectorOf("unpause()")
)

// Ledger is the token book the modules move funds through.
type Ledger interface {
	BalanceOf(asset, holder common.Address) (*big.Int, error)
	Transfer(asset, from, to common.Address, amount *big.Int) error
	TransferFrom(asset, spender, from, to common.Address, amount *big.Int) error
	Approve(asset, owner, spender common.Address, amount *big.Int) error
	IncreaseAllowance(asset, owner, spender common.Address, amount *big.Int) error
}

// Vaults is the CDP ledger the modules drive on behalf of accounts.
type Vaults interface {
	DebtToken() common.Address
	Deposit(caller, asset common.Address, amount *big.Int) (uint64, error)
	DepositNative(caller common.Address, amount *big.Int) (uint64, error)
	DepositAndBorrow(caller, asset common.Address, depositAmount, borrowAmount *big.Int) (uint64, error)
	DepositNativeAndBorrow(caller common.Address, depositAmount, borrowAmount *big.Int) (uint64, error)
	Borrow(caller common.Address, vaultID uint64, amount *big.Int) error
	Repay(caller common.Address, vaultID uint64, amount *big.Int) error
	RepayAll(caller common.Address, vaultID uint64) error
	Withdraw(caller common.Address, vaultID uint64, amount *big.Int) error
	WithdrawNative(caller common.Address, vaultID uint64, amount *big.Int) error
	VaultOwner(vaultID uint64) (common.Address, error)
	VaultDebt(vaultID uint64) (*big.Int, error)
	VaultCollateralBalance(vaultID uint64) (*big.Int, error)
	VaultCollateralType(vaultID uint64) (common.Address, error)
	VaultID(asset, owner common.Address) (uint64, error)
}

// Lender is the flashloan liquidity provider.
type Lender interface {
	Address() common.Address
	FlashLoan(initiator, receiver common.Address, assets []common.Address, amounts []*big.Int, modes []uint8, onBehalfOf common.Address, params []byte, referral uint16) error
}

// DexRegistry resolves aggregator indexes.
type DexRegistry interface {
	GetDex(index uint64) (router, spender common.Address, err error)
}

// Deps bundles the collaborators shared by the action modules. Pool and Dex
// are only required by modules that take flashloans or swap.
type Deps struct {
	Env      *vm.Env
	Registry *proxy.Registry
	Ledger   Ledger
	Vaults   Vaults
	Pool     Lender
	Dex      DexRegistry
	Pauses   nativecommon.PauseStore
	Owner    common.Address
}

func (d Deps) validate(withLoans bool) error {
	if d.Env == nil || d.Registry == nil || d.Ledger == nil || d.Vaults == nil || d.Pauses == nil {
		return errNilCollaborator
	}
	if err := nativecommon.RequireNonZero(d.Owner); err != nil {
		return err
	}
	if !withLoans {
		return nil
	}
	if d.Pool == nil || d.Dex == nil {
		return errNilCollaborator
	}
	return nativecommon.RequireNonZero(d.Pool.Address())
}

// Base carries what every module shares: its address, collaborators and an
// owner-controlled pause switch.
type Base struct {
	Deps
	name     string
	address  common.Address
	pausable nativecommon.Pausable
}

// NewBase validates deps and builds the shared part of a module named name
// living at address.
func NewBase(name string, address common.Address, deps Deps, withLoans bool) (*Base, error) {
	if err := deps.validate(withLoans); err != nil {
		return nil, err
	}
	if err := nativecommon.RequireNonZero(address); err != nil {
		return nil, err
	}
	return &Base{
		Deps:     deps,
		name:     name,
		address:  address,
		pausable: nativecommon.Pausable{Module: name, Owner: deps.Owner, Store: deps.Pauses},
	}, nil
}

// Address returns where the module's code is installed.
func (b *Base) Address() common.Address { return b.address }

// Name returns the module's pause key.
func (b *Base) Name() string { return b.name }

// Paused reports whether the module is paused.
func (b *Base) Paused() bool { return b.pausable.Paused() }

// CheckPaused fails with ErrModulePaused while paused.
func (b *Base) CheckPaused() error { return b.pausable.Check() }

// Pause stops every entry point of the module. Owner only.
func (b *Base) Pause(caller common.Address) error {
	if err := b.pausable.Pause(caller); err != nil {
		return err
	}
	b.Env.Emit(events.ModulePauseChanged{Module: b.name, By: caller, Paused: true})
	return nil
}

// Unpause resumes the module. Owner only.
func (b *Base) Unpause(caller common.Address) error {
	if err := b.pausable.Unpause(caller); err != nil {
		return err
	}
	b.Env.Emit(events.ModulePauseChanged{Module: b.name, By: caller, Paused: false})
	return nil
}

// CallAdmin serves pause and unpause. handled is false for other selectors.
func (b *Base) CallAdmin(msg vm.Message, input []byte) (handled bool, err error) {
	switch vm.SelectorFromData(input) {
	case SelPause:
		return true, b.Pause(msg.Caller)
	case SelUnpause:
		return true, b.Unpause(msg.Caller)
	default:
		return false, nil
	}
}

// AccountOwner returns the owner of account, or zero when it is not a live
// account.
func (b *Base) AccountOwner(account common.Address) (common.Address, error) {
	ps, err := b.Registry.ProxyState(account)
	if err != nil {
		return common.Address{}, err
	}
	return ps.Owner, nil
}

// RunInAccount executes data on target inside account with the module as
// the caller. The account's guard must allow it.
func (b *Base) RunInAccount(account, target common.Address, data []byte) ([]byte, error) {
	msg := vm.Message{Caller: b.address, To: account, Gas: OperationGas}
	return b.Registry.Accounts().Execute(msg, target, data)
}

func positive(amounts ...*big.Int) error {
	for _, amount := range amounts {
		if amount == nil || amount.Sign() <= 0 {
			return ErrInvalidAmount
		}
	}
	return nil
}
