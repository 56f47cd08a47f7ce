package flashloan

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"cdpproxy/core/events"
	"cdpproxy/core/vm"
	nativecommon "cdpproxy/native/common"
)

var (
	ErrInconsistentParams = errors.New("flashloan: inconsistent flashloan parameters")
	ErrUnsupportedMode    = errors.New("flashloan: only mode 0 (no debt) is supported")
	ErrInvalidReturn      = errors.New("flashloan: receiver returned false")
	ErrNotReceiver        = errors.New("flashloan: receiver does not implement executeOperation")
	ErrZeroAmount         = errors.New("flashloan: amount must be positive")
)

// Address is where the pool and its liquidity live.
var Address = vm.ModuleAddress("flashloan.pool")

const moduleName = "flashloan"

// Receiver is implemented by contracts that accept flashloans.
type Receiver interface {
	ExecuteOperation(msg vm.Message, assets []common.Address, amounts, premiums []*big.Int, initiator common.Address, params []byte) (bool, error)
}

// Ledger is the subset of the bank the pool needs.
type Ledger interface {
	Transfer(asset, from, to common.Address, amount *big.Int) error
	TransferFrom(asset, spender, from, to common.Address, amount *big.Int) error
}

// Resolver finds the code installed at an address and buffers events.
type Resolver interface {
	Resolve(addr common.Address) (interface{}, bool)
	Emit(ev events.Event)
}

// Pool lends its balances for the duration of one call and collects a
// premium expressed in basis points.
type Pool struct {
	address    common.Address
	env        Resolver
	ledger     Ledger
	premiumBps uint64
	pauses     nativecommon.PauseView
}

// NewPool wires a pool at address.
func NewPool(address common.Address, env Resolver, ledger Ledger, premiumBps uint64) *Pool {
	return &Pool{address: address, env: env, ledger: ledger, premiumBps: premiumBps}
}

func (p *Pool) SetPauses(view nativecommon.PauseView) { p.pauses = view }

// Address returns the pool address callbacks see as their caller.
func (p *Pool) Address() common.Address { return p.address }

// PremiumBps returns the flashloan fee rate.
func (p *Pool) PremiumBps() uint64 { return p.premiumBps }

// Premium returns the fee owed on amount.
func (p *Pool) Premium(amount *big.Int) *big.Int {
	return nativecommon.PercentMul(amount, p.premiumBps)
}

// FlashLoan sends amounts to receiver, runs its ExecuteOperation and pulls
// back amount plus premium of every asset through the receiver's allowance.
// The initiator is whoever called the pool. Only mode 0 exists, so the
// onBehalfOf and referral arguments are accepted for interface parity only.
func (p *Pool) FlashLoan(initiator, receiver common.Address, assets []common.Address, amounts []*big.Int, modes []uint8, _ common.Address, params []byte, _ uint16) error {
	if err := nativecommon.Guard(p.pauses, moduleName); err != nil {
		return err
	}
	if len(assets) == 0 || len(assets) != len(amounts) || len(assets) != len(modes) {
		return ErrInconsistentParams
	}
	for i, mode := range modes {
		if mode != 0 {
			return fmt.Errorf("%w: asset %d mode %d", ErrUnsupportedMode, i, mode)
		}
		if amounts[i] == nil || amounts[i].Sign() <= 0 {
			return ErrZeroAmount
		}
	}
	impl, ok := p.env.Resolve(receiver)
	if !ok {
		return fmt.Errorf("%w: %s", vm.ErrNoCode, receiver.Hex())
	}
	callback, ok := impl.(Receiver)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotReceiver, receiver.Hex())
	}

	premiums := make([]*big.Int, len(amounts))
	for i, asset := range assets {
		premiums[i] = p.Premium(amounts[i])
		if err := p.ledger.Transfer(asset, p.address, receiver, amounts[i]); err != nil {
			return fmt.Errorf("flashloan: fund %s: %w", asset.Hex(), err)
		}
	}

	msg := vm.Message{Caller: p.address, To: receiver, Context: receiver}
	okReturn, err := callback.ExecuteOperation(msg, assets, amounts, premiums, initiator, params)
	if err != nil {
		return err
	}
	if !okReturn {
		return ErrInvalidReturn
	}

	for i, asset := range assets {
		owed := new(big.Int).Add(amounts[i], premiums[i])
		if err := p.ledger.TransferFrom(asset, p.address, receiver, p.address, owed); err != nil {
			return fmt.Errorf("flashloan: repay %s: %w", asset.Hex(), err)
		}
		p.env.Emit(events.FlashLoanExecuted{
			Pool:      p.address,
			Receiver:  receiver,
			Initiator: initiator,
			Asset:     asset,
			Amount:    new(big.Int).Set(amounts[i]),
			Premium:   premiums[i],
		})
	}
	return nil
}
