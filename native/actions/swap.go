package actions

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"cdpproxy/core/vm"
)

var (
	SelExecuteAction = vm.SelectorOf("executeAction(bytes)")
	SelSwap          = vm.SelectorOf("swap(address,uint256,(uint256,bytes))")
)

type SwapArgs struct {
	Token  common.Address
	Amount *big.Int
	Swap   SwapData
}

// AggregatorSwap lets the router of swap.DexIndex spend amount of token held
// by account and runs the payload from account. The payload is opaque here.
func (b *Base) AggregatorSwap(account, token common.Address, amount *big.Int, swap SwapData) error {
	router, spender, err := b.Dex.GetDex(swap.DexIndex)
	if err != nil {
		return err
	}
	if router == (common.Address{}) || spender == (common.Address{}) {
		return fmt.Errorf("%w: index %d", ErrInvalidAggregator, swap.DexIndex)
	}
	if err := b.Ledger.IncreaseAllowance(token, account, spender, amount); err != nil {
		return err
	}
	if _, err := b.Env.Call(vm.Message{Caller: account, To: router, Gas: OperationGas}, swap.DexTxData); err != nil {
		return fmt.Errorf("actions: aggregator %d swap: %w", swap.DexIndex, err)
	}
	return nil
}

// Swap is the standalone swap module: it trades a token the account holds
// through an aggregator.
type Swap struct {
	*Base
}

// NewSwap builds the swap module at address.
func NewSwap(address common.Address, deps Deps) (*Swap, error) {
	if deps.Dex == nil {
		return nil, errNilCollaborator
	}
	base, err := NewBase(string(KindSwap), address, deps, false)
	if err != nil {
		return nil, err
	}
	return &Swap{Base: base}, nil
}

// Delegate runs swap in the calling account.
func (s *Swap) Delegate(msg vm.Message, input []byte) ([]byte, error) {
	if err := s.CheckPaused(); err != nil {
		return nil, err
	}
	if vm.SelectorFromData(input) != SelSwap {
		return nil, vm.ErrUnknownMethod
	}
	var args SwapArgs
	if err := vm.DecodeArgs(input, &args); err != nil {
		return nil, err
	}
	if err := positive(args.Amount); err != nil {
		return nil, err
	}
	return nil, s.AggregatorSwap(msg.Self(), args.Token, args.Amount, args.Swap)
}

// Call serves pause and unpause.
func (s *Swap) Call(msg vm.Message, input []byte) ([]byte, error) {
	if handled, err := s.CallAdmin(msg, input); handled {
		return nil, err
	}
	return nil, vm.ErrUnknownMethod
}
