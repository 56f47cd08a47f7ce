package vaults

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"cdpproxy/core/vm"
)

// KindCore binds the engine's call surface in the execution environment.
const KindCore vm.Kind = "vaults.core"

var (
	SelDeposit          = vm.SelectorOf("deposit(address,uint256)")
	SelDepositAndBorrow = vm.SelectorOf("depositAndBorrow(address,uint256,uint256)")
	SelBorrow           = vm.SelectorOf("borrow(uint256,uint256)")
	SelRepay            = vm.SelectorOf("repay(uint256,uint256)")
	SelRepayAll         = vm.SelectorOf("repayAll(uint256)")
	SelWithdraw         = vm.SelectorOf("withdraw(uint256,uint256)")
)

type DepositArgs struct {
	Asset  common.Address
	Amount *big.Int
}

type DepositAndBorrowArgs struct {
	Asset         common.Address
	DepositAmount *big.Int
	BorrowAmount  *big.Int
}

// VaultAmountArgs is shared by borrow, repay and withdraw.
type VaultAmountArgs struct {
	VaultID uint64
	Amount  *big.Int
}

type RepayAllArgs struct {
	VaultID uint64
}

// Call lets accounts reach the engine through regular calls, for instance
// from a multicall. The caller acts as the vault owner.
func (e *Engine) Call(msg vm.Message, input []byte) ([]byte, error) {
	switch vm.SelectorFromData(input) {
	case SelDeposit:
		var args DepositArgs
		if err := vm.DecodeArgs(input, &args); err != nil {
			return nil, err
		}
		id, err := e.Deposit(msg.Caller, args.Asset, args.Amount)
		if err != nil {
			return nil, err
		}
		return rlp.EncodeToBytes(id)
	case SelDepositAndBorrow:
		var args DepositAndBorrowArgs
		if err := vm.DecodeArgs(input, &args); err != nil {
			return nil, err
		}
		id, err := e.DepositAndBorrow(msg.Caller, args.Asset, args.DepositAmount, args.BorrowAmount)
		if err != nil {
			return nil, err
		}
		return rlp.EncodeToBytes(id)
	case SelBorrow:
		var args VaultAmountArgs
		if err := vm.DecodeArgs(input, &args); err != nil {
			return nil, err
		}
		return nil, e.Borrow(msg.Caller, args.VaultID, args.Amount)
	case SelRepay:
		var args VaultAmountArgs
		if err := vm.DecodeArgs(input, &args); err != nil {
			return nil, err
		}
		return nil, e.Repay(msg.Caller, args.VaultID, args.Amount)
	case SelRepayAll:
		var args RepayAllArgs
		if err := vm.DecodeArgs(input, &args); err != nil {
			return nil, err
		}
		return nil, e.RepayAll(msg.Caller, args.VaultID)
	case SelWithdraw:
		var args VaultAmountArgs
		if err := vm.DecodeArgs(input, &args); err != nil {
			return nil, err
		}
		return nil, e.Withdraw(msg.Caller, args.VaultID, args.Amount)
	default:
		return nil, vm.ErrUnknownMethod
	}
}
