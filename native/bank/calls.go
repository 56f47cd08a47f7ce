package bank

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"cdpproxy/core/vm"
)

// KindBank binds the ledger's call surface.
const KindBank vm.Kind = "bank.ledger"

// Address is where accounts and users reach the ledger.
var Address = vm.ModuleAddress("bank")

var ErrNotPayable = errors.New("bank: call does not accept value")

var (
	SelTransfer     = vm.SelectorOf("transfer(address,address,uint256)")
	SelApprove      = vm.SelectorOf("approve(address,address,uint256)")
	SelTransferFrom = vm.SelectorOf("transferFrom(address,address,address,uint256)")
	SelBalanceOf    = vm.SelectorOf("balanceOf(address,address)")
	SelWrap         = vm.SelectorOf("wrap(uint256)")
	SelUnwrap       = vm.SelectorOf("unwrap(uint256)")
)

type TransferArgs struct {
	Asset  common.Address
	To     common.Address
	Amount *big.Int
}

type ApproveArgs struct {
	Asset   common.Address
	Spender common.Address
	Amount  *big.Int
}

type TransferFromArgs struct {
	Asset  common.Address
	From   common.Address
	To     common.Address
	Amount *big.Int
}

type BalanceOfArgs struct {
	Asset  common.Address
	Holder common.Address
}

type AmountArgs struct {
	Amount *big.Int
}

// Call dispatches token operations on behalf of msg.Caller.
func (l *Ledger) Call(msg vm.Message, input []byte) ([]byte, error) {
	if msg.CallValue().Sign() != 0 {
		return nil, ErrNotPayable
	}
	switch vm.SelectorFromData(input) {
	case SelTransfer:
		var args TransferArgs
		if err := vm.DecodeArgs(input, &args); err != nil {
			return nil, err
		}
		return nil, l.Transfer(args.Asset, msg.Caller, args.To, args.Amount)
	case SelApprove:
		var args ApproveArgs
		if err := vm.DecodeArgs(input, &args); err != nil {
			return nil, err
		}
		return nil, l.Approve(args.Asset, msg.Caller, args.Spender, args.Amount)
	case SelTransferFrom:
		var args TransferFromArgs
		if err := vm.DecodeArgs(input, &args); err != nil {
			return nil, err
		}
		return nil, l.TransferFrom(args.Asset, msg.Caller, args.From, args.To, args.Amount)
	case SelBalanceOf:
		var args BalanceOfArgs
		if err := vm.DecodeArgs(input, &args); err != nil {
			return nil, err
		}
		balance, err := l.BalanceOf(args.Asset, args.Holder)
		if err != nil {
			return nil, err
		}
		return rlp.EncodeToBytes(balance)
	case SelWrap:
		var args AmountArgs
		if err := vm.DecodeArgs(input, &args); err != nil {
			return nil, err
		}
		return nil, l.Wrap(msg.Caller, args.Amount)
	case SelUnwrap:
		var args AmountArgs
		if err := vm.DecodeArgs(input, &args); err != nil {
			return nil, err
		}
		return nil, l.Unwrap(msg.Caller, args.Amount)
	default:
		return nil, vm.ErrUnknownMethod
	}
}
