package actions

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"cdpproxy/core/vm"
)

var SelLeverageOperation = vm.SelectorOf("leverageOperation(address,uint256,uint256,(uint256,bytes))")

// LeverageArgs is the executeAction payload of the leverage module.
// SwapAmount is the PAR borrowed against the vault and sold for collateral.
type LeverageArgs struct {
	DepositAmount *big.Int
	SwapAmount    *big.Int
	Flashloan     FlashloanData
	Swap          SwapData
}

type leverageParams struct {
	Owner      common.Address
	SwapAmount *big.Int
	Swap       SwapData
}

type LeverageOperationArgs struct {
	Token       common.Address
	SwapAmount  *big.Int
	RepayAmount *big.Int
	Swap        SwapData
}

// Leverage borrows collateral with a flashloan, deposits it, borrows PAR
// against it and sells the PAR for the collateral needed to repay the loan.
type Leverage struct {
	*Base
}

// NewLeverage builds the module at address.
func NewLeverage(address common.Address, deps Deps) (*Leverage, error) {
	base, err := NewBase(string(KindLeverage), address, deps, true)
	if err != nil {
		return nil, err
	}
	return &Leverage{Base: base}, nil
}

// Delegate serves executeAction and leverageOperation inside an account.
func (l *Leverage) Delegate(msg vm.Message, input []byte) ([]byte, error) {
	if err := l.CheckPaused(); err != nil {
		return nil, err
	}
	switch vm.SelectorFromData(input) {
	case SelExecuteAction:
		var args LeverageArgs
		if err := vm.DecodeArgs(input, &args); err != nil {
			return nil, err
		}
		return nil, l.executeAction(msg, args)
	case SelLeverageOperation:
		var args LeverageOperationArgs
		if err := vm.DecodeArgs(input, &args); err != nil {
			return nil, err
		}
		return nil, l.leverageOperation(msg, args)
	default:
		return nil, vm.ErrUnknownMethod
	}
}

// Call serves pause and unpause.
func (l *Leverage) Call(msg vm.Message, input []byte) ([]byte, error) {
	if handled, err := l.CallAdmin(msg, input); handled {
		return nil, err
	}
	return nil, vm.ErrUnknownMethod
}

func (l *Leverage) executeAction(msg vm.Message, args LeverageArgs) error {
	account := msg.Self()
	if err := positive(args.SwapAmount); err != nil {
		return err
	}
	if args.DepositAmount != nil && args.DepositAmount.Sign() > 0 {
		if err := l.Ledger.TransferFrom(args.Flashloan.Asset, account, msg.Caller, account, args.DepositAmount); err != nil {
			return err
		}
	}
	owner, err := l.AccountOwner(account)
	if err != nil {
		return err
	}
	params, err := rlp.EncodeToBytes(leverageParams{Owner: owner, SwapAmount: args.SwapAmount, Swap: args.Swap})
	if err != nil {
		return err
	}
	return l.RequestLoan(account, args.Flashloan, params)
}

// ExecuteOperation is the flashloan callback. It hands the loan to the
// account that requested it and runs leverageOperation there.
func (l *Leverage) ExecuteOperation(msg vm.Message, assets []common.Address, amounts, premiums []*big.Int, initiator common.Address, params []byte) (bool, error) {
	if err := l.CheckPaused(); err != nil {
		return false, err
	}
	var p leverageParams
	if err := rlp.DecodeBytes(params, &p); err != nil {
		return false, err
	}
	account, err := l.Registry.CurrentAccount(p.Owner)
	if err != nil {
		return false, err
	}
	if err := l.AuthorizeCallback(msg, initiator, account); err != nil {
		return false, err
	}
	asset, amount, owed, err := SingleLoan(assets, amounts, premiums)
	if err != nil {
		return false, err
	}
	if err := l.Ledger.Transfer(asset, l.address, account, amount); err != nil {
		return false, err
	}
	op, err := EncodeLeverageOperation(LeverageOperationArgs{
		Token:       asset,
		SwapAmount:  p.SwapAmount,
		RepayAmount: owed,
		Swap:        p.Swap,
	})
	if err != nil {
		return false, err
	}
	if _, err := l.RunInAccount(account, l.address, op); err != nil {
		return false, err
	}
	if err := l.SettleLoan(account, asset, owed, nil); err != nil {
		return false, err
	}
	return true, nil
}

// EncodeLeverageOperation builds leverageOperation calldata.
func EncodeLeverageOperation(args LeverageOperationArgs) ([]byte, error) {
	return vm.EncodeCall(SelLeverageOperation, args)
}

// leverageOperation runs in the account: everything it holds of the token is
// deposited, SwapAmount PAR is borrowed and sold, anything above the
// repayment is deposited too and the repayment goes to the calling module.
func (l *Leverage) leverageOperation(msg vm.Message, args LeverageOperationArgs) error {
	account := msg.Self()
	held, err := l.Ledger.BalanceOf(args.Token, account)
	if err != nil {
		return err
	}
	if _, err := l.Vaults.DepositAndBorrow(account, args.Token, held, args.SwapAmount); err != nil {
		return err
	}
	if err := l.AggregatorSwap(account, l.Vaults.DebtToken(), args.SwapAmount, args.Swap); err != nil {
		return err
	}
	after, err := l.Ledger.BalanceOf(args.Token, account)
	if err != nil {
		return err
	}
	if after.Cmp(args.RepayAmount) < 0 {
		return ErrCannotRepayFlashloan
	}
	if surplus := new(big.Int).Sub(after, args.RepayAmount); surplus.Sign() > 0 {
		if _, err := l.Vaults.Deposit(account, args.Token, surplus); err != nil {
			return err
		}
	}
	return l.Ledger.Transfer(args.Token, account, msg.Caller, args.RepayAmount)
}
