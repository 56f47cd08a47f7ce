package actions

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"cdpproxy/core/vm"
)

var SelRebalanceOperation = vm.SelectorOf("rebalanceOperation(address,uint256,uint256,uint256,(address,uint256,uint256),(uint256,bytes))")

// RebalanceArgs is the executeAction payload of the rebalance module.
type RebalanceArgs struct {
	Flashloan FlashloanData
	Rebalance RebalanceData
	Swap      SwapData
}

type rebalanceParams struct {
	Owner     common.Address
	Rebalance RebalanceData
	Swap      SwapData
}

// RebalanceOperationArgs is the in-account half of every rebalance,
// including automated and managed ones.
type RebalanceOperationArgs struct {
	FromCollateral common.Address
	SwapAmount     *big.Int
	RepayAmount    *big.Int
	Fee            *big.Int
	Rebalance      RebalanceData
	Swap           SwapData
}

// EncodeRebalanceOperation builds rebalanceOperation calldata.
func EncodeRebalanceOperation(args RebalanceOperationArgs) ([]byte, error) {
	return vm.EncodeCall(SelRebalanceOperation, args)
}

// Rebalance moves value from one vault of an account into a vault of another
// collateral, funded by a flashloan of the source collateral.
type Rebalance struct {
	*Base
}

// NewRebalance builds the module at address.
func NewRebalance(address common.Address, deps Deps) (*Rebalance, error) {
	base, err := NewBase(string(KindRebalance), address, deps, true)
	if err != nil {
		return nil, err
	}
	return &Rebalance{Base: base}, nil
}

// Delegate serves executeAction and rebalanceOperation inside an account.
func (r *Rebalance) Delegate(msg vm.Message, input []byte) ([]byte, error) {
	if err := r.CheckPaused(); err != nil {
		return nil, err
	}
	switch vm.SelectorFromData(input) {
	case SelExecuteAction:
		var args RebalanceArgs
		if err := vm.DecodeArgs(input, &args); err != nil {
			return nil, err
		}
		return nil, r.executeAction(msg, args)
	case SelRebalanceOperation:
		var args RebalanceOperationArgs
		if err := vm.DecodeArgs(input, &args); err != nil {
			return nil, err
		}
		return nil, r.rebalanceOperation(msg, args)
	default:
		return nil, vm.ErrUnknownMethod
	}
}

// Call serves pause and unpause.
func (r *Rebalance) Call(msg vm.Message, input []byte) ([]byte, error) {
	if handled, err := r.CallAdmin(msg, input); handled {
		return nil, err
	}
	return nil, vm.ErrUnknownMethod
}

func (r *Rebalance) executeAction(msg vm.Message, args RebalanceArgs) error {
	account := msg.Self()
	if err := positive(args.Rebalance.MintAmount); err != nil {
		return err
	}
	owner, err := r.AccountOwner(account)
	if err != nil {
		return err
	}
	params, err := rlp.EncodeToBytes(rebalanceParams{Owner: owner, Rebalance: args.Rebalance, Swap: args.Swap})
	if err != nil {
		return err
	}
	return r.RequestLoan(account, args.Flashloan, params)
}

// ExecuteOperation is the flashloan callback of a user rebalance.
func (r *Rebalance) ExecuteOperation(msg vm.Message, assets []common.Address, amounts, premiums []*big.Int, initiator common.Address, params []byte) (bool, error) {
	if err := r.CheckPaused(); err != nil {
		return false, err
	}
	var p rebalanceParams
	if err := rlp.DecodeBytes(params, &p); err != nil {
		return false, err
	}
	account, err := r.Registry.CurrentAccount(p.Owner)
	if err != nil {
		return false, err
	}
	if err := r.AuthorizeCallback(msg, initiator, account); err != nil {
		return false, err
	}
	asset, amount, owed, err := SingleLoan(assets, amounts, premiums)
	if err != nil {
		return false, err
	}
	if err := r.Ledger.Transfer(asset, r.address, account, amount); err != nil {
		return false, err
	}
	op, err := EncodeRebalanceOperation(RebalanceOperationArgs{
		FromCollateral: asset,
		SwapAmount:     amount,
		RepayAmount:    owed,
		Fee:            new(big.Int),
		Rebalance:      p.Rebalance,
		Swap:           p.Swap,
	})
	if err != nil {
		return false, err
	}
	if _, err := r.RunInAccount(account, r.address, op); err != nil {
		return false, err
	}
	if err := r.SettleLoan(account, asset, owed, nil); err != nil {
		return false, err
	}
	return true, nil
}

// rebalanceOperation runs in the account. The borrowed source collateral is
// swapped into the destination collateral, which is deposited while
// MintAmount PAR is borrowed against it. That PAR less the fee repays the
// source vault, the fee goes to the calling module, and the freed source
// collateral pays back the flashloan.
func (r *Rebalance) rebalanceOperation(msg vm.Message, args RebalanceOperationArgs) error {
	account := msg.Self()
	rb := args.Rebalance
	fee := args.Fee
	if fee == nil {
		fee = new(big.Int)
	}
	if err := positive(rb.MintAmount); err != nil {
		return err
	}
	if err := r.AggregatorSwap(account, args.FromCollateral, args.SwapAmount, args.Swap); err != nil {
		return err
	}
	received, err := r.Ledger.BalanceOf(rb.ToCollateral, account)
	if err != nil {
		return err
	}
	if _, err := r.Vaults.DepositAndBorrow(account, rb.ToCollateral, received, rb.MintAmount); err != nil {
		return err
	}
	repay := new(big.Int).Sub(rb.MintAmount, fee)
	if repay.Sign() > 0 {
		if err := r.Vaults.Repay(account, rb.VaultID, repay); err != nil {
			return err
		}
	}
	if fee.Sign() > 0 {
		if err := r.Ledger.Transfer(r.Vaults.DebtToken(), account, msg.Caller, fee); err != nil {
			return err
		}
	}
	if err := r.Vaults.Withdraw(account, rb.VaultID, args.RepayAmount); err != nil {
		return err
	}
	return r.Ledger.Transfer(args.FromCollateral, account, msg.Caller, args.RepayAmount)
}
