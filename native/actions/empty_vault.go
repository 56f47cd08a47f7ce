package actions

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"cdpproxy/core/vm"
)

var SelEmptyVaultOperation = vm.SelectorOf("emptyVaultOperation(address,uint256,uint256,(uint256,bytes))")

// EmptyVaultArgs is the executeAction payload of the empty vault module. The
// flashloan borrows the PAR that clears the vault's debt.
type EmptyVaultArgs struct {
	VaultID   uint64
	Flashloan FlashloanData
	Swap      SwapData
}

type emptyVaultParams struct {
	Owner   common.Address
	VaultID uint64
	Swap    SwapData
}

type EmptyVaultOperationArgs struct {
	Collateral  common.Address
	VaultID     uint64
	RepayAmount *big.Int
	Swap        SwapData
}

// EmptyVault closes a vault with borrowed PAR and sells part of the freed
// collateral to repay the loan.
type EmptyVault struct {
	*Base
}

// NewEmptyVault builds the module at address.
func NewEmptyVault(address common.Address, deps Deps) (*EmptyVault, error) {
	base, err := NewBase(string(KindEmptyVault), address, deps, true)
	if err != nil {
		return nil, err
	}
	return &EmptyVault{Base: base}, nil
}

// Delegate serves executeAction and emptyVaultOperation inside an account.
func (e *EmptyVault) Delegate(msg vm.Message, input []byte) ([]byte, error) {
	if err := e.CheckPaused(); err != nil {
		return nil, err
	}
	switch vm.SelectorFromData(input) {
	case SelExecuteAction:
		var args EmptyVaultArgs
		if err := vm.DecodeArgs(input, &args); err != nil {
			return nil, err
		}
		return nil, e.executeAction(msg, args)
	case SelEmptyVaultOperation:
		var args EmptyVaultOperationArgs
		if err := vm.DecodeArgs(input, &args); err != nil {
			return nil, err
		}
		return nil, e.emptyVaultOperation(msg, args)
	default:
		return nil, vm.ErrUnknownMethod
	}
}

// Call serves pause and unpause.
func (e *EmptyVault) Call(msg vm.Message, input []byte) ([]byte, error) {
	if handled, err := e.CallAdmin(msg, input); handled {
		return nil, err
	}
	return nil, vm.ErrUnknownMethod
}

func (e *EmptyVault) executeAction(msg vm.Message, args EmptyVaultArgs) error {
	account := msg.Self()
	owner, err := e.AccountOwner(account)
	if err != nil {
		return err
	}
	params, err := rlp.EncodeToBytes(emptyVaultParams{Owner: owner, VaultID: args.VaultID, Swap: args.Swap})
	if err != nil {
		return err
	}
	return e.RequestLoan(account, args.Flashloan, params)
}

// ExecuteOperation is the flashloan callback of emptyVault.
func (e *EmptyVault) ExecuteOperation(msg vm.Message, assets []common.Address, amounts, premiums []*big.Int, initiator common.Address, params []byte) (bool, error) {
	if err := e.CheckPaused(); err != nil {
		return false, err
	}
	var p emptyVaultParams
	if err := rlp.DecodeBytes(params, &p); err != nil {
		return false, err
	}
	account, err := e.Registry.CurrentAccount(p.Owner)
	if err != nil {
		return false, err
	}
	if err := e.AuthorizeCallback(msg, initiator, account); err != nil {
		return false, err
	}
	asset, amount, owed, err := SingleLoan(assets, amounts, premiums)
	if err != nil {
		return false, err
	}
	collateral, err := e.Vaults.VaultCollateralType(p.VaultID)
	if err != nil {
		return false, err
	}
	if err := e.Ledger.Transfer(asset, e.address, account, amount); err != nil {
		return false, err
	}
	op, err := EncodeEmptyVaultOperation(EmptyVaultOperationArgs{
		Collateral:  collateral,
		VaultID:     p.VaultID,
		RepayAmount: owed,
		Swap:        p.Swap,
	})
	if err != nil {
		return false, err
	}
	if _, err := e.RunInAccount(account, e.address, op); err != nil {
		return false, err
	}
	if err := e.SettleLoan(account, asset, owed, nil); err != nil {
		return false, err
	}
	return true, nil
}

// EncodeEmptyVaultOperation builds emptyVaultOperation calldata.
func EncodeEmptyVaultOperation(args EmptyVaultOperationArgs) ([]byte, error) {
	return vm.EncodeCall(SelEmptyVaultOperation, args)
}

// emptyVaultOperation runs in the account: it repays the whole debt,
// withdraws every unit of collateral, sells collateral for PAR through the
// aggregator and hands the loan repayment to the calling module.
func (e *EmptyVault) emptyVaultOperation(msg vm.Message, args EmptyVaultOperationArgs) error {
	account := msg.Self()
	if err := e.Vaults.RepayAll(account, args.VaultID); err != nil {
		return err
	}
	locked, err := e.Vaults.VaultCollateralBalance(args.VaultID)
	if err != nil {
		return err
	}
	if locked.Sign() > 0 {
		if err := e.Vaults.Withdraw(account, args.VaultID, locked); err != nil {
			return err
		}
	}
	if err := e.AggregatorSwap(account, args.Collateral, locked, args.Swap); err != nil {
		return err
	}
	debtToken := e.Vaults.DebtToken()
	held, err := e.Ledger.BalanceOf(debtToken, account)
	if err != nil {
		return err
	}
	if held.Cmp(args.RepayAmount) < 0 {
		return ErrCannotRepayFlashloan
	}
	return e.Ledger.Transfer(debtToken, account, msg.Caller, args.RepayAmount)
}
