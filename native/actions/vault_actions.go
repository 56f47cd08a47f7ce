package actions

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"cdpproxy/core/vm"
	"cdpproxy/native/bank"
)

var (
	SelDeposit             = vm.SelectorOf("deposit(address,uint256)")
	SelDepositETH          = vm.SelectorOf("depositETH()")
	SelDepositAndBorrow    = vm.SelectorOf("depositAndBorrow(address,uint256,uint256)")
	SelDepositETHAndBorrow = vm.SelectorOf("depositETHAndBorrow(uint256)")
	SelWithdraw            = vm.SelectorOf("withdraw(uint256,uint256)")
	SelWithdrawETH         = vm.SelectorOf("withdrawETH(uint256,uint256)")
	SelBorrow              = vm.SelectorOf("borrow(uint256,uint256)")
)

type DepositArgs struct {
	Collateral common.Address
	Amount     *big.Int
}

type DepositAndBorrowArgs struct {
	Collateral    common.Address
	DepositAmount *big.Int
	BorrowAmount  *big.Int
}

type BorrowAmountArgs struct {
	BorrowAmount *big.Int
}

// VaultAmountArgs is shared by withdraw, withdrawETH and borrow.
type VaultAmountArgs struct {
	VaultID uint64
	Amount  *big.Int
}

// VaultActions drives the vaults engine from an account. Collateral is
// pulled from the caller through the allowance it gave the account; borrowed
// PAR and withdrawn collateral go back to the caller.
type VaultActions struct {
	*Base
}

// NewVaultActions builds the module at address.
func NewVaultActions(address common.Address, deps Deps) (*VaultActions, error) {
	base, err := NewBase(string(KindVault), address, deps, false)
	if err != nil {
		return nil, err
	}
	return &VaultActions{Base: base}, nil
}

// Delegate runs one vault action in the calling account.
func (v *VaultActions) Delegate(msg vm.Message, input []byte) ([]byte, error) {
	if err := v.CheckPaused(); err != nil {
		return nil, err
	}
	account := msg.Self()
	var (
		id  uint64
		err error
	)
	switch vm.SelectorFromData(input) {
	case SelDeposit:
		var args DepositArgs
		if err := vm.DecodeArgs(input, &args); err != nil {
			return nil, err
		}
		id, err = v.deposit(msg.Caller, account, args.Collateral, args.Amount)
	case SelDepositETH:
		id, err = v.depositETH(account, msg.CallValue())
	case SelDepositAndBorrow:
		var args DepositAndBorrowArgs
		if err := vm.DecodeArgs(input, &args); err != nil {
			return nil, err
		}
		id, err = v.depositAndBorrow(msg.Caller, account, args)
	case SelDepositETHAndBorrow:
		var args BorrowAmountArgs
		if err := vm.DecodeArgs(input, &args); err != nil {
			return nil, err
		}
		id, err = v.depositETHAndBorrow(msg.Caller, account, msg.CallValue(), args.BorrowAmount)
	case SelWithdraw:
		var args VaultAmountArgs
		if err := vm.DecodeArgs(input, &args); err != nil {
			return nil, err
		}
		id, err = args.VaultID, v.withdraw(msg.Caller, account, args.VaultID, args.Amount)
	case SelWithdrawETH:
		var args VaultAmountArgs
		if err := vm.DecodeArgs(input, &args); err != nil {
			return nil, err
		}
		id, err = args.VaultID, v.withdrawETH(msg.Caller, account, args.VaultID, args.Amount)
	case SelBorrow:
		var args VaultAmountArgs
		if err := vm.DecodeArgs(input, &args); err != nil {
			return nil, err
		}
		id, err = args.VaultID, v.borrow(msg.Caller, account, args.VaultID, args.Amount)
	default:
		return nil, vm.ErrUnknownMethod
	}
	if err != nil {
		return nil, err
	}
	return rlp.EncodeToBytes(id)
}

// Call serves pause and unpause.
func (v *VaultActions) Call(msg vm.Message, input []byte) ([]byte, error) {
	if handled, err := v.CallAdmin(msg, input); handled {
		return nil, err
	}
	return nil, vm.ErrUnknownMethod
}

func (v *VaultActions) pull(caller, account, collateral common.Address, amount *big.Int) error {
	if err := positive(amount); err != nil {
		return err
	}
	return v.Ledger.TransferFrom(collateral, account, caller, account, amount)
}

func (v *VaultActions) deposit(caller, account, collateral common.Address, amount *big.Int) (uint64, error) {
	if err := v.pull(caller, account, collateral, amount); err != nil {
		return 0, err
	}
	return v.Vaults.Deposit(account, collateral, amount)
}

func (v *VaultActions) depositETH(account common.Address, value *big.Int) (uint64, error) {
	if value.Sign() <= 0 {
		return 0, ErrNoValue
	}
	return v.Vaults.DepositNative(account, value)
}

func (v *VaultActions) depositAndBorrow(caller, account common.Address, args DepositAndBorrowArgs) (uint64, error) {
	if err := v.pull(caller, account, args.Collateral, args.DepositAmount); err != nil {
		return 0, err
	}
	id, err := v.Vaults.DepositAndBorrow(account, args.Collateral, args.DepositAmount, args.BorrowAmount)
	if err != nil {
		return 0, err
	}
	return id, v.Ledger.Transfer(v.Vaults.DebtToken(), account, caller, args.BorrowAmount)
}

func (v *VaultActions) depositETHAndBorrow(caller, account common.Address, value, borrowAmount *big.Int) (uint64, error) {
	if value.Sign() <= 0 {
		return 0, ErrNoValue
	}
	id, err := v.Vaults.DepositNativeAndBorrow(account, value, borrowAmount)
	if err != nil {
		return 0, err
	}
	return id, v.Ledger.Transfer(v.Vaults.DebtToken(), account, caller, borrowAmount)
}

func (v *VaultActions) withdraw(caller, account common.Address, vaultID uint64, amount *big.Int) error {
	collateral, err := v.Vaults.VaultCollateralType(vaultID)
	if err != nil {
		return err
	}
	if err := v.Vaults.Withdraw(account, vaultID, amount); err != nil {
		return err
	}
	return v.Ledger.Transfer(collateral, account, caller, amount)
}

func (v *VaultActions) withdrawETH(caller, account common.Address, vaultID uint64, amount *big.Int) error {
	if err := v.Vaults.WithdrawNative(account, vaultID, amount); err != nil {
		return err
	}
	return v.Ledger.Transfer(bank.NativeAsset, account, caller, amount)
}

func (v *VaultActions) borrow(caller, account common.Address, vaultID uint64, amount *big.Int) error {
	if err := v.Vaults.Borrow(account, vaultID, amount); err != nil {
		return err
	}
	return v.Ledger.Transfer(v.Vaults.DebtToken(), account, caller, amount)
}
