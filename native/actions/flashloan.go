package actions

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"cdpproxy/core/vm"
	nativecommon "cdpproxy/native/common"
)

var errSingleAsset = errors.New("actions: callback expects exactly one borrowed asset")

// FlashloanData names the asset and amount to borrow.
type FlashloanData struct {
	Asset  common.Address
	Amount *big.Int
}

// SwapData selects an aggregator and carries the payload its router runs.
type SwapData struct {
	DexIndex  uint64
	DexTxData []byte
}

// RebalanceData describes where rebalanced value lands and the source vault
// it leaves.
type RebalanceData struct {
	ToCollateral common.Address
	VaultID      uint64
	MintAmount   *big.Int
}

// RequestLoan borrows fl for the module. initiator is the address the pool
// reports back in the callback.
func (b *Base) RequestLoan(initiator common.Address, fl FlashloanData, params []byte) error {
	if err := nativecommon.RequireNonZero(fl.Asset); err != nil {
		return err
	}
	if err := positive(fl.Amount); err != nil {
		return err
	}
	return b.Pool.FlashLoan(
		initiator,
		b.address,
		[]common.Address{fl.Asset},
		[]*big.Int{new(big.Int).Set(fl.Amount)},
		[]uint8{0},
		initiator,
		params,
		0,
	)
}

// AuthorizeCallback checks that msg comes from the pool and that the loan
// was requested by expected. Nothing moves before both hold.
func (b *Base) AuthorizeCallback(msg vm.Message, initiator, expected common.Address) error {
	if pool := b.Pool.Address(); msg.Caller != pool {
		return &CallerNotLendingPoolError{Caller: msg.Caller, Pool: pool}
	}
	if expected == (common.Address{}) || initiator != expected {
		return &InitiatorNotAuthorizedError{Initiator: initiator, Expected: expected}
	}
	return nil
}

// SingleLoan unpacks a one-asset callback and returns the asset, the amount
// and the amount plus premium owed to the pool.
func SingleLoan(assets []common.Address, amounts, premiums []*big.Int) (common.Address, *big.Int, *big.Int, error) {
	if len(assets) != 1 || len(amounts) != 1 || len(premiums) != 1 {
		return common.Address{}, nil, nil, errSingleAsset
	}
	owed := new(big.Int).Add(amounts[0], premiums[0])
	return assets[0], new(big.Int).Set(amounts[0]), owed, nil
}

// SettleLoan approves the pool for owed of asset and returns everything else
// the module holds of asset and of the debt token to account, keeping
// keepDebt of the debt token back.
func (b *Base) SettleLoan(account, asset common.Address, owed, keepDebt *big.Int) error {
	if keepDebt == nil {
		keepDebt = new(big.Int)
	}
	debtToken := b.Vaults.DebtToken()
	keepAsset := new(big.Int).Set(owed)
	if asset == debtToken {
		keepAsset.Add(keepAsset, keepDebt)
	}
	if err := b.sweep(asset, account, keepAsset); err != nil {
		return err
	}
	if asset != debtToken {
		if err := b.sweep(debtToken, account, keepDebt); err != nil {
			return err
		}
	}
	return b.Ledger.Approve(asset, b.address, b.Pool.Address(), owed)
}

func (b *Base) sweep(asset, to common.Address, keep *big.Int) error {
	balance, err := b.Ledger.BalanceOf(asset, b.address)
	if err != nil {
		return err
	}
	residual := new(big.Int).Sub(balance, keep)
	if residual.Sign() <= 0 {
		return nil
	}
	return b.Ledger.Transfer(asset, b.address, to, residual)
}
