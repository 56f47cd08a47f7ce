package automation

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"cdpproxy/core/vm"
	"cdpproxy/native/actions"
	nativecommon "cdpproxy/native/common"
)

// Prices converts between token amounts and USD values.
type Prices interface {
	ConvertFrom(asset common.Address, amount *big.Int) (*big.Int, error)
	ConvertTo(asset common.Address, value *big.Int) (*big.Int, error)
}

// CollateralConfig exposes per collateral risk parameters.
type CollateralConfig interface {
	CollateralMinCollateralRatio(asset common.Address) (*big.Int, error)
}

// PremiumSource reports the flashloan premium rate in basis points.
type PremiumSource interface {
	PremiumBps() uint64
}

// Deps extends the action module collaborators with what rebalancing
// needs. Rebalance is the address of the rebalance action module whose
// rebalanceOperation runs inside the vault owner's account.
type Deps struct {
	actions.Deps
	Prices     Prices
	Collateral CollateralConfig
	Premiums   PremiumSource
	Rebalance  common.Address
	// Window spaces two operations on the same vault. Zero means a day.
	Window time.Duration
}

type callbackParams struct {
	Account   common.Address
	Fee       *big.Int
	Rebalance actions.RebalanceData
	Swap      actions.SwapData
}

// rebalancer is shared by the automated and managed layers: config storage,
// ratio reads, the operation window and the flashloan callback.
type rebalancer struct {
	*actions.Base
	prices     Prices
	collateral CollateralConfig
	premiums   PremiumSource
	store      *Store
	rebalance  common.Address
	window     time.Duration
	guard      nativecommon.ReentrancyGuard
}

func newRebalancer(name string, address common.Address, deps Deps) (*rebalancer, error) {
	if deps.Prices == nil || deps.Collateral == nil || deps.Premiums == nil {
		return nil, errNilCollaborator
	}
	if err := nativecommon.RequireNonZero(deps.Rebalance); err != nil {
		return nil, err
	}
	base, err := actions.NewBase(name, address, deps.Deps, true)
	if err != nil {
		return nil, err
	}
	window := deps.Window
	if window <= 0 {
		window = nativecommon.DailyWindow
	}
	return &rebalancer{
		Base:       base,
		prices:     deps.Prices,
		collateral: deps.Collateral,
		premiums:   deps.Premiums,
		store:      NewStore(deps.Env.State()),
		rebalance:  deps.Rebalance,
		window:     window,
	}, nil
}

// Store exposes the persisted configs.
func (r *rebalancer) Store() *Store { return r.store }

// OperationTracker returns the time of the last successful operation on
// vaultID.
func (r *rebalancer) OperationTracker(vaultID uint64) (uint64, error) {
	return r.store.OperationTracker(r.Name(), vaultID)
}

// guarded runs fn with the reentrancy guard held and rolls back every write
// fn made if it fails.
func (r *rebalancer) guarded(fn func() error) error {
	if err := r.guard.Enter(); err != nil {
		return err
	}
	defer r.guard.Exit()
	return r.Env.Apply(fn)
}

func (r *rebalancer) now() uint64 {
	return uint64(r.Env.Now().Unix())
}

func (r *rebalancer) checkWindow(vaultID uint64) error {
	last, err := r.OperationTracker(vaultID)
	if err != nil {
		return err
	}
	return nativecommon.CheckOperationWindow(r.window, r.now(), last)
}

// checkVaultOwner accepts the vault owner itself or an address whose
// current account owns the vault.
func (r *rebalancer) checkVaultOwner(caller common.Address, vaultID uint64) (common.Address, error) {
	owner, err := r.Vaults.VaultOwner(vaultID)
	if err != nil {
		return common.Address{}, err
	}
	if owner == (common.Address{}) {
		return common.Address{}, &VaultNotInitializedError{VaultID: vaultID}
	}
	if caller == owner {
		return owner, nil
	}
	account, err := r.Registry.CurrentAccount(caller)
	if err != nil {
		return common.Address{}, err
	}
	if account != owner {
		if account == (common.Address{}) {
			account = caller
		}
		return common.Address{}, &CallerNotVaultOwnerError{Caller: account, VaultOwner: owner}
	}
	return owner, nil
}

func checkVarFee(varFee *big.Int) error {
	if varFee != nil && varFee.Cmp(MaxVarFee) > 0 {
		return &VariableFeeTooHighError{Max: new(big.Int).Set(MaxVarFee), VarFee: new(big.Int).Set(varFee)}
	}
	return nil
}

type vaultView struct {
	ID         uint64
	Owner      common.Address
	Collateral common.Address
	Balance    *big.Int
	Debt       *big.Int
	Value      *big.Int
}

func (v vaultView) ratio() (*big.Int, error) {
	return nativecommon.Ratio(v.Value, v.Debt)
}

func (r *rebalancer) vault(vaultID uint64) (vaultView, error) {
	owner, err := r.Vaults.VaultOwner(vaultID)
	if err != nil {
		return vaultView{}, err
	}
	if owner == (common.Address{}) {
		return vaultView{}, &VaultNotInitializedError{VaultID: vaultID}
	}
	collateral, err := r.Vaults.VaultCollateralType(vaultID)
	if err != nil {
		return vaultView{}, err
	}
	balance, err := r.Vaults.VaultCollateralBalance(vaultID)
	if err != nil {
		return vaultView{}, err
	}
	debt, err := r.Vaults.VaultDebt(vaultID)
	if err != nil {
		return vaultView{}, err
	}
	value, err := r.prices.ConvertFrom(collateral, balance)
	if err != nil {
		return vaultView{}, err
	}
	return vaultView{ID: vaultID, Owner: owner, Collateral: collateral, Balance: balance, Debt: debt, Value: value}, nil
}

// destinationValue is the USD value of account's vault in asset, zero when
// the vault does not exist yet.
func (r *rebalancer) destinationValue(asset, account common.Address) (*big.Int, error) {
	id, err := r.Vaults.VaultID(asset, account)
	if err != nil {
		return nil, err
	}
	if id == 0 {
		return new(big.Int), nil
	}
	balance, err := r.Vaults.VaultCollateralBalance(id)
	if err != nil {
		return nil, err
	}
	return r.prices.ConvertFrom(asset, balance)
}

func (r *rebalancer) destinationRatio(asset, account common.Address) (*big.Int, error) {
	id, err := r.Vaults.VaultID(asset, account)
	if err != nil {
		return nil, err
	}
	view, err := r.vault(id)
	if err != nil {
		return nil, err
	}
	return view.ratio()
}

// checkVariation fails when the value that reached the destination vault
// falls short of expected by more than allowed.
func checkVariation(expected, before, after, allowed *big.Int) error {
	received := new(big.Int).Sub(after, before)
	variation, err := ValueVariation(expected, received)
	if err != nil {
		return err
	}
	if variation.Cmp(allowed) > 0 {
		return ErrVaultValueChangeTooHigh
	}
	return nil
}

func checkFloor(floor, achieved *big.Int) error {
	if achieved.Cmp(floor) < 0 {
		return &FinalVaultRatioTooLowError{Floor: new(big.Int).Set(floor), Achieved: achieved}
	}
	return nil
}

// loan requests the flashloan whose callback runs rebalanceOperation in the
// vault owner's account. The module is its own initiator.
func (r *rebalancer) loan(asset common.Address, amount *big.Int, p callbackParams) error {
	params, err := rlp.EncodeToBytes(p)
	if err != nil {
		return err
	}
	return r.RequestLoan(r.Address(), actions.FlashloanData{Asset: asset, Amount: amount}, params)
}

// ExecuteOperation is the flashloan callback. The fee stays with the module
// until the rebalance passes its checks.
func (r *rebalancer) ExecuteOperation(msg vm.Message, assets []common.Address, amounts, premiums []*big.Int, initiator common.Address, params []byte) (bool, error) {
	if err := r.CheckPaused(); err != nil {
		return false, err
	}
	if err := r.AuthorizeCallback(msg, initiator, r.Address()); err != nil {
		return false, err
	}
	var p callbackParams
	if err := rlp.DecodeBytes(params, &p); err != nil {
		return false, err
	}
	asset, amount, owed, err := actions.SingleLoan(assets, amounts, premiums)
	if err != nil {
		return false, err
	}
	if err := r.Ledger.Transfer(asset, r.Address(), p.Account, amount); err != nil {
		return false, err
	}
	op, err := actions.EncodeRebalanceOperation(actions.RebalanceOperationArgs{
		FromCollateral: asset,
		SwapAmount:     amount,
		RepayAmount:    owed,
		Fee:            p.Fee,
		Rebalance:      p.Rebalance,
		Swap:           p.Swap,
	})
	if err != nil {
		return false, err
	}
	if _, err := r.RunInAccount(p.Account, r.rebalance, op); err != nil {
		return false, err
	}
	if err := r.SettleLoan(p.Account, asset, owed, p.Fee); err != nil {
		return false, err
	}
	return true, nil
}

// payFee hands the collected PAR fee to beneficiary.
func (r *rebalancer) payFee(beneficiary common.Address, fee *big.Int) error {
	if fee == nil || fee.Sign() == 0 {
		return nil
	}
	return r.Ledger.Transfer(r.Vaults.DebtToken(), r.Address(), beneficiary, fee)
}
