package vaults

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
	errNilState               = errors.New("vaults engine: state not configured")
	errInvalidAmount          = errors.New("vaults engine: amount must be positive")
	errCollateralNotSupported = errors.New("vaults engine: collateral type not supported")
	errVaultNotFound          = errors.New("vaults engine: vault not found")
	errNotVaultOwner          = errors.New("vaults engine: caller is not the vault owner")
	errBelowMinRatio          = errors.New("vaults engine: vault below minimum collateral ratio")
	errInsufficientCollateral = errors.New("vaults engine: insufficient collateral")
	errRepayExceedsDebt       = errors.New("vaults engine: repay amount exceeds vault debt")
)

// Exported aliases for callers that branch on engine failures.
var (
	ErrVaultNotFound = errVaultNotFound
	ErrBelowMinRatio = errBelowMinRatio
	ErrNotVaultOwner = errNotVaultOwner
)

const moduleName = "vaults"

// Address is where the vaults core lives and holds deposited collateral.
var Address = vm.ModuleAddress("vaults")

// Ledger is the token book the engine settles against.
type Ledger interface {
	Transfer(asset, from, to common.Address, amount *big.Int) error
	Mint(asset, minter, to common.Address, amount *big.Int) error
	Burn(asset, minter, from common.Address, amount *big.Int) error
	Wrap(holder common.Address, amount *big.Int) error
	Unwrap(holder common.Address, amount *big.Int) error
	WrappedNative() (common.Address, error)
}

// PriceFeed values collateral in WAD USD.
type PriceFeed interface {
	ConvertFrom(asset common.Address, amount *big.Int) (*big.Int, error)
}

// Engine is the CDP ledger: it keeps collateral, mints the debt token against
// it and enforces the minimum collateral ratio of every collateral type.
type Engine struct {
	state     engineState
	address   common.Address
	admin     common.Address
	debtToken common.Address
	ledger    Ledger
	prices    PriceFeed
	pauses    nativecommon.PauseView
	emitter   events.Emitter
}

// NewEngine constructs a vaults engine holding collateral at address and
// minting debtToken.
func NewEngine(address, admin, debtToken common.Address, ledger Ledger, prices PriceFeed) *Engine {
	return &Engine{
		address:   address,
		admin:     admin,
		debtToken: debtToken,
		ledger:    ledger,
		prices:    prices,
		emitter:   events.NoopEmitter{},
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetEmitter routes vault updates to emitter.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

// Address returns the engine's own address.
func (e *Engine) Address() common.Address { return e.address }

// DebtToken returns the address of the minted stable token.
func (e *Engine) DebtToken() common.Address { return e.debtToken }

// SetCollateralConfig installs or replaces the risk parameters of asset.
func (e *Engine) SetCollateralConfig(caller, asset common.Address, cfg CollateralConfig) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if caller != e.admin {
		return &nativecommon.NotOwnerError{Owner: e.admin, Caller: caller}
	}
	if err := nativecommon.RequireNonZero(asset); err != nil {
		return err
	}
	cfg.EnsureDefaults()
	return e.state.PutCollateralConfig(asset, &cfg)
}

func (e *Engine) collateralConfig(asset common.Address) (*CollateralConfig, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	cfg, err := e.state.GetCollateralConfig(asset)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, fmt.Errorf("%w: %s", errCollateralNotSupported, asset.Hex())
	}
	cfg.EnsureDefaults()
	return cfg, nil
}

// CollateralMinCollateralRatio returns the MCR of asset.
func (e *Engine) CollateralMinCollateralRatio(asset common.Address) (*big.Int, error) {
	cfg, err := e.collateralConfig(asset)
	if err != nil {
		return nil, err
	}
	return cfg.MinCollateralRatio, nil
}

// CollateralOriginationFee returns the borrow fee of asset.
func (e *Engine) CollateralOriginationFee(asset common.Address) (*big.Int, error) {
	cfg, err := e.collateralConfig(asset)
	if err != nil {
		return nil, err
	}
	return cfg.OriginationFee, nil
}

// CollateralBorrowRate returns the annual borrow rate of asset.
func (e *Engine) CollateralBorrowRate(asset common.Address) (*big.Int, error) {
	cfg, err := e.collateralConfig(asset)
	if err != nil {
		return nil, err
	}
	return cfg.BorrowRate, nil
}

// Deposit moves amount of asset from caller into the caller's vault for that
// asset, opening the vault on first use. It returns the vault id.
func (e *Engine) Deposit(caller, asset common.Address, amount *big.Int) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return 0, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return 0, errInvalidAmount
	}
	if _, err := e.collateralConfig(asset); err != nil {
		return 0, err
	}
	vault, err := e.ensureVault(asset, caller)
	if err != nil {
		return 0, err
	}
	if err := e.ledger.Transfer(asset, caller, e.address, amount); err != nil {
		return 0, err
	}
	vault.Collateral = new(big.Int).Add(vault.Collateral, amount)
	if err := e.state.PutVault(vault); err != nil {
		return 0, err
	}
	e.emit("deposit", vault, amount)
	return vault.ID, nil
}

// DepositNative wraps amount of the caller's native balance and deposits it.
func (e *Engine) DepositNative(caller common.Address, amount *big.Int) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	wrapped, err := e.ledger.WrappedNative()
	if err != nil {
		return 0, err
	}
	if err := e.ledger.Wrap(caller, amount); err != nil {
		return 0, err
	}
	return e.Deposit(caller, wrapped, amount)
}

// DepositAndBorrow deposits collateral and borrows against the same vault.
func (e *Engine) DepositAndBorrow(caller, asset common.Address, depositAmount, borrowAmount *big.Int) (uint64, error) {
	id, err := e.Deposit(caller, asset, depositAmount)
	if err != nil {
		return 0, err
	}
	if err := e.Borrow(caller, id, borrowAmount); err != nil {
		return 0, err
	}
	return id, nil
}

// DepositNativeAndBorrow is DepositAndBorrow funded from the native balance.
func (e *Engine) DepositNativeAndBorrow(caller common.Address, depositAmount, borrowAmount *big.Int) (uint64, error) {
	id, err := e.DepositNative(caller, depositAmount)
	if err != nil {
		return 0, err
	}
	if err := e.Borrow(caller, id, borrowAmount); err != nil {
		return 0, err
	}
	return id, nil
}

// Borrow mints amount of the debt token to the vault owner. The vault's debt
// grows by amount plus the origination fee and must stay above the MCR.
func (e *Engine) Borrow(caller common.Address, vaultID uint64, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}
	vault, err := e.ownedVault(caller, vaultID)
	if err != nil {
		return err
	}
	cfg, err := e.collateralConfig(vault.CollateralType)
	if err != nil {
		return err
	}
	fee, err := nativecommon.BigWadMul(amount, cfg.OriginationFee)
	if err != nil {
		return err
	}
	projected := new(big.Int).Add(vault.Debt, amount)
	projected.Add(projected, fee)
	if err := e.checkRatio(vault.CollateralType, vault.Collateral, projected, cfg); err != nil {
		return err
	}
	if err := e.ledger.Mint(e.debtToken, e.address, caller, amount); err != nil {
		return err
	}
	vault.Debt = projected
	if err := e.state.PutVault(vault); err != nil {
		return err
	}
	e.emit("borrow", vault, amount)
	return nil
}

// Repay burns amount of the debt token from caller against the vault's debt.
// Anyone may repay any vault.
func (e *Engine) Repay(caller common.Address, vaultID uint64, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}
	vault, err := e.loadVault(vaultID)
	if err != nil {
		return err
	}
	if amount.Cmp(vault.Debt) > 0 {
		return errRepayExceedsDebt
	}
	return e.repay(caller, vault, amount)
}

// RepayAll clears the vault's whole debt.
func (e *Engine) RepayAll(caller common.Address, vaultID uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	vault, err := e.loadVault(vaultID)
	if err != nil {
		return err
	}
	if vault.Debt.Sign() == 0 {
		return nil
	}
	return e.repay(caller, vault, new(big.Int).Set(vault.Debt))
}

func (e *Engine) repay(caller common.Address, vault *Vault, amount *big.Int) error {
	if err := e.ledger.Burn(e.debtToken, e.address, caller, amount); err != nil {
		return err
	}
	vault.Debt = new(big.Int).Sub(vault.Debt, amount)
	if err := e.state.PutVault(vault); err != nil {
		return err
	}
	e.emit("repay", vault, amount)
	return nil
}

// Withdraw returns collateral to the vault owner provided the vault stays
// above its MCR.
func (e *Engine) Withdraw(caller common.Address, vaultID uint64, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}
	vault, err := e.ownedVault(caller, vaultID)
	if err != nil {
		return err
	}
	if vault.Collateral.Cmp(amount) < 0 {
		return errInsufficientCollateral
	}
	remaining := new(big.Int).Sub(vault.Collateral, amount)
	cfg, err := e.collateralConfig(vault.CollateralType)
	if err != nil {
		return err
	}
	if err := e.checkRatio(vault.CollateralType, remaining, vault.Debt, cfg); err != nil {
		return err
	}
	if err := e.ledger.Transfer(vault.CollateralType, e.address, caller, amount); err != nil {
		return err
	}
	vault.Collateral = remaining
	if err := e.state.PutVault(vault); err != nil {
		return err
	}
	e.emit("withdraw", vault, amount)
	return nil
}

// WithdrawNative withdraws from a wrapped native vault and unwraps the
// proceeds for the caller.
func (e *Engine) WithdrawNative(caller common.Address, vaultID uint64, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	wrapped, err := e.ledger.WrappedNative()
	if err != nil {
		return err
	}
	vault, err := e.loadVault(vaultID)
	if err != nil {
		return err
	}
	if vault.CollateralType != wrapped {
		return fmt.Errorf("%w: vault %d holds %s", errCollateralNotSupported, vaultID, vault.CollateralType.Hex())
	}
	if err := e.Withdraw(caller, vaultID, amount); err != nil {
		return err
	}
	return e.ledger.Unwrap(caller, amount)
}

// Vault returns a copy of the vault.
func (e *Engine) Vault(vaultID uint64) (*Vault, error) {
	vault, err := e.loadVault(vaultID)
	if err != nil {
		return nil, err
	}
	return vault.Clone(), nil
}

// VaultOwner returns the owner of the vault or the zero address.
func (e *Engine) VaultOwner(vaultID uint64) (common.Address, error) {
	vault, err := e.lookup(vaultID)
	if err != nil || vault == nil {
		return common.Address{}, err
	}
	return vault.Owner, nil
}

// VaultDebt returns the outstanding debt, zero for unknown vaults.
func (e *Engine) VaultDebt(vaultID uint64) (*big.Int, error) {
	vault, err := e.lookup(vaultID)
	if err != nil {
		return nil, err
	}
	if vault == nil {
		return new(big.Int), nil
	}
	return new(big.Int).Set(vault.Debt), nil
}

// VaultCollateralBalance returns the deposited collateral.
func (e *Engine) VaultCollateralBalance(vaultID uint64) (*big.Int, error) {
	vault, err := e.lookup(vaultID)
	if err != nil {
		return nil, err
	}
	if vault == nil {
		return new(big.Int), nil
	}
	return new(big.Int).Set(vault.Collateral), nil
}

// VaultCollateralType returns the collateral asset or the zero address.
func (e *Engine) VaultCollateralType(vaultID uint64) (common.Address, error) {
	vault, err := e.lookup(vaultID)
	if err != nil || vault == nil {
		return common.Address{}, err
	}
	return vault.CollateralType, nil
}

// VaultID returns the id of owner's vault for asset, zero when none exists.
func (e *Engine) VaultID(asset, owner common.Address) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	return e.state.GetVaultID(asset, owner)
}

// VaultRatio returns collateral value over debt in WAD.
func (e *Engine) VaultRatio(vaultID uint64) (*big.Int, error) {
	vault, err := e.loadVault(vaultID)
	if err != nil {
		return nil, err
	}
	value, err := e.prices.ConvertFrom(vault.CollateralType, vault.Collateral)
	if err != nil {
		return nil, err
	}
	return nativecommon.Ratio(value, vault.Debt)
}

func (e *Engine) lookup(vaultID uint64) (*Vault, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	vault, err := e.state.GetVault(vaultID)
	if err != nil || vault == nil {
		return nil, err
	}
	vault.ensureDefaults()
	return vault, nil
}

func (e *Engine) loadVault(vaultID uint64) (*Vault, error) {
	vault, err := e.lookup(vaultID)
	if err != nil {
		return nil, err
	}
	if vault == nil {
		return nil, fmt.Errorf("%w: %d", errVaultNotFound, vaultID)
	}
	return vault, nil
}

func (e *Engine) ownedVault(caller common.Address, vaultID uint64) (*Vault, error) {
	vault, err := e.loadVault(vaultID)
	if err != nil {
		return nil, err
	}
	if vault.Owner != caller {
		return nil, errNotVaultOwner
	}
	return vault, nil
}

func (e *Engine) ensureVault(asset, owner common.Address) (*Vault, error) {
	id, err := e.state.GetVaultID(asset, owner)
	if err != nil {
		return nil, err
	}
	if id != 0 {
		return e.loadVault(id)
	}
	id, err = e.state.NextVaultID()
	if err != nil {
		return nil, err
	}
	if err := e.state.PutVaultID(asset, owner, id); err != nil {
		return nil, err
	}
	vault := &Vault{ID: id, CollateralType: asset, Owner: owner}
	vault.ensureDefaults()
	return vault, nil
}

func (e *Engine) checkRatio(asset common.Address, collateral, debt *big.Int, cfg *CollateralConfig) error {
	if debt.Sign() == 0 {
		return nil
	}
	value, err := e.prices.ConvertFrom(asset, collateral)
	if err != nil {
		return err
	}
	ratio, err := nativecommon.Ratio(value, debt)
	if err != nil {
		return err
	}
	if ratio.Cmp(cfg.MinCollateralRatio) < 0 {
		return errBelowMinRatio
	}
	return nil
}

func (e *Engine) emit(action string, vault *Vault, amount *big.Int) {
	e.emitter.Emit(events.VaultUpdated{
		Action:         action,
		VaultID:        vault.ID,
		Owner:          vault.Owner,
		CollateralType: vault.CollateralType,
		Collateral:     new(big.Int).Set(vault.Collateral),
		Debt:           new(big.Int).Set(vault.Debt),
		Amount:         new(big.Int).Set(amount),
	})
}
