package bank

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"cdpproxy/core/state"
	"cdpproxy/core/vm"
)

var (
	ErrUnknownAsset          = errors.New("bank: unknown asset")
	ErrAssetExists           = errors.New("bank: asset already registered")
	ErrInvalidAmount         = errors.New("bank: amount must not be negative")
	ErrInsufficientBalance   = errors.New("bank: insufficient balance")
	ErrInsufficientAllowance = errors.New("bank: insufficient allowance")
	ErrNotMinter             = errors.New("bank: caller is not the asset minter")
	ErrNoWrappedNative       = errors.New("bank: wrapped native asset not configured")
)

// NativeAsset is the pseudo address used for the native coin.
var NativeAsset = common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE")

// ReserveAddress holds the native coins backing the wrapped native token.
var ReserveAddress = vm.ModuleAddress("bank.reserve")

var maxAllowance = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// Asset describes a registered token.
type Asset struct {
	Address  common.Address
	Symbol   string
	Decimals uint8
	Minter   common.Address
}

// Ledger is the multi-asset balance book. Every write goes through the
// journaled state so failed transactions leave balances untouched.
type Ledger struct {
	env *vm.Env
}

// NewLedger binds the ledger to env and registers the native coin.
func NewLedger(env *vm.Env) *Ledger {
	return &Ledger{env: env}
}

func assetKey(asset common.Address) []byte {
	return state.Key("bank/asset", asset.Bytes())
}

var (
	assetListKey      = state.Key("bank/assets")
	wrappedNativeKey  = state.Key("bank/wrapped-native")
	nativeDescription = Asset{Address: NativeAsset, Symbol: "ETH", Decimals: 18}
)

func balanceKey(asset, holder common.Address) []byte {
	return state.Key("bank/balance", asset.Bytes(), holder.Bytes())
}

func allowanceKey(asset, owner, spender common.Address) []byte {
	return state.Key("bank/allowance", asset.Bytes(), owner.Bytes(), spender.Bytes())
}

// RegisterAsset adds a token to the ledger.
func (l *Ledger) RegisterAsset(asset Asset) error {
	if asset.Address == (common.Address{}) || asset.Address == NativeAsset {
		return fmt.Errorf("bank: invalid asset address %s", asset.Address.Hex())
	}
	exists, err := l.env.State().KVGet(assetKey(asset.Address), nil)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrAssetExists, asset.Address.Hex())
	}
	if err := l.env.State().KVPut(assetKey(asset.Address), asset); err != nil {
		return err
	}
	var list []common.Address
	if _, err := l.env.State().KVGet(assetListKey, &list); err != nil {
		return err
	}
	return l.env.State().KVPut(assetListKey, append(list, asset.Address))
}

// Asset returns the registration of addr.
func (l *Ledger) Asset(addr common.Address) (Asset, error) {
	if addr == NativeAsset {
		return nativeDescription, nil
	}
	var asset Asset
	ok, err := l.env.State().KVGet(assetKey(addr), &asset)
	if err != nil {
		return Asset{}, err
	}
	if !ok {
		return Asset{}, fmt.Errorf("%w: %s", ErrUnknownAsset, addr.Hex())
	}
	return asset, nil
}

// Decimals returns the precision of asset.
func (l *Ledger) Decimals(asset common.Address) (uint8, error) {
	meta, err := l.Asset(asset)
	if err != nil {
		return 0, err
	}
	return meta.Decimals, nil
}

// Assets lists every registered token in registration order.
func (l *Ledger) Assets() ([]Asset, error) {
	var list []common.Address
	if _, err := l.env.State().KVGet(assetListKey, &list); err != nil {
		return nil, err
	}
	out := make([]Asset, 0, len(list))
	for _, addr := range list {
		asset, err := l.Asset(addr)
		if err != nil {
			return nil, err
		}
		out = append(out, asset)
	}
	return out, nil
}

// SetWrappedNative designates the token minted by Wrap.
func (l *Ledger) SetWrappedNative(addr common.Address) error {
	if _, err := l.Asset(addr); err != nil {
		return err
	}
	return l.env.State().KVPut(wrappedNativeKey, addr)
}

// WrappedNative returns the wrapped native token.
func (l *Ledger) WrappedNative() (common.Address, error) {
	var addr common.Address
	ok, err := l.env.State().KVGet(wrappedNativeKey, &addr)
	if err != nil {
		return common.Address{}, err
	}
	if !ok {
		return common.Address{}, ErrNoWrappedNative
	}
	return addr, nil
}

func (l *Ledger) known(asset common.Address) error {
	_, err := l.Asset(asset)
	return err
}

func (l *Ledger) read(key []byte) (*big.Int, error) {
	value := new(big.Int)
	if _, err := l.env.State().KVGet(key, value); err != nil {
		return nil, err
	}
	return value, nil
}

func (l *Ledger) write(key []byte, value *big.Int) error {
	if value.Sign() == 0 {
		l.env.State().Delete(key)
		return nil
	}
	return l.env.State().KVPut(key, value)
}

// BalanceOf returns the holder's balance of asset.
func (l *Ledger) BalanceOf(asset, holder common.Address) (*big.Int, error) {
	return l.read(balanceKey(asset, holder))
}

// Allowance returns how much spender may pull from owner.
func (l *Ledger) Allowance(asset, owner, spender common.Address) (*big.Int, error) {
	return l.read(allowanceKey(asset, owner, spender))
}

func checkAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (l *Ledger) debit(asset, holder common.Address, amount *big.Int) error {
	key := balanceKey(asset, holder)
	balance, err := l.read(key)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s holds %s of %s, needs %s", ErrInsufficientBalance, holder.Hex(), balance, asset.Hex(), amount)
	}
	return l.write(key, balance.Sub(balance, amount))
}

func (l *Ledger) credit(asset, holder common.Address, amount *big.Int) error {
	key := balanceKey(asset, holder)
	balance, err := l.read(key)
	if err != nil {
		return err
	}
	return l.write(key, balance.Add(balance, amount))
}

// Transfer moves amount of asset from one holder to another.
func (l *Ledger) Transfer(asset, from, to common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if err := l.known(asset); err != nil {
		return err
	}
	if amount.Sign() == 0 || from == to {
		return nil
	}
	if err := l.debit(asset, from, amount); err != nil {
		return err
	}
	return l.credit(asset, to, amount)
}

// Approve sets the allowance of spender over owner's balance.
func (l *Ledger) Approve(asset, owner, spender common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if err := l.known(asset); err != nil {
		return err
	}
	return l.write(allowanceKey(asset, owner, spender), new(big.Int).Set(amount))
}

// IncreaseAllowance adds amount to the current allowance.
func (l *Ledger) IncreaseAllowance(asset, owner, spender common.Address, amount *big.Int) error {
	current, err := l.Allowance(asset, owner, spender)
	if err != nil {
		return err
	}
	return l.Approve(asset, owner, spender, current.Add(current, amount))
}

// TransferFrom moves funds on behalf of owner using spender's allowance. An
// allowance of 2^256-1 is never decremented.
func (l *Ledger) TransferFrom(asset, spender, from, to common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	key := allowanceKey(asset, from, spender)
	allowance, err := l.read(key)
	if err != nil {
		return err
	}
	if allowance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s allows %s to pull %s of %s, needs %s", ErrInsufficientAllowance, from.Hex(), spender.Hex(), allowance, asset.Hex(), amount)
	}
	if allowance.Cmp(maxAllowance) != 0 {
		if err := l.write(key, allowance.Sub(allowance, amount)); err != nil {
			return err
		}
	}
	return l.Transfer(asset, from, to, amount)
}

// Mint creates new units. Only the asset's minter may mint.
func (l *Ledger) Mint(asset, minter, to common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	meta, err := l.Asset(asset)
	if err != nil {
		return err
	}
	if meta.Minter != minter || minter == (common.Address{}) {
		return ErrNotMinter
	}
	return l.credit(asset, to, amount)
}

// Burn destroys units held by from. Only the asset's minter may burn.
func (l *Ledger) Burn(asset, minter, from common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	meta, err := l.Asset(asset)
	if err != nil {
		return err
	}
	if meta.Minter != minter || minter == (common.Address{}) {
		return ErrNotMinter
	}
	return l.debit(asset, from, amount)
}

// Credit seeds a balance without a counterparty. Genesis allocation only.
func (l *Ledger) Credit(asset, to common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if err := l.known(asset); err != nil {
		return err
	}
	return l.credit(asset, to, amount)
}

// Wrap converts native coins held by holder into the wrapped native token.
func (l *Ledger) Wrap(holder common.Address, amount *big.Int) error {
	wrapped, err := l.WrappedNative()
	if err != nil {
		return err
	}
	if err := l.Transfer(NativeAsset, holder, ReserveAddress, amount); err != nil {
		return err
	}
	return l.credit(wrapped, holder, amount)
}

// Unwrap converts the wrapped native token back into native coins.
func (l *Ledger) Unwrap(holder common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	wrapped, err := l.WrappedNative()
	if err != nil {
		return err
	}
	if err := l.debit(wrapped, holder, amount); err != nil {
		return err
	}
	return l.Transfer(NativeAsset, ReserveAddress, holder, amount)
}
