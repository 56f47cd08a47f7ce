package oracle

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"cdpproxy/core/state"
	"cdpproxy/core/vm"
	nativecommon "cdpproxy/native/common"
)

var (
	ErrPriceNotSet  = errors.New("oracle: price not set")
	ErrInvalidPrice = errors.New("oracle: price must be positive")
)

// Address is where the price feed lives.
var Address = vm.ModuleAddress("oracle")

// DecimalsSource reports token precision.
type DecimalsSource interface {
	Decimals(asset common.Address) (uint8, error)
}

// Feed stores USD prices in WAD per whole token and converts between token
// amounts and USD values.
type Feed struct {
	env      *vm.Env
	admin    common.Address
	decimals DecimalsSource
}

// NewFeed builds a feed whose prices may only be set by admin.
func NewFeed(env *vm.Env, admin common.Address, decimals DecimalsSource) *Feed {
	return &Feed{env: env, admin: admin, decimals: decimals}
}

func priceKey(asset common.Address) []byte {
	return state.Key("oracle/price", asset.Bytes())
}

// Admin returns the price updater.
func (f *Feed) Admin() common.Address { return f.admin }

// SetPrice records the USD price of one whole unit of asset.
func (f *Feed) SetPrice(caller, asset common.Address, price *big.Int) error {
	if caller != f.admin {
		return &nativecommon.NotOwnerError{Owner: f.admin, Caller: caller}
	}
	if price == nil || price.Sign() <= 0 {
		return ErrInvalidPrice
	}
	return f.env.State().KVPut(priceKey(asset), price)
}

// Price returns the stored price of asset.
func (f *Feed) Price(asset common.Address) (*big.Int, error) {
	price := new(big.Int)
	ok, err := f.env.State().KVGet(priceKey(asset), price)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPriceNotSet, asset.Hex())
	}
	return price, nil
}

func (f *Feed) unit(asset common.Address) (*big.Int, error) {
	dec, err := f.decimals.Decimals(asset)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(dec)), nil), nil
}

// ConvertFrom returns the USD value in WAD of amount units of asset.
func (f *Feed) ConvertFrom(asset common.Address, amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() == 0 {
		return new(big.Int), nil
	}
	price, err := f.Price(asset)
	if err != nil {
		return nil, err
	}
	unit, err := f.unit(asset)
	if err != nil {
		return nil, err
	}
	value := new(big.Int).Mul(amount, price)
	return value.Quo(value, unit), nil
}

// ConvertTo returns how many units of asset are worth value USD.
func (f *Feed) ConvertTo(asset common.Address, value *big.Int) (*big.Int, error) {
	if value == nil || value.Sign() == 0 {
		return new(big.Int), nil
	}
	price, err := f.Price(asset)
	if err != nil {
		return nil, err
	}
	unit, err := f.unit(asset)
	if err != nil {
		return nil, err
	}
	amount := new(big.Int).Mul(value, unit)
	return amount.Quo(amount, price), nil
}
