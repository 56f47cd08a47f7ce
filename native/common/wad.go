package common

import (
	"errors"
	"math/big"

	"github.com/holiman/uint256"
)

var (
	ErrWadOverflow   = errors.New("wad math: overflow")
	ErrWadUnderflow  = errors.New("wad math: underflow")
	ErrDivByZero     = errors.New("wad math: division by zero")
	ErrNegativeValue = errors.New("wad math: negative value")
)

// PercentageFactor is the basis point denominator.
const PercentageFactor = 10_000

var (
	wad     = uint256.NewInt(1_000_000_000_000_000_000)
	halfWad = uint256.NewInt(500_000_000_000_000_000)
	maxU256 = new(uint256.Int).SetAllOne()
)

// WAD returns 1e18.
func WAD() *uint256.Int { return wad.Clone() }

// MaxUint256 returns 2^256-1.
func MaxUint256() *uint256.Int { return maxU256.Clone() }

// MaxUint256Big returns 2^256-1 as a big.Int.
func MaxUint256Big() *big.Int { return maxU256.ToBig() }

// WadMul multiplies two 18-decimal values rounding half up.
func WadMul(a, b *uint256.Int) (*uint256.Int, error) {
	if a.IsZero() || b.IsZero() {
		return new(uint256.Int), nil
	}
	product, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return nil, ErrWadOverflow
	}
	if _, overflow = product.AddOverflow(product, halfWad); overflow {
		return nil, ErrWadOverflow
	}
	return product.Div(product, wad), nil
}

// WadDiv divides two 18-decimal values rounding half up.
func WadDiv(a, b *uint256.Int) (*uint256.Int, error) {
	if b.IsZero() {
		return nil, ErrDivByZero
	}
	scaled, overflow := new(uint256.Int).MulOverflow(a, wad)
	if overflow {
		return nil, ErrWadOverflow
	}
	half := new(uint256.Int).Rsh(b, 1)
	if _, overflow = scaled.AddOverflow(scaled, half); overflow {
		return nil, ErrWadOverflow
	}
	return scaled.Div(scaled, b), nil
}

// Add returns a+b or ErrWadOverflow.
func Add(a, b *uint256.Int) (*uint256.Int, error) {
	sum, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow {
		return nil, ErrWadOverflow
	}
	return sum, nil
}

// Sub returns a-b or ErrWadUnderflow.
func Sub(a, b *uint256.Int) (*uint256.Int, error) {
	diff, underflow := new(uint256.Int).SubOverflow(a, b)
	if underflow {
		return nil, ErrWadUnderflow
	}
	return diff, nil
}

// Mul returns a*b or ErrWadOverflow.
func Mul(a, b *uint256.Int) (*uint256.Int, error) {
	product, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return nil, ErrWadOverflow
	}
	return product, nil
}

// ToU256 converts a non-negative big.Int; nil converts to zero.
func ToU256(v *big.Int) (*uint256.Int, error) {
	if v == nil {
		return new(uint256.Int), nil
	}
	if v.Sign() < 0 {
		return nil, ErrNegativeValue
	}
	out, overflow := uint256.FromBig(v)
	if overflow {
		return nil, ErrWadOverflow
	}
	return out, nil
}

// Ratio returns collateralValue/debt in WAD, or MaxUint256 when debt is zero.
func Ratio(collateralValue, debt *big.Int) (*big.Int, error) {
	if debt == nil || debt.Sign() == 0 {
		return MaxUint256Big(), nil
	}
	c, err := ToU256(collateralValue)
	if err != nil {
		return nil, err
	}
	d, err := ToU256(debt)
	if err != nil {
		return nil, err
	}
	r, err := WadDiv(c, d)
	if err != nil {
		return nil, err
	}
	return r.ToBig(), nil
}

// BigWadMul is WadMul over big.Int for ledger code; inputs must fit 256 bits.
func BigWadMul(a, b *big.Int) (*big.Int, error) {
	x, err := ToU256(a)
	if err != nil {
		return nil, err
	}
	y, err := ToU256(b)
	if err != nil {
		return nil, err
	}
	out, err := WadMul(x, y)
	if err != nil {
		return nil, err
	}
	return out.ToBig(), nil
}

// BigWadDiv is WadDiv over big.Int.
func BigWadDiv(a, b *big.Int) (*big.Int, error) {
	x, err := ToU256(a)
	if err != nil {
		return nil, err
	}
	y, err := ToU256(b)
	if err != nil {
		return nil, err
	}
	out, err := WadDiv(x, y)
	if err != nil {
		return nil, err
	}
	return out.ToBig(), nil
}

// PercentMul applies a basis point rate rounding half up.
func PercentMul(value *big.Int, bps uint64) *big.Int {
	if value == nil || value.Sign() == 0 || bps == 0 {
		return new(big.Int)
	}
	out := new(big.Int).Mul(value, new(big.Int).SetUint64(bps))
	out.Add(out, big.NewInt(PercentageFactor/2))
	return out.Quo(out, big.NewInt(PercentageFactor))
}
