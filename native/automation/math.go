package automation

import (
	"math/big"

	"github.com/holiman/uint256"

	nativecommon "cdpproxy/native/common"
)

// ratioEpsilon lifts the target ratio slightly so rounding cannot leave the
// source vault a wei under its target.
var ratioEpsilon = uint256.NewInt(1_000_000_000_000_000)

// RebalanceInputs describes a source vault and the rebalance configuration.
// Every value is 18-decimal fixed point except PremiumBps.
type RebalanceInputs struct {
	CollateralValue *big.Int
	VaultDebt       *big.Int
	TargetRatio     *big.Int
	DestinationMcr  *big.Int
	McrBuffer       *big.Int
	FixedFee        *big.Int
	VarFee          *big.Int
	PremiumBps      uint64
}

// RebalanceValues is the outcome of RebalanceValue.
type RebalanceValues struct {
	// Value is the USD value of source collateral to move.
	Value *big.Int
	// MintAmount is the PAR to borrow against the destination vault.
	MintAmount *big.Int
}

// RebalanceValue solves for the value R that, once moved out of the source
// vault together with the flashloan premium and both fees, leaves the source
// vault at TargetRatio and the destination vault at its MCR plus buffer:
//
//	R = (T'(D+F) - C) / ((T' - M'p) / M' - T'v - 1)
//
// with T' the target plus epsilon, M' the destination MCR plus buffer and p
// the premium rate. A debt free vault needs no rebalance and yields zeros.
func RebalanceValue(in RebalanceInputs) (RebalanceValues, error) {
	if in.VaultDebt == nil || in.VaultDebt.Sign() == 0 {
		return RebalanceValues{Value: new(big.Int), MintAmount: new(big.Int)}, nil
	}
	c, err := nativecommon.ToU256(in.CollateralValue)
	if err != nil {
		return RebalanceValues{}, err
	}
	d, err := nativecommon.ToU256(in.VaultDebt)
	if err != nil {
		return RebalanceValues{}, err
	}
	target, err := nativecommon.ToU256(in.TargetRatio)
	if err != nil {
		return RebalanceValues{}, err
	}
	mcr, err := nativecommon.ToU256(in.DestinationMcr)
	if err != nil {
		return RebalanceValues{}, err
	}
	buffer, err := nativecommon.ToU256(in.McrBuffer)
	if err != nil {
		return RebalanceValues{}, err
	}
	fixedFee, err := nativecommon.ToU256(in.FixedFee)
	if err != nil {
		return RebalanceValues{}, err
	}
	varFee, err := nativecommon.ToU256(in.VarFee)
	if err != nil {
		return RebalanceValues{}, err
	}

	t, err := nativecommon.Add(target, ratioEpsilon)
	if err != nil {
		return RebalanceValues{}, err
	}
	m, err := nativecommon.Add(mcr, buffer)
	if err != nil {
		return RebalanceValues{}, err
	}

	// Numerator: T'(D+F) - C.
	debtWithFee, err := nativecommon.Add(d, fixedFee)
	if err != nil {
		return RebalanceValues{}, err
	}
	targetDebt, err := nativecommon.WadMul(t, debtWithFee)
	if err != nil {
		return RebalanceValues{}, err
	}
	numerator, err := nativecommon.Sub(targetDebt, c)
	if err != nil {
		return RebalanceValues{}, err
	}

	// Denominator: (T'*PF - M'*p) / (M'*PF) - T'v - 1.
	pf := uint256.NewInt(nativecommon.PercentageFactor)
	scaledTarget, err := nativecommon.Mul(t, pf)
	if err != nil {
		return RebalanceValues{}, err
	}
	scaledPremium, err := nativecommon.Mul(m, uint256.NewInt(in.PremiumBps))
	if err != nil {
		return RebalanceValues{}, err
	}
	top, err := nativecommon.Sub(scaledTarget, scaledPremium)
	if err != nil {
		return RebalanceValues{}, err
	}
	scaledMcr, err := nativecommon.Mul(m, pf)
	if err != nil {
		return RebalanceValues{}, err
	}
	denominator, err := nativecommon.WadDiv(top, scaledMcr)
	if err != nil {
		return RebalanceValues{}, err
	}
	targetFee, err := nativecommon.WadMul(t, varFee)
	if err != nil {
		return RebalanceValues{}, err
	}
	if denominator, err = nativecommon.Sub(denominator, targetFee); err != nil {
		return RebalanceValues{}, err
	}
	if denominator, err = nativecommon.Sub(denominator, nativecommon.WAD()); err != nil {
		return RebalanceValues{}, err
	}

	value, err := nativecommon.WadDiv(numerator, denominator)
	if err != nil {
		return RebalanceValues{}, err
	}
	mint, err := nativecommon.WadDiv(value, m)
	if err != nil {
		return RebalanceValues{}, err
	}
	return RebalanceValues{Value: value.ToBig(), MintAmount: mint.ToBig()}, nil
}

// AutomatedFee is the fee of an automated rebalance moving value.
func AutomatedFee(fixedFee, varFee, value *big.Int) (*big.Int, error) {
	variable, err := nativecommon.BigWadMul(value, varFee)
	if err != nil {
		return nil, err
	}
	return variable.Add(variable, orZero(fixedFee)), nil
}

// ValueVariation returns (expected - received) / expected, or zero when the
// swap delivered at least the expected value.
func ValueVariation(expected, received *big.Int) (*big.Int, error) {
	if received.Cmp(expected) >= 0 || expected.Sign() == 0 {
		return new(big.Int), nil
	}
	return nativecommon.BigWadDiv(new(big.Int).Sub(expected, received), expected)
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
