package vaults

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Vault is a single collateral and debt position. Collateral is denominated
// in the collateral asset's own decimals, debt in WAD of the debt token.
type Vault struct {
	ID             uint64
	CollateralType common.Address
	Owner          common.Address
	Collateral     *big.Int
	Debt           *big.Int
}

// Clone returns a deep copy of the vault.
func (v *Vault) Clone() *Vault {
	if v == nil {
		return nil
	}
	clone := &Vault{ID: v.ID, CollateralType: v.CollateralType, Owner: v.Owner}
	if v.Collateral != nil {
		clone.Collateral = new(big.Int).Set(v.Collateral)
	}
	if v.Debt != nil {
		clone.Debt = new(big.Int).Set(v.Debt)
	}
	return clone
}

func (v *Vault) ensureDefaults() {
	if v.Collateral == nil {
		v.Collateral = big.NewInt(0)
	}
	if v.Debt == nil {
		v.Debt = big.NewInt(0)
	}
}

// CollateralConfig holds the risk parameters of one collateral type. All
// values are WAD fractions.
type CollateralConfig struct {
	// MinCollateralRatio is the floor a vault's ratio may not cross when
	// borrowing or withdrawing.
	MinCollateralRatio *big.Int
	// OriginationFee is charged on every borrow and added to the debt.
	OriginationFee *big.Int
	// BorrowRate is the advertised annual rate.
	BorrowRate *big.Int
}

// EnsureDefaults populates nil big.Int fields so RLP handling is safe.
func (c *CollateralConfig) EnsureDefaults() {
	if c.MinCollateralRatio == nil {
		c.MinCollateralRatio = big.NewInt(0)
	}
	if c.OriginationFee == nil {
		c.OriginationFee = big.NewInt(0)
	}
	if c.BorrowRate == nil {
		c.BorrowRate = big.NewInt(0)
	}
}
