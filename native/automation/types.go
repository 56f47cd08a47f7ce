package automation

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// MaxVarFee caps the variable fee of both automation and management at
// 100%. A fee equal to the cap is accepted.
var MaxVarFee = big.NewInt(1_000_000_000_000_000_000)

// AutomatedVault is the automation config a vault owner sets. Ratios, fees
// and the allowed variation are 18-decimal fractions.
type AutomatedVault struct {
	IsAutomated      bool
	ToCollateral     common.Address
	AllowedVariation *big.Int
	TargetRatio      *big.Int
	TriggerRatio     *big.Int
	McrBuffer        *big.Int
	FixedFee         *big.Int
	VarFee           *big.Int
}

// ManagedVault is the management config a vault owner sets.
type ManagedVault struct {
	IsManaged        bool
	Manager          common.Address
	AllowedVariation *big.Int
	MinRatio         *big.Int
	FixedFee         *big.Int
	VarFee           *big.Int
	McrBuffer        *big.Int
}

// Amounts previews an automated rebalance.
type Amounts struct {
	// Value is the USD value moved out of the source vault.
	Value           *big.Int
	RebalanceAmount *big.Int
	MintAmount      *big.Int
	Fee             *big.Int
}

func ensure(values ...**big.Int) {
	for _, v := range values {
		if *v == nil {
			*v = new(big.Int)
		}
	}
}

func (c *AutomatedVault) ensureDefaults() {
	ensure(&c.AllowedVariation, &c.TargetRatio, &c.TriggerRatio, &c.McrBuffer, &c.FixedFee, &c.VarFee)
}

func (c *ManagedVault) ensureDefaults() {
	ensure(&c.AllowedVariation, &c.MinRatio, &c.FixedFee, &c.VarFee, &c.McrBuffer)
}
