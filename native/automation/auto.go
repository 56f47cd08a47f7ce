package automation

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"cdpproxy/core/events"
	"cdpproxy/native/actions"
	nativecommon "cdpproxy/native/common"
)

// Automated lets anyone rebalance a vault whose owner opted in once the
// vault's ratio falls to its trigger. The caller earns the fee.
type Automated struct {
	*rebalancer
}

// NewAutomated builds the automation module at address.
func NewAutomated(address common.Address, deps Deps) (*Automated, error) {
	r, err := newRebalancer(string(KindAutomated), address, deps)
	if err != nil {
		return nil, err
	}
	return &Automated{rebalancer: r}, nil
}

// Automation returns the config of vaultID.
func (a *Automated) Automation(vaultID uint64) (AutomatedVault, error) {
	return a.store.Automation(vaultID)
}

// SetAutomation stores cfg for vaultID. Only the vault owner, directly or
// through its current account, may call it.
func (a *Automated) SetAutomation(caller common.Address, vaultID uint64, cfg AutomatedVault) error {
	if err := a.CheckPaused(); err != nil {
		return err
	}
	owner, err := a.checkVaultOwner(caller, vaultID)
	if err != nil {
		return err
	}
	cfg.ensureDefaults()
	if err := checkVarFee(cfg.VarFee); err != nil {
		return err
	}
	if cfg.IsAutomated {
		if err := nativecommon.RequireNonZero(cfg.ToCollateral); err != nil {
			return err
		}
	}
	if err := a.store.PutAutomation(vaultID, cfg); err != nil {
		return err
	}
	a.Env.Emit(events.AutomationSet{
		VaultID:          vaultID,
		Owner:            owner,
		Enabled:          cfg.IsAutomated,
		ToCollateral:     cfg.ToCollateral,
		AllowedVariation: cfg.AllowedVariation,
		TargetRatio:      cfg.TargetRatio,
		TriggerRatio:     cfg.TriggerRatio,
		McrBuffer:        cfg.McrBuffer,
		FixedFee:         cfg.FixedFee,
		VarFee:           cfg.VarFee,
	})
	return nil
}

// Amounts previews a rebalance of vaultID into toCollateral under the
// vault's automation config.
func (a *Automated) Amounts(vaultID uint64, toCollateral common.Address) (Amounts, error) {
	cfg, err := a.store.Automation(vaultID)
	if err != nil {
		return Amounts{}, err
	}
	view, err := a.vault(vaultID)
	if err != nil {
		return Amounts{}, err
	}
	return a.amounts(view, cfg, toCollateral)
}

func (a *Automated) amounts(view vaultView, cfg AutomatedVault, toCollateral common.Address) (Amounts, error) {
	mcr, err := a.collateral.CollateralMinCollateralRatio(toCollateral)
	if err != nil {
		return Amounts{}, err
	}
	values, err := RebalanceValue(RebalanceInputs{
		CollateralValue: view.Value,
		VaultDebt:       view.Debt,
		TargetRatio:     cfg.TargetRatio,
		DestinationMcr:  mcr,
		McrBuffer:       cfg.McrBuffer,
		FixedFee:        cfg.FixedFee,
		VarFee:          cfg.VarFee,
		PremiumBps:      a.premiums.PremiumBps(),
	})
	if err != nil {
		return Amounts{}, err
	}
	amount, err := a.prices.ConvertTo(view.Collateral, values.Value)
	if err != nil {
		return Amounts{}, err
	}
	fee, err := AutomatedFee(cfg.FixedFee, cfg.VarFee, values.Value)
	if err != nil {
		return Amounts{}, err
	}
	return Amounts{Value: values.Value, RebalanceAmount: amount, MintAmount: values.MintAmount, Fee: fee}, nil
}

// Rebalance moves value out of vaultID into the owner's vault of the
// configured collateral so the source vault ends at its target ratio. The
// fee is paid to caller.
func (a *Automated) Rebalance(caller common.Address, vaultID uint64, swap actions.SwapData) error {
	return a.guarded(func() error {
		if err := a.CheckPaused(); err != nil {
			return err
		}
		cfg, err := a.store.Automation(vaultID)
		if err != nil {
			return err
		}
		if !cfg.IsAutomated {
			return ErrVaultNotAutomated
		}
		if err := a.checkWindow(vaultID); err != nil {
			return err
		}
		view, err := a.vault(vaultID)
		if err != nil {
			return err
		}
		current, err := view.ratio()
		if err != nil {
			return err
		}
		if current.Cmp(cfg.TriggerRatio) > 0 {
			return &VaultTriggerRatioNotReachedError{Current: current, Trigger: new(big.Int).Set(cfg.TriggerRatio)}
		}
		amounts, err := a.amounts(view, cfg, cfg.ToCollateral)
		if err != nil {
			return err
		}
		if amounts.RebalanceAmount.Sign() == 0 || amounts.MintAmount.Sign() == 0 {
			return ErrRebalanceAmountCannotBeZero
		}
		now := a.now()
		if err := a.store.SetOperationTracker(a.Name(), vaultID, now); err != nil {
			return err
		}
		before, err := a.destinationValue(cfg.ToCollateral, view.Owner)
		if err != nil {
			return err
		}
		rb := actions.RebalanceData{ToCollateral: cfg.ToCollateral, VaultID: vaultID, MintAmount: amounts.MintAmount}
		err = a.loan(view.Collateral, amounts.RebalanceAmount, callbackParams{
			Account:   view.Owner,
			Fee:       amounts.Fee,
			Rebalance: rb,
			Swap:      swap,
		})
		if err != nil {
			return err
		}

		after, err := a.vault(vaultID)
		if err != nil {
			return err
		}
		ratioA, err := after.ratio()
		if err != nil {
			return err
		}
		if err := checkFloor(cfg.TargetRatio, ratioA); err != nil {
			return err
		}
		destination, err := a.destinationValue(cfg.ToCollateral, view.Owner)
		if err != nil {
			return err
		}
		if err := checkVariation(amounts.Value, before, destination, cfg.AllowedVariation); err != nil {
			return err
		}
		if err := a.payFee(caller, amounts.Fee); err != nil {
			return err
		}
		a.Env.Emit(events.Rebalanced{
			VaultID:         vaultID,
			Account:         view.Owner,
			Beneficiary:     caller,
			FromCollateral:  view.Collateral,
			ToCollateral:    cfg.ToCollateral,
			RebalanceAmount: amounts.RebalanceAmount,
			MintAmount:      amounts.MintAmount,
			Fee:             amounts.Fee,
			Timestamp:       now,
		})
		return nil
	})
}
