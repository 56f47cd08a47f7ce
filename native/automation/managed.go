package automation

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"cdpproxy/core/events"
	"cdpproxy/native/access"
	"cdpproxy/native/actions"
	nativecommon "cdpproxy/native/common"
)

// Roles answers protocol role checks.
type Roles interface {
	HasRole(role common.Hash, account common.Address) bool
}

// Managed lets a listed manager chosen by the vault owner rebalance the
// vault with amounts of its choosing, inside the owner's bounds.
type Managed struct {
	*rebalancer
	roles Roles
}

// NewManaged builds the management module at address.
func NewManaged(address common.Address, deps Deps, roles Roles) (*Managed, error) {
	if roles == nil {
		return nil, errNilCollaborator
	}
	r, err := newRebalancer(string(KindManaged), address, deps)
	if err != nil {
		return nil, err
	}
	return &Managed{rebalancer: r, roles: roles}, nil
}

func (m *Managed) Management(vaultID uint64) (ManagedVault, error) {
	return m.store.Management(vaultID)
}

func (m *Managed) IsManager(manager common.Address) bool {
	return m.store.IsManager(manager)
}

// SetManager lists or unlists manager. Requires the manager role.
func (m *Managed) SetManager(caller, manager common.Address, listed bool) error {
	if !m.roles.HasRole(access.ManagerRole, caller) {
		return ErrCallerNotProtocolManager
	}
	if err := nativecommon.RequireNonZero(manager); err != nil {
		return err
	}
	m.store.SetManager(manager, listed)
	m.Env.Emit(events.ManagerSet{Manager: manager, Listed: listed})
	return nil
}

// SetManagement stores cfg for vaultID. The named manager must be listed
// when management is enabled.
func (m *Managed) SetManagement(caller common.Address, vaultID uint64, cfg ManagedVault) error {
	if err := m.CheckPaused(); err != nil {
		return err
	}
	owner, err := m.checkVaultOwner(caller, vaultID)
	if err != nil {
		return err
	}
	cfg.ensureDefaults()
	if err := checkVarFee(cfg.VarFee); err != nil {
		return err
	}
	if cfg.IsManaged && !m.store.IsManager(cfg.Manager) {
		return ErrManagerNotListed
	}
	if err := m.store.PutManagement(vaultID, cfg); err != nil {
		return err
	}
	m.Env.Emit(events.ManagementSet{
		VaultID:          vaultID,
		Owner:            owner,
		Enabled:          cfg.IsManaged,
		Manager:          cfg.Manager,
		AllowedVariation: cfg.AllowedVariation,
		MinRatio:         cfg.MinRatio,
		McrBuffer:        cfg.McrBuffer,
		FixedFee:         cfg.FixedFee,
		VarFee:           cfg.VarFee,
	})
	return nil
}

// Fee is what a managed rebalance of amount of asset costs under cfg.
func (m *Managed) Fee(cfg ManagedVault, asset common.Address, amount *big.Int) (*big.Int, error) {
	value, err := m.prices.ConvertFrom(asset, amount)
	if err != nil {
		return nil, err
	}
	return AutomatedFee(cfg.FixedFee, cfg.VarFee, value)
}

// Rebalance moves fl.Amount of the source collateral of rb.VaultID into the
// owner's vault of rb.ToCollateral, minting rb.MintAmount against it. Only
// the vault's selected manager may call it and it is paid the fee.
func (m *Managed) Rebalance(caller common.Address, fl actions.FlashloanData, rb actions.RebalanceData, swap actions.SwapData) error {
	return m.guarded(func() error {
		if err := m.CheckPaused(); err != nil {
			return err
		}
		cfg, err := m.store.Management(rb.VaultID)
		if err != nil {
			return err
		}
		if !cfg.IsManaged {
			return ErrVaultNotUnderManagement
		}
		if !m.store.IsManager(cfg.Manager) {
			return ErrManagerNotListed
		}
		if caller != cfg.Manager {
			return ErrCallerNotSelectedManager
		}
		if fl.Amount == nil || fl.Amount.Sign() == 0 || rb.MintAmount == nil || rb.MintAmount.Sign() == 0 {
			return ErrRebalanceAmountCannotBeZero
		}
		if err := m.checkWindow(rb.VaultID); err != nil {
			return err
		}
		view, err := m.vault(rb.VaultID)
		if err != nil {
			return err
		}
		if fl.Asset != view.Collateral {
			return ErrFlashloanAssetMismatch
		}
		if rb.MintAmount.Cmp(view.Debt) > 0 {
			return ErrMintAmountGreaterThanVaultDebt
		}
		expected, err := m.prices.ConvertFrom(fl.Asset, fl.Amount)
		if err != nil {
			return err
		}
		fee, err := AutomatedFee(cfg.FixedFee, cfg.VarFee, expected)
		if err != nil {
			return err
		}
		before, err := m.destinationValue(rb.ToCollateral, view.Owner)
		if err != nil {
			return err
		}
		now := m.now()
		if err := m.store.SetOperationTracker(m.Name(), rb.VaultID, now); err != nil {
			return err
		}
		err = m.loan(fl.Asset, fl.Amount, callbackParams{Account: view.Owner, Fee: fee, Rebalance: rb, Swap: swap})
		if err != nil {
			return err
		}

		after, err := m.vault(rb.VaultID)
		if err != nil {
			return err
		}
		ratioA, err := after.ratio()
		if err != nil {
			return err
		}
		if err := checkFloor(cfg.MinRatio, ratioA); err != nil {
			return err
		}
		mcr, err := m.collateral.CollateralMinCollateralRatio(rb.ToCollateral)
		if err != nil {
			return err
		}
		ratioB, err := m.destinationRatio(rb.ToCollateral, view.Owner)
		if err != nil {
			return err
		}
		if err := checkFloor(new(big.Int).Add(mcr, cfg.McrBuffer), ratioB); err != nil {
			return err
		}
		destination, err := m.destinationValue(rb.ToCollateral, view.Owner)
		if err != nil {
			return err
		}
		if err := checkVariation(expected, before, destination, cfg.AllowedVariation); err != nil {
			return err
		}
		if err := m.payFee(cfg.Manager, fee); err != nil {
			return err
		}
		m.Env.Emit(events.Rebalanced{
			Managed:         true,
			VaultID:         rb.VaultID,
			Account:         view.Owner,
			Beneficiary:     cfg.Manager,
			FromCollateral:  view.Collateral,
			ToCollateral:    rb.ToCollateral,
			RebalanceAmount: new(big.Int).Set(fl.Amount),
			MintAmount:      new(big.Int).Set(rb.MintAmount),
			Fee:             fee,
			Timestamp:       now,
		})
		return nil
	})
}
