package routes

import (
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"cdpproxy/core"
	"cdpproxy/native/automation"
)

type accountView struct {
	Owner   string `json:"owner"`
	Account string `json:"account,omitempty"`
	Guard   string `json:"guard,omitempty"`
	MinGas  uint64 `json:"minGas,omitempty"`
	Pending string `json:"pendingOwner,omitempty"`
}

type vaultView struct {
	ID         uint64 `json:"id"`
	Owner      string `json:"owner"`
	Collateral string `json:"collateralType"`
	Balance    string `json:"collateral"`
	Debt       string `json:"debt"`
	Ratio      string `json:"ratio"`
}

type automationView struct {
	VaultID          uint64 `json:"vaultId"`
	IsAutomated      bool   `json:"isAutomated"`
	ToCollateral     string `json:"toCollateral"`
	AllowedVariation string `json:"allowedVariation"`
	TargetRatio      string `json:"targetRatio"`
	TriggerRatio     string `json:"triggerRatio"`
	McrBuffer        string `json:"mcrBuffer"`
	FixedFee         string `json:"fixedFee"`
	VarFee           string `json:"varFee"`
	LastOperation    uint64 `json:"lastOperation"`
}

type managementView struct {
	VaultID          uint64 `json:"vaultId"`
	IsManaged        bool   `json:"isManaged"`
	Manager          string `json:"manager"`
	AllowedVariation string `json:"allowedVariation"`
	MinRatio         string `json:"minRatio"`
	McrBuffer        string `json:"mcrBuffer"`
	FixedFee         string `json:"fixedFee"`
	VarFee           string `json:"varFee"`
	LastOperation    uint64 `json:"lastOperation"`
}

type amountsView struct {
	Value           string `json:"value"`
	RebalanceAmount string `json:"rebalanceAmount"`
	MintAmount      string `json:"mintAmount"`
	Fee             string `json:"fee"`
}

func decimal(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func parseAddress(raw string) (common.Address, error) {
	raw = strings.TrimSpace(raw)
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("%w: invalid address %q", errBadRequest, raw)
	}
	return common.HexToAddress(raw), nil
}

func vaultIDParam(r *http.Request) (uint64, error) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: invalid vault id", errBadRequest)
	}
	return id, nil
}

func (s *server) getAccount(w http.ResponseWriter, r *http.Request) {
	owner, err := parseAddress(chi.URLParam(r, "owner"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	view := accountView{Owner: owner.Hex()}
	err = s.node.View(func(world *core.World) error {
		account, err := world.Proxies.CurrentAccount(owner)
		if err != nil || account == (common.Address{}) {
			return err
		}
		ps, err := world.Proxies.ProxyState(account)
		if err != nil {
			return err
		}
		pending, err := world.Proxies.PendingOwner(account)
		if err != nil {
			return err
		}
		view.Account = account.Hex()
		view.Guard = ps.Guard.Hex()
		view.MinGas = ps.MinGas
		if pending != (common.Address{}) {
			view.Pending = pending.Hex()
		}
		return nil
	})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if view.Account == "" {
		writeError(w, http.StatusNotFound, fmt.Errorf("no account for %s", owner.Hex()))
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *server) getVault(w http.ResponseWriter, r *http.Request) {
	id, err := vaultIDParam(r)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	var view vaultView
	err = s.node.View(func(world *core.World) error {
		vault, err := world.Vaults.Vault(id)
		if err != nil {
			return err
		}
		ratio, err := world.Vaults.VaultRatio(id)
		if err != nil {
			return err
		}
		view = vaultView{
			ID:         vault.ID,
			Owner:      vault.Owner.Hex(),
			Collateral: vault.CollateralType.Hex(),
			Balance:    decimal(vault.Collateral),
			Debt:       decimal(vault.Debt),
			Ratio:      decimal(ratio),
		}
		return nil
	})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *server) getAutomation(w http.ResponseWriter, r *http.Request) {
	id, err := vaultIDParam(r)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	var view automationView
	err = s.node.View(func(world *core.World) error {
		cfg, err := world.Automated.Automation(id)
		if err != nil {
			return err
		}
		last, err := world.Automated.OperationTracker(id)
		if err != nil {
			return err
		}
		view = automationView{
			VaultID:          id,
			IsAutomated:      cfg.IsAutomated,
			ToCollateral:     cfg.ToCollateral.Hex(),
			AllowedVariation: decimal(cfg.AllowedVariation),
			TargetRatio:      decimal(cfg.TargetRatio),
			TriggerRatio:     decimal(cfg.TriggerRatio),
			McrBuffer:        decimal(cfg.McrBuffer),
			FixedFee:         decimal(cfg.FixedFee),
			VarFee:           decimal(cfg.VarFee),
			LastOperation:    last,
		}
		return nil
	})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// getAmounts previews an automated rebalance so keepers can build the swap
// payload.
func (s *server) getAmounts(w http.ResponseWriter, r *http.Request) {
	id, err := vaultIDParam(r)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	var to common.Address
	if raw := r.URL.Query().Get("to"); raw != "" {
		if to, err = parseAddress(raw); err != nil {
			writeError(w, statusFor(err), err)
			return
		}
	}
	var amounts automation.Amounts
	err = s.node.View(func(world *core.World) error {
		if to == (common.Address{}) {
			cfg, err := world.Automated.Automation(id)
			if err != nil {
				return err
			}
			to = cfg.ToCollateral
		}
		var err error
		amounts, err = world.Automated.Amounts(id, to)
		return err
	})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, amountsView{
		Value:           decimal(amounts.Value),
		RebalanceAmount: decimal(amounts.RebalanceAmount),
		MintAmount:      decimal(amounts.MintAmount),
		Fee:             decimal(amounts.Fee),
	})
}

func (s *server) getManagement(w http.ResponseWriter, r *http.Request) {
	id, err := vaultIDParam(r)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	var view managementView
	err = s.node.View(func(world *core.World) error {
		cfg, err := world.Managed.Management(id)
		if err != nil {
			return err
		}
		last, err := world.Managed.OperationTracker(id)
		if err != nil {
			return err
		}
		view = managementView{
			VaultID:          id,
			IsManaged:        cfg.IsManaged,
			Manager:          cfg.Manager.Hex(),
			AllowedVariation: decimal(cfg.AllowedVariation),
			MinRatio:         decimal(cfg.MinRatio),
			McrBuffer:        decimal(cfg.McrBuffer),
			FixedFee:         decimal(cfg.FixedFee),
			VarFee:           decimal(cfg.VarFee),
			LastOperation:    last,
		}
		return nil
	})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
