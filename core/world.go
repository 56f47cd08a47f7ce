package core

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"cdpproxy/core/vm"
	"cdpproxy/native/access"
	"cdpproxy/native/actions"
	"cdpproxy/native/automation"
	"cdpproxy/native/bank"
	nativecommon "cdpproxy/native/common"
	"cdpproxy/native/dex"
	"cdpproxy/native/flashloan"
	"cdpproxy/native/oracle"
	"cdpproxy/native/params"
	"cdpproxy/native/proxy"
	"cdpproxy/native/vaults"
)

// WorldConfig fixes the protocol wiring that cannot change after genesis.
type WorldConfig struct {
	// Admin owns every module and the protocol roles.
	Admin common.Address
	// DebtToken is the stable token the vaults mint.
	DebtToken common.Address
	// PremiumBps is the flashloan fee rate.
	PremiumBps uint64
	// RouterFeeBps is the fee of the reference swap router.
	RouterFeeBps uint64
	// OperationWindow spaces automated and managed operations per vault.
	OperationWindow time.Duration
}

// ModuleAddress returns where the module bound under kind is installed.
func ModuleAddress(kind vm.Kind) common.Address {
	return vm.ModuleAddress(string(kind))
}

// World holds every native module wired to one execution environment.
type World struct {
	Env       *vm.Env
	Params    *params.Store
	Roles     *access.Controller
	Bank      *bank.Ledger
	Oracle    *oracle.Feed
	Vaults    *vaults.Engine
	Pool      *flashloan.Pool
	Dexes     *dex.Registry
	Router    *dex.Router
	Proxies   *proxy.Registry
	Vault     *actions.VaultActions
	Swap      *actions.Swap
	Leverage  *actions.Leverage
	Rebalance *actions.Rebalance
	Empty     *actions.EmptyVault
	ProxyOps  *actions.ProxyActions
	Automated *automation.Automated
	Managed   *automation.Managed
}

// NewWorld binds every module in env and installs its code. Installing is
// idempotent so a world can be rebuilt over persisted state.
func NewWorld(env *vm.Env, cfg WorldConfig) (*World, error) {
	if err := nativecommon.RequireNonZero(cfg.Admin, cfg.DebtToken); err != nil {
		return nil, err
	}
	st := env.State()
	w := &World{Env: env}
	w.Params = params.NewStateStore(st)
	w.Roles = access.NewController(st)
	w.Bank = bank.NewLedger(env)
	w.Oracle = oracle.NewFeed(env, cfg.Admin, w.Bank)

	w.Vaults = vaults.NewEngine(vaults.Address, cfg.Admin, cfg.DebtToken, w.Bank, w.Oracle)
	w.Vaults.SetState(vaults.NewStateStore(st))
	w.Vaults.SetPauses(w.Params)
	w.Vaults.SetEmitter(env)

	w.Pool = flashloan.NewPool(flashloan.Address, env, w.Bank, cfg.PremiumBps)
	w.Pool.SetPauses(w.Params)
	w.Dexes = dex.NewRegistry(st, cfg.Admin)
	w.Router = dex.NewRouter(w.Bank, w.Oracle, cfg.RouterFeeBps, env)
	w.Proxies = proxy.NewRegistry(env, proxy.RegistryAddress)

	deps := actions.Deps{
		Env:      env,
		Registry: w.Proxies,
		Ledger:   w.Bank,
		Vaults:   w.Vaults,
		Pool:     w.Pool,
		Dex:      w.Dexes,
		Pauses:   w.Params,
		Owner:    cfg.Admin,
	}
	var err error
	if w.Vault, err = actions.NewVaultActions(ModuleAddress(actions.KindVault), deps); err != nil {
		return nil, fmt.Errorf("vault actions: %w", err)
	}
	if w.Swap, err = actions.NewSwap(ModuleAddress(actions.KindSwap), deps); err != nil {
		return nil, fmt.Errorf("swap: %w", err)
	}
	if w.Leverage, err = actions.NewLeverage(ModuleAddress(actions.KindLeverage), deps); err != nil {
		return nil, fmt.Errorf("leverage: %w", err)
	}
	if w.Rebalance, err = actions.NewRebalance(ModuleAddress(actions.KindRebalance), deps); err != nil {
		return nil, fmt.Errorf("rebalance: %w", err)
	}
	if w.Empty, err = actions.NewEmptyVault(ModuleAddress(actions.KindEmptyVault), deps); err != nil {
		return nil, fmt.Errorf("empty vault: %w", err)
	}
	if w.ProxyOps, err = actions.NewProxyActions(ModuleAddress(actions.KindProxy), deps); err != nil {
		return nil, fmt.Errorf("proxy actions: %w", err)
	}

	autoDeps := automation.Deps{
		Deps:       deps,
		Prices:     w.Oracle,
		Collateral: w.Vaults,
		Premiums:   w.Pool,
		Rebalance:  w.Rebalance.Address(),
		Window:     cfg.OperationWindow,
	}
	if w.Automated, err = automation.NewAutomated(ModuleAddress(automation.KindAutomated), autoDeps); err != nil {
		return nil, fmt.Errorf("automation: %w", err)
	}
	if w.Managed, err = automation.NewManaged(ModuleAddress(automation.KindManaged), autoDeps, w.Roles); err != nil {
		return nil, fmt.Errorf("management: %w", err)
	}

	bindings := []struct {
		kind vm.Kind
		impl interface{}
		at   common.Address
	}{
		{bank.KindBank, w.Bank, bank.Address},
		{oracle.KindFeed, w.Oracle, oracle.Address},
		{vaults.KindCore, w.Vaults, vaults.Address},
		{dex.KindRouter, w.Router, dex.RouterAddress},
		{actions.KindVault, w.Vault, w.Vault.Address()},
		{actions.KindSwap, w.Swap, w.Swap.Address()},
		{actions.KindLeverage, w.Leverage, w.Leverage.Address()},
		{actions.KindRebalance, w.Rebalance, w.Rebalance.Address()},
		{actions.KindEmptyVault, w.Empty, w.Empty.Address()},
		{actions.KindProxy, w.ProxyOps, w.ProxyOps.Address()},
		{automation.KindAutomated, w.Automated, w.Automated.Address()},
		{automation.KindManaged, w.Managed, w.Managed.Address()},
	}
	for _, b := range bindings {
		env.Bind(b.kind, b.impl)
		if err := ensureInstalled(env, b.at, b.kind); err != nil {
			return nil, err
		}
	}
	if err := ensureInstalled(env, proxy.RegistryAddress, proxy.KindRegistry); err != nil {
		return nil, err
	}
	return w, nil
}

func ensureInstalled(env *vm.Env, addr common.Address, kind vm.Kind) error {
	if env.CodeKind(addr) == kind {
		return nil
	}
	if err := env.Install(addr, kind); err != nil {
		return fmt.Errorf("install %s at %s: %w", kind, addr.Hex(), err)
	}
	return nil
}

// Modules lists the pausable modules by name.
func (w *World) Modules() map[string]*actions.Base {
	return map[string]*actions.Base{
		w.Vault.Name():     w.Vault.Base,
		w.Swap.Name():      w.Swap.Base,
		w.Leverage.Name():  w.Leverage.Base,
		w.Rebalance.Name(): w.Rebalance.Base,
		w.Empty.Name():     w.Empty.Base,
		w.ProxyOps.Name():  w.ProxyOps.Base,
		w.Automated.Name(): w.Automated.Base,
		w.Managed.Name():   w.Managed.Base,
	}
}
