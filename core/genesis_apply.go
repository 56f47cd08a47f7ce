package core

import (
	"fmt"
	"math/big"
	"sort"
	"strings"

	"cdpproxy/core/genesis"
	"cdpproxy/native/access"
	"cdpproxy/native/bank"
	"cdpproxy/native/dex"
	"cdpproxy/native/vaults"
)

// WorldConfigFromSpec derives the fixed wiring from a validated spec.
func WorldConfigFromSpec(spec *genesis.Spec) (WorldConfig, error) {
	debt, err := genesis.ParseAddress(spec.DebtToken.Address)
	if err != nil {
		return WorldConfig{}, fmt.Errorf("debt token: %w", err)
	}
	return WorldConfig{
		Admin:           spec.AdminAddress(),
		DebtToken:       debt,
		PremiumBps:      spec.FlashloanPremiumBps,
		RouterFeeBps:    spec.RouterFeeBps,
		OperationWindow: spec.Window(),
	}, nil
}

var oneUSD = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// ApplyGenesis writes the initial state described by spec. Iteration is in
// sorted order so every node derives identical state. The caller commits.
func (w *World) ApplyGenesis(spec *genesis.Spec) error {
	admin := spec.AdminAddress()
	w.Roles.Bootstrap(admin)

	// 1) Tokens: the debt token is minted by the vaults engine.
	debt, err := genesis.ParseAddress(spec.DebtToken.Address)
	if err != nil {
		return err
	}
	if err := w.Bank.RegisterAsset(bank.Asset{Address: debt, Symbol: spec.DebtToken.Symbol, Decimals: spec.DebtToken.Decimals, Minter: vaults.Address}); err != nil {
		return fmt.Errorf("register %s: %w", spec.DebtToken.Symbol, err)
	}
	if err := w.Oracle.SetPrice(admin, debt, oneUSD); err != nil {
		return fmt.Errorf("price %s: %w", spec.DebtToken.Symbol, err)
	}
	for _, c := range spec.Collateral {
		addr, err := genesis.ParseAddress(c.Address)
		if err != nil {
			return err
		}
		if err := w.Bank.RegisterAsset(bank.Asset{Address: addr, Symbol: c.Symbol, Decimals: c.Decimals}); err != nil {
			return fmt.Errorf("register %s: %w", c.Symbol, err)
		}
	}
	if symbol := strings.TrimSpace(spec.WrappedNative); symbol != "" {
		token, _ := spec.Token(symbol)
		addr, err := genesis.ParseAddress(token.Address)
		if err != nil {
			return err
		}
		if err := w.Bank.SetWrappedNative(addr); err != nil {
			return fmt.Errorf("wrapped native: %w", err)
		}
	}

	// 2) Prices and collateral parameters.
	for _, c := range spec.Collateral {
		addr, _ := genesis.ParseAddress(c.Address)
		price, _ := genesis.ParseAmount(c.Price)
		if err := w.Oracle.SetPrice(admin, addr, price); err != nil {
			return fmt.Errorf("price %s: %w", c.Symbol, err)
		}
		mcr, _ := genesis.ParseAmount(c.MinCollateralRatio)
		fee, _ := genesis.ParseAmount(c.OriginationFee)
		rate, _ := genesis.ParseAmount(c.BorrowRate)
		cfg := vaults.CollateralConfig{MinCollateralRatio: mcr, OriginationFee: fee, BorrowRate: rate}
		if err := w.Vaults.SetCollateralConfig(admin, addr, cfg); err != nil {
			return fmt.Errorf("collateral %s: %w", c.Symbol, err)
		}
	}

	// 3) Allocations (holders sorted, then symbols sorted).
	holders := make([]string, 0, len(spec.Alloc))
	for holder := range spec.Alloc {
		holders = append(holders, holder)
	}
	sort.Strings(holders)
	for _, holder := range holders {
		to, err := genesis.ParseAddress(holder)
		if err != nil {
			return err
		}
		symbols := make([]string, 0, len(spec.Alloc[holder]))
		for symbol := range spec.Alloc[holder] {
			symbols = append(symbols, symbol)
		}
		sort.Strings(symbols)
		for _, symbol := range symbols {
			amount, err := genesis.ParseAmount(spec.Alloc[holder][symbol])
			if err != nil {
				return err
			}
			asset := bank.NativeAsset
			if !strings.EqualFold(symbol, genesis.NativeSymbol) {
				token, _ := spec.Token(symbol)
				if asset, err = genesis.ParseAddress(token.Address); err != nil {
					return err
				}
			}
			if err := w.Bank.Credit(asset, to, amount); err != nil {
				return fmt.Errorf("alloc[%s][%s]: %w", holder, symbol, err)
			}
		}
	}

	// 4) Aggregators.
	for _, d := range spec.Dexes {
		router, spender := dex.RouterAddress, dex.RouterAddress
		if strings.TrimSpace(d.Router) != "" {
			router, _ = genesis.ParseAddress(d.Router)
			spender, _ = genesis.ParseAddress(d.Spender)
		}
		if err := w.Dexes.SetDex(admin, d.Index, router, spender); err != nil {
			return fmt.Errorf("dex %d: %w", d.Index, err)
		}
	}

	// 5) Roles and the manager allow-list.
	roleNames := make([]string, 0, len(spec.Roles))
	for role := range spec.Roles {
		roleNames = append(roleNames, role)
	}
	sort.Strings(roleNames)
	for _, role := range roleNames {
		for _, account := range spec.Roles[role] {
			addr, err := genesis.ParseAddress(account)
			if err != nil {
				return err
			}
			if err := w.Roles.GrantRole(admin, access.RoleID(role), addr); err != nil {
				return fmt.Errorf("roles[%s]: %w", role, err)
			}
		}
	}
	for _, m := range spec.Managers {
		addr, err := genesis.ParseAddress(m)
		if err != nil {
			return err
		}
		w.Managed.Store().SetManager(addr, true)
	}
	return nil
}
