package events

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"cdpproxy/core/types"
)

const (
	TypeVaultUpdated      = "vault.updated"
	TypeFlashLoanExecuted = "flashloan.executed"
	TypeModulePaused      = "module.paused"
	TypeModuleUnpaused    = "module.unpaused"
	TypeSwapExecuted      = "dex.swap"
)

// VaultUpdated records the post-operation position of a vault.
type VaultUpdated struct {
	Action         string
	VaultID        uint64
	Owner          common.Address
	CollateralType common.Address
	Collateral     *big.Int
	Debt           *big.Int
	Amount         *big.Int
}

func (VaultUpdated) EventType() string { return TypeVaultUpdated }

func (e VaultUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeVaultUpdated,
		Attributes: map[string]string{
			"action":         e.Action,
			"vaultId":        u64(e.VaultID),
			"owner":          addr(e.Owner),
			"collateralType": addr(e.CollateralType),
			"collateral":     amount(e.Collateral),
			"debt":           amount(e.Debt),
			"amount":         amount(e.Amount),
		},
	}
}

type FlashLoanExecuted struct {
	Pool      common.Address
	Receiver  common.Address
	Initiator common.Address
	Asset     common.Address
	Amount    *big.Int
	Premium   *big.Int
}

func (FlashLoanExecuted) EventType() string { return TypeFlashLoanExecuted }

func (e FlashLoanExecuted) Event() *types.Event {
	return &types.Event{
		Type: TypeFlashLoanExecuted,
		Attributes: map[string]string{
			"pool":      addr(e.Pool),
			"receiver":  addr(e.Receiver),
			"initiator": addr(e.Initiator),
			"asset":     addr(e.Asset),
			"amount":    amount(e.Amount),
			"premium":   amount(e.Premium),
		},
	}
}

type SwapExecuted struct {
	Router    common.Address
	Trader    common.Address
	FromAsset common.Address
	ToAsset   common.Address
	AmountIn  *big.Int
	AmountOut *big.Int
}

func (SwapExecuted) EventType() string { return TypeSwapExecuted }

func (e SwapExecuted) Event() *types.Event {
	return &types.Event{
		Type: TypeSwapExecuted,
		Attributes: map[string]string{
			"router":    addr(e.Router),
			"trader":    addr(e.Trader),
			"fromAsset": addr(e.FromAsset),
			"toAsset":   addr(e.ToAsset),
			"amountIn":  amount(e.AmountIn),
			"amountOut": amount(e.AmountOut),
		},
	}
}

// ModulePauseChanged is emitted by Pause and Unpause.
type ModulePauseChanged struct {
	Module string
	By     common.Address
	Paused bool
}

func (e ModulePauseChanged) EventType() string {
	if e.Paused {
		return TypeModulePaused
	}
	return TypeModuleUnpaused
}

func (e ModulePauseChanged) Event() *types.Event {
	return &types.Event{
		Type: e.EventType(),
		Attributes: map[string]string{
			"module": e.Module,
			"by":     addr(e.By),
		},
	}
}
