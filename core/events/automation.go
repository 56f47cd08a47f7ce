package events

import (
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"cdpproxy/core/types"
)

const (
	TypeAutomationSet        = "automation.set"
	TypeAutomationRebalanced = "automation.rebalanced"
	TypeManagementSet        = "management.set"
	TypeManagerSet           = "management.manager_set"
	TypeManagementRebalanced = "management.rebalanced"
)

type AutomationSet struct {
	VaultID          uint64
	Owner            common.Address
	Enabled          bool
	ToCollateral     common.Address
	AllowedVariation *big.Int
	TargetRatio      *big.Int
	TriggerRatio     *big.Int
	McrBuffer        *big.Int
	FixedFee         *big.Int
	VarFee           *big.Int
}

func (AutomationSet) EventType() string { return TypeAutomationSet }

func (e AutomationSet) Event() *types.Event {
	return &types.Event{
		Type: TypeAutomationSet,
		Attributes: map[string]string{
			"vaultId":          u64(e.VaultID),
			"owner":            addr(e.Owner),
			"isAutomated":      strconv.FormatBool(e.Enabled),
			"toCollateral":     addr(e.ToCollateral),
			"allowedVariation": amount(e.AllowedVariation),
			"targetRatio":      amount(e.TargetRatio),
			"triggerRatio":     amount(e.TriggerRatio),
			"mcrBuffer":        amount(e.McrBuffer),
			"fixedFee":         amount(e.FixedFee),
			"varFee":           amount(e.VarFee),
		},
	}
}

type ManagementSet struct {
	VaultID          uint64
	Owner            common.Address
	Enabled          bool
	Manager          common.Address
	AllowedVariation *big.Int
	MinRatio         *big.Int
	McrBuffer        *big.Int
	FixedFee         *big.Int
	VarFee           *big.Int
}

func (ManagementSet) EventType() string { return TypeManagementSet }

func (e ManagementSet) Event() *types.Event {
	return &types.Event{
		Type: TypeManagementSet,
		Attributes: map[string]string{
			"vaultId":          u64(e.VaultID),
			"owner":            addr(e.Owner),
			"isManaged":        strconv.FormatBool(e.Enabled),
			"manager":          addr(e.Manager),
			"allowedVariation": amount(e.AllowedVariation),
			"minRatio":         amount(e.MinRatio),
			"mcrBuffer":        amount(e.McrBuffer),
			"fixedFee":         amount(e.FixedFee),
			"varFee":           amount(e.VarFee),
		},
	}
}

type ManagerSet struct {
	Manager common.Address
	Listed  bool
}

func (ManagerSet) EventType() string { return TypeManagerSet }

func (e ManagerSet) Event() *types.Event {
	return &types.Event{
		Type: TypeManagerSet,
		Attributes: map[string]string{
			"manager": addr(e.Manager),
			"listed":  strconv.FormatBool(e.Listed),
		},
	}
}

// Rebalanced describes a completed automated or managed rebalance.
type Rebalanced struct {
	Managed         bool
	VaultID         uint64
	Account         common.Address
	Beneficiary     common.Address
	FromCollateral  common.Address
	ToCollateral    common.Address
	RebalanceAmount *big.Int
	MintAmount      *big.Int
	Fee             *big.Int
	Timestamp       uint64
}

func (e Rebalanced) EventType() string {
	if e.Managed {
		return TypeManagementRebalanced
	}
	return TypeAutomationRebalanced
}

func (e Rebalanced) Event() *types.Event {
	return &types.Event{
		Type: e.EventType(),
		Attributes: map[string]string{
			"vaultId":         u64(e.VaultID),
			"account":         addr(e.Account),
			"beneficiary":     addr(e.Beneficiary),
			"fromCollateral":  addr(e.FromCollateral),
			"toCollateral":    addr(e.ToCollateral),
			"rebalanceAmount": amount(e.RebalanceAmount),
			"mintAmount":      amount(e.MintAmount),
			"fee":             amount(e.Fee),
			"timestamp":       u64(e.Timestamp),
		},
	}
}
