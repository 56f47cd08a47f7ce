package events

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"cdpproxy/core/types"
)

const (
	// TypeProxyDeployed is emitted when the registry creates a new account.
	TypeProxyDeployed             = "proxy.deployed"
	TypeProxyOwnershipTransferred = "proxy.ownership_transferred"
	TypeProxyOwnershipClaimed     = "proxy.ownership_claimed"
	TypeProxyPermissionsCleared   = "proxy.permissions_cleared"
	TypeProxyMinGasSet            = "proxy.min_gas_set"
	TypeProxyPermissionSet        = "proxy.permission_set"
	TypeProxyExecuted             = "proxy.executed"
)

type ProxyDeployed struct {
	Owner   common.Address
	Account common.Address
	Guard   common.Address
	MinGas  uint64
}

func (ProxyDeployed) EventType() string { return TypeProxyDeployed }

func (e ProxyDeployed) Event() *types.Event {
	return &types.Event{
		Type: TypeProxyDeployed,
		Attributes: map[string]string{
			"owner":   addr(e.Owner),
			"account": addr(e.Account),
			"guard":   addr(e.Guard),
			"minGas":  u64(e.MinGas),
		},
	}
}

type ProxyOwnershipTransferred struct {
	Account      common.Address
	Owner        common.Address
	PendingOwner common.Address
}

func (ProxyOwnershipTransferred) EventType() string { return TypeProxyOwnershipTransferred }

func (e ProxyOwnershipTransferred) Event() *types.Event {
	return &types.Event{
		Type: TypeProxyOwnershipTransferred,
		Attributes: map[string]string{
			"account":      addr(e.Account),
			"owner":        addr(e.Owner),
			"pendingOwner": addr(e.PendingOwner),
		},
	}
}

type ProxyOwnershipClaimed struct {
	Account          common.Address
	Owner            common.Address
	ClearPermissions bool
}

func (ProxyOwnershipClaimed) EventType() string { return TypeProxyOwnershipClaimed }

func (e ProxyOwnershipClaimed) Event() *types.Event {
	return &types.Event{
		Type: TypeProxyOwnershipClaimed,
		Attributes: map[string]string{
			"account":          addr(e.Account),
			"owner":            addr(e.Owner),
			"clearPermissions": strconv.FormatBool(e.ClearPermissions),
		},
	}
}

type ProxyPermissionsCleared struct {
	Account common.Address
	Guard   common.Address
}

func (ProxyPermissionsCleared) EventType() string { return TypeProxyPermissionsCleared }

func (e ProxyPermissionsCleared) Event() *types.Event {
	return &types.Event{
		Type: TypeProxyPermissionsCleared,
		Attributes: map[string]string{
			"account": addr(e.Account),
			"guard":   addr(e.Guard),
		},
	}
}

type ProxyMinGasSet struct {
	Account common.Address
	MinGas  uint64
}

func (ProxyMinGasSet) EventType() string { return TypeProxyMinGasSet }

func (e ProxyMinGasSet) Event() *types.Event {
	return &types.Event{
		Type: TypeProxyMinGasSet,
		Attributes: map[string]string{
			"account": addr(e.Account),
			"minGas":  u64(e.MinGas),
		},
	}
}

// ProxyPermissionSet is emitted on every guard write, including writes that
// do not change the stored value.
type ProxyPermissionSet struct {
	Guard    common.Address
	Account  common.Address
	Caller   common.Address
	Target   common.Address
	Selector [4]byte
	Allowed  bool
}

func (ProxyPermissionSet) EventType() string { return TypeProxyPermissionSet }

func (e ProxyPermissionSet) Event() *types.Event {
	return &types.Event{
		Type: TypeProxyPermissionSet,
		Attributes: map[string]string{
			"guard":    addr(e.Guard),
			"account":  addr(e.Account),
			"caller":   addr(e.Caller),
			"target":   addr(e.Target),
			"selector": selector(e.Selector),
			"allowed":  strconv.FormatBool(e.Allowed),
		},
	}
}

type ProxyExecuted struct {
	Account  common.Address
	Caller   common.Address
	Target   common.Address
	Selector [4]byte
}

func (ProxyExecuted) EventType() string { return TypeProxyExecuted }

func (e ProxyExecuted) Event() *types.Event {
	return &types.Event{
		Type: TypeProxyExecuted,
		Attributes: map[string]string{
			"account":  addr(e.Account),
			"caller":   addr(e.Caller),
			"target":   addr(e.Target),
			"selector": selector(e.Selector),
		},
	}
}
