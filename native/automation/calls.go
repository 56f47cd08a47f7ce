package automation

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"cdpproxy/core/vm"
	"cdpproxy/native/actions"
)

const (
	KindAutomated vm.Kind = "automation.auto"
	KindManaged   vm.Kind = "automation.managed"
)

var (
	SelSetAutomation    = vm.SelectorOf("setAutomation(uint256,(bool,address,uint256,uint256,uint256,uint256,uint256,uint256))")
	SelSetManagement    = vm.SelectorOf("setManagement(uint256,(bool,address,uint256,uint256,uint256,uint256,uint256))")
	SelSetManager       = vm.SelectorOf("setManager(address,bool)")
	SelAutoRebalance    = vm.SelectorOf("rebalance(uint256,(uint256,bytes))")
	SelManagedRebalance = vm.SelectorOf("rebalance((address,uint256),(address,uint256,uint256),(uint256,bytes))")
	SelOperationTracker = vm.SelectorOf("operationTracker(uint256)")
)

type SetAutomationArgs struct {
	VaultID uint64
	Config  AutomatedVault
}

type SetManagementArgs struct {
	VaultID uint64
	Config  ManagedVault
}

type SetManagerArgs struct {
	Manager common.Address
	Listed  bool
}

type AutoRebalanceArgs struct {
	VaultID uint64
	Swap    actions.SwapData
}

type ManagedRebalanceArgs struct {
	Flashloan actions.FlashloanData
	Rebalance actions.RebalanceData
	Swap      actions.SwapData
}

type VaultArgs struct {
	VaultID uint64
}

func (r *rebalancer) callTracker(input []byte) ([]byte, error) {
	var args VaultArgs
	if err := vm.DecodeArgs(input, &args); err != nil {
		return nil, err
	}
	last, err := r.OperationTracker(args.VaultID)
	if err != nil {
		return nil, err
	}
	return rlp.EncodeToBytes(last)
}

// Call serves the automation entry points. Accounts reach it through the
// proxy multicall, keepers call it directly.
func (a *Automated) Call(msg vm.Message, input []byte) ([]byte, error) {
	if handled, err := a.CallAdmin(msg, input); handled {
		return nil, err
	}
	switch vm.SelectorFromData(input) {
	case SelSetAutomation:
		var args SetAutomationArgs
		if err := vm.DecodeArgs(input, &args); err != nil {
			return nil, err
		}
		return nil, a.SetAutomation(msg.Caller, args.VaultID, args.Config)
	case SelAutoRebalance:
		var args AutoRebalanceArgs
		if err := vm.DecodeArgs(input, &args); err != nil {
			return nil, err
		}
		return nil, a.Rebalance(msg.Caller, args.VaultID, args.Swap)
	case SelOperationTracker:
		return a.callTracker(input)
	default:
		return nil, vm.ErrUnknownMethod
	}
}

// Call serves the management entry points.
func (m *Managed) Call(msg vm.Message, input []byte) ([]byte, error) {
	if handled, err := m.CallAdmin(msg, input); handled {
		return nil, err
	}
	switch vm.SelectorFromData(input) {
	case SelSetManagement:
		var args SetManagementArgs
		if err := vm.DecodeArgs(input, &args); err != nil {
			return nil, err
		}
		return nil, m.SetManagement(msg.Caller, args.VaultID, args.Config)
	case SelSetManager:
		var args SetManagerArgs
		if err := vm.DecodeArgs(input, &args); err != nil {
			return nil, err
		}
		return nil, m.SetManager(msg.Caller, args.Manager, args.Listed)
	case SelManagedRebalance:
		var args ManagedRebalanceArgs
		if err := vm.DecodeArgs(input, &args); err != nil {
			return nil, err
		}
		return nil, m.Rebalance(msg.Caller, args.Flashloan, args.Rebalance, args.Swap)
	case SelOperationTracker:
		return m.callTracker(input)
	default:
		return nil, vm.ErrUnknownMethod
	}
}
