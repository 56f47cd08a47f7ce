package proxy

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"cdpproxy/core/vm"
)

var (
	SelExecute           = vm.SelectorOf("execute(address,bytes)")
	SelBatch             = vm.SelectorOf("batch(bytes[],bool)")
	SelSetPermission     = vm.SelectorOf("setPermission(address,address,bytes4,bool)")
	SelDeploy            = vm.SelectorOf("deploy()")
	SelTransferOwnership = vm.SelectorOf("transferOwnership(address,address)")
	SelClaimOwnership    = vm.SelectorOf("claimOwnership(address,bool)")
	SelClearPermissions  = vm.SelectorOf("clearPermissions(address)")
	SelSetMinGas         = vm.SelectorOf("setMinGas(address,uint256)")
)

type ExecuteArgs struct {
	Target common.Address
	Data   []byte
}

type BatchArgs struct {
	Calls        []BatchCall
	RevertOnFail bool
}

type SetPermissionArgs struct {
	Caller   common.Address
	Target   common.Address
	Selector vm.Selector
	Allowed  bool
}

type TransferOwnershipArgs struct {
	Account  common.Address
	NewOwner common.Address
}

type ClaimOwnershipArgs struct {
	Account          common.Address
	ClearPermissions bool
}

type AccountArgs struct {
	Account common.Address
}

type SetMinGasArgs struct {
	Account common.Address
	MinGas  uint64
}

// Call dispatches execute and batch.
func (a *Account) Call(msg vm.Message, input []byte) ([]byte, error) {
	switch vm.SelectorFromData(input) {
	case SelExecute:
		var args ExecuteArgs
		if err := vm.DecodeArgs(input, &args); err != nil {
			return nil, err
		}
		return a.Execute(msg, args.Target, args.Data)
	case SelBatch:
		var args BatchArgs
		if err := vm.DecodeArgs(input, &args); err != nil {
			return nil, err
		}
		results, err := a.Batch(msg, args.Calls, args.RevertOnFail)
		if err != nil {
			return nil, err
		}
		return rlp.EncodeToBytes(results)
	default:
		return nil, vm.ErrUnknownMethod
	}
}

// Call dispatches setPermission.
func (g *Guard) Call(msg vm.Message, input []byte) ([]byte, error) {
	if vm.SelectorFromData(input) != SelSetPermission {
		return nil, vm.ErrUnknownMethod
	}
	var args SetPermissionArgs
	if err := vm.DecodeArgs(input, &args); err != nil {
		return nil, err
	}
	return nil, g.SetPermission(msg, args.Caller, args.Target, args.Selector, args.Allowed)
}

// Call dispatches the registry's owner operations.
func (r *Registry) Call(msg vm.Message, input []byte) ([]byte, error) {
	switch vm.SelectorFromData(input) {
	case SelDeploy:
		account, err := r.Deploy(msg.Caller)
		if err != nil {
			return nil, err
		}
		return account.Bytes(), nil
	case SelTransferOwnership:
		var args TransferOwnershipArgs
		if err := vm.DecodeArgs(input, &args); err != nil {
			return nil, err
		}
		return nil, r.TransferOwnership(msg.Caller, args.Account, args.NewOwner)
	case SelClaimOwnership:
		var args ClaimOwnershipArgs
		if err := vm.DecodeArgs(input, &args); err != nil {
			return nil, err
		}
		return nil, r.ClaimOwnership(msg.Caller, args.Account, args.ClearPermissions)
	case SelClearPermissions:
		var args AccountArgs
		if err := vm.DecodeArgs(input, &args); err != nil {
			return nil, err
		}
		return nil, r.ClearPermissions(msg.Caller, args.Account)
	case SelSetMinGas:
		var args SetMinGasArgs
		if err := vm.DecodeArgs(input, &args); err != nil {
			return nil, err
		}
		return nil, r.SetMinGas(msg.Caller, args.Account, args.MinGas)
	default:
		return nil, vm.ErrUnknownMethod
	}
}
