package actions

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"cdpproxy/core/vm"
	"cdpproxy/native/bank"
)

var (
	SelWithdrawAllETH = vm.SelectorOf("withdrawETH()")
	SelMulticall      = vm.SelectorOf("multicall(address[],bytes[])")
)

type MulticallArgs struct {
	Targets []common.Address
	Data    [][]byte
}

// ProxyActions holds generic account helpers: draining the native balance
// and making plain calls from the account, for instance to configure
// automation for vaults the account owns.
type ProxyActions struct {
	*Base
}

// NewProxyActions builds the module at address.
func NewProxyActions(address common.Address, deps Deps) (*ProxyActions, error) {
	base, err := NewBase(string(KindProxy), address, deps, false)
	if err != nil {
		return nil, err
	}
	return &ProxyActions{Base: base}, nil
}

// Delegate runs withdrawETH or multicall in the calling account.
func (p *ProxyActions) Delegate(msg vm.Message, input []byte) ([]byte, error) {
	if err := p.CheckPaused(); err != nil {
		return nil, err
	}
	switch vm.SelectorFromData(input) {
	case SelWithdrawAllETH:
		return nil, p.withdrawETH(msg)
	case SelMulticall:
		var args MulticallArgs
		if err := vm.DecodeArgs(input, &args); err != nil {
			return nil, err
		}
		results, err := p.multicall(msg, args.Targets, args.Data)
		if err != nil {
			return nil, err
		}
		return rlp.EncodeToBytes(results)
	default:
		return nil, vm.ErrUnknownMethod
	}
}

// Call serves pause and unpause.
func (p *ProxyActions) Call(msg vm.Message, input []byte) ([]byte, error) {
	if handled, err := p.CallAdmin(msg, input); handled {
		return nil, err
	}
	return nil, vm.ErrUnknownMethod
}

func (p *ProxyActions) withdrawETH(msg vm.Message) error {
	account := msg.Self()
	balance, err := p.Ledger.BalanceOf(bank.NativeAsset, account)
	if err != nil {
		return err
	}
	if balance.Sign() == 0 {
		return nil
	}
	return p.Ledger.Transfer(bank.NativeAsset, account, msg.Caller, balance)
}

func (p *ProxyActions) multicall(msg vm.Message, targets []common.Address, data [][]byte) ([][]byte, error) {
	if len(targets) != len(data) {
		return nil, ErrMulticallLength
	}
	account := msg.Self()
	results := make([][]byte, len(targets))
	for i, target := range targets {
		out, err := p.Env.Call(vm.Message{Caller: account, To: target, Gas: msg.Gas, Value: new(big.Int)}, data[i])
		if err != nil {
			return nil, &MulticallError{Index: i, Target: target, Err: err}
		}
		results[i] = out
	}
	return results, nil
}
