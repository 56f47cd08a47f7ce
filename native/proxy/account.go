package proxy

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"cdpproxy/core/events"
	"cdpproxy/core/vm"
)

// Account is the code shared by every smart account. The account address is
// msg.To; owner, guard and gas floor come from the registry.
type Account struct {
	reg *Registry
}

// BatchCall is one entry of a batch. Value is the part of the attached
// native value this call hands to its module.
type BatchCall struct {
	Target common.Address
	Data   []byte
	Value  *big.Int
}

// Execute delegates data to the module at target in the account's context.
// Callers other than the owner need a guard permission for the selector.
// Any attached value must already sit in the account's native balance.
func (a *Account) Execute(msg vm.Message, target common.Address, data []byte) ([]byte, error) {
	var out []byte
	err := a.reg.env.Apply(func() error {
		var err error
		out, err = a.execute(msg, target, data)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (a *Account) execute(msg vm.Message, target common.Address, data []byte) ([]byte, error) {
	account := msg.To
	ps, err := a.reg.ProxyState(account)
	if err != nil {
		return nil, err
	}
	if ps.Owner == (common.Address{}) {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, account.Hex())
	}
	if target == account {
		return nil, &TargetInvalidError{Target: target}
	}
	impl, ok := a.reg.env.Resolve(target)
	if !ok {
		return nil, &TargetInvalidError{Target: target}
	}
	if _, ok := impl.(vm.Delegate); !ok {
		return nil, &TargetInvalidError{Target: target}
	}

	sel := vm.SelectorFromData(data)
	if msg.Caller != ps.Owner && !a.reg.guard.Permission(ps.Guard, msg.Caller, target, sel) {
		return nil, &ExecutionNotAuthorizedError{Owner: ps.Owner, Caller: msg.Caller, Target: target, Selector: sel}
	}
	// The module must get strictly more than the floor so a starved
	// intermediate cannot make a skipped check look like success.
	if msg.Gas <= ps.MinGas {
		return nil, fmt.Errorf("%w: gas %d does not exceed floor %d", ErrExecutionReverted, msg.Gas, ps.MinGas)
	}

	out, err := a.reg.env.DelegateCall(vm.Message{
		Caller:  msg.Caller,
		Context: account,
		Value:   msg.Value,
		Gas:     msg.Gas - ps.MinGas,
	}, target, data)
	if err != nil {
		return nil, err
	}
	a.reg.env.Emit(events.ProxyExecuted{Account: account, Caller: msg.Caller, Target: target, Selector: sel})
	return out, nil
}

// Batch runs calls in order, each as an Execute by the original caller. With
// revertOnFail the first failure undoes the whole batch; otherwise only the
// failing call is undone and its result is nil. The per-call values must add
// up to the attached value so value is never spent twice.
func (a *Account) Batch(msg vm.Message, calls []BatchCall, revertOnFail bool) ([][]byte, error) {
	total := new(big.Int)
	for _, call := range calls {
		if call.Value != nil {
			if call.Value.Sign() < 0 {
				return nil, ErrBatchValueMismatch
			}
			total.Add(total, call.Value)
		}
	}
	if total.Cmp(msg.CallValue()) != 0 {
		return nil, fmt.Errorf("%w: calls carry %s, attached %s", ErrBatchValueMismatch, total, msg.CallValue())
	}

	results := make([][]byte, len(calls))
	err := a.reg.env.Apply(func() error {
		for i, call := range calls {
			sub := msg
			sub.Value = call.Value
			out, err := a.Execute(sub, call.Target, call.Data)
			if err != nil {
				if revertOnFail {
					return &BatchCallError{Index: i, Err: err}
				}
				continue
			}
			results[i] = out
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}
