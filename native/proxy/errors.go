package proxy

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"cdpproxy/core/vm"
)

var (
	ErrUnauthorizedCaller     = errors.New("proxy: unauthorized caller")
	ErrAlreadyInitialized     = errors.New("proxy: guard already initialized")
	ErrGuardNotInitialized    = errors.New("proxy: guard not initialized")
	ErrExecutionNotAuthorized = errors.New("proxy: execution not authorized")
	ErrTargetInvalid          = errors.New("proxy: target invalid")
	ErrExecutionReverted      = errors.New("proxy: execution reverted")
	ErrAlreadyOwner           = errors.New("proxy: already owner")
	ErrCallerNotPendingOwner  = errors.New("proxy: caller not pending owner")
	ErrBatchValueMismatch     = errors.New("proxy: batch call values do not sum to the attached value")
	ErrAccountNotFound        = errors.New("proxy: account not found")
)

// ExecutionNotAuthorizedError is returned when a non-owner calls execute
// without a matching guard permission.
type ExecutionNotAuthorizedError struct {
	Owner    common.Address
	Caller   common.Address
	Target   common.Address
	Selector vm.Selector
}

func (e *ExecutionNotAuthorizedError) Error() string {
	return fmt.Sprintf("%s (owner %s, caller %s, target %s, selector %s)",
		ErrExecutionNotAuthorized, e.Owner.Hex(), e.Caller.Hex(), e.Target.Hex(), e.Selector.Hex())
}

func (e *ExecutionNotAuthorizedError) Unwrap() error { return ErrExecutionNotAuthorized }

type TargetInvalidError struct {
	Target common.Address
}

func (e *TargetInvalidError) Error() string {
	return fmt.Sprintf("%s (%s)", ErrTargetInvalid, e.Target.Hex())
}

func (e *TargetInvalidError) Unwrap() error { return ErrTargetInvalid }

// AlreadyOwnerError names the address that already owns an account and that
// account.
type AlreadyOwnerError struct {
	Owner   common.Address
	Account common.Address
}

func (e *AlreadyOwnerError) Error() string {
	return fmt.Sprintf("%s (owner %s, account %s)", ErrAlreadyOwner, e.Owner.Hex(), e.Account.Hex())
}

func (e *AlreadyOwnerError) Unwrap() error { return ErrAlreadyOwner }

type CallerNotPendingOwnerError struct {
	Caller       common.Address
	PendingOwner common.Address
}

func (e *CallerNotPendingOwnerError) Error() string {
	return fmt.Sprintf("%s (caller %s, pending owner %s)", ErrCallerNotPendingOwner, e.Caller.Hex(), e.PendingOwner.Hex())
}

func (e *CallerNotPendingOwnerError) Unwrap() error { return ErrCallerNotPendingOwner }

// BatchCallError reports which call of a reverting batch failed.
type BatchCallError struct {
	Index int
	Err   error
}

func (e *BatchCallError) Error() string {
	return fmt.Sprintf("proxy: batch call %d: %v", e.Index, e.Err)
}

func (e *BatchCallError) Unwrap() error { return e.Err }
