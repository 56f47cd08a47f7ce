package actions

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrCallerNotLendingPool   = errors.New("actions: caller is not the lending pool")
	ErrInitiatorNotAuthorized = errors.New("actions: flashloan initiator not authorized")
	ErrInvalidAggregator      = errors.New("actions: invalid aggregator")
	ErrCannotRepayFlashloan   = errors.New("actions: cannot repay flashloan")
	ErrInvalidAmount          = errors.New("actions: amount must be positive")
	ErrMulticallLength        = errors.New("actions: targets and data length mismatch")
	ErrNoValue                = errors.New("actions: call requires attached value")
	errNilCollaborator        = errors.New("actions: collaborator not configured")
)

// CallerNotLendingPoolError is returned when a flashloan callback does not
// come from the configured pool.
type CallerNotLendingPoolError struct {
	Caller common.Address
	Pool   common.Address
}

func (e *CallerNotLendingPoolError) Error() string {
	return fmt.Sprintf("%s (caller %s, pool %s)", ErrCallerNotLendingPool, e.Caller.Hex(), e.Pool.Hex())
}

func (e *CallerNotLendingPoolError) Unwrap() error { return ErrCallerNotLendingPool }

// InitiatorNotAuthorizedError is returned when a flashloan callback was
// requested by someone other than the expected account or module.
type InitiatorNotAuthorizedError struct {
	Initiator common.Address
	Expected  common.Address
}

func (e *InitiatorNotAuthorizedError) Error() string {
	return fmt.Sprintf("%s (initiator %s, expected %s)", ErrInitiatorNotAuthorized, e.Initiator.Hex(), e.Expected.Hex())
}

func (e *InitiatorNotAuthorizedError) Unwrap() error { return ErrInitiatorNotAuthorized }

// MulticallError reports which call of a multicall failed.
type MulticallError struct {
	Index  int
	Target common.Address
	Err    error
}

func (e *MulticallError) Error() string {
	return fmt.Sprintf("actions: multicall %d to %s: %v", e.Index, e.Target.Hex(), e.Err)
}

func (e *MulticallError) Unwrap() error { return e.Err }
