package common

import (
	"errors"
	"fmt"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

var (
	// ErrCannotSetToAddressZero rejects zero addresses where a collaborator
	// or recipient is required.
	ErrCannotSetToAddressZero = errors.New("cannot set to address zero")
	ErrNotOwner               = errors.New("not owner")
)

// NotOwnerError reports an owner-restricted call made by someone else.
type NotOwnerError struct {
	Owner  ethcommon.Address
	Caller ethcommon.Address
}

func (e *NotOwnerError) Error() string {
	return fmt.Sprintf("not owner (owner %s, caller %s)", e.Owner.Hex(), e.Caller.Hex())
}

func (e *NotOwnerError) Unwrap() error { return ErrNotOwner }

// RequireNonZero fails with ErrCannotSetToAddressZero when any address is zero.
func RequireNonZero(addrs ...ethcommon.Address) error {
	for _, addr := range addrs {
		if addr == (ethcommon.Address{}) {
			return ErrCannotSetToAddressZero
		}
	}
	return nil
}
