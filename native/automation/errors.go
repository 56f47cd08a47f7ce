package automation

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrVaultNotInitialized            = errors.New("automation: vault not initialized")
	ErrCallerNotVaultOwner            = errors.New("automation: caller is not the vault owner")
	ErrVariableFeeTooHigh             = errors.New("automation: variable fee too high")
	ErrVaultNotAutomated              = errors.New("automation: vault not automated")
	ErrVaultNotUnderManagement        = errors.New("automation: vault not under management")
	ErrManagerNotListed               = errors.New("automation: manager not listed")
	ErrCallerNotSelectedManager       = errors.New("automation: caller is not the selected manager")
	ErrCallerNotProtocolManager       = errors.New("automation: caller is not a protocol manager")
	ErrRebalanceAmountCannotBeZero    = errors.New("automation: rebalance amount cannot be zero")
	ErrMintAmountGreaterThanVaultDebt = errors.New("automation: mint amount greater than vault debt")
	ErrVaultTriggerRatioNotReached    = errors.New("automation: vault trigger ratio not reached")
	ErrFinalVaultRatioTooLow          = errors.New("automation: final vault ratio too low")
	ErrVaultValueChangeTooHigh        = errors.New("automation: vault value change too high")
	ErrFlashloanAssetMismatch         = errors.New("automation: flashloan asset is not the vault collateral")
)

type VaultNotInitializedError struct {
	VaultID uint64
}

func (e *VaultNotInitializedError) Error() string {
	return fmt.Sprintf("%s (vault %d)", ErrVaultNotInitialized, e.VaultID)
}

func (e *VaultNotInitializedError) Unwrap() error { return ErrVaultNotInitialized }

// CallerNotVaultOwnerError names the account acting for the caller and the
// vault's real owner.
type CallerNotVaultOwnerError struct {
	Caller     common.Address
	VaultOwner common.Address
}

func (e *CallerNotVaultOwnerError) Error() string {
	return fmt.Sprintf("%s (caller %s, owner %s)", ErrCallerNotVaultOwner, e.Caller.Hex(), e.VaultOwner.Hex())
}

func (e *CallerNotVaultOwnerError) Unwrap() error { return ErrCallerNotVaultOwner }

type VariableFeeTooHighError struct {
	Max    *big.Int
	VarFee *big.Int
}

func (e *VariableFeeTooHighError) Error() string {
	return fmt.Sprintf("%s (max %s, got %s)", ErrVariableFeeTooHigh, e.Max, e.VarFee)
}

func (e *VariableFeeTooHighError) Unwrap() error { return ErrVariableFeeTooHigh }

type VaultTriggerRatioNotReachedError struct {
	Current *big.Int
	Trigger *big.Int
}

func (e *VaultTriggerRatioNotReachedError) Error() string {
	return fmt.Sprintf("%s (current %s, trigger %s)", ErrVaultTriggerRatioNotReached, e.Current, e.Trigger)
}

func (e *VaultTriggerRatioNotReachedError) Unwrap() error { return ErrVaultTriggerRatioNotReached }

// FinalVaultRatioTooLowError carries the floor a vault had to reach and the
// ratio it ended at.
type FinalVaultRatioTooLowError struct {
	Floor    *big.Int
	Achieved *big.Int
}

func (e *FinalVaultRatioTooLowError) Error() string {
	return fmt.Sprintf("%s (floor %s, achieved %s)", ErrFinalVaultRatioTooLow, e.Floor, e.Achieved)
}

func (e *FinalVaultRatioTooLowError) Unwrap() error { return ErrFinalVaultRatioTooLow }

var errNilCollaborator = errors.New("automation: collaborator not configured")
