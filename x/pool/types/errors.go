package types

import (
	"errors"
	"fmt"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/math"
)

// Input validation errors
var (
	ErrEmptyTitle              = errorsmod.Register(ModuleName, 2, "pool title must not be empty")
	ErrArrayLengthMismatch     = errorsmod.Register(ModuleName, 3, "members and percentages differ in length")
	ErrInvalidMemberPercentage = errorsmod.Register(ModuleName, 4, "member percentage out of range")
	ErrInvalidTotalPercentage  = errorsmod.Register(ModuleName, 5, "member percentages must sum below 10000")
	ErrInvalidDonationAmount   = errorsmod.Register(ModuleName, 6, "donation amount must be positive")
	ErrInvalidWithdrawalAmount = errorsmod.Register(ModuleName, 7, "withdrawal amount must be positive")
	ErrDuplicateMember         = errorsmod.Register(ModuleName, 8, "duplicate pool member")
	ErrInvalidAddress          = errorsmod.Register(ModuleName, 9, "invalid address")
)

// Authorization errors
var (
	ErrNotPoolCreator = errorsmod.Register(ModuleName, 20, "caller is not the pool creator")
	ErrNotPoolMember  = errorsmod.Register(ModuleName, 21, "caller is not a pool member")
)

// State errors
var (
	ErrPoolNotFound = errorsmod.Register(ModuleName, 30, "pool not found")
	ErrPoolInactive = errorsmod.Register(ModuleName, 31, "pool is inactive")
)

// Accounting and collaborator errors
var (
	ErrInsufficientBalance = errorsmod.Register(ModuleName, 40, "insufficient available balance")
	ErrTransferFailed      = errorsmod.Register(ModuleName, 50, "settlement transfer failed")
	ErrInvariantBroken     = errorsmod.Register(ModuleName, 60, "ledger invariant broken")
)

// Error categories
const (
	CategoryValidation    = "validation"
	CategoryAuthorization = "authorization"
	CategoryState         = "state"
	CategoryAccounting    = "accounting"
	CategoryCollaborator  = "collaborator"
	CategoryInternal      = "internal"
)

type reason struct {
	err      *errorsmod.Error
	code     string
	category string
}

// Ordered so that the most specific sentinel is matched first.
var reasons = []reason{
	{ErrEmptyTitle, "EmptyTitle", CategoryValidation},
	{ErrArrayLengthMismatch, "ArrayLengthMismatch", CategoryValidation},
	{ErrInvalidMemberPercentage, "InvalidMemberPercentage", CategoryValidation},
	{ErrInvalidTotalPercentage, "InvalidTotalPercentage", CategoryValidation},
	{ErrInvalidDonationAmount, "InvalidDonationAmount", CategoryValidation},
	{ErrInvalidWithdrawalAmount, "InvalidWithdrawalAmount", CategoryValidation},
	{ErrDuplicateMember, "DuplicateMember", CategoryValidation},
	{ErrInvalidAddress, "InvalidAddress", CategoryValidation},
	{ErrNotPoolCreator, "NotPoolCreator", CategoryAuthorization},
	{ErrNotPoolMember, "NotPoolMember", CategoryAuthorization},
	{ErrPoolNotFound, "PoolNotFound", CategoryState},
	{ErrPoolInactive, "PoolInactive", CategoryState},
	{ErrInsufficientBalance, "InsufficientBalance", CategoryAccounting},
	{ErrTransferFailed, "TransferFailed", CategoryCollaborator},
	{ErrInvariantBroken, "InvariantBroken", CategoryInternal},
}

// ReasonCode returns the stable reason name of a ledger error, or "Internal"
func ReasonCode(err error) string {
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.code
		}
	}
	return "Internal"
}

// Category returns the error family of a ledger error
func Category(err error) string {
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.category
		}
	}
	return CategoryInternal
}

// InsufficientBalanceError reports a withdrawal exceeding the caller's entitlement
type InsufficientBalanceError struct {
	Requested math.Int
	Available math.Int
}

// NewInsufficientBalanceError builds the diagnostic form of ErrInsufficientBalance
func NewInsufficientBalanceError(requested, available math.Int) *InsufficientBalanceError {
	return &InsufficientBalanceError{Requested: requested, Available: available}
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("%s: requested %s, available %s", ErrInsufficientBalance.Error(), e.Requested, e.Available)
}

// Unwrap lets errors.Is match ErrInsufficientBalance
func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// Cause is used by errorsmod.ABCIInfo to resolve the registered code
func (e *InsufficientBalanceError) Cause() error { return ErrInsufficientBalance }
