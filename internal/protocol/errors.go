// Package protocol defines the closed error taxonomy for credit operations.
// Every rejected operation maps to exactly one of these sentinels; callers
// match with errors.Is. Infrastructure failures are wrapped separately and
// never surface as protocol errors.
package protocol

import "errors"

var (
	// Shared
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidDuration = errors.New("invalid duration")

	// Tranche ledger
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")

	// Loan book
	ErrInvoiceExpired      = errors.New("invoice expired")
	ErrInvoiceNotVerified  = errors.New("invoice not verified")
	ErrLoanAlreadyExists   = errors.New("loan already exists")
	ErrNotInvoiceSupplier  = errors.New("not invoice supplier")
	ErrLoanAlreadySettled  = errors.New("loan already settled")
	ErrLoanNotOverdue      = errors.New("loan not overdue")
	ErrLoanOverdue         = errors.New("loan overdue")
	ErrNotLoanOwner        = errors.New("not loan owner")
	ErrInvalidBorrowAmount = errors.New("invalid borrow amount")

	// Collateral registry
	ErrNoStakedTokensFound   = errors.New("no staked tokens found")
	ErrStakingPeriodNotEnded = errors.New("staking period not ended")
	ErrNoStakeFound          = errors.New("no stake found")
)
