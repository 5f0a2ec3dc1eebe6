package query

import (
	"github.com/google/uuid"
)

// BalanceResponse represents a user's pool balances for API queries.
type BalanceResponse struct {
	UserID uuid.UUID `json:"user_id"`

	// Ledger balances (from journal entries)
	JuniorPrincipal  int64 `json:"junior_principal"`  // junior tranche deposits, USDX
	SeniorPrincipal  int64 `json:"senior_principal"`  // senior tranche deposits, USDX
	StakedCollateral int64 `json:"staked_collateral"` // time-locked CLT

	// Metadata
	AsOfSequence int64 `json:"as_of_sequence"` // last applied operation sequence
}

// StakeUsageResponse splits a borrower's staked collateral between the
// share earmarked against outstanding loans and the free remainder.
// Derived from the projected staked and loan balances: the earmark is the
// smaller of staked collateral and outstanding loan principal.
type StakeUsageResponse struct {
	UserID          uuid.UUID `json:"user_id"`
	Staked          int64     `json:"staked"`            // active CLT collateral
	LockedForBorrow int64     `json:"locked_for_borrow"` // earmarked against open loans
	Free            int64     `json:"free"`

	AsOfSequence int64 `json:"as_of_sequence"`
}

// PoolStatsResponse contains pool-wide aggregates derived from the
// system account balances.
type PoolStatsResponse struct {
	JuniorTotal       int64 `json:"junior_total"`
	SeniorTotal       int64 `json:"senior_total"`
	LoanOutstanding   int64 `json:"loan_outstanding"`
	InterestReserve   int64 `json:"interest_reserve"`
	FeeBalance        int64 `json:"fee_balance"`
	RewardPool        int64 `json:"reward_pool"`
	SlashedCollateral int64 `json:"slashed_collateral"`

	// Derived: loan_outstanding / (junior + senior + loan_outstanding), bps
	UtilizationBps int64 `json:"utilization_bps"`

	AsOfSequence int64 `json:"as_of_sequence"`
}
