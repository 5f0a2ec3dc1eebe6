package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// BalanceTracker maintains in-memory account balances
type BalanceTracker struct {
	balances map[AccountKey]int64
}

func NewBalanceTracker() *BalanceTracker {
	return &BalanceTracker{
		balances: make(map[AccountKey]int64),
	}
}

// ApplyJournal applies a single journal entry to balances
func (bt *BalanceTracker) ApplyJournal(j Journal) {
	bt.balances[j.DebitAccount] += j.Amount
	bt.balances[j.CreditAccount] -= j.Amount
}

// ApplyBatch applies all journals in a batch
func (bt *BalanceTracker) ApplyBatch(batch *Batch) error {
	if err := batch.Validate(); err != nil {
		return fmt.Errorf("invalid batch: %w", err)
	}

	for _, j := range batch.Journals {
		bt.ApplyJournal(j)
	}

	return nil
}

// GetBalance returns the current balance for an account
func (bt *BalanceTracker) GetBalance(key AccountKey) int64 {
	return bt.balances[key]
}

// === User Balance Queries ===

// GetTrancheBalance returns a user's live principal in one tranche
func (bt *BalanceTracker) GetTrancheBalance(userID uuid.UUID, subType AccountSubType) int64 {
	return bt.GetBalance(NewUserAccountKey(userID, subType, AssetUSDX))
}

// GetUserTotalPrincipal returns combined live principal across both tranches
func (bt *BalanceTracker) GetUserTotalPrincipal(userID uuid.UUID) int64 {
	junior := bt.GetTrancheBalance(userID, SubTypeTrancheJunior)
	senior := bt.GetTrancheBalance(userID, SubTypeTrancheSenior)
	return junior + senior
}

// GetLoanOutstanding returns a borrower's outstanding disbursed principal
func (bt *BalanceTracker) GetLoanOutstanding(borrowerID uuid.UUID) int64 {
	return bt.GetBalance(NewUserAccountKey(borrowerID, SubTypeLoanOutstanding, AssetUSDX))
}

// GetStakedBalance returns a user's active staked collateral
func (bt *BalanceTracker) GetStakedBalance(ownerID uuid.UUID) int64 {
	return bt.GetBalance(NewUserAccountKey(ownerID, SubTypeStaked, AssetCLT))
}

// === System Balance Queries ===

// GetInterestReserve returns undistributed repaid interest owed to LPs
func (bt *BalanceTracker) GetInterestReserve() int64 {
	return bt.GetBalance(NewSystemAccountKey("pool", SubTypeSystemInterestReserve, AssetUSDX))
}

// GetFeeBalance returns accumulated protocol fee skim
func (bt *BalanceTracker) GetFeeBalance() int64 {
	return bt.GetBalance(NewSystemAccountKey("pool", SubTypeSystemFees, AssetUSDX))
}

// GetSlashedCollateral returns total collateral seized to the treasury
func (bt *BalanceTracker) GetSlashedCollateral() int64 {
	return bt.GetBalance(NewSystemAccountKey("treasury", SubTypeSystemSlashedCollateral, AssetCLT))
}

// === Invariant Checks ===

// ValidateSufficientBalance checks an account holds at least the required amount
func (bt *BalanceTracker) ValidateSufficientBalance(key AccountKey, required int64) error {
	balance := bt.GetBalance(key)
	if balance < required {
		return fmt.Errorf("insufficient balance on %s: have=%d, need=%d",
			key.AccountPath(), balance, required)
	}
	return nil
}

// ValidateNonNegative checks that a specific account balance is >= 0
func (bt *BalanceTracker) ValidateNonNegative(key AccountKey) error {
	balance := bt.GetBalance(key)
	if balance < 0 {
		return fmt.Errorf("account %s has negative balance: %d", key.AccountPath(), balance)
	}
	return nil
}

// ComputeGlobalBalance sums all account balances (should be 0 for zero-sum ledger)
func (bt *BalanceTracker) ComputeGlobalBalance() map[AssetID]int64 {
	totals := make(map[AssetID]int64)

	for key, balance := range bt.balances {
		totals[key.AssetID] += balance
	}

	return totals
}

// SumUserBalances totals one sub-type across all user accounts.
// Used to cross-check component aggregates against the ledger.
func (bt *BalanceTracker) SumUserBalances(subType AccountSubType, assetID AssetID) int64 {
	var total int64
	for key, balance := range bt.balances {
		if key.Scope == AccountScopeUser && key.SubType == subType && key.AssetID == assetID {
			total += balance
		}
	}
	return total
}

// SetBalance directly sets one account balance (snapshot restore)
func (bt *BalanceTracker) SetBalance(key AccountKey, balance int64) {
	bt.balances[key] = balance
}

// Snapshot returns a copy of all balances (for state hashing)
func (bt *BalanceTracker) Snapshot() map[AccountKey]int64 {
	snapshot := make(map[AccountKey]int64, len(bt.balances))
	for k, v := range bt.balances {
		snapshot[k] = v
	}
	return snapshot
}
