package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// InvariantValidator checks ledger invariants
type InvariantValidator struct {
	tracker *BalanceTracker
}

func NewInvariantValidator(tracker *BalanceTracker) *InvariantValidator {
	return &InvariantValidator{
		tracker: tracker,
	}
}

// ValidateBatchBalance verifies batch is balanced
func (v *InvariantValidator) ValidateBatchBalance(batch *Batch) error {
	return batch.Validate()
}

// ValidateGlobalBalance verifies the ledger is zero-sum per asset
func (v *InvariantValidator) ValidateGlobalBalance() error {
	totals := v.tracker.ComputeGlobalBalance()

	for assetID, total := range totals {
		if total != 0 {
			assetName, _ := GetAssetName(assetID)
			return fmt.Errorf("global balance for %s is non-zero: %d", assetName, total)
		}
	}

	return nil
}

// ValidateTrancheNonNegative checks a user's tranche principal >= 0
func (v *InvariantValidator) ValidateTrancheNonNegative(userID uuid.UUID, subType AccountSubType) error {
	key := NewUserAccountKey(userID, subType, AssetUSDX)
	return v.tracker.ValidateNonNegative(key)
}

// ValidateStakedNonNegative checks a user's staked collateral >= 0
func (v *InvariantValidator) ValidateStakedNonNegative(ownerID uuid.UUID) error {
	key := NewUserAccountKey(ownerID, SubTypeStaked, AssetCLT)
	return v.tracker.ValidateNonNegative(key)
}

// ValidateTrancheAggregate cross-checks the ledger's per-tranche user totals
// against a component-reported aggregate.
func (v *InvariantValidator) ValidateTrancheAggregate(subType AccountSubType, reported int64) error {
	ledgerTotal := v.tracker.SumUserBalances(subType, AssetUSDX)
	if ledgerTotal != reported {
		return fmt.Errorf("tranche aggregate mismatch: ledger=%d, component=%d", ledgerTotal, reported)
	}
	return nil
}

// ValidateLiquidityConservation verifies the pool never lends more than it holds
func (v *InvariantValidator) ValidateLiquidityConservation(totalDeposited, totalBorrowed int64) error {
	if totalBorrowed > totalDeposited {
		return fmt.Errorf("liquidity conservation violated: borrowed=%d > deposited=%d",
			totalBorrowed, totalDeposited)
	}
	return nil
}
