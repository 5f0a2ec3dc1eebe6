package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// System account names. "pool" holds the lending pool's fee and interest
// reserves; "treasury" receives slashed collateral.
const (
	SystemPool     = "pool"
	SystemTreasury = "treasury"
)

// JournalGenerator creates balanced journal batches from operations
type JournalGenerator struct {
	sequence       int64
	balanceTracker *BalanceTracker // Add reference for pre-checks
}

func NewJournalGenerator(startSequence int64, tracker *BalanceTracker) *JournalGenerator {
	return &JournalGenerator{
		sequence:       startSequence,
		balanceTracker: tracker,
	}
}

func (jg *JournalGenerator) newBatch(opRef string, timestamp int64, capacity int) *Batch {
	return &Batch{
		BatchID:   uuid.New(),
		OpRef:     opRef,
		Sequence:  jg.sequence,
		Timestamp: timestamp,
		Journals:  make([]Journal, 0, capacity),
	}
}

func (jg *JournalGenerator) appendJournal(b *Batch, debit, credit AccountKey, amount int64, jt JournalType) {
	b.Journals = append(b.Journals, Journal{
		JournalID:     uuid.New(),
		BatchID:       b.BatchID,
		OpRef:         b.OpRef,
		Sequence:      jg.sequence,
		DebitAccount:  debit,
		CreditAccount: credit,
		AssetID:       debit.AssetID,
		Amount:        amount,
		JournalType:   jt,
		Timestamp:     b.Timestamp,
	})
}

// GenerateTrancheDeposit creates journals for an LP funding deposit.
// Moves funds: external:deposits → user:tranche_{junior|senior}
func (jg *JournalGenerator) GenerateTrancheDeposit(
	userID uuid.UUID,
	opRef string,
	trancheSubType AccountSubType,
	amount int64,
	timestamp int64,
) (*Batch, error) {
	batch := jg.newBatch(opRef, timestamp, 1)

	jg.appendJournal(batch,
		NewUserAccountKey(userID, trancheSubType, AssetUSDX),
		NewExternalAccountKey(SubTypeExternalDeposits, AssetUSDX),
		amount,
		JournalTypeTrancheDeposit,
	)

	jg.sequence++
	return batch, nil
}

// GenerateTrancheWithdrawal creates journals for an LP principal withdrawal.
// Pre-check: user must hold sufficient live principal in the tranche.
// Moves funds: user:tranche_X → external:withdrawals
func (jg *JournalGenerator) GenerateTrancheWithdrawal(
	userID uuid.UUID,
	opRef string,
	trancheSubType AccountSubType,
	amount int64,
	timestamp int64,
) (*Batch, error) {
	trancheKey := NewUserAccountKey(userID, trancheSubType, AssetUSDX)
	if err := jg.balanceTracker.ValidateSufficientBalance(trancheKey, amount); err != nil {
		return nil, fmt.Errorf("withdrawal pre-check failed: %w", err)
	}

	batch := jg.newBatch(opRef, timestamp, 1)

	jg.appendJournal(batch,
		NewExternalAccountKey(SubTypeExternalWithdrawals, AssetUSDX),
		trancheKey,
		amount,
		JournalTypeTrancheWithdrawal,
	)

	jg.sequence++
	return batch, nil
}

// GenerateInterestPayout creates journals for an LP interest withdrawal.
// Pre-check: the interest reserve must cover the payout.
// Moves funds: system:interest_reserve → external:withdrawals
func (jg *JournalGenerator) GenerateInterestPayout(
	userID uuid.UUID,
	opRef string,
	amount int64,
	timestamp int64,
) (*Batch, error) {
	reserveKey := NewSystemAccountKey(SystemPool, SubTypeSystemInterestReserve, AssetUSDX)
	if err := jg.balanceTracker.ValidateSufficientBalance(reserveKey, amount); err != nil {
		return nil, fmt.Errorf("interest payout pre-check failed: %w", err)
	}

	batch := jg.newBatch(opRef, timestamp, 1)

	jg.appendJournal(batch,
		NewExternalAccountKey(SubTypeExternalWithdrawals, AssetUSDX),
		reserveKey,
		amount,
		JournalTypeInterestPayout,
	)

	jg.sequence++
	return batch, nil
}

// GenerateLoanDisbursement creates journals for a borrow against an invoice.
// Moves funds: external:disbursements → borrower:loan_outstanding
// (the loan account carries the borrower's outstanding debt as a debit balance).
func (jg *JournalGenerator) GenerateLoanDisbursement(
	borrowerID uuid.UUID,
	opRef string,
	amount int64,
	timestamp int64,
) (*Batch, error) {
	batch := jg.newBatch(opRef, timestamp, 1)

	jg.appendJournal(batch,
		NewUserAccountKey(borrowerID, SubTypeLoanOutstanding, AssetUSDX),
		NewExternalAccountKey(SubTypeExternalDisbursements, AssetUSDX),
		amount,
		JournalTypeLoanDisburse,
	)

	jg.sequence++
	return batch, nil
}

// GenerateLoanRepayment creates journals for a full repayment:
// principal reversal plus interest split between the LP reserve and the
// protocol fee skim.
func (jg *JournalGenerator) GenerateLoanRepayment(
	borrowerID uuid.UUID,
	opRef string,
	principal int64,
	interestLP int64,
	interestFee int64,
	timestamp int64,
) (*Batch, error) {
	loanKey := NewUserAccountKey(borrowerID, SubTypeLoanOutstanding, AssetUSDX)
	if err := jg.balanceTracker.ValidateSufficientBalance(loanKey, principal); err != nil {
		return nil, fmt.Errorf("repayment pre-check failed: %w", err)
	}

	batch := jg.newBatch(opRef, timestamp, 3)

	jg.appendJournal(batch,
		NewExternalAccountKey(SubTypeExternalDisbursements, AssetUSDX),
		loanKey,
		principal,
		JournalTypeLoanRepayPrincipal,
	)

	if interestLP > 0 {
		jg.appendJournal(batch,
			NewSystemAccountKey(SystemPool, SubTypeSystemInterestReserve, AssetUSDX),
			NewExternalAccountKey(SubTypeExternalRepayments, AssetUSDX),
			interestLP,
			JournalTypeLoanRepayInterest,
		)
	}

	if interestFee > 0 {
		jg.appendJournal(batch,
			NewSystemAccountKey(SystemPool, SubTypeSystemFees, AssetUSDX),
			NewExternalAccountKey(SubTypeExternalRepayments, AssetUSDX),
			interestFee,
			JournalTypeFeeSkim,
		)
	}

	jg.sequence++
	return batch, nil
}

// GenerateStakeDeposit creates journals for locking collateral tokens.
// Moves funds: external:collateral_in → user:staked
func (jg *JournalGenerator) GenerateStakeDeposit(
	ownerID uuid.UUID,
	opRef string,
	amount int64,
	timestamp int64,
) (*Batch, error) {
	batch := jg.newBatch(opRef, timestamp, 1)

	jg.appendJournal(batch,
		NewUserAccountKey(ownerID, SubTypeStaked, AssetCLT),
		NewExternalAccountKey(SubTypeExternalCollateralIn, AssetCLT),
		amount,
		JournalTypeStakeDeposit,
	)

	jg.sequence++
	return batch, nil
}

// GenerateStakeRelease creates journals for returning matured collateral.
// Pre-check: user must hold the staked amount.
// Moves funds: user:staked → external:collateral_out
func (jg *JournalGenerator) GenerateStakeRelease(
	ownerID uuid.UUID,
	opRef string,
	amount int64,
	timestamp int64,
) (*Batch, error) {
	stakedKey := NewUserAccountKey(ownerID, SubTypeStaked, AssetCLT)
	if err := jg.balanceTracker.ValidateSufficientBalance(stakedKey, amount); err != nil {
		return nil, fmt.Errorf("stake release pre-check failed: %w", err)
	}

	batch := jg.newBatch(opRef, timestamp, 1)

	jg.appendJournal(batch,
		NewExternalAccountKey(SubTypeExternalCollateralOut, AssetCLT),
		stakedKey,
		amount,
		JournalTypeStakeRelease,
	)

	jg.sequence++
	return batch, nil
}

// GenerateRewardClaim creates journals for paying out staking rewards.
// The reward pool account carries cumulative reward liability as a negative
// balance; payouts are not funded from user deposits.
func (jg *JournalGenerator) GenerateRewardClaim(
	ownerID uuid.UUID,
	opRef string,
	amount int64,
	timestamp int64,
) (*Batch, error) {
	batch := jg.newBatch(opRef, timestamp, 1)

	jg.appendJournal(batch,
		NewExternalAccountKey(SubTypeExternalRewardPayouts, AssetUSDX),
		NewSystemAccountKey(SystemPool, SubTypeSystemRewardPool, AssetUSDX),
		amount,
		JournalTypeRewardClaim,
	)

	jg.sequence++
	return batch, nil
}

// GenerateFeeWithdrawal creates journals for sweeping accumulated fee skim.
// Pre-check: fees account must cover the sweep.
func (jg *JournalGenerator) GenerateFeeWithdrawal(
	opRef string,
	amount int64,
	timestamp int64,
) (*Batch, error) {
	feeKey := NewSystemAccountKey(SystemPool, SubTypeSystemFees, AssetUSDX)
	if err := jg.balanceTracker.ValidateSufficientBalance(feeKey, amount); err != nil {
		return nil, fmt.Errorf("fee withdrawal pre-check failed: %w", err)
	}

	batch := jg.newBatch(opRef, timestamp, 1)

	jg.appendJournal(batch,
		NewExternalAccountKey(SubTypeExternalWithdrawals, AssetUSDX),
		feeKey,
		amount,
		JournalTypeFeeWithdrawal,
	)

	jg.sequence++
	return batch, nil
}

// AbsorptionLeg is one LP's share of an absorbed liquidation loss.
type AbsorptionLeg struct {
	UserID         uuid.UUID
	TrancheSubType AccountSubType
	Amount         int64
}

// GenerateLiquidation creates the single atomic batch for a defaulted loan:
// the debt write-off, the per-LP tranche write-downs, and the collateral
// slash. All legs succeed or fail together.
func (jg *JournalGenerator) GenerateLiquidation(
	borrowerID uuid.UUID,
	opRef string,
	owed int64,
	absorptions []AbsorptionLeg,
	slashAmount int64,
	timestamp int64,
) (*Batch, error) {
	loanKey := NewUserAccountKey(borrowerID, SubTypeLoanOutstanding, AssetUSDX)
	if err := jg.balanceTracker.ValidateSufficientBalance(loanKey, owed); err != nil {
		return nil, fmt.Errorf("liquidation pre-check failed: %w", err)
	}

	batch := jg.newBatch(opRef, timestamp, 2+len(absorptions))

	jg.appendJournal(batch,
		NewExternalAccountKey(SubTypeExternalWriteOffs, AssetUSDX),
		loanKey,
		owed,
		JournalTypeLoanWriteOff,
	)

	lossKey := NewSystemAccountKey(SystemPool, SubTypeSystemLossReserve, AssetUSDX)
	for _, leg := range absorptions {
		if leg.Amount <= 0 {
			continue
		}
		jg.appendJournal(batch,
			lossKey,
			NewUserAccountKey(leg.UserID, leg.TrancheSubType, AssetUSDX),
			leg.Amount,
			JournalTypeLossAbsorption,
		)
	}

	if slashAmount > 0 {
		jg.appendJournal(batch,
			NewSystemAccountKey(SystemTreasury, SubTypeSystemSlashedCollateral, AssetCLT),
			NewUserAccountKey(borrowerID, SubTypeStaked, AssetCLT),
			slashAmount,
			JournalTypeCollateralSlash,
		)
	}

	jg.sequence++
	return batch, nil
}

// Sequence returns the next sequence the generator will assign.
func (jg *JournalGenerator) Sequence() int64 {
	return jg.sequence
}

// SetSequence resets the generator sequence (snapshot restore).
func (jg *JournalGenerator) SetSequence(seq int64) {
	jg.sequence = seq
}
