package core

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"CrediLedger/internal/assets"
	"CrediLedger/internal/creditmath"
	"CrediLedger/internal/ledger"
	"CrediLedger/internal/loan"
	"CrediLedger/internal/observability"
	"CrediLedger/internal/op"
	"CrediLedger/internal/params"
	"CrediLedger/internal/protocol"
	"CrediLedger/internal/staking"
	"CrediLedger/internal/tranche"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// CreditCore is the single-threaded operation processor. All pool state
// lives behind it; external settlement calls run only after its own
// bookkeeping is final.
type CreditCore struct {
	sequence          int64
	hasher            *StateHasher
	balanceTracker    *ledger.BalanceTracker
	journalGen        *ledger.JournalGenerator
	validator         *ledger.InvariantValidator
	tranches          *tranche.Ledger
	stakingReg        *staking.Registry
	loanBook          *loan.Book
	waterfall         *loan.Waterfall
	paramsMgr         *params.Manager
	assetLink         assets.AssetLink
	receivables       assets.ReceivableRegistry
	access            assets.AccessController
	guard             *ReentrancyGuard
	idempotency       *IdempotencyChecker
	sequenceValidator *SequenceValidator
	replaying         bool
	metrics           *observability.Metrics
	logger            zerolog.Logger

	persistChan    chan<- CoreOutput
	projectionChan chan<- CoreOutput
}

type CoreOutput struct {
	Envelope   *op.Envelope
	Batch      *ledger.Batch
	StateDelta []byte
}

// effect is a deferred external settlement call. Handlers return effects
// instead of calling collaborators directly so every external interaction
// happens after invariant post-checks pass.
type effect func() error

func NewCreditCore(
	startSequence int64,
	persistChan, projectionChan chan<- CoreOutput,
	dbChecker DBIdempotencyChecker,
	assetLink assets.AssetLink,
	receivables assets.ReceivableRegistry,
	access assets.AccessController,
	metrics *observability.Metrics,
) *CreditCore {
	balanceTracker := ledger.NewBalanceTracker()
	validator := ledger.NewInvariantValidator(balanceTracker)
	journalGen := ledger.NewJournalGenerator(startSequence, balanceTracker)
	tranches := tranche.NewLedger()

	// Initialize with capacity of 1M entries (configurable)
	idempotencyChecker := NewIdempotencyChecker(1_000_000, dbChecker)
	sequenceValidator := NewSequenceValidator()

	return &CreditCore{
		sequence:          startSequence,
		hasher:            NewStateHasher(),
		balanceTracker:    balanceTracker,
		journalGen:        journalGen,
		validator:         validator,
		tranches:          tranches,
		stakingReg:        staking.NewRegistry(),
		loanBook:          loan.NewBook(),
		waterfall:         loan.NewWaterfall(tranches),
		paramsMgr:         params.NewManager(),
		assetLink:         assetLink,
		receivables:       receivables,
		access:            access,
		guard:             NewReentrancyGuard(),
		idempotency:       idempotencyChecker,
		sequenceValidator: sequenceValidator,
		metrics:           metrics,
		logger:            observability.NewLogger("core"),
		persistChan:       persistChan,
		projectionChan:    projectionChan,
	}
}

// ProcessOperation is the main processing pipeline
func (c *CreditCore) ProcessOperation(o op.Operation) error {
	if err := c.guard.Enter(); err != nil {
		return err
	}
	defer c.guard.Exit()

	start := time.Now()
	opType := o.OpType().String()
	idempotencyKey := o.IdempotencyKey()

	// Step 1: Idempotency check (two-tier). Skipped during replay: every
	// replayed operation is by definition already in the log, and the log
	// is the source of truth being re-applied.
	isDuplicate := false
	if !c.replaying {
		isDuplicate = c.idempotency.IsDuplicate(opType, idempotencyKey)
	}

	// Step 2: Sequence validation
	partition := o.Partition()
	if err := c.sequenceValidator.ValidateSequence(partition, o.SourceSequence(), idempotencyKey, isDuplicate); err != nil {
		return fmt.Errorf("sequence validation failed: %w", err)
	}

	// If duplicate, skip processing
	if isDuplicate {
		if c.metrics != nil {
			c.metrics.CoreOpsRejected.WithLabelValues(opType, "duplicate").Inc()
		}
		return nil
	}

	// Step 3: Dispatch - protocol checks, component mutation, batch generation
	batches, effects, err := c.dispatchOperation(o)
	if err != nil {
		if c.metrics != nil {
			c.metrics.CoreOpsRejected.WithLabelValues(opType, "protocol").Inc()
		}
		return fmt.Errorf("dispatch failed: %w", err)
	}

	payload, err := json.Marshal(o)
	if err != nil {
		panic(fmt.Sprintf("FATAL: operation payload not serializable: %v", err))
	}

	// Step 4-8: Process each batch
	outputs := make([]CoreOutput, 0, len(batches))

	for _, batch := range batches {
		// Empty batches are allowed for state-only operations
		// (PoolParamUpdate produces no journals but still needs an
		// envelope in the operation log).
		if len(batch.Journals) > 0 {
			// Validate batch balance
			if err := c.validator.ValidateBatchBalance(batch); err != nil {
				panic(fmt.Sprintf("FATAL: unbalanced batch: %v", err))
			}

			// Apply batch to balances
			if err := c.balanceTracker.ApplyBatch(batch); err != nil {
				return fmt.Errorf("apply batch failed: %w", err)
			}
		}

		// Compute state digest and chain hash
		stateDigest := c.computeStateDigest(batch)
		prevHash := c.hasher.GetPrevHash()
		stateHash := c.hasher.ComputeHash(c.sequence, stateDigest)

		envelope := &op.Envelope{
			Sequence:       c.sequence,
			IdempotencyKey: idempotencyKey,
			OpType:         o.OpType(),
			Actor:          partition,
			Timestamp:      c.getOpTimestamp(o),
			SourceSequence: o.SourceSequence(),
			Payload:        payload,
			StateHash:      stateHash,
			PrevHash:       prevHash,
		}

		outputs = append(outputs, CoreOutput{
			Envelope:   envelope,
			Batch:      batch,
			StateDelta: stateDigest,
		})

		c.sequence++
		c.journalGen.SetSequence(c.sequence)
	}

	// Step 9: Post-checks
	if err := c.postCheckInvariants(o); err != nil {
		panic(fmt.Sprintf("FATAL: invariant violated: %v", err))
	}

	// Step 10: Execute deferred external settlement. Bookkeeping is final
	// at this point; a failing transfer means the external layer diverged
	// from pre-validated balances and the process must not continue.
	// During replay the settlement already happened in the original run,
	// so re-executing it would move funds twice.
	if !c.replaying {
		for _, fx := range effects {
			if err := fx(); err != nil {
				panic(fmt.Sprintf("FATAL: external settlement failed after commit: %v", err))
			}
		}
	}

	// Step 11: Emit outputs
	// Persist channel uses BLOCKING send (backpressure), projection channel
	// uses NON-BLOCKING send with silent drop. Replayed operations are
	// already in the log and are not re-emitted.
	if !c.replaying {
		for _, output := range outputs {
			c.persistChan <- output

			select {
			case c.projectionChan <- output:
			default:
				// Silently dropped; projections rebuild from the operation log
			}
		}
	}

	// Step 12: Mark as processed (add to LRU)
	c.idempotency.MarkProcessed(opType, idempotencyKey)

	// Record metrics
	if c.metrics != nil {
		c.metrics.CoreOpsApplied.WithLabelValues(opType).Inc()
		c.metrics.CoreOpDuration.WithLabelValues(opType).Observe(time.Since(start).Seconds())
		c.metrics.CoreSequence.Set(float64(c.sequence))
		c.updatePoolGauges()
	}

	return nil
}

// getOpTimestamp extracts the versioned timestamp from an operation.
// The core MUST NOT call time.Now(); all timestamps are versioned inputs.
func (c *CreditCore) getOpTimestamp(o op.Operation) time.Time {
	switch e := o.(type) {
	case *op.TrancheDeposit:
		return time.Unix(e.Timestamp, 0)
	case *op.TrancheWithdraw:
		return time.Unix(e.Timestamp, 0)
	case *op.InterestWithdraw:
		return time.Unix(e.Timestamp, 0)
	case *op.StakeDeposit:
		return time.Unix(e.Timestamp, 0)
	case *op.StakeRelease:
		return time.Unix(e.Timestamp, 0)
	case *op.RewardClaim:
		return time.Unix(e.Timestamp, 0)
	case *op.InvoiceBorrow:
		return time.Unix(e.Timestamp, 0)
	case *op.LoanRepay:
		return time.Unix(e.Timestamp, 0)
	case *op.LoanLiquidate:
		return time.Unix(e.Timestamp, 0)
	case *op.FeeWithdraw:
		return time.Unix(e.Timestamp, 0)
	case *op.PoolParamUpdate:
		return time.Unix(e.Timestamp, 0)
	default:
		panic(fmt.Sprintf("FATAL: getOpTimestamp called with unhandled operation type %T; deterministic core cannot use wall-clock time", o))
	}
}

// dispatchOperation routes an operation to its handler
func (c *CreditCore) dispatchOperation(o op.Operation) ([]*ledger.Batch, []effect, error) {
	switch e := o.(type) {
	case *op.TrancheDeposit:
		return c.handleTrancheDeposit(e)
	case *op.TrancheWithdraw:
		return c.handleTrancheWithdraw(e)
	case *op.InterestWithdraw:
		return c.handleInterestWithdraw(e)
	case *op.StakeDeposit:
		return c.handleStakeDeposit(e)
	case *op.StakeRelease:
		return c.handleStakeRelease(e)
	case *op.RewardClaim:
		return c.handleRewardClaim(e)
	case *op.InvoiceBorrow:
		return c.handleInvoiceBorrow(e)
	case *op.LoanRepay:
		return c.handleLoanRepay(e)
	case *op.LoanLiquidate:
		return c.handleLoanLiquidate(e)
	case *op.FeeWithdraw:
		return c.handleFeeWithdraw(e)
	case *op.PoolParamUpdate:
		return c.handlePoolParamUpdate(e)
	default:
		return nil, nil, fmt.Errorf("unknown operation type: %T", o)
	}
}

func trancheSubType(class tranche.Class) ledger.AccountSubType {
	if class == tranche.Senior {
		return ledger.SubTypeTrancheSenior
	}
	return ledger.SubTypeTrancheJunior
}

func (c *CreditCore) handleTrancheDeposit(e *op.TrancheDeposit) ([]*ledger.Batch, []effect, error) {
	class, err := tranche.ParseClass(e.Tranche)
	if err != nil {
		return nil, nil, err
	}
	if e.Amount <= 0 {
		return nil, nil, protocol.ErrInvalidAmount
	}

	p := c.paramsMgr.Pool()

	var rateBps, lockedUntil int64
	switch class {
	case tranche.Senior:
		if !c.paramsMgr.IsSeniorLockup(e.LockDuration) {
			return nil, nil, protocol.ErrInvalidDuration
		}
		rateBps = p.SeniorRateBps
		lockedUntil = e.Timestamp + e.LockDuration
	case tranche.Junior:
		// Junior carries no lock-up; the first-loss position is the price
		if e.LockDuration != 0 {
			return nil, nil, protocol.ErrInvalidDuration
		}
		rateBps = p.JuniorRateBps
	}

	// Pre-validate the pull so bookkeeping never outruns settlement.
	// Replay skips this: the pull already settled in the original run, so
	// the payer's current balance says nothing about the logged operation.
	payer := assets.AccountAddress(e.AccountID)
	if !c.replaying && c.assetLink.BalanceOf(payer, "USDX") < e.Amount {
		return nil, nil, protocol.ErrInsufficientBalance
	}

	if _, err := c.tranches.Deposit(e.AccountID, class, e.Amount, rateBps, lockedUntil, e.Timestamp); err != nil {
		return nil, nil, err
	}

	batch, err := c.journalGen.GenerateTrancheDeposit(
		e.AccountID, e.IdempotencyKey(), trancheSubType(class), e.Amount, e.Timestamp)
	if err != nil {
		return nil, nil, err
	}

	pull := func() error {
		return c.assetLink.TransferFrom(payer, assets.PoolAddress, "USDX", e.Amount)
	}

	return []*ledger.Batch{batch}, []effect{pull}, nil
}

func (c *CreditCore) handleTrancheWithdraw(e *op.TrancheWithdraw) ([]*ledger.Batch, []effect, error) {
	class, err := tranche.ParseClass(e.Tranche)
	if err != nil {
		return nil, nil, err
	}
	if e.Amount <= 0 {
		return nil, nil, protocol.ErrInvalidAmount
	}
	if c.tranches.AvailableBalance(e.AccountID, class, e.Timestamp) < e.Amount {
		return nil, nil, protocol.ErrInsufficientBalance
	}

	// Lent-out principal is not in the pool. Withdrawals draw only on
	// unlent liquidity; the rest comes back as loans repay.
	if c.tranches.TotalDeposited()-c.loanBook.TotalBorrowed() < e.Amount {
		return nil, nil, protocol.ErrInsufficientLiquidity
	}

	if err := c.tranches.Withdraw(e.AccountID, class, e.Amount, e.Timestamp); err != nil {
		return nil, nil, err
	}

	batch, err := c.journalGen.GenerateTrancheWithdrawal(
		e.AccountID, e.IdempotencyKey(), trancheSubType(class), e.Amount, e.Timestamp)
	if err != nil {
		return nil, nil, err
	}

	push := func() error {
		return c.assetLink.Transfer(assets.AccountAddress(e.AccountID), "USDX", e.Amount)
	}

	return []*ledger.Batch{batch}, []effect{push}, nil
}

func (c *CreditCore) handleInterestWithdraw(e *op.InterestWithdraw) ([]*ledger.Batch, []effect, error) {
	class, err := tranche.ParseClass(e.Tranche)
	if err != nil {
		return nil, nil, err
	}

	// Preview accrual before mutating so the reserve check runs first.
	// Interest is only payable out of actually repaid borrower interest.
	pending := c.tranches.PendingInterest(e.AccountID, class, e.Timestamp)
	if pending <= 0 {
		return nil, nil, protocol.ErrInsufficientBalance
	}
	if c.balanceTracker.GetInterestReserve() < pending {
		return nil, nil, protocol.ErrInsufficientLiquidity
	}

	payout, err := c.tranches.WithdrawInterest(e.AccountID, class, e.Timestamp)
	if err != nil {
		return nil, nil, err
	}

	batch, err := c.journalGen.GenerateInterestPayout(e.AccountID, e.IdempotencyKey(), payout, e.Timestamp)
	if err != nil {
		return nil, nil, err
	}

	push := func() error {
		return c.assetLink.Transfer(assets.AccountAddress(e.AccountID), "USDX", payout)
	}

	return []*ledger.Batch{batch}, []effect{push}, nil
}

func (c *CreditCore) handleStakeDeposit(e *op.StakeDeposit) ([]*ledger.Batch, []effect, error) {
	term, ok := c.paramsMgr.GetStakeTerm(e.Duration)
	if !ok {
		return nil, nil, protocol.ErrInvalidDuration
	}

	payer := assets.AccountAddress(e.AccountID)
	if !c.replaying && e.Amount > 0 && c.assetLink.BalanceOf(payer, "CLT") < e.Amount {
		return nil, nil, protocol.ErrInsufficientBalance
	}

	if _, err := c.stakingReg.Stake(e.AccountID, e.Amount, term, e.Timestamp); err != nil {
		return nil, nil, err
	}

	// A draw can exceed the collateral staked at borrow time; fresh stakes
	// top the earmark back up to the outstanding principal.
	usage := c.stakingReg.StakeUsage(e.AccountID)
	if shortfall := c.loanBook.OutstandingPrincipal(e.AccountID) - usage.LockedForBorrow; shortfall > 0 {
		c.stakingReg.LockForBorrow(e.AccountID, shortfall)
	}

	batch, err := c.journalGen.GenerateStakeDeposit(e.AccountID, e.IdempotencyKey(), e.Amount, e.Timestamp)
	if err != nil {
		return nil, nil, err
	}

	pull := func() error {
		return c.assetLink.TransferFrom(payer, assets.PoolAddress, "CLT", e.Amount)
	}

	return []*ledger.Batch{batch}, []effect{pull}, nil
}

func (c *CreditCore) handleStakeRelease(e *op.StakeRelease) ([]*ledger.Batch, []effect, error) {
	principal, reward, err := c.stakingReg.Release(e.AccountID, e.StakeID, e.Timestamp)
	if err != nil {
		return nil, nil, err
	}

	releaseBatch, err := c.journalGen.GenerateStakeRelease(e.AccountID, e.IdempotencyKey(), principal, e.Timestamp)
	if err != nil {
		return nil, nil, err
	}

	batches := []*ledger.Batch{releaseBatch}
	owner := assets.AccountAddress(e.AccountID)
	effects := []effect{func() error {
		return c.assetLink.Transfer(owner, "CLT", principal)
	}}

	// Unclaimed rewards pay out in the same operation as a second batch
	if reward > 0 {
		rewardBatch, err := c.journalGen.GenerateRewardClaim(e.AccountID, e.IdempotencyKey(), reward, e.Timestamp)
		if err != nil {
			return nil, nil, err
		}
		batches = append(batches, rewardBatch)
		effects = append(effects, func() error {
			return c.assetLink.Transfer(owner, "USDX", reward)
		})
	}

	return batches, effects, nil
}

func (c *CreditCore) handleRewardClaim(e *op.RewardClaim) ([]*ledger.Batch, []effect, error) {
	reward, err := c.stakingReg.ClaimRewards(e.AccountID, e.StakeID, e.Timestamp)
	if err != nil {
		return nil, nil, err
	}

	batch, err := c.journalGen.GenerateRewardClaim(e.AccountID, e.IdempotencyKey(), reward, e.Timestamp)
	if err != nil {
		return nil, nil, err
	}

	push := func() error {
		return c.assetLink.Transfer(assets.AccountAddress(e.AccountID), "USDX", reward)
	}

	return []*ledger.Batch{batch}, []effect{push}, nil
}

func (c *CreditCore) handleInvoiceBorrow(e *op.InvoiceBorrow) ([]*ledger.Batch, []effect, error) {
	rec, err := c.receivables.GetDetails(e.InvoiceID)
	if err != nil {
		return nil, nil, fmt.Errorf("receivable lookup: %w", err)
	}

	p := c.paramsMgr.Pool()
	tier := c.stakingReg.GetTier(e.AccountID)
	hasStake := c.stakingReg.HasActiveStake(e.AccountID)

	if err := c.loanBook.ValidateBorrow(
		e.AccountID, rec, e.Amount, tier, hasStake,
		c.tranches.TotalDeposited(), p, e.Timestamp,
	); err != nil {
		return nil, nil, err
	}

	c.loanBook.Open(e.AccountID, e.InvoiceID, e.Amount, p.BorrowRateBps, rec.DueDate, e.Timestamp)

	// Earmark the borrower's staked collateral against the draw
	c.stakingReg.LockForBorrow(e.AccountID, e.Amount)

	batch, err := c.journalGen.GenerateLoanDisbursement(e.AccountID, e.IdempotencyKey(), e.Amount, e.Timestamp)
	if err != nil {
		return nil, nil, err
	}

	effects := []effect{
		// Invoice token moves into pool custody as loan collateral
		func() error {
			return c.receivables.TransferCustody(e.InvoiceID, assets.PoolAddress)
		},
		func() error {
			return c.assetLink.Transfer(assets.AccountAddress(e.AccountID), "USDX", e.Amount)
		},
	}

	if c.metrics != nil {
		c.metrics.LoansOpened.Inc()
	}

	return []*ledger.Batch{batch}, effects, nil
}

func (c *CreditCore) handleLoanRepay(e *op.LoanRepay) ([]*ledger.Batch, []effect, error) {
	// Pre-validate the pull against the projected total before mutating.
	// Lifecycle and ownership checks live in Book.Repay.
	payer := assets.AccountAddress(e.AccountID)
	if l, ok := c.loanBook.GetLoan(e.InvoiceID); ok && !c.replaying && l.Status == loan.StatusActive && l.BorrowerID == e.AccountID {
		total := l.Principal + c.loanBook.PendingInterest(e.InvoiceID, e.Timestamp)
		if c.assetLink.BalanceOf(payer, "USDX") < total {
			return nil, nil, protocol.ErrInsufficientBalance
		}
	}

	principal, interest, err := c.loanBook.Repay(e.AccountID, e.InvoiceID, e.Timestamp)
	if err != nil {
		return nil, nil, err
	}

	c.stakingReg.ReleaseBorrowLock(e.AccountID, principal)

	p := c.paramsMgr.Pool()
	fee := creditmath.BpsOf(interest, p.FeeSkimBps)
	interestLP := interest - fee

	batch, err := c.journalGen.GenerateLoanRepayment(
		e.AccountID, e.IdempotencyKey(), principal, interestLP, fee, e.Timestamp)
	if err != nil {
		return nil, nil, err
	}

	effects := []effect{
		func() error {
			return c.assetLink.TransferFrom(payer, assets.PoolAddress, "USDX", principal+interest)
		},
		// Custody of the invoice token returns to the supplier
		func() error {
			return c.receivables.TransferCustody(e.InvoiceID, payer)
		},
	}

	if c.metrics != nil {
		c.metrics.LoansRepaid.Inc()
		c.metrics.InterestCollected.Add(float64(interest))
	}

	return []*ledger.Batch{batch}, effects, nil
}

func (c *CreditCore) handleLoanLiquidate(e *op.LoanLiquidate) ([]*ledger.Batch, []effect, error) {
	l, owed, err := c.loanBook.Liquidate(e.InvoiceID, e.Timestamp)
	if err != nil {
		return nil, nil, err
	}

	// Junior-first loss waterfall across LP principal
	result := c.waterfall.Run(owed, e.Timestamp)

	// Atomic collateral slash. A defaulted borrower without active stakes
	// should not occur (borrowing requires one), but the default must still
	// clear, so the slash leg degrades to zero with a warning.
	slashed, slashErr := c.stakingReg.SlashAll(l.BorrowerID)
	if slashErr != nil {
		slashed = 0
		c.logger.Warn().
			Str("borrower", l.BorrowerID.String()).
			Str("invoice", e.InvoiceID.String()).
			Msg("liquidation found no active stake to slash")
	}

	absorptions := make([]ledger.AbsorptionLeg, 0, len(result.JuniorLegs)+len(result.SeniorLegs))
	for _, leg := range result.JuniorLegs {
		absorptions = append(absorptions, ledger.AbsorptionLeg{
			UserID:         uuid.UUID(leg.HolderID),
			TrancheSubType: ledger.SubTypeTrancheJunior,
			Amount:         leg.Amount,
		})
	}
	for _, leg := range result.SeniorLegs {
		absorptions = append(absorptions, ledger.AbsorptionLeg{
			UserID:         uuid.UUID(leg.HolderID),
			TrancheSubType: ledger.SubTypeTrancheSenior,
			Amount:         leg.Amount,
		})
	}

	batch, err := c.journalGen.GenerateLiquidation(
		l.BorrowerID, e.IdempotencyKey(), owed, absorptions, slashed, e.Timestamp)
	if err != nil {
		return nil, nil, err
	}

	c.waterfall.Record(&loan.LossEvent{
		ReceivableID:      e.InvoiceID,
		BorrowerID:        l.BorrowerID,
		Sequence:          c.sequence,
		Owed:              owed,
		JuniorAbsorbed:    result.JuniorAbsorbed,
		SeniorAbsorbed:    result.SeniorAbsorbed,
		Unrecovered:       result.Unrecovered,
		SlashedCollateral: slashed,
		Timestamp:         e.Timestamp,
	})

	effects := []effect{
		// The defaulted invoice token is burned; recovery on the
		// underlying receivable happens off-ledger
		func() error {
			return c.receivables.Burn(e.InvoiceID)
		},
	}
	if slashed > 0 {
		effects = append(effects, func() error {
			return c.assetLink.Transfer(assets.TreasuryAddress, "CLT", slashed)
		})
	}

	if c.metrics != nil {
		c.metrics.LoansLiquidated.Inc()
		c.metrics.WaterfallLossAbsorbed.WithLabelValues("junior").Add(float64(result.JuniorAbsorbed))
		c.metrics.WaterfallLossAbsorbed.WithLabelValues("senior").Add(float64(result.SeniorAbsorbed))
		c.metrics.UnrecoveredLoss.Add(float64(result.Unrecovered))
		c.metrics.CollateralSlashed.Add(float64(slashed))
	}

	return []*ledger.Batch{batch}, effects, nil
}

func (c *CreditCore) handleFeeWithdraw(e *op.FeeWithdraw) ([]*ledger.Batch, []effect, error) {
	if !c.access.IsAdmin(e.AdminID) {
		return nil, nil, ErrUnauthorized
	}
	if e.Amount <= 0 {
		return nil, nil, protocol.ErrInvalidAmount
	}

	batch, err := c.journalGen.GenerateFeeWithdrawal(e.IdempotencyKey(), e.Amount, e.Timestamp)
	if err != nil {
		return nil, nil, err
	}

	push := func() error {
		return c.assetLink.Transfer(assets.TreasuryAddress, "USDX", e.Amount)
	}

	return []*ledger.Batch{batch}, []effect{push}, nil
}

func (c *CreditCore) handlePoolParamUpdate(e *op.PoolParamUpdate) ([]*ledger.Batch, []effect, error) {
	if !c.access.IsAdmin(e.AdminID) {
		return nil, nil, ErrUnauthorized
	}

	next := &params.PoolParams{
		JuniorRateBps:  e.JuniorRateBps,
		SeniorRateBps:  e.SeniorRateBps,
		BorrowRateBps:  e.BorrowRateBps,
		FeeSkimBps:     e.FeeSkimBps,
		BorrowCapPct:   e.BorrowCapPct,
		TierStepPct:    e.TierStepPct,
		UtilizationCap: e.UtilizationCap,
		EffectiveSeq:   c.sequence,
	}
	if err := c.paramsMgr.UpdatePoolParams(next); err != nil {
		return nil, nil, err
	}

	// Settle every deposit at the old rate before the new one applies
	c.tranches.ReanchorRates(e.JuniorRateBps, e.SeniorRateBps, e.Timestamp)

	// State-only: no journals, envelope only
	batch := &ledger.Batch{
		BatchID:   uuid.New(),
		OpRef:     e.IdempotencyKey(),
		Sequence:  c.sequence,
		Timestamp: e.Timestamp,
	}

	return []*ledger.Batch{batch}, nil, nil
}

// computeStateDigest creates canonical bytes for state hash
func (c *CreditCore) computeStateDigest(batch *ledger.Batch) []byte {
	// Collect all affected accounts
	affectedAccounts := make(map[ledger.AccountKey]bool)

	if batch != nil {
		for _, j := range batch.Journals {
			affectedAccounts[j.DebitAccount] = true
			affectedAccounts[j.CreditAccount] = true
		}
	}

	// Sort accounts deterministically
	accounts := make([]ledger.AccountKey, 0, len(affectedAccounts))
	for key := range affectedAccounts {
		accounts = append(accounts, key)
	}

	// Sort by AccountPath (deterministic string ordering)
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].AccountPath() < accounts[j].AccountPath()
	})

	// Build digest
	digest := make([]byte, 0, len(accounts)*64)

	for _, key := range accounts {
		balance := c.balanceTracker.GetBalance(key)

		// Append account path
		path := key.AccountPath()
		digest = append(digest, byte(len(path)))
		digest = append(digest, []byte(path)...)

		// Append balance (8 bytes LE)
		digest = appendInt64LE(digest, balance)
	}

	return digest
}

func appendInt64LE(buf []byte, v int64) []byte {
	return append(buf,
		byte(v),
		byte(v>>8),
		byte(v>>16),
		byte(v>>24),
		byte(v>>32),
		byte(v>>40),
		byte(v>>48),
		byte(v>>56),
	)
}

// postCheckInvariants validates invariants after batch application
func (c *CreditCore) postCheckInvariants(o op.Operation) error {
	switch e := o.(type) {
	case *op.TrancheDeposit, *op.TrancheWithdraw, *op.InterestWithdraw:
		// Tranche principal stays non-negative and the ledger's user totals
		// must match the component aggregates
		for _, class := range []tranche.Class{tranche.Junior, tranche.Senior} {
			if err := c.validator.ValidateTrancheAggregate(trancheSubType(class), c.tranches.TotalByClass(class)); err != nil {
				return fmt.Errorf("post-check tranche aggregate (%s): %w", class, err)
			}
		}
		if err := c.validator.ValidateLiquidityConservation(
			c.tranches.TotalDeposited(), c.loanBook.TotalBorrowed()); err != nil {
			return fmt.Errorf("post-check liquidity: %w", err)
		}

	case *op.InvoiceBorrow:
		if err := c.validator.ValidateLiquidityConservation(
			c.tranches.TotalDeposited(), c.loanBook.TotalBorrowed()); err != nil {
			return fmt.Errorf("post-check liquidity: %w", err)
		}

	case *op.StakeRelease:
		if err := c.validator.ValidateStakedNonNegative(e.AccountID); err != nil {
			return fmt.Errorf("post-check staked: %w", err)
		}

	case *op.LoanLiquidate:
		if l, ok := c.loanBook.GetLoan(e.InvoiceID); ok {
			if err := c.validator.ValidateStakedNonNegative(l.BorrowerID); err != nil {
				return fmt.Errorf("post-check staked: %w", err)
			}
		}
		for _, class := range []tranche.Class{tranche.Junior, tranche.Senior} {
			if err := c.validator.ValidateTrancheAggregate(trancheSubType(class), c.tranches.TotalByClass(class)); err != nil {
				return fmt.Errorf("post-check tranche aggregate (%s): %w", class, err)
			}
		}
	}

	// Periodic global zero-sum check
	if c.sequence > 0 && c.sequence%1000 == 0 {
		totals := c.balanceTracker.ComputeGlobalBalance()
		for assetID, total := range totals {
			if total != 0 {
				return fmt.Errorf("global balance non-zero for asset %d: %d (at seq %d)",
					assetID, total, c.sequence)
			}
		}
	}

	return nil
}

// updatePoolGauges refreshes the pool-level Prometheus gauges
func (c *CreditCore) updatePoolGauges() {
	deposited := c.tranches.TotalDeposited()
	borrowed := c.loanBook.TotalBorrowed()

	c.metrics.TranchePrincipal.WithLabelValues("junior").Set(float64(c.tranches.TotalByClass(tranche.Junior)))
	c.metrics.TranchePrincipal.WithLabelValues("senior").Set(float64(c.tranches.TotalByClass(tranche.Senior)))
	c.metrics.TotalBorrowed.Set(float64(borrowed))
	c.metrics.InterestReserve.Set(float64(c.balanceTracker.GetInterestReserve()))
	c.metrics.FeeBalance.Set(float64(c.balanceTracker.GetFeeBalance()))
	if deposited > 0 {
		c.metrics.PoolUtilization.Set(float64(borrowed) / float64(deposited+borrowed))
	} else {
		c.metrics.PoolUtilization.Set(0)
	}
}

// === Accessors (tests and recovery; the core itself is single-threaded) ===

func (c *CreditCore) Sequence() int64 {
	return c.sequence
}

func (c *CreditCore) Balances() *ledger.BalanceTracker {
	return c.balanceTracker
}

func (c *CreditCore) Tranches() *tranche.Ledger {
	return c.tranches
}

func (c *CreditCore) Staking() *staking.Registry {
	return c.stakingReg
}

func (c *CreditCore) Loans() *loan.Book {
	return c.loanBook
}

func (c *CreditCore) Losses() *loan.Waterfall {
	return c.waterfall
}

func (c *CreditCore) Params() *params.Manager {
	return c.paramsMgr
}

func (c *CreditCore) Idempotency() *IdempotencyChecker {
	return c.idempotency
}

// --- Snapshot Restore & Startup Methods ---

// SnapshotState holds the serializable in-memory state for restore.
// This mirrors persistence.SnapshotData but uses typed fields.
type SnapshotState struct {
	Sequence        int64
	StateHash       [32]byte
	Balances        map[ledger.AccountKey]int64
	Deposits        []*tranche.Deposit
	Stakes          []*staking.Position
	Loans           []*loan.Loan
	Blacklist       []uuid.UUID
	LossEvents      []*loan.LossEvent
	PoolParams      *params.PoolParams
	SequenceState   map[string]int64
	IdempotencyKeys []string
}

// RestoreFromSnapshot restores the core's in-memory state from a snapshot.
// On warm restart, load the latest snapshot then replay operations.
func (c *CreditCore) RestoreFromSnapshot(snap *SnapshotState) {
	// Restore sequence
	c.sequence = snap.Sequence + 1 // Next sequence to assign

	// Restore state hash chain
	c.hasher.SetPrevHash(snap.StateHash)

	// Restore balances
	for key, balance := range snap.Balances {
		c.balanceTracker.SetBalance(key, balance)
	}

	// Restore tranche deposits
	for _, d := range snap.Deposits {
		c.tranches.RestoreDeposit(d)
	}

	// Restore stake positions
	for _, p := range snap.Stakes {
		c.stakingReg.RestorePosition(p)
	}

	// Restore loans and the defaulter blacklist
	for _, l := range snap.Loans {
		c.loanBook.RestoreLoan(l)
	}
	for _, supplierID := range snap.Blacklist {
		c.loanBook.RestoreBlacklist(supplierID)
	}

	// Restore loss history
	for _, evt := range snap.LossEvents {
		c.waterfall.RestoreEvent(evt)
	}

	// Restore pool parameters
	if snap.PoolParams != nil {
		c.paramsMgr.RestorePoolParams(snap.PoolParams)
	}

	// Restore sequence validator state
	for partition, nextSeq := range snap.SequenceState {
		c.sequenceValidator.SetExpectedSequence(partition, nextSeq)
	}

	// Restore journal generator sequence
	c.journalGen.SetSequence(c.sequence)
}

// BeginReplay switches the core into log replay mode. Replayed operations
// re-apply component state and journals but external settlement effects,
// external balance pre-checks, output emission, and idempotency dedup are
// suppressed: all of those already happened when the operation first
// committed to the log.
func (c *CreditCore) BeginReplay() {
	c.replaying = true
}

// EndReplay returns the core to live processing.
func (c *CreditCore) EndReplay() {
	c.replaying = false
}

// WarmLRU loads recent idempotency keys into the LRU cache,
// avoiding cold-path DB lookups for recently processed operations.
func (c *CreditCore) WarmLRU(keys []string) {
	c.idempotency.lru.WarmFromKeys(keys)
}

// GetStateHash returns the current state hash (chain tip).
func (c *CreditCore) GetStateHash() [32]byte {
	return c.hasher.GetPrevHash()
}

// CreateSnapshotState captures the current in-memory state for persistence.
func (c *CreditCore) CreateSnapshotState() *SnapshotState {
	return &SnapshotState{
		Sequence:        c.sequence - 1, // Last processed sequence
		StateHash:       c.hasher.GetPrevHash(),
		Balances:        c.balanceTracker.Snapshot(),
		Deposits:        c.tranches.AllDeposits(),
		Stakes:          c.stakingReg.AllPositions(),
		Loans:           c.loanBook.AllLoans(),
		Blacklist:       c.loanBook.BlacklistedSuppliers(),
		LossEvents:      c.waterfall.Events(),
		PoolParams:      c.paramsMgr.Pool(),
		SequenceState:   c.sequenceValidator.GetAllPartitions(),
		IdempotencyKeys: c.idempotency.lru.GetAllKeys(),
	}
}
