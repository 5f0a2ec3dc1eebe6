package loan_test

import (
	"errors"
	"testing"

	"CrediLedger/internal/assets"
	"CrediLedger/internal/loan"
	"CrediLedger/internal/params"
	"CrediLedger/internal/protocol"
	"CrediLedger/internal/staking"
	"CrediLedger/internal/tranche"

	"github.com/google/uuid"
)

const (
	t0      = int64(1_700_000_000)
	oneYear = int64(31_536_000)
)

func testParams() *params.PoolParams {
	p := *params.DefaultPoolParams
	return &p
}

func verifiedReceivable(supplier uuid.UUID, value, dueDate int64) *assets.ReceivableDetails {
	return &assets.ReceivableDetails{
		ReceivableID: uuid.New(),
		Supplier:     supplier,
		Value:        value,
		DueDate:      dueDate,
		Verified:     true,
	}
}

// ============================================================================
// Test: Borrow capacity
// ============================================================================

func TestMaxBorrowAmount_TierSteps(t *testing.T) {
	p := testParams() // cap 60%, step 10%
	value := int64(5_000_000_000)

	cases := []struct {
		tier staking.Tier
		want int64
	}{
		{staking.TierNone, 3_000_000_000},    // 60%
		{staking.TierBronze, 3_300_000_000},  // 60% * 110%
		{staking.TierSilver, 3_600_000_000},  // 60% * 120%
		{staking.TierGold, 3_900_000_000},    // 60% * 130%
		{staking.TierDiamond, 4_200_000_000}, // 60% * 140%
	}

	for _, tc := range cases {
		if got := loan.MaxBorrowAmount(value, tc.tier, p); got != tc.want {
			t.Errorf("tier %v: got %d, want %d", tc.tier, got, tc.want)
		}
	}
}

func TestSafeLendingAmount_Headroom(t *testing.T) {
	b := loan.NewBook()
	p := testParams()

	if got := b.SafeLendingAmount(10_000, p); got != 10_000 {
		t.Errorf("empty book headroom: got %d, want 10_000", got)
	}

	b.Open(uuid.New(), uuid.New(), 8_000, p.BorrowRateBps, t0+oneYear, t0)
	if got := b.SafeLendingAmount(10_000, p); got != 2_000 {
		t.Errorf("headroom after borrow: got %d, want 2_000", got)
	}
}

// ============================================================================
// Test: ValidateBorrow
// ============================================================================

func TestValidateBorrow_RejectionOrder(t *testing.T) {
	b := loan.NewBook()
	p := testParams()
	borrower := uuid.New()
	rec := verifiedReceivable(borrower, 5_000_000_000, t0+oneYear)
	deposited := int64(10_000_000_000)

	// No active stake
	err := b.ValidateBorrow(borrower, rec, 1_000, staking.TierNone, false, deposited, p, t0)
	if !errors.Is(err, protocol.ErrNoStakedTokensFound) {
		t.Errorf("no stake: got %v, want ErrNoStakedTokensFound", err)
	}

	// Wrong supplier
	other := verifiedReceivable(uuid.New(), 5_000_000_000, t0+oneYear)
	err = b.ValidateBorrow(borrower, other, 1_000, staking.TierNone, true, deposited, p, t0)
	if !errors.Is(err, protocol.ErrNotInvoiceSupplier) {
		t.Errorf("wrong supplier: got %v, want ErrNotInvoiceSupplier", err)
	}

	// Unverified invoice
	unverified := verifiedReceivable(borrower, 5_000_000_000, t0+oneYear)
	unverified.Verified = false
	err = b.ValidateBorrow(borrower, unverified, 1_000, staking.TierNone, true, deposited, p, t0)
	if !errors.Is(err, protocol.ErrInvoiceNotVerified) {
		t.Errorf("unverified: got %v, want ErrInvoiceNotVerified", err)
	}

	// Expired invoice
	expired := verifiedReceivable(borrower, 5_000_000_000, t0)
	err = b.ValidateBorrow(borrower, expired, 1_000, staking.TierNone, true, deposited, p, t0)
	if !errors.Is(err, protocol.ErrInvoiceExpired) {
		t.Errorf("expired: got %v, want ErrInvoiceExpired", err)
	}

	// Non-positive amount
	err = b.ValidateBorrow(borrower, rec, 0, staking.TierNone, true, deposited, p, t0)
	if !errors.Is(err, protocol.ErrInvalidAmount) {
		t.Errorf("zero amount: got %v, want ErrInvalidAmount", err)
	}

	// Above the tiered LTV cap
	err = b.ValidateBorrow(borrower, rec, 3_000_000_001, staking.TierNone, true, deposited, p, t0)
	if !errors.Is(err, protocol.ErrInvalidBorrowAmount) {
		t.Errorf("above cap: got %v, want ErrInvalidBorrowAmount", err)
	}

	// Exceeds pool liquidity
	err = b.ValidateBorrow(borrower, rec, 3_000_000_000, staking.TierNone, true, 1_000, p, t0)
	if !errors.Is(err, protocol.ErrInsufficientLiquidity) {
		t.Errorf("illiquid pool: got %v, want ErrInsufficientLiquidity", err)
	}

	// All preconditions met
	err = b.ValidateBorrow(borrower, rec, 3_000_000_000, staking.TierNone, true, deposited, p, t0)
	if err != nil {
		t.Errorf("valid borrow rejected: %v", err)
	}
}

func TestValidateBorrow_DuplicateLoan_Fails(t *testing.T) {
	b := loan.NewBook()
	p := testParams()
	borrower := uuid.New()
	rec := verifiedReceivable(borrower, 5_000_000_000, t0+oneYear)

	b.Open(borrower, rec.ReceivableID, 1_000, p.BorrowRateBps, rec.DueDate, t0)

	err := b.ValidateBorrow(borrower, rec, 1_000, staking.TierNone, true, 10_000_000_000, p, t0)
	if !errors.Is(err, protocol.ErrLoanAlreadyExists) {
		t.Errorf("got %v, want ErrLoanAlreadyExists", err)
	}
}

func TestValidateBorrow_BlacklistedSupplier_Fails(t *testing.T) {
	b := loan.NewBook()
	p := testParams()
	borrower := uuid.New()

	// Default one loan to blacklist the supplier
	first := verifiedReceivable(borrower, 5_000_000_000, t0+100)
	b.Open(borrower, first.ReceivableID, 1_000, p.BorrowRateBps, first.DueDate, t0)
	if _, _, err := b.Liquidate(first.ReceivableID, first.DueDate+1); err != nil {
		t.Fatalf("Liquidate failed: %v", err)
	}
	if !b.IsBlacklisted(borrower) {
		t.Fatal("supplier should be blacklisted after default")
	}

	second := verifiedReceivable(borrower, 5_000_000_000, t0+oneYear)
	err := b.ValidateBorrow(borrower, second, 1_000, staking.TierNone, true, 10_000_000_000, p, t0+200)
	if !errors.Is(err, protocol.ErrInvoiceNotVerified) {
		t.Errorf("blacklisted borrow: got %v, want ErrInvoiceNotVerified", err)
	}
}

// ============================================================================
// Test: Repay
// ============================================================================

func TestRepay_SettlesInterest(t *testing.T) {
	b := loan.NewBook()
	borrower := uuid.New()
	receivableID := uuid.New()

	// 1000 USDX at 10% APY, repaid after half a year: 50 USDX interest
	b.Open(borrower, receivableID, 1_000_000_000, 1_000, t0+oneYear, t0)

	principal, interest, err := b.Repay(borrower, receivableID, t0+oneYear/2)
	if err != nil {
		t.Fatalf("Repay failed: %v", err)
	}
	if principal != 1_000_000_000 {
		t.Errorf("principal: got %d, want 1_000_000_000", principal)
	}
	if interest != 50_000_000 {
		t.Errorf("interest: got %d, want 50_000_000", interest)
	}
	if got := b.TotalBorrowed(); got != 0 {
		t.Errorf("outstanding after repay: got %d, want 0", got)
	}
}

func TestRepay_AfterDueDate_Fails(t *testing.T) {
	b := loan.NewBook()
	borrower := uuid.New()
	receivableID := uuid.New()
	b.Open(borrower, receivableID, 1_000, 1_000, t0+100, t0)

	_, _, err := b.Repay(borrower, receivableID, t0+101)
	if !errors.Is(err, protocol.ErrLoanOverdue) {
		t.Errorf("got %v, want ErrLoanOverdue", err)
	}
}

func TestRepay_WrongOwner_Fails(t *testing.T) {
	b := loan.NewBook()
	borrower := uuid.New()
	receivableID := uuid.New()
	b.Open(borrower, receivableID, 1_000, 1_000, t0+oneYear, t0)

	_, _, err := b.Repay(uuid.New(), receivableID, t0+10)
	if !errors.Is(err, protocol.ErrNotLoanOwner) {
		t.Errorf("got %v, want ErrNotLoanOwner", err)
	}
}

func TestRepay_TerminalLoan_Fails(t *testing.T) {
	b := loan.NewBook()
	borrower := uuid.New()
	receivableID := uuid.New()
	b.Open(borrower, receivableID, 1_000, 1_000, t0+oneYear, t0)
	b.Repay(borrower, receivableID, t0+10)

	_, _, err := b.Repay(borrower, receivableID, t0+20)
	if !errors.Is(err, protocol.ErrLoanAlreadySettled) {
		t.Errorf("got %v, want ErrLoanAlreadySettled", err)
	}
}

// ============================================================================
// Test: Liquidate
// ============================================================================

func TestLiquidate_BeforeDueDate_Fails(t *testing.T) {
	b := loan.NewBook()
	receivableID := uuid.New()
	b.Open(uuid.New(), receivableID, 1_000, 1_000, t0+oneYear, t0)

	_, _, err := b.Liquidate(receivableID, t0+oneYear)
	if !errors.Is(err, protocol.ErrLoanNotOverdue) {
		t.Errorf("at due date: got %v, want ErrLoanNotOverdue", err)
	}
}

func TestLiquidate_OwedIncludesInterest(t *testing.T) {
	b := loan.NewBook()
	borrower := uuid.New()
	receivableID := uuid.New()

	// 1000 USDX at 10% APY, defaulted after exactly one year
	b.Open(borrower, receivableID, 1_000_000_000, 1_000, t0+oneYear-1, t0)

	l, owed, err := b.Liquidate(receivableID, t0+oneYear)
	if err != nil {
		t.Fatalf("Liquidate failed: %v", err)
	}
	if owed != 1_100_000_000 {
		t.Errorf("owed: got %d, want 1_100_000_000", owed)
	}
	if l.Status != loan.StatusLiquidated {
		t.Errorf("status: got %v, want liquidated", l.Status)
	}
	if !b.IsBlacklisted(borrower) {
		t.Error("defaulted supplier should be blacklisted")
	}
	if got := b.TotalBorrowed(); got != 0 {
		t.Errorf("outstanding after liquidation: got %d, want 0", got)
	}
}

func TestLiquidate_Twice_Fails(t *testing.T) {
	b := loan.NewBook()
	receivableID := uuid.New()
	b.Open(uuid.New(), receivableID, 1_000, 1_000, t0+100, t0)
	b.Liquidate(receivableID, t0+101)

	_, _, err := b.Liquidate(receivableID, t0+102)
	if !errors.Is(err, protocol.ErrLoanAlreadySettled) {
		t.Errorf("got %v, want ErrLoanAlreadySettled", err)
	}
}

// ============================================================================
// Test: Waterfall
// ============================================================================

func TestWaterfall_JuniorAbsorbsFirst(t *testing.T) {
	tranches := tranche.NewLedger()
	junior, senior := uuid.New(), uuid.New()
	tranches.Deposit(junior, tranche.Junior, 1_000, 1_200, 0, t0)
	tranches.Deposit(senior, tranche.Senior, 2_000, 600, 0, t0)

	w := loan.NewWaterfall(tranches)
	result := w.Run(1_500, t0+10)

	if result.JuniorAbsorbed != 1_000 {
		t.Errorf("junior absorbed: got %d, want 1_000", result.JuniorAbsorbed)
	}
	if result.SeniorAbsorbed != 500 {
		t.Errorf("senior absorbed: got %d, want 500", result.SeniorAbsorbed)
	}
	if result.Unrecovered != 0 {
		t.Errorf("unrecovered: got %d, want 0", result.Unrecovered)
	}

	if got := tranches.TotalByClass(tranche.Junior); got != 0 {
		t.Errorf("junior remaining: got %d, want 0", got)
	}
	if got := tranches.TotalByClass(tranche.Senior); got != 1_500 {
		t.Errorf("senior remaining: got %d, want 1_500", got)
	}
}

func TestWaterfall_SeniorUntouchedWhenJuniorCovers(t *testing.T) {
	tranches := tranche.NewLedger()
	junior, senior := uuid.New(), uuid.New()
	tranches.Deposit(junior, tranche.Junior, 1_000, 1_200, 0, t0)
	tranches.Deposit(senior, tranche.Senior, 2_000, 600, 0, t0)

	w := loan.NewWaterfall(tranches)
	result := w.Run(800, t0+10)

	if result.JuniorAbsorbed != 800 || result.SeniorAbsorbed != 0 {
		t.Errorf("got junior=%d senior=%d, want 800/0", result.JuniorAbsorbed, result.SeniorAbsorbed)
	}
	if got := tranches.TotalByClass(tranche.Senior); got != 2_000 {
		t.Errorf("senior must be untouched: got %d, want 2_000", got)
	}
}

func TestWaterfall_UnrecoveredShortfall(t *testing.T) {
	tranches := tranche.NewLedger()
	tranches.Deposit(uuid.New(), tranche.Junior, 1_000, 1_200, 0, t0)
	tranches.Deposit(uuid.New(), tranche.Senior, 2_000, 600, 0, t0)

	w := loan.NewWaterfall(tranches)
	result := w.Run(4_000, t0+10)

	if result.JuniorAbsorbed != 1_000 || result.SeniorAbsorbed != 2_000 {
		t.Errorf("got junior=%d senior=%d, want 1_000/2_000", result.JuniorAbsorbed, result.SeniorAbsorbed)
	}
	if result.Unrecovered != 1_000 {
		t.Errorf("unrecovered: got %d, want 1_000", result.Unrecovered)
	}

	w.Record(&loan.LossEvent{
		ReceivableID:   uuid.New(),
		Owed:           4_000,
		JuniorAbsorbed: result.JuniorAbsorbed,
		SeniorAbsorbed: result.SeniorAbsorbed,
		Unrecovered:    result.Unrecovered,
	})
	if got := w.TotalUnrecovered(); got != 1_000 {
		t.Errorf("cumulative unrecovered: got %d, want 1_000", got)
	}
	if len(w.Events()) != 1 {
		t.Errorf("event count: got %d, want 1", len(w.Events()))
	}
}
