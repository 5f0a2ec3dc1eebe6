package ledger_test

import (
	"testing"

	"CrediLedger/internal/ledger"

	"github.com/google/uuid"
)

// ============================================================================
// Test: AccountKey
// ============================================================================

func TestAccountKey_UserPath(t *testing.T) {
	userID := uuid.MustParse("550e8400-e29b-41d4-a716-446655440000")
	key := ledger.NewUserAccountKey(userID, ledger.SubTypeTrancheJunior, ledger.AssetUSDX)

	path := key.AccountPath()
	expected := "user:550e8400-e29b-41d4-a716-446655440000:tranche_junior:USDX"
	if path != expected {
		t.Errorf("got %q, want %q", path, expected)
	}
}

func TestAccountKey_SystemPath(t *testing.T) {
	key := ledger.NewSystemAccountKey(ledger.SystemPool, ledger.SubTypeSystemInterestReserve, ledger.AssetUSDX)

	path := key.AccountPath()
	if path != "system:interest_reserve:USDX" {
		t.Errorf("got %q, want %q", path, "system:interest_reserve:USDX")
	}
}

func TestAccountKey_ExternalPath(t *testing.T) {
	key := ledger.NewExternalAccountKey(ledger.SubTypeExternalCollateralIn, ledger.AssetCLT)

	path := key.AccountPath()
	if path != "external:collateral_in:CLT" {
		t.Errorf("got %q, want %q", path, "external:collateral_in:CLT")
	}
}

func TestParseAccountPath_RoundTrip(t *testing.T) {
	keys := []ledger.AccountKey{
		ledger.NewUserAccountKey(uuid.New(), ledger.SubTypeTrancheSenior, ledger.AssetUSDX),
		ledger.NewUserAccountKey(uuid.New(), ledger.SubTypeStaked, ledger.AssetCLT),
		ledger.NewUserAccountKey(uuid.New(), ledger.SubTypeLoanOutstanding, ledger.AssetUSDX),
		ledger.NewSystemAccountKey(ledger.SystemPool, ledger.SubTypeSystemFees, ledger.AssetUSDX),
		ledger.NewSystemAccountKey(ledger.SystemTreasury, ledger.SubTypeSystemSlashedCollateral, ledger.AssetCLT),
		ledger.NewExternalAccountKey(ledger.SubTypeExternalWriteOffs, ledger.AssetUSDX),
	}

	for _, key := range keys {
		parsed := ledger.ParseAccountPath(key.AccountPath())
		if parsed != key {
			t.Errorf("round trip failed for %q: got %+v, want %+v", key.AccountPath(), parsed, key)
		}
	}
}

func TestParseAccountPath_Garbage(t *testing.T) {
	if got := ledger.ParseAccountPath("not:a:real:account:path"); got != (ledger.AccountKey{}) {
		t.Errorf("garbage path should parse to zero key, got %+v", got)
	}
}

func TestGetAssetID_Known(t *testing.T) {
	id, ok := ledger.GetAssetID("USDX")
	if !ok || id != ledger.AssetUSDX {
		t.Errorf("USDX: got (%d, %v), want (%d, true)", id, ok, ledger.AssetUSDX)
	}
	id, ok = ledger.GetAssetID("CLT")
	if !ok || id != ledger.AssetCLT {
		t.Errorf("CLT: got (%d, %v), want (%d, true)", id, ok, ledger.AssetCLT)
	}
}

func TestGetAssetID_Unknown(t *testing.T) {
	if _, ok := ledger.GetAssetID("DOGE"); ok {
		t.Error("DOGE should not be a known asset")
	}
}

// ============================================================================
// Test: BalanceTracker
// ============================================================================

func depositJournal(userID uuid.UUID, amount int64) ledger.Journal {
	return ledger.Journal{
		JournalID:     uuid.New(),
		BatchID:       uuid.New(),
		DebitAccount:  ledger.NewUserAccountKey(userID, ledger.SubTypeTrancheJunior, ledger.AssetUSDX),
		CreditAccount: ledger.NewExternalAccountKey(ledger.SubTypeExternalDeposits, ledger.AssetUSDX),
		AssetID:       ledger.AssetUSDX,
		Amount:        amount,
	}
}

func TestBalanceTracker_InitialBalanceZero(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	if got := bt.GetTrancheBalance(uuid.New(), ledger.SubTypeTrancheJunior); got != 0 {
		t.Errorf("initial balance should be 0, got %d", got)
	}
}

func TestBalanceTracker_ApplyJournal(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	userID := uuid.New()

	bt.ApplyJournal(depositJournal(userID, 1_000_000))

	if got := bt.GetTrancheBalance(userID, ledger.SubTypeTrancheJunior); got != 1_000_000 {
		t.Errorf("junior principal: got %d, want 1_000_000", got)
	}
}

func TestBalanceTracker_GlobalBalanceZeroSum(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	userID := uuid.New()

	bt.ApplyJournal(depositJournal(userID, 1_000_000))

	// Simulate a loss write-down: system loss reserve absorbs from the tranche
	bt.ApplyJournal(ledger.Journal{
		JournalID:     uuid.New(),
		BatchID:       uuid.New(),
		DebitAccount:  ledger.NewSystemAccountKey(ledger.SystemPool, ledger.SubTypeSystemLossReserve, ledger.AssetUSDX),
		CreditAccount: ledger.NewUserAccountKey(userID, ledger.SubTypeTrancheJunior, ledger.AssetUSDX),
		AssetID:       ledger.AssetUSDX,
		Amount:        300_000,
	})

	for aid, total := range bt.ComputeGlobalBalance() {
		if total != 0 {
			t.Errorf("asset %d has non-zero global balance: %d", aid, total)
		}
	}
}

func TestBalanceTracker_ValidateSufficientBalance(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	userID := uuid.New()
	key := ledger.NewUserAccountKey(userID, ledger.SubTypeTrancheJunior, ledger.AssetUSDX)

	if err := bt.ValidateSufficientBalance(key, 100); err == nil {
		t.Error("expected error for empty account")
	}

	bt.ApplyJournal(depositJournal(userID, 1_000))

	if err := bt.ValidateSufficientBalance(key, 1_000); err != nil {
		t.Errorf("should have sufficient balance: %v", err)
	}
	if err := bt.ValidateSufficientBalance(key, 1_001); err == nil {
		t.Error("expected error for 1_001 > 1_000")
	}
}

func TestBalanceTracker_SumUserBalances(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	a, b := uuid.New(), uuid.New()

	bt.ApplyJournal(depositJournal(a, 700))
	bt.ApplyJournal(depositJournal(b, 300))

	if got := bt.SumUserBalances(ledger.SubTypeTrancheJunior, ledger.AssetUSDX); got != 1_000 {
		t.Errorf("junior user total: got %d, want 1_000", got)
	}
	if got := bt.SumUserBalances(ledger.SubTypeTrancheSenior, ledger.AssetUSDX); got != 0 {
		t.Errorf("senior user total: got %d, want 0", got)
	}
}

func TestBalanceTracker_Snapshot(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	userID := uuid.New()
	bt.ApplyJournal(depositJournal(userID, 999))

	snap := bt.Snapshot()
	if len(snap) == 0 {
		t.Fatal("snapshot should not be empty")
	}

	for k := range snap {
		snap[k] = 0
	}

	if bt.GetTrancheBalance(userID, ledger.SubTypeTrancheJunior) != 999 {
		t.Error("tracker balance should not be affected by snapshot mutation")
	}
}

// ============================================================================
// Test: Batch Validation
// ============================================================================

func TestBatchValidate_EmptyBatch_Fails(t *testing.T) {
	batch := &ledger.Batch{BatchID: uuid.New()}
	if err := batch.Validate(); err == nil {
		t.Error("empty batch should fail validation")
	}
}

func TestBatchValidate_NonPositiveAmount_Fails(t *testing.T) {
	for _, amount := range []int64{0, -100} {
		batchID := uuid.New()
		batch := &ledger.Batch{
			BatchID: batchID,
			Journals: []ledger.Journal{
				{
					JournalID:     uuid.New(),
					BatchID:       batchID,
					DebitAccount:  ledger.NewUserAccountKey(uuid.New(), ledger.SubTypeTrancheJunior, ledger.AssetUSDX),
					CreditAccount: ledger.NewExternalAccountKey(ledger.SubTypeExternalDeposits, ledger.AssetUSDX),
					AssetID:       ledger.AssetUSDX,
					Amount:        amount,
				},
			},
		}
		if err := batch.Validate(); err == nil {
			t.Errorf("amount %d should fail validation", amount)
		}
	}
}

func TestBatchValidate_SelfTransfer_Fails(t *testing.T) {
	batchID := uuid.New()
	same := ledger.NewUserAccountKey(uuid.New(), ledger.SubTypeTrancheJunior, ledger.AssetUSDX)

	batch := &ledger.Batch{
		BatchID: batchID,
		Journals: []ledger.Journal{
			{
				JournalID:     uuid.New(),
				BatchID:       batchID,
				DebitAccount:  same,
				CreditAccount: same,
				AssetID:       ledger.AssetUSDX,
				Amount:        100,
			},
		},
	}
	if err := batch.Validate(); err == nil {
		t.Error("self-transfer should fail validation")
	}
}

func TestBatchValidate_MixedAssetLegs_Fails(t *testing.T) {
	batchID := uuid.New()
	batch := &ledger.Batch{
		BatchID: batchID,
		Journals: []ledger.Journal{
			{
				JournalID:     uuid.New(),
				BatchID:       batchID,
				DebitAccount:  ledger.NewUserAccountKey(uuid.New(), ledger.SubTypeStaked, ledger.AssetCLT),
				CreditAccount: ledger.NewExternalAccountKey(ledger.SubTypeExternalDeposits, ledger.AssetUSDX),
				AssetID:       ledger.AssetCLT,
				Amount:        100,
			},
		},
	}
	if err := batch.Validate(); err == nil {
		t.Error("mixed-asset legs should fail validation")
	}
}

func TestBatchValidate_MismatchedBatchID_Fails(t *testing.T) {
	batch := &ledger.Batch{
		BatchID: uuid.New(),
		Journals: []ledger.Journal{
			{
				JournalID:     uuid.New(),
				BatchID:       uuid.New(),
				DebitAccount:  ledger.NewUserAccountKey(uuid.New(), ledger.SubTypeTrancheJunior, ledger.AssetUSDX),
				CreditAccount: ledger.NewExternalAccountKey(ledger.SubTypeExternalDeposits, ledger.AssetUSDX),
				AssetID:       ledger.AssetUSDX,
				Amount:        100,
			},
		},
	}
	if err := batch.Validate(); err == nil {
		t.Error("mismatched batch ID should fail validation")
	}
}

// ============================================================================
// Test: JournalGenerator
// ============================================================================

func newGenerator() (*ledger.JournalGenerator, *ledger.BalanceTracker) {
	bt := ledger.NewBalanceTracker()
	return ledger.NewJournalGenerator(0, bt), bt
}

func TestGenerateTrancheDeposit(t *testing.T) {
	jg, bt := newGenerator()
	userID := uuid.New()

	batch, err := jg.GenerateTrancheDeposit(userID, "op-1", ledger.SubTypeTrancheJunior, 5_000, 1_700_000_000)
	if err != nil {
		t.Fatalf("GenerateTrancheDeposit failed: %v", err)
	}
	if len(batch.Journals) != 1 {
		t.Fatalf("expected 1 journal, got %d", len(batch.Journals))
	}
	if batch.Journals[0].JournalType != ledger.JournalTypeTrancheDeposit {
		t.Errorf("wrong journal type: %d", batch.Journals[0].JournalType)
	}

	if err := bt.ApplyBatch(batch); err != nil {
		t.Fatalf("ApplyBatch failed: %v", err)
	}
	if got := bt.GetTrancheBalance(userID, ledger.SubTypeTrancheJunior); got != 5_000 {
		t.Errorf("junior principal: got %d, want 5_000", got)
	}
	if jg.Sequence() != 1 {
		t.Errorf("sequence should advance to 1, got %d", jg.Sequence())
	}
}

func TestGenerateTrancheWithdrawal_PreCheckFails(t *testing.T) {
	jg, _ := newGenerator()
	_, err := jg.GenerateTrancheWithdrawal(uuid.New(), "op-1", ledger.SubTypeTrancheJunior, 100, 1_700_000_000)
	if err == nil {
		t.Error("withdrawal without balance should fail the pre-check")
	}
}

func TestGenerateLoanRepayment_SplitsInterest(t *testing.T) {
	jg, bt := newGenerator()
	borrowerID := uuid.New()

	// Disburse first so the loan account carries the outstanding principal
	batch, err := jg.GenerateLoanDisbursement(borrowerID, "op-1", 10_000, 1_700_000_000)
	if err != nil {
		t.Fatalf("GenerateLoanDisbursement failed: %v", err)
	}
	if err := bt.ApplyBatch(batch); err != nil {
		t.Fatalf("ApplyBatch failed: %v", err)
	}

	batch, err = jg.GenerateLoanRepayment(borrowerID, "op-2", 10_000, 400, 100, 1_700_000_100)
	if err != nil {
		t.Fatalf("GenerateLoanRepayment failed: %v", err)
	}
	if len(batch.Journals) != 3 {
		t.Fatalf("expected 3 journals (principal, LP interest, fee), got %d", len(batch.Journals))
	}
	if err := bt.ApplyBatch(batch); err != nil {
		t.Fatalf("ApplyBatch failed: %v", err)
	}

	if got := bt.GetLoanOutstanding(borrowerID); got != 0 {
		t.Errorf("loan outstanding after repay: got %d, want 0", got)
	}
	if got := bt.GetInterestReserve(); got != 400 {
		t.Errorf("interest reserve: got %d, want 400", got)
	}
	if got := bt.GetFeeBalance(); got != 100 {
		t.Errorf("fee balance: got %d, want 100", got)
	}
}

func TestGenerateLoanRepayment_ZeroInterestOmitsLegs(t *testing.T) {
	jg, bt := newGenerator()
	borrowerID := uuid.New()

	batch, _ := jg.GenerateLoanDisbursement(borrowerID, "op-1", 10_000, 1_700_000_000)
	if err := bt.ApplyBatch(batch); err != nil {
		t.Fatalf("ApplyBatch failed: %v", err)
	}

	batch, err := jg.GenerateLoanRepayment(borrowerID, "op-2", 10_000, 0, 0, 1_700_000_000)
	if err != nil {
		t.Fatalf("GenerateLoanRepayment failed: %v", err)
	}
	if len(batch.Journals) != 1 {
		t.Errorf("zero interest should produce only the principal leg, got %d journals", len(batch.Journals))
	}
}

func TestGenerateLiquidation_AtomicBatch(t *testing.T) {
	jg, bt := newGenerator()
	borrowerID := uuid.New()
	lpA, lpB := uuid.New(), uuid.New()

	batch, _ := jg.GenerateLoanDisbursement(borrowerID, "op-1", 1_500, 1_700_000_000)
	if err := bt.ApplyBatch(batch); err != nil {
		t.Fatalf("ApplyBatch failed: %v", err)
	}
	// Borrower staked collateral backs the slash leg
	bt.ApplyJournal(ledger.Journal{
		JournalID:     uuid.New(),
		BatchID:       uuid.New(),
		DebitAccount:  ledger.NewUserAccountKey(borrowerID, ledger.SubTypeStaked, ledger.AssetCLT),
		CreditAccount: ledger.NewExternalAccountKey(ledger.SubTypeExternalCollateralIn, ledger.AssetCLT),
		AssetID:       ledger.AssetCLT,
		Amount:        800,
	})

	absorptions := []ledger.AbsorptionLeg{
		{UserID: lpA, TrancheSubType: ledger.SubTypeTrancheJunior, Amount: 1_000},
		{UserID: lpB, TrancheSubType: ledger.SubTypeTrancheSenior, Amount: 500},
		{UserID: uuid.New(), TrancheSubType: ledger.SubTypeTrancheSenior, Amount: 0}, // skipped
	}

	batch, err := jg.GenerateLiquidation(borrowerID, "op-2", 1_500, absorptions, 800, 1_700_000_100)
	if err != nil {
		t.Fatalf("GenerateLiquidation failed: %v", err)
	}

	// write-off + 2 non-zero absorptions + slash
	if len(batch.Journals) != 4 {
		t.Fatalf("expected 4 journals, got %d", len(batch.Journals))
	}
	if err := bt.ApplyBatch(batch); err != nil {
		t.Fatalf("ApplyBatch failed: %v", err)
	}

	if got := bt.GetLoanOutstanding(borrowerID); got != 0 {
		t.Errorf("loan outstanding after write-off: got %d, want 0", got)
	}
	if got := bt.GetStakedBalance(borrowerID); got != 0 {
		t.Errorf("staked balance after slash: got %d, want 0", got)
	}
	if got := bt.GetSlashedCollateral(); got != 800 {
		t.Errorf("treasury slashed collateral: got %d, want 800", got)
	}
}

func TestGenerateFeeWithdrawal_PreCheckFails(t *testing.T) {
	jg, _ := newGenerator()
	if _, err := jg.GenerateFeeWithdrawal("op-1", 100, 1_700_000_000); err == nil {
		t.Error("fee withdrawal without accumulated fees should fail")
	}
}

// ============================================================================
// Test: InvariantValidator
// ============================================================================

func TestInvariantValidator_GlobalBalanceZero(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	v := ledger.NewInvariantValidator(bt)

	if err := v.ValidateGlobalBalance(); err != nil {
		t.Errorf("empty ledger should be zero-sum: %v", err)
	}

	bt.ApplyJournal(depositJournal(uuid.New(), 1_000_000))

	if err := v.ValidateGlobalBalance(); err != nil {
		t.Errorf("balanced ledger should be zero-sum: %v", err)
	}
}

func TestInvariantValidator_TrancheAggregate(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	v := ledger.NewInvariantValidator(bt)
	userID := uuid.New()

	bt.ApplyJournal(depositJournal(userID, 2_000))

	if err := v.ValidateTrancheAggregate(ledger.SubTypeTrancheJunior, 2_000); err != nil {
		t.Errorf("matching aggregate should pass: %v", err)
	}
	if err := v.ValidateTrancheAggregate(ledger.SubTypeTrancheJunior, 1_999); err == nil {
		t.Error("mismatched aggregate should fail")
	}
}

func TestInvariantValidator_LiquidityConservation(t *testing.T) {
	v := ledger.NewInvariantValidator(ledger.NewBalanceTracker())

	if err := v.ValidateLiquidityConservation(1_000, 1_000); err != nil {
		t.Errorf("borrowed == deposited should pass: %v", err)
	}
	if err := v.ValidateLiquidityConservation(1_000, 1_001); err == nil {
		t.Error("borrowed > deposited should fail")
	}
}
