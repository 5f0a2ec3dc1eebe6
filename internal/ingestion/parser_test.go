package ingestion_test

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"

	"CrediLedger/internal/ingestion"
	"CrediLedger/internal/op"
)

func parse(t *testing.T, opType, payload string) op.Operation {
	t.Helper()
	parsed, err := ingestion.ParseRawOp(ingestion.RawOp{Data: []byte(payload)}, opType)
	if err != nil {
		t.Fatalf("ParseRawOp(%s) failed: %v", opType, err)
	}
	return parsed
}

// ============================================================================
// Test: happy-path parsing
// ============================================================================

func TestParseTrancheDeposit(t *testing.T) {
	payload := `{
		"op_id": "550e8400-e29b-41d4-a716-446655440000",
		"account_id": "550e8400-e29b-41d4-a716-446655440001",
		"tranche": "senior",
		"amount": 1000000,
		"lock_duration": 7776000,
		"sequence": 42,
		"timestamp": 1700000000
	}`

	parsed := parse(t, "TrancheDeposit", payload)
	dep, ok := parsed.(*op.TrancheDeposit)
	if !ok {
		t.Fatalf("wrong type: %T", parsed)
	}

	if dep.Tranche != "senior" {
		t.Errorf("tranche: got %q, want senior", dep.Tranche)
	}
	if dep.Amount != 1_000_000 {
		t.Errorf("amount: got %d, want 1_000_000", dep.Amount)
	}
	if dep.LockDuration != 7_776_000 {
		t.Errorf("lock_duration: got %d, want 7_776_000", dep.LockDuration)
	}
	if dep.SourceSequence() != 42 {
		t.Errorf("sequence: got %d, want 42", dep.SourceSequence())
	}
	if dep.IdempotencyKey() != "550e8400-e29b-41d4-a716-446655440000" {
		t.Errorf("idempotency key: got %q", dep.IdempotencyKey())
	}
	if dep.Partition() != "550e8400-e29b-41d4-a716-446655440001" {
		t.Errorf("partition: got %q", dep.Partition())
	}
}

func TestParseLegacyWithdraw_DefaultsToJunior(t *testing.T) {
	payload := `{
		"op_id": "550e8400-e29b-41d4-a716-446655440000",
		"account_id": "550e8400-e29b-41d4-a716-446655440001",
		"amount": 250000,
		"sequence": 5,
		"timestamp": 1700000000
	}`

	parsed := parse(t, "Withdraw", payload)
	w, ok := parsed.(*op.TrancheWithdraw)
	if !ok {
		t.Fatalf("wrong type: %T", parsed)
	}
	if w.Tranche != "junior" {
		t.Errorf("tranche: got %q, want junior", w.Tranche)
	}

	// An explicit tranche passes through untouched
	explicit := `{
		"op_id": "550e8400-e29b-41d4-a716-446655440000",
		"account_id": "550e8400-e29b-41d4-a716-446655440001",
		"tranche": "senior",
		"amount": 250000,
		"sequence": 6,
		"timestamp": 1700000000
	}`
	w = parse(t, "Withdraw", explicit).(*op.TrancheWithdraw)
	if w.Tranche != "senior" {
		t.Errorf("explicit tranche: got %q, want senior", w.Tranche)
	}
}

func TestParseStakeDeposit(t *testing.T) {
	payload := `{
		"op_id": "550e8400-e29b-41d4-a716-446655440000",
		"account_id": "550e8400-e29b-41d4-a716-446655440001",
		"amount": 5000000,
		"duration": 2592000,
		"sequence": 1,
		"timestamp": 1700000000
	}`

	parsed := parse(t, "StakeDeposit", payload)
	stake, ok := parsed.(*op.StakeDeposit)
	if !ok {
		t.Fatalf("wrong type: %T", parsed)
	}
	if stake.Duration != 2_592_000 {
		t.Errorf("duration: got %d, want 2_592_000", stake.Duration)
	}
}

func TestParseInvoiceBorrow(t *testing.T) {
	payload := `{
		"op_id": "550e8400-e29b-41d4-a716-446655440000",
		"account_id": "550e8400-e29b-41d4-a716-446655440001",
		"invoice_id": "550e8400-e29b-41d4-a716-446655440002",
		"amount": 3000000,
		"sequence": 7,
		"timestamp": 1700000000
	}`

	parsed := parse(t, "InvoiceBorrow", payload)
	borrow, ok := parsed.(*op.InvoiceBorrow)
	if !ok {
		t.Fatalf("wrong type: %T", parsed)
	}
	if borrow.InvoiceID.String() != "550e8400-e29b-41d4-a716-446655440002" {
		t.Errorf("invoice_id: got %q", borrow.InvoiceID)
	}
	if borrow.Amount != 3_000_000 {
		t.Errorf("amount: got %d, want 3_000_000", borrow.Amount)
	}
}

func TestParseLoanLiquidate(t *testing.T) {
	payload := `{
		"op_id": "550e8400-e29b-41d4-a716-446655440000",
		"invoice_id": "550e8400-e29b-41d4-a716-446655440002",
		"sequence": 9,
		"timestamp": 1700000000
	}`

	parsed := parse(t, "LoanLiquidate", payload)
	liq, ok := parsed.(*op.LoanLiquidate)
	if !ok {
		t.Fatalf("wrong type: %T", parsed)
	}

	// Keeper-initiated: partition keys on the invoice, not an actor
	want := "liquidate:550e8400-e29b-41d4-a716-446655440002"
	if liq.Partition() != want {
		t.Errorf("partition: got %q, want %q", liq.Partition(), want)
	}
}

func TestParseRewardClaim(t *testing.T) {
	payload := `{
		"op_id": "550e8400-e29b-41d4-a716-446655440000",
		"account_id": "550e8400-e29b-41d4-a716-446655440001",
		"stake_id": "550e8400-e29b-41d4-a716-446655440003",
		"sequence": 3,
		"timestamp": 1700000000
	}`

	parsed := parse(t, "RewardClaim", payload)
	claim, ok := parsed.(*op.RewardClaim)
	if !ok {
		t.Fatalf("wrong type: %T", parsed)
	}
	if claim.StakeID.String() != "550e8400-e29b-41d4-a716-446655440003" {
		t.Errorf("stake_id: got %q", claim.StakeID)
	}
}

func TestParsePoolParamUpdate(t *testing.T) {
	payload := `{
		"op_id": "550e8400-e29b-41d4-a716-446655440000",
		"admin_id": "550e8400-e29b-41d4-a716-446655440004",
		"junior_rate_bps": 1500,
		"senior_rate_bps": 700,
		"borrow_rate_bps": 1100,
		"fee_skim_bps": 2500,
		"borrow_cap_pct": 70,
		"tier_step_pct": 5,
		"utilization_cap": 9000,
		"sequence": 0,
		"timestamp": 1700000000
	}`

	parsed := parse(t, "PoolParamUpdate", payload)
	upd, ok := parsed.(*op.PoolParamUpdate)
	if !ok {
		t.Fatalf("wrong type: %T", parsed)
	}
	if upd.JuniorRateBps != 1_500 || upd.SeniorRateBps != 700 {
		t.Errorf("rates: got %d/%d, want 1500/700", upd.JuniorRateBps, upd.SeniorRateBps)
	}
	if upd.Partition() != "admin:550e8400-e29b-41d4-a716-446655440004" {
		t.Errorf("partition: got %q", upd.Partition())
	}
}

// ============================================================================
// Test: log round-trip
// ============================================================================

// Logged envelopes carry the marshalled operation struct. Startup replay
// feeds that payload back through the parser, so the struct's JSON tags
// must line up with the wire field names.
func TestParseRawOp_RoundTripsMarshalledOp(t *testing.T) {
	orig := &op.TrancheDeposit{
		OpID:         uuid.MustParse("550e8400-e29b-41d4-a716-446655440000"),
		AccountID:    uuid.MustParse("550e8400-e29b-41d4-a716-446655440001"),
		Tranche:      "senior",
		Amount:       4_200_000,
		LockDuration: 7_776_000,
		Sequence:     13,
		Timestamp:    1_700_000_500,
	}

	data, err := json.Marshal(orig)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	parsed := parse(t, orig.OpType().String(), string(data))
	got, ok := parsed.(*op.TrancheDeposit)
	if !ok {
		t.Fatalf("wrong type: %T", parsed)
	}
	if *got != *orig {
		t.Errorf("round trip changed the operation:\n  got  %+v\n  want %+v", got, orig)
	}
}

// ============================================================================
// Test: error handling
// ============================================================================

func TestParseRawOp_UnknownType(t *testing.T) {
	_, err := ingestion.ParseRawOp(ingestion.RawOp{Data: []byte(`{}`)}, "MarginCall")
	if err == nil {
		t.Error("unknown op type should fail")
	}
}

func TestParseRawOp_InvalidJSON(t *testing.T) {
	_, err := ingestion.ParseRawOp(ingestion.RawOp{Data: []byte(`{not json`)}, "TrancheDeposit")
	if err == nil {
		t.Error("malformed JSON should fail")
	}
}

func TestParseRawOp_BadUUID(t *testing.T) {
	payload := `{
		"op_id": "not-a-uuid",
		"account_id": "550e8400-e29b-41d4-a716-446655440001",
		"tranche": "junior",
		"amount": 100,
		"sequence": 0,
		"timestamp": 1700000000
	}`
	_, err := ingestion.ParseRawOp(ingestion.RawOp{Data: []byte(payload)}, "TrancheDeposit")
	if err == nil {
		t.Error("invalid op_id should fail")
	}
}
