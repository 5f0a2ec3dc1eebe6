package creditmath_test

import (
	"testing"

	"CrediLedger/internal/creditmath"

	"github.com/google/uuid"
)

// ============================================================================
// Test: Linear Interest
// ============================================================================

func TestComputeLinearInterest_FullYear(t *testing.T) {
	// 1000 USDX at 10% APY for 365 days = 100 USDX
	principal := int64(1_000_000_000) // 1000 at scale 1e6
	got := creditmath.ComputeLinearInterest(principal, 1_000, creditmath.SecondsPerYear)
	if got != 100_000_000 {
		t.Errorf("got %d, want 100_000_000", got)
	}
}

func TestComputeLinearInterest_HalfYear(t *testing.T) {
	principal := int64(1_000_000_000)
	got := creditmath.ComputeLinearInterest(principal, 1_200, creditmath.SecondsPerYear/2)
	if got != 60_000_000 {
		t.Errorf("got %d, want 60_000_000", got)
	}
}

func TestComputeLinearInterest_ZeroElapsed(t *testing.T) {
	if got := creditmath.ComputeLinearInterest(1_000_000, 1_000, 0); got != 0 {
		t.Errorf("zero elapsed should yield zero interest, got %d", got)
	}
}

func TestComputeLinearInterest_NegativeElapsed(t *testing.T) {
	if got := creditmath.ComputeLinearInterest(1_000_000, 1_000, -60); got != 0 {
		t.Errorf("negative elapsed should yield zero interest, got %d", got)
	}
}

func TestComputeLinearInterest_ZeroPrincipal(t *testing.T) {
	if got := creditmath.ComputeLinearInterest(0, 1_000, creditmath.SecondsPerYear); got != 0 {
		t.Errorf("zero principal should yield zero interest, got %d", got)
	}
}

func TestComputeLinearInterest_BankersRounding(t *testing.T) {
	// 1 unit at 50% for a year is exactly 0.5; banker's rounding goes to 0 (even)
	if got := creditmath.ComputeLinearInterest(1, 5_000, creditmath.SecondsPerYear); got != 0 {
		t.Errorf("0.5 should round to 0 (even), got %d", got)
	}
	// 3 units at 50% is exactly 1.5; rounds up to 2 (even)
	if got := creditmath.ComputeLinearInterest(3, 5_000, creditmath.SecondsPerYear); got != 2 {
		t.Errorf("1.5 should round to 2 (even), got %d", got)
	}
}

func TestComputeLinearInterest_LargePrincipalNoOverflow(t *testing.T) {
	// principal * rate * elapsed overflows int64; int128 intermediates must not
	principal := int64(1_000_000_000_000_000) // 1B USDX
	got := creditmath.ComputeLinearInterest(principal, 1_000, creditmath.SecondsPerYear)
	if got != 100_000_000_000_000 {
		t.Errorf("got %d, want 100_000_000_000_000", got)
	}
}

// ============================================================================
// Test: BpsOf / PercentOf
// ============================================================================

func TestBpsOf(t *testing.T) {
	if got := creditmath.BpsOf(1_000_000, 2_500); got != 250_000 {
		t.Errorf("25%% of 1_000_000: got %d, want 250_000", got)
	}
}

func TestBpsOf_HalfRoundsToEven(t *testing.T) {
	if got := creditmath.BpsOf(1, 5_000); got != 0 {
		t.Errorf("0.5 should round to 0, got %d", got)
	}
	if got := creditmath.BpsOf(3, 5_000); got != 2 {
		t.Errorf("1.5 should round to 2, got %d", got)
	}
}

func TestPercentOf_FloorsTowardZero(t *testing.T) {
	// 50% of 999 = 499.5, floor keeps caps conservative
	if got := creditmath.PercentOf(999, 50); got != 499 {
		t.Errorf("got %d, want 499", got)
	}
}

func TestProRataShare(t *testing.T) {
	if got := creditmath.ProRataShare(300, 1_000, 900); got != 333 {
		t.Errorf("got %d, want 333", got)
	}
	if got := creditmath.ProRataShare(300, 1_000, 0); got != 0 {
		t.Errorf("zero whole should yield 0, got %d", got)
	}
}

// ============================================================================
// Test: DistributeProRata
// ============================================================================

func holderID(b byte) [16]byte {
	var id [16]byte
	id[15] = b
	return id
}

func TestDistributeProRata_SumsExactly(t *testing.T) {
	holders := []creditmath.HolderShare{
		{HolderID: holderID(1), Weight: 1_000},
		{HolderID: holderID(2), Weight: 1_000},
		{HolderID: holderID(3), Weight: 1_000},
	}

	result := creditmath.DistributeProRata(100, holders)

	var sum int64
	for _, h := range result {
		sum += h.Amount
	}
	if sum != 100 {
		t.Errorf("distributed total: got %d, want 100", sum)
	}
}

func TestDistributeProRata_ResidualToSmallestID(t *testing.T) {
	// 100 over three equal weights: floor gives 33 each, residual 1.
	// Remainders tie, so the lowest holder ID gets the extra unit.
	holders := []creditmath.HolderShare{
		{HolderID: holderID(3), Weight: 1_000},
		{HolderID: holderID(1), Weight: 1_000},
		{HolderID: holderID(2), Weight: 1_000},
	}

	result := creditmath.DistributeProRata(100, holders)

	for _, h := range result {
		want := int64(33)
		if h.HolderID == holderID(1) {
			want = 34
		}
		if h.Amount != want {
			t.Errorf("holder %v: got %d, want %d", h.HolderID[15], h.Amount, want)
		}
	}
}

func TestDistributeProRata_NeverExceedsWeight(t *testing.T) {
	holders := []creditmath.HolderShare{
		{HolderID: holderID(1), Weight: 1},
		{HolderID: holderID(2), Weight: 999},
	}

	result := creditmath.DistributeProRata(1_000, holders)

	var sum int64
	for _, h := range result {
		if h.Amount > h.Weight {
			t.Errorf("holder %v amount %d exceeds weight %d", h.HolderID[15], h.Amount, h.Weight)
		}
		sum += h.Amount
	}
	if sum != 1_000 {
		t.Errorf("distributed total: got %d, want 1_000", sum)
	}
}

func TestDistributeProRata_ZeroTotal(t *testing.T) {
	holders := []creditmath.HolderShare{
		{HolderID: holderID(1), Weight: 500},
	}
	result := creditmath.DistributeProRata(0, holders)
	if result[0].Amount != 0 {
		t.Errorf("zero total should assign nothing, got %d", result[0].Amount)
	}
}

func TestDistributeProRata_Deterministic(t *testing.T) {
	mk := func() []creditmath.HolderShare {
		ids := []uuid.UUID{
			uuid.MustParse("00000000-0000-0000-0000-000000000007"),
			uuid.MustParse("00000000-0000-0000-0000-000000000002"),
			uuid.MustParse("00000000-0000-0000-0000-000000000005"),
		}
		return []creditmath.HolderShare{
			{HolderID: [16]byte(ids[0]), Weight: 333},
			{HolderID: [16]byte(ids[1]), Weight: 334},
			{HolderID: [16]byte(ids[2]), Weight: 333},
		}
	}

	a := creditmath.DistributeProRata(100, mk())
	b := creditmath.DistributeProRata(100, mk())

	if len(a) != len(b) {
		t.Fatalf("length mismatch: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].HolderID != b[i].HolderID || a[i].Amount != b[i].Amount {
			t.Errorf("run mismatch at %d: %v/%d vs %v/%d",
				i, a[i].HolderID, a[i].Amount, b[i].HolderID, b[i].Amount)
		}
	}
}
