package staking_test

import (
	"errors"
	"testing"

	"CrediLedger/internal/creditmath"
	"CrediLedger/internal/params"
	"CrediLedger/internal/protocol"
	"CrediLedger/internal/staking"

	"github.com/google/uuid"
)

const t0 = int64(1_700_000_000)

func term(d int64) *params.StakeTerm {
	term, ok := params.DefaultStakeTerms[d]
	if !ok {
		panic("unknown default stake term")
	}
	return term
}

const (
	day      = int64(86_400)
	term30d  = 30 * day
	term90d  = 90 * day
	term365d = 365 * day
)

// ============================================================================
// Test: Stake
// ============================================================================

func TestStake_GrantsPointsByMultiplier(t *testing.T) {
	r := staking.NewRegistry()
	userID := uuid.New()

	// 1000 CLT on the 90-day term (1.5x) = 1500 points
	p, err := r.Stake(userID, 1_000_000_000, term(term90d), t0)
	if err != nil {
		t.Fatalf("Stake failed: %v", err)
	}
	if p.Points != 1_500_000_000 {
		t.Errorf("points: got %d, want 1_500_000_000", p.Points)
	}
	if p.UnlockTime != t0+term90d {
		t.Errorf("unlock time: got %d, want %d", p.UnlockTime, t0+term90d)
	}
	if got := r.StakedAmount(userID); got != 1_000_000_000 {
		t.Errorf("staked amount: got %d, want 1_000_000_000", got)
	}
	if !r.HasActiveStake(userID) {
		t.Error("expected an active stake")
	}
}

func TestStake_NonPositiveAmount_Fails(t *testing.T) {
	r := staking.NewRegistry()
	if _, err := r.Stake(uuid.New(), 0, term(term30d), t0); !errors.Is(err, protocol.ErrInvalidAmount) {
		t.Errorf("got %v, want ErrInvalidAmount", err)
	}
}

// ============================================================================
// Test: Loyalty tiers
// ============================================================================

func TestGetTier_Thresholds(t *testing.T) {
	cases := []struct {
		amount int64 // staked on the 30-day 1x term
		want   staking.Tier
	}{
		{999_999_999, staking.TierNone},
		{1_000_000_000, staking.TierBronze},
		{5_000_000_000, staking.TierSilver},
		{20_000_000_000, staking.TierGold},
		{50_000_000_000, staking.TierDiamond},
	}

	for _, tc := range cases {
		r := staking.NewRegistry()
		userID := uuid.New()
		if _, err := r.Stake(userID, tc.amount, term(term30d), t0); err != nil {
			t.Fatalf("Stake(%d) failed: %v", tc.amount, err)
		}
		if got := r.GetTier(userID); got != tc.want {
			t.Errorf("amount %d: got tier %v, want %v", tc.amount, got, tc.want)
		}
	}
}

func TestGetTier_SumsAcrossPositions(t *testing.T) {
	r := staking.NewRegistry()
	userID := uuid.New()

	// Two 30-day positions of 3000 CLT each: 6000 points combined = silver
	r.Stake(userID, 3_000_000_000, term(term30d), t0)
	r.Stake(userID, 3_000_000_000, term(term30d), t0+10)

	if got := r.GetTier(userID); got != staking.TierSilver {
		t.Errorf("combined tier: got %v, want silver", got)
	}
}

func TestGetTier_NoStake(t *testing.T) {
	r := staking.NewRegistry()
	if got := r.GetTier(uuid.New()); got != staking.TierNone {
		t.Errorf("got %v, want none", got)
	}
}

// ============================================================================
// Test: Release
// ============================================================================

func TestRelease_BeforeUnlock_Fails(t *testing.T) {
	r := staking.NewRegistry()
	userID := uuid.New()
	p, _ := r.Stake(userID, 1_000_000_000, term(term30d), t0)

	_, _, err := r.Release(userID, p.StakeID, p.UnlockTime-1)
	if !errors.Is(err, protocol.ErrStakingPeriodNotEnded) {
		t.Errorf("got %v, want ErrStakingPeriodNotEnded", err)
	}
}

func TestRelease_PaysPrincipalAndReward(t *testing.T) {
	r := staking.NewRegistry()
	userID := uuid.New()

	// 1000 CLT on the 365-day term (20% APY): full-term reward is 200 USDX
	p, _ := r.Stake(userID, 1_000_000_000, term(term365d), t0)

	principal, reward, err := r.Release(userID, p.StakeID, p.UnlockTime)
	if err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if principal != 1_000_000_000 {
		t.Errorf("principal: got %d, want 1_000_000_000", principal)
	}
	if reward != 200_000_000 {
		t.Errorf("reward: got %d, want 200_000_000", reward)
	}
	if r.HasActiveStake(userID) {
		t.Error("position should be inactive after release")
	}
}

func TestRelease_RewardCapsAtTermEnd(t *testing.T) {
	r := staking.NewRegistry()
	userID := uuid.New()
	p, _ := r.Stake(userID, 1_000_000_000, term(term365d), t0)

	// Releasing long after unlock pays no more than the full-term reward
	_, reward, err := r.Release(userID, p.StakeID, p.UnlockTime+10*creditmath.SecondsPerYear)
	if err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if reward != 200_000_000 {
		t.Errorf("capped reward: got %d, want 200_000_000", reward)
	}
}

func TestRelease_WrongOwner_Fails(t *testing.T) {
	r := staking.NewRegistry()
	owner, other := uuid.New(), uuid.New()
	p, _ := r.Stake(owner, 1_000_000_000, term(term30d), t0)
	r.Stake(other, 1_000_000_000, term(term30d), t0)

	if _, _, err := r.Release(other, p.StakeID, p.UnlockTime); !errors.Is(err, protocol.ErrNoStakeFound) {
		t.Errorf("got %v, want ErrNoStakeFound", err)
	}
}

func TestRelease_Twice_Fails(t *testing.T) {
	r := staking.NewRegistry()
	userID := uuid.New()
	p, _ := r.Stake(userID, 1_000_000_000, term(term30d), t0)

	if _, _, err := r.Release(userID, p.StakeID, p.UnlockTime); err != nil {
		t.Fatalf("first release failed: %v", err)
	}
	if _, _, err := r.Release(userID, p.StakeID, p.UnlockTime); err == nil {
		t.Error("second release should fail")
	}
}

// ============================================================================
// Test: ClaimRewards
// ============================================================================

func TestClaimRewards_PartialThenRelease(t *testing.T) {
	r := staking.NewRegistry()
	userID := uuid.New()
	p, _ := r.Stake(userID, 1_000_000_000, term(term365d), t0)

	// Claim at the halfway mark: 100 USDX
	reward, err := r.ClaimRewards(userID, p.StakeID, t0+term365d/2)
	if err != nil {
		t.Fatalf("ClaimRewards failed: %v", err)
	}
	if reward != 100_000_000 {
		t.Errorf("half-term claim: got %d, want 100_000_000", reward)
	}

	// Release at term end pays only the unclaimed remainder
	_, remainder, err := r.Release(userID, p.StakeID, p.UnlockTime)
	if err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if remainder != 100_000_000 {
		t.Errorf("remainder at release: got %d, want 100_000_000", remainder)
	}
}

func TestClaimRewards_NothingAccrued_Fails(t *testing.T) {
	r := staking.NewRegistry()
	userID := uuid.New()
	p, _ := r.Stake(userID, 1_000_000_000, term(term30d), t0)

	if _, err := r.ClaimRewards(userID, p.StakeID, t0); !errors.Is(err, protocol.ErrInsufficientBalance) {
		t.Errorf("got %v, want ErrInsufficientBalance", err)
	}
}

// ============================================================================
// Test: Borrow earmarks
// ============================================================================

func TestLockForBorrow_OldestFirstAndCapped(t *testing.T) {
	r := staking.NewRegistry()
	userID := uuid.New()

	first, _ := r.Stake(userID, 1_000_000_000, term(term30d), t0)
	second, _ := r.Stake(userID, 2_000_000_000, term(term90d), t0+10)

	// A draw larger than total collateral earmarks everything it can
	locked := r.LockForBorrow(userID, 4_000_000_000)
	if locked != 3_000_000_000 {
		t.Errorf("earmarked: got %d, want 3_000_000_000", locked)
	}

	p1, _ := r.GetPosition(first.StakeID)
	p2, _ := r.GetPosition(second.StakeID)
	if p1.LockedForBorrow != 1_000_000_000 {
		t.Errorf("oldest position earmark: got %d, want 1_000_000_000", p1.LockedForBorrow)
	}
	if p2.LockedForBorrow != 2_000_000_000 {
		t.Errorf("second position earmark: got %d, want 2_000_000_000", p2.LockedForBorrow)
	}

	usage := r.StakeUsage(userID)
	if usage.Staked != 3_000_000_000 || usage.LockedForBorrow != 3_000_000_000 || usage.Free != 0 {
		t.Errorf("usage: got %+v, want fully earmarked", usage)
	}
}

func TestReleaseBorrowLock_FreesOldestFirst(t *testing.T) {
	r := staking.NewRegistry()
	userID := uuid.New()

	r.Stake(userID, 1_000_000_000, term(term30d), t0)
	r.Stake(userID, 2_000_000_000, term(term90d), t0+10)
	r.LockForBorrow(userID, 2_500_000_000)

	r.ReleaseBorrowLock(userID, 1_500_000_000)

	usage := r.StakeUsage(userID)
	if usage.LockedForBorrow != 1_000_000_000 {
		t.Errorf("earmark after release: got %d, want 1_000_000_000", usage.LockedForBorrow)
	}
	if usage.Free != 2_000_000_000 {
		t.Errorf("free after release: got %d, want 2_000_000_000", usage.Free)
	}

	// Over-release is ignored past the earmarked total
	r.ReleaseBorrowLock(userID, 5_000_000_000)
	if got := r.StakeUsage(userID).LockedForBorrow; got != 0 {
		t.Errorf("earmark after over-release: got %d, want 0", got)
	}
}

func TestRelease_CarriesEarmarkToRemainingStakes(t *testing.T) {
	r := staking.NewRegistry()
	userID := uuid.New()

	short, _ := r.Stake(userID, 1_000_000_000, term(term30d), t0)
	r.Stake(userID, 2_000_000_000, term(term365d), t0)
	r.LockForBorrow(userID, 800_000_000)

	// Unstaking the earmarked short-term position moves its earmark onto
	// the remaining long-term stake
	if _, _, err := r.Release(userID, short.StakeID, short.UnlockTime); err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	usage := r.StakeUsage(userID)
	if usage.Staked != 2_000_000_000 {
		t.Errorf("staked after release: got %d, want 2_000_000_000", usage.Staked)
	}
	if usage.LockedForBorrow != 800_000_000 {
		t.Errorf("carried earmark: got %d, want 800_000_000", usage.LockedForBorrow)
	}
}

func TestStakeUsage_NoStake(t *testing.T) {
	r := staking.NewRegistry()
	usage := r.StakeUsage(uuid.New())
	if usage.Staked != 0 || usage.LockedForBorrow != 0 || usage.Free != 0 {
		t.Errorf("usage for stranger: got %+v, want zeroes", usage)
	}
}

// ============================================================================
// Test: SlashAll
// ============================================================================

func TestSlashAll_SeizesEveryActivePosition(t *testing.T) {
	r := staking.NewRegistry()
	userID := uuid.New()

	r.Stake(userID, 1_000_000_000, term(term30d), t0)
	r.Stake(userID, 2_000_000_000, term(term90d), t0+10)
	r.LockForBorrow(userID, 1_500_000_000)

	total, err := r.SlashAll(userID)
	if err != nil {
		t.Fatalf("SlashAll failed: %v", err)
	}
	if total != 3_000_000_000 {
		t.Errorf("seized: got %d, want 3_000_000_000", total)
	}
	if r.HasActiveStake(userID) {
		t.Error("no position should remain active after slash")
	}
	if got := r.GetTier(userID); got != staking.TierNone {
		t.Errorf("tier after slash: got %v, want none", got)
	}
	if got := r.StakeUsage(userID).LockedForBorrow; got != 0 {
		t.Errorf("earmark after slash: got %d, want 0", got)
	}
}

func TestSlashAll_NoActiveStake_Fails(t *testing.T) {
	r := staking.NewRegistry()
	if _, err := r.SlashAll(uuid.New()); !errors.Is(err, protocol.ErrNoStakeFound) {
		t.Errorf("got %v, want ErrNoStakeFound", err)
	}
}

// ============================================================================
// Test: Snapshot round trip
// ============================================================================

func TestSnapshotRestore_RoundTrip(t *testing.T) {
	r := staking.NewRegistry()
	userID := uuid.New()
	r.Stake(userID, 1_000_000_000, term(term30d), t0)
	released, _ := r.Stake(userID, 500_000_000, term(term30d), t0+10)
	r.Release(userID, released.StakeID, released.UnlockTime)

	restored := staking.NewRegistry()
	for _, p := range r.AllPositions() {
		copied := *p
		restored.RestorePosition(&copied)
	}

	if got := restored.StakedAmount(userID); got != 1_000_000_000 {
		t.Errorf("restored staked amount: got %d, want 1_000_000_000", got)
	}
	if got := restored.ActivePoints(userID); got != 1_000_000_000 {
		t.Errorf("restored active points: got %d, want 1_000_000_000", got)
	}
}
