package staking

import (
	"CrediLedger/internal/creditmath"
	"CrediLedger/internal/params"
	"CrediLedger/internal/protocol"

	"github.com/google/uuid"
)

// Tier is the loyalty tier derived from active staking points
type Tier int64

const (
	TierNone Tier = iota
	TierBronze
	TierSilver
	TierGold
	TierDiamond
)

func (t Tier) String() string {
	switch t {
	case TierBronze:
		return "bronze"
	case TierSilver:
		return "silver"
	case TierGold:
		return "gold"
	case TierDiamond:
		return "diamond"
	}
	return "none"
}

// Point thresholds per tier, highest first. Points share the amount scale.
var tierThresholds = []struct {
	Tier      Tier
	MinPoints int64
}{
	{TierDiamond, 50_000_000_000},
	{TierGold, 20_000_000_000},
	{TierSilver, 5_000_000_000},
	{TierBronze, 1_000_000_000},
}

// Position is one time-locked collateral stake. Points are fixed at stake
// time from the term's multiplier; rewards accrue linearly and cap at the
// term end. LockedForBorrow is the share of Amount earmarked as security
// for open loans; earmarked principal stays staked and keeps earning.
type Position struct {
	StakeID         uuid.UUID
	AccountID       uuid.UUID
	Amount          int64 // Fixed-point CLT
	Points          int64
	Duration        int64 // Seconds
	RewardRateBps   int64
	StartTime       int64
	UnlockTime      int64
	RewardsClaimed  int64
	LockedForBorrow int64
	Active          bool
	Version         int64
}

// Registry manages collateral stake positions and loyalty tiers
type Registry struct {
	positions   map[uuid.UUID]*Position
	byOwner     map[uuid.UUID][]uuid.UUID // insertion order
	totalStaked map[uuid.UUID]int64       // active principal per owner
}

func NewRegistry() *Registry {
	return &Registry{
		positions:   make(map[uuid.UUID]*Position),
		byOwner:     make(map[uuid.UUID][]uuid.UUID),
		totalStaked: make(map[uuid.UUID]int64),
	}
}

// Stake locks collateral for the given term. The term must come from the
// validated term table; points are granted immediately.
func (r *Registry) Stake(
	accountID uuid.UUID,
	amount int64,
	term *params.StakeTerm,
	now int64,
) (*Position, error) {
	if amount <= 0 {
		return nil, protocol.ErrInvalidAmount
	}

	points := creditmath.ProRataShare(amount, term.PointMultiplier, creditmath.PointsConfig.Scale)

	p := &Position{
		StakeID:       uuid.New(),
		AccountID:     accountID,
		Amount:        amount,
		Points:        points,
		Duration:      term.Duration,
		RewardRateBps: term.RewardRateBps,
		StartTime:     now,
		UnlockTime:    now + term.Duration,
		Active:        true,
	}

	r.positions[p.StakeID] = p
	r.byOwner[accountID] = append(r.byOwner[accountID], p.StakeID)
	r.totalStaked[accountID] += amount

	return p, nil
}

// Release returns a matured position to its owner. The position's unclaimed
// rewards are computed and paid in the same operation; the returned values
// are (principal, reward).
func (r *Registry) Release(accountID, stakeID uuid.UUID, now int64) (int64, int64, error) {
	p, err := r.activePosition(accountID, stakeID)
	if err != nil {
		return 0, 0, err
	}

	if now < p.UnlockTime {
		return 0, 0, protocol.ErrStakingPeriodNotEnded
	}

	reward := r.pendingReward(p, now)

	// An earmark on a matured position follows the owner's remaining
	// active stakes so open loans stay secured.
	carried := p.LockedForBorrow
	p.LockedForBorrow = 0

	p.Active = false
	p.RewardsClaimed += reward
	p.Version++
	r.totalStaked[accountID] -= p.Amount

	if carried > 0 {
		r.LockForBorrow(accountID, carried)
	}

	return p.Amount, reward, nil
}

// ClaimRewards pays out accrued staking rewards without releasing the
// position. Accrual caps at the term end.
func (r *Registry) ClaimRewards(accountID, stakeID uuid.UUID, now int64) (int64, error) {
	p, err := r.activePosition(accountID, stakeID)
	if err != nil {
		return 0, err
	}

	reward := r.pendingReward(p, now)
	if reward <= 0 {
		return 0, protocol.ErrInsufficientBalance
	}

	p.RewardsClaimed += reward
	p.Version++

	return reward, nil
}

// SlashAll deactivates every active position of the owner in one step and
// returns the total seized principal. Callable only from the liquidation
// path.
func (r *Registry) SlashAll(accountID uuid.UUID) (int64, error) {
	var total int64
	for _, id := range r.byOwner[accountID] {
		p := r.positions[id]
		if !p.Active {
			continue
		}
		p.Active = false
		p.LockedForBorrow = 0
		p.Version++
		total += p.Amount
	}

	if total == 0 {
		return 0, protocol.ErrNoStakeFound
	}

	r.totalStaked[accountID] = 0
	return total, nil
}

// LockForBorrow earmarks the owner's active collateral, oldest position
// first, as security for a drawn loan. The earmark caps at free collateral
// when the draw exceeds it. Returns the amount actually earmarked.
func (r *Registry) LockForBorrow(accountID uuid.UUID, amount int64) int64 {
	remaining := amount
	var locked int64
	for _, id := range r.byOwner[accountID] {
		if remaining <= 0 {
			break
		}
		p := r.positions[id]
		if !p.Active {
			continue
		}
		free := p.Amount - p.LockedForBorrow
		if free <= 0 {
			continue
		}
		take := remaining
		if take > free {
			take = free
		}
		p.LockedForBorrow += take
		p.Version++
		locked += take
		remaining -= take
	}
	return locked
}

// ReleaseBorrowLock frees earmarked collateral after repayment, oldest
// position first. Amounts beyond the total earmark are ignored: a capped
// earmark releases in full when its larger loan settles.
func (r *Registry) ReleaseBorrowLock(accountID uuid.UUID, amount int64) {
	remaining := amount
	for _, id := range r.byOwner[accountID] {
		if remaining <= 0 {
			return
		}
		p := r.positions[id]
		if p.LockedForBorrow == 0 {
			continue
		}
		take := remaining
		if take > p.LockedForBorrow {
			take = p.LockedForBorrow
		}
		p.LockedForBorrow -= take
		p.Version++
		remaining -= take
	}
}

func (r *Registry) activePosition(accountID, stakeID uuid.UUID) (*Position, error) {
	if !r.HasActiveStake(accountID) {
		return nil, protocol.ErrNoStakedTokensFound
	}
	p := r.positions[stakeID]
	if p == nil || p.AccountID != accountID || !p.Active {
		return nil, protocol.ErrNoStakeFound
	}
	return p, nil
}

// pendingReward computes unclaimed linear reward, capped at term end
func (r *Registry) pendingReward(p *Position, now int64) int64 {
	until := now
	if until > p.UnlockTime {
		until = p.UnlockTime
	}
	elapsed := until - p.StartTime
	earned := creditmath.ComputeLinearInterest(p.Amount, p.RewardRateBps, elapsed)
	pending := earned - p.RewardsClaimed
	if pending < 0 {
		return 0
	}
	return pending
}

// === Queries ===

// HasActiveStake reports whether the owner holds any active position
func (r *Registry) HasActiveStake(accountID uuid.UUID) bool {
	return r.totalStaked[accountID] > 0
}

// StakedAmount returns the owner's total active principal
func (r *Registry) StakedAmount(accountID uuid.UUID) int64 {
	return r.totalStaked[accountID]
}

// ActivePoints sums loyalty points across active positions
func (r *Registry) ActivePoints(accountID uuid.UUID) int64 {
	var total int64
	for _, id := range r.byOwner[accountID] {
		p := r.positions[id]
		if p.Active {
			total += p.Points
		}
	}
	return total
}

// GetTier maps active points to the loyalty tier
func (r *Registry) GetTier(accountID uuid.UUID) Tier {
	points := r.ActivePoints(accountID)
	for _, threshold := range tierThresholds {
		if points >= threshold.MinPoints {
			return threshold.Tier
		}
	}
	return TierNone
}

// Usage splits an owner's active collateral between loan-earmarked and
// free principal.
type Usage struct {
	Staked          int64
	LockedForBorrow int64
	Free            int64
}

// StakeUsage reports how much of the owner's active collateral is
// earmarked against open loans.
func (r *Registry) StakeUsage(accountID uuid.UUID) Usage {
	var locked int64
	for _, id := range r.byOwner[accountID] {
		p := r.positions[id]
		if p.Active {
			locked += p.LockedForBorrow
		}
	}
	staked := r.totalStaked[accountID]
	return Usage{Staked: staked, LockedForBorrow: locked, Free: staked - locked}
}

// GetPosition returns one position (active or not)
func (r *Registry) GetPosition(stakeID uuid.UUID) (*Position, bool) {
	p, ok := r.positions[stakeID]
	return p, ok
}

// ActivePositions returns the owner's active positions in creation order
func (r *Registry) ActivePositions(accountID uuid.UUID) []*Position {
	result := make([]*Position, 0)
	for _, id := range r.byOwner[accountID] {
		p := r.positions[id]
		if p.Active {
			result = append(result, p)
		}
	}
	return result
}

// PendingReward returns unclaimed reward for one position without mutation
func (r *Registry) PendingReward(stakeID uuid.UUID, now int64) int64 {
	p := r.positions[stakeID]
	if p == nil || !p.Active {
		return 0
	}
	return r.pendingReward(p, now)
}

// === Snapshot support ===

// AllPositions returns every position in per-owner creation order
func (r *Registry) AllPositions() []*Position {
	result := make([]*Position, 0, len(r.positions))
	for _, ids := range r.byOwner {
		for _, id := range ids {
			result = append(result, r.positions[id])
		}
	}
	return result
}

// RestorePosition directly inserts a position (snapshot restore).
// Must be called in original creation order.
func (r *Registry) RestorePosition(p *Position) {
	r.positions[p.StakeID] = p
	r.byOwner[p.AccountID] = append(r.byOwner[p.AccountID], p.StakeID)
	if p.Active {
		r.totalStaked[p.AccountID] += p.Amount
	}
}
