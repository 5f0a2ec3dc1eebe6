package params

import "fmt"

// PoolParams defines the pool's rate and cap parameters.
// Rates are basis points; percentages are whole percent.
type PoolParams struct {
	JuniorRateBps  int64 // LP interest rate, junior tranche
	SeniorRateBps  int64 // LP interest rate, senior tranche
	BorrowRateBps  int64 // Borrower interest rate
	FeeSkimBps     int64 // Fraction of repaid interest kept as protocol fee
	BorrowCapPct   int64 // Percent of receivable value borrowable at tier 0
	TierStepPct    int64 // Additional percent of value per loyalty tier
	UtilizationCap int64 // Max fraction of deposits lent out, bps
	EffectiveSeq   int64 // Sequence at which params take effect
}

// StakeTerm defines one allowed collateral staking duration.
type StakeTerm struct {
	Duration        int64 // Seconds
	PointMultiplier int64 // Loyalty points per staked unit (scale 1_000_000)
	RewardRateBps   int64 // Staking reward APY
}

const day = int64(86_400)

var (
	DefaultPoolParams = &PoolParams{
		JuniorRateBps:  1_200, // 12% APY, first-loss premium
		SeniorRateBps:  600,   // 6% APY
		BorrowRateBps:  1_000, // 10% APY
		FeeSkimBps:     2_000, // 20% of interest
		BorrowCapPct:   60,
		TierStepPct:    10,
		UtilizationCap: 10_000, // No utilization limit beyond conservation
		EffectiveSeq:   0,
	}

	// DefaultStakeTerms maps duration to its term definition.
	DefaultStakeTerms = map[int64]*StakeTerm{
		30 * day:  {Duration: 30 * day, PointMultiplier: 1_000_000, RewardRateBps: 500},
		90 * day:  {Duration: 90 * day, PointMultiplier: 1_500_000, RewardRateBps: 800},
		180 * day: {Duration: 180 * day, PointMultiplier: 2_000_000, RewardRateBps: 1_200},
		365 * day: {Duration: 365 * day, PointMultiplier: 3_000_000, RewardRateBps: 2_000},
	}

	// DefaultSeniorLockups are the allowed senior tranche lock-up durations.
	DefaultSeniorLockups = map[int64]bool{
		90 * day:  true,
		180 * day: true,
		365 * day: true,
	}
)

// Manager manages pool parameters and term tables
type Manager struct {
	pool          *PoolParams
	stakeTerms    map[int64]*StakeTerm
	seniorLockups map[int64]bool
}

func NewManager() *Manager {
	terms := make(map[int64]*StakeTerm)
	for k, v := range DefaultStakeTerms {
		terms[k] = v
	}

	lockups := make(map[int64]bool)
	for k, v := range DefaultSeniorLockups {
		lockups[k] = v
	}

	return &Manager{
		pool:          DefaultPoolParams,
		stakeTerms:    terms,
		seniorLockups: lockups,
	}
}

func (m *Manager) Pool() *PoolParams {
	return m.pool
}

func (m *Manager) GetStakeTerm(duration int64) (*StakeTerm, bool) {
	term, ok := m.stakeTerms[duration]
	return term, ok
}

func (m *Manager) IsSeniorLockup(duration int64) bool {
	return m.seniorLockups[duration]
}

// ValidatePoolParams checks that parameters are within valid ranges.
// The junior tranche must out-yield senior (first-loss premium), skim and
// utilization stay within basis-point bounds, and caps stay positive.
func ValidatePoolParams(p *PoolParams) error {
	if p.JuniorRateBps <= 0 || p.SeniorRateBps <= 0 || p.BorrowRateBps <= 0 {
		return fmt.Errorf("rates must be > 0: junior=%d senior=%d borrow=%d",
			p.JuniorRateBps, p.SeniorRateBps, p.BorrowRateBps)
	}
	if p.JuniorRateBps <= p.SeniorRateBps {
		return fmt.Errorf("junior_rate (%d) must be > senior_rate (%d)", p.JuniorRateBps, p.SeniorRateBps)
	}
	if p.FeeSkimBps < 0 || p.FeeSkimBps >= 10_000 {
		return fmt.Errorf("fee_skim must be in [0, 10000), got %d", p.FeeSkimBps)
	}
	if p.BorrowCapPct <= 0 || p.BorrowCapPct > 100 {
		return fmt.Errorf("borrow_cap_pct must be in (0, 100], got %d", p.BorrowCapPct)
	}
	if p.TierStepPct < 0 {
		return fmt.Errorf("tier_step_pct must be >= 0, got %d", p.TierStepPct)
	}
	if p.UtilizationCap <= 0 || p.UtilizationCap > 10_000 {
		return fmt.Errorf("utilization_cap must be in (0, 10000], got %d", p.UtilizationCap)
	}
	return nil
}

func (m *Manager) UpdatePoolParams(p *PoolParams) error {
	if err := ValidatePoolParams(p); err != nil {
		return fmt.Errorf("invalid pool params: %w", err)
	}
	m.pool = p
	return nil
}

// RestorePoolParams directly sets params (snapshot restore)
func (m *Manager) RestorePoolParams(p *PoolParams) {
	m.pool = p
}
