package op

import "github.com/google/uuid"

// FeeWithdraw sweeps accumulated protocol fee skim to the treasury.
// Admin-gated; the guard checks AdminID before dispatch.
type FeeWithdraw struct {
	OpID      uuid.UUID `json:"op_id"`
	AdminID   uuid.UUID `json:"admin_id"`
	Amount    int64     `json:"amount"`
	Sequence  int64     `json:"sequence"`
	Timestamp int64     `json:"timestamp"`
}

func (f *FeeWithdraw) IdempotencyKey() string {
	return f.OpID.String()
}

func (f *FeeWithdraw) OpType() OpType {
	return OpTypeFeeWithdraw
}

func (f *FeeWithdraw) Partition() string {
	return "admin:" + f.AdminID.String()
}

func (f *FeeWithdraw) SourceSequence() int64 {
	return f.Sequence
}

// PoolParamUpdate replaces the pool's rate and cap parameters.
// Admin-gated. Values are basis points unless noted.
type PoolParamUpdate struct {
	OpID           uuid.UUID `json:"op_id"`
	AdminID        uuid.UUID `json:"admin_id"`
	JuniorRateBps  int64     `json:"junior_rate_bps"`
	SeniorRateBps  int64     `json:"senior_rate_bps"`
	BorrowRateBps  int64     `json:"borrow_rate_bps"`
	FeeSkimBps     int64     `json:"fee_skim_bps"`
	BorrowCapPct   int64     `json:"borrow_cap_pct"`  // Percent of invoice value at tier 0
	TierStepPct    int64     `json:"tier_step_pct"`   // Additional percent per loyalty tier
	UtilizationCap int64     `json:"utilization_cap"` // Max pool share lent out, bps
	Sequence       int64     `json:"sequence"`
	Timestamp      int64     `json:"timestamp"`
}

func (p *PoolParamUpdate) IdempotencyKey() string {
	return p.OpID.String()
}

func (p *PoolParamUpdate) OpType() OpType {
	return OpTypePoolParamUpdate
}

func (p *PoolParamUpdate) Partition() string {
	return "admin:" + p.AdminID.String()
}

func (p *PoolParamUpdate) SourceSequence() int64 {
	return p.Sequence
}
