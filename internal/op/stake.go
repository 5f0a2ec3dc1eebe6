package op

import "github.com/google/uuid"

// StakeDeposit locks collateral tokens for a fixed term.
type StakeDeposit struct {
	OpID      uuid.UUID `json:"op_id"`
	AccountID uuid.UUID `json:"account_id"`
	Amount    int64     `json:"amount"`   // Fixed-point CLT
	Duration  int64     `json:"duration"` // Seconds, must match a configured term
	Sequence  int64     `json:"sequence"`
	Timestamp int64     `json:"timestamp"`
}

func (s *StakeDeposit) IdempotencyKey() string {
	return s.OpID.String()
}

func (s *StakeDeposit) OpType() OpType {
	return OpTypeStakeDeposit
}

func (s *StakeDeposit) Partition() string {
	return s.AccountID.String()
}

func (s *StakeDeposit) SourceSequence() int64 {
	return s.Sequence
}

// StakeRelease returns a matured stake position to its owner.
type StakeRelease struct {
	OpID      uuid.UUID `json:"op_id"`
	AccountID uuid.UUID `json:"account_id"`
	StakeID   uuid.UUID `json:"stake_id"`
	Sequence  int64     `json:"sequence"`
	Timestamp int64     `json:"timestamp"`
}

func (s *StakeRelease) IdempotencyKey() string {
	return s.OpID.String()
}

func (s *StakeRelease) OpType() OpType {
	return OpTypeStakeRelease
}

func (s *StakeRelease) Partition() string {
	return s.AccountID.String()
}

func (s *StakeRelease) SourceSequence() int64 {
	return s.Sequence
}

// RewardClaim pays out accrued staking rewards, capped at term end.
type RewardClaim struct {
	OpID      uuid.UUID `json:"op_id"`
	AccountID uuid.UUID `json:"account_id"`
	StakeID   uuid.UUID `json:"stake_id"`
	Sequence  int64     `json:"sequence"`
	Timestamp int64     `json:"timestamp"`
}

func (r *RewardClaim) IdempotencyKey() string {
	return r.OpID.String()
}

func (r *RewardClaim) OpType() OpType {
	return OpTypeRewardClaim
}

func (r *RewardClaim) Partition() string {
	return r.AccountID.String()
}

func (r *RewardClaim) SourceSequence() int64 {
	return r.Sequence
}
