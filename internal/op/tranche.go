package op

import "github.com/google/uuid"

// TrancheDeposit supplies funding into one side of the pool.
// LockDuration is seconds; zero means no lock-up (junior only).
// JSON tags follow the wire field names so envelope payloads round-trip
// through the ingestion parser on log replay.
type TrancheDeposit struct {
	OpID         uuid.UUID `json:"op_id"`
	AccountID    uuid.UUID `json:"account_id"`
	Tranche      string    `json:"tranche"` // "junior" or "senior"
	Amount       int64     `json:"amount"`  // Fixed-point USDX
	LockDuration int64     `json:"lock_duration"` // Seconds
	Sequence     int64     `json:"sequence"`
	Timestamp    int64     `json:"timestamp"` // Epoch seconds, versioned input
}

func (t *TrancheDeposit) IdempotencyKey() string {
	return t.OpID.String()
}

func (t *TrancheDeposit) OpType() OpType {
	return OpTypeTrancheDeposit
}

func (t *TrancheDeposit) Partition() string {
	return t.AccountID.String()
}

func (t *TrancheDeposit) SourceSequence() int64 {
	return t.Sequence
}

// TrancheWithdraw removes live principal from one tranche.
type TrancheWithdraw struct {
	OpID      uuid.UUID `json:"op_id"`
	AccountID uuid.UUID `json:"account_id"`
	Tranche   string    `json:"tranche"`
	Amount    int64     `json:"amount"`
	Sequence  int64     `json:"sequence"`
	Timestamp int64     `json:"timestamp"`
}

func (t *TrancheWithdraw) IdempotencyKey() string {
	return t.OpID.String()
}

func (t *TrancheWithdraw) OpType() OpType {
	return OpTypeTrancheWithdraw
}

func (t *TrancheWithdraw) Partition() string {
	return t.AccountID.String()
}

func (t *TrancheWithdraw) SourceSequence() int64 {
	return t.Sequence
}

// InterestWithdraw pays out an LP's settled accrued interest.
type InterestWithdraw struct {
	OpID      uuid.UUID `json:"op_id"`
	AccountID uuid.UUID `json:"account_id"`
	Tranche   string    `json:"tranche"`
	Sequence  int64     `json:"sequence"`
	Timestamp int64     `json:"timestamp"`
}

func (i *InterestWithdraw) IdempotencyKey() string {
	return i.OpID.String()
}

func (i *InterestWithdraw) OpType() OpType {
	return OpTypeInterestWithdraw
}

func (i *InterestWithdraw) Partition() string {
	return i.AccountID.String()
}

func (i *InterestWithdraw) SourceSequence() int64 {
	return i.Sequence
}
