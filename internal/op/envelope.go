package op

import (
	"time"
)

// OpType discriminator for operation payloads
type OpType int32

const (
	OpTypeUnknown OpType = iota
	OpTypeTrancheDeposit
	OpTypeTrancheWithdraw
	OpTypeInterestWithdraw
	OpTypeStakeDeposit
	OpTypeStakeRelease
	OpTypeRewardClaim
	OpTypeInvoiceBorrow
	OpTypeLoanRepay
	OpTypeLoanLiquidate
	OpTypeFeeWithdraw
	OpTypePoolParamUpdate
)

// Envelope wraps every applied operation in the log
type Envelope struct {
	// Global monotonic sequence assigned by core
	Sequence int64

	// Stable idempotency key from upstream
	IdempotencyKey string

	// Operation type discriminator
	OpType OpType

	// Actor context (submitting account)
	Actor string

	// Versioned input timestamp (NOT wall-clock)
	Timestamp time.Time

	// Upstream sequence for ordering validation
	SourceSequence int64

	// JSON-encoded operation-specific data
	Payload []byte

	// SHA-256 of state AFTER applying this operation
	StateHash [32]byte

	// Previous operation's state hash (chain integrity)
	PrevHash [32]byte
}

// Operation is the interface all operation payloads must implement
type Operation interface {
	// IdempotencyKey returns the stable dedup key
	IdempotencyKey() string

	// OpType returns the discriminator
	OpType() OpType

	// Partition returns the source-ordering partition (actor account)
	Partition() string

	// SourceSequence returns upstream ordering key
	SourceSequence() int64
}

func (ot OpType) String() string {
	switch ot {
	case OpTypeTrancheDeposit:
		return "TrancheDeposit"
	case OpTypeTrancheWithdraw:
		return "TrancheWithdraw"
	case OpTypeInterestWithdraw:
		return "InterestWithdraw"
	case OpTypeStakeDeposit:
		return "StakeDeposit"
	case OpTypeStakeRelease:
		return "StakeRelease"
	case OpTypeRewardClaim:
		return "RewardClaim"
	case OpTypeInvoiceBorrow:
		return "InvoiceBorrow"
	case OpTypeLoanRepay:
		return "LoanRepay"
	case OpTypeLoanLiquidate:
		return "LoanLiquidate"
	case OpTypeFeeWithdraw:
		return "FeeWithdraw"
	case OpTypePoolParamUpdate:
		return "PoolParamUpdate"
	default:
		return "Unknown"
	}
}
