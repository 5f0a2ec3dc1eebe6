package query

import "github.com/google/uuid"

// LoanHistoryResponse represents a loan lifecycle record for API queries.
type LoanHistoryResponse struct {
	ReceivableID uuid.UUID `json:"receivable_id"`
	BorrowerID   uuid.UUID `json:"borrower_id"`
	OpType       string    `json:"op_type"`
	Principal    int64     `json:"principal"`
	Interest     int64     `json:"interest"`
	Sequence     int64     `json:"sequence"`
	OccurredAt   int64     `json:"occurred_at"`
	AsOfSequence int64     `json:"as_of_sequence"`
}

// LossEventResponse represents a liquidation waterfall outcome for API queries.
type LossEventResponse struct {
	ReceivableID      uuid.UUID `json:"receivable_id"`
	BorrowerID        uuid.UUID `json:"borrower_id"`
	Owed              int64     `json:"owed"`
	JuniorAbsorbed    int64     `json:"junior_absorbed"`
	SeniorAbsorbed    int64     `json:"senior_absorbed"`
	Unrecovered       int64     `json:"unrecovered"`
	SlashedCollateral int64     `json:"slashed_collateral"`
	Sequence          int64     `json:"sequence"`
	OccurredAt        int64     `json:"occurred_at"`
	AsOfSequence      int64     `json:"as_of_sequence"`
}

// JournalHistoryEntry represents a journal entry for API queries.
type JournalHistoryEntry struct {
	JournalID     string `json:"journal_id"`
	BatchID       string `json:"batch_id"`
	OpRef         string `json:"op_ref"`
	Sequence      int64  `json:"sequence"`
	DebitAccount  string `json:"debit_account"`
	CreditAccount string `json:"credit_account"`
	AssetID       uint16 `json:"asset_id"`
	Amount        int64  `json:"amount"`
	JournalType   int32  `json:"journal_type"`
	Timestamp     int64  `json:"timestamp"`
}

// IntegrityReport is the result of an integrity verification check.
type IntegrityReport struct {
	IsHealthy        bool              `json:"is_healthy"`
	HashChainBreaks  []int64           `json:"hash_chain_breaks,omitempty"`
	UnbalancedAssets []UnbalancedAsset `json:"unbalanced_assets,omitempty"`
}

// UnbalancedAsset represents an asset with non-zero global balance sum.
type UnbalancedAsset struct {
	AssetID   uint16 `json:"asset_id"`
	Imbalance int64  `json:"imbalance"`
}
