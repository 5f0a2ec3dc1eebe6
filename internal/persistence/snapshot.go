package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SnapshotManager handles creating and loading state snapshots for recovery.
// Snapshots contain balances, tranche deposits, stake positions, loans, loss
// history, pool parameters, idempotency LRU keys, sequence counters, and the
// last state hash.
type SnapshotManager struct {
	db *sql.DB
}

// SnapshotData contains the full in-memory state at a point in time.
type SnapshotData struct {
	Sequence        int64                `json:"sequence"`
	StateHash       []byte               `json:"state_hash"`
	Balances        map[string]int64     `json:"balances"` // AccountPath -> balance
	Deposits        []DepositSnapshot    `json:"deposits"`
	Stakes          []StakeSnapshot      `json:"stakes"`
	Loans           []LoanSnapshot       `json:"loans"`
	Blacklist       []string             `json:"blacklist"`
	LossEvents      []LossEventSnapshot  `json:"loss_events"`
	PoolParams      *PoolParamsSnapshot  `json:"pool_params"`
	SequenceState   map[string]int64     `json:"sequence_state"`   // partition -> next expected seq
	IdempotencyKeys []string             `json:"idempotency_keys"` // Recent keys for LRU warming
	CreatedAt       time.Time            `json:"created_at"`
}

// DepositSnapshot is a serializable tranche deposit.
type DepositSnapshot struct {
	DepositID       string `json:"deposit_id"`
	AccountID       string `json:"account_id"`
	Class           uint8  `json:"class"`
	Principal       int64  `json:"principal"`
	AccruedInterest int64  `json:"accrued_interest"`
	RateBps         int64  `json:"rate_bps"`
	LockedUntil     int64  `json:"locked_until"`
	LastSettlement  int64  `json:"last_settlement"`
	CreatedAt       int64  `json:"created_at"`
	Version         int64  `json:"version"`
}

// StakeSnapshot is a serializable collateral stake position.
type StakeSnapshot struct {
	StakeID         string `json:"stake_id"`
	AccountID       string `json:"account_id"`
	Amount          int64  `json:"amount"`
	Points          int64  `json:"points"`
	Duration        int64  `json:"duration"`
	RewardRateBps   int64  `json:"reward_rate_bps"`
	StartTime       int64  `json:"start_time"`
	UnlockTime      int64  `json:"unlock_time"`
	RewardsClaimed  int64  `json:"rewards_claimed"`
	LockedForBorrow int64  `json:"locked_for_borrow"`
	Active          bool   `json:"active"`
	Version         int64  `json:"version"`
}

// LoanSnapshot is a serializable loan record.
type LoanSnapshot struct {
	ReceivableID    string `json:"receivable_id"`
	BorrowerID      string `json:"borrower_id"`
	Principal       int64  `json:"principal"`
	RateBps         int64  `json:"rate_bps"`
	InterestAccrued int64  `json:"interest_accrued"`
	LastSettlement  int64  `json:"last_settlement"`
	StartTime       int64  `json:"start_time"`
	DueDate         int64  `json:"due_date"`
	Status          int32  `json:"status"`
	SettledAt       int64  `json:"settled_at"`
	Version         int64  `json:"version"`
}

// LossEventSnapshot is a serializable waterfall loss record.
type LossEventSnapshot struct {
	ReceivableID      string `json:"receivable_id"`
	BorrowerID        string `json:"borrower_id"`
	Sequence          int64  `json:"sequence"`
	Owed              int64  `json:"owed"`
	JuniorAbsorbed    int64  `json:"junior_absorbed"`
	SeniorAbsorbed    int64  `json:"senior_absorbed"`
	Unrecovered       int64  `json:"unrecovered"`
	SlashedCollateral int64  `json:"slashed_collateral"`
	Timestamp         int64  `json:"timestamp"`
}

// PoolParamsSnapshot is a serializable pool parameter set.
type PoolParamsSnapshot struct {
	JuniorRateBps  int64 `json:"junior_rate_bps"`
	SeniorRateBps  int64 `json:"senior_rate_bps"`
	BorrowRateBps  int64 `json:"borrow_rate_bps"`
	FeeSkimBps     int64 `json:"fee_skim_bps"`
	BorrowCapPct   int64 `json:"borrow_cap_pct"`
	TierStepPct    int64 `json:"tier_step_pct"`
	UtilizationCap int64 `json:"utilization_cap"`
	EffectiveSeq   int64 `json:"effective_seq"`
}

func NewSnapshotManager(db *sql.DB) *SnapshotManager {
	return &SnapshotManager{db: db}
}

// SaveSnapshot persists a snapshot to Postgres. Snapshots are taken
// periodically and on graceful shutdown.
func (sm *SnapshotManager) SaveSnapshot(ctx context.Context, snap *SnapshotData) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	snapshotID := uuid.New()
	sizeBytes := len(data)
	formatVersion := int32(1) // v1: JSON-encoded SnapshotData

	_, err = sm.db.ExecContext(ctx, `
		INSERT INTO op_log.snapshots
			(snapshot_id, sequence, data, state_hash, format_version, size_bytes, verified, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)
		ON CONFLICT (sequence) DO UPDATE SET data = $3, state_hash = $4, size_bytes = $6
	`, snapshotID, snap.Sequence, data, snap.StateHash, formatVersion, sizeBytes, snap.CreatedAt)

	return err
}

// LoadLatestSnapshot loads the most recent verified snapshot.
// On warm restart, load the latest snapshot then replay operations from
// snapshot.sequence+1.
func (sm *SnapshotManager) LoadLatestSnapshot(ctx context.Context) (*SnapshotData, error) {
	row := sm.db.QueryRowContext(ctx, `
		SELECT data FROM op_log.snapshots
		WHERE verified = TRUE
		ORDER BY sequence DESC
		LIMIT 1
	`)

	var data []byte
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // No snapshot, cold start
		}
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	var snap SnapshotData
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}

	return &snap, nil
}

// MarkVerified marks a snapshot as verified after integrity check.
func (sm *SnapshotManager) MarkVerified(ctx context.Context, sequence int64) error {
	_, err := sm.db.ExecContext(ctx, `
		UPDATE op_log.snapshots SET verified = TRUE WHERE sequence = $1
	`, sequence)
	return err
}

// LoadOpsFrom loads operations from a given sequence for replay.
// Used for warm restart (replay from snapshot) and cold restart (replay all).
func (sm *SnapshotManager) LoadOpsFrom(ctx context.Context, fromSequence int64, limit int) ([]OpRow, error) {
	rows, err := sm.db.QueryContext(ctx, `
		SELECT sequence, op_type, idempotency_key, actor, payload,
		       state_hash, prev_hash, timestamp, source_sequence
		FROM op_log.operations
		WHERE sequence >= $1
		ORDER BY sequence ASC
		LIMIT $2
	`, fromSequence, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ops []OpRow
	for rows.Next() {
		var o OpRow
		if err := rows.Scan(
			&o.Sequence, &o.OpType, &o.IdempotencyKey, &o.Actor,
			&o.Payload, &o.StateHash, &o.PrevHash, &o.Timestamp, &o.SourceSequence,
		); err != nil {
			return nil, err
		}
		ops = append(ops, o)
	}

	return ops, rows.Err()
}

// GetLatestSequence returns the highest sequence in the operation log.
func (sm *SnapshotManager) GetLatestSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := sm.db.QueryRowContext(ctx, `
		SELECT MAX(sequence) FROM op_log.operations
	`).Scan(&seq)
	if err != nil {
		return 0, err
	}
	if !seq.Valid {
		return 0, nil // Empty operation log
	}
	return seq.Int64, nil
}
