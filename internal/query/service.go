package query

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"CrediLedger/internal/ledger"
)

// QueryService provides read-only access to projection tables. All
// responses include as_of_sequence so callers can judge freshness
// against the operation log.
type QueryService struct {
	db *sql.DB
}

func NewQueryService(db *sql.DB) *QueryService {
	return &QueryService{db: db}
}

// GetBalance returns a user's tranche and stake balances.
func (qs *QueryService) GetBalance(
	ctx context.Context,
	userID uuid.UUID,
) (*BalanceResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	junior, err := qs.getProjectedBalance(ctx,
		ledger.NewUserAccountKey(userID, ledger.SubTypeTrancheJunior, ledger.AssetUSDX).AccountPath())
	if err != nil {
		return nil, err
	}

	senior, err := qs.getProjectedBalance(ctx,
		ledger.NewUserAccountKey(userID, ledger.SubTypeTrancheSenior, ledger.AssetUSDX).AccountPath())
	if err != nil {
		return nil, err
	}

	staked, err := qs.getProjectedBalance(ctx,
		ledger.NewUserAccountKey(userID, ledger.SubTypeStaked, ledger.AssetCLT).AccountPath())
	if err != nil {
		return nil, err
	}

	return &BalanceResponse{
		UserID:           userID,
		JuniorPrincipal:  junior,
		SeniorPrincipal:  senior,
		StakedCollateral: staked,
		AsOfSequence:     asOfSeq,
	}, nil
}

// GetStakeUsage reports how much of a borrower's staked collateral is
// earmarked against outstanding loans.
func (qs *QueryService) GetStakeUsage(
	ctx context.Context,
	userID uuid.UUID,
) (*StakeUsageResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	staked, err := qs.getProjectedBalance(ctx,
		ledger.NewUserAccountKey(userID, ledger.SubTypeStaked, ledger.AssetCLT).AccountPath())
	if err != nil {
		return nil, err
	}

	outstanding, err := qs.getProjectedBalance(ctx,
		ledger.NewUserAccountKey(userID, ledger.SubTypeLoanOutstanding, ledger.AssetUSDX).AccountPath())
	if err != nil {
		return nil, err
	}

	locked := outstanding
	if locked > staked {
		locked = staked
	}

	return &StakeUsageResponse{
		UserID:          userID,
		Staked:          staked,
		LockedForBorrow: locked,
		Free:            staked - locked,
		AsOfSequence:    asOfSeq,
	}, nil
}

// GetPoolStats returns pool-wide aggregates from the system accounts.
func (qs *QueryService) GetPoolStats(ctx context.Context) (*PoolStatsResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	stats := &PoolStatsResponse{AsOfSequence: asOfSeq}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT account_path, balance
		FROM projections.account_balances
		WHERE account_path LIKE 'system:%' OR account_path LIKE 'user:%'
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var path string
		var balance int64
		if err := rows.Scan(&path, &balance); err != nil {
			return nil, err
		}

		key := ledger.ParseAccountPath(path)
		switch {
		case key.Scope == ledger.AccountScopeUser && key.SubType == ledger.SubTypeTrancheJunior:
			stats.JuniorTotal += balance
		case key.Scope == ledger.AccountScopeUser && key.SubType == ledger.SubTypeTrancheSenior:
			stats.SeniorTotal += balance
		case key.Scope == ledger.AccountScopeUser && key.SubType == ledger.SubTypeLoanOutstanding:
			stats.LoanOutstanding += balance
		case key.Scope == ledger.AccountScopeSystem && key.SubType == ledger.SubTypeSystemInterestReserve:
			stats.InterestReserve += balance
		case key.Scope == ledger.AccountScopeSystem && key.SubType == ledger.SubTypeSystemFees:
			stats.FeeBalance += balance
		case key.Scope == ledger.AccountScopeSystem && key.SubType == ledger.SubTypeSystemRewardPool:
			stats.RewardPool += balance
		case key.Scope == ledger.AccountScopeSystem && key.SubType == ledger.SubTypeSystemSlashedCollateral:
			stats.SlashedCollateral += balance
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if total := stats.JuniorTotal + stats.SeniorTotal + stats.LoanOutstanding; total > 0 {
		stats.UtilizationBps = stats.LoanOutstanding * 10_000 / total
	}

	return stats, nil
}

// GetLoanHistory returns loan lifecycle records for a borrower with
// cursor-based pagination.
func (qs *QueryService) GetLoanHistory(
	ctx context.Context,
	borrowerID uuid.UUID,
	limit int,
	afterSequence *int64,
) ([]LoanHistoryResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT receivable_id, op_type, principal, interest, sequence, occurred_at
		FROM projections.loan_history
		WHERE borrower_id = $1
	`
	args := []interface{}{borrowerID}
	argIdx := 2

	if afterSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *afterSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []LoanHistoryResponse
	for rows.Next() {
		var h LoanHistoryResponse
		h.BorrowerID = borrowerID
		h.AsOfSequence = asOfSeq
		if err := rows.Scan(
			&h.ReceivableID, &h.OpType, &h.Principal, &h.Interest,
			&h.Sequence, &h.OccurredAt,
		); err != nil {
			return nil, err
		}
		history = append(history, h)
	}

	return history, rows.Err()
}

// GetLoan returns the full lifecycle of a single receivable's loan.
func (qs *QueryService) GetLoan(
	ctx context.Context,
	receivableID uuid.UUID,
) ([]LoanHistoryResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT borrower_id, op_type, principal, interest, sequence, occurred_at
		FROM projections.loan_history
		WHERE receivable_id = $1
		ORDER BY sequence ASC
	`, receivableID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []LoanHistoryResponse
	for rows.Next() {
		var h LoanHistoryResponse
		h.ReceivableID = receivableID
		h.AsOfSequence = asOfSeq
		if err := rows.Scan(
			&h.BorrowerID, &h.OpType, &h.Principal, &h.Interest,
			&h.Sequence, &h.OccurredAt,
		); err != nil {
			return nil, err
		}
		history = append(history, h)
	}

	return history, rows.Err()
}

// GetLossEvents returns liquidation waterfall outcomes, newest first.
func (qs *QueryService) GetLossEvents(
	ctx context.Context,
	limit int,
	afterSequence *int64,
) ([]LossEventResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT receivable_id, borrower_id, owed, junior_absorbed, senior_absorbed,
		       unrecovered, slashed_collateral, sequence, occurred_at
		FROM projections.loss_events
	`
	args := []interface{}{}
	argIdx := 1

	if afterSequence != nil {
		query += fmt.Sprintf(" WHERE sequence < $%d", argIdx)
		args = append(args, *afterSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []LossEventResponse
	for rows.Next() {
		var e LossEventResponse
		e.AsOfSequence = asOfSeq
		if err := rows.Scan(
			&e.ReceivableID, &e.BorrowerID, &e.Owed, &e.JuniorAbsorbed,
			&e.SeniorAbsorbed, &e.Unrecovered, &e.SlashedCollateral,
			&e.Sequence, &e.OccurredAt,
		); err != nil {
			return nil, err
		}
		events = append(events, e)
	}

	return events, rows.Err()
}

// GetJournalHistory returns journal entries touching a user's accounts
// with cursor-based pagination.
func (qs *QueryService) GetJournalHistory(
	ctx context.Context,
	userID uuid.UUID,
	limit int,
	afterSequence *int64,
) ([]JournalHistoryEntry, error) {
	accountPrefix := fmt.Sprintf("user:%s:%%", userID)

	query := `
		SELECT journal_id, batch_id, op_ref, sequence,
		       debit_account, credit_account, asset_id, amount, journal_type, timestamp
		FROM op_log.journal
		WHERE (debit_account LIKE $1 OR credit_account LIKE $1)
	`
	args := []interface{}{accountPrefix}
	argIdx := 2

	if afterSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *afterSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []JournalHistoryEntry
	for rows.Next() {
		var e JournalHistoryEntry
		if err := rows.Scan(
			&e.JournalID, &e.BatchID, &e.OpRef, &e.Sequence,
			&e.DebitAccount, &e.CreditAccount, &e.AssetID, &e.Amount,
			&e.JournalType, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// --- Admin APIs ---

// VerifyIntegrity checks hash chain continuity and the global zero-sum
// balance invariant.
func (qs *QueryService) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	report := &IntegrityReport{}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT o1.sequence
		FROM op_log.operations o1
		LEFT JOIN op_log.operations o2 ON o2.sequence = o1.sequence - 1
		WHERE o1.sequence > 0 AND o1.prev_hash != COALESCE(o2.state_hash, o1.prev_hash)
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			return nil, err
		}
		report.HashChainBreaks = append(report.HashChainBreaks, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Every asset must sum to zero across all accounts
	balanceRows, err := qs.db.QueryContext(ctx, `
		SELECT asset_id, SUM(balance) AS total
		FROM projections.account_balances
		GROUP BY asset_id
		HAVING SUM(balance) != 0
	`)
	if err != nil {
		return nil, err
	}
	defer balanceRows.Close()

	for balanceRows.Next() {
		var assetID uint16
		var total int64
		if err := balanceRows.Scan(&assetID, &total); err != nil {
			return nil, err
		}
		report.UnbalancedAssets = append(report.UnbalancedAssets, UnbalancedAsset{
			AssetID:   assetID,
			Imbalance: total,
		})
	}
	if err := balanceRows.Err(); err != nil {
		return nil, err
	}

	report.IsHealthy = len(report.HashChainBreaks) == 0 && len(report.UnbalancedAssets) == 0
	return report, nil
}

// --- helpers ---

func (qs *QueryService) getWatermark(ctx context.Context) (int64, error) {
	var seq int64
	err := qs.db.QueryRowContext(ctx, `
		SELECT COALESCE(as_of_sequence, 0) FROM projections.watermarks WHERE projection_name = 'main'
	`).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return seq, err
}

func (qs *QueryService) getProjectedBalance(ctx context.Context, accountPath string) (int64, error) {
	var balance int64
	err := qs.db.QueryRowContext(ctx, `
		SELECT COALESCE(balance, 0) FROM projections.account_balances
		WHERE account_path = $1
	`, accountPath).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return balance, err
}
