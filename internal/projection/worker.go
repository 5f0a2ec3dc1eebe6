package projection

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"CrediLedger/internal/observability"
)

// ProjectionOutput mirrors the data projection workers need.
// The orchestrator bridges between core.CoreOutput and this.
type ProjectionOutput struct {
	Sequence       int64
	OpType         string
	Payload        []byte
	Timestamp      int64
	JournalEntries []JournalEntry
}

// JournalEntry is a simplified journal for projection consumption.
type JournalEntry struct {
	DebitAccount  string
	CreditAccount string
	AssetID       uint16
	Amount        int64
	JournalType   int32
}

// ProjectionWorker updates read-model tables from applied operations.
// The projection channel is non-blocking with drop: if projections fall
// behind they can be rebuilt from the operation log.
type ProjectionWorker struct {
	db        *sql.DB
	inputChan <-chan ProjectionOutput
	metrics   *observability.Metrics
	logger    zerolog.Logger
	lastSeq   int64
}

func NewProjectionWorker(db *sql.DB, inputChan <-chan ProjectionOutput, metrics *observability.Metrics) *ProjectionWorker {
	return &ProjectionWorker{
		db:        db,
		inputChan: inputChan,
		metrics:   metrics,
		logger:    observability.NewLogger("projection"),
	}
}

// Run starts the projection worker loop. Blocks until ctx is cancelled
// or the input channel closes.
func (pw *ProjectionWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case output, ok := <-pw.inputChan:
			if !ok {
				return nil
			}

			start := time.Now()
			if err := pw.processOutput(ctx, output); err != nil {
				// Eventually consistent: a failed update is recovered by
				// RebuildProjections, never by stalling the core.
				pw.logger.Warn().
					Int64("sequence", output.Sequence).
					Str("op_type", output.OpType).
					Err(err).
					Msg("projection update failed")
			}
			if pw.metrics != nil {
				pw.metrics.ProjectionUpdateDur.WithLabelValues("all").Observe(time.Since(start).Seconds())
			}

			pw.lastSeq = output.Sequence
		}
	}
}

func (pw *ProjectionWorker) processOutput(ctx context.Context, output ProjectionOutput) error {
	tx, err := pw.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, j := range output.JournalEntries {
		if err := pw.updateBalances(ctx, tx, j, output.Sequence); err != nil {
			return fmt.Errorf("balance projection: %w", err)
		}
	}

	if err := pw.updateLoanHistory(ctx, tx, output); err != nil {
		return fmt.Errorf("loan history projection: %w", err)
	}

	if output.OpType == "LoanLiquidate" {
		if err := pw.updateLossEvents(ctx, tx, output); err != nil {
			return fmt.Errorf("loss event projection: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.watermarks (projection_name, as_of_sequence, updated_at)
		VALUES ('main', $1, NOW())
		ON CONFLICT (projection_name) DO UPDATE SET as_of_sequence = $1, updated_at = NOW()
	`, output.Sequence); err != nil {
		return fmt.Errorf("watermark update: %w", err)
	}

	return tx.Commit()
}

func (pw *ProjectionWorker) updateBalances(ctx context.Context, tx *sql.Tx, j JournalEntry, seq int64) error {
	// Debit decreases, credit increases
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.account_balances (account_path, asset_id, balance, as_of_sequence)
		VALUES ($1, $2, -$3, $4)
		ON CONFLICT (account_path, asset_id)
		DO UPDATE SET balance = projections.account_balances.balance - $3,
		              as_of_sequence = $4, updated_at = NOW()
	`, j.DebitAccount, j.AssetID, j.Amount, seq); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.account_balances (account_path, asset_id, balance, as_of_sequence)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (account_path, asset_id)
		DO UPDATE SET balance = projections.account_balances.balance + $3,
		              as_of_sequence = $4, updated_at = NOW()
	`, j.CreditAccount, j.AssetID, j.Amount, seq); err != nil {
		return err
	}

	return nil
}

// RebuildProjections truncates and rebuilds the balance read model from the
// journal. Loan history and loss events replay with the main loop, so only
// their truncation happens here.
func RebuildProjections(ctx context.Context, db *sql.DB) error {
	truncateStatements := []string{
		`TRUNCATE projections.account_balances`,
		`TRUNCATE projections.loan_history`,
		`TRUNCATE projections.loss_events`,
		`DELETE FROM projections.watermarks WHERE projection_name = 'main'`,
	}

	for _, stmt := range truncateStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("truncate failed: %w", err)
		}
	}

	// Credits add
	_, err := db.ExecContext(ctx, `
		INSERT INTO projections.account_balances (account_path, asset_id, balance, as_of_sequence)
		SELECT
			credit_account AS account_path,
			asset_id,
			SUM(amount) AS balance,
			MAX(sequence) AS as_of_sequence
		FROM op_log.journal
		GROUP BY credit_account, asset_id
		ON CONFLICT (account_path, asset_id) DO UPDATE
			SET balance = EXCLUDED.balance, as_of_sequence = EXCLUDED.as_of_sequence
	`)
	if err != nil {
		return fmt.Errorf("rebuild credit balances: %w", err)
	}

	// Debits subtract
	_, err = db.ExecContext(ctx, `
		INSERT INTO projections.account_balances (account_path, asset_id, balance, as_of_sequence)
		SELECT
			debit_account AS account_path,
			asset_id,
			-SUM(amount) AS balance,
			MAX(sequence) AS as_of_sequence
		FROM op_log.journal
		GROUP BY debit_account, asset_id
		ON CONFLICT (account_path, asset_id) DO UPDATE
			SET balance = projections.account_balances.balance + EXCLUDED.balance,
			    as_of_sequence = GREATEST(projections.account_balances.as_of_sequence, EXCLUDED.as_of_sequence)
	`)
	if err != nil {
		return fmt.Errorf("rebuild debit balances: %w", err)
	}

	return nil
}
