package projection

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"CrediLedger/internal/ledger"
)

// loanOpPayload covers the fields shared by loan operation payloads.
// Payloads are JSON-encoded op structs; only the fields needed for the
// read model are decoded.
type loanOpPayload struct {
	AccountID string `json:"AccountID"`
	InvoiceID string `json:"InvoiceID"`
	Amount    int64  `json:"Amount"`
}

// updateLoanHistory appends a row for loan-affecting operations. Principal
// and interest are taken from the journal entries rather than the payload,
// so the history reflects what was actually booked.
func (pw *ProjectionWorker) updateLoanHistory(ctx context.Context, tx *sql.Tx, output ProjectionOutput) error {
	switch output.OpType {
	case "InvoiceBorrow", "LoanRepay", "LoanLiquidate":
	default:
		return nil
	}

	var p loanOpPayload
	if err := json.Unmarshal(output.Payload, &p); err != nil {
		return err
	}

	var principal, interest int64
	for _, j := range output.JournalEntries {
		switch ledger.JournalType(j.JournalType) {
		case ledger.JournalTypeLoanDisburse, ledger.JournalTypeLoanRepayPrincipal, ledger.JournalTypeLoanWriteOff:
			principal += j.Amount
		case ledger.JournalTypeLoanRepayInterest, ledger.JournalTypeFeeSkim:
			interest += j.Amount
		}
	}

	borrowerID := p.AccountID
	if borrowerID == "" {
		// Liquidation payloads carry no account; resolve from the loan's
		// disbursement row.
		row := tx.QueryRowContext(ctx, `
			SELECT borrower_id FROM projections.loan_history
			WHERE receivable_id = $1 AND op_type = 'InvoiceBorrow'
			ORDER BY sequence DESC LIMIT 1
		`, p.InvoiceID)
		if err := row.Scan(&borrowerID); err != nil && err != sql.ErrNoRows {
			return err
		}
		if borrowerID == "" {
			borrowerID = "00000000-0000-0000-0000-000000000000"
		}
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.loan_history
			(receivable_id, borrower_id, op_type, principal, interest, sequence, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, p.InvoiceID, borrowerID, output.OpType, principal, interest, output.Sequence, output.Timestamp)
	return err
}

// updateLossEvents records the waterfall outcome of a liquidation. The split
// between tranches is derived from the loss-absorption journal entries.
func (pw *ProjectionWorker) updateLossEvents(ctx context.Context, tx *sql.Tx, output ProjectionOutput) error {
	var p loanOpPayload
	if err := json.Unmarshal(output.Payload, &p); err != nil {
		return err
	}

	var owed, juniorAbsorbed, seniorAbsorbed, unrecovered, slashed int64
	for _, j := range output.JournalEntries {
		switch ledger.JournalType(j.JournalType) {
		case ledger.JournalTypeLoanWriteOff:
			owed += j.Amount
		case ledger.JournalTypeLossAbsorption:
			if strings.Contains(j.DebitAccount, "tranche_junior") {
				juniorAbsorbed += j.Amount
			} else if strings.Contains(j.DebitAccount, "tranche_senior") {
				seniorAbsorbed += j.Amount
			}
		case ledger.JournalTypeCollateralSlash:
			slashed += j.Amount
		}
	}
	unrecovered = owed - juniorAbsorbed - seniorAbsorbed
	if unrecovered < 0 {
		unrecovered = 0
	}

	var borrowerID string
	row := tx.QueryRowContext(ctx, `
		SELECT borrower_id FROM projections.loan_history
		WHERE receivable_id = $1 AND op_type = 'InvoiceBorrow'
		ORDER BY sequence DESC LIMIT 1
	`, p.InvoiceID)
	if err := row.Scan(&borrowerID); err != nil && err != sql.ErrNoRows {
		return err
	}
	if borrowerID == "" {
		borrowerID = "00000000-0000-0000-0000-000000000000"
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.loss_events
			(receivable_id, borrower_id, owed, junior_absorbed, senior_absorbed,
			 unrecovered, slashed_collateral, sequence, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (receivable_id) DO NOTHING
	`, p.InvoiceID, borrowerID, owed, juniorAbsorbed, seniorAbsorbed,
		unrecovered, slashed, output.Sequence, output.Timestamp)
	return err
}
