package op

import (
	"fmt"

	"github.com/google/uuid"
)

// InvoiceBorrow draws stable funds against a verified invoice.
type InvoiceBorrow struct {
	OpID      uuid.UUID `json:"op_id"`
	AccountID uuid.UUID `json:"account_id"` // Borrowing supplier
	InvoiceID uuid.UUID `json:"invoice_id"`
	Amount    int64     `json:"amount"` // Requested draw, fixed-point USDX
	Sequence  int64     `json:"sequence"`
	Timestamp int64     `json:"timestamp"`
}

func (b *InvoiceBorrow) IdempotencyKey() string {
	return b.OpID.String()
}

func (b *InvoiceBorrow) OpType() OpType {
	return OpTypeInvoiceBorrow
}

func (b *InvoiceBorrow) Partition() string {
	return b.AccountID.String()
}

func (b *InvoiceBorrow) SourceSequence() int64 {
	return b.Sequence
}

// LoanRepay settles a loan in full (principal plus accrued interest)
// before its due date.
type LoanRepay struct {
	OpID      uuid.UUID `json:"op_id"`
	AccountID uuid.UUID `json:"account_id"`
	InvoiceID uuid.UUID `json:"invoice_id"`
	Sequence  int64     `json:"sequence"`
	Timestamp int64     `json:"timestamp"`
}

func (r *LoanRepay) IdempotencyKey() string {
	return r.OpID.String()
}

func (r *LoanRepay) OpType() OpType {
	return OpTypeLoanRepay
}

func (r *LoanRepay) Partition() string {
	return r.AccountID.String()
}

func (r *LoanRepay) SourceSequence() int64 {
	return r.Sequence
}

// LoanLiquidate defaults an overdue loan: waterfall write-down plus
// collateral slash in one atomic operation. Keeper-initiated, so the
// partition is the invoice rather than an actor account.
type LoanLiquidate struct {
	OpID      uuid.UUID `json:"op_id"`
	InvoiceID uuid.UUID `json:"invoice_id"`
	Sequence  int64     `json:"sequence"`
	Timestamp int64     `json:"timestamp"`
}

func (l *LoanLiquidate) IdempotencyKey() string {
	return fmt.Sprintf("%s:liquidate", l.OpID)
}

func (l *LoanLiquidate) OpType() OpType {
	return OpTypeLoanLiquidate
}

func (l *LoanLiquidate) Partition() string {
	return fmt.Sprintf("liquidate:%s", l.InvoiceID)
}

func (l *LoanLiquidate) SourceSequence() int64 {
	return l.Sequence
}
