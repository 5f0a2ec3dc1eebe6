package loan

import (
	"CrediLedger/internal/assets"
	"CrediLedger/internal/creditmath"
	"CrediLedger/internal/params"
	"CrediLedger/internal/protocol"
	"CrediLedger/internal/staking"

	"github.com/google/uuid"
)

// Status is the loan lifecycle state. Repaid and Liquidated are terminal.
type Status int32

const (
	StatusActive Status = iota
	StatusRepaid
	StatusLiquidated
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusRepaid:
		return "repaid"
	case StatusLiquidated:
		return "liquidated"
	}
	return "unknown"
}

// Loan is one invoice-collateralized draw. Principal is the borrowed
// amount, not the receivable face value. Interest accrues lazily.
type Loan struct {
	ReceivableID    uuid.UUID
	BorrowerID      uuid.UUID
	Principal       int64
	RateBps         int64
	InterestAccrued int64
	LastSettlement  int64
	StartTime       int64
	DueDate         int64
	Status          Status
	SettledAt       int64
	Version         int64
}

// Book manages the loan lifecycle and borrow-capacity rules
type Book struct {
	loans         map[uuid.UUID]*Loan // by receivable
	byBorrower    map[uuid.UUID][]uuid.UUID
	blacklist     map[uuid.UUID]bool
	totalBorrowed int64
}

func NewBook() *Book {
	return &Book{
		loans:      make(map[uuid.UUID]*Loan),
		byBorrower: make(map[uuid.UUID][]uuid.UUID),
		blacklist:  make(map[uuid.UUID]bool),
	}
}

// MaxBorrowAmount computes the tiered LTV cap:
// value * borrow_cap% * (100 + tier*step)%
func MaxBorrowAmount(receivableValue int64, tier staking.Tier, p *params.PoolParams) int64 {
	base := creditmath.PercentOf(receivableValue, p.BorrowCapPct)
	return creditmath.PercentOf(base, 100+int64(tier)*p.TierStepPct)
}

// SafeLendingAmount is the pool-level headroom: utilization-capped deposits
// minus what is already lent out. Never negative.
func (b *Book) SafeLendingAmount(totalDeposited int64, p *params.PoolParams) int64 {
	lendable := creditmath.BpsOf(totalDeposited, p.UtilizationCap)
	headroom := lendable - b.totalBorrowed
	if headroom < 0 {
		return 0
	}
	return headroom
}

// ValidateBorrow runs every borrow precondition in order. The receivable
// details come from the registry; liveness of the borrower's collateral
// comes from the staking registry.
func (b *Book) ValidateBorrow(
	borrowerID uuid.UUID,
	rec *assets.ReceivableDetails,
	amount int64,
	tier staking.Tier,
	hasActiveStake bool,
	totalDeposited int64,
	p *params.PoolParams,
	now int64,
) error {
	if !hasActiveStake {
		return protocol.ErrNoStakedTokensFound
	}
	// Liquidated suppliers lose registry trust for future draws
	if b.blacklist[borrowerID] {
		return protocol.ErrInvoiceNotVerified
	}
	if rec.Supplier != borrowerID {
		return protocol.ErrNotInvoiceSupplier
	}
	if !rec.Verified {
		return protocol.ErrInvoiceNotVerified
	}
	if rec.DueDate <= now {
		return protocol.ErrInvoiceExpired
	}
	if _, exists := b.loans[rec.ReceivableID]; exists {
		return protocol.ErrLoanAlreadyExists
	}
	if amount <= 0 {
		return protocol.ErrInvalidAmount
	}
	if amount > MaxBorrowAmount(rec.Value, tier, p) {
		return protocol.ErrInvalidBorrowAmount
	}
	if amount > b.SafeLendingAmount(totalDeposited, p) {
		return protocol.ErrInsufficientLiquidity
	}
	return nil
}

// Open creates the Active loan record. Callers must have passed
// ValidateBorrow in the same operation.
func (b *Book) Open(
	borrowerID uuid.UUID,
	receivableID uuid.UUID,
	amount int64,
	rateBps int64,
	dueDate int64,
	now int64,
) *Loan {
	loan := &Loan{
		ReceivableID:   receivableID,
		BorrowerID:     borrowerID,
		Principal:      amount,
		RateBps:        rateBps,
		LastSettlement: now,
		StartTime:      now,
		DueDate:        dueDate,
		Status:         StatusActive,
	}

	b.loans[receivableID] = loan
	b.byBorrower[borrowerID] = append(b.byBorrower[borrowerID], receivableID)
	b.totalBorrowed += amount

	return loan
}

// settle folds elapsed borrower interest into the loan
func (b *Book) settle(l *Loan, now int64) {
	elapsed := now - l.LastSettlement
	if elapsed <= 0 {
		return
	}
	l.InterestAccrued += creditmath.ComputeLinearInterest(l.Principal, l.RateBps, elapsed)
	l.LastSettlement = now
	l.Version++
}

// Repay settles a loan in full before its due date. There is no repayment
// window after the due date; only liquidate succeeds then. Returns the
// principal and final interest owed.
func (b *Book) Repay(borrowerID, receivableID uuid.UUID, now int64) (int64, int64, error) {
	l := b.loans[receivableID]
	if l == nil || l.Status != StatusActive {
		return 0, 0, protocol.ErrLoanAlreadySettled
	}
	if l.BorrowerID != borrowerID {
		return 0, 0, protocol.ErrNotLoanOwner
	}
	if now > l.DueDate {
		return 0, 0, protocol.ErrLoanOverdue
	}

	b.settle(l, now)

	l.Status = StatusRepaid
	l.SettledAt = now
	l.Version++
	b.totalBorrowed -= l.Principal

	return l.Principal, l.InterestAccrued, nil
}

// Liquidate defaults an overdue loan: settles final interest, marks the
// loan terminal, and blacklists the supplier. Returns the loan and the
// total owed amount for the waterfall.
func (b *Book) Liquidate(receivableID uuid.UUID, now int64) (*Loan, int64, error) {
	l := b.loans[receivableID]
	if l == nil || l.Status != StatusActive {
		return nil, 0, protocol.ErrLoanAlreadySettled
	}
	if now <= l.DueDate {
		return nil, 0, protocol.ErrLoanNotOverdue
	}

	b.settle(l, now)
	owed := l.Principal + l.InterestAccrued

	l.Status = StatusLiquidated
	l.SettledAt = now
	l.Version++
	b.totalBorrowed -= l.Principal
	b.blacklist[l.BorrowerID] = true

	return l, owed, nil
}

// === Queries ===

// GetLoan returns the loan for a receivable, if any
func (b *Book) GetLoan(receivableID uuid.UUID) (*Loan, bool) {
	l, ok := b.loans[receivableID]
	return l, ok
}

// PendingInterest previews accrued borrower interest without mutation
func (b *Book) PendingInterest(receivableID uuid.UUID, now int64) int64 {
	l := b.loans[receivableID]
	if l == nil || l.Status != StatusActive {
		return 0
	}
	total := l.InterestAccrued
	if elapsed := now - l.LastSettlement; elapsed > 0 {
		total += creditmath.ComputeLinearInterest(l.Principal, l.RateBps, elapsed)
	}
	return total
}

// ActiveLoans returns a borrower's active loans in creation order
func (b *Book) ActiveLoans(borrowerID uuid.UUID) []*Loan {
	result := make([]*Loan, 0)
	for _, id := range b.byBorrower[borrowerID] {
		l := b.loans[id]
		if l.Status == StatusActive {
			result = append(result, l)
		}
	}
	return result
}

// TotalBorrowed returns outstanding principal across all active loans
func (b *Book) TotalBorrowed() int64 {
	return b.totalBorrowed
}

// OutstandingPrincipal sums one borrower's active loan principal
func (b *Book) OutstandingPrincipal(borrowerID uuid.UUID) int64 {
	var total int64
	for _, id := range b.byBorrower[borrowerID] {
		if l := b.loans[id]; l.Status == StatusActive {
			total += l.Principal
		}
	}
	return total
}

// IsBlacklisted reports whether a supplier has a recorded default
func (b *Book) IsBlacklisted(supplierID uuid.UUID) bool {
	return b.blacklist[supplierID]
}

// === Snapshot support ===

// AllLoans returns every loan in per-borrower creation order
func (b *Book) AllLoans() []*Loan {
	result := make([]*Loan, 0, len(b.loans))
	for _, ids := range b.byBorrower {
		for _, id := range ids {
			result = append(result, b.loans[id])
		}
	}
	return result
}

// BlacklistedSuppliers returns the recorded defaulter set
func (b *Book) BlacklistedSuppliers() []uuid.UUID {
	result := make([]uuid.UUID, 0, len(b.blacklist))
	for id := range b.blacklist {
		result = append(result, id)
	}
	return result
}

// RestoreLoan directly inserts a loan record (snapshot restore).
// Must be called in original creation order.
func (b *Book) RestoreLoan(l *Loan) {
	b.loans[l.ReceivableID] = l
	b.byBorrower[l.BorrowerID] = append(b.byBorrower[l.BorrowerID], l.ReceivableID)
	if l.Status == StatusActive {
		b.totalBorrowed += l.Principal
	}
}

// RestoreBlacklist directly marks a supplier (snapshot restore)
func (b *Book) RestoreBlacklist(supplierID uuid.UUID) {
	b.blacklist[supplierID] = true
}
