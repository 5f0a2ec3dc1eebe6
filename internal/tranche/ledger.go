package tranche

import (
	"fmt"

	"CrediLedger/internal/creditmath"
	"CrediLedger/internal/protocol"

	"github.com/google/uuid"
)

// Class identifies the risk tranche. Junior absorbs losses first and earns
// the higher rate; senior is protected but lock-up bound.
type Class uint8

const (
	Junior Class = iota
	Senior
)

func (c Class) String() string {
	switch c {
	case Junior:
		return "junior"
	case Senior:
		return "senior"
	}
	return "unknown"
}

// ParseClass converts a wire tranche name
func ParseClass(s string) (Class, error) {
	switch s {
	case "junior":
		return Junior, nil
	case "senior":
		return Senior, nil
	}
	return 0, fmt.Errorf("unknown tranche: %q", s)
}

// Deposit is one LP funding record. Principal is live (reduced by
// withdrawals and loss write-downs); interest accrues lazily against
// LastSettlement and is folded into AccruedInterest on every touch.
type Deposit struct {
	DepositID       uuid.UUID
	AccountID       uuid.UUID
	Class           Class
	Principal       int64
	AccruedInterest int64
	RateBps         int64
	LockedUntil     int64 // Epoch seconds; 0 = no lock-up
	LastSettlement  int64
	CreatedAt       int64
	Version         int64
}

type accountClassKey struct {
	AccountID uuid.UUID
	Class     Class
}

// Ledger tracks all tranche deposits and per-class aggregates
type Ledger struct {
	deposits map[uuid.UUID]*Deposit
	byClass  map[accountClassKey][]uuid.UUID // insertion order, oldest first
	byOwner  map[uuid.UUID][]uuid.UUID       // all classes, insertion order
	totals   map[Class]int64
}

func NewLedger() *Ledger {
	return &Ledger{
		deposits: make(map[uuid.UUID]*Deposit),
		byClass:  make(map[accountClassKey][]uuid.UUID),
		byOwner:  make(map[uuid.UUID][]uuid.UUID),
		totals:   make(map[Class]int64),
	}
}

// Deposit records new LP principal. LockedUntil is pre-computed by the
// caller from the validated lock-up duration.
func (l *Ledger) Deposit(
	accountID uuid.UUID,
	class Class,
	amount int64,
	rateBps int64,
	lockedUntil int64,
	now int64,
) (*Deposit, error) {
	if amount <= 0 {
		return nil, protocol.ErrInvalidAmount
	}

	d := &Deposit{
		DepositID:      uuid.New(),
		AccountID:      accountID,
		Class:          class,
		Principal:      amount,
		RateBps:        rateBps,
		LockedUntil:    lockedUntil,
		LastSettlement: now,
		CreatedAt:      now,
	}

	l.deposits[d.DepositID] = d
	key := accountClassKey{AccountID: accountID, Class: class}
	l.byClass[key] = append(l.byClass[key], d.DepositID)
	l.byOwner[accountID] = append(l.byOwner[accountID], d.DepositID)
	l.totals[class] += amount

	return d, nil
}

// settle folds elapsed interest into AccruedInterest and re-anchors.
// Always called before any principal change on the deposit.
func (l *Ledger) settle(d *Deposit, now int64) {
	elapsed := now - d.LastSettlement
	if elapsed <= 0 {
		return
	}
	d.AccruedInterest += creditmath.ComputeLinearInterest(d.Principal, d.RateBps, elapsed)
	d.LastSettlement = now
	d.Version++
}

// Withdraw debits live principal oldest-deposit-first, skipping deposits
// still inside their lock-up window. Locked principal is unavailable, so a
// request exceeding the unlocked total fails with InsufficientBalance.
// Fully drained records stay in the ledger at zero principal: deposit
// history is never physically removed, and record indices are stable.
func (l *Ledger) Withdraw(accountID uuid.UUID, class Class, amount int64, now int64) error {
	if amount <= 0 {
		return protocol.ErrInvalidAmount
	}

	if l.AvailableBalance(accountID, class, now) < amount {
		return protocol.ErrInsufficientBalance
	}

	key := accountClassKey{AccountID: accountID, Class: class}
	remaining := amount
	for _, id := range l.byClass[key] {
		if remaining == 0 {
			break
		}
		d := l.deposits[id]
		if d.Principal == 0 || d.LockedUntil > now {
			continue
		}

		// Settle before principal change
		l.settle(d, now)

		take := remaining
		if take > d.Principal {
			take = d.Principal
		}
		d.Principal -= take
		d.Version++
		l.totals[class] -= take
		remaining -= take
	}

	if remaining != 0 {
		// AvailableBalance guaranteed coverage above
		panic(fmt.Sprintf("FATAL: tranche withdrawal under-filled: account=%s remaining=%d",
			accountID, remaining))
	}

	return nil
}

// WithdrawInterest settles and pays out all accrued interest for one
// account and class. Returns the payout amount.
func (l *Ledger) WithdrawInterest(accountID uuid.UUID, class Class, now int64) (int64, error) {
	key := accountClassKey{AccountID: accountID, Class: class}

	var total int64
	for _, id := range l.byClass[key] {
		d := l.deposits[id]
		l.settle(d, now)
		total += d.AccruedInterest
	}

	if total <= 0 {
		return 0, protocol.ErrInsufficientBalance
	}

	for _, id := range l.byClass[key] {
		d := l.deposits[id]
		if d.AccruedInterest != 0 {
			d.AccruedInterest = 0
			d.Version++
		}
	}

	return total, nil
}

// AbsorbLoss writes down a liquidation loss across one tranche class,
// pro rata by each account's live principal. Interest is settled on every
// touched deposit first. Returns the absorbed amount (min of loss and the
// class total) and the per-account write-down legs.
func (l *Ledger) AbsorbLoss(class Class, loss int64, now int64) (int64, []creditmath.HolderShare) {
	if loss <= 0 || l.totals[class] == 0 {
		return 0, nil
	}

	absorbed := loss
	if absorbed > l.totals[class] {
		absorbed = l.totals[class]
	}

	// Aggregate live principal per account
	weights := make(map[uuid.UUID]int64)
	for _, d := range l.deposits {
		if d.Class == class && d.Principal > 0 {
			l.settle(d, now)
			weights[d.AccountID] += d.Principal
		}
	}

	holders := make([]creditmath.HolderShare, 0, len(weights))
	for accountID, weight := range weights {
		holders = append(holders, creditmath.HolderShare{
			HolderID: accountID,
			Weight:   weight,
		})
	}

	holders = creditmath.DistributeProRata(absorbed, holders)

	// Apply each account's write-down oldest-deposit-first, lock-ups
	// notwithstanding (losses do not respect lock-up windows).
	for _, share := range holders {
		if share.Amount == 0 {
			continue
		}
		accountID := uuid.UUID(share.HolderID)
		key := accountClassKey{AccountID: accountID, Class: class}
		remaining := share.Amount
		for _, id := range l.byClass[key] {
			if remaining == 0 {
				break
			}
			d := l.deposits[id]
			if d.Principal == 0 {
				continue
			}
			take := remaining
			if take > d.Principal {
				take = d.Principal
			}
			d.Principal -= take
			d.Version++
			l.totals[class] -= take
			remaining -= take
		}
		if remaining != 0 {
			panic(fmt.Sprintf("FATAL: loss write-down under-filled: account=%s remaining=%d",
				accountID, remaining))
		}
	}

	return absorbed, holders
}

// ReanchorRates settles every deposit and applies new tranche rates.
// Called on pool parameter updates so past accrual keeps the old rate.
func (l *Ledger) ReanchorRates(juniorBps, seniorBps int64, now int64) {
	for _, d := range l.deposits {
		l.settle(d, now)
		switch d.Class {
		case Junior:
			d.RateBps = juniorBps
		case Senior:
			d.RateBps = seniorBps
		}
	}
}

// === Queries ===

// TotalBalance returns an account's live principal in one class
func (l *Ledger) TotalBalance(accountID uuid.UUID, class Class) int64 {
	key := accountClassKey{AccountID: accountID, Class: class}
	var total int64
	for _, id := range l.byClass[key] {
		total += l.deposits[id].Principal
	}
	return total
}

// AvailableBalance returns unlocked live principal
func (l *Ledger) AvailableBalance(accountID uuid.UUID, class Class, now int64) int64 {
	key := accountClassKey{AccountID: accountID, Class: class}
	var total int64
	for _, id := range l.byClass[key] {
		d := l.deposits[id]
		if d.LockedUntil <= now {
			total += d.Principal
		}
	}
	return total
}

// LockedBalance returns principal still inside its lock-up window
func (l *Ledger) LockedBalance(accountID uuid.UUID, class Class, now int64) int64 {
	key := accountClassKey{AccountID: accountID, Class: class}
	var total int64
	for _, id := range l.byClass[key] {
		d := l.deposits[id]
		if d.LockedUntil > now {
			total += d.Principal
		}
	}
	return total
}

// PendingInterest returns settled plus unsettled accrued interest,
// without mutating state.
func (l *Ledger) PendingInterest(accountID uuid.UUID, class Class, now int64) int64 {
	key := accountClassKey{AccountID: accountID, Class: class}
	var total int64
	for _, id := range l.byClass[key] {
		d := l.deposits[id]
		total += d.AccruedInterest
		if elapsed := now - d.LastSettlement; elapsed > 0 {
			total += creditmath.ComputeLinearInterest(d.Principal, d.RateBps, elapsed)
		}
	}
	return total
}

// DepositCount returns the number of deposit records for an account,
// drained ones included
func (l *Ledger) DepositCount(accountID uuid.UUID) int {
	return len(l.byOwner[accountID])
}

// DepositAt returns an account's deposit by creation index
func (l *Ledger) DepositAt(accountID uuid.UUID, index int) (*Deposit, bool) {
	ids := l.byOwner[accountID]
	if index < 0 || index >= len(ids) {
		return nil, false
	}
	return l.deposits[ids[index]], true
}

// TotalByClass returns the class-wide live principal aggregate
func (l *Ledger) TotalByClass(class Class) int64 {
	return l.totals[class]
}

// TotalDeposited returns live principal across both classes
func (l *Ledger) TotalDeposited() int64 {
	return l.totals[Junior] + l.totals[Senior]
}

// === Snapshot support ===

// AllDeposits returns every deposit record, drained ones included
// (snapshot creation). Order follows per-owner insertion order for
// determinism.
func (l *Ledger) AllDeposits() []*Deposit {
	result := make([]*Deposit, 0, len(l.deposits))
	for _, ids := range l.byOwner {
		for _, id := range ids {
			result = append(result, l.deposits[id])
		}
	}
	return result
}

// RestoreDeposit directly inserts a deposit record (snapshot restore).
// Must be called in original creation order.
func (l *Ledger) RestoreDeposit(d *Deposit) {
	l.deposits[d.DepositID] = d
	key := accountClassKey{AccountID: d.AccountID, Class: d.Class}
	l.byClass[key] = append(l.byClass[key], d.DepositID)
	l.byOwner[d.AccountID] = append(l.byOwner[d.AccountID], d.DepositID)
	l.totals[d.Class] += d.Principal
}
