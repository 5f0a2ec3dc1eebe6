package loan

import (
	"CrediLedger/internal/creditmath"
	"CrediLedger/internal/tranche"

	"github.com/google/uuid"
)

// LossEvent records one executed waterfall. Unrecovered shortfall is a
// recorded, observable loss, never an error.
type LossEvent struct {
	ReceivableID      uuid.UUID
	BorrowerID        uuid.UUID
	Sequence          int64
	Owed              int64
	JuniorAbsorbed    int64
	SeniorAbsorbed    int64
	Unrecovered       int64
	SlashedCollateral int64
	Timestamp         int64
}

// WaterfallResult carries the write-down legs for journal generation
type WaterfallResult struct {
	JuniorAbsorbed int64
	SeniorAbsorbed int64
	Unrecovered    int64
	JuniorLegs     []creditmath.HolderShare
	SeniorLegs     []creditmath.HolderShare
}

// Waterfall draws liquidation losses from the tranches in seniority order:
// junior (first-loss) is exhausted before senior is touched.
type Waterfall struct {
	tranches         *tranche.Ledger
	events           []*LossEvent
	totalUnrecovered int64
}

func NewWaterfall(tranches *tranche.Ledger) *Waterfall {
	return &Waterfall{
		tranches: tranches,
		events:   make([]*LossEvent, 0),
	}
}

// Run distributes an owed amount across the tranches and returns the
// write-down legs. State mutation happens inside the tranche ledger.
func (w *Waterfall) Run(owed int64, now int64) *WaterfallResult {
	result := &WaterfallResult{}

	remaining := owed

	result.JuniorAbsorbed, result.JuniorLegs = w.tranches.AbsorbLoss(tranche.Junior, remaining, now)
	remaining -= result.JuniorAbsorbed

	if remaining > 0 {
		result.SeniorAbsorbed, result.SeniorLegs = w.tranches.AbsorbLoss(tranche.Senior, remaining, now)
		remaining -= result.SeniorAbsorbed
	}

	result.Unrecovered = remaining
	return result
}

// Record stores the loss event for queries and metrics
func (w *Waterfall) Record(evt *LossEvent) {
	w.events = append(w.events, evt)
	w.totalUnrecovered += evt.Unrecovered
}

// Events returns all recorded loss events in execution order
func (w *Waterfall) Events() []*LossEvent {
	return w.events
}

// TotalUnrecovered returns the cumulative waterfall shortfall
func (w *Waterfall) TotalUnrecovered() int64 {
	return w.totalUnrecovered
}

// RestoreEvent re-inserts a loss event (snapshot restore)
func (w *Waterfall) RestoreEvent(evt *LossEvent) {
	w.Record(evt)
}
