package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"CrediLedger/internal/op"
)

// IngestService provides operation injection over HTTP. It is for admin
// actions, keeper triggers, and manual testing, not for high-throughput
// ingestion (use NATS for that).
type IngestService struct {
	opChan chan<- op.Operation
}

func NewIngestService(opChan chan<- op.Operation) *IngestService {
	return &IngestService{opChan: opChan}
}

// Submit queues a parsed operation for the core. Blocks when the core is
// backed up, so HTTP callers get backpressure instead of silent drops.
func (s *IngestService) Submit(ctx context.Context, o op.Operation) error {
	select {
	case s.opChan <- o:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InjectLiquidation manually triggers a default on an overdue loan.
// Keeper-style entry point.
func (s *IngestService) InjectLiquidation(
	ctx context.Context,
	invoiceID uuid.UUID,
	timestamp int64,
) error {
	if timestamp <= 0 {
		return fmt.Errorf("timestamp must be positive")
	}

	o := &op.LoanLiquidate{
		OpID:      uuid.New(),
		InvoiceID: invoiceID,
		Sequence:  time.Now().UnixMicro(), // Admin-injected: use timestamp as sequence
		Timestamp: timestamp,
	}

	return s.Submit(ctx, o)
}

// InjectFeeWithdraw manually sweeps protocol fees to the treasury.
func (s *IngestService) InjectFeeWithdraw(
	ctx context.Context,
	adminID uuid.UUID,
	amount int64,
	timestamp int64,
) error {
	if amount <= 0 {
		return fmt.Errorf("amount must be positive")
	}

	o := &op.FeeWithdraw{
		OpID:      uuid.New(),
		AdminID:   adminID,
		Amount:    amount,
		Sequence:  time.Now().UnixMicro(),
		Timestamp: timestamp,
	}

	return s.Submit(ctx, o)
}
