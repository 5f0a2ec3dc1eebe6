package ingestion

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"CrediLedger/internal/op"
)

// ParseRawOp converts a RawOp (JSON bytes + operation type string) into a
// typed op.Operation. The ingestion shell validates, parses, and converts
// raw messages before sending to the deterministic core.
func ParseRawOp(raw RawOp, opType string) (op.Operation, error) {
	switch opType {
	case "TrancheDeposit":
		return parseTrancheDeposit(raw.Data)
	case "TrancheWithdraw":
		return parseTrancheWithdraw(raw.Data)
	case "Withdraw":
		// Legacy tranche-agnostic form; defaults to the junior tranche
		return parseLegacyWithdraw(raw.Data)
	case "InterestWithdraw":
		return parseInterestWithdraw(raw.Data)
	case "StakeDeposit":
		return parseStakeDeposit(raw.Data)
	case "StakeRelease":
		return parseStakeRelease(raw.Data)
	case "RewardClaim":
		return parseRewardClaim(raw.Data)
	case "InvoiceBorrow":
		return parseInvoiceBorrow(raw.Data)
	case "LoanRepay":
		return parseLoanRepay(raw.Data)
	case "LoanLiquidate":
		return parseLoanLiquidate(raw.Data)
	case "FeeWithdraw":
		return parseFeeWithdraw(raw.Data)
	case "PoolParamUpdate":
		return parsePoolParamUpdate(raw.Data)
	default:
		return nil, fmt.Errorf("unknown operation type: %s", opType)
	}
}

// --- JSON wire formats ---
// These structs represent the JSON payloads received from NATS and HTTP.
// Field names use snake_case to match upstream producers.

type trancheDepositJSON struct {
	OpID         string `json:"op_id"`
	AccountID    string `json:"account_id"`
	Tranche      string `json:"tranche"` // "junior" or "senior"
	Amount       int64  `json:"amount"`
	LockDuration int64  `json:"lock_duration"`
	Sequence     int64  `json:"sequence"`
	Timestamp    int64  `json:"timestamp"`
}

func parseTrancheDeposit(data []byte) (*op.TrancheDeposit, error) {
	var j trancheDepositJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse TrancheDeposit: %w", err)
	}

	opID, err := uuid.Parse(j.OpID)
	if err != nil {
		return nil, fmt.Errorf("parse op_id: %w", err)
	}
	accountID, err := uuid.Parse(j.AccountID)
	if err != nil {
		return nil, fmt.Errorf("parse account_id: %w", err)
	}

	return &op.TrancheDeposit{
		OpID:         opID,
		AccountID:    accountID,
		Tranche:      j.Tranche,
		Amount:       j.Amount,
		LockDuration: j.LockDuration,
		Sequence:     j.Sequence,
		Timestamp:    j.Timestamp,
	}, nil
}

type trancheWithdrawJSON struct {
	OpID      string `json:"op_id"`
	AccountID string `json:"account_id"`
	Tranche   string `json:"tranche"`
	Amount    int64  `json:"amount"`
	Sequence  int64  `json:"sequence"`
	Timestamp int64  `json:"timestamp"`
}

func parseTrancheWithdraw(data []byte) (*op.TrancheWithdraw, error) {
	var j trancheWithdrawJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse TrancheWithdraw: %w", err)
	}

	opID, err := uuid.Parse(j.OpID)
	if err != nil {
		return nil, fmt.Errorf("parse op_id: %w", err)
	}
	accountID, err := uuid.Parse(j.AccountID)
	if err != nil {
		return nil, fmt.Errorf("parse account_id: %w", err)
	}

	return &op.TrancheWithdraw{
		OpID:      opID,
		AccountID: accountID,
		Tranche:   j.Tranche,
		Amount:    j.Amount,
		Sequence:  j.Sequence,
		Timestamp: j.Timestamp,
	}, nil
}

func parseLegacyWithdraw(data []byte) (*op.TrancheWithdraw, error) {
	w, err := parseTrancheWithdraw(data)
	if err != nil {
		return nil, err
	}
	if w.Tranche == "" {
		w.Tranche = "junior"
	}
	return w, nil
}

type interestWithdrawJSON struct {
	OpID      string `json:"op_id"`
	AccountID string `json:"account_id"`
	Tranche   string `json:"tranche"`
	Sequence  int64  `json:"sequence"`
	Timestamp int64  `json:"timestamp"`
}

func parseInterestWithdraw(data []byte) (*op.InterestWithdraw, error) {
	var j interestWithdrawJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse InterestWithdraw: %w", err)
	}

	opID, err := uuid.Parse(j.OpID)
	if err != nil {
		return nil, fmt.Errorf("parse op_id: %w", err)
	}
	accountID, err := uuid.Parse(j.AccountID)
	if err != nil {
		return nil, fmt.Errorf("parse account_id: %w", err)
	}

	return &op.InterestWithdraw{
		OpID:      opID,
		AccountID: accountID,
		Tranche:   j.Tranche,
		Sequence:  j.Sequence,
		Timestamp: j.Timestamp,
	}, nil
}

type stakeDepositJSON struct {
	OpID      string `json:"op_id"`
	AccountID string `json:"account_id"`
	Amount    int64  `json:"amount"`
	Duration  int64  `json:"duration"`
	Sequence  int64  `json:"sequence"`
	Timestamp int64  `json:"timestamp"`
}

func parseStakeDeposit(data []byte) (*op.StakeDeposit, error) {
	var j stakeDepositJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse StakeDeposit: %w", err)
	}

	opID, err := uuid.Parse(j.OpID)
	if err != nil {
		return nil, fmt.Errorf("parse op_id: %w", err)
	}
	accountID, err := uuid.Parse(j.AccountID)
	if err != nil {
		return nil, fmt.Errorf("parse account_id: %w", err)
	}

	return &op.StakeDeposit{
		OpID:      opID,
		AccountID: accountID,
		Amount:    j.Amount,
		Duration:  j.Duration,
		Sequence:  j.Sequence,
		Timestamp: j.Timestamp,
	}, nil
}

type stakeReleaseJSON struct {
	OpID      string `json:"op_id"`
	AccountID string `json:"account_id"`
	StakeID   string `json:"stake_id"`
	Sequence  int64  `json:"sequence"`
	Timestamp int64  `json:"timestamp"`
}

func parseStakeRelease(data []byte) (*op.StakeRelease, error) {
	var j stakeReleaseJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse StakeRelease: %w", err)
	}

	opID, err := uuid.Parse(j.OpID)
	if err != nil {
		return nil, fmt.Errorf("parse op_id: %w", err)
	}
	accountID, err := uuid.Parse(j.AccountID)
	if err != nil {
		return nil, fmt.Errorf("parse account_id: %w", err)
	}
	stakeID, err := uuid.Parse(j.StakeID)
	if err != nil {
		return nil, fmt.Errorf("parse stake_id: %w", err)
	}

	return &op.StakeRelease{
		OpID:      opID,
		AccountID: accountID,
		StakeID:   stakeID,
		Sequence:  j.Sequence,
		Timestamp: j.Timestamp,
	}, nil
}

func parseRewardClaim(data []byte) (*op.RewardClaim, error) {
	var j stakeReleaseJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse RewardClaim: %w", err)
	}

	opID, err := uuid.Parse(j.OpID)
	if err != nil {
		return nil, fmt.Errorf("parse op_id: %w", err)
	}
	accountID, err := uuid.Parse(j.AccountID)
	if err != nil {
		return nil, fmt.Errorf("parse account_id: %w", err)
	}
	stakeID, err := uuid.Parse(j.StakeID)
	if err != nil {
		return nil, fmt.Errorf("parse stake_id: %w", err)
	}

	return &op.RewardClaim{
		OpID:      opID,
		AccountID: accountID,
		StakeID:   stakeID,
		Sequence:  j.Sequence,
		Timestamp: j.Timestamp,
	}, nil
}

type invoiceBorrowJSON struct {
	OpID      string `json:"op_id"`
	AccountID string `json:"account_id"`
	InvoiceID string `json:"invoice_id"`
	Amount    int64  `json:"amount"`
	Sequence  int64  `json:"sequence"`
	Timestamp int64  `json:"timestamp"`
}

func parseInvoiceBorrow(data []byte) (*op.InvoiceBorrow, error) {
	var j invoiceBorrowJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse InvoiceBorrow: %w", err)
	}

	opID, err := uuid.Parse(j.OpID)
	if err != nil {
		return nil, fmt.Errorf("parse op_id: %w", err)
	}
	accountID, err := uuid.Parse(j.AccountID)
	if err != nil {
		return nil, fmt.Errorf("parse account_id: %w", err)
	}
	invoiceID, err := uuid.Parse(j.InvoiceID)
	if err != nil {
		return nil, fmt.Errorf("parse invoice_id: %w", err)
	}

	return &op.InvoiceBorrow{
		OpID:      opID,
		AccountID: accountID,
		InvoiceID: invoiceID,
		Amount:    j.Amount,
		Sequence:  j.Sequence,
		Timestamp: j.Timestamp,
	}, nil
}

func parseLoanRepay(data []byte) (*op.LoanRepay, error) {
	var j invoiceBorrowJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse LoanRepay: %w", err)
	}

	opID, err := uuid.Parse(j.OpID)
	if err != nil {
		return nil, fmt.Errorf("parse op_id: %w", err)
	}
	accountID, err := uuid.Parse(j.AccountID)
	if err != nil {
		return nil, fmt.Errorf("parse account_id: %w", err)
	}
	invoiceID, err := uuid.Parse(j.InvoiceID)
	if err != nil {
		return nil, fmt.Errorf("parse invoice_id: %w", err)
	}

	return &op.LoanRepay{
		OpID:      opID,
		AccountID: accountID,
		InvoiceID: invoiceID,
		Sequence:  j.Sequence,
		Timestamp: j.Timestamp,
	}, nil
}

type loanLiquidateJSON struct {
	OpID      string `json:"op_id"`
	InvoiceID string `json:"invoice_id"`
	Sequence  int64  `json:"sequence"`
	Timestamp int64  `json:"timestamp"`
}

func parseLoanLiquidate(data []byte) (*op.LoanLiquidate, error) {
	var j loanLiquidateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse LoanLiquidate: %w", err)
	}

	opID, err := uuid.Parse(j.OpID)
	if err != nil {
		return nil, fmt.Errorf("parse op_id: %w", err)
	}
	invoiceID, err := uuid.Parse(j.InvoiceID)
	if err != nil {
		return nil, fmt.Errorf("parse invoice_id: %w", err)
	}

	return &op.LoanLiquidate{
		OpID:      opID,
		InvoiceID: invoiceID,
		Sequence:  j.Sequence,
		Timestamp: j.Timestamp,
	}, nil
}

type feeWithdrawJSON struct {
	OpID      string `json:"op_id"`
	AdminID   string `json:"admin_id"`
	Amount    int64  `json:"amount"`
	Sequence  int64  `json:"sequence"`
	Timestamp int64  `json:"timestamp"`
}

func parseFeeWithdraw(data []byte) (*op.FeeWithdraw, error) {
	var j feeWithdrawJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse FeeWithdraw: %w", err)
	}

	opID, err := uuid.Parse(j.OpID)
	if err != nil {
		return nil, fmt.Errorf("parse op_id: %w", err)
	}
	adminID, err := uuid.Parse(j.AdminID)
	if err != nil {
		return nil, fmt.Errorf("parse admin_id: %w", err)
	}

	return &op.FeeWithdraw{
		OpID:      opID,
		AdminID:   adminID,
		Amount:    j.Amount,
		Sequence:  j.Sequence,
		Timestamp: j.Timestamp,
	}, nil
}

type poolParamUpdateJSON struct {
	OpID           string `json:"op_id"`
	AdminID        string `json:"admin_id"`
	JuniorRateBps  int64  `json:"junior_rate_bps"`
	SeniorRateBps  int64  `json:"senior_rate_bps"`
	BorrowRateBps  int64  `json:"borrow_rate_bps"`
	FeeSkimBps     int64  `json:"fee_skim_bps"`
	BorrowCapPct   int64  `json:"borrow_cap_pct"`
	TierStepPct    int64  `json:"tier_step_pct"`
	UtilizationCap int64  `json:"utilization_cap"`
	Sequence       int64  `json:"sequence"`
	Timestamp      int64  `json:"timestamp"`
}

func parsePoolParamUpdate(data []byte) (*op.PoolParamUpdate, error) {
	var j poolParamUpdateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse PoolParamUpdate: %w", err)
	}

	opID, err := uuid.Parse(j.OpID)
	if err != nil {
		return nil, fmt.Errorf("parse op_id: %w", err)
	}
	adminID, err := uuid.Parse(j.AdminID)
	if err != nil {
		return nil, fmt.Errorf("parse admin_id: %w", err)
	}

	return &op.PoolParamUpdate{
		OpID:           opID,
		AdminID:        adminID,
		JuniorRateBps:  j.JuniorRateBps,
		SeniorRateBps:  j.SeniorRateBps,
		BorrowRateBps:  j.BorrowRateBps,
		FeeSkimBps:     j.FeeSkimBps,
		BorrowCapPct:   j.BorrowCapPct,
		TierStepPct:    j.TierStepPct,
		UtilizationCap: j.UtilizationCap,
		Sequence:       j.Sequence,
		Timestamp:      j.Timestamp,
	}, nil
}
