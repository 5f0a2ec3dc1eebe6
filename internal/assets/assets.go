// Package assets defines the external collaborator surfaces the credit core
// calls out to: the token transfer link, the receivable registry, and the
// admin access controller. In-memory implementations back local mode and
// tests; production deployments wire adapters to the real settlement layer.
package assets

import (
	"fmt"

	"github.com/google/uuid"
)

// Address identifies a party on the external settlement layer.
type Address string

// Well-known addresses
const (
	PoolAddress     Address = "pool"
	TreasuryAddress Address = "treasury"
)

// AccountAddress maps a ledger account to its settlement address
func AccountAddress(accountID uuid.UUID) Address {
	return Address(accountID.String())
}

// AssetLink is the external token transfer surface. All calls are
// synchronous; the core invokes them only after its own bookkeeping is
// final and only while holding the reentrancy guard.
type AssetLink interface {
	// TransferFrom pulls tokens from a payer (requires prior approval
	// on the real settlement layer)
	TransferFrom(from, to Address, asset string, amount int64) error

	// Transfer pushes pool-held tokens out
	Transfer(to Address, asset string, amount int64) error

	// BalanceOf reports a party's balance
	BalanceOf(addr Address, asset string) int64
}

// ReceivableDetails describes one tokenized invoice
type ReceivableDetails struct {
	ReceivableID uuid.UUID
	Supplier     uuid.UUID
	Value        int64 // Face value, fixed-point USDX
	DueDate      int64 // Epoch seconds
	Verified     bool
	Custodian    Address
}

// ReceivableRegistry is the external invoice token surface
type ReceivableRegistry interface {
	GetDetails(id uuid.UUID) (*ReceivableDetails, error)
	TransferCustody(id uuid.UUID, to Address) error
	Burn(id uuid.UUID) error
}

// AccessController gates administrative operations
type AccessController interface {
	IsAdmin(accountID uuid.UUID) bool
}

// === In-memory implementations ===

type balanceKey struct {
	Addr  Address
	Asset string
}

// MemoryAssetLink is a map-backed AssetLink for local mode and tests
type MemoryAssetLink struct {
	balances map[balanceKey]int64
}

func NewMemoryAssetLink() *MemoryAssetLink {
	return &MemoryAssetLink{
		balances: make(map[balanceKey]int64),
	}
}

// Mint credits a party out of thin air (test/local setup only)
func (m *MemoryAssetLink) Mint(addr Address, asset string, amount int64) {
	m.balances[balanceKey{Addr: addr, Asset: asset}] += amount
}

func (m *MemoryAssetLink) TransferFrom(from, to Address, asset string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("transfer amount must be positive: %d", amount)
	}
	fromKey := balanceKey{Addr: from, Asset: asset}
	if m.balances[fromKey] < amount {
		return fmt.Errorf("transfer from %s: insufficient %s balance: have=%d need=%d",
			from, asset, m.balances[fromKey], amount)
	}
	m.balances[fromKey] -= amount
	m.balances[balanceKey{Addr: to, Asset: asset}] += amount
	return nil
}

func (m *MemoryAssetLink) Transfer(to Address, asset string, amount int64) error {
	return m.TransferFrom(PoolAddress, to, asset, amount)
}

func (m *MemoryAssetLink) BalanceOf(addr Address, asset string) int64 {
	return m.balances[balanceKey{Addr: addr, Asset: asset}]
}

// MemoryReceivableRegistry is a map-backed ReceivableRegistry
type MemoryReceivableRegistry struct {
	receivables map[uuid.UUID]*ReceivableDetails
}

func NewMemoryReceivableRegistry() *MemoryReceivableRegistry {
	return &MemoryReceivableRegistry{
		receivables: make(map[uuid.UUID]*ReceivableDetails),
	}
}

// Issue registers a receivable (test/local setup only)
func (m *MemoryReceivableRegistry) Issue(d *ReceivableDetails) {
	m.receivables[d.ReceivableID] = d
}

func (m *MemoryReceivableRegistry) GetDetails(id uuid.UUID) (*ReceivableDetails, error) {
	d, ok := m.receivables[id]
	if !ok {
		return nil, fmt.Errorf("receivable %s not found", id)
	}
	return d, nil
}

func (m *MemoryReceivableRegistry) TransferCustody(id uuid.UUID, to Address) error {
	d, ok := m.receivables[id]
	if !ok {
		return fmt.Errorf("receivable %s not found", id)
	}
	d.Custodian = to
	return nil
}

func (m *MemoryReceivableRegistry) Burn(id uuid.UUID) error {
	if _, ok := m.receivables[id]; !ok {
		return fmt.Errorf("receivable %s not found", id)
	}
	delete(m.receivables, id)
	return nil
}

// StaticAccessController recognizes a fixed set of admin identities
type StaticAccessController struct {
	admins map[uuid.UUID]bool
}

func NewStaticAccessController(admins ...uuid.UUID) *StaticAccessController {
	set := make(map[uuid.UUID]bool, len(admins))
	for _, id := range admins {
		set[id] = true
	}
	return &StaticAccessController{admins: set}
}

func (s *StaticAccessController) IsAdmin(accountID uuid.UUID) bool {
	return s.admins[accountID]
}
