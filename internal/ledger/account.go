package ledger

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// AccountScope represents the top-level account namespace
type AccountScope uint8

const (
	AccountScopeUser AccountScope = iota
	AccountScopeSystem
	AccountScopeExternal
)

// AccountSubType represents the account purpose
type AccountSubType uint8

const (
	// User sub-types
	SubTypeTrancheJunior AccountSubType = iota
	SubTypeTrancheSenior
	SubTypeLoanOutstanding
	SubTypeStaked

	// System sub-types
	SubTypeSystemFees
	SubTypeSystemInterestReserve
	SubTypeSystemLossReserve
	SubTypeSystemSlashedCollateral
	SubTypeSystemRewardPool

	// External sub-types
	SubTypeExternalDeposits
	SubTypeExternalWithdrawals
	SubTypeExternalDisbursements
	SubTypeExternalRepayments
	SubTypeExternalCollateralIn
	SubTypeExternalCollateralOut
	SubTypeExternalRewardPayouts
	SubTypeExternalWriteOffs
)

// AssetID maps asset strings to numeric IDs for performance
type AssetID uint16

var (
	assetToID = map[string]AssetID{
		"USDX": 1,
		"CLT":  2,
	}
	idToAsset = map[AssetID]string{
		1: "USDX",
		2: "CLT",
	}
)

// Well-known asset IDs. USDX is the pool funding asset, CLT the staked
// collateral token.
const (
	AssetUSDX AssetID = 1
	AssetCLT  AssetID = 2
)

func GetAssetID(asset string) (AssetID, bool) {
	id, ok := assetToID[asset]
	return id, ok
}

func GetAssetName(id AssetID) (string, bool) {
	name, ok := idToAsset[id]
	return name, ok
}

// AccountKey is the in-memory key for balance tracking (21 bytes, cache-friendly)
type AccountKey struct {
	Scope    AccountScope
	EntityID [16]byte // UUID for users, hash for system accounts
	SubType  AccountSubType
	AssetID  AssetID
}

// NewUserAccountKey creates a key for user accounts
func NewUserAccountKey(userID uuid.UUID, subType AccountSubType, assetID AssetID) AccountKey {
	return AccountKey{
		Scope:    AccountScopeUser,
		EntityID: userID,
		SubType:  subType,
		AssetID:  assetID,
	}
}

// NewSystemAccountKey creates a key for system accounts
func NewSystemAccountKey(name string, subType AccountSubType, assetID AssetID) AccountKey {
	var entityID [16]byte
	// Hash the name into 16 bytes
	copy(entityID[:], []byte(name))
	return AccountKey{
		Scope:    AccountScopeSystem,
		EntityID: entityID,
		SubType:  subType,
		AssetID:  assetID,
	}
}

// NewExternalAccountKey creates a key for external boundary accounts
func NewExternalAccountKey(subType AccountSubType, assetID AssetID) AccountKey {
	return AccountKey{
		Scope:   AccountScopeExternal,
		SubType: subType,
		AssetID: assetID,
	}
}

// AccountPath returns the string representation for storage/logging
func (k AccountKey) AccountPath() string {
	assetName, _ := GetAssetName(k.AssetID)

	switch k.Scope {
	case AccountScopeUser:
		uid := uuid.UUID(k.EntityID)
		return fmt.Sprintf("user:%s:%s:%s", uid.String(), k.subTypeName(), assetName)
	case AccountScopeSystem:
		return fmt.Sprintf("system:%s:%s", k.subTypeName(), assetName)
	case AccountScopeExternal:
		return fmt.Sprintf("external:%s:%s", k.subTypeName(), assetName)
	}
	return "unknown"
}

// ParseAccountPath reverses AccountPath. Unknown paths return the zero key.
func ParseAccountPath(path string) AccountKey {
	parts := strings.Split(path, ":")
	switch {
	case len(parts) == 4 && parts[0] == "user":
		uid, err := uuid.Parse(parts[1])
		if err != nil {
			return AccountKey{}
		}
		assetID, _ := GetAssetID(parts[3])
		return NewUserAccountKey(uid, subTypeFromName(parts[2]), assetID)

	case len(parts) == 3 && parts[0] == "system":
		assetID, _ := GetAssetID(parts[2])
		subType := subTypeFromName(parts[1])
		name := SystemPool
		if subType == SubTypeSystemSlashedCollateral {
			name = SystemTreasury
		}
		return NewSystemAccountKey(name, subType, assetID)

	case len(parts) == 3 && parts[0] == "external":
		assetID, _ := GetAssetID(parts[2])
		return NewExternalAccountKey(subTypeFromName(parts[1]), assetID)
	}
	return AccountKey{}
}

func subTypeFromName(name string) AccountSubType {
	switch name {
	case "tranche_junior":
		return SubTypeTrancheJunior
	case "tranche_senior":
		return SubTypeTrancheSenior
	case "loan_outstanding":
		return SubTypeLoanOutstanding
	case "staked":
		return SubTypeStaked
	case "fees":
		return SubTypeSystemFees
	case "interest_reserve":
		return SubTypeSystemInterestReserve
	case "loss_reserve":
		return SubTypeSystemLossReserve
	case "slashed_collateral":
		return SubTypeSystemSlashedCollateral
	case "reward_pool":
		return SubTypeSystemRewardPool
	case "deposits":
		return SubTypeExternalDeposits
	case "withdrawals":
		return SubTypeExternalWithdrawals
	case "disbursements":
		return SubTypeExternalDisbursements
	case "repayments":
		return SubTypeExternalRepayments
	case "collateral_in":
		return SubTypeExternalCollateralIn
	case "collateral_out":
		return SubTypeExternalCollateralOut
	case "reward_payouts":
		return SubTypeExternalRewardPayouts
	case "write_offs":
		return SubTypeExternalWriteOffs
	}
	return SubTypeTrancheJunior
}

func (k AccountKey) subTypeName() string {
	switch k.SubType {
	case SubTypeTrancheJunior:
		return "tranche_junior"
	case SubTypeTrancheSenior:
		return "tranche_senior"
	case SubTypeLoanOutstanding:
		return "loan_outstanding"
	case SubTypeStaked:
		return "staked"
	case SubTypeSystemFees:
		return "fees"
	case SubTypeSystemInterestReserve:
		return "interest_reserve"
	case SubTypeSystemLossReserve:
		return "loss_reserve"
	case SubTypeSystemSlashedCollateral:
		return "slashed_collateral"
	case SubTypeSystemRewardPool:
		return "reward_pool"
	case SubTypeExternalDeposits:
		return "deposits"
	case SubTypeExternalWithdrawals:
		return "withdrawals"
	case SubTypeExternalDisbursements:
		return "disbursements"
	case SubTypeExternalRepayments:
		return "repayments"
	case SubTypeExternalCollateralIn:
		return "collateral_in"
	case SubTypeExternalCollateralOut:
		return "collateral_out"
	case SubTypeExternalRewardPayouts:
		return "reward_payouts"
	case SubTypeExternalWriteOffs:
		return "write_offs"
	default:
		return "unknown"
	}
}
