package creditmath

import (
	"math/big"
	"sort"
)

// ComputeLinearInterest calculates non-compounding interest for a principal
// over an elapsed window:
//
//	interest = principal * rateBps * elapsedSeconds / (10_000 * 31_536_000)
//
// Uses int128 intermediates with banker's rounding. Negative elapsed windows
// yield zero (timestamps are versioned inputs and may arrive equal).
func ComputeLinearInterest(principal, rateBps, elapsedSeconds int64) int64 {
	if principal <= 0 || rateBps <= 0 || elapsedSeconds <= 0 {
		return 0
	}

	temp1 := MultiplyInt128(principal, rateBps)
	temp2 := getInt128()
	temp2.Mul(temp1, big.NewInt(elapsedSeconds))

	denominator := BasisPoints * SecondsPerYear

	interest := DivideInt128(temp2, denominator, RoundHalfEven)

	putInt128(temp1)
	putInt128(temp2)

	return interest
}

// HolderShare is one account's portion of a distributed amount.
type HolderShare struct {
	HolderID [16]byte // UUID binary
	Weight   int64    // live principal backing the share
	Amount   int64    // computed portion, floor division
}

// DistributeProRata splits total across holders in proportion to their
// weights. Requires total <= sum(weights). Floor division leaves a residual
// of at most len(holders)-1 units; residual units go to the holders with the
// largest fractional remainders, ties broken by holder ID byte order, so the
// split sums exactly to total, never exceeds any holder's weight, and is
// deterministic.
func DistributeProRata(total int64, holders []HolderShare) []HolderShare {
	// Sort by holder ID for deterministic ordering
	sort.Slice(holders, func(i, j int) bool {
		return lessHolderID(holders[i].HolderID, holders[j].HolderID)
	})

	var whole int64
	for _, h := range holders {
		whole += h.Weight
	}
	if whole == 0 || total == 0 {
		for i := range holders {
			holders[i].Amount = 0
		}
		return holders
	}

	remainders := make([]int64, len(holders))
	var assigned int64
	for i := range holders {
		raw := MultiplyInt128(holders[i].Weight, total)
		holders[i].Amount = DivideInt128(raw, whole, RoundDown)
		putInt128(raw)
		assigned += holders[i].Amount
		// remainder = weight*total mod whole, small enough for int64 after mod
		rem := MultiplyInt128(holders[i].Weight, total)
		rem.Mod(rem, big.NewInt(whole))
		remainders[i] = rem.Int64()
		putInt128(rem)
	}

	residual := total - assigned
	if residual <= 0 {
		return holders
	}

	order := make([]int, len(holders))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		ia, ib := order[a], order[b]
		if remainders[ia] != remainders[ib] {
			return remainders[ia] > remainders[ib]
		}
		return lessHolderID(holders[ia].HolderID, holders[ib].HolderID)
	})

	for _, idx := range order {
		if residual == 0 {
			break
		}
		if remainders[idx] > 0 && holders[idx].Amount < holders[idx].Weight {
			holders[idx].Amount++
			residual--
		}
	}

	return holders
}

func lessHolderID(a, b [16]byte) bool {
	for k := 0; k < 16; k++ {
		if a[k] != b[k] {
			return a[k] < b[k]
		}
	}
	return false
}
