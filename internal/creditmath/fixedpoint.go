package creditmath

import (
	"math/big"
	"sync"
)

// DecimalConfig defines fixed-point precision
type DecimalConfig struct {
	DecimalPrecision int   // Number of decimal places
	Scale            int64 // 10^DecimalPrecision
}

var (
	// Standard configs
	AmountConfig = DecimalConfig{DecimalPrecision: 6, Scale: 1_000_000} // 0.000001 USDX
	PointsConfig = DecimalConfig{DecimalPrecision: 6, Scale: 1_000_000} // loyalty points
)

const (
	// BasisPoints is the denominator for all bps-expressed rates.
	BasisPoints int64 = 10_000

	// SecondsPerYear is the accrual year (365 days).
	SecondsPerYear int64 = 31_536_000
)

// Int128 is a pooled big.Int for intermediate calculations
var int128Pool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getInt128() *big.Int {
	return int128Pool.Get().(*big.Int)
}

func putInt128(v *big.Int) {
	v.SetInt64(0) // Clear before returning to pool
	int128Pool.Put(v)
}

// MultiplyInt128 performs a * b using int128 to prevent overflow
func MultiplyInt128(a, b int64) *big.Int {
	result := getInt128()
	result.Mul(big.NewInt(a), big.NewInt(b))
	return result
}

// DivideInt128 performs numerator / denominator with rounding
func DivideInt128(numerator *big.Int, denominator int64, roundingMode RoundingMode) int64 {
	denom := big.NewInt(denominator)
	quotient := getInt128()
	remainder := getInt128()

	quotient.DivMod(numerator, denom, remainder)

	result := quotient.Int64()

	if roundingMode == RoundHalfEven {
		// Banker's rounding: if remainder == denominator/2, round to even
		half := big.NewInt(denominator / 2)
		cmp := remainder.Cmp(half)

		if cmp > 0 {
			result++
		} else if cmp == 0 && denominator%2 == 0 {
			if result%2 != 0 {
				result++
			}
		}
	}

	putInt128(quotient)
	putInt128(remainder)

	return result
}

type RoundingMode int

const (
	RoundHalfEven RoundingMode = iota // Banker's rounding (default)
	RoundDown
	RoundUp
)

// BpsOf computes amount * bps / 10000 with banker's rounding.
func BpsOf(amount, bps int64) int64 {
	raw := MultiplyInt128(amount, bps)
	result := DivideInt128(raw, BasisPoints, RoundHalfEven)
	putInt128(raw)
	return result
}

// PercentOf computes amount * pct / 100 using floor division.
// Floor keeps borrow caps conservative.
func PercentOf(amount, pct int64) int64 {
	raw := MultiplyInt128(amount, pct)
	result := DivideInt128(raw, 100, RoundDown)
	putInt128(raw)
	return result
}

// ProRataShare computes part * total / whole with floor division.
// Used for proportional loss write-downs; the caller distributes the
// flooring remainder deterministically.
func ProRataShare(part, total, whole int64) int64 {
	if whole == 0 {
		return 0
	}
	raw := MultiplyInt128(part, total)
	result := DivideInt128(raw, whole, RoundDown)
	putInt128(raw)
	return result
}
