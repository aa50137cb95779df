package calc

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// BoundsStrategy selects how contract demand bounds are derived from the
// contracted volume. Production historically used DoubleVolume and ignored
// the stored limit percentages; PercentLimits applies them. Which one is
// intended remains unconfirmed with the system owner, so both are kept
// behind configuration (BOUNDS_STRATEGY).
type BoundsStrategy string

const (
	BoundsDoubleVolume  BoundsStrategy = "double-volume"
	BoundsPercentLimits BoundsStrategy = "percent-limits"
)

// ParseBoundsStrategy validates a configured strategy name, defaulting to
// double-volume for empty input.
func ParseBoundsStrategy(s string) (BoundsStrategy, error) {
	switch BoundsStrategy(s) {
	case "", BoundsDoubleVolume:
		return BoundsDoubleVolume, nil
	case BoundsPercentLimits:
		return BoundsPercentLimits, nil
	default:
		return "", fmt.Errorf("unknown bounds strategy %q", s)
	}
}

var (
	decimalTwo     = decimal.NewFromInt(2)
	decimalHundred = decimal.NewFromInt(100)
)

// DemandBounds computes [min, max] demand from a contracted volume. Nil
// volume yields nil bounds. Under double-volume the result is [0, 2×volume].
// Under percent-limits the lower/upper limit percentages widened by the
// flexibility percentage are applied to the volume; missing percentages are
// treated as zero.
func DemandBounds(volume, lower, upper, flex *decimal.Decimal, strategy BoundsStrategy) (min, max *decimal.Decimal) {
	if volume == nil {
		return nil, nil
	}

	switch strategy {
	case BoundsPercentLimits:
		lo := volume.Mul(decimalHundred.Sub(orZero(lower)).Sub(orZero(flex))).Div(decimalHundred)
		hi := volume.Mul(decimalHundred.Add(orZero(upper)).Add(orZero(flex))).Div(decimalHundred)
		return &lo, &hi
	default:
		lo := decimal.Zero
		hi := volume.Mul(decimalTwo)
		return &lo, &hi
	}
}

func orZero(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}
