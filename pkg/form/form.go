package form

import (
	"github.com/shopspring/decimal"

	"swapflow/pkg/types"
)

// Patch is a partial update to FormValues. Nil fields are left untouched.
// FullReset clears every field back to defaults; identifiers live on the
// Target and are unaffected.
type Patch struct {
	IsFrom     *bool
	FromAmount *string
	ToAmount   *string
	Wrapped    *bool
	FullRepay  *bool
	FullReset  bool
}

// Default returns the empty form.
func Default() types.FormValues {
	return types.FormValues{IsFrom: true}
}

// Apply merges a patch into the current form values. Pure function: neither
// input is mutated. Setting an amount on one side makes that side the driver
// and clears the other side, since only one amount may drive a quote at a
// time. Field errors are always reset; validation re-derives them.
func Apply(current types.FormValues, p Patch) types.FormValues {
	if p.FullReset {
		return Default()
	}

	next := current
	next.FromError = types.ErrCodeNone
	next.ToError = types.ErrCodeNone

	if p.IsFrom != nil {
		next.IsFrom = *p.IsFrom
		if next.IsFrom {
			next.ToAmount = ""
		} else {
			next.FromAmount = ""
		}
	}
	if p.FromAmount != nil {
		next.FromAmount = *p.FromAmount
		next.IsFrom = true
		next.ToAmount = ""
	}
	if p.ToAmount != nil {
		next.ToAmount = *p.ToAmount
		next.IsFrom = false
		next.FromAmount = ""
	}
	if p.Wrapped != nil {
		next.Wrapped = *p.Wrapped
	}
	if p.FullRepay != nil {
		next.FullRepay = *p.FullRepay
	}

	return next
}

// ParseAmount validates a user-entered amount. An empty string or zero is
// valid input meaning "no quote requested"; a non-numeric or negative value
// is an invalid-number error.
func ParseAmount(raw string) (decimal.Decimal, types.ErrorCode) {
	if raw == "" {
		return decimal.Zero, types.ErrCodeNone
	}
	d, err := decimal.NewFromString(raw)
	if err != nil || d.IsNegative() {
		return decimal.Zero, types.ErrCodeInvalidNumber
	}
	return d, types.ErrCodeNone
}

// Validate parses the driving amount and stamps a field error where needed.
// Returns the parsed amount along with the annotated values.
func Validate(v types.FormValues) (types.FormValues, decimal.Decimal) {
	amount, code := ParseAmount(v.DrivingAmount())
	if v.IsFrom {
		v.FromError = code
	} else {
		v.ToError = code
	}
	return v, amount
}

// HasQuoteInput reports whether the form carries a positive driving amount
// with no validation error, i.e. a quote should be requested.
func HasQuoteInput(v types.FormValues) bool {
	if v.FromError != types.ErrCodeNone || v.ToError != types.ErrCodeNone {
		return false
	}
	amount, code := ParseAmount(v.DrivingAmount())
	return code == types.ErrCodeNone && amount.IsPositive()
}
