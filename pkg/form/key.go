package form

import (
	"strconv"
	"strings"

	"swapflow/pkg/types"
)

// DeriveKey computes the active key for one input combination. Every field
// that changes the quote or the transaction payload participates; unrelated
// state must not. Keys compare by value, so a slow response can still be
// admitted when the user returns to the exact same inputs before it lands.
func DeriveKey(v types.FormValues, t types.Target, s types.Settings) types.ActiveKey {
	amount, code := ParseAmount(v.DrivingAmount())
	amountPart := v.DrivingAmount()
	if code == types.ErrCodeNone && amountPart != "" {
		// normalize so "1.50" and "1.5" derive the same key
		amountPart = amount.String()
	}

	side := "to"
	if v.IsFrom {
		side = "from"
	}

	parts := []string{
		strconv.FormatUint(t.ChainID, 10),
		strings.ToLower(t.Signer),
		t.PoolID,
		strings.ToLower(t.FromToken),
		strings.ToLower(t.ToToken),
		side,
		amountPart,
		strconv.FormatBool(v.Wrapped),
		strconv.FormatBool(v.FullRepay),
		string(s.Flow),
		s.MaxSlippage.String(),
	}
	return types.ActiveKey(strings.Join(parts, "-"))
}
