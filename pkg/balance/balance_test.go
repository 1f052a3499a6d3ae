package balance

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swapflow/pkg/types"
)

// fakeReader serves canned balance/allowance values. balanceOf and allowance
// calls are told apart by calldata length (36 vs 68 bytes).
type fakeReader struct {
	balance   *big.Int
	allowance *big.Int
	err       error
}

func (f *fakeReader) CallContract(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(call.Data) > 36 {
		return common.LeftPadBytes(f.allowance.Bytes(), 32), nil
	}
	return common.LeftPadBytes(f.balance.Bytes(), 32), nil
}

func (f *fakeReader) BalanceAt(context.Context, common.Address, *big.Int) (*big.Int, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.balance, nil
}

func target(decimals uint8) types.Target {
	return types.Target{
		ChainID:      1,
		FromToken:    "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
		ToToken:      "0xdAC17F958D2ee523a2206206994597C13D831ec7",
		FromDecimals: decimals,
		Spender:      "0x99a58482BD75cbab83b27EC03CA68fF489b5788f",
		Signer:       "0x7a16fF8270133F063aAb6C9977183D9e72835428",
	}
}

func newChecker(t *testing.T, r ChainReader) *Checker {
	c, err := NewChecker(r, NewCache(DefaultTTL), zerolog.Nop())
	require.NoError(t, err)
	return c
}

func TestCheckBalanceBoundary(t *testing.T) {
	// one full token plus dust, in base units, per decimal width
	tests := []struct {
		decimals uint8
		raw      string
		exact    string
		over     string
	}{
		{2, "150", "1.50", "1.51"},
		{6, "1500000", "1.5", "1.500001"},
		{18, "1500000000000000000", "1.5", "1.500000000000000001"},
	}
	for _, tt := range tests {
		t.Run(decimal.NewFromInt(int64(tt.decimals)).String()+"-decimals", func(t *testing.T) {
			raw, ok := new(big.Int).SetString(tt.raw, 10)
			require.True(t, ok)
			checker := newChecker(t, &fakeReader{balance: raw, allowance: big.NewInt(0)})

			exact := checker.Check(context.Background(), target(tt.decimals), decimal.RequireFromString(tt.exact))
			assert.True(t, exact.Sufficient, "amount equal to balance is valid")

			over := checker.Check(context.Background(), target(tt.decimals), decimal.RequireFromString(tt.over))
			assert.False(t, over.Sufficient, "amount above balance is invalid")
		})
	}
}

func TestCheckApprovalStates(t *testing.T) {
	tk := target(6)
	amount := decimal.RequireFromString("100")

	t.Run("granted at exact allowance", func(t *testing.T) {
		checker := newChecker(t, &fakeReader{balance: big.NewInt(500_000_000), allowance: big.NewInt(100_000_000)})
		res := checker.Check(context.Background(), tk, amount)
		assert.Equal(t, types.ApprovalGranted, res.Approval)
	})
	t.Run("missing below amount", func(t *testing.T) {
		checker := newChecker(t, &fakeReader{balance: big.NewInt(500_000_000), allowance: big.NewInt(99_999_999)})
		res := checker.Check(context.Background(), tk, amount)
		assert.Equal(t, types.ApprovalMissing, res.Approval)
	})
	t.Run("unknown on network error", func(t *testing.T) {
		checker := newChecker(t, &fakeReader{err: errors.New("rpc: connection refused")})
		res := checker.Check(context.Background(), tk, amount)
		assert.Equal(t, types.ApprovalUnknown, res.Approval)
		assert.False(t, res.Sufficient)
		assert.False(t, res.BalanceKnown)
	})
}

func TestCheckNativeTokenNeedsNoApproval(t *testing.T) {
	tk := target(18)
	tk.FromToken = "0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE"
	checker := newChecker(t, &fakeReader{balance: big.NewInt(2e18)})

	res := checker.Check(context.Background(), tk, decimal.NewFromInt(1))
	assert.Equal(t, types.ApprovalGranted, res.Approval)
	assert.True(t, res.Sufficient)
}

func TestCheckPopulatesAndFallsBackToCache(t *testing.T) {
	tk := target(6)
	reader := &fakeReader{balance: big.NewInt(250_000_000), allowance: big.NewInt(0)}
	checker := newChecker(t, reader)

	checker.Check(context.Background(), tk, decimal.NewFromInt(1))
	cached, ok := checker.Cache().Balance(tk.FromToken)
	require.True(t, ok)
	assert.Equal(t, "250", cached.String())

	// live read now fails; the cached balance still validates the form
	reader.err = errors.New("rpc: timeout")
	res := checker.Check(context.Background(), tk, decimal.NewFromInt(200))
	assert.True(t, res.Sufficient)
	assert.True(t, res.BalanceKnown)
	assert.Equal(t, types.ApprovalUnknown, res.Approval)
}

func TestCacheTTLAndInvalidate(t *testing.T) {
	cache := NewCache(time.Minute)
	now := time.Now()
	cache.now = func() time.Time { return now }

	cache.PutBalance("0xAA", decimal.NewFromInt(7))
	_, ok := cache.Balance("0xaa")
	assert.True(t, ok, "lookup is case-insensitive")

	now = now.Add(2 * time.Minute)
	_, ok = cache.Balance("0xAA")
	assert.False(t, ok, "expired after TTL")

	now = now.Add(-2 * time.Minute)
	cache.PutBalance("0xAA", decimal.NewFromInt(7))
	cache.DropBalance("0xAA")
	_, ok = cache.Balance("0xAA")
	assert.False(t, ok)
}

func TestBaseUnitRoundTrip(t *testing.T) {
	amount := decimal.RequireFromString("1.234567")
	raw := ToBaseUnits(amount, 6)
	assert.Equal(t, "1234567", raw.String())
	assert.True(t, FromBaseUnits(raw, 6).Equal(amount))
}
