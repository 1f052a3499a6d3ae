// Package balance checks the signer's token balance and allowance for the
// contract executing the action, and shares the results through a
// session-scoped cache.
package balance

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"swapflow/pkg/types"
)

const erc20ABI = `[
	{"constant":true,"inputs":[{"name":"_owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"balance","type":"uint256"}],"type":"function"},
	{"constant":true,"inputs":[{"name":"_owner","type":"address"},{"name":"_spender","type":"address"}],"name":"allowance","outputs":[{"name":"remaining","type":"uint256"}],"type":"function"}
]`

// nativeToken is the conventional pseudo-address for the chain's native
// token, which has no contract and needs no allowance.
const nativeToken = "0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee"

// ChainReader is the subset of ethclient the checker needs.
type ChainReader interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// Result is the outcome of one balance/allowance check.
type Result struct {
	Balance decimal.Decimal
	// BalanceKnown is false when both the live read and the cache missed.
	// Callers must not treat an unknown balance as zero.
	BalanceKnown bool
	Allowance    decimal.Decimal
	Sufficient   bool
	Approval     types.Approval
}

// Checker reads balances and allowances and populates the session cache.
type Checker struct {
	client ChainReader
	cache  *Cache
	log    zerolog.Logger

	parsedABI abi.ABI
}

func NewChecker(client ChainReader, cache *Cache, log zerolog.Logger) (*Checker, error) {
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ERC20 ABI: %w", err)
	}
	return &Checker{
		client:    client,
		cache:     cache,
		log:       log.With().Str("component", "balance").Logger(),
		parsedABI: parsed,
	}, nil
}

// Cache returns the session cache the checker writes through.
func (c *Checker) Cache() *Cache { return c.cache }

// Check fetches the owner's balance of token and the allowance granted to
// spender, and decides whether both cover amount. An exact match is
// sufficient; only a strictly greater amount is not.
//
// Failures are soft: a network error yields ApprovalUnknown with a nil
// error, so the caller can surface a warning instead of blocking the form.
// The balance side falls back to the cached value when the live read fails.
func (c *Checker) Check(ctx context.Context, t types.Target, amount decimal.Decimal) Result {
	res := Result{Approval: types.ApprovalUnknown}

	bal, err := c.fetchBalance(ctx, t)
	if err != nil {
		c.log.Warn().Err(err).Str("token", t.FromToken).Msg("balance fetch failed")
		cached, ok := c.cache.Balance(t.FromToken)
		if !ok {
			return res
		}
		bal = cached
	} else {
		c.cache.PutBalance(t.FromToken, bal)
	}
	res.Balance = bal
	res.BalanceKnown = true
	res.Sufficient = amount.LessThanOrEqual(bal)

	if isNative(t.FromToken) {
		// native token: nothing to approve
		res.Allowance = bal
		res.Approval = types.ApprovalGranted
		return res
	}

	allowance, err := c.fetchAllowance(ctx, t)
	if err != nil {
		c.log.Warn().Err(err).Str("token", t.FromToken).Msg("allowance fetch failed")
		return res
	}
	res.Allowance = allowance
	if amount.LessThanOrEqual(allowance) {
		res.Approval = types.ApprovalGranted
	} else {
		res.Approval = types.ApprovalMissing
	}
	return res
}

// Invalidate drops the cached balance for a token, forcing the next check
// to hit the chain. Called after a confirmed transaction.
func (c *Checker) Invalidate(token string) {
	c.cache.DropBalance(token)
}

func (c *Checker) fetchBalance(ctx context.Context, t types.Target) (decimal.Decimal, error) {
	owner := common.HexToAddress(t.Signer)

	if isNative(t.FromToken) {
		raw, err := c.client.BalanceAt(ctx, owner, nil)
		if err != nil {
			return decimal.Zero, fmt.Errorf("failed to get native balance: %w", err)
		}
		return FromBaseUnits(raw, 18), nil
	}

	raw, err := c.callUint(ctx, t.FromToken, "balanceOf", owner)
	if err != nil {
		return decimal.Zero, err
	}
	return FromBaseUnits(raw, t.FromDecimals), nil
}

func (c *Checker) fetchAllowance(ctx context.Context, t types.Target) (decimal.Decimal, error) {
	owner := common.HexToAddress(t.Signer)
	spender := common.HexToAddress(t.Spender)

	raw, err := c.callUint(ctx, t.FromToken, "allowance", owner, spender)
	if err != nil {
		return decimal.Zero, err
	}
	return FromBaseUnits(raw, t.FromDecimals), nil
}

func (c *Checker) callUint(ctx context.Context, token, method string, args ...any) (*big.Int, error) {
	data, err := c.parsedABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s data: %w", method, err)
	}

	tokenAddr := common.HexToAddress(token)
	msg := ethereum.CallMsg{To: &tokenAddr, Data: data}
	result, err := c.client.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", method, err)
	}

	value := new(big.Int)
	value.SetBytes(result)
	return value, nil
}

func isNative(token string) bool {
	return strings.EqualFold(token, nativeToken)
}

// FromBaseUnits converts a raw on-chain integer to a decimal in token units.
func FromBaseUnits(raw *big.Int, decimals uint8) decimal.Decimal {
	return decimal.NewFromBigInt(raw, 0).Shift(-int32(decimals))
}

// ToBaseUnits converts a token-unit decimal to the raw on-chain integer.
// Fractional dust below the token's precision is truncated.
func ToBaseUnits(amount decimal.Decimal, decimals uint8) *big.Int {
	return amount.Shift(int32(decimals)).Truncate(0).BigInt()
}
