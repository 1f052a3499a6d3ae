// Package quote turns raw pricing responses into classified, key-tagged
// quote results.
package quote

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"swapflow/pkg/pricing"
	"swapflow/pkg/types"
)

var hundred = decimal.NewFromInt(100)

// Thresholds are the per-flow severity knobs. They are configuration, not
// constants: deposit, repay and swap flows carry different values.
type Thresholds struct {
	// PriceImpactSevere is the price impact percentage above which the
	// action requires explicit confirmation.
	PriceImpactSevere decimal.Decimal
	// LowRateGap is the negative slippage percentage beyond which the
	// exchange rate is flagged as low (a milder warning than high slippage).
	LowRateGap decimal.Decimal
}

// Classification is the severity verdict for one quote.
type Classification struct {
	Slippage          decimal.Decimal
	IsBonus           bool
	IsHighSlippage    bool
	IsHighImpact      bool
	IsLowExchangeRate bool
}

// Classify derives the severity flags from the executed rate and price
// impact. Slippage is (executedRate - 1) * 100: positive is a bonus,
// more negative than -maxSlippage is high slippage. Exactly -maxSlippage
// is still acceptable.
func Classify(executedRate, priceImpact, maxSlippage decimal.Decimal, th Thresholds) Classification {
	slippage := executedRate.Sub(decimal.NewFromInt(1)).Mul(hundred)

	c := Classification{Slippage: slippage}
	c.IsBonus = slippage.IsPositive()
	if slippage.IsNegative() {
		abs := slippage.Abs()
		c.IsHighSlippage = abs.GreaterThan(maxSlippage)
		c.IsLowExchangeRate = !th.LowRateGap.IsZero() && abs.GreaterThan(th.LowRateGap)
	}
	c.IsHighImpact = priceImpact.GreaterThan(th.PriceImpactSevere)
	return c
}

// Fetcher asks the pricing engine for quotes and classifies the results.
type Fetcher struct {
	client *pricing.Client
	log    zerolog.Logger
}

func NewFetcher(client *pricing.Client, log zerolog.Logger) *Fetcher {
	return &Fetcher{client: client, log: log.With().Str("component", "quote").Logger()}
}

// Fetch requests a quote for the given inputs and tags the result with key.
// The caller commits the result through the race guard; Fetch itself never
// touches shared state.
func (f *Fetcher) Fetch(ctx context.Context, key types.ActiveKey, v types.FormValues, t types.Target, s types.Settings, th Thresholds) (types.QuoteResult, error) {
	req := pricing.QuoteRequest{
		ChainID:     t.ChainID,
		PoolID:      t.PoolID,
		FromToken:   t.FromToken,
		ToToken:     t.ToToken,
		IsFrom:      v.IsFrom,
		Signer:      t.Signer,
		MaxSlippage: s.MaxSlippage.String(),
	}
	if v.IsFrom {
		req.FromAmount = v.FromAmount
	} else {
		req.ToAmount = v.ToAmount
	}

	resp, err := f.client.GetQuote(ctx, req)
	if err != nil {
		return types.QuoteResult{Key: key}, err
	}

	result, err := f.parse(key, resp, s, th)
	if err != nil {
		return types.QuoteResult{Key: key}, err
	}

	f.log.Debug().
		Str("key", string(key)).
		Str("toAmount", result.ToAmount).
		Str("slippage", result.Slippage.String()).
		Bool("highImpact", result.IsHighImpact).
		Msg("quote fetched")
	return result, nil
}

func (f *Fetcher) parse(key types.ActiveKey, resp *pricing.QuoteResponse, s types.Settings, th Thresholds) (types.QuoteResult, error) {
	fromAmount, err := decimal.NewFromString(resp.FromAmount)
	if err != nil {
		return types.QuoteResult{}, fmt.Errorf("bad fromAmount %q: %w", resp.FromAmount, err)
	}
	toAmount, err := decimal.NewFromString(resp.ToAmount)
	if err != nil {
		return types.QuoteResult{}, fmt.Errorf("bad toAmount %q: %w", resp.ToAmount, err)
	}
	expectedRate, err := decimal.NewFromString(resp.ExpectedRate)
	if err != nil {
		return types.QuoteResult{}, fmt.Errorf("bad expectedRate %q: %w", resp.ExpectedRate, err)
	}
	priceImpact, err := decimal.NewFromString(resp.PriceImpact)
	if err != nil {
		return types.QuoteResult{}, fmt.Errorf("bad priceImpact %q: %w", resp.PriceImpact, err)
	}
	if fromAmount.IsZero() || toAmount.IsZero() || expectedRate.IsZero() {
		return types.QuoteResult{}, fmt.Errorf("degenerate quote: fromAmount=%s toAmount=%s expectedRate=%s", resp.FromAmount, resp.ToAmount, resp.ExpectedRate)
	}

	exchangeRate := toAmount.Div(fromAmount)
	executedRate := exchangeRate.Div(expectedRate)
	cls := Classify(executedRate, priceImpact, s.MaxSlippage, th)

	result := types.QuoteResult{
		Key:               key,
		FromAmount:        resp.FromAmount,
		ToAmount:          resp.ToAmount,
		ExchangeRate:      exchangeRate,
		ReverseRate:       fromAmount.Div(toAmount),
		Slippage:          cls.Slippage,
		IsBonus:           cls.IsBonus,
		IsHighSlippage:    cls.IsHighSlippage,
		PriceImpact:       priceImpact,
		IsHighImpact:      cls.IsHighImpact,
		IsLowExchangeRate: cls.IsLowExchangeRate,
	}
	for _, hop := range resp.Route {
		result.Route = append(result.Route, types.RouteHop{PoolID: hop.PoolID, TokenIn: hop.TokenIn, TokenOut: hop.TokenOut})
	}
	if resp.Tx != nil {
		data, err := hexutil.Decode(resp.Tx.Data)
		if err != nil {
			return types.QuoteResult{}, fmt.Errorf("bad tx data: %w", err)
		}
		result.Tx = &types.CallData{To: resp.Tx.To, Data: data, Value: resp.Tx.Value}
	}
	return result, nil
}
