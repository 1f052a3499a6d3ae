package cmd

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"swapflow/config"
	"swapflow/pkg/balance"
	"swapflow/pkg/chains"
	"swapflow/pkg/engine"
	"swapflow/pkg/gas"
	"swapflow/pkg/notify"
	"swapflow/pkg/pricing"
	"swapflow/pkg/quote"
	"swapflow/pkg/steps"
	"swapflow/pkg/types"
	"swapflow/pkg/wallet"
)

// stack bundles the collaborators every command needs. The wallet provider
// is nil when no private key is configured, which leaves the engine in a
// read-only session.
type stack struct {
	cfg      *config.Config
	network  chains.Network
	client   *ethclient.Client
	provider *wallet.Provider
	checker  *balance.Checker
	pricing  *pricing.Client
	fetcher  *quote.Fetcher
	gas      *gas.Estimator
	log      zerolog.Logger
}

func buildStack(log zerolog.Logger) (*stack, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	network, err := cfg.Network(networkName)
	if err != nil {
		return nil, err
	}

	var provider *wallet.Provider
	var client *ethclient.Client
	if cfg.PrivateKey != "" {
		provider, err = wallet.NewProvider(network.RPCURL, cfg.PrivateKey, network.ChainID, log)
		if err != nil {
			return nil, err
		}
		client = provider.Client()
	} else {
		client, err = ethclient.Dial(network.RPCURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to %s: %w", network.RPCURL, err)
		}
	}

	checker, err := balance.NewChecker(client, balance.NewCache(balance.DefaultTTL), log)
	if err != nil {
		return nil, err
	}
	estimator, err := gas.NewEstimator(client, log)
	if err != nil {
		return nil, err
	}
	pricingClient := pricing.NewClient(cfg.PricingBaseURL, log)

	return &stack{
		cfg:      cfg,
		network:  network,
		client:   client,
		provider: provider,
		checker:  checker,
		pricing:  pricingClient,
		fetcher:  quote.NewFetcher(pricingClient, log),
		gas:      estimator,
		log:      log,
	}, nil
}

// usdRate returns the token's USD rate through the session cache, fetching
// from the pricing API on a miss. A zero rate means unknown.
func (s *stack) usdRate(ctx context.Context, token string) decimal.Decimal {
	cache := s.checker.Cache()
	if rate, ok := cache.USDRate(token); ok {
		return rate
	}
	rates, err := s.pricing.USDRates(ctx, s.network.ChainID, []string{token})
	if err != nil {
		s.log.Warn().Err(err).Str("token", token).Msg("usd rate fetch failed")
		return decimal.Zero
	}
	for addr, rate := range rates {
		cache.PutUSDRate(addr, rate)
	}
	rate, _ := cache.USDRate(token)
	return rate
}

func (s *stack) close() {
	if s.provider != nil {
		s.provider.Close()
		return
	}
	s.client.Close()
}

// newEngine wires an engine for one target. An explicit slippage override
// of zero means "use the flow's configured default".
func (s *stack) newEngine(target types.Target, flow types.FlowKind, slippage decimal.Decimal, notifier notify.Notifier) *engine.Engine {
	th := s.cfg.ThresholdsFor(flow)
	maxSlippage := th.MaxSlippage
	if slippage.IsPositive() {
		maxSlippage = slippage
	}

	ecfg := engine.Config{
		Target:   target,
		Settings: types.Settings{Flow: flow, MaxSlippage: maxSlippage},
		Thresholds: quote.Thresholds{
			PriceImpactSevere: th.PriceImpactSevere,
			LowRateGap:        th.LowRateGap,
		},
		Labels: steps.DefaultLabels(),
	}

	var w engine.Wallet
	if s.provider != nil {
		w = s.provider
	}
	return engine.New(ecfg, s.fetcher, s.checker, s.gas, w, notifier, s.log)
}
