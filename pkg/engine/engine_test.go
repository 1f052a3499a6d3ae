package engine

import (
	"context"
	"math/big"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swapflow/pkg/balance"
	"swapflow/pkg/chains"
	"swapflow/pkg/form"
	"swapflow/pkg/quote"
	"swapflow/pkg/types"
)

type fakeQuotes struct {
	mu      sync.Mutex
	calls   int
	lastKey types.ActiveKey
	res     types.QuoteResult
	err     error
}

func (f *fakeQuotes) Fetch(_ context.Context, key types.ActiveKey, v types.FormValues, _ types.Target, _ types.Settings, _ quote.Thresholds) (types.QuoteResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastKey = key
	if f.err != nil {
		return types.QuoteResult{}, f.err
	}
	r := f.res
	r.Key = key
	if r.FromAmount == "" {
		r.FromAmount = v.FromAmount
	}
	return r, nil
}

func (f *fakeQuotes) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeBalances struct {
	mu          sync.Mutex
	balances    map[string]decimal.Decimal
	allowance   decimal.Decimal
	approval    types.Approval
	invalidated []string
}

func (f *fakeBalances) Check(_ context.Context, t types.Target, amount decimal.Decimal) balance.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	bal, ok := f.balances[strings.ToLower(t.FromToken)]
	if !ok {
		return balance.Result{Approval: types.ApprovalUnknown}
	}
	return balance.Result{
		Balance:      bal,
		BalanceKnown: true,
		Allowance:    f.allowance,
		Sufficient:   amount.LessThanOrEqual(bal),
		Approval:     f.approval,
	}
}

func (f *fakeBalances) Invalidate(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, strings.ToLower(token))
}

func (f *fakeBalances) setApproval(a types.Approval) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.approval = a
}

type fakeGas struct{}

func (fakeGas) Estimate(_ context.Context, key types.ActiveKey, _ types.Target, _ types.ApprovalState, _ *types.CallData) types.EstimatedGas {
	return types.EstimatedGas{Key: key, Value: 60_000, Known: true}
}

func (fakeGas) GasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(2_000_000_000), nil
}

type fakeWallet struct {
	mu        sync.Mutex
	approvals int
	calls     []types.CallData
	sendErr   error
}

func (f *fakeWallet) SignerAddress() string { return "0x1111111111111111111111111111111111111111" }

func (f *fakeWallet) SendApproval(context.Context, string, string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.approvals++
	return "0xapprove", nil
}

func (f *fakeWallet) SendCall(_ context.Context, call types.CallData) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.calls = append(f.calls, call)
	return "0xaction", nil
}

func (f *fakeWallet) WaitForTransaction(context.Context, string) error { return nil }

func (f *fakeWallet) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendErr = err
}

// blockingWallet parks SendCall until released so a test can hold a step in
// flight.
type blockingWallet struct {
	fakeWallet
	entered chan struct{}
	release chan struct{}
}

func (w *blockingWallet) SendCall(ctx context.Context, call types.CallData) (string, error) {
	w.entered <- struct{}{}
	<-w.release
	return w.fakeWallet.SendCall(ctx, call)
}

const (
	erc20From = "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"
	tokenTo   = "0x6B175474E89094C44Da98b954EedeAC495271d0F"
)

func testConfig(fromToken string) Config {
	return Config{
		Target: types.Target{
			ChainID:      1,
			PoolID:       "tricrypto",
			FromToken:    fromToken,
			ToToken:      tokenTo,
			FromDecimals: 18,
			ToDecimals:   18,
			Spender:      "0x2222222222222222222222222222222222222222",
		},
		Settings: types.Settings{
			Flow:        types.FlowSwap,
			MaxSlippage: decimal.RequireFromString("0.1"),
		},
		Thresholds: quote.Thresholds{PriceImpactSevere: decimal.NewFromInt(5)},
	}
}

type fixture struct {
	engine   *Engine
	quotes   *fakeQuotes
	balances *fakeBalances
	wallet   *fakeWallet
}

func newFixture(fromToken string) *fixture {
	fq := &fakeQuotes{res: types.QuoteResult{
		ToAmount:     "99.5",
		ExchangeRate: decimal.RequireFromString("0.995"),
		Tx:           &types.CallData{To: "0x3333333333333333333333333333333333333333", Data: []byte{0x01}},
	}}
	fb := &fakeBalances{
		balances:  map[string]decimal.Decimal{strings.ToLower(fromToken): decimal.NewFromInt(1000)},
		allowance: decimal.Zero,
		approval:  types.ApprovalMissing,
	}
	fw := &fakeWallet{}
	e := New(testConfig(fromToken), fq, fb, fakeGas{}, fw, nil, zerolog.Nop())
	return &fixture{engine: e, quotes: fq, balances: fb, wallet: fw}
}

func setAmount(t *testing.T, f *fixture, amount string) types.ActiveKey {
	t.Helper()
	key := f.engine.UpdateFormValues(context.Background(), form.Patch{FromAmount: &amount}, UpdateOpts{})
	f.engine.Wait()
	return key
}

func setToAmount(t *testing.T, f *fixture, amount string) types.ActiveKey {
	t.Helper()
	key := f.engine.UpdateFormValues(context.Background(), form.Patch{ToAmount: &amount}, UpdateOpts{})
	f.engine.Wait()
	return key
}

func TestStaleQuoteCachedButNotApplied(t *testing.T) {
	f := newFixture(erc20From)

	k1 := setAmount(t, f, "100")
	k2 := setAmount(t, f, "200")
	require.NotEqual(t, k1, k2)

	late := types.QuoteResult{ToAmount: "999"}
	applied := f.engine.commitQuote(k1, late, nil)
	assert.False(t, applied)

	snap := f.engine.Snapshot()
	assert.Equal(t, k2, snap.ActiveKey)
	assert.NotEqual(t, "999", snap.Values.ToAmount)

	// The stale result stays in the keyed cache for later re-admission.
	f.engine.mu.Lock()
	cached, ok := f.engine.state.quotes[k1]
	f.engine.mu.Unlock()
	require.True(t, ok)
	assert.Equal(t, "999", cached.ToAmount)

	// Returning to the first input makes the same key active again.
	k1again := setAmount(t, f, "100")
	assert.Equal(t, k1, k1again)
	snap = f.engine.Snapshot()
	require.NotNil(t, snap.Quote)
	assert.Equal(t, k1, snap.Quote.Key)
}

func TestStaleApprovalNotApplied(t *testing.T) {
	f := newFixture(erc20From)

	k1 := setAmount(t, f, "100")
	setAmount(t, f, "200")

	applied := f.engine.commitApproval(k1, balance.Result{
		Balance:      decimal.NewFromInt(1),
		BalanceKnown: true,
	}, decimal.NewFromInt(100))
	assert.False(t, applied)

	snap := f.engine.Snapshot()
	assert.Equal(t, types.ErrCodeNone, snap.Values.FromError)
}

func TestApprovalFlow(t *testing.T) {
	f := newFixture(erc20From)

	setAmount(t, f, "100")
	list := f.engine.Steps()
	require.Len(t, list, 2)
	assert.Equal(t, types.StepApproval, list[0].Key)
	assert.Equal(t, types.StepReady, list[0].Status)
	assert.Equal(t, types.StepAction, list[1].Key)
	assert.Equal(t, types.StepLocked, list[1].Status)

	f.balances.setApproval(types.ApprovalGranted)
	txHash, err := f.engine.RunApproval(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0xapprove", txHash)
	f.engine.Wait()

	list = f.engine.Steps()
	require.Len(t, list, 2)
	assert.Equal(t, types.StepDone, list[0].Status)
	assert.Equal(t, "Spending Approved", list[0].Label)
	assert.Equal(t, types.StepReady, list[1].Status)
	assert.Equal(t, 1, f.wallet.approvals)
}

func TestAmountExceedingBalanceSkipsQuote(t *testing.T) {
	f := newFixture(erc20From)

	// Warm the session so the balance is known up front.
	setAmount(t, f, "100")
	before := f.quotes.callCount()

	setAmount(t, f, "5000")
	snap := f.engine.Snapshot()
	assert.Equal(t, types.ErrCodeTooMuch, snap.Values.FromError)
	assert.Equal(t, before, f.quotes.callCount())

	for _, s := range f.engine.Steps() {
		assert.Equal(t, types.StepLocked, s.Status, "step %s", s.Key)
	}
}

func TestToDrivenQuoteFillsFromAmount(t *testing.T) {
	f := newFixture(erc20From)
	f.quotes.res.FromAmount = "100.5"

	setToAmount(t, f, "100")
	snap := f.engine.Snapshot()
	assert.False(t, snap.Values.IsFrom)
	assert.Equal(t, "100.5", snap.Values.FromAmount)
	assert.Equal(t, types.ErrCodeNone, snap.Values.FromError)

	list := f.engine.Steps()
	require.Len(t, list, 2)
	assert.Equal(t, types.StepReady, list[0].Status)
}

func TestToDrivenFilledAmountExceedingBalanceLocksSteps(t *testing.T) {
	f := newFixture(erc20From)
	f.quotes.res.FromAmount = "2000"
	f.quotes.res.ToAmount = "2000"

	// the 2000 from amount is computed by the quote, not entered; it still
	// must fail validation against the 1000 balance
	setToAmount(t, f, "2000")
	snap := f.engine.Snapshot()
	assert.Equal(t, "2000", snap.Values.FromAmount)
	assert.Equal(t, types.ErrCodeTooMuch, snap.Values.FromError)

	for _, s := range f.engine.Steps() {
		assert.Equal(t, types.StepLocked, s.Status, "step %s", s.Key)
	}
}

func TestColdBalanceStampsErrorThroughCommit(t *testing.T) {
	f := newFixture(erc20From)

	setAmount(t, f, "5000")
	snap := f.engine.Snapshot()
	assert.Equal(t, types.ErrCodeTooMuch, snap.Values.FromError)
}

func TestHighImpactRequiresConfirmation(t *testing.T) {
	f := newFixture(chains.NativeTokenAddress)
	f.quotes.res.IsHighImpact = true
	f.quotes.res.PriceImpact = decimal.NewFromInt(8)
	f.balances.setApproval(types.ApprovalGranted)

	setAmount(t, f, "100")
	list := f.engine.Steps()
	require.Len(t, list, 1)
	require.NotNil(t, list[0].Confirmation)
	assert.True(t, list[0].Confirmation.RequireCheckbox)

	_, err := f.engine.RunAction(context.Background())
	require.ErrorIs(t, err, ErrConfirmationRequired)
	assert.Empty(t, f.wallet.calls)

	f.engine.ConfirmWarning(true)
	txHash, err := f.engine.RunAction(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0xaction", txHash)
	require.Len(t, f.wallet.calls, 1)
}

func TestActionSuccessResetsFormAndInvalidatesBalances(t *testing.T) {
	f := newFixture(chains.NativeTokenAddress)
	f.balances.setApproval(types.ApprovalGranted)

	setAmount(t, f, "100")
	_, err := f.engine.RunAction(context.Background())
	require.NoError(t, err)

	snap := f.engine.Snapshot()
	assert.Empty(t, snap.Values.FromAmount)
	assert.Empty(t, snap.Values.ToAmount)
	assert.Equal(t, types.CompletedAction, snap.Status.Completed)
	assert.False(t, snap.Status.Processing)

	list := f.engine.Steps()
	require.Len(t, list, 1)
	assert.Equal(t, types.StepDone, list[0].Status)
	assert.Equal(t, "Swap Complete", list[0].Label)

	assert.Contains(t, f.balances.invalidated, strings.ToLower(chains.NativeTokenAddress))
	assert.Contains(t, f.balances.invalidated, strings.ToLower(tokenTo))
}

func TestActionFailurePreservesInputForRetry(t *testing.T) {
	f := newFixture(chains.NativeTokenAddress)
	f.balances.setApproval(types.ApprovalGranted)

	setAmount(t, f, "100")
	f.wallet.setErr(assert.AnError)

	_, err := f.engine.RunAction(context.Background())
	require.Error(t, err)

	snap := f.engine.Snapshot()
	assert.Equal(t, "100", snap.Values.FromAmount)
	assert.False(t, snap.Status.Processing)
	assert.NotEmpty(t, snap.Status.Error)

	// Nothing retried on its own; a second explicit run succeeds.
	require.Empty(t, f.wallet.calls)
	f.wallet.setErr(nil)
	_, err = f.engine.RunAction(context.Background())
	require.NoError(t, err)
	require.Len(t, f.wallet.calls, 1)
}

func TestActionSuccessKeepsApprovalDone(t *testing.T) {
	f := newFixture(erc20From)
	f.balances.setApproval(types.ApprovalGranted)
	setAmount(t, f, "100")

	_, err := f.engine.RunAction(context.Background())
	require.NoError(t, err)

	list := f.engine.Steps()
	require.Len(t, list, 2)
	assert.Equal(t, types.StepDone, list[0].Status)
	assert.Equal(t, "Spending Approved", list[0].Label)
	assert.Equal(t, types.StepDone, list[1].Status)
	assert.Equal(t, "Swap Complete", list[1].Label)
}

func TestEditWhileActionInFlightStaysBlocked(t *testing.T) {
	f := newFixture(chains.NativeTokenAddress)
	f.balances.setApproval(types.ApprovalGranted)
	bw := &blockingWallet{entered: make(chan struct{}), release: make(chan struct{})}
	e := New(testConfig(chains.NativeTokenAddress), f.quotes, f.balances, fakeGas{}, bw, nil, zerolog.Nop())

	amount := "100"
	e.UpdateFormValues(context.Background(), form.Patch{FromAmount: &amount}, UpdateOpts{})
	e.Wait()

	done := make(chan error, 1)
	go func() {
		_, err := e.RunAction(context.Background())
		done <- err
	}()
	<-bw.entered

	// an edit re-derives the key; the in-flight marker must survive it
	next := "150"
	e.UpdateFormValues(context.Background(), form.Patch{FromAmount: &next}, UpdateOpts{})
	assert.True(t, e.Snapshot().Status.Processing)

	_, err := e.RunAction(context.Background())
	assert.ErrorIs(t, err, ErrProcessing)
	_, err = e.RunApproval(context.Background())
	assert.ErrorIs(t, err, ErrProcessing)

	close(bw.release)
	require.NoError(t, <-done)
	e.Wait()

	assert.False(t, e.Snapshot().Status.Processing)
	bw.mu.Lock()
	calls := len(bw.calls)
	bw.mu.Unlock()
	assert.Equal(t, 1, calls, "only the first submission may reach the wallet")
}

func TestRunWhileProcessingRejected(t *testing.T) {
	f := newFixture(chains.NativeTokenAddress)
	f.balances.setApproval(types.ApprovalGranted)
	setAmount(t, f, "100")

	f.engine.mu.Lock()
	f.engine.state.status.Processing = true
	f.engine.mu.Unlock()

	_, err := f.engine.RunAction(context.Background())
	assert.ErrorIs(t, err, ErrProcessing)
	_, err = f.engine.RunApproval(context.Background())
	assert.ErrorIs(t, err, ErrProcessing)
}

func TestRunWithoutWallet(t *testing.T) {
	f := newFixture(erc20From)
	e := New(testConfig(erc20From), f.quotes, f.balances, fakeGas{}, nil, nil, zerolog.Nop())

	_, err := e.RunApproval(context.Background())
	assert.ErrorIs(t, err, ErrMissingProvider)
	_, err = e.RunAction(context.Background())
	assert.ErrorIs(t, err, ErrMissingProvider)
}

func TestResetStateIsIdempotent(t *testing.T) {
	f := newFixture(erc20From)
	setAmount(t, f, "100")

	f.engine.ResetState()
	first := f.engine.Snapshot()
	f.engine.ResetState()
	second := f.engine.Snapshot()

	assert.Equal(t, first.ActiveKey, second.ActiveKey)
	assert.Equal(t, first.Values, second.Values)
	assert.Equal(t, first.Status, second.Status)
	assert.Empty(t, first.Values.FromAmount)
	assert.Nil(t, first.Quote)
}

func TestQuoteErrorSurfacesOnStatus(t *testing.T) {
	f := newFixture(erc20From)
	f.quotes.err = assert.AnError

	setAmount(t, f, "100")
	snap := f.engine.Snapshot()
	assert.NotEmpty(t, snap.Status.Error)
	assert.Nil(t, snap.Quote)
}

func TestApprovalUnknownSetsWarningNotError(t *testing.T) {
	f := newFixture(erc20From)
	f.balances.mu.Lock()
	delete(f.balances.balances, strings.ToLower(erc20From))
	f.balances.mu.Unlock()

	setAmount(t, f, "100")
	snap := f.engine.Snapshot()
	assert.NotEmpty(t, snap.Status.Warning)
	assert.Equal(t, types.ErrCodeNone, snap.Values.FromError)
}

func TestSetMaxReservesGasForNativeToken(t *testing.T) {
	f := newFixture(chains.NativeTokenAddress)
	f.balances.setApproval(types.ApprovalGranted)

	_, err := f.engine.SetMax(context.Background())
	require.NoError(t, err)
	f.engine.Wait()

	snap := f.engine.Snapshot()
	got := decimal.RequireFromString(snap.Values.FromAmount)
	assert.True(t, got.LessThan(decimal.NewFromInt(1000)), "fee must be reserved, got %s", got)
	assert.True(t, got.GreaterThan(decimal.NewFromInt(999)), "reserve should be small, got %s", got)
}

func TestSetMaxUsesFullBalanceForTokens(t *testing.T) {
	f := newFixture(erc20From)

	_, err := f.engine.SetMax(context.Background())
	require.NoError(t, err)
	f.engine.Wait()

	snap := f.engine.Snapshot()
	assert.Equal(t, "1000", snap.Values.FromAmount)
}

func TestCachePruningKeepsActiveKey(t *testing.T) {
	f := newFixture(erc20From)

	var last types.ActiveKey
	for i := 1; i <= maxCachedKeys+5; i++ {
		last = setAmount(t, f, decimal.NewFromInt(int64(i)).String())
	}

	f.engine.mu.Lock()
	size := len(f.engine.state.quotes)
	_, ok := f.engine.state.quotes[last]
	f.engine.mu.Unlock()

	assert.LessOrEqual(t, size, maxCachedKeys+1)
	assert.True(t, ok, "current key must survive pruning")
}
