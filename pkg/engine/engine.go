// Package engine is the transactional workflow orchestrator. It owns the
// form state for one page/session, coordinates the balance, quote and gas
// collaborators, admits their asynchronous results through a key-based race
// guard, and drives the approval/action steps on user confirmation.
package engine

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"swapflow/pkg/balance"
	"swapflow/pkg/chains"
	"swapflow/pkg/form"
	"swapflow/pkg/notify"
	"swapflow/pkg/quote"
	"swapflow/pkg/steps"
	"swapflow/pkg/types"
)

var (
	// ErrMissingProvider is returned when a step is run without a wallet.
	ErrMissingProvider = errors.New("wallet provider not connected")
	// ErrProcessing is returned when a step is run while another is in
	// flight. Only one step may be active at a time.
	ErrProcessing = errors.New("a step is already processing")
	// ErrNotReady is returned when a step is run before its prerequisites
	// are met.
	ErrNotReady = errors.New("step is not ready")
	// ErrConfirmationRequired is returned when the action carries a
	// warning that has not been confirmed.
	ErrConfirmationRequired = errors.New("warning confirmation required")
)

// maxCachedKeys bounds the keyed result caches. When exceeded the caches
// are reset to just the current key.
const maxCachedKeys = 30

// QuoteSource fetches key-tagged quotes.
type QuoteSource interface {
	Fetch(ctx context.Context, key types.ActiveKey, v types.FormValues, t types.Target, s types.Settings, th quote.Thresholds) (types.QuoteResult, error)
}

// ApprovalSource checks balances and allowances.
type ApprovalSource interface {
	Check(ctx context.Context, t types.Target, amount decimal.Decimal) balance.Result
	Invalidate(token string)
}

// GasSource estimates transaction cost.
type GasSource interface {
	Estimate(ctx context.Context, key types.ActiveKey, t types.Target, approval types.ApprovalState, action *types.CallData) types.EstimatedGas
	GasPrice(ctx context.Context) (*big.Int, error)
}

// Wallet submits transactions. Nil when no signer is connected.
type Wallet interface {
	SignerAddress() string
	SendApproval(ctx context.Context, token, spender string) (string, error)
	SendCall(ctx context.Context, call types.CallData) (string, error)
	WaitForTransaction(ctx context.Context, txHash string) error
}

// Config fixes the target and settings for one engine instance.
type Config struct {
	Target     types.Target
	Settings   types.Settings
	Thresholds quote.Thresholds
	Labels     steps.Labels
}

// Engine owns the orchestrator state for one page instance. All state is
// mutated under the mutex through the described operations; fetch results
// enter only through the commit path.
type Engine struct {
	cfg      Config
	quotes   QuoteSource
	balances ApprovalSource
	gas      GasSource
	wallet   Wallet
	notifier notify.Notifier
	log      zerolog.Logger

	mu       sync.Mutex
	state    state
	inflight sync.WaitGroup
}

type state struct {
	activeKey types.ActiveKey
	values    types.FormValues
	status    types.FormStatus

	quotes    map[types.ActiveKey]types.QuoteResult
	approvals map[types.ActiveKey]types.ApprovalState
	estGas    map[types.ActiveKey]types.EstimatedGas

	// knownBalances holds the last fetched balance per token, lowercased,
	// for synchronous validation before a pricing call goes out.
	knownBalances map[string]decimal.Decimal

	prevSteps        []types.StepDescriptor
	warningConfirmed bool
}

// New creates an engine bound to one target. wallet may be nil for a
// read-only (no signer) session.
func New(cfg Config, quotes QuoteSource, balances ApprovalSource, gasSource GasSource, w Wallet, n notify.Notifier, log zerolog.Logger) *Engine {
	if n == nil {
		n = notify.Nop{}
	}
	e := &Engine{
		cfg:      cfg,
		quotes:   quotes,
		balances: balances,
		gas:      gasSource,
		wallet:   w,
		notifier: n,
		log:      log.With().Str("component", "engine").Str("flow", string(cfg.Settings.Flow)).Logger(),
	}
	e.state = newState()
	if w != nil {
		e.cfg.Target.Signer = w.SignerAddress()
	}
	e.state.activeKey = form.DeriveKey(e.state.values, e.cfg.Target, e.cfg.Settings)
	return e
}

func newState() state {
	return state{
		values:        form.Default(),
		quotes:        make(map[types.ActiveKey]types.QuoteResult),
		approvals:     make(map[types.ActiveKey]types.ApprovalState),
		estGas:        make(map[types.ActiveKey]types.EstimatedGas),
		knownBalances: make(map[string]decimal.Decimal),
	}
}

func lower(s string) string { return strings.ToLower(s) }

// Admit is the race-guard predicate: a result tagged with key may only be
// acted upon while key is still the current active key. Key-based rather
// than sequence-based on purpose, so a cached result can be reused when the
// user's edits return to a previously computed input.
func Admit(current, tagged types.ActiveKey) bool {
	return current == tagged
}

// needsApproval reports whether the flow requires an allowance. Native
// token sells have no contract to approve.
func (e *Engine) needsApproval() bool {
	return !chains.IsNativeToken(e.cfg.Target.FromToken)
}

// Snapshot is the read-only view handed to the page layer.
type Snapshot struct {
	ActiveKey types.ActiveKey        `json:"activeKey"`
	Values    types.FormValues       `json:"formValues"`
	Status    types.FormStatus       `json:"formStatus"`
	Quote     *types.QuoteResult     `json:"quote,omitempty"`
	Approval  *types.ApprovalState   `json:"approval,omitempty"`
	Gas       *types.EstimatedGas    `json:"estimatedGas,omitempty"`
	Steps     []types.StepDescriptor `json:"steps"`
}

// Snapshot returns the current state and the derived step list.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := Snapshot{
		ActiveKey: e.state.activeKey,
		Values:    e.state.values,
		Status:    e.state.status,
		Steps:     e.buildStepsLocked(),
	}
	if q, ok := e.state.quotes[e.state.activeKey]; ok {
		snap.Quote = &q
	}
	if a, ok := e.state.approvals[e.state.activeKey]; ok {
		snap.Approval = &a
	}
	if g, ok := e.state.estGas[e.state.activeKey]; ok {
		snap.Gas = &g
	}
	return snap
}

// Steps returns the current wizard step list.
func (e *Engine) Steps() []types.StepDescriptor {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.buildStepsLocked()
}

func (e *Engine) buildStepsLocked() []types.StepDescriptor {
	in := steps.Input{
		Status:        e.state.status,
		Values:        e.state.values,
		NeedsApproval: e.needsApproval(),
		Labels:        e.cfg.Labels,
		Prev:          e.state.prevSteps,
	}
	if q, ok := e.state.quotes[e.state.activeKey]; ok {
		in.Quote = &q
	}
	if a, ok := e.state.approvals[e.state.activeKey]; ok {
		in.Approval = &a
	}
	built := steps.Build(in)
	e.state.prevSteps = built
	return built
}

// ConfirmWarning records whether the user checked the warning confirmation
// attached to the action step.
func (e *Engine) ConfirmWarning(confirmed bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.warningConfirmed = confirmed
}

// ResetState restores the form to defaults. The target identifier is
// configuration and survives. Calling it twice is the same as calling it
// once.
func (e *Engine) ResetState() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resetLocked()
}

func (e *Engine) resetLocked() {
	known := e.state.knownBalances
	e.state = newState()
	e.state.knownBalances = known
	e.state.activeKey = form.DeriveKey(e.state.values, e.cfg.Target, e.cfg.Settings)
}

// pruneCachesLocked resets the keyed caches once they grow past the bound,
// keeping only the current key's entries.
func (e *Engine) pruneCachesLocked() {
	if len(e.state.quotes) <= maxCachedKeys && len(e.state.approvals) <= maxCachedKeys && len(e.state.estGas) <= maxCachedKeys {
		return
	}
	key := e.state.activeKey
	q, qok := e.state.quotes[key]
	a, aok := e.state.approvals[key]
	g, gok := e.state.estGas[key]

	e.state.quotes = make(map[types.ActiveKey]types.QuoteResult)
	e.state.approvals = make(map[types.ActiveKey]types.ApprovalState)
	e.state.estGas = make(map[types.ActiveKey]types.EstimatedGas)
	if qok {
		e.state.quotes[key] = q
	}
	if aok {
		e.state.approvals[key] = a
	}
	if gok {
		e.state.estGas[key] = g
	}
}
