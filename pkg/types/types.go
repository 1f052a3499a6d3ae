package types

import (
	"github.com/shopspring/decimal"
)

// FlowKind identifies which transactional flow a form instance drives.
// Severity thresholds differ per flow, so it is carried alongside settings
// rather than hard-coded anywhere.
type FlowKind string

const (
	FlowSwap    FlowKind = "swap"
	FlowDeposit FlowKind = "deposit"
	FlowRepay   FlowKind = "repay"
)

// ActiveKey is the deterministic identity of one input combination. Any
// asynchronous result is tagged with the key active when the request was
// issued; a result whose key no longer matches the current key is stale.
type ActiveKey string

// StepKind identifies a wizard step.
type StepKind string

const (
	StepNone     StepKind = ""
	StepApproval StepKind = "APPROVAL"
	StepAction   StepKind = "ACTION"
)

// StepStatus is the display status of a wizard step.
type StepStatus string

const (
	StepLocked StepStatus = "locked"
	StepReady  StepStatus = "ready"
	StepActive StepStatus = "active"
	StepDone   StepStatus = "done"
)

// CompletedKind records which step type already completed this session.
type CompletedKind string

const (
	CompletedNone    CompletedKind = ""
	CompletedApprove CompletedKind = "APPROVE"
	CompletedAction  CompletedKind = "ACTION"
)

// ErrorCode is a per-field validation error, shown inline next to the field.
type ErrorCode string

const (
	ErrCodeNone          ErrorCode = ""
	ErrCodeTooMuch       ErrorCode = "too-much"
	ErrCodeInvalidNumber ErrorCode = "invalid-number"
	ErrCodeExceedsLimit  ErrorCode = "exceeds-limit"
)

// Approval is the tri-state result of an allowance check. A failed check is
// Unknown, never Missing: the action transaction fails safely on its own if
// the allowance really is insufficient.
type Approval string

const (
	ApprovalUnknown Approval = "unknown"
	ApprovalGranted Approval = "granted"
	ApprovalMissing Approval = "missing"
)

// FormValues is the user-editable input. Amounts are kept as the decimal
// strings the user typed; they are parsed with shopspring/decimal for every
// comparison, never through binary floats. Only the Input Normalizer mutates
// FormValues.
type FormValues struct {
	IsFrom     bool      `json:"isFrom"`
	FromAmount string    `json:"fromAmount"`
	ToAmount   string    `json:"toAmount"`
	FromError  ErrorCode `json:"fromError"`
	ToError    ErrorCode `json:"toError"`
	Wrapped    bool      `json:"wrapped"`
	FullRepay  bool      `json:"fullRepay"`
}

// DrivingAmount returns the amount on the side currently driving the quote.
func (v FormValues) DrivingAmount() string {
	if v.IsFrom {
		return v.FromAmount
	}
	return v.ToAmount
}

// Target identifies what the form operates on: the pool or market, the token
// pair, the contract that needs an allowance and the connected signer.
type Target struct {
	ChainID      uint64 `json:"chainId"`
	PoolID       string `json:"poolId"`
	FromToken    string `json:"fromToken"`
	ToToken      string `json:"toToken"`
	FromDecimals uint8  `json:"fromDecimals"`
	ToDecimals   uint8  `json:"toDecimals"`
	Spender      string `json:"spender"`
	Signer       string `json:"signer"`
}

// Settings are the global knobs that affect quotes and payloads.
type Settings struct {
	Flow        FlowKind        `json:"flow"`
	MaxSlippage decimal.Decimal `json:"maxSlippage"`
}

// RouteHop is one hop of a quoted route.
type RouteHop struct {
	PoolID   string `json:"poolId"`
	TokenIn  string `json:"tokenIn"`
	TokenOut string `json:"tokenOut"`
}

// CallData is a prepared transaction payload returned by the routing API.
// The orchestrator never constructs action calldata itself.
type CallData struct {
	To    string `json:"to"`
	Data  []byte `json:"data"`
	Value string `json:"value"`
}

// QuoteResult is the outcome of one pricing query, tagged with the key it
// was computed for.
type QuoteResult struct {
	Key     ActiveKey `json:"key"`
	Loading bool      `json:"loading"`

	FromAmount string `json:"fromAmount"`
	ToAmount   string `json:"toAmount"`

	// ExchangeRate is to-per-from, ReverseRate is from-per-to.
	ExchangeRate decimal.Decimal `json:"exchangeRate"`
	ReverseRate  decimal.Decimal `json:"reverseRate"`

	// Slippage is (executedRate - 1) * 100. Positive values are a bonus.
	Slippage          decimal.Decimal `json:"slippage"`
	IsBonus           bool            `json:"isBonus"`
	IsHighSlippage    bool            `json:"isHighSlippage"`
	PriceImpact       decimal.Decimal `json:"priceImpact"`
	IsHighImpact      bool            `json:"isHighImpact"`
	IsLowExchangeRate bool            `json:"isLowExchangeRate"`

	Route []RouteHop `json:"route,omitempty"`
	Tx    *CallData  `json:"-"`
}

// ApprovalState is the outcome of one balance/allowance check, tagged with
// the key it was computed for.
type ApprovalState struct {
	Key        ActiveKey       `json:"key"`
	Loading    bool            `json:"loading"`
	Balance    decimal.Decimal `json:"balance"`
	Allowance  decimal.Decimal `json:"allowance"`
	Sufficient bool            `json:"sufficient"`
	Approval   Approval        `json:"approval"`
}

// Approved reports whether the allowance is known to cover the amount.
func (a ApprovalState) Approved() bool {
	return a.Approval == ApprovalGranted
}

// EstimatedGas is the outcome of one gas estimation, tagged with the key it
// was computed for. Known=false means the estimate is absent, which the UI
// must render as unknown rather than zero.
type EstimatedGas struct {
	Key     ActiveKey `json:"key"`
	Loading bool      `json:"loading"`
	Value   uint64    `json:"value"`
	Known   bool      `json:"known"`
}

// FormStatus is the aggregate state machine for one page instance.
type FormStatus struct {
	Processing  bool          `json:"processing"`
	CurrentStep StepKind      `json:"currentStep"`
	Completed   CompletedKind `json:"completed"`
	Error       string        `json:"error"`
	Warning     string        `json:"warning"`
}

// Confirmation is attached to a step when the quote was flagged as high
// slippage or high price impact. The step's primary action is gated on the
// checkbox being confirmed.
type Confirmation struct {
	Title           string          `json:"title"`
	Body            string          `json:"body"`
	RequireCheckbox bool            `json:"requireCheckbox"`
	PriceImpact     decimal.Decimal `json:"priceImpact"`
	Slippage        decimal.Decimal `json:"slippage"`
}

// StepDescriptor describes one wizard step for the page layer.
type StepDescriptor struct {
	Key          StepKind      `json:"key"`
	Status       StepStatus    `json:"status"`
	Label        string        `json:"label"`
	Confirmation *Confirmation `json:"confirmation,omitempty"`
}
