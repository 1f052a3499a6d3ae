package engine

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"swapflow/pkg/balance"
	"swapflow/pkg/form"
	"swapflow/pkg/types"
)

// UpdateOpts tunes one UpdateFormValues call.
type UpdateOpts struct {
	// Refetch keeps the current values and re-runs the collaborators,
	// discarding cached results for the current key. Used after a
	// confirmed transaction and for manual refresh.
	Refetch bool
}

// UpdateFormValues applies a patch, re-derives the active key and kicks off
// the balance/quote/gas pipeline for it. The fetches run in the background;
// their results are admitted through the key guard as they land. The new
// active key is returned immediately. Callers that need the settled state
// (the CLI, tests) follow up with Wait.
func (e *Engine) UpdateFormValues(ctx context.Context, p form.Patch, opts UpdateOpts) types.ActiveKey {
	e.mu.Lock()

	if opts.Refetch {
		e.state.status.Error = ""
	} else {
		e.state.values = form.Apply(e.state.values, p)
		// The in-flight markers survive edits; only the run that set them
		// clears them, so a second submission stays blocked meanwhile.
		e.state.status = types.FormStatus{
			Processing:  e.state.status.Processing,
			CurrentStep: e.state.status.CurrentStep,
		}
		e.state.warningConfirmed = false
	}
	var amount decimal.Decimal
	e.state.values, amount = form.Validate(e.state.values)

	key := form.DeriveKey(e.state.values, e.cfg.Target, e.cfg.Settings)
	e.state.activeKey = key
	e.pruneCachesLocked()

	if opts.Refetch {
		delete(e.state.quotes, key)
		delete(e.state.approvals, key)
		delete(e.state.estGas, key)
	}

	values := e.state.values
	wantQuote := form.HasQuoteInput(values)
	wantBalance := e.cfg.Target.Signer != ""

	// Insufficient balance is caught before any pricing call when the
	// balance is already in session. With a cold cache the balance check
	// lands first and stamps the error through the commit path instead.
	if wantQuote && values.IsFrom {
		if bal, ok := e.state.knownBalances[lower(e.cfg.Target.FromToken)]; ok && amount.GreaterThan(bal) {
			e.state.values.FromError = types.ErrCodeTooMuch
			e.mu.Unlock()
			e.log.Debug().Str("key", string(key)).Msg("amount exceeds balance, skipping quote")
			return key
		}
	}

	if wantQuote {
		q := e.state.quotes[key]
		q.Key = key
		q.Loading = true
		e.state.quotes[key] = q
	}
	e.mu.Unlock()

	if !wantQuote && !wantBalance {
		return key
	}

	e.inflight.Add(1)
	go e.runPipeline(ctx, key, values, amount, wantQuote, wantBalance)
	return key
}

// Wait blocks until every in-flight pipeline has settled. Results for keys
// that are no longer active have been dropped by then, not applied.
func (e *Engine) Wait() {
	e.inflight.Wait()
}

func (e *Engine) runPipeline(ctx context.Context, key types.ActiveKey, values types.FormValues, amount decimal.Decimal, wantQuote, wantBalance bool) {
	defer e.inflight.Done()

	var wg sync.WaitGroup
	if wantBalance {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := e.balances.Check(ctx, e.cfg.Target, amount)
			e.commitApproval(key, res, amount)
		}()
	}
	if wantQuote {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q, err := e.quotes.Fetch(ctx, key, values, e.cfg.Target, e.cfg.Settings, e.cfg.Thresholds)
			e.commitQuote(key, q, err)
		}()
	}
	wg.Wait()

	if !wantBalance || !wantQuote {
		return
	}

	// Gas estimation depends on the approval outcome, so it runs after
	// both fetches have settled.
	e.mu.Lock()
	admitted := Admit(e.state.activeKey, key)
	approval := e.state.approvals[key]
	var action *types.CallData
	if q, ok := e.state.quotes[key]; ok {
		action = q.Tx
	}
	valid := e.state.values.FromError == types.ErrCodeNone && e.state.values.ToError == types.ErrCodeNone
	e.mu.Unlock()

	if !admitted || !valid {
		return
	}
	est := e.gas.Estimate(ctx, key, e.cfg.Target, approval, action)
	e.commitGas(key, est)
}

// commitQuote is the quote half of the race guard. The result is cached
// under its key either way; side effects on the form happen only while the
// key is still active.
func (e *Engine) commitQuote(key types.ActiveKey, q types.QuoteResult, err error) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err != nil {
		delete(e.state.quotes, key)
		if !Admit(e.state.activeKey, key) {
			e.log.Debug().Str("key", string(key)).Msg("stale quote error dropped")
			return false
		}
		e.state.status.Error = err.Error()
		return false
	}

	q.Key = key
	q.Loading = false
	e.state.quotes[key] = q

	if !Admit(e.state.activeKey, key) {
		e.log.Debug().Str("key", string(key)).Msg("stale quote cached, not applied")
		return false
	}

	// Fill the inverse side so the form shows both amounts. The driving
	// side is never touched.
	if e.state.values.IsFrom {
		e.state.values.ToAmount = q.ToAmount
	} else {
		e.state.values.FromAmount = q.FromAmount
		e.validateFromAmountLocked()
	}
	e.state.status.Error = ""
	return true
}

// commitApproval records a balance/allowance check and, while the key is
// active, re-validates the amount against the fetched balance.
func (e *Engine) commitApproval(key types.ActiveKey, res balance.Result, amount decimal.Decimal) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.state.approvals[key] = types.ApprovalState{
		Key:        key,
		Balance:    res.Balance,
		Allowance:  res.Allowance,
		Sufficient: res.Sufficient,
		Approval:   res.Approval,
	}
	if res.BalanceKnown {
		e.state.knownBalances[lower(e.cfg.Target.FromToken)] = res.Balance
	}

	if !Admit(e.state.activeKey, key) {
		return false
	}

	if res.BalanceKnown {
		if e.state.values.IsFrom {
			if amount.GreaterThan(res.Balance) {
				e.state.values.FromError = types.ErrCodeTooMuch
			}
		} else {
			e.validateFromAmountLocked()
		}
	}
	if res.Approval == types.ApprovalUnknown {
		e.state.status.Warning = "could not verify the token allowance; the transaction will fail safely if it is insufficient"
	}
	return true
}

// validateFromAmountLocked compares the from amount against the session
// balance. In to-driven mode the from side is filled by the quote, so both
// commits call this and the one landing second sees both pieces.
func (e *Engine) validateFromAmountLocked() {
	bal, ok := e.state.knownBalances[lower(e.cfg.Target.FromToken)]
	if !ok {
		return
	}
	from, err := decimal.NewFromString(e.state.values.FromAmount)
	if err != nil || from.LessThanOrEqual(bal) {
		return
	}
	e.state.values.FromError = types.ErrCodeTooMuch
}

func (e *Engine) commitGas(key types.ActiveKey, est types.EstimatedGas) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	est.Key = key
	est.Loading = false
	e.state.estGas[key] = est
	return Admit(e.state.activeKey, key)
}
