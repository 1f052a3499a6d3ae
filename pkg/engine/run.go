package engine

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"swapflow/pkg/balance"
	"swapflow/pkg/chains"
	"swapflow/pkg/form"
	"swapflow/pkg/notify"
	"swapflow/pkg/types"
)

// defaultActionGas is the gas limit assumed for the max-amount fee reserve
// when no estimate has landed yet.
const defaultActionGas = 250_000

// RunApproval submits the unlimited spending approval for the from token.
// It blocks until the transaction is mined. On failure the form input is
// left untouched so the user can retry; nothing retries automatically.
func (e *Engine) RunApproval(ctx context.Context) (string, error) {
	if e.wallet == nil {
		return "", ErrMissingProvider
	}

	e.mu.Lock()
	if e.state.status.Processing {
		e.mu.Unlock()
		return "", ErrProcessing
	}
	step := findStep(e.buildStepsLocked(), types.StepApproval)
	if step == nil || step.Status != types.StepReady {
		e.mu.Unlock()
		return "", ErrNotReady
	}
	key := e.state.activeKey
	e.state.status.Processing = true
	e.state.status.CurrentStep = types.StepApproval
	e.state.status.Error = ""
	e.mu.Unlock()

	e.log.Info().Str("token", e.cfg.Target.FromToken).Str("spender", e.cfg.Target.Spender).Msg("sending approval")
	dismiss := e.notifier.Notify("Confirm the spending approval in your wallet", notify.Pending)
	txHash, err := e.wallet.SendApproval(ctx, e.cfg.Target.FromToken, e.cfg.Target.Spender)
	if err == nil {
		err = e.wallet.WaitForTransaction(ctx, txHash)
	}
	dismiss()

	e.mu.Lock()
	admitted := Admit(e.state.activeKey, key)
	e.state.status.Processing = false
	e.state.status.CurrentStep = types.StepNone
	if admitted {
		if err != nil {
			e.state.status.Error = fmt.Sprintf("approval failed: %v", err)
		} else {
			e.state.status.Completed = types.CompletedApprove
			a := e.state.approvals[key]
			a.Key = key
			a.Approval = types.ApprovalGranted
			e.state.approvals[key] = a
		}
	}
	e.mu.Unlock()

	if err != nil {
		e.notifier.Notify("Approval failed", notify.Error)()
		return txHash, fmt.Errorf("approval transaction: %w", err)
	}
	e.notifier.Notify("Spending approved", notify.Success)()

	// Refresh the allowance and gas estimate now that the approval is on
	// chain, unless the user already moved to a different input.
	if admitted {
		e.UpdateFormValues(ctx, form.Patch{}, UpdateOpts{Refetch: true})
	}
	return txHash, nil
}

// RunAction submits the quoted transaction payload and blocks until it is
// mined. On success the form input is reset for a fresh round while the
// completion marker survives so the wizard can show the finished steps.
func (e *Engine) RunAction(ctx context.Context) (string, error) {
	if e.wallet == nil {
		return "", ErrMissingProvider
	}

	e.mu.Lock()
	if e.state.status.Processing {
		e.mu.Unlock()
		return "", ErrProcessing
	}
	step := findStep(e.buildStepsLocked(), types.StepAction)
	if step == nil || step.Status != types.StepReady {
		e.mu.Unlock()
		return "", ErrNotReady
	}
	if step.Confirmation != nil && step.Confirmation.RequireCheckbox && !e.state.warningConfirmed {
		e.mu.Unlock()
		return "", ErrConfirmationRequired
	}
	q, ok := e.state.quotes[e.state.activeKey]
	if !ok || q.Tx == nil {
		e.mu.Unlock()
		return "", ErrNotReady
	}
	key := e.state.activeKey
	call := *q.Tx
	e.state.status.Processing = true
	e.state.status.CurrentStep = types.StepAction
	e.state.status.Error = ""
	e.mu.Unlock()

	e.log.Info().Str("to", call.To).Str("key", string(key)).Msg("sending action transaction")
	dismiss := e.notifier.Notify("Confirm the transaction in your wallet", notify.Pending)
	txHash, err := e.wallet.SendCall(ctx, call)
	if err == nil {
		err = e.wallet.WaitForTransaction(ctx, txHash)
	}
	dismiss()

	e.mu.Lock()
	e.state.status.Processing = false
	e.state.status.CurrentStep = types.StepNone
	if Admit(e.state.activeKey, key) {
		if err != nil {
			e.state.status.Error = fmt.Sprintf("transaction failed: %v", err)
		} else {
			e.resetLocked()
			delete(e.state.knownBalances, lower(e.cfg.Target.FromToken))
			delete(e.state.knownBalances, lower(e.cfg.Target.ToToken))
			e.state.status.Completed = types.CompletedAction
		}
	}
	e.mu.Unlock()

	if err != nil {
		e.notifier.Notify("Transaction failed", notify.Error)()
		return txHash, fmt.Errorf("action transaction: %w", err)
	}
	e.notifier.Notify("Transaction confirmed", notify.Success)()

	// Balances moved on chain; force the next check to re-read them.
	e.balances.Invalidate(e.cfg.Target.FromToken)
	e.balances.Invalidate(e.cfg.Target.ToToken)
	return txHash, nil
}

// SetMax fills the from side with the full spendable balance. For the
// native token an estimated network fee is reserved so the transaction can
// still pay for gas.
func (e *Engine) SetMax(ctx context.Context) (types.ActiveKey, error) {
	if e.cfg.Target.Signer == "" {
		return "", ErrMissingProvider
	}

	res := e.balances.Check(ctx, e.cfg.Target, decimal.Zero)
	if !res.BalanceKnown {
		return "", errors.New("balance unavailable")
	}
	maxAmount := res.Balance

	if chains.IsNativeToken(e.cfg.Target.FromToken) {
		gasLimit := uint64(defaultActionGas)
		e.mu.Lock()
		if g, ok := e.state.estGas[e.state.activeKey]; ok && g.Known {
			gasLimit = g.Value
		}
		e.mu.Unlock()

		gasPrice, err := e.gas.GasPrice(ctx)
		if err != nil {
			return "", fmt.Errorf("failed to get gas price: %w", err)
		}
		fee := balance.FromBaseUnits(new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(gasLimit)), 18)
		maxAmount = maxAmount.Sub(fee)
		if maxAmount.IsNegative() {
			maxAmount = decimal.Zero
		}
	}

	amt := maxAmount.String()
	key := e.UpdateFormValues(ctx, form.Patch{FromAmount: &amt}, UpdateOpts{})
	return key, nil
}

func findStep(list []types.StepDescriptor, kind types.StepKind) *types.StepDescriptor {
	for i := range list {
		if list[i].Key == kind {
			return &list[i]
		}
	}
	return nil
}
