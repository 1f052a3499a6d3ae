// Package steps derives the wizard step list from validation, approval and
// in-flight state.
package steps

import (
	"fmt"

	"swapflow/pkg/form"
	"swapflow/pkg/types"
)

// Labels are the step captions, chosen per flow by the caller.
type Labels struct {
	Approve     string
	ApproveDone string
	Action      string
	ActionDone  string
}

// DefaultLabels returns the captions used by the swap flow.
func DefaultLabels() Labels {
	return Labels{
		Approve:     "Approve Spending",
		ApproveDone: "Spending Approved",
		Action:      "Swap",
		ActionDone:  "Swap Complete",
	}
}

// Input is the state snapshot the builder derives steps from. Quote and
// Approval are the committed results for the current active key, nil while
// none has been admitted.
type Input struct {
	Status        types.FormStatus
	Values        types.FormValues
	Quote         *types.QuoteResult
	Approval      *types.ApprovalState
	NeedsApproval bool
	Labels        Labels
	// Prev is the list currently displayed. While a step is processing or a
	// completion is recorded, the step set is pinned to Prev so the wizard
	// cannot reshuffle mid-flight.
	Prev []types.StepDescriptor
}

// Build derives the ordered step list.
func Build(in Input) []types.StepDescriptor {
	if in.Labels == (Labels{}) {
		in.Labels = DefaultLabels()
	}

	isValidAmount := form.HasQuoteInput(in.Values)
	isValid := in.Quote != nil && !in.Quote.Loading && in.Status.Error == "" && isValidAmount
	isComplete := in.Status.Completed == types.CompletedAction
	// A recorded completion of either kind implies the approval went
	// through, so the finished wizard shows both steps done.
	isApproved := !in.NeedsApproval ||
		(in.Approval != nil && in.Approval.Approved()) ||
		in.Status.Completed != types.CompletedNone

	var out []types.StepDescriptor

	if in.NeedsApproval {
		approval := types.StepDescriptor{
			Key: types.StepApproval,
			Status: stepStatus(
				isApproved,
				in.Status.CurrentStep == types.StepApproval,
				isValid && !in.Status.Processing,
			),
			Label: in.Labels.Approve,
		}
		if isApproved {
			approval.Label = in.Labels.ApproveDone
		}
		out = append(out, approval)
	}

	action := types.StepDescriptor{
		Key: types.StepAction,
		Status: stepStatus(
			isComplete,
			in.Status.CurrentStep == types.StepAction,
			isValid && isApproved && !in.Status.Processing,
		),
		Label: in.Labels.Action,
	}
	if isComplete {
		action.Label = in.Labels.ActionDone
	}
	if in.Quote != nil {
		action.Confirmation = confirmation(*in.Quote)
	}
	out = append(out, action)

	if frozen(in.Status) && len(in.Prev) > 0 {
		return pinToPrev(out, in.Prev)
	}
	return out
}

// frozen reports whether the step set must stay what was already displayed.
func frozen(s types.FormStatus) bool {
	return s.Processing || s.Completed != types.CompletedNone
}

// pinToPrev keeps the previously displayed step set and order, carrying
// over the freshly computed status and confirmation for each surviving key.
func pinToPrev(fresh, prev []types.StepDescriptor) []types.StepDescriptor {
	byKey := make(map[types.StepKind]types.StepDescriptor, len(fresh))
	for _, s := range fresh {
		byKey[s.Key] = s
	}
	out := make([]types.StepDescriptor, 0, len(prev))
	for _, p := range prev {
		if s, ok := byKey[p.Key]; ok {
			out = append(out, s)
		} else {
			out = append(out, p)
		}
	}
	return out
}

// stepStatus mirrors the display precedence: completion beats activity
// beats readiness.
func stepStatus(isComplete, isActive, isValid bool) types.StepStatus {
	switch {
	case isComplete:
		return types.StepDone
	case isActive:
		return types.StepActive
	case isValid:
		return types.StepReady
	default:
		return types.StepLocked
	}
}

// confirmation builds the warning payload attached to the action step when
// the quote was flagged. High slippage and high price impact require an
// explicit checkbox; a merely low exchange rate does not.
func confirmation(q types.QuoteResult) *types.Confirmation {
	switch {
	case q.IsHighImpact && q.IsHighSlippage:
		return &types.Confirmation{
			Title:           "Warning!",
			Body:            fmt.Sprintf("Price impact of %s%% and slippage of %s%% exceed your tolerance.", q.PriceImpact.StringFixed(2), q.Slippage.Abs().StringFixed(2)),
			RequireCheckbox: true,
			PriceImpact:     q.PriceImpact,
			Slippage:        q.Slippage,
		}
	case q.IsHighImpact:
		return &types.Confirmation{
			Title:           "Warning!",
			Body:            fmt.Sprintf("This trade moves the price by %s%%.", q.PriceImpact.StringFixed(2)),
			RequireCheckbox: true,
			PriceImpact:     q.PriceImpact,
		}
	case q.IsHighSlippage:
		return &types.Confirmation{
			Title:           "Warning!",
			Body:            fmt.Sprintf("Expected slippage of %s%% exceeds your tolerance.", q.Slippage.Abs().StringFixed(2)),
			RequireCheckbox: true,
			Slippage:        q.Slippage,
		}
	case q.IsLowExchangeRate:
		return &types.Confirmation{
			Title: "Low exchange rate",
			Body:  fmt.Sprintf("The exchange rate %s is lower than expected.", q.ExchangeRate.StringFixed(4)),
		}
	default:
		return nil
	}
}
