// Package gas estimates transaction cost for the pending approval or
// action, conditioned on approval state.
package gas

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"swapflow/pkg/types"
)

const erc20ApproveABI = `[{"constant":false,"inputs":[{"name":"_spender","type":"address"},{"name":"_value","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"type":"function"}]`

// maxUint256 is the conventional unlimited-allowance value used when
// estimating the approval transaction.
var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// Chain is the subset of ethclient the estimator needs.
type Chain interface {
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// Estimator estimates gas for the step the user would run next.
type Estimator struct {
	client    Chain
	log       zerolog.Logger
	parsedABI abi.ABI
}

func NewEstimator(client Chain, log zerolog.Logger) (*Estimator, error) {
	parsed, err := abi.JSON(strings.NewReader(erc20ApproveABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse approve ABI: %w", err)
	}
	return &Estimator{
		client:    client,
		log:       log.With().Str("component", "gas").Logger(),
		parsedABI: parsed,
	}, nil
}

// Estimate returns the gas estimate for the next pending step: the approval
// while the allowance is missing, otherwise the action payload from the
// quote. A failed estimation yields Known=false with a nil error; the
// result must be rendered as unknown, never as zero.
func (e *Estimator) Estimate(ctx context.Context, key types.ActiveKey, t types.Target, approval types.ApprovalState, action *types.CallData) types.EstimatedGas {
	out := types.EstimatedGas{Key: key}

	var (
		gasUsed uint64
		err     error
	)
	if approval.Approval == types.ApprovalMissing {
		gasUsed, err = e.estimateApproval(ctx, t)
	} else if action != nil {
		gasUsed, err = e.estimateAction(ctx, t, action)
	} else {
		return out
	}
	if err != nil {
		e.log.Warn().Err(err).Str("key", string(key)).Msg("gas estimation failed")
		return out
	}

	// 20% headroom over the node's estimate
	out.Value = gasUsed * 120 / 100
	out.Known = true
	return out
}

// GasPrice returns the node's suggested gas price.
func (e *Estimator) GasPrice(ctx context.Context) (*big.Int, error) {
	price, err := e.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}
	return price, nil
}

func (e *Estimator) estimateApproval(ctx context.Context, t types.Target) (uint64, error) {
	data, err := e.parsedABI.Pack("approve", common.HexToAddress(t.Spender), maxUint256)
	if err != nil {
		return 0, fmt.Errorf("failed to pack approve data: %w", err)
	}
	token := common.HexToAddress(t.FromToken)
	return e.client.EstimateGas(ctx, ethereum.CallMsg{
		From: common.HexToAddress(t.Signer),
		To:   &token,
		Data: data,
	})
}

func (e *Estimator) estimateAction(ctx context.Context, t types.Target, action *types.CallData) (uint64, error) {
	to := common.HexToAddress(action.To)
	msg := ethereum.CallMsg{
		From: common.HexToAddress(t.Signer),
		To:   &to,
		Data: action.Data,
	}
	if action.Value != "" {
		value, ok := new(big.Int).SetString(action.Value, 10)
		if !ok {
			return 0, fmt.Errorf("bad call value %q", action.Value)
		}
		msg.Value = value
	}
	return e.client.EstimateGas(ctx, msg)
}
