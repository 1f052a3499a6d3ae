// Package wallet signs and submits transactions through an EVM JSON-RPC
// endpoint.
package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"

	"swapflow/pkg/types"
)

const erc20ApproveABI = `[{"constant":false,"inputs":[{"name":"_spender","type":"address"},{"name":"_value","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"type":"function"}]`

// ErrReverted is returned when a submitted transaction was mined but
// reverted.
var ErrReverted = errors.New("transaction reverted")

var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

const receiptPollInterval = 3 * time.Second

// Provider submits approval and action transactions for one signer.
type Provider struct {
	client     *ethclient.Client
	privateKey *ecdsa.PrivateKey
	signer     common.Address
	chainID    *big.Int
	log        zerolog.Logger
	parsedABI  abi.ABI
}

// NewProvider connects to the RPC endpoint and derives the signer address
// from the private key.
func NewProvider(rpcURL, privateKeyHex string, chainID uint64, log zerolog.Logger) (*Provider, error) {
	if rpcURL == "" {
		return nil, fmt.Errorf("RPC URL not configured")
	}
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC endpoint: %w", err)
	}

	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	publicKey, ok := privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("failed to get public key")
	}

	parsed, err := abi.JSON(strings.NewReader(erc20ApproveABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse approve ABI: %w", err)
	}

	return &Provider{
		client:     client,
		privateKey: privateKey,
		signer:     crypto.PubkeyToAddress(*publicKey),
		chainID:    new(big.Int).SetUint64(chainID),
		log:        log.With().Str("component", "wallet").Logger(),
		parsedABI:  parsed,
	}, nil
}

// Client exposes the underlying RPC client for read-only collaborators.
func (p *Provider) Client() *ethclient.Client { return p.client }

// SignerAddress returns the connected signer's address.
func (p *Provider) SignerAddress() string {
	return p.signer.Hex()
}

// SendApproval submits an unlimited-allowance approve for spender on token
// and returns the transaction hash.
func (p *Provider) SendApproval(ctx context.Context, token, spender string) (string, error) {
	data, err := p.parsedABI.Pack("approve", common.HexToAddress(spender), maxUint256)
	if err != nil {
		return "", fmt.Errorf("failed to pack approve data: %w", err)
	}
	return p.send(ctx, common.HexToAddress(token), big.NewInt(0), data)
}

// SendCall submits a prepared payload and returns the transaction hash.
func (p *Provider) SendCall(ctx context.Context, call types.CallData) (string, error) {
	value := big.NewInt(0)
	if call.Value != "" {
		v, ok := new(big.Int).SetString(call.Value, 10)
		if !ok {
			return "", fmt.Errorf("bad call value %q", call.Value)
		}
		value = v
	}
	return p.send(ctx, common.HexToAddress(call.To), value, call.Data)
}

func (p *Provider) send(ctx context.Context, to common.Address, value *big.Int, data []byte) (string, error) {
	nonce, err := p.client.PendingNonceAt(ctx, p.signer)
	if err != nil {
		return "", fmt.Errorf("failed to get nonce: %w", err)
	}
	gasPrice, err := p.client.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get gas price: %w", err)
	}
	gasLimit, err := p.client.EstimateGas(ctx, ethereum.CallMsg{
		From:  p.signer,
		To:    &to,
		Value: value,
		Data:  data,
	})
	if err != nil {
		return "", fmt.Errorf("failed to estimate gas: %w", err)
	}
	gasLimit = gasLimit * 120 / 100

	tx := ethtypes.NewTransaction(nonce, to, value, gasLimit, gasPrice, data)
	signedTx, err := ethtypes.SignTx(tx, ethtypes.NewEIP155Signer(p.chainID), p.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := p.client.SendTransaction(ctx, signedTx); err != nil {
		return "", fmt.Errorf("failed to send transaction: %w", err)
	}

	hash := signedTx.Hash().Hex()
	p.log.Info().Str("tx", hash).Str("to", to.Hex()).Msg("transaction submitted")
	return hash, nil
}

// WaitForTransaction polls for the receipt until the transaction is mined
// or the context expires. A mined-but-reverted transaction returns
// ErrReverted.
func (p *Provider) WaitForTransaction(ctx context.Context, txHash string) error {
	hash := common.HexToHash(txHash)
	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := p.client.TransactionReceipt(ctx, hash)
		if err == nil {
			if receipt.Status != ethtypes.ReceiptStatusSuccessful {
				return fmt.Errorf("%w: %s", ErrReverted, txHash)
			}
			return nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return fmt.Errorf("failed to get transaction receipt: %w", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Close closes the RPC connection.
func (p *Provider) Close() {
	if p.client != nil {
		p.client.Close()
	}
}
