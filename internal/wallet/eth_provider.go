package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// EthProvider implements Provider over a go-ethereum RPC client. The account
// is derived from the configured private key; chain switching re-dials the
// RPC endpoint registered for the requested chain.
type EthProvider struct {
	client  *ethclient.Client
	chainID *big.Int
	key     *ecdsa.PrivateKey
	address common.Address
	chains  map[int64]string // chainID -> RPC endpoint registered via AddChain
}

type EthProviderConfig struct {
	RPCURL        string
	PrivateKeyHex string
}

func NewEthProvider(ctx context.Context, cfg EthProviderConfig) (*EthProvider, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("rpc url is required")
	}
	if cfg.PrivateKeyHex == "" {
		return nil, fmt.Errorf("private key is required")
	}

	key, err := parsePrivateKey(cfg.PrivateKeyHex)
	if err != nil {
		return nil, err
	}

	cli, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}

	chainID, err := cli.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch chain id: %w", err)
	}

	return &EthProvider{
		client:  cli,
		chainID: chainID,
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		chains:  map[int64]string{chainID.Int64(): cfg.RPCURL},
	}, nil
}

func parsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	hexKey = strings.TrimPrefix(hexKey, "0x")
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return key, nil
}

func (p *EthProvider) RequestAccounts(_ context.Context) ([]string, error) {
	return []string{p.address.Hex()}, nil
}

func (p *EthProvider) SwitchChain(ctx context.Context, chainID int64) error {
	if p.chainID.Int64() == chainID {
		return nil
	}
	rpcURL, ok := p.chains[chainID]
	if !ok {
		return fmt.Errorf("%w: chain %d not registered", ErrUnknownChain, chainID)
	}
	return p.redial(ctx, chainID, rpcURL)
}

// AddChain registers the chain parameters and moves the client onto it.
func (p *EthProvider) AddChain(ctx context.Context, params ChainParams) error {
	if params.RPCURL == "" {
		return fmt.Errorf("chain %d has no rpc endpoint", params.ChainID)
	}
	p.chains[params.ChainID] = params.RPCURL
	return p.redial(ctx, params.ChainID, params.RPCURL)
}

func (p *EthProvider) redial(ctx context.Context, chainID int64, rpcURL string) error {
	cli, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return fmt.Errorf("dial rpc for chain %d: %w", chainID, err)
	}
	got, err := cli.ChainID(ctx)
	if err != nil {
		cli.Close()
		return fmt.Errorf("fetch chain id: %w", err)
	}
	if got.Int64() != chainID {
		cli.Close()
		return fmt.Errorf("endpoint %s reports chain %d, want %d", rpcURL, got.Int64(), chainID)
	}
	p.client.Close()
	p.client = cli
	p.chainID = got
	return nil
}

func (p *EthProvider) BalanceAt(ctx context.Context, address string) (*big.Int, error) {
	return p.client.BalanceAt(ctx, common.HexToAddress(address), nil)
}

func (p *EthProvider) SendTransfer(ctx context.Context, req TransferRequest) (string, error) {
	from := common.HexToAddress(req.From)
	if from != p.address {
		return "", fmt.Errorf("from address %s is not the provider account", req.From)
	}

	nonce, err := p.client.PendingNonceAt(ctx, p.address)
	if err != nil {
		return "", fmt.Errorf("fetch nonce: %w", err)
	}
	gasPrice, err := p.client.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("suggest gas price: %w", err)
	}

	to := common.HexToAddress(req.To)
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      req.GasLimit,
		To:       &to,
		Value:    req.ValueWei,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(p.chainID), p.key)
	if err != nil {
		return "", fmt.Errorf("sign tx: %w", err)
	}
	if err := p.client.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("send tx: %w", err)
	}
	return signed.Hash().Hex(), nil
}

func (p *EthProvider) TransactionReceipt(ctx context.Context, txHash string) (*Receipt, error) {
	receipt, err := p.client.TransactionReceipt(ctx, common.HexToHash(txHash))
	if errors.Is(err, ethereum.NotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &Receipt{
		TxHash:      txHash,
		Success:     receipt.Status == types.ReceiptStatusSuccessful,
		BlockNumber: receipt.BlockNumber.Uint64(),
	}, nil
}

// Ping lets the health endpoint verify RPC connectivity.
func (p *EthProvider) Ping(ctx context.Context) error {
	_, err := p.client.BlockNumber(ctx)
	return err
}
