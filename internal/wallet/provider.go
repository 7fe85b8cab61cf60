package wallet

import (
	"context"
	"errors"
	"math/big"
)

// ChainParams carries everything needed to register the target network with
// a provider that does not know it yet.
type ChainParams struct {
	ChainID        int64
	Name           string
	CurrencyName   string
	CurrencySymbol string
	Decimals       int
	RPCURL         string
	ExplorerURL    string
}

// TransferRequest is a plain native-value transfer.
type TransferRequest struct {
	From     string
	To       string
	ValueWei *big.Int
	GasLimit uint64
}

// Receipt reports a mined transaction. Success mirrors the on-chain status flag.
type Receipt struct {
	TxHash      string
	Success     bool
	BlockNumber uint64
}

// Provider abstracts the wallet capability: account selection, network
// switching, balance reads, transaction submission and receipt lookup.
type Provider interface {
	RequestAccounts(ctx context.Context) ([]string, error)
	SwitchChain(ctx context.Context, chainID int64) error
	AddChain(ctx context.Context, params ChainParams) error
	BalanceAt(ctx context.Context, address string) (*big.Int, error)
	SendTransfer(ctx context.Context, req TransferRequest) (string, error)
	// TransactionReceipt returns (nil, nil) while the transaction is unmined.
	TransactionReceipt(ctx context.Context, txHash string) (*Receipt, error)
}

var (
	ErrProviderUnavailable = errors.New("wallet provider unavailable")
	ErrConnectionRejected  = errors.New("wallet connection rejected")
	// ErrUnknownChain is the provider's "chain not registered" signal; the
	// session reacts to it by adding the chain parameters.
	ErrUnknownChain        = errors.New("unknown chain")
	ErrNetworkSwitchFailed = errors.New("network switch failed")
	ErrTransferRejected    = errors.New("transfer rejected")
)
