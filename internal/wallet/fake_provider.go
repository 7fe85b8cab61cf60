package wallet

import (
	"context"
	"math/big"
)

// FakeProvider scripts provider behaviour for tests: fixed accounts and
// balances, per-call receipt sequences, injectable errors, call counters.
type FakeProvider struct {
	Accounts    []string
	AccountsErr error

	SwitchErr error
	AddErr    error

	BalanceWei *big.Int
	BalanceErr error

	TransferHash string
	TransferErr  error

	// Receipts is consumed one entry per TransactionReceipt call; a nil
	// entry means "not yet mined". Past the end the last entry repeats.
	Receipts   []*Receipt
	ReceiptErr error

	SwitchCalls   int
	AddCalls      int
	BalanceCalls  int
	TransferCalls int
	ReceiptCalls  int
}

func (f *FakeProvider) RequestAccounts(context.Context) ([]string, error) {
	if f.AccountsErr != nil {
		return nil, f.AccountsErr
	}
	return f.Accounts, nil
}

func (f *FakeProvider) SwitchChain(context.Context, int64) error {
	f.SwitchCalls++
	return f.SwitchErr
}

func (f *FakeProvider) AddChain(context.Context, ChainParams) error {
	f.AddCalls++
	return f.AddErr
}

func (f *FakeProvider) BalanceAt(context.Context, string) (*big.Int, error) {
	f.BalanceCalls++
	if f.BalanceErr != nil {
		return nil, f.BalanceErr
	}
	return f.BalanceWei, nil
}

func (f *FakeProvider) SendTransfer(context.Context, TransferRequest) (string, error) {
	f.TransferCalls++
	if f.TransferErr != nil {
		return "", f.TransferErr
	}
	return f.TransferHash, nil
}

func (f *FakeProvider) TransactionReceipt(context.Context, string) (*Receipt, error) {
	idx := f.ReceiptCalls
	f.ReceiptCalls++
	if f.ReceiptErr != nil {
		return nil, f.ReceiptErr
	}
	if len(f.Receipts) == 0 {
		return nil, nil
	}
	if idx >= len(f.Receipts) {
		idx = len(f.Receipts) - 1
	}
	return f.Receipts[idx], nil
}
