package payment

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"monsearch/internal/history"
	"monsearch/internal/notify"
	"monsearch/internal/wallet"
)

type sinkRecorder struct {
	mu     sync.Mutex
	events []notify.Event
	server *httptest.Server
}

func newSinkRecorder(t *testing.T) *sinkRecorder {
	t.Helper()
	rec := &sinkRecorder{}
	rec.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var event notify.Event
		if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
			t.Errorf("bad event payload: %v", err)
		}
		rec.mu.Lock()
		rec.events = append(rec.events, event)
		rec.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(rec.server.Close)
	return rec
}

func (s *sinkRecorder) countByType(eventType string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

type harness struct {
	fake    *wallet.FakeProvider
	session *wallet.Session
	hist    *history.History
	sink    *sinkRecorder
	exec    *Executor
	sleeps  int
}

func mon(units int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(units), big.NewInt(1e18))
}

func newHarness(t *testing.T, balanceWei *big.Int, receipts []*wallet.Receipt) *harness {
	t.Helper()

	fake := &wallet.FakeProvider{
		Accounts:     []string{"0xuser"},
		BalanceWei:   balanceWei,
		TransferHash: "0xtxhash",
		Receipts:     receipts,
	}
	session := wallet.NewSession(fake, wallet.ChainParams{ChainID: 10143, Decimals: 18}, decimal.Zero, nil)
	if _, err := session.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	hist, err := history.Load(context.Background(), history.NewMemoryKV())
	if err != nil {
		t.Fatalf("history: %v", err)
	}

	sink := newSinkRecorder(t)
	notifier := notify.New(sink.server.URL, time.Second, nil, nil)

	h := &harness{fake: fake, session: session, hist: hist, sink: sink}
	h.exec = NewExecutor(session, hist, notifier, Config{
		Destination:  "0xdest",
		FeeWei:       mon(1),
		FeeUnits:     1,
		GasLimit:     21000,
		PollInterval: time.Millisecond,
		MaxAttempts:  30,
	}, nil, nil)
	h.exec.sleep = func(context.Context, time.Duration) error {
		h.sleeps++
		return nil
	}
	return h
}

func TestInsufficientFundsFailsFast(t *testing.T) {
	// 0.5 MON cached, fee 1 MON.
	h := newHarness(t, new(big.Int).Div(mon(1), big.NewInt(2)), nil)

	ok, err := h.exec.Execute(context.Background())
	if ok {
		t.Fatalf("expected failure")
	}
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if h.fake.TransferCalls != 0 {
		t.Fatalf("no transfer must be attempted, got %d", h.fake.TransferCalls)
	}
	if h.fake.ReceiptCalls != 0 {
		t.Fatalf("no receipt lookups expected, got %d", h.fake.ReceiptCalls)
	}
	if len(h.hist.Payments()) != 0 {
		t.Fatalf("no payment record expected for the gate rejection")
	}
	if h.sink.countByType("error") != 1 {
		t.Fatalf("expected one error notification")
	}
}

func TestConfirmationOnThirdPoll(t *testing.T) {
	h := newHarness(t, mon(10), []*wallet.Receipt{nil, nil, {TxHash: "0xtxhash", Success: true}})

	ok, err := h.exec.Execute(context.Background())
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !ok {
		t.Fatalf("expected confirmed payment")
	}
	if h.fake.ReceiptCalls != 3 {
		t.Fatalf("expected 3 receipt lookups, got %d", h.fake.ReceiptCalls)
	}

	payments := h.hist.Payments()
	if len(payments) != 1 {
		t.Fatalf("expected 1 payment record, got %d", len(payments))
	}
	if payments[0].Status != history.PaymentConfirmed {
		t.Fatalf("expected confirmed record, got %s", payments[0].Status)
	}
	if payments[0].TxHash != "0xtxhash" {
		t.Fatalf("unexpected tx hash %s", payments[0].TxHash)
	}

	balance, _ := h.session.CachedBalance()
	if !balance.Equal(decimal.NewFromInt(9)) {
		t.Fatalf("expected balance 9 after fee, got %s", balance)
	}
	if h.sink.countByType("payment_confirmed") != 1 {
		t.Fatalf("expected exactly one terminal notification")
	}
}

func TestRevertedReceiptFails(t *testing.T) {
	h := newHarness(t, mon(10), []*wallet.Receipt{{TxHash: "0xtxhash", Success: false}})

	ok, err := h.exec.Execute(context.Background())
	if ok {
		t.Fatalf("reverted transaction must not confirm")
	}
	if !errors.Is(err, ErrOnChainRevert) {
		t.Fatalf("expected ErrOnChainRevert, got %v", err)
	}

	payments := h.hist.Payments()
	if len(payments) != 1 || payments[0].Status != history.PaymentFailed {
		t.Fatalf("expected one failed record, got %+v", payments)
	}

	balance, _ := h.session.CachedBalance()
	if !balance.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("balance must not be debited on revert, got %s", balance)
	}
	if h.sink.countByType("payment_confirmed") != 0 {
		t.Fatalf("no confirmation notification expected")
	}
	if h.sink.countByType("error") != 1 {
		t.Fatalf("expected exactly one terminal error notification")
	}
}

func TestConfirmationTimeout(t *testing.T) {
	h := newHarness(t, mon(10), nil) // receipts stay nil forever

	ok, err := h.exec.Execute(context.Background())
	if ok {
		t.Fatalf("expected timeout failure")
	}
	if !errors.Is(err, ErrConfirmationTimeout) {
		t.Fatalf("expected ErrConfirmationTimeout, got %v", err)
	}
	if h.fake.ReceiptCalls != 30 {
		t.Fatalf("expected exactly 30 receipt lookups, got %d", h.fake.ReceiptCalls)
	}
	if h.sleeps != 29 {
		t.Fatalf("expected 29 waits between lookups, got %d", h.sleeps)
	}

	payments := h.hist.Payments()
	if len(payments) != 1 || payments[0].Status != history.PaymentFailed {
		t.Fatalf("expected one failed record, got %+v", payments)
	}
}

func TestNoRecordLeftPending(t *testing.T) {
	cases := []struct {
		name     string
		receipts []*wallet.Receipt
	}{
		{"confirmed", []*wallet.Receipt{{Success: true}}},
		{"reverted", []*wallet.Receipt{{Success: false}}},
		{"timeout", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, mon(10), tc.receipts)
			_, _ = h.exec.Execute(context.Background())
			for _, rec := range h.hist.Payments() {
				if rec.Status == history.PaymentPending {
					t.Fatalf("record %s left pending", rec.ID)
				}
			}
		})
	}
}

func TestTransferRejectionLeavesNoRecord(t *testing.T) {
	h := newHarness(t, mon(10), nil)
	h.fake.TransferErr = errors.New("user declined")

	ok, err := h.exec.Execute(context.Background())
	if ok {
		t.Fatalf("expected failure")
	}
	if !errors.Is(err, wallet.ErrTransferRejected) {
		t.Fatalf("expected ErrTransferRejected, got %v", err)
	}
	if len(h.hist.Payments()) != 0 {
		t.Fatalf("no record should exist for an unsubmitted transfer")
	}
	if h.fake.ReceiptCalls != 0 {
		t.Fatalf("no polling expected after rejection")
	}
}

func TestNotConnected(t *testing.T) {
	session := wallet.NewSession(&wallet.FakeProvider{}, wallet.ChainParams{}, decimal.Zero, nil)
	hist, _ := history.Load(context.Background(), history.NewMemoryKV())
	exec := NewExecutor(session, hist, notify.New("", time.Second, nil, nil), Config{
		FeeWei: mon(1), FeeUnits: 1,
	}, nil, nil)

	if _, err := exec.Execute(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}
