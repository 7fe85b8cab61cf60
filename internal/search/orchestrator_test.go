package search

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"monsearch/internal/history"
	"monsearch/internal/notify"
	"monsearch/internal/payment"
	"monsearch/internal/wallet"
)

type stubGate struct {
	ok    bool
	err   error
	calls int
}

func (g *stubGate) Execute(context.Context) (bool, error) {
	g.calls++
	return g.ok, g.err
}

type stubEndpoint struct {
	resp    *Response
	err     error
	calls   int
	lastReq Request
}

func (e *stubEndpoint) Search(_ context.Context, req Request) (*Response, error) {
	e.calls++
	e.lastReq = req
	if e.err != nil {
		return nil, e.err
	}
	return e.resp, nil
}

func connectedSession(t *testing.T) *wallet.Session {
	t.Helper()
	fake := &wallet.FakeProvider{
		Accounts:   []string{"0xuser"},
		BalanceWei: new(big.Int).Mul(big.NewInt(10), big.NewInt(1e18)),
	}
	session := wallet.NewSession(fake, wallet.ChainParams{ChainID: 10143, Decimals: 18}, decimal.Zero, nil)
	if _, err := session.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	return session
}

func newOrchestrator(t *testing.T, gate *stubGate, endpoint *stubEndpoint, session *wallet.Session) (*Orchestrator, *history.History) {
	t.Helper()
	hist, err := history.Load(context.Background(), history.NewMemoryKV())
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	notifier := notify.New("", time.Second, nil, nil)
	return NewOrchestrator(gate, endpoint, session, hist, notifier, 1, 100, nil, nil), hist
}

func TestEmptyQueryRejectedBeforeSideEffects(t *testing.T) {
	gate := &stubGate{ok: true}
	endpoint := &stubEndpoint{resp: &Response{}}
	o, hist := newOrchestrator(t, gate, endpoint, connectedSession(t))

	_, err := o.Search(context.Background(), "   ", 100, "en")
	if !errors.Is(err, ErrEmptyQuery) {
		t.Fatalf("expected ErrEmptyQuery, got %v", err)
	}
	if gate.calls != 0 || endpoint.calls != 0 {
		t.Fatalf("validation failure must have no side effects")
	}
	if len(hist.Requests()) != 0 {
		t.Fatalf("no request record expected")
	}
}

func TestDisconnectedWalletRejected(t *testing.T) {
	gate := &stubGate{ok: true}
	endpoint := &stubEndpoint{resp: &Response{}}
	session := wallet.NewSession(&wallet.FakeProvider{}, wallet.ChainParams{}, decimal.Zero, nil)
	o, _ := newOrchestrator(t, gate, endpoint, session)

	_, err := o.Search(context.Background(), "query", 100, "en")
	if !errors.Is(err, ErrWalletNotConnected) {
		t.Fatalf("expected ErrWalletNotConnected, got %v", err)
	}
	if gate.calls != 0 {
		t.Fatalf("payment must not run for a disconnected wallet")
	}
}

func TestPaymentFailureStopsFlow(t *testing.T) {
	gate := &stubGate{ok: false, err: payment.ErrInsufficientFunds}
	endpoint := &stubEndpoint{resp: &Response{}}
	o, hist := newOrchestrator(t, gate, endpoint, connectedSession(t))

	_, err := o.Search(context.Background(), "query", 100, "en")
	if !errors.Is(err, payment.ErrInsufficientFunds) {
		t.Fatalf("expected payment error, got %v", err)
	}
	if endpoint.calls != 0 {
		t.Fatalf("endpoint must not be called after payment failure")
	}
	if len(hist.Requests()) != 0 {
		t.Fatalf("no request record expected after payment failure")
	}
}

func TestEndpointErrorRecorded(t *testing.T) {
	gate := &stubGate{ok: true}
	endpoint := &stubEndpoint{err: &EndpointError{StatusCode: 500, Message: "backend down"}}
	o, hist := newOrchestrator(t, gate, endpoint, connectedSession(t))

	_, err := o.Search(context.Background(), "query", 100, "en")
	if err == nil {
		t.Fatalf("expected error")
	}

	requests := hist.Requests()
	if len(requests) != 1 {
		t.Fatalf("expected 1 request record, got %d", len(requests))
	}
	rec := requests[0]
	if rec.Status != history.RequestError {
		t.Fatalf("expected error status, got %s", rec.Status)
	}
	if rec.Results != 0 {
		t.Fatalf("expected 0 results, got %d", rec.Results)
	}
	if rec.ErrorMessage != "backend down" {
		t.Fatalf("unexpected error message %q", rec.ErrorMessage)
	}
}

func TestSuccessCountsDataSources(t *testing.T) {
	gate := &stubGate{ok: true}
	endpoint := &stubEndpoint{resp: &Response{List: map[string]Source{
		"db1": {InfoLeak: "x", Data: []map[string]any{{"a": 1}}},
		"db2": {InfoLeak: "y", Data: []map[string]any{}},
	}}}
	o, hist := newOrchestrator(t, gate, endpoint, connectedSession(t))

	resp, err := o.Search(context.Background(), "foo", 100, "en")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(resp.List) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(resp.List))
	}

	requests := hist.Requests()
	if len(requests) != 1 {
		t.Fatalf("expected 1 request record, got %d", len(requests))
	}
	if requests[0].Results != 2 || requests[0].Status != history.RequestSuccess {
		t.Fatalf("expected success with 2 results, got %+v", requests[0])
	}
	if endpoint.calls != 1 {
		t.Fatalf("endpoint must be called exactly once, got %d", endpoint.calls)
	}
}

func TestEmptyMappingIsSuccess(t *testing.T) {
	gate := &stubGate{ok: true}
	endpoint := &stubEndpoint{resp: &Response{List: map[string]Source{}}}
	o, hist := newOrchestrator(t, gate, endpoint, connectedSession(t))

	if _, err := o.Search(context.Background(), "foo", 100, "en"); err != nil {
		t.Fatalf("search: %v", err)
	}

	requests := hist.Requests()
	if len(requests) != 1 {
		t.Fatalf("expected 1 request record")
	}
	if requests[0].Status != history.RequestSuccess || requests[0].Results != 0 {
		t.Fatalf("empty mapping must record success with 0 results, got %+v", requests[0])
	}
}

func TestLimitDefaultsWhenUnset(t *testing.T) {
	gate := &stubGate{ok: true}
	endpoint := &stubEndpoint{resp: &Response{}}
	o, _ := newOrchestrator(t, gate, endpoint, connectedSession(t))

	if _, err := o.Search(context.Background(), "foo", 0, "en"); err != nil {
		t.Fatalf("search: %v", err)
	}
	if endpoint.lastReq.Limit != 100 {
		t.Fatalf("expected default limit 100, got %d", endpoint.lastReq.Limit)
	}
	if endpoint.lastReq.UserAddress != "0xuser" {
		t.Fatalf("expected user address forwarded, got %s", endpoint.lastReq.UserAddress)
	}
}
