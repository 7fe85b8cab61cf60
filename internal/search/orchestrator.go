package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"monsearch/internal/history"
	"monsearch/internal/logger"
	"monsearch/internal/metrics"
	"monsearch/internal/notify"
	"monsearch/internal/wallet"
)

var (
	ErrEmptyQuery         = errors.New("search query is empty")
	ErrWalletNotConnected = errors.New("wallet is not connected")
	ErrPaymentFailed      = errors.New("payment failed")
)

// Endpoint is the remote search service.
type Endpoint interface {
	Search(ctx context.Context, req Request) (*Response, error)
}

// PaymentGate runs one payment attempt; the bool is authoritative.
type PaymentGate interface {
	Execute(ctx context.Context) (bool, error)
}

// Orchestrator is the top-level entry point: validate, pay, query the
// endpoint, record the outcome.
type Orchestrator struct {
	gate         PaymentGate
	endpoint     Endpoint
	session      *wallet.Session
	hist         *history.History
	notifier     *notify.Notifier
	feeUnits     int64
	defaultLimit int
	log          logger.Logger
	rec          metrics.Recorder
	now          func() time.Time
}

func NewOrchestrator(gate PaymentGate, endpoint Endpoint, session *wallet.Session, hist *history.History, notifier *notify.Notifier, feeUnits int64, defaultLimit int, log logger.Logger, rec metrics.Recorder) *Orchestrator {
	if defaultLimit <= 0 {
		defaultLimit = 100
	}
	if log == nil {
		log = logger.Noop{}
	}
	if rec == nil {
		rec = metrics.Noop{}
	}
	return &Orchestrator{
		gate:         gate,
		endpoint:     endpoint,
		session:      session,
		hist:         hist,
		notifier:     notifier,
		feeUnits:     feeUnits,
		defaultLimit: defaultLimit,
		log:          log,
		rec:          rec,
		now:          time.Now,
	}
}

// Search runs one paid query. A payment that does not confirm stops the flow
// before the endpoint is called and leaves no request record; the payment
// record written by the gate stands as the audit trail.
func (o *Orchestrator) Search(ctx context.Context, query string, limit int, lang string) (*Response, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		o.rec.IncSearch("validation_error")
		return nil, ErrEmptyQuery
	}
	if !o.session.Connected() {
		o.rec.IncSearch("validation_error")
		return nil, ErrWalletNotConnected
	}
	if limit <= 0 {
		limit = o.defaultLimit
	}
	address := o.session.Address()

	paid, err := o.gate.Execute(ctx)
	if !paid {
		o.rec.IncSearch("payment_failed")
		if err != nil {
			return nil, err
		}
		return nil, ErrPaymentFailed
	}

	resp, err := o.endpoint.Search(ctx, Request{
		Query:       query,
		Limit:       limit,
		Lang:        lang,
		UserAddress: address,
	})
	if err != nil {
		o.recordRequest(ctx, query, 0, history.RequestError, err.Error())
		o.rec.IncSearch("error")
		o.notifier.Notify(ctx, notify.Event{
			Type:         "api_error",
			Message:      fmt.Sprintf("Search error: %v. Query: %q. User: %s", err, query, address),
			UserAddress:  address,
			ErrorDetails: err.Error(),
		})
		return nil, err
	}

	results := len(resp.List)
	o.recordRequest(ctx, query, results, history.RequestSuccess, "")
	o.rec.IncSearch("success")
	o.notifier.Notify(ctx, notify.Event{
		Type:        "api_success",
		Message:     fmt.Sprintf("Search succeeded: %d data sources matched query %q", results, query),
		UserAddress: address,
	})
	o.log.Info("search completed", map[string]any{"query": query, "sources": results})
	return resp, nil
}

func (o *Orchestrator) recordRequest(ctx context.Context, query string, results int, status history.RequestStatus, errMsg string) {
	rec := history.RequestRecord{
		ID:           history.NewRecordID(o.now()),
		Timestamp:    history.Timestamp(o.now()),
		Query:        query,
		Cost:         o.feeUnits,
		Results:      results,
		Status:       status,
		ErrorMessage: errMsg,
	}
	if err := o.hist.AppendRequest(ctx, rec); err != nil {
		o.log.Error("request record append failed", map[string]any{"query": query, "error": err.Error()})
	}
}
