package payment

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"monsearch/internal/history"
	"monsearch/internal/logger"
	"monsearch/internal/metrics"
	"monsearch/internal/notify"
	"monsearch/internal/wallet"
)

var (
	ErrNotConnected        = errors.New("wallet not connected")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrOnChainRevert       = errors.New("transaction reverted on chain")
	ErrConfirmationTimeout = errors.New("transaction confirmation timed out")
)

// Config bounds one payment attempt. PollInterval and MaxAttempts are
// injectable so tests run without real delays.
type Config struct {
	Destination  string
	FeeWei       *big.Int
	FeeUnits     int64
	GasLimit     uint64
	PollInterval time.Duration
	MaxAttempts  int
}

// Executor drives a single payment attempt through
// submitted -> polling -> confirmed|failed. It owns the only writes to the
// cached balance besides connect, and guarantees no record is left pending
// once Execute returns.
type Executor struct {
	session  *wallet.Session
	hist     *history.History
	notifier *notify.Notifier
	cfg      Config
	log      logger.Logger
	rec      metrics.Recorder
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewExecutor(session *wallet.Session, hist *history.History, notifier *notify.Notifier, cfg Config, log logger.Logger, rec metrics.Recorder) *Executor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 30
	}
	if log == nil {
		log = logger.Noop{}
	}
	if rec == nil {
		rec = metrics.Noop{}
	}
	return &Executor{
		session:  session,
		hist:     hist,
		notifier: notifier,
		cfg:      cfg,
		log:      log,
		rec:      rec,
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// Execute runs one payment attempt. The returned bool is authoritative for
// callers: true only when a receipt with a success status was observed.
func (e *Executor) Execute(ctx context.Context) (bool, error) {
	if !e.session.Connected() {
		return false, ErrNotConnected
	}
	address := e.session.Address()

	fee := decimal.NewFromInt(e.cfg.FeeUnits)
	balance, unverified := e.session.CachedBalance()
	if balance.LessThan(fee) {
		e.rec.IncPayment("insufficient_funds")
		e.notifier.Notify(ctx, notify.Event{
			Type:        "error",
			Message:     fmt.Sprintf("Payment error: insufficient funds (%s MON). User: %s", balance.String(), address),
			UserAddress: address,
		})
		return false, fmt.Errorf("%w: balance %s, fee %s", ErrInsufficientFunds, balance.String(), fee.String())
	}
	if unverified {
		e.log.Warn("proceeding on unverified balance", map[string]any{"address": address})
	}

	txHash, err := e.session.SendValueTransfer(ctx, e.cfg.Destination, e.cfg.FeeWei, e.cfg.GasLimit)
	if err != nil {
		e.rec.IncPayment("rejected")
		e.notifier.Notify(ctx, notify.Event{
			Type:         "error",
			Message:      fmt.Sprintf("Payment error: %v. User: %s", err, address),
			UserAddress:  address,
			ErrorDetails: err.Error(),
		})
		return false, err
	}

	record := history.PaymentRecord{
		ID:        history.NewRecordID(e.now()),
		Timestamp: history.Timestamp(e.now()),
		Amount:    e.cfg.FeeUnits,
		TxHash:    txHash,
		Status:    history.PaymentPending,
	}
	if err := e.hist.AppendPayment(ctx, record); err != nil {
		e.log.Error("payment record append failed", map[string]any{"txHash": txHash, "error": err.Error()})
	}

	e.notifier.Notify(ctx, notify.Event{
		Type:        "payment",
		Message:     fmt.Sprintf("Payment initiated: %d MON sent for search", e.cfg.FeeUnits),
		TxHash:      txHash,
		UserAddress: address,
	})

	return e.awaitConfirmation(ctx, record.ID, txHash, address, fee)
}

// awaitConfirmation polls for the receipt at a fixed interval for a bounded
// number of attempts. Exactly one terminal notification is emitted.
func (e *Executor) awaitConfirmation(ctx context.Context, recordID, txHash, address string, fee decimal.Decimal) (bool, error) {
	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		receipt, err := e.session.Receipt(ctx, txHash)
		if err != nil {
			e.rec.ObservePollAttempts(attempt)
			return false, e.fail(ctx, recordID, txHash, address, err)
		}
		if receipt != nil {
			e.rec.ObservePollAttempts(attempt)
			if !receipt.Success {
				return false, e.fail(ctx, recordID, txHash, address, ErrOnChainRevert)
			}
			return true, e.confirm(ctx, recordID, txHash, address, fee)
		}
		if attempt == e.cfg.MaxAttempts {
			break
		}
		if err := e.sleep(ctx, e.cfg.PollInterval); err != nil {
			e.rec.ObservePollAttempts(attempt)
			return false, e.fail(ctx, recordID, txHash, address, err)
		}
	}
	e.rec.ObservePollAttempts(e.cfg.MaxAttempts)
	return false, e.fail(ctx, recordID, txHash, address, ErrConfirmationTimeout)
}

func (e *Executor) confirm(ctx context.Context, recordID, txHash, address string, fee decimal.Decimal) error {
	if err := e.hist.UpdatePaymentStatus(ctx, recordID, history.PaymentConfirmed); err != nil {
		e.log.Error("payment record update failed", map[string]any{"id": recordID, "error": err.Error()})
	}
	e.session.Debit(fee)
	balance, _ := e.session.CachedBalance()
	e.rec.SetWalletBalance(balance.InexactFloat64())
	e.rec.IncPayment("confirmed")
	e.notifier.Notify(ctx, notify.Event{
		Type:        "payment_confirmed",
		Message:     fmt.Sprintf("Payment confirmed: %s MON transferred", fee.String()),
		TxHash:      txHash,
		UserAddress: address,
	})
	e.log.Info("payment confirmed", map[string]any{"txHash": txHash})
	return nil
}

func (e *Executor) fail(ctx context.Context, recordID, txHash, address string, reason error) error {
	if err := e.hist.UpdatePaymentStatus(ctx, recordID, history.PaymentFailed); err != nil {
		e.log.Error("payment record update failed", map[string]any{"id": recordID, "error": err.Error()})
	}
	e.rec.IncPayment("failed")
	e.notifier.Notify(ctx, notify.Event{
		Type:         "error",
		Message:      fmt.Sprintf("Payment error: %v. User: %s", reason, address),
		TxHash:       txHash,
		UserAddress:  address,
		ErrorDetails: reason.Error(),
	})
	e.log.Warn("payment failed", map[string]any{"txHash": txHash, "reason": reason.Error()})
	return reason
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
