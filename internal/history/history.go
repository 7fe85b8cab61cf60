package history

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

const (
	keyRequestHistory = "request_history"
	keyPaymentHistory = "payment_history"
	keyNotifications  = "notifications_enabled"
)

// ErrRecordNotFound is returned by status updates for unknown ids.
var ErrRecordNotFound = fmt.Errorf("history record not found")

// History owns the two append-only logs and the notifications toggle.
// Lookup by id is a map hit; append order is preserved for display. Every
// mutation is followed by one full persist of the affected key.
type History struct {
	mu sync.Mutex
	kv KV

	payments   []PaymentRecord
	paymentIdx map[string]int
	requests   []RequestRecord

	notificationsEnabled bool
}

// Load seeds the in-memory collections from the KV. Absent keys mean empty
// history and notifications on, not an error.
func Load(ctx context.Context, kv KV) (*History, error) {
	h := &History{
		kv:                   kv,
		paymentIdx:           make(map[string]int),
		notificationsEnabled: true,
	}

	if err := h.loadKey(ctx, keyPaymentHistory, &h.payments); err != nil {
		return nil, err
	}
	for i, rec := range h.payments {
		h.paymentIdx[rec.ID] = i
	}

	if err := h.loadKey(ctx, keyRequestHistory, &h.requests); err != nil {
		return nil, err
	}

	if err := h.loadKey(ctx, keyNotifications, &h.notificationsEnabled); err != nil {
		return nil, err
	}

	return h, nil
}

func (h *History) loadKey(ctx context.Context, key string, dst any) error {
	blob, err := h.kv.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("load %s: %w", key, err)
	}
	if len(blob) == 0 {
		return nil
	}
	if err := json.Unmarshal(blob, dst); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func (h *History) AppendPayment(ctx context.Context, rec PaymentRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.payments = append(h.payments, rec)
	h.paymentIdx[rec.ID] = len(h.payments) - 1
	return h.persist(ctx, keyPaymentHistory, h.payments)
}

// UpdatePaymentStatus replaces the status of the record with the given id
// and re-persists the payment log.
func (h *History) UpdatePaymentStatus(ctx context.Context, id string, status PaymentStatus) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	idx, ok := h.paymentIdx[id]
	if !ok {
		return fmt.Errorf("%w: payment %s", ErrRecordNotFound, id)
	}
	h.payments[idx].Status = status
	return h.persist(ctx, keyPaymentHistory, h.payments)
}

func (h *History) AppendRequest(ctx context.Context, rec RequestRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.requests = append(h.requests, rec)
	return h.persist(ctx, keyRequestHistory, h.requests)
}

// Payments returns a copy of the payment log in append order.
func (h *History) Payments() []PaymentRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]PaymentRecord, len(h.payments))
	copy(out, h.payments)
	return out
}

// Requests returns a copy of the request log in append order.
func (h *History) Requests() []RequestRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]RequestRecord, len(h.requests))
	copy(out, h.requests)
	return out
}

func (h *History) NotificationsEnabled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.notificationsEnabled
}

func (h *History) SetNotificationsEnabled(ctx context.Context, enabled bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.notificationsEnabled = enabled
	return h.persist(ctx, keyNotifications, enabled)
}

func (h *History) persist(ctx context.Context, key string, value any) error {
	blob, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := h.kv.Set(ctx, key, blob); err != nil {
		return fmt.Errorf("persist %s: %w", key, err)
	}
	return nil
}
