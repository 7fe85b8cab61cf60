package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"monsearch/internal/logger"
)

// Event is one lifecycle notification. Types in use: connection, payment,
// payment_confirmed, error, api_success, api_error.
type Event struct {
	Type         string `json:"type"`
	Message      string `json:"message"`
	TxHash       string `json:"txHash,omitempty"`
	UserAddress  string `json:"userAddress,omitempty"`
	ErrorDetails string `json:"errorDetails,omitempty"`
}

// Notifier delivers events to the sink on a best-effort basis. Delivery
// failures are logged and swallowed so they can never alter payment or
// search outcomes. Emission is skipped entirely while the persisted toggle
// is off.
type Notifier struct {
	sinkURL string
	client  *http.Client
	enabled func() bool
	log     logger.Logger
}

func New(sinkURL string, timeout time.Duration, enabled func() bool, log logger.Logger) *Notifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if enabled == nil {
		enabled = func() bool { return true }
	}
	if log == nil {
		log = logger.Noop{}
	}
	return &Notifier{
		sinkURL: sinkURL,
		client:  &http.Client{Timeout: timeout},
		enabled: enabled,
		log:     log,
	}
}

// Notify is fire-and-forget: it never returns an error to the caller.
func (n *Notifier) Notify(ctx context.Context, event Event) {
	if !n.enabled() {
		return
	}
	if n.sinkURL == "" {
		return
	}

	body, err := json.Marshal(event)
	if err != nil {
		n.log.Warn("notification encode failed", map[string]any{"error": err.Error()})
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.sinkURL, bytes.NewReader(body))
	if err != nil {
		n.log.Warn("notification request failed", map[string]any{"error": err.Error()})
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		n.log.Warn("notification delivery failed", map[string]any{
			"type":  event.Type,
			"error": err.Error(),
		})
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		n.log.Warn("notification sink rejected event", map[string]any{
			"type":   event.Type,
			"status": resp.StatusCode,
		})
	}
}
