package history

import (
	"strconv"
	"time"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentConfirmed PaymentStatus = "confirmed"
	PaymentFailed    PaymentStatus = "failed"
)

type RequestStatus string

const (
	RequestSuccess RequestStatus = "success"
	RequestError   RequestStatus = "error"
)

// PaymentRecord is one submitted transfer. Records are append-only: a record
// is created at submission time with status pending and transitions exactly
// once to confirmed or failed.
type PaymentRecord struct {
	ID        string        `json:"id"`
	Timestamp string        `json:"timestamp"`
	Amount    int64         `json:"amount"`
	TxHash    string        `json:"txHash"`
	Status    PaymentStatus `json:"status"`
}

// RequestRecord is one search attempt whose payment confirmed; attempts
// stopped at the payment gate are never recorded here.
type RequestRecord struct {
	ID           string        `json:"id"`
	Timestamp    string        `json:"timestamp"`
	Query        string        `json:"query"`
	Cost         int64         `json:"cost"`
	Results      int           `json:"results"`
	Status       RequestStatus `json:"status"`
	ErrorMessage string        `json:"errorMessage,omitempty"`
}

// NewRecordID derives a unique id from the wall clock, millisecond precision.
func NewRecordID(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

// Timestamp formats t the way records store it.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
