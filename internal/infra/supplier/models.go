package supplier

import (
	"github.com/shopspring/decimal"
)

// Raw status strings reported by the panel.
const (
	StatusPending    = "Pending"
	StatusInProgress = "In progress"
	StatusProcessing = "Processing"
	StatusCompleted  = "Completed"
	StatusPartial    = "Partial"
	StatusCanceled   = "Canceled"
	StatusRefunded   = "Refunded"
)

type OrderStatus struct {
	Status     string
	StartCount int
	Remains    int
	Charge     decimal.Decimal
	Currency   string
}

// BatchResult is one entry of a multi-order status answer. Exactly one field is set.
type BatchResult struct {
	Status *OrderStatus
	Err    error
}

type Balance struct {
	Amount   decimal.Decimal
	Currency string
}

type Service struct {
	ID       string
	Name     string
	Type     string
	Category string
	Rate     decimal.Decimal
	Min      int
	Max      int
	Refill   bool
	Cancel   bool
}

// APIError is an {"error": "..."} answer. It is never retried.
type APIError struct {
	Action  string
	Message string
}

func (e *APIError) Error() string {
	return "supplier " + e.Action + ": " + e.Message
}
