package checkout

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Gateway payment statuses.
const (
	StatusPending    = "Pending"
	StatusAuthorized = "Authorized"
	StatusCaptured   = "Captured"
	StatusDeclined   = "Declined"
	StatusCanceled   = "Canceled"
)

var hundred = decimal.NewFromInt(100)

// MinorUnits converts a decimal amount into cents.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.NewFromInt(minor).Div(hundred)
}

type Customer struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type HostedSessionRequest struct {
	Amount      decimal.Decimal
	Currency    string
	Reference   string
	Description string
	Customer    Customer
	SuccessURL  string
	FailureURL  string
	CancelURL   string
	Metadata    map[string]string
}

type HostedSession struct {
	ID          string
	RedirectURL string
}

// PaymentRequest charges a card token produced by the client-side gateway SDK.
type PaymentRequest struct {
	Token       string
	Amount      decimal.Decimal
	Currency    string
	Reference   string
	Description string
	Customer    Customer
	Metadata    map[string]string
}

type Payment struct {
	ID        string
	Status    string
	Reference string
	Amount    decimal.Decimal
	Currency  string
	// Raw is the full gateway answer, kept for the transaction's payment details.
	Raw map[string]any
}

type Refund struct {
	ActionID  string
	Reference string
	Raw       map[string]any
}

// APIError is a non-2xx gateway answer.
type APIError struct {
	StatusCode int
	RequestID  string
	ErrorType  string
	ErrorCodes []string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("checkout: status %d", e.StatusCode)
	if e.ErrorType != "" {
		msg += ": " + e.ErrorType
	}
	if len(e.ErrorCodes) > 0 {
		msg += " (" + strings.Join(e.ErrorCodes, ", ") + ")"
	}
	return msg
}

// wire formats

type hostedPaymentBody struct {
	Amount              int64             `json:"amount"`
	Currency            string            `json:"currency"`
	PaymentType         string            `json:"payment_type"`
	Reference           string            `json:"reference"`
	Description         string            `json:"description,omitempty"`
	Customer            Customer          `json:"customer"`
	SuccessURL          string            `json:"success_url"`
	FailureURL          string            `json:"failure_url"`
	CancelURL           string            `json:"cancel_url,omitempty"`
	ProcessingChannelID string            `json:"processing_channel_id,omitempty"`
	Metadata            map[string]string `json:"metadata,omitempty"`
}

type tokenSource struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

type paymentBody struct {
	Source              tokenSource       `json:"source"`
	Amount              int64             `json:"amount"`
	Currency            string            `json:"currency"`
	PaymentType         string            `json:"payment_type"`
	Reference           string            `json:"reference"`
	Description         string            `json:"description,omitempty"`
	Capture             bool              `json:"capture"`
	Customer            Customer          `json:"customer"`
	ProcessingChannelID string            `json:"processing_channel_id,omitempty"`
	Metadata            map[string]string `json:"metadata,omitempty"`
}

type refundBody struct {
	Amount    int64  `json:"amount"`
	Reference string `json:"reference,omitempty"`
}

type link struct {
	Href string `json:"href"`
}

type hostedPaymentAnswer struct {
	ID    string          `json:"id"`
	Links map[string]link `json:"_links"`
}

type paymentAnswer struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	Reference string `json:"reference"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
}

type refundAnswer struct {
	ActionID  string `json:"action_id"`
	Reference string `json:"reference"`
}

type errorAnswer struct {
	RequestID  string   `json:"request_id"`
	ErrorType  string   `json:"error_type"`
	ErrorCodes []string `json:"error_codes"`
}

func decodeRaw(body []byte) map[string]any {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil
	}
	return raw
}
