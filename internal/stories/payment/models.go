package payment

import (
	"fmt"
	"strings"
	"time"

	"engagement-shop/internal/stories/orders"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Type string

const (
	TypeOrderPayment Type = "order_payment"
	TypeDeposit      Type = "deposit"
	TypeRefund       Type = "refund"
	TypeAdjustment   Type = "adjustment"
	TypeWithdrawal   Type = "withdrawal"
)

func (t Type) referencePrefix() string {
	switch t {
	case TypeOrderPayment:
		return "PAY"
	case TypeDeposit:
		return "DEP"
	case TypeRefund:
		return "REF"
	case TypeWithdrawal:
		return "WTH"
	default:
		return "ADJ"
	}
}

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusRefunded   Status = "refunded"
	StatusCancelled  Status = "cancelled"
)

type Method string

const (
	MethodCreditCard     Method = "credit_card"
	MethodDebitCard      Method = "debit_card"
	MethodApplePay       Method = "apple_pay"
	MethodPayPal         Method = "paypal"
	MethodCryptoBitcoin  Method = "crypto_bitcoin"
	MethodCryptoEthereum Method = "crypto_ethereum"
	MethodCryptoUSDC     Method = "crypto_usdc"
	MethodBalance        Method = "balance"
	MethodBankTransfer   Method = "bank_transfer"
)

type Transaction struct {
	ID                   string          `json:"id"`
	UserID               string          `json:"userId"`
	OrderID              *string         `json:"orderId,omitempty"`
	Type                 Type            `json:"type"`
	Amount               decimal.Decimal `json:"amount"`
	Fee                  decimal.Decimal `json:"fee"`
	NetAmount            decimal.Decimal `json:"netAmount"`
	Currency             string          `json:"currency"`
	PaymentMethod        Method          `json:"paymentMethod"`
	Status               Status          `json:"status"`
	Reference            string          `json:"reference"`
	ExternalReference    *string         `json:"externalReference,omitempty"`
	RelatedTransactionID *string         `json:"relatedTransactionId,omitempty"`
	Description          string          `json:"description"`
	PaymentDetails       map[string]any  `json:"paymentDetails,omitempty"`
	CreatedAt            time.Time       `json:"createdAt"`
	UpdatedAt            time.Time       `json:"updatedAt"`
}

// RecomputeNet keeps NetAmount = Amount - Fee.
func (t *Transaction) RecomputeNet() {
	t.NetAmount = t.Amount.Sub(t.Fee)
}

// NewReference builds PREFIX-<unix millis>-<6 random upper alnum>.
func NewReference(t Type, now time.Time) string {
	random := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:6]
	return fmt.Sprintf("%s-%d-%s", t.referencePrefix(), now.UnixMilli(), random)
}

type GetCriteria struct {
	ID                *string
	Reference         *string
	ExternalReference *string
	OrderID           *string
	Type              *Type
	Status            *Status
}

type ListCriteria struct {
	UserID   *string
	OrderID  *string
	Type     *Type
	Statuses []Status
	Method   *Method
	// WithExternalReference keeps only transactions known to the gateway.
	WithExternalReference bool
	CreatedBefore         *time.Time
	Limit                 int
	Offset                int
}

type UpdateParams struct {
	Status            *Status
	ExternalReference *string
	// PaymentDetails replaces the stored details when non-nil.
	PaymentDetails map[string]any
}

// RefundWrite is everything a refund changes. Storage applies it atomically.
type RefundWrite struct {
	OriginalID      string
	OriginalDetails map[string]any
	Refund          Transaction
	OrderID         *string
}

type RefundOutcome struct {
	Original *Transaction `json:"transaction"`
	Refund   *Transaction `json:"refundTransaction"`
}

type WebhookEvent struct {
	Provider       string
	EventID        string
	EventType      string
	SignatureValid bool
	ProcessedAt    time.Time
}

type CheckoutSession struct {
	RedirectURL   string `json:"redirectUrl"`
	TransactionID string `json:"transactionId"`
	CheckoutID    string `json:"checkoutId"`
}

type ProcessResult struct {
	Transaction *Transaction  `json:"transaction"`
	Order       *orders.Order `json:"order,omitempty"`
}

type MethodInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Active      bool   `json:"active"`
	Icon        string `json:"icon"`
}

// Guest checkout

type GuestMethod string

const (
	GuestCard   GuestMethod = "card"
	GuestPayPal GuestMethod = "paypal"
	GuestCrypto GuestMethod = "crypto"
)

type GuestCheckoutRequest struct {
	Email          string
	SocialUsername string
	Method         GuestMethod
	// CardToken is a gateway token (tok_...) created in the browser. Raw card data is never accepted.
	CardToken      string
	CardholderName string
	CryptoType     string
	ServiceType    string
	Quality        string
	Quantity       int
	PostURL        string
}

type GuestPaymentResult struct {
	Success       bool   `json:"success"`
	Status        string `json:"status"`
	Message       string `json:"message"`
	PaymentID     string `json:"paymentId,omitempty"`
	RedirectURL   string `json:"redirectUrl,omitempty"`
	WalletAddress string `json:"walletAddress,omitempty"`
	CryptoAmount  string `json:"cryptoAmount,omitempty"`
	CryptoType    string `json:"cryptoType,omitempty"`
}

type GuestCheckoutResult struct {
	Order         *orders.Order      `json:"order"`
	Transaction   *Transaction       `json:"transaction"`
	PaymentResult GuestPaymentResult `json:"paymentResult"`
}
