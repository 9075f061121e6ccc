package payment

import (
	"strings"

	"engagement-shop/internal/infra/checkout"

	"github.com/shopspring/decimal"
)

type feeRule struct {
	percent decimal.Decimal
	fixed   decimal.Decimal
}

var (
	cardFee   = feeRule{percent: decimal.RequireFromString("0.029"), fixed: decimal.RequireFromString("0.30")}
	paypalFee = feeRule{percent: decimal.RequireFromString("0.039"), fixed: decimal.RequireFromString("0.30")}
	cryptoFee = feeRule{percent: decimal.RequireFromString("0.01")}
)

// CalculateFee returns the processing fee for amount, rounded to cents.
func CalculateFee(method Method, amount decimal.Decimal) decimal.Decimal {
	var rule feeRule
	switch {
	case method == MethodCreditCard, method == MethodDebitCard, method == MethodApplePay:
		rule = cardFee
	case method == MethodPayPal:
		rule = paypalFee
	case strings.HasPrefix(string(method), "crypto_"):
		rule = cryptoFee
	default:
		return decimal.Zero
	}
	return amount.Mul(rule.percent).Add(rule.fixed).Round(2)
}

// MapGatewayStatus translates a gateway payment status into a transaction status.
func MapGatewayStatus(status string) Status {
	switch status {
	case checkout.StatusAuthorized, checkout.StatusCaptured:
		return StatusCompleted
	case checkout.StatusDeclined:
		return StatusFailed
	default:
		return StatusPending
	}
}

// Methods lists the payment methods offered at checkout.
func Methods() []MethodInfo {
	return []MethodInfo{
		{
			ID:          "checkout",
			Name:        "Credit/Debit Card",
			Description: "Pay securely with your card",
			Active:      true,
			Icon:        "credit-card",
		},
	}
}
