package payment

import (
	"context"
	"net/url"
	"strings"

	"engagement-shop/internal/apperr"
	"engagement-shop/internal/infra/checkout"
	"engagement-shop/internal/stories/catalog"
	"engagement-shop/internal/stories/orders"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const cryptoDecimals = 8

func cryptoMethod(cryptoType string) (Method, bool) {
	switch cryptoType {
	case "bitcoin":
		return MethodCryptoBitcoin, true
	case "ethereum":
		return MethodCryptoEthereum, true
	case "usdc":
		return MethodCryptoUSDC, true
	}
	return "", false
}

func (r *GuestCheckoutRequest) validate() (Method, error) {
	r.Email = strings.TrimSpace(r.Email)
	r.SocialUsername = strings.TrimPrefix(strings.TrimSpace(r.SocialUsername), "@")
	if r.Email == "" {
		return "", apperr.Validation("email is required")
	}
	if r.SocialUsername == "" {
		return "", apperr.Validation("social username is required")
	}
	if r.Quantity <= 0 {
		return "", apperr.Validation("quantity must be positive")
	}

	switch r.Method {
	case GuestCard:
		if !strings.HasPrefix(r.CardToken, "tok_") {
			return "", apperr.Validation("a card token is required")
		}
		if strings.TrimSpace(r.CardholderName) == "" {
			return "", apperr.Validation("cardholder name is required")
		}
		return MethodCreditCard, nil
	case GuestPayPal:
		return MethodPayPal, nil
	case GuestCrypto:
		r.CryptoType = strings.ToLower(strings.TrimSpace(r.CryptoType))
		method, ok := cryptoMethod(r.CryptoType)
		if !ok {
			return "", apperr.Validation("unsupported crypto type %q", r.CryptoType)
		}
		return method, nil
	}
	return "", apperr.Validation("unsupported payment method %q", r.Method)
}

// GuestCheckout creates an account-less order and starts its payment.
func (s *Service) GuestCheckout(ctx context.Context, req GuestCheckoutRequest) (*GuestCheckoutResult, error) {
	ctx, span := tracer.Start(ctx, "payment.GuestCheckout", trace.WithAttributes(attribute.String("method", string(req.Method))))
	defer span.End()

	method, err := req.validate()
	if err != nil {
		return nil, err
	}
	if req.Method == GuestCrypto {
		if _, ok := s.cfg.CryptoWallets[req.CryptoType]; !ok {
			return nil, apperr.Validation("crypto type %q is not configured", req.CryptoType)
		}
		if rate, ok := s.cfg.CryptoRates[req.CryptoType]; !ok || !rate.IsPositive() {
			return nil, apperr.Validation("crypto type %q has no exchange rate", req.CryptoType)
		}
	}

	user, err := s.users.FindOrCreateGuest(ctx, req.Email, req.SocialUsername)
	if err != nil {
		return nil, err
	}

	order, err := s.orders.CreateOrder(ctx, orders.CreateOrderRequest{
		UserID:         user.ID,
		TargetUsername: req.SocialUsername,
		Service: catalog.Selector{
			Type:     catalog.ServiceType(req.ServiceType),
			Quality:  catalog.Quality(req.Quality),
			Quantity: req.Quantity,
		},
		Quantity: req.Quantity,
		PostURL:  req.PostURL,
	})
	if err != nil {
		return nil, err
	}

	details := map[string]any{
		"guest":          true,
		"email":          user.Email,
		"socialUsername": req.SocialUsername,
	}
	if req.Method == GuestCard {
		details["cardholderName"] = req.CardholderName
	}

	tx, err := s.createPending(ctx, order, method, details)
	if err != nil {
		return nil, err
	}

	result := &GuestCheckoutResult{Order: order, Transaction: tx}
	switch req.Method {
	case GuestCard:
		err = s.guestCard(ctx, req, result)
	case GuestPayPal:
		s.guestPayPal(result)
	case GuestCrypto:
		err = s.guestCrypto(ctx, req.CryptoType, result)
	}
	if err != nil {
		return nil, err
	}

	// The order may have moved on during payment.
	if refreshed, err := s.orders.GetOrder(ctx, order.ID); err == nil {
		result.Order = refreshed
	}

	s.logger.Info("Guest checkout processed",
		"user_id", user.ID,
		"order_id", order.ID,
		"transaction_id", result.Transaction.ID,
		"method", method,
		"status", result.PaymentResult.Status,
	)
	return result, nil
}

func (s *Service) guestCard(ctx context.Context, req GuestCheckoutRequest, result *GuestCheckoutResult) error {
	tx := result.Transaction

	payment, err := s.gateway.CreateDirectPayment(ctx, checkout.PaymentRequest{
		Token:       req.CardToken,
		Amount:      tx.Amount,
		Currency:    tx.Currency,
		Reference:   tx.Reference,
		Description: "Order " + result.Order.OrderNumber,
		Customer:    checkout.Customer{Email: req.Email, Name: req.CardholderName},
		Metadata: map[string]string{
			"order_id":       result.Order.ID,
			"transaction_id": tx.ID,
		},
	})
	if err != nil {
		s.logger.Error("Guest card payment failed", "error", err, "transaction_id", tx.ID)
		failed, updErr := s.applyGatewayStatus(ctx, tx, StatusFailed, "", nil)
		if updErr != nil {
			s.logger.Error("Failed to mark guest transaction failed", "error", updErr, "transaction_id", tx.ID)
		}
		if failed != nil {
			result.Transaction = failed
		}
		return apperr.Upstream(err, "card payment failed")
	}

	status := MapGatewayStatus(payment.Status)
	updated, err := s.applyGatewayStatus(ctx, tx, status, payment.ID, payment.Raw)
	if err != nil {
		return err
	}
	if status == StatusPending {
		// Still record the gateway id so reconciliation can pick the payment up.
		updated, err = s.update(ctx, tx.ID, UpdateParams{
			ExternalReference: &payment.ID,
			PaymentDetails:    withDetail(tx.PaymentDetails, "gateway", payment.Raw),
		})
		if err != nil {
			return err
		}
	}
	result.Transaction = updated

	result.PaymentResult = GuestPaymentResult{
		Success:   status == StatusCompleted,
		Status:    string(status),
		PaymentID: payment.ID,
	}
	switch status {
	case StatusCompleted:
		result.PaymentResult.Message = "Payment completed"
	case StatusFailed:
		result.PaymentResult.Message = "Payment was declined"
	default:
		result.PaymentResult.Message = "Payment is being processed"
	}
	return nil
}

func (s *Service) guestPayPal(result *GuestCheckoutResult) {
	query := url.Values{}
	query.Set("amount", result.Transaction.Amount.StringFixed(2))
	query.Set("transactionId", result.Transaction.ID)
	query.Set("orderId", result.Order.ID)

	result.PaymentResult = GuestPaymentResult{
		Success:     true,
		Status:      string(StatusPending),
		Message:     "Redirecting to PayPal",
		RedirectURL: strings.TrimRight(s.cfg.FrontendURL, "/") + "/paypal/pay?" + query.Encode(),
	}
}

func (s *Service) guestCrypto(ctx context.Context, cryptoType string, result *GuestCheckoutResult) error {
	tx := result.Transaction
	wallet := s.cfg.CryptoWallets[cryptoType]
	rate := s.cfg.CryptoRates[cryptoType]
	amount := CryptoAmount(tx.Amount, rate)

	details := withDetail(tx.PaymentDetails, "cryptoType", cryptoType)
	details["walletAddress"] = wallet
	details["cryptoAmount"] = amount
	details["exchangeRate"] = rate.String()

	updated, err := s.update(ctx, tx.ID, UpdateParams{
		Status:         lo.ToPtr(StatusPending),
		PaymentDetails: details,
	})
	if err != nil {
		return err
	}
	result.Transaction = updated

	result.PaymentResult = GuestPaymentResult{
		Success:       true,
		Status:        string(StatusPending),
		Message:       "Send the exact amount to the wallet address",
		WalletAddress: wallet,
		CryptoAmount:  amount,
		CryptoType:    cryptoType,
	}
	return nil
}

// CryptoAmount converts a fiat price at rate, with 8 decimals.
func CryptoAmount(price, rate decimal.Decimal) string {
	return price.DivRound(rate, cryptoDecimals+4).StringFixed(cryptoDecimals)
}

// GuestPaymentStatus returns a guest transaction and its order.
func (s *Service) GuestPaymentStatus(ctx context.Context, transactionID string) (*ProcessResult, error) {
	tx, err := s.getTransaction(ctx, GetCriteria{ID: &transactionID})
	if err != nil {
		return nil, err
	}
	return s.withOrder(ctx, tx)
}
