package api

import (
	"io"
	"net/http"

	"engagement-shop/internal/stories/payment"

	"github.com/labstack/echo/v4"
	"github.com/samber/lo"
)

const signatureHeader = "Cko-Signature"

// paymentWebhook always acknowledges so the gateway does not retry; failures are only logged.
func (s *Server) paymentWebhook(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		s.logger.Error("Failed to read webhook body", "error", err)
		return respond(c, http.StatusOK, map[string]bool{"received": true})
	}

	if err := s.Payments.HandleWebhook(c.Request().Context(), body, c.Request().Header.Get(signatureHeader)); err != nil {
		s.logger.Error("Webhook processing failed", "error", err)
	}
	return respond(c, http.StatusOK, map[string]bool{"received": true})
}

func (s *Server) paymentMethods(c echo.Context) error {
	return respond(c, http.StatusOK, s.Payments.PaymentMethods())
}

type checkoutSessionRequest struct {
	OrderID string `json:"orderId"`
}

func (s *Server) createCheckoutSession(c echo.Context) error {
	var req checkoutSessionRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	session, err := s.Payments.CreateCheckoutSession(c.Request().Context(), currentUser(c).ID, req.OrderID)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, session)
}

type transactionRequest struct {
	TransactionID string `json:"transactionId"`
}

func (s *Server) processPayment(c echo.Context) error {
	var req transactionRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	user := currentUser(c)
	result, err := s.Payments.ProcessPayment(c.Request().Context(), req.TransactionID, user.ID, user.IsAdmin())
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, result)
}

func (s *Server) transactionHistory(c echo.Context) error {
	p, err := pageParams(c)
	if err != nil {
		return err
	}
	list, err := s.Payments.ListTransactions(c.Request().Context(), payment.ListCriteria{
		UserID: &currentUser(c).ID,
		Limit:  p.Limit,
		Offset: p.Offset,
	})
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, list)
}

func (s *Server) listTransactions(c echo.Context) error {
	p, err := pageParams(c)
	if err != nil {
		return err
	}
	criteria := payment.ListCriteria{Limit: p.Limit, Offset: p.Offset}
	if v := c.QueryParam("userId"); v != "" {
		criteria.UserID = &v
	}
	if v := c.QueryParam("orderId"); v != "" {
		criteria.OrderID = &v
	}
	if v := c.QueryParam("type"); v != "" {
		criteria.Type = lo.ToPtr(payment.Type(v))
	}
	if v := c.QueryParam("status"); v != "" {
		criteria.Statuses = []payment.Status{payment.Status(v)}
	}
	if v := c.QueryParam("method"); v != "" {
		criteria.Method = lo.ToPtr(payment.Method(v))
	}

	list, err := s.Payments.ListTransactions(c.Request().Context(), criteria)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, list)
}

func (s *Server) getTransaction(c echo.Context) error {
	user := currentUser(c)
	tx, err := s.Payments.GetTransactionFor(c.Request().Context(), c.Param("id"), user.ID, user.IsAdmin())
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, tx)
}

func (s *Server) refundTransaction(c echo.Context) error {
	var req transactionRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	outcome, err := s.Payments.Refund(c.Request().Context(), req.TransactionID)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, outcome)
}

type guestCheckoutRequest struct {
	Email          string `json:"email"`
	SocialUsername string `json:"socialUsername"`
	PaymentMethod  string `json:"paymentMethod"`
	CardToken      string `json:"cardToken"`
	CardholderName string `json:"cardholderName"`
	CryptoType     string `json:"cryptoType"`
	ServiceType    string `json:"serviceType"`
	Quality        string `json:"quality"`
	Quantity       int    `json:"quantity"`
	PostURL        string `json:"postUrl"`
}

func (s *Server) guestCheckout(c echo.Context) error {
	var req guestCheckoutRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	result, err := s.Payments.GuestCheckout(c.Request().Context(), payment.GuestCheckoutRequest{
		Email:          req.Email,
		SocialUsername: req.SocialUsername,
		Method:         payment.GuestMethod(req.PaymentMethod),
		CardToken:      req.CardToken,
		CardholderName: req.CardholderName,
		CryptoType:     req.CryptoType,
		ServiceType:    req.ServiceType,
		Quality:        req.Quality,
		Quantity:       req.Quantity,
		PostURL:        req.PostURL,
	})
	if err != nil {
		return err
	}
	return respond(c, http.StatusCreated, result)
}

func (s *Server) guestPaymentStatus(c echo.Context) error {
	result, err := s.Payments.GuestPaymentStatus(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, redactGuestStatus(result))
}

// redactGuestStatus strips payment details, which carry the buyer's email,
// since anyone holding the transaction id can poll this route.
func redactGuestStatus(result *payment.ProcessResult) *payment.ProcessResult {
	if result == nil || result.Transaction == nil {
		return result
	}
	tx := *result.Transaction
	tx.PaymentDetails = nil
	return &payment.ProcessResult{Transaction: &tx, Order: result.Order}
}
