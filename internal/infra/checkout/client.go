package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"engagement-shop/internal/config"
	"engagement-shop/internal/infra/httpclient"

	"github.com/google/uuid"
)

// Client is a thin REST client for the hosted-payments gateway
type Client struct {
	baseURL             string
	secretKey           string
	processingChannelID string
	http                *httpclient.Client
	logger              *slog.Logger
}

// NewClient creates a new gateway client
func NewClient(cfg config.CheckoutConfig, logger *slog.Logger) *Client {
	return &Client{
		baseURL:             strings.TrimRight(cfg.BaseURL, "/"),
		secretKey:           cfg.SecretKey,
		processingChannelID: cfg.ProcessingChannelID,
		http:                httpclient.New("checkout", cfg.Client, logger),
		logger:              logger,
	}
}

// CreateHostedSession opens a hosted payment page and returns where to send the buyer.
func (c *Client) CreateHostedSession(ctx context.Context, req HostedSessionRequest) (*HostedSession, error) {
	c.logger.Info("Creating hosted payment", "reference", req.Reference, "amount", req.Amount.String())

	body := hostedPaymentBody{
		Amount:              MinorUnits(req.Amount),
		Currency:            req.Currency,
		PaymentType:         "Regular",
		Reference:           req.Reference,
		Description:         req.Description,
		Customer:            req.Customer,
		SuccessURL:          req.SuccessURL,
		FailureURL:          req.FailureURL,
		CancelURL:           req.CancelURL,
		ProcessingChannelID: c.processingChannelID,
		Metadata:            req.Metadata,
	}

	var answer hostedPaymentAnswer
	if _, err := c.call(ctx, "create_hosted_payment", http.MethodPost, "/hosted-payments", body, &answer); err != nil {
		return nil, err
	}

	session := &HostedSession{ID: answer.ID, RedirectURL: answer.Links["redirect"].Href}
	c.logger.Info("Hosted payment created", "reference", req.Reference, "checkout_id", session.ID)
	return session, nil
}

// CreateDirectPayment charges a tokenized card.
func (c *Client) CreateDirectPayment(ctx context.Context, req PaymentRequest) (*Payment, error) {
	if !strings.HasPrefix(req.Token, "tok_") {
		return nil, fmt.Errorf("card token must be a gateway token")
	}

	c.logger.Info("Creating direct payment", "reference", req.Reference, "amount", req.Amount.String())

	body := paymentBody{
		Source:              tokenSource{Type: "token", Token: req.Token},
		Amount:              MinorUnits(req.Amount),
		Currency:            req.Currency,
		PaymentType:         "Regular",
		Reference:           req.Reference,
		Description:         req.Description,
		Capture:             true,
		Customer:            req.Customer,
		ProcessingChannelID: c.processingChannelID,
		Metadata:            req.Metadata,
	}

	var answer paymentAnswer
	raw, err := c.call(ctx, "create_payment", http.MethodPost, "/payments", body, &answer)
	if err != nil {
		return nil, err
	}

	c.logger.Info("Direct payment answered", "reference", req.Reference, "checkout_id", answer.ID, "status", answer.Status)
	return toPayment(answer, raw), nil
}

func (c *Client) GetPaymentDetails(ctx context.Context, paymentID string) (*Payment, error) {
	var answer paymentAnswer
	raw, err := c.call(ctx, "get_payment", http.MethodGet, "/payments/"+url.PathEscape(paymentID), nil, &answer)
	if err != nil {
		return nil, err
	}
	return toPayment(answer, raw), nil
}

// Refund returns minorAmount cents of a captured payment.
func (c *Client) Refund(ctx context.Context, paymentID string, minorAmount int64, reference string) (*Refund, error) {
	c.logger.Info("Refunding payment", "checkout_id", paymentID, "amount_minor", minorAmount)

	var answer refundAnswer
	raw, err := c.call(ctx, "refund", http.MethodPost, "/payments/"+url.PathEscape(paymentID)+"/refunds",
		refundBody{Amount: minorAmount, Reference: reference}, &answer)
	if err != nil {
		return nil, err
	}

	return &Refund{ActionID: answer.ActionID, Reference: answer.Reference, Raw: raw}, nil
}

// call sends body as JSON and decodes a 2xx answer into out. It returns the raw answer too.
func (c *Client) call(ctx context.Context, operation, method, path string, body, out any) (map[string]any, error) {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return nil, fmt.Errorf("encode %s: %w", operation, err)
		}
	}

	// one key for every retry of the same logical call
	idempotencyKey := uuid.NewString()

	resp, err := c.http.Do(ctx, operation, func(ctx context.Context) (*http.Request, error) {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.secretKey)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if method != http.MethodGet {
			req.Header.Set("Cko-Idempotency-Key", idempotencyKey)
		}
		return req, nil
	})
	if err != nil {
		c.logger.Error("Checkout call failed", "operation", operation, "error", err)
		return nil, fmt.Errorf("checkout %s: %w", operation, err)
	}

	if !resp.OK() {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var answer errorAnswer
		if json.Unmarshal(resp.Body, &answer) == nil {
			apiErr.RequestID = answer.RequestID
			apiErr.ErrorType = answer.ErrorType
			apiErr.ErrorCodes = answer.ErrorCodes
		}
		c.logger.Error("Checkout rejected call",
			"operation", operation,
			"status", resp.StatusCode,
			"error_type", apiErr.ErrorType,
			"request_id", apiErr.RequestID,
		)
		return nil, apiErr
	}

	if out != nil && len(resp.Body) > 0 {
		if err := json.Unmarshal(resp.Body, out); err != nil {
			return nil, fmt.Errorf("decode %s: %w", operation, err)
		}
	}
	return decodeRaw(resp.Body), nil
}

func toPayment(answer paymentAnswer, raw map[string]any) *Payment {
	return &Payment{
		ID:        answer.ID,
		Status:    answer.Status,
		Reference: answer.Reference,
		Amount:    FromMinorUnits(answer.Amount),
		Currency:  answer.Currency,
		Raw:       raw,
	}
}
