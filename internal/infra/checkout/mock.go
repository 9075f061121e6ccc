package checkout

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// MockClient approves everything without calling the gateway. Used with CHECKOUT_MOCK_PAYMENT.
type MockClient struct {
	logger *slog.Logger
}

func NewMockClient(logger *slog.Logger) *MockClient {
	return &MockClient{logger: logger}
}

func (m *MockClient) CreateHostedSession(_ context.Context, req HostedSessionRequest) (*HostedSession, error) {
	id := "hps_mock_" + uuid.NewString()
	m.logger.Info("Mock hosted payment created", "reference", req.Reference, "checkout_id", id)
	return &HostedSession{ID: id, RedirectURL: req.SuccessURL}, nil
}

func (m *MockClient) CreateDirectPayment(_ context.Context, req PaymentRequest) (*Payment, error) {
	return &Payment{
		ID:        "pay_mock_" + uuid.NewString(),
		Status:    StatusCaptured,
		Reference: req.Reference,
		Amount:    req.Amount,
		Currency:  req.Currency,
		Raw:       map[string]any{"mock": true},
	}, nil
}

func (m *MockClient) GetPaymentDetails(_ context.Context, paymentID string) (*Payment, error) {
	return &Payment{ID: paymentID, Status: StatusCaptured, Raw: map[string]any{"mock": true}}, nil
}

func (m *MockClient) Refund(_ context.Context, _ string, minorAmount int64, reference string) (*Refund, error) {
	return &Refund{
		ActionID:  "act_mock_" + uuid.NewString(),
		Reference: reference,
		Raw:       map[string]any{"mock": true, "amount": minorAmount},
	}, nil
}
