package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"engagement-shop/internal/stories/orders"
	"engagement-shop/internal/stories/payment"
)

const (
	transactionsTable  = "transactions"
	webhookEventsTable = "webhook_events"
)

var transactionRowFields = fields(transactionRow{})

type transactionRow struct {
	ID                   string          `db:"id"`
	UserID               string          `db:"user_id"`
	OrderID              *string         `db:"order_id"`
	Type                 string          `db:"type"`
	Amount               decimal.Decimal `db:"amount"`
	Fee                  decimal.Decimal `db:"fee"`
	NetAmount            decimal.Decimal `db:"net_amount"`
	Currency             string          `db:"currency"`
	PaymentMethod        string          `db:"payment_method"`
	Status               string          `db:"status"`
	Reference            string          `db:"reference"`
	ExternalReference    *string         `db:"external_reference"`
	RelatedTransactionID *string         `db:"related_transaction_id"`
	Description          string          `db:"description"`
	PaymentDetails       string          `db:"payment_details"`
	CreatedAt            time.Time       `db:"created_at"`
	UpdatedAt            time.Time       `db:"updated_at"`
}

func (r transactionRow) ToModel() *payment.Transaction {
	return &payment.Transaction{
		ID:                   r.ID,
		UserID:               r.UserID,
		OrderID:              r.OrderID,
		Type:                 payment.Type(r.Type),
		Amount:               r.Amount,
		Fee:                  r.Fee,
		NetAmount:            r.NetAmount,
		Currency:             r.Currency,
		PaymentMethod:        payment.Method(r.PaymentMethod),
		Status:               payment.Status(r.Status),
		Reference:            r.Reference,
		ExternalReference:    r.ExternalReference,
		RelatedTransactionID: r.RelatedTransactionID,
		Description:          r.Description,
		PaymentDetails:       decodeJSON(r.PaymentDetails),
		CreatedAt:            r.CreatedAt,
		UpdatedAt:            r.UpdatedAt,
	}
}

func (s *storageImpl) CreateTransaction(ctx context.Context, tx payment.Transaction) (*payment.Transaction, error) {
	id, err := s.insertTransaction(ctx, s.db, tx)
	if err != nil {
		return nil, err
	}
	return s.GetTransaction(ctx, payment.GetCriteria{ID: &id})
}

func (s *storageImpl) insertTransaction(ctx context.Context, db sqlx.ExecerContext, tx payment.Transaction) (string, error) {
	tx.RecomputeNet()
	details, err := encodeJSON(tx.PaymentDetails)
	if err != nil {
		return "", fmt.Errorf("encode payment details: %w", err)
	}

	id := newID()
	now := s.now()
	params := map[string]interface{}{
		"id":                     id,
		"user_id":                tx.UserID,
		"order_id":               tx.OrderID,
		"type":                   string(tx.Type),
		"amount":                 tx.Amount,
		"fee":                    tx.Fee,
		"net_amount":             tx.NetAmount,
		"currency":               tx.Currency,
		"payment_method":         string(tx.PaymentMethod),
		"status":                 string(tx.Status),
		"reference":              tx.Reference,
		"external_reference":     tx.ExternalReference,
		"related_transaction_id": tx.RelatedTransactionID,
		"description":            tx.Description,
		"payment_details":        details,
		"created_at":             now,
		"updated_at":             now,
	}

	q, args, err := s.stmpBuilder().
		Insert(transactionsTable).
		SetMap(params).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("build sql query: %w", err)
	}

	if _, err := db.ExecContext(ctx, q, args...); err != nil {
		return "", fmt.Errorf("db.ExecContext: %w", err)
	}
	return id, nil
}

// transactionCond turns criteria into an equality filter; empty criteria match every row.
func transactionCond(criteria payment.GetCriteria) sq.Eq {
	cond := sq.Eq{}
	if criteria.ID != nil {
		cond["id"] = *criteria.ID
	}
	if criteria.Reference != nil {
		cond["reference"] = *criteria.Reference
	}
	if criteria.ExternalReference != nil {
		cond["external_reference"] = *criteria.ExternalReference
	}
	if criteria.OrderID != nil {
		cond["order_id"] = *criteria.OrderID
	}
	if criteria.Type != nil {
		cond["type"] = string(*criteria.Type)
	}
	if criteria.Status != nil {
		cond["status"] = string(*criteria.Status)
	}
	return cond
}

func (s *storageImpl) GetTransaction(ctx context.Context, criteria payment.GetCriteria) (*payment.Transaction, error) {
	query := s.stmpBuilder().
		Select(transactionRowFields).
		From(transactionsTable).
		OrderBy("created_at DESC").
		Where(transactionCond(criteria)).
		Limit(1)

	q, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql query: %w", err)
	}

	var row transactionRow
	if err := s.db.GetContext(ctx, &row, q, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("db.GetContext: %w", err)
	}

	return row.ToModel(), nil
}

func (s *storageImpl) UpdateTransaction(ctx context.Context, criteria payment.GetCriteria, params payment.UpdateParams) (*payment.Transaction, error) {
	query := s.stmpBuilder().
		Update(transactionsTable).
		Set("updated_at", s.now()).
		Where(transactionCond(criteria))

	if params.Status != nil {
		query = query.Set("status", string(*params.Status))
	}
	if params.ExternalReference != nil {
		query = query.Set("external_reference", *params.ExternalReference)
	}
	if params.PaymentDetails != nil {
		details, err := encodeJSON(params.PaymentDetails)
		if err != nil {
			return nil, fmt.Errorf("encode payment details: %w", err)
		}
		query = query.Set("payment_details", details)
	}

	q, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql query: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return nil, fmt.Errorf("db.ExecContext: %w", err)
	}

	// the new status or reference may no longer match the criteria
	if criteria.ID != nil {
		return s.GetTransaction(ctx, payment.GetCriteria{ID: criteria.ID})
	}
	return s.GetTransaction(ctx, criteria)
}

func (s *storageImpl) ListTransactions(ctx context.Context, criteria payment.ListCriteria) ([]*payment.Transaction, error) {
	query := s.stmpBuilder().
		Select(transactionRowFields).
		From(transactionsTable).
		OrderBy("created_at DESC")

	if criteria.UserID != nil {
		query = query.Where(sq.Eq{"user_id": *criteria.UserID})
	}
	if criteria.OrderID != nil {
		query = query.Where(sq.Eq{"order_id": *criteria.OrderID})
	}
	if criteria.Type != nil {
		query = query.Where(sq.Eq{"type": string(*criteria.Type)})
	}
	if len(criteria.Statuses) > 0 {
		statuses := make([]string, 0, len(criteria.Statuses))
		for _, st := range criteria.Statuses {
			statuses = append(statuses, string(st))
		}
		query = query.Where(sq.Eq{"status": statuses})
	}
	if criteria.Method != nil {
		query = query.Where(sq.Eq{"payment_method": string(*criteria.Method)})
	}
	if criteria.WithExternalReference {
		query = query.Where(sq.NotEq{"external_reference": nil})
	}
	if criteria.CreatedBefore != nil {
		query = query.Where(sq.Lt{"created_at": utc(*criteria.CreatedBefore)})
	}
	query = pageQuery(query, criteria.Limit, criteria.Offset)

	q, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql query: %w", err)
	}

	var rows []transactionRow
	if err := s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("db.SelectContext: %w", err)
	}

	result := make([]*payment.Transaction, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.ToModel())
	}
	return result, nil
}

var errNotRefundable = errors.New("transaction is no longer completed")

// ApplyRefund marks the original refunded, records the refund row and refunds the order atomically.
func (s *storageImpl) ApplyRefund(ctx context.Context, write payment.RefundWrite) (*payment.RefundOutcome, error) {
	details, err := encodeJSON(write.OriginalDetails)
	if err != nil {
		return nil, fmt.Errorf("encode payment details: %w", err)
	}

	var refundID string
	err = s.inTx(ctx, func(tx *sqlx.Tx) error {
		now := s.now()

		q, args, err := s.stmpBuilder().
			Update(transactionsTable).
			Set("status", string(payment.StatusRefunded)).
			Set("payment_details", details).
			Set("updated_at", now).
			Where(sq.Eq{"id": write.OriginalID, "status": string(payment.StatusCompleted)}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build sql query: %w", err)
		}
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return fmt.Errorf("update original: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("result.RowsAffected: %w", err)
		} else if n != 1 {
			return errNotRefundable
		}

		refundID, err = s.insertTransaction(ctx, tx, write.Refund)
		if err != nil {
			return fmt.Errorf("insert refund: %w", err)
		}

		if write.OrderID == nil {
			return nil
		}
		q, args, err = s.stmpBuilder().
			Update(ordersTable).
			Set("status", string(orders.StatusRefunded)).
			Set("payment_status", string(orders.PaymentRefunded)).
			Set("updated_at", now).
			Where(sq.Eq{"id": *write.OrderID}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build sql query: %w", err)
		}
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("update order: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	original, err := s.GetTransaction(ctx, payment.GetCriteria{ID: &write.OriginalID})
	if err != nil {
		return nil, err
	}
	refund, err := s.GetTransaction(ctx, payment.GetCriteria{ID: &refundID})
	if err != nil {
		return nil, err
	}
	return &payment.RefundOutcome{Original: original, Refund: refund}, nil
}

// SaveWebhookEvent relies on the (provider, event_id) unique key; false means already seen.
func (s *storageImpl) SaveWebhookEvent(ctx context.Context, event payment.WebhookEvent) (bool, error) {
	q, args, err := s.stmpBuilder().
		Insert(webhookEventsTable).
		Options("OR IGNORE").
		SetMap(map[string]interface{}{
			"id":              newID(),
			"provider":        event.Provider,
			"event_id":        event.EventID,
			"event_type":      event.EventType,
			"signature_valid": event.SignatureValid,
			"processed_at":    utc(event.ProcessedAt),
		}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build sql query: %w", err)
	}

	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return false, fmt.Errorf("db.ExecContext: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("result.RowsAffected: %w", err)
	}
	return n == 1, nil
}
