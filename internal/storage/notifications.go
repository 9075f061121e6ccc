package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/samber/lo"

	"engagement-shop/internal/stories/notifications"
)

const (
	notificationsTable = "notifications"
	preferencesTable   = "notification_preferences"
)

var (
	notificationRowFields = fields(notificationRow{})
	preferenceRowFields   = fields(preferenceRow{})
)

type notificationRow struct {
	ID          string     `db:"id"`
	UserID      string     `db:"user_id"`
	Type        string     `db:"type"`
	Title       string     `db:"title"`
	Message     string     `db:"message"`
	Read        bool       `db:"read"`
	ReadAt      *time.Time `db:"read_at"`
	Link        *string    `db:"link"`
	RelatedID   *string    `db:"related_id"`
	RelatedKind *string    `db:"related_kind"`
	CreatedAt   time.Time  `db:"created_at"`
}

func (r notificationRow) ToModel() *notifications.Notification {
	return &notifications.Notification{
		ID:          r.ID,
		UserID:      r.UserID,
		Type:        notifications.Type(r.Type),
		Title:       r.Title,
		Message:     r.Message,
		Read:        r.Read,
		ReadAt:      r.ReadAt,
		Link:        r.Link,
		RelatedID:   r.RelatedID,
		RelatedKind: r.RelatedKind,
		CreatedAt:   r.CreatedAt,
	}
}

func (s *storageImpl) CreateNotification(ctx context.Context, n notifications.Notification) (*notifications.Notification, error) {
	id, err := s.insertNotification(ctx, s.db, n)
	if err != nil {
		return nil, err
	}
	return s.GetNotification(ctx, notifications.GetCriteria{ID: &id})
}

// notificationBatchRows keeps a multi-row insert under the sqlite bound variable limit.
const notificationBatchRows = 500

// CreateNotifications inserts a broadcast batch in one transaction, one
// multi-row statement per chunk.
func (s *storageImpl) CreateNotifications(ctx context.Context, list []notifications.Notification) error {
	if len(list) == 0 {
		return nil
	}

	now := s.now()
	for i := range list {
		if list[i].ID == "" {
			list[i].ID = newID()
		}
		if list[i].CreatedAt.IsZero() {
			list[i].CreatedAt = now
		}
	}

	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		for _, chunk := range lo.Chunk(list, notificationBatchRows) {
			builder := s.stmpBuilder().
				Insert(notificationsTable).
				Columns(notificationColumns...)
			for _, n := range chunk {
				builder = builder.Values(notificationValues(n)...)
			}

			q, args, err := builder.ToSql()
			if err != nil {
				return fmt.Errorf("build sql query: %w", err)
			}
			if _, err := tx.ExecContext(ctx, q, args...); err != nil {
				return fmt.Errorf("tx.ExecContext: %w", err)
			}
		}
		return nil
	})
}

var notificationColumns = []string{
	"id", "user_id", "type", "title", "message", "read", "read_at",
	"link", "related_id", "related_kind", "created_at",
}

// notificationValues follows the order of notificationColumns.
func notificationValues(n notifications.Notification) []interface{} {
	return []interface{}{
		n.ID,
		n.UserID,
		string(n.Type),
		n.Title,
		n.Message,
		n.Read,
		n.ReadAt,
		n.Link,
		n.RelatedID,
		n.RelatedKind,
		utc(n.CreatedAt),
	}
}

func (s *storageImpl) insertNotification(ctx context.Context, db sqlx.ExecerContext, n notifications.Notification) (string, error) {
	if n.ID == "" {
		n.ID = newID()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now()
	}

	q, args, err := s.stmpBuilder().
		Insert(notificationsTable).
		Columns(notificationColumns...).
		Values(notificationValues(n)...).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("build sql query: %w", err)
	}

	if _, err := db.ExecContext(ctx, q, args...); err != nil {
		return "", fmt.Errorf("db.ExecContext: %w", err)
	}
	return n.ID, nil
}

func notificationCond(criteria notifications.GetCriteria) sq.Eq {
	cond := sq.Eq{}
	if criteria.ID != nil {
		cond["id"] = *criteria.ID
	}
	if criteria.UserID != nil {
		cond["user_id"] = *criteria.UserID
	}
	return cond
}

func (s *storageImpl) GetNotification(ctx context.Context, criteria notifications.GetCriteria) (*notifications.Notification, error) {
	q, args, err := s.stmpBuilder().
		Select(notificationRowFields).
		From(notificationsTable).
		Where(notificationCond(criteria)).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql query: %w", err)
	}

	var row notificationRow
	if err := s.db.GetContext(ctx, &row, q, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("db.GetContext: %w", err)
	}
	return row.ToModel(), nil
}

func (s *storageImpl) ListNotifications(ctx context.Context, criteria notifications.ListCriteria) ([]*notifications.Notification, error) {
	query := s.stmpBuilder().
		Select(notificationRowFields).
		From(notificationsTable).
		OrderBy("created_at DESC")

	if criteria.UserID != nil {
		query = query.Where(sq.Eq{"user_id": *criteria.UserID})
	}
	if criteria.UnreadOnly {
		query = query.Where(sq.Eq{"read": false})
	}
	if criteria.Type != nil {
		query = query.Where(sq.Eq{"type": string(*criteria.Type)})
	}
	query = pageQuery(query, criteria.Limit, criteria.Offset)

	q, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql query: %w", err)
	}

	var rows []notificationRow
	if err := s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("db.SelectContext: %w", err)
	}

	result := make([]*notifications.Notification, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.ToModel())
	}
	return result, nil
}

func (s *storageImpl) count(ctx context.Context, query sq.SelectBuilder) (int, error) {
	q, args, err := query.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build sql query: %w", err)
	}
	var n int
	if err := s.db.GetContext(ctx, &n, q, args...); err != nil {
		return 0, fmt.Errorf("db.GetContext: %w", err)
	}
	return n, nil
}

func (s *storageImpl) CountNotificationsSince(ctx context.Context, userID string, since time.Time) (int, error) {
	return s.count(ctx, s.stmpBuilder().
		Select("COUNT(*)").
		From(notificationsTable).
		Where(sq.Eq{"user_id": userID}).
		Where(sq.GtOrEq{"created_at": utc(since)}))
}

func (s *storageImpl) CountUnread(ctx context.Context, userID string) (int, error) {
	return s.count(ctx, s.stmpBuilder().
		Select("COUNT(*)").
		From(notificationsTable).
		Where(sq.Eq{"user_id": userID, "read": false}))
}

// MarkNotificationsRead only touches unread rows so read_at keeps the first read time.
func (s *storageImpl) MarkNotificationsRead(ctx context.Context, criteria notifications.GetCriteria, readAt time.Time) (int64, error) {
	cond := notificationCond(criteria)
	cond["read"] = false

	q, args, err := s.stmpBuilder().
		Update(notificationsTable).
		Set("read", true).
		Set("read_at", utc(readAt)).
		Where(cond).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build sql query: %w", err)
	}

	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("db.ExecContext: %w", err)
	}
	return res.RowsAffected()
}

func (s *storageImpl) DeleteNotifications(ctx context.Context, criteria notifications.DeleteCriteria) (int64, error) {
	cond := sq.Eq{}
	if criteria.ID != nil {
		cond["id"] = *criteria.ID
	}
	if criteria.UserID != nil {
		cond["user_id"] = *criteria.UserID
	}
	if len(cond) == 0 {
		return 0, fmt.Errorf("delete notifications: empty criteria")
	}

	q, args, err := s.stmpBuilder().
		Delete(notificationsTable).
		Where(cond).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build sql query: %w", err)
	}

	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("db.ExecContext: %w", err)
	}
	return res.RowsAffected()
}

type preferenceRow struct {
	UserID        string    `db:"user_id"`
	OrderUpdates  bool      `db:"order_updates"`
	Payments      bool      `db:"payments"`
	Support       bool      `db:"support"`
	Promotions    bool      `db:"promotions"`
	System        bool      `db:"system"`
	InApp         bool      `db:"in_app"`
	Email         bool      `db:"email"`
	Push          bool      `db:"push"`
	Frequency     string    `db:"frequency"`
	QuietEnabled  bool      `db:"quiet_enabled"`
	QuietStart    string    `db:"quiet_start"`
	QuietEnd      string    `db:"quiet_end"`
	QuietTimezone string    `db:"quiet_timezone"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

func (r preferenceRow) ToModel() *notifications.Preference {
	return &notifications.Preference{
		UserID:       r.UserID,
		OrderUpdates: r.OrderUpdates,
		Payments:     r.Payments,
		Support:      r.Support,
		Promotions:   r.Promotions,
		System:       r.System,
		InApp:        r.InApp,
		Email:        r.Email,
		Push:         r.Push,
		Frequency:    notifications.Frequency(r.Frequency),
		QuietHours: notifications.QuietHours{
			Enabled:  r.QuietEnabled,
			Start:    r.QuietStart,
			End:      r.QuietEnd,
			Timezone: r.QuietTimezone,
		},
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func (s *storageImpl) GetPreference(ctx context.Context, userID string) (*notifications.Preference, error) {
	q, args, err := s.stmpBuilder().
		Select(preferenceRowFields).
		From(preferencesTable).
		Where(sq.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql query: %w", err)
	}

	var row preferenceRow
	if err := s.db.GetContext(ctx, &row, q, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("db.GetContext: %w", err)
	}
	return row.ToModel(), nil
}

func (s *storageImpl) UpsertPreference(ctx context.Context, pref notifications.Preference) (*notifications.Preference, error) {
	now := s.now()
	q, args, err := s.stmpBuilder().
		Insert(preferencesTable).
		SetMap(map[string]interface{}{
			"user_id":        pref.UserID,
			"order_updates":  pref.OrderUpdates,
			"payments":       pref.Payments,
			"support":        pref.Support,
			"promotions":     pref.Promotions,
			"system":         pref.System,
			"in_app":         pref.InApp,
			"email":          pref.Email,
			"push":           pref.Push,
			"frequency":      string(pref.Frequency),
			"quiet_enabled":  pref.QuietHours.Enabled,
			"quiet_start":    pref.QuietHours.Start,
			"quiet_end":      pref.QuietHours.End,
			"quiet_timezone": pref.QuietHours.Timezone,
			"created_at":     now,
			"updated_at":     now,
		}).
		Suffix(`ON CONFLICT (user_id) DO UPDATE SET
			order_updates = excluded.order_updates,
			payments = excluded.payments,
			support = excluded.support,
			promotions = excluded.promotions,
			system = excluded.system,
			in_app = excluded.in_app,
			email = excluded.email,
			push = excluded.push,
			frequency = excluded.frequency,
			quiet_enabled = excluded.quiet_enabled,
			quiet_start = excluded.quiet_start,
			quiet_end = excluded.quiet_end,
			quiet_timezone = excluded.quiet_timezone,
			updated_at = excluded.updated_at`).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql query: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return nil, fmt.Errorf("db.ExecContext: %w", err)
	}
	return s.GetPreference(ctx, pref.UserID)
}

func (s *storageImpl) DeletePreference(ctx context.Context, userID string) error {
	q, args, err := s.stmpBuilder().
		Delete(preferencesTable).
		Where(sq.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build sql query: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("db.ExecContext: %w", err)
	}
	return nil
}
