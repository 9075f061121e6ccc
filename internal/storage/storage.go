package storage

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"time"

	"engagement-shop/internal/infra/sqlite3"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	gosqlite "github.com/mattn/go-sqlite3"
)

type storageImpl struct {
	db   *sqlx.DB
	inTx sqlite3.TxManager
	now  func() time.Time
}

func New(db *sqlx.DB) *storageImpl {
	return &storageImpl{
		db:   db,
		inTx: sqlite3.WithTx(db, nil),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *storageImpl) stmpBuilder() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(sq.Question)
}

// fields returns the comma-separated db tags of a row struct.
func fields(data any) string {
	var s string
	r := reflect.TypeOf(data)
	for i := 0; i < r.NumField(); i++ {
		tag := r.Field(i).Tag.Get("db")
		if tag != "" {
			s += tag + ","
		}
	}
	return s[:len(s)-1]
}

// newID returns a 24 hex character id.
func newID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
}

func isUniqueViolation(err error) bool {
	var sqliteErr gosqlite.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == gosqlite.ErrConstraintUnique
}

// utc normalises query arguments; timestamps are stored as UTC text and compared lexically.
func utc(t time.Time) time.Time {
	return t.UTC()
}

func encodeJSON(v map[string]any) (string, error) {
	if v == nil {
		return "{}", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeJSON(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func pageQuery(query sq.SelectBuilder, limit, offset int) sq.SelectBuilder {
	if limit > 0 {
		query = query.Limit(uint64(limit))
	}
	if offset > 0 {
		query = query.Offset(uint64(offset))
	}
	return query
}
