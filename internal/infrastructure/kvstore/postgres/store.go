package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/riskibarqy/fantasy-livefeed/internal/platform/querybuilder"
)

const (
	kvTable      = "kv_entries"
	upsertSuffix = "ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()"
)

// kvEntry is the insert shape; updated_at comes from the column default.
type kvEntry struct {
	Key   string `db:"key"`
	Value string `db:"value"`
}

// Store keeps pipeline state blobs in the kv_entries table.
type Store struct {
	db *sqlx.DB
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	query, args, err := selectValueQuery(key)
	if err != nil {
		return nil, false, fmt.Errorf("build select kv entry query: %w", err)
	}

	var value []byte
	if err := s.db.GetContext(ctx, &value, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("select kv entry key=%s: %w", key, err)
	}
	return value, true, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	query, args, err := upsertValueQuery(key, value)
	if err != nil {
		return fmt.Errorf("build upsert kv entry query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert kv entry key=%s: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	query, args, err := deleteValueQuery(key)
	if err != nil {
		return fmt.Errorf("build delete kv entry query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete kv entry key=%s: %w", key, err)
	}
	return nil
}

func selectValueQuery(key string) (string, []any, error) {
	return querybuilder.Select("value").
		From(kvTable).
		Where(querybuilder.Eq("key", key)).
		Limit(1).
		ToSQL()
}

// The value travels as text so postgres coerces it into the jsonb column.
func upsertValueQuery(key string, value []byte) (string, []any, error) {
	return querybuilder.InsertModel(kvTable, kvEntry{Key: key, Value: string(value)}, upsertSuffix)
}

func deleteValueQuery(key string) (string, []any, error) {
	return querybuilder.DeleteFrom(kvTable).
		Where(querybuilder.Eq("key", key)).
		ToSQL()
}
