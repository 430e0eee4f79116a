// Package sqlite implements the store on an embedded SQLite database. It
// mirrors the web application's tables for local runs and tests.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/shanehull/terpalert/internal/store"
	"github.com/shanehull/terpalert/internal/types"
)

//go:embed schema.sql
var schema string

type Store struct {
	db    *sql.DB
	halls []types.Hall
}

// Open opens (creating if needed) the database at path and applies the
// schema.
func Open(path string, halls []types.Hall) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	if _, _, err := store.SnapshotColumns(halls, nil); err != nil {
		return nil, err
	}

	dsn := filepath.Clean(path) + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db, halls: halls}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) UpsertCatalogItem(ctx context.Context, name string) (types.ItemID, error) {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts_menu (item) VALUES (?) ON CONFLICT (item) DO NOTHING`, name,
	); err != nil {
		return 0, fmt.Errorf("upsert catalog item: %w", err)
	}

	var id types.ItemID
	if err := s.db.QueryRowContext(ctx, `SELECT id FROM accounts_menu WHERE item = ?`, name).Scan(&id); err != nil {
		return 0, fmt.Errorf("select catalog item: %w", err)
	}
	return id, nil
}

func (s *Store) WriteDailySnapshot(ctx context.Context, snap types.Snapshot) error {
	cols, vals, err := store.SnapshotColumns(s.halls, snap.Flags)
	if err != nil {
		return err
	}

	names := []string{"item_id", "date"}
	args := []any{snap.ItemID, store.Day(snap.Date).Format(store.DateLayout)}
	for i, c := range cols {
		names = append(names, `"`+c+`"`)
		args = append(args, vals[i])
	}
	query := fmt.Sprintf("INSERT INTO accounts_dailymenu (%s) VALUES (%s)",
		strings.Join(names, ", "), strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", "))

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert daily snapshot: %w", err)
	}
	return nil
}

func (s *Store) HasDailySnapshot(ctx context.Context, itemID types.ItemID, day time.Time) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM accounts_dailymenu WHERE item_id = ? AND date = ?)`,
		itemID, store.Day(day).Format(store.DateLayout),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check daily snapshot: %w", err)
	}
	return exists, nil
}

func (s *Store) QueryAlertedUsers(ctx context.Context, itemName string) ([]types.UserRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.email, p.email_notifications
		FROM accounts_alert a
		JOIN accounts_menu m ON m.id = a.item_id
		JOIN accounts_profile p ON p.id = a.user_id
		WHERE m.item = ?
		GROUP BY p.id, p.email, p.email_notifications
		ORDER BY MIN(a.date_created), p.id`, itemName)
	if err != nil {
		return nil, fmt.Errorf("query alerted users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var users []types.UserRecord
	for rows.Next() {
		var u types.UserRecord
		if err := rows.Scan(&u.ID, &u.Email, &u.EmailOptIn); err != nil {
			return nil, fmt.Errorf("scan alerted user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alerted users: %w", err)
	}
	return users, nil
}

func (s *Store) GetAuthToken(ctx context.Context, userID types.UserID) (string, error) {
	var key string
	err := s.db.QueryRowContext(ctx, `SELECT key FROM authtoken_token WHERE user_id = ?`, userID).Scan(&key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", types.ErrTokenNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get auth token: %w", err)
	}
	return key, nil
}

var (
	_ store.Store           = (*Store)(nil)
	_ store.SnapshotChecker = (*Store)(nil)
)
