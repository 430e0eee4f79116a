// Package postgres implements the store against the web application's
// Postgres database.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shanehull/terpalert/internal/store"
	"github.com/shanehull/terpalert/internal/types"
)

const (
	upsertCatalogQuery = `
		INSERT INTO accounts_menu (item)
		VALUES ($1)
		ON CONFLICT (item) DO UPDATE SET item = EXCLUDED.item
		RETURNING id`

	alertedUsersQuery = `
		SELECT p.id, p.email, p.email_notifications
		FROM accounts_alert a
		JOIN accounts_menu m ON m.id = a.item_id
		JOIN accounts_profile p ON p.id = a.user_id
		WHERE m.item = $1
		GROUP BY p.id, p.email, p.email_notifications
		ORDER BY MIN(a.date_created), p.id`

	authTokenQuery = `SELECT key FROM authtoken_token WHERE user_id = $1`

	hasSnapshotQuery = `
		SELECT EXISTS (
			SELECT 1 FROM accounts_dailymenu WHERE item_id = $1 AND date = $2
		)`
)

// Store wraps a pgx connection pool.
type Store struct {
	pool  *pgxpool.Pool
	halls []types.Hall
}

// New connects to dsn and verifies the connection. halls maps snapshot
// flags onto accounts_dailymenu columns.
func New(ctx context.Context, dsn string, halls []types.Hall) (*Store, error) {
	if _, _, err := store.SnapshotColumns(halls, nil); err != nil {
		return nil, err
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse connection string: %w", err)
	}
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 5 * time.Minute

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &Store{pool: pool, halls: halls}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) UpsertCatalogItem(ctx context.Context, name string) (types.ItemID, error) {
	var id types.ItemID
	if err := s.pool.QueryRow(ctx, upsertCatalogQuery, name).Scan(&id); err != nil {
		return 0, fmt.Errorf("upsert catalog item: %w", err)
	}
	return id, nil
}

func (s *Store) WriteDailySnapshot(ctx context.Context, snap types.Snapshot) error {
	cols, vals, err := store.SnapshotColumns(s.halls, snap.Flags)
	if err != nil {
		return err
	}

	args := make([]any, 0, len(vals)+2)
	args = append(args, snap.ItemID, store.Day(snap.Date))
	for _, v := range vals {
		args = append(args, v)
	}

	if _, err := s.pool.Exec(ctx, snapshotInsert(cols), args...); err != nil {
		return fmt.Errorf("insert daily snapshot: %w", err)
	}
	return nil
}

// snapshotInsert builds the snapshot INSERT with quoted flag columns. Values
// are always bound: $1 item_id, $2 date, then one per column.
func snapshotInsert(cols []string) string {
	names := []string{"item_id", "date"}
	params := []string{"$1", "$2"}
	for i, c := range cols {
		names = append(names, pgx.Identifier{c}.Sanitize())
		params = append(params, fmt.Sprintf("$%d", i+3))
	}
	return fmt.Sprintf("INSERT INTO accounts_dailymenu (%s) VALUES (%s)",
		strings.Join(names, ", "), strings.Join(params, ", "))
}

func (s *Store) HasDailySnapshot(ctx context.Context, itemID types.ItemID, day time.Time) (bool, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx, hasSnapshotQuery, itemID, store.Day(day)).Scan(&exists); err != nil {
		return false, fmt.Errorf("check daily snapshot: %w", err)
	}
	return exists, nil
}

func (s *Store) QueryAlertedUsers(ctx context.Context, itemName string) ([]types.UserRecord, error) {
	rows, err := s.pool.Query(ctx, alertedUsersQuery, itemName)
	if err != nil {
		return nil, fmt.Errorf("query alerted users: %w", err)
	}
	defer rows.Close()

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
	err := s.pool.QueryRow(ctx, authTokenQuery, userID).Scan(&key)
	if errors.Is(err, pgx.ErrNoRows) {
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
