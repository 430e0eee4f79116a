package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shanehull/terpalert/internal/types"
)

var halls = []types.Hall{
	{Name: "South", Code: "16", Column: "south"},
	{Name: "Yahentamitsi", Code: "19", Column: "yahentamitsi"},
	{Name: "251", Code: "51", Column: "two_fifty_one"},
}

func openTempStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "terpalert.db"), halls)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seed(t *testing.T, s *Store, stmts ...string) {
	t.Helper()
	for _, q := range stmts {
		_, err := s.db.Exec(q)
		require.NoError(t, err, q)
	}
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open("  ", halls)
	require.Error(t, err)
}

func TestOpenIsRepeatable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "terpalert.db")
	s, err := Open(path, halls)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path, halls)
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestUpsertCatalogItemIsIdempotent(t *testing.T) {
	s := openTempStore(t)
	ctx := context.Background()

	first, err := s.UpsertCatalogItem(ctx, "Pizza")
	require.NoError(t, err)
	second, err := s.UpsertCatalogItem(ctx, "Pizza")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	other, err := s.UpsertCatalogItem(ctx, "pizza")
	require.NoError(t, err)
	assert.NotEqual(t, first, other, "catalog keys are exact text")

	var n int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM accounts_menu`).Scan(&n))
	assert.Equal(t, 2, n)
}

func TestWriteDailySnapshotSouthOnly(t *testing.T) {
	s := openTempStore(t)
	ctx := context.Background()

	id, err := s.UpsertCatalogItem(ctx, "Salad")
	require.NoError(t, err)

	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	day := time.Date(2024, time.March, 5, 21, 0, 0, 0, ny)

	has, err := s.HasDailySnapshot(ctx, id, day)
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, s.WriteDailySnapshot(ctx, types.Snapshot{
		ItemID: id,
		Date:   day,
		Flags:  map[string]bool{"South": true, "Yahentamitsi": false, "251": false},
	}))

	var (
		date                string
		south, yahen, two51 bool
	)
	require.NoError(t, s.db.QueryRow(
		`SELECT date, south, yahentamitsi, two_fifty_one FROM accounts_dailymenu WHERE item_id = ?`, id,
	).Scan(&date, &south, &yahen, &two51))
	assert.Equal(t, "2024-03-05", date)
	assert.True(t, south)
	assert.False(t, yahen)
	assert.False(t, two51)

	has, err = s.HasDailySnapshot(ctx, id, day)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestWriteDailySnapshotAppends(t *testing.T) {
	s := openTempStore(t)
	ctx := context.Background()

	id, err := s.UpsertCatalogItem(ctx, "Pizza")
	require.NoError(t, err)
	day := time.Date(2024, time.March, 5, 0, 0, 0, 0, time.UTC)
	snap := types.Snapshot{ItemID: id, Date: day, Flags: map[string]bool{"South": true, "Yahentamitsi": true}}

	require.NoError(t, s.WriteDailySnapshot(ctx, snap))
	require.NoError(t, s.WriteDailySnapshot(ctx, snap))

	var n int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM accounts_dailymenu WHERE item_id = ?`, id).Scan(&n))
	assert.Equal(t, 2, n)
}

func TestWriteDailySnapshotUnknownItem(t *testing.T) {
	s := openTempStore(t)
	err := s.WriteDailySnapshot(context.Background(), types.Snapshot{
		ItemID: 999,
		Date:   time.Now(),
		Flags:  map[string]bool{"South": true},
	})
	require.Error(t, err)
}

func TestQueryAlertedUsers(t *testing.T) {
	s := openTempStore(t)
	ctx := context.Background()

	pizza, err := s.UpsertCatalogItem(ctx, "Pizza")
	require.NoError(t, err)
	require.Equal(t, types.ItemID(1), pizza)
	_, err = s.UpsertCatalogItem(ctx, "Salad")
	require.NoError(t, err)

	seed(t, s,
		`INSERT INTO accounts_profile (id, email, email_notifications) VALUES (1, 'a@umd.edu', 1), (2, 'b@umd.edu', 0), (3, 'c@umd.edu', 1)`,
		`INSERT INTO accounts_alert (user_id, item_id, date_created) VALUES
			(3, 1, '2024-01-02T00:00:00Z'),
			(1, 1, '2024-01-01T00:00:00Z'),
			(1, 1, '2024-02-01T00:00:00Z'),
			(2, 2, '2024-01-01T00:00:00Z')`,
	)

	users, err := s.QueryAlertedUsers(ctx, "Pizza")
	require.NoError(t, err)
	assert.Equal(t, []types.UserRecord{
		{ID: 1, Email: "a@umd.edu", EmailOptIn: true},
		{ID: 3, Email: "c@umd.edu", EmailOptIn: true},
	}, users)

	users, err = s.QueryAlertedUsers(ctx, "Salad")
	require.NoError(t, err)
	assert.Equal(t, []types.UserRecord{{ID: 2, Email: "b@umd.edu", EmailOptIn: false}}, users)

	users, err = s.QueryAlertedUsers(ctx, "Tacos' OR '1'='1")
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestGetAuthToken(t *testing.T) {
	s := openTempStore(t)
	seed(t, s,
		`INSERT INTO accounts_profile (id, email) VALUES (1, 'a@umd.edu'), (2, 'b@umd.edu')`,
		`INSERT INTO authtoken_token (key, user_id) VALUES ('9944b09199c62bcf9418ad846dd0e4bbdfc6ee4b', 1)`,
	)

	tok, err := s.GetAuthToken(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "9944b09199c62bcf9418ad846dd0e4bbdfc6ee4b", tok)

	_, err = s.GetAuthToken(context.Background(), 2)
	assert.ErrorIs(t, err, types.ErrTokenNotFound)
}

func TestCancelledContext(t *testing.T) {
	s := openTempStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.UpsertCatalogItem(ctx, "Pizza")
	require.Error(t, err)
}
