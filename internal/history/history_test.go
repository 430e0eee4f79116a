package history

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shanehull/terpalert/internal/types"
)

var (
	pizza = &types.AggregatedItem{Name: "Pizza", Halls: []string{"South"}}
	salad = &types.AggregatedItem{Name: "Salad", Halls: []string{"251"}}
)

func clockAt(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func alerted(id types.UserID, items ...*types.AggregatedItem) *types.AlertedUser {
	return &types.AlertedUser{
		UserRecord: types.UserRecord{ID: id, Email: "u@umd.edu", EmailOptIn: true},
		Matches:    items,
	}
}

func TestFilterWithoutHistoryKeepsEverything(t *testing.T) {
	m, err := newManager(context.Background(), t.TempDir(), time.UTC, clockAt(time.Now()))
	require.NoError(t, err)

	users := []*types.AlertedUser{alerted(1, pizza, salad), alerted(2, salad)}
	assert.Equal(t, users, m.FilterNewMatches(users))
}

func TestRecordThenFilterSameDay(t *testing.T) {
	dir := t.TempDir()
	day := time.Date(2024, time.March, 5, 10, 0, 0, 0, time.UTC)

	m, err := newManager(context.Background(), dir, time.UTC, clockAt(day))
	require.NoError(t, err)

	first := []*types.AlertedUser{alerted(1, pizza), alerted(2, salad)}
	results := []types.NotificationResult{
		{UserID: 1, Email: "u@umd.edu"},
		{UserID: 2, Email: "u@umd.edu", Err: errors.New("dispatch failed")},
	}
	require.NoError(t, m.RecordResults(first, results))

	reloaded, err := newManager(context.Background(), dir, time.UTC, clockAt(day.Add(3*time.Hour)))
	require.NoError(t, err)

	second := []*types.AlertedUser{alerted(1, pizza, salad), alerted(2, salad)}
	got := reloaded.FilterNewMatches(second)
	require.Len(t, got, 2)
	assert.Equal(t, types.UserID(1), got[0].ID)
	assert.Equal(t, []*types.AggregatedItem{salad}, got[0].Matches)
	assert.Equal(t, types.UserID(2), got[1].ID, "failed deliveries are retried")
	assert.Len(t, second[0].Matches, 2, "input is not modified")
}

func TestFilterDropsFullyNotifiedUsers(t *testing.T) {
	day := time.Date(2024, time.March, 5, 10, 0, 0, 0, time.UTC)
	m, err := newManager(context.Background(), t.TempDir(), time.UTC, clockAt(day))
	require.NoError(t, err)

	users := []*types.AlertedUser{alerted(1, pizza)}
	require.NoError(t, m.RecordResults(users, []types.NotificationResult{{UserID: 1}}))
	assert.Empty(t, m.FilterNewMatches(users))
}

func TestStaleHistoryIsDiscarded(t *testing.T) {
	dir := t.TempDir()
	day := time.Date(2024, time.March, 5, 10, 0, 0, 0, time.UTC)

	m, err := newManager(context.Background(), dir, time.UTC, clockAt(day))
	require.NoError(t, err)
	users := []*types.AlertedUser{alerted(1, pizza)}
	require.NoError(t, m.RecordResults(users, []types.NotificationResult{{UserID: 1}}))

	nextDay, err := newManager(context.Background(), dir, time.UTC, clockAt(day.AddDate(0, 0, 1)))
	require.NoError(t, err)
	assert.Equal(t, users, nextDay.FilterNewMatches(users))
}

func TestCorruptHistoryStartsFresh(t *testing.T) {
	dir := t.TempDir()
	m, err := newManager(context.Background(), dir, time.UTC, clockAt(time.Now()))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(m.HistoryFilePath(), []byte("{not json"), 0o644))

	m, err = newManager(context.Background(), dir, time.UTC, clockAt(time.Now()))
	require.NoError(t, err)
	users := []*types.AlertedUser{alerted(1, pizza)}
	assert.Equal(t, users, m.FilterNewMatches(users))
}
