// Package store defines the persistence operations the pipeline needs and
// the pieces shared by its backends.
package store

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/shanehull/terpalert/internal/types"
)

// Store is the pipeline's view of the web application's database.
type Store interface {
	// UpsertCatalogItem returns the id for name, inserting it if absent.
	UpsertCatalogItem(ctx context.Context, name string) (types.ItemID, error)
	// WriteDailySnapshot appends one snapshot row.
	WriteDailySnapshot(ctx context.Context, snap types.Snapshot) error
	// QueryAlertedUsers returns every user with an alert on itemName.
	QueryAlertedUsers(ctx context.Context, itemName string) ([]types.UserRecord, error)
	// GetAuthToken returns types.ErrTokenNotFound when the user has none.
	GetAuthToken(ctx context.Context, userID types.UserID) (string, error)
}

// SnapshotChecker is implemented by stores that can tell whether an item
// already has a snapshot row for a day.
type SnapshotChecker interface {
	HasDailySnapshot(ctx context.Context, itemID types.ItemID, day time.Time) (bool, error)
}

// DateLayout is how snapshot days are stored where the column is text.
const DateLayout = "2006-01-02"

var identExpr = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// SnapshotColumns maps the hall table onto snapshot flag columns. Every
// column must be a plain identifier; hall names missing from flags are
// written as false.
func SnapshotColumns(halls []types.Hall, flags map[string]bool) ([]string, []bool, error) {
	cols := make([]string, 0, len(halls))
	vals := make([]bool, 0, len(halls))
	for _, h := range halls {
		if !identExpr.MatchString(h.Column) {
			return nil, nil, fmt.Errorf("invalid snapshot column %q for hall %s", h.Column, h.Name)
		}
		cols = append(cols, h.Column)
		vals = append(vals, flags[h.Name])
	}
	return cols, vals, nil
}

// Flags builds a snapshot's per-hall flags from an aggregated item.
func Flags(halls []types.Hall, item *types.AggregatedItem) map[string]bool {
	flags := make(map[string]bool, len(halls))
	for _, h := range halls {
		flags[h.Name] = item.ServedAt(h.Name)
	}
	return flags
}

// Day is midnight UTC on t's calendar date as seen in t's location.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
