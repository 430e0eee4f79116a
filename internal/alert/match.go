/*
Package alert matches the day's menu against the users' stored item alerts.
*/
package alert

import (
	"context"

	"github.com/shanehull/terpalert/internal/logging"
	"github.com/shanehull/terpalert/internal/menu"
	"github.com/shanehull/terpalert/internal/types"
)

// UserQuerier is the part of the store the matcher needs.
type UserQuerier interface {
	QueryAlertedUsers(ctx context.Context, itemName string) ([]types.UserRecord, error)
}

// Matches holds the alerted users of one run in first-match order.
type Matches struct {
	users []*types.AlertedUser
	index map[types.UserID]*types.AlertedUser
}

func newMatches() *Matches {
	return &Matches{index: make(map[types.UserID]*types.AlertedUser)}
}

func (m *Matches) add(rec types.UserRecord, item *types.AggregatedItem) {
	u, ok := m.index[rec.ID]
	if !ok {
		u = &types.AlertedUser{UserRecord: rec}
		m.index[rec.ID] = u
		m.users = append(m.users, u)
	}
	for _, existing := range u.Matches {
		if existing.Name == item.Name {
			return
		}
	}
	u.Matches = append(u.Matches, item)
}

// Users returns the alerted users in the order they were first matched.
func (m *Matches) Users() []*types.AlertedUser {
	out := make([]*types.AlertedUser, len(m.users))
	copy(out, m.users)
	return out
}

func (m *Matches) Get(id types.UserID) (*types.AlertedUser, bool) {
	u, ok := m.index[id]
	return u, ok
}

func (m *Matches) Len() int {
	return len(m.users)
}

type Matcher struct {
	store UserQuerier
}

func NewMatcher(store UserQuerier) *Matcher {
	return &Matcher{store: store}
}

// Match queries the alerted users of every menu item in menu order. A failed
// query is reported and the remaining items are still matched. Matching
// stops early, without error, when ctx is cancelled.
func (m *Matcher) Match(ctx context.Context, daily *menu.Menu) (*Matches, []error) {
	logger := logging.FromContext(ctx)
	matches := newMatches()
	var errs []error

	for _, item := range daily.Items() {
		if ctx.Err() != nil {
			logger.Warn("matching interrupted", "error", ctx.Err())
			break
		}

		users, err := m.store.QueryAlertedUsers(ctx, item.Name)
		if err != nil {
			perr := &types.PersistenceError{Op: types.OpQueryAlerts, Item: item.Name, Err: err}
			logger.Error("alert query failed", "item", item.Name, "error", err)
			errs = append(errs, perr)
			continue
		}
		for _, u := range users {
			matches.add(u, item)
		}
	}

	logger.Info("matched alerts", "items", daily.Len(), "users", matches.Len())
	return matches, errs
}
