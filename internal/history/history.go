/*
Package history remembers which alerts were already delivered today, so a
re-run on the same day only sends what is new.
*/
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/shanehull/terpalert/internal/logging"
	"github.com/shanehull/terpalert/internal/types"
)

const (
	historyFileName = "notification_history.json"
	historyDirName  = "terpalert"
)

// History is the on-disk record for one report date. Notified maps a user
// ID to the item names already sent to them.
type History struct {
	ReportDate string                     `json:"report_date"`
	Notified   map[string]map[string]bool `json:"notified"`
}

type Manager struct {
	history         History
	mutex           sync.Mutex
	historyFilePath string
	reportLocation  *time.Location
	now             func() time.Time
}

// NewManager loads today's history from dir, or from the system temp
// directory when dir is empty. A missing, unreadable or stale file starts a
// fresh history.
func NewManager(ctx context.Context, dir string, loc *time.Location) (*Manager, error) {
	return newManager(ctx, dir, loc, time.Now)
}

func newManager(ctx context.Context, dir string, loc *time.Location, now func() time.Time) (*Manager, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), historyDirName)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history directory %s: %w", dir, err)
	}
	if loc == nil {
		loc = time.Local
	}

	m := &Manager{
		historyFilePath: filepath.Join(dir, historyFileName),
		reportLocation:  loc,
		now:             now,
	}
	m.loadHistory(ctx)
	return m, nil
}

func (m *Manager) loadHistory(ctx context.Context) {
	logger := logging.FromContext(ctx).With("path", m.historyFilePath)

	m.mutex.Lock()
	defer m.mutex.Unlock()

	today := m.currentReportDate()
	m.history = History{ReportDate: today, Notified: make(map[string]map[string]bool)}

	data, err := os.ReadFile(m.historyFilePath)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Debug("no notification history, starting fresh")
			return
		}
		logger.Warn("failed to read notification history, starting fresh", "error", err)
		return
	}

	var loaded History
	if err := json.Unmarshal(data, &loaded); err != nil {
		logger.Warn("failed to parse notification history, starting fresh", "error", err)
		return
	}

	if loaded.ReportDate != today {
		logger.Info("notification history is stale, starting fresh", "history_date", loaded.ReportDate, "today", today)
		return
	}
	if loaded.Notified != nil {
		m.history = loaded
	}
	logger.Info("loaded notification history", "users", len(m.history.Notified))
}

func (m *Manager) saveHistory() error {
	data, err := json.MarshalIndent(m.history, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	if err := os.WriteFile(m.historyFilePath, data, 0o644); err != nil {
		return fmt.Errorf("write history file %s: %w", m.historyFilePath, err)
	}
	return nil
}

// FilterNewMatches drops the items each user was already sent today. Users
// left with nothing are dropped; the input is not modified.
func (m *Manager) FilterNewMatches(users []*types.AlertedUser) []*types.AlertedUser {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	out := make([]*types.AlertedUser, 0, len(users))
	for _, u := range users {
		sent := m.history.Notified[userKey(u.ID)]
		if len(sent) == 0 {
			out = append(out, u)
			continue
		}

		fresh := &types.AlertedUser{UserRecord: u.UserRecord}
		for _, item := range u.Matches {
			if !sent[item.Name] {
				fresh.Matches = append(fresh.Matches, item)
			}
		}
		if len(fresh.Matches) > 0 {
			out = append(out, fresh)
		}
	}
	return out
}

// RecordResults marks the items of every successfully notified user as sent
// and saves the history.
func (m *Manager) RecordResults(users []*types.AlertedUser, results []types.NotificationResult) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	byID := make(map[types.UserID]*types.AlertedUser, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}

	for _, r := range results {
		if !r.OK() {
			continue
		}
		u, ok := byID[r.UserID]
		if !ok {
			continue
		}
		key := userKey(u.ID)
		if m.history.Notified[key] == nil {
			m.history.Notified[key] = make(map[string]bool)
		}
		for _, item := range u.Matches {
			m.history.Notified[key][item.Name] = true
		}
	}

	m.history.ReportDate = m.currentReportDate()
	return m.saveHistory()
}

func (m *Manager) HistoryFilePath() string {
	return m.historyFilePath
}

func (m *Manager) currentReportDate() string {
	return m.now().In(m.reportLocation).Format("2006-01-02")
}

func userKey(id types.UserID) string {
	return strconv.FormatInt(int64(id), 10)
}
