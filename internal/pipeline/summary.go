package pipeline

import (
	"errors"
	"time"

	"github.com/shanehull/terpalert/internal/menu"
	"github.com/shanehull/terpalert/internal/store"
	"github.com/shanehull/terpalert/internal/types"
)

type HallSummary struct {
	Hall   string `json:"hall"`
	Status string `json:"status"`
	Items  int    `json:"items"`
	Error  string `json:"error,omitempty"`
}

// RunSummary is the outcome of one run, printed as JSON by the command.
type RunSummary struct {
	RunID               string         `json:"run_id"`
	Date                string         `json:"date"`
	DryRun              bool           `json:"dry_run,omitempty"`
	Stage               string         `json:"stage"`
	Cancelled           bool           `json:"cancelled"`
	Halls               []HallSummary  `json:"halls"`
	MenuItems           int            `json:"menu_items"`
	SnapshotsWritten    int            `json:"snapshots_written"`
	SnapshotsSkipped    int            `json:"snapshots_skipped,omitempty"`
	PersistenceFailures map[string]int `json:"persistence_failures,omitempty"`
	MatchedUsers        int            `json:"matched_users"`
	SuppressedUsers     int            `json:"suppressed_users,omitempty"`
	NotificationsSent   int            `json:"notifications_sent"`
	NotificationsFailed int            `json:"notifications_failed"`
	Duration            string         `json:"duration"`
}

func newSummary(runID string, day time.Time, dryRun bool) *RunSummary {
	return &RunSummary{
		RunID:               runID,
		Date:                day.Format(store.DateLayout),
		DryRun:              dryRun,
		PersistenceFailures: make(map[string]int),
	}
}

func (s *RunSummary) addHall(r menu.HallResult) {
	hs := HallSummary{Hall: r.Hall.Name, Status: r.Status(), Items: r.Items.Len()}
	if r.Err != nil {
		hs.Error = r.Err.Error()
	}
	s.Halls = append(s.Halls, hs)
}

func (s *RunSummary) addPersistenceError(err error) {
	var perr *types.PersistenceError
	if errors.As(err, &perr) {
		s.PersistenceFailures[perr.Op]++
		return
	}
	s.PersistenceFailures["unknown"]++
}

// FailedHalls counts halls whose fetch failed.
func (s *RunSummary) FailedHalls() int {
	n := 0
	for _, h := range s.Halls {
		if h.Status == menu.StatusFailed {
			n++
		}
	}
	return n
}

// HasFailures reports whether any hall, item or user failed. The command
// exits non-zero when it does.
func (s *RunSummary) HasFailures() bool {
	if s.FailedHalls() > 0 || s.NotificationsFailed > 0 {
		return true
	}
	for _, n := range s.PersistenceFailures {
		if n > 0 {
			return true
		}
	}
	return false
}
