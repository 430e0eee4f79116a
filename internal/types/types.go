package types

import (
	"fmt"
	"strings"
	"time"
)

// UserID is the store-assigned user identifier.
type UserID int64

// ItemID is the store-assigned catalog identifier.
type ItemID int64

type Hall struct {
	Name   string `validate:"required"`
	Code   string `validate:"required"`
	Column string `validate:"required,sqlident"`
}

// ItemSet is a hall's scraped menu. Names are unique and kept in
// first-seen order.
type ItemSet struct {
	order []string
	seen  map[string]struct{}
}

func NewItemSet(names ...string) *ItemSet {
	s := &ItemSet{seen: make(map[string]struct{}, len(names))}
	for _, n := range names {
		s.Add(n)
	}
	return s
}

// Add inserts name and reports whether it was new.
func (s *ItemSet) Add(name string) bool {
	if s.seen == nil {
		s.seen = make(map[string]struct{})
	}
	if _, ok := s.seen[name]; ok {
		return false
	}
	s.seen[name] = struct{}{}
	s.order = append(s.order, name)
	return true
}

func (s *ItemSet) Contains(name string) bool {
	if s == nil {
		return false
	}
	_, ok := s.seen[name]
	return ok
}

func (s *ItemSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// Items returns a copy of the names in insertion order.
func (s *ItemSet) Items() []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// HallMenu pairs a hall name with what it served.
type HallMenu struct {
	Hall  string
	Items *ItemSet
}

type AggregatedItem struct {
	Name  string
	Halls []string
}

// String renders the alert line, e.g. "Pizza at South, Yahentamitsi".
func (i *AggregatedItem) String() string {
	return fmt.Sprintf("%s at %s", i.Name, strings.Join(i.Halls, ", "))
}

// ServedAt reports whether hall appears in the item's hall list.
func (i *AggregatedItem) ServedAt(hall string) bool {
	for _, h := range i.Halls {
		if h == hall {
			return true
		}
	}
	return false
}

type UserRecord struct {
	ID         UserID
	Email      string
	EmailOptIn bool
}

// AlertedUser is a user with the items matched for them during one run.
type AlertedUser struct {
	UserRecord
	Matches []*AggregatedItem
}

// Lines composes one alert line per matched item.
func (u *AlertedUser) Lines() []string {
	lines := make([]string, 0, len(u.Matches))
	for _, m := range u.Matches {
		lines = append(lines, m.String())
	}
	return lines
}

// Snapshot is one daily-snapshot row. Flags is keyed by hall name.
type Snapshot struct {
	ItemID ItemID
	Date   time.Time
	Flags  map[string]bool
}

type NotificationResult struct {
	UserID   UserID
	Email    string
	Response map[string]any
	Err      error
}

func (r NotificationResult) OK() bool {
	return r.Err == nil
}
