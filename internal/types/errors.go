package types

import (
	"errors"
	"fmt"
)

// ErrTokenNotFound is returned by stores when a user has no auth token.
var ErrTokenNotFound = errors.New("auth token not found")

// FetchError reports a failed menu fetch for one hall.
type FetchError struct {
	Hall       string
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s menu (%s): status %d: %v", e.Hall, e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s menu (%s): %v", e.Hall, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Persistence operations.
const (
	OpUpsertCatalog = "upsert_catalog"
	OpWriteSnapshot = "write_snapshot"
	OpQueryAlerts   = "query_alerts"
)

// PersistenceError reports one failed store operation for one item.
type PersistenceError struct {
	Op   string
	Item string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Op, e.Item, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Notification operations.
const (
	OpGetToken = "get_token"
	OpDispatch = "dispatch"
)

// NotificationError reports a failed notification for one user.
type NotificationError struct {
	UserID UserID
	Email  string
	Op     string
	Err    error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("notify user %d (%s): %s: %v", e.UserID, e.Email, e.Op, e.Err)
}

func (e *NotificationError) Unwrap() error { return e.Err }
