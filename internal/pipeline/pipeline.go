/*
Package pipeline runs one scrape-and-notify batch: fetch every hall, merge
the menus, persist the catalog and snapshot, match alerts, and notify.
*/
package pipeline

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/shanehull/terpalert/internal/ai"
	"github.com/shanehull/terpalert/internal/alert"
	"github.com/shanehull/terpalert/internal/logging"
	"github.com/shanehull/terpalert/internal/menu"
	"github.com/shanehull/terpalert/internal/notify"
	"github.com/shanehull/terpalert/internal/store"
	"github.com/shanehull/terpalert/internal/types"
)

// Stages, in order.
const (
	StageFetching    = "fetching"
	StageAggregating = "aggregating"
	StagePersisting  = "persisting"
	StageMatching    = "matching"
	StageNotifying   = "notifying"
	StageDone        = "done"
)

// Snapshot policies.
const (
	SnapshotAppend = "append"
	SnapshotOnce   = "once"
)

// MenuSource fetches today's hall menus.
type MenuSource interface {
	FetchAll(ctx context.Context, halls []types.Hall) []menu.HallResult
	Today() time.Time
}

type Digester interface {
	Digest(ctx context.Context, day time.Time, lines []string) (*ai.Digest, error)
}

// History suppresses alerts already delivered today.
type History interface {
	FilterNewMatches(users []*types.AlertedUser) []*types.AlertedUser
	RecordResults(users []*types.AlertedUser, results []types.NotificationResult) error
}

type Config struct {
	Halls          []types.Hall
	SnapshotPolicy string
	// DryRun stops after aggregation: nothing is written or sent.
	DryRun bool
	// MenuOutput, when set, receives the combined menu printout.
	MenuOutput io.Writer
}

type Pipeline struct {
	cfg      Config
	source   MenuSource
	store    store.Store
	notifier *notify.Notifier
	digester Digester
	history  History
}

type Option func(*Pipeline)

func WithDigester(d Digester) Option {
	return func(p *Pipeline) { p.digester = d }
}

func WithHistory(h History) Option {
	return func(p *Pipeline) { p.history = h }
}

// New builds a pipeline. st and notifier may be nil for dry runs.
func New(cfg Config, source MenuSource, st store.Store, notifier *notify.Notifier, opts ...Option) *Pipeline {
	if cfg.SnapshotPolicy == "" {
		cfg.SnapshotPolicy = SnapshotAppend
	}
	p := &Pipeline{cfg: cfg, source: source, store: st, notifier: notifier}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes one batch. It never returns an error: per-hall, per-item
// and per-user failures are counted in the summary, and cancellation stops
// the run between stages or items.
func (p *Pipeline) Run(ctx context.Context) *RunSummary {
	started := time.Now()
	runID := uuid.NewString()
	logger := logging.FromContext(ctx).With("run_id", runID)
	ctx = logging.WithLogger(ctx, logger)

	day := p.source.Today()
	sum := newSummary(runID, day, p.cfg.DryRun)
	defer func() {
		sum.Duration = time.Since(started).Round(time.Millisecond).String()
		logger.Info("run finished",
			"stage", sum.Stage,
			"cancelled", sum.Cancelled,
			"menu_items", sum.MenuItems,
			"notifications_sent", sum.NotificationsSent,
			"notifications_failed", sum.NotificationsFailed,
			"duration", sum.Duration,
		)
	}()

	logger.Info("run started", "date", sum.Date, "halls", len(p.cfg.Halls), "dry_run", p.cfg.DryRun)

	sum.Stage = StageFetching
	results := p.source.FetchAll(ctx, p.cfg.Halls)
	for _, r := range results {
		sum.addHall(r)
		if r.Err != nil {
			logger.Error("hall fetch failed", "hall", r.Hall.Name, "error", r.Err)
		} else if r.Items.Len() == 0 {
			logger.Warn("hall served no items", "hall", r.Hall.Name)
		}
	}
	if p.interrupted(ctx, sum) {
		return sum
	}

	sum.Stage = StageAggregating
	daily := menu.Aggregate(menu.Served(results))
	sum.MenuItems = daily.Len()
	logger.Info("aggregated menu", "items", daily.Len())
	if p.cfg.MenuOutput != nil {
		fmt.Fprint(p.cfg.MenuOutput, daily.String())
	}
	if p.cfg.DryRun {
		sum.Stage = StageDone
		return sum
	}
	if p.interrupted(ctx, sum) {
		return sum
	}

	sum.Stage = StagePersisting
	p.persist(ctx, day, daily, sum)
	if p.interrupted(ctx, sum) {
		return sum
	}

	sum.Stage = StageMatching
	matches, errs := alert.NewMatcher(p.store).Match(ctx, daily)
	for _, err := range errs {
		sum.addPersistenceError(err)
	}
	sum.MatchedUsers = matches.Len()
	if p.interrupted(ctx, sum) {
		return sum
	}

	sum.Stage = StageNotifying
	p.notify(ctx, day, daily, matches.Users(), sum)
	if p.interrupted(ctx, sum) {
		return sum
	}

	sum.Stage = StageDone
	return sum
}

func (p *Pipeline) interrupted(ctx context.Context, sum *RunSummary) bool {
	if ctx.Err() == nil {
		return false
	}
	sum.Cancelled = true
	logging.FromContext(ctx).Warn("run cancelled", "stage", sum.Stage, "error", ctx.Err())
	return true
}

// persist upserts every menu item and writes its snapshot row. Failures are
// per item and per operation.
func (p *Pipeline) persist(ctx context.Context, day time.Time, daily *menu.Menu, sum *RunSummary) {
	logger := logging.FromContext(ctx)
	checker, canCheck := p.store.(store.SnapshotChecker)
	once := p.cfg.SnapshotPolicy == SnapshotOnce && canCheck
	if p.cfg.SnapshotPolicy == SnapshotOnce && !canCheck {
		logger.Warn("store cannot check existing snapshots, appending")
	}

	for _, item := range daily.Items() {
		if ctx.Err() != nil {
			return
		}

		id, err := p.store.UpsertCatalogItem(ctx, item.Name)
		if err != nil {
			logger.Error("catalog upsert failed", "item", item.Name, "error", err)
			sum.addPersistenceError(&types.PersistenceError{Op: types.OpUpsertCatalog, Item: item.Name, Err: err})
			continue
		}

		if once {
			exists, err := checker.HasDailySnapshot(ctx, id, day)
			if err != nil {
				logger.Error("snapshot check failed", "item", item.Name, "error", err)
				sum.addPersistenceError(&types.PersistenceError{Op: types.OpWriteSnapshot, Item: item.Name, Err: err})
				continue
			}
			if exists {
				sum.SnapshotsSkipped++
				continue
			}
		}

		snap := types.Snapshot{ItemID: id, Date: day, Flags: store.Flags(p.cfg.Halls, item)}
		if err := p.store.WriteDailySnapshot(ctx, snap); err != nil {
			logger.Error("snapshot write failed", "item", item.Name, "error", err)
			sum.addPersistenceError(&types.PersistenceError{Op: types.OpWriteSnapshot, Item: item.Name, Err: err})
			continue
		}
		sum.SnapshotsWritten++
	}

	logger.Info("persisted menu", "snapshots", sum.SnapshotsWritten, "skipped", sum.SnapshotsSkipped)
}

func (p *Pipeline) notify(ctx context.Context, day time.Time, daily *menu.Menu, users []*types.AlertedUser, sum *RunSummary) {
	logger := logging.FromContext(ctx)

	if p.history != nil {
		before := len(users)
		users = p.history.FilterNewMatches(users)
		sum.SuppressedUsers = before - len(users)
	}
	if !anyOptedIn(users) {
		logger.Info("no users to notify")
		return
	}

	notifier := p.notifier
	if p.digester != nil {
		digest, err := p.digester.Digest(ctx, day, daily.Lines())
		if err != nil {
			logger.Warn("menu digest failed, sending without it", "error", err)
		} else {
			notifier = notifier.WithDigest(digest)
		}
	}

	results := notifier.Notify(ctx, users)
	sum.NotificationsSent, sum.NotificationsFailed = notify.Summary(results)

	if p.history != nil {
		if err := p.history.RecordResults(users, results); err != nil {
			logger.Warn("failed to save notification history", "error", err)
		}
	}
}

func anyOptedIn(users []*types.AlertedUser) bool {
	for _, u := range users {
		if u.EmailOptIn {
			return true
		}
	}
	return false
}
