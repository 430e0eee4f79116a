package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/shanehull/terpalert/internal/ai"
	"github.com/shanehull/terpalert/internal/config"
	"github.com/shanehull/terpalert/internal/history"
	"github.com/shanehull/terpalert/internal/logging"
	"github.com/shanehull/terpalert/internal/menu"
	"github.com/shanehull/terpalert/internal/notify"
	"github.com/shanehull/terpalert/internal/pipeline"
	"github.com/shanehull/terpalert/internal/store"
	"github.com/shanehull/terpalert/internal/store/postgres"
	"github.com/shanehull/terpalert/internal/store/sqlite"
)

var (
	dryRun        = flag.Bool("dry-run", false, "(-n) Fetch and print today's menu without touching the store or sending anything")
	printMenu     = flag.Bool("print-menu", false, "(-m) Print the combined menu to stdout")
	ignoreHistory = flag.Bool("ignore-history", false, "Send every match even if it was already sent today")
	transport     = flag.String("transport", "", "Notification transport: api or smtp (default: NOTIFY_TRANSPORT)")
)

func init() {
	flag.BoolVar(dryRun, "n", false, "(-n) Fetch and print today's menu without touching the store or sending anything (shorthand)")
	flag.BoolVar(printMenu, "m", false, "(-m) Print the combined menu to stdout (shorthand)")

	flag.Usage = func() {
		flagSet := flag.CommandLine
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0])

		order := []string{"dry-run", "print-menu", "ignore-history", "transport"}
		for _, name := range order {
			f := flagSet.Lookup(name)
			if f != nil {
				fmt.Fprintf(os.Stderr, "  -%s\n", f.Name)
				fmt.Fprintf(os.Stderr, "    %s\n", f.Usage)
			}
		}
		fmt.Fprintln(os.Stderr, "\nEverything else is configured through the environment or a .env file.")
	}
}

func main() {
	flag.Parse()
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error loading config: %v\n", err)
		return 2
	}
	if *transport != "" {
		cfg.Notify.Transport = *transport
		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
			return 2
		}
	}

	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.WithLogger(ctx, logger)

	fetcher := menu.NewFetcher(cfg.MenuBaseURL, cfg.Fetch.Timeout,
		menu.WithLocation(cfg.Location),
		menu.WithUserAgent(cfg.Fetch.UserAgent),
		menu.WithRetry(cfg.Fetch.MaxAttempts, cfg.Fetch.InitialBackoff),
	)

	pcfg := pipeline.Config{
		Halls:          cfg.Halls,
		SnapshotPolicy: cfg.Store.SnapshotPolicy,
		DryRun:         *dryRun,
	}
	if *printMenu || *dryRun {
		pcfg.MenuOutput = os.Stdout
	}

	var (
		st       store.Store
		notifier *notify.Notifier
		opts     []pipeline.Option
	)
	if !*dryRun {
		var closeStore func()
		st, closeStore, err = openStore(ctx, cfg)
		if err != nil {
			logger.Error("failed to open store", "driver", cfg.Store.Driver, "error", err)
			return 2
		}
		defer closeStore()

		notifier = notify.NewNotifier(st, newDispatcher(cfg),
			notify.WithConcurrency(cfg.Notify.Concurrency),
			notify.WithRate(cfg.Notify.RatePerSecond),
			notify.WithTimeout(cfg.Notify.Timeout),
		)

		if cfg.Notify.UseHistory && !*ignoreHistory {
			h, err := history.NewManager(ctx, cfg.Notify.HistoryDir, cfg.Location)
			if err != nil {
				logger.Error("failed to set up notification history", "error", err)
				return 2
			}
			opts = append(opts, pipeline.WithHistory(h))
		}

		if cfg.AI.APIKey != "" {
			d, err := ai.NewDigester(ctx, cfg.AI.APIKey, cfg.AI.Model)
			if err != nil {
				logger.Warn("menu digest disabled", "error", err)
			} else {
				opts = append(opts, pipeline.WithDigester(d))
			}
		}
	}

	summary := pipeline.New(pcfg, fetcher, st, notifier, opts...).Run(ctx)

	summaryOut := io.Writer(os.Stdout)
	if pcfg.MenuOutput != nil {
		summaryOut = os.Stderr
	}
	enc := json.NewEncoder(summaryOut)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		logger.Error("failed to write run summary", "error", err)
	}

	if summary.Cancelled || summary.HasFailures() {
		return 1
	}
	return 0
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, func(), error) {
	switch cfg.Store.Driver {
	case config.DriverSQLite:
		s, err := sqlite.Open(cfg.Store.SQLitePath, cfg.Halls)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	default:
		s, err := postgres.New(ctx, cfg.Store.DatabaseURL, cfg.Halls)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	}
}

func newDispatcher(cfg *config.Config) notify.Dispatcher {
	if cfg.Notify.Transport == config.TransportSMTP {
		return notify.NewEmailSender(notify.EmailConfig{
			SMTPServer: cfg.SMTP.Server,
			SMTPPort:   cfg.SMTP.Port,
			SMTPUser:   cfg.SMTP.User,
			SMTPPass:   cfg.SMTP.Pass,
			FromEmail:  cfg.SMTP.FromEmail,
		}, notify.NewHTMLEmailRenderer())
	}
	return notify.NewAPIDispatcher(cfg.Notify.APIURL, cfg.Notify.Timeout,
		notify.WithAPIRetry(cfg.Notify.MaxAttempts, cfg.Fetch.InitialBackoff),
	)
}
