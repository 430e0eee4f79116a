/*
Package notify delivers menu alerts to users. A Notifier fans out over the
alerted users and hands each composed message to a Dispatcher.
*/
package notify

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/shanehull/terpalert/internal/ai"
	"github.com/shanehull/terpalert/internal/logging"
	"github.com/shanehull/terpalert/internal/types"
)

// Message is one user's notification for the day.
type Message struct {
	Email  string     `json:"email"`
	Lines  []string   `json:"alerts"`
	Digest *ai.Digest `json:"digest,omitempty"`
}

// Dispatcher delivers a message and returns the transport's response.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg Message, token string) (map[string]any, error)
}

// TokenSource looks up a user's API token.
type TokenSource interface {
	GetAuthToken(ctx context.Context, userID types.UserID) (string, error)
}

const (
	defaultConcurrency = 4
	defaultTimeout     = 15 * time.Second
)

type Notifier struct {
	tokens      TokenSource
	dispatcher  Dispatcher
	limiter     *rate.Limiter
	concurrency int
	timeout     time.Duration
	digest      *ai.Digest
}

type Option func(*Notifier)

func WithConcurrency(n int) Option {
	return func(nt *Notifier) { nt.concurrency = n }
}

// WithRate limits dispatches to perSecond across all workers.
func WithRate(perSecond float64) Option {
	return func(nt *Notifier) {
		if perSecond > 0 {
			nt.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithTimeout bounds one user's token lookup plus dispatch.
func WithTimeout(d time.Duration) Option {
	return func(nt *Notifier) { nt.timeout = d }
}

func NewNotifier(tokens TokenSource, dispatcher Dispatcher, opts ...Option) *Notifier {
	n := &Notifier{
		tokens:      tokens,
		dispatcher:  dispatcher,
		limiter:     rate.NewLimiter(rate.Inf, 1),
		concurrency: defaultConcurrency,
		timeout:     defaultTimeout,
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.concurrency < 1 {
		n.concurrency = 1
	}
	return n
}

// WithDigest returns a copy of n that attaches d to every message. An empty
// digest is ignored.
func (n *Notifier) WithDigest(d *ai.Digest) *Notifier {
	c := *n
	c.digest = nil
	if !d.Empty() {
		c.digest = d
	}
	return &c
}

// Notify sends one message per opted-in user and returns their results in
// user order. Opted-out users produce no result. Users not yet started when
// ctx is cancelled are dropped; a dispatch already underway runs to
// completion under its own timeout.
func (n *Notifier) Notify(ctx context.Context, users []*types.AlertedUser) []types.NotificationResult {
	results := make([]*types.NotificationResult, len(users))

	var g errgroup.Group
	g.SetLimit(n.concurrency)

	for i, u := range users {
		if !u.EmailOptIn {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := n.limiter.Wait(ctx); err != nil {
				return nil
			}
			res := n.notifyOne(ctx, u)
			results[i] = &res
			return nil
		})
	}
	_ = g.Wait()

	out := make([]types.NotificationResult, 0, len(users))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}

func (n *Notifier) notifyOne(parent context.Context, u *types.AlertedUser) types.NotificationResult {
	logger := logging.FromContext(parent).With("user_id", u.ID)
	res := types.NotificationResult{UserID: u.ID, Email: u.Email}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), n.timeout)
	defer cancel()

	token, err := n.tokens.GetAuthToken(ctx, u.ID)
	if err != nil {
		res.Err = &types.NotificationError{UserID: u.ID, Email: u.Email, Op: types.OpGetToken, Err: err}
		logger.Error("token lookup failed", "error", err)
		return res
	}

	msg := Message{Email: u.Email, Lines: u.Lines(), Digest: n.digest}
	resp, err := n.dispatcher.Dispatch(ctx, msg, token)
	if err != nil {
		res.Err = &types.NotificationError{UserID: u.ID, Email: u.Email, Op: types.OpDispatch, Err: err}
		logger.Error("notification failed", "alerts", len(msg.Lines), "error", err)
		return res
	}

	res.Response = resp
	logger.Info("notification sent", "alerts", len(msg.Lines))
	return res
}

// Summary counts sent and failed results.
func Summary(results []types.NotificationResult) (sent, failed int) {
	for _, r := range results {
		if r.OK() {
			sent++
		} else {
			failed++
		}
	}
	return sent, failed
}
