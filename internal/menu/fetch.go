/*
Package menu scrapes dining hall menu pages and merges them into one
menu for the day.
*/
package menu

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/net/html"

	"github.com/shanehull/terpalert/internal/logging"
	"github.com/shanehull/terpalert/internal/types"
)

const (
	menuTag   = "a"
	menuClass = "menu-item-name"

	defaultTimeout = 20 * time.Second
)

// Fetcher retrieves and parses one hall's menu page for today.
type Fetcher struct {
	baseURL        string
	client         *http.Client
	location       *time.Location
	now            func() time.Time
	userAgent      string
	maxAttempts    uint
	initialBackoff time.Duration
}

type Option func(*Fetcher)

// WithClient replaces the HTTP client. The client's TLS settings are used
// as given.
func WithClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

func WithClock(now func() time.Time) Option {
	return func(f *Fetcher) { f.now = now }
}

func WithLocation(loc *time.Location) Option {
	return func(f *Fetcher) { f.location = loc }
}

func WithUserAgent(ua string) Option {
	return func(f *Fetcher) { f.userAgent = ua }
}

// WithRetry bounds the attempts per fetch and sets the first backoff delay.
func WithRetry(maxAttempts uint, initial time.Duration) Option {
	return func(f *Fetcher) {
		f.maxAttempts = maxAttempts
		f.initialBackoff = initial
	}
}

func NewFetcher(baseURL string, timeout time.Duration, opts ...Option) *Fetcher {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	f := &Fetcher{
		baseURL:        strings.TrimRight(baseURL, "/"),
		client:         newClient(timeout),
		location:       time.Local,
		now:            time.Now,
		maxAttempts:    3,
		initialBackoff: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.maxAttempts == 0 {
		f.maxAttempts = 1
	}
	return f
}

func newClient(timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// MenuURL builds the menu page URL for hall on day. Month and day are not
// zero padded, the site expects e.g. dtdate=3/5/2024.
func (f *Fetcher) MenuURL(hall types.Hall, day time.Time) string {
	return fmt.Sprintf("%s/?locationNum=%s&dtdate=%d/%d/%d",
		f.baseURL, url.QueryEscape(hall.Code), int(day.Month()), day.Day(), day.Year())
}

// Today is the current calendar day in the fetcher's time zone.
func (f *Fetcher) Today() time.Time {
	return f.now().In(f.location)
}

// Fetch returns the deduplicated item names on hall's menu today. A page
// without menu items yields an empty set and no error.
func (f *Fetcher) Fetch(ctx context.Context, hall types.Hall) (*types.ItemSet, error) {
	logger := logging.FromContext(ctx).With("hall", hall.Name)
	menuURL := f.MenuURL(hall, f.Today())

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = f.initialBackoff

	items, err := backoff.Retry(ctx, func() (*types.ItemSet, error) {
		return f.fetchOnce(ctx, hall, menuURL)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(f.maxAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Warn("menu fetch failed, retrying", "error", err, "retry_in", next)
		}),
	)
	if err != nil {
		var fe *types.FetchError
		if errors.As(err, &fe) {
			return nil, fe
		}
		return nil, &types.FetchError{Hall: hall.Name, URL: menuURL, Err: err}
	}

	logger.Debug("fetched menu", "url", menuURL, "items", items.Len())
	return items, nil
}

func (f *Fetcher) fetchOnce(ctx context.Context, hall types.Hall, menuURL string) (*types.ItemSet, error) {
	fail := func(status int, err error) *types.FetchError {
		return &types.FetchError{Hall: hall.Name, URL: menuURL, StatusCode: status, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, menuURL, nil)
	if err != nil {
		return nil, backoff.Permanent(fail(0, fmt.Errorf("build request: %w", err)))
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(fail(0, err))
		}
		return nil, fail(0, fmt.Errorf("failed to fetch URL: %w", err))
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			logging.FromContext(ctx).Warn("failed to close response body", "url", menuURL, "error", cerr)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := fail(resp.StatusCode, errors.New("received non-OK status code"))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, err
		}
		return nil, backoff.Permanent(err)
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return nil, fail(resp.StatusCode, fmt.Errorf("failed to parse HTML: %w", err))
	}

	return extractMenuItems(doc), nil
}

// extractMenuItems collects the text of every menu item anchor in document
// order.
func extractMenuItems(doc *html.Node) *types.ItemSet {
	items := types.NewItemSet()

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == menuTag && hasClass(n, menuClass) {
			if name := normalizeSpace(extractText(n)); name != "" {
				items.Add(name)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return items
}

func hasClass(n *html.Node, class string) bool {
	for _, attr := range n.Attr {
		if attr.Key != "class" {
			continue
		}
		for _, c := range strings.Fields(attr.Val) {
			if c == class {
				return true
			}
		}
	}
	return false
}

func extractText(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(extractText(c))
	}
	return sb.String()
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Hall fetch outcomes.
const (
	StatusOK     = "ok"
	StatusEmpty  = "empty"
	StatusFailed = "failed"
)

// HallResult is one hall's fetch outcome.
type HallResult struct {
	Hall  types.Hall
	Items *types.ItemSet
	Err   error
}

func (r HallResult) Status() string {
	switch {
	case r.Err != nil:
		return StatusFailed
	case r.Items.Len() == 0:
		return StatusEmpty
	default:
		return StatusOK
	}
}

// FetchAll fetches every hall concurrently. Results keep the order of halls;
// a failed hall carries its error and does not affect the others.
func (f *Fetcher) FetchAll(ctx context.Context, halls []types.Hall) []HallResult {
	results := make([]HallResult, len(halls))

	var wg sync.WaitGroup
	for i, h := range halls {
		wg.Add(1)
		go func(i int, h types.Hall) {
			defer wg.Done()
			items, err := f.Fetch(ctx, h)
			results[i] = HallResult{Hall: h, Items: items, Err: err}
		}(i, h)
	}
	wg.Wait()

	return results
}

// Served drops failed halls and returns the rest in order, ready for
// Aggregate.
func Served(results []HallResult) []types.HallMenu {
	menus := make([]types.HallMenu, 0, len(results))
	for _, r := range results {
		if r.Err != nil {
			continue
		}
		menus = append(menus, types.HallMenu{Hall: r.Hall.Name, Items: r.Items})
	}
	return menus
}
