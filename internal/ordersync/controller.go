// Package ordersync keeps the local order cache consistent with the
// backend across intermittent connectivity. Pages are fetched on demand
// and merged into the store; fetch failures leave the cache untouched so
// stale orders stay readable offline.
package ordersync

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tabshare/ordercore/internal/metrics"
	"github.com/tabshare/ordercore/internal/models"
)

// Fetcher lists order pages from the backend.
type Fetcher interface {
	ListOrders(ctx context.Context, page int) (orders []models.Order, hasMore bool, err error)
}

// Upserter merges fetched orders into the local cache.
type Upserter interface {
	UpsertOrders(ctx context.Context, orders []models.Order) error
}

// DefaultFreshFor is how long a refresh result is considered fresh.
// A non-forced Refresh inside this window is a no-op.
const DefaultFreshFor = 30 * time.Second

// Controller coordinates paginated fetches into the local order store.
//
// Ordering: every Refresh bumps a monotonically increasing request token
// and each in-flight fetch captures the token it started under. A result
// arriving under a stale token is discarded, so a late page can never
// overwrite data from a newer refresh. At most one fetch per page is in
// flight; a second request for the same page is coalesced into a no-op.
type Controller struct {
	api      Fetcher
	store    Upserter
	freshFor time.Duration
	now      func() time.Time

	mu          sync.Mutex
	token       uint64
	inflight    map[int]bool
	nextPage    int
	hasMore     bool
	lastRefresh time.Time
	err         error
}

// New creates a controller over the given backend client and cache.
func New(api Fetcher, store Upserter) *Controller {
	return &Controller{
		api:      api,
		store:    store,
		freshFor: DefaultFreshFor,
		now:      time.Now,
		inflight: make(map[int]bool),
	}
}

// Refresh fetches page 1 and replaces the pagination cursor. force
// bypasses the freshness window. A refresh supersedes any in-flight
// older page fetch; the older result is discarded when it lands.
func (c *Controller) Refresh(ctx context.Context, force bool) error {
	c.mu.Lock()
	if c.inflight[1] {
		// A page-1 fetch is already running; coalesce.
		c.mu.Unlock()
		return nil
	}
	if !force && !c.lastRefresh.IsZero() && c.now().Sub(c.lastRefresh) < c.freshFor {
		c.mu.Unlock()
		return nil
	}
	c.token++
	token := c.token
	c.inflight[1] = true
	c.mu.Unlock()

	orders, hasMore, err := c.api.ListOrders(ctx, 1)
	return c.apply(ctx, 1, token, orders, hasMore, err)
}

// LoadMore fetches the next page. A no-op when the last fetched page was
// the final one; a Refresh resets the cursor.
func (c *Controller) LoadMore(ctx context.Context) error {
	c.mu.Lock()
	if !c.hasMore {
		c.mu.Unlock()
		return nil
	}
	page := c.nextPage
	if c.inflight[page] {
		c.mu.Unlock()
		return nil
	}
	token := c.token
	c.inflight[page] = true
	c.mu.Unlock()

	orders, hasMore, err := c.api.ListOrders(ctx, page)
	return c.apply(ctx, page, token, orders, hasMore, err)
}

func (c *Controller) apply(ctx context.Context, page int, token uint64, orders []models.Order, hasMore bool, err error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.inflight, page)
	if token != c.token {
		// A newer refresh superseded this fetch; discard the result.
		slog.Debug("Discarding superseded page fetch", "page", page)
		return nil
	}
	if err != nil {
		// Stale-but-available: the cache keeps whatever it had.
		c.err = err
		metrics.OrderFetchErrors.Inc()
		slog.Warn("Order page fetch failed", "page", page, "error", err)
		return err
	}

	if err := c.store.UpsertOrders(ctx, orders); err != nil {
		c.err = err
		slog.Error("Failed to cache fetched orders", "page", page, "error", err)
		return err
	}

	c.err = nil
	c.hasMore = hasMore
	c.nextPage = page + 1
	if page == 1 {
		c.lastRefresh = c.now()
	}
	metrics.OrdersFetched.Add(float64(len(orders)))
	slog.Debug("Merged order page", "page", page, "orders", len(orders), "has_more", hasMore)
	return nil
}

// HasMore reports whether another page can be loaded.
func (c *Controller) HasMore() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasMore
}

// Err returns the error from the most recent fetch, or nil after a
// successful one. A non-nil value never implies cached data was lost.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}
