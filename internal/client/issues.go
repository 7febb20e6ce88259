package client

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
)

// CacheSnapshot is an immutable view of an IssueCache.
type CacheSnapshot struct {
	Issues  []Issue
	Loading bool
	// Loaded is true once a fetch for the current session has completed.
	Loaded bool
	Err    error
}

// IssueCache holds the issue list for the current session. It fetches the
// list once when the session becomes authenticated, drops it when the
// session ends, and applies local edits after each successful write.
type IssueCache struct {
	api     *API
	session *Session

	mu      sync.Mutex
	issues  []Issue
	loading bool
	loaded  bool
	err     error
	// gen increments whenever the session ends. A fetch started under an
	// older generation has its result discarded.
	gen     uint64
	token   string
	cancel  context.CancelFunc
	subs    map[int]func(CacheSnapshot)
	nextID  int
	fetches sync.WaitGroup

	unsubscribe func()
}

// NewIssueCache returns a cache that follows session.
func NewIssueCache(api *API, session *Session) *IssueCache {
	c := &IssueCache{
		api:     api,
		session: session,
		subs:    make(map[int]func(CacheSnapshot)),
	}
	c.unsubscribe = session.Subscribe(c.onSession)
	return c
}

// Close stops following the session and waits for any fetch to finish.
func (c *IssueCache) Close() {
	c.unsubscribe()
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()
	c.fetches.Wait()
}

// Wait blocks until no fetch is in flight.
func (c *IssueCache) Wait() {
	c.fetches.Wait()
}

// Snapshot returns the current state.
func (c *IssueCache) Snapshot() CacheSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Subscribe registers fn for cache changes and immediately delivers the
// current state. The returned function removes the subscription.
func (c *IssueCache) Subscribe(fn func(CacheSnapshot)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	current := c.snapshotLocked()
	c.mu.Unlock()

	fn(current)

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
		})
	}
}

func (c *IssueCache) onSession(Snapshot) {
	// Deliveries can interleave when the session changes concurrently, so
	// act on the latest state rather than the delivered one.
	s := c.session.Snapshot()
	if s.Status == StatusAuthenticated {
		c.mu.Lock()
		if c.token == s.Token && (c.loading || c.loaded) {
			c.mu.Unlock()
			return
		}
		c.resetLocked()
		c.token = s.Token
		c.startFetchLocked()
		c.publishLocked()
		return
	}

	c.mu.Lock()
	c.resetLocked()
	c.publishLocked()
}

// Refresh refetches the list for the current session.
func (c *IssueCache) Refresh() error {
	c.mu.Lock()
	if c.token == "" {
		c.mu.Unlock()
		return ErrNotAuthenticated
	}
	c.gen++
	if c.cancel != nil {
		c.cancel()
	}
	c.startFetchLocked()
	c.publishLocked()
	return nil
}

// resetLocked drops cached data and invalidates any fetch in flight.
func (c *IssueCache) resetLocked() {
	c.gen++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.issues = nil
	c.loading = false
	c.loaded = false
	c.err = nil
	c.token = ""
}

func (c *IssueCache) startFetchLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.loading = true
	gen := c.gen

	c.fetches.Add(1)
	go func() {
		defer c.fetches.Done()
		defer cancel()
		c.fetch(ctx, gen)
	}()
}

func (c *IssueCache) fetch(ctx context.Context, gen uint64) {
	var issues []Issue
	err := c.session.Do(ctx, func(ctx context.Context, token string) error {
		var err error
		issues, err = c.api.ListIssues(ctx, token)
		return err
	})

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		slog.Debug("discarding stale issue fetch")
		return
	}
	if errors.Is(err, context.Canceled) {
		c.mu.Unlock()
		return
	}
	c.loading = false
	c.cancel = nil
	if err != nil {
		c.err = err
	} else {
		c.issues = issues
		c.loaded = true
		c.err = nil
	}
	c.publishLocked()
}

// Create creates an issue and prepends it to the cached list.
func (c *IssueCache) Create(ctx context.Context, in IssueInput) (Issue, error) {
	gen := c.generation()
	var created Issue
	err := c.session.Do(ctx, func(ctx context.Context, token string) error {
		var err error
		created, err = c.api.CreateIssue(ctx, token, in)
		return err
	})
	if err != nil {
		return Issue{}, err
	}

	c.splice(gen, func(issues []Issue) []Issue {
		return append([]Issue{created}, issues...)
	})
	return created, nil
}

// Update applies a partial update and replaces the cached copy.
func (c *IssueCache) Update(ctx context.Context, id string, in IssueInput) (Issue, error) {
	gen := c.generation()
	var updated Issue
	err := c.session.Do(ctx, func(ctx context.Context, token string) error {
		var err error
		updated, err = c.api.UpdateIssue(ctx, token, id, in)
		return err
	})
	if err != nil {
		return Issue{}, err
	}

	c.splice(gen, func(issues []Issue) []Issue {
		for i := range issues {
			if issues[i].ID == updated.ID {
				issues[i] = updated
			}
		}
		return issues
	})
	return updated, nil
}

// Delete removes an issue from the server and the cached list.
func (c *IssueCache) Delete(ctx context.Context, id string) error {
	gen := c.generation()
	err := c.session.Do(ctx, func(ctx context.Context, token string) error {
		return c.api.DeleteIssue(ctx, token, id)
	})
	if err != nil {
		return err
	}

	c.splice(gen, func(issues []Issue) []Issue {
		return slices.DeleteFunc(issues, func(i Issue) bool { return i.ID == id })
	})
	return nil
}

// Get returns an issue from the server. The cache is not consulted so the
// result always reflects the latest stored state.
func (c *IssueCache) Get(ctx context.Context, id string) (Issue, error) {
	var issue Issue
	err := c.session.Do(ctx, func(ctx context.Context, token string) error {
		var err error
		issue, err = c.api.GetIssue(ctx, token, id)
		return err
	})
	return issue, err
}

func (c *IssueCache) generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// splice edits the cached list unless the session changed since gen.
func (c *IssueCache) splice(gen uint64, edit func([]Issue) []Issue) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.issues = edit(slices.Clone(c.issues))
	c.publishLocked()
}

func (c *IssueCache) snapshotLocked() CacheSnapshot {
	return CacheSnapshot{
		Issues:  slices.Clone(c.issues),
		Loading: c.loading,
		Loaded:  c.loaded,
		Err:     c.err,
	}
}

// publishLocked releases c.mu before notifying subscribers.
func (c *IssueCache) publishLocked() {
	snap := c.snapshotLocked()
	subs := make([]func(CacheSnapshot), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	publish(snap, subs)
}
