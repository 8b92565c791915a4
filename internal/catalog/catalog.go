package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"steamwatch/internal/steam"
	"steamwatch/internal/storage"
	logx "steamwatch/pkg/logx"
)

// snapshotDoc is the persisted catalog document: a plain name -> appid map,
// kept hand-editable.
const snapshotDoc = "game_list"

// pagePace is the fixed delay between catalog pages, to stay well inside the
// web API's rate tolerance.
const pagePace = rate.Limit(5) // 5 pages/sec == 200ms apart

// AppLister fetches one page of the full store catalog.
type AppLister interface {
	AppListPage(ctx context.Context, pageSize int, lastAppID int64) (steam.AppPage, error)
}

// Catalog holds the full name<->appid mapping of the store.
//
// It is read-mostly: Sync() rebuilds the whole mapping, lookups are O(1).
// Consumers that need the catalog must wait on AwaitReady() first; the maps
// are empty until the first Sync() attempt has finished (or fallen back to
// the persisted snapshot).
type Catalog struct {
	log      logx.Logger
	lister   AppLister
	store    storage.Store
	pageSize int

	mu     sync.RWMutex
	byName map[string]int64
	byID   map[int64]string

	readyOnce sync.Once
	ready     chan struct{}
}

func New(lister AppLister, store storage.Store, pageSize int, log logx.Logger) *Catalog {
	if log.IsZero() {
		log = logx.Nop()
	}
	if pageSize <= 0 {
		pageSize = 50000
	}
	return &Catalog{
		log:      log,
		lister:   lister,
		store:    store,
		pageSize: pageSize,
		byName:   map[string]int64{},
		byID:     map[int64]string{},
		ready:    make(chan struct{}),
	}
}

// AwaitReady blocks until the first Sync() has finished (successfully or by
// falling back to the persisted snapshot), or the context is cancelled.
func (c *Catalog) AwaitReady(ctx context.Context) error {
	select {
	case <-c.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Catalog) markReady() {
	c.readyOnce.Do(func() { close(c.ready) })
}

// Sync performs a paginated full fetch of the catalog and swaps the in-memory
// mapping on success. On any error mid-sync the fetch is aborted; if the
// in-memory catalog is still empty afterwards, the last persisted snapshot is
// loaded as a fallback. Sync always releases the ready gate before returning.
//
// Duplicate names (or ids) across the listing resolve last-write-wins, in
// page order. The store API does not promise uniqueness and neither do we;
// lookups just see the final winner.
func (c *Catalog) Sync(ctx context.Context) error {
	defer c.markReady()

	c.log.Info("catalog sync started", logx.Int("page_size", c.pageSize))

	limiter := rate.NewLimiter(pagePace, 1)
	byName := map[string]int64{}
	byID := map[int64]string{}

	var (
		lastAppID int64
		pages     int
		syncErr   error
	)
	for {
		if err := limiter.Wait(ctx); err != nil {
			syncErr = err
			break
		}
		page, err := c.lister.AppListPage(ctx, c.pageSize, lastAppID)
		if err != nil {
			syncErr = fmt.Errorf("page %d (cursor %d): %w", pages+1, lastAppID, err)
			break
		}
		pages++
		for _, a := range page.Apps {
			byName[a.Name] = a.AppID
			byID[a.AppID] = a.Name
		}
		c.log.Debug("catalog page fetched",
			logx.Int("page", pages),
			logx.Int("apps_total", len(byName)))
		if !page.HaveMore {
			break
		}
		lastAppID = page.LastAppID
	}

	if syncErr != nil {
		c.log.Error("catalog sync aborted", logx.Err(syncErr), logx.Int("pages", pages))
		if c.Len() == 0 {
			c.loadSnapshotFallback(ctx)
		}
		return syncErr
	}
	if len(byName) == 0 {
		c.log.Warn("catalog sync returned no apps")
		if c.Len() == 0 {
			c.loadSnapshotFallback(ctx)
		}
		return fmt.Errorf("catalog sync: empty listing")
	}

	c.mu.Lock()
	c.byName = byName
	c.byID = byID
	c.mu.Unlock()

	c.persistSnapshot(ctx, byName)
	c.log.Info("catalog sync finished", logx.Int("apps", len(byName)), logx.Int("pages", pages))
	return nil
}

func (c *Catalog) persistSnapshot(ctx context.Context, byName map[string]int64) {
	if c.store == nil {
		return
	}
	b, err := json.MarshalIndent(byName, "", "  ")
	if err != nil {
		c.log.Error("catalog snapshot marshal failed", logx.Err(err))
		return
	}
	if err := c.store.Save(ctx, snapshotDoc, b); err != nil {
		c.log.Error("catalog snapshot save failed", logx.Err(err))
	}
}

func (c *Catalog) loadSnapshotFallback(ctx context.Context) {
	if c.store == nil {
		return
	}
	b, err := c.store.Load(ctx, snapshotDoc)
	if err != nil || len(b) == 0 {
		c.log.Warn("no usable catalog snapshot", logx.Err(err))
		return
	}
	var byName map[string]int64
	if err := json.Unmarshal(b, &byName); err != nil {
		c.log.Warn("catalog snapshot unreadable", logx.Err(err))
		return
	}
	byID := make(map[int64]string, len(byName))
	for name, id := range byName {
		byID[id] = name
	}

	c.mu.Lock()
	c.byName = byName
	c.byID = byID
	c.mu.Unlock()

	c.log.Info("catalog loaded from snapshot", logx.Int("apps", len(byName)))
}

// Name resolves an appid to its catalog name.
func (c *Catalog) Name(appID int64) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	name, ok := c.byID[appID]
	return name, ok
}

// ID resolves an exact catalog name to its appid.
func (c *Catalog) ID(name string) (int64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.byName[name]
	return id, ok
}

// Universe returns a copy of the full name -> appid mapping.
func (c *Catalog) Universe() map[string]int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]int64, len(c.byName))
	for k, v := range c.byName {
		out[k] = v
	}
	return out
}

func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byName)
}
