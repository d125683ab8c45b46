package imagecache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/cartelera-live/cartelera/internal/metrics"
	"github.com/cartelera-live/cartelera/internal/workers"
)

const (
	// DefaultCapacity bounds the in-memory working set.
	DefaultCapacity = 100
	// DefaultLedgerCeiling is the soft cap on the access-order ledger;
	// crossing it triggers compaction back toward capacity.
	DefaultLedgerCeiling = 150
)

// Materializer turns stored bytes into a locally usable reference plus the
// release hook that revokes it. The default writes a scratch file and
// removes it on release; tests substitute an in-memory one.
type Materializer func(url string, data []byte) (ref string, release func(), err error)

// Options configures a Cache.
type Options struct {
	Capacity      int
	LedgerCeiling int
	Store         BlobStore
	Fetcher       Fetcher
	// ScratchDir receives materialized handles when Materialize is nil.
	ScratchDir  string
	Materialize Materializer
	Logger      *zap.Logger
}

type entry struct {
	ref     string
	release func()
}

// Cache is the two-tier image cache: a strict-LRU in-memory handle table
// bounded at capacity, backed by an unbounded persistent store. Eviction
// always revokes the handle before dropping the map entry.
type Cache struct {
	capacity  int
	ledgerCap int
	store     BlobStore
	fetcher   Fetcher
	material  Materializer
	log       *zap.Logger

	mu       sync.Mutex
	entries  map[string]*entry
	ledger   []string
	inflight map[string][]chan string
}

func New(opts Options) *Cache {
	capacity := opts.Capacity
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	ledgerCap := opts.LedgerCeiling
	if ledgerCap <= capacity {
		ledgerCap = capacity + capacity/2
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	material := opts.Materialize
	if material == nil {
		material = scratchMaterializer(opts.ScratchDir)
	}
	return &Cache{
		capacity:  capacity,
		ledgerCap: ledgerCap,
		store:     opts.Store,
		fetcher:   opts.Fetcher,
		material:  material,
		log:       log,
		entries:   make(map[string]*entry),
		inflight:  make(map[string][]chan string),
	}
}

// PreloadAndCache resolves url to a local reference, consulting the
// in-memory tier, then the persistent tier, then the network. A failed
// fetch degrades to returning url itself so the caller can still attempt a
// direct load; that fallback is a signal, not an error.
//
// Concurrent calls for the same url coalesce onto one fetch; every waiter
// receives the same resulting reference.
func (c *Cache) PreloadAndCache(ctx context.Context, url string) string {
	if url == "" {
		return ""
	}

	c.mu.Lock()
	if e, ok := c.entries[url]; ok {
		c.touch(url)
		c.mu.Unlock()
		metrics.CacheHits.WithLabelValues("memory").Inc()
		return e.ref
	}
	if _, loading := c.inflight[url]; loading {
		ch := make(chan string, 1)
		c.inflight[url] = append(c.inflight[url], ch)
		c.mu.Unlock()
		return <-ch
	}
	c.inflight[url] = nil
	c.mu.Unlock()

	ref := c.load(ctx, url)

	c.mu.Lock()
	waiters := c.inflight[url]
	delete(c.inflight, url)
	c.mu.Unlock()
	for _, ch := range waiters {
		ch <- ref
	}
	return ref
}

// load resolves a miss on the in-memory tier. Runs outside the cache lock;
// only the final insert re-enters it.
func (c *Cache) load(ctx context.Context, url string) string {
	data, err := c.store.Read(url)
	if err == nil {
		metrics.CacheHits.WithLabelValues("persistent").Inc()
		return c.admit(url, data)
	}

	data, err = c.fetcher.Fetch(ctx, url)
	if err != nil {
		metrics.FetchFailures.Inc()
		c.log.Debug("image fetch failed, degrading to remote URL",
			zap.String("url", url), zap.Error(err))
		return url
	}
	if err := c.store.Write(url, data); err != nil {
		// The persistent tier is best-effort; the handle still works.
		c.log.Warn("persisting image failed", zap.String("url", url), zap.Error(err))
	}
	return c.admit(url, data)
}

// admit materializes a handle and inserts it, evicting past capacity.
func (c *Cache) admit(url string, data []byte) string {
	ref, release, err := c.material(url, data)
	if err != nil {
		c.log.Warn("materializing handle failed", zap.String("url", url), zap.Error(err))
		return url
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if prev, ok := c.entries[url]; ok {
		// Lost a race with another insert of the same key; keep the
		// existing handle and revoke the newcomer.
		release()
		c.touch(url)
		return prev.ref
	}

	c.entries[url] = &entry{ref: ref, release: release}
	c.touch(url)
	c.evict()
	return ref
}

// touch records an access. The ledger tolerates duplicates; when it grows
// past the soft ceiling it is compacted back to one slot per live key.
// Caller holds mu.
func (c *Cache) touch(url string) {
	c.ledger = append(c.ledger, url)
	if len(c.ledger) > c.ledgerCap {
		c.compact()
	}
}

// compact rebuilds the ledger keeping only the most recent occurrence of
// each key still in the table, preserving recency order. Caller holds mu.
func (c *Cache) compact() {
	seen := make(map[string]struct{}, len(c.entries))
	fresh := make([]string, 0, len(c.entries))
	for i := len(c.ledger) - 1; i >= 0; i-- {
		key := c.ledger[i]
		if _, live := c.entries[key]; !live {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		fresh = append(fresh, key)
	}
	// fresh is newest-first; flip it back.
	for i, j := 0, len(fresh)-1; i < j; i, j = i+1, j-1 {
		fresh[i], fresh[j] = fresh[j], fresh[i]
	}
	c.ledger = fresh
}

// evict enforces the capacity bound, revoking each victim's handle before
// dropping it. Caller holds mu.
func (c *Cache) evict() {
	if len(c.entries) <= c.capacity {
		return
	}
	c.compact()
	for len(c.entries) > c.capacity && len(c.ledger) > 0 {
		victim := c.ledger[0]
		c.ledger = c.ledger[1:]
		e, ok := c.entries[victim]
		if !ok {
			continue
		}
		e.release()
		delete(c.entries, victim)
		metrics.CacheEvictions.Inc()
		c.log.Debug("evicted image handle", zap.String("url", victim))
	}
}

// Revoke releases one handle and forgets the entry. Used when a single
// image is known stale.
func (c *Cache) Revoke(url string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[url]
	if !ok {
		return
	}
	e.release()
	delete(c.entries, url)
	kept := c.ledger[:0]
	for _, key := range c.ledger {
		if key != url {
			kept = append(kept, key)
		}
	}
	c.ledger = kept
}

// ClearVolatile releases every in-memory handle without touching the
// persistent store; the cross-session cache survives view teardown.
func (c *Cache) ClearVolatile() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		e.release()
	}
	c.entries = make(map[string]*entry)
	c.ledger = nil
}

// ClearPersistent wipes both tiers. Used on logout or full reset.
func (c *Cache) ClearPersistent() error {
	c.ClearVolatile()
	return c.store.Clear()
}

// Len reports the in-memory working set size.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Warm prefetches a batch of URLs through the worker pool, the kiosk's
// menu-load path: every product image is resolved before first paint.
func (c *Cache) Warm(ctx context.Context, urls []string, pool *workers.WorkerPool) {
	for _, u := range urls {
		url := u
		pool.AddJob(func() {
			c.PreloadAndCache(ctx, url)
		})
	}
}

// scratchMaterializer writes handles into dir and deletes them on release.
func scratchMaterializer(dir string) Materializer {
	return func(url string, data []byte) (string, func(), error) {
		if dir == "" {
			dir = filepath.Join(os.TempDir(), "cartelera-images")
		}
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return "", nil, fmt.Errorf("create scratch dir: %w", err)
		}
		path := filepath.Join(dir, blobKey(url))
		if err := os.WriteFile(path, data, 0o640); err != nil {
			return "", nil, fmt.Errorf("write handle: %w", err)
		}
		return path, func() { _ = os.Remove(path) }, nil
	}
}
