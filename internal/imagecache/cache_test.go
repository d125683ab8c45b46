package imagecache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/cartelera-live/cartelera/internal/workers"
)

// memStore is an in-memory BlobStore.
type memStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{blobs: make(map[string][]byte)}
}

func (m *memStore) Read(url string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.blobs[url]
	if !ok {
		return nil, os.ErrNotExist
	}
	return data, nil
}

func (m *memStore) Write(url string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[url] = data
	return nil
}

func (m *memStore) Delete(url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, url)
	return nil
}

func (m *memStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs = make(map[string][]byte)
	return nil
}

func (m *memStore) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.blobs)
}

// countingFetcher serves canned bytes and counts network trips.
type countingFetcher struct {
	calls atomic.Int64
	fail  bool
	block chan struct{} // when set, Fetch waits on it
}

func (f *countingFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.calls.Add(1)
	if f.block != nil {
		<-f.block
	}
	if f.fail {
		return nil, errors.New("source unreachable")
	}
	return []byte("bytes:" + url), nil
}

// testMaterializer hands out "ref:" names and counts releases per url.
type testMaterializer struct {
	mu       sync.Mutex
	released map[string]int
}

func newTestMaterializer() *testMaterializer {
	return &testMaterializer{released: make(map[string]int)}
}

func (m *testMaterializer) fn(url string, data []byte) (string, func(), error) {
	return "ref:" + url, func() {
		m.mu.Lock()
		m.released[url]++
		m.mu.Unlock()
	}, nil
}

func (m *testMaterializer) releasedCount(url string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.released[url]
}

func (m *testMaterializer) totalReleased() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, n := range m.released {
		total += n
	}
	return total
}

func newTestCache(capacity int, fetcher Fetcher) (*Cache, *memStore, *testMaterializer) {
	store := newMemStore()
	mat := newTestMaterializer()
	c := New(Options{
		Capacity:    capacity,
		Store:       store,
		Fetcher:     fetcher,
		Materialize: mat.fn,
	})
	return c, store, mat
}

func TestHitAvoidsNetwork(t *testing.T) {
	fetcher := &countingFetcher{}
	c, _, _ := newTestCache(10, fetcher)
	ctx := context.Background()

	first := c.PreloadAndCache(ctx, "http://img/a.png")
	second := c.PreloadAndCache(ctx, "http://img/a.png")

	if first != "ref:http://img/a.png" || second != first {
		t.Errorf("refs = %q, %q", first, second)
	}
	if got := fetcher.calls.Load(); got != 1 {
		t.Errorf("fetch calls = %d, want 1", got)
	}
}

func TestPersistentTierServesAcrossVolatileClear(t *testing.T) {
	fetcher := &countingFetcher{}
	c, store, _ := newTestCache(10, fetcher)
	ctx := context.Background()

	c.PreloadAndCache(ctx, "http://img/a.png")
	if store.size() != 1 {
		t.Fatalf("store size = %d, want 1", store.size())
	}

	c.ClearVolatile()
	if c.Len() != 0 {
		t.Fatalf("Len = %d after ClearVolatile", c.Len())
	}

	// Second resolution comes from the persistent tier, not the network.
	c.PreloadAndCache(ctx, "http://img/a.png")
	if got := fetcher.calls.Load(); got != 1 {
		t.Errorf("fetch calls = %d, want 1 (persistent hit)", got)
	}
}

func TestFallbackReturnsOriginalURL(t *testing.T) {
	fetcher := &countingFetcher{fail: true}
	c, _, _ := newTestCache(10, fetcher)
	ctx := context.Background()

	url := "http://img/broken.png"
	if got := c.PreloadAndCache(ctx, url); got != url {
		t.Errorf("ref = %q, want the original URL", got)
	}
	if c.Len() != 0 {
		t.Errorf("failed fetch inserted an entry")
	}

	// The miss was not cached; the next call tries the network again.
	c.PreloadAndCache(ctx, url)
	if got := fetcher.calls.Load(); got != 2 {
		t.Errorf("fetch calls = %d, want 2", got)
	}
}

func TestEmptyURLShortCircuits(t *testing.T) {
	fetcher := &countingFetcher{}
	c, _, _ := newTestCache(10, fetcher)

	if got := c.PreloadAndCache(context.Background(), ""); got != "" {
		t.Errorf("ref for empty url = %q", got)
	}
	if fetcher.calls.Load() != 0 {
		t.Errorf("empty url reached the fetcher")
	}
}

func TestEvictionBoundAndRevocation(t *testing.T) {
	const capacity = 5
	fetcher := &countingFetcher{}
	c, _, mat := newTestCache(capacity, fetcher)
	ctx := context.Background()

	const total = 12
	for i := 0; i < total; i++ {
		c.PreloadAndCache(ctx, fmt.Sprintf("http://img/%d.png", i))
	}

	if got := c.Len(); got != capacity {
		t.Fatalf("Len = %d, want %d", got, capacity)
	}
	if got := mat.totalReleased(); got != total-capacity {
		t.Errorf("released = %d, want %d", got, total-capacity)
	}
	// Strict LRU with no re-access: the oldest entries went first.
	for i := 0; i < total-capacity; i++ {
		if mat.releasedCount(fmt.Sprintf("http://img/%d.png", i)) != 1 {
			t.Errorf("entry %d not evicted", i)
		}
	}
}

func TestRecentAccessSurvivesEviction(t *testing.T) {
	const capacity = 3
	fetcher := &countingFetcher{}
	c, _, mat := newTestCache(capacity, fetcher)
	ctx := context.Background()

	c.PreloadAndCache(ctx, "http://img/0.png")
	c.PreloadAndCache(ctx, "http://img/1.png")
	c.PreloadAndCache(ctx, "http://img/2.png")

	// Re-touch the oldest; the next admission must evict 1, not 0.
	c.PreloadAndCache(ctx, "http://img/0.png")
	c.PreloadAndCache(ctx, "http://img/3.png")

	if mat.releasedCount("http://img/0.png") != 0 {
		t.Errorf("recently touched entry was evicted")
	}
	if mat.releasedCount("http://img/1.png") != 1 {
		t.Errorf("LRU victim was not evicted")
	}
}

func TestLedgerCompaction(t *testing.T) {
	fetcher := &countingFetcher{}
	store := newMemStore()
	mat := newTestMaterializer()
	c := New(Options{
		Capacity:      4,
		LedgerCeiling: 8,
		Store:         store,
		Fetcher:       fetcher,
		Materialize:   mat.fn,
	})
	ctx := context.Background()

	// Hammer two keys far past the ledger ceiling; duplicates must collapse.
	for i := 0; i < 50; i++ {
		c.PreloadAndCache(ctx, "http://img/a.png")
		c.PreloadAndCache(ctx, "http://img/b.png")
	}

	c.mu.Lock()
	ledgerLen := len(c.ledger)
	c.mu.Unlock()
	if ledgerLen > 8 {
		t.Errorf("ledger length = %d, exceeds ceiling", ledgerLen)
	}
	if c.Len() != 2 {
		t.Errorf("Len = %d, want 2", c.Len())
	}
	if mat.totalReleased() != 0 {
		t.Errorf("hits caused releases")
	}
}

func TestRevoke(t *testing.T) {
	fetcher := &countingFetcher{}
	c, _, mat := newTestCache(10, fetcher)
	ctx := context.Background()

	url := "http://img/stale.png"
	c.PreloadAndCache(ctx, url)
	c.Revoke(url)

	if mat.releasedCount(url) != 1 {
		t.Errorf("revoked handle not released")
	}
	if c.Len() != 0 {
		t.Errorf("Len = %d after revoke", c.Len())
	}
	// Revoking again is a no-op.
	c.Revoke(url)
	if mat.releasedCount(url) != 1 {
		t.Errorf("double revoke released twice")
	}
}

func TestClearPersistentWipesBothTiers(t *testing.T) {
	fetcher := &countingFetcher{}
	c, store, mat := newTestCache(10, fetcher)
	ctx := context.Background()

	c.PreloadAndCache(ctx, "http://img/a.png")
	c.PreloadAndCache(ctx, "http://img/b.png")

	if err := c.ClearPersistent(); err != nil {
		t.Fatalf("ClearPersistent: %v", err)
	}
	if c.Len() != 0 || store.size() != 0 {
		t.Errorf("tiers not empty: mem=%d store=%d", c.Len(), store.size())
	}
	if mat.totalReleased() != 2 {
		t.Errorf("released = %d, want 2", mat.totalReleased())
	}

	// Next resolution goes back to the network.
	c.PreloadAndCache(ctx, "http://img/a.png")
	if got := fetcher.calls.Load(); got != 3 {
		t.Errorf("fetch calls = %d, want 3", got)
	}
}

func TestWarmPrefetchesBatch(t *testing.T) {
	fetcher := &countingFetcher{}
	c, _, _ := newTestCache(20, fetcher)

	urls := make([]string, 8)
	for i := range urls {
		urls[i] = fmt.Sprintf("http://img/warm-%d.png", i)
	}

	pool := workers.NewWorkerPool(4, 16)
	defer pool.Stop()
	c.Warm(context.Background(), urls, pool)
	pool.Wait()

	if got := c.Len(); got != len(urls) {
		t.Errorf("Len = %d, want %d", got, len(urls))
	}
	if got := fetcher.calls.Load(); got != int64(len(urls)) {
		t.Errorf("fetch calls = %d, want %d", got, len(urls))
	}
}

func TestInflightCoalescing(t *testing.T) {
	fetcher := &countingFetcher{block: make(chan struct{})}
	c, _, _ := newTestCache(10, fetcher)
	ctx := context.Background()

	const waiters = 5
	results := make(chan string, waiters)
	var started sync.WaitGroup
	started.Add(waiters)
	for i := 0; i < waiters; i++ {
		go func() {
			started.Done()
			results <- c.PreloadAndCache(ctx, "http://img/slow.png")
		}()
	}
	started.Wait()
	// Let every goroutine reach the cache before releasing the fetch.
	close(fetcher.block)

	want := "ref:http://img/slow.png"
	for i := 0; i < waiters; i++ {
		if got := <-results; got != want {
			t.Errorf("waiter got %q, want %q", got, want)
		}
	}
	if got := fetcher.calls.Load(); got != 1 {
		t.Errorf("fetch calls = %d, want 1 coalesced fetch", got)
	}
}
