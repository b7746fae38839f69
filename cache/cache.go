// Package cache holds recent query results keyed by a fingerprint of the
// query image, so repeated lookups for the same bytes skip the embedding
// provider and the index entirely.
package cache

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/rutmehta/halo/model"
)

// InvalidationMode controls what happens to cached results when the index
// mutates.
type InvalidationMode int

const (
	// InvalidationStaleOK leaves entries in place on mutation; staleness is
	// bounded by the TTL. This is the default.
	InvalidationStaleOK InvalidationMode = iota

	// InvalidationStrict purges the whole cache on every mutation, so a hit
	// never reflects a pre-mutation index state.
	InvalidationStrict
)

// String implements fmt.Stringer.
func (m InvalidationMode) String() string {
	switch m {
	case InvalidationStrict:
		return "strict"
	default:
		return "stale-ok"
	}
}

// ParseInvalidationMode parses "stale-ok" or "strict".
func ParseInvalidationMode(s string) (InvalidationMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "stale-ok", "stale_ok", "":
		return InvalidationStaleOK, nil
	case "strict":
		return InvalidationStrict, nil
	default:
		return InvalidationStaleOK, fmt.Errorf("unknown invalidation mode: %q", s)
	}
}

// Fingerprint derives the cache key for a query: a SHA-256 over the image
// bytes and the requested k. Identical bytes with the same k always map to
// the same key.
func Fingerprint(image []byte, k int) string {
	h := sha256.New()
	_, _ = h.Write(image)

	var kbuf [8]byte
	binary.BigEndian.PutUint64(kbuf[:], uint64(k))
	_, _ = h.Write(kbuf[:])

	return hex.EncodeToString(h.Sum(nil))
}

// Options configures a ResultCache.
type Options struct {
	// TTL bounds how long an entry may be served after it was stored.
	TTL time.Duration

	// MaxEntries caps the cache size; the least recently used entry is
	// evicted when the cap is exceeded.
	MaxEntries int

	// Mode selects the invalidation behavior on index mutation.
	Mode InvalidationMode
}

// DefaultOptions are the default cache options.
var DefaultOptions = Options{
	TTL:        5 * time.Minute,
	MaxEntries: 1024,
	Mode:       InvalidationStaleOK,
}

// ResultCache is an LRU cache of ranked match lists with TTL expiry and
// singleflight coalescing: concurrent misses on the same key trigger one
// computation, whose result (or error) all waiters share. Errors are never
// cached.
type ResultCache struct {
	mu        sync.Mutex
	opts      Options
	items     map[string]*list.Element
	evictList *list.List
	group     singleflight.Group

	hits   atomic.Int64
	misses atomic.Int64

	now func() time.Time
}

type entry struct {
	key      string
	matches  []model.Match
	storedAt time.Time
}

// New creates a result cache.
func New(optFns ...func(o *Options)) *ResultCache {
	opts := DefaultOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	return &ResultCache{
		opts:      opts,
		items:     make(map[string]*list.Element),
		evictList: list.New(),
		now:       time.Now,
	}
}

// Get returns the cached matches for key, if present and fresh. Expired
// entries are removed on access and count as misses.
func (c *ResultCache) Get(key string) ([]model.Match, bool) {
	matches, ok := c.lookup(key)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return matches, ok
}

// lookup is Get without touching the hit/miss counters, so internal
// double-checks do not inflate the stats.
func (c *ResultCache) lookup(key string) ([]model.Match, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ent, ok := c.items[key]
	if !ok {
		return nil, false
	}

	e := ent.Value.(*entry)
	if c.opts.TTL > 0 && c.now().Sub(e.storedAt) > c.opts.TTL {
		c.removeElement(ent)
		return nil, false
	}

	c.evictList.MoveToFront(ent)
	return e.matches, true
}

// Set stores matches for key, evicting the least recently used entry once
// MaxEntries is exceeded.
func (c *ResultCache) Set(key string, matches []model.Match) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ent, ok := c.items[key]; ok {
		c.evictList.MoveToFront(ent)
		e := ent.Value.(*entry)
		e.matches = matches
		e.storedAt = c.now()
		return
	}

	ent := &entry{key: key, matches: matches, storedAt: c.now()}
	c.items[key] = c.evictList.PushFront(ent)

	for c.opts.MaxEntries > 0 && c.evictList.Len() > c.opts.MaxEntries {
		oldest := c.evictList.Back()
		if oldest == nil {
			break
		}
		c.removeElement(oldest)
	}
}

// GetOrCompute returns the cached matches for key or runs compute once,
// sharing the in-flight result across concurrent callers for the same key.
// The returned flag is true iff the result was served from the cache
// without running (or joining) a computation.
func (c *ResultCache) GetOrCompute(ctx context.Context, key string, compute func(ctx context.Context) ([]model.Match, error)) ([]model.Match, bool, error) {
	if matches, ok := c.Get(key); ok {
		return matches, true, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		// A concurrent computation may have filled the entry between
		// our miss and the flight start. The miss is already counted,
		// so this re-check stays off the books.
		if matches, ok := c.lookup(key); ok {
			return matches, nil
		}

		matches, err := compute(ctx)
		if err != nil {
			return nil, err
		}

		c.Set(key, matches)
		return matches, nil
	})
	if err != nil {
		return nil, false, err
	}

	return v.([]model.Match), false, nil
}

// OnMutation applies the configured invalidation policy after an index
// insert or delete.
func (c *ResultCache) OnMutation() {
	if c.opts.Mode == InvalidationStrict {
		c.Purge()
	}
}

// Purge removes every entry.
func (c *ResultCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*list.Element)
	c.evictList.Init()
}

// Len returns the number of live entries.
func (c *ResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.evictList.Len()
}

// Stats returns hit and miss counters.
func (c *ResultCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *ResultCache) removeElement(e *list.Element) {
	c.evictList.Remove(e)
	delete(c.items, e.Value.(*entry).key)
}
