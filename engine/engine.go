// Package engine coordinates the embedding provider, vector index, metadata
// store and result cache into the ingestion and query pipelines.
//
// The index and the metadata store are kept in lockstep: whenever a face ID
// is visible in the index, its metadata record exists, and vice versa. All
// mutations hold the coordinator's write lock; reads (search, size, stats)
// share its read lock, so they run concurrently with each other and are
// blocked at most for one in-flight mutation or snapshot load.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rutmehta/halo/cache"
	"github.com/rutmehta/halo/distance"
	"github.com/rutmehta/halo/embedding"
	"github.com/rutmehta/halo/index"
	"github.com/rutmehta/halo/metadata"
	"github.com/rutmehta/halo/model"
)

// ErrClosed is returned by operations on a closed coordinator.
var ErrClosed = errors.New("engine: closed")

// ErrInconsistency reports a face that was visible in one of the two stores
// but not the other. It should never occur; when it does, the affected entry
// is dropped and the condition is logged.
type ErrInconsistency struct {
	ID model.FaceID
}

func (e *ErrInconsistency) Error() string {
	return fmt.Sprintf("index/metadata inconsistency for face %d", e.ID)
}

// Options configures a Coordinator.
type Options struct {
	// TopKDefault is used when Query is called with k <= 0.
	TopKDefault int

	// TopKMax caps the requested k. Zero means no cap.
	TopKMax int

	// Breadth is passed to the index as the search breadth
	// (recall/latency knob; ignored by exact indexes).
	Breadth int

	// RequestTimeout bounds one whole pipeline run: the provider call,
	// the wait for the coordinator lock and the index search. A timeout
	// surfaces before any mutation is applied.
	RequestTimeout time.Duration

	// PickLargestFace selects the largest detected face instead of
	// failing when an image contains several.
	PickLargestFace bool

	// Logger receives operational and inconsistency logs.
	Logger *slog.Logger
}

// DefaultOptions are the default coordinator options.
var DefaultOptions = Options{
	TopKDefault:    5,
	TopKMax:        20,
	Breadth:        64,
	RequestTimeout: 2 * time.Second,
}

// Coordinator runs the ingestion and query pipelines.
type Coordinator struct {
	// mu serializes insert/delete/load against each other and against
	// readers. A snapshot load swaps the idx field itself, so every
	// access to idx and meta happens under at least the read lock.
	mu   sync.RWMutex
	opts Options

	idx      index.Index
	meta     metadata.Store
	provider embedding.Provider
	results  *cache.ResultCache

	nextID atomic.Uint64
	logger *slog.Logger
	closed atomic.Bool
}

// New creates a coordinator over the given components.
func New(idx index.Index, meta metadata.Store, provider embedding.Provider, results *cache.ResultCache, optFns ...func(o *Options)) (*Coordinator, error) {
	opts := DefaultOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	if idx.Dimension() != provider.Dimension() {
		return nil, &index.ErrDimensionMismatch{Expected: idx.Dimension(), Actual: provider.Dimension()}
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Coordinator{
		opts:     opts,
		idx:      idx,
		meta:     meta,
		provider: provider,
		results:  results,
		logger:   logger,
	}, nil
}

// withTimeout applies the request timeout to ctx. The returned context
// bounds one whole pipeline run: provider call, lock wait and search.
func (c *Coordinator) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.opts.RequestTimeout > 0 {
		return context.WithTimeout(ctx, c.opts.RequestTimeout)
	}
	return ctx, func() {}
}

// embed runs the provider and normalizes the resulting vector for cosine
// search.
func (c *Coordinator) embed(ctx context.Context, image []byte) ([]float32, error) {
	v, err := c.provider.Embed(ctx, image)
	if err != nil {
		var mf *embedding.MultipleFacesError
		if c.opts.PickLargestFace && errors.As(err, &mf) {
			if face, ok := embedding.PickFace(mf.Faces); ok {
				v, err = face.Vector, nil
			}
		}
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}

	normalized, ok := distance.NormalizeL2Copy(v)
	if !ok {
		return nil, &embedding.ProviderError{Message: "provider returned zero vector"}
	}

	return normalized, nil
}

// Ingest embeds the image, allocates a fresh ID and stores metadata and
// vector. IDs are monotonic and never reused, even across failed inserts.
// On index failure the metadata write is rolled back, so the joint invariant
// holds at every externally observable point.
func (c *Coordinator) Ingest(ctx context.Context, image []byte, md model.Metadata) (model.FaceID, error) {
	if c.closed.Load() {
		return 0, ErrClosed
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	vec, err := c.embed(ctx, image)
	if err != nil {
		return 0, err
	}

	if md.CreatedAt.IsZero() {
		md.CreatedAt = time.Now().UTC()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// A timeout that fired while waiting on the mutex must not mutate.
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	id := model.FaceID(c.nextID.Add(1))

	if err := c.meta.Set(id, md); err != nil {
		return 0, err
	}

	if err := c.idx.Insert(uint64(id), vec); err != nil {
		if derr := c.meta.Delete(id); derr != nil {
			c.logger.ErrorContext(ctx, "metadata rollback failed",
				"id", uint64(id),
				"error", derr,
			)
		}
		return 0, err
	}

	c.results.OnMutation()
	c.logger.DebugContext(ctx, "face ingested", "id", uint64(id), "label", md.Label)

	return id, nil
}

// Query embeds the image and returns the top-k nearest faces with metadata,
// ranked by descending cosine similarity. Repeated queries for identical
// bytes are served from the result cache without touching the provider;
// concurrent misses for the same image share a single pipeline run.
func (c *Coordinator) Query(ctx context.Context, image []byte, k int) (*model.QueryResult, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}

	if k <= 0 {
		k = c.opts.TopKDefault
	}
	if c.opts.TopKMax > 0 && k > c.opts.TopKMax {
		k = c.opts.TopKMax
	}

	key := cache.Fingerprint(image, k)

	matches, cached, err := c.results.GetOrCompute(ctx, key, func(ctx context.Context) ([]model.Match, error) {
		return c.search(ctx, image, k)
	})
	if err != nil {
		return nil, err
	}

	return &model.QueryResult{Matches: matches, Cached: cached}, nil
}

func (c *Coordinator) search(ctx context.Context, image []byte, k int) ([]model.Match, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	vec, err := c.embed(ctx, image)
	if err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	// The deadline may have fired while waiting on the lock.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	results, err := c.idx.Search(vec, k, &index.SearchOptions{Breadth: c.opts.Breadth})
	if err != nil {
		return nil, err
	}

	ids := make([]model.FaceID, len(results))
	for i, r := range results {
		ids[i] = model.FaceID(r.ID)
	}

	records, err := c.meta.BatchGet(ids)
	if err != nil {
		return nil, err
	}

	matches := make([]model.Match, 0, len(results))
	for _, r := range results {
		md, ok := records[model.FaceID(r.ID)]
		if !ok {
			// Should never happen: the stores are mutated in lockstep.
			c.logger.ErrorContext(ctx, "metadata missing for indexed face",
				"id", r.ID,
				"error", &ErrInconsistency{ID: model.FaceID(r.ID)},
			)
			continue
		}
		matches = append(matches, model.Match{
			ID:       model.FaceID(r.ID),
			Metadata: md,
			Score:    r.Score,
		})
	}

	return matches, nil
}

// Delete removes a face from the index and the metadata store. A missing ID
// yields the index's not-found error with no mutation applied.
func (c *Coordinator) Delete(ctx context.Context, id model.FaceID) error {
	if c.closed.Load() {
		return ErrClosed
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	if err := c.idx.Delete(uint64(id)); err != nil {
		return err
	}

	if err := c.meta.Delete(id); err != nil {
		c.logger.ErrorContext(ctx, "metadata missing during delete",
			"id", uint64(id),
			"error", err,
		)
		return &ErrInconsistency{ID: id}
	}

	c.results.OnMutation()
	c.logger.DebugContext(ctx, "face deleted", "id", uint64(id))

	return nil
}

// Size returns the number of live faces.
func (c *Coordinator) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.idx.Size()
}

// Dimension returns the embedding dimensionality.
func (c *Coordinator) Dimension() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.idx.Dimension()
}

// Stats is a point-in-time snapshot of operational counters.
type Stats struct {
	Size         int    `json:"size"`
	Dimension    int    `json:"dimension"`
	IndexKind    string `json:"index_kind"`
	NextID       uint64 `json:"next_id"`
	CacheEntries int    `json:"cache_entries"`
	CacheHits    int64  `json:"cache_hits"`
	CacheMisses  int64  `json:"cache_misses"`
}

// Stats returns current counters.
func (c *Coordinator) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	hits, misses := c.results.Stats()
	return Stats{
		Size:         c.idx.Size(),
		Dimension:    c.idx.Dimension(),
		IndexKind:    indexKind(c.idx),
		NextID:       c.nextID.Load(),
		CacheEntries: c.results.Len(),
		CacheHits:    hits,
		CacheMisses:  misses,
	}
}

// Close marks the coordinator closed. Further operations fail with ErrClosed.
func (c *Coordinator) Close() error {
	c.closed.Store(true)
	return nil
}
