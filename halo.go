package halo

import (
	"context"
	"io"
	"time"

	"github.com/rutmehta/halo/cache"
	"github.com/rutmehta/halo/embedding"
	"github.com/rutmehta/halo/engine"
	"github.com/rutmehta/halo/index"
	"github.com/rutmehta/halo/index/flat"
	"github.com/rutmehta/halo/index/hnsw"
	"github.com/rutmehta/halo/metadata"
	"github.com/rutmehta/halo/model"
)

// Engine is the public face-search facade: ingest face images, query by
// image for the most similar known faces, delete, and snapshot the whole
// state. All methods are safe for concurrent use.
type Engine struct {
	coord   *engine.Coordinator
	logger  *Logger
	metrics MetricsCollector
}

// New creates an Engine over the given embedding provider.
func New(provider embedding.Provider, optFns ...func(o *Options)) (*Engine, error) {
	opts := DefaultOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	dim := provider.Dimension()

	var (
		idx index.Index
		err error
	)
	switch opts.Index {
	case IndexFlat:
		idx, err = flat.New(func(o *flat.Options) {
			o.Dimension = dim
			o.Metric = opts.Metric
		})
	default:
		idx, err = hnsw.New(func(o *hnsw.Options) {
			o.Dimension = dim
			o.Metric = opts.Metric
			o.EFSearch = opts.Breadth
		})
	}
	if err != nil {
		return nil, translateError(err)
	}

	meta := opts.Metadata
	if meta == nil {
		meta = metadata.NewMapStore()
	}

	logger := opts.Logger
	if logger == nil {
		logger = NoopLogger()
	}

	var metrics MetricsCollector = NoopMetricsCollector{}
	if opts.Metrics != nil {
		metrics = opts.Metrics
	}

	results := cache.New(func(o *cache.Options) {
		o.TTL = opts.CacheTTL
		o.MaxEntries = opts.CacheMaxEntries
		o.Mode = opts.CacheInvalidation
	})

	coord, err := engine.New(idx, meta, provider, results, func(o *engine.Options) {
		o.TopKDefault = opts.TopKDefault
		o.TopKMax = opts.TopKMax
		o.Breadth = opts.Breadth
		o.RequestTimeout = opts.RequestTimeout
		o.PickLargestFace = opts.PickLargestFace
		o.Logger = logger.Logger
	})
	if err != nil {
		return nil, translateError(err)
	}

	return &Engine{
		coord:   coord,
		logger:  logger,
		metrics: metrics,
	}, nil
}

// Ingest adds a face image to the collection and returns its assigned ID.
// IDs are monotonic and never reused.
func (e *Engine) Ingest(ctx context.Context, image []byte, md model.Metadata) (model.FaceID, error) {
	start := time.Now()

	id, err := e.coord.Ingest(ctx, image, md)
	err = translateError(err)

	e.metrics.RecordIngest(time.Since(start), err)
	e.logger.LogIngest(ctx, uint64(id), md.Label, err)

	return id, err
}

// Query returns the top-k most similar known faces for the image, ranked by
// descending cosine similarity in [-1, 1]. k <= 0 falls back to the
// configured default; k above the configured maximum is clamped.
func (e *Engine) Query(ctx context.Context, image []byte, k int) (*model.QueryResult, error) {
	start := time.Now()

	res, err := e.coord.Query(ctx, image, k)
	err = translateError(err)

	cached := false
	found := 0
	if res != nil {
		cached = res.Cached
		found = len(res.Matches)
	}
	e.metrics.RecordQuery(k, time.Since(start), cached, err)
	e.logger.LogQuery(ctx, k, found, cached, err)

	return res, err
}

// Delete removes a face from the collection.
func (e *Engine) Delete(ctx context.Context, id model.FaceID) error {
	start := time.Now()

	err := translateError(e.coord.Delete(ctx, id))

	e.metrics.RecordDelete(time.Since(start), err)
	e.logger.LogDelete(ctx, uint64(id), err)

	return err
}

// Size returns the number of faces in the collection.
func (e *Engine) Size() int {
	return e.coord.Size()
}

// Dimension returns the embedding dimensionality.
func (e *Engine) Dimension() int {
	return e.coord.Dimension()
}

// Stats returns operational counters.
func (e *Engine) Stats() engine.Stats {
	return e.coord.Stats()
}

// SaveToWriter exports the full engine state as a snapshot stream.
func (e *Engine) SaveToWriter(ctx context.Context, w io.Writer) error {
	start := time.Now()

	err := translateError(e.coord.SaveToWriter(w, engine.CompressionZSTD))

	e.metrics.RecordSnapshot("save", time.Since(start), err)
	e.logger.LogSnapshot(ctx, "save", "", err)

	return err
}

// SaveToFile atomically exports the full engine state to a snapshot file.
func (e *Engine) SaveToFile(ctx context.Context, path string) error {
	start := time.Now()

	err := translateError(e.coord.SaveToFile(path, engine.CompressionZSTD))

	e.metrics.RecordSnapshot("save", time.Since(start), err)
	e.logger.LogSnapshot(ctx, "save", path, err)

	return err
}

// LoadFromFile replaces the engine state with a previously saved snapshot.
// The import reproduces the exported state exactly: identical queries
// return identical results.
func (e *Engine) LoadFromFile(ctx context.Context, path string) error {
	start := time.Now()

	err := translateError(e.coord.LoadFromFile(path))

	e.metrics.RecordSnapshot("load", time.Since(start), err)
	e.logger.LogSnapshot(ctx, "load", path, err)

	return err
}

// LoadFromReader replaces the engine state from a snapshot stream.
func (e *Engine) LoadFromReader(ctx context.Context, r io.Reader) error {
	start := time.Now()

	err := translateError(e.coord.LoadFromReader(r))

	e.metrics.RecordSnapshot("load", time.Since(start), err)
	e.logger.LogSnapshot(ctx, "load", "", err)

	return err
}

// Close shuts the engine down. Further operations fail with ErrClosed.
func (e *Engine) Close() error {
	return translateError(e.coord.Close())
}
