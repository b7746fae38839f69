package halo

import (
	"time"

	"github.com/rutmehta/halo/cache"
	"github.com/rutmehta/halo/distance"
	"github.com/rutmehta/halo/metadata"
)

// IndexKind selects the vector index implementation.
type IndexKind string

const (
	// IndexFlat is the exact brute-force index.
	IndexFlat IndexKind = "flat"
	// IndexHNSW is the approximate graph index.
	IndexHNSW IndexKind = "hnsw"
)

// Options configures an Engine.
type Options struct {
	// Index selects the vector index implementation.
	Index IndexKind

	// Metric is the similarity metric. Vectors are L2-normalized on
	// ingest, so cosine and euclidean produce the same ordering.
	Metric distance.Metric

	// Breadth is the search breadth of the approximate index (efSearch).
	// Higher values trade latency for recall. Ignored by the flat index.
	Breadth int

	// TopKDefault is used when Query is called with k <= 0.
	TopKDefault int

	// TopKMax caps the requested k. Zero means no cap.
	TopKMax int

	// RequestTimeout bounds one whole ingest or query run: the provider
	// call, the wait for the engine lock and the index search.
	RequestTimeout time.Duration

	// PickLargestFace selects the largest detected face instead of
	// failing when an image contains several.
	PickLargestFace bool

	// CacheTTL bounds how long a cached query result may be served.
	CacheTTL time.Duration

	// CacheMaxEntries caps the result cache size (LRU eviction).
	CacheMaxEntries int

	// CacheInvalidation selects what happens to cached results when the
	// index mutates: keep until TTL (stale-ok) or purge (strict).
	CacheInvalidation cache.InvalidationMode

	// Metadata is the metadata store backend. Defaults to the in-memory
	// map store; pass a BoltStore for persistence across restarts.
	Metadata metadata.Store

	// Logger receives operational logs. Defaults to NoopLogger.
	Logger *Logger

	// Metrics receives operation timings. Defaults to NoopMetricsCollector.
	Metrics MetricsCollector
}

// DefaultOptions are the default engine options.
var DefaultOptions = Options{
	Index:             IndexHNSW,
	Metric:            distance.MetricCosine,
	Breadth:           64,
	TopKDefault:       5,
	TopKMax:           20,
	RequestTimeout:    2 * time.Second,
	CacheTTL:          time.Minute,
	CacheMaxEntries:   1024,
	CacheInvalidation: cache.InvalidationStaleOK,
}

// WithIndex selects the index implementation.
func WithIndex(kind IndexKind) func(*Options) {
	return func(o *Options) {
		o.Index = kind
	}
}

// WithBreadth sets the approximate-search breadth.
func WithBreadth(breadth int) func(*Options) {
	return func(o *Options) {
		o.Breadth = breadth
	}
}

// WithRequestTimeout bounds provider calls and searches.
func WithRequestTimeout(d time.Duration) func(*Options) {
	return func(o *Options) {
		o.RequestTimeout = d
	}
}

// WithMetadataStore sets the metadata store backend.
func WithMetadataStore(s metadata.Store) func(*Options) {
	return func(o *Options) {
		o.Metadata = s
	}
}

// WithLogger sets the logger.
func WithLogger(l *Logger) func(*Options) {
	return func(o *Options) {
		o.Logger = l
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m MetricsCollector) func(*Options) {
	return func(o *Options) {
		o.Metrics = m
	}
}
