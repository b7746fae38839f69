package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/rutmehta/halo"
	"github.com/rutmehta/halo/cache"
	"github.com/rutmehta/halo/distance"
	"github.com/rutmehta/halo/embedding"
	"github.com/rutmehta/halo/internal/config"
	"github.com/rutmehta/halo/metadata"
)

// buildEngine assembles an engine from the configuration: remote embedding
// provider, index, metadata store and cache.
func buildEngine(cfg *config.Config) (*halo.Engine, error) {
	provider := embedding.NewRemote(func(o *embedding.RemoteOptions) {
		o.BaseURL = cfg.ProviderURL
		o.Dimension = cfg.Dimension
	})

	metric, err := distance.ParseMetric(cfg.Metric)
	if err != nil {
		return nil, err
	}
	mode, err := cache.ParseInvalidationMode(cfg.CacheInvalidationMode)
	if err != nil {
		return nil, err
	}

	var store metadata.Store
	if cfg.MetadataPath != "" {
		bolt, err := metadata.NewBoltStore(cfg.MetadataPath)
		if err != nil {
			return nil, fmt.Errorf("opening metadata store: %w", err)
		}
		store = bolt
	}

	return halo.New(provider, func(o *halo.Options) {
		o.Index = halo.IndexKind(cfg.Index)
		o.Metric = metric
		o.Breadth = cfg.Breadth
		o.TopKDefault = cfg.TopKDefault
		o.TopKMax = cfg.TopKMax
		o.RequestTimeout = cfg.RequestTimeout
		o.CacheTTL = cfg.CacheTTL
		o.CacheMaxEntries = cfg.CacheMaxEntries
		o.CacheInvalidation = mode
		o.Metadata = store
		o.Logger = halo.NewTextLogger(slog.LevelInfo)
	})
}

// warmLoad restores the engine from the configured snapshot file if one
// exists. A missing file is not an error: the engine starts empty.
func warmLoad(ctx context.Context, eng *halo.Engine, cfg *config.Config) error {
	if cfg.SnapshotPath == "" {
		return nil
	}
	if _, err := os.Stat(cfg.SnapshotPath); os.IsNotExist(err) {
		return nil
	}
	if err := eng.LoadFromFile(ctx, cfg.SnapshotPath); err != nil {
		return fmt.Errorf("loading snapshot %s: %w", cfg.SnapshotPath, err)
	}
	fmt.Printf("Restored %d faces from %s\n", eng.Size(), cfg.SnapshotPath)
	return nil
}

// saveSnapshot persists the engine to the configured snapshot file.
func saveSnapshot(ctx context.Context, eng *halo.Engine, cfg *config.Config) error {
	if cfg.SnapshotPath == "" {
		return nil
	}
	if err := eng.SaveToFile(ctx, cfg.SnapshotPath); err != nil {
		return fmt.Errorf("saving snapshot %s: %w", cfg.SnapshotPath, err)
	}
	fmt.Printf("Saved %d faces to %s\n", eng.Size(), cfg.SnapshotPath)
	return nil
}
