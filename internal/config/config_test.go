package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 512, cfg.Dimension)
	assert.Equal(t, "cosine", cfg.Metric)
	assert.Equal(t, "hnsw", cfg.Index)
	assert.Equal(t, 64, cfg.Breadth)
	assert.Equal(t, 5, cfg.TopKDefault)
	assert.Equal(t, 20, cfg.TopKMax)
	assert.Equal(t, 2*time.Second, cfg.RequestTimeout)
	assert.Equal(t, "stale-ok", cfg.CacheInvalidationMode)
}

func TestYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "halo.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen: ":9090"
dimension: 128
index: flat
cache_ttl: 30s
cache_invalidation_mode: strict
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Listen)
	assert.Equal(t, 128, cfg.Dimension)
	assert.Equal(t, "flat", cfg.Index)
	assert.Equal(t, 30*time.Second, cfg.CacheTTL)
	assert.Equal(t, "strict", cfg.CacheInvalidationMode)

	// Untouched fields keep their defaults.
	assert.Equal(t, 5, cfg.TopKDefault)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "halo.yaml")
	require.NoError(t, os.WriteFile(path, []byte("dimension: 128\n"), 0o644))

	t.Setenv("HALO_DIMENSION", "256")
	t.Setenv("HALO_REQUEST_TIMEOUT", "5s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 256, cfg.Dimension)
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad metric", "metric: manhattan\n"},
		{"bad index", "index: kdtree\n"},
		{"bad invalidation", "cache_invalidation_mode: sometimes\n"},
		{"bad dimension", "dimension: -1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "halo.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0o644))

			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
