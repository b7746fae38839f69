package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rutmehta/halo/model"
)

func matches(ids ...model.FaceID) []model.Match {
	out := make([]model.Match, len(ids))
	for i, id := range ids {
		out[i] = model.Match{ID: id, Score: 1 - float32(i)*0.1}
	}
	return out
}

func TestFingerprintDeterministic(t *testing.T) {
	img := []byte("some image bytes")

	assert.Equal(t, Fingerprint(img, 5), Fingerprint(img, 5))
	assert.NotEqual(t, Fingerprint(img, 5), Fingerprint(img, 10))
	assert.NotEqual(t, Fingerprint(img, 5), Fingerprint([]byte("other"), 5))
}

func TestGetSetLRU(t *testing.T) {
	c := New(func(o *Options) { o.MaxEntries = 2 })

	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Set("a", matches(1))
	c.Set("b", matches(2))

	got, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, model.FaceID(1), got[0].ID)

	// "b" is now least recently used and gets evicted.
	c.Set("c", matches(3))
	assert.Equal(t, 2, c.Len())

	_, ok = c.Get("b")
	assert.False(t, ok)
	_, ok = c.Get("a")
	assert.True(t, ok)

	hits, misses := c.Stats()
	assert.Equal(t, int64(3), hits)
	assert.Equal(t, int64(2), misses)
}

func TestTTLExpiry(t *testing.T) {
	c := New(func(o *Options) { o.TTL = time.Minute })

	current := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return current }

	c.Set("a", matches(1))

	_, ok := c.Get("a")
	assert.True(t, ok)

	current = current.Add(2 * time.Minute)
	_, ok = c.Get("a")
	assert.False(t, ok, "expired entry must not be served")
	assert.Equal(t, 0, c.Len(), "expired entry is removed on access")
}

func TestGetOrComputeCoalesces(t *testing.T) {
	c := New()

	var computes atomic.Int64
	release := make(chan struct{})

	compute := func(context.Context) ([]model.Match, error) {
		computes.Add(1)
		<-release
		return matches(7), nil
	}

	const callers = 8
	var wg sync.WaitGroup
	results := make([][]model.Match, callers)

	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, _, err := c.GetOrCompute(context.Background(), "k", compute)
			assert.NoError(t, err)
			results[i] = got
		}()
	}

	// Give all callers time to reach the flight, then release it.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int64(1), computes.Load(), "concurrent misses must share one computation")
	for _, got := range results {
		assert.Equal(t, model.FaceID(7), got[0].ID)
	}

	// A later call is a plain cache hit.
	got, cached, err := c.GetOrCompute(context.Background(), "k", compute)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, model.FaceID(7), got[0].ID)
}

func TestGetOrComputeCountsMissOnce(t *testing.T) {
	c := New()

	compute := func(context.Context) ([]model.Match, error) {
		return matches(1), nil
	}

	_, cached, err := c.GetOrCompute(context.Background(), "k", compute)
	require.NoError(t, err)
	assert.False(t, cached)

	hits, misses := c.Stats()
	assert.Equal(t, int64(0), hits)
	assert.Equal(t, int64(1), misses, "one miss per uncached lookup, even with the in-flight re-check")

	_, cached, err = c.GetOrCompute(context.Background(), "k", compute)
	require.NoError(t, err)
	assert.True(t, cached)

	hits, misses = c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestGetOrComputeErrorNotCached(t *testing.T) {
	c := New()

	boom := errors.New("provider down")
	var computes atomic.Int64

	fail := func(context.Context) ([]model.Match, error) {
		computes.Add(1)
		return nil, boom
	}

	_, _, err := c.GetOrCompute(context.Background(), "k", fail)
	assert.ErrorIs(t, err, boom)

	_, _, err = c.GetOrCompute(context.Background(), "k", fail)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int64(2), computes.Load(), "failed computations must not be cached")
	assert.Equal(t, 0, c.Len())
}

func TestInvalidationModes(t *testing.T) {
	t.Run("stale-ok keeps entries", func(t *testing.T) {
		c := New()
		c.Set("a", matches(1))

		c.OnMutation()
		_, ok := c.Get("a")
		assert.True(t, ok)
	})

	t.Run("strict purges on mutation", func(t *testing.T) {
		c := New(func(o *Options) { o.Mode = InvalidationStrict })
		c.Set("a", matches(1))

		c.OnMutation()
		_, ok := c.Get("a")
		assert.False(t, ok)
		assert.Equal(t, 0, c.Len())
	})
}

func TestParseInvalidationMode(t *testing.T) {
	m, err := ParseInvalidationMode("stale-ok")
	require.NoError(t, err)
	assert.Equal(t, InvalidationStaleOK, m)

	m, err = ParseInvalidationMode("STRICT")
	require.NoError(t, err)
	assert.Equal(t, InvalidationStrict, m)

	_, err = ParseInvalidationMode("nope")
	assert.Error(t, err)

	assert.Equal(t, "stale-ok", InvalidationStaleOK.String())
	assert.Equal(t, "strict", InvalidationStrict.String())
}
