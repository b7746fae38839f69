package halo

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rutmehta/halo/blobstore"
	"github.com/rutmehta/halo/model"
)

func TestPushPullSnapshot(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()

	src, _ := newTestEngine(t)
	for _, name := range []string{"alice", "bob"} {
		_, err := src.Ingest(ctx, []byte(name), model.Metadata{Label: name})
		require.NoError(t, err)
	}

	name, err := src.PushSnapshot(ctx, store, nil)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(name, "snapshot-"))
	assert.True(t, strings.HasSuffix(name, ".halo"))

	dst, _ := newTestEngine(t)
	require.NoError(t, dst.PullSnapshot(ctx, store, nil))
	assert.Equal(t, 2, dst.Size())

	want, err := src.Query(ctx, []byte("alice"), 2)
	require.NoError(t, err)
	got, err := dst.Query(ctx, []byte("alice"), 2)
	require.NoError(t, err)
	assert.Equal(t, want.Matches, got.Matches)
}

func TestPushMovesCurrentPointer(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	ptr := blobstore.NewObjectPointer(store)

	eng, _ := newTestEngine(t)
	_, err := eng.Ingest(ctx, []byte("alice"), model.Metadata{Label: "alice"})
	require.NoError(t, err)

	first, err := eng.PushSnapshot(ctx, store, ptr)
	require.NoError(t, err)

	_, err = eng.Ingest(ctx, []byte("bob"), model.Metadata{Label: "bob"})
	require.NoError(t, err)

	second, err := eng.PushSnapshot(ctx, store, ptr)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	current, err := ptr.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, second, current)

	// Pull resolves to the latest push.
	dst, _ := newTestEngine(t)
	require.NoError(t, dst.PullSnapshot(ctx, store, ptr))
	assert.Equal(t, 2, dst.Size())
}

func TestPullWithoutSnapshot(t *testing.T) {
	eng, _ := newTestEngine(t)
	err := eng.PullSnapshot(context.Background(), blobstore.NewMemoryStore(), nil)
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}
