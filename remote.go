package halo

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rutmehta/halo/blobstore"
	"github.com/rutmehta/halo/engine"
)

// PushSnapshot exports the engine state to the blob store under a fresh
// `snapshot-<uuid>.halo` name and moves the current pointer to it. When ptr
// is nil, the pointer is kept as a plain object in the same store. Returns
// the committed blob name.
func (e *Engine) PushSnapshot(ctx context.Context, store blobstore.Store, ptr blobstore.Pointer) (string, error) {
	start := time.Now()

	if ptr == nil {
		ptr = blobstore.NewObjectPointer(store)
	}

	name := fmt.Sprintf("snapshot-%s.halo", uuid.NewString())

	var buf bytes.Buffer
	if err := e.coord.SaveToWriter(&buf, engine.CompressionZSTD); err != nil {
		err = translateError(err)
		e.metrics.RecordSnapshot("push", time.Since(start), err)
		return "", err
	}

	if err := store.Put(ctx, name, &buf); err != nil {
		e.metrics.RecordSnapshot("push", time.Since(start), err)
		return "", err
	}

	if err := ptr.SetCurrent(ctx, name); err != nil {
		// The orphaned blob is harmless; remove it on a best-effort basis.
		_ = store.Delete(ctx, name)
		e.metrics.RecordSnapshot("push", time.Since(start), err)
		return "", err
	}

	e.metrics.RecordSnapshot("push", time.Since(start), nil)
	e.logger.LogSnapshot(ctx, "push", name, nil)

	return name, nil
}

// PullSnapshot loads the current snapshot from the blob store and replaces
// the engine state with it. When ptr is nil, the pointer is read as a plain
// object in the same store.
func (e *Engine) PullSnapshot(ctx context.Context, store blobstore.Store, ptr blobstore.Pointer) error {
	start := time.Now()

	if ptr == nil {
		ptr = blobstore.NewObjectPointer(store)
	}

	name, err := ptr.Current(ctx)
	if err != nil {
		e.metrics.RecordSnapshot("pull", time.Since(start), err)
		return err
	}

	rc, err := store.Get(ctx, name)
	if err != nil {
		e.metrics.RecordSnapshot("pull", time.Since(start), err)
		return err
	}
	defer rc.Close()

	err = translateError(e.coord.LoadFromReader(rc))
	e.metrics.RecordSnapshot("pull", time.Since(start), err)
	e.logger.LogSnapshot(ctx, "pull", name, err)

	return err
}
