package engine

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/rutmehta/halo/index"
	"github.com/rutmehta/halo/index/flat"
	"github.com/rutmehta/halo/index/hnsw"
	"github.com/rutmehta/halo/model"
)

// Snapshot container layout:
//
//	[4]byte magic "HALO"
//	uint16  version (big endian)
//	uint32  header length (big endian)
//	[]byte  gob(snapshotHeader)
//	[]byte  compressed gob(snapshotBody)
const (
	snapshotMagic   = "HALO"
	snapshotVersion = 1
)

// Compression selects the snapshot body codec.
type Compression string

const (
	// CompressionZSTD is the default codec (better ratio).
	CompressionZSTD Compression = "zstd"
	// CompressionLZ4 is a faster alternative.
	CompressionLZ4 Compression = "lz4"
	// CompressionNone stores the body raw.
	CompressionNone Compression = "none"
)

// ParseCompression parses "zstd", "lz4" or "none".
func ParseCompression(s string) (Compression, error) {
	switch Compression(s) {
	case CompressionZSTD, CompressionLZ4, CompressionNone:
		return Compression(s), nil
	case "":
		return CompressionZSTD, nil
	default:
		return "", fmt.Errorf("unknown snapshot compression: %q", s)
	}
}

// ErrBadSnapshot is returned when a snapshot stream is malformed.
var ErrBadSnapshot = errors.New("engine: malformed snapshot")

type snapshotHeader struct {
	Compression Compression
	IndexKind   string
	Dimension   int
	NextID      uint64
}

type snapshotBody struct {
	Index    []byte
	Metadata map[model.FaceID]model.Metadata
}

func indexKind(idx index.Index) string {
	switch idx.(type) {
	case *flat.Flat:
		return "flat"
	case *hnsw.HNSW:
		return "hnsw"
	default:
		return "unknown"
	}
}

// SaveToWriter exports the full engine state. The export holds the read
// lock, so the index and metadata sections are mutually consistent.
func (c *Coordinator) SaveToWriter(w io.Writer, compression Compression) error {
	if c.closed.Load() {
		return ErrClosed
	}

	c.mu.RLock()
	indexBytes, err := c.idx.GobEncode()
	if err != nil {
		c.mu.RUnlock()
		return fmt.Errorf("failed to encode index: %w", err)
	}
	body := snapshotBody{
		Index:    indexBytes,
		Metadata: c.meta.ToMap(),
	}
	hdr := snapshotHeader{
		Compression: compression,
		IndexKind:   indexKind(c.idx),
		Dimension:   c.idx.Dimension(),
		NextID:      c.nextID.Load(),
	}
	c.mu.RUnlock()

	if _, err := w.Write([]byte(snapshotMagic)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, uint16(snapshotVersion)); err != nil {
		return err
	}

	var hdrBuf bytes.Buffer
	if err := gob.NewEncoder(&hdrBuf).Encode(hdr); err != nil {
		return fmt.Errorf("failed to encode header: %w", err)
	}
	if err := binary.Write(w, binary.BigEndian, uint32(hdrBuf.Len())); err != nil {
		return err
	}
	if _, err := w.Write(hdrBuf.Bytes()); err != nil {
		return err
	}

	bw, closeFn, err := compressWriter(w, compression)
	if err != nil {
		return err
	}
	if err := gob.NewEncoder(bw).Encode(body); err != nil {
		return fmt.Errorf("failed to encode body: %w", err)
	}
	return closeFn()
}

// SaveToFile atomically writes a snapshot to path via a temp-file rename.
func (c *Coordinator) SaveToFile(path string, compression Compression) error {
	tmp := path + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return err
	}

	if err := c.SaveToWriter(f, compression); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}

	return os.Rename(tmp, path)
}

// LoadFromReader replaces the engine state with a previously exported
// snapshot: index, metadata and the next-ID watermark. The result cache is
// purged, so no hit can reflect pre-load state.
func (c *Coordinator) LoadFromReader(r io.Reader) error {
	if c.closed.Load() {
		return ErrClosed
	}

	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return fmt.Errorf("%w: %w", ErrBadSnapshot, err)
	}
	if string(magic[:]) != snapshotMagic {
		return fmt.Errorf("%w: bad magic %q", ErrBadSnapshot, magic)
	}

	var version uint16
	if err := binary.Read(r, binary.BigEndian, &version); err != nil {
		return fmt.Errorf("%w: %w", ErrBadSnapshot, err)
	}
	if version != snapshotVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrBadSnapshot, version)
	}

	var hdrLen uint32
	if err := binary.Read(r, binary.BigEndian, &hdrLen); err != nil {
		return fmt.Errorf("%w: %w", ErrBadSnapshot, err)
	}
	hdrBytes := make([]byte, hdrLen)
	if _, err := io.ReadFull(r, hdrBytes); err != nil {
		return fmt.Errorf("%w: %w", ErrBadSnapshot, err)
	}

	var hdr snapshotHeader
	if err := gob.NewDecoder(bytes.NewReader(hdrBytes)).Decode(&hdr); err != nil {
		return fmt.Errorf("%w: %w", ErrBadSnapshot, err)
	}

	br, err := compressReader(r, hdr.Compression)
	if err != nil {
		return err
	}

	var body snapshotBody
	if err := gob.NewDecoder(br).Decode(&body); err != nil {
		return fmt.Errorf("%w: %w", ErrBadSnapshot, err)
	}

	var idx index.Index
	switch hdr.IndexKind {
	case "flat":
		idx = &flat.Flat{}
	case "hnsw":
		idx = &hnsw.HNSW{}
	default:
		return fmt.Errorf("%w: unknown index kind %q", ErrBadSnapshot, hdr.IndexKind)
	}
	if err := idx.GobDecode(body.Index); err != nil {
		return fmt.Errorf("failed to decode index: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.meta.Clear(); err != nil {
		return err
	}
	for id, md := range body.Metadata {
		if err := c.meta.Set(id, md); err != nil {
			return err
		}
	}

	c.idx = idx
	c.nextID.Store(hdr.NextID)
	c.results.Purge()

	return nil
}

// LoadFromFile replaces the engine state from a snapshot file.
func (c *Coordinator) LoadFromFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return c.LoadFromReader(f)
}

func compressWriter(w io.Writer, compression Compression) (io.Writer, func() error, error) {
	switch compression {
	case CompressionZSTD:
		zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, nil, err
		}
		return zw, zw.Close, nil
	case CompressionLZ4:
		lw := lz4.NewWriter(w)
		return lw, lw.Close, nil
	case CompressionNone:
		return w, func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown snapshot compression: %q", compression)
	}
}

func compressReader(r io.Reader, compression Compression) (io.Reader, error) {
	switch compression {
	case CompressionZSTD:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return zr.IOReadCloser(), nil
	case CompressionLZ4:
		return lz4.NewReader(r), nil
	case CompressionNone:
		return r, nil
	default:
		return nil, fmt.Errorf("%w: unknown compression %q", ErrBadSnapshot, compression)
	}
}
