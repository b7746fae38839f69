package model

import (
	"time"
)

// FaceID is the stable, user-facing identifier of a stored face.
// IDs are allocated monotonically and are never reused, even after deletion.
type FaceID uint64

// Metadata describes a stored face. It is attached at ingestion time and
// returned verbatim with every match.
type Metadata struct {
	// Label is the human-readable identity of the face ("Unknown" if not provided).
	Label string `json:"label"`

	// Source is where the face image came from (filename, upload name, URL).
	Source string `json:"source"`

	// CreatedAt is the ingestion timestamp.
	CreatedAt time.Time `json:"created_at"`

	// Tags are optional free-form annotations.
	Tags []string `json:"tags,omitempty"`
}

// FaceRecord is a stored face: identifier, embedding and metadata.
// The embedding always has exactly the engine's configured dimension and is
// L2-normalized.
type FaceRecord struct {
	ID        FaceID    `json:"id"`
	Embedding []float32 `json:"embedding"`
	Metadata  Metadata  `json:"metadata"`
}

// Match is a single ranked search hit.
type Match struct {
	ID       FaceID   `json:"id"`
	Metadata Metadata `json:"metadata"`

	// Score is the cosine similarity between the query and the stored face,
	// in [-1, 1]. Higher is more similar; 1 means identical direction.
	Score float32 `json:"score"`
}

// QueryResult is an ordered sequence of matches, descending by score.
// Its length is at most the requested k and at most the collection size.
type QueryResult struct {
	Matches []Match `json:"matches"`

	// Cached reports whether the result was served from the result cache.
	Cached bool `json:"cached"`
}
