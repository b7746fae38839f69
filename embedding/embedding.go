// Package embedding turns face images into fixed-dimension vectors via an
// external provider. The provider must be deterministic: identical image
// bytes always produce the identical vector.
package embedding

import (
	"context"
	"fmt"
)

// Face is a single detected face in an image.
type Face struct {
	// Vector is the embedding of the face crop.
	Vector []float32

	// Confidence is the detector's score for this face.
	Confidence float64

	// Box is the bounding box as [x1, y1, x2, y2] in pixel coordinates.
	Box [4]float64
}

// Area returns the bounding-box area of the face.
func (f Face) Area() float64 {
	w := f.Box[2] - f.Box[0]
	h := f.Box[3] - f.Box[1]
	if w < 0 || h < 0 {
		return 0
	}
	return w * h
}

// Provider computes a face embedding for an image.
//
// Exactly one face must be present: zero faces yield *NoFaceError and more
// than one yields *MultipleFacesError carrying all detections, so callers
// can apply their own selection policy (see PickFace).
type Provider interface {
	// Embed returns the embedding for the single face in image.
	Embed(ctx context.Context, image []byte) ([]float32, error)

	// Dimension returns the dimensionality of produced vectors.
	Dimension() int
}

// PickFace selects one face from a multi-face detection: largest bounding
// box wins, ties go to higher confidence, then to the first-listed face.
// The ordering is total, so the choice is deterministic.
func PickFace(faces []Face) (Face, bool) {
	if len(faces) == 0 {
		return Face{}, false
	}

	best := faces[0]
	for _, f := range faces[1:] {
		if f.Area() > best.Area() || (f.Area() == best.Area() && f.Confidence > best.Confidence) {
			best = f
		}
	}

	return best, true
}

// NoFaceError is returned when the provider detects no face in the image.
type NoFaceError struct{}

func (e *NoFaceError) Error() string {
	return "no face detected in image"
}

// MultipleFacesError is returned when the provider detects more than one
// face. Faces holds every detection in provider order.
type MultipleFacesError struct {
	Faces []Face
}

func (e *MultipleFacesError) Error() string {
	return fmt.Sprintf("%d faces detected in image, expected exactly one", len(e.Faces))
}

// ProviderError wraps a transport or server-side failure from the provider.
type ProviderError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("embedding provider error (status %d): %s", e.StatusCode, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("embedding provider error: %v", e.Err)
	}
	return fmt.Sprintf("embedding provider error: %s", e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}
