package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// RemoteOptions configures the remote embedding provider.
type RemoteOptions struct {
	// BaseURL is the embedding sidecar address.
	BaseURL string

	// Dimension is the expected embedding dimensionality.
	Dimension int

	// HTTPClient issues the requests. Defaults to a client with no
	// per-request timeout; callers bound calls through ctx.
	HTTPClient *http.Client

	// MaxRetries is how many times a failed call is retried before the
	// error is surfaced. Detection outcomes (no face, multiple faces)
	// are never retried.
	MaxRetries int

	// RetryRate limits how fast retries may fire across all calls.
	RetryRate rate.Limit
}

// DefaultRemoteOptions are the default remote provider options.
var DefaultRemoteOptions = RemoteOptions{
	BaseURL:    "http://localhost:8000",
	Dimension:  512,
	MaxRetries: 2,
	RetryRate:  rate.Every(250 * time.Millisecond),
}

// Remote calls an embedding sidecar over HTTP. Images are posted as
// multipart form data to /embed/face; the response lists every detected
// face with its embedding, confidence and bounding box.
type Remote struct {
	opts    RemoteOptions
	client  *http.Client
	retries *rate.Limiter
}

var _ Provider = (*Remote)(nil)

// NewRemote creates a remote provider.
func NewRemote(optFns ...func(o *RemoteOptions)) *Remote {
	opts := DefaultRemoteOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}

	return &Remote{
		opts:    opts,
		client:  client,
		retries: rate.NewLimiter(opts.RetryRate, 1),
	}
}

// faceDetection mirrors one face entry in the sidecar response.
type faceDetection struct {
	FaceIndex int       `json:"face_index"`
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding"`
	BBox      []float64 `json:"bbox"` // [x1, y1, x2, y2]
	DetScore  float64   `json:"det_score"`
}

// faceResponse mirrors the sidecar's /embed/face response body.
type faceResponse struct {
	FacesCount int             `json:"faces_count"`
	Faces      []faceDetection `json:"faces"`
	Model      string          `json:"model"`
}

// Embed posts the image and returns the single face's embedding.
func (r *Remote) Embed(ctx context.Context, image []byte) ([]float32, error) {
	for attempt := 0; ; attempt++ {
		faces, err := r.detect(ctx, image)
		if err == nil {
			return r.pick(faces)
		}

		if ctx.Err() != nil || !isRetryable(err) || attempt >= r.opts.MaxRetries {
			return nil, err
		}

		if werr := r.retries.Wait(ctx); werr != nil {
			return nil, err
		}
	}
}

// Dimension returns the configured embedding dimensionality.
func (r *Remote) Dimension() int {
	return r.opts.Dimension
}

// isRetryable reports whether err is a transient provider failure.
// Detection outcomes and client errors are final.
func isRetryable(err error) bool {
	var pe *ProviderError
	if !errors.As(err, &pe) {
		return false
	}
	return pe.StatusCode == 0 || pe.StatusCode >= http.StatusInternalServerError
}

// pick enforces the exactly-one-face contract and validates the vector.
func (r *Remote) pick(faces []Face) ([]float32, error) {
	switch len(faces) {
	case 0:
		return nil, &NoFaceError{}
	case 1:
		// fall through
	default:
		return nil, &MultipleFacesError{Faces: faces}
	}

	v := faces[0].Vector
	if len(v) != r.opts.Dimension {
		return nil, &ProviderError{
			Message: fmt.Sprintf("provider returned %d-dimensional vector, expected %d", len(v), r.opts.Dimension),
		}
	}

	return v, nil
}

// detect posts the image to the sidecar and parses all detections.
func (r *Remote) detect(ctx context.Context, image []byte) ([]Face, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="image.jpg"`)
	h.Set("Content-Type", detectMIMEType(image))
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, &ProviderError{Message: "failed to create form file", Err: err}
	}

	if _, err := part.Write(image); err != nil {
		return nil, &ProviderError{Message: "failed to write image data", Err: err}
	}

	if err := writer.Close(); err != nil {
		return nil, &ProviderError{Message: "failed to close multipart writer", Err: err}
	}

	url := strings.TrimSuffix(r.opts.BaseURL, "/") + "/embed/face"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, &ProviderError{Message: "failed to create request", Err: err}
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, &ProviderError{Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ProviderError{Message: "failed to read response", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &ProviderError{StatusCode: resp.StatusCode, Message: string(body)}
	}

	var faceResp faceResponse
	if err := json.Unmarshal(body, &faceResp); err != nil {
		return nil, &ProviderError{Message: "failed to parse response", Err: err}
	}

	faces := make([]Face, len(faceResp.Faces))
	for i, f := range faceResp.Faces {
		face := Face{
			Vector:     f.Embedding,
			Confidence: f.DetScore,
		}
		if len(f.BBox) == 4 {
			copy(face.Box[:], f.BBox)
		}
		faces[i] = face
	}

	return faces, nil
}

// detectMIMEType sniffs the image type from magic bytes.
func detectMIMEType(data []byte) string {
	if len(data) < 8 {
		return "application/octet-stream"
	}
	// JPEG: FF D8 FF
	if data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF {
		return "image/jpeg"
	}
	// PNG: 89 50 4E 47 0D 0A 1A 0A
	if data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 {
		return "image/png"
	}
	// WebP: 52 49 46 46 ... 57 45 42 50
	if len(data) >= 12 && data[0] == 0x52 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x46 &&
		data[8] == 0x57 && data[9] == 0x45 && data[10] == 0x42 && data[11] == 0x50 {
		return "image/webp"
	}
	return "application/octet-stream"
}
