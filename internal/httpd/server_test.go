package httpd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rutmehta/halo"
	"github.com/rutmehta/halo/embedding"
	"github.com/rutmehta/halo/internal/config"
)

func newTestServer(t *testing.T, optFns ...func(cfg *config.Config)) (*Server, *embedding.Mock) {
	t.Helper()

	cfg := config.Default()
	cfg.Dimension = 16
	cfg.RateRPS = 1000
	cfg.RateBurst = 1000
	for _, fn := range optFns {
		fn(cfg)
	}

	mock := embedding.NewMock(cfg.Dimension)
	eng, err := halo.New(mock, halo.WithIndex(halo.IndexFlat))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	t.Cleanup(func() { _ = eng.Close() })

	return NewServer(cfg, eng), mock
}

// multipartUpload builds a multipart/form-data request body with a file part
// and optional extra form fields.
func multipartUpload(t *testing.T, image []byte, filename string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(image); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field %s: %v", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}

	return &buf, mw.FormDataContentType()
}

func addFace(t *testing.T, srv *Server, image []byte, label string) addFaceResponse {
	t.Helper()

	body, contentType := multipartUpload(t, image, label+".jpg", map[string]string{"label": label})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/faces", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("add face: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp addFaceResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode add response: %v", err)
	}
	return resp
}

func TestAddAndSearch(t *testing.T) {
	srv, _ := newTestServer(t)

	alice := []byte("image-of-alice")
	added := addFace(t, srv, alice, "alice")
	if added.FaceID != 1 {
		t.Errorf("face_id = %d, want 1", added.FaceID)
	}
	addFace(t, srv, []byte("image-of-bob"), "bob")

	body, contentType := multipartUpload(t, alice, "query.jpg", nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/search?top_k=2", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("search: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp searchResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode search response: %v", err)
	}

	if resp.Query.ResultsFound != 2 {
		t.Fatalf("results_found = %d, want 2", resp.Query.ResultsFound)
	}
	if resp.Results[0].Label != "alice" {
		t.Errorf("top match label = %q, want alice", resp.Results[0].Label)
	}
	if resp.Results[0].Rank != 1 {
		t.Errorf("top match rank = %d, want 1", resp.Results[0].Rank)
	}
	if resp.Results[0].SimilarityScore < 0.999 {
		t.Errorf("exact match score = %f, want ~1.0", resp.Results[0].SimilarityScore)
	}
	if resp.Results[0].SimilarityPercentage < 99.9 {
		t.Errorf("exact match percentage = %f, want ~100", resp.Results[0].SimilarityPercentage)
	}
}

func TestSearchValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	t.Run("top_k out of range", func(t *testing.T) {
		body, contentType := multipartUpload(t, []byte("img"), "q.jpg", nil)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/search?top_k=100", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()

		srv.Router().ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/search", nil)
		rec := httptest.NewRecorder()

		srv.Router().ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
		}
	})
}

func TestSearchNoFace(t *testing.T) {
	srv, mock := newTestServer(t)
	mock.Err = &embedding.NoFaceError{}

	body, contentType := multipartUpload(t, []byte("landscape"), "q.jpg", nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/search", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d, body = %s", rec.Code, http.StatusBadRequest, rec.Body.String())
	}
}

func TestSearchProviderFailure(t *testing.T) {
	srv, mock := newTestServer(t)
	mock.Err = &embedding.ProviderError{StatusCode: 500, Message: "model crashed"}

	body, contentType := multipartUpload(t, []byte("img"), "q.jpg", nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/search", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadGateway)
	}
}

func TestDeleteFace(t *testing.T) {
	srv, _ := newTestServer(t)
	added := addFace(t, srv, []byte("image-of-carol"), "carol")

	req := httptest.NewRequest(http.MethodDelete, fmt.Sprintf("/api/v1/faces/%d", added.FaceID), nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("delete: status = %d, body = %s", rec.Code, rec.Body.String())
	}

	// Deleting again must report not found.
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodDelete, fmt.Sprintf("/api/v1/faces/%d", added.FaceID), nil)
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("repeat delete: status = %d, want %d", rec.Code, http.StatusNotFound)
	}

	t.Run("invalid id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, "/api/v1/faces/abc", nil)
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
		}
	})
}

func TestHealthAndStats(t *testing.T) {
	srv, _ := newTestServer(t)
	addFace(t, srv, []byte("image-of-dave"), "dave")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("healthz: status = %d", rec.Code)
	}
	var health map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health["status"] != "ok" {
		t.Errorf("status = %v, want ok", health["status"])
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("stats: status = %d", rec.Code)
	}
	var stats map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats["size"] != float64(1) {
		t.Errorf("size = %v, want 1", stats["size"])
	}
}

func TestRateLimit(t *testing.T) {
	srv, _ := newTestServer(t, func(cfg *config.Config) {
		cfg.RateRPS = 1
		cfg.RateBurst = 1
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("first request: status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/healthz", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("second request: status = %d, want %d", rec.Code, http.StatusTooManyRequests)
	}
}
