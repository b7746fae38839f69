package httpd

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/rutmehta/halo"
	"github.com/rutmehta/halo/model"
)

// maxUploadBytes caps the size of an uploaded image.
const maxUploadBytes = 16 << 20

// searchResult is a single ranked hit in a search response.
type searchResult struct {
	Rank                 int      `json:"rank"`
	FaceID               uint64   `json:"face_id"`
	Label                string   `json:"label"`
	Source               string   `json:"source,omitempty"`
	SimilarityScore      float64  `json:"similarity_score"`
	SimilarityPercentage float64  `json:"similarity_percentage"`
	Tags                 []string `json:"tags,omitempty"`
}

// searchResponse is the body of a successful search.
type searchResponse struct {
	Query   searchQuery    `json:"query"`
	Results []searchResult `json:"results"`
	Cached  bool           `json:"cached"`
}

type searchQuery struct {
	Filename      string `json:"filename"`
	TopKRequested int    `json:"top_k_requested"`
	ResultsFound  int    `json:"results_found"`
}

// addFaceResponse is the body of a successful ingestion.
type addFaceResponse struct {
	FaceID uint64 `json:"face_id"`
	Label  string `json:"label"`
	Source string `json:"source,omitempty"`
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondEngineError maps engine errors to HTTP status codes.
func respondEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, halo.ErrNoFaceDetected),
		errors.Is(err, halo.ErrMultipleFaces),
		errors.Is(err, halo.ErrInvalidK):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, halo.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, halo.ErrTimeout):
		respondError(w, http.StatusGatewayTimeout, err.Error())
	case errors.Is(err, halo.ErrProvider):
		respondError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, halo.ErrClosed):
		respondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

// readImageUpload extracts the "file" part of a multipart upload.
// On failure, sends an error response and returns ok=false.
func readImageUpload(w http.ResponseWriter, r *http.Request) (image []byte, filename string, ok bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "missing file upload")
		return nil, "", false
	}
	defer file.Close()

	image, err = io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "reading upload: "+err.Error())
		return nil, "", false
	}
	if len(image) == 0 {
		respondError(w, http.StatusBadRequest, "empty file upload")
		return nil, "", false
	}
	return image, header.Filename, true
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"database_size": s.engine.Size(),
	})
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.engine.Stats())
}

// search finds the faces most similar to the uploaded image.
func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	k := s.config.TopKDefault
	if v := r.URL.Query().Get("top_k"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 || parsed > s.config.TopKMax {
			respondError(w, http.StatusBadRequest,
				"top_k must be between 1 and "+strconv.Itoa(s.config.TopKMax))
			return
		}
		k = parsed
	}

	image, filename, ok := readImageUpload(w, r)
	if !ok {
		return
	}

	result, err := s.engine.Query(r.Context(), image, k)
	if err != nil {
		respondEngineError(w, err)
		return
	}

	results := make([]searchResult, 0, len(result.Matches))
	for i, m := range result.Matches {
		score := float64(m.Score)
		results = append(results, searchResult{
			Rank:                 i + 1,
			FaceID:               uint64(m.ID),
			Label:                m.Metadata.Label,
			Source:               m.Metadata.Source,
			SimilarityScore:      math.Round(score*10000) / 10000,
			SimilarityPercentage: math.Round(score*10000) / 100,
			Tags:                 m.Metadata.Tags,
		})
	}

	respondJSON(w, http.StatusOK, searchResponse{
		Query: searchQuery{
			Filename:      filename,
			TopKRequested: k,
			ResultsFound:  len(results),
		},
		Results: results,
		Cached:  result.Cached,
	})
}

// addFace ingests a new face image into the collection.
func (s *Server) addFace(w http.ResponseWriter, r *http.Request) {
	image, filename, ok := readImageUpload(w, r)
	if !ok {
		return
	}

	label := r.FormValue("label")
	if label == "" {
		label = "Unknown"
	}
	source := r.FormValue("source")
	if source == "" {
		source = filename
	}

	id, err := s.engine.Ingest(r.Context(), image, model.Metadata{
		Label:  label,
		Source: source,
	})
	if err != nil {
		respondEngineError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, addFaceResponse{
		FaceID: uint64(id),
		Label:  label,
		Source: source,
	})
}

// deleteFace removes a face by ID.
func (s *Server) deleteFace(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid face id")
		return
	}

	if err := s.engine.Delete(r.Context(), model.FaceID(id)); err != nil {
		respondEngineError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]uint64{"deleted": id})
}
