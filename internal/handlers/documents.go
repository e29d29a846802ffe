package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/healthtrack/apiserver/internal/services"
	"github.com/healthtrack/apiserver/types"
)

const (
	maxUploadBytes        = 16 << 20
	maxUploadMemory       = 8 << 20
	formFieldFile         = "file"
	formFieldDocumentType = "document_type"
)

// DocumentHandler provides upload, listing, and dashboard endpoints.
type DocumentHandler struct {
	docs *services.DocumentService
}

// NewDocumentHandler constructs a handler with the provided service.
func NewDocumentHandler(docs *services.DocumentService) *DocumentHandler {
	return &DocumentHandler{docs: docs}
}

// DocumentRouter registers document routes on the given router. All routes
// require authentication.
func DocumentRouter(r chi.Router, handler *DocumentHandler, authMiddleware func(http.Handler) http.Handler) {
	r.Use(authMiddleware)
	r.Post("/upload", handler.Upload)
	r.Get("/", handler.List)
}

type UploadResponse struct {
	DocumentID string             `json:"document_id"`
	Filename   string             `json:"filename"`
	Kind       types.DocumentKind `json:"kind"`
}

// Upload accepts a multipart form with a file and its declared kind.
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	kind := types.DocumentKind(strings.TrimSpace(r.FormValue(formFieldDocumentType)))

	file, header, err := r.FormFile(formFieldFile)
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	payload, err := readFileLimited(file, maxUploadBytes)
	_ = file.Close()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	doc, err := h.docs.Upload(r.Context(), userID, header.Filename, kind, payload)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrUnsupportedKind):
			writeError(w, http.StatusBadRequest, "unsupported document kind")
		case errors.Is(err, services.ErrKindMismatch):
			writeError(w, http.StatusBadRequest, "payload does not match declared kind")
		case errors.Is(err, services.ErrEmptyPayload):
			writeError(w, http.StatusBadRequest, "empty payload")
		default:
			writeError(w, http.StatusInternalServerError, "failed to store document")
		}
		return
	}

	writeJSON(w, http.StatusCreated, UploadResponse{
		DocumentID: doc.ID,
		Filename:   doc.Filename,
		Kind:       doc.Kind,
	})
}

// List returns the caller's documents, newest first.
func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	docs, err := h.docs.ListForUser(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list documents")
		return
	}

	summaries := make([]types.DocumentSummary, 0, len(docs))
	for _, doc := range docs {
		summaries = append(summaries, doc.Summary())
	}
	writeJSON(w, http.StatusOK, summaries)
}

// Dashboard returns the caller's document and analysis aggregates.
func (h *DocumentHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	summary, err := h.docs.Dashboard(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to build dashboard")
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

func readFileLimited(reader io.Reader, limit int64) ([]byte, error) {
	limited := io.LimitReader(reader, limit+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, errors.New("failed to read upload")
	}
	if int64(len(data)) > limit {
		return nil, errors.New("uploaded file too large")
	}
	return data, nil
}
