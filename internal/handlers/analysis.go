package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/healthtrack/apiserver/internal/analysis"
	"github.com/healthtrack/apiserver/internal/services"
	"github.com/healthtrack/apiserver/internal/store"
	"github.com/healthtrack/apiserver/types"
)

// AnalysisHandler exposes the analysis pipeline.
type AnalysisHandler struct {
	engine *analysis.Engine
	users  *services.UserService
}

// NewAnalysisHandler constructs a handler with the provided dependencies.
func NewAnalysisHandler(engine *analysis.Engine, users *services.UserService) *AnalysisHandler {
	return &AnalysisHandler{engine: engine, users: users}
}

// AnalysisRouter registers analysis routes on the given router. All routes
// require authentication.
func AnalysisRouter(r chi.Router, handler *AnalysisHandler, authMiddleware func(http.Handler) http.Handler) {
	r.Use(authMiddleware)
	r.Post("/", handler.Analyze)
}

type AnalyzeRequest struct {
	DocumentID   string `json:"document_id"`
	AnalysisType string `json:"analysis_type"`
}

// Analyze runs one analysis of the given document and returns the result.
// Upstream failures are distinguished for the caller: unavailability is
// transient and worth retrying, a malformed answer is not.
func (h *AnalysisHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if strings.TrimSpace(req.DocumentID) == "" {
		writeError(w, http.StatusBadRequest, "document_id is required")
		return
	}

	user, err := h.users.GetUser(r.Context(), userID)
	if err != nil {
		writeUnauthorized(w)
		return
	}

	result, err := h.engine.Analyze(r.Context(), user, req.DocumentID, types.AnalysisKind(req.AnalysisType))
	if err != nil {
		switch {
		case errors.Is(err, analysis.ErrUnsupportedAnalysis):
			writeError(w, http.StatusBadRequest, "unsupported analysis type")
		case errors.Is(err, analysis.ErrNoAPIKey):
			writeError(w, http.StatusBadRequest, "configure your upstream api key first")
		case errors.Is(err, analysis.ErrWrongDocumentKind):
			writeError(w, http.StatusBadRequest, "analysis does not apply to this document kind")
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "document not found")
		case errors.Is(err, analysis.ErrUpstreamUnavailable):
			writeError(w, http.StatusBadGateway, "analysis service unavailable, try again later")
		case errors.Is(err, analysis.ErrUpstreamMalformed):
			writeError(w, http.StatusUnprocessableEntity, "analysis service returned an unusable answer")
		default:
			writeError(w, http.StatusInternalServerError, "analysis failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, result)
}
