package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthtrack/apiserver/internal/analysis"
	"github.com/healthtrack/apiserver/internal/auth"
	"github.com/healthtrack/apiserver/internal/logging"
	"github.com/healthtrack/apiserver/internal/services"
	"github.com/healthtrack/apiserver/internal/store"
	"github.com/healthtrack/apiserver/types"
)

const (
	testPassword = "sup3r-secret"
	testAPIKey   = "AIzaSyTestKeyTestKeyTestKeyTest1234"

	pngPayload = "\x89PNG\r\n\x1a\n tiny test image"
	pdfPayload = "%PDF-1.4 tiny test report"

	hairResponse = `{
		"summary": "Mild thinning at the crown.",
		"findings": ["crown density reduced"],
		"recommendations": ["consult a dermatologist"],
		"confidence": 0.82,
		"hair_count_estimate": 95000,
		"baldness_zones": ["crown"],
		"risk_3_years": "low",
		"risk_5_years": "medium",
		"risk_10_years": "medium"
	}`

	generalResponse = `{
		"summary": "Routine blood panel, all values in range.",
		"findings": [],
		"recommendations": ["repeat in 12 months"],
		"confidence": 0.9,
		"key_findings": ["cholesterol normal"],
		"follow_up": []
	}`
)

type fakeGenerator struct {
	mu       sync.Mutex
	calls    int
	response string
	err      error
}

func (g *fakeGenerator) Generate(_ context.Context, _, _ string, _ []byte, _ string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.err != nil {
		return "", g.err
	}
	return g.response, nil
}

func (g *fakeGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type testEnv struct {
	router *chi.Mux
	gen    *fakeGenerator
}

// newTestEnv assembles the full route tree over the volatile backend, the
// same shape the server mounts, including the /api alias.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	gen := &fakeGenerator{response: hairResponse}
	log := logging.Discard()

	users := services.NewUserService(store.NewMemoryUserRepository())
	docs := services.NewDocumentService(store.NewMemoryDocumentRepository(), nil, log)
	tokens := auth.NewTokenService("test-secret", time.Hour)
	engine := analysis.NewEngine(docs, gen, nil, time.Second, log)

	authHandler := NewAuthHandler(users, tokens, log)
	docHandler := NewDocumentHandler(docs)
	analysisHandler := NewAnalysisHandler(engine, users)

	router := chi.NewRouter()
	register := func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			AuthRouter(r, authHandler)
		})
		r.Route("/documents", func(r chi.Router) {
			DocumentRouter(r, docHandler, authHandler.RequireAuth)
		})
		r.Route("/analysis", func(r chi.Router) {
			AnalysisRouter(r, analysisHandler, authHandler.RequireAuth)
		})
		r.With(authHandler.RequireAuth).Get("/dashboard", docHandler.Dashboard)
	}
	register(router)
	router.Route("/api", register)

	return &testEnv{router: router, gen: gen}
}

func (env *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) upload(t *testing.T, prefix, token, filename, documentType, payload string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(payload))
	require.NoError(t, err)
	require.NoError(t, writer.WriteField("document_type", documentType))
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, prefix+"/documents/upload", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) registerUser(t *testing.T, email string) string {
	t.Helper()

	rec := env.do(t, http.MethodPost, "/auth/register", "", RegisterRequest{
		Email:    email,
		Password: testPassword,
		Name:     "Test User",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var value T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &value), rec.Body.String())
	return value
}

func TestRegisterLoginMe(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/auth/register", "", RegisterRequest{
		Email:    "alice@example.com",
		Password: testPassword,
		Name:     "Alice",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeJSON[AuthResponse](t, rec)
	assert.Equal(t, "alice@example.com", created.User.Email)
	assert.False(t, created.User.HasAPIKey)

	// Same address again, different case.
	rec = env.do(t, http.MethodPost, "/auth/register", "", RegisterRequest{
		Email:    "Alice@Example.COM",
		Password: testPassword,
		Name:     "Alice Again",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodPost, "/auth/login", "", LoginRequest{
		Email:    "alice@example.com",
		Password: testPassword,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	logged := decodeJSON[AuthResponse](t, rec)

	rec = env.do(t, http.MethodPost, "/auth/login", "", LoginRequest{
		Email:    "alice@example.com",
		Password: "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/auth/login", "", LoginRequest{
		Email:    "nobody@example.com",
		Password: testPassword,
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodGet, "/auth/me", logged.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	profile := decodeJSON[types.UserProfile](t, rec)
	assert.Equal(t, "alice@example.com", profile.Email)
	assert.Equal(t, "Alice", profile.Name)
}

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/auth/register", "", RegisterRequest{
		Email:    "not-an-email",
		Password: testPassword,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/auth/register", "", RegisterRequest{
		Email:    "bob@example.com",
		Password: "short",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnauthorizedIsUniform(t *testing.T) {
	env := newTestEnv(t)

	otherSecret := auth.NewTokenService("other-secret", time.Hour)
	foreign, err := otherSecret.Issue("some-user")
	require.NoError(t, err)

	tokens := []string{"", "garbage", foreign}
	paths := []string{"/auth/me", "/documents/", "/dashboard"}
	for _, token := range tokens {
		for _, path := range paths {
			rec := env.do(t, http.MethodGet, path, token, nil)
			assert.Equal(t, http.StatusUnauthorized, rec.Code, "token=%q path=%s", token, path)
			resp := decodeJSON[ErrorResponse](t, rec)
			assert.Equal(t, "unauthorized", resp.Error)
		}
	}
}

func TestSetAPIKey(t *testing.T) {
	env := newTestEnv(t)
	token := env.registerUser(t, "carol@example.com")

	rec := env.do(t, http.MethodPut, "/auth/api-key", token, SetAPIKeyRequest{APIKey: "too-short"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPut, "/auth/api-key", token, SetAPIKeyRequest{APIKey: testAPIKey})
	require.Equal(t, http.StatusOK, rec.Code)
	profile := decodeJSON[types.UserProfile](t, rec)
	assert.True(t, profile.HasAPIKey)

	// The raw key never appears in any response.
	assert.NotContains(t, rec.Body.String(), testAPIKey)
}

func TestUploadAndList(t *testing.T) {
	env := newTestEnv(t)
	token := env.registerUser(t, "dave@example.com")

	rec := env.upload(t, "", token, "scalp.png", "image", pngPayload)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	first := decodeJSON[UploadResponse](t, rec)
	assert.Equal(t, types.KindImage, first.Kind)

	rec = env.upload(t, "", token, "labs.pdf", "pdf", pdfPayload)
	require.Equal(t, http.StatusCreated, rec.Code)

	// Declared kind must match the payload.
	rec = env.upload(t, "", token, "fake.png", "image", pdfPayload)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.upload(t, "", token, "scan.png", "spreadsheet", pngPayload)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.upload(t, "", token, "empty.png", "image", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/documents/", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeJSON[[]types.DocumentSummary](t, rec)
	require.Len(t, list, 2)
	assert.Equal(t, "labs.pdf", list[0].Filename)
	assert.Equal(t, "scalp.png", list[1].Filename)
	assert.False(t, list[0].HasAnalysis)

	// Another user sees nothing.
	other := env.registerUser(t, "eve@example.com")
	rec = env.do(t, http.MethodGet, "/documents/", other, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeJSON[[]types.DocumentSummary](t, rec))
}

func TestAnalyzeFlow(t *testing.T) {
	env := newTestEnv(t)
	token := env.registerUser(t, "frank@example.com")

	rec := env.upload(t, "", token, "scalp.png", "image", pngPayload)
	require.Equal(t, http.StatusCreated, rec.Code)
	imageDoc := decodeJSON[UploadResponse](t, rec)

	rec = env.upload(t, "", token, "labs.pdf", "pdf", pdfPayload)
	require.Equal(t, http.StatusCreated, rec.Code)
	pdfDoc := decodeJSON[UploadResponse](t, rec)

	// No key yet: rejected before any upstream traffic.
	rec = env.do(t, http.MethodPost, "/analysis/", token, AnalyzeRequest{
		DocumentID:   imageDoc.DocumentID,
		AnalysisType: "hair",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, env.gen.callCount())

	rec = env.do(t, http.MethodPut, "/auth/api-key", token, SetAPIKeyRequest{APIKey: testAPIKey})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/analysis/", token, AnalyzeRequest{
		DocumentID:   imageDoc.DocumentID,
		AnalysisType: "hair",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decodeJSON[types.AnalysisResult](t, rec)
	assert.Equal(t, types.AnalysisHair, result.Kind)
	require.NotNil(t, result.HairCountEstimate)
	assert.Equal(t, 95000, *result.HairCountEstimate)
	require.NotNil(t, result.Risk)
	assert.Equal(t, "medium", result.Risk.FiveYear)
	assert.Equal(t, 1, env.gen.callCount())

	// Kind and analysis type must agree.
	rec = env.do(t, http.MethodPost, "/analysis/", token, AnalyzeRequest{
		DocumentID:   pdfDoc.DocumentID,
		AnalysisType: "hair",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	env.gen.response = generalResponse
	rec = env.do(t, http.MethodPost, "/analysis/", token, AnalyzeRequest{
		DocumentID:   pdfDoc.DocumentID,
		AnalysisType: "general",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	general := decodeJSON[types.AnalysisResult](t, rec)
	assert.Equal(t, types.AnalysisGeneral, general.Kind)
	assert.Equal(t, []string{"cholesterol normal"}, general.KeyFindings)

	rec = env.do(t, http.MethodPost, "/analysis/", token, AnalyzeRequest{
		DocumentID:   "no-such-document",
		AnalysisType: "hair",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, "/analysis/", token, AnalyzeRequest{
		DocumentID:   imageDoc.DocumentID,
		AnalysisType: "palm_reading",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Another user cannot analyze someone else's document; the response is
	// indistinguishable from a missing document.
	other := env.registerUser(t, "grace@example.com")
	rec = env.do(t, http.MethodPut, "/auth/api-key", other, SetAPIKeyRequest{APIKey: testAPIKey})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, http.MethodPost, "/analysis/", other, AnalyzeRequest{
		DocumentID:   imageDoc.DocumentID,
		AnalysisType: "hair",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/documents/", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeJSON[[]types.DocumentSummary](t, rec)
	require.Len(t, list, 2)
	assert.True(t, list[0].HasAnalysis)
	assert.True(t, list[1].HasAnalysis)
}

func TestUpstreamFailureStatuses(t *testing.T) {
	env := newTestEnv(t)
	token := env.registerUser(t, "heidi@example.com")

	rec := env.do(t, http.MethodPut, "/auth/api-key", token, SetAPIKeyRequest{APIKey: testAPIKey})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.upload(t, "", token, "scalp.png", "image", pngPayload)
	require.Equal(t, http.StatusCreated, rec.Code)
	doc := decodeJSON[UploadResponse](t, rec)

	env.gen.err = errors.New("connection refused")
	rec = env.do(t, http.MethodPost, "/analysis/", token, AnalyzeRequest{
		DocumentID:   doc.DocumentID,
		AnalysisType: "hair",
	})
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	env.gen.err = nil
	env.gen.response = "I cannot answer in the requested format."
	rec = env.do(t, http.MethodPost, "/analysis/", token, AnalyzeRequest{
		DocumentID:   doc.DocumentID,
		AnalysisType: "hair",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	// Neither failure left a result behind.
	rec = env.do(t, http.MethodGet, "/documents/", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeJSON[[]types.DocumentSummary](t, rec)
	require.Len(t, list, 1)
	assert.False(t, list[0].HasAnalysis)
}

func TestDashboard(t *testing.T) {
	env := newTestEnv(t)
	token := env.registerUser(t, "ivan@example.com")

	rec := env.do(t, http.MethodGet, "/dashboard", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	empty := decodeJSON[services.DashboardSummary](t, rec)
	assert.Equal(t, 0, empty.TotalDocuments)
	assert.Empty(t, empty.RecentAnalyses)

	rec = env.do(t, http.MethodPut, "/auth/api-key", token, SetAPIKeyRequest{APIKey: testAPIKey})
	require.Equal(t, http.StatusOK, rec.Code)

	var analyzed string
	for i := 0; i < 3; i++ {
		rec = env.upload(t, "", token, fmt.Sprintf("scalp-%d.png", i), "image", pngPayload)
		require.Equal(t, http.StatusCreated, rec.Code)
		if i == 0 {
			analyzed = decodeJSON[UploadResponse](t, rec).DocumentID
		}
	}

	rec = env.do(t, http.MethodPost, "/analysis/", token, AnalyzeRequest{
		DocumentID:   analyzed,
		AnalysisType: "hair",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/dashboard", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decodeJSON[services.DashboardSummary](t, rec)
	assert.Equal(t, 3, summary.TotalDocuments)
	assert.Equal(t, 1, summary.AnalyzedDocuments)
	require.Len(t, summary.RecentAnalyses, 1)
	assert.Equal(t, analyzed, summary.RecentAnalyses[0].ID)
	require.NotNil(t, summary.RecentAnalyses[0].Result)
}

func TestAPIPrefixAlias(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/auth/register", "", RegisterRequest{
		Email:    "judy@example.com",
		Password: testPassword,
		Name:     "Judy",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeJSON[AuthResponse](t, rec)

	// Token issued under one prefix works under the other.
	rec = env.do(t, http.MethodGet, "/auth/me", created.Token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, http.MethodGet, "/api/auth/me", created.Token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.upload(t, "/api", created.Token, "scalp.png", "image", pngPayload)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/documents/", created.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeJSON[[]types.DocumentSummary](t, rec), 1)
}
