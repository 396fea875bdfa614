package api

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"template-ingest/internal/common/auth"
	"template-ingest/internal/common/errors"
	"template-ingest/internal/common/logger"
	"template-ingest/internal/template/pipeline"
	"template-ingest/internal/template/store"
)

const secret = "test-secret"

type fakeProcessor struct {
	result *pipeline.Result
	err    error
	got    []pipeline.Request
}

func (f *fakeProcessor) Run(_ context.Context, req pipeline.Request) (*pipeline.Result, error) {
	f.got = append(f.got, req)
	return f.result, f.err
}

type fakeRuns map[string]*store.RunStatus

func (f fakeRuns) Get(_ context.Context, runID string) (*store.RunStatus, error) {
	if s, ok := f[runID]; ok {
		return s, nil
	}
	return nil, errors.NewResourceNotFoundError("run", "runId: "+runID)
}

func setupRouter(t *testing.T, proc *fakeProcessor, checks map[string]ReadinessCheck) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	return NewRouter(Options{
		Verifier:       auth.NewJWTVerifier(secret),
		Processor:      proc,
		Runs:           fakeRuns{"r-1": {RunID: "r-1", State: "done", AssetCount: 4}},
		Checks:         checks,
		AllowedOrigins: []string{"*"},
		ServiceName:    "template-ingest",
		Version:        "test",
		Logger:         logger.NewTestLogger(t),
	})
}

func bearer(t *testing.T, sub string) string {
	t.Helper()
	token, err := auth.NewJWTVerifier(secret).Sign(auth.Claims{
		Sub:              sub,
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	})
	require.NoError(t, err)
	return "Bearer " + token
}

func post(t *testing.T, router *gin.Engine, authz string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var raw []byte
	switch b := body.(type) {
	case string:
		raw = []byte(b)
	default:
		var err error
		raw, err = json.Marshal(b)
		require.NoError(t, err)
	}

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, ProcessPath, bytes.NewReader(raw))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

// ==========================
// Process endpoint
// ==========================

func TestProcessTemplateZip_Success(t *testing.T) {
	proc := &fakeProcessor{result: &pipeline.Result{
		RunID:         "r-9",
		AssetCount:    7,
		PreviewImages: []string{"a", "b"},
	}}
	router := setupRouter(t, proc, nil)

	w := post(t, router, bearer(t, "admin-1"), ProcessRequest{TemplateID: "t-1", ZipURL: "https://x/t.zip"})

	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Template processed successfully", body["message"])
	assert.Equal(t, float64(7), body["assetCount"])
	assert.Equal(t, float64(2), body["previewImages"])
	assert.Equal(t, "r-9", body["runId"])

	require.Len(t, proc.got, 1)
	assert.Equal(t, "admin-1", proc.got[0].Identity.UserID)
	assert.Equal(t, "t-1", proc.got[0].TemplateID)
	assert.Equal(t, "https://x/t.zip", proc.got[0].ZipURL)
}

func TestProcessTemplateZip_Unauthorized(t *testing.T) {
	tests := []struct {
		name  string
		authz string
	}{
		{"no header", ""},
		{"not bearer", "Basic Zm9vOmJhcg=="},
		{"bad token", "Bearer not-a-jwt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proc := &fakeProcessor{}
			router := setupRouter(t, proc, nil)

			w := post(t, router, tt.authz, ProcessRequest{TemplateID: "t-1", ZipURL: "u"})

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, "Unauthorized", decode(t, w)["error"])
			assert.Empty(t, proc.got, "pipeline must not run")
		})
	}
}

func TestProcessTemplateZip_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		msg    string
	}{
		{"forbidden", errors.NewForbiddenError("guest"), http.StatusForbidden, "Forbidden: Admin access required"},
		{"missing fields", errors.NewInvalidInputError("Missing required fields", ""), http.StatusBadRequest, "Missing required fields"},
		{"template", errors.NewTemplateNotFoundError("t-1"), http.StatusNotFound, "Template not found"},
		{"source url", errors.NewInvalidSourceURLError("u"), http.StatusBadRequest, "Invalid ZIP URL - must be from templates bucket"},
		{"too large", errors.NewPayloadTooLargeError(50 * 1024 * 1024), http.StatusRequestEntityTooLarge, "ZIP file too large (max 50MB)"},
		{"no entry point", errors.NewMissingEntryPointError(), http.StatusUnprocessableEntity, "No index.html file found in ZIP"},
		{"persist", errors.NewPersistenceFailedError(stderrors.New("db gone")), http.StatusInternalServerError, "Failed to persist processed template"},
		{"unexpected", stderrors.New("boom"), http.StatusInternalServerError, "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := setupRouter(t, &fakeProcessor{err: tt.err}, nil)

			w := post(t, router, bearer(t, "u-1"), ProcessRequest{TemplateID: "t-1", ZipURL: "u"})

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, map[string]interface{}{"error": tt.msg}, decode(t, w))
		})
	}
}

func TestProcessTemplateZip_MalformedBodyReachesPipeline(t *testing.T) {
	proc := &fakeProcessor{err: errors.NewInvalidInputError("Missing required fields", "")}
	router := setupRouter(t, proc, nil)

	w := post(t, router, bearer(t, "admin-1"), "{not json")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.Len(t, proc.got, 1)
	assert.Empty(t, proc.got[0].TemplateID)
}

func TestProcessTemplateZip_Preflight(t *testing.T) {
	router := setupRouter(t, &fakeProcessor{}, nil)

	req := httptest.NewRequest(http.MethodOptions, ProcessPath, nil)
	req.Header.Set("Origin", "https://app.example.com")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "authorization, x-client-info, apikey, content-type", w.Header().Get("Access-Control-Allow-Headers"))
}

func TestCORSMiddleware_RestrictedOrigins(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORSMiddleware([]string{"https://app.example.com"}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "https://app.example.com")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
}

// ==========================
// Runs
// ==========================

func TestGetRun(t *testing.T) {
	router := setupRouter(t, &fakeProcessor{}, nil)

	get := func(id, authz string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, ProcessPath+"/runs/"+id, nil)
		if authz != "" {
			req.Header.Set("Authorization", authz)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	w := get("r-1", bearer(t, "admin-1"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "done", decode(t, w)["state"])

	assert.Equal(t, http.StatusNotFound, get("r-404", bearer(t, "admin-1")).Code)
	assert.Equal(t, http.StatusUnauthorized, get("r-1", "").Code)
}

// ==========================
// Health
// ==========================

func TestHealthAndReady(t *testing.T) {
	checks := map[string]ReadinessCheck{
		"postgres": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return stderrors.New("dial tcp: refused") },
	}
	router := setupRouter(t, &fakeProcessor{}, checks)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decode(t, w)["status"])

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	body := decode(t, w)
	assert.Equal(t, "unavailable", body["status"])
	assert.Equal(t, map[string]interface{}{"postgres": "ok", "redis": "dial tcp: refused"}, body["checks"])

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
