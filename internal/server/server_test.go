package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"yukemuri/internal/domain"
	"yukemuri/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	goleak.VerifyTestMain(m)
}

func testRouter(t *testing.T) (*gin.Engine, *store.Store) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "yu.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	outDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outDir, "index.html"), []byte("<h1>artifacts</h1>"), 0o644))

	return Router(s, Options{OutDir: outDir}), s
}

func seedVisit(t *testing.T, s *store.Store) *domain.Visit {
	t.Helper()
	id, err := s.CreateOnsen(&domain.Onsen{Name: "Takaragawa", Region: "Gunma"})
	require.NoError(t, err)
	v := &domain.Visit{
		OnsenID:     id,
		VisitedAt:   time.Date(2026, 2, 14, 15, 0, 0, 0, time.UTC),
		DurationMin: 50,
		Rating:      8.5,
	}
	require.NoError(t, s.CreateVisit(v))
	return v
}

func get(r *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	r.ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	r, s := testRouter(t)
	seedVisit(t, s)

	w := get(r, "/api/healthz")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Status string         `json:"status"`
		Counts map[string]int `json:"counts"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, 1, body.Counts["onsens"])
	assert.Equal(t, 1, body.Counts["visits"])
}

func TestOnsenEndpoints(t *testing.T) {
	r, s := testRouter(t)
	seedVisit(t, s)

	w := get(r, "/api/onsens")
	require.Equal(t, http.StatusOK, w.Code)
	var onsens []*domain.Onsen
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &onsens))
	require.Len(t, onsens, 1)
	assert.Equal(t, "Takaragawa", onsens[0].Name)

	w = get(r, "/api/onsens/1")
	assert.Equal(t, http.StatusOK, w.Code)

	w = get(r, "/api/onsens/999")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = get(r, "/api/onsens/abc")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestVisitEndpoint(t *testing.T) {
	r, s := testRouter(t)
	seeded := seedVisit(t, s)

	w := get(r, "/api/visits")
	require.Equal(t, http.StatusOK, w.Code)
	var visits []*domain.Visit
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &visits))
	require.Len(t, visits, 1)
	assert.Equal(t, seeded.ID, visits[0].ID)

	w = get(r, "/api/visits?onsen=999")
	require.Equal(t, http.StatusOK, w.Code)

	w = get(r, "/api/visits?limit=-1")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = get(r, "/api/visits?since=notatime")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestInsightsEmpty(t *testing.T) {
	r, _ := testRouter(t)

	w := get(r, "/api/insights")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Run      any   `json:"run"`
		Insights []any `json:"insights"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Nil(t, body.Run)
	assert.Empty(t, body.Insights)
}

func TestStaticArtifacts(t *testing.T) {
	r, _ := testRouter(t)

	w := get(r, "/")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "artifacts")

	// The file server canonicalizes /index.html to the directory.
	w = get(r, "/index.html")
	assert.Equal(t, http.StatusMovedPermanently, w.Code)
	assert.Equal(t, "./", w.Header().Get("Location"))
}
