package bridge

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mCat-0/mCat-ac/internal/app"
	"github.com/mCat-0/mCat-ac/internal/catalog"
	"github.com/mCat-0/mCat-ac/internal/config"
	"github.com/mCat-0/mCat-ac/internal/metrics"
)

const wondersJSON = `{"name":"天地万象","achievements":[
	{"id":1,"name":"天下宝藏","reward":5},
	{"id":2,"name":"天下宝藏","reward":10,"preStage":1},
	{"id":3,"name":"天下宝藏","reward":20,"preStage":2},
	{"id":4,"name":"冒险家","reward":5}
]}`

const exportJSON = `{"achievements":[{"id":1,"timestamp":1700000000},{"id":4,"timestamp":1700000001}]}`

func newTestServer(t *testing.T, withCatalog bool, opts Options) http.Handler {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()

	if withCatalog {
		require.NoError(t, os.MkdirAll(cfg.CategoryDir(), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(cfg.CategoryDir(), "wonders.json"), []byte(wondersJSON), 0o644))
		raw, err := json.Marshal(catalog.Manifest{Categories: []catalog.CategoryInfo{{FileName: "wonders.json"}}})
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(cfg.CatalogDir(), catalog.ManifestFile), raw, 0o644))
	}

	log, _ := test.NewNullLogger()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	a := app.New(cfg, app.Options{Logger: log, Metrics: m})

	opts.Logger = log
	opts.Metrics = m
	opts.Gatherer = reg
	return New(a, opts).Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestRecordAndCheckProgress(t *testing.T) {
	h := newTestServer(t, true, Options{})

	rec := do(t, h, http.MethodPost, "/v1/users/u1/achievements", `{"tokens":["天下宝藏2","nope"]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rr := decode[recordResponse](t, rec)
	require.Len(t, rr.Recorded, 1)
	assert.Equal(t, 2, rr.Recorded[0].Achievement.ID)
	assert.Equal(t, "stage 2", rr.Recorded[0].Achievement.Stage)
	assert.Equal(t, 2, rr.Added)
	require.Len(t, rr.NotFound, 1)
	assert.Equal(t, "nope", rr.NotFound[0].Token)

	rec = do(t, h, http.MethodGet, "/v1/users/u1/progress?page=1&size=1", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	pr := decode[progressResponse](t, rec)
	assert.Equal(t, 4, pr.Total)
	assert.Equal(t, 2, pr.CompletedCount)
	assert.Equal(t, 2, pr.Pages)
	require.Len(t, pr.Items, 1)
	assert.Equal(t, 3, pr.Items[0].ID)
	assert.Equal(t, "stage 3", pr.Items[0].Stage)
}

func TestImportAndReset(t *testing.T) {
	h := newTestServer(t, true, Options{})

	rec := do(t, h, http.MethodPost, "/v1/users/u1/import", exportJSON)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	ir := decode[importResponse](t, rec)
	assert.Equal(t, 2, ir.Added)
	assert.NotEmpty(t, ir.BatchID)

	rec = do(t, h, http.MethodDelete, "/v1/users/u1/progress", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, h, http.MethodDelete, "/v1/users/u2/progress", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestErrorResponses(t *testing.T) {
	h := newTestServer(t, false, Options{})

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   string
	}{
		{"bad json", http.MethodPost, "/v1/users/u1/achievements", `{`, http.StatusBadRequest, "invalid_request"},
		{"no tokens", http.MethodPost, "/v1/users/u1/achievements", `{"tokens":[]}`, http.StatusBadRequest, "invalid_request"},
		{"no catalog", http.MethodPost, "/v1/users/u1/achievements", `{"tokens":["1"]}`, http.StatusServiceUnavailable, "catalog_unavailable"},
		{"nothing recorded", http.MethodGet, "/v1/users/u1/progress", ``, http.StatusNotFound, "not_found"},
		{"bad page", http.MethodGet, "/v1/users/u1/progress?page=0", ``, http.StatusBadRequest, "invalid_request"},
		{"nothing extracted", http.MethodPost, "/v1/users/u1/import", `{"a":1}`, http.StatusUnprocessableEntity, "nothing_extracted"},
		{"bad share code", http.MethodPost, "/v1/users/u1/sharecode/short", ``, http.StatusBadRequest, "invalid_request"},
		{"bad force", http.MethodPost, "/v1/catalog/refresh?force=maybe", ``, http.StatusBadRequest, "invalid_request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, tt.method, tt.path, tt.body)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			er := decode[errorResponse](t, rec)
			assert.Equal(t, tt.code, er.Code)
			assert.NotEmpty(t, er.Message)
		})
	}
}

func TestMessagesAndInput(t *testing.T) {
	h := newTestServer(t, true, Options{})

	rec := do(t, h, http.MethodPost, "/v1/messages", `{"userId":"u1","text":"hello"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"handled":false}`, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/v1/users/u1/input", ``)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "awaiting_share_code")

	rec = do(t, h, http.MethodGet, "/v1/users/u1/status", ``)
	require.Equal(t, http.StatusOK, rec.Code)
	var st app.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	require.NotNil(t, st.User)
	assert.True(t, st.User.Awaiting)
	assert.True(t, st.CatalogLoaded)
}

func TestRateLimitPerUser(t *testing.T) {
	h := newTestServer(t, true, Options{UserRate: 0.001, UserBurst: 2})

	for range 2 {
		rec := do(t, h, http.MethodGet, "/v1/users/u1/status", ``)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := do(t, h, http.MethodGet, "/v1/users/u1/status", ``)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec = do(t, h, http.MethodGet, "/v1/users/u2/status", ``)
	assert.Equal(t, http.StatusOK, rec.Code, "buckets are per user")
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestServer(t, true, Options{})

	do(t, h, http.MethodGet, "/v1/users/u1/status", ``)
	rec := do(t, h, http.MethodGet, "/metrics", ``)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `mcatac_http_requests_total{method="GET",path="/v1/users/{id}/status",status="OK"} 1`)
}

func TestUserLimiterCleanup(t *testing.T) {
	l := newUserLimiter(1, 1)
	l.get("a")
	assert.Equal(t, 0, l.cleanup(time.Hour))
	assert.Equal(t, 1, l.cleanup(-1))
}
