package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/RBarbieri13/decant/internal/common"
	"github.com/RBarbieri13/decant/internal/metrics"
	"github.com/RBarbieri13/decant/internal/models"
)

// ---- fakes ----

type fakeImporter struct {
	result      *models.ImportResult
	err         error
	lastRequest *models.ImportRequest
	invalidated int
}

func (f *fakeImporter) Import(ctx context.Context, req *models.ImportRequest) (*models.ImportResult, error) {
	f.lastRequest = req
	return f.result, f.err
}

func (f *fakeImporter) CheckURL(ctx context.Context, url string) (bool, bool, *models.ImportCacheEntry, string, error) {
	if f.result != nil {
		return true, false, nil, f.result.NodeID, nil
	}
	return false, false, nil, "", nil
}

func (f *fakeImporter) InvalidateCache(url string) int {
	f.invalidated++
	return 1
}

func (f *fakeImporter) CacheStats() map[string]interface{} {
	return map[string]interface{}{"entries": 0}
}

type fakeSearch struct {
	nodes   []*models.Node
	results *models.SearchResults
	err     error
}

func (f *fakeSearch) SearchNodes(ctx context.Context, query string, limit, offset int) ([]*models.Node, error) {
	return f.nodes, f.err
}

func (f *fakeSearch) SearchNodesAdvanced(ctx context.Context, query string, filters *models.SearchFilters, page, limit int) (*models.SearchResults, error) {
	return f.results, f.err
}

func (f *fakeSearch) CountSearchResults(ctx context.Context, query string, filters *models.SearchFilters) (int, error) {
	return len(f.nodes), nil
}

type fakeKeystore struct {
	keys map[string]string
}

func (f *fakeKeystore) SetKey(ctx context.Context, provider, value string) error {
	f.keys[provider] = value
	return nil
}

func (f *fakeKeystore) GetKey(ctx context.Context, provider string) (string, error) {
	value, ok := f.keys[provider]
	if !ok {
		return "", common.NewError(common.ErrNotFound, "no key for provider")
	}
	return value, nil
}

func (f *fakeKeystore) DeleteKey(ctx context.Context, provider string) error {
	delete(f.keys, provider)
	return nil
}

func (f *fakeKeystore) ListProviders(ctx context.Context) ([]string, error) {
	providers := make([]string, 0, len(f.keys))
	for provider := range f.keys {
		providers = append(providers, provider)
	}
	return providers, nil
}

type fakePinger struct {
	pingErr    error
	migrated   bool
	migrateErr error
}

func (f *fakePinger) Ping(ctx context.Context) error   { return f.pingErr }
func (f *fakePinger) MigrationsApplied() (bool, error) { return f.migrated, f.migrateErr }

type fakeHealthQueue struct {
	statsErr error
}

func (f *fakeHealthQueue) Enqueue(ctx context.Context, job *models.EnrichmentJob) error { return nil }
func (f *fakeHealthQueue) ClaimPending(ctx context.Context, limit int) ([]*models.EnrichmentJob, error) {
	return nil, nil
}
func (f *fakeHealthQueue) MarkDone(ctx context.Context, jobID string) error { return nil }
func (f *fakeHealthQueue) MarkFailed(ctx context.Context, jobID string, cause error) error {
	return nil
}
func (f *fakeHealthQueue) Stats(ctx context.Context) (map[string]int, error) {
	return map[string]int{"pending": 0}, f.statsErr
}
func (f *fakeHealthQueue) Close() error { return nil }

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

// ---- import handler ----

func TestImportHandler_Import(t *testing.T) {
	importer := &fakeImporter{
		result: &models.ImportResult{
			NodeID: "node-1",
			Node:   &models.Node{ID: "node-1", URL: "https://example.com", ContentType: "a"},
			Classification: &models.Classification{
				Segment: "A", Category: "LLM", ContentType: "a", Organization: "Acme", Confidence: 0.9,
			},
			HierarchyCodes: &models.HierarchyCodes{Function: "A.LLM.a.x", Organization: "INBOX.acme"},
			Phase2:         models.Phase2Status{Queued: true, JobID: "job-1"},
		},
	}
	handler := NewImportHandler(arbor.NewLogger(), importer, metrics.New(), false)

	body := bytes.NewBufferString(`{"url": "https://example.com"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/import", body)
	rec := httptest.NewRecorder()
	handler.Import(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	response := decodeResponse(t, rec)
	assert.Equal(t, true, response["success"])
	assert.Equal(t, "node-1", response["nodeId"])
	assert.Equal(t, false, response["cached"])
	require.NotNil(t, importer.lastRequest)
	assert.Equal(t, "https://example.com", importer.lastRequest.URL)
}

func TestImportHandler_MissingURL(t *testing.T) {
	handler := NewImportHandler(arbor.NewLogger(), &fakeImporter{}, nil, false)

	req := httptest.NewRequest(http.MethodPost, "/api/import", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	handler.Import(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	response := decodeResponse(t, rec)
	assert.Equal(t, string(common.ErrURLRequired), response["code"])
}

func TestImportHandler_RateLimitedSetsRetryAfter(t *testing.T) {
	limited := common.NewRecoverableError(common.ErrRateLimitExceeded, "slow down")
	limited.RetryAfter = 30
	handler := NewImportHandler(arbor.NewLogger(), &fakeImporter{err: limited}, nil, false)

	body := bytes.NewBufferString(`{"url": "https://example.com"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/import", body)
	rec := httptest.NewRecorder()
	handler.Import(rec, req)

	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))
	response := decodeResponse(t, rec)
	assert.Equal(t, string(common.ErrRateLimitExceeded), response["code"])
	assert.Equal(t, float64(30), response["retryAfter"])
}

func TestImportHandler_ProductionRedactsInternalErrors(t *testing.T) {
	failure := common.NewError(common.ErrDatabaseError, "sqlite: disk I/O error on /var/lib/decant.db")
	handler := NewImportHandler(arbor.NewLogger(), &fakeImporter{err: failure}, nil, true)

	body := bytes.NewBufferString(`{"url": "https://example.com"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/import", body)
	rec := httptest.NewRecorder()
	handler.Import(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	response := decodeResponse(t, rec)
	assert.Equal(t, "An internal error occurred", response["error"])
	assert.Equal(t, string(common.ErrDatabaseError), response["code"])
}

func TestImportHandler_MethodNotAllowed(t *testing.T) {
	handler := NewImportHandler(arbor.NewLogger(), &fakeImporter{}, nil, false)

	req := httptest.NewRequest(http.MethodGet, "/api/import", nil)
	rec := httptest.NewRecorder()
	handler.Import(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestImportHandler_Check(t *testing.T) {
	importer := &fakeImporter{result: &models.ImportResult{NodeID: "node-1"}}
	handler := NewImportHandler(arbor.NewLogger(), importer, nil, false)

	req := httptest.NewRequest(http.MethodGet, "/api/import/check?url=https://example.com", nil)
	rec := httptest.NewRecorder()
	handler.Check(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	response := decodeResponse(t, rec)
	assert.Equal(t, true, response["exists"])
	assert.Equal(t, "node-1", response["nodeId"])
}

// ---- search handler ----

func TestSearchHandler_Simple(t *testing.T) {
	search := &fakeSearch{nodes: []*models.Node{{ID: "n1"}, {ID: "n2"}}}
	handler := NewSearchHandler(arbor.NewLogger(), search, metrics.New(), false)

	req := httptest.NewRequest(http.MethodGet, "/api/search?q=golang&limit=500", nil)
	rec := httptest.NewRecorder()
	handler.Simple(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	response := decodeResponse(t, rec)
	assert.Equal(t, "golang", response["query"])
	assert.Len(t, response["nodes"], 2)
	// limit clamped to the maximum
	assert.Equal(t, float64(100), response["limit"])
}

func TestSearchHandler_Filtered(t *testing.T) {
	search := &fakeSearch{results: &models.SearchResults{
		Hits:  []*models.SearchHit{{Node: &models.Node{ID: "n1"}}},
		Total: 1,
		Page:  1,
		Limit: 20,
	}}
	handler := NewSearchHandler(arbor.NewLogger(), search, nil, false)

	body := bytes.NewBufferString(`{"query": "golang", "filters": {"segments": ["S"]}}`)
	req := httptest.NewRequest(http.MethodPost, "/api/search/filtered", body)
	rec := httptest.NewRecorder()
	handler.Filtered(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	response := decodeResponse(t, rec)
	assert.Equal(t, float64(1), response["total"])
}

func TestSearchHandler_StorageErrorSurfaces(t *testing.T) {
	search := &fakeSearch{err: common.NewError(common.ErrDatabaseError, "query failed")}
	handler := NewSearchHandler(arbor.NewLogger(), search, nil, false)

	req := httptest.NewRequest(http.MethodGet, "/api/search?q=x", nil)
	rec := httptest.NewRecorder()
	handler.Simple(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

// ---- settings handler ----

func TestSettingsHandler_Lifecycle(t *testing.T) {
	keystore := &fakeKeystore{keys: map[string]string{}}
	handler := NewSettingsHandler(arbor.NewLogger(), keystore, false)

	body := bytes.NewBufferString(`{"provider": "claude", "apiKey": "sk-test"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/settings/api-key", body)
	rec := httptest.NewRecorder()
	handler.APIKey(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "sk-test", keystore.keys["claude"])

	req = httptest.NewRequest(http.MethodGet, "/api/settings/api-key", nil)
	rec = httptest.NewRecorder()
	handler.APIKey(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	response := decodeResponse(t, rec)
	assert.Equal(t, []interface{}{"claude"}, response["providers"])
	// key material must never appear in the listing
	assert.NotContains(t, rec.Body.String(), "sk-test")

	req = httptest.NewRequest(http.MethodDelete, "/api/settings/api-key?provider=claude", nil)
	rec = httptest.NewRecorder()
	handler.APIKey(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, keystore.keys)
}

func TestSettingsHandler_RejectsPartialBody(t *testing.T) {
	handler := NewSettingsHandler(arbor.NewLogger(), &fakeKeystore{keys: map[string]string{}}, false)

	body := bytes.NewBufferString(`{"provider": "claude"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/settings/api-key", body)
	rec := httptest.NewRecorder()
	handler.APIKey(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// ---- health handler ----

func TestHealthHandler_Ready(t *testing.T) {
	handler := NewHealthHandler(arbor.NewLogger(), &fakePinger{migrated: true}, &fakeHealthQueue{})

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	rec := httptest.NewRecorder()
	handler.Ready(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	response := decodeResponse(t, rec)
	assert.Equal(t, true, response["ready"])
}

func TestHealthHandler_NotReadyWhenMigrationsPending(t *testing.T) {
	handler := NewHealthHandler(arbor.NewLogger(), &fakePinger{migrated: false}, &fakeHealthQueue{})

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	rec := httptest.NewRecorder()
	handler.Ready(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	response := decodeResponse(t, rec)
	assert.Equal(t, false, response["ready"])
	checks := response["checks"].(map[string]interface{})
	assert.Equal(t, "pending", checks["migrations"])
}

func TestHealthHandler_Health(t *testing.T) {
	handler := NewHealthHandler(arbor.NewLogger(), &fakePinger{migrated: true}, &fakeHealthQueue{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.Health(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	response := decodeResponse(t, rec)
	assert.Equal(t, "healthy", response["status"])
	assert.NotEmpty(t, response["version"])
}

// ---- tree view parsing ----

func TestParseView(t *testing.T) {
	view, err := ParseView("function")
	require.NoError(t, err)
	assert.Equal(t, models.HierarchyFunction, view)

	view, err = ParseView("organization")
	require.NoError(t, err)
	assert.Equal(t, models.HierarchyOrganization, view)

	_, err = ParseView("bogus")
	require.Error(t, err)
	assert.Equal(t, common.ErrValidationFailed, common.CodeOf(err))
}
