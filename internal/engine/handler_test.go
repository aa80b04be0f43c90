package engine

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/comptaflow/comptaflow/internal/documents"
)

func newTestHandler(repo *memoryRepo, client *fakeAI, enqueue EnqueueFunc) http.Handler {
	generator := NewGenerator(nil, testLogger())
	if client != nil {
		generator = NewGenerator(client, testLogger())
	}
	coordinator := NewCoordinator(repo, nil)
	handler := NewHandler(HandlerConfig{
		Logger:    testLogger(),
		Repo:      repo,
		Charts:    memoryCharts{repo: repo},
		Generator: generator,
		Coord:     coordinator,
		Batch: NewBatchController(BatchConfig{
			Charts:    memoryCharts{repo: repo},
			Generator: generator,
			Coord:     coordinator,
			Repo:      repo,
			Logger:    testLogger(),
			Opts:      Options{UseAI: false},
			Pause:     time.Nanosecond,
		}),
		Enqueue: enqueue,
		Opts:    Options{UseAI: client != nil},
	})
	r := chi.NewRouter()
	r.Route("/posting", handler.MountRoutes)
	return r
}

func seededRepo() *memoryRepo {
	repo := newMemoryRepo()
	repo.seedChart(7, testChart()...)
	doc := purchaseDoc()
	repo.docs[doc.ID] = doc
	return repo
}

func TestHandleGeneratePersistsAndResponds(t *testing.T) {
	repo := seededRepo()
	server := newTestHandler(repo, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/posting/documents/101/generate",
		strings.NewReader(`{"tenantId": 7, "kind": "purchase", "useAI": false}`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	server.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var resp generateResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Entries, 3)
	require.Equal(t, "607000", resp.Entries[0].Compte)
	require.Equal(t, 1000.0, resp.Entries[0].Debit)
	require.True(t, resp.IsBalanced)
	require.Equal(t, MethodRules, resp.Method)

	key := refKey(documents.Ref{ID: 101, Kind: documents.KindPurchase})
	require.Len(t, repo.entries[key], 3)
	require.Equal(t, documents.StatusPosted, repo.statuses[key])
}

func TestHandleGenerateUnknownDocument(t *testing.T) {
	server := newTestHandler(seededRepo(), nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/posting/documents/999/generate",
		strings.NewReader(`{"tenantId": 7, "kind": "purchase"}`))
	rr := httptest.NewRecorder()
	server.ServeHTTP(rr, req)

	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandleGenerateTenantMismatchReadsAsNotFound(t *testing.T) {
	server := newTestHandler(seededRepo(), nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/posting/documents/101/generate",
		strings.NewReader(`{"tenantId": 8, "kind": "purchase"}`))
	rr := httptest.NewRecorder()
	server.ServeHTTP(rr, req)

	require.Equal(t, http.StatusNotFound, rr.Code)
	require.NotContains(t, rr.Body.String(), "tenant")
}

func TestHandleGenerateEmptyChart(t *testing.T) {
	repo := newMemoryRepo()
	doc := purchaseDoc()
	repo.docs[doc.ID] = doc
	server := newTestHandler(repo, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/posting/documents/101/generate",
		strings.NewReader(`{"tenantId": 7, "kind": "purchase"}`))
	rr := httptest.NewRecorder()
	server.ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandleGenerateInvalidBody(t *testing.T) {
	server := newTestHandler(seededRepo(), nil, nil)

	for _, body := range []string{
		`{`,
		`{"kind": "purchase"}`,
		`{"tenantId": 7}`,
		`{"tenantId": 7, "kind": "customs"}`,
	} {
		req := httptest.NewRequest(http.MethodPost, "/posting/documents/101/generate", strings.NewReader(body))
		rr := httptest.NewRecorder()
		server.ServeHTTP(rr, req)
		require.Equal(t, http.StatusBadRequest, rr.Code, "body %s", body)
	}
}

func TestHandleRegenerateReportsCounts(t *testing.T) {
	repo := newMemoryRepo()
	repo.seedChart(7, testChart()...)
	seedPurchases(repo, 7, 2)
	server := newTestHandler(repo, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/posting/tenants/7/regenerate", nil)
	rr := httptest.NewRecorder()
	server.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var report BatchReport
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &report))
	require.Equal(t, 2, report.Total)
	require.Equal(t, 2, report.Regenerated)
	require.Zero(t, report.Errors)
}

func TestHandleRegenerateAsync(t *testing.T) {
	var enqueued int64
	server := newTestHandler(seededRepo(), nil, func(tenantID int64) (string, error) {
		enqueued = tenantID
		return "task-123", nil
	})

	req := httptest.NewRequest(http.MethodPost, "/posting/tenants/7/regenerate/async", nil)
	rr := httptest.NewRecorder()
	server.ServeHTTP(rr, req)

	require.Equal(t, http.StatusAccepted, rr.Code)
	require.Equal(t, int64(7), enqueued)
	require.Contains(t, rr.Body.String(), "task-123")
}

func TestHandleRegenerateAsyncWithoutWorker(t *testing.T) {
	server := newTestHandler(seededRepo(), nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/posting/tenants/7/regenerate/async", nil)
	rr := httptest.NewRecorder()
	server.ServeHTTP(rr, req)

	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestHandleRecognize(t *testing.T) {
	server := newTestHandler(seededRepo(), &fakeAI{reply: visionReply}, nil)

	req := httptest.NewRequest(http.MethodPost, "/posting/documents/recognize",
		strings.NewReader(`{"image": "/9j/4AAQ", "mimeType": "image/jpeg"}`))
	rr := httptest.NewRecorder()
	server.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"journal":"PURCHASE"`)
}

func TestHandleRecognizeWithoutAI(t *testing.T) {
	server := newTestHandler(seededRepo(), nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/posting/documents/recognize",
		strings.NewReader(`{"image": "/9j/4AAQ"}`))
	rr := httptest.NewRecorder()
	server.ServeHTTP(rr, req)

	require.Equal(t, http.StatusInternalServerError, rr.Code)
}
