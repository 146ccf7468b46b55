package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fuzzhive/fuzzhive/pkg/apierrors"
	"github.com/fuzzhive/fuzzhive/pkg/storage"
	"github.com/fuzzhive/fuzzhive/pkg/types"
)

func newMemStore(t *testing.T) (storage.Store, error) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		return nil, err
	}
	t.Cleanup(func() { store.Close() })
	return store, nil
}

type fakeTasks struct {
	createdTarget string
	createdOpts   types.Options
	task          *types.Task
	createErr     error
	threadsErr    error
}

func (f *fakeTasks) CreateTask(ctx context.Context, target, wordlistName string, workerIDs []string, opts types.Options) (*types.Task, error) {
	f.createdTarget = target
	f.createdOpts = opts
	if f.createErr != nil {
		return nil, f.createErr
	}
	return f.task, nil
}

func (f *fakeTasks) UpdateWorkerThreads(ctx context.Context, workerID string, n int) error {
	return f.threadsErr
}

type fakeWorkers struct {
	records []*types.WorkerRecord
	err     error
}

func (f *fakeWorkers) List(ctx context.Context) ([]*types.WorkerRecord, error) {
	return f.records, f.err
}

func newTestServer(t *testing.T) (*Server, storage.Store, *fakeTasks, *fakeWorkers) {
	t.Helper()
	store, err := newMemStore(t)
	require.NoError(t, err)
	tasks := &fakeTasks{task: &types.Task{ID: "t1"}}
	workers := &fakeWorkers{}
	return New(store, tasks, workers), store, tasks, workers
}

func doRequest(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestCreateScanSucceeds(t *testing.T) {
	s, _, tasks, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/v1/scans", createScanRequest{
		Target:       "https://t/FUZZ",
		WordlistName: "common.txt",
		WorkerIDs:    []string{"w1"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp createScanResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "t1", resp.TaskID)
	assert.Equal(t, "https://t/FUZZ", tasks.createdTarget)
}

func TestCreateScanMergesScanConfigUnderExplicitOptions(t *testing.T) {
	s, store, tasks, _ := newTestServer(t)
	rate := 5
	require.NoError(t, store.SaveScanConfig(&types.ScanConfig{
		Name:             "quick",
		ThreadsPerWorker: 20,
		RateLimit:        &rate,
	}))

	rec := doRequest(t, s, http.MethodPost, "/v1/scans", createScanRequest{
		Target:         "https://t/FUZZ",
		WordlistName:   "common.txt",
		WorkerIDs:      []string{"w1"},
		Options:        types.Options{Threads: 50},
		ScanConfigName: "quick",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	assert.Equal(t, 50, tasks.createdOpts.Threads) // explicit wins
	assert.Equal(t, 5, tasks.createdOpts.Rate)     // filled from config
}

func TestCreateScanUnknownConfigIsError(t *testing.T) {
	s, _, _, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodPost, "/v1/scans", createScanRequest{
		Target:         "https://t/FUZZ",
		WordlistName:   "common.txt",
		WorkerIDs:      []string{"w1"},
		ScanConfigName: "missing",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetTaskNotFound(t *testing.T) {
	s, _, _, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/v1/tasks/unknown", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListFindingsFiltersBySeverity(t *testing.T) {
	s, store, _, _ := newTestServer(t)
	require.NoError(t, store.SaveTask(&types.Task{ID: "t1", Status: types.TaskPending}))
	require.NoError(t, store.SaveFinding(&types.Finding{ID: "f1", TaskID: "t1", Severity: types.SeverityCritical, URL: "https://t/a"}))
	require.NoError(t, store.SaveFinding(&types.Finding{ID: "f2", TaskID: "t1", Severity: types.SeverityLow, URL: "https://t/b"}))

	rec := doRequest(t, s, http.MethodGet, "/v1/findings?severity=critical", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var findings []*types.Finding
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &findings))
	require.Len(t, findings, 1)
	assert.Equal(t, "f1", findings[0].ID)
}

func TestMarkFindingCheckedAndExport(t *testing.T) {
	s, store, _, _ := newTestServer(t)
	require.NoError(t, store.SaveTask(&types.Task{ID: "t1", Status: types.TaskPending}))
	require.NoError(t, store.SaveFinding(&types.Finding{ID: "f1", TaskID: "t1", Severity: types.SeverityHigh, URL: "https://t/a"}))

	rec := doRequest(t, s, http.MethodPost, "/v1/findings/check", markCheckedRequest{FindingID: "f1", Checked: true})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/v1/export?task_id=t1&format=csv", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Yes")
}

func TestListWorkers(t *testing.T) {
	s, _, _, workers := newTestServer(t)
	workers.records = []*types.WorkerRecord{{WorkerID: "w1", Status: types.WorkerActive}}

	rec := doRequest(t, s, http.MethodGet, "/v1/workers", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var records []*types.WorkerRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "w1", records[0].WorkerID)
}

func TestUpdateWorkerThreadsPropagatesInvalidInput(t *testing.T) {
	s, _, tasks, _ := newTestServer(t)
	tasks.threadsErr = apierrors.New(apierrors.InvalidInput, "threads must be in [1,100]")

	rec := doRequest(t, s, http.MethodPost, "/v1/workers/threads", updateThreadsRequest{WorkerID: "w1", Threads: 150})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScanConfigLifecycle(t *testing.T) {
	s, _, _, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/v1/scan-configs", types.ScanConfig{Name: "default", ThreadsPerWorker: 10})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/v1/scan-configs/default", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, s, http.MethodDelete, "/v1/scan-configs/default", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/v1/scan-configs/default", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSecuritySummaryAggregatesSeverityAndCritical(t *testing.T) {
	s, store, _, _ := newTestServer(t)
	require.NoError(t, store.SaveTask(&types.Task{ID: "t1", Status: types.TaskPending}))
	require.NoError(t, store.SaveFinding(&types.Finding{ID: "f1", TaskID: "t1", Severity: types.SeverityCritical, URL: "https://t/a", Checked: false}))
	require.NoError(t, store.SaveFinding(&types.Finding{ID: "f2", TaskID: "t1", Severity: types.SeverityLow, URL: "https://t/b", Checked: true}))

	rec := doRequest(t, s, http.MethodGet, "/v1/security-summary", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp securitySummaryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.TotalFindings)
	assert.Equal(t, 1, resp.UncheckedCount)
	assert.Equal(t, 1, resp.SeverityStats["critical"])
	require.Len(t, resp.RecentCritical, 1)
	assert.Equal(t, "f1", resp.RecentCritical[0].ID)
}
