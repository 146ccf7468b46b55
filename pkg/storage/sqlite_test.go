package storage

import (
	"testing"
	"time"

	"github.com/fuzzhive/fuzzhive/pkg/apierrors"
	"github.com/fuzzhive/fuzzhive/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleTask(id string) *types.Task {
	return &types.Task{
		ID:           id,
		Target:       "https://example.com/FUZZ",
		WordlistName: "common",
		WordlistPath: "/wordlists/common.txt",
		Options:      types.Options{}.WithDefaults(),
		WorkerIDs:    []string{"w1", "w2"},
		Status:       types.TaskPending,
		CreatedAt:    time.Now().UTC(),
	}
}

func TestSaveAndGetTask(t *testing.T) {
	s := newTestStore(t)
	task := sampleTask("task_1")
	require.NoError(t, s.SaveTask(task))

	got, err := s.GetTask("task_1")
	require.NoError(t, err)
	assert.Equal(t, task.Target, got.Target)
	assert.Equal(t, task.WordlistName, got.WordlistName)
	assert.Equal(t, 10, got.Options.Threads)
	assert.Equal(t, []string{"w1", "w2"}, got.WorkerIDs)
	assert.Equal(t, types.TaskPending, got.Status)
	assert.Nil(t, got.CompletedAt)
}

func TestSaveTaskDuplicate(t *testing.T) {
	s := newTestStore(t)
	task := sampleTask("task_1")
	require.NoError(t, s.SaveTask(task))

	err := s.SaveTask(task)
	require.Error(t, err)
	assert.Equal(t, apierrors.DuplicateID, apierrors.KindOf(err))
}

func TestGetTaskNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetTask("missing")
	require.Error(t, err)
	assert.Equal(t, apierrors.NotFound, apierrors.KindOf(err))
}

func TestListTasksFilterByStatus(t *testing.T) {
	s := newTestStore(t)
	t1 := sampleTask("task_1")
	t2 := sampleTask("task_2")
	t2.Status = types.TaskCompleted
	require.NoError(t, s.SaveTask(t1))
	require.NoError(t, s.SaveTask(t2))

	all, err := s.ListTasks("")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	completed, err := s.ListTasks(types.TaskCompleted)
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, "task_2", completed[0].ID)
}

func TestUpdateTaskProgressClamps(t *testing.T) {
	s := newTestStore(t)
	task := sampleTask("task_1")
	require.NoError(t, s.SaveTask(task))

	require.NoError(t, s.UpdateTaskProgress("task_1", 150))
	got, err := s.GetTask("task_1")
	require.NoError(t, err)
	assert.Equal(t, 100, got.Progress)

	require.NoError(t, s.UpdateTaskProgress("task_1", -5))
	got, err = s.GetTask("task_1")
	require.NoError(t, err)
	assert.Equal(t, 0, got.Progress)
}

func TestCompleteTaskIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	task := sampleTask("task_1")
	require.NoError(t, s.SaveTask(task))

	require.NoError(t, s.CompleteTask("task_1", 3))
	require.NoError(t, s.CompleteTask("task_1", 3))

	got, err := s.GetTask("task_1")
	require.NoError(t, err)
	assert.Equal(t, types.TaskCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)
	assert.Equal(t, 3, got.FindingsCount)
	require.NotNil(t, got.CompletedAt)
}

func sampleFinding(id, taskID string) *types.Finding {
	return &types.Finding{
		ID:             id,
		TaskID:         taskID,
		URL:            "https://example.com/admin",
		StatusCode:     200,
		ContentLength:  512,
		Severity:       types.SeverityMedium,
		DetectedIssues: []string{"MEDIUM: Suspicious pattern in URL: admin"},
		CreatedAt:      time.Now().UTC(),
	}
}

func TestSaveFindingAndGetFindings(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SaveTask(sampleTask("task_1")))
	f := sampleFinding("f1", "task_1")
	require.NoError(t, s.SaveFinding(f))

	found, err := s.GetFindings(FindingFilter{TaskID: "task_1"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, f.URL, found[0].URL)
	assert.Equal(t, f.DetectedIssues, found[0].DetectedIssues)
	assert.False(t, found[0].Checked)
}

// Replaying the same finding id (as happens on at-least-once result
// delivery) must not create a duplicate row.
func TestSaveFindingDuplicateIsAbsorbed(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SaveTask(sampleTask("task_1")))
	f := sampleFinding("f1", "task_1")
	require.NoError(t, s.SaveFinding(f))
	require.NoError(t, s.SaveFinding(f))

	found, err := s.GetFindings(FindingFilter{TaskID: "task_1"})
	require.NoError(t, err)
	assert.Len(t, found, 1)
}

func TestMarkFindingChecked(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SaveTask(sampleTask("task_1")))
	f := sampleFinding("f1", "task_1")
	require.NoError(t, s.SaveFinding(f))

	require.NoError(t, s.MarkFindingChecked("f1", true))
	found, err := s.GetFindings(FindingFilter{TaskID: "task_1"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.True(t, found[0].Checked)
}

func TestGetFindingsFilterByChecked(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SaveTask(sampleTask("task_1")))
	f1 := sampleFinding("f1", "task_1")
	f2 := sampleFinding("f2", "task_1")
	f2.URL = "https://example.com/.git/config"
	require.NoError(t, s.SaveFinding(f1))
	require.NoError(t, s.SaveFinding(f2))
	require.NoError(t, s.MarkFindingChecked("f1", true))

	checked := true
	found, err := s.GetFindings(FindingFilter{TaskID: "task_1", Checked: &checked})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "f1", found[0].ID)
}

func TestWorkerUpsertAndList(t *testing.T) {
	s := newTestStore(t)
	w := &types.WorkerRecord{
		WorkerID:     "w1",
		Hostname:     "worker-1",
		Threads:      10,
		RegisteredAt: time.Now().UTC(),
		LastSeen:     time.Now().UTC(),
	}
	require.NoError(t, s.UpsertWorker(w))

	got, err := s.GetWorker("w1")
	require.NoError(t, err)
	assert.Equal(t, "worker-1", got.Hostname)
	assert.Equal(t, 10, got.Threads)

	w.Threads = 20
	w.CurrentTask = "task_1"
	require.NoError(t, s.UpsertWorker(w))

	got, err = s.GetWorker("w1")
	require.NoError(t, err)
	assert.Equal(t, 20, got.Threads)
	assert.Equal(t, "task_1", got.CurrentTask)

	all, err := s.ListWorkers()
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestIncrementWorkerTasksCompleted(t *testing.T) {
	s := newTestStore(t)
	w := &types.WorkerRecord{WorkerID: "w1", Hostname: "h", RegisteredAt: time.Now().UTC()}
	require.NoError(t, s.UpsertWorker(w))

	require.NoError(t, s.IncrementWorkerTasksCompleted("w1"))
	require.NoError(t, s.IncrementWorkerTasksCompleted("w1"))

	got, err := s.GetWorker("w1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.TasksCompleted)
}

func sampleScanConfig(name string) *types.ScanConfig {
	return &types.ScanConfig{
		ID:               "cfg_1",
		Name:             name,
		Target:           "https://example.com/FUZZ",
		Wordlist:         "common",
		ThreadsPerWorker: 10,
		FollowRedirects:  true,
		Extensions:       []string{".php", ".bak"},
		Headers:          []string{"X-Api-Key: test"},
		CreatedAt:        time.Now().UTC(),
	}
}

func TestScanConfigCRUD(t *testing.T) {
	s := newTestStore(t)
	cfg := sampleScanConfig("nightly")
	require.NoError(t, s.SaveScanConfig(cfg))

	got, err := s.GetScanConfig("nightly")
	require.NoError(t, err)
	assert.Equal(t, cfg.Target, got.Target)
	assert.Equal(t, cfg.Extensions, got.Extensions)
	assert.Nil(t, got.RateLimit)

	all, err := s.ListScanConfigs()
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, s.DeleteScanConfig("nightly"))
	_, err = s.GetScanConfig("nightly")
	require.Error(t, err)
	assert.Equal(t, apierrors.NotFound, apierrors.KindOf(err))
}

func TestScanConfigDuplicateName(t *testing.T) {
	s := newTestStore(t)
	cfg := sampleScanConfig("nightly")
	require.NoError(t, s.SaveScanConfig(cfg))

	dup := sampleScanConfig("nightly")
	dup.ID = "cfg_2"
	err := s.SaveScanConfig(dup)
	require.Error(t, err)
	assert.Equal(t, apierrors.DuplicateID, apierrors.KindOf(err))
}

func TestScanConfigRateLimit(t *testing.T) {
	s := newTestStore(t)
	cfg := sampleScanConfig("rated")
	rate := 50
	cfg.RateLimit = &rate
	require.NoError(t, s.SaveScanConfig(cfg))

	got, err := s.GetScanConfig("rated")
	require.NoError(t, err)
	require.NotNil(t, got.RateLimit)
	assert.Equal(t, 50, *got.RateLimit)
}
