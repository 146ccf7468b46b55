package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/fuzzhive/fuzzhive/pkg/apierrors"
	"github.com/fuzzhive/fuzzhive/pkg/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	task_id TEXT PRIMARY KEY,
	target TEXT NOT NULL,
	wordlist_name TEXT NOT NULL,
	wordlist_path TEXT NOT NULL,
	options TEXT NOT NULL,
	worker_ids TEXT NOT NULL,
	status TEXT NOT NULL,
	progress INTEGER NOT NULL DEFAULT 0,
	findings_count INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL,
	completed_at TIMESTAMP
);

CREATE TABLE IF NOT EXISTS findings (
	finding_id TEXT PRIMARY KEY,
	task_id TEXT NOT NULL,
	url TEXT NOT NULL,
	status_code INTEGER NOT NULL,
	content_length INTEGER NOT NULL,
	words INTEGER NOT NULL,
	lines INTEGER NOT NULL,
	severity TEXT NOT NULL,
	detected_issues TEXT NOT NULL,
	raw_response TEXT,
	checked BOOLEAN NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL,
	FOREIGN KEY (task_id) REFERENCES tasks (task_id)
);
CREATE INDEX IF NOT EXISTS idx_findings_task_id ON findings (task_id);
CREATE INDEX IF NOT EXISTS idx_findings_severity ON findings (severity);

CREATE TABLE IF NOT EXISTS workers (
	worker_id TEXT PRIMARY KEY,
	hostname TEXT NOT NULL,
	threads INTEGER NOT NULL DEFAULT 10,
	current_task TEXT,
	last_seen TIMESTAMP,
	tasks_completed INTEGER NOT NULL DEFAULT 0,
	registered_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS scan_configs (
	config_id TEXT PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	target TEXT NOT NULL,
	wordlist TEXT NOT NULL,
	threads_per_worker INTEGER NOT NULL DEFAULT 10,
	rate_limit INTEGER,
	follow_redirects BOOLEAN NOT NULL DEFAULT 1,
	recursive BOOLEAN NOT NULL DEFAULT 0,
	extensions TEXT,
	headers TEXT,
	created_at TIMESTAMP NOT NULL
);
`

// SQLiteStore implements Store on top of database/sql + the sqlite3 driver.
type SQLiteStore struct {
	db *sql.DB
}

// Open creates (or reopens) the SQLite-backed store at path. Use
// ":memory:" for an ephemeral store, primarily useful in tests.
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite allows exactly one writer at a time; a single conn avoids
	// "database is locked" errors from the driver juggling a pool.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) SaveTask(task *types.Task) error {
	options, err := json.Marshal(task.Options)
	if err != nil {
		return apierrors.Wrap(apierrors.StoreFailure, err)
	}
	workerIDs, err := json.Marshal(task.WorkerIDs)
	if err != nil {
		return apierrors.Wrap(apierrors.StoreFailure, err)
	}

	_, err = s.db.Exec(
		`INSERT INTO tasks (task_id, target, wordlist_name, wordlist_path, options, worker_ids, status, progress, findings_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID, task.Target, task.WordlistName, task.WordlistPath, string(options), string(workerIDs),
		string(task.Status), task.Progress, task.FindingsCount, task.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apierrors.New(apierrors.DuplicateID, "task %s already exists", task.ID)
		}
		return apierrors.Wrap(apierrors.StoreFailure, err)
	}
	return nil
}

func (s *SQLiteStore) GetTask(id string) (*types.Task, error) {
	row := s.db.QueryRow(
		`SELECT task_id, target, wordlist_name, wordlist_path, options, worker_ids, status, progress, findings_count, created_at, completed_at
		 FROM tasks WHERE task_id = ?`, id)
	task, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, apierrors.New(apierrors.NotFound, "task %s not found", id)
	}
	if err != nil {
		return nil, apierrors.Wrap(apierrors.StoreFailure, err)
	}
	return task, nil
}

func (s *SQLiteStore) ListTasks(status types.TaskStatus) ([]*types.Task, error) {
	var rows *sql.Rows
	var err error
	if status == "" {
		rows, err = s.db.Query(
			`SELECT task_id, target, wordlist_name, wordlist_path, options, worker_ids, status, progress, findings_count, created_at, completed_at
			 FROM tasks ORDER BY created_at DESC`)
	} else {
		rows, err = s.db.Query(
			`SELECT task_id, target, wordlist_name, wordlist_path, options, worker_ids, status, progress, findings_count, created_at, completed_at
			 FROM tasks WHERE status = ? ORDER BY created_at DESC`, string(status))
	}
	if err != nil {
		return nil, apierrors.Wrap(apierrors.StoreFailure, err)
	}
	defer rows.Close()

	var tasks []*types.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, apierrors.Wrap(apierrors.StoreFailure, err)
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// UpdateTaskProgress clamps to [0,100], moves a pending task to
// in_progress, and is a no-op on an unknown id.
func (s *SQLiteStore) UpdateTaskProgress(id string, progress int) error {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	_, err := s.db.Exec(
		`UPDATE tasks SET progress = ?, status = CASE WHEN status = ? THEN ? ELSE status END WHERE task_id = ?`,
		progress, string(types.TaskPending), string(types.TaskInProgress), id,
	)
	if err != nil {
		return apierrors.Wrap(apierrors.StoreFailure, err)
	}
	return nil
}

// CompleteTask is idempotent: calling it twice with the same id leaves the
// task completed with the findings count from the most recent call.
func (s *SQLiteStore) CompleteTask(id string, findingsCount int) error {
	_, err := s.db.Exec(
		`UPDATE tasks SET status = ?, progress = 100, findings_count = ?, completed_at = ? WHERE task_id = ?`,
		string(types.TaskCompleted), findingsCount, time.Now().UTC(), id,
	)
	if err != nil {
		return apierrors.Wrap(apierrors.StoreFailure, err)
	}
	return nil
}

// SaveFinding upserts on finding_id so a duplicate delivery of the same raw
// record is silently absorbed.
func (s *SQLiteStore) SaveFinding(f *types.Finding) error {
	issues, err := json.Marshal(f.DetectedIssues)
	if err != nil {
		return apierrors.Wrap(apierrors.StoreFailure, err)
	}

	_, err = s.db.Exec(
		`INSERT INTO findings (finding_id, task_id, url, status_code, content_length, words, lines, severity, detected_issues, raw_response, checked, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(finding_id) DO NOTHING`,
		f.ID, f.TaskID, f.URL, f.StatusCode, f.ContentLength, f.Words, f.Lines,
		string(f.Severity), string(issues), f.RawResponse, f.Checked, f.CreatedAt,
	)
	if err != nil {
		return apierrors.Wrap(apierrors.StoreFailure, err)
	}
	return nil
}

// GetFindings returns findings newest first. Each finding is joined with
// its owning task, so a finding whose task row is missing is not
// returned; the task's target and wordlist name are not included in the
// returned findings.
func (s *SQLiteStore) GetFindings(filter FindingFilter) ([]*types.Finding, error) {
	query := `SELECT f.finding_id, f.task_id, f.url, f.status_code, f.content_length, f.words, f.lines,
	                 f.severity, f.detected_issues, f.raw_response, f.checked, f.created_at
	          FROM findings f
	          JOIN tasks t ON t.task_id = f.task_id
	          WHERE 1=1`
	var args []any
	if filter.TaskID != "" {
		query += ` AND f.task_id = ?`
		args = append(args, filter.TaskID)
	}
	if filter.Checked != nil {
		query += ` AND f.checked = ?`
		args = append(args, *filter.Checked)
	}
	query += ` ORDER BY f.created_at DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.StoreFailure, err)
	}
	defer rows.Close()

	var findings []*types.Finding
	for rows.Next() {
		f, err := scanFinding(rows)
		if err != nil {
			return nil, apierrors.Wrap(apierrors.StoreFailure, err)
		}
		findings = append(findings, f)
	}
	return findings, rows.Err()
}

func (s *SQLiteStore) MarkFindingChecked(id string, checked bool) error {
	_, err := s.db.Exec(`UPDATE findings SET checked = ? WHERE finding_id = ?`, checked, id)
	if err != nil {
		return apierrors.Wrap(apierrors.StoreFailure, err)
	}
	return nil
}

func (s *SQLiteStore) UpsertWorker(r *types.WorkerRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO workers (worker_id, hostname, threads, current_task, last_seen, tasks_completed, registered_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(worker_id) DO UPDATE SET
		   hostname = excluded.hostname,
		   threads = excluded.threads,
		   current_task = excluded.current_task,
		   last_seen = excluded.last_seen`,
		r.WorkerID, r.Hostname, r.Threads, nullableString(r.CurrentTask), r.LastSeen, r.TasksCompleted, r.RegisteredAt,
	)
	if err != nil {
		return apierrors.Wrap(apierrors.StoreFailure, err)
	}
	return nil
}

func (s *SQLiteStore) GetWorker(id string) (*types.WorkerRecord, error) {
	row := s.db.QueryRow(
		`SELECT worker_id, hostname, threads, current_task, last_seen, tasks_completed, registered_at FROM workers WHERE worker_id = ?`, id)
	w, err := scanWorker(row)
	if err == sql.ErrNoRows {
		return nil, apierrors.New(apierrors.NotFound, "worker %s not found", id)
	}
	if err != nil {
		return nil, apierrors.Wrap(apierrors.StoreFailure, err)
	}
	return w, nil
}

func (s *SQLiteStore) ListWorkers() ([]*types.WorkerRecord, error) {
	rows, err := s.db.Query(`SELECT worker_id, hostname, threads, current_task, last_seen, tasks_completed, registered_at FROM workers`)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.StoreFailure, err)
	}
	defer rows.Close()

	var workers []*types.WorkerRecord
	for rows.Next() {
		w, err := scanWorker(rows)
		if err != nil {
			return nil, apierrors.Wrap(apierrors.StoreFailure, err)
		}
		workers = append(workers, w)
	}
	return workers, rows.Err()
}

func (s *SQLiteStore) IncrementWorkerTasksCompleted(id string) error {
	_, err := s.db.Exec(`UPDATE workers SET tasks_completed = tasks_completed + 1 WHERE worker_id = ?`, id)
	if err != nil {
		return apierrors.Wrap(apierrors.StoreFailure, err)
	}
	return nil
}

func (s *SQLiteStore) SaveScanConfig(cfg *types.ScanConfig) error {
	extensions, _ := json.Marshal(cfg.Extensions)
	headers, _ := json.Marshal(cfg.Headers)

	_, err := s.db.Exec(
		`INSERT INTO scan_configs (config_id, name, target, wordlist, threads_per_worker, rate_limit, follow_redirects, recursive, extensions, headers, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cfg.ID, cfg.Name, cfg.Target, cfg.Wordlist, cfg.ThreadsPerWorker, cfg.RateLimit,
		cfg.FollowRedirects, cfg.Recursive, string(extensions), string(headers), cfg.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apierrors.New(apierrors.DuplicateID, "scan config %s already exists", cfg.Name)
		}
		return apierrors.Wrap(apierrors.StoreFailure, err)
	}
	return nil
}

func (s *SQLiteStore) GetScanConfig(name string) (*types.ScanConfig, error) {
	row := s.db.QueryRow(
		`SELECT config_id, name, target, wordlist, threads_per_worker, rate_limit, follow_redirects, recursive, extensions, headers, created_at
		 FROM scan_configs WHERE name = ?`, name)
	cfg, err := scanScanConfig(row)
	if err == sql.ErrNoRows {
		return nil, apierrors.New(apierrors.NotFound, "scan config %s not found", name)
	}
	if err != nil {
		return nil, apierrors.Wrap(apierrors.StoreFailure, err)
	}
	return cfg, nil
}

func (s *SQLiteStore) ListScanConfigs() ([]*types.ScanConfig, error) {
	rows, err := s.db.Query(
		`SELECT config_id, name, target, wordlist, threads_per_worker, rate_limit, follow_redirects, recursive, extensions, headers, created_at
		 FROM scan_configs ORDER BY name`)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.StoreFailure, err)
	}
	defer rows.Close()

	var configs []*types.ScanConfig
	for rows.Next() {
		cfg, err := scanScanConfig(rows)
		if err != nil {
			return nil, apierrors.Wrap(apierrors.StoreFailure, err)
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

func (s *SQLiteStore) DeleteScanConfig(name string) error {
	_, err := s.db.Exec(`DELETE FROM scan_configs WHERE name = ?`, name)
	if err != nil {
		return apierrors.Wrap(apierrors.StoreFailure, err)
	}
	return nil
}

// --- scanning helpers ---

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (*types.Task, error) {
	var (
		t                            types.Task
		options, workerIDs, status   string
		completedAt                  sql.NullTime
	)
	if err := row.Scan(&t.ID, &t.Target, &t.WordlistName, &t.WordlistPath, &options, &workerIDs,
		&status, &t.Progress, &t.FindingsCount, &t.CreatedAt, &completedAt); err != nil {
		return nil, err
	}
	t.Status = types.TaskStatus(status)
	if err := json.Unmarshal([]byte(options), &t.Options); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(workerIDs), &t.WorkerIDs); err != nil {
		return nil, err
	}
	if completedAt.Valid {
		ts := completedAt.Time
		t.CompletedAt = &ts
	}
	return &t, nil
}

func scanFinding(row scanner) (*types.Finding, error) {
	var (
		f                   types.Finding
		severity, issuesRaw string
		raw                 sql.NullString
	)
	if err := row.Scan(&f.ID, &f.TaskID, &f.URL, &f.StatusCode, &f.ContentLength, &f.Words, &f.Lines,
		&severity, &issuesRaw, &raw, &f.Checked, &f.CreatedAt); err != nil {
		return nil, err
	}
	f.Severity = types.Severity(severity)
	f.RawResponse = raw.String
	if err := json.Unmarshal([]byte(issuesRaw), &f.DetectedIssues); err != nil {
		return nil, err
	}
	return &f, nil
}

func scanWorker(row scanner) (*types.WorkerRecord, error) {
	var (
		w           types.WorkerRecord
		currentTask sql.NullString
		lastSeen    sql.NullTime
	)
	if err := row.Scan(&w.WorkerID, &w.Hostname, &w.Threads, &currentTask, &lastSeen, &w.TasksCompleted, &w.RegisteredAt); err != nil {
		return nil, err
	}
	w.CurrentTask = currentTask.String
	if lastSeen.Valid {
		w.LastSeen = lastSeen.Time
	}
	return &w, nil
}

func scanScanConfig(row scanner) (*types.ScanConfig, error) {
	var (
		cfg                  types.ScanConfig
		rateLimit            sql.NullInt64
		extensions, headers  string
	)
	if err := row.Scan(&cfg.ID, &cfg.Name, &cfg.Target, &cfg.Wordlist, &cfg.ThreadsPerWorker, &rateLimit,
		&cfg.FollowRedirects, &cfg.Recursive, &extensions, &headers, &cfg.CreatedAt); err != nil {
		return nil, err
	}
	if rateLimit.Valid {
		v := int(rateLimit.Int64)
		cfg.RateLimit = &v
	}
	if extensions != "" {
		_ = json.Unmarshal([]byte(extensions), &cfg.Extensions)
	}
	if headers != "" {
		_ = json.Unmarshal([]byte(headers), &cfg.Headers)
	}
	return &cfg, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func isUniqueViolation(err error) bool {
	// mattn/go-sqlite3 reports constraint violations with this substring;
	// avoided importing the driver's error type directly so tests can run
	// against the interface without a build-tag split.
	return err != nil && strings.Contains(strings.ToLower(err.Error()), strings.ToLower("UNIQUE constraint failed"))
}
