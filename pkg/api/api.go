// Package api exposes the coordinator's Public API as a net/http +
// encoding/json service: one route per operation, JSON request/response
// bodies, errors mapped to HTTP status codes.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strconv"

	"github.com/fuzzhive/fuzzhive/pkg/apierrors"
	"github.com/fuzzhive/fuzzhive/pkg/export"
	"github.com/fuzzhive/fuzzhive/pkg/log"
	"github.com/fuzzhive/fuzzhive/pkg/registry"
	"github.com/fuzzhive/fuzzhive/pkg/storage"
	"github.com/fuzzhive/fuzzhive/pkg/taskmanager"
	"github.com/fuzzhive/fuzzhive/pkg/types"
)

// TaskCreator is the subset of *taskmanager.Manager the API depends on.
type TaskCreator interface {
	CreateTask(ctx context.Context, target, wordlistName string, workerIDs []string, opts types.Options) (*types.Task, error)
	UpdateWorkerThreads(ctx context.Context, workerID string, n int) error
}

// WorkerLister is the subset of *registry.Registry the API depends on.
type WorkerLister interface {
	List(ctx context.Context) ([]*types.WorkerRecord, error)
}

var (
	_ TaskCreator  = (*taskmanager.Manager)(nil)
	_ WorkerLister = (*registry.Registry)(nil)
)

// Server wires the Public API operations onto an http.ServeMux.
type Server struct {
	store   storage.Store
	tasks   TaskCreator
	workers WorkerLister
	mux     *http.ServeMux
}

// New builds a Server. Call Handler to obtain the http.Handler to serve.
func New(store storage.Store, tasks TaskCreator, workers WorkerLister) *Server {
	s := &Server{store: store, tasks: tasks, workers: workers, mux: http.NewServeMux()}
	s.routes()
	return s
}

// Handler returns the http.Handler to pass to an http.Server.
func (s *Server) Handler() http.Handler { return s.mux }

func (s *Server) routes() {
	s.mux.HandleFunc("/v1/scans", s.handleScans)
	s.mux.HandleFunc("/v1/tasks", s.handleListTasks)
	s.mux.HandleFunc("/v1/tasks/", s.handleGetTask)
	s.mux.HandleFunc("/v1/findings", s.handleListFindings)
	s.mux.HandleFunc("/v1/findings/check", s.handleMarkFindingChecked)
	s.mux.HandleFunc("/v1/export", s.handleExport)
	s.mux.HandleFunc("/v1/workers", s.handleListWorkers)
	s.mux.HandleFunc("/v1/workers/threads", s.handleUpdateWorkerThreads)
	s.mux.HandleFunc("/v1/scan-configs", s.handleScanConfigs)
	s.mux.HandleFunc("/v1/scan-configs/", s.handleScanConfigByName)
	s.mux.HandleFunc("/v1/security-summary", s.handleSecuritySummary)
}

// --- request/response bodies ---

type createScanRequest struct {
	Target         string        `json:"target"`
	WordlistName   string        `json:"wordlist_name"`
	WorkerIDs      []string      `json:"worker_ids"`
	Options        types.Options `json:"options"`
	ScanConfigName string        `json:"scan_config_name,omitempty"`
}

type createScanResponse struct {
	TaskID string `json:"task_id"`
}

type markCheckedRequest struct {
	FindingID string `json:"finding_id"`
	Checked   bool   `json:"checked"`
}

type updateThreadsRequest struct {
	WorkerID string `json:"worker_id"`
	Threads  int    `json:"threads"`
}

type securitySummaryResponse struct {
	SeverityStats  map[string]int  `json:"severity_stats"`
	UncheckedCount int             `json:"unchecked_count"`
	TotalFindings  int             `json:"total_findings"`
	RecentCritical []*types.Finding `json:"recent_critical"`
}

// --- handlers ---

// handleScans: POST creates a scan (CreateScan).
func (s *Server) handleScans(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, apierrors.New(apierrors.InvalidInput, "method %s not allowed", r.Method))
		return
	}
	var req createScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierrors.Wrap(apierrors.InvalidInput, err))
		return
	}

	opts := req.Options
	if req.ScanConfigName != "" {
		cfg, err := s.store.GetScanConfig(req.ScanConfigName)
		if err != nil {
			writeError(w, err)
			return
		}
		opts = mergeScanConfig(opts, cfg)
	}

	task, err := s.tasks.CreateTask(r.Context(), req.Target, req.WordlistName, req.WorkerIDs, opts)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, createScanResponse{TaskID: task.ID})
}

// mergeScanConfig layers a Scan Config's values under the explicit option
// bag: fields already set on opts always win over the config's values.
func mergeScanConfig(opts types.Options, cfg *types.ScanConfig) types.Options {
	if opts.Threads == 0 {
		opts.Threads = cfg.ThreadsPerWorker
	}
	if cfg.RateLimit != nil && opts.Rate == 0 {
		opts.Rate = *cfg.RateLimit
	}
	if len(opts.Headers) == 0 {
		opts.Headers = cfg.Headers
	}
	return opts
}

// handleGetTask: GET /v1/tasks/{id} (GetTask).
func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id := pathTail(r.URL.Path, "/v1/tasks/")
	if id == "" {
		writeError(w, apierrors.New(apierrors.InvalidInput, "task id required"))
		return
	}
	task, err := s.store.GetTask(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// handleListTasks: GET /v1/tasks?status=... (ListTasks).
func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	status := types.TaskStatus(r.URL.Query().Get("status"))
	tasks, err := s.store.ListTasks(status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

// handleListFindings: GET /v1/findings?task_id=&checked=&severity= (ListFindings).
func (s *Server) handleListFindings(w http.ResponseWriter, r *http.Request) {
	filter := storage.FindingFilter{TaskID: r.URL.Query().Get("task_id")}
	if raw := r.URL.Query().Get("checked"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, apierrors.New(apierrors.InvalidInput, "invalid checked value %q", raw))
			return
		}
		filter.Checked = &b
	}

	findings, err := s.store.GetFindings(filter)
	if err != nil {
		writeError(w, err)
		return
	}

	if severity := r.URL.Query().Get("severity"); severity != "" {
		findings = filterBySeverity(findings, types.Severity(severity))
	}
	writeJSON(w, http.StatusOK, findings)
}

func filterBySeverity(findings []*types.Finding, severity types.Severity) []*types.Finding {
	out := findings[:0:0]
	for _, f := range findings {
		if f.Severity == severity {
			out = append(out, f)
		}
	}
	return out
}

// handleMarkFindingChecked: POST /v1/findings/check (MarkFindingChecked).
func (s *Server) handleMarkFindingChecked(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, apierrors.New(apierrors.InvalidInput, "method %s not allowed", r.Method))
		return
	}
	var req markCheckedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierrors.Wrap(apierrors.InvalidInput, err))
		return
	}
	if err := s.store.MarkFindingChecked(req.FindingID, req.Checked); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleExport: GET /v1/export?task_id=&format= (ExportFindings, §6.6).
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format := export.Format(r.URL.Query().Get("format"))
	findings, err := s.store.GetFindings(storage.FindingFilter{TaskID: r.URL.Query().Get("task_id")})
	if err != nil {
		writeError(w, err)
		return
	}

	body, err := export.Render(findings, format)
	if err != nil {
		writeError(w, err)
		return
	}

	switch format {
	case export.FormatJSON:
		w.Header().Set("Content-Type", "application/json")
	case export.FormatCSV:
		w.Header().Set("Content-Type", "text/csv")
	case export.FormatHTML:
		w.Header().Set("Content-Type", "text/html")
	}
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// handleListWorkers: GET /v1/workers (ListWorkers).
func (s *Server) handleListWorkers(w http.ResponseWriter, r *http.Request) {
	records, err := s.workers.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// handleUpdateWorkerThreads: POST /v1/workers/threads (UpdateWorkerThreads).
func (s *Server) handleUpdateWorkerThreads(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, apierrors.New(apierrors.InvalidInput, "method %s not allowed", r.Method))
		return
	}
	var req updateThreadsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierrors.Wrap(apierrors.InvalidInput, err))
		return
	}
	if err := s.tasks.UpdateWorkerThreads(r.Context(), req.WorkerID, req.Threads); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleScanConfigs: GET lists, POST saves (ListScanConfigs / SaveScanConfig).
func (s *Server) handleScanConfigs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		cfgs, err := s.store.ListScanConfigs()
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, cfgs)
	case http.MethodPost:
		var cfg types.ScanConfig
		if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
			writeError(w, apierrors.Wrap(apierrors.InvalidInput, err))
			return
		}
		if err := s.store.SaveScanConfig(&cfg); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, cfg)
	default:
		writeError(w, apierrors.New(apierrors.InvalidInput, "method %s not allowed", r.Method))
	}
}

// handleScanConfigByName: GET/DELETE /v1/scan-configs/{name} (GetScanConfig / DeleteScanConfig).
func (s *Server) handleScanConfigByName(w http.ResponseWriter, r *http.Request) {
	name := pathTail(r.URL.Path, "/v1/scan-configs/")
	if name == "" {
		writeError(w, apierrors.New(apierrors.InvalidInput, "scan config name required"))
		return
	}
	switch r.Method {
	case http.MethodGet:
		cfg, err := s.store.GetScanConfig(name)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, cfg)
	case http.MethodDelete:
		if err := s.store.DeleteScanConfig(name); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, apierrors.New(apierrors.InvalidInput, "method %s not allowed", r.Method))
	}
}

// handleSecuritySummary: GET /v1/security-summary (SecuritySummary),
// aggregating severity counts and the top critical findings.
func (s *Server) handleSecuritySummary(w http.ResponseWriter, r *http.Request) {
	findings, err := s.store.GetFindings(storage.FindingFilter{})
	if err != nil {
		writeError(w, err)
		return
	}

	resp := securitySummaryResponse{SeverityStats: map[string]int{}}
	var critical []*types.Finding
	for _, f := range findings {
		resp.SeverityStats[string(f.Severity)]++
		resp.TotalFindings++
		if !f.Checked {
			resp.UncheckedCount++
		}
		if f.Severity == types.SeverityCritical {
			critical = append(critical, f)
		}
	}
	sort.Slice(critical, func(i, j int) bool { return critical[i].CreatedAt.After(critical[j].CreatedAt) })
	if len(critical) > 10 {
		critical = critical[:10]
	}
	resp.RecentCritical = critical

	writeJSON(w, http.StatusOK, resp)
}

// --- helpers ---

func pathTail(path, prefix string) string {
	if len(path) <= len(prefix) {
		return ""
	}
	return path[len(prefix):]
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf("api: encoding response", err)
	}
}

// writeError maps a typed error kind to an HTTP status code: every
// operation returns either the requested data or a structured error
// with one of the kinds above.
func writeError(w http.ResponseWriter, err error) {
	kind := apierrors.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case apierrors.InvalidInput, apierrors.UnknownWordlist, apierrors.NoActiveWorkers, apierrors.MalformedResult:
		status = http.StatusBadRequest
	case apierrors.NotFound:
		status = http.StatusNotFound
	case apierrors.DuplicateID:
		status = http.StatusConflict
	case apierrors.BrokerUnavailable:
		status = http.StatusServiceUnavailable
	case apierrors.StoreFailure, apierrors.FuzzerTimeout, apierrors.FuzzerFailure:
		status = http.StatusInternalServerError
	}

	writeJSON(w, status, map[string]string{
		"error": err.Error(),
		"kind":  string(kind),
	})
}
