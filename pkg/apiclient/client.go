// Package apiclient is a thin HTTP client for the Public API (pkg/api),
// used by the fuzzhive CLI's query commands: a struct holding the
// transport, with one method per remote operation.
package apiclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/fuzzhive/fuzzhive/pkg/types"
)

// Client wraps an http.Client bound to one coordinator base URL.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// New returns a Client dialing baseURL (e.g. "http://localhost:8070").
func New(baseURL string) *Client {
	return &Client{httpClient: &http.Client{Timeout: 30 * time.Second}, baseURL: baseURL}
}

type apiError struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func (c *Client) do(method, path string, query url.Values, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(buf)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequest(method, u, reader)
	if err != nil {
		return err
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 300 {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s (%s)", apiErr.Error, apiErr.Kind)
		}
		return fmt.Errorf("request failed: status %d", resp.StatusCode)
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	return json.Unmarshal(respBody, out)
}

// CreateScanRequest mirrors the Public API's CreateScan operation body.
type CreateScanRequest struct {
	Target         string        `json:"target"`
	WordlistName   string        `json:"wordlist_name"`
	WorkerIDs      []string      `json:"worker_ids"`
	Options        types.Options `json:"options"`
	ScanConfigName string        `json:"scan_config_name,omitempty"`
}

// CreateScan wraps CreateScan → task_id.
func (c *Client) CreateScan(req CreateScanRequest) (string, error) {
	var resp struct {
		TaskID string `json:"task_id"`
	}
	if err := c.do(http.MethodPost, "/v1/scans", nil, req, &resp); err != nil {
		return "", err
	}
	return resp.TaskID, nil
}

// GetTask wraps GetTask.
func (c *Client) GetTask(taskID string) (*types.Task, error) {
	var task types.Task
	if err := c.do(http.MethodGet, "/v1/tasks/"+taskID, nil, nil, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// ListTasks wraps ListTasks.
func (c *Client) ListTasks(status string) ([]*types.Task, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	var tasks []*types.Task
	if err := c.do(http.MethodGet, "/v1/tasks", q, nil, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// ListFindings wraps ListFindings.
func (c *Client) ListFindings(taskID, severity string, checked *bool) ([]*types.Finding, error) {
	q := url.Values{}
	if taskID != "" {
		q.Set("task_id", taskID)
	}
	if severity != "" {
		q.Set("severity", severity)
	}
	if checked != nil {
		q.Set("checked", fmt.Sprintf("%t", *checked))
	}
	var findings []*types.Finding
	if err := c.do(http.MethodGet, "/v1/findings", q, nil, &findings); err != nil {
		return nil, err
	}
	return findings, nil
}

// MarkFindingChecked wraps MarkFindingChecked.
func (c *Client) MarkFindingChecked(findingID string, checked bool) error {
	body := struct {
		FindingID string `json:"finding_id"`
		Checked   bool   `json:"checked"`
	}{findingID, checked}
	return c.do(http.MethodPost, "/v1/findings/check", nil, body, nil)
}

// ExportFindings wraps ExportFindings, returning the raw encoded bytes.
func (c *Client) ExportFindings(taskID, format string) ([]byte, error) {
	q := url.Values{"format": {format}}
	if taskID != "" {
		q.Set("task_id", taskID)
	}
	u := c.baseURL + "/v1/export?" + q.Encode()
	resp, err := c.httpClient.Get(u)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("export failed: status %d", resp.StatusCode)
	}
	return body, nil
}

// ListWorkers wraps ListWorkers.
func (c *Client) ListWorkers() ([]*types.WorkerRecord, error) {
	var workers []*types.WorkerRecord
	if err := c.do(http.MethodGet, "/v1/workers", nil, nil, &workers); err != nil {
		return nil, err
	}
	return workers, nil
}

// UpdateWorkerThreads wraps UpdateWorkerThreads.
func (c *Client) UpdateWorkerThreads(workerID string, threads int) error {
	body := struct {
		WorkerID string `json:"worker_id"`
		Threads  int    `json:"threads"`
	}{workerID, threads}
	return c.do(http.MethodPost, "/v1/workers/threads", nil, body, nil)
}

// SaveScanConfig wraps SaveScanConfig.
func (c *Client) SaveScanConfig(cfg types.ScanConfig) error {
	return c.do(http.MethodPost, "/v1/scan-configs", nil, cfg, nil)
}

// GetScanConfig wraps GetScanConfig.
func (c *Client) GetScanConfig(name string) (*types.ScanConfig, error) {
	var cfg types.ScanConfig
	if err := c.do(http.MethodGet, "/v1/scan-configs/"+name, nil, nil, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ListScanConfigs wraps ListScanConfigs.
func (c *Client) ListScanConfigs() ([]*types.ScanConfig, error) {
	var cfgs []*types.ScanConfig
	if err := c.do(http.MethodGet, "/v1/scan-configs", nil, nil, &cfgs); err != nil {
		return nil, err
	}
	return cfgs, nil
}

// DeleteScanConfig wraps DeleteScanConfig.
func (c *Client) DeleteScanConfig(name string) error {
	return c.do(http.MethodDelete, "/v1/scan-configs/"+name, nil, nil, nil)
}

// SecuritySummary wraps SecuritySummary.
func (c *Client) SecuritySummary() (map[string]any, error) {
	var summary map[string]any
	if err := c.do(http.MethodGet, "/v1/security-summary", nil, nil, &summary); err != nil {
		return nil, err
	}
	return summary, nil
}
