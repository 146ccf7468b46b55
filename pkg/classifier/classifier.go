// Package classifier turns a raw per-URL fuzzer record into a prioritized
// security Finding. It is pure and deterministic: no I/O, no clock reads
// beyond what the caller stamps on afterward.
package classifier

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/fuzzhive/fuzzhive/pkg/types"
)

type patternRule struct {
	pattern *regexp.Regexp
	level   string
	label   string
}

// urlPatterns is the fixed path-pattern table, in the order matches must
// be checked (first match per pattern still only appends once, but
// patterns are independent of each other and all that match contribute).
var urlPatterns = []patternRule{
	{regexp.MustCompile(`(?i)password|pwd|pass|key|secret|token`), "high", `password|pwd|pass|key|secret|token`},
	{regexp.MustCompile(`(?i)backup|dump|archive|old`), "medium", `backup|dump|archive|old`},
	{regexp.MustCompile(`(?i)admin|login|auth|dashboard`), "medium", `admin|login|auth|dashboard`},
	{regexp.MustCompile(`(?i)config|configuration|setting`), "high", `config|configuration|setting`},
	{regexp.MustCompile(`(?i)\.git|\.env|\.bak|\.old`), "critical", `\.git|\.env|\.bak|\.old`},
	{regexp.MustCompile(`(?i)phpinfo|test|debug`), "medium", `phpinfo|test|debug`},
}

var sensitiveExtensions = []string{".git", ".env", ".bak", ".old", ".tar", ".zip"}

var dropStatuses = map[int]bool{400: true, 404: true, 500: true}

// Classify applies the rule table to a single raw record and returns nil
// when the record carries no signal worth surfacing.
func Classify(taskID string, rec types.RawRecord) *types.Finding {
	urlIssues := classifyURL(rec.URL)

	// Rule 1: 400 and 404 drop unless a URL-pattern signal (rules 2-3)
	// already fired. 500 is additionally inspected by the status-code
	// annotation (rule 4), which always fires for 500, so it is the one
	// status in the drop set that survives on its own.
	if dropStatuses[rec.Status] && rec.Status != 500 && len(urlIssues) == 0 {
		return nil
	}

	var issues []string
	issues = append(issues, urlIssues...)
	issues = append(issues, classifyStatus(rec.Status)...)
	issues = append(issues, classifyLength(rec.Length)...)

	severity, ok := severityOf(issues, rec.Status)
	if !ok {
		return nil
	}
	if severity == "info" {
		issues = append(issues, interestingStatus(rec.Status))
	}

	raw, _ := json.Marshal(rec)

	return &types.Finding{
		ID:             findingID(taskID, rec.URL),
		TaskID:         taskID,
		URL:            rec.URL,
		StatusCode:     rec.Status,
		ContentLength:  rec.Length,
		Words:          rec.Words,
		Lines:          rec.Lines,
		Severity:       types.Severity(severity),
		DetectedIssues: issues,
		RawResponse:    string(raw),
	}
}

func classifyURL(url string) []string {
	var issues []string
	for _, rule := range urlPatterns {
		if rule.pattern.MatchString(url) {
			issues = append(issues, strings.ToUpper(rule.level)+": Suspicious pattern in URL: "+rule.label)
		}
	}
	if hasSensitiveExtension(url) {
		issues = append(issues, "CRITICAL: Sensitive file extension detected")
	}
	return issues
}

func hasSensitiveExtension(url string) bool {
	path := url
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	for _, ext := range sensitiveExtensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

func classifyStatus(status int) []string {
	switch status {
	case 200:
		return []string{"Valid resource found"}
	case 301, 302:
		return []string{"Redirect found"}
	case 403:
		return []string{"Access forbidden - possible privilege escalation"}
	case 500:
		return []string{"Server error - possible vulnerability"}
	}
	return nil
}

func classifyLength(length int) []string {
	switch {
	case length == 0:
		return []string{"Empty response"}
	case length > 1_000_000:
		return []string{"Large response - possible data exposure"}
	case length < 100:
		return []string{"Very small response - possible error page"}
	}
	return nil
}

var interestingStatusCodes = map[int]bool{200: true, 301: true, 302: true, 403: true}

// severityOf picks the highest level present among issues (critical > high
// > medium > low), falls back to "low" for an unleveled-but-nonempty issue
// set, and to "info" for an interesting status code with no issues at all.
// Returns ok=false when the record should be dropped.
func severityOf(issues []string, status int) (level string, ok bool) {
	for _, want := range []string{"CRITICAL", "HIGH", "MEDIUM"} {
		for _, issue := range issues {
			if strings.Contains(issue, want) {
				return strings.ToLower(want), true
			}
		}
	}
	if len(issues) > 0 {
		return "low", true
	}
	if interestingStatusCodes[status] {
		return "info", true
	}
	return "", false
}

func interestingStatus(status int) string {
	return "Interesting status code: " + strconv.Itoa(status)
}

// findingID derives a stable id from (task_id, url), content-addressed so
// result retransmission can never duplicate a row — stable across process
// restarts, unlike a per-process-randomized string hash.
func findingID(taskID, url string) string {
	sum := sha256.Sum256([]byte(taskID + "\x00" + url))
	return hex.EncodeToString(sum[:])[:16]
}
