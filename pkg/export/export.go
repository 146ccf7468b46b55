// Package export renders a set of findings as JSON, CSV, or a
// single-table HTML report.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/fuzzhive/fuzzhive/pkg/apierrors"
	"github.com/fuzzhive/fuzzhive/pkg/types"
)

// Format is one of the three recognized export encodings.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatHTML Format = "html"
)

// Render encodes findings in the requested format, or returns
// InvalidInput for an unrecognized one.
func Render(findings []*types.Finding, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		return renderJSON(findings)
	case FormatCSV:
		return renderCSV(findings)
	case FormatHTML:
		return renderHTML(findings)
	default:
		return nil, apierrors.New(apierrors.InvalidInput, "unrecognized export format %q", format)
	}
}

func renderJSON(findings []*types.Finding) ([]byte, error) {
	out, err := json.MarshalIndent(findings, "", "  ")
	if err != nil {
		return nil, apierrors.Wrap(apierrors.StoreFailure, err)
	}
	return out, nil
}

// renderCSV emits a fixed column set, with detected issues joined by
// semicolons.
func renderCSV(findings []*types.Finding) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{"URL", "Status Code", "Content Length", "Severity", "Detected Issues", "Checked", "Created At"}
	if err := w.Write(header); err != nil {
		return nil, apierrors.Wrap(apierrors.StoreFailure, err)
	}

	for _, f := range findings {
		checked := "No"
		if f.Checked {
			checked = "Yes"
		}
		row := []string{
			f.URL,
			fmt.Sprintf("%d", f.StatusCode),
			fmt.Sprintf("%d", f.ContentLength),
			string(f.Severity),
			strings.Join(f.DetectedIssues, ";"),
			checked,
			f.CreatedAt.Format(time.RFC3339),
		}
		if err := w.Write(row); err != nil {
			return nil, apierrors.Wrap(apierrors.StoreFailure, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, apierrors.Wrap(apierrors.StoreFailure, err)
	}
	return buf.Bytes(), nil
}

// renderHTML emits a single-table report with a CSS class per severity
// (e.g. class="sev-critical"), so the presentation layer can style rows
// without re-deriving severity.
func renderHTML(findings []*types.Finding) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("<table class=\"findings\">\n")
	buf.WriteString("<thead><tr><th>URL</th><th>Status Code</th><th>Content Length</th><th>Severity</th><th>Detected Issues</th><th>Checked</th><th>Created At</th></tr></thead>\n")
	buf.WriteString("<tbody>\n")

	for _, f := range findings {
		checked := "No"
		if f.Checked {
			checked = "Yes"
		}
		fmt.Fprintf(&buf, "<tr class=\"sev-%s\"><td>%s</td><td>%d</td><td>%d</td><td>%s</td><td>%s</td><td>%s</td><td>%s</td></tr>\n",
			html.EscapeString(string(f.Severity)),
			html.EscapeString(f.URL),
			f.StatusCode,
			f.ContentLength,
			html.EscapeString(string(f.Severity)),
			html.EscapeString(strings.Join(f.DetectedIssues, "; ")),
			checked,
			f.CreatedAt.Format(time.RFC3339),
		)
	}

	buf.WriteString("</tbody>\n</table>\n")
	return buf.Bytes(), nil
}
