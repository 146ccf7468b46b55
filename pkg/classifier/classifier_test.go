package classifier

import (
	"testing"

	"github.com/fuzzhive/fuzzhive/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name           string
		rec            types.RawRecord
		wantNil        bool
		wantSeverity   types.Severity
		wantContains   []string
	}{
		{
			// S1
			name: "admin path is medium with status annotation",
			rec:  types.RawRecord{URL: "https://t/admin", Status: 200, Length: 512, Words: 10, Lines: 5},
			wantSeverity: types.SeverityMedium,
			wantContains: []string{"Suspicious pattern in URL", "Valid resource found"},
		},
		{
			// S2
			name: "dotgit path is critical",
			rec:  types.RawRecord{URL: "https://t/.git/config", Status: 200, Length: 2048, Words: 20, Lines: 10},
			wantSeverity: types.SeverityCritical,
		},
		{
			// S3
			name:    "plain 404 with no other signal is dropped",
			rec:     types.RawRecord{URL: "https://t/about", Status: 404, Length: 0, Words: 0, Lines: 0},
			wantNil: true,
		},
		{
			// S4
			name:         "forbidden small body is low",
			rec:          types.RawRecord{URL: "https://t/api/v1", Status: 403, Length: 50, Words: 5, Lines: 2},
			wantSeverity: types.SeverityLow,
			wantContains: []string{"Access forbidden - possible privilege escalation", "Very small response - possible error page"},
		},
		{
			name:    "plain 400 with no other signal is dropped",
			rec:     types.RawRecord{URL: "https://t/x", Status: 400},
			wantNil: true,
		},
		{
			name:         "bare 500 survives on its own status annotation",
			rec:          types.RawRecord{URL: "https://t/y", Status: 500, Length: 500},
			wantSeverity: types.SeverityLow,
			wantContains: []string{"Server error - possible vulnerability"},
		},
		{
			name:         "uninteresting 204 with no signal is dropped",
			rec:          types.RawRecord{URL: "https://t/z", Status: 204, Length: 500},
			wantNil:      true,
		},
		{
			// The status-code annotation (rule 4) fires for every status
			// in the "interesting" set, so the issue list is never empty
			// there and the info/"Interesting status code" fallback in
			// rule 6 is unreachable for the currently annotated statuses.
			name:         "redirect with no url or length signal is low, not info",
			rec:          types.RawRecord{URL: "https://t/w", Status: 301, Length: 500},
			wantSeverity: types.SeverityLow,
			wantContains: []string{"Redirect found"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify("task_1", tt.rec)
			if tt.wantNil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.wantSeverity, got.Severity)
			for _, substr := range tt.wantContains {
				assert.Contains(t, joinIssues(got.DetectedIssues), substr)
			}
		})
	}
}

func TestClassifyIsPure(t *testing.T) {
	rec := types.RawRecord{URL: "https://t/admin/config", Status: 200, Length: 512, Words: 10, Lines: 5}
	a := Classify("task_1", rec)
	b := Classify("task_1", rec)
	require.NotNil(t, a)
	require.NotNil(t, b)
	assert.Equal(t, a.ID, b.ID)
	assert.Equal(t, a.Severity, b.Severity)
	assert.Equal(t, a.DetectedIssues, b.DetectedIssues)
}

func TestFindingIDStableAcrossReplay(t *testing.T) {
	rec := types.RawRecord{URL: "https://t/admin", Status: 200, Length: 512}
	first := Classify("task_1", rec)
	second := Classify("task_1", rec)
	require.NotNil(t, first)
	require.NotNil(t, second)
	assert.Equal(t, first.ID, second.ID)

	other := Classify("task_2", rec)
	require.NotNil(t, other)
	assert.NotEqual(t, first.ID, other.ID, "finding id must depend on task_id too")
}

func joinIssues(issues []string) string {
	out := ""
	for _, i := range issues {
		out += i + "\n"
	}
	return out
}
