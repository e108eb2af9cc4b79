package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/regdelta/regdelta/internal/diffengine"
	"github.com/regdelta/regdelta/internal/extract"
	"github.com/regdelta/regdelta/internal/mapper"
	"github.com/regdelta/regdelta/internal/pipeline"
	"github.com/regdelta/regdelta/internal/plan"
)

func testResult() *pipeline.Result {
	return &pipeline.Result{
		RunID:    "run-123",
		Scenario: "policy-update",
		DiffSummary: diffengine.Summary{
			TotalOps: 3, Equal: 1, Inserts: 1, Replaces: 1,
			Unchanged: 4, Added: 2, Removed: 1,
		},
		Obligations: []extract.Obligation{{
			ID:           "ob-1",
			DocumentID:   "doc-1",
			SectionLabel: "Section 4",
			Text:         "All data must be encrypted | at rest.",
			Severity:     extract.SeverityHigh,
			ModalPhrase:  "must",
			Deadline:     "within 30 days",
		}},
		Mappings: map[string][]mapper.Mapping{
			"ob-1": {
				{
					ID: "map-1", ObligationID: "ob-1", ControlID: "DP-01",
					ControlTitle: "Encrypt data at rest", BlendedScore: 0.91,
					Status: mapper.StatusAccepted, AutoStatus: mapper.StatusAccepted,
				},
				{
					ID: "map-2", ObligationID: "ob-1", ControlID: "AC-01",
					ControlTitle: "Access reviews", BlendedScore: 0.31,
					Status: mapper.StatusRejected, AutoStatus: mapper.StatusRejected,
				},
			},
		},
		Actions: []plan.Action{
			{
				Summary: "Implement/verify Encrypt data at rest for new obligation",
				ControlID: "DP-01", Owner: "Security", DueDate: "2024-05-29",
				Priority: "high", Status: plan.StatusPlanned,
			},
			{
				Summary: "REVIEW: New obligation without control mapping",
				ControlID: plan.GapControlID, Owner: "Compliance Team", DueDate: "2024-05-22",
				Priority: "high", Status: plan.StatusReviewRequired,
			},
		},
		Evidence: []plan.EvidenceRun{{
			ControlID: "DP-01", Artefact: "KMS key inventory", Owner: "Security",
			CadenceCron: "0 0 1 */3 *", NextRunAt: "2024-07-01", Status: "scheduled",
		}},
	}
}

func TestMarkdown(t *testing.T) {
	md := Markdown(testResult())

	for _, want := range []string{
		"# Change Analysis Report",
		"run-123",
		"policy-update",
		"| 4 | 2 | 1 | 1 |",
		"## Obligations (1)",
		"Section 4",
		"within 30 days",
		"1 accepted, 0 pending review, 1 rejected.",
		"Encrypt data at rest",
		"## Action Plan (2)",
		"Compliance Team",
		"**1 obligation(s) have no accepted control mapping.**",
		"## Evidence Schedules (1)",
		"KMS key inventory",
		"`0 0 1 */3 *`",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q", want)
		}
	}

	// Rejected mappings are summarized but not listed.
	if strings.Contains(md, "Access reviews") {
		t.Error("markdown lists a rejected mapping")
	}
	// Pipes in free text must not break the table.
	if !strings.Contains(md, `encrypted \| at rest`) {
		t.Error("markdown does not escape pipes in obligation text")
	}
}

func TestGenerateWritesBothFormats(t *testing.T) {
	dir := t.TempDir()
	g := NewGenerator(filepath.Join(dir, "reports"))

	htmlPath, err := g.Generate(testResult())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if filepath.Base(htmlPath) != "run-123.html" {
		t.Errorf("html path = %s, want run-123.html", htmlPath)
	}

	page, err := os.ReadFile(htmlPath)
	if err != nil {
		t.Fatalf("reading html report: %v", err)
	}
	for _, want := range []string{"<!DOCTYPE html>", "<table>", "Change Analysis Report", "run-123"} {
		if !strings.Contains(string(page), want) {
			t.Errorf("html report missing %q", want)
		}
	}

	md, err := os.ReadFile(filepath.Join(dir, "reports", "run-123.md"))
	if err != nil {
		t.Fatalf("reading markdown report: %v", err)
	}
	if !strings.Contains(string(md), "## Control Mappings") {
		t.Error("markdown report missing mappings section")
	}
}
