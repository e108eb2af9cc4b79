// Package report renders a completed run as a markdown summary and a
// standalone HTML page.
package report

import (
	"bytes"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/regdelta/regdelta/internal/extract"
	"github.com/regdelta/regdelta/internal/mapper"
	"github.com/regdelta/regdelta/internal/pipeline"
	"github.com/regdelta/regdelta/internal/plan"
)

// Generator writes run reports into an output directory.
type Generator struct {
	OutputDir string
}

// NewGenerator creates a Generator writing into outputDir.
func NewGenerator(outputDir string) *Generator {
	return &Generator{OutputDir: outputDir}
}

// Generate writes <run-id>.md and <run-id>.html for the result and
// returns the HTML path.
func (g *Generator) Generate(res *pipeline.Result) (string, error) {
	if err := os.MkdirAll(g.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("creating report directory: %w", err)
	}

	markdown := Markdown(res)
	mdPath := filepath.Join(g.OutputDir, res.RunID+".md")
	if err := os.WriteFile(mdPath, []byte(markdown), 0o644); err != nil {
		return "", fmt.Errorf("writing markdown report: %w", err)
	}

	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithParserOptions(parser.WithAutoHeadingID()),
		goldmark.WithRendererOptions(html.WithUnsafe()),
	)
	var body bytes.Buffer
	if err := md.Convert([]byte(markdown), &body); err != nil {
		return "", fmt.Errorf("converting markdown: %w", err)
	}

	tmpl, err := template.New("report").Parse(pageTemplate)
	if err != nil {
		return "", fmt.Errorf("parsing report template: %w", err)
	}
	var page bytes.Buffer
	err = tmpl.Execute(&page, map[string]any{
		"Title":   fmt.Sprintf("Run %s", res.RunID),
		"Content": template.HTML(body.String()),
	})
	if err != nil {
		return "", fmt.Errorf("rendering report page: %w", err)
	}

	htmlPath := filepath.Join(g.OutputDir, res.RunID+".html")
	if err := os.WriteFile(htmlPath, page.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("writing html report: %w", err)
	}
	return htmlPath, nil
}

// Markdown builds the markdown summary for a run result.
func Markdown(res *pipeline.Result) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Change Analysis Report\n\n")
	fmt.Fprintf(&b, "- **Run**: %s\n", res.RunID)
	fmt.Fprintf(&b, "- **Scenario**: %s\n", res.Scenario)
	fmt.Fprintf(&b, "- **Generated**: %s\n\n", time.Now().UTC().Format(time.RFC3339))

	fmt.Fprintf(&b, "## Document Changes\n\n")
	s := res.DiffSummary
	fmt.Fprintf(&b, "| Unchanged | Added | Removed | Replace Ops |\n")
	fmt.Fprintf(&b, "|---:|---:|---:|---:|\n")
	fmt.Fprintf(&b, "| %d | %d | %d | %d |\n\n", s.Unchanged, s.Added, s.Removed, s.Replaces)

	fmt.Fprintf(&b, "## Obligations (%d)\n\n", len(res.Obligations))
	if len(res.Obligations) > 0 {
		fmt.Fprintf(&b, "| Severity | Section | Obligation | Deadline |\n")
		fmt.Fprintf(&b, "|---|---|---|---|\n")
		for _, ob := range res.Obligations {
			fmt.Fprintf(&b, "| %s | %s | %s | %s |\n",
				ob.Severity, cell(ob.SectionLabel), cell(truncate(ob.Text, 120)), cell(ob.Deadline))
		}
		b.WriteString("\n")
		stats := extract.Summarize(res.Obligations)
		fmt.Fprintf(&b, "High: %d, medium: %d, low: %d.\n\n", stats.High, stats.Medium, stats.Low)
	}

	fmt.Fprintf(&b, "## Control Mappings\n\n")
	mstats := mapper.Summarize(res.Mappings)
	fmt.Fprintf(&b, "%d accepted, %d pending review, %d rejected.\n\n",
		mstats.Accepted, mstats.Review, mstats.Rejected)
	if mstats.Accepted+mstats.Review > 0 {
		fmt.Fprintf(&b, "| Obligation | Control | Blended | Status |\n")
		fmt.Fprintf(&b, "|---|---|---:|---|\n")
		obIDs := make([]string, 0, len(res.Mappings))
		for id := range res.Mappings {
			obIDs = append(obIDs, id)
		}
		sort.Strings(obIDs)
		for _, id := range obIDs {
			for _, m := range res.Mappings[id] {
				if m.Status == mapper.StatusRejected {
					continue
				}
				fmt.Fprintf(&b, "| %s | %s (%s) | %.3f | %s |\n",
					m.ObligationID, cell(m.ControlTitle), m.ControlID, m.BlendedScore, m.Status)
			}
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "## Action Plan (%d)\n\n", len(res.Actions))
	if len(res.Actions) > 0 {
		fmt.Fprintf(&b, "| Priority | Summary | Control | Owner | Due |\n")
		fmt.Fprintf(&b, "|---|---|---|---|---|\n")
		for _, a := range res.Actions {
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n",
				a.Priority, cell(a.Summary), a.ControlID, cell(a.Owner), a.DueDate)
		}
		b.WriteString("\n")
		summary := plan.Summarize(res.Actions)
		if summary.Gaps > 0 {
			fmt.Fprintf(&b, "**%d obligation(s) have no accepted control mapping.**\n\n", summary.Gaps)
		}
	}

	fmt.Fprintf(&b, "## Evidence Schedules (%d)\n\n", len(res.Evidence))
	if len(res.Evidence) > 0 {
		fmt.Fprintf(&b, "| Control | Artefact | Owner | Cadence | Next Run |\n")
		fmt.Fprintf(&b, "|---|---|---|---|---|\n")
		for _, e := range res.Evidence {
			fmt.Fprintf(&b, "| %s | %s | %s | `%s` | %s |\n",
				e.ControlID, cell(e.Artefact), cell(e.Owner), e.CadenceCron, e.NextRunAt)
		}
		b.WriteString("\n")
	}

	return b.String()
}

// cell escapes pipe characters so free text cannot break table layout.
func cell(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

const pageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: -apple-system, "Segoe UI", sans-serif; max-width: 960px; margin: 2rem auto; padding: 0 1rem; color: #1f2328; }
table { border-collapse: collapse; width: 100%; margin: 1rem 0; }
th, td { border: 1px solid #d0d7de; padding: 6px 12px; text-align: left; }
th { background: #f6f8fa; }
h1, h2 { border-bottom: 1px solid #d0d7de; padding-bottom: 0.3em; }
code { background: #f6f8fa; padding: 2px 4px; border-radius: 4px; }
</style>
</head>
<body>
{{.Content}}
</body>
</html>
`
