// Package plan turns reviewed mappings into action items and recurring
// evidence collection schedules. Obligations with no accepted mapping
// become gap actions owned by the compliance team.
package plan

import (
	"fmt"
	"sort"
	"time"

	"github.com/regdelta/regdelta/internal/catalog"
	"github.com/regdelta/regdelta/internal/extract"
	"github.com/regdelta/regdelta/internal/mapper"
)

// GapControlID marks an action raised for an obligation that no control
// currently covers.
const GapControlID = "GAP"

// Action statuses.
const (
	StatusPlanned        = "planned"
	StatusReviewRequired = "review_required"
)

// Action is a single remediation or verification task.
type Action struct {
	Summary        string `json:"summary"`
	ObligationID   string `json:"obligation_id"`
	ObligationText string `json:"obligation_text"`
	ControlID      string `json:"control_id"`
	Owner          string `json:"owner"`
	DueDate        string `json:"due_date"`
	Priority       string `json:"priority"`
	System         string `json:"system"`
	Status         string `json:"status"`
}

// EvidenceRun is a recurring evidence collection schedule for a control.
type EvidenceRun struct {
	ControlID   string `json:"control_id"`
	Artefact    string `json:"artefact"`
	Owner       string `json:"owner"`
	CadenceCron string `json:"cadence_cron"`
	NextRunAt   string `json:"next_run_at"`
	Status      string `json:"status"`
}

// Cadence presets for evidence schedules.
const (
	CadenceMonthly   = "monthly"
	CadenceQuarterly = "quarterly"
	CadenceAnnual    = "annual"
)

var cadenceCrons = map[string]string{
	CadenceMonthly:   "0 0 1 * *",
	CadenceQuarterly: "0 0 1 */3 *",
	CadenceAnnual:    "0 0 1 1 *",
}

// Planner generates actions and evidence schedules.
type Planner struct {
	now func() time.Time
}

// NewPlanner creates a planner using wall-clock time.
func NewPlanner() *Planner {
	return &Planner{now: time.Now}
}

// NewPlannerAt creates a planner with a fixed clock, for reproducible output.
func NewPlannerAt(now func() time.Time) *Planner {
	return &Planner{now: now}
}

// Actions builds the action list for a set of obligations and their
// mapping candidates. Each accepted mapping yields one verification
// action due in 14/30/60 days by severity; an obligation with no
// accepted mapping yields a single gap action on a tighter 7/14/30 day
// clock, always raised at high priority.
func (p *Planner) Actions(obligations []extract.Obligation, mappings map[string][]mapper.Mapping, cat *catalog.Catalog) []Action {
	var actions []Action
	for _, ob := range obligations {
		var accepted []mapper.Mapping
		for _, m := range mappings[ob.ID] {
			if m.Status == mapper.StatusAccepted {
				accepted = append(accepted, m)
			}
		}

		if len(accepted) == 0 {
			actions = append(actions, p.gapAction(ob))
			continue
		}
		for _, m := range accepted {
			ctrl := cat.ByID(m.ControlID)
			if ctrl == nil {
				continue
			}
			actions = append(actions, p.mappingAction(ob, ctrl))
		}
	}
	return actions
}

func (p *Planner) mappingAction(ob extract.Obligation, ctrl *catalog.Control) Action {
	days := 60
	switch ob.Severity {
	case extract.SeverityHigh:
		days = 14
	case extract.SeverityMedium:
		days = 30
	}
	return Action{
		Summary:        fmt.Sprintf("Implement/verify %s for new obligation", ctrl.Title),
		ObligationID:   ob.ID,
		ObligationText: truncate(ob.Text, 150),
		ControlID:      ctrl.ControlID,
		Owner:          ctrl.Owner,
		DueDate:        p.dueDate(days),
		Priority:       string(ob.Severity),
		System:         ctrl.Domain,
		Status:         StatusPlanned,
	}
}

func (p *Planner) gapAction(ob extract.Obligation) Action {
	days := 30
	switch ob.Severity {
	case extract.SeverityHigh:
		days = 7
	case extract.SeverityMedium:
		days = 14
	}
	return Action{
		Summary:        "REVIEW: New obligation without control mapping",
		ObligationID:   ob.ID,
		ObligationText: truncate(ob.Text, 150),
		ControlID:      GapControlID,
		Owner:          "Compliance Team",
		DueDate:        p.dueDate(days),
		Priority:       string(extract.SeverityHigh),
		System:         "Compliance",
		Status:         StatusReviewRequired,
	}
}

// EvidenceSchedules builds a recurring collection schedule for each
// control referenced by an accepted mapping. At most the first two
// evidence examples per control are scheduled.
func (p *Planner) EvidenceSchedules(mappings map[string][]mapper.Mapping, cat *catalog.Catalog, cadence string) []EvidenceRun {
	cron, ok := cadenceCrons[cadence]
	if !ok {
		cadence = CadenceQuarterly
		cron = cadenceCrons[cadence]
	}

	seen := map[string]bool{}
	var ids []string
	for _, maps := range mappings {
		for _, m := range maps {
			if m.Status == mapper.StatusAccepted && !seen[m.ControlID] {
				seen[m.ControlID] = true
				ids = append(ids, m.ControlID)
			}
		}
	}
	sort.Strings(ids)

	nextRun := p.nextRun(cadence)
	var runs []EvidenceRun
	for _, id := range ids {
		ctrl := cat.ByID(id)
		if ctrl == nil {
			continue
		}
		examples := ctrl.EvidenceExamples
		if len(examples) > 2 {
			examples = examples[:2]
		}
		for _, artefact := range examples {
			runs = append(runs, EvidenceRun{
				ControlID:   ctrl.ControlID,
				Artefact:    artefact,
				Owner:       ctrl.Owner,
				CadenceCron: cron,
				NextRunAt:   nextRun,
				Status:      "scheduled",
			})
		}
	}
	return runs
}

func (p *Planner) dueDate(days int) string {
	return p.now().UTC().AddDate(0, 0, days).Format("2006-01-02")
}

func (p *Planner) nextRun(cadence string) string {
	now := p.now().UTC()
	var next time.Time
	switch cadence {
	case CadenceMonthly:
		next = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	case CadenceQuarterly:
		quarterStart := time.Month((int(now.Month())-1)/3*3 + 1)
		next = time.Date(now.Year(), quarterStart, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 3, 0)
	case CadenceAnnual:
		next = time.Date(now.Year()+1, time.January, 1, 0, 0, 0, 0, time.UTC)
	default:
		next = now.AddDate(0, 0, 30)
	}
	return next.Format("2006-01-02")
}

// Summary aggregates action counts for reporting.
type Summary struct {
	Total      int            `json:"total"`
	ByPriority map[string]int `json:"by_priority"`
	ByStatus   map[string]int `json:"by_status"`
	Gaps       int            `json:"gaps"`
	Owners     int            `json:"owners"`
}

// Summarize computes action statistics.
func Summarize(actions []Action) Summary {
	s := Summary{
		ByPriority: map[string]int{},
		ByStatus:   map[string]int{},
	}
	owners := map[string]bool{}
	for _, a := range actions {
		s.Total++
		s.ByPriority[a.Priority]++
		s.ByStatus[a.Status]++
		if a.ControlID == GapControlID {
			s.Gaps++
		}
		owners[a.Owner] = true
	}
	s.Owners = len(owners)
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
