// Package pipeline sequences the change-analysis stages for one run:
// ingest both documents, diff them, extract obligations from the changed
// paragraphs, map obligations to controls, and plan remediation actions.
// Every completed stage leaves an immutable artifact and one audit entry;
// any failure moves the run to the failed state with a failure entry, and
// the run is never resumed.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/regdelta/regdelta/internal/audit"
	"github.com/regdelta/regdelta/internal/catalog"
	"github.com/regdelta/regdelta/internal/diffengine"
	"github.com/regdelta/regdelta/internal/document"
	"github.com/regdelta/regdelta/internal/extract"
	"github.com/regdelta/regdelta/internal/lexicon"
	"github.com/regdelta/regdelta/internal/mapper"
	"github.com/regdelta/regdelta/internal/plan"
	"github.com/regdelta/regdelta/internal/progress"
	"github.com/regdelta/regdelta/internal/review"
)

// Stage identifies a step in the run lifecycle. The value doubles as the
// run state: a running run's state names the stage it is executing.
type Stage string

const (
	StageIngest  Stage = "ingest"
	StageDiff    Stage = "diff"
	StageExtract Stage = "extract"
	StageMap     Stage = "map"
	StagePlan    Stage = "plan"
	StageDone    Stage = "done"
	StageFailed  Stage = "failed"
)

var stageOrder = []Stage{StageIngest, StageDiff, StageExtract, StageMap, StagePlan}

// Pipeline wires the analysis components together.
type Pipeline struct {
	runs     *Store
	reviews  *review.Store
	log      *audit.Log
	lex      *lexicon.Lexicon
	cat      *catalog.Catalog
	mapper   *mapper.Mapper
	retries  int
	reporter progress.Reporter
}

// New creates a pipeline. retries bounds re-attempts of the ingest stage
// only; stages that write artifacts or audit entries are never retried.
func New(runs *Store, reviews *review.Store, log *audit.Log, lex *lexicon.Lexicon, cat *catalog.Catalog, m *mapper.Mapper, retries int, reporter progress.Reporter) *Pipeline {
	if reporter == nil {
		reporter = progress.NewQuietReporter()
	}
	return &Pipeline{
		runs:     runs,
		reviews:  reviews,
		log:      log,
		lex:      lex,
		cat:      cat,
		mapper:   m,
		retries:  retries,
		reporter: reporter,
	}
}

// Result collects what a completed run produced.
type Result struct {
	RunID       string                      `json:"run_id"`
	Scenario    string                      `json:"scenario"`
	DiffSummary diffengine.Summary          `json:"diff_summary"`
	Obligations []extract.Obligation        `json:"obligations"`
	Mappings    map[string][]mapper.Mapping `json:"mappings"`
	Actions     []plan.Action               `json:"actions"`
	Evidence    []plan.EvidenceRun          `json:"evidence"`
}

// Run executes all stages for one document pair. baselinePath may be empty
// for a first scenario; every paragraph of the new document then arrives
// as an insertion.
func (p *Pipeline) Run(ctx context.Context, scenario, baselinePath, newPath string) (*Result, error) {
	runID := uuid.New().String()
	run := Run{
		ID:           runID,
		Scenario:     scenario,
		BaselinePath: baselinePath,
		NewPath:      newPath,
		State:        StageIngest,
	}
	if err := p.runs.CreateRun(ctx, run); err != nil {
		return nil, err
	}
	if _, err := p.log.Append(audit.ActorPipeline, audit.ActionRunStarted, map[string]any{
		"run_id":   runID,
		"scenario": scenario,
		"baseline": baselinePath,
		"new":      newPath,
	}); err != nil {
		return nil, err
	}

	p.reporter.Start(len(stageOrder))
	defer p.reporter.Finish()

	res := &Result{RunID: runID, Scenario: scenario}
	prevDigest := ""

	var (
		baseline, newDoc *document.Document
		ops              []diffengine.ChangeOp
	)
	for i, stage := range stageOrder {
		if err := p.runs.SetState(ctx, runID, stage); err != nil {
			return nil, err
		}
		p.reporter.Update(i, fmt.Sprintf("Stage %s", stage))

		var (
			payload any
			err     error
		)
		switch stage {
		case StageIngest:
			baseline, newDoc, payload, err = p.ingest(baselinePath, newPath)
		case StageDiff:
			ops, payload = p.diff(res, baseline, newDoc)
		case StageExtract:
			payload, err = p.extract(ctx, res, runID, newDoc, ops)
		case StageMap:
			payload, err = p.mapStage(ctx, res, runID)
		case StagePlan:
			payload = p.plan(res)
		}
		if err != nil {
			return nil, p.fail(ctx, runID, stage, err)
		}

		prevDigest, err = p.complete(ctx, runID, stage, prevDigest, payload)
		if err != nil {
			return nil, p.fail(ctx, runID, stage, err)
		}
		p.reporter.Update(i+1, fmt.Sprintf("Stage %s complete", stage))
	}

	if err := p.runs.FinishRun(ctx, runID); err != nil {
		return nil, err
	}
	return res, nil
}

// ingest loads both documents. Reads have no side effects, so transient
// failures are retried up to the configured bound.
func (p *Pipeline) ingest(baselinePath, newPath string) (*document.Document, *document.Document, any, error) {
	var (
		baseline, newDoc *document.Document
		err              error
	)
	for attempt := 0; attempt <= p.retries; attempt++ {
		baseline, newDoc, err = loadPair(baselinePath, newPath)
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, nil, nil, fmt.Errorf("ingest failed after %d attempts: %w", p.retries+1, err)
	}

	payload := map[string]any{
		"new": map[string]any{
			"document_id": newDoc.ID,
			"path":        newDoc.Path,
			"paragraphs":  len(newDoc.Paragraphs),
		},
	}
	if baseline != nil {
		payload["baseline"] = map[string]any{
			"document_id": baseline.ID,
			"path":        baseline.Path,
			"paragraphs":  len(baseline.Paragraphs),
		}
	}
	return baseline, newDoc, payload, nil
}

func loadPair(baselinePath, newPath string) (*document.Document, *document.Document, error) {
	var baseline *document.Document
	if baselinePath != "" {
		var err error
		baseline, err = document.Load(baselinePath)
		if err != nil {
			return nil, nil, fmt.Errorf("loading baseline: %w", err)
		}
	}
	newDoc, err := document.Load(newPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading new document: %w", err)
	}
	return baseline, newDoc, nil
}

func (p *Pipeline) diff(res *Result, baseline, newDoc *document.Document) ([]diffengine.ChangeOp, any) {
	var oldParas []document.Paragraph
	if baseline != nil {
		oldParas = baseline.Paragraphs
	}
	ops := diffengine.Diff(oldParas, newDoc.Paragraphs)
	res.DiffSummary = diffengine.Summarize(ops)
	return ops, map[string]any{
		"ops":     ops,
		"summary": res.DiffSummary,
	}
}

func (p *Pipeline) extract(ctx context.Context, res *Result, runID string, newDoc *document.Document, ops []diffengine.ChangeOp) (any, error) {
	ex := extract.New(p.lex)
	res.Obligations = ex.ChangedParagraphs(newDoc.ID, newDoc.Paragraphs, ops)
	if err := p.reviews.SaveObligations(ctx, runID, res.Obligations); err != nil {
		return nil, err
	}
	return map[string]any{
		"obligations": res.Obligations,
		"stats":       extract.Summarize(res.Obligations),
	}, nil
}

func (p *Pipeline) mapStage(ctx context.Context, res *Result, runID string) (any, error) {
	mappings, err := p.mapper.MapAll(ctx, res.Obligations)
	if err != nil {
		return nil, err
	}
	res.Mappings = mappings
	if err := p.reviews.SaveMappings(ctx, runID, mappings); err != nil {
		return nil, err
	}
	return map[string]any{
		"mappings": mappings,
		"stats":    mapper.Summarize(mappings),
	}, nil
}

func (p *Pipeline) plan(res *Result) any {
	planner := plan.NewPlanner()
	res.Actions = planner.Actions(res.Obligations, res.Mappings, p.cat)
	res.Evidence = planner.EvidenceSchedules(res.Mappings, p.cat, plan.CadenceQuarterly)
	return map[string]any{
		"actions":  res.Actions,
		"evidence": res.Evidence,
		"summary":  plan.Summarize(res.Actions),
	}
}

// complete persists the stage artifact and appends its audit entry. The
// input digest is the previous stage's output digest, chaining the
// artifacts of a run the same way entries chain in the audit log.
func (p *Pipeline) complete(ctx context.Context, runID string, stage Stage, prevDigest string, payload any) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("serializing %s artifact: %w", stage, err)
	}
	outDigest, err := audit.Digest(payload)
	if err != nil {
		return "", fmt.Errorf("digesting %s artifact: %w", stage, err)
	}

	if err := p.runs.SaveArtifact(ctx, Artifact{
		RunID:        runID,
		Stage:        stage,
		InputDigest:  prevDigest,
		OutputDigest: outDigest,
		Payload:      raw,
		CreatedAt:    time.Now().UTC(),
	}); err != nil {
		return "", err
	}

	if _, err := p.log.Append(audit.ActorPipeline, audit.ActionStageCompleted, map[string]any{
		"run_id":        runID,
		"stage":         string(stage),
		"input_digest":  prevDigest,
		"output_digest": outDigest,
	}); err != nil {
		return "", err
	}
	return outDigest, nil
}

// fail records the failure in both the run row and the audit log, then
// returns an error carrying the run id and stage.
func (p *Pipeline) fail(ctx context.Context, runID string, stage Stage, cause error) error {
	wrapped := fmt.Errorf("run %s stage %s: %w", runID, stage, cause)
	if err := p.runs.FailRun(ctx, runID, wrapped.Error()); err != nil {
		return fmt.Errorf("%w (additionally failed to record failure: %v)", wrapped, err)
	}
	if _, err := p.log.Append(audit.ActorPipeline, audit.ActionRunFailed, map[string]any{
		"run_id": runID,
		"stage":  string(stage),
		"error":  cause.Error(),
	}); err != nil {
		return fmt.Errorf("%w (additionally failed to audit failure: %v)", wrapped, err)
	}
	return wrapped
}
