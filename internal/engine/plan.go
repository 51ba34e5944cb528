package engine

import (
	"context"
	"path/filepath"
	"time"

	"github.com/tessera-qa/tessera/internal/jsonl"
	"github.com/tessera-qa/tessera/internal/model"
	"github.com/tessera-qa/tessera/internal/redact"
	"github.com/tessera-qa/tessera/internal/resume"
	"github.com/tessera-qa/tessera/internal/runfolder"
	"github.com/tessera-qa/tessera/internal/runindex"
	"github.com/tessera-qa/tessera/internal/store"
)

// planExecution bundles one plan run's loop state.
type planExecution struct {
	plan   *model.PlanManifest
	topReq *model.RunRequest
	group  *runfolder.Folder
	start  time.Time
}

func (e *Engine) runPlanTarget(ctx context.Context, idx *runindex.Index, plan *model.PlanManifest, req *model.RunRequest, discovery *store.Discovery) (*RunResult, error) {
	// Every suite reference must resolve before any folder is allocated.
	suiteIDs, err := plan.SuiteIdentities()
	if err != nil {
		return nil, err
	}
	suites := make([]*model.SuiteManifest, 0, len(suiteIDs))
	for _, id := range suiteIDs {
		suite, ok := discovery.Suites[id]
		if !ok {
			return nil, model.Errorf(model.ErrPlanSuiteRefNotFound, "plan %s references unknown suite %s", plan.Identity(), id).
				With("id", id.ID).With("version", id.Version)
		}
		suites = append(suites, suite)
	}

	group, err := runfolder.Allocate(e.opts.RunsRoot, runfolder.GroupPrefix, redact.New(nil), e.logger)
	if err != nil {
		return nil, err
	}
	start := time.Now().UTC()
	e.logger.Info("plan run started", "run_id", group.RunID, "plan", plan.Identity().String())

	if err := group.WriteJSON(runfolder.ManifestFile, plan); err != nil {
		return nil, err
	}
	planEnv := map[string]string{}
	if plan.Environment != nil && plan.Environment.Env != nil {
		planEnv = plan.Environment.Env
	}
	if err := group.WriteJSON(runfolder.EnvironmentFile, planEnv); err != nil {
		return nil, err
	}
	if err := group.WriteJSON(runfolder.RunRequestFile, req); err != nil {
		return nil, err
	}

	x := planExecution{plan: plan, topReq: req, group: group, start: start}
	out, err := e.continuePlan(ctx, idx, x, suites, 0)
	if err != nil {
		return nil, err
	}
	return &RunResult{
		RunID:     out.runID,
		Path:      filepath.Join(e.opts.RunsRoot, out.runID),
		Status:    out.status,
		Suspended: out.suspended,
	}, nil
}

// continuePlan iterates the plan's suites from the given index. Each
// suite executes through a synthesised suite request carrying only the
// plan request's environment overrides; every suite runs regardless of
// the previous one's status.
func (e *Engine) continuePlan(ctx context.Context, idx *runindex.Index, x planExecution, suites []*model.SuiteManifest, from int) (groupOutcome, error) {
	children, err := x.group.OpenChildren()
	if err != nil {
		return groupOutcome{}, err
	}
	defer children.Close()

	for si := from; si < len(suites); si++ {
		if ctx.Err() != nil {
			e.logger.Info("plan cancelled between suites", "run_id", x.group.RunID)
			break
		}
		suite := suites[si]
		synth := &model.RunRequest{
			Suite:                suite.Identity().String(),
			EnvironmentOverrides: x.topReq.EnvironmentOverrides,
		}
		planProg := &resume.PlanProgress{
			Manifest:     x.plan,
			ManifestPath: x.plan.SourcePath,
			GroupRunID:   x.group.RunID,
			SuiteIndex:   si,
			StartTime:    x.start,
		}
		out, err := e.runSuite(ctx, idx, suite, x.plan, synth, x.topReq, planProg)
		if err != nil {
			return groupOutcome{}, err
		}
		if out.suspended {
			return groupOutcome{runID: x.group.RunID, suspended: true}, nil
		}
		if err := children.Append(model.PlanChild{
			RunID:        out.runID,
			SuiteID:      suite.ID,
			SuiteVersion: suite.Version,
			Status:       out.status,
		}); err != nil {
			return groupOutcome{}, err
		}
	}
	return e.finalizePlanGroup(idx, x)
}

// finalizePlanGroup aggregates the suite children and closes the plan run.
func (e *Engine) finalizePlanGroup(idx *runindex.Index, x planExecution) (groupOutcome, error) {
	recorded, err := jsonl.ReadAll[model.PlanChild](filepath.Join(x.group.Path, runfolder.ChildrenFile))
	if err != nil {
		recorded = nil
	}
	statuses := make([]model.RunStatus, 0, len(recorded))
	runIDs := make([]string, 0, len(recorded))
	counts := map[model.RunStatus]int{}
	for _, c := range recorded {
		statuses = append(statuses, c.Status)
		runIDs = append(runIDs, c.RunID)
		counts[c.Status]++
	}
	status := model.AggregateStatus(statuses)
	end := time.Now().UTC()

	result := model.GroupResult{
		SchemaVersion: model.SchemaVersion,
		RunType:       model.RunTypeTestPlan,
		ID:            x.plan.ID,
		Version:       x.plan.Version,
		Status:        status,
		StartTime:     x.start,
		EndTime:       end,
		ChildRunIDs:   runIDs,
		StatusCounts:  counts,
	}
	if err := x.group.Finalize(&result); err != nil {
		return groupOutcome{}, err
	}
	if err := idx.Append(model.IndexEntry{
		RunID:     x.group.RunID,
		RunType:   model.RunTypeTestPlan,
		ID:        x.plan.ID,
		Version:   x.plan.Version,
		StartTime: x.start,
		EndTime:   end,
		Status:    status,
	}); err != nil {
		return groupOutcome{}, err
	}
	e.logger.Info("plan run finalized", "run_id", x.group.RunID, "status", string(status))
	return groupOutcome{runID: x.group.RunID, status: status}, nil
}
