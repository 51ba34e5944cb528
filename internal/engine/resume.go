package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/tessera-qa/tessera/internal/environ"
	"github.com/tessera-qa/tessera/internal/inputs"
	"github.com/tessera-qa/tessera/internal/model"
	"github.com/tessera-qa/tessera/internal/redact"
	"github.com/tessera-qa/tessera/internal/resume"
	"github.com/tessera-qa/tessera/internal/runfolder"
	"github.com/tessera-qa/tessera/internal/runindex"
	"github.com/tessera-qa/tessera/internal/store"
)

// Resume re-enters a run suspended behind a machine restart. The autostart
// hook invokes it with the run id and the token persisted at suspension
// time; a token mismatch refuses the session. The in-flight case completes
// first, then the surrounding suite and plan loops continue where they
// stopped.
func (e *Engine) Resume(ctx context.Context, runID, token string) (*RunResult, error) {
	caseFolderPath := filepath.Join(e.opts.RunsRoot, runID)
	session, err := resume.Load(caseFolderPath)
	if err != nil {
		return nil, err
	}
	if !session.VerifyToken(token) {
		return nil, fmt.Errorf("resume token mismatch for run %s", runID)
	}
	if session.State != resume.StatePendingResume {
		return nil, fmt.Errorf("run %s is not pending resume (state %s)", runID, session.State)
	}
	e.logger.Info("resuming run",
		"run_id", runID,
		"next_phase", session.NextPhase,
		"resume_count", session.ResumeCount)

	env, err := environ.Merge(environ.New(), session.Environment)
	if err != nil {
		return nil, err
	}
	manifest := session.Manifest
	if manifest == nil {
		return nil, fmt.Errorf("resume session for %s carries no manifest", runID)
	}
	manifest.SourcePath = session.ManifestPath

	resolved, err := inputs.Resolve(manifest, session.Templates, nil, env, session.NodeID)
	if err != nil {
		return nil, err
	}
	redactor := redact.New(resolved.SecretStrings())
	folder, err := runfolder.Reattach(e.opts.RunsRoot, runID, redactor, e.logger)
	if err != nil {
		return nil, err
	}

	idx, err := runindex.Open(e.opts.RunsRoot, e.logger)
	if err != nil {
		return nil, err
	}
	defer idx.Close()

	spec := caseSpec{
		manifest:      manifest,
		resolved:      resolved,
		env:           env,
		workingDir:    session.WorkingDir,
		timeout:       time.Duration(session.TimeoutSec) * time.Second,
		nodeID:        session.NodeID,
		parentRunID:   session.ParentRunID,
		suiteID:       session.SuiteID,
		suiteVersion:  session.SuiteVersion,
		planID:        session.PlanID,
		planVersion:   session.PlanVersion,
		request:       session.Request,
		suiteProgress: session.SuiteProgress,
		planProgress:  session.PlanProgress,
	}

	out, err := e.executePhase(ctx, idx, folder, spec, session.StartTime, session.NextPhase, session.ResumeCount)
	if err != nil {
		return nil, err
	}
	if out.suspended {
		return &RunResult{RunID: out.runID, Path: folder.Path, Suspended: true}, nil
	}

	if session.SuiteProgress == nil {
		return &RunResult{RunID: out.runID, Path: folder.Path, Status: out.status}, nil
	}
	return e.continueAfterResume(ctx, idx, session, resumedChild{
		runID:       out.runID,
		testID:      manifest.ID,
		testVersion: manifest.Version,
		status:      out.status,
	})
}

// continueAfterResume re-enters the suite loop at the persisted cursor,
// then the plan loop when the suite belonged to one.
func (e *Engine) continueAfterResume(ctx context.Context, idx *runindex.Index, session *resume.Session, child resumedChild) (*RunResult, error) {
	sp := session.SuiteProgress
	suite := sp.Manifest
	suite.SourcePath = sp.ManifestPath

	var plan *model.PlanManifest
	if session.PlanProgress != nil {
		plan = session.PlanProgress.Manifest
		plan.SourcePath = session.PlanProgress.ManifestPath
	}

	group, err := runfolder.Reattach(e.opts.RunsRoot, sp.GroupRunID, redact.New(nil), e.logger)
	if err != nil {
		return nil, err
	}

	suiteReq := session.Request
	if session.EntityType != model.RunTypeTestSuite || suiteReq == nil {
		var overrides *model.EnvironmentOverrides
		if session.Request != nil {
			overrides = session.Request.EnvironmentOverrides
		}
		suiteReq = &model.RunRequest{
			Suite:                suite.Identity().String(),
			EnvironmentOverrides: overrides,
		}
	}

	x := newSuiteExecution(suite, plan, suiteReq, session.Request, session.PlanProgress, group, sp.StartTime, session.CasesRoot)
	cursor := suiteCursor{
		iteration: sp.Iteration,
		node:      sp.NodeIndex,
		attempt:   sp.Attempt,
		pending:   &child,
	}
	gout, err := e.continueSuite(ctx, idx, x, cursor)
	if err != nil {
		return nil, err
	}
	if gout.suspended {
		return &RunResult{RunID: gout.runID, Path: filepath.Join(e.opts.RunsRoot, gout.runID), Suspended: true}, nil
	}

	if session.PlanProgress == nil {
		return &RunResult{
			RunID:  gout.runID,
			Path:   filepath.Join(e.opts.RunsRoot, gout.runID),
			Status: gout.status,
		}, nil
	}
	return e.continuePlanAfterResume(ctx, idx, session, suite, gout)
}

// continuePlanAfterResume records the just-finished suite in the plan's
// children and walks the remaining suites.
func (e *Engine) continuePlanAfterResume(ctx context.Context, idx *runindex.Index, session *resume.Session, finished *model.SuiteManifest, suiteOut groupOutcome) (*RunResult, error) {
	pp := session.PlanProgress
	plan := pp.Manifest
	plan.SourcePath = pp.ManifestPath

	planGroup, err := runfolder.Reattach(e.opts.RunsRoot, pp.GroupRunID, redact.New(nil), e.logger)
	if err != nil {
		return nil, err
	}
	children, err := planGroup.OpenChildren()
	if err != nil {
		return nil, err
	}
	if err := children.Append(model.PlanChild{
		RunID:        suiteOut.runID,
		SuiteID:      finished.ID,
		SuiteVersion: finished.Version,
		Status:       suiteOut.status,
	}); err != nil {
		children.Close()
		return nil, err
	}
	children.Close()

	// The remaining suites resolve against a fresh discovery of the
	// persisted roots.
	roots := store.Roots{Cases: session.CasesRoot, Suites: session.SuitesRoot, Plans: session.PlansRoot}
	discovery := store.Discover(roots, e.logger)
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

	topReq := session.Request
	if topReq == nil {
		topReq = &model.RunRequest{Plan: plan.Identity().String()}
	}
	x := planExecution{plan: plan, topReq: topReq, group: planGroup, start: pp.StartTime}
	out, err := e.continuePlan(ctx, idx, x, suites, pp.SuiteIndex+1)
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
