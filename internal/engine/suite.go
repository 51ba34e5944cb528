package engine

import (
	"context"
	"path/filepath"
	"time"

	"github.com/tessera-qa/tessera/internal/inputs"
	"github.com/tessera-qa/tessera/internal/jsonl"
	"github.com/tessera-qa/tessera/internal/model"
	"github.com/tessera-qa/tessera/internal/redact"
	"github.com/tessera-qa/tessera/internal/resume"
	"github.com/tessera-qa/tessera/internal/runfolder"
	"github.com/tessera-qa/tessera/internal/runindex"
	"github.com/tessera-qa/tessera/internal/store"
)

// groupOutcome is what a suite or plan execution reports upward.
type groupOutcome struct {
	runID     string
	status    model.RunStatus
	suspended bool
}

// resumedChild is the already-completed attempt a resumed invocation
// injects back into the suite loop.
type resumedChild struct {
	runID       string
	testID      string
	testVersion string
	status      model.RunStatus
}

// suiteCursor marks where in the iteration space execution (re)enters.
type suiteCursor struct {
	iteration int
	node      int
	attempt   int
	pending   *resumedChild
}

// suiteExecution bundles everything one suite run carries through its
// node loop.
type suiteExecution struct {
	suite        *model.SuiteManifest
	plan         *model.PlanManifest
	suiteReq     *model.RunRequest // carries environment and node overrides
	topReq       *model.RunRequest // original request, captured into sessions
	planProgress *resume.PlanProgress
	group        *runfolder.Folder
	start        time.Time
	casesRoot    string
}

func (e *Engine) runSuiteTarget(ctx context.Context, idx *runindex.Index, suite *model.SuiteManifest, plan *model.PlanManifest, req *model.RunRequest, discovery *store.Discovery) (*RunResult, error) {
	out, err := e.runSuite(ctx, idx, suite, plan, req, req, nil)
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

// runSuite allocates the group run folder, snapshots the suite manifest,
// controls, environment, and request, validates the node overrides, and
// walks the node loop.
func (e *Engine) runSuite(ctx context.Context, idx *runindex.Index, suite *model.SuiteManifest, plan *model.PlanManifest, suiteReq, topReq *model.RunRequest, planProg *resume.PlanProgress) (groupOutcome, error) {
	group, err := runfolder.Allocate(e.opts.RunsRoot, runfolder.GroupPrefix, redact.New(nil), e.logger)
	if err != nil {
		return groupOutcome{}, err
	}
	start := time.Now().UTC()
	e.logger.Info("suite run started", "run_id", group.RunID, "suite", suite.Identity().String())

	controls := suite.EffectiveControls()
	env, err := e.mergeEnvironment(plan, suite, suiteReq)
	if err != nil {
		return groupOutcome{}, err
	}
	if err := group.WriteJSON(runfolder.ManifestFile, suite); err != nil {
		return groupOutcome{}, err
	}
	if err := group.WriteJSON(runfolder.ControlsFile, controls); err != nil {
		return groupOutcome{}, err
	}
	if err := group.WriteJSON(runfolder.EnvironmentFile, env.Sorted()); err != nil {
		return groupOutcome{}, err
	}
	if err := group.WriteJSON(runfolder.RunRequestFile, suiteReq); err != nil {
		return groupOutcome{}, err
	}

	// Node overrides must name declared nodes; matching is case-sensitive.
	known := map[string]bool{}
	for _, id := range suite.NodeIDs() {
		known[id] = true
	}
	for nodeID := range suiteReq.NodeOverrides {
		if !known[nodeID] {
			reqErr := model.Errorf(model.ErrRunRequestInvalid, "nodeOverrides names unknown node %q", nodeID).
				With("reason", "UnknownNodeOverride")
			group.Event("RunRequest.Invalid", runfolder.LevelError, reqErr.Error(), nil)
			result := model.GroupResult{
				SchemaVersion: model.SchemaVersion,
				RunType:       model.RunTypeTestSuite,
				ID:            suite.ID,
				Version:       suite.Version,
				Status:        model.StatusError,
				StartTime:     start,
				EndTime:       time.Now().UTC(),
				ChildRunIDs:   []string{},
				StatusCounts:  map[model.RunStatus]int{},
			}
			if ferr := group.Finalize(&result); ferr != nil {
				e.logger.Warn("group finalization failed", "run_id", group.RunID, "error", ferr)
			}
			return groupOutcome{}, reqErr
		}
	}

	if controls.MaxParallel > 1 {
		group.Event("Controls.MaxParallel.Ignored", runfolder.LevelWarning,
			"parallel execution is not supported; running sequentially",
			map[string]any{"maxParallel": controls.MaxParallel})
	}

	return e.continueSuite(ctx, idx, newSuiteExecution(suite, plan, suiteReq, topReq, planProg, group, start, e.opts.Roots.Cases), suiteCursor{})
}

func newSuiteExecution(suite *model.SuiteManifest, plan *model.PlanManifest, suiteReq, topReq *model.RunRequest, planProg *resume.PlanProgress, group *runfolder.Folder, start time.Time, casesRoot string) suiteExecution {
	return suiteExecution{
		suite:        suite,
		plan:         plan,
		suiteReq:     suiteReq,
		topReq:       topReq,
		planProgress: planProg,
		group:        group,
		start:        start,
		casesRoot:    casesRoot,
	}
}

// continueSuite walks the repeat × node × attempt space from the cursor.
// Every attempt is its own case run with its own folder and index entry
// and its own children.jsonl line. A node retries while its last status is
// Error or Timeout, up to retryOnError extra attempts. A non-passing node
// stops the suite unless continueOnFailure is set.
func (e *Engine) continueSuite(ctx context.Context, idx *runindex.Index, x suiteExecution, cursor suiteCursor) (groupOutcome, error) {
	children, err := x.group.OpenChildren()
	if err != nil {
		return groupOutcome{}, err
	}
	defer children.Close()

	controls := x.suite.EffectiveControls()
	pending := cursor.pending

	for iteration := cursor.iteration; iteration < controls.Repeat; iteration++ {
		firstNode := 0
		if iteration == cursor.iteration {
			firstNode = cursor.node
		}
		for ni := firstNode; ni < len(x.suite.TestCases); ni++ {
			if ctx.Err() != nil {
				e.logger.Info("suite cancelled between nodes", "run_id", x.group.RunID)
				return e.finalizeSuiteGroup(idx, x)
			}
			node := x.suite.TestCases[ni]

			firstAttempt := 0
			if iteration == cursor.iteration && ni == cursor.node {
				firstAttempt = cursor.attempt
			}
			var last model.RunStatus
			for attempt := firstAttempt; attempt <= controls.RetryOnError; attempt++ {
				var child resumedChild
				if pending != nil {
					child = *pending
					pending = nil
				} else {
					child, err = e.runNodeAttempt(ctx, idx, x, node, iteration, ni, attempt)
					if err != nil {
						return groupOutcome{}, err
					}
					if child.runID == "" {
						// The attempt suspended behind a machine restart.
						return groupOutcome{runID: x.group.RunID, suspended: true}, nil
					}
				}
				if err := children.Append(model.SuiteChild{
					RunID:       child.runID,
					NodeID:      node.NodeID,
					TestID:      child.testID,
					TestVersion: child.testVersion,
					Status:      child.status,
				}); err != nil {
					return groupOutcome{}, err
				}
				last = child.status
				if last != model.StatusError && last != model.StatusTimeout {
					break
				}
			}
			if last != model.StatusPassed && !controls.ContinueOnFailure {
				return e.finalizeSuiteGroup(idx, x)
			}
		}
	}
	return e.finalizeSuiteGroup(idx, x)
}

// runNodeAttempt executes one attempt of one node. A returned child with
// an empty runID signals suspension. Resolution failures do not abort the
// suite: the attempt becomes an Error-status case run carrying the
// structured payload.
func (e *Engine) runNodeAttempt(ctx context.Context, idx *runindex.Index, x suiteExecution, node model.SuiteNode, iteration, ni, attempt int) (resumedChild, error) {
	spec, buildErr := e.buildNodeSpec(x, node, iteration, ni, attempt)
	if buildErr != nil {
		testID, testVersion := node.Ref, ""
		if spec.manifest != nil {
			testID, testVersion = spec.manifest.ID, spec.manifest.Version
		}
		runID, err := e.failNode(idx, x, node, testID, testVersion, buildErr)
		if err != nil {
			return resumedChild{}, err
		}
		return resumedChild{runID: runID, testID: testID, testVersion: testVersion, status: model.StatusError}, nil
	}

	out, err := e.runCase(ctx, idx, spec)
	if err != nil {
		return resumedChild{}, err
	}
	if out.suspended {
		return resumedChild{}, nil
	}
	return resumedChild{
		runID:       out.runID,
		testID:      spec.manifest.ID,
		testVersion: spec.manifest.Version,
		status:      out.status,
	}, nil
}

// buildNodeSpec resolves the node ref, loads the case manifest, and builds
// the immutable case snapshot for one attempt. A partially built spec is
// returned alongside the error so the caller can identify the case.
func (e *Engine) buildNodeSpec(x suiteExecution, node model.SuiteNode, iteration, ni, attempt int) (caseSpec, error) {
	spec := caseSpec{
		nodeID:       node.NodeID,
		parentRunID:  x.group.RunID,
		suiteID:      x.suite.ID,
		suiteVersion: x.suite.Version,
		request:      x.topReq,
		planProgress: x.planProgress,
	}
	if x.plan != nil {
		spec.planID = x.plan.ID
		spec.planVersion = x.plan.Version
	}
	spec.suiteProgress = &resume.SuiteProgress{
		Manifest:     x.suite,
		ManifestPath: x.suite.SourcePath,
		GroupRunID:   x.group.RunID,
		Iteration:    iteration,
		NodeIndex:    ni,
		Attempt:      attempt,
		StartTime:    x.start,
	}

	manifestPath, err := store.ResolveSuiteRef(x.suite.SourcePath, x.casesRoot, node.Ref)
	if err != nil {
		return spec, err
	}
	manifest, err := store.LoadCase(manifestPath)
	if err != nil {
		return spec, err
	}
	spec.manifest = manifest

	env, err := e.mergeEnvironment(x.plan, x.suite, x.suiteReq)
	if err != nil {
		return spec, err
	}
	spec.env = env

	var overrideInputs map[string]any
	if ov, ok := x.suiteReq.NodeOverrides[node.NodeID]; ok {
		overrideInputs = ov.Inputs
	}
	resolved, err := inputs.Resolve(manifest, node.Inputs, overrideInputs, env, node.NodeID)
	if err != nil {
		return spec, err
	}
	spec.resolved = resolved

	if x.suite.Environment != nil {
		spec.workingDir = x.suite.Environment.WorkingDir
	}
	spec.timeout = e.caseTimeout(manifest)
	return spec, nil
}

// failNode materialises a pre-launch node failure as an Error-status case
// run carrying the suite context.
func (e *Engine) failNode(idx *runindex.Index, x suiteExecution, node model.SuiteNode, testID, testVersion string, cause error) (string, error) {
	fc := failedCase{
		nodeID:       node.NodeID,
		testID:       testID,
		testVersion:  testVersion,
		parentRunID:  x.group.RunID,
		suiteID:      x.suite.ID,
		suiteVersion: x.suite.Version,
	}
	if x.plan != nil {
		fc.planID = x.plan.ID
		fc.planVersion = x.plan.Version
	}
	return e.failCase(idx, fc, cause)
}

// finalizeSuiteGroup aggregates the recorded children, writes the group
// result, and indexes the suite run.
func (e *Engine) finalizeSuiteGroup(idx *runindex.Index, x suiteExecution) (groupOutcome, error) {
	recorded, err := jsonl.ReadAll[model.SuiteChild](filepath.Join(x.group.Path, runfolder.ChildrenFile))
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
		RunType:       model.RunTypeTestSuite,
		ID:            x.suite.ID,
		Version:       x.suite.Version,
		Status:        status,
		StartTime:     x.start,
		EndTime:       end,
		ChildRunIDs:   runIDs,
		StatusCounts:  counts,
	}
	if err := x.group.Finalize(&result); err != nil {
		return groupOutcome{}, err
	}
	parentRunID := ""
	if x.planProgress != nil {
		parentRunID = x.planProgress.GroupRunID
	}
	if err := idx.Append(model.IndexEntry{
		RunID:       x.group.RunID,
		RunType:     model.RunTypeTestSuite,
		ID:          x.suite.ID,
		Version:     x.suite.Version,
		StartTime:   x.start,
		EndTime:     end,
		Status:      status,
		ParentRunID: parentRunID,
	}); err != nil {
		return groupOutcome{}, err
	}
	e.logger.Info("suite run finalized", "run_id", x.group.RunID, "status", string(status))
	return groupOutcome{runID: x.group.RunID, status: status}, nil
}
