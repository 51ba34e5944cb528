package engine

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/tessera-qa/tessera/internal/environ"
	"github.com/tessera-qa/tessera/internal/inputs"
	"github.com/tessera-qa/tessera/internal/model"
	"github.com/tessera-qa/tessera/internal/pathguard"
	"github.com/tessera-qa/tessera/internal/procdriver"
	"github.com/tessera-qa/tessera/internal/redact"
	"github.com/tessera-qa/tessera/internal/resume"
	"github.com/tessera-qa/tessera/internal/runfolder"
	"github.com/tessera-qa/tessera/internal/runindex"
)

// Variables injected into the subprocess environment on top of the merged
// layers: the phase (1 on a fresh run, the persisted nextPhase after a
// reboot resume) and the run folder path, through which the script reaches
// its control/ channel and artifacts/ directory.
const (
	phaseEnvVar     = "TESSERA_PHASE"
	runFolderEnvVar = "TESSERA_RUN_FOLDER"
)

// caseSpec is the immutable snapshot a single case run executes from.
type caseSpec struct {
	manifest   *model.CaseManifest
	resolved   *inputs.Resolved
	env        *environ.Environment
	workingDir string
	timeout    time.Duration
	nodeID     string

	parentRunID  string
	suiteID      string
	suiteVersion string
	planID       string
	planVersion  string

	// Context carried into the resume session.
	request       *model.RunRequest
	suiteProgress *resume.SuiteProgress
	planProgress  *resume.PlanProgress
}

// caseOutcome is what a case run reports back to its executor.
type caseOutcome struct {
	runID     string
	status    model.RunStatus
	suspended bool
}

func (e *Engine) runStandaloneCase(ctx context.Context, idx *runindex.Index, manifest *model.CaseManifest, req *model.RunRequest) (*RunResult, error) {
	fail := func(cause error) (*RunResult, error) {
		runID, err := e.failCase(idx, failedCase{
			testID:      manifest.ID,
			testVersion: manifest.Version,
		}, cause)
		if err != nil {
			return nil, err
		}
		return &RunResult{
			RunID:  runID,
			Path:   filepath.Join(e.opts.RunsRoot, runID),
			Status: model.StatusError,
		}, nil
	}

	env, err := e.mergeEnvironment(nil, nil, req)
	if err != nil {
		return fail(err)
	}
	resolved, err := inputs.Resolve(manifest, nil, req.CaseInputs, env, "")
	if err != nil {
		return fail(err)
	}
	spec := caseSpec{
		manifest: manifest,
		resolved: resolved,
		env:      env,
		timeout:  e.caseTimeout(manifest),
		request:  req,
	}
	out, err := e.runCase(ctx, idx, spec)
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

// mergeEnvironment layers the effective environment: process, then plan,
// then suite, then request overrides. A suite value wins over a plan one.
func (e *Engine) mergeEnvironment(plan *model.PlanManifest, suite *model.SuiteManifest, req *model.RunRequest) (*environ.Environment, error) {
	base := environ.FromProcess(e.opts.ProcessEnv)
	var layers []map[string]string
	if plan != nil && plan.Environment != nil {
		layers = append(layers, plan.Environment.Env)
	}
	if suite != nil && suite.Environment != nil {
		layers = append(layers, suite.Environment.Env)
	}
	if req != nil && req.EnvironmentOverrides != nil {
		layers = append(layers, req.EnvironmentOverrides.Env)
	}
	return environ.Merge(base, layers...)
}

func (e *Engine) caseTimeout(manifest *model.CaseManifest) time.Duration {
	if manifest.TimeoutSec > 0 {
		return time.Duration(manifest.TimeoutSec) * time.Second
	}
	return e.opts.defaultTimeout()
}

// failedCase identifies a case run that failed before a snapshot could be
// built. testID falls back to the node ref when the manifest never loaded.
type failedCase struct {
	nodeID       string
	testID       string
	testVersion  string
	parentRunID  string
	suiteID      string
	suiteVersion string
	planID       string
	planVersion  string
}

// failCase materialises a pre-launch resolution failure as an Error-status
// case run, so the structured payload lands in a result document and the
// index regardless of whether the case ran standalone or under a suite.
func (e *Engine) failCase(idx *runindex.Index, fc failedCase, cause error) (string, error) {
	folder, err := runfolder.Allocate(e.opts.RunsRoot, runfolder.CasePrefix, redact.New(nil), e.logger)
	if err != nil {
		return "", err
	}
	now := time.Now().UTC()
	result := model.CaseResult{
		SchemaVersion:   model.SchemaVersion,
		RunType:         model.RunTypeTestCase,
		NodeID:          fc.nodeID,
		TestID:          fc.testID,
		TestVersion:     fc.testVersion,
		SuiteID:         fc.suiteID,
		SuiteVersion:    fc.suiteVersion,
		PlanID:          fc.planID,
		PlanVersion:     fc.planVersion,
		Status:          model.StatusError,
		StartTime:       now,
		EndTime:         now,
		EffectiveInputs: map[string]any{},
		Error:           runfolder.ResultErrorFrom(cause),
	}
	detail := map[string]any{}
	if fc.nodeID != "" {
		detail["nodeId"] = fc.nodeID
	}
	folder.Event("Case.ResolveFailed", runfolder.LevelError, cause.Error(), detail)
	if err := folder.Finalize(&result); err != nil {
		return "", err
	}
	if err := idx.Append(model.IndexEntry{
		RunID:       folder.RunID,
		RunType:     model.RunTypeTestCase,
		ID:          fc.testID,
		Version:     fc.testVersion,
		StartTime:   now,
		EndTime:     now,
		Status:      model.StatusError,
		ParentRunID: fc.parentRunID,
		NodeID:      fc.nodeID,
	}); err != nil {
		return "", err
	}
	e.logger.Warn("case run failed before launch",
		"run_id", folder.RunID, "test", fc.testID, "node_id", fc.nodeID, "error", cause)
	return folder.RunID, nil
}

// runCase allocates the run folder, writes the snapshot artifacts,
// validates the runner-level input constraints, and executes one phase of
// the subprocess.
func (e *Engine) runCase(ctx context.Context, idx *runindex.Index, spec caseSpec) (caseOutcome, error) {
	redactor := redact.New(spec.resolved.SecretStrings())
	folder, err := runfolder.Allocate(e.opts.RunsRoot, runfolder.CasePrefix, redactor, e.logger)
	if err != nil {
		return caseOutcome{}, err
	}
	start := time.Now().UTC()
	e.logger.Info("case run started",
		"run_id", folder.RunID,
		"test", spec.manifest.Identity().String(),
		"node_id", spec.nodeID)

	if err := e.writeCaseSnapshots(folder, spec, redactor, start); err != nil {
		return caseOutcome{}, err
	}

	if spec.workingDir == "" {
		spec.workingDir = filepath.Dir(spec.manifest.SourcePath)
	}
	if err := e.validateRunnerConstraints(folder, &spec); err != nil {
		return e.finalizeCase(idx, folder, spec, start, model.StatusError, nil, runfolder.ResultErrorFrom(err), 0)
	}

	return e.executePhase(ctx, idx, folder, spec, start, 1, 0)
}

func (e *Engine) writeCaseSnapshots(folder *runfolder.Folder, spec caseSpec, redactor *redact.Redactor, start time.Time) error {
	snapshot, err := runfolder.BuildCaseSnapshotDoc(runfolder.CaseSnapshot{
		Manifest:      spec.manifest,
		Environment:   spec.env.Sorted(),
		Resolved:      spec.resolved,
		ResolvedAt:    start,
		EngineVersion: e.opts.EngineVersion,
	}, redactor)
	if err != nil {
		return err
	}
	if err := folder.WriteRaw(runfolder.ManifestFile, snapshot); err != nil {
		return err
	}
	if err := folder.WriteJSON(runfolder.ParamsFile, spec.resolved.Redacted); err != nil {
		return err
	}
	scriptHost := e.opts.Interpreter.Version
	if scriptHost == "" {
		scriptHost = e.opts.Interpreter.Executable
	}
	return folder.WriteJSON(runfolder.EnvFile, runfolder.CollectEnvInfo(e.opts.EngineVersion, scriptHost))
}

// validateRunnerConstraints checks the working directory and the
// path/file/folder typed inputs before launch. A relative path input must
// stay inside the run folder; file and folder inputs must exist.
func (e *Engine) validateRunnerConstraints(folder *runfolder.Folder, spec *caseSpec) error {
	info, err := os.Stat(spec.workingDir)
	if err != nil || !info.IsDir() {
		return model.Errorf(model.ErrRunnerWorkingDirInvalid, "working directory %q does not exist", spec.workingDir)
	}

	for _, p := range spec.manifest.Parameters {
		pt, ok := p.ParamType()
		if !ok || (pt.Base != model.TypePath && pt.Base != model.TypeFile && pt.Base != model.TypeFolder) {
			continue
		}
		value := spec.resolved.Effective[p.Name]
		if value == nil {
			continue
		}
		var elems []any
		if pt.Array {
			elems, _ = value.([]any)
		} else {
			elems = []any{value}
		}
		for _, elem := range elems {
			raw, _ := elem.(string)
			resolved := raw
			if !filepath.IsAbs(raw) {
				resolved = filepath.Join(folder.Path, raw)
				if !pathguard.Contains(folder.Path, resolved) {
					return model.Errorf(model.ErrRunnerInputPathInvalid, "input %q escapes the run folder: %q", p.Name, raw).
						With("parameter", p.Name)
				}
			}
			switch pt.Base {
			case model.TypeFile:
				info, err := os.Stat(resolved)
				if err != nil || info.IsDir() {
					return model.Errorf(model.ErrRunnerInputFileMissing, "input %q: file %q not found", p.Name, raw).
						With("parameter", p.Name)
				}
			case model.TypeFolder:
				info, err := os.Stat(resolved)
				if err != nil || !info.IsDir() {
					return model.Errorf(model.ErrRunnerInputFolderMissing, "input %q: folder %q not found", p.Name, raw).
						With("parameter", p.Name)
				}
			}
		}
	}
	return nil
}

// executePhase runs one subprocess phase, inspects the control channel,
// and either finalises the run or suspends it behind a machine restart.
func (e *Engine) executePhase(ctx context.Context, idx *runindex.Index, folder *runfolder.Folder, spec caseSpec, start time.Time, phase, resumeCount int) (caseOutcome, error) {
	controlDir, err := folder.ControlPath()
	if err != nil {
		return caseOutcome{}, err
	}
	if _, err := folder.ArtifactsPath(); err != nil {
		return caseOutcome{}, err
	}
	rebootPath := filepath.Join(controlDir, runfolder.RebootFile)
	// A stale request from the previous phase must not re-trigger.
	os.Remove(rebootPath)

	stdout, stderr, err := folder.OpenStreams()
	if err != nil {
		return caseOutcome{}, err
	}

	argv, secretsOnArgv := procdriver.RenderArgv(spec.manifest, spec.resolved)
	for _, name := range secretsOnArgv {
		folder.Event("EnvRef.SecretOnCommandLine", runfolder.LevelWarning,
			"secret parameter rendered on the command line", map[string]any{"parameter": name})
	}

	scriptPath := filepath.Join(filepath.Dir(spec.manifest.SourcePath), spec.manifest.Script())
	executable := e.opts.Interpreter.Executable
	var fullArgv []string
	if executable != "" {
		fullArgv = append(fullArgv, e.opts.Interpreter.Args...)
		fullArgv = append(fullArgv, scriptPath)
	} else {
		executable = scriptPath
	}
	fullArgv = append(fullArgv, argv...)

	execEnv := append(spec.env.ExecForm(),
		phaseEnvVar+"="+strconv.Itoa(phase),
		runFolderEnvVar+"="+folder.Path)

	folder.Event("Process.Started", runfolder.LevelInfo, "subprocess launched", map[string]any{
		"executable": executable,
		"phase":      phase,
	})
	outcome := procdriver.Run(ctx, procdriver.Spec{
		Executable: executable,
		Argv:       fullArgv,
		Env:        execEnv,
		WorkingDir: spec.workingDir,
		Timeout:    spec.timeout,
		Stdout:     stdout,
		Stderr:     stderr,
	}, e.logger)

	if outcome.ExitCode != nil {
		folder.Event("Process.Exited", runfolder.LevelInfo, "subprocess exited", map[string]any{
			"exitCode": *outcome.ExitCode,
			"phase":    phase,
		})
		req, rebootErr := resume.ReadRebootRequest(rebootPath)
		if rebootErr != nil {
			folder.Event("Reboot.Request.Invalid", runfolder.LevelError, rebootErr.Error(), nil)
			return e.finalizeCase(idx, folder, spec, start, model.StatusError, outcome.ExitCode,
				runfolder.ResultErrorFrom(rebootErr), resumeCount)
		}
		if req != nil {
			return e.suspendCase(folder, spec, start, req, resumeCount)
		}
	}

	status, resultErr := procdriver.MapStatus(outcome)
	return e.finalizeCase(idx, folder, spec, start, status, outcome.ExitCode, resultErr, resumeCount)
}

// suspendCase persists the resume session, registers the autostart entry,
// and requests the machine restart. The run folder is left open: the
// resumed invocation finalises it.
func (e *Engine) suspendCase(folder *runfolder.Folder, spec caseSpec, start time.Time, req *resume.RebootRequest, resumeCount int) (caseOutcome, error) {
	token, err := resume.NewResumeToken()
	if err != nil {
		return caseOutcome{}, err
	}
	entityID, entityType := "", model.RunTypeTestCase
	if spec.request != nil {
		var target string
		target, entityType = spec.request.Target()
		entityID = target
	}
	session := &resume.Session{
		RunID:         folder.RunID,
		EntityType:    entityType,
		EntityID:      entityID,
		CurrentCaseID: spec.manifest.Identity().String(),
		NextPhase:     req.NextPhase,
		ResumeToken:   token,
		ResumeCount:   resumeCount + 1,
		State:         resume.StatePendingResume,
		Manifest:      spec.manifest,
		ManifestPath:  spec.manifest.SourcePath,
		Templates:     spec.resolved.Templates,
		Environment:   spec.env.Sorted(),
		SecretInputs:  spec.resolved.SecretNames(),
		WorkingDir:    spec.workingDir,
		TimeoutSec:    int(spec.timeout / time.Second),
		NodeID:        spec.nodeID,
		ParentRunID:   spec.parentRunID,
		SuiteID:       spec.suiteID,
		SuiteVersion:  spec.suiteVersion,
		PlanID:        spec.planID,
		PlanVersion:   spec.planVersion,
		StartTime:     start,
		CasesRoot:     e.opts.Roots.Cases,
		SuitesRoot:    e.opts.Roots.Suites,
		PlansRoot:     e.opts.Roots.Plans,
		Request:       spec.request,
		SuiteProgress: spec.suiteProgress,
		PlanProgress:  spec.planProgress,
	}
	if err := resume.Save(session, folder.Path); err != nil {
		return caseOutcome{}, err
	}
	if err := e.opts.Hooks.RegisterAutostart(e.opts.RunsRoot, folder.RunID, token); err != nil {
		return caseOutcome{}, err
	}
	folder.Event("Reboot.Requested", runfolder.LevelInfo, req.Reason, map[string]any{
		"nextPhase": req.NextPhase,
		"delaySec":  req.DelaySec(),
	})
	e.logger.Info("run suspended for machine restart",
		"run_id", folder.RunID,
		"next_phase", req.NextPhase,
		"resume_count", session.ResumeCount)
	folder.Suspend()
	if err := e.opts.Hooks.RequestReboot(time.Duration(req.DelaySec()) * time.Second); err != nil {
		return caseOutcome{}, err
	}
	return caseOutcome{runID: folder.RunID, suspended: true}, nil
}

// finalizeCase writes result.json, appends the index entry, and closes out
// any resume session.
func (e *Engine) finalizeCase(idx *runindex.Index, folder *runfolder.Folder, spec caseSpec, start time.Time, status model.RunStatus, exitCode *int, resultErr *model.ResultError, resumeCount int) (caseOutcome, error) {
	end := time.Now().UTC()
	result := model.CaseResult{
		SchemaVersion:   model.SchemaVersion,
		RunType:         model.RunTypeTestCase,
		NodeID:          spec.nodeID,
		TestID:          spec.manifest.ID,
		TestVersion:     spec.manifest.Version,
		SuiteID:         spec.suiteID,
		SuiteVersion:    spec.suiteVersion,
		PlanID:          spec.planID,
		PlanVersion:     spec.planVersion,
		Status:          status,
		StartTime:       start,
		EndTime:         end,
		ExitCode:        exitCode,
		EffectiveInputs: spec.resolved.Redacted,
		Error:           resultErr,
	}
	if err := folder.Finalize(&result); err != nil {
		return caseOutcome{}, err
	}
	if err := idx.Append(model.IndexEntry{
		RunID:       folder.RunID,
		RunType:     model.RunTypeTestCase,
		ID:          spec.manifest.ID,
		Version:     spec.manifest.Version,
		StartTime:   start,
		EndTime:     end,
		Status:      status,
		ParentRunID: spec.parentRunID,
		NodeID:      spec.nodeID,
	}); err != nil {
		return caseOutcome{}, err
	}

	if resumeCount > 0 {
		session, err := resume.Load(folder.Path)
		if err == nil {
			session.State = resume.StateFinalized
			session.ResumeCount = resumeCount
			if err := resume.Save(session, folder.Path); err != nil {
				e.logger.Warn("session finalization failed", "run_id", folder.RunID, "error", err)
			}
		}
		if err := e.opts.Hooks.UnregisterAutostart(e.opts.RunsRoot, folder.RunID); err != nil {
			e.logger.Warn("autostart removal failed", "run_id", folder.RunID, "error", err)
		}
	}

	e.logger.Info("case run finalized", "run_id", folder.RunID, "status", string(status))
	return caseOutcome{runID: folder.RunID, status: status}, nil
}
