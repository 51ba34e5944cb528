// Package engine ties the pipeline together: discovery, run-request
// validation, the case runner, the suite and plan executors, and the
// reboot-resume entry point. Suite nodes and plan suites execute strictly
// sequentially, in declared order.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tessera-qa/tessera/internal/model"
	"github.com/tessera-qa/tessera/internal/runindex"
	"github.com/tessera-qa/tessera/internal/store"
)

// Engine is the façade the CLI drives.
type Engine struct {
	opts   Options
	logger *slog.Logger
}

// New validates the options and builds an engine.
func New(opts Options) (*Engine, error) {
	if err := opts.normalize(); err != nil {
		return nil, err
	}
	return &Engine{opts: opts, logger: opts.Logger}, nil
}

// Discover scans the three manifest roots.
func (e *Engine) Discover() *store.Discovery {
	return store.Discover(e.opts.Roots, e.logger)
}

// RunResult reports the top-level outcome of Engine.Run.
type RunResult struct {
	RunID  string
	Path   string
	Status model.RunStatus
	// Suspended is true when the run persisted a resume session and the
	// machine restart was requested; the result document is written by the
	// resumed invocation.
	Suspended bool
}

// Run validates the request, discovers the manifest corpus, resolves the
// target, and dispatches to the matching executor.
func (e *Engine) Run(ctx context.Context, req *model.RunRequest) (*RunResult, error) {
	if req == nil {
		return nil, model.Errorf(model.ErrRunRequestInvalid, "request is nil").With("reason", "Nil")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	targetStr, runType := req.Target()
	target, err := model.ParseIdentity(targetStr)
	if err != nil {
		return nil, err
	}

	discovery := e.Discover()
	if len(discovery.Errors) > 0 {
		return nil, model.Errorf(model.ErrRunRequestResolveFailed, "discovery reported %d errors; first: %v", len(discovery.Errors), discovery.Errors[0]).
			With("entityType", string(runType)).
			With("id", target.ID).
			With("version", target.Version).
			With("reason", "DiscoveryErrors")
	}

	idx, err := runindex.Open(e.opts.RunsRoot, e.logger)
	if err != nil {
		return nil, fmt.Errorf("open run index: %w", err)
	}
	defer idx.Close()

	switch runType {
	case model.RunTypeTestCase:
		manifest, ok := discovery.Cases[target]
		if !ok {
			return nil, e.resolveFailed(runType, target, "NotDiscovered")
		}
		return e.runStandaloneCase(ctx, idx, manifest, req)
	case model.RunTypeTestSuite:
		manifest, ok := discovery.Suites[target]
		if !ok {
			return nil, e.resolveFailed(runType, target, "NotDiscovered")
		}
		return e.runSuiteTarget(ctx, idx, manifest, nil, req, discovery)
	default:
		manifest, ok := discovery.Plans[target]
		if !ok {
			return nil, e.resolveFailed(runType, target, "NotDiscovered")
		}
		return e.runPlanTarget(ctx, idx, manifest, req, discovery)
	}
}

func (e *Engine) resolveFailed(runType model.RunType, target model.Identity, reason string) error {
	return model.Errorf(model.ErrRunRequestResolveFailed, "%s %s was not found", runType, target).
		With("entityType", string(runType)).
		With("id", target.ID).
		With("version", target.Version).
		With("reason", reason)
}
