// Package store discovers and loads the manifest corpus: test cases,
// suites, and plans under their three roots. Discovery is deterministic —
// the same tree always yields the same maps and the same error list — and
// duplicate identities within an entity type are rejected with every
// conflicting path.
package store

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/tessera-qa/tessera/internal/model"
)

// Manifest file names, one per entity type.
const (
	CaseManifestName  = "test.manifest.json"
	SuiteManifestName = "suite.manifest.json"
	PlanManifestName  = "plan.manifest.json"
)

// Roots names the three manifest roots.
type Roots struct {
	Cases  string
	Suites string
	Plans  string
}

// Discovery is the result of one manifest scan.
type Discovery struct {
	Cases  map[model.Identity]*model.CaseManifest
	Suites map[model.Identity]*model.SuiteManifest
	Plans  map[model.Identity]*model.PlanManifest
	Errors []error
}

// Discover walks the three roots and loads every manifest. Invalid or
// duplicate manifests are reported in Errors; valid ones still load, so a
// broken suite does not hide an unrelated case.
func Discover(roots Roots, logger *slog.Logger) *Discovery {
	d := &Discovery{
		Cases:  map[model.Identity]*model.CaseManifest{},
		Suites: map[model.Identity]*model.SuiteManifest{},
		Plans:  map[model.Identity]*model.PlanManifest{},
	}

	casePaths := map[model.Identity][]string{}
	for _, path := range findManifests(roots.Cases, CaseManifestName, d) {
		m, err := loadCaseManifest(path)
		if err != nil {
			d.Errors = append(d.Errors, err)
			continue
		}
		id := m.Identity()
		casePaths[id] = append(casePaths[id], path)
		d.Cases[id] = m
	}
	reportDuplicates(casePaths, model.RunTypeTestCase, d)

	suitePaths := map[model.Identity][]string{}
	for _, path := range findManifests(roots.Suites, SuiteManifestName, d) {
		m, err := loadSuiteManifest(path)
		if err != nil {
			d.Errors = append(d.Errors, err)
			continue
		}
		id := m.Identity()
		suitePaths[id] = append(suitePaths[id], path)
		d.Suites[id] = m
	}
	reportDuplicates(suitePaths, model.RunTypeTestSuite, d)

	planPaths := map[model.Identity][]string{}
	for _, path := range findManifests(roots.Plans, PlanManifestName, d) {
		m, err := loadPlanManifest(path)
		if err != nil {
			d.Errors = append(d.Errors, err)
			continue
		}
		id := m.Identity()
		planPaths[id] = append(planPaths[id], path)
		d.Plans[id] = m
	}
	reportDuplicates(planPaths, model.RunTypeTestPlan, d)

	logger.Info("discovery complete",
		"cases", len(d.Cases),
		"suites", len(d.Suites),
		"plans", len(d.Plans),
		"errors", len(d.Errors))
	return d
}

// findManifests globs root/**/<name> and returns the matches in sorted
// order. A missing root is not an error: it simply contributes nothing.
func findManifests(root, name string, d *Discovery) []string {
	if root == "" {
		return nil
	}
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return nil
	}
	pattern := filepath.Join(root, "**", name)
	hits, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		d.Errors = append(d.Errors, model.Errorf(model.ErrManifestInvalid, "scan %s: %v", root, err).
			With("path", root).With("field", ""))
		return nil
	}
	sort.Strings(hits)
	return hits
}

func reportDuplicates(paths map[model.Identity][]string, entityType model.RunType, d *Discovery) {
	ids := make([]model.Identity, 0, len(paths))
	for id := range paths {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	for _, id := range ids {
		conflict := paths[id]
		if len(conflict) < 2 {
			continue
		}
		sort.Strings(conflict)
		d.Errors = append(d.Errors, model.Errorf(model.ErrIdentityDuplicate, "identity %s declared by %d manifests", id, len(conflict)).
			With("entityType", string(entityType)).
			With("id", id.ID).
			With("version", id.Version).
			With("conflictPaths", conflict))
	}
}

// LoadCase loads and validates a single case manifest, as resolved from a
// suite node ref.
func LoadCase(path string) (*model.CaseManifest, error) {
	return loadCaseManifest(path)
}

func loadCaseManifest(path string) (*model.CaseManifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, model.Errorf(model.ErrManifestInvalid, "read manifest: %v", err).
			With("path", path).With("field", "")
	}
	if err := validateManifestSchema(caseSchema, raw, path, false); err != nil {
		return nil, err
	}
	var m model.CaseManifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, model.Errorf(model.ErrManifestInvalid, "decode manifest: %v", err).
			With("path", path).With("field", "")
	}
	m.SourcePath = path
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

func loadSuiteManifest(path string) (*model.SuiteManifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, model.Errorf(model.ErrManifestInvalid, "read manifest: %v", err).
			With("path", path).With("field", "")
	}
	if err := validateManifestSchema(suiteSchema, raw, path, false); err != nil {
		return nil, err
	}
	var m model.SuiteManifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, model.Errorf(model.ErrManifestInvalid, "decode manifest: %v", err).
			With("path", path).With("field", "")
	}
	m.SourcePath = path
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

func loadPlanManifest(path string) (*model.PlanManifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, model.Errorf(model.ErrManifestInvalid, "read manifest: %v", err).
			With("path", path).With("field", "")
	}
	if err := validateManifestSchema(planSchema, raw, path, true); err != nil {
		return nil, err
	}
	var m model.PlanManifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, model.Errorf(model.ErrManifestInvalid, "decode manifest: %v", err).
			With("path", path).With("field", "")
	}
	m.SourcePath = path
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}
