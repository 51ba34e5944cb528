package store

import (
	"os"
	"path/filepath"

	"github.com/tessera-qa/tessera/internal/model"
	"github.com/tessera-qa/tessera/internal/pathguard"
)

// Ref-resolution failure reasons carried in Suite.TestCaseRef.Invalid.
const (
	RefReasonOutOfRoot       = "OutOfRoot"
	RefReasonNotFound        = "NotFound"
	RefReasonMissingManifest = "MissingManifest"
)

// ResolveSuiteRef resolves a suite node's relative directory ref to a
// concrete case manifest path under casesRoot. The ref is joined onto the
// root, symlinks and reparse points are chased to their final target, and
// the target must still be contained in the root, exist as a directory,
// and hold a test.manifest.json.
func ResolveSuiteRef(suitePath, casesRoot, ref string) (string, error) {
	fail := func(reason, resolved string) error {
		return model.Errorf(model.ErrSuiteTestCaseRefInvalid, "suite ref %q: %s", ref, reason).
			With("entityType", string(model.RunTypeTestSuite)).
			With("suitePath", suitePath).
			With("ref", ref).
			With("resolvedPath", resolved).
			With("expectedRoot", casesRoot).
			With("reason", reason)
	}

	combined, err := pathguard.Canonical(filepath.Join(casesRoot, ref))
	if err != nil {
		return "", fail(RefReasonNotFound, "")
	}
	resolved, err := pathguard.FinalTarget(combined)
	if err != nil {
		return "", fail(RefReasonNotFound, combined)
	}
	if !pathguard.Contains(casesRoot, resolved) {
		return "", fail(RefReasonOutOfRoot, resolved)
	}
	info, err := os.Stat(resolved)
	if err != nil || !info.IsDir() {
		return "", fail(RefReasonNotFound, resolved)
	}
	manifestPath := filepath.Join(resolved, CaseManifestName)
	if _, err := os.Stat(manifestPath); err != nil {
		return "", fail(RefReasonMissingManifest, resolved)
	}
	return manifestPath, nil
}
