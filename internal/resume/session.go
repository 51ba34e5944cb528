package resume

import (
	"crypto/subtle"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/tessera-qa/tessera/internal/fsutil"
	"github.com/tessera-qa/tessera/internal/model"
)

// Session states.
const (
	StatePendingResume = "PendingResume"
	StateFinalized     = "Finalized"
)

// Session is the persisted continuation state that lets a case run survive
// a machine restart. Resolved secret input values are deliberately not
// stored; on resume the input templates re-resolve against the captured
// environment.
type Session struct {
	RunID         string `json:"runId"`
	EntityType    model.RunType `json:"entityType"`
	EntityID      string `json:"entityId"`
	CurrentCaseID string `json:"currentCaseId,omitempty"`
	NextPhase     int    `json:"nextPhase"`
	ResumeToken   string `json:"resumeToken"`
	ResumeCount   int    `json:"resumeCount"`
	State         string `json:"state"`

	// Captured run context.
	Manifest     *model.CaseManifest `json:"manifest"`
	ManifestPath string              `json:"manifestPath"`
	Templates    map[string]any      `json:"templates"`
	Environment  map[string]string   `json:"environment"`
	SecretInputs []string            `json:"secretInputs,omitempty"`
	WorkingDir   string              `json:"workingDir,omitempty"`
	TimeoutSec   int                 `json:"timeoutSec,omitempty"`

	NodeID       string `json:"nodeId,omitempty"`
	ParentRunID  string `json:"parentRunId,omitempty"`
	SuiteID      string `json:"suiteId,omitempty"`
	SuiteVersion string `json:"suiteVersion,omitempty"`
	PlanID       string `json:"planId,omitempty"`
	PlanVersion  string `json:"planVersion,omitempty"`

	// Orchestration context needed to continue the surrounding suite and
	// plan after the case completes.
	StartTime     time.Time          `json:"startTime"`
	CasesRoot     string             `json:"casesRoot,omitempty"`
	SuitesRoot    string             `json:"suitesRoot,omitempty"`
	PlansRoot     string             `json:"plansRoot,omitempty"`
	Request       *model.RunRequest  `json:"request,omitempty"`
	SuiteProgress *SuiteProgress     `json:"suiteProgress,omitempty"`
	PlanProgress  *PlanProgress      `json:"planProgress,omitempty"`
}

// SuiteProgress records where in the suite iteration the reboot happened.
type SuiteProgress struct {
	Manifest     *model.SuiteManifest `json:"manifest"`
	ManifestPath string               `json:"manifestPath"`
	GroupRunID   string               `json:"groupRunId"`
	Iteration    int                  `json:"iteration"`
	NodeIndex    int                  `json:"nodeIndex"`
	Attempt      int                  `json:"attempt"`
	StartTime    time.Time            `json:"startTime"`
}

// PlanProgress records where in the plan iteration the reboot happened.
type PlanProgress struct {
	Manifest     *model.PlanManifest `json:"manifest"`
	ManifestPath string              `json:"manifestPath"`
	GroupRunID   string              `json:"groupRunId"`
	SuiteIndex   int                 `json:"suiteIndex"`
	StartTime    time.Time           `json:"startTime"`
}

// NewResumeToken returns a fresh cryptographically random token.
func NewResumeToken() (string, error) {
	token, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate resume token: %w", err)
	}
	return token.String(), nil
}

// VerifyToken compares a presented token in constant time.
func (s *Session) VerifyToken(token string) bool {
	return subtle.ConstantTimeCompare([]byte(s.ResumeToken), []byte(token)) == 1
}

// SessionPath returns the session.json location inside a case run folder.
func SessionPath(caseRunFolder string) string {
	return filepath.Join(caseRunFolder, "artifacts", "session.json")
}

// Save persists the session atomically. The session file is written
// directly, without the artifact redactor: the captured environment and
// templates must survive the reboot verbatim for the continuation to be
// seamless.
func Save(s *Session, caseRunFolder string) error {
	return fsutil.AtomicWriteJSON(SessionPath(caseRunFolder), s)
}

// Load reads a persisted session.
func Load(caseRunFolder string) (*Session, error) {
	path := SessionPath(caseRunFolder)
	var s Session
	if err := fsutil.ReadJSON(path, &s); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no resume session at %s", path)
		}
		return nil, fmt.Errorf("load resume session: %w", err)
	}
	return &s, nil
}
