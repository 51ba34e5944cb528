package resume

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/tessera-qa/tessera/internal/fsutil"
)

// Hooks is the boundary to the OS reboot primitives. The engine only ever
// issues these abstract calls; how a platform registers an autostart entry
// or restarts the machine is a collaborator concern.
type Hooks interface {
	// RegisterAutostart arranges for the engine to be re-invoked on next
	// boot with the given runsRoot, runId, and token.
	RegisterAutostart(runsRoot, runID, token string) error
	// UnregisterAutostart removes a previous registration.
	UnregisterAutostart(runsRoot, runID string) error
	// RequestReboot asks the OS to restart the machine after delay.
	RequestReboot(delay time.Duration) error
}

// AutostartEntry is the registration record FileHooks persists for the
// boot-time launcher to consume.
type AutostartEntry struct {
	RunsRoot string   `json:"runsRoot"`
	RunID    string   `json:"runId"`
	Token    string   `json:"token"`
	Argv     []string `json:"argv"`
}

// FileHooks is the default Hooks implementation: registrations are
// recorded under <runsRoot>/autostart/ for the platform launcher, and the
// reboot is delegated to a configurable command.
type FileHooks struct {
	// Executable re-invoked on boot; defaults to the current binary.
	Executable string
	// RebootCommand renders the OS restart command for a delay in
	// seconds. Defaults to shutdown -r.
	RebootCommand func(delaySec int) []string
	Logger        *slog.Logger
}

// NewFileHooks builds hooks that re-invoke the current executable.
func NewFileHooks(logger *slog.Logger) *FileHooks {
	exe, err := os.Executable()
	if err != nil {
		exe = "tessera"
	}
	return &FileHooks{Executable: exe, Logger: logger}
}

func (h *FileHooks) entryPath(runsRoot, runID string) string {
	return filepath.Join(runsRoot, "autostart", runID+".json")
}

// RegisterAutostart writes the autostart record.
func (h *FileHooks) RegisterAutostart(runsRoot, runID, token string) error {
	entry := AutostartEntry{
		RunsRoot: runsRoot,
		RunID:    runID,
		Token:    token,
		Argv: []string{
			h.Executable, "resume",
			"--runId", runID,
			"--token", token,
			"--runsRoot", runsRoot,
		},
	}
	if err := fsutil.AtomicWriteJSON(h.entryPath(runsRoot, runID), entry); err != nil {
		return fmt.Errorf("register autostart: %w", err)
	}
	h.Logger.Info("autostart registered", "run_id", runID)
	return nil
}

// UnregisterAutostart removes the autostart record.
func (h *FileHooks) UnregisterAutostart(runsRoot, runID string) error {
	err := os.Remove(h.entryPath(runsRoot, runID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("unregister autostart: %w", err)
	}
	h.Logger.Info("autostart removed", "run_id", runID)
	return nil
}

// RequestReboot invokes the platform restart command.
func (h *FileHooks) RequestReboot(delay time.Duration) error {
	delaySec := int(delay / time.Second)
	argv := h.rebootArgv(delaySec)
	h.Logger.Info("requesting machine restart", "delay_sec", delaySec, "command", argv)
	cmd := exec.Command(argv[0], argv[1:]...)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("request reboot: %w", err)
	}
	return nil
}

func (h *FileHooks) rebootArgv(delaySec int) []string {
	if h.RebootCommand != nil {
		return h.RebootCommand(delaySec)
	}
	return defaultRebootArgv(delaySec)
}

func defaultRebootArgv(delaySec int) []string {
	// shutdown takes minutes; +0 restarts immediately. Sub-minute delays
	// round up so a requested delay is never cut short.
	minutes := (delaySec + 59) / 60
	return []string{"shutdown", "-r", "+" + strconv.Itoa(minutes)}
}
