package engine

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/tessera-qa/tessera/internal/resume"
	"github.com/tessera-qa/tessera/internal/store"
	"github.com/tessera-qa/tessera/internal/version"
)

// Interpreter describes the script host the cases run under: an
// executable plus fixed leading arguments, followed by the script path and
// the rendered parameter vector.
type Interpreter struct {
	Executable string   `yaml:"executable"`
	Args       []string `yaml:"args"`
	Version    string   `yaml:"version"`
}

// Options carries all engine configuration. There are no hidden globals;
// everything the engine touches comes in here.
type Options struct {
	Roots    store.Roots
	RunsRoot string

	Interpreter       Interpreter
	DefaultTimeoutSec int

	EngineVersion string
	Hooks         resume.Hooks
	Logger        *slog.Logger

	// ProcessEnv is the lowest-precedence environment layer; defaults to
	// os.Environ.
	ProcessEnv []string
}

// normalize fills defaults and validates the option set.
func (o *Options) normalize() error {
	if o.RunsRoot == "" {
		return fmt.Errorf("runs root is required")
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	if o.EngineVersion == "" {
		o.EngineVersion = version.Version
	}
	if o.Hooks == nil {
		o.Hooks = resume.NewFileHooks(o.Logger)
	}
	if o.ProcessEnv == nil {
		o.ProcessEnv = os.Environ()
	}
	return nil
}

// defaultTimeout converts the configured default into a duration; zero
// means no timeout unless the manifest declares one.
func (o *Options) defaultTimeout() time.Duration {
	if o.DefaultTimeoutSec <= 0 {
		return 0
	}
	return time.Duration(o.DefaultTimeoutSec) * time.Second
}
