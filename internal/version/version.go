// Package version exposes the engine version stamped into run artifacts.
package version

// Version is overridden at build time via
// -ldflags "-X github.com/tessera-qa/tessera/internal/version.Version=...".
var Version = "0.0.0-dev"
