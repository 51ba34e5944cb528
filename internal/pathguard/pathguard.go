// Package pathguard centralizes path canonicalisation and containment
// decisions. Every containment check in the engine goes through Contains so
// that symlink and case-sensitivity handling is decided in exactly one
// place.
package pathguard

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// Canonical returns the cleaned absolute form of p without resolving
// symlinks.
func Canonical(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("canonicalize %s: %w", p, err)
	}
	return filepath.Clean(abs), nil
}

// FinalTarget resolves symlinks (and, on Windows, junctions and other
// reparse points) to the final target of p. When p does not exist, the
// deepest existing ancestor is resolved and the remaining segments are
// re-appended; when no ancestor resolves, the canonical form is returned.
func FinalTarget(p string) (string, error) {
	canon, err := Canonical(p)
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(canon); err == nil {
		return resolved, nil
	}

	// Walk up to the deepest existing ancestor, then rejoin the tail.
	dir := canon
	var tail []string
	for {
		parent := filepath.Dir(dir)
		if parent == dir {
			return canon, nil
		}
		tail = append([]string{filepath.Base(dir)}, tail...)
		dir = parent
		if _, err := os.Lstat(dir); err == nil {
			resolved, err := filepath.EvalSymlinks(dir)
			if err != nil {
				return canon, nil
			}
			return filepath.Join(append([]string{resolved}, tail...)...), nil
		}
	}
}

// Contains reports whether candidate lies at or under root. Both paths are
// canonicalised first; the comparison appends a trailing separator to the
// root so that sibling directories sharing a prefix do not match. On
// case-insensitive filesystems (Windows) the comparison folds case.
func Contains(root, candidate string) bool {
	rootCanon, err := Canonical(root)
	if err != nil {
		return false
	}
	candCanon, err := Canonical(candidate)
	if err != nil {
		return false
	}
	if foldCase() {
		rootCanon = strings.ToLower(rootCanon)
		candCanon = strings.ToLower(candCanon)
	}
	if candCanon == rootCanon {
		return true
	}
	return strings.HasPrefix(candCanon, rootCanon+string(os.PathSeparator))
}

func foldCase() bool {
	return runtime.GOOS == "windows" || runtime.GOOS == "darwin"
}
