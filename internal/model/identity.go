package model

import (
	"fmt"
	"regexp"
	"strings"
)

var identityIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// Identity is the id@version pair that names a case, suite, or plan.
// Equality is case-sensitive on both components.
type Identity struct {
	ID      string `json:"id"`
	Version string `json:"version"`
}

// ParseIdentity parses an "id@version" string. Outer whitespace is trimmed;
// internal whitespace, a missing or repeated '@', an id outside
// [A-Za-z0-9._-]+, or an empty version are rejected.
func ParseIdentity(s string) (Identity, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return Identity{}, Errorf(ErrIdentityInvalid, "identity is empty")
	}
	if strings.ContainsAny(trimmed, " \t\r\n") {
		return Identity{}, Errorf(ErrIdentityInvalid, "identity %q contains whitespace", trimmed)
	}
	if strings.Count(trimmed, "@") != 1 {
		return Identity{}, Errorf(ErrIdentityInvalid, "identity %q must contain exactly one '@'", trimmed)
	}
	at := strings.Index(trimmed, "@")
	id, version := trimmed[:at], trimmed[at+1:]
	if !identityIDPattern.MatchString(id) {
		return Identity{}, Errorf(ErrIdentityInvalid, "identity id %q must match [A-Za-z0-9._-]+", id)
	}
	if version == "" {
		return Identity{}, Errorf(ErrIdentityInvalid, "identity %q has an empty version", trimmed)
	}
	return Identity{ID: id, Version: version}, nil
}

// String renders the identity back to its id@version form.
func (i Identity) String() string {
	return fmt.Sprintf("%s@%s", i.ID, i.Version)
}

// IsZero reports whether the identity is unset.
func (i Identity) IsZero() bool {
	return i.ID == "" && i.Version == ""
}
