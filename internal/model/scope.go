package model

import (
	"fmt"
	"strings"
)

// Scope identifies the installation namespace of a skill.
// Each scope is tracked by its own registry, so the same skill name may be
// installed independently in more than one scope.
type Scope string

const (
	// ScopeLocal installs into the project directory (<project>/.claude/skills).
	ScopeLocal Scope = "local"

	// ScopeGlobal installs into the user's home directory (~/.claude/skills).
	ScopeGlobal Scope = "global"

	// ScopeCustom installs into a caller-specified directory.
	ScopeCustom Scope = "custom"
)

// scopeOrder defines the display order of scopes.
var scopeOrder = map[Scope]int{
	ScopeLocal:  0,
	ScopeGlobal: 1,
	ScopeCustom: 2,
}

// IsValid returns true if the scope is recognized.
func (s Scope) IsValid() bool {
	_, ok := scopeOrder[s]
	return ok
}

// AllScopes returns all supported scopes in display order.
func AllScopes() []Scope {
	return []Scope{ScopeLocal, ScopeGlobal, ScopeCustom}
}

// DefaultListScopes returns the scopes shown when no scope is requested.
// Custom installs are only listed when asked for explicitly.
func DefaultListScopes() []Scope {
	return []Scope{ScopeLocal, ScopeGlobal}
}

// String returns the string representation of the scope.
func (s Scope) String() string {
	return string(s)
}

// Description returns a human-readable description of the scope.
func (s Scope) Description() string {
	switch s {
	case ScopeLocal:
		return "Project skills in .claude/skills"
	case ScopeGlobal:
		return "User skills in ~/.claude/skills"
	case ScopeCustom:
		return "Skills installed with --path"
	default:
		return "Unknown scope"
	}
}

// Order returns the display position of the scope, or -1 if unknown.
func (s Scope) Order() int {
	if o, ok := scopeOrder[s]; ok {
		return o
	}
	return -1
}

// ParseScope converts a string to a Scope.
// Returns an error if the scope is not recognized.
func ParseScope(s string) (Scope, error) {
	normalized := strings.ToLower(strings.TrimSpace(s))

	scope := Scope(normalized)
	if scope.IsValid() {
		return scope, nil
	}

	switch normalized {
	case "project", "repo", "repository":
		return ScopeLocal, nil
	case "user", "home":
		return ScopeGlobal, nil
	case "path":
		return ScopeCustom, nil
	default:
		return "", fmt.Errorf("unknown scope %q (valid: local, global, custom)", s)
	}
}
