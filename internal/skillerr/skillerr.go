// Package skillerr defines the error kinds returned by the skill registry and
// install engine. Callers branch on the kind, never on raw filesystem or
// transport errors.
package skillerr

import (
	"errors"
	"strings"
)

// Kind classifies an engine error.
type Kind string

const (
	// KindAlreadyInstalled means the target exists and force was not requested.
	KindAlreadyInstalled Kind = "already_installed"
	// KindSkillNotFound means the catalog has no such skill.
	KindSkillNotFound Kind = "skill_not_found"
	// KindFetchError means the catalog could not be reached or answered badly.
	KindFetchError Kind = "fetch_error"
	// KindIOError means a filesystem write, remove or rename failed.
	KindIOError Kind = "io_error"
	// KindManifestUpdateError means files landed on disk but the registry write failed.
	KindManifestUpdateError Kind = "manifest_update_error"
	// KindCorruptManifest means a registry file exists but is not valid structured data.
	KindCorruptManifest Kind = "corrupt_manifest"
	// KindNotInstalled means the skill is absent from the scope's registry.
	KindNotInstalled Kind = "not_installed"
	// KindDriftWarning is non-fatal: registry and filesystem disagreed.
	KindDriftWarning Kind = "drift_warning"
	// KindInvalidRequest means the caller passed an unusable name, scope or path.
	KindInvalidRequest Kind = "invalid_request"
	// KindInvalidPackage means the fetched archive is unsafe or is not a skill.
	KindInvalidPackage Kind = "invalid_package"
)

// Sentinels for use with errors.Is. Only the kind is compared.
var (
	ErrAlreadyInstalled = &Error{Kind: KindAlreadyInstalled}
	ErrSkillNotFound    = &Error{Kind: KindSkillNotFound}
	ErrFetch            = &Error{Kind: KindFetchError}
	ErrIO               = &Error{Kind: KindIOError}
	ErrManifestUpdate   = &Error{Kind: KindManifestUpdateError}
	ErrCorruptManifest  = &Error{Kind: KindCorruptManifest}
	ErrNotInstalled     = &Error{Kind: KindNotInstalled}
	ErrDrift            = &Error{Kind: KindDriftWarning}
	ErrInvalidRequest   = &Error{Kind: KindInvalidRequest}
	ErrInvalidPackage   = &Error{Kind: KindInvalidPackage}
)

// Error is a classified engine error. Name, Scope and Path carry enough
// context for a user to repair state by hand.
type Error struct {
	Kind  Kind
	Op    string
	Name  string
	Scope string
	Path  string
	Msg   string
	Err   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}

	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}

	msg := strings.TrimSpace(e.Msg)
	if msg == "" {
		msg = e.Kind.message()
	}
	b.WriteString(msg)

	var ctx []string
	if e.Name != "" {
		ctx = append(ctx, "skill="+e.Name)
	}
	if e.Scope != "" {
		ctx = append(ctx, "scope="+e.Scope)
	}
	if e.Path != "" {
		ctx = append(ctx, "path="+e.Path)
	}
	if len(ctx) > 0 {
		b.WriteString(" (")
		b.WriteString(strings.Join(ctx, ", "))
		b.WriteString(")")
	}

	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Kind == t.Kind
}

// New creates an error of the given kind.
func New(kind Kind, op, msg string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg, Err: cause}
}

// WithSkill returns a copy of e annotated with the skill name, scope and path.
// Empty arguments leave the existing values in place.
func (e *Error) WithSkill(name, scope, path string) *Error {
	out := *e
	if name != "" {
		out.Name = name
	}
	if scope != "" {
		out.Scope = scope
	}
	if path != "" {
		out.Path = path
	}
	return &out
}

// As extracts the first *Error in err's chain.
func As(err error) (*Error, bool) {
	if err == nil {
		return nil, false
	}
	var out *Error
	if errors.As(err, &out) && out != nil {
		return out, true
	}
	return nil, false
}

// KindOf returns the kind of err, or "" when err is not classified.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return ""
}

// IsWarning reports whether err is a non-fatal warning.
func IsWarning(err error) bool {
	return KindOf(err) == KindDriftWarning
}

func (k Kind) message() string {
	switch k {
	case KindAlreadyInstalled:
		return "skill already installed"
	case KindSkillNotFound:
		return "skill not found in catalog"
	case KindFetchError:
		return "failed to fetch skill"
	case KindIOError:
		return "filesystem operation failed"
	case KindManifestUpdateError:
		return "skill files installed but registry update failed"
	case KindCorruptManifest:
		return "registry file is corrupt"
	case KindNotInstalled:
		return "skill is not installed"
	case KindDriftWarning:
		return "registry and filesystem disagree"
	case KindInvalidRequest:
		return "invalid request"
	case KindInvalidPackage:
		return "invalid skill package"
	default:
		return "skill operation failed"
	}
}
