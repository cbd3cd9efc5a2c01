// Package resolver maps skill names and scopes to directories on disk and
// locates the registry file that tracks each scope.
package resolver

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauern/skillmaster/internal/config"
	"github.com/klauern/skillmaster/internal/model"
	"github.com/klauern/skillmaster/internal/skillerr"
	"github.com/klauern/skillmaster/internal/util"
)

const (
	globalRegistryFile = "registry.yaml"
	customRegistryFile = "custom-registry.yaml"
	localRegistryFile  = "skill-registry.yaml"
)

// Resolver computes install targets and registry locations from a fixed
// snapshot of the configuration.
type Resolver struct {
	projectDir string
	localDir   string
	globalDir  string
	configDir  string
}

// New snapshots the directories of cfg. All paths are absolute.
func New(cfg *config.Config) *Resolver {
	if cfg == nil {
		cfg = config.Default()
	}
	return &Resolver{
		projectDir: cfg.ResolvedProjectDir(),
		localDir:   cfg.ResolvedLocalSkillsDir(),
		globalDir:  cfg.ResolvedGlobalSkillsDir(),
		configDir:  absPath(util.ConfigDir()),
	}
}

// NewWithDirs builds a resolver from explicit directories.
// Relative directories are resolved against the working directory.
func NewWithDirs(projectDir, localDir, globalDir, configDir string) *Resolver {
	return &Resolver{
		projectDir: absPath(projectDir),
		localDir:   absPath(localDir),
		globalDir:  absPath(globalDir),
		configDir:  absPath(configDir),
	}
}

// ProjectDir returns the project root used for local installs.
func (r *Resolver) ProjectDir() string { return r.projectDir }

// SkillsDir returns the skills root for a built-in scope.
// Custom scope has no fixed root and returns "".
func (r *Resolver) SkillsDir(scope model.Scope) string {
	switch scope {
	case model.ScopeLocal:
		return r.localDir
	case model.ScopeGlobal:
		return r.globalDir
	default:
		return ""
	}
}

// ResolveTarget returns the directory a skill named name would occupy.
// It never touches the filesystem.
func (r *Resolver) ResolveTarget(name string, scope model.Scope, customPath string) (string, error) {
	const op = "resolve target"

	if err := ValidateName(name); err != nil {
		return "", skillerr.New(skillerr.KindInvalidRequest, op, err.Error(), nil).
			WithSkill(name, scope.String(), "")
	}

	switch scope {
	case model.ScopeLocal:
		return filepath.Join(r.localDir, name), nil
	case model.ScopeGlobal:
		return filepath.Join(r.globalDir, name), nil
	case model.ScopeCustom:
		base, err := r.CustomBase(customPath)
		if err != nil {
			return "", skillerr.New(skillerr.KindInvalidRequest, op, err.Error(), nil).
				WithSkill(name, scope.String(), "")
		}
		return filepath.Join(base, name), nil
	default:
		return "", skillerr.New(skillerr.KindInvalidRequest, op,
			fmt.Sprintf("unknown scope %q", scope), nil).WithSkill(name, "", "")
	}
}

// CustomBase expands a caller-supplied directory: ~ is expanded and relative
// paths are joined to the project directory.
func (r *Resolver) CustomBase(customPath string) (string, error) {
	if strings.TrimSpace(customPath) == "" {
		return "", fmt.Errorf("custom scope requires a path")
	}
	return filepath.Clean(util.ExpandPath(customPath, r.projectDir)), nil
}

// Exists reports whether anything occupies path. Dangling symlinks count.
func (r *Resolver) Exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// RegistryPath returns the registry file tracking scope.
func (r *Resolver) RegistryPath(scope model.Scope) (string, error) {
	switch scope {
	case model.ScopeGlobal:
		return filepath.Join(r.configDir, globalRegistryFile), nil
	case model.ScopeLocal:
		return filepath.Join(r.projectDir, ".claude", localRegistryFile), nil
	case model.ScopeCustom:
		return filepath.Join(r.configDir, customRegistryFile), nil
	default:
		return "", skillerr.New(skillerr.KindInvalidRequest, "registry path",
			fmt.Sprintf("unknown scope %q", scope), nil)
	}
}

// ValidateName rejects names that cannot be used as a single directory entry.
func ValidateName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return fmt.Errorf("skill name is empty")
	case name == "." || name == "..":
		return fmt.Errorf("skill name %q is reserved", name)
	case strings.HasPrefix(name, "."):
		return fmt.Errorf("skill name %q must not start with a dot", name)
	case strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, filepath.Separator):
		return fmt.Errorf("skill name %q must not contain path separators", name)
	case strings.ContainsRune(name, 0):
		return fmt.Errorf("skill name contains a NUL byte")
	case name != strings.TrimSpace(name):
		return fmt.Errorf("skill name %q has surrounding whitespace", name)
	}
	return nil
}

func absPath(p string) string {
	if p == "" {
		return p
	}
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}
