// Package skills is the install engine: it places catalog packages on disk,
// removes them again, and lists what the registries record.
package skills

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/klauern/skillmaster/internal/archive"
	"github.com/klauern/skillmaster/internal/catalog"
	"github.com/klauern/skillmaster/internal/logging"
	"github.com/klauern/skillmaster/internal/manifest"
	"github.com/klauern/skillmaster/internal/model"
	"github.com/klauern/skillmaster/internal/resolver"
	"github.com/klauern/skillmaster/internal/skillerr"
)

// SkillFile must exist at the root of every installed package.
const SkillFile = "SKILL.md"

// Filesystem hooks, swapped in tests to inject failures.
var (
	rename    = os.Rename
	removeAll = os.RemoveAll
)

// Registry is the registry access the engine needs. *manifest.Store
// implements it.
type Registry interface {
	Load(scope model.Scope) (*manifest.Registry, error)
	Upsert(scope model.Scope, rec model.SkillRecord) error
	Remove(scope model.Scope, name string) (bool, error)
}

var _ Registry = (*manifest.Store)(nil)

// InstallRequest describes one install.
type InstallRequest struct {
	// Ref is a skill name or catalog id.
	Ref   string
	Scope model.Scope
	// CustomPath is the parent directory for ScopeCustom.
	CustomPath string
	// Force replaces an existing installation.
	Force bool
}

// Installer fetches packages and places them under a scope's skills root.
type Installer struct {
	resolver *resolver.Resolver
	store    Registry
	fetcher  catalog.Fetcher
	now      func() time.Time
}

// NewInstaller creates an Installer.
func NewInstaller(r *resolver.Resolver, store Registry, fetcher catalog.Fetcher) *Installer {
	return &Installer{
		resolver: r,
		store:    store,
		fetcher:  fetcher,
		now:      time.Now,
	}
}

// Install fetches req.Ref and installs it into req.Scope.
//
// Nothing on disk or in the registry changes when the target is occupied
// and Force is false. Package files are extracted into a staging directory
// beside the target and renamed into place, so an interrupted install
// never leaves a partial skill directory behind.
func (i *Installer) Install(ctx context.Context, req InstallRequest) (*model.InstalledSkill, error) {
	const op = "install"

	ref := strings.TrimSpace(req.Ref)
	if ref == "" {
		return nil, skillerr.New(skillerr.KindInvalidRequest, op, "skill name is required", nil)
	}
	if !req.Scope.IsValid() {
		return nil, skillerr.New(skillerr.KindInvalidRequest, op,
			fmt.Sprintf("invalid scope %q", req.Scope), nil).WithSkill(ref, "", "")
	}
	scope := req.Scope.String()
	log := logging.WithContext(ctx).With(logging.Operation(op), logging.Ref(ref), logging.Scope(scope))

	name := ref
	var meta *model.CatalogSkill
	if catalog.IsID(ref) {
		m, err := i.fetcher.Lookup(ctx, ref)
		if err != nil {
			return nil, classifyFetch(op, ref, err)
		}
		meta = m
		name = m.Name
		log.Debug("resolved catalog id", logging.Skill(name))
	}

	target, err := i.resolver.ResolveTarget(name, req.Scope, req.CustomPath)
	if err != nil {
		return nil, err
	}
	log = log.With(logging.Skill(name), logging.Path(target))

	reg, err := i.store.Load(req.Scope)
	if err != nil {
		return nil, err
	}
	existing, hasRecord := reg.Get(name)

	targetExists := i.resolver.Exists(target)
	if targetExists && !req.Force {
		return nil, skillerr.New(skillerr.KindAlreadyInstalled, op,
			"skill already installed, use --force to replace it", nil).
			WithSkill(name, scope, target)
	}

	// A registry holds one record per name. Installing the name at another
	// path moves the record and leaves the old directory alone.
	var unmanaged string
	if hasRecord && existing.InstalledPath != target && i.resolver.Exists(existing.InstalledPath) {
		unmanaged = existing.InstalledPath
	}

	if err := ctx.Err(); err != nil {
		return nil, skillerr.New(skillerr.KindFetchError, op, "install canceled", err).WithSkill(name, scope, "")
	}

	log.Debug("fetching package")
	pkg, err := i.fetcher.FetchPackage(ctx, ref)
	if err != nil {
		return nil, classifyFetch(op, name, err)
	}
	if meta == nil {
		meta = &pkg.Skill
	}

	entries, err := archive.Extract(pkg.Data)
	if err != nil {
		return nil, skillerr.New(skillerr.KindInvalidPackage, op, "cannot unpack package", err).
			WithSkill(name, scope, "")
	}
	skillMD, ok := skillFile(entries)
	if !ok {
		return nil, skillerr.New(skillerr.KindInvalidPackage, op,
			fmt.Sprintf("package has no %s at its root", SkillFile), nil).WithSkill(name, scope, "")
	}
	if err := CheckSkillFile(skillMD, name); err != nil {
		return nil, skillerr.New(skillerr.KindInvalidPackage, op, "invalid "+SkillFile, err).WithSkill(name, scope, "")
	}

	if err := ctx.Err(); err != nil {
		return nil, skillerr.New(skillerr.KindIOError, op, "install canceled", err).WithSkill(name, scope, "")
	}

	parent := filepath.Dir(target)
	placed := false
	if created := firstMissingDir(parent); created != "" {
		defer func() {
			if !placed {
				removeEmptyDirs(parent, created)
			}
		}()
	}
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return nil, skillerr.New(skillerr.KindIOError, op, "cannot create skills directory", err).
			WithSkill(name, scope, parent)
	}
	staging, err := os.MkdirTemp(parent, "."+name+".staging-*")
	if err != nil {
		return nil, skillerr.New(skillerr.KindIOError, op, "cannot create staging directory", err).
			WithSkill(name, scope, parent)
	}
	defer func() {
		if err := removeAll(staging); err != nil {
			log.Warn("failed to remove staging directory", logging.Path(staging), logging.Err(err))
		}
	}()

	if err := archive.WriteEntries(entries, staging); err != nil {
		if errors.Is(err, archive.ErrUnsafeEntry) {
			return nil, skillerr.New(skillerr.KindInvalidPackage, op, "unsafe package", err).WithSkill(name, scope, "")
		}
		return nil, skillerr.New(skillerr.KindIOError, op, "cannot write package files", err).
			WithSkill(name, scope, staging)
	}
	if _, err := os.Stat(filepath.Join(staging, SkillFile)); err != nil {
		return nil, skillerr.New(skillerr.KindInvalidPackage, op,
			fmt.Sprintf("%s missing after extraction", SkillFile), err).WithSkill(name, scope, "")
	}

	if err := ctx.Err(); err != nil {
		return nil, skillerr.New(skillerr.KindIOError, op, "install canceled", err).WithSkill(name, scope, "")
	}

	if err := promote(staging, target, targetExists, log); err != nil {
		return nil, skillerr.New(skillerr.KindIOError, op, "cannot place skill files", err).
			WithSkill(name, scope, target)
	}

	placed = true

	if unmanaged != "" {
		log.Warn("previous install is no longer managed", logging.Path(unmanaged))
	}

	rec := model.SkillRecord{
		Name:          name,
		InstalledPath: target,
		Scope:         req.Scope,
		InstalledAt:   i.now().UTC(),
		SourceVersion: meta.Version,
		Checksum:      pkg.Digest().String(),
		CatalogID:     meta.ID,
	}
	if err := i.store.Upsert(req.Scope, rec); err != nil {
		return nil, skillerr.New(skillerr.KindManifestUpdateError, op,
			"skill files installed but registry update failed", err).WithSkill(name, scope, target)
	}

	result := &model.InstalledSkill{SkillRecord: rec, Unmanaged: unmanaged}
	if targetExists {
		result.Replaced = true
		if hasRecord && existing.InstalledPath == target {
			result.PreviousVersion = existing.SourceVersion
		}
		log.Info("replaced skill",
			"change", VersionChange(result.PreviousVersion, rec.SourceVersion),
			"from", result.PreviousVersion,
			"to", rec.SourceVersion,
		)
	} else {
		log.Info("installed skill", "version", rec.SourceVersion)
	}
	return result, nil
}

// promote moves staging to target. An existing target is moved aside first
// and restored if the final rename fails.
func promote(staging, target string, replace bool, log *slog.Logger) error {
	if !replace {
		return rename(staging, target)
	}

	aside := filepath.Join(filepath.Dir(target),
		fmt.Sprintf(".%s.previous-%d-%d", filepath.Base(target), os.Getpid(), time.Now().UnixNano()))
	if err := rename(target, aside); err != nil {
		return fmt.Errorf("moving existing install aside: %w", err)
	}

	if err := rename(staging, target); err != nil {
		if rerr := rename(aside, target); rerr != nil {
			log.Error("failed to restore previous install", logging.Path(aside), logging.Err(rerr))
		}
		return err
	}

	if err := removeAll(aside); err != nil {
		log.Warn("failed to remove previous install", logging.Path(aside), logging.Err(err))
	}
	return nil
}

// firstMissingDir returns the outermost missing directory on the way to
// dir, or "" when dir exists.
func firstMissingDir(dir string) string {
	missing := ""
	for {
		if _, err := os.Stat(dir); !os.IsNotExist(err) {
			return missing
		}
		missing = dir
		up := filepath.Dir(dir)
		if up == dir {
			return missing
		}
		dir = up
	}
}

// removeEmptyDirs removes dir and its parents up to and including top,
// stopping at the first directory that is not empty.
func removeEmptyDirs(dir, top string) {
	for {
		if err := os.Remove(dir); err != nil || dir == top {
			return
		}
		up := filepath.Dir(dir)
		if up == dir {
			return
		}
		dir = up
	}
}

func skillFile(entries []archive.Entry) ([]byte, bool) {
	for _, e := range entries {
		if e.Path == SkillFile {
			return e.Content, true
		}
	}
	return nil, false
}

// classifyFetch passes classified errors through and wraps anything else
// as a fetch error.
func classifyFetch(op, name string, err error) error {
	if _, ok := skillerr.As(err); ok {
		return err
	}
	return skillerr.New(skillerr.KindFetchError, op, "", err).WithSkill(name, "", "")
}

// VersionChange describes moving from prev to next as "upgrade",
// "downgrade", "reinstall", or "replace" when either is not a semantic version.
func VersionChange(prev, next string) string {
	pv, err := semver.NewVersion(prev)
	if err != nil {
		return "replace"
	}
	nv, err := semver.NewVersion(next)
	if err != nil {
		return "replace"
	}
	switch nv.Compare(pv) {
	case 1:
		return "upgrade"
	case -1:
		return "downgrade"
	default:
		return "reinstall"
	}
}
