package skills

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauern/skillmaster/internal/logging"
	"github.com/klauern/skillmaster/internal/model"
	"github.com/klauern/skillmaster/internal/skillerr"
)

// UninstallResult reports what was removed.
type UninstallResult struct {
	Record model.SkillRecord
	// Warning is a DriftWarning when the directory was already gone.
	Warning error
}

// Uninstaller removes installed skills and their registry records.
type Uninstaller struct {
	store Registry
}

// NewUninstaller creates an Uninstaller.
func NewUninstaller(store Registry) *Uninstaller {
	return &Uninstaller{store: store}
}

// Uninstall deletes the directory recorded for name in scope, then the record.
// A record whose directory no longer exists is still removed, and the result
// carries a drift warning. When the directory cannot be deleted the record
// is kept.
func (u *Uninstaller) Uninstall(ctx context.Context, name string, scope model.Scope) (*UninstallResult, error) {
	const op = "uninstall"

	if !scope.IsValid() {
		return nil, skillerr.New(skillerr.KindInvalidRequest, op,
			fmt.Sprintf("invalid scope %q", scope), nil).WithSkill(name, "", "")
	}
	log := logging.WithContext(ctx).With(logging.Operation(op), logging.Skill(name), logging.Scope(scope.String()))

	reg, err := u.store.Load(scope)
	if err != nil {
		return nil, err
	}
	rec, ok := reg.Get(name)
	if !ok {
		return nil, skillerr.New(skillerr.KindNotInstalled, op, "", nil).WithSkill(name, scope.String(), "")
	}

	if err := ctx.Err(); err != nil {
		return nil, skillerr.New(skillerr.KindIOError, op, "uninstall canceled", err).
			WithSkill(name, scope.String(), rec.InstalledPath)
	}

	result := &UninstallResult{Record: rec}
	path := rec.InstalledPath

	switch _, statErr := os.Lstat(path); {
	case path == "" || errors.Is(statErr, fs.ErrNotExist):
		result.Warning = skillerr.New(skillerr.KindDriftWarning, op,
			"skill directory was already missing, removing the registry entry", nil).
			WithSkill(name, scope.String(), path)
		log.Warn("skill directory missing", logging.Path(path))
	case !filepath.IsAbs(path) || filepath.Dir(path) == path:
		return nil, skillerr.New(skillerr.KindIOError, op, "refusing to remove an unsafe path", nil).
			WithSkill(name, scope.String(), path)
	default:
		if err := removeAll(path); err != nil {
			return nil, skillerr.New(skillerr.KindIOError, op, "cannot remove skill directory", err).
				WithSkill(name, scope.String(), path)
		}
		log.Debug("removed skill directory", logging.Path(path))
	}

	if _, err := u.store.Remove(scope, name); err != nil {
		return nil, skillerr.New(skillerr.KindManifestUpdateError, op,
			"skill files removed but registry update failed", err).WithSkill(name, scope.String(), path)
	}

	log.Info("uninstalled skill", logging.Path(path))
	return result, nil
}
