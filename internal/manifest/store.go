// Package manifest persists the per-scope registry of installed skills.
//
// Each scope has one YAML file. Writes go to a temporary file in the same
// directory and are renamed over the registry, so a crash leaves either the
// old or the new file and never a partial one.
package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/klauern/skillmaster/internal/logging"
	"github.com/klauern/skillmaster/internal/model"
	"github.com/klauern/skillmaster/internal/skillerr"
)

// CurrentVersion is the registry format version written by this package.
const CurrentVersion = 1

// Registry is the decoded content of one registry file.
//
// Keys this version does not know, at the top level or inside a record, are
// kept and written back on Save.
type Registry struct {
	Version int
	Skills  map[string]model.SkillRecord

	extra       map[string]any
	recordExtra map[string]map[string]any
}

// registryFile is the on-disk layout of a registry.
type registryFile struct {
	Version int                   `yaml:"version"`
	Skills  map[string]recordFile `yaml:"skills"`
	Extra   map[string]any        `yaml:",inline"`
}

type recordFile struct {
	model.SkillRecord `yaml:",inline"`
	Extra             map[string]any `yaml:",inline"`
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{Version: CurrentVersion, Skills: map[string]model.SkillRecord{}}
}

// Get returns the record for name.
func (r *Registry) Get(name string) (model.SkillRecord, bool) {
	rec, ok := r.Skills[name]
	return rec, ok
}

// Names returns the recorded skill names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.Skills))
	for name := range r.Skills {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Records returns the records sorted by name.
func (r *Registry) Records() []model.SkillRecord {
	out := make([]model.SkillRecord, 0, len(r.Skills))
	for _, name := range r.Names() {
		out = append(out, r.Skills[name])
	}
	return out
}

// Locator maps a scope to its registry file.
type Locator interface {
	RegistryPath(scope model.Scope) (string, error)
}

// Store loads and saves registries located by a Locator.
type Store struct {
	locator Locator
}

// NewStore creates a Store.
func NewStore(locator Locator) *Store {
	return &Store{locator: locator}
}

// renameFile is swapped in tests to simulate a crash at the commit point.
var renameFile = os.Rename

// Path returns the registry file for scope.
func (s *Store) Path(scope model.Scope) (string, error) {
	return s.locator.RegistryPath(scope)
}

// Load reads the registry for scope. A missing or empty file is an empty
// registry. Unknown keys are ignored.
func (s *Store) Load(scope model.Scope) (*Registry, error) {
	path, err := s.locator.RegistryPath(scope)
	if err != nil {
		return nil, err
	}

	// #nosec G304 - path comes from the resolver
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return NewRegistry(), nil
		}
		return nil, skillerr.New(skillerr.KindIOError, "load registry", "cannot read registry", err).
			WithSkill("", scope.String(), path)
	}

	reg, err := decode(data, scope)
	if err != nil {
		return nil, skillerr.New(skillerr.KindCorruptManifest, "load registry", "", err).
			WithSkill("", scope.String(), path)
	}

	logging.Debug("loaded registry",
		logging.Scope(scope.String()),
		logging.Path(path),
		logging.Count(len(reg.Skills)),
	)
	return reg, nil
}

func decode(data []byte, scope model.Scope) (*Registry, error) {
	reg := NewRegistry()
	if len(bytes.TrimSpace(data)) == 0 {
		return reg, nil
	}

	var raw registryFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	if raw.Version > CurrentVersion {
		logging.Warn("registry written by a newer version, unknown fields are kept as is",
			logging.Scope(scope.String()),
			"version", raw.Version,
		)
	}
	if raw.Version > 0 {
		reg.Version = raw.Version
	}
	if len(raw.Extra) > 0 {
		reg.extra = raw.Extra
	}
	for key, stored := range raw.Skills {
		if key == "" {
			return nil, fmt.Errorf("registry has a record with an empty name")
		}
		rec := stored.SkillRecord
		rec.Name = key
		if rec.Scope == "" {
			rec.Scope = scope
		}
		reg.Skills[key] = rec
		if len(stored.Extra) > 0 {
			if reg.recordExtra == nil {
				reg.recordExtra = map[string]map[string]any{}
			}
			reg.recordExtra[key] = stored.Extra
		}
	}
	return reg, nil
}

// Save replaces the registry file for scope with reg.
func (s *Store) Save(scope model.Scope, reg *Registry) error {
	path, err := s.locator.RegistryPath(scope)
	if err != nil {
		return err
	}
	if reg == nil {
		reg = NewRegistry()
	}

	out := registryFile{
		Version: max(reg.Version, CurrentVersion),
		Skills:  make(map[string]recordFile, len(reg.Skills)),
		Extra:   reg.extra,
	}
	for name, rec := range reg.Skills {
		out.Skills[name] = recordFile{SkillRecord: rec, Extra: reg.recordExtra[name]}
	}
	data, err := yaml.Marshal(&out)
	if err != nil {
		return skillerr.New(skillerr.KindIOError, "save registry", "cannot encode registry", err).
			WithSkill("", scope.String(), path)
	}

	if err := writeAtomic(path, data); err != nil {
		return skillerr.New(skillerr.KindIOError, "save registry", "cannot write registry", err).
			WithSkill("", scope.String(), path)
	}

	logging.Debug("saved registry",
		logging.Scope(scope.String()),
		logging.Path(path),
		logging.Count(len(out.Skills)),
	)
	return nil
}

// writeAtomic writes data next to path and renames it into place.
// The temporary file is removed on every failure path.
func writeAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	// #nosec G302 - registry should be readable by the user's tools
	if err = os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	return renameFile(tmpName, path)
}

// Upsert inserts or replaces rec in the registry for scope.
func (s *Store) Upsert(scope model.Scope, rec model.SkillRecord) error {
	reg, err := s.Load(scope)
	if err != nil {
		return err
	}
	if rec.Scope == "" {
		rec.Scope = scope
	}
	reg.Skills[rec.Name] = rec
	return s.Save(scope, reg)
}

// Remove deletes name from the registry for scope. It reports whether a
// record was present; removing an absent name writes nothing.
func (s *Store) Remove(scope model.Scope, name string) (bool, error) {
	reg, err := s.Load(scope)
	if err != nil {
		return false, err
	}
	if _, ok := reg.Skills[name]; !ok {
		return false, nil
	}
	delete(reg.Skills, name)
	delete(reg.recordExtra, name)
	if err := s.Save(scope, reg); err != nil {
		return false, err
	}
	return true, nil
}
