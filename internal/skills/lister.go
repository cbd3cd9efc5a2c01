package skills

import (
	"github.com/klauern/skillmaster/internal/config"
	"github.com/klauern/skillmaster/internal/model"
	"github.com/klauern/skillmaster/internal/resolver"
	"github.com/klauern/skillmaster/internal/skillerr"
)

// RecordStatus compares a registry record with the filesystem.
type RecordStatus string

const (
	// StatusOK means the recorded directory exists.
	StatusOK RecordStatus = "ok"
	// StatusMissing means the recorded directory is gone.
	StatusMissing RecordStatus = "missing"
)

// Lister reads registries and exposes the active configuration.
type Lister struct {
	store    Registry
	resolver *resolver.Resolver
	cfg      config.Config
}

// NewLister creates a Lister. cfg is copied.
func NewLister(store Registry, r *resolver.Resolver, cfg *config.Config) *Lister {
	if cfg == nil {
		cfg = config.Default()
	}
	return &Lister{store: store, resolver: r, cfg: *cfg}
}

// ListInstalled returns the records of the given scopes, each scope's
// records sorted by name. With no scopes it lists local then global.
// It never modifies a registry.
func (l *Lister) ListInstalled(scopes ...model.Scope) ([]model.SkillRecord, error) {
	if len(scopes) == 0 {
		scopes = model.DefaultListScopes()
	}

	seen := make(map[model.Scope]bool, len(scopes))
	var out []model.SkillRecord
	for _, scope := range scopes {
		if !scope.IsValid() {
			return nil, skillerr.New(skillerr.KindInvalidRequest, "list", "invalid scope "+string(scope), nil)
		}
		if seen[scope] {
			continue
		}
		seen[scope] = true

		reg, err := l.store.Load(scope)
		if err != nil {
			return nil, err
		}
		for _, rec := range reg.Records() {
			if rec.Scope == "" {
				rec.Scope = scope
			}
			out = append(out, rec)
		}
	}
	return out, nil
}

// Status reports whether rec's directory still exists.
func (l *Lister) Status(rec model.SkillRecord) RecordStatus {
	if rec.InstalledPath != "" && l.resolver.Exists(rec.InstalledPath) {
		return StatusOK
	}
	return StatusMissing
}

// CurrentConfig returns a copy of the configuration in effect.
func (l *Lister) CurrentConfig() config.Config {
	return l.cfg
}
