// Package mock provides an in-memory catalog for testing.
package mock

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/klauern/skillmaster/internal/archive"
	"github.com/klauern/skillmaster/internal/catalog"
	"github.com/klauern/skillmaster/internal/model"
	"github.com/klauern/skillmaster/internal/skillerr"
)

// Fetcher is a mock implementation of catalog.Fetcher and catalog.Searcher.
type Fetcher struct {
	mu       sync.Mutex
	skills   map[string]model.CatalogSkill
	packages map[string][]byte
	errors   map[string]error
	fetchErr error
	lookups  int
	fetches  []string
	onFetch  func(ref string)
}

var (
	_ catalog.Fetcher  = (*Fetcher)(nil)
	_ catalog.Searcher = (*Fetcher)(nil)
)

// New creates an empty mock catalog.
func New() *Fetcher {
	return &Fetcher{
		skills:   map[string]model.CatalogSkill{},
		packages: map[string][]byte{},
		errors:   map[string]error{},
	}
}

// WithSkill registers skill with a tar.gz package holding files
// (relative path to content). A SKILL.md with frontmatter is added when
// files has none.
func (f *Fetcher) WithSkill(skill model.CatalogSkill, files map[string]string) *Fetcher {
	if _, ok := files["SKILL.md"]; !ok {
		with := map[string]string{"SKILL.md": "---\nname: " + skill.Name + "\ndescription: " + skill.Description + "\n---\n# " + skill.Name + "\n"}
		for k, v := range files {
			with[k] = v
		}
		files = with
	}

	entries := make([]archive.Entry, 0, len(files))
	for p, content := range files {
		entries = append(entries, archive.Entry{Path: p, Content: []byte(content)})
	}
	data, err := archive.CreateTarGzip(entries)
	if err != nil {
		panic(err)
	}
	return f.WithPackage(skill, data)
}

// WithPackage registers skill with raw archive bytes.
func (f *Fetcher) WithPackage(skill model.CatalogSkill, data []byte) *Fetcher {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, key := range keys(skill) {
		f.skills[key] = skill
		f.packages[key] = data
	}
	return f
}

// WithError makes every call for ref fail with err.
func (f *Fetcher) WithError(ref string, err error) *Fetcher {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors[strings.ToLower(ref)] = err
	return f
}

// WithFetchError makes FetchPackage fail with err after a successful lookup.
func (f *Fetcher) WithFetchError(err error) *Fetcher {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchErr = err
	return f
}

// OnFetch registers a hook run at the start of FetchPackage.
func (f *Fetcher) OnFetch(fn func(ref string)) *Fetcher {
	f.onFetch = fn
	return f
}

// Lookup implements catalog.Fetcher.
func (f *Fetcher) Lookup(ctx context.Context, ref string) (*model.CatalogSkill, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	return f.lookupLocked(ctx, ref)
}

func (f *Fetcher) lookupLocked(ctx context.Context, ref string) (*model.CatalogSkill, error) {
	if err := ctx.Err(); err != nil {
		return nil, skillerr.New(skillerr.KindFetchError, "lookup skill", "", err)
	}
	key := strings.ToLower(strings.TrimSpace(ref))
	if err, ok := f.errors[key]; ok {
		return nil, err
	}
	skill, ok := f.skills[key]
	if !ok {
		return nil, skillerr.New(skillerr.KindSkillNotFound, "lookup skill", "", nil).WithSkill(ref, "", "")
	}
	return &skill, nil
}

// FetchPackage implements catalog.Fetcher.
func (f *Fetcher) FetchPackage(ctx context.Context, ref string) (*catalog.Package, error) {
	if f.onFetch != nil {
		f.onFetch(ref)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches = append(f.fetches, ref)

	skill, err := f.lookupLocked(ctx, ref)
	if err != nil {
		return nil, err
	}
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	data := f.packages[strings.ToLower(strings.TrimSpace(ref))]
	return &catalog.Package{Skill: *skill, Data: append([]byte(nil), data...)}, nil
}

// Search implements catalog.Searcher with a case-insensitive substring match
// on name and description.
func (f *Fetcher) Search(_ context.Context, query string, limit int) ([]model.CatalogSkill, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	q := strings.ToLower(query)
	seen := map[string]bool{}
	var out []model.CatalogSkill
	for _, s := range f.skills {
		if seen[s.Name] {
			continue
		}
		if strings.Contains(strings.ToLower(s.Name), q) || strings.Contains(strings.ToLower(s.Description), q) {
			seen[s.Name] = true
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Fetches returns the refs passed to FetchPackage, in call order.
func (f *Fetcher) Fetches() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.fetches...)
}

// LookupCalled returns the number of times Lookup was called.
func (f *Fetcher) LookupCalled() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lookups
}

func keys(skill model.CatalogSkill) []string {
	var out []string
	for _, k := range []string{skill.Name, skill.ID} {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			out = append(out, k)
		}
	}
	return out
}
