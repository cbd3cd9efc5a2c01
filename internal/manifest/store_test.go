package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/klauern/skillmaster/internal/model"
	"github.com/klauern/skillmaster/internal/skillerr"
)

type dirLocator struct {
	dir string
}

func (l dirLocator) RegistryPath(scope model.Scope) (string, error) {
	if !scope.IsValid() {
		return "", skillerr.New(skillerr.KindInvalidRequest, "registry path", "bad scope", nil)
	}
	return filepath.Join(l.dir, string(scope)+"-registry.yaml"), nil
}

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	return NewStore(dirLocator{dir: dir}), dir
}

func record(name string, scope model.Scope) model.SkillRecord {
	return model.SkillRecord{
		Name:          name,
		InstalledPath: filepath.Join("/skills", name),
		Scope:         scope,
		InstalledAt:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		SourceVersion: "1.0.0",
		Checksum:      "sha256:abc",
	}
}

func TestLoad_Missing(t *testing.T) {
	store, dir := newTestStore(t)

	reg, err := store.Load(model.ScopeLocal)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(reg.Skills) != 0 {
		t.Errorf("expected empty registry, got %d skills", len(reg.Skills))
	}
	if _, err := os.Stat(filepath.Join(dir, "local-registry.yaml")); !os.IsNotExist(err) {
		t.Error("Load() must not create the registry file")
	}
}

func TestLoad_Contents(t *testing.T) {
	tests := map[string]struct {
		content   string
		wantNames []string
		wantKind  skillerr.Kind
	}{
		"empty file": {
			content: "",
		},
		"whitespace only": {
			content: "\n  \n",
		},
		"unknown fields ignored": {
			content: `version: 1
future_setting: true
skills:
  pdf:
    name: pdf
    installed_path: /skills/pdf
    scope: local
    installed_at: 2026-01-02T03:04:05Z
    signature: abc
`,
			wantNames: []string{"pdf"},
		},
		"key wins over name": {
			content: `skills:
  docx:
    name: something-else
    installed_path: /skills/docx
`,
			wantNames: []string{"docx"},
		},
		"not yaml": {
			content:  "skills: [unterminated",
			wantKind: skillerr.KindCorruptManifest,
		},
		"wrong shape": {
			content:  "skills: 42\n",
			wantKind: skillerr.KindCorruptManifest,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			store, dir := newTestStore(t)
			path := filepath.Join(dir, "local-registry.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}

			reg, err := store.Load(model.ScopeLocal)
			if tt.wantKind != "" {
				if skillerr.KindOf(err) != tt.wantKind {
					t.Fatalf("Load() error = %v, want kind %s", err, tt.wantKind)
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() error: %v", err)
			}

			names := reg.Names()
			if len(names) != len(tt.wantNames) {
				t.Fatalf("names = %v, want %v", names, tt.wantNames)
			}
			for i, n := range tt.wantNames {
				if names[i] != n {
					t.Errorf("names[%d] = %q, want %q", i, names[i], n)
				}
				if rec, _ := reg.Get(n); rec.Name != n {
					t.Errorf("record name = %q, want %q", rec.Name, n)
				}
			}
		})
	}
}

func TestLoad_DefaultsRecordScope(t *testing.T) {
	store, dir := newTestStore(t)
	content := "skills:\n  pdf:\n    installed_path: /skills/pdf\n"
	if err := os.WriteFile(filepath.Join(dir, "global-registry.yaml"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	reg, err := store.Load(model.ScopeGlobal)
	if err != nil {
		t.Fatal(err)
	}
	if rec, _ := reg.Get("pdf"); rec.Scope != model.ScopeGlobal {
		t.Errorf("scope = %q, want global", rec.Scope)
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	store, dir := newTestStore(t)

	reg := NewRegistry()
	reg.Skills["pdf"] = record("pdf", model.ScopeGlobal)
	reg.Skills["docx"] = record("docx", model.ScopeGlobal)

	if err := store.Save(model.ScopeGlobal, reg); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "global-registry.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"version: 1", "installed_path: /skills/pdf", "checksum: sha256:abc"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("registry file missing %q:\n%s", want, data)
		}
	}

	loaded, err := store.Load(model.ScopeGlobal)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(loaded.Skills) != 2 {
		t.Fatalf("expected 2 skills, got %d", len(loaded.Skills))
	}
	got, _ := loaded.Get("pdf")
	want := record("pdf", model.ScopeGlobal)
	if !got.InstalledAt.Equal(want.InstalledAt) {
		t.Errorf("InstalledAt = %v, want %v", got.InstalledAt, want.InstalledAt)
	}
	got.InstalledAt = want.InstalledAt
	if got != want {
		t.Errorf("record = %+v, want %+v", got, want)
	}
}

func TestSave_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "config")
	store := NewStore(dirLocator{dir: dir})

	if err := store.Upsert(model.ScopeCustom, record("pdf", model.ScopeCustom)); err != nil {
		t.Fatalf("Upsert() error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "custom-registry.yaml")); err != nil {
		t.Errorf("registry not written: %v", err)
	}
}

func TestUpsertRemove(t *testing.T) {
	store, _ := newTestStore(t)

	if err := store.Upsert(model.ScopeLocal, record("pdf", model.ScopeLocal)); err != nil {
		t.Fatal(err)
	}
	updated := record("pdf", model.ScopeLocal)
	updated.SourceVersion = "2.0.0"
	if err := store.Upsert(model.ScopeLocal, updated); err != nil {
		t.Fatal(err)
	}

	reg, err := store.Load(model.ScopeLocal)
	if err != nil {
		t.Fatal(err)
	}
	if rec, _ := reg.Get("pdf"); rec.SourceVersion != "2.0.0" {
		t.Errorf("Upsert() should replace, got version %q", rec.SourceVersion)
	}

	removed, err := store.Remove(model.ScopeLocal, "pdf")
	if err != nil || !removed {
		t.Fatalf("Remove() = %v, %v; want true, nil", removed, err)
	}
	removed, err = store.Remove(model.ScopeLocal, "pdf")
	if err != nil || removed {
		t.Fatalf("second Remove() = %v, %v; want false, nil", removed, err)
	}
}

func TestUpsertRemove_KeepsUnknownFields(t *testing.T) {
	store, dir := newTestStore(t)
	path := filepath.Join(dir, "local-registry.yaml")
	content := `version: 2
owner: team
skills:
  pdf:
    name: pdf
    installed_path: /skills/pdf
    scope: local
    installed_at: 2026-01-02T03:04:05Z
    pinned: true
  xlsx:
    name: xlsx
    installed_path: /skills/xlsx
    scope: local
    installed_at: 2026-01-02T03:04:05Z
    mirror: eu
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := store.Upsert(model.ScopeLocal, record("docx", model.ScopeLocal)); err != nil {
		t.Fatalf("Upsert() error: %v", err)
	}
	updated := record("pdf", model.ScopeLocal)
	updated.SourceVersion = "2.0.0"
	if err := store.Upsert(model.ScopeLocal, updated); err != nil {
		t.Fatalf("Upsert() error: %v", err)
	}
	if _, err := store.Remove(model.ScopeLocal, "xlsx"); err != nil {
		t.Fatalf("Remove() error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]any
	if err := yaml.Unmarshal(data, &got); err != nil {
		t.Fatalf("saved registry is not YAML: %v", err)
	}
	if got["version"] != 2 {
		t.Errorf("version = %v, want 2", got["version"])
	}
	if got["owner"] != "team" {
		t.Errorf("owner = %v, want team", got["owner"])
	}
	skills, _ := got["skills"].(map[string]any)
	pdf, _ := skills["pdf"].(map[string]any)
	if pdf["pinned"] != true {
		t.Errorf("pdf record lost pinned: %v", pdf)
	}
	if pdf["source_version"] != "2.0.0" {
		t.Errorf("pdf source_version = %v, want 2.0.0", pdf["source_version"])
	}
	if _, ok := skills["docx"]; !ok {
		t.Error("docx record missing")
	}
	if _, ok := skills["xlsx"]; ok {
		t.Error("xlsx record should be removed")
	}

	reg, err := store.Load(model.ScopeLocal)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(reg.Names(), ",") != "docx,pdf" {
		t.Errorf("Names() = %v", reg.Names())
	}
}

func TestSave_NewRegistryWritesCurrentVersion(t *testing.T) {
	store, dir := newTestStore(t)
	if err := store.Upsert(model.ScopeGlobal, record("pdf", model.ScopeGlobal)); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "global-registry.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "version: 1\n") {
		t.Errorf("registry = %q, want it to start with version: 1", data)
	}
}

func TestRemove_AbsentDoesNotWrite(t *testing.T) {
	store, dir := newTestStore(t)

	removed, err := store.Remove(model.ScopeLocal, "ghost")
	if err != nil || removed {
		t.Fatalf("Remove() = %v, %v", removed, err)
	}
	if _, err := os.Stat(filepath.Join(dir, "local-registry.yaml")); !os.IsNotExist(err) {
		t.Error("removing an absent name must not create a registry file")
	}
}

func TestScopesAreIndependent(t *testing.T) {
	store, _ := newTestStore(t)

	if err := store.Upsert(model.ScopeLocal, record("pdf", model.ScopeLocal)); err != nil {
		t.Fatal(err)
	}
	if err := store.Upsert(model.ScopeGlobal, record("pdf", model.ScopeGlobal)); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Remove(model.ScopeLocal, "pdf"); err != nil {
		t.Fatal(err)
	}

	global, err := store.Load(model.ScopeGlobal)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := global.Get("pdf"); !ok {
		t.Error("removing the local record must not affect the global registry")
	}
}

func TestSave_RenameFailureLeavesPriorFile(t *testing.T) {
	store, dir := newTestStore(t)
	path := filepath.Join(dir, "local-registry.yaml")

	if err := store.Upsert(model.ScopeLocal, record("pdf", model.ScopeLocal)); err != nil {
		t.Fatal(err)
	}
	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	renameFile = func(string, string) error { return errors.New("simulated crash") }
	t.Cleanup(func() { renameFile = os.Rename })

	err = store.Upsert(model.ScopeLocal, record("docx", model.ScopeLocal))
	if !errors.Is(err, skillerr.ErrIO) {
		t.Fatalf("Upsert() error = %v, want IOError", err)
	}

	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(after) != string(before) {
		t.Errorf("registry changed after failed save:\nbefore:\n%s\nafter:\n%s", before, after)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("temporary files left behind: %v", names)
	}
}

func TestLoad_IgnoresStrayTempFile(t *testing.T) {
	store, dir := newTestStore(t)

	if err := store.Upsert(model.ScopeLocal, record("pdf", model.ScopeLocal)); err != nil {
		t.Fatal(err)
	}
	// A half-written temp file from an interrupted process.
	stray := filepath.Join(dir, ".local-registry.yaml.tmp-123")
	if err := os.WriteFile(stray, []byte("skills:\n  docx: {inst"), 0o644); err != nil {
		t.Fatal(err)
	}

	reg, err := store.Load(model.ScopeLocal)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if names := reg.Names(); len(names) != 1 || names[0] != "pdf" {
		t.Errorf("names = %v, want [pdf]", names)
	}

	if err := store.Upsert(model.ScopeLocal, record("docx", model.ScopeLocal)); err != nil {
		t.Fatalf("Upsert() with stray temp file present: %v", err)
	}
}

func TestLoad_InvalidScope(t *testing.T) {
	store, _ := newTestStore(t)

	if _, err := store.Load(model.Scope("nope")); !errors.Is(err, skillerr.ErrInvalidRequest) {
		t.Errorf("Load() error = %v, want InvalidRequest", err)
	}
}

func TestRecords_Sorted(t *testing.T) {
	reg := NewRegistry()
	for _, n := range []string{"zeta", "alpha", "mid"} {
		reg.Skills[n] = record(n, model.ScopeLocal)
	}

	recs := reg.Records()
	want := []string{"alpha", "mid", "zeta"}
	for i, r := range recs {
		if r.Name != want[i] {
			t.Errorf("Records()[%d] = %q, want %q", i, r.Name, want[i])
		}
	}
}
