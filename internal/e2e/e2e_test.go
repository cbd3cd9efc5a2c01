package e2e_test

import (
	"encoding/json"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauern/skillmaster/internal/archive"
	"github.com/klauern/skillmaster/internal/e2e"
	"github.com/klauern/skillmaster/internal/model"
)

var updateGolden = flag.Bool("update", false, "update golden files")

func TestMain(m *testing.M) {
	flag.Parse()
	e2e.SetUpdateGolden(*updateGolden)
	os.Exit(m.Run())
}

const (
	pdfID = "6f1c2d3e-4b5a-4c7d-8e9f-0a1b2c3d4e5f"
	pdf13 = "---\nname: pdf\ndescription: PDF tools\n---\n# pdf 1.3\n"
)

func pdfSkill(version string) model.CatalogSkill {
	return model.CatalogSkill{
		ID:            pdfID,
		Name:          "pdf",
		Description:   "PDF toolkit",
		Version:       version,
		AverageRating: 4.5,
		RatingCount:   12,
		GitHubStars:   340,
		Tags:          []model.Tag{{Name: "documents"}},
	}
}

// newCatalogHarness returns a harness whose catalog publishes pdf 1.2.0 and docx 0.3.0.
func newCatalogHarness(t *testing.T) *e2e.Harness {
	t.Helper()
	h := e2e.NewHarness(t)
	h.Catalog.
		AddSkill(pdfSkill("1.2.0"), map[string]string{
			"scripts/extract.py": "print('pdf')\n",
			"reference.md":       "# Reference\n",
		}).
		AddSkill(model.CatalogSkill{Name: "docx", Description: "Word documents", Version: "0.3.0"}, nil)
	return h
}

// TestVersionCommand verifies the version command works correctly.
func TestVersionCommand(t *testing.T) {
	h := e2e.NewHarness(t)

	result := h.Run("version")

	e2e.AssertSuccess(t, result)
	e2e.AssertOutputContains(t, result, "skill version")
}

// TestInstallFromCatalog installs a skill over HTTP and checks the files and
// the registry record.
func TestInstallFromCatalog(t *testing.T) {
	h := newCatalogHarness(t)

	result := h.Run("install", "pdf")

	e2e.AssertSuccess(t, result)
	e2e.AssertOutputContains(t, result, "Installed pdf 1.2.0 (local)")

	dir := h.SkillPath(model.ScopeLocal, "pdf")
	e2e.AssertFileContains(t, filepath.Join(dir, "SKILL.md"), "name: pdf")
	e2e.AssertFileEquals(t, filepath.Join(dir, "scripts", "extract.py"), "print('pdf')\n")
	e2e.AssertFileExists(t, filepath.Join(dir, "reference.md"))

	rec, ok := h.Registry(model.ScopeLocal).Get("pdf")
	if !ok {
		t.Fatal("pdf missing from the local registry")
	}
	if rec.InstalledPath != dir || rec.Scope != model.ScopeLocal {
		t.Errorf("record = %+v", rec)
	}
	if rec.SourceVersion != "1.2.0" || rec.CatalogID != pdfID {
		t.Errorf("record version/id = %q/%q", rec.SourceVersion, rec.CatalogID)
	}
	if !strings.HasPrefix(rec.Checksum, "sha256:") {
		t.Errorf("checksum = %q, want a sha256 digest", rec.Checksum)
	}
	if h.Catalog.Hits("/api/skills/"+pdfID+"/download") != 1 {
		t.Error("package should be downloaded exactly once")
	}
}

// TestInstallByID resolves a catalog id to the skill's name.
func TestInstallByID(t *testing.T) {
	h := newCatalogHarness(t)

	result := h.Run("install", "--global", pdfID)

	e2e.AssertSuccess(t, result)
	e2e.AssertFileExists(t, filepath.Join(h.SkillPath(model.ScopeGlobal, "pdf"), "SKILL.md"))
	if _, ok := h.Registry(model.ScopeGlobal).Get("pdf"); !ok {
		t.Error("pdf missing from the global registry")
	}
	if len(h.Registry(model.ScopeLocal).Names()) != 0 {
		t.Error("local registry should be untouched")
	}
}

// TestInstallConflictAndForce covers refusing to overwrite and --force upgrades.
func TestInstallConflictAndForce(t *testing.T) {
	h := newCatalogHarness(t)
	e2e.AssertSuccess(t, h.Run("install", "pdf"))
	before := h.Registry(model.ScopeLocal)

	result := h.Run("install", "pdf")
	e2e.AssertExitCode(t, result, 1)
	e2e.AssertErrorContains(t, result, "already installed")
	if got, _ := h.Registry(model.ScopeLocal).Get("pdf"); !got.InstalledAt.Equal(before.Skills["pdf"].InstalledAt) {
		t.Error("a refused install must not touch the registry")
	}

	// The cached metadata still says 1.2.0.
	h.Catalog.AddSkill(pdfSkill("1.3.0"), map[string]string{"SKILL.md": pdf13})
	e2e.AssertSuccess(t, h.Run("cache", "clear"))
	result = h.Run("install", "--force", "pdf")
	e2e.AssertSuccess(t, result)
	e2e.AssertOutputContains(t, result, "upgrade from 1.2.0")

	dir := h.SkillPath(model.ScopeLocal, "pdf")
	e2e.AssertFileEquals(t, filepath.Join(dir, "SKILL.md"), pdf13)
	e2e.AssertFileNotExists(t, filepath.Join(dir, "reference.md"))
	if rec, _ := h.Registry(model.ScopeLocal).Get("pdf"); rec.SourceVersion != "1.3.0" {
		t.Errorf("version after upgrade = %q", rec.SourceVersion)
	}
}

// TestInstallOverUnmanagedDirectory refuses to replace a hand-made skill.
func TestInstallOverUnmanagedDirectory(t *testing.T) {
	h := newCatalogHarness(t)
	dir := h.SkillsFixture(model.ScopeLocal).WriteSkill("pdf", "my own pdf helper", "Do things.\n")

	result := h.Run("install", "pdf")

	e2e.AssertError(t, result)
	e2e.AssertFileContains(t, filepath.Join(dir, "SKILL.md"), "my own pdf helper")
	if h.Catalog.Hits("/api/skills/pdf") != 0 {
		t.Error("a conflicting install should not contact the catalog")
	}
}

// TestInstallFailuresLeaveNoTrace checks that nothing is created when the
// package cannot be obtained or used.
func TestInstallFailuresLeaveNoTrace(t *testing.T) {
	tests := map[string]struct {
		setup   func(t *testing.T, h *e2e.Harness)
		ref     string
		wantErr string
	}{
		"catalog down": {
			setup:   func(_ *testing.T, h *e2e.Harness) { h.Catalog.SetDown(true) },
			ref:     "pdf",
			wantErr: "503",
		},
		"unknown skill": {
			ref:     "spreadsheet",
			wantErr: "not found",
		},
		"corrupt package": {
			setup: func(_ *testing.T, h *e2e.Harness) {
				h.Catalog.AddPackage(model.CatalogSkill{Name: "broken", Version: "1.0.0"}, []byte("definitely not gzip"))
			},
			ref:     "broken",
			wantErr: "cannot unpack package",
		},
		"package without SKILL.md": {
			setup: func(t *testing.T, h *e2e.Harness) {
				data, err := archive.CreateTarGzip([]archive.Entry{{Path: "README.md", Content: []byte("# hollow\n")}})
				if err != nil {
					t.Fatal(err)
				}
				h.Catalog.AddPackage(model.CatalogSkill{Name: "hollow", Version: "0.1.0"}, data)
			},
			ref:     "hollow",
			wantErr: "no SKILL.md",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			h := newCatalogHarness(t)
			if tt.setup != nil {
				tt.setup(t, h)
			}

			result := h.Run("install", tt.ref)

			e2e.AssertExitCode(t, result, 1)
			e2e.AssertErrorContains(t, result, tt.wantErr)
			e2e.AssertFileNotExists(t, filepath.Join(h.ProjectDir(), ".claude"))
		})
	}
}

// TestUninstallFlow removes a skill after an interactive confirmation.
func TestUninstallFlow(t *testing.T) {
	h := newCatalogHarness(t)
	e2e.AssertSuccess(t, h.Run("install", "pdf"))
	dir := h.SkillPath(model.ScopeLocal, "pdf")

	// Scripts must pass --yes.
	result := h.Run("uninstall", "pdf")
	e2e.AssertErrorContains(t, result, "--yes")
	e2e.AssertFileExists(t, dir)

	result = h.RunWithStdin("n\n", "uninstall", "pdf")
	e2e.AssertSuccess(t, result)
	e2e.AssertOutputContains(t, result, "nothing was removed")
	e2e.AssertFileExists(t, dir)

	result = h.RunWithStdin("y\n", "uninstall", "pdf")
	e2e.AssertSuccess(t, result)
	e2e.AssertOutputContains(t, result, "Uninstalled pdf")
	e2e.AssertFileNotExists(t, dir)
	if len(h.Registry(model.ScopeLocal).Names()) != 0 {
		t.Error("registry should be empty after uninstall")
	}

	result = h.Run("uninstall", "--yes", "pdf")
	e2e.AssertExitCode(t, result, 1)
	e2e.AssertErrorContains(t, result, "not installed")
}

// TestScopesAreIndependent installs the same skill in every scope.
func TestScopesAreIndependent(t *testing.T) {
	h := newCatalogHarness(t)
	custom := h.TempFixture()

	e2e.AssertSuccess(t, h.Run("install", "pdf"))
	e2e.AssertSuccess(t, h.Run("install", "-g", "pdf"))
	e2e.AssertSuccess(t, h.Run("install", "--path", custom.Path("skills"), "pdf"))

	result := h.Run("list", "--all", "--format", "json")
	e2e.AssertSuccess(t, result)
	var entries []struct {
		Name   string      `json:"name"`
		Scope  model.Scope `json:"scope"`
		Path   string      `json:"installed_path"`
		Status string      `json:"status"`
	}
	if err := json.Unmarshal([]byte(result.Stdout), &entries); err != nil {
		t.Fatalf("list output is not JSON: %v\n%s", err, result.Stdout)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3: %+v", len(entries), entries)
	}
	for i, scope := range model.AllScopes() {
		if entries[i].Scope != scope || entries[i].Name != "pdf" || entries[i].Status != "ok" {
			t.Errorf("entry %d = %+v, want pdf in %s", i, entries[i], scope)
		}
	}
	if entries[2].Path != custom.Path(filepath.Join("skills", "pdf")) {
		t.Errorf("custom path = %q", entries[2].Path)
	}

	e2e.AssertSuccess(t, h.Run("uninstall", "--global", "-y", "pdf"))
	e2e.AssertFileNotExists(t, h.SkillPath(model.ScopeGlobal, "pdf"))
	e2e.AssertFileExists(t, h.SkillPath(model.ScopeLocal, "pdf"))
	if !custom.Exists(filepath.Join("skills", "pdf", "SKILL.md")) {
		t.Error("custom install should remain")
	}

	e2e.AssertSuccess(t, h.Run("uninstall", "--custom", "-y", "pdf"))
	if custom.Exists(filepath.Join("skills", "pdf")) {
		t.Error("custom install should be removed")
	}
}

// TestInstallRelativeCustomPath resolves --path against the project directory.
func TestInstallRelativeCustomPath(t *testing.T) {
	h := newCatalogHarness(t)
	project := h.ProjectFixture()

	result := h.Run("install", "--path", "vendor/skills", "docx")
	e2e.AssertSuccess(t, result)
	if !project.Exists(filepath.Join("vendor", "skills", "docx", "SKILL.md")) {
		t.Fatal("docx should be installed below the project directory")
	}
	e2e.AssertFileNotExists(t, h.SkillPath(model.ScopeLocal, "docx"))

	result = h.Run("list")
	e2e.AssertSuccess(t, result)
	e2e.AssertOutputNotContains(t, result, "docx")

	result = h.Run("list", "--custom")
	e2e.AssertSuccess(t, result)
	e2e.AssertOutputContains(t, result, "docx")
	e2e.AssertOutputContains(t, result, "custom")
}

// TestDriftIsReported covers a skill directory deleted behind the registry's back.
func TestDriftIsReported(t *testing.T) {
	h := newCatalogHarness(t)
	e2e.AssertSuccess(t, h.Run("install", "docx"))
	if err := os.RemoveAll(h.SkillPath(model.ScopeLocal, "docx")); err != nil {
		t.Fatal(err)
	}

	result := h.Run("list")
	e2e.AssertSuccess(t, result)
	e2e.AssertOutputContains(t, result, "missing")

	result = h.Run("uninstall", "-y", "docx")
	e2e.AssertSuccess(t, result)
	e2e.AssertStderrContains(t, result, "already missing")
	if len(h.Registry(model.ScopeLocal).Names()) != 0 {
		t.Error("record should be dropped")
	}
}

// TestLookupCache checks that metadata is served from the cache until it is cleared.
func TestLookupCache(t *testing.T) {
	h := newCatalogHarness(t)

	e2e.AssertSuccess(t, h.Run("show", "pdf"))
	e2e.AssertSuccess(t, h.Run("show", "pdf"))
	if got := h.Catalog.Hits("/api/skills/pdf"); got != 1 {
		t.Errorf("catalog lookups = %d, want 1 with a warm cache", got)
	}

	// Entries are stored under the id as well.
	e2e.AssertSuccess(t, h.Run("show", pdfID))
	if got := h.Catalog.Hits("/api/skills/" + pdfID); got != 0 {
		t.Errorf("lookup by id should hit the cache, got %d requests", got)
	}

	result := h.Run("cache", "clear")
	e2e.AssertSuccess(t, result)
	e2e.AssertSuccess(t, h.Run("show", "pdf"))
	if got := h.Catalog.Hits("/api/skills/pdf"); got != 2 {
		t.Errorf("catalog lookups after clear = %d, want 2", got)
	}

	h.SetEnv("SKILLMASTER_CACHE_ENABLED", "false")
	e2e.AssertSuccess(t, h.Run("show", "pdf"))
	if got := h.Catalog.Hits("/api/skills/pdf"); got != 3 {
		t.Errorf("catalog lookups with cache disabled = %d, want 3", got)
	}
}

// TestSearchOutput compares the search table against a golden file.
func TestSearchOutput(t *testing.T) {
	h := newCatalogHarness(t)

	result := h.Run("search", "o")

	e2e.AssertSuccess(t, result)
	e2e.AssertOutputMatches(t, result, "testdata", "search")
}

// TestSearchCatalogDown reports a fetch error.
func TestSearchCatalogDown(t *testing.T) {
	h := newCatalogHarness(t)
	h.Catalog.SetDown(true)

	result := h.Run("search", "pdf")

	e2e.AssertError(t, result)
	e2e.AssertErrorContains(t, result, "catalog under maintenance")
}

// TestConfigRoundTrip writes settings with config set and reads them back.
func TestConfigRoundTrip(t *testing.T) {
	h := newCatalogHarness(t)

	result := h.Run("config", "path")
	e2e.AssertSuccess(t, result)
	e2e.AssertOutputContains(t, result, filepath.Join(h.ConfigDir(), "config.yaml"))

	e2e.AssertSuccess(t, h.Run("config", "set", "output.format", "yaml"))
	e2e.AssertFileContains(t, filepath.Join(h.ConfigDir(), "config.yaml"), "format: yaml")

	e2e.AssertSuccess(t, h.Run("install", "docx"))
	result = h.Run("list")
	e2e.AssertSuccess(t, result)
	e2e.AssertOutputContains(t, result, "name: docx")
	e2e.AssertOutputContains(t, result, "status: ok")
}

// TestWhere prints the install target without creating anything.
func TestWhere(t *testing.T) {
	h := newCatalogHarness(t)

	result := h.Run("where", "pdf")

	e2e.AssertSuccess(t, result)
	e2e.AssertOutputEquals(t, result, h.SkillPath(model.ScopeLocal, "pdf")+"\n")
	e2e.AssertFileNotExists(t, h.SkillPath(model.ScopeLocal, "pdf"))
}
