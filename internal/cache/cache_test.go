package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauern/skillmaster/internal/model"
)

func testSkill() model.CatalogSkill {
	return model.CatalogSkill{
		ID:          "0b8e1c52-7d55-4c3a-9a43-6c2f0f0d1a11",
		Name:        "pdf",
		Description: "Work with PDF files",
		Version:     "1.2.0",
	}
}

func TestNew(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "cache")

	c, err := New("catalog", dir, 0)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if _, err := os.Stat(dir); err != nil {
		t.Errorf("cache directory was not created: %v", err)
	}
	if c.Path() != filepath.Join(dir, "catalog.json") {
		t.Errorf("Path() = %q", c.Path())
	}
	if c.ttl != DefaultTTL {
		t.Errorf("ttl = %v, want %v", c.ttl, DefaultTTL)
	}
	if c.Size() != 0 {
		t.Errorf("Size() = %d, want 0", c.Size())
	}
}

func TestSetAndGet(t *testing.T) {
	c, err := New("catalog", t.TempDir(), time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	skill := testSkill()
	c.Set("PDF", skill)

	tests := map[string]string{
		"original key":   "PDF",
		"normalized key": " pdf ",
		"by id":          skill.ID,
	}
	for name, key := range tests {
		t.Run(name, func(t *testing.T) {
			got, ok := c.Get(key)
			if !ok {
				t.Fatalf("Get(%q) missed", key)
			}
			if got.Version != "1.2.0" {
				t.Errorf("Version = %q, want 1.2.0", got.Version)
			}
		})
	}

	if _, ok := c.Get("docx"); ok {
		t.Error("Get() should miss for unknown key")
	}
}

func TestGet_Expired(t *testing.T) {
	c, err := New("catalog", t.TempDir(), time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	c.Set("pdf", testSkill())

	now = now.Add(2 * time.Minute)
	if _, ok := c.Get("pdf"); ok {
		t.Error("Get() should miss for an expired entry")
	}
	if _, ok := c.Entries["pdf"]; ok {
		t.Error("expired entry should be evicted on Get()")
	}
}

func TestSaveAndReload(t *testing.T) {
	dir := t.TempDir()

	c1, err := New("catalog", dir, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	c1.Set("pdf", testSkill())
	if err := c1.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	c2, err := New("catalog", dir, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if got, ok := c2.Get("pdf"); !ok || got.Name != "pdf" {
		t.Errorf("reloaded Get() = %+v, %v", got, ok)
	}
}

func TestNew_CorruptFileStartsFresh(t *testing.T) {
	tests := map[string]string{
		"invalid json": "{not json",
		"old version":  `{"version":"0","entries":{"pdf":{"skill":{"name":"pdf"}}}}`,
		"null entries": `{"version":"1","entries":null}`,
	}

	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			if err := os.WriteFile(filepath.Join(dir, "catalog.json"), []byte(content), 0o644); err != nil {
				t.Fatal(err)
			}

			c, err := New("catalog", dir, time.Hour)
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if c.Size() != 0 {
				t.Errorf("Size() = %d, want 0", c.Size())
			}
			if c.Version != cacheVersion {
				t.Errorf("Version = %q, want %q", c.Version, cacheVersion)
			}
		})
	}
}

func TestPrune(t *testing.T) {
	c, err := New("catalog", t.TempDir(), time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	c.Set("old", model.CatalogSkill{Name: "old"})

	now = now.Add(5 * time.Minute)
	c.Set("new", model.CatalogSkill{Name: "new"})

	if pruned := c.Prune(); pruned != 1 {
		t.Errorf("Prune() = %d, want 1", pruned)
	}
	if c.Size() != 1 {
		t.Errorf("Size() = %d, want 1", c.Size())
	}
}

func TestClear(t *testing.T) {
	c, err := New("catalog", t.TempDir(), time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	if err := c.Clear(); err != nil {
		t.Errorf("Clear() without file should not error: %v", err)
	}

	c.Set("pdf", testSkill())
	if err := c.Save(); err != nil {
		t.Fatal(err)
	}
	if err := c.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if c.Size() != 0 {
		t.Errorf("Size() = %d after Clear()", c.Size())
	}
	if _, err := os.Stat(c.Path()); !os.IsNotExist(err) {
		t.Error("cache file should be removed")
	}
}
