package e2e

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/klauern/skillmaster/internal/archive"
	"github.com/klauern/skillmaster/internal/model"
)

// CatalogServer serves the catalog HTTP API from memory.
//
//	GET /api/skills/search?q=&limit=   {"skills": [...]}
//	GET /api/skills/{ref}              skill metadata by name or id
//	GET /api/skills/{ref}/download     tar.gz package
type CatalogServer struct {
	*httptest.Server

	mu       sync.Mutex
	skills   map[string]model.CatalogSkill
	packages map[string][]byte
	hits     map[string]int
	down     bool
}

// NewCatalogServer starts an empty catalog that is closed with the test.
func NewCatalogServer(t *testing.T) *CatalogServer {
	t.Helper()
	s := &CatalogServer{
		skills:   map[string]model.CatalogSkill{},
		packages: map[string][]byte{},
		hits:     map[string]int{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/skills/search", s.handleSearch)
	mux.HandleFunc("GET /api/skills/{ref}", s.handleLookup)
	mux.HandleFunc("GET /api/skills/{ref}/download", s.handleDownload)

	s.Server = httptest.NewServer(s.available(mux))
	t.Cleanup(s.Close)
	return s
}

// BaseURL is the value for api.base_url.
func (s *CatalogServer) BaseURL() string {
	return s.URL + "/api"
}

// AddSkill publishes skill with a package built from files (relative path to
// content). A SKILL.md is added when files has none.
func (s *CatalogServer) AddSkill(skill model.CatalogSkill, files map[string]string) *CatalogServer {
	entries := []archive.Entry{}
	if _, ok := files["SKILL.md"]; !ok {
		entries = append(entries, archive.Entry{
			Path:    "SKILL.md",
			Content: []byte("---\nname: " + skill.Name + "\ndescription: " + skill.Description + "\n---\n"),
		})
	}
	for p, content := range files {
		entries = append(entries, archive.Entry{Path: p, Content: []byte(content)})
	}
	data, err := archive.CreateTarGzip(entries)
	if err != nil {
		panic(err)
	}
	return s.AddPackage(skill, data)
}

// AddPackage publishes skill with raw package bytes.
func (s *CatalogServer) AddPackage(skill model.CatalogSkill, data []byte) *CatalogServer {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range []string{skill.Name, skill.ID} {
		if key != "" {
			s.skills[strings.ToLower(key)] = skill
			s.packages[strings.ToLower(key)] = data
		}
	}
	return s
}

// SetDown makes every request fail with 503 until called with false.
func (s *CatalogServer) SetDown(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.down = down
}

// Hits returns how many requests reached path, e.g. "/api/skills/pdf".
func (s *CatalogServer) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

func (s *CatalogServer) available(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[r.URL.Path]++
		down := s.down
		s.mu.Unlock()

		if down {
			http.Error(w, "catalog under maintenance", http.StatusServiceUnavailable)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *CatalogServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.ToLower(r.URL.Query().Get("q"))
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = 20
	}

	s.mu.Lock()
	seen := map[string]bool{}
	results := []model.CatalogSkill{}
	for _, skill := range s.skills {
		if seen[skill.Name] {
			continue
		}
		if strings.Contains(strings.ToLower(skill.Name), q) || strings.Contains(strings.ToLower(skill.Description), q) {
			seen[skill.Name] = true
			results = append(results, skill)
		}
	}
	s.mu.Unlock()

	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })
	if len(results) > limit {
		results = results[:limit]
	}
	writeJSON(w, map[string]any{"skills": results})
}

func (s *CatalogServer) handleLookup(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	skill, ok := s.skills[strings.ToLower(r.PathValue("ref"))]
	s.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, skill)
}

func (s *CatalogServer) handleDownload(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	data, ok := s.packages[strings.ToLower(r.PathValue("ref"))]
	s.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/gzip")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, _ = w.Write(data)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
