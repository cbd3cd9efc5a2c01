// Package catalog talks to the remote skill catalog: metadata lookup,
// search, and package download.
package catalog

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/opencontainers/go-digest"

	"github.com/klauern/skillmaster/internal/model"
)

// Fetcher resolves a skill reference (name or catalog id) and downloads its package.
type Fetcher interface {
	Lookup(ctx context.Context, ref string) (*model.CatalogSkill, error)
	FetchPackage(ctx context.Context, ref string) (*Package, error)
}

// Searcher queries the catalog.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]model.CatalogSkill, error)
}

// Package is a downloaded skill archive with the metadata it was fetched for.
type Package struct {
	Skill model.CatalogSkill
	Data  []byte
}

// Digest returns the content digest of the archive bytes.
func (p *Package) Digest() digest.Digest {
	return digest.FromBytes(p.Data)
}

// IsID reports whether ref looks like a catalog id rather than a skill name.
func IsID(ref string) bool {
	_, err := uuid.Parse(strings.TrimSpace(ref))
	return err == nil
}
