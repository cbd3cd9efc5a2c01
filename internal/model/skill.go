package model

import (
	"bytes"
	"encoding/json"
	"time"
)

// SkillRecord is one installed skill as tracked by a scope's registry.
type SkillRecord struct {
	Name          string    `yaml:"name" json:"name"`
	InstalledPath string    `yaml:"installed_path" json:"installed_path"`
	Scope         Scope     `yaml:"scope" json:"scope"`
	InstalledAt   time.Time `yaml:"installed_at" json:"installed_at"`

	// SourceVersion is the catalog version the files were installed from.
	SourceVersion string `yaml:"source_version,omitempty" json:"source_version,omitempty"`
	// Checksum is the digest (sha256:<hex>) of the fetched package archive.
	Checksum string `yaml:"checksum,omitempty" json:"checksum,omitempty"`
	// CatalogID is the catalog identifier of the skill, when known.
	CatalogID string `yaml:"catalog_id,omitempty" json:"catalog_id,omitempty"`
}

// InstalledSkill is the outcome of a successful install.
type InstalledSkill struct {
	SkillRecord

	// Replaced is true when an existing installation was overwritten.
	Replaced bool `json:"replaced,omitempty"`
	// PreviousVersion is the version recorded for the replaced installation.
	PreviousVersion string `json:"previous_version,omitempty"`
	// Unmanaged is a directory the registry recorded for this name before
	// the install moved the record to a new path. It is left on disk.
	Unmanaged string `json:"unmanaged,omitempty"`
}

// Tag is a catalog label attached to a skill.
type Tag struct {
	Name string `json:"name"`
}

// CatalogSkill is the catalog's description of a skill.
type CatalogSkill struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Description   string  `json:"description,omitempty"`
	Version       string  `json:"version,omitempty"`
	AverageRating float64 `json:"average_rating"`
	RatingCount   int     `json:"rating_count"`
	CommentCount  int     `json:"comment_count"`
	TutorialCount int     `json:"tutorial_count"`
	GitHubStars   int     `json:"github_stars"`
	FileSizeMB    float64 `json:"file_size_mb"`
	Tags          []Tag   `json:"tags,omitempty"`
	SourceURL     string  `json:"source_url,omitempty"`
	DownloadURL   string  `json:"download_url,omitempty"`

	// DirectoryStructure lists the package contents, when the catalog has it.
	DirectoryStructure *DirectoryStructure `json:"directory_structure,omitempty"`
}

// TagNames returns the names of the skill's tags.
func (s CatalogSkill) TagNames() []string {
	names := make([]string, 0, len(s.Tags))
	for _, t := range s.Tags {
		names = append(names, t.Name)
	}
	return names
}

// DirEntry is a file or directory in a package listing.
type DirEntry struct {
	Name     string     `json:"name"`
	Type     string     `json:"type"` // "directory" or "file"
	Size     int64      `json:"size,omitempty"`
	Children []DirEntry `json:"children,omitempty"`
}

// IsDir reports whether the entry is a directory.
func (e DirEntry) IsDir() bool {
	return e.Type == "directory"
}

// DirectoryStructure is the catalog's listing of a skill package.
type DirectoryStructure struct {
	Root     string     `json:"root"`
	Children []DirEntry `json:"children,omitempty"`
}

// UnmarshalJSON accepts the listing as an object or as a string holding
// JSON. A listing that cannot be decoded is left empty rather than failing
// the whole skill.
func (d *DirectoryStructure) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var inner string
		if err := json.Unmarshal(data, &inner); err != nil {
			return nil
		}
		data = []byte(inner)
	}

	type plain DirectoryStructure
	var v plain
	if err := json.Unmarshal(data, &v); err != nil {
		*d = DirectoryStructure{}
		return nil
	}
	*d = DirectoryStructure(v)
	return nil
}

// Empty reports whether the listing has nothing to show.
func (d *DirectoryStructure) Empty() bool {
	return d == nil || (d.Root == "" && len(d.Children) == 0)
}
