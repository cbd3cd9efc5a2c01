package skills

import (
	"bytes"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Frontmatter is the YAML header of a SKILL.md file.
type Frontmatter struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	License     string `yaml:"license,omitempty"`

	// Extra holds the remaining keys.
	Extra map[string]any `yaml:",inline"`
}

var (
	// ErrNoFrontmatter is returned when SKILL.md does not open with a
	// terminated "---" block.
	ErrNoFrontmatter = errors.New("SKILL.md has no frontmatter")
	// ErrMissingName is returned when the frontmatter has no name.
	ErrMissingName = errors.New("SKILL.md frontmatter has no name")
)

var delimiter = []byte("---")

// SplitFrontmatter separates a leading "---" delimited block from the rest
// of content. CRLF line endings and a UTF-8 byte order mark are accepted.
func SplitFrontmatter(content []byte) (header, body []byte, ok bool) {
	content = bytes.TrimPrefix(content, []byte("\xef\xbb\xbf"))
	rest, found := cutLine(content, delimiter)
	if !found {
		return nil, content, false
	}

	for off := 0; off < len(rest); {
		if after, found := cutLine(rest[off:], delimiter); found {
			return bytes.ReplaceAll(rest[:off], []byte("\r\n"), []byte("\n")), after, true
		}
		nl := bytes.IndexByte(rest[off:], '\n')
		if nl == -1 {
			break
		}
		off += nl + 1
	}
	return nil, content, false
}

// cutLine reports whether b starts with a line holding exactly line, and
// returns what follows that line.
func cutLine(b, line []byte) ([]byte, bool) {
	if !bytes.HasPrefix(b, line) {
		return b, false
	}
	rest := b[len(line):]
	switch {
	case len(rest) == 0:
		return rest, true
	case bytes.HasPrefix(rest, []byte("\r\n")):
		return rest[2:], true
	case rest[0] == '\n':
		return rest[1:], true
	}
	return b, false
}

// ParseFrontmatter decodes the frontmatter of SKILL.md content.
func ParseFrontmatter(content []byte) (Frontmatter, error) {
	var fm Frontmatter
	header, _, ok := SplitFrontmatter(content)
	if !ok {
		return fm, ErrNoFrontmatter
	}
	if err := yaml.Unmarshal(header, &fm); err != nil {
		return fm, fmt.Errorf("parse SKILL.md frontmatter: %w", err)
	}
	return fm, nil
}

// CheckSkillFile verifies that SKILL.md content declares the skill name.
func CheckSkillFile(content []byte, name string) error {
	fm, err := ParseFrontmatter(content)
	if err != nil {
		return err
	}
	if fm.Name == "" {
		return ErrMissingName
	}
	if fm.Name != name {
		return fmt.Errorf("SKILL.md declares name %q, want %q", fm.Name, name)
	}
	return nil
}
