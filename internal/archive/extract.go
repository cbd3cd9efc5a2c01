// Package archive unpacks skill packages downloaded from the catalog.
//
// Packages are gzip-compressed tarballs or zip files. Entries are validated
// before anything is written: absolute paths, parent-directory escapes,
// links and device nodes are rejected, and sizes are capped to stop
// decompression bombs.
package archive

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// Format identifies a package encoding.
type Format string

const (
	FormatUnknown Format = ""
	FormatTarGzip Format = "tar.gz"
	FormatTar     Format = "tar"
	FormatZip     Format = "zip"
)

const (
	// MaxFileSize is the largest single file accepted (100MB).
	MaxFileSize = 100 * 1024 * 1024
	// MaxTotalSize caps the sum of all extracted files.
	MaxTotalSize = 200 * 1024 * 1024
	// MaxFiles caps the number of entries in one package.
	MaxFiles = 10000
)

var (
	// ErrUnsupportedFormat is returned when the data is neither gzip, tar nor zip.
	ErrUnsupportedFormat = errors.New("unsupported archive format")
	// ErrUnsafeEntry is returned for entries that could escape the target directory.
	ErrUnsafeEntry = errors.New("unsafe archive entry")
	// ErrTooLarge is returned when a size or count limit is exceeded.
	ErrTooLarge = errors.New("archive exceeds size limits")
)

// Limits bounds what an archive may contain.
type Limits struct {
	MaxFileSize  int64
	MaxTotalSize int64
	MaxFiles     int
}

// DefaultLimits returns the limits used by Extract.
func DefaultLimits() Limits {
	return Limits{
		MaxFileSize:  MaxFileSize,
		MaxTotalSize: MaxTotalSize,
		MaxFiles:     MaxFiles,
	}
}

// Entry is one regular file from an archive.
type Entry struct {
	Path    string // slash-separated, relative
	Mode    fs.FileMode
	Content []byte
}

// Detect identifies the archive format from its leading bytes.
func Detect(data []byte) Format {
	switch {
	case len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b:
		return FormatTarGzip
	case len(data) >= 4 && bytes.Equal(data[:4], []byte("PK\x03\x04")),
		len(data) >= 4 && bytes.Equal(data[:4], []byte("PK\x05\x06")):
		return FormatZip
	case len(data) >= 262 && bytes.Equal(data[257:262], []byte("ustar")):
		return FormatTar
	default:
		return FormatUnknown
	}
}

// Extract decodes data with the default limits.
func Extract(data []byte) ([]Entry, error) {
	return ExtractWithLimits(data, DefaultLimits())
}

// ExtractWithLimits decodes data, validates every entry and strips a single
// top-level directory that wraps the whole package.
func ExtractWithLimits(data []byte, limits Limits) ([]Entry, error) {
	var (
		entries []Entry
		err     error
	)
	switch Detect(data) {
	case FormatTarGzip:
		entries, err = extractTarGzip(data, limits)
	case FormatTar:
		entries, err = extractTar(bytes.NewReader(data), limits)
	case FormatZip:
		entries, err = extractZip(data, limits)
	default:
		return nil, ErrUnsupportedFormat
	}
	if err != nil {
		return nil, err
	}

	entries = stripCommonRoot(entries)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

// ExtractTo unpacks data into dir, which must already exist.
// It returns the number of files written.
func ExtractTo(data []byte, dir string) (int, error) {
	entries, err := Extract(data)
	if err != nil {
		return 0, err
	}
	return len(entries), WriteEntries(entries, dir)
}

// WriteEntries writes entries below dir.
func WriteEntries(entries []Entry, dir string) error {
	root, err := filepath.Abs(dir)
	if err != nil {
		return err
	}

	for _, e := range entries {
		target := filepath.Join(root, filepath.FromSlash(e.Path))
		rel, err := filepath.Rel(root, target)
		if err != nil || rel == "." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || rel == ".." {
			return fmt.Errorf("%w: %s", ErrUnsafeEntry, e.Path)
		}

		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("creating directory for %s: %w", e.Path, err)
		}
		// #nosec G304 - target is validated to stay below root
		f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, normalizeMode(e.Mode))
		if err != nil {
			return fmt.Errorf("creating %s: %w", e.Path, err)
		}
		if _, err := f.Write(e.Content); err != nil {
			_ = f.Close()
			return fmt.Errorf("writing %s: %w", e.Path, err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("closing %s: %w", e.Path, err)
		}
	}
	return nil
}

func extractTarGzip(data []byte, limits Limits) ([]Entry, error) {
	gr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating gzip reader: %w", err)
	}
	defer func() { _ = gr.Close() }()
	return extractTar(gr, limits)
}

func extractTar(r io.Reader, limits Limits) ([]Entry, error) {
	tr := tar.NewReader(r)
	var (
		entries []Entry
		total   int64
	)

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading tar header: %w", err)
		}

		name, err := cleanEntryPath(hdr.Name)
		if err != nil {
			return nil, err
		}

		switch hdr.Typeflag {
		case tar.TypeDir, tar.TypeXGlobalHeader:
			continue
		case tar.TypeReg:
		case tar.TypeSymlink, tar.TypeLink:
			return nil, fmt.Errorf("%w: link %s", ErrUnsafeEntry, hdr.Name)
		default:
			return nil, fmt.Errorf("%w: entry type %d for %s", ErrUnsafeEntry, hdr.Typeflag, hdr.Name)
		}

		if hdr.Size > limits.MaxFileSize {
			return nil, fmt.Errorf("%w: %s is %d bytes", ErrTooLarge, hdr.Name, hdr.Size)
		}
		content, err := readLimited(tr, limits.MaxFileSize)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", hdr.Name, err)
		}

		total += int64(len(content))
		if total > limits.MaxTotalSize || len(entries) >= limits.MaxFiles {
			return nil, ErrTooLarge
		}
		entries = append(entries, Entry{
			Path:    name,
			Mode:    fs.FileMode(hdr.Mode).Perm(),
			Content: content,
		})
	}
	return entries, nil
}

func extractZip(data []byte, limits Limits) ([]Entry, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if errors.Is(err, zip.ErrInsecurePath) {
		return nil, fmt.Errorf("%w: %v", ErrUnsafeEntry, err)
	}
	if err != nil {
		return nil, fmt.Errorf("opening zip: %w", err)
	}
	if len(zr.File) > limits.MaxFiles {
		return nil, ErrTooLarge
	}

	var (
		entries []Entry
		total   int64
	)
	for _, f := range zr.File {
		name, err := cleanEntryPath(f.Name)
		if err != nil {
			return nil, err
		}

		mode := f.Mode()
		switch {
		case mode.IsDir():
			continue
		case mode&fs.ModeSymlink != 0:
			return nil, fmt.Errorf("%w: link %s", ErrUnsafeEntry, f.Name)
		case !mode.IsRegular():
			return nil, fmt.Errorf("%w: special file %s", ErrUnsafeEntry, f.Name)
		}

		if f.UncompressedSize64 > uint64(limits.MaxFileSize) {
			return nil, fmt.Errorf("%w: %s is %d bytes", ErrTooLarge, f.Name, f.UncompressedSize64)
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", f.Name, err)
		}
		content, err := readLimited(rc, limits.MaxFileSize)
		_ = rc.Close()
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", f.Name, err)
		}

		total += int64(len(content))
		if total > limits.MaxTotalSize {
			return nil, ErrTooLarge
		}
		entries = append(entries, Entry{
			Path:    name,
			Mode:    mode.Perm(),
			Content: content,
		})
	}
	return entries, nil
}

func readLimited(r io.Reader, limit int64) ([]byte, error) {
	content, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(content)) > limit {
		return nil, ErrTooLarge
	}
	return content, nil
}

// cleanEntryPath normalizes an archive path and rejects anything that
// would land outside the extraction root.
func cleanEntryPath(name string) (string, error) {
	if strings.ContainsRune(name, 0) {
		return "", fmt.Errorf("%w: NUL in path %q", ErrUnsafeEntry, name)
	}
	p := strings.ReplaceAll(name, `\`, "/")
	if path.IsAbs(p) || (len(p) >= 2 && p[1] == ':') {
		return "", fmt.Errorf("%w: absolute path %s", ErrUnsafeEntry, name)
	}
	cleaned := path.Clean(p)
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: path traversal %s", ErrUnsafeEntry, name)
	}
	return cleaned, nil
}

// stripCommonRoot removes a leading directory shared by every entry, as
// produced by repository snapshot downloads.
func stripCommonRoot(entries []Entry) []Entry {
	if len(entries) == 0 {
		return entries
	}

	var root string
	for _, e := range entries {
		first, _, ok := strings.Cut(e.Path, "/")
		if !ok {
			return entries
		}
		if root == "" {
			root = first
		} else if first != root {
			return entries
		}
	}

	prefix := root + "/"
	out := make([]Entry, len(entries))
	for i, e := range entries {
		e.Path = strings.TrimPrefix(e.Path, prefix)
		out[i] = e
	}
	return out
}

func normalizeMode(m fs.FileMode) fs.FileMode {
	if m&0o111 != 0 {
		return 0o755
	}
	return 0o644
}
