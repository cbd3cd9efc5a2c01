package archive

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func skillFiles(prefix string) []Entry {
	return []Entry{
		{Path: prefix + "SKILL.md", Content: []byte("# PDF\n")},
		{Path: prefix + "scripts/run.sh", Content: []byte("#!/bin/sh\n"), Mode: 0o755},
		{Path: prefix + "reference/forms.md", Content: []byte("forms")},
	}
}

// rawTarGzip writes headers exactly as given, bypassing CreateTarGzip.
func rawTarGzip(t *testing.T, headers ...*tar.Header) []byte {
	t.Helper()
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gw)
	for _, h := range headers {
		require.NoError(t, tw.WriteHeader(h))
		if h.Typeflag == tar.TypeReg && h.Size > 0 {
			_, err := tw.Write(bytes.Repeat([]byte("x"), int(h.Size)))
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gw.Close())
	return buf.Bytes()
}

func TestDetect(t *testing.T) {
	t.Parallel()

	tgz, err := CreateTarGzip(skillFiles(""))
	require.NoError(t, err)
	zipped, err := CreateZip(skillFiles(""))
	require.NoError(t, err)

	var plain bytes.Buffer
	tw := tar.NewWriter(&plain)
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "SKILL.md", Mode: 0o644, Size: 1, Typeflag: tar.TypeReg}))
	_, err = tw.Write([]byte("x"))
	require.NoError(t, err)
	require.NoError(t, tw.Close())

	tests := map[string]struct {
		data []byte
		want Format
	}{
		"tar.gz":   {data: tgz, want: FormatTarGzip},
		"zip":      {data: zipped, want: FormatZip},
		"tar":      {data: plain.Bytes(), want: FormatTar},
		"text":     {data: []byte("<html>not found</html>"), want: FormatUnknown},
		"empty":    {data: nil, want: FormatUnknown},
		"one byte": {data: []byte{0x1f}, want: FormatUnknown},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Detect(tt.data))
		})
	}
}

func TestExtract_Formats(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		create func([]Entry) ([]byte, error)
		prefix string
	}{
		"tar.gz flat":         {create: CreateTarGzip, prefix: ""},
		"tar.gz wrapped":      {create: CreateTarGzip, prefix: "pdf-main/"},
		"zip flat":            {create: CreateZip, prefix: ""},
		"zip wrapped":         {create: CreateZip, prefix: "pdf-main/"},
		"tar.gz dot prefixed": {create: CreateTarGzip, prefix: "./"},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			data, err := tt.create(skillFiles(tt.prefix))
			require.NoError(t, err)

			entries, err := Extract(data)
			require.NoError(t, err)

			paths := make([]string, 0, len(entries))
			for _, e := range entries {
				paths = append(paths, e.Path)
			}
			assert.Equal(t, []string{"SKILL.md", "reference/forms.md", "scripts/run.sh"}, paths)
			assert.Equal(t, []byte("# PDF\n"), entries[0].Content)
		})
	}
}

func TestExtract_KeepsMixedRoots(t *testing.T) {
	t.Parallel()

	data, err := CreateTarGzip([]Entry{
		{Path: "docs/a.md", Content: []byte("a")},
		{Path: "src/b.go", Content: []byte("b")},
	})
	require.NoError(t, err)

	entries, err := Extract(data)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "docs/a.md", entries[0].Path)
	assert.Equal(t, "src/b.go", entries[1].Path)
}

func TestExtract_RejectsUnsafeTarEntries(t *testing.T) {
	t.Parallel()

	tests := map[string]*tar.Header{
		"traversal":      {Name: "../evil", Mode: 0o644, Size: 1, Typeflag: tar.TypeReg},
		"deep traversal": {Name: "a/../../evil", Mode: 0o644, Size: 1, Typeflag: tar.TypeReg},
		"absolute":       {Name: "/etc/passwd", Mode: 0o644, Size: 1, Typeflag: tar.TypeReg},
		"symlink":        {Name: "link", Linkname: "/etc/passwd", Typeflag: tar.TypeSymlink},
		"hardlink":       {Name: "hard", Linkname: "SKILL.md", Typeflag: tar.TypeLink},
		"char device":    {Name: "dev", Typeflag: tar.TypeChar},
		"fifo":           {Name: "pipe", Typeflag: tar.TypeFifo},
	}

	for name, hdr := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			data := rawTarGzip(t, hdr)
			_, err := Extract(data)
			assert.ErrorIs(t, err, ErrUnsafeEntry)
		})
	}
}

func TestExtract_RejectsUnsafeZipEntries(t *testing.T) {
	t.Parallel()

	tests := map[string]func(*zip.Writer) error{
		"traversal": func(zw *zip.Writer) error {
			_, err := zw.Create("../evil")
			return err
		},
		"windows traversal": func(zw *zip.Writer) error {
			_, err := zw.Create(`..\evil`)
			return err
		},
		"symlink": func(zw *zip.Writer) error {
			hdr := &zip.FileHeader{Name: "link"}
			hdr.SetMode(os.ModeSymlink | 0o777)
			w, err := zw.CreateHeader(hdr)
			if err != nil {
				return err
			}
			_, err = w.Write([]byte("/etc/passwd"))
			return err
		},
	}

	for name, write := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			zw := zip.NewWriter(&buf)
			require.NoError(t, write(zw))
			require.NoError(t, zw.Close())

			_, err := Extract(buf.Bytes())
			assert.ErrorIs(t, err, ErrUnsafeEntry)
		})
	}
}

func TestExtract_Limits(t *testing.T) {
	t.Parallel()

	data, err := CreateTarGzip([]Entry{
		{Path: "SKILL.md", Content: bytes.Repeat([]byte("a"), 64)},
		{Path: "b.md", Content: bytes.Repeat([]byte("b"), 64)},
	})
	require.NoError(t, err)

	tests := map[string]Limits{
		"file size":  {MaxFileSize: 32, MaxTotalSize: 1024, MaxFiles: 10},
		"total size": {MaxFileSize: 100, MaxTotalSize: 100, MaxFiles: 10},
		"file count": {MaxFileSize: 100, MaxTotalSize: 1024, MaxFiles: 1},
	}

	for name, limits := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := ExtractWithLimits(data, limits)
			assert.ErrorIs(t, err, ErrTooLarge)
		})
	}

	entries, err := ExtractWithLimits(data, Limits{MaxFileSize: 64, MaxTotalSize: 128, MaxFiles: 2})
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestExtract_Unsupported(t *testing.T) {
	t.Parallel()

	_, err := Extract([]byte("plain text body"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestExtract_CorruptGzip(t *testing.T) {
	t.Parallel()

	_, err := Extract([]byte{0x1f, 0x8b, 0x00, 0x01, 0x02})
	assert.Error(t, err)
}

func TestExtractTo(t *testing.T) {
	t.Parallel()

	data, err := CreateZip(skillFiles("repo-1234/"))
	require.NoError(t, err)

	dir := t.TempDir()
	n, err := ExtractTo(data, dir)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	content, err := os.ReadFile(filepath.Join(dir, "SKILL.md"))
	require.NoError(t, err)
	assert.Equal(t, "# PDF\n", string(content))

	info, err := os.Stat(filepath.Join(dir, "scripts", "run.sh"))
	require.NoError(t, err)
	assert.NotZero(t, info.Mode().Perm()&0o100, "executable bit should be kept")

	info, err = os.Stat(filepath.Join(dir, "reference", "forms.md"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm()&0o755)
}

func TestWriteEntries_RejectsEscape(t *testing.T) {
	t.Parallel()

	err := WriteEntries([]Entry{{Path: "../outside", Content: []byte("x")}}, t.TempDir())
	assert.ErrorIs(t, err, ErrUnsafeEntry)
}

func TestCreateTarGzip_Reproducible(t *testing.T) {
	t.Parallel()

	a, err := CreateTarGzip(skillFiles(""))
	require.NoError(t, err)

	reversed := skillFiles("")
	reversed[0], reversed[2] = reversed[2], reversed[0]
	b, err := CreateTarGzip(reversed)
	require.NoError(t, err)

	assert.Equal(t, a, b)
}
