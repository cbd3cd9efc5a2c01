package progress

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

func TestBar_DisabledForNonTerminal(t *testing.T) {
	var out bytes.Buffer
	bar := New(Options{Max: 10, Description: "Downloading pdf", Writer: &out})

	if bar.Enabled() {
		t.Fatal("bar should be disabled for a non-terminal writer")
	}

	src := strings.NewReader("0123456789")
	if _, err := io.Copy(io.Discard, io.TeeReader(src, bar)); err != nil {
		t.Fatal(err)
	}
	if err := bar.Finish(); err != nil {
		t.Fatal(err)
	}

	if bar.Written() != 10 {
		t.Errorf("Written() = %d, want 10", bar.Written())
	}
	if out.Len() != 0 {
		t.Errorf("disabled bar wrote output: %q", out.String())
	}
}

func TestBar_Forced(t *testing.T) {
	var out bytes.Buffer
	bar := New(Options{Max: -1, Description: "Downloading", Writer: &out, Force: true})

	if !bar.Enabled() {
		t.Fatal("forced bar should be enabled")
	}

	n, err := bar.Write([]byte("abcdef"))
	if err != nil || n != 6 {
		t.Fatalf("Write() = %d, %v", n, err)
	}
	bar.Describe("Extracting")
	if err := bar.Finish(); err != nil {
		t.Fatal(err)
	}

	if bar.Written() != 6 {
		t.Errorf("Written() = %d, want 6", bar.Written())
	}
	if !strings.Contains(out.String(), "Downloading") {
		t.Errorf("output missing description: %q", out.String())
	}
}
