// Package e2e provides testing infrastructure for end-to-end CLI tests.
// It includes a test harness for running CLI commands against a local
// catalog server, fixture management, and utilities for setting up isolated
// test environments.
package e2e

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauern/skillmaster/internal/cli"
	"github.com/klauern/skillmaster/internal/manifest"
	"github.com/klauern/skillmaster/internal/model"
	"github.com/klauern/skillmaster/internal/resolver"
	"github.com/klauern/skillmaster/internal/util"
)

// Result contains the outcome of running a CLI command.
type Result struct {
	// Stdout contains the captured standard output.
	Stdout string
	// Stderr contains the captured standard error: warnings, logs and
	// download progress.
	Stderr string
	// Err is the error returned by the CLI command, if any.
	Err error
	// ExitCode is the inferred exit code (0 for success, 1 for error).
	ExitCode int
}

// Success returns true if the command completed without error.
func (r *Result) Success() bool {
	return r.Err == nil
}

// Harness provides a test harness for running E2E CLI tests.
// It manages environment isolation, temp directories, the catalog server,
// and output capture.
type Harness struct {
	t          *testing.T
	homeDir    string
	projectDir string
	globalDir  string
	configDir  string
	env        map[string]string

	// Catalog is the catalog server the CLI talks to.
	Catalog *CatalogServer
}

// NewHarness creates a new E2E test harness.
// It sets up an isolated SKILLMASTER_HOME, a project directory, a global
// skills directory and a catalog server, and points the CLI at all of them
// through the environment.
func NewHarness(t *testing.T) *Harness {
	t.Helper()

	// Create isolated home directory for this test
	homeDir := t.TempDir()

	h := &Harness{
		t:          t,
		homeDir:    homeDir,
		projectDir: filepath.Join(homeDir, "project"),
		globalDir:  filepath.Join(homeDir, ".claude", "skills"),
		configDir:  filepath.Join(homeDir, ".skillmaster"),
		env:        make(map[string]string),
		Catalog:    NewCatalogServer(t),
	}

	// Set default environment for isolation
	h.SetEnv(util.HomeEnvVar, h.configDir)
	h.SetEnv("SKILLMASTER_PROJECT_DIR", h.projectDir)
	h.SetEnv("SKILLMASTER_GLOBAL_SKILLS_DIR", h.globalDir)
	h.SetEnv("SKILLMASTER_CACHE_LOCATION", filepath.Join(homeDir, "cache"))
	h.SetEnv("SKILLMASTER_API_URL", h.Catalog.BaseURL())
	h.SetEnv("NO_COLOR", "1")

	NewFixture(t, h.projectDir).MkdirAll(".")
	return h
}

// SetEnv sets an environment variable for CLI commands run through this harness.
// The environment will be restored after the test completes.
func (h *Harness) SetEnv(key, value string) {
	h.t.Helper()
	h.env[key] = value
	h.t.Setenv(key, value)
}

// HomeDir returns the isolated home directory for this test harness.
func (h *Harness) HomeDir() string {
	return h.homeDir
}

// ProjectDir returns the project whose .claude/skills holds local installs.
func (h *Harness) ProjectDir() string {
	return h.projectDir
}

// ConfigDir returns the skillmaster configuration directory.
func (h *Harness) ConfigDir() string {
	return h.configDir
}

// SkillPath returns where a skill named name lives in a built-in scope.
func (h *Harness) SkillPath(scope model.Scope, name string) string {
	if scope == model.ScopeGlobal {
		return filepath.Join(h.globalDir, name)
	}
	return filepath.Join(util.ClaudeSkillsPath(h.projectDir), name)
}

// Registry loads the registry of scope the same way the CLI does.
func (h *Harness) Registry(scope model.Scope) *manifest.Registry {
	h.t.Helper()
	r := resolver.NewWithDirs(h.projectDir, util.ClaudeSkillsPath(h.projectDir), h.globalDir, h.configDir)
	reg, err := manifest.NewStore(r).Load(scope)
	if err != nil {
		h.t.Fatalf("failed to load %s registry: %v", scope, err)
	}
	return reg
}

// Run executes a CLI command with the given arguments and captures the output.
// Stdin is empty and not a terminal, as in a script.
func (h *Harness) Run(args ...string) *Result {
	h.t.Helper()
	return h.run("", false, args)
}

// RunWithStdin executes a CLI command as if typed at a terminal, answering
// prompts from stdin.
func (h *Harness) RunWithStdin(stdin string, args ...string) *Result {
	h.t.Helper()
	return h.run(stdin, true, args)
}

func (h *Harness) run(stdin string, terminal bool, args []string) *Result {
	h.t.Helper()

	// Prepend "skill" as the program name if not provided
	if len(args) == 0 || args[0] != "skill" {
		args = append([]string{"skill"}, args...)
	}

	var stdout, stderr bytes.Buffer
	cmdErr := cli.RunWithIO(context.Background(), args, cli.IO{
		In:       strings.NewReader(stdin),
		Out:      &stdout,
		Err:      &stderr,
		Terminal: terminal,
	})

	// Determine exit code
	exitCode := 0
	if cmdErr != nil {
		exitCode = 1
	}

	return &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Err:      cmdErr,
		ExitCode: exitCode,
	}
}
