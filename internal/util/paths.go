// Package util provides path helpers shared across skillmaster packages.
//
//nolint:revive // var-naming - package name is meaningful
package util

import (
	"os"
	"path/filepath"
	"strings"
)

// HomeEnvVar overrides the skillmaster configuration directory.
const HomeEnvVar = "SKILLMASTER_HOME"

// HomeDir returns the user's home directory
func HomeDir() string {
	home, _ := os.UserHomeDir()
	return home
}

// ConfigDir returns the skillmaster configuration directory.
// SKILLMASTER_HOME takes precedence over ~/.skillmaster.
func ConfigDir() string {
	if v := strings.TrimSpace(os.Getenv(HomeEnvVar)); v != "" {
		return ExpandPath(v, "")
	}
	return filepath.Join(HomeDir(), ".skillmaster")
}

// ClaudeSkillsPath returns the Claude skills directory below root.
func ClaudeSkillsPath(root string) string {
	return filepath.Join(root, ".claude", "skills")
}

// ExpandPath expands a leading ~ to the home directory and resolves relative
// paths against baseDir. An empty baseDir leaves relative paths relative.
func ExpandPath(p, baseDir string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}

	if p == "~" {
		return HomeDir()
	}
	if strings.HasPrefix(p, "~/") || strings.HasPrefix(p, "~"+string(filepath.Separator)) {
		return filepath.Join(HomeDir(), p[2:])
	}

	if !filepath.IsAbs(p) && baseDir != "" {
		return filepath.Join(baseDir, p)
	}
	return filepath.Clean(p)
}

// ShortenHome replaces the home directory prefix of p with ~ for display.
func ShortenHome(p string) string {
	home := HomeDir()
	if home == "" || p == "" {
		return p
	}
	if p == home {
		return "~"
	}
	if strings.HasPrefix(p, home+string(filepath.Separator)) {
		return "~" + p[len(home):]
	}
	return p
}
