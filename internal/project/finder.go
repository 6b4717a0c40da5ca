package project

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	// AssetsDir and SettingsDir must both be immediate children of a project root.
	AssetsDir   = "Assets"
	SettingsDir = "ProjectSettings"

	DefaultMaxDepth = 3
)

// DefaultSkipDirs lists directory names that never contain a project root.
func DefaultSkipDirs() []string {
	return []string{
		"Library",
		"Temp",
		"Logs",
		"obj",
		"Build",
		"Builds",
		"UserSettings",
		"MemoryCaptures",
		"PackageCache",
		"node_modules",
	}
}

// Location is the root directory of a project inside a workspace.
type Location struct {
	Path  string `json:"path"`
	Depth int    `json:"depth"`
}

// Finder locates the project root inside an acquired workspace.
type Finder struct {
	MaxDepth int
	Skip     []string
}

// NewFinder returns a Finder with the default depth and denylist.
func NewFinder() *Finder {
	return &Finder{MaxDepth: DefaultMaxDepth, Skip: DefaultSkipDirs()}
}

// Locate returns the workspace root when it is a project, otherwise the
// shallowest qualifying directory within MaxDepth. Ties at one depth go to
// the lexically first path.
func (f *Finder) Locate(root string) (*Location, bool) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, false
	}
	if IsProjectRoot(abs) {
		return &Location{Path: abs}, true
	}

	level := []string{abs}
	for depth := 1; depth <= f.MaxDepth && len(level) > 0; depth++ {
		var next []string
		for _, dir := range level {
			for _, child := range f.children(dir) {
				if IsProjectRoot(child) {
					return &Location{Path: child, Depth: depth}, true
				}
				next = append(next, child)
			}
		}
		level = next
	}
	return nil, false
}

// children lists the searchable subdirectories of dir. os.ReadDir returns
// entries sorted by filename.
func (f *Finder) children(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() || f.skipped(e.Name()) {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	return out
}

func (f *Finder) skipped(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	for _, s := range f.Skip {
		if name == s {
			return true
		}
	}
	return false
}

// IsProjectRoot reports whether dir directly contains both canonical directories.
func IsProjectRoot(dir string) bool {
	return isDir(filepath.Join(dir, AssetsDir)) && isDir(filepath.Join(dir, SettingsDir))
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
