package project

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkdirs(t *testing.T, base string, dirs ...string) {
	t.Helper()
	for _, d := range dirs {
		require.NoError(t, os.MkdirAll(filepath.Join(base, d), 0755))
	}
}

func TestLocate_Root(t *testing.T) {
	dir := t.TempDir()
	mkdirs(t, dir, "Assets", "ProjectSettings", "nested/Assets", "nested/ProjectSettings")

	loc, ok := NewFinder().Locate(dir)
	require.True(t, ok)
	assert.Equal(t, dir, loc.Path, "root is preferred over nested matches")
	assert.Equal(t, 0, loc.Depth)
}

func TestLocate_NoProject(t *testing.T) {
	dir := t.TempDir()
	mkdirs(t, dir, "docs", "src/Assets", "a/b/c/d")

	_, ok := NewFinder().Locate(dir)
	assert.False(t, ok)
}

func TestLocate_Depth2(t *testing.T) {
	dir := t.TempDir()
	mkdirs(t, dir, "course/MyGame/Assets", "course/MyGame/ProjectSettings")

	loc, ok := NewFinder().Locate(dir)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "course", "MyGame"), loc.Path)
	assert.Equal(t, 2, loc.Depth)
}

func TestLocate_DepthLimit(t *testing.T) {
	dir := t.TempDir()
	mkdirs(t, dir, "a/b/c/Game/Assets", "a/b/c/Game/ProjectSettings")

	_, ok := NewFinder().Locate(dir)
	assert.False(t, ok, "depth 4 is beyond the search bound")

	f := &Finder{MaxDepth: 4, Skip: DefaultSkipDirs()}
	loc, ok := f.Locate(dir)
	require.True(t, ok)
	assert.Equal(t, 4, loc.Depth)
}

func TestLocate_SkipsHiddenAndDenylisted(t *testing.T) {
	dir := t.TempDir()
	mkdirs(t, dir,
		".hidden/Game/Assets", ".hidden/Game/ProjectSettings",
		"Library/Game/Assets", "Library/Game/ProjectSettings",
		"node_modules/Assets", "node_modules/ProjectSettings",
	)

	_, ok := NewFinder().Locate(dir)
	assert.False(t, ok)
}

func TestLocate_LexicalOrder(t *testing.T) {
	dir := t.TempDir()
	mkdirs(t, dir,
		"zeta/Assets", "zeta/ProjectSettings",
		"alpha/Assets", "alpha/ProjectSettings",
	)

	for i := 0; i < 5; i++ {
		loc, ok := NewFinder().Locate(dir)
		require.True(t, ok)
		assert.Equal(t, filepath.Join(dir, "alpha"), loc.Path)
	}
}

func TestLocate_ShallowestWins(t *testing.T) {
	dir := t.TempDir()
	mkdirs(t, dir,
		"a/x/y/Assets", "a/x/y/ProjectSettings",
		"b/Assets", "b/ProjectSettings",
	)

	loc, ok := NewFinder().Locate(dir)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "b"), loc.Path)
	assert.Equal(t, 1, loc.Depth)
}

func TestLocate_RequiresBothDirs(t *testing.T) {
	dir := t.TempDir()
	mkdirs(t, dir, "Assets", "sub/ProjectSettings")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ProjectSettings"), []byte("not a dir"), 0644))

	_, ok := NewFinder().Locate(dir)
	assert.False(t, ok)
}

func TestStructure(t *testing.T) {
	dir := t.TempDir()
	mkdirs(t, dir, "Assets/Scripts", "Assets/Scenes", "Packages")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Packages", "manifest.json"), []byte("{}"), 0644))

	flags, checks := Structure(dir)
	assert.True(t, flags.HasScriptsDir)
	assert.True(t, flags.HasScenesDir)
	assert.False(t, flags.HasPrefabsDir)
	assert.True(t, flags.HasManifest)
	assert.False(t, flags.HasGitIgnore)
	assert.Len(t, checks, 6)
}
