package project

import (
	"os"
	"path/filepath"
)

// Check represents a single structural expectation for a project.
type Check struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// StructureFlags records which conventional project folders and files exist.
type StructureFlags struct {
	HasScriptsDir bool `json:"has_scripts_dir"`
	HasScenesDir  bool `json:"has_scenes_dir"`
	HasPrefabsDir bool `json:"has_prefabs_dir"`
	HasManifest   bool `json:"has_manifest"`
	HasGitIgnore  bool `json:"has_gitignore"`
	HasReadme     bool `json:"has_readme"`
}

// Structure evaluates the conventional layout of the project at path.
func Structure(path string) (StructureFlags, []Check) {
	checks := []Check{
		checkDir(path, filepath.Join(AssetsDir, "Scripts"), "Scripts folder"),
		checkDir(path, filepath.Join(AssetsDir, "Scenes"), "Scenes folder"),
		checkDir(path, filepath.Join(AssetsDir, "Prefabs"), "Prefabs folder"),
		checkFile(path, filepath.Join("Packages", "manifest.json"), "Package manifest"),
		checkFile(path, ".gitignore", ".gitignore"),
		checkFile(path, "README.md", "README"),
	}

	flags := StructureFlags{
		HasScriptsDir: checks[0].Passed,
		HasScenesDir:  checks[1].Passed,
		HasPrefabsDir: checks[2].Passed,
		HasManifest:   checks[3].Passed,
		HasGitIgnore:  checks[4].Passed,
		HasReadme:     checks[5].Passed,
	}
	return flags, checks
}

func checkFile(base, name, label string) Check {
	info, err := os.Stat(filepath.Join(base, name))
	if err == nil && !info.IsDir() {
		return Check{Name: label, Passed: true, Detail: name + " found"}
	}
	return Check{Name: label, Passed: false, Detail: name + " missing"}
}

func checkDir(base, name, label string) Check {
	info, err := os.Stat(filepath.Join(base, name))
	if err == nil && info.IsDir() {
		return Check{Name: label, Passed: true, Detail: name + "/ found"}
	}
	return Check{Name: label, Passed: false, Detail: name + "/ missing"}
}
