package analysis

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joescharf/autograde/internal/project"
)

const (
	versionFile   = "ProjectVersion.txt"
	versionPrefix = "m_EditorVersion:"
	manifestPath  = "Packages/manifest.json"
	sceneExt      = ".unity"
	// platformPrefix marks packages shipped by the engine vendor.
	platformPrefix = "com.unity."
)

// readFacts fills the project-level fields. Each fact is independent and
// degrades to its unknown value on failure.
func (a *Analyzer) readFacts(pa *ProjectAnalysis, root string) {
	if v, err := EngineVersion(root); err == nil {
		pa.EngineVersion = v
	} else {
		a.log.Debug().Err(err).Msg("engine version unavailable")
	}

	if pkgs, err := ThirdPartyPackages(root); err == nil {
		pa.ManifestFound = true
		pa.ThirdPartyPackages = pkgs
	} else {
		a.log.Debug().Err(err).Msg("package manifest unavailable")
	}

	if n, err := CountScenes(root); err == nil {
		pa.SceneCount = n
		pa.HasScenes = n > 0
	} else {
		a.log.Debug().Err(err).Msg("scene scan failed")
	}

	pa.Structure, _ = project.Structure(root)
}

// EngineVersion reads the editor version from ProjectSettings/ProjectVersion.txt.
func EngineVersion(root string) (string, error) {
	return parseField(filepath.Join(root, project.SettingsDir, versionFile), versionPrefix)
}

// parseField reads path and returns the value for a given prefix line.
func parseField(path, prefix string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, prefix) {
			if v := strings.TrimSpace(strings.TrimPrefix(line, prefix)); v != "" {
				return v, nil
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	return "", fmt.Errorf("field %q not found in %s", strings.TrimSuffix(prefix, ":"), filepath.Base(path))
}

// ThirdPartyPackages returns the sorted names of manifest dependencies that
// are not platform packages.
func ThirdPartyPackages(root string) ([]string, error) {
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(manifestPath)))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var manifest struct {
		Dependencies map[string]any `json:"dependencies"`
	}
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}

	pkgs := []string{}
	for name := range manifest.Dependencies {
		if !strings.HasPrefix(name, platformPrefix) {
			pkgs = append(pkgs, name)
		}
	}
	sort.Strings(pkgs)
	return pkgs, nil
}

// CountScenes counts scene files anywhere under Assets.
func CountScenes(root string) (int, error) {
	count := 0
	err := filepath.WalkDir(filepath.Join(root, project.AssetsDir), func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(p), sceneExt) {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scan scenes: %w", err)
	}
	return count, nil
}
