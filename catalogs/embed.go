// Package catalogs embeds the default stage description and the coordination
// condition scripts. Files on disk under catalogs/ take precedence so edits
// can be hot reloaded without rebuilding.
package catalogs

import (
	"embed"
	"os"
	"path/filepath"
	"strings"
)

//go:embed *.yaml scripts/*.tengo
var FS embed.FS

// DefaultStage is the stage file loaded when no -catalog flag is given.
const DefaultStage = "demo.yaml"

// Load reads a stage file, preferring the on-disk copy.
func Load(name string) ([]byte, error) {
	clean := cleanPath(name)
	if filepath.IsAbs(name) {
		return os.ReadFile(name)
	}
	if data, err := os.ReadFile(diskPath(clean)); err == nil {
		return data, nil
	}
	return FS.ReadFile(clean)
}

// ScriptsDir is the on-disk directory condition scripts are read from.
const ScriptsDir = "catalogs/scripts"

// DiskPath is the on-disk file Load prefers for name.
func DiskPath(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return diskPath(cleanPath(name))
}

// LoadScript reads a condition script referenced from a stage file.
func LoadScript(name string) ([]byte, error) {
	clean := cleanPath(name)
	if !strings.HasPrefix(clean, "scripts/") {
		clean = "scripts/" + clean
	}
	if data, err := os.ReadFile(diskPath(clean)); err == nil {
		return data, nil
	}
	return FS.ReadFile(clean)
}

func cleanPath(path string) string {
	s := filepath.ToSlash(path)
	if after, ok := strings.CutPrefix(s, "catalogs/"); ok {
		s = after
	}
	return s
}

func diskPath(clean string) string {
	return filepath.Join("catalogs", filepath.FromSlash(clean))
}
