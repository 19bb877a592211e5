// Package nodeapp inspects Node-ecosystem project trees: package.json
// parsing, entry-file detection, and build-command normalization for the
// bun runtime.
package nodeapp

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// PackageJSON is the subset of package.json the platform reads.
type PackageJSON struct {
	Name            string            `json:"name"`
	Version         string            `json:"version"`
	Main            string            `json:"main"`
	Scripts         map[string]string `json:"scripts"`
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
}

// LoadPackageJSON reads and parses <dir>/package.json. Returns nil without
// error when the file does not exist; source-only backends ship without one.
func LoadPackageJSON(dir string) (*PackageJSON, error) {
	path := filepath.Join(dir, "package.json")

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading package.json: %w", err)
	}

	var pkg PackageJSON
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil, fmt.Errorf("parsing package.json: %w", err)
	}

	return &pkg, nil
}

// HasScript reports whether the named script is declared.
func (p *PackageJSON) HasScript(name string) bool {
	if p == nil || p.Scripts == nil {
		return false
	}
	_, ok := p.Scripts[name]
	return ok
}

// Script returns the named script's command, or "".
func (p *PackageJSON) Script(name string) string {
	if p == nil || p.Scripts == nil {
		return ""
	}
	return p.Scripts[name]
}
