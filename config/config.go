// Package config loads a capability.Manifest from a file on disk, the
// on-disk counterpart to the manifest bytes a plugin exchanges over the
// wire during the HELLO handshake.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"encoding/json"

	"github.com/tetraplex/capmesh/capability"
)

const KindManifestError = "ManifestError"

// Error is a typed manifest-loading failure.
type Error struct {
	Path    string
	Message string
}

func (e *Error) Error() string { return e.Message }

// LoadManifest reads path and parses it as a capability.Manifest. The
// format is chosen by extension: ".json" parses as JSON; ".yaml"/".yml"
// (and anything else) parses as YAML, since yaml.Unmarshal also accepts
// plain JSON.
func LoadManifest(path string) (*capability.Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Path: path, Message: fmt.Sprintf("reading manifest %s: %v", path, err)}
	}

	var manifest capability.Manifest

	if filepath.Ext(path) == ".json" {
		if err := json.Unmarshal(data, &manifest); err != nil {
			return nil, &Error{Path: path, Message: fmt.Sprintf("parsing JSON manifest %s: %v", path, err)}
		}
	} else {
		if err := yaml.Unmarshal(data, &manifest); err != nil {
			return nil, &Error{Path: path, Message: fmt.Sprintf("parsing YAML manifest %s: %v", path, err)}
		}
	}

	if manifest.Name == "" {
		return nil, &Error{Path: path, Message: fmt.Sprintf("manifest %s is missing name", path)}
	}
	if len(manifest.Capabilities) == 0 {
		return nil, &Error{Path: path, Message: fmt.Sprintf("manifest %s declares no capabilities", path)}
	}

	return &manifest, nil
}

// SaveManifest writes manifest to path, choosing JSON or YAML by the same
// extension rule as LoadManifest.
func SaveManifest(manifest *capability.Manifest, path string) error {
	var data []byte
	var err error

	if filepath.Ext(path) == ".json" {
		data, err = json.MarshalIndent(manifest, "", "  ")
	} else {
		data, err = yaml.Marshal(manifest)
	}
	if err != nil {
		return &Error{Path: path, Message: fmt.Sprintf("encoding manifest for %s: %v", path, err)}
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return &Error{Path: path, Message: fmt.Sprintf("writing manifest %s: %v", path, err)}
	}
	return nil
}
