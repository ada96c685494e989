package fsinfo

import (
	"encoding/json"
	"io"
)

// parsePackageManifest reads a package.json body and extracts name and
// version, defaulting each to "" if absent, matching spec.md §4.3's
// `"${name||""}@${version||""}"` formatting rule.
func parsePackageManifest(r io.Reader) (name, version string, err error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", "", err
	}

	var m struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return "", "", err
	}
	return m.Name, m.Version, nil
}
