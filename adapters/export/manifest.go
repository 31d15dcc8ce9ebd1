package export

import (
	"encoding/json"
	"fmt"
	"io"

	"trialrand/domain/core"
	"trialrand/domain/run"
)

// WriteManifest writes the manifest as indented JSON.
func WriteManifest(w io.Writer, m *run.Manifest) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(m)
}

// ReadManifest parses a manifest sidecar and validates it.
func ReadManifest(r io.Reader) (*run.Manifest, error) {
	var m run.Manifest
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return nil, core.NewInvalidParameterError("manifest", fmt.Sprintf("failed to decode: %v", err))
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}
