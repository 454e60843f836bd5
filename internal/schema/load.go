package schema

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Parse decodes a YAML schema definition and builds a snapshot from it.
// When the document carries no version, the version is derived from a hash
// of its content so that any edit yields a new version.
func Parse(data []byte) (*Snapshot, error) {
	var def Definition
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&def); err != nil {
		return nil, fmt.Errorf("failed to decode schema: %w", err)
	}
	if def.Version == "" {
		sum := sha256.Sum256(data)
		def.Version = "sha256:" + hex.EncodeToString(sum[:6])
	}
	return NewSnapshot(def)
}

// LoadFile reads and parses the schema definition at path.
func LoadFile(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from configuration
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}
	snap, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return snap, nil
}
