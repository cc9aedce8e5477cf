package chromemdb

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"resume-rag/internal/index"
)

func readManifest(path string) (*index.Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m index.Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	if m.EmbeddingModel == "" {
		return nil, fmt.Errorf("manifest has no embedding model")
	}
	return &m, nil
}

// writeManifest replaces the manifest atomically
func writeManifest(path string, m index.Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".index-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}
