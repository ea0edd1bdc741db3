// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Grimoire Contributors

package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	grimerr "github.com/grimoire-dev/grimoire/pkg/errors"
	"gopkg.in/yaml.v3"
)

// DefaultConfigPath returns ~/.config/grimoire/grimoire.yaml.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", grimerr.Errorf(grimerr.CodeConfigLoadReadFailure, "resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "grimoire", "grimoire.yaml"), nil
}

// BootstrapConfig writes the default config to path if it does not already
// exist. Returns the path written, or empty string if the file already
// existed or an error occurred (non-fatal — logged and skipped).
func BootstrapConfig() string {
	cfgPath, err := DefaultConfigPath()
	if err != nil {
		slog.Debug("skipping config bootstrap", "error", err)
		return ""
	}

	if _, err := os.Stat(cfgPath); err == nil {
		return "" // already exists
	}

	data, err := DefaultConfigYAML()
	if err != nil {
		slog.Debug("skipping config bootstrap: cannot render defaults", "error", err)
		return ""
	}

	dir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		slog.Debug("skipping config bootstrap: cannot create directory", "path", dir, "error", err)
		return ""
	}

	if err := os.WriteFile(cfgPath, data, 0o600); err != nil {
		slog.Debug("skipping config bootstrap: cannot write config", "path", cfgPath, "error", err)
		return ""
	}

	slog.Info("created default config", "path", cfgPath)
	return cfgPath
}

// DefaultConfigYAML renders the default configuration as YAML, expanding
// the flat dotted default keys into nested mappings.
func DefaultConfigYAML() ([]byte, error) {
	nested := map[string]any{}
	for key, val := range defaults() {
		parts := strings.Split(key, ".")
		node := nested
		for _, part := range parts[:len(parts)-1] {
			child, ok := node[part].(map[string]any)
			if !ok {
				child = map[string]any{}
				node[part] = child
			}
			node = child
		}
		node[parts[len(parts)-1]] = val
	}

	return yaml.Marshal(nested)
}
