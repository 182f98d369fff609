// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeSnip Contributors

// Package xdg resolves CodeSnip paths under the XDG Base Directory layout.
package xdg

import (
	"os"
	"path/filepath"

	"github.com/samber/oops"
)

const appName = "codesnip"

// ConfigFileName is the file FindConfigFile looks for in ConfigDir.
const ConfigFileName = "config.yaml"

// ConfigDir returns the CodeSnip config directory.
// Checks XDG_CONFIG_HOME first, falls back to ~/.config.
func ConfigDir() (string, error) {
	if base := os.Getenv("XDG_CONFIG_HOME"); base != "" {
		return filepath.Join(base, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", oops.Code("XDG_HOME_UNKNOWN").Wrap(err)
	}
	return filepath.Join(home, ".config", appName), nil
}

// FindConfigFile returns ConfigDir/config.yaml when that file exists.
func FindConfigFile() (string, bool) {
	dir, err := ConfigDir()
	if err != nil {
		return "", false
	}
	path := filepath.Join(dir, ConfigFileName)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", false
	}
	return path, true
}
