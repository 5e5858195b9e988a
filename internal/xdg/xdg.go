// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Deckhand Contributors

// Package xdg provides XDG Base Directory paths for Deckhand.
package xdg

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/samber/oops"
)

const appName = "deckhand"

// ConfigFileName is the file FindConfig looks for in ConfigDir.
const ConfigFileName = "config.yaml"

// ConfigDir returns the XDG config directory for deckhand.
// Checks XDG_CONFIG_HOME first, falls back to ~/.config.
func ConfigDir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", oops.Code("XDG_HOME_UNKNOWN").Wrap(err)
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, appName), nil
}

// CertsDir returns the directory certs generate writes to by default.
func CertsDir() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "certs"), nil
}

// FindConfig returns the path of ConfigFileName in ConfigDir, or "" when
// there is none.
func FindConfig() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, ConfigFileName)
	_, err = os.Stat(path)
	switch {
	case err == nil:
		return path, nil
	case errors.Is(err, fs.ErrNotExist):
		return "", nil
	default:
		return "", oops.Code("CONFIG_FILE_INVALID").With("path", path).Wrap(err)
	}
}
