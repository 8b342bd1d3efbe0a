package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// Environment variables that override the default locations.
const (
	EnvConfigPath = "SNAPSYNC_CONFIG_PATH"
	EnvHome       = "SNAPSYNC_HOME"
	EnvTempDir    = "SNAPSYNC_TMPDIR"
)

// Defaults holds the locations used before a config file exists.
type Defaults struct {
	ConfigPath string
	BaseDir    string
	LogDir     string
	// TempDir holds staging trees and archives while a snapshot is in flight.
	TempDir string
}

// GetDefaults resolves default locations from the environment, falling back
// to ~/.config/snapsync.toml and ~/.local/share/snapsync.
func GetDefaults() (*Defaults, error) {
	d := &Defaults{
		ConfigPath: os.Getenv(EnvConfigPath),
		BaseDir:    os.Getenv(EnvHome),
		TempDir:    os.Getenv(EnvTempDir),
	}

	if d.ConfigPath == "" || d.BaseDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("cannot determine home directory: %w", err)
		}
		if d.ConfigPath == "" {
			d.ConfigPath = filepath.Join(homeDir, ".config", "snapsync.toml")
		}
		if d.BaseDir == "" {
			d.BaseDir = filepath.Join(homeDir, ".local", "share", "snapsync")
		}
	}

	d.LogDir = filepath.Join(d.BaseDir, "log")
	if d.TempDir == "" {
		d.TempDir = filepath.Join(d.BaseDir, "tmp")
	}
	return d, nil
}
