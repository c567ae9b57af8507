package config

import (
	"os"
	"path/filepath"
)

// ConfigDir returns the zgrid config directory, respecting XDG_CONFIG_HOME.
// Defaults to ~/.config/zgrid/.
func ConfigDir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "zgrid"), nil
}

// GlobalConfigPath returns the path to the global config file.
func GlobalConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// DataDir returns the zgrid data directory, respecting XDG_DATA_HOME.
// Defaults to ~/.local/share/zgrid/.
func DataDir() (string, error) {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(base, "zgrid"), nil
}

// StateDir returns the zgrid state directory (logs, lock files), respecting
// XDG_STATE_HOME. Defaults to ~/.local/state/zgrid/.
func StateDir() (string, error) {
	base := os.Getenv("XDG_STATE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(base, "zgrid"), nil
}
