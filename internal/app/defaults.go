package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// Environment overrides for the default locations.
const (
	ConfigPathEnv = "DOCSTAGE_CONFIG_PATH"
	HomeEnv       = "DOCSTAGE_HOME"
)

// Paths are the locations docstage uses before a config file says otherwise.
type Paths struct {
	ConfigFile string // $DOCSTAGE_CONFIG_PATH or ~/.config/docstage.toml
	BaseDir    string // $DOCSTAGE_HOME or ~/.local/share/docstage
	LogDir     string // always BaseDir/log
}

// DefaultPaths resolves Paths from the environment and the user's home.
// The home directory is only looked up when an override is missing.
func DefaultPaths() (Paths, error) {
	var home string
	homeDir := func() (string, error) {
		if home != "" {
			return home, nil
		}
		h, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		home = h
		return home, nil
	}

	p := Paths{
		ConfigFile: os.Getenv(ConfigPathEnv),
		BaseDir:    os.Getenv(HomeEnv),
	}
	if p.ConfigFile == "" {
		h, err := homeDir()
		if err != nil {
			return Paths{}, err
		}
		p.ConfigFile = filepath.Join(h, ".config", "docstage.toml")
	}
	if p.BaseDir == "" {
		h, err := homeDir()
		if err != nil {
			return Paths{}, err
		}
		p.BaseDir = filepath.Join(h, ".local", "share", "docstage")
	}
	p.LogDir = filepath.Join(p.BaseDir, "log")
	return p, nil
}
