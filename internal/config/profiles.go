package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ProfileInfo describes one named configuration profile on disk.
type ProfileInfo struct {
	Name     string    `json:"name"`
	Path     string    `json:"path"`
	Modified time.Time `json:"modified"`
}

// DefaultConfigDir returns the directory searched for configuration
// profiles: $XDG_CONFIG_HOME/skylock or ~/.config/skylock.
func DefaultConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "skylock")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "/etc/skylock"
	}
	return filepath.Join(home, ".config", "skylock")
}

// ListProfiles returns every *.toml file in dir as a profile. A missing
// directory is not an error; it just means no profiles exist yet.
func ListProfiles(dir string) ([]ProfileInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var profiles []ProfileInfo
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".toml") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		profiles = append(profiles, ProfileInfo{
			Name:     strings.TrimSuffix(e.Name(), ".toml"),
			Path:     filepath.Join(dir, e.Name()),
			Modified: info.ModTime(),
		})
	}
	return profiles, nil
}
