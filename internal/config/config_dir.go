package config

import (
	"os"
	"path/filepath"
	"strings"
)

const appDirName = "shoplist"

// DefaultConfigDir returns ~/.config/shoplist unless SHOPLIST_CONFIG_DIR is set.
func DefaultConfigDir() (string, error) {
	if override := strings.TrimSpace(os.Getenv("SHOPLIST_CONFIG_DIR")); override != "" {
		return override, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", appDirName), nil
}
