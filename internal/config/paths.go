package config

import (
	"os"
	"path/filepath"
)

// AdvisorbotPath returns the root directory for advisorbot data.
// It uses $ADVISORBOT_PATH if set, otherwise defaults to ~/.advisorbot.
func AdvisorbotPath() string {
	if v := os.Getenv("ADVISORBOT_PATH"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".advisorbot")
	}
	return filepath.Join(home, ".advisorbot")
}

// ConfigPath returns the path to the advisorbot config file.
func ConfigPath() string {
	return filepath.Join(AdvisorbotPath(), "config.jsonc")
}

// DotenvPath returns the path to the advisorbot .env file.
func DotenvPath() string {
	return filepath.Join(AdvisorbotPath(), ".env")
}
