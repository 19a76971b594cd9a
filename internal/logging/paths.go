package logging

import (
	"os"
	"path/filepath"
)

// DefaultLogDir returns the default docseek log directory, honoring
// XDG_STATE_HOME when set.
func DefaultLogDir() string {
	if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
		return filepath.Join(xdg, "docseek", "logs")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".docseek", "logs")
	}
	return filepath.Join(home, ".docseek", "logs")
}

// DefaultLogPath returns the default path for the main log file.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "docseek.log")
}

// EnsureLogDir creates the default log directory if it doesn't exist.
func EnsureLogDir() error {
	return os.MkdirAll(DefaultLogDir(), 0o755)
}
