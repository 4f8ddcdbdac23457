package utils

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// EnsureDirectoryExists creates a directory and all necessary parent directories
// with proper error handling and logging. It's safe to call multiple times.
func EnsureDirectoryExists(dirPath string) error {
	if dirPath == "" || dirPath == "." {
		return nil
	}

	absPath, err := filepath.Abs(dirPath)
	if err != nil {
		absPath = dirPath
	}

	if info, err := os.Stat(absPath); err == nil {
		if info.IsDir() {
			slog.Debug("directory already exists", "path", absPath)
			return nil
		}
		return fmt.Errorf("path %s exists but is not a directory", absPath)
	}

	if err := os.MkdirAll(absPath, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", absPath, err)
	}

	slog.Debug("created directory", "path", absPath, "permissions", "0755")
	return nil
}

// EnsureFileDirectory creates the directory needed for a given file path.
func EnsureFileDirectory(filePath string) error {
	dir := filepath.Dir(filePath)
	return EnsureDirectoryExists(dir)
}

// DefaultCacheHome returns $HOME, falling back to os.UserHomeDir, used to
// anchor ~/.aws/sso/cache, ~/.aws/cli/cache, and ~/.aws/config.
func DefaultCacheHome() (string, error) {
	if home := os.Getenv("HOME"); home != "" {
		return home, nil
	}
	return os.UserHomeDir()
}
