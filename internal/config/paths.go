package config

import (
	"os"
	"path/filepath"
	"strings"
)

// DataDirEnv overrides the directory holding the local SQLite files.
const DataDirEnv = "CXR_DATA_DIR"

// DefaultDataDir returns $CXR_DATA_DIR, or ~/.cxr-assist.
func DefaultDataDir() string {
	if v := os.Getenv(DataDirEnv); v != "" {
		return ExpandHome(v)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".cxr-assist"
	}
	return filepath.Join(homeDir, ".cxr-assist")
}

// DataPath joins name onto dataDir.
func DataPath(dataDir, name string) string {
	return filepath.Join(dataDir, name)
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(homeDir, strings.TrimPrefix(path, "~"))
}

// EnsureDataDir creates the directory that will hold path.
func EnsureDataDir(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0755)
}
