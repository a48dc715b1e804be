package paths

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	// HomeEnvVar overrides the global lsgw home directory.
	HomeEnvVar = "LSGW_HOME"
	// DefaultHome is the home directory name under the user's home.
	DefaultHome = ".lsgw"
	// RepoDir is the per-workspace state directory.
	RepoDir = ".lsgw"
)

// GetHome returns the global lsgw directory (~/.lsgw unless LSGW_HOME is set).
func GetHome() (string, error) {
	if env := os.Getenv(HomeEnvVar); env != "" {
		return env, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, DefaultHome), nil
}

// GetRepoDir returns <root>/.lsgw.
func GetRepoDir(root string) string {
	return filepath.Join(root, RepoDir)
}

// GetBackendsDir returns the directory scanned for per-backend descriptor files.
func GetBackendsDir(root string) string {
	return filepath.Join(root, RepoDir, "backends.d")
}

// GetLogsDir returns <root>/.lsgw/logs.
func GetLogsDir(root string) string {
	return filepath.Join(root, RepoDir, "logs")
}

// GetBackendLogPath returns the stderr log file of a process backend.
func GetBackendLogPath(root, backendID string) string {
	return filepath.Join(GetLogsDir(root), "backend-"+sanitize(backendID)+".log")
}

// EnsureLogsDir creates the logs directory if needed and returns it.
func EnsureLogsDir(root string) (string, error) {
	dir := GetLogsDir(root)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}

func sanitize(id string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', ' ':
			return '_'
		}
		return r
	}, id)
}

// CanonicalizePath converts an absolute path to a root-relative canonical path
// - Resolves symlinks to real paths
// - Makes path relative to root
// - Returns a forward-slash path
func CanonicalizePath(absolutePath string, root string) (string, error) {
	resolved, err := resolveExisting(absolutePath)
	if err != nil {
		return "", err
	}

	rootResolved, err := resolveExisting(root)
	if err != nil {
		return "", err
	}

	relativePath, err := filepath.Rel(rootResolved, resolved)
	if err != nil {
		return "", err
	}

	return filepath.ToSlash(relativePath), nil
}

// resolveExisting resolves symlinks in the longest existing prefix of p and
// appends the missing tail unchanged.
func resolveExisting(p string) (string, error) {
	p = filepath.Clean(p)
	resolved, err := filepath.EvalSymlinks(p)
	if err == nil {
		return resolved, nil
	}
	if !os.IsNotExist(err) {
		return "", err
	}
	parent := filepath.Dir(p)
	if parent == p {
		return p, nil
	}
	base, err := resolveExisting(parent)
	if err != nil {
		return "", err
	}
	return filepath.Join(base, filepath.Base(p)), nil
}

// IsWithinRoot checks if a path is within root
func IsWithinRoot(path string, root string) bool {
	canonical, err := CanonicalizePath(path, root)
	if err != nil {
		return false
	}
	return canonical != ".." && !strings.HasPrefix(canonical, "../")
}
