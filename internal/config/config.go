// Package config handles project layout and global configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	StateDir    = ".jsonviews"
	DBFile      = "views.db"
	ProjectFile = "project.json"
)

// StatePath returns the path to the .jsonviews directory from a working directory.
func StatePath(root string) string {
	return filepath.Join(root, StateDir)
}

// DBPath returns the path to views.db from a working directory.
func DBPath(root string) string {
	return filepath.Join(root, StateDir, DBFile)
}

// ProjectPath returns the path to project.json from a working directory.
func ProjectPath(root string) string {
	return filepath.Join(root, StateDir, ProjectFile)
}

// IsProject checks if the given directory holds a jsonviews project.
func IsProject(root string) bool {
	info, err := os.Stat(ProjectPath(root))
	return err == nil && info.Mode().IsRegular()
}

// FindProject walks up from the given path to find a project working directory.
// Returns the working directory or an error if not found.
func FindProject(start string) (string, error) {
	abs, err := filepath.Abs(start)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}

	for {
		if IsProject(abs) {
			return abs, nil
		}

		parent := filepath.Dir(abs)
		if parent == abs {
			return "", fmt.Errorf("not in a jsonviews project (no %s found)", filepath.Join(StateDir, ProjectFile))
		}
		abs = parent
	}
}

// ExpandPath expands ~ to the user's home directory.
// Returns the original path unchanged if it doesn't start with ~.
func ExpandPath(path string) string {
	if len(path) == 0 || path[0] != '~' {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path // Return original if we can't get home directory
	}

	return filepath.Join(home, path[1:])
}
