package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPathFunctions(t *testing.T) {
	root := "/test/project"

	tests := []struct {
		name string
		fn   func(string) string
		want string
	}{
		{"StatePath", StatePath, "/test/project/.jsonviews"},
		{"DBPath", DBPath, "/test/project/.jsonviews/views.db"},
		{"ProjectPath", ProjectPath, "/test/project/.jsonviews/project.json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.fn(root)
			if got != tt.want {
				t.Errorf("%s(%q) = %q, want %q", tt.name, root, got, tt.want)
			}
		})
	}
}

// makeProject creates the descriptor file that marks dir as a project.
func makeProject(t *testing.T, dir string) {
	t.Helper()
	if err := os.MkdirAll(StatePath(dir), 0755); err != nil {
		t.Fatalf("Failed to create %s: %v", StateDir, err)
	}
	if err := os.WriteFile(ProjectPath(dir), []byte("{}"), 0644); err != nil {
		t.Fatalf("Failed to write descriptor: %v", err)
	}
}

func TestIsProject(t *testing.T) {
	tmpDir := t.TempDir()

	if IsProject(tmpDir) {
		t.Error("IsProject() = true for plain directory")
	}

	// A state directory alone (e.g. just a database) is not a project
	if err := os.Mkdir(StatePath(tmpDir), 0755); err != nil {
		t.Fatal(err)
	}
	if IsProject(tmpDir) {
		t.Error("IsProject() = true without descriptor")
	}

	makeProject(t, tmpDir)
	if !IsProject(tmpDir) {
		t.Error("IsProject() = false for project directory")
	}
}

func TestIsProject_DescriptorIsDir(t *testing.T) {
	tmpDir := t.TempDir()

	if err := os.MkdirAll(ProjectPath(tmpDir), 0755); err != nil {
		t.Fatal(err)
	}
	if IsProject(tmpDir) {
		t.Error("IsProject() = true when project.json is a directory")
	}
}

func TestFindProject(t *testing.T) {
	tmpDir := t.TempDir()
	projectDir := filepath.Join(tmpDir, "proj")
	nestedDir := filepath.Join(projectDir, "data", "2024")

	if err := os.MkdirAll(nestedDir, 0755); err != nil {
		t.Fatalf("Failed to create nested dirs: %v", err)
	}
	makeProject(t, projectDir)

	found, err := FindProject(nestedDir)
	if err != nil {
		t.Fatalf("FindProject() error = %v", err)
	}
	if found != projectDir {
		t.Errorf("FindProject() = %q, want %q", found, projectDir)
	}

	found, err = FindProject(projectDir)
	if err != nil {
		t.Fatalf("FindProject() error = %v", err)
	}
	if found != projectDir {
		t.Errorf("FindProject() = %q, want %q", found, projectDir)
	}
}

func TestFindProject_NotFound(t *testing.T) {
	_, err := FindProject(t.TempDir())
	if err == nil {
		t.Error("FindProject() should return error when no project found")
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("Cannot get home directory")
	}

	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"/abs/path", "/abs/path"},
		{"rel/path", "rel/path"},
		{"~", home},
		{"~/data", filepath.Join(home, "data")},
	}
	for _, tt := range tests {
		if got := ExpandPath(tt.in); got != tt.want {
			t.Errorf("ExpandPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
