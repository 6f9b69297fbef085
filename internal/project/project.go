// Package project defines the project descriptor: a working directory that owns
// the per-project store, plus the source folders scanned into views.
package project

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/matsen/jsonviews/internal/config"
)

// SourceFolder is a directory of JSON files that feeds schema synthesis.
type SourceFolder struct {
	ID   string `json:"id"`
	Path string `json:"path"` // Absolute
}

// Project represents a workspace with source folders and one relational store.
type Project struct {
	ID               string         `json:"id"`                          // Required: UUID
	Name             string         `json:"name"`                        // Required: human-readable display name
	WorkingDirectory string         `json:"working_directory,omitempty"` // Set on load, not persisted
	SourceFolders    []SourceFolder `json:"source_folders"`              // Scanned in this order
	CreatedAt        time.Time      `json:"created_at"`
	LastOpenedAt     time.Time      `json:"last_opened_at"`
}

// Validation errors.
var (
	ErrEmptyID            = errors.New("id is required")
	ErrInvalidID          = errors.New("id must be a UUID")
	ErrEmptyName          = errors.New("name is required")
	ErrEmptyWorkingDir    = errors.New("working directory is required")
	ErrEmptyPath          = errors.New("source folder path is required")
	ErrFolderNotDirectory = errors.New("source folder is not a directory")
	ErrDuplicateFolder    = errors.New("source folder already added")
	ErrFolderNotFound     = errors.New("source folder not found")
	ErrProjectExists      = errors.New("project already initialized")
	ErrProjectNotFound    = errors.New("project not found")
)

// New creates a project descriptor for workingDir. The name defaults to the
// directory's base name.
func New(workingDir, name string, now time.Time) (*Project, error) {
	if workingDir == "" {
		return nil, ErrEmptyWorkingDir
	}
	abs, err := filepath.Abs(workingDir)
	if err != nil {
		return nil, fmt.Errorf("resolving working directory: %w", err)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = filepath.Base(abs)
	}

	p := &Project{
		ID:               uuid.NewString(),
		Name:             name,
		WorkingDirectory: abs,
		SourceFolders:    []SourceFolder{},
		CreatedAt:        now.UTC(),
		LastOpenedAt:     now.UTC(),
	}
	return p, p.Validate()
}

// Validate checks the required fields.
func (p *Project) Validate() error {
	if p.ID == "" {
		return ErrEmptyID
	}
	if _, err := uuid.Parse(p.ID); err != nil {
		return ErrInvalidID
	}
	if strings.TrimSpace(p.Name) == "" {
		return ErrEmptyName
	}
	if p.WorkingDirectory == "" {
		return ErrEmptyWorkingDir
	}
	for _, f := range p.SourceFolders {
		if f.Path == "" {
			return ErrEmptyPath
		}
	}
	return nil
}

// FolderPaths returns the source folder paths in scan order.
func (p *Project) FolderPaths() []string {
	paths := make([]string, len(p.SourceFolders))
	for i, f := range p.SourceFolders {
		paths[i] = f.Path
	}
	return paths
}

// resolve makes path absolute relative to the working directory.
func (p *Project) resolve(path string) string {
	path = config.ExpandPath(strings.TrimSpace(path))
	if !filepath.IsAbs(path) {
		path = filepath.Join(p.WorkingDirectory, path)
	}
	return filepath.Clean(path)
}

// AddSourceFolder appends a folder. Relative paths resolve against the
// working directory. The folder must exist.
func (p *Project) AddSourceFolder(path string) (SourceFolder, error) {
	if strings.TrimSpace(path) == "" {
		return SourceFolder{}, ErrEmptyPath
	}
	path = p.resolve(path)

	info, err := os.Stat(path)
	if err != nil {
		return SourceFolder{}, fmt.Errorf("checking source folder: %w", err)
	}
	if !info.IsDir() {
		return SourceFolder{}, fmt.Errorf("%w: %s", ErrFolderNotDirectory, path)
	}

	for _, f := range p.SourceFolders {
		if f.Path == path {
			return SourceFolder{}, fmt.Errorf("%w: %s", ErrDuplicateFolder, path)
		}
	}

	folder := SourceFolder{ID: uuid.NewString(), Path: path}
	p.SourceFolders = append(p.SourceFolders, folder)
	return folder, nil
}

// RemoveSourceFolder removes a folder by id or path. The folder need not
// still exist on disk.
func (p *Project) RemoveSourceFolder(idOrPath string) (SourceFolder, error) {
	if strings.TrimSpace(idOrPath) == "" {
		return SourceFolder{}, ErrEmptyPath
	}
	path := p.resolve(idOrPath)

	for i, f := range p.SourceFolders {
		if f.ID == idOrPath || f.Path == path {
			p.SourceFolders = append(p.SourceFolders[:i], p.SourceFolders[i+1:]...)
			return f, nil
		}
	}
	return SourceFolder{}, fmt.Errorf("%w: %s", ErrFolderNotFound, idOrPath)
}

// Touch records that the project was opened.
func (p *Project) Touch(now time.Time) {
	p.LastOpenedAt = now.UTC()
}

// Init creates the descriptor for a new project in workingDir.
func Init(workingDir, name string, now time.Time) (*Project, error) {
	p, err := New(workingDir, name, now)
	if err != nil {
		return nil, err
	}
	if config.IsProject(p.WorkingDirectory) {
		return nil, fmt.Errorf("%w: %s", ErrProjectExists, p.WorkingDirectory)
	}
	if err := p.Save(); err != nil {
		return nil, err
	}
	return p, nil
}

// Load reads the descriptor from the project at workingDir.
func Load(workingDir string) (*Project, error) {
	abs, err := filepath.Abs(workingDir)
	if err != nil {
		return nil, fmt.Errorf("resolving working directory: %w", err)
	}

	data, err := os.ReadFile(config.ProjectPath(abs))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, abs)
		}
		return nil, fmt.Errorf("reading project: %w", err)
	}

	var p Project
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing project: %w", err)
	}
	p.WorkingDirectory = abs
	if p.SourceFolders == nil {
		p.SourceFolders = []SourceFolder{}
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid project descriptor: %w", err)
	}
	return &p, nil
}

// Save writes the descriptor atomically.
func (p *Project) Save() error {
	if err := p.Validate(); err != nil {
		return err
	}

	// The working directory is implied by the descriptor's location.
	stored := *p
	stored.WorkingDirectory = ""
	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding project: %w", err)
	}

	if err := os.MkdirAll(config.StatePath(p.WorkingDirectory), 0755); err != nil {
		return fmt.Errorf("creating %s: %w", config.StateDir, err)
	}

	path := config.ProjectPath(p.WorkingDirectory)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("writing project: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("writing project: %w", err)
	}
	return nil
}
