package schema

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/matsen/jsonviews/internal/apperr"
)

// SourceFile is a discovered input file.
type SourceFile struct {
	Path   string `json:"path"`
	Folder int    `json:"folder"` // Index into the folder list passed to Discover
	Lines  bool   `json:"lines"`  // JSON Lines: one record per line
}

// Document and JSON Lines extensions, matched case-insensitively.
var (
	documentExts = map[string]bool{".json": true}
	linesExts    = map[string]bool{".jsonl": true, ".ndjson": true}
)

// Discover enumerates JSON files under each folder in a stable order: within a
// directory, files in lexicographic order, then subdirectories in lexicographic
// order. Hidden entries and symlinks are skipped.
//
// Folders that are missing or unreadable are reported as FileErrors. It fails
// only when no folder could be read at all.
func Discover(folders []string) ([]SourceFile, []FileError, error) {
	const op = "schema.discover"

	if len(folders) == 0 {
		return nil, nil, apperr.Validation(op, "no source folders given")
	}

	var files []SourceFile
	var ferrs []FileError
	readable := 0
	var ioErr error

	for i, folder := range folders {
		if strings.TrimSpace(folder) == "" {
			ferrs = append(ferrs, FileError{Path: folder, Message: "empty folder path"})
			continue
		}

		info, err := os.Stat(folder)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				ioErr = err
			}
			ferrs = append(ferrs, FileError{Path: folder, Message: err.Error()})
			continue
		}
		if !info.IsDir() {
			ferrs = append(ferrs, FileError{Path: folder, Message: "not a directory"})
			continue
		}

		found, walkErrs, err := walkFolder(folder, i)
		if err != nil {
			ioErr = err
			ferrs = append(ferrs, FileError{Path: folder, Message: err.Error()})
			continue
		}
		readable++
		files = append(files, found...)
		ferrs = append(ferrs, walkErrs...)
	}

	if readable == 0 {
		if ioErr != nil {
			return nil, ferrs, apperr.Storage(op, ioErr, "no readable source folder")
		}
		return nil, ferrs, apperr.Validation(op, "no readable source folder among %d given", len(folders))
	}

	return files, ferrs, nil
}

// walkFolder lists root recursively. An error reading root itself is returned;
// errors in subdirectories become FileErrors.
func walkFolder(root string, folder int) ([]SourceFile, []FileError, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, nil, fmt.Errorf("reading directory: %w", err)
	}

	var files []SourceFile
	var ferrs []FileError
	var dirs []string

	// os.ReadDir sorts by name already; sort again to make the contract explicit
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if e.Type()&fs.ModeSymlink != 0 {
			continue
		}
		path := filepath.Join(root, name)
		if e.IsDir() {
			dirs = append(dirs, path)
			continue
		}
		if !e.Type().IsRegular() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(name))
		switch {
		case documentExts[ext]:
			files = append(files, SourceFile{Path: path, Folder: folder})
		case linesExts[ext]:
			files = append(files, SourceFile{Path: path, Folder: folder, Lines: true})
		}
	}

	for _, dir := range dirs {
		sub, subErrs, err := walkFolder(dir, folder)
		if err != nil {
			ferrs = append(ferrs, FileError{Path: dir, Message: err.Error()})
			continue
		}
		files = append(files, sub...)
		ferrs = append(ferrs, subErrs...)
	}

	return files, ferrs, nil
}
