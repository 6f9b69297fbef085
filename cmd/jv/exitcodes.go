package main

import (
	"errors"

	"github.com/matsen/jsonviews/internal/apperr"
	"github.com/matsen/jsonviews/internal/project"
)

// Exit codes
const (
	ExitSuccess     = 0 // Success
	ExitError       = 1 // General error (invalid arguments, storage failure)
	ExitConfigError = 2 // Configuration error (no project, bad config file)
	ExitDataError   = 3 // Data error (invalid name or id, unreadable source folder)
	ExitNotFound    = 4 // View or source folder not found
	ExitConflict    = 5 // Duplicate view name or existing data table
	ExitBusy        = 6 // Store busy or locked; retrying may succeed
)

// exitCodeFor maps an error to the exit code reported for it.
func exitCodeFor(err error) int {
	switch {
	case err == nil:
		return ExitSuccess
	case apperr.IsTransient(err):
		return ExitBusy
	case errors.Is(err, project.ErrProjectNotFound):
		return ExitConfigError
	case errors.Is(err, project.ErrFolderNotFound):
		return ExitNotFound
	case errors.Is(err, project.ErrProjectExists), errors.Is(err, project.ErrDuplicateFolder):
		return ExitConflict
	}

	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return ExitDataError
	case apperr.KindNotFound:
		return ExitNotFound
	case apperr.KindConflict:
		return ExitConflict
	default:
		return ExitError
	}
}
