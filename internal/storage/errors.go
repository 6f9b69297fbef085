package storage

import (
	"errors"

	"github.com/matsen/jsonviews/internal/apperr"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// wrapErr converts a driver or filesystem error into an apperr.Error.
// Busy and locked databases are marked transient; uniqueness violations
// become conflicts so callers can report them distinctly.
func wrapErr(op string, err error, format string, args ...any) error {
	e := apperr.Storage(op, err, format, args...)

	var se *sqlite.Error
	if !errors.As(err, &se) {
		return e
	}

	code := se.Code()
	switch {
	case code == sqlite3.SQLITE_CONSTRAINT_UNIQUE,
		code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY,
		code == sqlite3.SQLITE_CONSTRAINT:
		e.Kind = apperr.KindConflict
	case code&0xff == sqlite3.SQLITE_BUSY, code&0xff == sqlite3.SQLITE_LOCKED:
		e.Transient = true
	}
	return e
}
