// Package view owns view metadata for a project: name validation and
// uniqueness, the per-project store handles, and the link between a view and
// the data table materialized from its scanned source folders.
package view

import (
	"encoding/json"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/matsen/jsonviews/internal/apperr"
	"github.com/matsen/jsonviews/internal/schema"
	"golang.org/x/text/cases"
)

// MaxNameLength is the maximum length of a view name in characters.
const MaxNameLength = 255

// invalidNameChars may not appear in a view name.
const invalidNameChars = `<>:"/\|?*`

// View is a named, project-scoped pairing of an inferred schema and an
// optional saved query.
type View struct {
	ID           string                    `json:"id"`
	ProjectDir   string                    `json:"project_dir"`
	Name         string                    `json:"name"`
	CreatedAt    time.Time                 `json:"created_at"`
	LastModified time.Time                 `json:"last_modified"`
	LastQuery    json.RawMessage           `json:"last_query,omitempty"` // Opaque; nil when absent
	TableSchema  []schema.ColumnDefinition `json:"table_schema"`         // Empty until materialized
}

// HasQuery reports whether a query is saved on the view.
func (v *View) HasQuery() bool {
	return len(v.LastQuery) > 0
}

// NormalizeName trims and validates a view name, returning the stored form.
func NormalizeName(name string) (string, error) {
	const op = "view.validate_name"

	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperr.Validation(op, "view name is required")
	}
	if n := utf8.RuneCountInString(name); n > MaxNameLength {
		return "", apperr.Validation(op, "view name is %d characters, maximum is %d", n, MaxNameLength)
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return "", apperr.Validation(op, "view name contains a control character (%U)", r)
		}
		if strings.ContainsRune(invalidNameChars, r) {
			return "", apperr.Validation(op, "view name contains invalid character %q (not allowed: %s)", r, invalidNameChars)
		}
	}
	return name, nil
}

// nameKey is the case-folded form used for uniqueness.
func nameKey(name string) string {
	return cases.Fold().String(name)
}
