// Package schema infers a unified tabular schema from folders of JSON documents.
package schema

// ColumnType is an inferred column type. Types form a widening lattice:
// unseen < NULL < BOOLEAN < INTEGER < REAL < TEXT < JSON.
type ColumnType string

const (
	TypeNull    ColumnType = "NULL"    // Only null observations
	TypeBoolean ColumnType = "BOOLEAN" // Stored as INTEGER 0/1
	TypeInteger ColumnType = "INTEGER"
	TypeReal    ColumnType = "REAL"
	TypeText    ColumnType = "TEXT"
	TypeJSON    ColumnType = "JSON" // Arrays and structurally inconsistent values, stored as TEXT
)

// typeRank orders the lattice. The zero value of ColumnType ranks as unseen.
var typeRank = map[ColumnType]int{
	TypeNull:    1,
	TypeBoolean: 2,
	TypeInteger: 3,
	TypeReal:    4,
	TypeText:    5,
	TypeJSON:    6,
}

// Valid reports whether t is one of the recognized column types.
func (t ColumnType) Valid() bool {
	_, ok := typeRank[t]
	return ok
}

// Widen returns the least type that covers both a and b.
// A null observation never downgrades an established type.
func Widen(a, b ColumnType) ColumnType {
	if typeRank[b] > typeRank[a] {
		return b
	}
	return a
}

// SQLiteType maps a column type to its SQLite declared type.
func (t ColumnType) SQLiteType() string {
	switch t {
	case TypeBoolean, TypeInteger:
		return "INTEGER"
	case TypeReal:
		return "REAL"
	case TypeText, TypeJSON:
		return "TEXT"
	default:
		return "BLOB"
	}
}

// ColumnDefinition describes one inferred column.
type ColumnDefinition struct {
	Name string     `json:"name"` // Human-readable dotted field path
	Type ColumnType `json:"type"`
	Path string     `json:"path"` // Escaped dotted path, unique within a schema
}

// FileError records a non-fatal problem with a single file or folder.
type FileError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// ScanResult is the outcome of scanning a set of source folders.
type ScanResult struct {
	ViewID         string             `json:"view_id,omitempty"` // Assigned by the caller after the scan
	ProcessedFiles int                `json:"processed_files"`
	TotalRecords   int                `json:"total_records"`
	Columns        []ColumnDefinition `json:"columns"`
	Errors         []FileError        `json:"errors,omitempty"`
	Fingerprint    string             `json:"fingerprint"`
}
