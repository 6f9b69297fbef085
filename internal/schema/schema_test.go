package schema

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestWiden(t *testing.T) {
	tests := []struct {
		a, b, want ColumnType
	}{
		{"", TypeNull, TypeNull},
		{TypeNull, TypeBoolean, TypeBoolean},
		{TypeInteger, TypeNull, TypeInteger},
		{TypeInteger, TypeReal, TypeReal},
		{TypeReal, TypeInteger, TypeReal},
		{TypeBoolean, TypeText, TypeText},
		{TypeText, TypeJSON, TypeJSON},
		{TypeJSON, TypeText, TypeJSON},
	}

	for _, tt := range tests {
		if got := Widen(tt.a, tt.b); got != tt.want {
			t.Errorf("Widen(%q, %q) = %q, want %q", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestColumnType_SQLiteType(t *testing.T) {
	tests := map[ColumnType]string{
		TypeNull:    "BLOB",
		TypeBoolean: "INTEGER",
		TypeInteger: "INTEGER",
		TypeReal:    "REAL",
		TypeText:    "TEXT",
		TypeJSON:    "TEXT",
	}
	for typ, want := range tests {
		if got := typ.SQLiteType(); got != want {
			t.Errorf("%s.SQLiteType() = %q, want %q", typ, got, want)
		}
	}
	if ColumnType("DATE").Valid() {
		t.Error("DATE should not be a valid column type")
	}
}

func TestJoinSplitPath(t *testing.T) {
	tests := []struct {
		segs []string
		want string
	}{
		{[]string{"a"}, "a"},
		{[]string{"a", "b", "c"}, "a.b.c"},
		{[]string{"a.b"}, `a\.b`},
		{[]string{`back\slash`, "x"}, `back\\slash.x`},
		{[]string{"", "x"}, ".x"},
	}

	for _, tt := range tests {
		got := JoinPath(tt.segs)
		if got != tt.want {
			t.Errorf("JoinPath(%q) = %q, want %q", tt.segs, got, tt.want)
		}
		if diff := cmp.Diff(tt.segs, SplitPath(got)); diff != "" {
			t.Errorf("SplitPath(%q) mismatch (-want +got):\n%s", got, diff)
		}
	}
}

func TestDecodeDocument_KeepsKeyOrder(t *testing.T) {
	v, err := decodeDocument(strings.NewReader(`{"z": 1, "a": {"y": 2, "b": 3}, "z": 4}`))
	if err != nil {
		t.Fatalf("decodeDocument() error = %v", err)
	}
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	want := `{"z":4,"a":{"y":2,"b":3}}`
	if string(data) != want {
		t.Errorf("round trip = %s, want %s", data, want)
	}
}

func TestDecodeDocument_Errors(t *testing.T) {
	inputs := []string{
		``,
		`{"a": }`,
		`{"a": 1} {"b": 2}`,
		`[1, 2`,
	}
	for _, in := range inputs {
		if _, err := decodeDocument(strings.NewReader(in)); err == nil {
			t.Errorf("decodeDocument(%q) error = nil, want error", in)
		}
	}
}

func TestRecordsOf(t *testing.T) {
	root, err := decodeDocument(strings.NewReader(`[{"a": 1}, 2, [3]]`))
	if err != nil {
		t.Fatalf("decodeDocument() error = %v", err)
	}
	records, err := recordsOf(root)
	if err != nil {
		t.Fatalf("recordsOf() error = %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("len(records) = %d, want 3", len(records))
	}
	if _, ok := records[1].get("value"); !ok {
		t.Error("scalar element should be wrapped under \"value\"")
	}

	if _, err := recordsOf("just a string"); err == nil {
		t.Error("recordsOf(string) error = nil, want error")
	}
}

func TestSQLValue(t *testing.T) {
	tests := []struct {
		name string
		v    any
		typ  ColumnType
		want any
	}{
		{"nil", nil, TypeText, nil},
		{"bool true", true, TypeBoolean, int64(1)},
		{"bool in integer column", false, TypeInteger, int64(0)},
		{"integer", json.Number("42"), TypeInteger, int64(42)},
		{"integer in real column", json.Number("3"), TypeReal, float64(3)},
		{"real", json.Number("2.5"), TypeReal, 2.5},
		{"number in text column", json.Number("1e3"), TypeText, "1e3"},
		{"bool in text column", true, TypeText, "true"},
		{"string", "hi", TypeText, "hi"},
		{"array", []any{json.Number("1"), "x"}, TypeJSON, `[1,"x"]`},
		{"object", object{{Key: "b", Value: json.Number("1")}, {Key: "a", Value: nil}}, TypeJSON, `{"b":1,"a":null}`},
		{"string in json column", "flat", TypeJSON, `"flat"`},
		{"null column", "ignored", TypeNull, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SQLValue(tt.v, tt.typ); got != tt.want {
				t.Errorf("SQLValue(%v, %s) = %#v, want %#v", tt.v, tt.typ, got, tt.want)
			}
		})
	}
}

func TestReadRows_AlignedToColumns(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"a.json":            `[{"id": 1, "user": {"name": "ann"}}, {"id": 2, "tags": ["x"]}]`,
		"b.json":            `not json`,
		"c.jsonl":           `{"id": 3, "user": {"name": "bo"}, "extra": true}`,
		".hidden/skip.json": `{"id": 99}`,
	})

	result, err := Scan(context.Background(), []string{dir}, Options{})
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}

	type batch struct {
		file string
		rows [][]any
	}
	var batches []batch
	total, err := ReadRows(context.Background(), []string{dir}, result.Columns[:3], Options{}, func(file string, rows [][]any) error {
		batches = append(batches, batch{filepath.Base(file), rows})
		return nil
	})
	if err != nil {
		t.Fatalf("ReadRows() error = %v", err)
	}
	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}

	want := []batch{
		{"a.json", [][]any{{int64(1), "ann", nil}, {int64(2), nil, `["x"]`}}},
		{"c.jsonl", [][]any{{int64(3), "bo", nil}}},
	}
	if diff := cmp.Diff(want, batches, cmp.AllowUnexported(batch{})); diff != "" {
		t.Errorf("batches mismatch (-want +got):\n%s", diff)
	}
}

func TestFingerprint(t *testing.T) {
	a := []ColumnDefinition{{Name: "a", Type: TypeInteger, Path: "a"}}
	b := []ColumnDefinition{{Name: "a", Type: TypeReal, Path: "a"}}

	if Fingerprint(a) != Fingerprint(append([]ColumnDefinition(nil), a...)) {
		t.Error("Fingerprint differs for equal column lists")
	}
	if Fingerprint(a) == Fingerprint(b) {
		t.Error("Fingerprint equal for different types")
	}
	if len(Fingerprint(nil)) != 64 {
		t.Errorf("len(Fingerprint(nil)) = %d, want 64", len(Fingerprint(nil)))
	}
}
