package view

import (
	"strings"
	"testing"

	"github.com/matsen/jsonviews/internal/apperr"
)

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"plain", "Sales", "Sales", false},
		{"trimmed", "  My View  ", "My View", false},
		{"unicode", "Übersicht 2024", "Übersicht 2024", false},
		{"max length", strings.Repeat("a", MaxNameLength), strings.Repeat("a", MaxNameLength), false},
		{"max length in runes", strings.Repeat("é", MaxNameLength), strings.Repeat("é", MaxNameLength), false},
		{"empty", "", "", true},
		{"blank", " \t ", "", true},
		{"too long", strings.Repeat("a", MaxNameLength+1), "", true},
		{"less than", "a<b", "", true},
		{"greater than", "a>b", "", true},
		{"colon", "a:b", "", true},
		{"quote", `a"b`, "", true},
		{"slash", "a/b", "", true},
		{"backslash", `a\b`, "", true},
		{"pipe", "a|b", "", true},
		{"question", "a?", "", true},
		{"star", "a*", "", true},
		{"control", "a\x07b", "", true},
		{"newline inside", "a\nb", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeName(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NormalizeName(%q) error = %v, wantErr = %v", tt.in, err, tt.wantErr)
			}
			if tt.wantErr {
				if !apperr.IsValidation(err) {
					t.Errorf("NormalizeName(%q) error kind = %v, want validation", tt.in, apperr.KindOf(err))
				}
				return
			}
			if got != tt.want {
				t.Errorf("NormalizeName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNameKey(t *testing.T) {
	pairs := [][2]string{
		{"Sales", "SALES"},
		{"sales", "sAlEs"},
		{"Ärger", "äRGER"},
	}
	for _, p := range pairs {
		if nameKey(p[0]) != nameKey(p[1]) {
			t.Errorf("nameKey(%q) != nameKey(%q)", p[0], p[1])
		}
	}
	if nameKey("Sales") == nameKey("Sales 2") {
		t.Error("distinct names share a key")
	}
}
