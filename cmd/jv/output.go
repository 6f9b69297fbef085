package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/matsen/jsonviews/internal/apperr"
	"github.com/matsen/jsonviews/internal/schema"
)

// outputJSON writes a value as formatted JSON to stdout.
func outputJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputHuman writes a human-readable string to stdout.
func outputHuman(format string, args ...interface{}) {
	fmt.Printf(format, args...)
}

// exitWithError outputs an error in the appropriate format (human or JSON) and exits.
func exitWithError(code int, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if humanOutput {
		fmt.Fprintf(os.Stderr, "error: %s\n", msg)
	} else {
		outputJSON(ErrorResponse{Error: msg})
	}
	exitProcess(code)
}

// exitWithErr reports err with the exit code and kind derived from it.
func exitWithErr(err error) {
	code := exitCodeFor(err)
	if humanOutput {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	} else {
		resp := ErrorResponse{Error: err.Error()}
		if kind := apperr.KindOf(err); kind != apperr.KindUnknown {
			resp.Kind = kind.String()
		}
		outputJSON(resp)
	}
	exitProcess(code)
}

// StatusResponse is a generic response for commands that return status.
type StatusResponse struct {
	Status string `json:"status"`
	Path   string `json:"path,omitempty"`
	ID     string `json:"id,omitempty"`
}

// ErrorResponse is a JSON error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// printColumnsHuman prints column definitions as an aligned table.
func printColumnsHuman(columns []schema.ColumnDefinition) {
	if len(columns) == 0 {
		fmt.Println("  (no columns)")
		return
	}
	width := 0
	for _, c := range columns {
		if len(c.Name) > width {
			width = len(c.Name)
		}
	}
	for i, c := range columns {
		fmt.Printf("  %3d  %-*s  %-7s  %s\n", i+1, width, c.Name, c.Type, c.Path)
	}
}

// progressPrinter returns a progress observer that writes to stderr in human
// mode and does nothing otherwise, keeping stdout clean for JSON.
func progressPrinter(label string) schema.ProgressFunc {
	if !humanOutput {
		return nil
	}
	return func(p schema.Progress) {
		if p.Done {
			fmt.Fprintf(os.Stderr, "\r%s: %d/%d %s\n", label, p.Current, p.Total, p.Message)
			return
		}
		fmt.Fprintf(os.Stderr, "\r%s: %d/%d", label, p.Current, p.Total)
	}
}

// truncateString truncates a string to maxLen, adding "..." if truncated.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// formatTime formats a timestamp for human output in local time.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

// formatCell renders a query value for human output.
func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(x)
	case string:
		return strings.ReplaceAll(x, "\n", " ")
	default:
		return fmt.Sprint(x)
	}
}
