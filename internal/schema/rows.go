package schema

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"go.uber.org/zap"
)

// RowFunc receives the rows of one file, aligned to the column list.
type RowFunc func(file string, rows [][]any) error

// ReadRows re-reads every file under folders in discovery order and passes
// each file's records to fn as rows aligned to columns. Files that fail to
// parse are skipped, matching Scan. Fields absent from columns are ignored.
func ReadRows(ctx context.Context, folders []string, columns []ColumnDefinition, opts Options, fn RowFunc) (int, error) {
	log := opts.logger()
	rep := newReporter(opts.Progress, opts.ProgressInterval)

	files, _, err := Discover(folders)
	if err != nil {
		rep.finish("reading rows failed", err)
		return 0, err
	}
	rep.start(len(files), fmt.Sprintf("loading %d files", len(files)))

	paths := make([][]string, len(columns))
	for i, c := range columns {
		paths[i] = SplitPath(c.Path)
	}

	total := 0
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			rep.finish("loading cancelled", err)
			return total, err
		}

		records, err := readRecords(f)
		if err != nil {
			log.Debug("skipping unreadable file", zap.String("path", f.Path), zap.Error(err))
			rep.advance(f.Path)
			continue
		}

		rows := make([][]any, len(records))
		for i, rec := range records {
			rows[i] = rowOf(rec, columns, paths)
		}

		if err := fn(f.Path, rows); err != nil {
			rep.finish("loading failed", err)
			return total, fmt.Errorf("loading %s: %w", f.Path, err)
		}
		total += len(rows)
		rep.advance(f.Path)
	}

	rep.finish(fmt.Sprintf("loaded %d records", total), nil)
	return total, nil
}

func rowOf(rec object, columns []ColumnDefinition, paths [][]string) []any {
	row := make([]any, len(columns))
	for i, c := range columns {
		v, ok := lookup(rec, paths[i])
		if !ok {
			continue
		}
		row[i] = SQLValue(v, c.Type)
	}
	return row
}

// SQLValue converts a decoded JSON value to the representation stored for typ.
// Booleans are stored as 0/1, JSON columns as encoded text.
func SQLValue(v any, typ ColumnType) any {
	if v == nil {
		return nil
	}

	switch typ {
	case TypeNull:
		return nil

	case TypeBoolean:
		if b, ok := v.(bool); ok {
			return boolInt(b)
		}

	case TypeInteger:
		switch x := v.(type) {
		case json.Number:
			if n, err := x.Int64(); err == nil {
				return n
			}
		case bool:
			return boolInt(x)
		}

	case TypeReal:
		switch x := v.(type) {
		case json.Number:
			if f, err := x.Float64(); err == nil {
				return f
			}
		case bool:
			return float64(boolInt(x))
		}

	case TypeText:
		switch x := v.(type) {
		case string:
			return x
		case json.Number:
			return x.String()
		case bool:
			return strconv.FormatBool(x)
		}
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return string(data)
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
