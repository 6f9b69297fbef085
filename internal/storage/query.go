package storage

import (
	"context"
	"database/sql"
	"strings"

	"go.uber.org/zap"
)

// Record is one result row keyed by column name.
type Record map[string]any

// Result reports the effect of a write statement.
type Result struct {
	Changes      int64 `json:"changes"`
	LastInsertID int64 `json:"last_insert_id"`
}

// ExecuteQuery runs a read-only statement with positional parameters.
// The connection is switched to query_only for the duration, so statements
// that would write fail instead of modifying the store.
func (m *Manager) ExecuteQuery(ctx context.Context, query string, params ...any) ([]Record, error) {
	const op = "storage.query"

	db, err := m.conn(op)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(query) == "" {
		return nil, wrapErr(op, nil, "empty query")
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, wrapErr(op, err, "acquiring connection")
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "PRAGMA query_only = ON"); err != nil {
		return nil, wrapErr(op, err, "entering read-only mode")
	}
	defer func() {
		if _, err := conn.ExecContext(context.Background(), "PRAGMA query_only = OFF"); err != nil {
			m.log.Warn("leaving read-only mode failed", zap.Error(err))
		}
	}()

	records, err := queryRecords(ctx, conn, query, params)
	if err != nil {
		return nil, wrapErr(op, err, "executing query")
	}
	return records, nil
}

func queryRecords(ctx context.Context, conn *sql.Conn, query string, params []any) ([]Record, error) {
	rows, err := conn.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRecords(rows)
}

// ExecuteNonQuery runs a write statement with positional parameters.
func (m *Manager) ExecuteNonQuery(ctx context.Context, stmt string, params ...any) (Result, error) {
	const op = "storage.exec"

	db, err := m.conn(op)
	if err != nil {
		return Result{}, err
	}
	if strings.TrimSpace(stmt) == "" {
		return Result{}, wrapErr(op, nil, "empty statement")
	}

	res, err := db.ExecContext(ctx, stmt, params...)
	if err != nil {
		return Result{}, wrapErr(op, err, "executing statement")
	}

	var out Result
	if n, err := res.RowsAffected(); err == nil {
		out.Changes = n
	}
	if id, err := res.LastInsertId(); err == nil {
		out.LastInsertID = id
	}
	return out, nil
}

// scanRecords converts SQL rows to records.
func scanRecords(rows *sql.Rows) ([]Record, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	records := []Record{}
	for rows.Next() {
		values := make([]any, len(cols))
		valuePtrs := make([]any, len(cols))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, err
		}

		record := make(Record, len(cols))
		for i, col := range cols {
			record[col] = values[i]
		}
		records = append(records, record)
	}

	return records, rows.Err()
}
