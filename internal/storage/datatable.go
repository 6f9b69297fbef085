package storage

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/matsen/jsonviews/internal/apperr"
	"github.com/matsen/jsonviews/internal/schema"
	"go.uber.org/zap"
)

// Internal columns present in every data table, ahead of the positional ones.
const (
	RowIDColumn      = "_row_id"
	SourceFileColumn = "_source_file"
)

// DataTableInfo describes a materialized data table.
type DataTableInfo struct {
	ViewID      string    `json:"view_id"`
	TableName   string    `json:"table_name"`
	ColumnCount int       `json:"column_count"`
	Fingerprint string    `json:"fingerprint"`
	CreatedAt   time.Time `json:"created_at"`
	Rows        int64     `json:"rows"`
}

// DataTableName derives the table name for a view. Only the canonical hex form
// of the view's UUID reaches SQL, so the name is always a safe identifier.
func DataTableName(viewID string) (string, error) {
	id, err := uuid.Parse(viewID)
	if err != nil {
		return "", apperr.Validation("storage.table_name", "invalid view id %q", viewID)
	}
	return "data_" + hex.EncodeToString(id[:]), nil
}

// ColumnName returns the positional column name for a 1-based position.
func ColumnName(position int) string {
	return fmt.Sprintf("col_%d", position)
}

// generateDDL builds the CREATE TABLE statement for a data table.
// No part of it comes from file- or user-derived strings.
func generateDDL(table string, columns []schema.ColumnDefinition) string {
	cols := []string{
		RowIDColumn + " INTEGER PRIMARY KEY",
		SourceFileColumn + " TEXT NOT NULL",
	}
	for i, c := range columns {
		cols = append(cols, fmt.Sprintf("%s %s", ColumnName(i+1), c.Type.SQLiteType()))
	}

	return fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", table, strings.Join(cols, ",\n  "))
}

// CreateDataTable creates the data table for viewID with one positional column
// per definition and records the definitions in the sidecar tables.
// It is not idempotent: a second call for the same view fails with a conflict
// until DropDataTable is called.
func (m *Manager) CreateDataTable(ctx context.Context, viewID string, columns []schema.ColumnDefinition) error {
	const op = "storage.create_data_table"

	table, err := DataTableName(viewID)
	if err != nil {
		return err
	}
	if err := validateColumns(op, columns); err != nil {
		return err
	}
	db, err := m.conn(op)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return wrapErr(op, err, "beginning transaction")
	}
	defer tx.Rollback()

	exists, err := tableExists(ctx, tx, table)
	if err != nil {
		return wrapErr(op, err, "checking for existing table")
	}
	if exists {
		return apperr.Conflict(op, "data table for view %s already exists", viewID)
	}
	if err := m.createDataTableTx(ctx, tx, op, viewID, table, columns); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return wrapErr(op, err, "committing data table")
	}

	m.log.Info("created data table",
		zap.String("view_id", viewID),
		zap.String("table", table),
		zap.Int("columns", len(columns)))
	return nil
}

// RowInserter appends one file's rows to a data table under construction and
// returns how many were inserted.
type RowInserter func(sourceFile string, rows [][]any) (int64, error)

// TableLoader fills a data table under construction through insert.
type TableLoader func(insert RowInserter) error

// BuildDataTable creates viewID's data table from columns and fills it with
// load, all in one transaction. With replace, an existing table is dropped in
// the same transaction; without it, an existing table is a conflict. If any
// step fails the store is left as it was, including a previous table.
// load may be nil to create an empty table. It must not use m directly: the
// transaction holds the only connection until it returns.
func (m *Manager) BuildDataTable(ctx context.Context, viewID string, columns []schema.ColumnDefinition, replace bool, load TableLoader) (bool, error) {
	const op = "storage.build_data_table"

	table, err := DataTableName(viewID)
	if err != nil {
		return false, err
	}
	if err := validateColumns(op, columns); err != nil {
		return false, err
	}
	db, err := m.conn(op)
	if err != nil {
		return false, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return false, wrapErr(op, err, "beginning transaction")
	}
	defer tx.Rollback()

	exists, err := tableExists(ctx, tx, table)
	if err != nil {
		return false, wrapErr(op, err, "checking for existing table")
	}
	if exists && !replace {
		return false, apperr.Conflict(op, "data table for view %s already exists", viewID)
	}
	if exists {
		if err := dropDataTableTx(ctx, tx, op, viewID, table); err != nil {
			return false, err
		}
	}
	if err := m.createDataTableTx(ctx, tx, op, viewID, table, columns); err != nil {
		return false, err
	}

	var inserted int64
	if load != nil {
		stmt, err := prepareInsert(ctx, tx, table, len(columns))
		if err != nil {
			return false, wrapErr(op, err, "preparing insert")
		}
		defer stmt.Close()

		insert := func(sourceFile string, rows [][]any) (int64, error) {
			n, err := insertRowsStmt(ctx, stmt, op, sourceFile, rows, len(columns))
			inserted += n
			return n, err
		}
		if err := load(insert); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return false, wrapErr(op, err, "committing data table")
	}

	m.log.Info("built data table",
		zap.String("view_id", viewID),
		zap.String("table", table),
		zap.Int("columns", len(columns)),
		zap.Int64("rows", inserted),
		zap.Bool("replaced", exists))
	return exists, nil
}

func validateColumns(op string, columns []schema.ColumnDefinition) error {
	seen := make(map[string]bool, len(columns))
	for i, c := range columns {
		if !c.Type.Valid() {
			return apperr.Validation(op, "column %d (%s) has invalid type %q", i+1, c.Name, c.Type)
		}
		if seen[c.Path] {
			return apperr.Validation(op, "duplicate column path %q", c.Path)
		}
		seen[c.Path] = true
	}
	return nil
}

// createDataTableTx runs the DDL and records the sidecar rows inside tx.
func (m *Manager) createDataTableTx(ctx context.Context, tx *sql.Tx, op, viewID, table string, columns []schema.ColumnDefinition) error {
	if _, err := tx.ExecContext(ctx, generateDDL(table, columns)); err != nil {
		return wrapErr(op, err, "creating data table")
	}

	_, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO data_tables (view_id, table_name, column_count, fingerprint, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, viewID, table, len(columns), schema.Fingerprint(columns), m.now().UnixNano())
	if err != nil {
		return wrapErr(op, err, "recording data table")
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO data_columns (view_id, position, column_name, name, path, type)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return wrapErr(op, err, "preparing column insert")
	}
	defer stmt.Close()

	for i, c := range columns {
		if _, err := stmt.ExecContext(ctx, viewID, i+1, ColumnName(i+1), c.Name, c.Path, string(c.Type)); err != nil {
			return wrapErr(op, err, "recording column %d", i+1)
		}
	}
	return nil
}

// DropDataTable removes the data table and its sidecar rows. It succeeds if
// no table exists.
func (m *Manager) DropDataTable(ctx context.Context, viewID string) error {
	const op = "storage.drop_data_table"

	table, err := DataTableName(viewID)
	if err != nil {
		return err
	}
	db, err := m.conn(op)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return wrapErr(op, err, "beginning transaction")
	}
	defer tx.Rollback()

	if err := dropDataTableTx(ctx, tx, op, viewID, table); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return wrapErr(op, err, "committing drop")
	}
	m.log.Debug("dropped data table", zap.String("view_id", viewID), zap.String("table", table))
	return nil
}

func dropDataTableTx(ctx context.Context, tx *sql.Tx, op, viewID, table string) error {
	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
		return wrapErr(op, err, "dropping data table")
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM data_columns WHERE view_id = ?", viewID); err != nil {
		return wrapErr(op, err, "removing column metadata")
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM data_tables WHERE view_id = ?", viewID); err != nil {
		return wrapErr(op, err, "removing table metadata")
	}
	return nil
}

// DataTableExists reports whether the data table for viewID exists.
func (m *Manager) DataTableExists(ctx context.Context, viewID string) (bool, error) {
	const op = "storage.data_table_exists"

	table, err := DataTableName(viewID)
	if err != nil {
		return false, err
	}
	db, err := m.conn(op)
	if err != nil {
		return false, err
	}

	exists, err := tableExists(ctx, db, table)
	if err != nil {
		return false, wrapErr(op, err, "checking for data table")
	}
	return exists, nil
}

// GetDataTableSchema returns the column definitions recorded for viewID's
// data table in positional order. It returns an empty list if none exist.
func (m *Manager) GetDataTableSchema(ctx context.Context, viewID string) ([]schema.ColumnDefinition, error) {
	const op = "storage.data_table_schema"

	if _, err := DataTableName(viewID); err != nil {
		return nil, err
	}
	db, err := m.conn(op)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT name, path, type
		FROM data_columns
		WHERE view_id = ?
		ORDER BY position
	`, viewID)
	if err != nil {
		return nil, wrapErr(op, err, "querying column metadata")
	}
	defer rows.Close()

	columns := []schema.ColumnDefinition{}
	for rows.Next() {
		var c schema.ColumnDefinition
		var typ string
		if err := rows.Scan(&c.Name, &c.Path, &typ); err != nil {
			return nil, wrapErr(op, err, "scanning column metadata")
		}
		c.Type = schema.ColumnType(typ)
		columns = append(columns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr(op, err, "reading column metadata")
	}
	return columns, nil
}

// DataTableInfo returns the recorded details of viewID's data table, or nil if none.
func (m *Manager) DataTableInfo(ctx context.Context, viewID string) (*DataTableInfo, error) {
	const op = "storage.data_table_info"

	if _, err := DataTableName(viewID); err != nil {
		return nil, err
	}
	db, err := m.conn(op)
	if err != nil {
		return nil, err
	}

	info := DataTableInfo{ViewID: viewID}
	var createdAt int64
	err = db.QueryRowContext(ctx, `
		SELECT table_name, column_count, fingerprint, created_at
		FROM data_tables
		WHERE view_id = ?
	`, viewID).Scan(&info.TableName, &info.ColumnCount, &info.Fingerprint, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr(op, err, "reading data table metadata")
	}
	info.CreatedAt = time.Unix(0, createdAt).UTC()

	if info.Rows, err = m.CountRows(ctx, viewID); err != nil {
		return nil, err
	}
	return &info, nil
}

// InsertRows appends rows to viewID's data table in a single transaction.
// Every row must have exactly one value per column, in column order.
func (m *Manager) InsertRows(ctx context.Context, viewID, sourceFile string, rows [][]any) (int64, error) {
	const op = "storage.insert_rows"

	table, err := DataTableName(viewID)
	if err != nil {
		return 0, err
	}
	db, err := m.conn(op)
	if err != nil {
		return 0, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, wrapErr(op, err, "beginning transaction")
	}
	defer tx.Rollback()

	var count int
	err = tx.QueryRowContext(ctx, "SELECT column_count FROM data_tables WHERE view_id = ?", viewID).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, apperr.NotFound(op, "no data table for view %s", viewID)
	}
	if err != nil {
		return 0, wrapErr(op, err, "reading column count")
	}

	stmt, err := prepareInsert(ctx, tx, table, count)
	if err != nil {
		return 0, wrapErr(op, err, "preparing insert")
	}
	defer stmt.Close()

	if _, err := insertRowsStmt(ctx, stmt, op, sourceFile, rows, count); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, wrapErr(op, err, "committing rows")
	}
	return int64(len(rows)), nil
}

// prepareInsert prepares an insert of one row into table with count positional columns.
func prepareInsert(ctx context.Context, tx *sql.Tx, table string, count int) (*sql.Stmt, error) {
	cols := []string{SourceFileColumn}
	placeholders := []string{"?"}
	for i := 1; i <= count; i++ {
		cols = append(cols, ColumnName(i))
		placeholders = append(placeholders, "?")
	}
	return tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(cols, ", "), strings.Join(placeholders, ", ")))
}

// insertRowsStmt inserts rows through stmt. Every row must have count values.
func insertRowsStmt(ctx context.Context, stmt *sql.Stmt, op, sourceFile string, rows [][]any, count int) (int64, error) {
	args := make([]any, count+1)
	args[0] = sourceFile
	for i, row := range rows {
		if len(row) != count {
			return int64(i), apperr.Validation(op, "row %d has %d values, want %d", i+1, len(row), count)
		}
		copy(args[1:], row)
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return int64(i), wrapErr(op, err, "inserting row %d", i+1)
		}
	}
	return int64(len(rows)), nil
}

// CountRows returns the number of rows in viewID's data table, or 0 if it does not exist.
func (m *Manager) CountRows(ctx context.Context, viewID string) (int64, error) {
	const op = "storage.count_rows"

	table, err := DataTableName(viewID)
	if err != nil {
		return 0, err
	}
	db, err := m.conn(op)
	if err != nil {
		return 0, err
	}

	exists, err := tableExists(ctx, db, table)
	if err != nil {
		return 0, wrapErr(op, err, "checking for data table")
	}
	if !exists {
		return 0, nil
	}

	var n int64
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		return 0, wrapErr(op, err, "counting rows")
	}
	return n, nil
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func tableExists(ctx context.Context, q queryer, table string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
