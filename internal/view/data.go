package view

import (
	"context"

	"github.com/matsen/jsonviews/internal/apperr"
	"github.com/matsen/jsonviews/internal/schema"
	"github.com/matsen/jsonviews/internal/storage"
	"go.uber.org/zap"
)

// GetViewDataSchema returns the columns of the view's data table, or an empty
// list if the view has not been materialized.
func (r *Registry) GetViewDataSchema(ctx context.Context, projectDir, viewID string) ([]schema.ColumnDefinition, error) {
	h, err := r.viewHandle(ctx, "view.data_schema", projectDir, viewID)
	if err != nil {
		return nil, err
	}
	return h.GetDataTableSchema(ctx, viewID)
}

// ViewHasDataTable reports whether the view has a materialized data table.
// It is false for views that no longer exist.
func (r *Registry) ViewHasDataTable(ctx context.Context, projectDir, viewID string) (bool, error) {
	h, err := r.viewHandle(ctx, "view.has_data_table", projectDir, viewID)
	if err != nil {
		return false, err
	}
	return h.DataTableExists(ctx, viewID)
}

// CreateDataTable creates the data table for a view in the store h and
// advances the view's lastModified. It fails with a conflict if the view
// already has a data table.
func (r *Registry) CreateDataTable(ctx context.Context, h *storage.Manager, viewID string, columns []schema.ColumnDefinition) error {
	const op = "view.create_data_table"

	if err := validateID(op, viewID); err != nil {
		return err
	}
	v, err := getView(ctx, h, op, viewID)
	if err != nil {
		return err
	}
	if err := h.CreateDataTable(ctx, viewID, columns); err != nil {
		return err
	}
	return r.bumpModified(ctx, h, v)
}

// ScanSourceFolders infers the merged schema of every JSON file under folders.
// progress, if non-nil, observes the scan.
func (r *Registry) ScanSourceFolders(ctx context.Context, folders []string, progress schema.ProgressFunc) (*schema.ScanResult, error) {
	opts := r.scanOpts
	opts.Progress = progress
	return schema.Scan(ctx, folders, opts)
}

// MaterializeOptions controls Materialize.
type MaterializeOptions struct {
	Replace      bool                // Drop an existing data table first
	Populate     bool                // Load records into the new table
	Progress     schema.ProgressFunc // Observes the scan
	LoadProgress schema.ProgressFunc // Observes population
}

// MaterializeResult reports what Materialize did.
type MaterializeResult struct {
	Scan         *schema.ScanResult `json:"scan"`
	Table        string             `json:"table"`
	Replaced     bool               `json:"replaced"`
	RowsInserted int64              `json:"rows_inserted"`
}

// Materialize scans folders, creates the view's data table from the inferred
// columns and, if requested, loads every record into it. Table creation and
// loading commit together: on failure no new table is left behind and, when
// replacing, the previous table is untouched. A view that already has a data
// table is only rebuilt with Replace.
func (r *Registry) Materialize(ctx context.Context, projectDir, viewID string, folders []string, opts MaterializeOptions) (*MaterializeResult, error) {
	const op = "view.materialize"

	if err := validateID(op, viewID); err != nil {
		return nil, err
	}
	h, err := r.Handle(ctx, projectDir)
	if err != nil {
		return nil, err
	}
	v, err := getView(ctx, h, op, viewID)
	if err != nil {
		return nil, err
	}

	exists, err := h.DataTableExists(ctx, viewID)
	if err != nil {
		return nil, err
	}
	if exists && !opts.Replace {
		return nil, apperr.Conflict(op, "view %q already has a data table", v.Name)
	}

	scan, err := r.ScanSourceFolders(ctx, folders, opts.Progress)
	if err != nil {
		return nil, err
	}
	scan.ViewID = viewID

	table, err := storage.DataTableName(viewID)
	if err != nil {
		return nil, err
	}
	res := &MaterializeResult{Scan: scan, Table: table}

	var load storage.TableLoader
	if opts.Populate {
		loadOpts := r.scanOpts
		loadOpts.Progress = opts.LoadProgress
		load = func(insert storage.RowInserter) error {
			_, err := schema.ReadRows(ctx, folders, scan.Columns, loadOpts, func(file string, rows [][]any) error {
				n, err := insert(file, rows)
				res.RowsInserted += n
				return err
			})
			return err
		}
	}

	// The previous table, if any, survives unless the whole build commits.
	if res.Replaced, err = h.BuildDataTable(ctx, viewID, scan.Columns, opts.Replace, load); err != nil {
		return nil, err
	}
	if err := r.bumpModified(ctx, h, v); err != nil {
		return nil, err
	}
	if err := h.SetMetaTime(ctx, storage.MetaLastMaterialized, v.LastModified); err != nil {
		return nil, err
	}

	r.log.Info("materialized view",
		zap.String("view_id", viewID),
		zap.Int("files", scan.ProcessedFiles),
		zap.Int("columns", len(scan.Columns)),
		zap.Int64("rows", res.RowsInserted))
	return res, nil
}

// viewHandle validates viewID and returns the project's store.
func (r *Registry) viewHandle(ctx context.Context, op, projectDir, viewID string) (*storage.Manager, error) {
	if err := validateID(op, viewID); err != nil {
		return nil, err
	}
	return r.Handle(ctx, projectDir)
}

// bumpModified advances the stored lastModified of v.
func (r *Registry) bumpModified(ctx context.Context, h *storage.Manager, v *View) error {
	v.LastModified = r.touch(v.LastModified)
	_, err := h.ExecuteNonQuery(ctx, "UPDATE views SET last_modified = ? WHERE id = ?", v.LastModified.UnixNano(), v.ID)
	return err
}
