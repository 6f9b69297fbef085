package view

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/matsen/jsonviews/internal/apperr"
	"github.com/matsen/jsonviews/internal/schema"
	"github.com/matsen/jsonviews/internal/storage"
	"go.uber.org/zap"
)

const selectViews = `
	SELECT id, name, created_at, last_modified, last_query
	FROM views
`

// QueryUpdate describes a change to a view's saved query. The zero value
// leaves the query unchanged.
type QueryUpdate struct {
	set   bool
	value json.RawMessage
}

// SetQuery stores q as the view's query. A JSON null clears it.
func SetQuery(q json.RawMessage) QueryUpdate {
	return QueryUpdate{set: true, value: q}
}

// ClearQuery removes the view's saved query.
func ClearQuery() QueryUpdate {
	return QueryUpdate{set: true}
}

// ViewUpdate holds the optional fields of an UpdateView call.
type ViewUpdate struct {
	Name      *string
	LastQuery QueryUpdate
}

// validateID checks that viewID is a well-formed view id.
func validateID(op, viewID string) error {
	if viewID == "" {
		return apperr.Validation(op, "view id is required")
	}
	if _, err := uuid.Parse(viewID); err != nil {
		return apperr.Validation(op, "invalid view id %q", viewID)
	}
	return nil
}

// CreateView adds a view named name to the project at projectDir.
// The name is trimmed and validated; a case-insensitive duplicate fails with
// a conflict, whether found by the pre-check or by the store's constraint.
func (r *Registry) CreateView(ctx context.Context, projectDir, name string) (*View, error) {
	const op = "view.create"

	name, err := NormalizeName(name)
	if err != nil {
		return nil, err
	}
	h, err := r.Handle(ctx, projectDir)
	if err != nil {
		return nil, err
	}

	exists, err := nameExists(ctx, h, name, "")
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, nameConflict(op, name)
	}

	now := r.now().UTC()
	v := &View{
		ID:           r.newID(),
		ProjectDir:   h.WorkingDir(),
		Name:         name,
		CreatedAt:    now,
		LastModified: now,
		TableSchema:  []schema.ColumnDefinition{},
	}

	_, err = h.ExecuteNonQuery(ctx, `
		INSERT INTO views (id, name, name_key, created_at, last_modified, last_query)
		VALUES (?, ?, ?, ?, ?, NULL)
	`, v.ID, v.Name, nameKey(v.Name), now.UnixNano(), now.UnixNano())
	if apperr.IsConflict(err) {
		// Lost a race with a concurrent create of the same name.
		return nil, nameConflict(op, name)
	}
	if err != nil {
		return nil, err
	}

	r.log.Info("created view", zap.String("view_id", v.ID), zap.String("name", v.Name), zap.String("project", v.ProjectDir))
	return v, nil
}

// GetView returns the view with viewID, including its materialized schema.
func (r *Registry) GetView(ctx context.Context, projectDir, viewID string) (*View, error) {
	const op = "view.get"

	if err := validateID(op, viewID); err != nil {
		return nil, err
	}
	h, err := r.Handle(ctx, projectDir)
	if err != nil {
		return nil, err
	}
	return getView(ctx, h, op, viewID)
}

// FindViewByName returns the view whose name matches name case-insensitively.
func (r *Registry) FindViewByName(ctx context.Context, projectDir, name string) (*View, error) {
	const op = "view.find"

	name, err := NormalizeName(name)
	if err != nil {
		return nil, err
	}
	h, err := r.Handle(ctx, projectDir)
	if err != nil {
		return nil, err
	}

	records, err := h.ExecuteQuery(ctx, "SELECT id FROM views WHERE name_key = ?", nameKey(name))
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, apperr.NotFound(op, "no view named %q", name)
	}
	id, _ := records[0]["id"].(string)
	return getView(ctx, h, op, id)
}

// GetViewsForProject returns all views in the project, most recently modified first.
func (r *Registry) GetViewsForProject(ctx context.Context, projectDir string) ([]*View, error) {
	h, err := r.Handle(ctx, projectDir)
	if err != nil {
		return nil, err
	}

	records, err := h.ExecuteQuery(ctx, selectViews+" ORDER BY last_modified DESC, created_at DESC, id")
	if err != nil {
		return nil, err
	}

	views := make([]*View, 0, len(records))
	for _, rec := range records {
		v, err := viewFromRecord(h, rec)
		if err != nil {
			return nil, err
		}
		if v.TableSchema, err = h.GetDataTableSchema(ctx, v.ID); err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, nil
}

// UpdateView applies upd to the view. lastModified always advances, even when
// upd changes nothing.
func (r *Registry) UpdateView(ctx context.Context, projectDir, viewID string, upd ViewUpdate) (*View, error) {
	const op = "view.update"

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

	if upd.Name != nil {
		name, err := NormalizeName(*upd.Name)
		if err != nil {
			return nil, err
		}
		exists, err := nameExists(ctx, h, name, viewID)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, nameConflict(op, name)
		}
		v.Name = name
	}

	if upd.LastQuery.set {
		q := upd.LastQuery.value
		if len(q) > 0 && !json.Valid(q) {
			return nil, apperr.Validation(op, "last query is not valid JSON")
		}
		if len(q) == 0 || string(q) == "null" {
			q = nil
		}
		v.LastQuery = q
	}

	v.LastModified = r.touch(v.LastModified)

	var stored any
	if v.HasQuery() {
		stored = string(v.LastQuery)
	}
	res, err := h.ExecuteNonQuery(ctx, `
		UPDATE views
		SET name = ?, name_key = ?, last_query = ?, last_modified = ?
		WHERE id = ?
	`, v.Name, nameKey(v.Name), stored, v.LastModified.UnixNano(), viewID)
	if apperr.IsConflict(err) {
		return nil, nameConflict(op, v.Name)
	}
	if err != nil {
		return nil, err
	}
	if res.Changes == 0 {
		return nil, apperr.NotFound(op, "view %s not found", viewID)
	}

	r.log.Debug("updated view", zap.String("view_id", viewID), zap.String("name", v.Name))
	return v, nil
}

// DeleteViewInProject removes a view. It returns false without error if the
// view does not exist. The data table drop is best effort: a failure is
// logged and does not block removal of the metadata.
func (r *Registry) DeleteViewInProject(ctx context.Context, projectDir, viewID string) (bool, error) {
	const op = "view.delete"

	if err := validateID(op, viewID); err != nil {
		return false, err
	}
	h, err := r.Handle(ctx, projectDir)
	if err != nil {
		return false, err
	}

	records, err := h.ExecuteQuery(ctx, "SELECT id FROM views WHERE id = ?", viewID)
	if err != nil {
		return false, err
	}
	if len(records) == 0 {
		return false, nil
	}

	if err := h.DropDataTable(ctx, viewID); err != nil {
		perr := apperr.Partial(op, err, "dropping data table for view %s", viewID)
		r.log.Warn("data table not dropped", zap.String("view_id", viewID), zap.Error(perr))
	}

	res, err := h.ExecuteNonQuery(ctx, "DELETE FROM views WHERE id = ?", viewID)
	if err != nil {
		return false, err
	}

	deleted := res.Changes > 0
	if deleted {
		r.log.Info("deleted view", zap.String("view_id", viewID))
	}
	return deleted, nil
}

// ViewNameExists reports whether another view in the project has name,
// compared case-insensitively. excludeID, if set, is ignored so a view can
// be checked against its own name.
func (r *Registry) ViewNameExists(ctx context.Context, projectDir, name, excludeID string) (bool, error) {
	h, err := r.Handle(ctx, projectDir)
	if err != nil {
		return false, err
	}
	return nameExists(ctx, h, name, excludeID)
}

// IsViewNameAvailable reports whether name is valid and unused in the project.
// An invalid name is unavailable, not an error.
func (r *Registry) IsViewNameAvailable(ctx context.Context, projectDir, name, excludeID string) (bool, error) {
	name, err := NormalizeName(name)
	if err != nil {
		return false, nil
	}
	exists, err := r.ViewNameExists(ctx, projectDir, name, excludeID)
	if err != nil {
		return false, err
	}
	return !exists, nil
}

func nameExists(ctx context.Context, h *storage.Manager, name, excludeID string) (bool, error) {
	records, err := h.ExecuteQuery(ctx,
		"SELECT COUNT(*) AS n FROM views WHERE name_key = ? AND id != ?",
		nameKey(strings.TrimSpace(name)), excludeID)
	if err != nil {
		return false, err
	}
	return len(records) > 0 && asInt64(records[0]["n"]) > 0, nil
}

func nameConflict(op, name string) error {
	return apperr.Conflict(op, "a view named %q already exists", name)
}

func getView(ctx context.Context, h *storage.Manager, op, viewID string) (*View, error) {
	records, err := h.ExecuteQuery(ctx, selectViews+" WHERE id = ?", viewID)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, apperr.NotFound(op, "view %s not found", viewID)
	}

	v, err := viewFromRecord(h, records[0])
	if err != nil {
		return nil, err
	}
	if v.TableSchema, err = h.GetDataTableSchema(ctx, viewID); err != nil {
		return nil, err
	}
	return v, nil
}

// viewFromRecord reconstructs a View from a row of selectViews.
func viewFromRecord(h *storage.Manager, rec storage.Record) (*View, error) {
	id, _ := rec["id"].(string)
	name, _ := rec["name"].(string)
	if id == "" {
		return nil, apperr.Storage("view.read", nil, "view row without id")
	}

	v := &View{
		ID:           id,
		ProjectDir:   h.WorkingDir(),
		Name:         name,
		CreatedAt:    fromNanos(rec["created_at"]),
		LastModified: fromNanos(rec["last_modified"]),
	}

	switch q := rec["last_query"].(type) {
	case nil:
	case string:
		v.LastQuery = json.RawMessage(q)
	case []byte:
		v.LastQuery = json.RawMessage(q)
	default:
		return nil, apperr.Storage("view.read", nil, "view %s has last_query of type %T", id, q)
	}
	if v.HasQuery() && !json.Valid(v.LastQuery) {
		return nil, apperr.Storage("view.read", fmt.Errorf("invalid JSON"), "parsing last query of view %s", id)
	}
	return v, nil
}

func fromNanos(v any) time.Time {
	return time.Unix(0, asInt64(v)).UTC()
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}
