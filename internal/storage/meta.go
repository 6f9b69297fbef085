package storage

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"
)

// initMeta records the schema version and creation time on first open.
func (m *Manager) initMeta(ctx context.Context) error {
	const op = "storage.meta"

	db, err := m.conn(op)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx,
		`INSERT OR IGNORE INTO _meta (key, value) VALUES (?, ?), (?, ?)`,
		MetaSchemaVersion, SchemaVersion, MetaCreatedAt, strconv.FormatInt(m.now().UnixNano(), 10))
	if err != nil {
		return wrapErr(op, err, "initializing metadata")
	}
	return nil
}

// Meta returns a value from the _meta table, or "" if unset.
func (m *Manager) Meta(ctx context.Context, key string) (string, error) {
	const op = "storage.meta"

	db, err := m.conn(op)
	if err != nil {
		return "", err
	}
	var value sql.NullString
	err = db.QueryRowContext(ctx, "SELECT value FROM _meta WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", wrapErr(op, err, "reading %s", key)
	}
	return value.String, nil
}

// SetMeta stores a value in the _meta table.
func (m *Manager) SetMeta(ctx context.Context, key, value string) error {
	const op = "storage.meta"

	db, err := m.conn(op)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, `INSERT OR REPLACE INTO _meta (key, value) VALUES (?, ?)`, key, value); err != nil {
		return wrapErr(op, err, "writing %s", key)
	}
	return nil
}

// Keys in the _meta table.
const (
	MetaSchemaVersion    = "schema_version"
	MetaCreatedAt        = "created_at"
	MetaLastMaterialized = "last_materialized_at"
)

// CreatedAt returns when the store was first created.
func (m *Manager) CreatedAt(ctx context.Context) (time.Time, error) {
	return m.MetaTime(ctx, MetaCreatedAt)
}

// MetaTime returns a timestamp stored with SetMetaTime, or the zero time if unset.
func (m *Manager) MetaTime(ctx context.Context, key string) (time.Time, error) {
	raw, err := m.Meta(ctx, key)
	if err != nil || raw == "" {
		return time.Time{}, err
	}
	ns, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, wrapErr("storage.meta", err, "parsing %s", key)
	}
	return time.Unix(0, ns).UTC(), nil
}

// SetMetaTime stores t under key as Unix nanoseconds.
func (m *Manager) SetMetaTime(ctx context.Context, key string, t time.Time) error {
	return m.SetMeta(ctx, key, strconv.FormatInt(t.UnixNano(), 10))
}
