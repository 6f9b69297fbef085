package view

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/matsen/jsonviews/internal/apperr"
	"github.com/matsen/jsonviews/internal/schema"
	"github.com/matsen/jsonviews/internal/storage"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// stepClock returns a clock that advances one second per call.
func stepClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func newTestRegistry(t *testing.T, opts ...Option) (*Registry, string) {
	t.Helper()
	r := NewRegistry(opts...)
	t.Cleanup(r.Close)
	return r, t.TempDir()
}

func writeJSON(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestCreateView_ThenGet(t *testing.T) {
	r, dir := newTestRegistry(t)
	ctx := context.Background()

	v, err := r.CreateView(ctx, dir, "X")
	if err != nil {
		t.Fatalf("CreateView() error = %v", err)
	}
	if _, err := uuid.Parse(v.ID); err != nil {
		t.Errorf("ID = %q, want a UUID", v.ID)
	}
	if !v.CreatedAt.Equal(v.LastModified) {
		t.Errorf("CreatedAt = %v, LastModified = %v; want equal", v.CreatedAt, v.LastModified)
	}

	got, err := r.GetView(ctx, dir, v.ID)
	if err != nil {
		t.Fatalf("GetView() error = %v", err)
	}
	if got.Name != "X" {
		t.Errorf("Name = %q, want X", got.Name)
	}
	if got.HasQuery() {
		t.Errorf("LastQuery = %s, want absent", got.LastQuery)
	}
	if len(got.TableSchema) != 0 {
		t.Errorf("TableSchema = %v, want empty", got.TableSchema)
	}
	if diff := cmp.Diff(v, got); diff != "" {
		t.Errorf("GetView() mismatch (-want +got):\n%s", diff)
	}

	has, err := r.ViewHasDataTable(ctx, dir, v.ID)
	if err != nil || has {
		t.Errorf("ViewHasDataTable() = %v, %v; want false", has, err)
	}
}

func TestCreateView_TrimsName(t *testing.T) {
	r, dir := newTestRegistry(t)

	v, err := r.CreateView(context.Background(), dir, "  My View  ")
	if err != nil {
		t.Fatalf("CreateView() error = %v", err)
	}
	if v.Name != "My View" {
		t.Errorf("Name = %q, want %q", v.Name, "My View")
	}
}

func TestCreateView_InvalidName(t *testing.T) {
	r, dir := newTestRegistry(t)

	for _, name := range []string{"", fmt.Sprintf("%0256d", 0), "a<b"} {
		if _, err := r.CreateView(context.Background(), dir, name); !apperr.IsValidation(err) {
			t.Errorf("CreateView(%q) error = %v, want validation error", name, err)
		}
	}
}

func TestCreateView_CaseInsensitiveUniqueness(t *testing.T) {
	r, dir := newTestRegistry(t)
	ctx := context.Background()

	if _, err := r.CreateView(ctx, dir, "Sales"); err != nil {
		t.Fatalf("CreateView(Sales) error = %v", err)
	}

	for _, dup := range []string{"SALES", "sales", " sAlEs "} {
		_, err := r.CreateView(ctx, dir, dup)
		if !apperr.IsConflict(err) {
			t.Errorf("CreateView(%q) error = %v, want conflict", dup, err)
		}
	}

	if _, err := r.CreateView(ctx, dir, "Sales 2"); err != nil {
		t.Errorf("CreateView(Sales 2) error = %v", err)
	}

	// Names are scoped to a project.
	if _, err := r.CreateView(ctx, t.TempDir(), "SALES"); err != nil {
		t.Errorf("CreateView() in other project error = %v", err)
	}
}

func TestCreateView_ConcurrentSameName(t *testing.T) {
	r, dir := newTestRegistry(t)
	ctx := context.Background()

	const n = 8
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = r.CreateView(ctx, dir, "Race")
		}(i)
	}
	wg.Wait()

	created := 0
	for _, err := range errs {
		switch {
		case err == nil:
			created++
		case !apperr.IsConflict(err):
			t.Errorf("CreateView() error = %v, want conflict", err)
		}
	}
	if created != 1 {
		t.Errorf("created %d views, want exactly 1", created)
	}

	views, err := r.GetViewsForProject(ctx, dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(views) != 1 {
		t.Errorf("len(views) = %d, want 1", len(views))
	}
}

func TestGetView_Errors(t *testing.T) {
	r, dir := newTestRegistry(t)
	ctx := context.Background()

	if _, err := r.GetView(ctx, dir, uuid.NewString()); !apperr.IsNotFound(err) {
		t.Errorf("GetView(unknown) error = %v, want not found", err)
	}
	if _, err := r.GetView(ctx, dir, "not-an-id"); !apperr.IsValidation(err) {
		t.Errorf("GetView(bad id) error = %v, want validation error", err)
	}
	if _, err := r.GetView(ctx, "", uuid.NewString()); !apperr.IsValidation(err) {
		t.Errorf("GetView(no project) error = %v, want validation error", err)
	}
}

func TestGetViewsForProject_MostRecentFirst(t *testing.T) {
	r, dir := newTestRegistry(t, WithClock(stepClock()))
	ctx := context.Background()

	a, _ := r.CreateView(ctx, dir, "a")
	b, _ := r.CreateView(ctx, dir, "b")
	c, _ := r.CreateView(ctx, dir, "c")

	if _, err := r.UpdateView(ctx, dir, a.ID, ViewUpdate{}); err != nil {
		t.Fatal(err)
	}

	views, err := r.GetViewsForProject(ctx, dir)
	if err != nil {
		t.Fatalf("GetViewsForProject() error = %v", err)
	}
	var ids []string
	for _, v := range views {
		ids = append(ids, v.ID)
	}
	if diff := cmp.Diff([]string{a.ID, c.ID, b.ID}, ids); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}

	empty, err := r.GetViewsForProject(ctx, t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if empty == nil || len(empty) != 0 {
		t.Errorf("GetViewsForProject() on new project = %#v, want empty", empty)
	}
}

func TestUpdateView(t *testing.T) {
	fixed := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	r, dir := newTestRegistry(t, WithClock(func() time.Time { return fixed }))
	ctx := context.Background()

	v, err := r.CreateView(ctx, dir, "Orders")
	if err != nil {
		t.Fatal(err)
	}

	// No fields: lastModified still advances with a frozen clock.
	got, err := r.UpdateView(ctx, dir, v.ID, ViewUpdate{})
	if err != nil {
		t.Fatalf("UpdateView() error = %v", err)
	}
	if !got.LastModified.After(v.LastModified) {
		t.Errorf("LastModified = %v, want after %v", got.LastModified, v.LastModified)
	}
	if !got.CreatedAt.Equal(v.CreatedAt) {
		t.Errorf("CreatedAt changed: %v -> %v", v.CreatedAt, got.CreatedAt)
	}
	prev := got.LastModified

	query := json.RawMessage(`{"sql":"SELECT * FROM t","limit":10}`)
	got, err = r.UpdateView(ctx, dir, v.ID, ViewUpdate{LastQuery: SetQuery(query)})
	if err != nil {
		t.Fatalf("UpdateView(set query) error = %v", err)
	}
	stored, err := r.GetView(ctx, dir, v.ID)
	if err != nil {
		t.Fatal(err)
	}
	if string(stored.LastQuery) != string(query) {
		t.Errorf("LastQuery = %s, want %s", stored.LastQuery, query)
	}
	if !stored.LastModified.After(prev) {
		t.Errorf("LastModified = %v, want after %v", stored.LastModified, prev)
	}

	// Leaving the query out keeps it.
	name := "Orders 2024"
	if _, err := r.UpdateView(ctx, dir, v.ID, ViewUpdate{Name: &name}); err != nil {
		t.Fatalf("UpdateView(rename) error = %v", err)
	}
	stored, _ = r.GetView(ctx, dir, v.ID)
	if stored.Name != name || !stored.HasQuery() {
		t.Errorf("after rename: Name = %q, LastQuery = %s", stored.Name, stored.LastQuery)
	}

	for _, clearing := range []QueryUpdate{ClearQuery(), SetQuery(json.RawMessage("null"))} {
		if _, err := r.UpdateView(ctx, dir, v.ID, ViewUpdate{LastQuery: SetQuery(query)}); err != nil {
			t.Fatal(err)
		}
		if _, err := r.UpdateView(ctx, dir, v.ID, ViewUpdate{LastQuery: clearing}); err != nil {
			t.Fatalf("UpdateView(clear) error = %v", err)
		}
		stored, _ = r.GetView(ctx, dir, v.ID)
		if stored.HasQuery() {
			t.Errorf("LastQuery = %s after clear, want absent", stored.LastQuery)
		}
	}
}

func TestUpdateView_Rename(t *testing.T) {
	r, dir := newTestRegistry(t)
	ctx := context.Background()

	a, _ := r.CreateView(ctx, dir, "Alpha")
	if _, err := r.CreateView(ctx, dir, "Beta"); err != nil {
		t.Fatal(err)
	}

	// Changing only the case of its own name is allowed.
	upper := "ALPHA"
	got, err := r.UpdateView(ctx, dir, a.ID, ViewUpdate{Name: &upper})
	if err != nil {
		t.Fatalf("UpdateView(ALPHA) error = %v", err)
	}
	if got.Name != "ALPHA" {
		t.Errorf("Name = %q, want ALPHA", got.Name)
	}

	taken := " beta "
	if _, err := r.UpdateView(ctx, dir, a.ID, ViewUpdate{Name: &taken}); !apperr.IsConflict(err) {
		t.Errorf("UpdateView(beta) error = %v, want conflict", err)
	}

	bad := "a/b"
	if _, err := r.UpdateView(ctx, dir, a.ID, ViewUpdate{Name: &bad}); !apperr.IsValidation(err) {
		t.Errorf("UpdateView(a/b) error = %v, want validation error", err)
	}
}

func TestUpdateView_Errors(t *testing.T) {
	r, dir := newTestRegistry(t)
	ctx := context.Background()

	if _, err := r.UpdateView(ctx, dir, uuid.NewString(), ViewUpdate{}); !apperr.IsNotFound(err) {
		t.Errorf("UpdateView(unknown) error = %v, want not found", err)
	}

	v, _ := r.CreateView(ctx, dir, "v")
	upd := ViewUpdate{LastQuery: SetQuery(json.RawMessage(`{"sql":`))}
	if _, err := r.UpdateView(ctx, dir, v.ID, upd); !apperr.IsValidation(err) {
		t.Errorf("UpdateView(invalid query) error = %v, want validation error", err)
	}
}

func TestDeleteViewInProject(t *testing.T) {
	r, dir := newTestRegistry(t)
	ctx := context.Background()

	deleted, err := r.DeleteViewInProject(ctx, dir, uuid.NewString())
	if err != nil || deleted {
		t.Errorf("DeleteViewInProject(unknown) = %v, %v; want false, nil", deleted, err)
	}

	v, _ := r.CreateView(ctx, dir, "Events")
	h, err := r.Handle(ctx, dir)
	if err != nil {
		t.Fatal(err)
	}
	cols := []schema.ColumnDefinition{{Name: "id", Type: schema.TypeInteger, Path: "id"}}
	if err := r.CreateDataTable(ctx, h, v.ID, cols); err != nil {
		t.Fatalf("CreateDataTable() error = %v", err)
	}
	if has, _ := r.ViewHasDataTable(ctx, dir, v.ID); !has {
		t.Fatal("ViewHasDataTable() = false after CreateDataTable")
	}

	deleted, err = r.DeleteViewInProject(ctx, dir, v.ID)
	if err != nil || !deleted {
		t.Fatalf("DeleteViewInProject() = %v, %v; want true, nil", deleted, err)
	}

	if has, err := r.ViewHasDataTable(ctx, dir, v.ID); err != nil || has {
		t.Errorf("ViewHasDataTable() = %v, %v; want false", has, err)
	}
	if _, err := r.GetView(ctx, dir, v.ID); !apperr.IsNotFound(err) {
		t.Errorf("GetView() after delete error = %v, want not found", err)
	}

	// The name is free again.
	if _, err := r.CreateView(ctx, dir, "events"); err != nil {
		t.Errorf("CreateView() after delete error = %v", err)
	}
}

func TestViewNameExists(t *testing.T) {
	r, dir := newTestRegistry(t)
	ctx := context.Background()

	v, _ := r.CreateView(ctx, dir, "Inventory")

	tests := []struct {
		name      string
		excludeID string
		exists    bool
		available bool
	}{
		{"Inventory", "", true, false},
		{"INVENTORY", "", true, false},
		{" inventory ", "", true, false},
		{"inventory", v.ID, false, true},
		{"Other", "", false, true},
		{"bad<name", "", false, false},
	}

	for _, tt := range tests {
		exists, err := r.ViewNameExists(ctx, dir, tt.name, tt.excludeID)
		if err != nil {
			t.Fatalf("ViewNameExists(%q) error = %v", tt.name, err)
		}
		if exists != tt.exists {
			t.Errorf("ViewNameExists(%q, %q) = %v, want %v", tt.name, tt.excludeID, exists, tt.exists)
		}

		available, err := r.IsViewNameAvailable(ctx, dir, tt.name, tt.excludeID)
		if err != nil {
			t.Fatalf("IsViewNameAvailable(%q) error = %v", tt.name, err)
		}
		if available != tt.available {
			t.Errorf("IsViewNameAvailable(%q, %q) = %v, want %v", tt.name, tt.excludeID, available, tt.available)
		}
	}
}

func TestHandle_Caching(t *testing.T) {
	r, dir := newTestRegistry(t)
	ctx := context.Background()

	h1, err := r.Handle(ctx, dir)
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	h2, err := r.Handle(ctx, dir+string(filepath.Separator))
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Error("Handle() opened a second store for the same directory")
	}

	// A closed handle is replaced transparently.
	h1.Close()
	h3, err := r.Handle(ctx, dir)
	if err != nil {
		t.Fatalf("Handle() after close error = %v", err)
	}
	if h3 == h1 || !h3.IsConnected() {
		t.Error("Handle() returned a disconnected store")
	}

	if diff := cmp.Diff([]string{dir}, r.OpenProjects()); diff != "" {
		t.Errorf("OpenProjects() mismatch (-want +got):\n%s", diff)
	}

	r.CloseProjectDatabase(dir)
	if h3.IsConnected() {
		t.Error("CloseProjectDatabase() left the store open")
	}
	if len(r.OpenProjects()) != 0 {
		t.Errorf("OpenProjects() = %v after close, want empty", r.OpenProjects())
	}

	// Closing twice, or closing an unknown project, is harmless.
	r.CloseProjectDatabase(dir)
	r.CloseProjectDatabase(t.TempDir())
	r.Close()
	r.Close()
}

func TestHandle_BusyStoreDoesNotBlockOthers(t *testing.T) {
	r, busyDir := newTestRegistry(t)
	ctx := context.Background()
	otherDir := t.TempDir()

	busy, err := r.Handle(ctx, busyDir)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Handle(ctx, otherDir); err != nil {
		t.Fatal(err)
	}

	// Hold busy's only connection inside a build until released.
	started, release := make(chan struct{}), make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		cols := []schema.ColumnDefinition{{Name: "a", Type: schema.TypeText, Path: "a"}}
		_, err := busy.BuildDataTable(ctx, uuid.NewString(), cols, false, func(storage.RowInserter) error {
			close(started)
			<-release
			return nil
		})
		if err != nil {
			t.Errorf("BuildDataTable() error = %v", err)
		}
	}()
	<-started

	var again *storage.Manager
	go func() {
		defer wg.Done()
		h, err := r.Handle(ctx, busyDir)
		if err != nil {
			t.Errorf("Handle(busy) error = %v", err)
		}
		again = h
	}()
	time.Sleep(100 * time.Millisecond)

	begin := time.Now()
	if _, err := r.Handle(ctx, otherDir); err != nil {
		t.Errorf("Handle(other) error = %v", err)
	}
	if d := time.Since(begin); d > 500*time.Millisecond {
		t.Errorf("Handle(other) took %v while another store was busy", d)
	}

	close(release)
	wg.Wait()
	if again != busy {
		t.Error("Handle() replaced a busy but healthy store")
	}
}

func TestWithStoreOptions(t *testing.T) {
	r, dir := newTestRegistry(t, WithStoreOptions(storage.WithBusyTimeout(250*time.Millisecond)))
	ctx := context.Background()

	h, err := r.Handle(ctx, dir)
	if err != nil {
		t.Fatal(err)
	}
	records, err := h.ExecuteQuery(ctx, "PRAGMA busy_timeout")
	if err != nil {
		t.Fatalf("ExecuteQuery() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("PRAGMA busy_timeout = %v, want one row", records)
	}
	for _, got := range records[0] {
		if got != int64(250) {
			t.Errorf("busy_timeout = %v, want 250", got)
		}
	}
}

func TestHandle_IsolatedRegistries(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	r1 := NewRegistry()
	defer r1.Close()
	r2 := NewRegistry()
	defer r2.Close()

	h1, err := r1.Handle(ctx, dir)
	if err != nil {
		t.Fatal(err)
	}
	h2, err := r2.Handle(ctx, dir)
	if err != nil {
		t.Fatal(err)
	}
	if h1 == h2 {
		t.Error("registries share a handle")
	}

	r1.Close()
	if !h2.IsConnected() {
		t.Error("closing one registry closed another's handle")
	}
}

func TestHandle_OpenError(t *testing.T) {
	r, _ := newTestRegistry(t)

	_, err := r.Handle(context.Background(), filepath.Join(t.TempDir(), "missing"))
	if !apperr.IsValidation(err) {
		t.Errorf("Handle(missing dir) error = %v, want validation error", err)
	}
	if len(r.OpenProjects()) != 0 {
		t.Error("failed open was cached")
	}
}

func TestCreateDataTable_Twice(t *testing.T) {
	r, dir := newTestRegistry(t, WithClock(stepClock()))
	ctx := context.Background()

	v, _ := r.CreateView(ctx, dir, "v")
	h, _ := r.Handle(ctx, dir)
	cols := []schema.ColumnDefinition{{Name: "a", Type: schema.TypeText, Path: "a"}}

	if err := r.CreateDataTable(ctx, h, v.ID, cols); err != nil {
		t.Fatalf("CreateDataTable() error = %v", err)
	}
	if err := r.CreateDataTable(ctx, h, v.ID, cols); !apperr.IsConflict(err) {
		t.Errorf("second CreateDataTable() error = %v, want conflict", err)
	}

	got, err := r.GetView(ctx, dir, v.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.LastModified.After(v.LastModified) {
		t.Error("CreateDataTable() did not advance LastModified")
	}
	if diff := cmp.Diff(cols, got.TableSchema); diff != "" {
		t.Errorf("TableSchema mismatch (-want +got):\n%s", diff)
	}

	if err := r.CreateDataTable(ctx, h, uuid.NewString(), cols); !apperr.IsNotFound(err) {
		t.Errorf("CreateDataTable(unknown view) error = %v, want not found", err)
	}
}

func TestFindViewByName(t *testing.T) {
	r, dir := newTestRegistry(t)
	ctx := context.Background()

	v, err := r.CreateView(ctx, dir, "Quarterly Sales")
	if err != nil {
		t.Fatal(err)
	}

	got, err := r.FindViewByName(ctx, dir, " quarterly SALES ")
	if err != nil {
		t.Fatalf("FindViewByName() error = %v", err)
	}
	if got.ID != v.ID {
		t.Errorf("FindViewByName() = %s, want %s", got.ID, v.ID)
	}

	if _, err := r.FindViewByName(ctx, dir, "Other"); !apperr.IsNotFound(err) {
		t.Errorf("FindViewByName(unknown) error = %v, want not found", err)
	}
	if _, err := r.FindViewByName(ctx, dir, ""); !apperr.IsValidation(err) {
		t.Errorf("FindViewByName(empty) error = %v, want validation", err)
	}
}
