package store

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

func addFile(t *testing.T, db *DB, path, title, content string) *MemoryFile {
	t.Helper()
	f := &MemoryFile{
		URI:      "memory://" + path[:len(path)-len(".md")],
		Path:     path,
		Title:    title,
		Slug:     title,
		Content:  content,
		Checksum: "sum-" + content,
		Size:     int64(len(content)),
	}
	if err := db.UpsertFile(f); err != nil {
		t.Fatalf("UpsertFile %s: %v", path, err)
	}
	return f
}

func TestUpsertFileInsert(t *testing.T) {
	db := testDB(t)

	f := addFile(t, db, "notes/auth.md", "auth", "jwt tokens rotate hourly")
	if f.ID == 0 {
		t.Fatal("expected ID to be set")
	}
	if f.CreatedAt == 0 || f.IndexedAt == 0 {
		t.Error("expected timestamps to be set")
	}
	if f.LastAccessed != nil {
		t.Error("new file should have no last_accessed")
	}

	got, err := db.View().FileByURI("memory://notes/auth")
	if err != nil {
		t.Fatalf("FileByURI: %v", err)
	}
	if got.Content != "jwt tokens rotate hourly" {
		t.Errorf("content = %q", got.Content)
	}
	if got.Tier != "" {
		t.Errorf("tier = %q, want empty", got.Tier)
	}
}

func TestUpsertFileKeepsCreatedAndAccess(t *testing.T) {
	db := testDB(t)

	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	f := &MemoryFile{
		URI: "memory://a", Path: "a.md", Title: "a", Slug: "a",
		Content: "one", Checksum: "1", Tier: "workflow", CreatedAt: created,
	}
	if err := db.UpsertFile(f); err != nil {
		t.Fatalf("UpsertFile: %v", err)
	}
	read := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	if err := db.Accesses().SetLastAccessed("memory://a", read); err != nil {
		t.Fatalf("SetLastAccessed: %v", err)
	}

	f2 := &MemoryFile{
		URI: "memory://a", Path: "a.md", Title: "a", Slug: "a",
		Content: "two", Checksum: "2",
	}
	if err := db.UpsertFile(f2); err != nil {
		t.Fatalf("UpsertFile again: %v", err)
	}
	if f2.ID != f.ID {
		t.Errorf("ID changed: %d → %d", f.ID, f2.ID)
	}
	if f2.CreatedAt != created {
		t.Errorf("created_at = %d, want %d", f2.CreatedAt, created)
	}
	if f2.LastAccessed == nil || *f2.LastAccessed != read.UnixMilli() {
		t.Errorf("last_accessed not kept: %v", f2.LastAccessed)
	}
	if f2.Tier != "workflow" {
		t.Errorf("tier = %q, want workflow kept", f2.Tier)
	}
	if f2.Content != "two" {
		t.Errorf("content = %q, want two", f2.Content)
	}
}

func TestSetLastAccessed(t *testing.T) {
	db := testDB(t)
	f := addFile(t, db, "a.md", "a", "x")

	at := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	if err := db.Accesses().SetLastAccessed(f.URI, at); err != nil {
		t.Fatalf("SetLastAccessed: %v", err)
	}
	got, _ := db.View().FileByURI(f.URI)
	if la := got.LastAccessedTime(); la == nil || !la.Equal(at) {
		t.Errorf("LastAccessedTime = %v, want %v", la, at)
	}

	err := db.Accesses().SetLastAccessed("memory://missing", at)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestFileNotFound(t *testing.T) {
	db := testDB(t)
	if _, err := db.View().FileByURI("memory://nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("FileByURI err = %v, want ErrNotFound", err)
	}
	if _, err := db.View().FileByPath("nope.md"); !errors.Is(err, ErrNotFound) {
		t.Errorf("FileByPath err = %v, want ErrNotFound", err)
	}
}

func TestFilesBySlug(t *testing.T) {
	db := testDB(t)
	addFile(t, db, "a/auth.md", "auth", "one")
	addFile(t, db, "b/auth.md", "auth", "two")
	addFile(t, db, "c/other.md", "other", "three")

	files, err := db.View().FilesBySlug("auth")
	if err != nil {
		t.Fatalf("FilesBySlug: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("got %d files, want 2", len(files))
	}
}

func TestFilesByIDsAndURIs(t *testing.T) {
	db := testDB(t)
	a := addFile(t, db, "a.md", "a", "one")
	b := addFile(t, db, "b.md", "b", "two")

	byID, err := db.View().FilesByIDs([]int64{a.ID, b.ID, 999})
	if err != nil {
		t.Fatalf("FilesByIDs: %v", err)
	}
	if len(byID) != 2 || byID[a.ID].Path != "a.md" {
		t.Errorf("FilesByIDs = %v", byID)
	}

	byURI, err := db.View().FilesByURIs([]string{b.URI})
	if err != nil {
		t.Fatalf("FilesByURIs: %v", err)
	}
	if len(byURI) != 1 || byURI[b.URI].ID != b.ID {
		t.Errorf("FilesByURIs = %v", byURI)
	}

	empty, err := db.View().FilesByIDs(nil)
	if err != nil || len(empty) != 0 {
		t.Errorf("FilesByIDs(nil) = %v, %v", empty, err)
	}
}

func TestListFilesFolder(t *testing.T) {
	db := testDB(t)
	addFile(t, db, "projects/recall/a.md", "a", "one")
	addFile(t, db, "projects/recall/b.md", "b", "two")
	addFile(t, db, "projects/other/c.md", "c", "three")
	addFile(t, db, "projects_x/d.md", "d", "four")

	all, err := db.View().ListFiles("")
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	if len(all) != 4 {
		t.Errorf("all = %d, want 4", len(all))
	}

	sub, err := db.View().ListFiles("/projects/recall/")
	if err != nil {
		t.Fatalf("ListFiles folder: %v", err)
	}
	if len(sub) != 2 {
		t.Errorf("folder = %d, want 2", len(sub))
	}

	// "_" must not act as a LIKE wildcard.
	proj, _ := db.View().ListFiles("projects")
	if len(proj) != 3 {
		t.Errorf("projects = %d, want 3", len(proj))
	}
}

func TestDeleteFileCascades(t *testing.T) {
	db := testDB(t)
	f := addFile(t, db, "a.md", "a", "one")
	if err := db.SaveVector(f.ID, []float64{1, 0}, "m"); err != nil {
		t.Fatalf("SaveVector: %v", err)
	}
	if err := db.ReplaceMentions(f.ID, map[string]int{"auth": 1}); err != nil {
		t.Fatalf("ReplaceMentions: %v", err)
	}

	if err := db.DeleteFile(f.ID); err != nil {
		t.Fatalf("DeleteFile: %v", err)
	}
	if _, err := db.View().Vector(f.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("vector survived delete: %v", err)
	}
	var n int
	db.QueryRow("SELECT COUNT(*) FROM concept_mentions").Scan(&n)
	if n != 0 {
		t.Errorf("mentions = %d, want 0", n)
	}
	if c, _ := db.View().CountFiles(); c != 0 {
		t.Errorf("CountFiles = %d, want 0", c)
	}
}

func TestFileChecksums(t *testing.T) {
	db := testDB(t)
	a := addFile(t, db, "a.md", "a", "one")

	sums, err := db.View().FileChecksums()
	if err != nil {
		t.Fatalf("FileChecksums: %v", err)
	}
	if sums["a.md"].ID != a.ID || sums["a.md"].Checksum != "sum-one" {
		t.Errorf("checksums = %v", sums)
	}
}

func TestEscapeLike(t *testing.T) {
	if got := escapeLike(`a_b%c\d`); got != `a\_b\%c\\d` {
		t.Errorf("escapeLike = %q", got)
	}
	if got := folderPrefix(`\a\b\`); got != "a/b/" {
		t.Errorf("folderPrefix = %q", got)
	}
}

func TestOnlyAccessRecorderWritesLastAccessed(t *testing.T) {
	for _, typ := range []reflect.Type{
		reflect.TypeOf((*DB)(nil)),
		reflect.TypeOf(View{}),
	} {
		if _, ok := typ.MethodByName("SetLastAccessed"); ok {
			t.Errorf("%v can record accesses", typ)
		}
	}
	if _, ok := reflect.TypeOf(AccessRecorder{}).MethodByName("SetLastAccessed"); !ok {
		t.Error("AccessRecorder cannot record accesses")
	}
}
