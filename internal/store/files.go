package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// MemoryFile is one indexed markdown memory.
type MemoryFile struct {
	ID           int64
	URI          string
	Path         string // relative to the memory root, forward slashes
	Title        string
	Slug         string
	Content      string
	Tier         string // "", "sequential", "workflow" or "default"
	Checksum     string
	Size         int64
	CreatedAt    int64 // unix ms
	ModifiedAt   int64
	IndexedAt    int64
	LastAccessed *int64
}

// Created returns CreatedAt as a time.
func (f *MemoryFile) Created() time.Time {
	return time.UnixMilli(f.CreatedAt)
}

// LastAccessedTime returns LastAccessed as a time, or nil if never read.
func (f *MemoryFile) LastAccessedTime() *time.Time {
	if f.LastAccessed == nil {
		return nil
	}
	t := time.UnixMilli(*f.LastAccessed)
	return &t
}

const fileColumns = `id, uri, path, title, slug, content, tier, checksum, size,
	created_at, modified_at, indexed_at, last_accessed`

type scanner interface {
	Scan(dest ...any) error
}

func scanFile(s scanner) (*MemoryFile, error) {
	var f MemoryFile
	var tier sql.NullString
	var lastAccessed sql.NullInt64
	if err := s.Scan(&f.ID, &f.URI, &f.Path, &f.Title, &f.Slug, &f.Content, &tier,
		&f.Checksum, &f.Size, &f.CreatedAt, &f.ModifiedAt, &f.IndexedAt, &lastAccessed); err != nil {
		return nil, err
	}
	f.Tier = tier.String
	if lastAccessed.Valid {
		f.LastAccessed = &lastAccessed.Int64
	}
	return &f, nil
}

func scanFiles(rows *sql.Rows) ([]MemoryFile, error) {
	var files []MemoryFile
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, *f)
	}
	return files, rows.Err()
}

// UpsertFile inserts f or updates the row with the same path. The stored
// created_at and last_accessed of an existing row are kept; f is refreshed
// with the stored values.
func (db *DB) UpsertFile(f *MemoryFile) error {
	now := time.Now().UnixMilli()
	if f.CreatedAt == 0 {
		f.CreatedAt = now
	}
	if f.ModifiedAt == 0 {
		f.ModifiedAt = now
	}
	f.IndexedAt = now

	_, err := db.Exec(`
		INSERT INTO memory_files (uri, path, title, slug, content, tier, checksum, size,
			created_at, modified_at, indexed_at)
		VALUES (?, ?, ?, ?, ?, NULLIF(?, ''), ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			uri = excluded.uri,
			title = excluded.title,
			slug = excluded.slug,
			content = excluded.content,
			tier = COALESCE(excluded.tier, memory_files.tier),
			checksum = excluded.checksum,
			size = excluded.size,
			modified_at = excluded.modified_at,
			indexed_at = excluded.indexed_at
	`, f.URI, f.Path, f.Title, f.Slug, f.Content, f.Tier, f.Checksum, f.Size,
		f.CreatedAt, f.ModifiedAt, f.IndexedAt)
	if err != nil {
		return fmt.Errorf("upsert file %s: %w", f.Path, err)
	}

	stored, err := db.View().FileByPath(f.Path)
	if err != nil {
		return fmt.Errorf("reload file %s: %w", f.Path, err)
	}
	*f = *stored
	return nil
}

// DeleteFile removes a file; mentions and vectors cascade.
func (db *DB) DeleteFile(id int64) error {
	if _, err := db.Exec("DELETE FROM memory_files WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete file %d: %w", id, err)
	}
	return nil
}

// AccessRecorder is the only capability that can write last_accessed.
// Only the direct-read path should hold one.
type AccessRecorder struct {
	db *sql.DB
}

// Accesses returns the access-recording capability over db.
func (db *DB) Accesses() AccessRecorder {
	return AccessRecorder{db: db.DB}
}

// SetLastAccessed records a direct read of uri at the given time.
func (a AccessRecorder) SetLastAccessed(uri string, at time.Time) error {
	res, err := a.db.Exec("UPDATE memory_files SET last_accessed = ? WHERE uri = ?", at.UnixMilli(), uri)
	if err != nil {
		return fmt.Errorf("set last accessed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("set last accessed %s: %w", uri, ErrNotFound)
	}
	return nil
}

// FileByURI returns the file with the given URI.
func (v View) FileByURI(uri string) (*MemoryFile, error) {
	return v.fileWhere("uri = ?", uri)
}

// FileByPath returns the file at the given relative path.
func (v View) FileByPath(path string) (*MemoryFile, error) {
	return v.fileWhere("path = ?", path)
}

func (v View) fileWhere(cond string, arg any) (*MemoryFile, error) {
	row := v.db.QueryRow("SELECT "+fileColumns+" FROM memory_files WHERE "+cond, arg)
	f, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("file %v: %w", arg, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}
	return f, nil
}

// FilesBySlug returns files whose title slug matches, oldest first.
func (v View) FilesBySlug(slug string) ([]MemoryFile, error) {
	rows, err := v.db.Query("SELECT "+fileColumns+" FROM memory_files WHERE slug = ? ORDER BY created_at, id", slug)
	if err != nil {
		return nil, fmt.Errorf("files by slug: %w", err)
	}
	defer rows.Close()
	return scanFiles(rows)
}

// FilesByIDs returns the files with the given IDs keyed by ID.
func (v View) FilesByIDs(ids []int64) (map[int64]MemoryFile, error) {
	out := make(map[int64]MemoryFile, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := v.db.Query("SELECT "+fileColumns+" FROM memory_files WHERE id IN ("+placeholders(len(ids))+")", args...)
	if err != nil {
		return nil, fmt.Errorf("files by ids: %w", err)
	}
	defer rows.Close()
	files, err := scanFiles(rows)
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		out[f.ID] = f
	}
	return out, nil
}

// FilesByURIs returns the files with the given URIs keyed by URI.
func (v View) FilesByURIs(uris []string) (map[string]MemoryFile, error) {
	out := make(map[string]MemoryFile, len(uris))
	if len(uris) == 0 {
		return out, nil
	}
	args := make([]any, len(uris))
	for i, u := range uris {
		args[i] = u
	}
	rows, err := v.db.Query("SELECT "+fileColumns+" FROM memory_files WHERE uri IN ("+placeholders(len(uris))+")", args...)
	if err != nil {
		return nil, fmt.Errorf("files by uris: %w", err)
	}
	defer rows.Close()
	files, err := scanFiles(rows)
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		out[f.URI] = f
	}
	return out, nil
}

// ListFiles returns files under folder (all when empty), newest first.
func (v View) ListFiles(folder string) ([]MemoryFile, error) {
	q := "SELECT " + fileColumns + " FROM memory_files"
	var args []any
	if prefix := folderPrefix(folder); prefix != "" {
		q += ` WHERE path LIKE ? ESCAPE '\'`
		args = append(args, escapeLike(prefix)+"%")
	}
	q += " ORDER BY created_at DESC, id"
	rows, err := v.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()
	return scanFiles(rows)
}

// FileChecksums returns path → (id, checksum) for every indexed file.
func (v View) FileChecksums() (map[string]FileChecksum, error) {
	rows, err := v.db.Query("SELECT id, path, checksum FROM memory_files")
	if err != nil {
		return nil, fmt.Errorf("file checksums: %w", err)
	}
	defer rows.Close()

	out := make(map[string]FileChecksum)
	for rows.Next() {
		var c FileChecksum
		var path string
		if err := rows.Scan(&c.ID, &path, &c.Checksum); err != nil {
			return nil, fmt.Errorf("scan checksum: %w", err)
		}
		out[path] = c
	}
	return out, rows.Err()
}

// FileChecksum identifies the indexed version of a file.
type FileChecksum struct {
	ID       int64
	Checksum string
}

// CountFiles returns the number of indexed files.
func (v View) CountFiles() (int, error) {
	var n int
	err := v.db.QueryRow("SELECT COUNT(*) FROM memory_files").Scan(&n)
	return n, err
}

// folderPrefix normalizes a folder filter to "a/b/".
func folderPrefix(folder string) string {
	f := strings.Trim(strings.ReplaceAll(folder, `\`, "/"), "/")
	if f == "" {
		return ""
	}
	return f + "/"
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
