package index

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/lazypower/recall/internal/decay"
	"github.com/lazypower/recall/internal/store"
)

// maxEmbedChars bounds the text sent to an embedding provider.
const maxEmbedChars = 8000

// Embedder produces the vector stored for a memory file.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
	Model() string
}

// Store is the subset of *store.DB a sync writes through. It has no way to
// record reads, so indexing never changes last_accessed.
type Store interface {
	View() store.View
	UpsertFile(f *store.MemoryFile) error
	DeleteFile(id int64) error
	ReplaceMentions(fileID int64, mentions map[string]int) error
	RebuildConceptGraph() (int, error)
	SaveVector(fileID int64, embedding []float64, model string) error
	DeleteVector(fileID int64) error
}

// Stats summarizes one sync.
type Stats struct {
	Scanned   int           `json:"scanned"`
	Added     int           `json:"added"`
	Updated   int           `json:"updated"`
	Removed   int           `json:"removed"`
	Unchanged int           `json:"unchanged"`
	Embedded  int           `json:"embedded"`
	Edges     int           `json:"edges"`
	Concepts  int           `json:"concepts"`
	Duration  time.Duration `json:"duration"`
}

// Changed reports whether the sync touched any row.
func (s Stats) Changed() bool {
	return s.Added+s.Updated+s.Removed > 0
}

// ProgressFunc is called after each file is processed.
type ProgressFunc func(done, total int, path string)

// Syncer mirrors a memory root into the store. One sync runs at a time.
type Syncer struct {
	db       Store
	root     string
	include  []string
	exclude  []string
	embedder Embedder
	progress ProgressFunc

	mu sync.Mutex
}

// NewSyncer creates a syncer for the markdown files under root.
func NewSyncer(db Store, root string) *Syncer {
	return &Syncer{
		db:      db,
		root:    root,
		include: []string{"**/*.md"},
	}
}

// Root returns the memory root.
func (s *Syncer) Root() string { return s.root }

// SetEmbedder sets the embedder used for new and changed files. Nil disables
// embedding.
func (s *Syncer) SetEmbedder(e Embedder) {
	s.mu.Lock()
	s.embedder = e
	s.mu.Unlock()
}

// SetExclude sets doublestar patterns, relative to the root, to skip.
func (s *Syncer) SetExclude(patterns []string) {
	s.mu.Lock()
	s.exclude = patterns
	s.mu.Unlock()
}

// OnProgress registers a progress callback.
func (s *Syncer) OnProgress(fn ProgressFunc) {
	s.mu.Lock()
	s.progress = fn
	s.mu.Unlock()
}

// Sync indexes new and changed files, drops rows for files gone from disk,
// rebuilds the concept graph and embeds whatever lacks a current vector.
func (s *Syncer) Sync(ctx context.Context) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	var stats Stats

	paths, err := s.scan()
	if err != nil {
		return stats, err
	}
	stats.Scanned = len(paths)

	known, err := s.db.View().FileChecksums()
	if err != nil {
		return stats, fmt.Errorf("load checksums: %w", err)
	}

	seen := make(map[string]bool, len(paths))
	for i, rel := range paths {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		seen[rel] = true

		result, err := s.indexFile(rel, known)
		if err != nil {
			log.Printf("sync: %s: %v", rel, err)
		} else {
			switch result {
			case added:
				stats.Added++
			case updated:
				stats.Updated++
			case unchanged:
				stats.Unchanged++
			}
		}
		if s.progress != nil {
			s.progress(i+1, len(paths), rel)
		}
	}

	for rel, c := range known {
		if seen[rel] {
			continue
		}
		if err := s.db.DeleteFile(c.ID); err != nil {
			return stats, fmt.Errorf("remove %s: %w", rel, err)
		}
		stats.Removed++
	}

	if stats.Changed() {
		edges, err := s.db.RebuildConceptGraph()
		if err != nil {
			return stats, fmt.Errorf("rebuild concept graph: %w", err)
		}
		stats.Edges = edges
	}
	concepts, err := s.db.View().Concepts()
	if err != nil {
		return stats, err
	}
	stats.Concepts = len(concepts)

	n, err := s.embedMissing(ctx)
	stats.Embedded = n
	if err != nil {
		return stats, err
	}

	stats.Duration = time.Since(start)
	return stats, nil
}

// EmbedMissing embeds every file whose vector is absent or was produced by a
// different model than the current embedder.
func (s *Syncer) EmbedMissing(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.embedMissing(ctx)
}

func (s *Syncer) embedMissing(ctx context.Context) (int, error) {
	if s.embedder == nil {
		return 0, nil
	}
	model := s.embedder.Model()

	files, err := s.db.View().ListFiles("")
	if err != nil {
		return 0, err
	}

	var embedded, failed int
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return embedded, err
		}
		v, err := s.db.View().Vector(f.ID)
		if err == nil && v.Model == model {
			continue
		}
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return embedded, err
		}

		vec, err := s.embedder.Embed(ctx, embedText(f.Title, f.Content))
		if err != nil {
			failed++
			log.Printf("sync: embed %s: %v", f.Path, err)
			continue
		}
		if err := s.db.SaveVector(f.ID, vec, model); err != nil {
			return embedded, err
		}
		embedded++
	}
	if failed > 0 {
		log.Printf("sync: %d files could not be embedded with %s", failed, model)
	}
	return embedded, nil
}

type indexResult int

const (
	unchanged indexResult = iota
	added
	updated
)

func (s *Syncer) indexFile(rel string, known map[string]store.FileChecksum) (indexResult, error) {
	abs := filepath.Join(s.root, filepath.FromSlash(rel))
	info, err := os.Stat(abs)
	if err != nil {
		return 0, err
	}
	src, err := os.ReadFile(abs)
	if err != nil {
		return 0, err
	}
	sum := md5.Sum(src)
	checksum := hex.EncodeToString(sum[:])

	prev, exists := known[rel]
	if exists && prev.Checksum == checksum {
		return unchanged, nil
	}

	doc := Parse(src, strings.TrimSuffix(path.Base(rel), ".md"))

	tier := decay.ResolveTier(rel)
	if t, ok := decay.ParseTier(doc.Tier); ok {
		tier = t
	}
	created := doc.Created
	if created.IsZero() {
		created = info.ModTime()
	}

	f := &store.MemoryFile{
		URI:        URIForPath(rel),
		Path:       rel,
		Title:      doc.Title,
		Slug:       Slugify(doc.Title),
		Content:    doc.Body,
		Tier:       tier.String(),
		Checksum:   checksum,
		Size:       info.Size(),
		CreatedAt:  created.UnixMilli(),
		ModifiedAt: info.ModTime().UnixMilli(),
	}
	if exists {
		// Content changed; the old vector no longer describes it.
		if err := s.db.DeleteVector(prev.ID); err != nil {
			return 0, err
		}
	}
	if err := s.db.UpsertFile(f); err != nil {
		return 0, err
	}
	if err := s.db.ReplaceMentions(f.ID, doc.Concepts); err != nil {
		return 0, err
	}
	if exists {
		return updated, nil
	}
	return added, nil
}

// scan lists markdown files under the root as slash-separated relative
// paths, skipping hidden directories.
func (s *Syncer) scan() ([]string, error) {
	if err := os.MkdirAll(s.root, 0755); err != nil {
		return nil, fmt.Errorf("create memory root: %w", err)
	}

	var paths []string
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != s.root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if matchesAny(rel, s.include) && !matchesAny(rel, s.exclude) {
			paths = append(paths, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", s.root, err)
	}
	return paths, nil
}

func matchesAny(rel string, patterns []string) bool {
	for _, p := range patterns {
		if ok, err := doublestar.Match(p, rel); err == nil && ok {
			return true
		}
	}
	return false
}

// URIForPath maps a relative memory path to its memory:// URI.
func URIForPath(rel string) string {
	return "memory://" + strings.TrimSuffix(strings.TrimPrefix(filepath.ToSlash(rel), "/"), ".md")
}

func embedText(title, content string) string {
	text := title + "\n\n" + content
	if len(text) > maxEmbedChars {
		text = text[:maxEmbedChars]
	}
	return text
}
