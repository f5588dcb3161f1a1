package store

import (
	"fmt"
	"strings"
)

// TextHit is a full-text match. Score is the negated bm25 rank, so higher is
// better and every hit scores above zero.
type TextHit struct {
	FileID int64
	Score  float64
}

// SearchText runs an FTS5 query over titles and content. Hits are ordered
// best first. Terms are quoted so punctuation in user input is literal.
func (v View) SearchText(query, folder string, limit int) ([]TextHit, error) {
	match := sanitizeFTS(query)
	if match == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}

	q := `
		SELECT f.id, -bm25(memory_fts) AS score
		FROM memory_fts
		JOIN memory_files f ON f.id = memory_fts.rowid
		WHERE memory_fts MATCH ?`
	args := []any{match}
	if prefix := folderPrefix(folder); prefix != "" {
		q += ` AND f.path LIKE ? ESCAPE '\'`
		args = append(args, escapeLike(prefix)+"%")
	}
	q += " ORDER BY bm25(memory_fts), f.id LIMIT ?"
	args = append(args, limit)

	rows, err := v.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("full-text search: %w", err)
	}
	defer rows.Close()

	var hits []TextHit
	for rows.Next() {
		var h TextHit
		if err := rows.Scan(&h.FileID, &h.Score); err != nil {
			return nil, fmt.Errorf("scan text hit: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// sanitizeFTS quotes each word and ORs them: "fix auth" → `"fix" OR "auth"`.
func sanitizeFTS(query string) string {
	words := strings.Fields(query)
	terms := words[:0]
	for _, w := range words {
		w = strings.ReplaceAll(strings.Trim(w, `"`), `"`, `""`)
		if w == "" {
			continue
		}
		terms = append(terms, `"`+w+`"`)
	}
	return strings.Join(terms, " OR ")
}
