package store

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Concept is a normalized WikiLink target.
type Concept struct {
	Name        string
	FirstSeen   int64
	Occurrences int
}

// ConceptRelation is a concept co-occurring with another in the same files.
type ConceptRelation struct {
	Concept      string
	CoOccurrence int
	SourceURIs   []string
}

// ReplaceMentions sets the concepts mentioned by a file, replacing whatever
// was recorded for it before. Counts are mentions per concept.
func (db *DB) ReplaceMentions(fileID int64, mentions map[string]int) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin mentions: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM concept_mentions WHERE file_id = ?", fileID); err != nil {
		return fmt.Errorf("clear mentions: %w", err)
	}

	now := time.Now().UnixMilli()
	for concept, n := range mentions {
		if _, err := tx.Exec(`
			INSERT INTO concepts (name, first_seen, occurrence_count) VALUES (?, ?, 0)
			ON CONFLICT(name) DO NOTHING
		`, concept, now); err != nil {
			return fmt.Errorf("insert concept %s: %w", concept, err)
		}
		if _, err := tx.Exec(
			"INSERT INTO concept_mentions (concept, file_id, mention_count) VALUES (?, ?, ?)",
			concept, fileID, n,
		); err != nil {
			return fmt.Errorf("insert mention %s: %w", concept, err)
		}
	}
	return tx.Commit()
}

// RebuildConceptGraph recomputes co-occurrence edges and concept counts from
// the current mentions. Concepts no file mentions any more are dropped.
// Returns the number of edges written.
func (db *DB) RebuildConceptGraph() (int, error) {
	rows, err := db.Query(`
		SELECT m.file_id, f.uri, m.concept
		FROM concept_mentions m JOIN memory_files f ON f.id = m.file_id
		ORDER BY m.file_id, m.concept
	`)
	if err != nil {
		return 0, fmt.Errorf("load mentions: %w", err)
	}

	type fileConcepts struct {
		uri      string
		concepts []string
	}
	var files []fileConcepts
	var lastID int64 = -1
	for rows.Next() {
		var id int64
		var uri, concept string
		if err := rows.Scan(&id, &uri, &concept); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan mention: %w", err)
		}
		if id != lastID {
			files = append(files, fileConcepts{uri: uri})
			lastID = id
		}
		files[len(files)-1].concepts = append(files[len(files)-1].concepts, concept)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, err
	}
	rows.Close()

	type edge struct {
		count int
		uris  []string
	}
	edges := make(map[[2]string]*edge)
	for _, f := range files {
		for i := 0; i < len(f.concepts); i++ {
			for j := i + 1; j < len(f.concepts); j++ {
				key := [2]string{f.concepts[i], f.concepts[j]} // sorted by the query
				e := edges[key]
				if e == nil {
					e = &edge{}
					edges[key] = e
				}
				e.count++
				e.uris = append(e.uris, f.uri)
			}
		}
	}

	tx, err := db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin graph rebuild: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM concept_graph"); err != nil {
		return 0, fmt.Errorf("clear graph: %w", err)
	}
	for key, e := range edges {
		sort.Strings(e.uris)
		sources, err := json.Marshal(e.uris)
		if err != nil {
			return 0, fmt.Errorf("encode sources: %w", err)
		}
		if _, err := tx.Exec(
			"INSERT INTO concept_graph (concept_a, concept_b, co_occurrence_count, source_files) VALUES (?, ?, ?, ?)",
			key[0], key[1], e.count, string(sources),
		); err != nil {
			return 0, fmt.Errorf("insert edge %s-%s: %w", key[0], key[1], err)
		}
	}
	if _, err := tx.Exec(`
		UPDATE concepts SET occurrence_count = (
			SELECT COALESCE(SUM(mention_count), 0) FROM concept_mentions WHERE concept = concepts.name
		)
	`); err != nil {
		return 0, fmt.Errorf("update concept counts: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM concepts WHERE name NOT IN (SELECT DISTINCT concept FROM concept_mentions)"); err != nil {
		return 0, fmt.Errorf("prune concepts: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit graph: %w", err)
	}
	return len(edges), nil
}

// Concepts returns every known concept by name.
func (v View) Concepts() ([]Concept, error) {
	rows, err := v.db.Query("SELECT name, first_seen, occurrence_count FROM concepts ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list concepts: %w", err)
	}
	defer rows.Close()

	var out []Concept
	for rows.Next() {
		var c Concept
		if err := rows.Scan(&c.Name, &c.FirstSeen, &c.Occurrences); err != nil {
			return nil, fmt.Errorf("scan concept: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ConceptExists reports whether any file mentions name.
func (v View) ConceptExists(name string) (bool, error) {
	var n int
	if err := v.db.QueryRow("SELECT COUNT(*) FROM concepts WHERE name = ?", name).Scan(&n); err != nil {
		return false, fmt.Errorf("concept exists: %w", err)
	}
	return n > 0, nil
}

// Relations returns concepts co-occurring with concept, strongest first.
func (v View) Relations(concept string, limit int) ([]ConceptRelation, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := v.db.Query(`
		SELECT CASE WHEN concept_a = ? THEN concept_b ELSE concept_a END AS related,
			co_occurrence_count, source_files
		FROM concept_graph
		WHERE concept_a = ? OR concept_b = ?
		ORDER BY co_occurrence_count DESC, related
		LIMIT ?
	`, concept, concept, concept, limit)
	if err != nil {
		return nil, fmt.Errorf("relations of %s: %w", concept, err)
	}
	defer rows.Close()

	var out []ConceptRelation
	for rows.Next() {
		var r ConceptRelation
		var sources string
		if err := rows.Scan(&r.Concept, &r.CoOccurrence, &sources); err != nil {
			return nil, fmt.Errorf("scan relation: %w", err)
		}
		if err := json.Unmarshal([]byte(sources), &r.SourceURIs); err != nil {
			return nil, fmt.Errorf("decode sources of %s: %w", r.Concept, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ConceptFiles returns the files mentioning concept, most mentions first.
func (v View) ConceptFiles(concept string) ([]MemoryFile, error) {
	rows, err := v.db.Query(`
		SELECT f.id, f.uri, f.path, f.title, f.slug, f.content, f.tier, f.checksum, f.size,
			f.created_at, f.modified_at, f.indexed_at, f.last_accessed
		FROM concept_mentions m JOIN memory_files f ON f.id = m.file_id
		WHERE m.concept = ?
		ORDER BY m.mention_count DESC, f.id
	`, concept)
	if err != nil {
		return nil, fmt.Errorf("concept files: %w", err)
	}
	defer rows.Close()
	return scanFiles(rows)
}

// FileConcepts returns the concepts a file mentions.
func (v View) FileConcepts(fileID int64) ([]string, error) {
	rows, err := v.db.Query("SELECT concept FROM concept_mentions WHERE file_id = ? ORDER BY concept", fileID)
	if err != nil {
		return nil, fmt.Errorf("file concepts: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scan concept: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// FilesMentioningAll returns the IDs of files that mention every concept.
func (v View) FilesMentioningAll(concepts []string) (map[int64]bool, error) {
	out := make(map[int64]bool)
	if len(concepts) == 0 {
		return out, nil
	}
	args := make([]any, 0, len(concepts)+1)
	for _, c := range concepts {
		args = append(args, c)
	}
	args = append(args, len(concepts))
	rows, err := v.db.Query(`
		SELECT file_id FROM concept_mentions
		WHERE concept IN (`+placeholders(len(concepts))+`)
		GROUP BY file_id
		HAVING COUNT(DISTINCT concept) = ?
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("files mentioning: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan file id: %w", err)
		}
		out[id] = true
	}
	return out, rows.Err()
}
