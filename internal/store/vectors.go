package store

import (
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"
)

// VectorRecord holds the embedding of a memory file.
type VectorRecord struct {
	FileID     int64
	Embedding  []float64
	Model      string
	Dimensions int
	CreatedAt  int64
}

// encodeEmbedding converts a []float64 to a binary BLOB (8 bytes per float64).
func encodeEmbedding(vec []float64) []byte {
	buf := make([]byte, len(vec)*8)
	for i, v := range vec {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

func decodeEmbedding(buf []byte) []float64 {
	vec := make([]float64, len(buf)/8)
	for i := range vec {
		vec[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return vec
}

// SaveVector stores or replaces the embedding for a file.
func (db *DB) SaveVector(fileID int64, embedding []float64, model string) error {
	_, err := db.Exec(`
		INSERT INTO memory_vectors (file_id, embedding, model, dimensions, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(file_id) DO UPDATE SET
			embedding = excluded.embedding,
			model = excluded.model,
			dimensions = excluded.dimensions,
			created_at = excluded.created_at
	`, fileID, encodeEmbedding(embedding), model, len(embedding), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("save vector: %w", err)
	}
	return nil
}

// DeleteVector removes the embedding for a file.
func (db *DB) DeleteVector(fileID int64) error {
	if _, err := db.Exec("DELETE FROM memory_vectors WHERE file_id = ?", fileID); err != nil {
		return fmt.Errorf("delete vector: %w", err)
	}
	return nil
}

// Vector returns the embedding for a file.
func (v View) Vector(fileID int64) (*VectorRecord, error) {
	var rec VectorRecord
	var blob []byte
	err := v.db.QueryRow(`
		SELECT file_id, embedding, model, dimensions, created_at
		FROM memory_vectors WHERE file_id = ?
	`, fileID).Scan(&rec.FileID, &blob, &rec.Model, &rec.Dimensions, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("vector %d: %w", fileID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get vector: %w", err)
	}
	rec.Embedding = decodeEmbedding(blob)
	return &rec, nil
}

// Vectors returns every embedding produced by model.
func (v View) Vectors(model string) ([]VectorRecord, error) {
	rows, err := v.db.Query(`
		SELECT file_id, embedding, model, dimensions, created_at
		FROM memory_vectors WHERE model = ?
	`, model)
	if err != nil {
		return nil, fmt.Errorf("load vectors: %w", err)
	}
	defer rows.Close()

	var records []VectorRecord
	for rows.Next() {
		var rec VectorRecord
		var blob []byte
		if err := rows.Scan(&rec.FileID, &blob, &rec.Model, &rec.Dimensions, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan vector: %w", err)
		}
		rec.Embedding = decodeEmbedding(blob)
		records = append(records, rec)
	}
	return records, rows.Err()
}
