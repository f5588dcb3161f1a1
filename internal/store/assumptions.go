package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Assumption is an entry in the assumption ledger.
type Assumption struct {
	ID             int64
	URI            string
	Statement      string
	Context        string
	ValidationPlan string
	Confidence     string
	Status         string
	Concepts       []string
	Notes          string
	CreatedAt      int64 // unix ms
	UpdatedAt      int64
}

// Created returns CreatedAt as a time.
func (a *Assumption) Created() time.Time {
	return time.UnixMilli(a.CreatedAt)
}

const assumptionColumns = `id, uri, statement, context, validation_plan, confidence, status,
	concepts, notes, created_at, updated_at`

func scanAssumption(s scanner) (*Assumption, error) {
	var a Assumption
	var ctx, plan, notes sql.NullString
	var concepts string
	if err := s.Scan(&a.ID, &a.URI, &a.Statement, &ctx, &plan, &a.Confidence, &a.Status,
		&concepts, &notes, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.Context = ctx.String
	a.ValidationPlan = plan.String
	a.Notes = notes.String
	if err := json.Unmarshal([]byte(concepts), &a.Concepts); err != nil {
		return nil, fmt.Errorf("decode concepts of %s: %w", a.URI, err)
	}
	return &a, nil
}

// InsertAssumption stores a new assumption and fills in its ID.
func (db *DB) InsertAssumption(a *Assumption) error {
	now := time.Now().UnixMilli()
	if a.CreatedAt == 0 {
		a.CreatedAt = now
	}
	a.UpdatedAt = a.CreatedAt
	if a.Concepts == nil {
		a.Concepts = []string{}
	}
	concepts, err := json.Marshal(a.Concepts)
	if err != nil {
		return fmt.Errorf("encode concepts: %w", err)
	}

	res, err := db.Exec(`
		INSERT INTO assumptions (uri, statement, context, validation_plan, confidence, status,
			concepts, notes, created_at, updated_at)
		VALUES (?, ?, NULLIF(?, ''), NULLIF(?, ''), ?, ?, ?, NULLIF(?, ''), ?, ?)
	`, a.URI, a.Statement, a.Context, a.ValidationPlan, a.Confidence, a.Status,
		string(concepts), a.Notes, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert assumption: %w", err)
	}
	a.ID, _ = res.LastInsertId()
	return nil
}

// UpdateAssumption writes the mutable fields of a: status, confidence, notes
// and validation plan.
func (db *DB) UpdateAssumption(a *Assumption) error {
	a.UpdatedAt = time.Now().UnixMilli()
	res, err := db.Exec(`
		UPDATE assumptions SET status = ?, confidence = ?, notes = NULLIF(?, ''),
			validation_plan = NULLIF(?, ''), updated_at = ?
		WHERE uri = ?
	`, a.Status, a.Confidence, a.Notes, a.ValidationPlan, a.UpdatedAt, a.URI)
	if err != nil {
		return fmt.Errorf("update assumption: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("assumption %s: %w", a.URI, ErrNotFound)
	}
	return nil
}

// AssumptionByURI returns one assumption.
func (v View) AssumptionByURI(uri string) (*Assumption, error) {
	row := v.db.QueryRow("SELECT "+assumptionColumns+" FROM assumptions WHERE uri = ?", uri)
	a, err := scanAssumption(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("assumption %s: %w", uri, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get assumption: %w", err)
	}
	return a, nil
}

// ListAssumptions returns assumptions newest first, optionally by status.
func (v View) ListAssumptions(status string) ([]Assumption, error) {
	q := "SELECT " + assumptionColumns + " FROM assumptions"
	var args []any
	if status != "" {
		q += " WHERE status = ?"
		args = append(args, status)
	}
	q += " ORDER BY created_at DESC, id DESC"

	rows, err := v.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("list assumptions: %w", err)
	}
	defer rows.Close()

	var out []Assumption
	for rows.Next() {
		a, err := scanAssumption(rows)
		if err != nil {
			return nil, fmt.Errorf("scan assumption: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}
