package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lazypower/recall/internal/decay"
	"github.com/lazypower/recall/internal/index"
	"github.com/lazypower/recall/internal/store"
)

const defaultConfidence = "unspecified"

// AppendInput records a new assumption.
type AppendInput struct {
	Statement      string   `json:"statement"`
	Context        string   `json:"context,omitempty"`
	ValidationPlan string   `json:"validation_plan,omitempty"`
	Confidence     string   `json:"confidence,omitempty"`
	Concepts       []string `json:"concepts"`
}

// UpdateInput changes an existing assumption. Empty fields are left alone;
// Notes are appended under a timestamped heading.
type UpdateInput struct {
	Status         string `json:"status,omitempty"`
	Notes          string `json:"notes,omitempty"`
	ValidationPlan string `json:"validation_plan,omitempty"`
	Confidence     string `json:"confidence,omitempty"`
}

// AssumptionView is an assumption with its current decay weight.
type AssumptionView struct {
	URI            string    `json:"uri"`
	Statement      string    `json:"statement"`
	Context        string    `json:"context,omitempty"`
	ValidationPlan string    `json:"validation_plan,omitempty"`
	Confidence     string    `json:"confidence"`
	Status         string    `json:"status"`
	Concepts       []string  `json:"concepts"`
	Notes          string    `json:"notes,omitempty"`
	Created        time.Time `json:"created"`
	Updated        time.Time `json:"updated"`
	DecayWeight    float64   `json:"decay_weight"`
}

// AssumptionStore is the subset of *store.DB the Ledger writes through.
type AssumptionStore interface {
	View() store.View
	InsertAssumption(a *store.Assumption) error
	UpdateAssumption(a *store.Assumption) error
}

// Ledger tracks assumptions and their validation state. Validated
// assumptions keep full weight; invalidated ones fade fastest.
type Ledger struct {
	db   AssumptionStore
	calc *decay.Calculator
}

// NewLedger creates a Ledger.
func NewLedger(db AssumptionStore, calc *decay.Calculator) *Ledger {
	return &Ledger{db: db, calc: calc}
}

// Append records a new active assumption.
func (l *Ledger) Append(_ context.Context, in AppendInput) (*AssumptionView, error) {
	statement := strings.TrimSpace(in.Statement)
	if statement == "" {
		return nil, invalid("assumption statement is required")
	}
	if len(in.Concepts) == 0 {
		return nil, invalid("at least one concept is required")
	}
	var concepts []string
	seen := make(map[string]bool)
	for _, c := range in.Concepts {
		if strings.Contains(c, "[[") || strings.Contains(c, "]]") {
			return nil, invalid("concept %q must not include [[ or ]]", c)
		}
		n := index.NormalizeConcept(c)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		concepts = append(concepts, n)
	}
	if len(concepts) == 0 {
		return nil, invalid("at least one concept is required")
	}

	confidence := strings.TrimSpace(in.Confidence)
	if confidence == "" {
		confidence = defaultConfidence
	}

	now := l.calc.Now()
	a := &store.Assumption{
		URI:            assumptionURI(now),
		Statement:      statement,
		Context:        strings.TrimSpace(in.Context),
		ValidationPlan: strings.TrimSpace(in.ValidationPlan),
		Confidence:     confidence,
		Status:         string(decay.StatusActive),
		Concepts:       concepts,
		CreatedAt:      now.UnixMilli(),
	}
	if err := l.db.InsertAssumption(a); err != nil {
		return nil, err
	}
	return l.view(a), nil
}

// Update changes the status, confidence or validation plan of an
// assumption and appends notes. uri may also be the assumption's final path
// segment or bare id.
func (l *Ledger) Update(_ context.Context, uri string, in UpdateInput) (*AssumptionView, error) {
	uri, err := l.resolve(uri)
	if err != nil {
		return nil, err
	}
	var status decay.AssumptionStatus
	if s := strings.TrimSpace(in.Status); s != "" {
		st, ok := decay.ParseStatus(s)
		if !ok {
			return nil, invalid("status must be one of %s", statusNames())
		}
		status = st
	}

	a, err := l.db.View().AssumptionByURI(uri)
	if err != nil {
		return nil, err
	}
	if status != "" {
		a.Status = string(status)
	}
	if c := strings.TrimSpace(in.Confidence); c != "" {
		a.Confidence = c
	}
	if p := strings.TrimSpace(in.ValidationPlan); p != "" {
		a.ValidationPlan = p
	}
	if n := strings.TrimSpace(in.Notes); n != "" {
		a.Notes += fmt.Sprintf("\n## Update: %s\n\n%s\n", l.calc.Now().UTC().Format(time.RFC3339), n)
	}
	if err := l.db.UpdateAssumption(a); err != nil {
		return nil, err
	}
	return l.view(a), nil
}

// Get returns one assumption by URI or id.
func (l *Ledger) Get(_ context.Context, uri string) (*AssumptionView, error) {
	uri, err := l.resolve(uri)
	if err != nil {
		return nil, err
	}
	a, err := l.db.View().AssumptionByURI(uri)
	if err != nil {
		return nil, err
	}
	return l.view(a), nil
}

// List returns assumptions, optionally filtered by status, heaviest first.
// Ties keep newest-first order.
func (l *Ledger) List(_ context.Context, status string) ([]AssumptionView, error) {
	if status != "" {
		st, ok := decay.ParseStatus(status)
		if !ok {
			return nil, invalid("status must be one of %s", statusNames())
		}
		status = string(st)
	}
	all, err := l.db.View().ListAssumptions(status)
	if err != nil {
		return nil, err
	}
	out := make([]AssumptionView, 0, len(all))
	for i := range all {
		out = append(out, *l.view(&all[i]))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DecayWeight > out[j].DecayWeight
	})
	return out, nil
}

// resolve expands an assumption id (assumption-<uuid> or <uuid>) to its URI.
// Full URIs pass through.
func (l *Ledger) resolve(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", invalid("assumption uri is required")
	}
	if strings.HasPrefix(id, "memory://") {
		return id, nil
	}
	all, err := l.db.View().ListAssumptions("")
	if err != nil {
		return "", err
	}
	for _, a := range all {
		if strings.HasSuffix(a.URI, "/"+id) || strings.HasSuffix(a.URI, "/assumption-"+id) {
			return a.URI, nil
		}
	}
	return "", fmt.Errorf("assumption %s: %w", id, store.ErrNotFound)
}

func (l *Ledger) view(a *store.Assumption) *AssumptionView {
	concepts := a.Concepts
	if concepts == nil {
		concepts = []string{}
	}
	return &AssumptionView{
		URI:            a.URI,
		Statement:      a.Statement,
		Context:        a.Context,
		ValidationPlan: a.ValidationPlan,
		Confidence:     a.Confidence,
		Status:         a.Status,
		Concepts:       concepts,
		Notes:          a.Notes,
		Created:        a.Created(),
		Updated:        time.UnixMilli(a.UpdatedAt),
		DecayWeight:    l.calc.AssumptionWeight(a.Created(), a.Status),
	}
}

func assumptionURI(now time.Time) string {
	now = now.UTC()
	return fmt.Sprintf("memory://assumptions/%04d/%02d/assumption-%s", now.Year(), int(now.Month()), uuid.NewString())
}

func statusNames() string {
	names := make([]string, len(decay.Statuses))
	for i, s := range decay.Statuses {
		names[i] = string(s)
	}
	return strings.Join(names, ", ")
}
