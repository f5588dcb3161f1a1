package server

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lazypower/recall/internal/decay"
	"github.com/lazypower/recall/internal/engine"
	"github.com/lazypower/recall/internal/ranking"
)

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	mode, err := engine.ParseMode(q.Get("mode"))
	if err != nil {
		writeError(w, err)
		return
	}
	page, err := intParam(q, "page", 1)
	if err != nil {
		writeError(w, err)
		return
	}
	pageSize, err := intParam(q, "page_size", s.opts.PageSize)
	if err != nil {
		writeError(w, err)
		return
	}
	minScore, err := floatParam(q, "min_score")
	if err != nil {
		writeError(w, err)
		return
	}
	stage := s.opts.MinScoreStage
	if v := q.Get("min_score_stage"); v != "" {
		stage = ranking.ParseStage(v)
	}

	ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
	defer cancel()

	resp, err := s.eng.Searcher.Search(ctx, engine.Query{
		Text:          q.Get("q"),
		Mode:          mode,
		Folder:        q.Get("folder"),
		Tags:          listParam(q, "tags"),
		MinScore:      minScore,
		MinScoreStage: stage,
		Page:          page,
		PageSize:      pageSize,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListMemories(w http.ResponseWriter, r *http.Request) {
	memories, err := s.eng.Lister.List(r.Context(), r.URL.Query().Get("folder"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":    len(memories),
		"memories": memories,
	})
}

func (s *Server) handleReadMemory(w http.ResponseWriter, r *http.Request) {
	m, err := s.eng.Reader.Read(r.Context(), r.URL.Query().Get("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleSimilarConcepts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	maxResults, err := intParam(q, "max", 10)
	if err != nil {
		writeError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
	defer cancel()

	similar, err := s.eng.Graph.FindSimilarConcepts(ctx, q.Get("concept"), maxResults)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"concept": q.Get("concept"),
		"results": similar,
	})
}

// handleDecayWeight evaluates the decay weight of a hypothetical item.
func (s *Server) handleDecayWeight(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	created, err := timeParam(q, "created")
	if err != nil {
		writeError(w, err)
		return
	}
	if created == nil {
		writeMessage(w, http.StatusBadRequest, "created parameter required")
		return
	}
	lastAccessed, err := timeParam(q, "last_accessed")
	if err != nil {
		writeError(w, err)
		return
	}

	calc := s.eng.Calculator()
	path := q.Get("path")
	tier := decay.ResolveItemTier(q.Get("tier"), path)
	ref := decay.ReferenceDate(*created, lastAccessed)

	writeJSON(w, http.StatusOK, map[string]any{
		"path":           path,
		"tier":           tier.String(),
		"function":       calc.Config().Function.String(),
		"reference_date": ref,
		"age_days":       decay.AgeDays(ref, calc.Now()),
		"weight":         calc.TierWeight(tier, *created, lastAccessed),
	})
}

func (s *Server) handleListAssumptions(w http.ResponseWriter, r *http.Request) {
	list, err := s.eng.Ledger.List(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":       len(list),
		"assumptions": list,
	})
}

func (s *Server) handleAppendAssumption(w http.ResponseWriter, r *http.Request) {
	var req engine.AppendInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid json")
		return
	}
	a, err := s.eng.Ledger.Append(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (s *Server) handleGetAssumption(w http.ResponseWriter, r *http.Request) {
	a, err := s.eng.Ledger.Get(r.Context(), assumptionID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleUpdateAssumption(w http.ResponseWriter, r *http.Request) {
	var req engine.UpdateInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid json")
		return
	}
	a, err := s.eng.Ledger.Update(r.Context(), assumptionID(r), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Minute)
	defer cancel()

	stats, err := s.eng.Sync(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"scanned":     stats.Scanned,
		"added":       stats.Added,
		"updated":     stats.Updated,
		"removed":     stats.Removed,
		"unchanged":   stats.Unchanged,
		"embedded":    stats.Embedded,
		"edges":       stats.Edges,
		"concepts":    stats.Concepts,
		"duration_ms": stats.Duration.Milliseconds(),
	})
}

// assumptionID accepts an id or a path-escaped full URI.
func assumptionID(r *http.Request) string {
	id := chi.URLParam(r, "id")
	if u, err := url.PathUnescape(id); err == nil {
		id = u
	}
	return id
}

func intParam(q url.Values, name string, def int) (int, error) {
	v := q.Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", engine.ErrInvalidInput, name)
	}
	return n, nil
}

func floatParam(q url.Values, name string) (float64, error) {
	v := q.Get(name)
	if v == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %s must be a number", engine.ErrInvalidInput, name)
	}
	return f, nil
}

func boolParam(q url.Values, name string) (bool, error) {
	v := q.Get(name)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%w: %s must be true or false", engine.ErrInvalidInput, name)
	}
	return b, nil
}

func timeParam(q url.Values, name string) (*time.Time, error) {
	v := q.Get(name)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be an RFC 3339 timestamp", engine.ErrInvalidInput, name)
	}
	return &t, nil
}

func listParam(q url.Values, name string) []string {
	var out []string
	for _, v := range q[name] {
		for _, part := range strings.Split(v, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
