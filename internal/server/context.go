package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/lazypower/recall/internal/engine"
)

// handleContext serves concept neighbourhoods. format=markdown returns the
// same data as a <context> block for prompt injection.
func (s *Server) handleContext(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	depth, err := intParam(q, "depth", 1)
	if err != nil {
		writeError(w, err)
		return
	}
	maxEntities, err := intParam(q, "max_entities", 0)
	if err != nil {
		writeError(w, err)
		return
	}
	includeContent, err := boolParam(q, "include_content")
	if err != nil {
		writeError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	res, err := s.eng.Graph.BuildContext(ctx, engine.ContextQuery{
		Concept:        q.Get("concept"),
		Depth:          depth,
		MaxEntities:    maxEntities,
		IncludeContent: includeContent,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	if q.Get("format") == "markdown" {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.Write([]byte(renderContext(res)))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// renderContext writes a concept neighbourhood as markdown, strongest
// relations first.
func renderContext(res *engine.ContextResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "<context>\n## Concept: [[%s]]\n", res.Concept)
	if !res.Exists {
		b.WriteString("\nNo memories mention this concept.\n</context>")
		return b.String()
	}

	if len(res.Relations) > 0 {
		b.WriteString("\n### Related\n")
		for _, rel := range res.Relations {
			fmt.Fprintf(&b, "- [[%s]] (co-occurs %d, weight %.2f)\n", rel.Concept, rel.CoOccurrence, rel.DecayWeight)
			for _, uri := range rel.Files {
				if p := rel.Previews[uri]; p != "" {
					fmt.Fprintf(&b, "  - %s: %s\n", uri, strings.Join(strings.Fields(p), " "))
				}
			}
		}
	}

	if len(res.Expanded) > 0 {
		b.WriteString("\n### Further\n")
		for _, c := range res.Expanded {
			fmt.Fprintf(&b, "- [[%s]]\n", c)
		}
	}

	b.WriteString("</context>")
	return b.String()
}
