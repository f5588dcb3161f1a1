package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/lazypower/recall/internal/engine"
	"github.com/lazypower/recall/internal/ranking"
)

func (s *Server) handleSearchMemories(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: query"), nil
	}
	mode, err := engine.ParseMode(request.GetString("mode", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	stage := s.opts.MinScoreStage
	if v := request.GetString("min_score_stage", ""); v != "" {
		stage = ranking.ParseStage(v)
	}

	resp, err := s.eng.Searcher.Search(ctx, engine.Query{
		Text:          query,
		Mode:          mode,
		Folder:        request.GetString("folder", ""),
		Tags:          splitList(request.GetString("tags", "")),
		MinScore:      request.GetFloat("min_score", 0),
		MinScoreStage: stage,
		Page:          request.GetInt("page", 1),
		PageSize:      request.GetInt("page_size", s.opts.PageSize),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}
	if resp.Total == 0 {
		return mcp.NewToolResultText("No memories matched. Run the sync tool if the memory folder changed."), nil
	}
	return jsonResult(resp)
}

func (s *Server) handleReadMemory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: id"), nil
	}
	m, err := s.eng.Reader.Read(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(m)
}

func (s *Server) handleBuildContext(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	concept, err := request.RequireString("concept")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: concept"), nil
	}
	res, err := s.eng.Graph.BuildContext(ctx, engine.ContextQuery{
		Concept:        concept,
		Depth:          request.GetInt("depth", 1),
		MaxEntities:    request.GetInt("max_entities", 0),
		IncludeContent: request.GetBool("include_content", false),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res)
}

func (s *Server) handleFindSimilarConcepts(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	concept, err := request.RequireString("concept")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: concept"), nil
	}
	similar, err := s.eng.Graph.FindSimilarConcepts(ctx, concept, request.GetInt("max_results", 10))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{
		"concept": concept,
		"results": similar,
	})
}

func (s *Server) handleListMemories(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	memories, err := s.eng.Lister.List(ctx, request.GetString("folder", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{
		"count":    len(memories),
		"memories": memories,
	})
}

// handleAssumptionLedger dispatches on the action argument.
func (s *Server) handleAssumptionLedger(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	action, err := request.RequireString("action")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: action"), nil
	}

	var result any
	switch action {
	case "append":
		result, err = s.eng.Ledger.Append(ctx, engine.AppendInput{
			Statement:      request.GetString("statement", ""),
			Context:        request.GetString("context", ""),
			ValidationPlan: request.GetString("validation_plan", ""),
			Confidence:     request.GetString("confidence", ""),
			Concepts:       splitList(request.GetString("concepts", "")),
		})
	case "update":
		result, err = s.eng.Ledger.Update(ctx, request.GetString("uri", ""), engine.UpdateInput{
			Status:         request.GetString("status", ""),
			Notes:          request.GetString("notes", ""),
			ValidationPlan: request.GetString("validation_plan", ""),
			Confidence:     request.GetString("confidence", ""),
		})
	case "read":
		result, err = s.eng.Ledger.Get(ctx, request.GetString("uri", ""))
	case "list":
		var list []engine.AssumptionView
		list, err = s.eng.Ledger.List(ctx, request.GetString("status", ""))
		result = map[string]any{"count": len(list), "assumptions": list}
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown action %q: use append, update, read or list", action)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(result)
}

func (s *Server) handleSync(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Minute)
	defer cancel()

	stats, err := s.eng.Sync(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf(
		"Synced %d files: %d added, %d updated, %d removed, %d unchanged, %d embedded, %d concepts (%s)",
		stats.Scanned, stats.Added, stats.Updated, stats.Removed, stats.Unchanged,
		stats.Embedded, stats.Concepts, stats.Duration.Round(time.Millisecond),
	)), nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
