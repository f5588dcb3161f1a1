package mcp

import "github.com/mark3labs/mcp-go/mcp"

var searchMemoriesTool = mcp.NewTool("search_memories",
	mcp.WithDescription("Search memories by text. Results are ranked by relevance multiplied by a recency decay weight, so fresh memories outrank stale ones."),
	mcp.WithString("query",
		mcp.Required(),
		mcp.Description("Search text"),
	),
	mcp.WithString("mode",
		mcp.Description("Scoring backend (default hybrid)"),
		mcp.Enum("hybrid", "semantic", "fulltext"),
	),
	mcp.WithString("folder",
		mcp.Description("Only search memories under this folder"),
	),
	mcp.WithString("tags",
		mcp.Description("Comma-separated concepts every result must mention"),
	),
	mcp.WithNumber("min_score",
		mcp.Description("Drop results scoring below this value (0 keeps everything)"),
	),
	mcp.WithString("min_score_stage",
		mcp.Description("Apply min_score before or after decay (default from config)"),
		mcp.Enum("pre", "post"),
	),
	mcp.WithNumber("page",
		mcp.Description("Page number, starting at 1"),
	),
	mcp.WithNumber("page_size",
		mcp.Description("Results per page"),
	),
)

var readMemoryTool = mcp.NewTool("read_memory",
	mcp.WithDescription("Read a memory in full by URI, path or title. Reading refreshes the memory's decay clock."),
	mcp.WithString("id",
		mcp.Required(),
		mcp.Description("memory:// URI, relative path or title"),
	),
)

var buildContextTool = mcp.NewTool("build_context",
	mcp.WithDescription("List the concepts that co-occur with a concept, strongest and freshest first."),
	mcp.WithString("concept",
		mcp.Required(),
		mcp.Description("Concept name, without [[ ]]"),
	),
	mcp.WithNumber("depth",
		mcp.Description("Graph hops to expand (default 1)"),
	),
	mcp.WithNumber("max_entities",
		mcp.Description("Maximum related concepts to return"),
	),
	mcp.WithBoolean("include_content",
		mcp.Description("Include a content preview for each source file"),
	),
)

var findSimilarConceptsTool = mcp.NewTool("find_similar_concepts",
	mcp.WithDescription("Find concepts whose embeddings are close to a concept, weighted by how recently they were used."),
	mcp.WithString("concept",
		mcp.Required(),
		mcp.Description("Concept name, without [[ ]]"),
	),
	mcp.WithNumber("max_results",
		mcp.Description("Maximum number of concepts to return (default 10)"),
	),
)

var listMemoriesTool = mcp.NewTool("list_memories",
	mcp.WithDescription("List indexed memories with their tier and current decay weight."),
	mcp.WithString("folder",
		mcp.Description("Only list memories under this folder"),
	),
)

var assumptionLedgerTool = mcp.NewTool("assumption_ledger",
	mcp.WithDescription("Record, update, read or list working assumptions. Validated assumptions keep full weight; invalidated ones fade fastest."),
	mcp.WithString("action",
		mcp.Required(),
		mcp.Description("Ledger operation"),
		mcp.Enum("append", "update", "read", "list"),
	),
	mcp.WithString("statement",
		mcp.Description("Assumption text (append)"),
	),
	mcp.WithString("concepts",
		mcp.Description("Comma-separated related concepts (append)"),
	),
	mcp.WithString("context",
		mcp.Description("Where the assumption came from (append)"),
	),
	mcp.WithString("validation_plan",
		mcp.Description("How the assumption will be checked (append, update)"),
	),
	mcp.WithString("confidence",
		mcp.Description("Confidence label (append, update)"),
	),
	mcp.WithString("uri",
		mcp.Description("Assumption URI or id (update, read)"),
	),
	mcp.WithString("status",
		mcp.Description("New status (update) or status filter (list)"),
		mcp.Enum("active", "validated", "invalidated", "refined"),
	),
	mcp.WithString("notes",
		mcp.Description("Notes appended under a timestamped heading (update)"),
	),
)

var syncTool = mcp.NewTool("sync",
	mcp.WithDescription("Re-index the memory folder. Unchanged files are skipped."),
)
