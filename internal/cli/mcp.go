package cli

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/lazypower/recall/internal/config"
	"github.com/lazypower/recall/internal/engine"
	"github.com/lazypower/recall/internal/mcp"
	"github.com/lazypower/recall/internal/ranking"
)

var mcpNoSync bool

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the memory tools over MCP on stdio",
	Long: `Start a Model Context Protocol server on stdin/stdout. Agents call
search_memories, read_memory, build_context and the other tools directly.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Stdout carries the protocol.
		log.SetOutput(os.Stderr)

		return withEngine(func(cfg *config.Config, eng *engine.Engine) error {
			if !mcpNoSync {
				go backgroundSync(eng)
			}
			srv := mcp.NewServer(eng, VersionString(), mcp.Options{
				PageSize:      cfg.Search.PageSize,
				MinScoreStage: ranking.ParseStage(cfg.Search.MinScoreStage),
			})
			return srv.Serve()
		})
	},
}

func init() {
	mcpCmd.Flags().BoolVar(&mcpNoSync, "no-sync", false, "skip the initial index sync")
}
