package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/lazypower/recall/internal/config"
	"github.com/lazypower/recall/internal/engine"
)

var syncQuiet bool

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Index the memory folder",
	Long:  "Scan the memory folder, index new and changed files, drop deleted ones and rebuild the concept graph.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(_ *config.Config, eng *engine.Engine) error {
			root := eng.Syncer().Root()
			if err := os.MkdirAll(root, 0755); err != nil {
				return fmt.Errorf("create memory root: %w", err)
			}

			if !syncQuiet && !jsonOutput {
				reporter := newReporter(cmd.ErrOrStderr())
				eng.Syncer().OnProgress(reporter.Update)
				defer reporter.Finish()
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Minute)
			defer cancel()

			stats, err := eng.Sync(ctx)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), stats)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Indexed %s: %d files (%d added, %d updated, %d removed, %d unchanged)\n",
				root, stats.Scanned, stats.Added, stats.Updated, stats.Removed, stats.Unchanged)
			fmt.Fprintf(cmd.OutOrStdout(), "  %d concepts, %d edges, %d embedded in %s\n",
				stats.Concepts, stats.Edges, stats.Embedded, stats.Duration.Round(time.Millisecond))
			return nil
		})
	},
}

func init() {
	syncCmd.Flags().BoolVarP(&syncQuiet, "quiet", "q", false, "hide the progress bar")
}
