package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lazypower/recall/internal/config"
	"github.com/lazypower/recall/internal/decay"
	"github.com/lazypower/recall/internal/engine"
	"github.com/lazypower/recall/internal/ranking"
)

// --- search command ---

var (
	searchMode     string
	searchFolder   string
	searchTags     []string
	searchMinScore float64
	searchStage    string
	searchPage     int
	searchLimit    int
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search memories",
	Long:  "Search memories and rank them by relevance times decay weight. Searching never refreshes a memory.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(cfg *config.Config, eng *engine.Engine) error {
			mode, err := engine.ParseMode(searchMode)
			if err != nil {
				return err
			}
			stage := cfg.Search.MinScoreStage
			if searchStage != "" {
				stage = searchStage
			}
			limit := searchLimit
			if limit == 0 {
				limit = cfg.Search.PageSize
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
			defer cancel()

			resp, err := eng.Searcher.Search(ctx, engine.Query{
				Text:          strings.Join(args, " "),
				Mode:          mode,
				Folder:        searchFolder,
				Tags:          searchTags,
				MinScore:      searchMinScore,
				MinScoreStage: ranking.ParseStage(stage),
				Page:          searchPage,
				PageSize:      limit,
			})
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(out, resp)
			}
			if len(resp.Results) == 0 {
				fmt.Fprintln(out, "No results found.")
				return nil
			}
			offset := (resp.Page - 1) * resp.PageSize
			for i, r := range resp.Results {
				fmt.Fprintf(out, "%d. [%.3f] %s\n", offset+i+1, r.FinalScore, r.URI)
				fmt.Fprintf(out, "   %s [%s, score %.3f, decay %.3f]\n", r.Title, r.Tier, r.Score, r.DecayWeight)
				if r.Snippet != "" {
					fmt.Fprintf(out, "   %s\n", r.Snippet)
				}
				fmt.Fprintln(out)
			}
			fmt.Fprintf(out, "Page %d, %d of %d results\n", resp.Page, len(resp.Results), resp.Total)
			return nil
		})
	},
}

// --- read command ---

var readCmd = &cobra.Command{
	Use:   "read [uri|path|title]",
	Short: "Read a memory and refresh its decay clock",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(_ *config.Config, eng *engine.Engine) error {
			m, err := eng.Reader.Read(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(out, m)
			}
			fmt.Fprintf(out, "# %s\n", m.Title)
			fmt.Fprintf(out, "%s [%s, decay %.3f]\n\n", m.URI, m.Tier, m.DecayWeight)
			fmt.Fprintln(out, m.Content)
			return nil
		})
	},
}

// --- context command ---

var (
	contextDepth    int
	contextMax      int
	contextPreviews bool
)

var contextCmd = &cobra.Command{
	Use:   "context [concept]",
	Short: "Show the concepts related to a concept",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(_ *config.Config, eng *engine.Engine) error {
			res, err := eng.Graph.BuildContext(cmd.Context(), engine.ContextQuery{
				Concept:        args[0],
				Depth:          contextDepth,
				MaxEntities:    contextMax,
				IncludeContent: contextPreviews,
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(out, res)
			}
			if !res.Exists {
				fmt.Fprintf(out, "No memories mention [[%s]].\n", res.Concept)
				return nil
			}
			fmt.Fprintf(out, "## [[%s]]\n\n", res.Concept)
			for _, rel := range res.Relations {
				fmt.Fprintf(out, "  [%.3f] [[%s]] (co-occurs %d, decay %.3f)\n", rel.Rank, rel.Concept, rel.CoOccurrence, rel.DecayWeight)
				for _, uri := range rel.Files {
					if p := rel.Previews[uri]; p != "" {
						fmt.Fprintf(out, "    %s: %s\n", uri, strings.Join(strings.Fields(p), " "))
					}
				}
			}
			if len(res.Expanded) > 0 {
				fmt.Fprintf(out, "\nFurther: %s\n", strings.Join(res.Expanded, ", "))
			}
			return nil
		})
	},
}

// --- similar command ---

var similarMax int

var similarCmd = &cobra.Command{
	Use:   "similar [concept]",
	Short: "Find concepts close to a concept in embedding space",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(_ *config.Config, eng *engine.Engine) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
			defer cancel()

			similar, err := eng.Graph.FindSimilarConcepts(ctx, args[0], similarMax)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(out, similar)
			}
			if len(similar) == 0 {
				fmt.Fprintln(out, "No similar concepts found.")
				return nil
			}
			for _, c := range similar {
				fmt.Fprintf(out, "  [%.3f] [[%s]] (similarity %.3f, decay %.3f)\n", c.Rank, c.Concept, c.Similarity, c.DecayWeight)
			}
			return nil
		})
	},
}

// --- list command ---

var listCmd = &cobra.Command{
	Use:   "list [folder]",
	Short: "List indexed memories with their decay weight",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		folder := ""
		if len(args) > 0 {
			folder = args[0]
		}
		return withEngine(func(_ *config.Config, eng *engine.Engine) error {
			memories, err := eng.Lister.List(cmd.Context(), folder)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(out, memories)
			}
			if len(memories) == 0 {
				fmt.Fprintln(out, "No memories indexed. Run `recall sync` first.")
				return nil
			}
			for _, m := range memories {
				fmt.Fprintf(out, "  [%.3f] %s (%s)\n", m.DecayWeight, m.Path, m.Tier)
			}
			return nil
		})
	},
}

// --- weight command ---

var (
	weightPath     string
	weightTier     string
	weightAccessed string
)

var weightCmd = &cobra.Command{
	Use:   "weight [created]",
	Short: "Compute the decay weight for a creation date",
	Long:  "Compute the decay weight an item created at the given date (YYYY-MM-DD or RFC 3339) would have now, using the configured decay settings.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		created, err := parseDate(args[0])
		if err != nil {
			return err
		}
		var lastAccessed *time.Time
		if weightAccessed != "" {
			t, err := parseDate(weightAccessed)
			if err != nil {
				return err
			}
			lastAccessed = &t
		}

		calc := decay.NewCalculator(cfg.DecayConfig())
		tier := decay.ResolveItemTier(weightTier, weightPath)
		ref := decay.ReferenceDate(created, lastAccessed)
		weight := calc.TierWeight(tier, created, lastAccessed)

		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, map[string]any{
				"tier":           tier.String(),
				"function":       calc.Config().Function.String(),
				"reference_date": ref,
				"age_days":       decay.AgeDays(ref, calc.Now()),
				"weight":         weight,
			})
		}
		fmt.Fprintf(out, "tier: %s\nfunction: %s\nage: %d days\nweight: %.4f\n",
			tier, calc.Config().Function, decay.AgeDays(ref, calc.Now()), weight)
		return nil
	},
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: use YYYY-MM-DD or RFC 3339", s)
	}
	return t, nil
}

func init() {
	searchCmd.Flags().StringVarP(&searchMode, "mode", "m", "hybrid", "hybrid, semantic or fulltext")
	searchCmd.Flags().StringVarP(&searchFolder, "folder", "f", "", "only search under this folder")
	searchCmd.Flags().StringSliceVarP(&searchTags, "tags", "t", nil, "concepts every result must mention")
	searchCmd.Flags().Float64Var(&searchMinScore, "min-score", 0, "drop results below this score")
	searchCmd.Flags().StringVar(&searchStage, "min-score-stage", "", "apply --min-score pre or post decay (default from config)")
	searchCmd.Flags().IntVarP(&searchPage, "page", "p", 1, "page number")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 0, "results per page (default from config)")

	contextCmd.Flags().IntVarP(&contextDepth, "depth", "d", 1, "graph hops to expand")
	contextCmd.Flags().IntVar(&contextMax, "max", 0, "maximum related concepts")
	contextCmd.Flags().BoolVar(&contextPreviews, "previews", false, "include content previews")

	similarCmd.Flags().IntVarP(&similarMax, "limit", "n", 10, "maximum number of concepts")

	weightCmd.Flags().StringVar(&weightPath, "path", "", "memory path, used to pick the tier")
	weightCmd.Flags().StringVar(&weightTier, "tier", "", "tier override: sequential, workflows or default")
	weightCmd.Flags().StringVar(&weightAccessed, "last-accessed", "", "last access date")
}
