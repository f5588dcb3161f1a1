package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lazypower/recall/internal/config"
	"github.com/lazypower/recall/internal/engine"
)

var assumptionCmd = &cobra.Command{
	Use:     "assumption",
	Aliases: []string{"assume"},
	Short:   "Manage the assumption ledger",
}

var (
	assumeConcepts   []string
	assumeContext    string
	assumePlan       string
	assumeConfidence string
	assumeStatus     string
	assumeNotes      string
)

var assumptionAddCmd = &cobra.Command{
	Use:   "add [statement]",
	Short: "Record a new assumption",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(_ *config.Config, eng *engine.Engine) error {
			a, err := eng.Ledger.Append(cmd.Context(), engine.AppendInput{
				Statement:      strings.Join(args, " "),
				Context:        assumeContext,
				ValidationPlan: assumePlan,
				Confidence:     assumeConfidence,
				Concepts:       assumeConcepts,
			})
			if err != nil {
				return err
			}
			return printAssumption(cmd.OutOrStdout(), a)
		})
	},
}

var assumptionUpdateCmd = &cobra.Command{
	Use:   "update [uri|id]",
	Short: "Change an assumption's status or append notes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(_ *config.Config, eng *engine.Engine) error {
			a, err := eng.Ledger.Update(cmd.Context(), args[0], engine.UpdateInput{
				Status:         assumeStatus,
				Notes:          assumeNotes,
				ValidationPlan: assumePlan,
				Confidence:     assumeConfidence,
			})
			if err != nil {
				return err
			}
			return printAssumption(cmd.OutOrStdout(), a)
		})
	},
}

var assumptionShowCmd = &cobra.Command{
	Use:   "show [uri|id]",
	Short: "Show one assumption",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(_ *config.Config, eng *engine.Engine) error {
			a, err := eng.Ledger.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printAssumption(cmd.OutOrStdout(), a)
		})
	},
}

var assumptionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List assumptions, heaviest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(_ *config.Config, eng *engine.Engine) error {
			list, err := eng.Ledger.List(cmd.Context(), assumeStatus)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(out, list)
			}
			if len(list) == 0 {
				fmt.Fprintln(out, "No assumptions recorded.")
				return nil
			}
			for _, a := range list {
				fmt.Fprintf(out, "  [%.3f] %-11s %s\n", a.DecayWeight, a.Status, a.Statement)
				fmt.Fprintf(out, "          %s\n", a.URI)
			}
			return nil
		})
	},
}

func printAssumption(w io.Writer, a *engine.AssumptionView) error {
	if jsonOutput {
		return printJSON(w, a)
	}
	fmt.Fprintf(w, "%s\n", a.URI)
	fmt.Fprintf(w, "  statement:  %s\n", a.Statement)
	fmt.Fprintf(w, "  status:     %s (weight %.3f)\n", a.Status, a.DecayWeight)
	fmt.Fprintf(w, "  confidence: %s\n", a.Confidence)
	fmt.Fprintf(w, "  concepts:   %s\n", strings.Join(a.Concepts, ", "))
	if a.Context != "" {
		fmt.Fprintf(w, "  context:    %s\n", a.Context)
	}
	if a.ValidationPlan != "" {
		fmt.Fprintf(w, "  validation: %s\n", a.ValidationPlan)
	}
	if a.Notes != "" {
		fmt.Fprintf(w, "%s\n", a.Notes)
	}
	return nil
}

func init() {
	assumptionAddCmd.Flags().StringSliceVarP(&assumeConcepts, "concepts", "c", nil, "related concepts (required)")
	assumptionAddCmd.Flags().StringVar(&assumeContext, "context", "", "where the assumption came from")
	assumptionAddCmd.Flags().StringVar(&assumePlan, "validation-plan", "", "how to check the assumption")
	assumptionAddCmd.Flags().StringVar(&assumeConfidence, "confidence", "", "confidence label")

	assumptionUpdateCmd.Flags().StringVarP(&assumeStatus, "status", "s", "", "active, validated, invalidated or refined")
	assumptionUpdateCmd.Flags().StringVar(&assumeNotes, "notes", "", "notes to append")
	assumptionUpdateCmd.Flags().StringVar(&assumePlan, "validation-plan", "", "replace the validation plan")
	assumptionUpdateCmd.Flags().StringVar(&assumeConfidence, "confidence", "", "replace the confidence label")

	assumptionListCmd.Flags().StringVarP(&assumeStatus, "status", "s", "", "only list assumptions with this status")

	assumptionCmd.AddCommand(assumptionAddCmd)
	assumptionCmd.AddCommand(assumptionUpdateCmd)
	assumptionCmd.AddCommand(assumptionShowCmd)
	assumptionCmd.AddCommand(assumptionListCmd)
}
