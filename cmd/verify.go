package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sherine-k/eventloop-sim/pkg/scenario"
	"github.com/sherine-k/eventloop-sim/pkg/simulation"
)

func newVerifyCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Run every built-in scenario and check its trace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			scenarios, err := scenario.Builtin()
			if err != nil {
				return fmt.Errorf("failed to load built-in scenarios: %w", err)
			}

			out := cmd.OutOrStdout()
			failed := 0
			for _, sc := range scenarios {
				outcome, err := scenario.Run(cmd.Context(), sc,
					simulation.WithLogger(root.logger.WithField("scenario", sc.Name)))

				switch {
				case err != nil:
					failed++
					fmt.Fprintf(out, "FAIL %s: %v\n", sc.Name, err)
				case !outcome.Passed():
					failed++
					fmt.Fprintf(out, "FAIL %s\n%s\n", sc.Name, outcome.Comparison.Diff)
				default:
					fmt.Fprintf(out, "PASS %s\n", sc.Name)
				}
			}

			fmt.Fprintf(out, "\n%d/%d scenarios passed\n", len(scenarios)-failed, len(scenarios))
			if failed > 0 {
				return fmt.Errorf("%d of %d scenarios failed", failed, len(scenarios))
			}

			return nil
		},
	}
}
