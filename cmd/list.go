package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sherine-k/eventloop-sim/pkg/scenario"
)

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the built-in scenarios",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			scenarios, err := scenario.Builtin()
			if err != nil {
				return fmt.Errorf("failed to load built-in scenarios: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Built-in scenarios: %d\n\n", len(scenarios))
			for _, sc := range scenarios {
				fmt.Fprintf(out, "  %-24s %s\n", sc.Name, firstLine(sc.Description))
			}

			return nil
		},
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
