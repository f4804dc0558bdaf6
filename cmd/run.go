package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sherine-k/eventloop-sim/pkg/chart"
	"github.com/sherine-k/eventloop-sim/pkg/recorder"
	"github.com/sherine-k/eventloop-sim/pkg/scenario"
	"github.com/sherine-k/eventloop-sim/pkg/simulation"
)

type runOptions struct {
	*rootOptions

	showTimeline   bool
	timelineLimit  int
	showSummary    bool
	record         string
	microtaskLimit int
	timeLimit      int64
}

func newRunCommand(root *rootOptions) *cobra.Command {
	opts := &runOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "run <scenario.yaml|builtin>",
		Short: "Run a scenario file or a built-in scenario",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, args[0])
		},
	}

	cmd.Flags().BoolVarP(&opts.showTimeline, "timeline", "t", false, "Show detailed timeline of records")
	cmd.Flags().IntVarP(&opts.timelineLimit, "timeline-limit", "l", 50, "Limit number of timeline records to display")
	cmd.Flags().BoolVarP(&opts.showSummary, "summary", "s", true, "Show run summary")
	cmd.Flags().StringVar(&opts.record, "record", "", "Record the trace into this SQLite database")
	cmd.Flags().IntVar(&opts.microtaskLimit, "microtask-limit", simulation.DefaultMicrotaskLimit, "Maximum microtasks per drain (0 disables)")
	cmd.Flags().Int64Var(&opts.timeLimit, "time-limit", 0, "Stop once the next timer is due after this many virtual ms (0 disables)")

	return cmd
}

// resolveScenario loads a scenario file, or a built-in scenario when no file
// by that name exists
func resolveScenario(arg string) (*scenario.Scenario, error) {
	if _, err := os.Stat(arg); err == nil || strings.HasSuffix(arg, ".yaml") || strings.HasSuffix(arg, ".yml") {
		return scenario.LoadScenario(arg)
	}
	return scenario.Lookup(arg)
}

func (o *runOptions) run(cmd *cobra.Command, arg string) (err error) {
	sc, err := resolveScenario(arg)
	if err != nil {
		return fmt.Errorf("failed to load scenario: %w", err)
	}

	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "Loaded scenario %s\n", sc.Name)
	if sc.Description != "" {
		fmt.Fprintf(out, "  %s\n", strings.TrimSpace(sc.Description))
	}
	fmt.Fprintf(out, "  - Steps: %d\n", len(sc.Steps))
	fmt.Fprintf(out, "  - Expected entries: %d\n", len(sc.Expect))

	simOpts := []simulation.Option{
		simulation.WithLogger(o.logger.WithField("scenario", sc.Name)),
		simulation.WithMicrotaskLimit(o.microtaskLimit),
		simulation.WithTimeLimit(simulation.VTime(o.timeLimit)),
	}

	if o.record != "" {
		rec, recErr := recorder.New(o.record)
		if recErr != nil {
			return recErr
		}
		defer closeRecorder(rec, &err)

		runID, recErr := rec.StartRun(sc.Name)
		if recErr != nil {
			return recErr
		}
		simOpts = append(simOpts, simulation.WithHook(rec))

		fmt.Fprintf(out, "  - Recording run %s into %s\n", runID, rec.Path())
	}

	outcome, runErr := scenario.Run(cmd.Context(), sc, simOpts...)
	if runErr != nil {
		o.logger.WithError(runErr).WithFields(logrus.Fields{
			"scenario": sc.Name,
			"time":     outcome.EndTime,
		}).Error("simulation stopped")
	}

	printOutcome(out, outcome, o.showSummary, o.showTimeline, o.timelineLimit)

	if runErr != nil {
		return fmt.Errorf("simulation failed: %w", runErr)
	}

	if outcome.Comparison != nil {
		return outcome.Comparison.Err()
	}

	return nil
}

// closeRecorder closes rec and reports its error through err unless the
// command already failed
func closeRecorder(rec io.Closer, err *error) {
	if closeErr := rec.Close(); closeErr != nil && *err == nil {
		*err = fmt.Errorf("failed to record run: %w", closeErr)
	}
}

func printOutcome(out io.Writer, outcome *scenario.Outcome, summary, timeline bool, limit int) {
	chartGen := chart.NewGenerator()

	fmt.Fprintln(out, chartGen.GenerateLog(outcome.Records))

	if summary {
		fmt.Fprintln(out, chartGen.GenerateSummary(outcome.Records))
	}

	fmt.Fprintln(out, chartGen.GenerateFailures(outcome.Records))

	if timeline {
		fmt.Fprintln(out, chartGen.GenerateTimeline(outcome.Records, limit))
	}

	if outcome.Comparison == nil {
		return
	}

	if outcome.Comparison.Match {
		fmt.Fprintf(out, "Trace matches the expected order (%d entries)\n", len(outcome.Log))
		return
	}

	fmt.Fprintf(out, "Trace differs from the expected order at entry %d\n\n", outcome.Comparison.Divergence)
	fmt.Fprintln(out, outcome.Comparison.Diff)
}
