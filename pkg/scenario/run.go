package scenario

import (
	"context"
	"fmt"

	"github.com/sherine-k/eventloop-sim/pkg/simulation"
	"github.com/sherine-k/eventloop-sim/pkg/trace"
)

// Outcome is the result of running a scenario
type Outcome struct {
	Scenario *Scenario
	Log      simulation.ExecutionLog
	Records  []simulation.Record
	Failures []simulation.Record
	EndTime  simulation.VTime

	// Comparison is nil when the scenario has no expectation
	Comparison *trace.Result
}

// Passed reports whether the trace matched the expectation, if any
func (o *Outcome) Passed() bool {
	return o.Comparison == nil || o.Comparison.Match
}

// Run executes the scenario on a fresh simulator built with opts. The
// outcome is returned even when the run stops with an error.
func Run(ctx context.Context, sc *Scenario, opts ...simulation.Option) (*Outcome, error) {
	sim := simulation.NewSimulator(opts...)

	log, err := sim.Run(ctx, Build(sim, sc.Steps))

	outcome := &Outcome{
		Scenario: sc,
		Log:      log,
		Records:  sim.Records(),
		Failures: sim.Failures(),
		EndTime:  sim.Now(),
	}

	if sc.Expect != nil {
		result := trace.Compare(sc.Expect, log)
		outcome.Comparison = &result
	}

	if err != nil {
		return outcome, fmt.Errorf("scenario %s: %w", sc.Name, err)
	}

	return outcome, nil
}
