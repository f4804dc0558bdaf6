package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// LoadScenario loads and parses a scenario file
func LoadScenario(filename string) (*Scenario, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	return Parse(data)
}

// Parse decodes and validates a YAML scenario. Unknown keys are rejected.
func Parse(data []byte) (*Scenario, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	var scenario Scenario
	if err := decoder.Decode(&scenario); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("failed to parse scenario file: document is empty")
		}
		return nil, fmt.Errorf("failed to parse scenario file: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario validates the scenario
func validateScenario(scenario *Scenario) error {
	if strings.TrimSpace(scenario.Name) == "" {
		return fmt.Errorf("name is required")
	}

	if len(scenario.Steps) == 0 {
		return fmt.Errorf("scenario %s: at least one step must be defined", scenario.Name)
	}

	timers := map[string]bool{}
	collectTimerNames(scenario.Steps, timers)

	return validateSteps("steps", scenario.Steps, timers)
}

func collectTimerNames(steps []Step, names map[string]bool) {
	for _, step := range steps {
		switch {
		case step.Timeout != nil:
			addName(names, step.Timeout.Name)
			collectTimerNames(step.Timeout.Steps, names)
		case step.Interval != nil:
			addName(names, step.Interval.Name)
			collectTimerNames(step.Interval.Steps, names)
		case step.Cron != nil:
			addName(names, step.Cron.Name)
			collectTimerNames(step.Cron.Steps, names)
		case step.Microtask != nil:
			collectTimerNames(step.Microtask, names)
		case step.Chain != nil:
			for _, block := range step.Chain {
				collectTimerNames(block, names)
			}
		case step.Async != nil:
			for _, block := range step.Async {
				collectTimerNames(block, names)
			}
		case step.Reject != nil:
			collectTimerNames(step.Reject.Catch, names)
		case step.All != nil:
			for _, t := range step.All.Tasks {
				addName(names, t.Name)
				collectTimerNames(t.Steps, names)
			}
			collectTimerNames(step.All.Then, names)
		case step.Await != nil:
			collectTimerNames(step.Await.Catch, names)
		}
	}
}

func addName(names map[string]bool, name string) {
	if name != "" {
		names[name] = true
	}
}

func validateSteps(path string, steps []Step, timers map[string]bool) error {
	for i, step := range steps {
		if err := validateStep(fmt.Sprintf("%s[%d]", path, i), step, timers); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(path string, step Step, timers map[string]bool) error {
	kinds := step.kinds()
	if len(kinds) != 1 {
		if len(kinds) == 0 {
			return fmt.Errorf("%s: step has no action", path)
		}
		return fmt.Errorf("%s: step must have exactly one action, got %s", path, strings.Join(kinds, ", "))
	}

	switch {
	case step.Microtask != nil:
		return validateSteps(path+".microtask", step.Microtask, timers)

	case step.Timeout != nil:
		if step.Timeout.Delay < 0 {
			return fmt.Errorf("%s.timeout: delay must not be negative", path)
		}
		return validateSteps(path+".timeout.steps", step.Timeout.Steps, timers)

	case step.Interval != nil:
		if step.Interval.Every <= 0 {
			return fmt.Errorf("%s.interval: every must be greater than 0", path)
		}
		if step.Interval.Times < 0 {
			return fmt.Errorf("%s.interval: times must not be negative", path)
		}
		if step.Interval.Times == 0 && step.Interval.Name == "" {
			return fmt.Errorf("%s.interval: an unbounded interval needs a name so it can be cancelled", path)
		}
		return validateSteps(path+".interval.steps", step.Interval.Steps, timers)

	case step.Cron != nil:
		if step.Cron.Schedule == "" {
			return fmt.Errorf("%s.cron: schedule is required", path)
		}
		if _, err := cron.ParseStandard(step.Cron.Schedule); err != nil {
			return fmt.Errorf("%s.cron: invalid schedule: %w", path, err)
		}
		if step.Cron.Times <= 0 {
			return fmt.Errorf("%s.cron: times must be greater than 0", path)
		}
		return validateSteps(path+".cron.steps", step.Cron.Steps, timers)

	case step.Chain != nil:
		return validateBlocks(path+".chain", step.Chain, timers)

	case step.Async != nil:
		return validateAsyncBlocks(path+".async", step.Async, timers)

	case step.Reject != nil:
		return validateSteps(path+".reject.catch", step.Reject.Catch, timers)

	case step.Cancel != nil:
		if !timers[*step.Cancel] {
			return fmt.Errorf("%s.cancel: no timer named %q", path, *step.Cancel)
		}

	case step.All != nil:
		if len(step.All.Tasks) == 0 {
			return fmt.Errorf("%s.all: at least one task must be defined", path)
		}
		for i, t := range step.All.Tasks {
			taskPath := fmt.Sprintf("%s.all.tasks[%d]", path, i)
			if t.Delay < 0 {
				return fmt.Errorf("%s: delay must not be negative", taskPath)
			}
			if err := validateSteps(taskPath+".steps", t.Steps, timers); err != nil {
				return err
			}
		}
		return validateSteps(path+".all.then", step.All.Then, timers)

	case step.Await != nil:
		return fmt.Errorf("%s: await is only allowed as the last step of an async block", path)
	}

	return nil
}

// validateAsyncBlocks validates async blocks, each of which may end with an
// await
func validateAsyncBlocks(path string, blocks [][]Step, timers map[string]bool) error {
	if len(blocks) == 0 {
		return fmt.Errorf("%s: at least one block must be defined", path)
	}

	for i, block := range blocks {
		blockPath := fmt.Sprintf("%s[%d]", path, i)
		steps := block
		if n := len(block); n > 0 && block[n-1].Await != nil && len(block[n-1].kinds()) == 1 {
			steps = block[:n-1]
			if err := validateAwait(fmt.Sprintf("%s[%d].await", blockPath, n-1), block[n-1].Await, timers); err != nil {
				return err
			}
		}
		if err := validateSteps(blockPath, steps, timers); err != nil {
			return err
		}
	}

	return nil
}

func validateAwait(path string, await *Await, timers map[string]bool) error {
	if await.Reject != nil && await.Delay != nil {
		return fmt.Errorf("%s: reject and delay are mutually exclusive", path)
	}
	if await.Delay != nil && *await.Delay < 0 {
		return fmt.Errorf("%s: delay must not be negative", path)
	}
	return validateSteps(path+".catch", await.Catch, timers)
}

func validateBlocks(path string, blocks [][]Step, timers map[string]bool) error {
	if len(blocks) == 0 {
		return fmt.Errorf("%s: at least one block must be defined", path)
	}
	for i, block := range blocks {
		if err := validateSteps(fmt.Sprintf("%s[%d]", path, i), block, timers); err != nil {
			return err
		}
	}
	return nil
}
