package simulation

import (
	"github.com/sirupsen/logrus"
)

// DefaultMicrotaskLimit bounds a single microtask drain so a microtask that
// keeps re-queueing itself halts the run instead of spinning forever.
const DefaultMicrotaskLimit = 1_000_000

// Option configures a Simulator
type Option func(*Simulator)

// WithLogger sets the logger used for scheduling diagnostics.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(s *Simulator) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMicrotaskLimit sets the maximum number of microtasks executed by one
// drain. Zero or less disables the limit.
func WithMicrotaskLimit(n int) Option {
	return func(s *Simulator) {
		s.microtaskLimit = n
	}
}

// WithTimeLimit stops the run once the next macrotask is due after limit.
// Zero or less disables the limit.
func WithTimeLimit(limit VTime) Option {
	return func(s *Simulator) {
		s.timeLimit = limit
	}
}

// WithHook registers a hook at construction time.
func WithHook(hook Hook) Option {
	return func(s *Simulator) {
		s.AcceptHook(hook)
	}
}

// TaskOption configures a single scheduled task
type TaskOption func(*taskOptions)

type taskOptions struct {
	name string
}

// WithName sets the label used for the task in records and failure entries.
func WithName(name string) TaskOption {
	return func(o *taskOptions) {
		o.name = name
	}
}

func resolveTaskOptions(opts []TaskOption) taskOptions {
	var o taskOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}
