package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// envFlags maps flags to the environment variables that provide their
// defaults. Flags given on the command line win.
var envFlags = map[string]string{
	"log-level":       "EVLOOP_LOG_LEVEL",
	"microtask-limit": "EVLOOP_MICROTASK_LIMIT",
	"time-limit":      "EVLOOP_TIME_LIMIT",
	"record":          "EVLOOP_RECORD",
}

type rootOptions struct {
	logLevel string
	envFile  string
	logger   *logrus.Logger
}

// NewRootCommand builds the evloop command tree
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{
		logger: logrus.New(),
	}

	rootCmd := &cobra.Command{
		Use:   "evloop",
		Short: "Event Loop Simulator",
		Long: `A CLI tool that simulates a single-threaded event loop in virtual time.

This tool runs scripted scenarios made of synchronous code, microtasks, timers
and promise chains, prints the order in which they execute and compares it
with the expected trace.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup(cmd)
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warning", "Log level (trace, debug, info, warning, error)")
	rootCmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "File with EVLOOP_* environment defaults")

	rootCmd.AddCommand(
		newRunCommand(opts),
		newListCommand(),
		newVerifyCommand(opts),
	)

	return rootCmd
}

// Execute runs the root command
func Execute() error {
	return NewRootCommand().Execute()
}

func (o *rootOptions) setup(cmd *cobra.Command) error {
	if err := godotenv.Load(o.envFile); err != nil {
		// the default file is optional, an explicit one is not
		if !errors.Is(err, fs.ErrNotExist) || cmd.Flags().Changed("env-file") {
			return fmt.Errorf("failed to load env file %s: %w", o.envFile, err)
		}
	}

	if err := applyEnv(cmd.Flags()); err != nil {
		return err
	}

	level, err := logrus.ParseLevel(o.logLevel)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}

	o.logger.SetLevel(level)
	o.logger.SetOutput(cmd.ErrOrStderr())

	return nil
}

func applyEnv(flags *pflag.FlagSet) error {
	for name, key := range envFlags {
		f := flags.Lookup(name)
		if f == nil || f.Changed {
			continue
		}

		value, ok := os.LookupEnv(key)
		if !ok {
			continue
		}

		if err := flags.Set(name, value); err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
	}

	return nil
}
