package main

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/argus-labs/stash/pkg/telemetry"
)

// Global flag values.
var (
	flagSeed    uint64
	flagTag     uint8
	flagLogJSON bool
)

var tel *telemetry.Telemetry

var rootCmd = &cobra.Command{
	Use:          "stashbench",
	Short:        "Exercise the storage engine with synthetic workloads",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		opts := telemetry.Options{ServiceName: "stashbench"}
		if flagLogJSON {
			opts.LogFormat = telemetry.LogFormatJSON
		}
		var err error
		tel, err = telemetry.New(opts)
		return err
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return tel.Shutdown(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().Uint64Var(&flagSeed, "seed", 1, "seed of the workload generator")
	rootCmd.PersistentFlags().Uint8Var(&flagTag, "tag", 0, "world tag packed into entity handles")
	rootCmd.PersistentFlags().BoolVar(&flagLogJSON, "log-json", false, "log as JSON instead of console output")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(dumpCmd)
}

func logger(component string) *zerolog.Logger {
	l := tel.Logger(component)
	return &l
}
