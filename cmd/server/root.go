package main

import (
	"github.com/flagscore/gate/internal/config"
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var envFile bool

	root := &cobra.Command{
		Use:           "flagscore-gate",
		Short:         "Fixed-window rate limiting gate for the Flagscore API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			if envFile {
				config.LoadDotEnv()
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}

	root.PersistentFlags().BoolVar(&envFile, "dotenv", true, "load variables from a .env file in the working directory")

	root.AddCommand(newServeCommand())
	root.AddCommand(newPresetsCommand())
	root.AddCommand(newCheckCommand())

	return root
}
