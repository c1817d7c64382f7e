package main

import (
	"github.com/flagscore/gate/internal/config"
	"github.com/spf13/cobra"
)

func newPresetsCommand() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "presets",
		Short: "Print the effective gate presets as YAML",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if file == "" {
				file = config.Load().RateLimit.PresetsFile
			}

			presets, err := config.LoadPresets(file)
			if err != nil {
				return err
			}

			data, err := config.MarshalPresets(presets)
			if err != nil {
				return err
			}

			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "presets file to merge (defaults to RATE_LIMIT_PRESETS_FILE)")
	return cmd
}
