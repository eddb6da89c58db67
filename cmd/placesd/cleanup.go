package main

import (
	"encoding/json"
	"errors"
	"io"

	"places-cache/pkg/config"

	"github.com/spf13/cobra"
)

func newCleanupCmd(load func() (*config.Config, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Run a cache cleanup job once and print the result as JSON",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "sweep",
		Short: "Remove expired rows from every cache table",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadJobApp(load)
			if err != nil {
				return err
			}
			defer a.close()

			results := a.sweeper.Sweep(cmd.Context())
			if err := printJSON(cmd.OutOrStdout(), results); err != nil {
				return err
			}
			for _, r := range results {
				if !r.Success {
					return errors.New("sweep failed for one or more tables")
				}
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "force-clear",
		Short: "Remove cache rows created within the force-clear window",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadJobApp(load)
			if err != nil {
				return err
			}
			defer a.close()

			result, err := a.sweeper.ForceClear(cmd.Context())
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), result); err != nil {
				return err
			}
			if !result.Success {
				return errors.New(result.Message)
			}
			return nil
		},
	})

	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// loadJobApp builds the app for a one-shot job. Logs go to stderr unless
// configured otherwise so stdout carries only the JSON result.
func loadJobApp(load func() (*config.Config, error)) (*app, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}
	if len(cfg.Logging.OutputPaths) == 0 {
		cfg.Logging.OutputPaths = []string{"stderr"}
	}
	cfg.Cleanup.ScheduleEnabled = false
	return newApp(cfg)
}
