package main

import (
	"fmt"

	"github.com/caniparkhere/caniparkhere/apps/api/internal/platform/backend"
	"github.com/caniparkhere/caniparkhere/apps/api/internal/platform/config"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(checkPathsCmd)
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Call the parking backend's health endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newBackend()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()

		status, err := client.HealthCheck(ctx)
		if err != nil {
			return fmt.Errorf("backend unhealthy: %s", backend.FormatAPIError(err))
		}
		return printJSON(cmd.OutOrStdout(), status)
	},
}

var checkPathsCmd = &cobra.Command{
	Use:   "check-paths",
	Short: "Validate the backend endpoint path set and print it",
	RunE: func(cmd *cobra.Command, args []string) error {
		bc, err := config.LoadBackend()
		if err != nil {
			return err
		}
		paths, err := backend.NewPaths(bc.APIPrefix, bc.PathOverrides)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "base url: %s\n", bc.BaseURL)
		for _, line := range paths.Describe() {
			fmt.Fprintln(out, line)
		}
		return nil
	},
}
