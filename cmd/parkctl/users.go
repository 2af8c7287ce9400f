package main

import (
	"fmt"

	"github.com/caniparkhere/caniparkhere/apps/api/internal/repository"
	"github.com/spf13/cobra"
)

var (
	historyLimit  int
	historyCursor string
	resolveEntry  bool
)

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "page size (max 100)")
	historyCmd.Flags().StringVar(&historyCursor, "cursor", "", "cursor from a previous page")
	lastCmd.Flags().BoolVar(&resolveEntry, "resolve", false, "also load the referenced history entry")

	rootCmd.AddCommand(userCmd, historyCmd, lastCmd, clearLastCmd)
}

var userCmd = &cobra.Command{
	Use:   "user <uid>",
	Short: "Print a user's profile document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()
		client, _, err := openFirestore(ctx)
		if err != nil {
			return err
		}
		defer client.Close()

		profile, err := repository.NewUserRepository(client, nil).GetUserProfile(ctx, args[0])
		if err != nil {
			return fmt.Errorf("user %q: %w", args[0], err)
		}
		return printJSON(cmd.OutOrStdout(), profile)
	},
}

var historyCmd = &cobra.Command{
	Use:   "history <uid>",
	Short: "List a user's parking history, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()
		client, _, err := openFirestore(ctx)
		if err != nil {
			return err
		}
		defer client.Close()

		page, err := repository.NewHistoryRepository(client).GetParkingHistory(ctx, args[0], historyLimit, historyCursor)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(page.Items) == 0 {
			fmt.Fprintln(out, "No parking history")
			return nil
		}
		fmt.Fprintf(out, "%-22s %-26s %-7s %-24s %s\n", "ID", "SAVED", "SOURCE", "LAT,LNG", "ADDRESS")
		for _, e := range page.Items {
			addr := ""
			if e.Address != nil {
				addr = *e.Address
			}
			fmt.Fprintf(out, "%-22s %-26s %-7s %-24s %s\n", e.ID, e.SavedAtISO, e.Source, fmt.Sprintf("%.6f,%.6f", e.Lat, e.Lng), addr)
		}
		if page.NextCursor != "" {
			fmt.Fprintf(out, "\nnext cursor: %s\n", page.NextCursor)
		}
		return nil
	},
}

var lastCmd = &cobra.Command{
	Use:   "last <uid>",
	Short: "Show the last-parked pointer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()
		client, _, err := openFirestore(ctx)
		if err != nil {
			return err
		}
		defer client.Close()

		last, err := repository.NewHistoryRepository(client).GetLastParked(ctx, args[0], resolveEntry)
		if err != nil {
			return err
		}
		if last == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "No last-parked pointer")
			return nil
		}
		return printJSON(cmd.OutOrStdout(), last)
	},
}

var clearLastCmd = &cobra.Command{
	Use:   "clear-last <uid>",
	Short: "Clear the last-parked pointer without touching history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()
		client, _, err := openFirestore(ctx)
		if err != nil {
			return err
		}
		defer client.Close()

		if err := repository.NewHistoryRepository(client).ClearLastParked(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "cleared last-parked pointer for %s\n", args[0])
		return nil
	},
}
