package main

import (
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/firestore"
	"github.com/caniparkhere/caniparkhere/apps/api/pkg/model"
	"github.com/caniparkhere/caniparkhere/apps/api/pkg/util"
	"github.com/spf13/cobra"
)

// Firestore caps a batch at 500 writes; updates stay well under it.
const migrateBatchSize = 100

var dryRun bool

func init() {
	migrateCmd.Flags().BoolVar(&dryRun, "dry-run", false, "report changes without writing them")
	rootCmd.AddCommand(migrateCmd)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate-history [uid]",
	Short: "Normalize source and address fields on stored history entries",
	Long: `Entries written by older clients may lack a source, use the "search" alias,
or carry raw HTML in the address. Without a uid every user's history is scanned.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()
		client, _, err := openFirestore(ctx)
		if err != nil {
			return err
		}
		defer client.Close()

		q := client.CollectionGroup("history").Query
		if len(args) == 1 {
			q = client.Collection("users").Doc(args[0]).Collection("history").Query
		}
		return migrateHistory(ctx, client, q, cmd.OutOrStdout())
	},
}

type pendingFix struct {
	ref     *firestore.DocumentRef
	updates []firestore.Update
}

func migrateHistory(ctx context.Context, client *firestore.Client, q firestore.Query, out io.Writer) error {
	docs, err := q.Documents(ctx).GetAll()
	if err != nil {
		return fmt.Errorf("list history: %w", err)
	}
	fmt.Fprintf(out, "Found %d history entries\n", len(docs))

	var fixes []pendingFix
	for _, doc := range docs {
		if u := historyFixes(doc.Data()); len(u) > 0 {
			fixes = append(fixes, pendingFix{ref: doc.Ref, updates: u})
			if dryRun && len(fixes) <= 5 {
				fmt.Fprintf(out, "  %s:", doc.Ref.Path)
				for _, up := range u {
					fmt.Fprintf(out, " %s=%v", up.Path, up.Value)
				}
				fmt.Fprintln(out)
			}
		}
	}

	if len(fixes) == 0 {
		fmt.Fprintln(out, "Nothing to migrate")
		return nil
	}
	if dryRun {
		fmt.Fprintf(out, "[dry-run] would update %d entries\n", len(fixes))
		return nil
	}

	updated := 0
	for i := 0; i < len(fixes); i += migrateBatchSize {
		end := min(i+migrateBatchSize, len(fixes))
		batch := client.Batch()
		for _, f := range fixes[i:end] {
			batch.Update(f.ref, f.updates)
		}
		if _, err := batch.Commit(ctx); err != nil {
			return fmt.Errorf("commit batch: %w", err)
		}
		updated = end
		fmt.Fprintf(out, "  progress: %d/%d\n", updated, len(fixes))
	}
	fmt.Fprintf(out, "Updated %d entries\n", updated)
	return nil
}

// historyFixes returns the field updates a raw history document needs.
func historyFixes(data map[string]interface{}) []firestore.Update {
	var updates []firestore.Update

	src, _ := data["source"].(string)
	switch norm := model.EntrySource(src).Normalize(); {
	case src == "":
		updates = append(updates, firestore.Update{Path: "source", Value: string(model.SourceManual)})
	case norm != model.EntrySource(src):
		updates = append(updates, firestore.Update{Path: "source", Value: string(norm)})
	}

	if addr, ok := data["address"].(string); ok {
		switch cleaned := util.CleanAddress(addr); {
		case cleaned == "":
			updates = append(updates, firestore.Update{Path: "address", Value: nil})
		case cleaned != addr:
			updates = append(updates, firestore.Update{Path: "address", Value: cleaned})
		}
	}
	return updates
}
