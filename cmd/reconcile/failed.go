package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/garrettladley/payhook/internal/storage"
	go_json "github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

func failedCmd(t *target) *cobra.Command {
	var (
		status string
		limit  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "failed",
		Short: "List events whose order update failed and need manual reconciliation",
		Long: "List unexpired idempotency records by status. The default, failed, shows events the\n" +
			"order source rejected after the payment was recorded. Use --status processing to find\n" +
			"deliveries interrupted mid-flight.",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := storage.ParseIdempotencyStatus(status)
			if err != nil {
				return err
			}

			store, err := t.open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() {
				_ = store.Close()
			}()

			records, err := store.ListByStatus(cmd.Context(), st, limit)
			if err != nil {
				return fmt.Errorf("failed to list records: %w", err)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := go_json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(records)
			}

			if len(records) == 0 {
				fmt.Fprintf(out, "No %s records\n", st)
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "EVENT\tPROCESSED\tTOKEN\tTRANSACTION\tREASON")
			for _, rec := range records {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					rec.EventID,
					rec.ProcessedAt.UTC().Format(time.RFC3339),
					rec.Metadata[storage.MetadataCorrelationToken],
					rec.Metadata[storage.MetadataTransactionID],
					rec.Metadata[storage.MetadataFailureReason],
				)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&status, "status", string(storage.StatusFailed), "record status to list")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum records to list")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print records as JSON")
	return cmd
}
