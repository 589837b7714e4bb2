package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func sweepCmd(t *target) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired idempotency records",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := t.open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() {
				_ = store.Close()
			}()

			n, err := store.DeleteExpired(cmd.Context(), time.Now())
			if err != nil {
				return fmt.Errorf("failed to sweep: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d expired records\n", n)
			return nil
		},
	}
}
