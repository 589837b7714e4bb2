package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func migrateCmd(t *target) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := t.open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() {
				_ = store.Close()
			}()

			fmt.Fprintf(cmd.OutOrStdout(), "Migrations applied successfully (%s)\n", store.Source())
			return nil
		},
	}
}
