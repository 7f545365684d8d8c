package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/the-mentat-must-flow/internal/cli"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Bring the database schema up to date",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := initStorage(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStorage(store)

			fmt.Println(cli.FormatSuccess("Database schema is up to date"))
			return nil
		},
	}
}
