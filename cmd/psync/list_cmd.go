package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newListCmd())
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List the projects in the bucket",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			se, err := newRemoteEngine(cmd, ".")
			if err != nil {
				return err
			}

			ids, err := se.List(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(ids) == 0 {
				fmt.Fprintln(out, yellow.Render("No projects found."))
				return nil
			}

			for _, id := range ids {
				fmt.Fprintln(out, id)
			}
			return nil
		},
	}
}
