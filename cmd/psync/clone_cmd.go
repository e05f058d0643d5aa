package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newCloneCmd())
}

func newCloneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clone <project-id> [dir]",
		Short: "Download an existing project into an empty directory",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			se, err := newRemoteEngine(cmd, dirArg(args, 1))
			if err != nil {
				return err
			}

			res, err := se.Clone(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s Cloned %s into %s\n", green.Render("✔"), cyan.Render(res.ProjectID), se.Root())
			printPullResult(out, res)
			return nil
		},
	}
}
