package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newInitCmd())
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init [dir]",
		Short: "Create a new project in a directory",
		Long: `Create a new project identity in the directory (default: current directory).

Nothing is uploaded until the first 'psync push'.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			se, err := newLocalEngine(dirArg(args, 0))
			if err != nil {
				return err
			}

			id, err := se.Init(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s Initialized project in %s\n", green.Render("✔"), se.Root())
			printField(out, "Project", cyan.Render(id.ID))
			fmt.Fprintln(out)
			fmt.Fprintf(out, "Share this id and run %s on another machine.\n", cyan.Render("psync clone "+id.ID))
			return nil
		},
	}
}
