package main

import (
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newStatusCmd())
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [dir]",
		Short: "Show the project linked to a directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			se, err := newLocalEngine(dirArg(args, 0))
			if err != nil {
				return err
			}

			st, err := se.Status()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printField(out, "Dir", st.Root)
			printField(out, "Project", cyan.Render(st.Identity.ID))
			if st.Identity.CreatedAt != nil {
				printField(out, "Created", formatTime(st.Identity.CreatedAt))
			}
			if st.Identity.ClonedAt != nil {
				printField(out, "Cloned", formatTime(st.Identity.ClonedAt))
			}
			printField(out, "Synced", formatTime(st.Identity.LastSyncAt))
			if st.HasIgnoreFile {
				printField(out, "Ignore", ".psyncignore")
			}
			return nil
		},
	}
}
