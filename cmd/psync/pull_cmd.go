package main

import (
	"fmt"
	"io"

	"github.com/psync-dev/psync/internal/engine"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newPullCmd())
}

func newPullCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pull [dir]",
		Short: "Download the latest snapshot over the local files",
		Long: `Download the project's latest snapshot and extract it over the directory.

Files present in the snapshot are overwritten. Local files that are not in the
snapshot are left untouched.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			se, err := newRemoteEngine(cmd, dirArg(args, 0))
			if err != nil {
				return err
			}

			res, err := se.Pull(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s Pulled %s\n", green.Render("✔"), cyan.Render(res.ProjectID))
			printPullResult(out, res)
			return nil
		},
	}
}

func printPullResult(w io.Writer, res *engine.PullResult) {
	printField(w, "Files", fmt.Sprintf("%d (%s)", res.Files, formatSize(res.Bytes)))
	printField(w, "Download", formatSize(res.ArchiveSize))
	printField(w, "Synced", formatTime(&res.SyncedAt))
}
