package main

import (
	"fmt"

	"github.com/psync-dev/psync/internal/engine"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newPushCmd())
}

func newPushCmd() *cobra.Command {
	var opts engine.PushOptions

	cmd := &cobra.Command{
		Use:   "push [dir]",
		Short: "Upload a full snapshot of the directory",
		Long: `Pack the directory and replace the project's snapshot in the remote store.

Version control directories, dependency folders and build outputs are always
skipped. Patterns in .psyncignore are skipped unless --ignore-psyncignore is set.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			se, err := newRemoteEngine(cmd, dirArg(args, 0))
			if err != nil {
				return err
			}

			res, err := se.Push(cmd.Context(), opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s Pushed %s\n", green.Render("✔"), cyan.Render(res.ProjectID))
			printField(out, "Files", fmt.Sprintf("%d (%s)", res.Files, formatSize(res.Bytes)))
			printField(out, "Upload", formatSize(res.ArchiveSize))
			printField(out, "Synced", formatTime(&res.SyncedAt))
			if res.Files == 0 {
				fmt.Fprintln(out, yellow.Render("No files matched, the remote snapshot is now empty."))
			}
			if res.Skipped > 0 {
				fmt.Fprintln(out, yellow.Render(fmt.Sprintf("%d file(s) disappeared while packing and were skipped.", res.Skipped)))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&opts.IgnorePsyncignore, "ignore-psyncignore", false, "Do not apply the .psyncignore file")
	cmd.Flags().StringSliceVar(&opts.Include, "include", nil, "Only push files matching these globs")
	cmd.Flags().StringSliceVar(&opts.Exclude, "exclude", nil, "Additional patterns to skip")

	return cmd
}
