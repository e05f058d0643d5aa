package main

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/psync-dev/psync/internal/blob"
	"github.com/psync-dev/psync/internal/config"
	"github.com/psync-dev/psync/internal/engine"
	"github.com/psync-dev/psync/internal/workspace"
	"github.com/spf13/cobra"
)

var (
	// https://github.com/muesli/termenv/blob/master/ansicolors.go
	red    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	green  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	yellow = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	cyan   = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	gray   = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))

	errorHeaderStyle = red.Bold(true)
)

// dirArg returns the directory positional argument at index i, or ".".
func dirArg(args []string, i int) string {
	if len(args) > i && args[i] != "" {
		return args[i]
	}
	return "."
}

// newLocalEngine builds an engine that never talks to the blob store.
func newLocalEngine(dir string) (*engine.SyncEngine, error) {
	return engine.New(dir, nil)
}

// newRemoteEngine resolves credentials for dir and builds an engine backed by S3.
func newRemoteEngine(cmd *cobra.Command, dir string) (*engine.SyncEngine, error) {
	ws, err := workspace.New(dir)
	if err != nil {
		return nil, err
	}

	cfg, err := config.Resolve(config.Chain(ws.ConfigFile, resolveConfigPath(cmd))...)
	if err != nil {
		return nil, err
	}

	store, err := blob.NewS3StoreWithConfig(cmd.Context(), cfg.S3())
	if err != nil {
		return nil, err
	}

	return engine.New(ws.Root, store)
}

func printField(w io.Writer, label, value string) {
	fmt.Fprintf(w, "%s%s\n", gray.Render(fmt.Sprintf("%-10s", label)), value)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return gray.Render("never")
	}
	return fmt.Sprintf("%s %s", t.Local().Format(time.RFC3339), gray.Render("("+humanize.Time(*t)+")"))
}

func formatSize(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.Bytes(uint64(n))
}
