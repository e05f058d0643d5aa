package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/psync-dev/psync/internal/config"
	"github.com/psync-dev/psync/internal/utils"
	"github.com/psync-dev/psync/internal/version"
	"github.com/spf13/cobra"
)

var (
	home, _  = os.UserHomeDir()
	logLevel = new(slog.LevelVar)
)

var rootCmd = &cobra.Command{
	Use:   "psync",
	Short: "Sync a project directory through S3",
	Long: `psync moves a project's files between machines through a single S3 object.

Each project has an opaque id. 'psync init' creates one, 'psync push' uploads
a full snapshot of the directory, and 'psync clone <id>' or 'psync pull'
fetch it on another machine.`,
	Version:       version.Detailed(),
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
			logLevel.Set(slog.LevelDebug)
		}
		slog.Debug("psync", "version", version.Short(), "command", cmd.Name())
	},
}

func init() {
	logLevel.Set(slog.LevelWarn)
	rootCmd.PersistentFlags().StringP("config", "c", config.DefaultConfigPath, "psync global config file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")
}

func main() {
	closeLog := setupLogging(os.Stderr, config.DefaultLogFilePath)
	defer closeLog()

	// Setup root context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		printError(rootCmd.ErrOrStderr(), err)
		closeLog()
		stop()
		os.Exit(1)
	}
}

// setupLogging logs to the console at the level of logLevel and to logFile
// at debug level. A log file that cannot be opened only disables file logging.
func setupLogging(console *os.File, logFile string) func() {
	consoleHandler := tint.NewHandler(console, &tint.Options{
		Level:      logLevel,
		TimeFormat: "15:04:05.000",
		NoColor:    !isatty.IsTerminal(console.Fd()),
	})

	file, err := openLogFile(logFile)
	if err != nil {
		slog.SetDefault(slog.New(consoleHandler))
		slog.Debug("file logging disabled", "path", logFile, "error", err)
		return func() {}
	}

	stamper := utils.NewLineStamper(file)
	fileHandler := slog.NewTextHandler(stamper, &slog.HandlerOptions{
		Level: slog.LevelDebug,
		// the stamper adds the time
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			return a
		},
	})

	slog.SetDefault(slog.New(utils.NewFanoutHandler(consoleHandler, fileHandler)))
	return func() {
		_ = stamper.Close()
		_ = file.Close()
	}
}

func openLogFile(path string) (io.WriteCloser, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

func printError(w io.Writer, err error) {
	fmt.Fprintf(w, "%s %s\n", errorHeaderStyle.Render("ERROR:"), err.Error())
}
