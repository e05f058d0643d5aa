package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/psync-dev/psync/internal/config"
	"github.com/psync-dev/psync/internal/syncerr"
	"github.com/spf13/cobra"
)

const opConfig = "config"

// stdinIsTerminal is swapped in tests.
var stdinIsTerminal = func() bool {
	fd := os.Stdin.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func init() {
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newConfigPathCmd())
}

func newConfigCmd() *cobra.Command {
	var (
		input config.Config
		force bool
		show  bool
	)

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Set up AWS credentials and the bucket",
		Long: `Save the AWS credentials and bucket used by psync to the global config file.

Values not given as flags are prompted for when running in a terminal. An
existing config is only replaced with --force or after confirmation.

Credentials are looked up in <dir>/.psync/config.json, then the global config
file, then the environment (PSYNC_AWS_ACCESS_KEY_ID, PSYNC_AWS_SECRET_ACCESS_KEY,
PSYNC_AWS_REGION, PSYNC_AWS_ENDPOINT, PSYNC_BUCKET).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := resolveConfigPath(cmd)

			existing, found, err := config.Load(path)
			if err != nil {
				return syncerr.IO(opConfig, err).WithPath(path)
			}

			if show {
				if !found {
					return syncerr.Statef(opConfig, "no config at %s, run 'psync config' first", path)
				}
				printConfig(cmd.OutOrStdout(), path, existing)
				return nil
			}

			cfg, err := collectConfig(path, &input, found && !force)
			if err != nil {
				return err
			}

			if err := cfg.Validate(); err != nil {
				return syncerr.Validation(opConfig, err)
			}
			if err := cfg.Save(path); err != nil {
				return syncerr.IO(opConfig, err).WithPath(path)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s Config saved\n", green.Render("✔"))
			printConfig(out, path, cfg)
			return nil
		},
	}

	cmd.Flags().StringVar(&input.AWS.AccessKeyID, "access-key-id", "", "AWS access key id")
	cmd.Flags().StringVar(&input.AWS.SecretAccessKey, "secret-access-key", "", "AWS secret access key")
	cmd.Flags().StringVar(&input.AWS.Region, "region", "", "AWS region (default "+config.DefaultRegion+")")
	cmd.Flags().StringVar(&input.Bucket, "bucket", "", "S3 bucket name")
	cmd.Flags().StringVar(&input.AWS.Endpoint, "endpoint", "", "Custom S3 endpoint, e.g. MinIO or LocalStack")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Replace an existing config without asking")
	cmd.Flags().BoolVar(&show, "show", false, "Print the current config with the secret masked")

	return cmd
}

// collectConfig returns the config to save. The form runs when values are
// missing or the replacement needs confirmation, and only on a terminal.
func collectConfig(path string, input *config.Config, needsConfirm bool) (*config.Config, error) {
	if input.Complete() && !needsConfirm {
		cfg := *input
		return &cfg, nil
	}

	if !stdinIsTerminal() {
		if needsConfirm {
			return nil, syncerr.Statef(opConfig, "config already exists at %s, use --force to replace it", path)
		}
		return nil, syncerr.Validationf(opConfig, "missing %s (pass them as flags)", strings.Join(input.Missing(), ", "))
	}

	return RunConfigTUI(ConfigTUIOpts{
		ConfigPath: path,
		Initial:    *input,
		Confirm:    needsConfirm,
		SubmitHandler: func(cfg *config.Config) error {
			return cfg.Validate()
		},
	})
}

func printConfig(w io.Writer, path string, cfg *config.Config) {
	printField(w, "Path", path)
	printField(w, "Key", cfg.AWS.AccessKeyID)
	printField(w, "Secret", cfg.MaskedSecret())
	printField(w, "Region", cfg.AWS.Region)
	printField(w, "Bucket", cyan.Render(cfg.Bucket))
	if cfg.AWS.Endpoint != "" {
		printField(w, "Endpoint", cfg.AWS.Endpoint)
	}
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config-path",
		Short: "Print the resolved global config file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), resolveConfigPath(cmd))
			return err
		},
	}
}
