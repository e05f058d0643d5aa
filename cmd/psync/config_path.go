package main

import (
	"os"
	"path/filepath"

	"github.com/psync-dev/psync/internal/config"
	"github.com/psync-dev/psync/internal/utils"
	"github.com/spf13/cobra"
)

// resolveConfigPath determines which global config file to use, honoring (in order):
// 1) An explicitly set --config flag
// 2) PSYNC_CONFIG_PATH environment variable
// 3) Existing config files in common locations
// 4) The default path
func resolveConfigPath(cmd *cobra.Command) string {
	if cfgFlag := cmd.Flag("config"); cfgFlag != nil && cfgFlag.Changed {
		return cfgFlag.Value.String()
	}

	if envPath := os.Getenv("PSYNC_CONFIG_PATH"); envPath != "" {
		return envPath
	}

	candidates := []string{
		filepath.Join(home, ".psync", "config.json"),
		filepath.Join(home, ".config", "psync", "config.json"),
	}

	for _, candidate := range candidates {
		if utils.FileExists(candidate) {
			return candidate
		}
	}

	return config.DefaultConfigPath
}
