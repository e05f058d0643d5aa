package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/psync-dev/psync/internal/syncerr"
	"github.com/spf13/viper"
)

const opResolve = "config"

var ErrNoCredentials = errors.New("no complete credentials found, run 'psync config' or set PSYNC_AWS_ACCESS_KEY_ID, PSYNC_AWS_SECRET_ACCESS_KEY and PSYNC_BUCKET")

// Provider is one source of configuration. ok is false when the source has
// nothing to offer.
type Provider interface {
	Name() string
	Load() (cfg *Config, ok bool, err error)
}

// FileProvider reads a JSON config file.
type FileProvider struct {
	Label string
	Path  string
}

// ProjectFile is the config stored in a working directory's metadata dir.
func ProjectFile(path string) *FileProvider {
	return &FileProvider{Label: "project", Path: path}
}

// GlobalFile is the per-user config.
func GlobalFile(path string) *FileProvider {
	return &FileProvider{Label: "global", Path: path}
}

func (p *FileProvider) Name() string {
	return p.Label + " config " + p.Path
}

func (p *FileProvider) Load() (*Config, bool, error) {
	if p.Path == "" {
		return nil, false, nil
	}

	v := viper.New()
	v.SetConfigFile(p.Path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		enoent := errors.Is(err, os.ErrNotExist)
		_, ok := err.(viper.ConfigFileNotFoundError)
		if enoent || ok {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("config read '%s': %w", p.Path, err)
	}

	return fromViper(v), true, nil
}

// EnvProvider reads PSYNC_* variables, falling back to the standard AWS ones.
type EnvProvider struct{}

func Env() *EnvProvider {
	return &EnvProvider{}
}

func (p *EnvProvider) Name() string {
	return "environment"
}

func (p *EnvProvider) Load() (*Config, bool, error) {
	v := viper.New()
	bindings := map[string][]string{
		keyAccessKeyID:     {"PSYNC_AWS_ACCESS_KEY_ID", "AWS_ACCESS_KEY_ID"},
		keySecretAccessKey: {"PSYNC_AWS_SECRET_ACCESS_KEY", "AWS_SECRET_ACCESS_KEY"},
		keyRegion:          {"PSYNC_AWS_REGION", "AWS_REGION"},
		keyEndpoint:        {"PSYNC_AWS_ENDPOINT"},
		keyBucket:          {"PSYNC_BUCKET"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, false, err
		}
	}

	cfg := fromViper(v)
	if *cfg == (Config{}) {
		return nil, false, nil
	}
	return cfg, true, nil
}

const (
	keyAccessKeyID     = "aws.accessKeyId"
	keySecretAccessKey = "aws.secretAccessKey"
	keyRegion          = "aws.region"
	keyEndpoint        = "aws.endpoint"
	keyBucket          = "bucket"
)

func fromViper(v *viper.Viper) *Config {
	return &Config{
		AWS: AWS{
			AccessKeyID:     v.GetString(keyAccessKeyID),
			SecretAccessKey: v.GetString(keySecretAccessKey),
			Region:          v.GetString(keyRegion),
			Endpoint:        v.GetString(keyEndpoint),
		},
		Bucket: v.GetString(keyBucket),
	}
}

// Chain returns the providers in precedence order: the project config in
// projectConfigPath, the global config at globalPath, then the environment.
// An empty path skips that source.
func Chain(projectConfigPath, globalPath string) []Provider {
	return []Provider{
		ProjectFile(projectConfigPath),
		GlobalFile(globalPath),
		Env(),
	}
}

// Resolve returns the config of the first provider that yields a complete,
// valid config. Later providers are never consulted once one succeeds.
func Resolve(providers ...Provider) (*Config, error) {
	for _, p := range providers {
		cfg, ok, err := p.Load()
		if err != nil {
			return nil, syncerr.IO(opResolve, err)
		}
		if !ok {
			continue
		}
		if !cfg.Complete() {
			slog.Debug("config source incomplete", "source", p.Name(), "missing", cfg.Missing())
			continue
		}
		if err := cfg.Validate(); err != nil {
			return nil, syncerr.Validation(opResolve, fmt.Errorf("%s: %w", p.Name(), err))
		}

		cfg.Source = p.Name()
		slog.Debug("config resolved", "source", cfg.Source, "region", cfg.AWS.Region, "bucket", cfg.Bucket)
		return cfg, nil
	}
	return nil, syncerr.Validation(opResolve, ErrNoCredentials)
}

// Load reads a single config file without requiring it to be complete.
func Load(path string) (*Config, bool, error) {
	return GlobalFile(path).Load()
}
