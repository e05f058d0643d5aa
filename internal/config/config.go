package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"github.com/psync-dev/psync/internal/blob"
	"github.com/psync-dev/psync/internal/utils"
)

const DefaultRegion = "ap-south-1"

var (
	home, _            = os.UserHomeDir()
	DefaultConfigDir   = filepath.Join(home, ".psync")
	DefaultConfigPath  = filepath.Join(DefaultConfigDir, "config.json")
	DefaultLogFilePath = filepath.Join(DefaultConfigDir, "logs", "psync.log")
)

var ErrIncomplete = errors.New("incomplete config")

type AWS struct {
	AccessKeyID     string `json:"accessKeyId"`
	SecretAccessKey string `json:"secretAccessKey"`
	Region          string `json:"region"`
	Endpoint        string `json:"endpoint,omitempty"`
}

type Config struct {
	AWS    AWS    `json:"aws"`
	Bucket string `json:"bucket"`
	// Source names the provider the config was resolved from.
	Source string `json:"-"`
}

// Complete reports whether every required value is present. Region is not
// required since it has a default.
func (c *Config) Complete() bool {
	return c.AWS.AccessKeyID != "" && c.AWS.SecretAccessKey != "" && c.Bucket != ""
}

// Missing lists the names of the required values that are blank.
func (c *Config) Missing() []string {
	var missing []string
	if c.AWS.AccessKeyID == "" {
		missing = append(missing, "access key id")
	}
	if c.AWS.SecretAccessKey == "" {
		missing = append(missing, "secret access key")
	}
	if c.Bucket == "" {
		missing = append(missing, "bucket")
	}
	return missing
}

func (c *Config) Validate() error {
	c.AWS.AccessKeyID = strings.TrimSpace(c.AWS.AccessKeyID)
	c.AWS.SecretAccessKey = strings.TrimSpace(c.AWS.SecretAccessKey)
	c.AWS.Region = strings.TrimSpace(c.AWS.Region)
	c.AWS.Endpoint = strings.TrimSpace(c.AWS.Endpoint)
	c.Bucket = strings.TrimSpace(c.Bucket)

	if missing := c.Missing(); len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrIncomplete, strings.Join(missing, ", "))
	}
	if strings.Contains(c.Bucket, "/") {
		return fmt.Errorf("invalid bucket name %q", c.Bucket)
	}
	if c.AWS.Endpoint != "" && !strings.HasPrefix(c.AWS.Endpoint, "http://") && !strings.HasPrefix(c.AWS.Endpoint, "https://") {
		return fmt.Errorf("invalid endpoint %q: must start with http:// or https://", c.AWS.Endpoint)
	}
	if c.AWS.Region == "" {
		c.AWS.Region = DefaultRegion
	}
	return nil
}

// S3 returns the blob store settings for this config.
func (c *Config) S3() *blob.S3Config {
	if c.AWS.Endpoint != "" {
		return blob.WithMinioConfig(c.AWS.Endpoint, c.Bucket, c.AWS.Region, c.AWS.AccessKeyID, c.AWS.SecretAccessKey)
	}
	return blob.WithS3Config(c.Bucket, c.AWS.Region, c.AWS.AccessKeyID, c.AWS.SecretAccessKey)
}

// Save writes the config as JSON, readable only by the owner.
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return utils.WriteFileAtomic(path, data, 0o600)
}

// MaskedSecret shows only the last four characters of the secret key.
func (c *Config) MaskedSecret() string {
	return utils.MaskSecret(c.AWS.SecretAccessKey)
}
