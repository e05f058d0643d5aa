package blob

import (
	"errors"
	"strings"
)

type S3Config struct {
	BucketName string
	Region     string
	AccessKey  string
	SecretKey  string
	// Endpoint overrides the AWS endpoint (MinIO, LocalStack). Requests then
	// use path-style addressing.
	Endpoint string
}

// WithS3Config creates a configuration for an AWS S3 bucket
func WithS3Config(bucketName, region, accessKey, secretKey string) *S3Config {
	return &S3Config{
		BucketName: bucketName,
		Region:     region,
		AccessKey:  accessKey,
		SecretKey:  secretKey,
	}
}

// WithMinioConfig creates a configuration for an S3-compatible server
func WithMinioConfig(url, bucketName, region, accessKey, secretKey string) *S3Config {
	return &S3Config{
		BucketName: bucketName,
		Endpoint:   url,
		Region:     region,
		AccessKey:  accessKey,
		SecretKey:  secretKey,
	}
}

func (c *S3Config) Validate() error {
	var missing []string
	if c.BucketName == "" {
		missing = append(missing, "bucket")
	}
	if c.Region == "" {
		missing = append(missing, "region")
	}
	if c.AccessKey == "" {
		missing = append(missing, "access key")
	}
	if c.SecretKey == "" {
		missing = append(missing, "secret key")
	}
	if len(missing) > 0 {
		return errors.New("missing s3 settings: " + strings.Join(missing, ", "))
	}
	return nil
}
