package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/dustin/go-humanize"
	"github.com/psync-dev/psync/internal/version"
)

const (
	groupDelimiter = "/"
	listPageSize   = 1000
)

// S3Store is a Store backed by a single S3 bucket.
type S3Store struct {
	client s3API
	config *S3Config
}

func NewS3Store(client s3API, cfg *S3Config) *S3Store {
	return &S3Store{
		client: client,
		config: cfg,
	}
}

// NewS3StoreWithConfig builds the AWS client from static credentials.
func NewS3StoreWithConfig(ctx context.Context, cfg *S3Config) (*S3Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			MaxIdleConns:          10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			ForceAttemptHTTP2:     true,
		},
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
		config.WithRegion(cfg.Region),
		config.WithHTTPClient(httpClient),
		config.WithAppID(version.AppID()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	awsClient := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return NewS3Store(awsClient, cfg), nil
}

func (s *S3Store) Bucket() string {
	return s.config.BucketName
}

func (s *S3Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: &s.config.BucketName,
		Key:    &key,
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, s.wrap("exists", key, err)
	}
	return true, nil
}

func (s *S3Store) Put(ctx context.Context, key string, body io.Reader, size int64) error {
	resp, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        &s.config.BucketName,
		Key:           &key,
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String("application/zip"),
	})
	if err != nil {
		return s.wrap("put", key, err)
	}

	slog.Debug("uploaded object",
		"bucket", s.config.BucketName,
		"key", key,
		"size", humanize.Bytes(uint64(size)),
		"etag", strings.ReplaceAll(aws.ToString(resp.ETag), "\"", ""),
	)
	return nil
}

func (s *S3Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.config.BucketName,
		Key:    &key,
	})
	if err != nil {
		if isNotFound(err) {
			return nil, s.wrap("get", key, ErrObjectNotFound)
		}
		return nil, s.wrap("get", key, err)
	}

	slog.Debug("downloading object",
		"bucket", s.config.BucketName,
		"key", key,
		"size", humanize.Bytes(uint64(aws.ToInt64(resp.ContentLength))),
	)
	return resp.Body, nil
}

func (s *S3Store) ListTopLevelGroups(ctx context.Context) ([]string, error) {
	groups := mapset.NewThreadUnsafeSet[string]()

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket:    &s.config.BucketName,
		Delimiter: aws.String(groupDelimiter),
		MaxKeys:   aws.Int32(listPageSize),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, s.wrap("list", "", err)
		}

		for _, prefix := range page.CommonPrefixes {
			group := strings.TrimSuffix(aws.ToString(prefix.Prefix), groupDelimiter)
			if group != "" {
				groups.Add(group)
			}
		}
	}

	result := groups.ToSlice()
	sort.Strings(result)
	return result, nil
}

func (s *S3Store) wrap(op, key string, err error) error {
	return &Error{Op: op, Bucket: s.config.BucketName, Key: key, Err: err}
}

// isNotFound matches both the typed errors of GetObject and the bare 404 of
// HeadObject, which has no body and therefore only an error code.
func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}

var _ Store = (*S3Store)(nil)
