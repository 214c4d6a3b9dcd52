package ingest

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/pkg/errors"
)

// ObjectGetter is the part of the S3 client used to fetch a CSV.
type ObjectGetter interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// IsS3 reports whether location is an s3://bucket/key URL.
func IsS3(location string) bool {
	return strings.HasPrefix(location, "s3://")
}

// ParseS3 splits s3://bucket/key into its parts.
func ParseS3(location string) (bucket, key string, err error) {
	rest := strings.TrimPrefix(location, "s3://")
	bucket, key, found := strings.Cut(rest, "/")
	if !found || bucket == "" || key == "" {
		return "", "", errors.Errorf("invalid s3 location %q, want s3://bucket/key", location)
	}
	return bucket, key, nil
}

// NewS3Client builds a client from the default AWS credential chain.
// S3_ENDPOINT points it at an S3 compatible service (path-style addressing).
func NewS3Client(ctx context.Context) (*s3.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region := os.Getenv("AWS_REGION"); region == "" {
		opts = append(opts, awsconfig.WithRegion("us-east-1"))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "load AWS config")
	}
	var s3Opts []func(*s3.Options)
	if ep := os.Getenv("S3_ENDPOINT"); ep != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(ep)
			o.UsePathStyle = true
		})
	}
	return s3.NewFromConfig(awsCfg, s3Opts...), nil
}

// Fetch resolves a CSV location to a local file.  Local paths are returned
// as is; s3:// objects are downloaded into a temporary file which cleanup
// removes.  The loader needs a seekable file because it reads the CSV twice.
func Fetch(ctx context.Context, client ObjectGetter, location string) (path string, cleanup func(), err error) {
	noop := func() {}
	if !IsS3(location) {
		return location, noop, nil
	}
	bucket, key, err := ParseS3(location)
	if err != nil {
		return "", noop, err
	}
	if client == nil {
		return "", noop, errors.New("s3 location given but no S3 client configured")
	}
	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", noop, errors.Wrapf(err, "get %s", location)
	}
	defer func() { _ = out.Body.Close() }()

	tmp, err := os.CreateTemp("", "ingest-*.csv")
	if err != nil {
		return "", noop, errors.Wrap(err, "create temp file")
	}
	cleanup = func() { _ = os.Remove(tmp.Name()) }
	if _, err := io.Copy(tmp, out.Body); err != nil {
		_ = tmp.Close()
		cleanup()
		return "", noop, errors.Wrapf(err, "download %s", location)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", noop, errors.Wrap(err, "close temp file")
	}
	return tmp.Name(), cleanup, nil
}
