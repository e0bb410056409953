package preflight

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// headBucketAPI is the slice of the S3 client the prober uses.
type headBucketAPI interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// AWSBucketProber checks that the S3 bucket exists and the principal can
// reach it, via HeadBucket. No objects are read or written.
type AWSBucketProber struct {
	client headBucketAPI
	bucket string
}

// NewAWSBucketProber builds a prober using the SDK's default credential
// chain.
func NewAWSBucketProber(ctx context.Context, bucket, region string) (*AWSBucketProber, error) {
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	return &AWSBucketProber{
		client: s3.NewFromConfig(awsCfg),
		bucket: bucket,
	}, nil
}

// NewAWSBucketProberWithClient builds a prober around an existing client.
func NewAWSBucketProberWithClient(client headBucketAPI, bucket string) *AWSBucketProber {
	return &AWSBucketProber{client: client, bucket: bucket}
}

func (p *AWSBucketProber) Capability() string { return CapStorageBucket }

func (p *AWSBucketProber) Method() string {
	return fmt.Sprintf("HeadBucket(bucket=%q)", p.bucket)
}

func (p *AWSBucketProber) Probe(ctx context.Context) error {
	_, err := p.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(p.bucket),
	})
	if err != nil {
		return fmt.Errorf("bucket %s is not reachable: %w", p.bucket, err)
	}
	return nil
}

// ErrorCode classifies HeadBucket failures for the preflight record.
func (p *AWSBucketProber) ErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchBucket":
			return ErrCodeNotFound
		case "AccessDenied", "Forbidden":
			return ErrCodeAccessDenied
		}
	}

	// HeadBucket failures often surface as bare HTTP status errors.
	msg := err.Error()
	switch {
	case strings.Contains(msg, "404"), strings.Contains(msg, "NotFound"):
		return ErrCodeNotFound
	case strings.Contains(msg, "403"), strings.Contains(msg, "Forbidden"), strings.Contains(msg, "AccessDenied"):
		return ErrCodeAccessDenied
	}
	return ErrCodeInternal
}

var _ BucketProber = (*AWSBucketProber)(nil)
var _ ErrorCoder = (*AWSBucketProber)(nil)
