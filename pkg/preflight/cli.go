package preflight

import (
	"context"
	"fmt"
	"strings"

	"github.com/3leaps/imageport/pkg/cloudcli"
)

// AzureContainerProber checks that the blob container exists and is
// visible to the logged-in principal, via az storage container show.
type AzureContainerProber struct {
	runner         cloudcli.Runner
	container      string
	storageAccount string
}

// NewAzureContainerProber builds a prober using the given az runner.
func NewAzureContainerProber(runner cloudcli.Runner, container, storageAccount string) *AzureContainerProber {
	return &AzureContainerProber{
		runner:         runner,
		container:      container,
		storageAccount: storageAccount,
	}
}

func (p *AzureContainerProber) Capability() string { return CapStorageBucket }

func (p *AzureContainerProber) Method() string {
	return fmt.Sprintf("az storage container show(container=%q)", p.container)
}

func (p *AzureContainerProber) Probe(ctx context.Context) error {
	res, err := p.runner.Run(ctx,
		"storage", "container", "show",
		"--name", p.container,
		"--account-name", p.storageAccount,
	)
	if err != nil {
		return err
	}
	if !res.Ok() {
		return fmt.Errorf("container %s is not reachable: %s", p.container, res.Diagnostic())
	}
	return nil
}

// ErrorCode classifies az failures for the preflight record.
func (p *AzureContainerProber) ErrorCode(err error) string {
	return classifyCLIError(err)
}

// GCPBucketProber checks that the storage bucket exists and is listable,
// via gsutil ls -b.
type GCPBucketProber struct {
	runner cloudcli.Runner
	bucket string
}

// NewGCPBucketProber builds a prober using the given gsutil runner.
func NewGCPBucketProber(runner cloudcli.Runner, bucket string) *GCPBucketProber {
	return &GCPBucketProber{runner: runner, bucket: bucket}
}

func (p *GCPBucketProber) Capability() string { return CapStorageBucket }

func (p *GCPBucketProber) Method() string {
	return fmt.Sprintf("gsutil ls -b(bucket=%q)", p.bucket)
}

func (p *GCPBucketProber) Probe(ctx context.Context) error {
	res, err := p.runner.Run(ctx, "ls", "-b", fmt.Sprintf("gs://%s", p.bucket))
	if err != nil {
		return err
	}
	if !res.Ok() {
		return fmt.Errorf("bucket %s is not reachable: %s", p.bucket, res.Diagnostic())
	}
	return nil
}

// ErrorCode classifies gsutil failures for the preflight record.
func (p *GCPBucketProber) ErrorCode(err error) string {
	return classifyCLIError(err)
}

// classifyCLIError maps CLI diagnostics onto preflight error codes by
// the wording the tools use for missing and forbidden targets.
func classifyCLIError(err error) string {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "not found"), strings.Contains(msg, "does not exist"), strings.Contains(msg, "404"):
		return ErrCodeNotFound
	case strings.Contains(msg, "denied"), strings.Contains(msg, "forbidden"), strings.Contains(msg, "403"), strings.Contains(msg, "authoriz"):
		return ErrCodeAccessDenied
	default:
		return ErrCodeInternal
	}
}

var (
	_ BucketProber = (*AzureContainerProber)(nil)
	_ ErrorCoder   = (*AzureContainerProber)(nil)
	_ BucketProber = (*GCPBucketProber)(nil)
	_ ErrorCoder   = (*GCPBucketProber)(nil)
)
