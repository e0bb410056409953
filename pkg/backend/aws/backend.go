// Package aws implements backend.Backend against the aws CLI.
//
// The import path is the asynchronous one: the raw image is uploaded to
// S3, submitted as an EC2 snapshot import task, polled to a terminal
// status, and the resulting snapshot registered as an AMI.
package aws

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/3leaps/imageport/pkg/backend"
	"github.com/3leaps/imageport/pkg/cloudcli"
	"github.com/3leaps/imageport/pkg/output"
	"github.com/3leaps/imageport/pkg/unpack"
)

// Backend drives S3 uploads and EC2 snapshot imports through the aws CLI.
type Backend struct {
	runner   cloudcli.Runner
	unpacker *unpack.Unpacker

	bucket string
	region string

	pollInterval time.Duration
	pollBudget   time.Duration

	logger  *zap.Logger
	records output.Writer
	now     func() time.Time
	wait    WaitFunc
}

var _ backend.Backend = (*Backend)(nil)

// New creates an AWS backend using the given runner for aws CLI calls.
func New(runner cloudcli.Runner, cfg Config) (*Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	b := &Backend{
		runner:       runner,
		unpacker:     unpack.New(cfg.StagingDir),
		bucket:       cfg.Bucket,
		region:       cfg.Region,
		pollInterval: cfg.PollInterval,
		pollBudget:   cfg.PollBudget,
		logger:       cfg.Logger,
		records:      cfg.Records,
		now:          cfg.Now,
		wait:         cfg.Wait,
	}
	if b.pollInterval <= 0 {
		b.pollInterval = DefaultPollInterval
	}
	if b.pollBudget <= 0 {
		b.pollBudget = DefaultPollBudget
	}
	if b.logger == nil {
		b.logger = zap.NewNop()
	}
	if b.now == nil {
		b.now = time.Now
	}
	if b.wait == nil {
		b.wait = sleepWait
	}
	if b.records == nil {
		b.records = output.NopWriter{}
	}

	return b, nil
}

// Cloud returns backend.CloudAWS.
func (b *Backend) Cloud() backend.Cloud {
	return backend.CloudAWS
}

// Unpack extracts the artifact and returns the raw disk image path.
func (b *Backend) Unpack(ctx context.Context, archivePath string) (string, error) {
	path, err := b.unpacker.Extract(ctx, archivePath, unpack.RawPayload)
	if err != nil {
		return "", b.wrap("Unpack", "", err)
	}
	return path, nil
}

// Upload copies the raw image to S3 under a timestamped object name.
//
// The object name always carries the .raw extension: EC2 snapshot import
// is told Format=raw and the key should say the same.
func (b *Backend) Upload(ctx context.Context, imagePath string) (*backend.RemoteObject, error) {
	key := backend.TimestampedNameWithExt(imagePath, b.now(), ".raw")

	res, err := b.runner.Run(ctx,
		"s3", "cp", imagePath,
		fmt.Sprintf("s3://%s/%s", b.bucket, key),
		"--region", b.region,
	)
	if err != nil {
		return nil, b.wrap("Upload", key, err)
	}
	if !res.Ok() {
		return nil, b.wrap("Upload", key,
			fmt.Errorf("%w: %s", backend.ErrToolFailed, res.Diagnostic()))
	}

	b.logger.Info("Uploaded image to S3",
		zap.String("bucket", b.bucket),
		zap.String("key", key),
		zap.String("region", b.region))

	return &backend.RemoteObject{Bucket: b.bucket, Key: key, Region: b.region}, nil
}

// Cleanup removes the uploaded object from S3.
func (b *Backend) Cleanup(ctx context.Context, obj *backend.RemoteObject) error {
	res, err := b.runner.Run(ctx,
		"s3", "rm",
		fmt.Sprintf("s3://%s/%s", obj.Bucket, obj.Key),
		"--region", b.region,
	)
	if err != nil {
		return b.wrap("Cleanup", obj.Key, err)
	}
	if !res.Ok() {
		return b.wrap("Cleanup", obj.Key,
			fmt.Errorf("%w: %s", backend.ErrToolFailed, res.Diagnostic()))
	}
	return nil
}

// wrap attaches operation context to err.
func (b *Backend) wrap(op, key string, err error) error {
	return &backend.BackendError{
		Op:     op,
		Cloud:  backend.CloudAWS,
		Bucket: b.bucket,
		Key:    key,
		Err:    err,
	}
}
