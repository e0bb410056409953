package aws

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/3leaps/imageport/pkg/output"
)

// Default polling behavior for snapshot import tasks.
const (
	// DefaultPollInterval matches the EC2 import-snapshot task cadence
	// the aws CLI itself suggests.
	DefaultPollInterval = 10 * time.Second

	// DefaultPollBudget bounds one import task end to end. Large raw
	// images routinely take over an hour to convert.
	DefaultPollBudget = 2 * time.Hour
)

// WaitFunc blocks for d or until ctx is done. Injected so tests drive the
// polling loop without real sleeps.
type WaitFunc func(ctx context.Context, d time.Duration) error

// Config configures the AWS backend.
type Config struct {
	// Bucket is the S3 bucket receiving the uploaded raw image.
	Bucket string

	// Region is the AWS region for every operation.
	Region string

	// StagingDir is where build artifacts are unpacked.
	StagingDir string

	// PollInterval overrides the wait between import task status checks.
	PollInterval time.Duration

	// PollBudget bounds the total time spent polling one import task.
	// Zero applies DefaultPollBudget.
	PollBudget time.Duration

	// Logger receives phase and polling diagnostics. Nil means silent.
	Logger *zap.Logger

	// Records receives a task-status record for every poll observation.
	// Nil discards them.
	Records output.Writer

	// Now overrides the clock used for object naming. Nil uses time.Now.
	Now func() time.Time

	// Wait overrides the polling wait primitive. Nil uses a timer-based
	// wait honoring ctx cancellation.
	Wait WaitFunc
}

// Validate checks required configuration.
func (c Config) Validate() error {
	if c.Bucket == "" {
		return errors.New("aws: bucket is required")
	}
	if c.Region == "" {
		return errors.New("aws: region is required")
	}
	return nil
}

// sleepWait is the default WaitFunc.
func sleepWait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
