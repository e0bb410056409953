// Package preflight checks that an import job's storage coordinates are
// reachable before any long-running work starts.
//
// Preflight is a capability contract, not a data operation. In plan-only
// mode no provider calls are made; in read-safe mode the bucket or
// container is probed with read-only calls. Nothing is ever written or
// deleted during preflight.
package preflight

import (
	"context"

	"github.com/3leaps/imageport/pkg/output"
)

// Mode defines how aggressive preflight checks are.
type Mode string

const (
	ModePlanOnly Mode = "plan-only"
	ModeReadSafe Mode = "read-safe"
)

// Spec controls how preflight checks are executed.
type Spec struct {
	Mode Mode
}

// Capability names are stable strings used in JSONL output.
const (
	CapStorageBucket = "storage.bucket"
)

// Error codes reported in check results.
const (
	ErrCodeAccessDenied = "ACCESS_DENIED"
	ErrCodeNotFound     = "NOT_FOUND"
	ErrCodeInternal     = "INTERNAL"
)

// BucketProber probes one storage capability for a specific cloud.
type BucketProber interface {
	// Capability names what is being checked.
	Capability() string

	// Method describes the probe for the JSONL record.
	Method() string

	// Probe performs the check. A nil return means the capability
	// appears to be available.
	Probe(ctx context.Context) error
}

// ErrorCoder lets probers classify their failures for the record.
// Probers that do not implement it report ErrCodeInternal.
type ErrorCoder interface {
	ErrorCode(err error) string
}

// Run executes the probers and assembles the preflight record.
//
// The first failing probe stops the run: its result is recorded with
// Allowed=false and the error is returned so callers can refuse to start
// the job. In plan-only mode no probers run.
func Run(ctx context.Context, cloud, bucket string, probers []BucketProber, spec Spec) (*output.PreflightRecord, error) {
	rec := &output.PreflightRecord{
		Cloud:   cloud,
		Bucket:  bucket,
		Results: []output.PreflightCheckResult{},
	}

	if spec.Mode == ModePlanOnly {
		return rec, nil
	}

	for _, p := range probers {
		if err := p.Probe(ctx); err != nil {
			code := ErrCodeInternal
			if coder, ok := p.(ErrorCoder); ok {
				code = coder.ErrorCode(err)
			}
			rec.Results = append(rec.Results, output.PreflightCheckResult{
				Capability: p.Capability(),
				Allowed:    false,
				Method:     p.Method(),
				ErrorCode:  code,
				Detail:     err.Error(),
			})
			return rec, err
		}

		rec.Results = append(rec.Results, output.PreflightCheckResult{
			Capability: p.Capability(),
			Allowed:    true,
			Method:     p.Method(),
		})
	}

	return rec, nil
}
