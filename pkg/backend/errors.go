package backend

import (
	"errors"
	"fmt"
)

// Sentinel errors for backend operations.
var (
	// ErrPayloadNotFound indicates the unpacked artifact contained no
	// disk-image payload of the expected format.
	ErrPayloadNotFound = errors.New("disk image payload not found")

	// ErrToolFailed indicates a provider CLI invocation exited non-zero.
	ErrToolFailed = errors.New("provider tool failed")

	// ErrMalformedResponse indicates a provider response did not match
	// its parse contract (missing field, wrong token count).
	ErrMalformedResponse = errors.New("malformed provider response")

	// ErrImportTaskFailed indicates the asynchronous import task reached
	// its terminal error status. This is fatal to the job; the cleanup
	// phase is skipped.
	ErrImportTaskFailed = errors.New("import task failed")
)

// BackendError wraps provider-specific failures with operation context.
type BackendError struct {
	// Op is the operation that failed (e.g., "Upload", "Import").
	Op string

	// Cloud is the provider variant.
	Cloud Cloud

	// Bucket is the bucket or container name, if applicable.
	Bucket string

	// Key is the object name, if applicable.
	Key string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *BackendError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s %s: %s/%s: %v", e.Cloud, e.Op, e.Bucket, e.Key, e.Err)
	}
	if e.Bucket != "" {
		return fmt.Sprintf("%s %s: %s: %v", e.Cloud, e.Op, e.Bucket, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Cloud, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *BackendError) Unwrap() error {
	return e.Err
}

// IsPayloadNotFound returns true if the error indicates a missing payload.
func IsPayloadNotFound(err error) bool {
	return errors.Is(err, ErrPayloadNotFound)
}

// IsToolFailed returns true if the error indicates a failed tool invocation.
func IsToolFailed(err error) bool {
	return errors.Is(err, ErrToolFailed)
}

// IsMalformedResponse returns true if the error indicates a response that
// violated its parse contract.
func IsMalformedResponse(err error) bool {
	return errors.Is(err, ErrMalformedResponse)
}

// IsImportTaskFailed returns true if the error indicates a terminal import
// task failure.
func IsImportTaskFailed(err error) bool {
	return errors.Is(err, ErrImportTaskFailed)
}
