// Package output provides JSONL output for import jobs.
//
// Output is structured as typed record envelopes containing phase
// transitions, import task observations, errors, and the final result.
// Each line is a self-contained JSON object that can be parsed
// independently.
package output

import (
	"encoding/json"
	"errors"
	"time"
)

// Record type constants define the envelope types for JSONL output.
// These follow the pattern: imageport.<type>.v<version>
const (
	// TypePhase identifies phase transition records.
	TypePhase = "imageport.phase.v1"

	// TypeTaskStatus identifies import task poll observations.
	TypeTaskStatus = "imageport.task_status.v1"

	// TypeResult identifies the final machine image record.
	TypeResult = "imageport.result.v1"

	// TypeError identifies error records.
	TypeError = "imageport.error.v1"

	// TypePreflight identifies preflight capability check records.
	TypePreflight = "imageport.preflight.v1"

	// TypeSummary identifies final summary records.
	TypeSummary = "imageport.summary.v1"
)

// Record is the envelope for all JSONL output.
//
// Each line of JSONL output contains a Record with a type-specific
// payload in the Data field. The type field determines how to
// interpret the Data payload.
type Record struct {
	// Type identifies the record type (e.g., "imageport.phase.v1").
	Type string `json:"type"`

	// TS is the timestamp when the record was created (RFC3339Nano).
	TS time.Time `json:"ts"`

	// JobID is the correlation ID for this import job.
	JobID string `json:"job_id"`

	// Cloud identifies the target cloud (e.g., "aws", "gcp").
	Cloud string `json:"cloud"`

	// Data contains the type-specific payload as raw JSON.
	Data json.RawMessage `json:"data"`
}

// Import job phases, in pipeline order.
const (
	// PhaseUnpack covers artifact extraction and payload selection.
	PhaseUnpack = "unpack"

	// PhaseUpload covers the transfer to object storage.
	PhaseUpload = "upload"

	// PhaseImport covers image conversion and registration.
	PhaseImport = "import"

	// PhaseCleanup covers deletion of the uploaded object.
	PhaseCleanup = "cleanup"
)

// Phase states.
const (
	// StateStarted marks a phase beginning.
	StateStarted = "started"

	// StateCompleted marks a phase finishing successfully.
	StateCompleted = "completed"

	// StateSkipped marks a phase that did not run, with the reason in
	// Detail (bypassed unpack, declined cleanup, failed import).
	StateSkipped = "skipped"

	// StateFailed marks a phase ending in error.
	StateFailed = "failed"
)

// PhaseRecord is the data payload for phase transitions.
type PhaseRecord struct {
	// Phase is the pipeline phase (unpack, upload, import, cleanup).
	Phase string `json:"phase"`

	// State is the transition (started, completed, skipped, failed).
	State string `json:"state"`

	// Detail carries phase-specific context: the payload path after
	// unpack, the object key after upload, the skip reason.
	Detail string `json:"detail,omitempty"`
}

// TaskStatusRecord is the data payload for import task observations.
//
// Emitted once per poll of an asynchronous import task, so consumers
// can follow conversion progress without parsing logs.
type TaskStatusRecord struct {
	// TaskID is the provider-assigned import task identifier.
	TaskID string `json:"task_id"`

	// Status is the observed task status.
	Status string `json:"status"`

	// Progress is the percent-complete indicator, when reported.
	Progress string `json:"progress,omitempty"`
}

// ResultRecord is the data payload for the final machine image.
type ResultRecord struct {
	// ImageID is the provider image identifier (AMI ID, resource ID,
	// or resource name).
	ImageID string `json:"image_id"`

	// ImageName is the provider-visible image name.
	ImageName string `json:"image_name,omitempty"`

	// BootMode is the requested boot mode, if one was attached.
	BootMode string `json:"boot_mode,omitempty"`

	// Bucket and Key locate the uploaded source object.
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

// ErrorRecord is the data payload for errors.
type ErrorRecord struct {
	// Code is a machine-readable error code.
	Code string `json:"code"`

	// Message is a human-readable error description.
	Message string `json:"message"`

	// Phase is the pipeline phase the error occurred in.
	Phase string `json:"phase,omitempty"`

	// Key is the object key related to this error, if applicable.
	Key string `json:"key,omitempty"`
}

// Error codes for ErrorRecord.
const (
	// ErrCodePayloadNotFound indicates the artifact held no usable image.
	ErrCodePayloadNotFound = "PAYLOAD_NOT_FOUND"

	// ErrCodeToolFailed indicates a cloud CLI invocation failed.
	ErrCodeToolFailed = "TOOL_FAILED"

	// ErrCodeImportTaskFailed indicates the provider-side import task
	// ended in error.
	ErrCodeImportTaskFailed = "IMPORT_TASK_FAILED"

	// ErrCodeMalformedResponse indicates a CLI response that could not
	// be decoded.
	ErrCodeMalformedResponse = "MALFORMED_RESPONSE"

	// ErrCodeInternal indicates an unexpected internal error.
	ErrCodeInternal = "INTERNAL"
)

// PreflightRecord is the data payload for preflight capability checks.
//
// Preflight records are emitted early, before long-running operations.
// They provide an explicit contract for what was checked and whether the
// principal appears to have the required permissions.
type PreflightRecord struct {
	Cloud   string                 `json:"cloud"`
	Bucket  string                 `json:"bucket"`
	Results []PreflightCheckResult `json:"results"`
}

// PreflightCheckResult is a single capability check result.
type PreflightCheckResult struct {
	Capability string `json:"capability"`
	Allowed    bool   `json:"allowed"`
	Method     string `json:"method,omitempty"`
	ErrorCode  string `json:"error_code,omitempty"`
	Detail     string `json:"detail,omitempty"`
}

// SummaryRecord is the data payload for final summaries.
//
// A summary record is emitted at the end of a job with aggregate
// outcome information.
type SummaryRecord struct {
	// ImageID is the resulting image, when the import reached one.
	ImageID string `json:"image_id,omitempty"`

	// ObjectDeleted reports whether the uploaded object was cleaned up.
	ObjectDeleted bool `json:"object_deleted"`

	// Duration is the total job duration.
	Duration time.Duration `json:"duration_ns"`

	// DurationHuman is a human-readable duration string.
	DurationHuman string `json:"duration"`

	// Errors is the count of errors encountered.
	Errors int64 `json:"errors"`
}

// Writer errors.
var (
	// ErrWriterClosed is returned when writing to a closed writer.
	ErrWriterClosed = errors.New("writer is closed")
)

// WriteError wraps errors that occur during write operations.
type WriteError struct {
	Op  string // Operation that failed (e.g., "marshal_data", "write")
	Err error  // Underlying error
}

func (e *WriteError) Error() string {
	return "output: " + e.Op + ": " + e.Err.Error()
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
