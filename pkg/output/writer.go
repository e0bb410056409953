package output

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Writer outputs JSONL records for import jobs.
//
// Implementations must be safe for concurrent use from multiple
// goroutines. Each Write* method emits a complete record as a
// single line of JSON followed by a newline.
type Writer interface {
	// WritePhase emits a phase transition record.
	WritePhase(ctx context.Context, phase *PhaseRecord) error

	// WriteTaskStatus emits an import task observation record.
	WriteTaskStatus(ctx context.Context, status *TaskStatusRecord) error

	// WriteResult emits the final machine image record.
	WriteResult(ctx context.Context, result *ResultRecord) error

	// WriteError emits an error record.
	WriteError(ctx context.Context, err *ErrorRecord) error

	// WritePreflight emits a preflight record.
	WritePreflight(ctx context.Context, preflight *PreflightRecord) error

	// WriteSummary emits a summary record.
	WriteSummary(ctx context.Context, sum *SummaryRecord) error

	// Close flushes any buffered output and releases resources.
	Close() error
}

// JSONLWriter writes records as newline-delimited JSON to an io.Writer.
//
// JSONLWriter is safe for concurrent use. Writes are serialized using
// a mutex to ensure atomic line writes (no interleaved output).
type JSONLWriter struct {
	w     io.Writer
	jobID string
	cloud string
	mu    sync.Mutex

	// closed indicates the writer has been closed.
	closed bool
}

// NewJSONLWriter creates a new JSONL writer.
//
// Parameters:
//   - w: The underlying writer (stdout, file, etc.)
//   - jobID: Correlation ID for this import job
//   - cloud: Target cloud identifier (e.g., "aws")
func NewJSONLWriter(w io.Writer, jobID, cloud string) *JSONLWriter {
	return &JSONLWriter{
		w:     w,
		jobID: jobID,
		cloud: cloud,
	}
}

// WritePhase emits a phase transition record.
func (jw *JSONLWriter) WritePhase(ctx context.Context, phase *PhaseRecord) error {
	return jw.writeRecord(ctx, TypePhase, phase)
}

// WriteTaskStatus emits an import task observation record.
func (jw *JSONLWriter) WriteTaskStatus(ctx context.Context, status *TaskStatusRecord) error {
	return jw.writeRecord(ctx, TypeTaskStatus, status)
}

// WriteResult emits the final machine image record.
func (jw *JSONLWriter) WriteResult(ctx context.Context, result *ResultRecord) error {
	return jw.writeRecord(ctx, TypeResult, result)
}

// WriteError emits an error record.
func (jw *JSONLWriter) WriteError(ctx context.Context, err *ErrorRecord) error {
	return jw.writeRecord(ctx, TypeError, err)
}

// WritePreflight emits a preflight record.
func (jw *JSONLWriter) WritePreflight(ctx context.Context, preflight *PreflightRecord) error {
	return jw.writeRecord(ctx, TypePreflight, preflight)
}

// WriteSummary emits a summary record.
func (jw *JSONLWriter) WriteSummary(ctx context.Context, sum *SummaryRecord) error {
	return jw.writeRecord(ctx, TypeSummary, sum)
}

// Close marks the writer as closed.
//
// If the underlying writer implements io.Closer, it is NOT closed.
// The caller is responsible for closing the underlying writer.
func (jw *JSONLWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	jw.closed = true
	return nil
}

// writeRecord marshals data and writes a complete record line.
//
// This method holds the mutex for the entire operation to ensure
// atomic line writes. The record is written as a single line of
// JSON followed by a newline character.
func (jw *JSONLWriter) writeRecord(ctx context.Context, recordType string, data any) error {
	// Check context cancellation before acquiring lock
	if err := ctx.Err(); err != nil {
		return err
	}

	// Marshal the data payload first (outside the lock for better concurrency)
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return &WriteError{Op: "marshal_data", Err: err}
	}

	jw.mu.Lock()
	defer jw.mu.Unlock()

	// Check if writer is closed
	if jw.closed {
		return ErrWriterClosed
	}

	// Check context again after acquiring lock
	if err := ctx.Err(); err != nil {
		return err
	}

	// Create the envelope record
	record := Record{
		Type:  recordType,
		TS:    time.Now().UTC(),
		JobID: jw.jobID,
		Cloud: jw.cloud,
		Data:  dataBytes,
	}

	// Marshal the complete record
	recordBytes, err := json.Marshal(record)
	if err != nil {
		return &WriteError{Op: "marshal_record", Err: err}
	}

	// Write the record followed by newline.
	// We must handle short writes: io.Writer is allowed to return n < len(p)
	// with nil error, which would silently truncate JSONL lines and corrupt output.
	recordBytes = append(recordBytes, '\n')
	if err := writeAll(jw.w, recordBytes); err != nil {
		return &WriteError{Op: "write", Err: err}
	}

	return nil
}

// writeAll writes all bytes to w, handling short writes.
//
// io.Writer.Write may return n < len(p) with a nil error (short write).
// This function loops until all bytes are written or an error occurs,
// ensuring complete JSONL lines are emitted.
func writeAll(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if err != nil {
			return err
		}
		if n == 0 {
			// No progress made - avoid infinite loop
			return io.ErrShortWrite
		}
		p = p[n:]
	}
	return nil
}

// NopWriter discards all records. Used when JSONL output is disabled.
type NopWriter struct{}

func (NopWriter) WritePhase(context.Context, *PhaseRecord) error           { return nil }
func (NopWriter) WriteTaskStatus(context.Context, *TaskStatusRecord) error { return nil }
func (NopWriter) WriteResult(context.Context, *ResultRecord) error         { return nil }
func (NopWriter) WriteError(context.Context, *ErrorRecord) error           { return nil }
func (NopWriter) WritePreflight(context.Context, *PreflightRecord) error   { return nil }
func (NopWriter) WriteSummary(context.Context, *SummaryRecord) error       { return nil }
func (NopWriter) Close() error                                             { return nil }

// Compile-time checks that writers implement Writer.
var (
	_ Writer = (*JSONLWriter)(nil)
	_ Writer = NopWriter{}
)
