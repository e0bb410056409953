package output

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSONLWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "job-123", "aws")

	assert.NotNil(t, w)
	assert.Equal(t, "job-123", w.jobID)
	assert.Equal(t, "aws", w.cloud)
}

func TestJSONLWriter_WritePhase(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "job-123", "aws")

	phase := &PhaseRecord{
		Phase:  PhaseUpload,
		State:  StateCompleted,
		Detail: "disk_20240115103000.raw",
	}

	err := w.WritePhase(context.Background(), phase)
	require.NoError(t, err)

	// Parse the output
	var record Record
	err = json.Unmarshal(buf.Bytes(), &record)
	require.NoError(t, err)

	assert.Equal(t, TypePhase, record.Type)
	assert.Equal(t, "job-123", record.JobID)
	assert.Equal(t, "aws", record.Cloud)
	assert.False(t, record.TS.IsZero())

	// Parse the data payload
	var phaseData PhaseRecord
	err = json.Unmarshal(record.Data, &phaseData)
	require.NoError(t, err)

	assert.Equal(t, PhaseUpload, phaseData.Phase)
	assert.Equal(t, StateCompleted, phaseData.State)
	assert.Equal(t, "disk_20240115103000.raw", phaseData.Detail)
}

func TestJSONLWriter_WriteTaskStatus(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "job-123", "aws")

	status := &TaskStatusRecord{
		TaskID:   "import-snap-0abc",
		Status:   "active",
		Progress: "42",
	}

	err := w.WriteTaskStatus(context.Background(), status)
	require.NoError(t, err)

	var record Record
	err = json.Unmarshal(buf.Bytes(), &record)
	require.NoError(t, err)

	assert.Equal(t, TypeTaskStatus, record.Type)

	var statusData TaskStatusRecord
	err = json.Unmarshal(record.Data, &statusData)
	require.NoError(t, err)

	assert.Equal(t, "import-snap-0abc", statusData.TaskID)
	assert.Equal(t, "active", statusData.Status)
	assert.Equal(t, "42", statusData.Progress)
}

func TestJSONLWriter_WriteResult(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "job-123", "aws")

	result := &ResultRecord{
		ImageID:   "ami-0abc",
		ImageName: "disk_20240115103000.raw",
		BootMode:  "uefi",
		Bucket:    "images-bucket",
		Key:       "disk_20240115103000.raw",
	}

	err := w.WriteResult(context.Background(), result)
	require.NoError(t, err)

	var record Record
	err = json.Unmarshal(buf.Bytes(), &record)
	require.NoError(t, err)

	assert.Equal(t, TypeResult, record.Type)

	var resultData ResultRecord
	err = json.Unmarshal(record.Data, &resultData)
	require.NoError(t, err)

	assert.Equal(t, "ami-0abc", resultData.ImageID)
	assert.Equal(t, "uefi", resultData.BootMode)
	assert.Equal(t, "images-bucket", resultData.Bucket)
}

func TestJSONLWriter_WriteError(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "job-123", "aws")

	errRec := &ErrorRecord{
		Code:    ErrCodeImportTaskFailed,
		Message: "import task import-snap-0abc ended in error",
		Phase:   PhaseImport,
		Key:     "disk.raw",
	}

	err := w.WriteError(context.Background(), errRec)
	require.NoError(t, err)

	var record Record
	err = json.Unmarshal(buf.Bytes(), &record)
	require.NoError(t, err)

	assert.Equal(t, TypeError, record.Type)

	var errData ErrorRecord
	err = json.Unmarshal(record.Data, &errData)
	require.NoError(t, err)

	assert.Equal(t, ErrCodeImportTaskFailed, errData.Code)
	assert.Equal(t, PhaseImport, errData.Phase)
	assert.Equal(t, "disk.raw", errData.Key)
}

func TestJSONLWriter_WriteSummary(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "job-123", "gcp")

	sum := &SummaryRecord{
		ImageID:       "projects/val-proj/global/images/image-fedora-41",
		ObjectDeleted: true,
		Duration:      30 * time.Second,
		DurationHuman: "30s",
		Errors:        0,
	}

	err := w.WriteSummary(context.Background(), sum)
	require.NoError(t, err)

	var record Record
	err = json.Unmarshal(buf.Bytes(), &record)
	require.NoError(t, err)

	assert.Equal(t, TypeSummary, record.Type)
	assert.Equal(t, "gcp", record.Cloud)

	var sumData SummaryRecord
	err = json.Unmarshal(record.Data, &sumData)
	require.NoError(t, err)

	assert.Equal(t, "projects/val-proj/global/images/image-fedora-41", sumData.ImageID)
	assert.True(t, sumData.ObjectDeleted)
	assert.Equal(t, 30*time.Second, sumData.Duration)
	assert.Equal(t, "30s", sumData.DurationHuman)
}

func TestJSONLWriter_NewlineTerminated(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "job-123", "aws")

	err := w.WritePhase(context.Background(), &PhaseRecord{Phase: PhaseUnpack, State: StateStarted})
	require.NoError(t, err)

	err = w.WritePhase(context.Background(), &PhaseRecord{Phase: PhaseUnpack, State: StateCompleted})
	require.NoError(t, err)

	// Output should be two lines
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 2)

	// Each line should be valid JSON
	for _, line := range lines {
		var record Record
		err := json.Unmarshal([]byte(line), &record)
		assert.NoError(t, err)
	}
}

func TestJSONLWriter_Close(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "job-123", "aws")

	err := w.Close()
	require.NoError(t, err)

	// Writing after close should fail
	err = w.WritePhase(context.Background(), &PhaseRecord{Phase: PhaseUnpack, State: StateStarted})
	assert.ErrorIs(t, err, ErrWriterClosed)
}

func TestJSONLWriter_ConcurrentWrites(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "job-123", "aws")

	const numWriters = 10
	const writesPerWriter = 100

	var wg sync.WaitGroup
	wg.Add(numWriters)

	for i := 0; i < numWriters; i++ {
		go func(writerID int) {
			defer wg.Done()
			for j := 0; j < writesPerWriter; j++ {
				status := &TaskStatusRecord{
					TaskID: "import-snap-0abc",
					Status: "active",
				}
				_ = w.WriteTaskStatus(context.Background(), status)
			}
		}(i)
	}

	wg.Wait()

	// Verify all lines are complete JSON objects (no interleaving)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, numWriters*writesPerWriter)

	for i, line := range lines {
		var record Record
		err := json.Unmarshal([]byte(line), &record)
		assert.NoError(t, err, "line %d should be valid JSON: %s", i, line)
	}
}

func TestJSONLWriter_ContextCancellation(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "job-123", "aws")

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // Cancel immediately

	err := w.WritePhase(ctx, &PhaseRecord{Phase: PhaseUnpack, State: StateStarted})
	assert.ErrorIs(t, err, context.Canceled)

	// Buffer should be empty (nothing written)
	assert.Empty(t, buf.String())
}

func TestJSONLWriter_WriteFailure(t *testing.T) {
	// Create a writer that always fails
	failWriter := &failingWriter{err: errors.New("disk full")}
	w := NewJSONLWriter(failWriter, "job-123", "aws")

	err := w.WritePhase(context.Background(), &PhaseRecord{Phase: PhaseUnpack, State: StateStarted})
	require.Error(t, err)

	var writeErr *WriteError
	assert.True(t, errors.As(err, &writeErr))
	assert.Equal(t, "write", writeErr.Op)
}

// failingWriter is an io.Writer that always returns an error.
type failingWriter struct {
	err error
}

func (f *failingWriter) Write(p []byte) (n int, err error) {
	return 0, f.err
}

func TestJSONLWriter_ShortWrite(t *testing.T) {
	// Create a writer that simulates short writes (returns n < len(p) with nil error)
	shortWriter := &shortWriteWriter{bytesPerWrite: 10}
	w := NewJSONLWriter(shortWriter, "job-123", "aws")

	result := &ResultRecord{
		ImageID: "ami-0abc",
		Bucket:  "images-bucket",
		Key:     "disk_20240115103000.raw",
	}

	err := w.WriteResult(context.Background(), result)
	require.NoError(t, err)

	// Verify complete output despite short writes
	lines := strings.Split(strings.TrimSpace(shortWriter.buf.String()), "\n")
	assert.Len(t, lines, 1)

	var record Record
	err = json.Unmarshal([]byte(lines[0]), &record)
	assert.NoError(t, err, "output should be valid JSON despite short writes")
	assert.Equal(t, TypeResult, record.Type)
}

func TestJSONLWriter_ZeroWrite(t *testing.T) {
	// Create a writer that returns 0 bytes written with nil error (pathological case)
	zeroWriter := &zeroWriteWriter{}
	w := NewJSONLWriter(zeroWriter, "job-123", "aws")

	err := w.WritePhase(context.Background(), &PhaseRecord{Phase: PhaseUnpack, State: StateStarted})
	require.Error(t, err)
	assert.ErrorIs(t, err, io.ErrShortWrite)
}

// shortWriteWriter simulates an io.Writer that performs short writes.
// It writes at most bytesPerWrite bytes per call, returning nil error.
type shortWriteWriter struct {
	buf           bytes.Buffer
	bytesPerWrite int
}

func (sw *shortWriteWriter) Write(p []byte) (n int, err error) {
	toWrite := len(p)
	if toWrite > sw.bytesPerWrite {
		toWrite = sw.bytesPerWrite
	}
	return sw.buf.Write(p[:toWrite])
}

// zeroWriteWriter always returns 0 bytes written with nil error.
type zeroWriteWriter struct{}

func (zw *zeroWriteWriter) Write(p []byte) (n int, err error) {
	return 0, nil
}

func TestWriteError(t *testing.T) {
	underlying := errors.New("underlying error")
	err := &WriteError{Op: "marshal", Err: underlying}

	assert.Equal(t, "output: marshal: underlying error", err.Error())
	assert.ErrorIs(t, err, underlying)
}

func TestRecord_JSONSerialization(t *testing.T) {
	// Test that records serialize correctly
	record := Record{
		Type:  TypePhase,
		TS:    time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		JobID: "abc123",
		Cloud: "aws",
		Data:  json.RawMessage(`{"phase":"upload","state":"started"}`),
	}

	data, err := json.Marshal(record)
	require.NoError(t, err)

	// Verify JSON structure
	var parsed map[string]any
	err = json.Unmarshal(data, &parsed)
	require.NoError(t, err)

	assert.Equal(t, TypePhase, parsed["type"])
	assert.Equal(t, "abc123", parsed["job_id"])
	assert.Equal(t, "aws", parsed["cloud"])
	assert.NotNil(t, parsed["ts"])
	assert.NotNil(t, parsed["data"])
}

func TestPhaseRecord_OmitEmpty(t *testing.T) {
	// Detail should be omitted when empty
	phase := PhaseRecord{
		Phase: PhaseCleanup,
		State: StateStarted,
	}

	data, err := json.Marshal(phase)
	require.NoError(t, err)

	assert.NotContains(t, string(data), "detail")
}

func TestErrorRecord_OmitEmpty(t *testing.T) {
	// Phase and Key should be omitted when empty
	errRec := ErrorRecord{
		Code:    ErrCodeInternal,
		Message: "Something went wrong",
	}

	data, err := json.Marshal(errRec)
	require.NoError(t, err)

	assert.NotContains(t, string(data), "phase")
	assert.NotContains(t, string(data), "key")
}

func TestNopWriter(t *testing.T) {
	w := NopWriter{}
	ctx := context.Background()

	assert.NoError(t, w.WritePhase(ctx, &PhaseRecord{}))
	assert.NoError(t, w.WriteTaskStatus(ctx, &TaskStatusRecord{}))
	assert.NoError(t, w.WriteResult(ctx, &ResultRecord{}))
	assert.NoError(t, w.WriteError(ctx, &ErrorRecord{}))
	assert.NoError(t, w.WriteSummary(ctx, &SummaryRecord{}))
	assert.NoError(t, w.Close())
}
