package pipeline_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/imageport/pkg/backend"
	"github.com/3leaps/imageport/pkg/confirm"
	"github.com/3leaps/imageport/pkg/output"
	"github.com/3leaps/imageport/pkg/pipeline"
)

// fakeBackend records which operations ran and fails on demand.
type fakeBackend struct {
	cloud backend.Cloud

	unpackErr  error
	uploadErr  error
	importErr  error
	cleanupErr error

	unpacked  []string
	uploaded  []string
	imported  []*backend.RemoteObject
	cleaned   []*backend.RemoteObject
	bootModes []backend.BootMode
}

func (f *fakeBackend) Cloud() backend.Cloud { return f.cloud }

func (f *fakeBackend) Unpack(_ context.Context, archivePath string) (string, error) {
	f.unpacked = append(f.unpacked, archivePath)
	if f.unpackErr != nil {
		return "", f.unpackErr
	}
	return "/staging/disk.raw", nil
}

func (f *fakeBackend) Upload(_ context.Context, imagePath string) (*backend.RemoteObject, error) {
	f.uploaded = append(f.uploaded, imagePath)
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	return &backend.RemoteObject{Bucket: "images-bucket", Key: "disk_20240115103000.raw"}, nil
}

func (f *fakeBackend) Import(_ context.Context, obj *backend.RemoteObject, boot backend.BootMode) (*backend.MachineImage, error) {
	f.imported = append(f.imported, obj)
	f.bootModes = append(f.bootModes, boot)
	if f.importErr != nil {
		return nil, f.importErr
	}
	return &backend.MachineImage{ID: "ami-1", Name: obj.Key, BootMode: boot}, nil
}

func (f *fakeBackend) Cleanup(_ context.Context, obj *backend.RemoteObject) error {
	f.cleaned = append(f.cleaned, obj)
	return f.cleanupErr
}

func job() *pipeline.Job {
	return &pipeline.Job{
		Cloud:       backend.CloudAWS,
		ArchivePath: "/artifacts/build.tar",
		Bucket:      "images-bucket",
		Region:      "us-east-1",
		AutoDelete:  true,
	}
}

func TestJobValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*pipeline.Job)
		wantErr string
	}{
		{"valid", func(j *pipeline.Job) {}, ""},
		{"unknown cloud", func(j *pipeline.Job) { j.Cloud = "digitalocean" }, "unknown cloud"},
		{"no input", func(j *pipeline.Job) { j.ArchivePath = "" }, "artifact path or an image path"},
		{"both inputs", func(j *pipeline.Job) { j.ImagePath = "/disk.raw" }, "mutually exclusive"},
		{"no bucket", func(j *pipeline.Job) { j.Bucket = "" }, "bucket name is required"},
		{"bad boot mode", func(j *pipeline.Job) { j.BootMode = "pxe" }, "unknown boot mode"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			j := job()
			tc.mutate(j)
			err := j.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
			}
		})
	}
}

func TestRunFullSequence(t *testing.T) {
	fb := &fakeBackend{cloud: backend.CloudAWS}
	d := pipeline.NewDriver(fb, confirm.Auto(true), pipeline.WithJobID("job-1"))

	outcome, err := d.Run(context.Background(), job())
	require.NoError(t, err)

	assert.Equal(t, "job-1", outcome.JobID)
	assert.Equal(t, "ami-1", outcome.Image.ID)
	assert.True(t, outcome.ObjectDeleted)

	assert.Equal(t, []string{"/artifacts/build.tar"}, fb.unpacked)
	assert.Equal(t, []string{"/staging/disk.raw"}, fb.uploaded)
	require.Len(t, fb.imported, 1)
	require.Len(t, fb.cleaned, 1)
	assert.Equal(t, "disk_20240115103000.raw", fb.cleaned[0].Key)
}

func TestRunImagePathBypassesUnpack(t *testing.T) {
	fb := &fakeBackend{cloud: backend.CloudAWS}
	d := pipeline.NewDriver(fb, confirm.Auto(true))

	j := job()
	j.ArchivePath = ""
	j.ImagePath = "/local/disk.raw"

	_, err := d.Run(context.Background(), j)
	require.NoError(t, err)

	assert.Empty(t, fb.unpacked)
	assert.Equal(t, []string{"/local/disk.raw"}, fb.uploaded)
}

func TestRunBootModeForwarded(t *testing.T) {
	fb := &fakeBackend{cloud: backend.CloudAWS}
	d := pipeline.NewDriver(fb, confirm.Auto(true))

	j := job()
	j.BootMode = backend.BootModeUEFI

	outcome, err := d.Run(context.Background(), j)
	require.NoError(t, err)

	assert.Equal(t, []backend.BootMode{backend.BootModeUEFI}, fb.bootModes)
	assert.Equal(t, backend.BootModeUEFI, outcome.Image.BootMode)
}

func TestRunUnpackFailureAborts(t *testing.T) {
	fb := &fakeBackend{cloud: backend.CloudAWS, unpackErr: backend.ErrPayloadNotFound}
	d := pipeline.NewDriver(fb, confirm.Auto(true))

	_, err := d.Run(context.Background(), job())
	require.Error(t, err)
	assert.True(t, backend.IsPayloadNotFound(err))

	assert.Empty(t, fb.uploaded)
	assert.Empty(t, fb.imported)
	assert.Empty(t, fb.cleaned)
}

func TestRunUploadFailureAborts(t *testing.T) {
	fb := &fakeBackend{cloud: backend.CloudAWS, uploadErr: errors.New("no route to host")}
	d := pipeline.NewDriver(fb, confirm.Auto(true))

	_, err := d.Run(context.Background(), job())
	require.Error(t, err)

	assert.Empty(t, fb.imported)
	assert.Empty(t, fb.cleaned)
}

func TestRunImportFailureSkipsCleanup(t *testing.T) {
	fb := &fakeBackend{cloud: backend.CloudAWS, importErr: backend.ErrImportTaskFailed}
	d := pipeline.NewDriver(fb, confirm.Auto(true))

	_, err := d.Run(context.Background(), job())
	require.Error(t, err)
	assert.True(t, backend.IsImportTaskFailed(err))

	// The object stays uploaded even with auto-delete requested.
	assert.Empty(t, fb.cleaned)
}

func TestRunCleanupFailureDoesNotFailJob(t *testing.T) {
	fb := &fakeBackend{cloud: backend.CloudAWS, cleanupErr: errors.New("access denied")}
	d := pipeline.NewDriver(fb, confirm.Auto(true))

	outcome, err := d.Run(context.Background(), job())
	require.NoError(t, err)

	assert.Equal(t, "ami-1", outcome.Image.ID)
	assert.False(t, outcome.ObjectDeleted)
	assert.Len(t, fb.cleaned, 1)
}

func TestRunInteractiveCleanupConfirmed(t *testing.T) {
	fb := &fakeBackend{cloud: backend.CloudAWS}
	var prompt bytes.Buffer
	c := confirm.NewReaderConfirmer(strings.NewReader("y\n"), &prompt)
	d := pipeline.NewDriver(fb, c)

	j := job()
	j.AutoDelete = false

	outcome, err := d.Run(context.Background(), j)
	require.NoError(t, err)

	assert.True(t, outcome.ObjectDeleted)
	assert.Len(t, fb.cleaned, 1)
	assert.Contains(t, prompt.String(), "disk_20240115103000.raw")
}

func TestRunInteractiveCleanupDeclined(t *testing.T) {
	fb := &fakeBackend{cloud: backend.CloudAWS}
	c := confirm.NewReaderConfirmer(strings.NewReader("n\n"), &bytes.Buffer{})
	d := pipeline.NewDriver(fb, c)

	j := job()
	j.AutoDelete = false

	outcome, err := d.Run(context.Background(), j)
	require.NoError(t, err)

	assert.False(t, outcome.ObjectDeleted)
	assert.Empty(t, fb.cleaned)
}

func TestRunConfirmerFailureRetainsObject(t *testing.T) {
	fb := &fakeBackend{cloud: backend.CloudAWS}
	c := confirm.NewReaderConfirmer(strings.NewReader(""), &bytes.Buffer{})
	d := pipeline.NewDriver(fb, c)

	j := job()
	j.AutoDelete = false

	outcome, err := d.Run(context.Background(), j)
	require.NoError(t, err)

	assert.False(t, outcome.ObjectDeleted)
	assert.Empty(t, fb.cleaned)
}

func TestRunEmitsRecords(t *testing.T) {
	fb := &fakeBackend{cloud: backend.CloudAWS}
	var buf bytes.Buffer
	records := output.NewJSONLWriter(&buf, "job-1", "aws")
	d := pipeline.NewDriver(fb, confirm.Auto(true),
		pipeline.WithJobID("job-1"),
		pipeline.WithRecords(records))

	_, err := d.Run(context.Background(), job())
	require.NoError(t, err)

	var types []string
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var rec output.Record
		require.NoError(t, json.Unmarshal([]byte(line), &rec))
		assert.Equal(t, "job-1", rec.JobID)
		types = append(types, rec.Type)
	}

	// Phase transitions for all four phases, then result and summary.
	assert.Contains(t, types, output.TypePhase)
	assert.Equal(t, output.TypeResult, types[len(types)-2])
	assert.Equal(t, output.TypeSummary, types[len(types)-1])
}

func TestRunImportFailureEmitsSkippedCleanup(t *testing.T) {
	fb := &fakeBackend{cloud: backend.CloudAWS, importErr: backend.ErrImportTaskFailed}
	var buf bytes.Buffer
	records := output.NewJSONLWriter(&buf, "job-1", "aws")
	d := pipeline.NewDriver(fb, confirm.Auto(true), pipeline.WithRecords(records))

	_, err := d.Run(context.Background(), job())
	require.Error(t, err)

	var sawSkippedCleanup, sawError bool
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var rec output.Record
		require.NoError(t, json.Unmarshal([]byte(line), &rec))

		switch rec.Type {
		case output.TypePhase:
			var phase output.PhaseRecord
			require.NoError(t, json.Unmarshal(rec.Data, &phase))
			if phase.Phase == output.PhaseCleanup && phase.State == output.StateSkipped {
				sawSkippedCleanup = true
			}
		case output.TypeError:
			var errRec output.ErrorRecord
			require.NoError(t, json.Unmarshal(rec.Data, &errRec))
			assert.Equal(t, output.ErrCodeImportTaskFailed, errRec.Code)
			sawError = true
		}
	}

	assert.True(t, sawSkippedCleanup)
	assert.True(t, sawError)
}

func TestRunInvalidJob(t *testing.T) {
	fb := &fakeBackend{cloud: backend.CloudAWS}
	d := pipeline.NewDriver(fb, confirm.Auto(true))

	j := job()
	j.Bucket = ""
	_, err := d.Run(context.Background(), j)
	require.Error(t, err)
	assert.Empty(t, fb.unpacked)
}
