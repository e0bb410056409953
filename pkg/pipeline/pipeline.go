// Package pipeline sequences an image import job: unpack, upload,
// import, cleanup.
//
// The driver owns the failure semantics of the sequence. Unpack, upload,
// and import failures abort the job; a failed import additionally skips
// cleanup so the uploaded object stays available for diagnosis and
// retry. Cleanup failures are reported but never fail a job whose image
// already exists.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/3leaps/imageport/pkg/backend"
	"github.com/3leaps/imageport/pkg/confirm"
	"github.com/3leaps/imageport/pkg/output"
)

// Job describes one import run.
type Job struct {
	// Cloud selects the target backend.
	Cloud backend.Cloud

	// ArchivePath is a build artifact to unpack before upload. Exactly
	// one of ArchivePath and ImagePath must be set.
	ArchivePath string

	// ImagePath is a ready disk image, bypassing the unpack phase.
	ImagePath string

	// Bucket is the object storage bucket or container.
	Bucket string

	// Region is the cloud region. Required for aws and azure.
	Region string

	// BootMode is the requested boot mode, if any.
	BootMode backend.BootMode

	// AutoDelete deletes the uploaded object after import without
	// prompting. When false the operator is asked interactively.
	AutoDelete bool

	// ResourceGroup and StorageAccount are Azure account coordinates.
	ResourceGroup  string
	StorageAccount string
}

// Validate checks the job's internal consistency. Backend-specific
// coordinate checks live in the backend constructors.
func (j *Job) Validate() error {
	if !j.Cloud.Valid() {
		return fmt.Errorf("unknown cloud %q", j.Cloud)
	}
	if j.ArchivePath == "" && j.ImagePath == "" {
		return errors.New("either an artifact path or an image path is required")
	}
	if j.ArchivePath != "" && j.ImagePath != "" {
		return errors.New("artifact path and image path are mutually exclusive")
	}
	if j.Bucket == "" {
		return errors.New("bucket name is required")
	}
	if !j.BootMode.Valid() {
		return fmt.Errorf("unknown boot mode %q", j.BootMode)
	}
	return nil
}

// Outcome is what a completed run produced.
type Outcome struct {
	// JobID is the correlation ID records were emitted under.
	JobID string

	// Image is the resulting machine image.
	Image *backend.MachineImage

	// Object is the uploaded source object.
	Object *backend.RemoteObject

	// ObjectDeleted reports whether cleanup removed the object.
	ObjectDeleted bool
}

// Driver runs jobs against a backend.
type Driver struct {
	backend   backend.Backend
	confirmer confirm.Confirmer
	records   output.Writer
	logger    *zap.Logger
	now       func() time.Time
	newJobID  func() string
}

// Option adjusts a Driver.
type Option func(*Driver)

// WithLogger sets the progress logger.
func WithLogger(l *zap.Logger) Option {
	return func(d *Driver) { d.logger = l }
}

// WithRecords sets the JSONL record writer.
func WithRecords(w output.Writer) Option {
	return func(d *Driver) { d.records = w }
}

// WithClock sets the time source used for job duration.
func WithClock(now func() time.Time) Option {
	return func(d *Driver) { d.now = now }
}

// WithJobID fixes the job correlation ID instead of generating one.
func WithJobID(id string) Option {
	return func(d *Driver) { d.newJobID = func() string { return id } }
}

// NewDriver creates a driver running jobs against b. The confirmer
// decides cleanup when the job does not auto-delete.
func NewDriver(b backend.Backend, confirmer confirm.Confirmer, opts ...Option) *Driver {
	d := &Driver{
		backend:   b,
		confirmer: confirmer,
		records:   output.NopWriter{},
		logger:    zap.NewNop(),
		now:       time.Now,
		newJobID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run executes the job and returns its outcome.
//
// The returned error is the first fatal phase error. Cleanup failures
// are not fatal: they are logged and recorded, and the outcome reports
// the object as not deleted.
func (d *Driver) Run(ctx context.Context, job *Job) (*Outcome, error) {
	if err := job.Validate(); err != nil {
		return nil, err
	}

	started := d.now()
	jobID := d.newJobID()
	logger := d.logger.With(
		zap.String("job_id", jobID),
		zap.String("cloud", string(job.Cloud)))

	outcome := &Outcome{JobID: jobID}
	var errCount int64

	imagePath, err := d.resolveImage(ctx, job, logger)
	if err != nil {
		d.recordFailure(ctx, output.PhaseUnpack, "", err)
		return nil, err
	}

	d.phase(ctx, output.PhaseUpload, output.StateStarted, "")
	obj, err := d.backend.Upload(ctx, imagePath)
	if err != nil {
		d.recordFailure(ctx, output.PhaseUpload, "", err)
		return nil, err
	}
	outcome.Object = obj
	d.phase(ctx, output.PhaseUpload, output.StateCompleted, obj.Key)
	logger.Info("Uploaded image", zap.String("bucket", obj.Bucket), zap.String("key", obj.Key))

	d.phase(ctx, output.PhaseImport, output.StateStarted, obj.Key)
	image, err := d.backend.Import(ctx, obj, job.BootMode)
	if err != nil {
		d.recordFailure(ctx, output.PhaseImport, obj.Key, err)
		// The uploaded object stays for diagnosis and retry.
		d.phase(ctx, output.PhaseCleanup, output.StateSkipped, "import failed")
		logger.Warn("Import failed, uploaded object retained",
			zap.String("key", obj.Key), zap.Error(err))
		return nil, err
	}
	outcome.Image = image
	d.phase(ctx, output.PhaseImport, output.StateCompleted, image.ID)
	logger.Info("Imported machine image",
		zap.String("image_id", image.ID),
		zap.String("image_name", image.Name))

	outcome.ObjectDeleted = d.cleanup(ctx, job, obj, logger, &errCount)

	_ = d.records.WriteResult(ctx, &output.ResultRecord{
		ImageID:   image.ID,
		ImageName: image.Name,
		BootMode:  string(image.BootMode),
		Bucket:    obj.Bucket,
		Key:       obj.Key,
	})
	_ = d.records.WriteSummary(ctx, &output.SummaryRecord{
		ImageID:       image.ID,
		ObjectDeleted: outcome.ObjectDeleted,
		Duration:      d.now().Sub(started),
		DurationHuman: d.now().Sub(started).Round(time.Millisecond).String(),
		Errors:        errCount,
	})

	return outcome, nil
}

// resolveImage produces the local disk image path, unpacking the
// artifact when the job carries one.
func (d *Driver) resolveImage(ctx context.Context, job *Job, logger *zap.Logger) (string, error) {
	if job.ArchivePath == "" {
		d.phase(ctx, output.PhaseUnpack, output.StateSkipped, "image path given")
		return job.ImagePath, nil
	}

	d.phase(ctx, output.PhaseUnpack, output.StateStarted, job.ArchivePath)
	imagePath, err := d.backend.Unpack(ctx, job.ArchivePath)
	if err != nil {
		return "", err
	}
	d.phase(ctx, output.PhaseUnpack, output.StateCompleted, imagePath)
	logger.Info("Unpacked artifact", zap.String("image_path", imagePath))
	return imagePath, nil
}

// cleanup deletes the uploaded object according to the job's policy and
// reports whether it was deleted.
func (d *Driver) cleanup(ctx context.Context, job *Job, obj *backend.RemoteObject, logger *zap.Logger, errCount *int64) bool {
	wanted := job.AutoDelete
	if !wanted {
		question := fmt.Sprintf("Do you want to delete the object '%s' after import?", obj.Key)
		answer, err := d.confirmer.Confirm(question)
		if err != nil {
			*errCount++
			logger.Warn("Could not confirm cleanup, object retained",
				zap.String("key", obj.Key), zap.Error(err))
			d.phase(ctx, output.PhaseCleanup, output.StateSkipped, "no confirmation")
			return false
		}
		wanted = answer
	}

	if !wanted {
		d.phase(ctx, output.PhaseCleanup, output.StateSkipped, "declined")
		logger.Info("Uploaded object retained", zap.String("key", obj.Key))
		return false
	}

	d.phase(ctx, output.PhaseCleanup, output.StateStarted, obj.Key)
	if err := d.backend.Cleanup(ctx, obj); err != nil {
		*errCount++
		// The image exists; a leftover object is not a job failure.
		logger.Warn("Cleanup failed, object may remain",
			zap.String("key", obj.Key), zap.Error(err))
		d.recordFailure(ctx, output.PhaseCleanup, obj.Key, err)
		return false
	}
	d.phase(ctx, output.PhaseCleanup, output.StateCompleted, obj.Key)
	logger.Info("Deleted uploaded object", zap.String("key", obj.Key))
	return true
}

// phase emits a phase transition record.
func (d *Driver) phase(ctx context.Context, phase, state, detail string) {
	_ = d.records.WritePhase(ctx, &output.PhaseRecord{
		Phase:  phase,
		State:  state,
		Detail: detail,
	})
}

// recordFailure emits a failed phase transition and an error record.
func (d *Driver) recordFailure(ctx context.Context, phase, key string, err error) {
	d.phase(ctx, phase, output.StateFailed, "")
	_ = d.records.WriteError(ctx, &output.ErrorRecord{
		Code:    errorCode(err),
		Message: err.Error(),
		Phase:   phase,
		Key:     key,
	})
}

// errorCode maps backend sentinels onto record error codes.
func errorCode(err error) string {
	switch {
	case backend.IsPayloadNotFound(err):
		return output.ErrCodePayloadNotFound
	case backend.IsImportTaskFailed(err):
		return output.ErrCodeImportTaskFailed
	case backend.IsMalformedResponse(err):
		return output.ErrCodeMalformedResponse
	case backend.IsToolFailed(err):
		return output.ErrCodeToolFailed
	default:
		return output.ErrCodeInternal
	}
}
