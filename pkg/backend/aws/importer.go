package aws

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/3leaps/imageport/pkg/backend"
	"github.com/3leaps/imageport/pkg/output"
)

// TaskStatus is the three-valued status of an EC2 snapshot import task.
type TaskStatus string

const (
	// TaskStatusActive means the task is still converting the image.
	TaskStatusActive TaskStatus = "active"

	// TaskStatusCompleted is the successful terminal status.
	TaskStatusCompleted TaskStatus = "completed"

	// TaskStatusError is the failed terminal status. A task never leaves
	// a terminal status.
	TaskStatusError TaskStatus = "error"
)

// Terminal reports whether the status ends the polling loop.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusError
}

// ImportTask is one observation of a snapshot import task.
type ImportTask struct {
	// ID is the provider-assigned import task identifier.
	ID string

	// Status is the task status at observation time.
	Status TaskStatus

	// Progress is the percent-complete indicator. Best effort: the
	// provider omits it near completion and on fresh tasks.
	Progress string

	// SnapshotID is the resulting snapshot, populated only once the
	// status is completed.
	SnapshotID string
}

// gjson paths into describe-import-snapshot-tasks responses.
const (
	taskStatusPath   = "ImportSnapshotTasks.0.SnapshotTaskDetail.Status"
	taskProgressPath = "ImportSnapshotTasks.0.SnapshotTaskDetail.Progress"
	taskSnapshotPath = "ImportSnapshotTasks.0.SnapshotTaskDetail.SnapshotId"
)

// amiIDPattern extracts an AMI id out of provider error text.
var amiIDPattern = regexp.MustCompile(`ami-[0-9a-fA-F]+`)

// Fixed registration parameters for imported raw images.
const (
	imageArchitecture  = "x86_64"
	imageVirtType      = "hvm"
	imageRootDevice    = "/dev/sda1"
	importDescription  = "Imported snapshot from raw file"
	alreadyInUseMarker = "already in use"
)

// Import converts the uploaded object into an AMI.
//
// The sequence is: submit an import-snapshot task, poll it to a terminal
// status at the configured interval, then register the resulting snapshot
// as an AMI. A terminal error status is fatal to the job and is surfaced
// as backend.ErrImportTaskFailed; callers skip cleanup in that case.
func (b *Backend) Import(ctx context.Context, obj *backend.RemoteObject, boot backend.BootMode) (*backend.MachineImage, error) {
	pollCtx := ctx
	if b.pollBudget > 0 {
		var cancel context.CancelFunc
		pollCtx, cancel = context.WithTimeout(ctx, b.pollBudget)
		defer cancel()
	}

	task, err := b.submitImport(ctx, obj)
	if err != nil {
		return nil, b.wrap("Import", obj.Key, err)
	}

	b.logger.Info("Submitted snapshot import task", zap.String("task_id", task.ID))

	task, err = b.pollTask(pollCtx, task)
	if err != nil {
		return nil, b.wrap("Import", obj.Key, err)
	}

	image, err := b.registerImage(ctx, obj, task.SnapshotID, boot)
	if err != nil {
		return nil, b.wrap("Import", obj.Key, err)
	}
	return image, nil
}

// submitImport starts the import task and returns it in its created state.
func (b *Backend) submitImport(ctx context.Context, obj *backend.RemoteObject) (*ImportTask, error) {
	res, err := b.runner.Run(ctx,
		"ec2", "import-snapshot",
		"--disk-container",
		fmt.Sprintf("Format=raw,UserBucket={S3Bucket=%s,S3Key=%s}", obj.Bucket, obj.Key),
		"--description", importDescription,
		"--region", b.region,
	)
	if err != nil {
		return nil, err
	}
	if !res.Ok() {
		return nil, fmt.Errorf("%w: import-snapshot: %s", backend.ErrToolFailed, res.Diagnostic())
	}

	id := gjson.GetBytes(res.Stdout, "ImportTaskId")
	if !id.Exists() || id.String() == "" {
		return nil, fmt.Errorf("%w: import-snapshot response missing ImportTaskId", backend.ErrMalformedResponse)
	}

	return &ImportTask{ID: id.String()}, nil
}

// pollTask queries the task until it reaches a terminal status, emitting
// a task-status record for every observation.
//
// Transitions are Active -> Active* -> {Completed, Error}. A missing
// Progress field never aborts polling; only the status matters.
func (b *Backend) pollTask(ctx context.Context, task *ImportTask) (*ImportTask, error) {
	for {
		observed, err := b.describeTask(ctx, task.ID)
		if err != nil {
			return nil, err
		}

		_ = b.records.WriteTaskStatus(ctx, &output.TaskStatusRecord{
			TaskID:   observed.ID,
			Status:   string(observed.Status),
			Progress: observed.Progress,
		})

		switch observed.Status {
		case TaskStatusCompleted:
			if observed.SnapshotID == "" {
				return nil, fmt.Errorf("%w: completed task %s has no SnapshotId", backend.ErrMalformedResponse, task.ID)
			}
			b.logger.Info("Import task completed",
				zap.String("task_id", task.ID),
				zap.String("snapshot_id", observed.SnapshotID))
			return observed, nil

		case TaskStatusError:
			return nil, fmt.Errorf("%w: task %s", backend.ErrImportTaskFailed, task.ID)

		default:
			if observed.Progress != "" {
				b.logger.Info("Import task in progress",
					zap.String("task_id", task.ID),
					zap.String("status", string(observed.Status)),
					zap.String("progress", observed.Progress))
			} else {
				b.logger.Info("Import task in progress, no progress reported",
					zap.String("task_id", task.ID),
					zap.String("status", string(observed.Status)))
			}
		}

		if err := b.wait(ctx, b.pollInterval); err != nil {
			return nil, err
		}
	}
}

// describeTask reads one status observation for the task.
func (b *Backend) describeTask(ctx context.Context, taskID string) (*ImportTask, error) {
	res, err := b.runner.Run(ctx,
		"ec2", "describe-import-snapshot-tasks",
		"--import-task-ids", taskID,
		"--region", b.region,
	)
	if err != nil {
		return nil, err
	}
	if !res.Ok() {
		return nil, fmt.Errorf("%w: describe-import-snapshot-tasks: %s", backend.ErrToolFailed, res.Diagnostic())
	}

	status := gjson.GetBytes(res.Stdout, taskStatusPath)
	if !status.Exists() || status.String() == "" {
		return nil, fmt.Errorf("%w: describe response for %s missing Status", backend.ErrMalformedResponse, taskID)
	}

	return &ImportTask{
		ID:         taskID,
		Status:     TaskStatus(status.String()),
		Progress:   gjson.GetBytes(res.Stdout, taskProgressPath).String(),
		SnapshotID: gjson.GetBytes(res.Stdout, taskSnapshotPath).String(),
	}, nil
}

// registerImage registers the snapshot as an AMI named after the uploaded
// object, with the fixed architecture, virtualization type, and root
// device mapping raw imports require.
//
// A registration failure reporting the snapshot as already in use is
// informational, not an error: the existing association is reported and
// the image (when identifiable from the message) is returned so the job
// continues to cleanup. Detection is by substring on the tool output,
// matching the raw text the provider emits for duplicate registrations.
func (b *Backend) registerImage(ctx context.Context, obj *backend.RemoteObject, snapshotID string, boot backend.BootMode) (*backend.MachineImage, error) {
	args := []string{
		"ec2", "register-image",
		"--name", obj.Key,
		"--architecture", imageArchitecture,
		"--block-device-mappings",
		fmt.Sprintf("DeviceName=%s,Ebs={SnapshotId=%s}", imageRootDevice, snapshotID),
		"--virtualization-type", imageVirtType,
		"--root-device-name", imageRootDevice,
		"--region", b.region,
		"--ena-support",
	}
	if boot != backend.BootModeNone {
		args = append(args, "--boot-mode", string(boot))
	}

	res, err := b.runner.Run(ctx, args...)
	if err != nil {
		return nil, err
	}

	combined := string(res.Stdout) + string(res.Stderr)
	if strings.Contains(combined, alreadyInUseMarker) {
		existing := amiIDPattern.FindString(combined)
		b.logger.Warn("Snapshot is already in use by an existing image",
			zap.String("snapshot_id", snapshotID),
			zap.String("image_id", existing))
		return &backend.MachineImage{ID: existing, Name: obj.Key, BootMode: boot}, nil
	}

	if !res.Ok() {
		return nil, fmt.Errorf("%w: register-image: %s", backend.ErrToolFailed, res.Diagnostic())
	}

	imageID := gjson.GetBytes(res.Stdout, "ImageId")
	if !imageID.Exists() || imageID.String() == "" {
		return nil, fmt.Errorf("%w: register-image response missing ImageId", backend.ErrMalformedResponse)
	}

	b.logger.Info("Registered AMI",
		zap.String("image_id", imageID.String()),
		zap.String("snapshot_id", snapshotID))

	return &backend.MachineImage{
		ID:       imageID.String(),
		Name:     obj.Key,
		BootMode: boot,
	}, nil
}
