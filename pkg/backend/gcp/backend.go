// Package gcp imports disk images into Google Cloud through the gcloud
// and gsutil CLIs.
//
// Uploads go through gsutil for its parallel composite mode; image
// creation and object deletion go through gcloud. Image creation is
// synchronous and reports the created image in tabular stdout rather
// than JSON.
package gcp

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/3leaps/imageport/pkg/backend"
	"github.com/3leaps/imageport/pkg/cloudcli"
	"github.com/3leaps/imageport/pkg/unpack"
)

// uefiGuestOSFeatures is the feature bundle attached to UEFI images.
const uefiGuestOSFeatures = "--guest-os-features=UEFI_COMPATIBLE,VIRTIO_SCSI_MULTIQUEUE,SEV_CAPABLE"

// Config carries the Google Cloud coordinates an import job targets.
type Config struct {
	// Bucket is the storage bucket images are staged in.
	Bucket string

	// StagingDir is where artifacts are unpacked before upload.
	StagingDir string

	// Logger receives progress events. Defaults to a no-op logger.
	Logger *zap.Logger
}

// Validate checks that the bucket is set.
func (c *Config) Validate() error {
	if c.Bucket == "" {
		return fmt.Errorf("bucket name is required")
	}
	return nil
}

// Backend drives bucket uploads and image creation for Google Cloud.
type Backend struct {
	gcloud   cloudcli.Runner
	gsutil   cloudcli.Runner
	unpacker *unpack.Unpacker

	bucket string

	logger *zap.Logger
}

var _ backend.Backend = (*Backend)(nil)

// New creates a GCP backend. gcloud handles image creation and object
// deletion; gsutil handles uploads.
func New(gcloud, gsutil cloudcli.Runner, cfg Config) (*Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	b := &Backend{
		gcloud:   gcloud,
		gsutil:   gsutil,
		unpacker: unpack.New(cfg.StagingDir),
		bucket:   cfg.Bucket,
		logger:   cfg.Logger,
	}
	if b.logger == nil {
		b.logger = zap.NewNop()
	}
	return b, nil
}

func (b *Backend) Cloud() backend.Cloud {
	return backend.CloudGCP
}

// Unpack locates the inner tar.gz payload inside the artifact. The
// payload stays compressed; the image builder already produced it in the
// format image creation expects.
func (b *Backend) Unpack(ctx context.Context, archivePath string) (string, error) {
	path, err := b.unpacker.Extract(ctx, archivePath, unpack.ArchivePayload)
	if err != nil {
		return "", b.wrap("Unpack", "", err)
	}
	return path, nil
}

// Upload copies the archive to the bucket. The object keeps the local
// file's base name; -n skips the copy when the object already exists,
// so re-runs of the same artifact are idempotent.
func (b *Backend) Upload(ctx context.Context, imagePath string) (*backend.RemoteObject, error) {
	key := filepath.Base(imagePath)

	res, err := b.gsutil.Run(ctx,
		"-m", "cp", "-n", imagePath,
		fmt.Sprintf("gs://%s", b.bucket),
	)
	if err != nil {
		return nil, b.wrap("Upload", key, err)
	}
	if !res.Ok() {
		return nil, b.wrap("Upload", key,
			fmt.Errorf("%w: %s", backend.ErrToolFailed, res.Diagnostic()))
	}

	b.logger.Info("Uploaded archive to bucket",
		zap.String("bucket", b.bucket),
		zap.String("object", key))

	return &backend.RemoteObject{Bucket: b.bucket, Key: key}, nil
}

// Import creates a compute image from the uploaded archive and returns
// its full resource name.
//
// gcloud prints the result as a two-line table, header then row; the row
// carries the image name and project in its first two columns.
func (b *Backend) Import(ctx context.Context, obj *backend.RemoteObject, boot backend.BootMode) (*backend.MachineImage, error) {
	imageName := ImageName(obj.Key)

	args := []string{
		"compute", "images", "create", imageName,
		"--source-uri", fmt.Sprintf("gs://%s/%s", obj.Bucket, obj.Key),
	}
	if boot == backend.BootModeUEFI {
		args = append(args, uefiGuestOSFeatures)
	}

	res, err := b.gcloud.Run(ctx, args...)
	if err != nil {
		return nil, b.wrap("Import", obj.Key, err)
	}
	if !res.Ok() {
		return nil, b.wrap("Import", obj.Key,
			fmt.Errorf("%w: images create: %s", backend.ErrToolFailed, res.Diagnostic()))
	}

	name, project, err := parseCreateOutput(res.Stdout)
	if err != nil {
		return nil, b.wrap("Import", obj.Key, err)
	}

	resource := fmt.Sprintf("projects/%s/global/images/%s", project, name)
	b.logger.Info("Created compute image",
		zap.String("image", name),
		zap.String("project", project))

	return &backend.MachineImage{ID: resource, Name: name, BootMode: boot}, nil
}

// Cleanup deletes the uploaded object.
func (b *Backend) Cleanup(ctx context.Context, obj *backend.RemoteObject) error {
	res, err := b.gcloud.Run(ctx,
		"storage", "rm",
		fmt.Sprintf("gs://%s/%s", obj.Bucket, obj.Key),
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

// ImageName derives the compute image name from an uploaded object key:
// the extension and the builder's -image.tar suffix are stripped and an
// image- prefix is added.
//
//	fedora-41-image.tar.gz -> image-fedora-41
func ImageName(objectKey string) string {
	base := filepath.Base(objectKey)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return "image-" + strings.ReplaceAll(stem, "-image.tar", "")
}

// parseCreateOutput extracts the image name and project from the
// two-line table gcloud prints on success.
func parseCreateOutput(stdout []byte) (name, project string, err error) {
	lines := strings.Split(string(stdout), "\n")
	if len(lines) < 2 {
		return "", "", fmt.Errorf("%w: images create output has no result row", backend.ErrMalformedResponse)
	}
	fields := strings.Fields(lines[1])
	if len(fields) < 2 {
		return "", "", fmt.Errorf("%w: images create result row has %d columns", backend.ErrMalformedResponse, len(fields))
	}
	return fields[0], fields[1], nil
}

// wrap attaches operation context to err.
func (b *Backend) wrap(op, key string, err error) error {
	return &backend.BackendError{
		Op:     op,
		Cloud:  backend.CloudGCP,
		Bucket: b.bucket,
		Key:    key,
		Err:    err,
	}
}
