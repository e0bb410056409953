// Package azure imports disk images into Azure through the az CLI.
//
// The flow is synchronous: az image create blocks until the image exists,
// so unlike the EC2 snapshot import there is no polling loop. The blob is
// uploaded under a timestamped name and the image takes a second timestamp
// of its own.
package azure

import (
	"context"
	"fmt"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/3leaps/imageport/pkg/backend"
	"github.com/3leaps/imageport/pkg/cloudcli"
	"github.com/3leaps/imageport/pkg/unpack"
)

// Backend drives blob uploads and image creation through the az CLI.
type Backend struct {
	runner   cloudcli.Runner
	unpacker *unpack.Unpacker

	container      string
	storageAccount string
	resourceGroup  string
	region         string

	logger *zap.Logger
	now    func() time.Time
}

var _ backend.Backend = (*Backend)(nil)

// New creates an Azure backend using the given runner for az CLI calls.
func New(runner cloudcli.Runner, cfg Config) (*Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	b := &Backend{
		runner:         runner,
		unpacker:       unpack.New(cfg.StagingDir),
		container:      cfg.Container,
		storageAccount: cfg.StorageAccount,
		resourceGroup:  cfg.ResourceGroup,
		region:         cfg.Region,
		logger:         cfg.Logger,
		now:            cfg.Now,
	}
	if b.logger == nil {
		b.logger = zap.NewNop()
	}
	if b.now == nil {
		b.now = time.Now
	}
	return b, nil
}

func (b *Backend) Cloud() backend.Cloud {
	return backend.CloudAzure
}

// Unpack extracts the artifact and returns the fixed VHD image path.
func (b *Backend) Unpack(ctx context.Context, archivePath string) (string, error) {
	path, err := b.unpacker.Extract(ctx, archivePath, unpack.VHDPayload)
	if err != nil {
		return "", b.wrap("Unpack", "", err)
	}
	return path, nil
}

// Upload copies the image into the blob container under a timestamped
// blob name, keeping the local file's extension.
func (b *Backend) Upload(ctx context.Context, imagePath string) (*backend.RemoteObject, error) {
	blobName := backend.TimestampedName(imagePath, b.now())

	res, err := b.runner.Run(ctx,
		"storage", "blob", "upload",
		"--account-name", b.storageAccount,
		"--file", imagePath,
		"--container-name", b.container,
		"--name", blobName,
	)
	if err != nil {
		return nil, b.wrap("Upload", blobName, err)
	}
	if !res.Ok() {
		return nil, b.wrap("Upload", blobName,
			fmt.Errorf("%w: %s", backend.ErrToolFailed, res.Diagnostic()))
	}

	b.logger.Info("Uploaded image as blob",
		zap.String("storage_account", b.storageAccount),
		zap.String("container", b.container),
		zap.String("blob", blobName))

	return &backend.RemoteObject{Bucket: b.container, Key: blobName, Region: b.region}, nil
}

// Import creates a managed image from the uploaded blob and returns its
// resource ID. The source URI points at the blob's public endpoint.
func (b *Backend) Import(ctx context.Context, obj *backend.RemoteObject, boot backend.BootMode) (*backend.MachineImage, error) {
	imageName := fmt.Sprintf("%s-%s", obj.Key, backend.TimestampSuffix(b.now()))
	sourceURI := fmt.Sprintf("https://%s.blob.core.windows.net/%s/%s",
		b.storageAccount, b.container, obj.Key)

	res, err := b.runner.Run(ctx,
		"image", "create",
		"--resource-group", b.resourceGroup,
		"--name", imageName,
		"--source", sourceURI,
		"--os-type", "Linux",
		"--location", b.region,
	)
	if err != nil {
		return nil, b.wrap("Import", obj.Key, err)
	}
	if !res.Ok() {
		return nil, b.wrap("Import", obj.Key,
			fmt.Errorf("%w: image create: %s", backend.ErrToolFailed, res.Diagnostic()))
	}

	id := gjson.GetBytes(res.Stdout, "id")
	if !id.Exists() || id.String() == "" {
		return nil, b.wrap("Import", obj.Key,
			fmt.Errorf("%w: image create response missing id", backend.ErrMalformedResponse))
	}

	b.logger.Info("Created Azure image",
		zap.String("image_name", imageName),
		zap.String("resource_id", id.String()))

	return &backend.MachineImage{ID: id.String(), Name: imageName, BootMode: boot}, nil
}

// Cleanup deletes the uploaded blob.
func (b *Backend) Cleanup(ctx context.Context, obj *backend.RemoteObject) error {
	res, err := b.runner.Run(ctx,
		"storage", "blob", "delete",
		"--account-name", b.storageAccount,
		"--container-name", obj.Bucket,
		"--name", obj.Key,
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

// wrap attaches operation context to err.
func (b *Backend) wrap(op, key string, err error) error {
	return &backend.BackendError{
		Op:     op,
		Cloud:  backend.CloudAzure,
		Bucket: b.container,
		Key:    key,
		Err:    err,
	}
}
