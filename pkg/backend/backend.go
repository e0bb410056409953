// Package backend defines the uniform contract for turning a local disk
// image into a registered machine image on a cloud provider.
//
// Each provider implements the same four-phase surface - unpack, upload,
// import, cleanup - but shares no behavior beyond the contract shape:
// upload targets, object naming rules, and import semantics differ enough
// that every variant supplies its own implementation. Credentials are
// assumed pre-configured in the environment; backends never manage auth.
package backend

import "context"

// Cloud identifies a target provider.
type Cloud string

const (
	// CloudAWS imports through S3 and the EC2 snapshot-import task API.
	CloudAWS Cloud = "aws"

	// CloudAzure imports through blob storage and a synchronous image create.
	CloudAzure Cloud = "azure"

	// CloudGCP imports through a storage bucket and a synchronous image create.
	CloudGCP Cloud = "gcp"
)

// String returns the string representation of the cloud.
func (c Cloud) String() string {
	return string(c)
}

// Valid reports whether c names a supported provider.
func (c Cloud) Valid() bool {
	switch c {
	case CloudAWS, CloudAzure, CloudGCP:
		return true
	}
	return false
}

// BootMode selects the firmware interface of the resulting image.
// It is meaningful to the AWS and GCP variants only.
type BootMode string

const (
	// BootModeNone leaves the provider default in place.
	BootModeNone BootMode = ""

	// BootModeBIOS requests legacy BIOS boot.
	BootModeBIOS BootMode = "bios"

	// BootModeUEFI requests UEFI boot.
	BootModeUEFI BootMode = "uefi"
)

// Valid reports whether b is a recognized boot mode.
func (b BootMode) Valid() bool {
	switch b {
	case BootModeNone, BootModeBIOS, BootModeUEFI:
		return true
	}
	return false
}

// RemoteObject is the uploaded disk payload sitting in provider object
// storage between the upload and cleanup phases.
type RemoteObject struct {
	// Bucket is the bucket or container holding the object.
	Bucket string

	// Key is the object name within the bucket.
	Key string

	// Region is the provider region, where the provider needs one.
	Region string
}

// MachineImage is the terminal output of an import: a first-class machine
// image owned by the cloud account. The orchestrator has no lifecycle
// responsibility for it after creation.
type MachineImage struct {
	// ID is the provider's opaque resource identifier: an AMI id for AWS,
	// a full resource path for Azure, a projects/<p>/global/images/<n>
	// path for GCP.
	ID string

	// Name is the human-readable image name.
	Name string

	// BootMode is the requested boot mode, if one was attached.
	BootMode BootMode
}

// Backend converts a local build artifact into a registered machine image.
//
// Implementations mutate remote state through provider tooling only; no
// local cache of provider-side state is kept. All methods honor ctx for
// cancellation of the underlying tool invocation.
type Backend interface {
	// Cloud returns the provider this backend targets.
	Cloud() Cloud

	// Unpack extracts the build artifact and returns the path to the
	// single disk-image payload in the format this provider expects.
	Unpack(ctx context.Context, archivePath string) (string, error)

	// Upload pushes the local image file into provider object storage
	// under a collision-resistant name.
	Upload(ctx context.Context, imagePath string) (*RemoteObject, error)

	// Import registers the uploaded object as a machine image. For AWS
	// this drives an asynchronous import task to a terminal state; the
	// other providers complete in a single synchronous call.
	Import(ctx context.Context, obj *RemoteObject, boot BootMode) (*MachineImage, error)

	// Cleanup deletes the uploaded object. Failures are reported but the
	// orchestrator treats deletion as fire-and-forget.
	Cleanup(ctx context.Context, obj *RemoteObject) error
}
