// Package manifest provides loading and validation of imageport job manifests.
//
// A job manifest is a YAML or JSON file that configures an import job:
// which cloud to target, the input artifact or image, storage coordinates,
// and cleanup policy.
//
// Manifests are validated against a JSON Schema to ensure correctness before
// execution. The schema enforces strict typing and disallows unknown properties.
//
// Example manifest (YAML):
//
//	version: "1.0"
//	job:
//	  cloud: aws
//	  artifact: artifacts/fedora-41-build.tar
//	  boot: uefi
//	storage:
//	  bucket: val-images
//	  region: us-east-1
//	cleanup:
//	  auto_delete: true
package manifest

// Manifest represents a validated import job manifest.
//
// Required fields are Version, Job, and Storage. Cleanup, Preflight, and
// Output are optional with sensible defaults.
type Manifest struct {
	// Schema is an optional JSON Schema reference for editor support.
	// Example: "https://schemas.3leaps.dev/imageport/v1.0.0/import-job.schema.json"
	Schema string `json:"$schema,omitempty" yaml:"$schema,omitempty"`

	// Version is the manifest schema version. Must be "1.0".
	Version string `json:"version" yaml:"version"`

	// Job configures the import itself.
	Job JobConfig `json:"job" yaml:"job"`

	// Storage configures the object storage coordinates.
	Storage StorageConfig `json:"storage" yaml:"storage"`

	// Cleanup configures post-import object deletion (optional).
	Cleanup CleanupConfig `json:"cleanup,omitempty" yaml:"cleanup,omitempty"`

	// Preflight configures permission checks before the job (optional).
	Preflight PreflightConfig `json:"preflight,omitempty" yaml:"preflight,omitempty"`

	// Output configures JSONL record output (optional).
	Output OutputConfig `json:"output,omitempty" yaml:"output,omitempty"`
}

// JobConfig configures the import input and target.
type JobConfig struct {
	// Cloud is the target cloud: "aws", "azure", or "gcp".
	Cloud string `json:"cloud" yaml:"cloud"`

	// Artifact is a build artifact to unpack before upload. Exactly one
	// of Artifact and Image must be set; the schema enforces this.
	Artifact string `json:"artifact,omitempty" yaml:"artifact,omitempty"`

	// Image is a ready disk image path, bypassing unpacking.
	Image string `json:"image,omitempty" yaml:"image,omitempty"`

	// Boot is the requested boot mode: "bios" or "uefi". Optional.
	Boot string `json:"boot,omitempty" yaml:"boot,omitempty"`
}

// StorageConfig configures object storage coordinates.
type StorageConfig struct {
	// Bucket is the bucket or blob container name.
	Bucket string `json:"bucket" yaml:"bucket"`

	// Region is the cloud region. Required by aws and azure backends.
	Region string `json:"region,omitempty" yaml:"region,omitempty"`

	// ResourceGroup is the Azure resource group. Azure only.
	ResourceGroup string `json:"resource_group,omitempty" yaml:"resource_group,omitempty"`

	// StorageAccount is the Azure storage account. Azure only.
	StorageAccount string `json:"storage_account,omitempty" yaml:"storage_account,omitempty"`

	// StagingDir is where artifacts are unpacked. Optional.
	StagingDir string `json:"staging_dir,omitempty" yaml:"staging_dir,omitempty"`
}

// CleanupConfig configures post-import deletion of the uploaded object.
type CleanupConfig struct {
	// AutoDelete deletes the uploaded object without prompting.
	// Default: false (interactive confirmation).
	AutoDelete bool `json:"auto_delete,omitempty" yaml:"auto_delete,omitempty"`
}

// PreflightConfig controls how aggressively imageport probes permissions
// before running a job.
//
// Preflight is a capability contract, not a data operation.
//   - plan-only: no provider calls
//   - read-safe: no writes/deletes
//
// Values are schema-validated.
type PreflightConfig struct {
	Mode string `json:"mode,omitempty" yaml:"mode,omitempty"`
}

// OutputConfig configures JSONL record output.
//
// All fields are optional with sensible defaults applied during loading.
type OutputConfig struct {
	// Destination is the output target.
	// Values: "stdout" or "file:/path/to/output.jsonl"
	// Default: "stdout".
	Destination string `json:"destination,omitempty" yaml:"destination,omitempty"`

	// Records enables JSONL record emission.
	// Default: true.
	Records *bool `json:"records,omitempty" yaml:"records,omitempty"`
}

// Default values for optional configuration fields.
const (
	// DefaultVersion is the current manifest schema version.
	DefaultVersion = "1.0"

	// DefaultDestination is the default output destination.
	DefaultDestination = "stdout"

	// DefaultRecords is the default value for record emission.
	DefaultRecords = true

	// DefaultPreflightMode is the default preflight mode.
	DefaultPreflightMode = "read-safe"
)

// ApplyDefaults fills in default values for optional fields.
//
// This should be called after loading and validating the manifest to ensure
// all optional fields have sensible values.
func (m *Manifest) ApplyDefaults() {
	if m.Preflight.Mode == "" {
		m.Preflight.Mode = DefaultPreflightMode
	}

	if m.Output.Destination == "" {
		m.Output.Destination = DefaultDestination
	}
	if m.Output.Records == nil {
		defaultRecords := DefaultRecords
		m.Output.Records = &defaultRecords
	}
}

// RecordsEnabled returns whether JSONL records should be emitted.
// Returns the configured value, or DefaultRecords if not set.
func (o *OutputConfig) RecordsEnabled() bool {
	if o.Records == nil {
		return DefaultRecords
	}
	return *o.Records
}
