// Package config loads imageport runtime configuration.
//
// Precedence, highest first: runtime overrides passed to Load, environment
// variables (IMAGEPORT_ prefix), an optional imageport.yaml config file,
// built-in defaults.
package config

import "time"

// Config is the resolved runtime configuration.
type Config struct {
	// Tools holds the cloud CLI executable paths or names.
	Tools ToolsConfig `mapstructure:"tools"`

	// StagingDir is where build artifacts are unpacked.
	StagingDir string `mapstructure:"staging_dir"`

	// Poll controls the asynchronous import polling loop.
	Poll PollConfig `mapstructure:"poll"`

	// Logging controls CLI log output.
	Logging LoggingConfig `mapstructure:"logging"`
}

// ToolsConfig names the provider command-line tools. Values are resolved
// through PATH unless absolute.
type ToolsConfig struct {
	AWS    string `mapstructure:"aws"`
	Azure  string `mapstructure:"azure"`
	Gcloud string `mapstructure:"gcloud"`
	Gsutil string `mapstructure:"gsutil"`
}

// PollConfig controls import-task polling for the asynchronous provider.
type PollConfig struct {
	// Interval is the fixed wait between status checks.
	Interval time.Duration `mapstructure:"interval"`

	// Budget bounds the total time spent waiting on one import task.
	// Zero means no bound beyond the caller's context.
	Budget time.Duration `mapstructure:"budget"`
}

// LoggingConfig controls CLI logging.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	Debug bool   `mapstructure:"debug"`
}

// Defaults for optional configuration values.
const (
	DefaultAWSTool    = "aws"
	DefaultAzureTool  = "az"
	DefaultGcloudTool = "gcloud"
	DefaultGsutilTool = "gsutil"

	// DefaultStagingDir mirrors the layout used by the image composer
	// pipeline that produces the artifacts.
	DefaultStagingDir = "cloud_images_val_shared/image"

	DefaultPollInterval = 10 * time.Second
	DefaultPollBudget   = 2 * time.Hour

	DefaultLogLevel = "info"
)
