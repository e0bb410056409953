// Package cmd implements the imageport CLI.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/imageport/internal/config"
	errwrap "github.com/3leaps/imageport/internal/errors"
	"github.com/3leaps/imageport/internal/observability"
)

// versionInfo holds build-time version metadata, set via SetVersionInfo
// from main's ldflags.
var versionInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{
	Version:   "dev",
	Commit:    "HEAD",
	BuildDate: "unknown",
}

// SetVersionInfo records build metadata for the version template.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

// AppIdentity describes the running binary.
type AppIdentity struct {
	BinaryName string
	AppName    string
}

var appIdentity *AppIdentity

// GetAppIdentity returns the binary identity, or nil before initialization.
func GetAppIdentity() *AppIdentity {
	return appIdentity
}

var (
	rootDebug    bool
	rootLogLevel string
)

var rootCmd = &cobra.Command{
	Use:   "imageport",
	Short: "Import disk images into cloud providers",
	Long: `imageport uploads disk images to cloud object storage and registers
them as machine images (AMIs, Azure images, GCP compute images).

It drives the provider CLIs (aws, az, gcloud, gsutil) and handles
artifact unpacking, upload, asynchronous import polling, and cleanup
of the uploaded object.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		appIdentity = &AppIdentity{BinaryName: "imageport", AppName: "imageport"}
		observability.InitCLILogger(appIdentity.BinaryName, rootDebug)

		cfg, err := config.Load(cmd.Context())
		if err != nil {
			return exitError(foundry.ExitInvalidArgument, "Failed to load configuration", err)
		}

		// Flag wins over config; --debug wins over both.
		if !rootDebug {
			if rootLogLevel != "" {
				observability.SetLevel(rootLogLevel)
			} else if cfg.Logging.Level != "" {
				observability.SetLevel(cfg.Logging.Level)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&rootDebug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&rootLogLevel, "log-level", "", "Minimum log level (debug, info, warn, error)")
	rootCmd.SetVersionTemplate(`{{printf "%s %s" .Name .Version}}
`)
	cobra.OnInitialize(func() {
		rootCmd.Version = fmt.Sprintf("%s (commit %s, built %s)",
			versionInfo.Version, versionInfo.Commit, versionInfo.BuildDate)
	})
}

// Execute runs the CLI under ctx and returns the process exit code.
func Execute(ctx context.Context) int {
	defer observability.Sync()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		observability.CLILogger.Error(err.Error())
		return exitCodeFor(err)
	}
	return 0
}

// exitCodeFor maps an error onto a process exit code. Explicit codes win;
// classified errors that escaped without one fall back to their category.
func exitCodeFor(err error) int {
	var coded *codedError
	if errors.As(err, &coded) {
		return coded.code
	}

	switch errwrap.CategoryOf(err) {
	case errwrap.CategoryInput:
		return foundry.ExitInvalidArgument
	case errwrap.CategoryExternal:
		return foundry.ExitExternalServiceUnavailable
	}
	return 1
}

// codedError carries a foundry exit code alongside the error.
type codedError struct {
	code int
	msg  string
	err  error
}

func (e *codedError) Error() string {
	if e.err == nil {
		return e.msg
	}
	return fmt.Sprintf("%s: %v", e.msg, e.err)
}

func (e *codedError) Unwrap() error {
	return e.err
}

// exitError creates an error that will cause the CLI to exit with the given code.
func exitError(code int, message string, err error) error {
	return &codedError{code: code, msg: message, err: err}
}

// ExitWithCode logs the failure and terminates the process. Used by
// commands that cannot recover into normal error flow.
func ExitWithCode(logger *zap.Logger, code int, message string, err error) {
	if err != nil {
		logger.Error(message, zap.Error(err))
	} else {
		logger.Error(message)
	}
	_ = logger.Sync()
	os.Exit(code)
}
