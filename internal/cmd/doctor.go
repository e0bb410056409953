package cmd

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/imageport/internal/config"
	errwrap "github.com/3leaps/imageport/internal/errors"
	"github.com/3leaps/imageport/internal/observability"
)

var (
	doctorCloud string
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long: `Run diagnostic checks on the system and suggest fixes for common issues.

Examples:
  imageport doctor               # Full environment check
  imageport doctor --cloud aws   # AWS-specific checks`,
	Run: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().StringVar(&doctorCloud, "cloud", "", "Run cloud-specific checks (aws, azure, gcp)")
}

func runDoctor(cmd *cobra.Command, args []string) {
	identity := GetAppIdentity()
	bannerName := "doctor"
	if identity != nil && identity.BinaryName != "" {
		bannerName = identity.BinaryName + " doctor"
	}
	observability.CLILogger.Info("=== " + bannerName + " ===")
	observability.CLILogger.Info("")
	observability.CLILogger.Info("Running diagnostic checks...")
	observability.CLILogger.Info("")

	cfg := config.GetConfig()

	allChecks := true
	checkNum := 1
	totalChecks := 7

	// Add cloud-specific checks if requested
	if doctorCloud == "aws" {
		totalChecks = 9
	}

	// Check 1: Go version
	goVersion := runtime.Version()
	if goVersion >= "go1.23" {
		observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking Go version... ✅ %s", checkNum, totalChecks, goVersion),
			zap.String("go_version", goVersion))
	} else {
		observability.CLILogger.Warn(fmt.Sprintf("[%d/%d] Checking Go version... ⚠️  %s (recommended: go1.23+)", checkNum, totalChecks, goVersion),
			zap.String("go_version", goVersion))
		allChecks = false
	}
	checkNum++

	// Check 2: Crucible access
	version := crucible.GetVersion()
	if version.Crucible != "" {
		observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking Crucible access... ✅ v%s", checkNum, totalChecks, version.Crucible),
			zap.String("crucible_version", version.Crucible))
	} else {
		observability.CLILogger.Error(fmt.Sprintf("[%d/%d] Checking Crucible access... ❌ Cannot access Crucible", checkNum, totalChecks))
		ExitWithCode(observability.CLILogger, foundry.ExitExternalServiceUnavailable, "Cannot access Crucible",
			errwrap.NewExternalServiceError("Crucible service unavailable"))
		allChecks = false
	}
	checkNum++

	// Check 3: Gofulmen access
	if version.Gofulmen != "" {
		observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking Gofulmen access... ✅ v%s", checkNum, totalChecks, version.Gofulmen),
			zap.String("gofulmen_version", version.Gofulmen))
	} else {
		observability.CLILogger.Error(fmt.Sprintf("[%d/%d] Checking Gofulmen access... ❌ Cannot access Gofulmen", checkNum, totalChecks))
		allChecks = false
	}
	checkNum++

	// Check 4: Config directory
	configDir, err := os.UserConfigDir()
	if err != nil {
		observability.CLILogger.Error(fmt.Sprintf("[%d/%d] Checking config directory... ❌ Cannot find config directory", checkNum, totalChecks),
			zap.Error(err))
		ExitWithCode(observability.CLILogger, foundry.ExitFileNotFound, "Cannot find config directory",
			errwrap.WrapInternal(cmd.Context(), err, "Cannot find config directory"))
		allChecks = false
	} else {
		observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking config directory... ✅ %s", checkNum, totalChecks, configDir),
			zap.String("config_dir", configDir))
	}
	checkNum++

	// Check 5: Environment
	observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking environment... ✅ %s/%s", checkNum, totalChecks, runtime.GOOS, runtime.GOARCH),
		zap.String("os", runtime.GOOS),
		zap.String("arch", runtime.GOARCH))
	checkNum++

	// Check 6: Cloud CLI tools
	if !checkCloudTools(checkNum, totalChecks, cfg) {
		allChecks = false
	}
	checkNum++

	// Check 7: Staging directory
	if !checkStagingDir(checkNum, totalChecks, cfg.StagingDir) {
		allChecks = false
	}
	checkNum++

	// Cloud-specific checks
	if doctorCloud == "aws" {
		allChecks = runAWSChecks(cmd.Context(), checkNum, totalChecks, allChecks)
	}

	observability.CLILogger.Info("")
	if allChecks {
		observability.CLILogger.Info(fmt.Sprintf("✅ All checks passed! Your %s installation is healthy.", bannerName))
	} else {
		observability.CLILogger.Warn("⚠️  Some checks failed. Review the output above for details.")
	}
	observability.CLILogger.Info("")
	observability.CLILogger.Info("=== End Diagnostics ===")
}

// checkCloudTools reports which configured cloud CLIs resolve on PATH.
// A missing tool only fails a cloud that the operator actually targets,
// so missing tools degrade the check rather than failing it outright.
func checkCloudTools(checkNum, totalChecks int, cfg *config.Config) bool {
	tools := []struct {
		name string
		tool string
	}{
		{"aws", cfg.Tools.AWS},
		{"azure", cfg.Tools.Azure},
		{"gcloud", cfg.Tools.Gcloud},
		{"gsutil", cfg.Tools.Gsutil},
	}

	found := 0
	missing := []string{}
	for _, t := range tools {
		if path, err := exec.LookPath(t.tool); err == nil {
			observability.CLILogger.Debug("Found cloud tool",
				zap.String("cloud", t.name),
				zap.String("tool", t.tool),
				zap.String("path", path))
			found++
		} else {
			missing = append(missing, t.tool)
		}
	}

	if found == len(tools) {
		observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking cloud CLI tools... ✅ %d/%d available", checkNum, totalChecks, found, len(tools)))
		return true
	}
	if found > 0 {
		observability.CLILogger.Warn(fmt.Sprintf("[%d/%d] Checking cloud CLI tools... ⚠️  %d/%d available (missing: %v)", checkNum, totalChecks, found, len(tools), missing),
			zap.Strings("missing", missing))
		return true
	}
	observability.CLILogger.Error(fmt.Sprintf("[%d/%d] Checking cloud CLI tools... ❌ No cloud CLI tools found", checkNum, totalChecks),
		zap.Strings("missing", missing))
	return false
}

// checkStagingDir verifies the staging directory is writable by creating
// and removing a probe file.
func checkStagingDir(checkNum, totalChecks int, dir string) bool {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		observability.CLILogger.Error(fmt.Sprintf("[%d/%d] Checking staging directory... ❌ Cannot create %s", checkNum, totalChecks, dir),
			zap.Error(err))
		return false
	}

	probe := filepath.Join(dir, ".doctor-probe")
	f, err := os.Create(probe)
	if err != nil {
		observability.CLILogger.Error(fmt.Sprintf("[%d/%d] Checking staging directory... ❌ %s is not writable", checkNum, totalChecks, dir),
			zap.Error(err))
		return false
	}
	_ = f.Close()
	_ = os.Remove(probe)

	observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking staging directory... ✅ %s", checkNum, totalChecks, dir),
		zap.String("staging_dir", dir))
	return true
}

// runAWSChecks runs AWS-specific diagnostic checks.
func runAWSChecks(ctx context.Context, checkNum, totalChecks int, allChecks bool) bool {
	observability.CLILogger.Info("")
	observability.CLILogger.Info("AWS Checks:")

	// Check 8: AWS credentials
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		observability.CLILogger.Error(fmt.Sprintf("[%d/%d] Checking AWS credentials... ❌ Cannot load AWS config", checkNum, totalChecks),
			zap.Error(err))
		printAWSCredentialsHelp()
		return false
	}

	creds, err := cfg.Credentials.Retrieve(ctx)
	if err != nil {
		observability.CLILogger.Error(fmt.Sprintf("[%d/%d] Checking AWS credentials... ❌ Cannot retrieve credentials", checkNum, totalChecks),
			zap.Error(err))
		printAWSCredentialsHelp()
		return false
	}

	// Mask the access key for display
	maskedKey := maskAccessKey(creds.AccessKeyID)
	observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking AWS credentials... ✅ Found credentials", checkNum, totalChecks),
		zap.String("access_key", maskedKey),
		zap.String("source", creds.Source))
	checkNum++

	// Check 9: EC2 instance metadata. A short timeout keeps the check
	// fast off-cloud, where the metadata endpoint is unreachable.
	imdsCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	client := imds.NewFromConfig(cfg)
	doc, err := client.GetInstanceIdentityDocument(imdsCtx, &imds.GetInstanceIdentityDocumentInput{})
	if err != nil {
		observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking EC2 metadata... ✅ Not running on EC2", checkNum, totalChecks))
	} else {
		observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking EC2 metadata... ✅ Running on EC2 instance %s (%s)", checkNum, totalChecks, doc.InstanceID, doc.Region),
			zap.String("instance_id", doc.InstanceID),
			zap.String("region", doc.Region))
	}

	return allChecks
}

// maskAccessKey masks all but the last 4 characters of an access key.
func maskAccessKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}

// printAWSCredentialsHelp prints help for configuring AWS credentials.
func printAWSCredentialsHelp() {
	observability.CLILogger.Info("")
	observability.CLILogger.Info("To configure AWS credentials:")
	observability.CLILogger.Info("  1. Set AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY environment variables, or")
	observability.CLILogger.Info("  2. Run 'aws configure' to set up a profile, or")
	observability.CLILogger.Info("  3. Use an IAM role when running on AWS infrastructure")
	observability.CLILogger.Info("")
}
