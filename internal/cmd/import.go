package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/imageport/internal/config"
	errwrap "github.com/3leaps/imageport/internal/errors"
	"github.com/3leaps/imageport/internal/observability"
	"github.com/3leaps/imageport/pkg/backend"
	"github.com/3leaps/imageport/pkg/backend/aws"
	"github.com/3leaps/imageport/pkg/backend/azure"
	"github.com/3leaps/imageport/pkg/backend/gcp"
	"github.com/3leaps/imageport/pkg/cloudcli"
	"github.com/3leaps/imageport/pkg/confirm"
	"github.com/3leaps/imageport/pkg/manifest"
	"github.com/3leaps/imageport/pkg/output"
	"github.com/3leaps/imageport/pkg/pipeline"
	"github.com/3leaps/imageport/pkg/preflight"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a disk image as a cloud machine image",
	Long: `Import a disk image into a cloud provider.

The input is either a build artifact (--path, unpacked first) or a ready
disk image (--image). The image is uploaded to object storage, imported
and registered as a machine image, and the uploaded object is deleted
afterwards (with confirmation unless --delete is given).

Examples:
  imageport import -c aws -p build.tar --bucket val-images --region us-east-1
  imageport import -c aws -i disk.raw --bucket val-images --region us-east-1 --boot uefi --delete
  imageport import -c azure -p build.tar --bucket images --region westeurope \
      --resource-group val-rg --storage-account valimages
  imageport import -c gcp -i fedora-41-image.tar.gz --bucket val-images
  imageport import --job import.yaml`,
	RunE: runImport,
}

var (
	importCloud          string
	importPath           string
	importImage          string
	importBucket         string
	importRegion         string
	importBoot           string
	importDelete         bool
	importResourceGroup  string
	importStorageAccount string
	importJobPath        string
	importOutput         string
	importPreflightMode  string
	importDryRun         bool
)

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().StringVarP(&importCloud, "cloud", "c", "", "Target cloud (aws, azure, gcp)")
	importCmd.Flags().StringVarP(&importPath, "path", "p", "", "Path to build artifact (.tar)")
	importCmd.Flags().StringVarP(&importImage, "image", "i", "", "Path to disk image (bypasses unpacking)")
	importCmd.Flags().StringVar(&importBucket, "bucket", "", "Bucket or container name")
	importCmd.Flags().StringVar(&importRegion, "region", "", "Cloud region")
	importCmd.Flags().StringVar(&importBoot, "boot", "", "Boot mode (bios or uefi)")
	importCmd.Flags().BoolVar(&importDelete, "delete", false, "Delete the uploaded object after import without prompting")
	importCmd.Flags().StringVar(&importResourceGroup, "resource-group", "", "Azure resource group")
	importCmd.Flags().StringVar(&importStorageAccount, "storage-account", "", "Azure storage account")
	importCmd.Flags().StringVarP(&importJobPath, "job", "j", "", "Path to job manifest (YAML or JSON)")
	importCmd.Flags().StringVarP(&importOutput, "output", "o", "", "JSONL record destination (stdout or file:PATH)")
	importCmd.Flags().StringVar(&importPreflightMode, "preflight", "", "Preflight mode (plan-only|read-safe)")
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "Validate inputs and show plan without executing")
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	job, outputDest, pfMode, err := resolveImportJob()
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid import job", err)
	}

	if err := job.Validate(); err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid import job", err)
	}

	if importDryRun {
		return showImportPlan(job, outputDest, pfMode)
	}

	cfg := config.GetConfig()

	jobID := uuid.New().String()

	writer, cleanup, err := createWriter(outputDest, jobID, string(job.Cloud))
	if err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to create output", err)
	}
	defer cleanup()

	b, err := buildBackend(job, cfg, writer)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Failed to configure backend", err)
	}

	if err := runImportPreflight(ctx, job, cfg, pfMode, writer); err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Preflight failed", err)
	}

	confirmer := confirm.Confirmer(confirm.NewReaderConfirmer(os.Stdin, os.Stderr))

	driver := pipeline.NewDriver(b, confirmer,
		pipeline.WithLogger(observability.CLILogger),
		pipeline.WithRecords(writer),
		pipeline.WithJobID(jobID))

	observability.CLILogger.Info("Starting import",
		zap.String("job_id", jobID),
		zap.String("cloud", string(job.Cloud)),
		zap.String("bucket", job.Bucket))

	outcome, err := driver.Run(ctx, job)
	if err != nil {
		if ctx.Err() != nil {
			return exitError(foundry.ExitSignalInt, "Import cancelled", err)
		}
		return exitError(foundry.ExitExternalServiceUnavailable, "Import failed", err)
	}

	observability.CLILogger.Info("Import completed",
		zap.String("job_id", outcome.JobID),
		zap.String("image_id", outcome.Image.ID),
		zap.Bool("object_deleted", outcome.ObjectDeleted))

	return nil
}

// resolveImportJob builds the job from the manifest (if given) with flag
// overrides applied on top.
func resolveImportJob() (*pipeline.Job, string, string, error) {
	job := &pipeline.Job{}
	outputDest := "stdout"
	pfMode := manifest.DefaultPreflightMode

	if importJobPath != "" {
		m, err := manifest.Load(importJobPath)
		if err != nil {
			return nil, "", "", errwrap.WrapInput(err, "job manifest")
		}

		job.Cloud = backend.Cloud(m.Job.Cloud)
		job.ArchivePath = m.Job.Artifact
		job.ImagePath = m.Job.Image
		job.BootMode = backend.BootMode(m.Job.Boot)
		job.Bucket = m.Storage.Bucket
		job.Region = m.Storage.Region
		job.ResourceGroup = m.Storage.ResourceGroup
		job.StorageAccount = m.Storage.StorageAccount
		job.AutoDelete = m.Cleanup.AutoDelete
		pfMode = m.Preflight.Mode
		if m.Output.RecordsEnabled() {
			outputDest = m.Output.Destination
		} else {
			outputDest = ""
		}
	}

	// Flags override manifest values.
	if importCloud != "" {
		job.Cloud = backend.Cloud(importCloud)
	}
	if importPath != "" {
		job.ArchivePath = importPath
		job.ImagePath = ""
	}
	if importImage != "" {
		job.ImagePath = importImage
		job.ArchivePath = ""
	}
	if importBucket != "" {
		job.Bucket = importBucket
	}
	if importRegion != "" {
		job.Region = importRegion
	}
	if importBoot != "" {
		job.BootMode = backend.BootMode(importBoot)
	}
	if importResourceGroup != "" {
		job.ResourceGroup = importResourceGroup
	}
	if importStorageAccount != "" {
		job.StorageAccount = importStorageAccount
	}
	if importDelete {
		job.AutoDelete = true
	}
	if importOutput != "" {
		outputDest = importOutput
	}
	if importPreflightMode != "" {
		switch importPreflightMode {
		case "plan-only", "read-safe":
			pfMode = importPreflightMode
		default:
			return nil, "", "", errwrap.NewInputError("unsupported preflight mode: " + importPreflightMode)
		}
	}

	return job, outputDest, pfMode, nil
}

// buildBackend constructs the provider backend for the job. The writer
// receives task-status records from the asynchronous AWS import path.
func buildBackend(job *pipeline.Job, cfg *config.Config, records output.Writer) (backend.Backend, error) {
	logger := observability.CLILogger

	switch job.Cloud {
	case backend.CloudAWS:
		if job.Region == "" {
			return nil, errwrap.NewInputError("region is required for aws")
		}
		return aws.New(cloudcli.NewExecRunner(cfg.Tools.AWS), aws.Config{
			Bucket:       job.Bucket,
			Region:       job.Region,
			StagingDir:   cfg.StagingDir,
			PollInterval: cfg.Poll.Interval,
			PollBudget:   cfg.Poll.Budget,
			Logger:       logger,
			Records:      records,
		})

	case backend.CloudAzure:
		return azure.New(cloudcli.NewExecRunner(cfg.Tools.Azure), azure.Config{
			Container:      job.Bucket,
			StorageAccount: job.StorageAccount,
			ResourceGroup:  job.ResourceGroup,
			Region:         job.Region,
			StagingDir:     cfg.StagingDir,
			Logger:         logger,
		})

	case backend.CloudGCP:
		return gcp.New(
			cloudcli.NewExecRunner(cfg.Tools.Gcloud),
			cloudcli.NewExecRunner(cfg.Tools.Gsutil),
			gcp.Config{
				Bucket:     job.Bucket,
				StagingDir: cfg.StagingDir,
				Logger:     logger,
			})

	default:
		return nil, errwrap.NewInputError(fmt.Sprintf("unknown cloud %q", job.Cloud))
	}
}

// runImportPreflight probes the storage coordinates and records the result.
func runImportPreflight(ctx context.Context, job *pipeline.Job, cfg *config.Config, mode string, writer output.Writer) error {
	spec := preflight.Spec{Mode: preflight.Mode(mode)}

	var probers []preflight.BucketProber
	switch job.Cloud {
	case backend.CloudAWS:
		if spec.Mode != preflight.ModePlanOnly {
			p, err := preflight.NewAWSBucketProber(ctx, job.Bucket, job.Region)
			if err != nil {
				return err
			}
			probers = append(probers, p)
		}
	case backend.CloudAzure:
		probers = append(probers, preflight.NewAzureContainerProber(
			cloudcli.NewExecRunner(cfg.Tools.Azure), job.Bucket, job.StorageAccount))
	case backend.CloudGCP:
		probers = append(probers, preflight.NewGCPBucketProber(
			cloudcli.NewExecRunner(cfg.Tools.Gsutil), job.Bucket))
	}

	rec, pfErr := preflight.Run(ctx, string(job.Cloud), job.Bucket, probers, spec)
	if err := writer.WritePreflight(ctx, rec); err != nil {
		observability.CLILogger.Warn("Failed to write preflight record", zap.Error(err))
	}
	if pfErr != nil {
		return errwrap.WrapExternal(pfErr, "bucket probe")
	}
	return nil
}

// showImportPlan displays what would run without executing.
func showImportPlan(job *pipeline.Job, outputDest, pfMode string) error {
	fmt.Println("=== Import Plan (dry-run) ===")
	fmt.Println()
	fmt.Printf("Cloud:       %s\n", job.Cloud)
	if job.ArchivePath != "" {
		fmt.Printf("Artifact:    %s (will be unpacked)\n", job.ArchivePath)
	} else {
		fmt.Printf("Image:       %s\n", job.ImagePath)
	}
	fmt.Printf("Bucket:      %s\n", job.Bucket)
	if job.Region != "" {
		fmt.Printf("Region:      %s\n", job.Region)
	}
	if job.Cloud == backend.CloudAzure {
		fmt.Printf("Resource Group:  %s\n", job.ResourceGroup)
		fmt.Printf("Storage Account: %s\n", job.StorageAccount)
	}
	if job.BootMode != backend.BootModeNone {
		fmt.Printf("Boot Mode:   %s\n", job.BootMode)
	}
	fmt.Printf("Cleanup:     ")
	if job.AutoDelete {
		fmt.Println("delete uploaded object automatically")
	} else {
		fmt.Println("ask before deleting uploaded object")
	}
	fmt.Printf("Preflight:   %s\n", pfMode)
	if outputDest != "" {
		fmt.Printf("Records:     %s\n", outputDest)
	} else {
		fmt.Println("Records:     disabled")
	}
	fmt.Println()
	fmt.Println("Inputs validated successfully. Remove --dry-run to execute.")
	return nil
}

// createWriter creates a JSONL writer for the destination. An empty
// destination disables record output.
func createWriter(dest, jobID, cloud string) (output.Writer, func(), error) {
	if dest == "" {
		return output.NopWriter{}, func() {}, nil
	}

	if dest == "stdout" {
		w := output.NewJSONLWriter(os.Stdout, jobID, cloud)
		return w, func() { _ = w.Close() }, nil
	}

	path := dest
	if strings.HasPrefix(dest, "file:") {
		path = strings.TrimPrefix(dest, "file:")
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file %s: %w", path, err)
	}

	w := output.NewJSONLWriter(f, jobID, cloud)
	cleanup := func() {
		_ = w.Close()
		_ = f.Close()
	}
	return w, cleanup, nil
}
