package azure

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Config carries the Azure account coordinates an import job targets.
type Config struct {
	// Container is the blob container images are staged in.
	Container string

	// StorageAccount is the storage account owning the container.
	StorageAccount string

	// ResourceGroup is the resource group the image is created in.
	ResourceGroup string

	// Region is the location passed to image creation.
	Region string

	// StagingDir is where artifacts are unpacked before upload.
	StagingDir string

	// Logger receives progress events. Defaults to a no-op logger.
	Logger *zap.Logger

	// Now supplies timestamps for blob and image names. Defaults to
	// time.Now.
	Now func() time.Time
}

// Validate checks that the account coordinates are complete.
func (c *Config) Validate() error {
	if c.Container == "" {
		return fmt.Errorf("container name is required")
	}
	if c.StorageAccount == "" {
		return fmt.Errorf("storage account name is required")
	}
	if c.ResourceGroup == "" {
		return fmt.Errorf("resource group is required")
	}
	if c.Region == "" {
		return fmt.Errorf("region is required")
	}
	return nil
}
