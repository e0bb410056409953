package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("LoadDefaults", func(t *testing.T) {
		cfg, err := Load(ctx)
		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, "aws", cfg.Tools.AWS)
		assert.Equal(t, "az", cfg.Tools.Azure)
		assert.Equal(t, "gcloud", cfg.Tools.Gcloud)
		assert.Equal(t, "gsutil", cfg.Tools.Gsutil)

		assert.Equal(t, DefaultStagingDir, cfg.StagingDir)
		assert.Equal(t, 10*time.Second, cfg.Poll.Interval)
		assert.Equal(t, 2*time.Hour, cfg.Poll.Budget)
		assert.Equal(t, "info", cfg.Logging.Level)
		assert.False(t, cfg.Logging.Debug)
	})

	t.Run("RuntimeOverrides", func(t *testing.T) {
		overrides := map[string]any{
			"tools": map[string]any{
				"aws": "/opt/aws-cli/bin/aws",
			},
			"staging_dir": "/tmp/images",
		}

		cfg, err := Load(ctx, overrides)
		require.NoError(t, err)

		assert.Equal(t, "/opt/aws-cli/bin/aws", cfg.Tools.AWS)
		assert.Equal(t, "/tmp/images", cfg.StagingDir)

		// Non-overridden values keep their defaults.
		assert.Equal(t, "az", cfg.Tools.Azure)
		assert.Equal(t, 10*time.Second, cfg.Poll.Interval)
	})

	t.Run("EnvOverrides", func(t *testing.T) {
		t.Setenv("IMAGEPORT_STAGING_DIR", "/srv/staging")
		t.Setenv("IMAGEPORT_POLL_INTERVAL", "2s")

		cfg, err := Load(ctx)
		require.NoError(t, err)

		assert.Equal(t, "/srv/staging", cfg.StagingDir)
		assert.Equal(t, 2*time.Second, cfg.Poll.Interval)
	})

	t.Run("ConfigPrecedence", func(t *testing.T) {
		t.Setenv("IMAGEPORT_STAGING_DIR", "/srv/from-env")

		overrides := map[string]any{
			"staging_dir": "/srv/from-override",
		}

		cfg, err := Load(ctx, overrides)
		require.NoError(t, err)

		// Runtime override wins over env var.
		assert.Equal(t, "/srv/from-override", cfg.StagingDir)
	})

	t.Run("CancelledContext", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := Load(cancelled)
		require.Error(t, err)
	})
}

func TestGetConfig(t *testing.T) {
	ctx := context.Background()

	cfg, err := Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	retrieved := GetConfig()
	require.NotNil(t, retrieved)
	assert.Equal(t, cfg.StagingDir, retrieved.StagingDir)
	assert.Equal(t, cfg.Poll.Interval, retrieved.Poll.Interval)
}

func TestDurationParsing(t *testing.T) {
	ctx := context.Background()

	t.Setenv("IMAGEPORT_POLL_INTERVAL", "45s")
	t.Setenv("IMAGEPORT_POLL_BUDGET", "30m")

	cfg, err := Load(ctx)
	require.NoError(t, err)

	assert.Equal(t, 45*time.Second, cfg.Poll.Interval)
	assert.Equal(t, 30*time.Minute, cfg.Poll.Budget)
}
