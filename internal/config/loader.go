package config

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

var (
	configMu  sync.Mutex
	appConfig *Config
)

// Load resolves the configuration and caches it for GetConfig.
//
// Optional runtime overrides (nested maps keyed like the config file) take
// precedence over environment variables and file values. Load may be called
// again to re-resolve; the cached config is replaced.
func Load(ctx context.Context, overrides ...map[string]any) (*Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("IMAGEPORT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("imageport")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/imageport")
	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; anything else is a real failure.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	for _, o := range overrides {
		if err := v.MergeConfigMap(o); err != nil {
			return nil, fmt.Errorf("failed to apply runtime overrides: %w", err)
		}
	}

	cfg := &Config{}
	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(cfg, decodeHook); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	configMu.Lock()
	appConfig = cfg
	configMu.Unlock()

	return cfg, nil
}

// GetConfig returns the most recently loaded config, or nil before Load.
func GetConfig() *Config {
	configMu.Lock()
	defer configMu.Unlock()
	return appConfig
}

// setDefaults registers the built-in defaults on v.
func setDefaults(v *viper.Viper) {
	v.SetDefault("tools.aws", DefaultAWSTool)
	v.SetDefault("tools.azure", DefaultAzureTool)
	v.SetDefault("tools.gcloud", DefaultGcloudTool)
	v.SetDefault("tools.gsutil", DefaultGsutilTool)
	v.SetDefault("staging_dir", DefaultStagingDir)
	v.SetDefault("poll.interval", DefaultPollInterval.String())
	v.SetDefault("poll.budget", DefaultPollBudget.String())
	v.SetDefault("logging.level", DefaultLogLevel)
	v.SetDefault("logging.debug", false)
}
