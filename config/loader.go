package config

import (
	"context"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/saiset-co/sai-cache/types"
)

// LoadConfig reads the yaml file at path (when it exists), applies
// SAI_CACHE_* environment overrides and validates the result. A missing
// file is not an error: defaults plus environment are enough to run.
func LoadConfig(path string) (*types.Config, error) {
	config := DefaultConfig()

	if path != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		data, err := readFileWithTimeout(ctx, path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, types.WrapError(err, "failed to read config file")
			}
		} else {
			if err := yaml.Unmarshal(data, config); err != nil {
				return nil, types.Errorf(types.ErrConfigParseFailed, "%s", err.Error())
			}
		}
	}

	if err := applyEnvOverrides(config); err != nil {
		return nil, types.WrapError(err, "failed to apply env overrides")
	}

	if err := ValidateConfig(config); err != nil {
		return nil, err
	}

	return config, nil
}

func DefaultConfig() *types.Config {
	return &types.Config{
		Cache: &types.CacheConfig{
			Type:            "memory",
			DefaultTTL:      "5s",
			MaxEntries:      1000,
			CleanupInterval: "60s",
		},
		Logger: &types.LoggerConfig{
			Level: "debug",
		},
		Metrics: &types.MetricsConfig{
			Enabled: false,
			Type:    "prometheus",
		},
		Reporter: &types.ReporterConfig{
			Enabled:  false,
			Schedule: "@every 5m",
			Timezone: "UTC",
		},
		Watcher: &types.WatcherConfig{
			Enabled:  false,
			Interval: "10s",
		},
	}
}

func readFileWithTimeout(ctx context.Context, path string) ([]byte, error) {
	type result struct {
		data []byte
		err  error
	}

	resultChan := make(chan result, 1)

	go func() {
		data, err := os.ReadFile(path)
		resultChan <- result{data: data, err: err}
	}()

	select {
	case res := <-resultChan:
		return res.data, res.err
	case <-ctx.Done():
		return nil, types.WrapError(ctx.Err(), "file read timeout")
	}
}

func applyEnvOverrides(config *types.Config) error {
	opts := env.Options{Prefix: "SAI_CACHE_"}

	if config.Cache != nil {
		if err := env.ParseWithOptions(config.Cache, opts); err != nil {
			return err
		}
	}
	if config.Logger != nil {
		if err := env.ParseWithOptions(config.Logger, opts); err != nil {
			return err
		}
	}
	if config.Metrics != nil {
		if err := env.ParseWithOptions(config.Metrics, opts); err != nil {
			return err
		}
	}
	if config.Reporter != nil {
		if err := env.ParseWithOptions(config.Reporter, opts); err != nil {
			return err
		}
	}
	if config.Watcher != nil {
		if err := env.ParseWithOptions(config.Watcher, opts); err != nil {
			return err
		}
	}

	return nil
}

func ValidateConfig(config *types.Config) error {
	if config == nil {
		return types.ErrConfigIsNil
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	if err := validate.Struct(config); err != nil {
		return types.WrapError(err, "config validation failed")
	}

	return nil
}
