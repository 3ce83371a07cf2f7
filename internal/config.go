package internal

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/hbomb79/Harvest/internal/acquisition"
	"github.com/hbomb79/Harvest/internal/api"
	"github.com/hbomb79/Harvest/internal/database"
	"github.com/hbomb79/Harvest/internal/retention"
	"github.com/hbomb79/Harvest/internal/storage"
	"github.com/hbomb79/Harvest/pkg/logger"
	"github.com/ilyakaznacheev/cleanenv"
)

// HarvestConfig is the struct used to contain the
// various user config supplied by file, environment
// variables, or manually inside the code.
type HarvestConfig struct {
	RestConfig        api.RestConfig     `yaml:"api" toml:"api"`
	AcquisitionConfig acquisition.Config `yaml:"acquisition" toml:"acquisition"`
	RetentionConfig   retention.Config   `yaml:"retention" toml:"retention"`
	StorageConfig     storage.Config     `yaml:"storage" toml:"storage"`
	DatabaseConfig    database.Config    `yaml:"database" toml:"database"`
	LogLevel          string             `yaml:"log_level" toml:"log_level" env:"LOG_LEVEL" env-default:"info" validate:"oneof=verbose debug info warning error"`
}

// LoadConfig reads the configuration file at the path provided (YAML or
// TOML, chosen by extension) and then applies environment overrides. If the
// path is empty, or no file exists at the path, configuration is read from
// the environment alone.
func LoadConfig(configPath string) (*HarvestConfig, error) {
	config := &HarvestConfig{}

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			if err := cleanenv.ReadConfig(configPath, config); err != nil {
				return nil, fmt.Errorf("failed to load configuration from %s: %w", configPath, err)
			}

			return config, config.Validate()
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to access configuration file %s: %w", configPath, err)
		}

		log.Emit(logger.WARNING, "Configuration file %s does not exist, using environment only\n", configPath)
	}

	if err := cleanenv.ReadEnv(config); err != nil {
		return nil, fmt.Errorf("failed to load configuration from environment: %w", err)
	}

	return config, config.Validate()
}

// Validate checks the configuration against the constraints declared
// on each section.
func (config *HarvestConfig) Validate() error {
	if err := validator.New().Struct(config); err != nil {
		return fmt.Errorf("configuration is invalid: %w", err)
	}

	return nil
}
