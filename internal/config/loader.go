package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"sessionguard/pkg/logging"
)

const (
	userConfigDir  = ".config/sessionguard"
	configFileName = "config.yaml"
)

// Environment variables that override file values.
const (
	EnvClientID         = "SESSIONGUARD_CLIENT_ID"
	EnvAuthorizationURL = "SESSIONGUARD_AUTHORIZATION_URL"
	EnvAPIBaseURL       = "SESSIONGUARD_API_BASE_URL"
)

// DefaultConfigPath returns ~/.config/sessionguard.
func DefaultConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine user config directory: %w", err)
	}
	return filepath.Join(homeDir, userConfigDir), nil
}

// LoadConfig loads config.yaml from configPath on top of the defaults and
// applies environment overrides. An empty configPath means the default
// directory. The result is not validated.
func LoadConfig(configPath string) (Config, error) {
	if configPath == "" {
		var err error
		if configPath, err = DefaultConfigPath(); err != nil {
			return Config{}, err
		}
	}

	configFilePath := filepath.Join(configPath, configFileName)
	config := GetDefaultConfig()

	data, err := os.ReadFile(configFilePath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logging.Debug("Config", "No config.yaml found at %s, using defaults", configFilePath)
	case err != nil:
		return Config{}, fmt.Errorf("error reading config from %s: %w", configFilePath, err)
	default:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return Config{}, fmt.Errorf("error loading config from %s: %w", configFilePath, err)
		}
		logging.Debug("Config", "Loaded configuration from %s", configFilePath)
	}

	applyEnv(&config)
	return config, nil
}

func applyEnv(config *Config) {
	overrides := []struct {
		name   string
		target *string
	}{
		{EnvClientID, &config.ClientID},
		{EnvAuthorizationURL, &config.AuthorizationURL},
		{EnvAPIBaseURL, &config.APIBaseURL},
	}
	for _, o := range overrides {
		if v, ok := os.LookupEnv(o.name); ok && v != "" {
			*o.target = v
		}
	}
}

// SaveConfig writes config to configPath/config.yaml.
func SaveConfig(configPath string, config Config) error {
	if err := os.MkdirAll(configPath, 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return os.WriteFile(filepath.Join(configPath, configFileName), data, 0o600)
}
