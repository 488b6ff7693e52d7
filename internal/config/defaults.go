package config

import (
	"time"

	"sessionguard/internal/storage"
)

const (
	// DefaultRenewalDeadline is how long a rejected request waits for a
	// renewal.
	DefaultRenewalDeadline = 2 * time.Second

	// DefaultSilentRefreshTimeout bounds a silent refresh.
	DefaultSilentRefreshTimeout = 10 * time.Second

	// DefaultCallbackPort is the port of the local login callback server.
	DefaultCallbackPort = 3000
)

// GetDefaultConfig returns the configuration used when no file exists.
func GetDefaultConfig() Config {
	return Config{
		Scopes:               []string{"openid", "profile", "email"},
		RenewalDeadline:      DefaultRenewalDeadline,
		SilentRefreshTimeout: DefaultSilentRefreshTimeout,
		CallbackPort:         DefaultCallbackPort,
		LogLevel:             "info",
		LogFormat:            "text",
		Storage: StorageConfig{
			Type: storage.TypeFile,
		},
	}
}
