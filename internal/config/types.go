package config

import (
	"time"

	"sessionguard/internal/storage"
)

// Config is the top-level sessionguard configuration.
type Config struct {
	ClientID         string   `yaml:"client_id"`
	Issuer           string   `yaml:"issuer,omitempty"`
	AuthorizationURL string   `yaml:"authorization_url,omitempty"`
	RevokeURL        string   `yaml:"revoke_url,omitempty"`
	RedirectURL      string   `yaml:"redirect_url,omitempty"`
	Scopes           []string `yaml:"scopes,omitempty"`
	APIBaseURL       string   `yaml:"api_base_url,omitempty"`

	// RenewalDeadline bounds how long a rejected request waits for a
	// renewal before the session is forcibly logged out.
	RenewalDeadline time.Duration `yaml:"renewal_deadline"`

	// SilentRefreshTimeout bounds one silent refresh round trip.
	SilentRefreshTimeout time.Duration `yaml:"silent_refresh_timeout"`

	CallbackPort  int    `yaml:"callback_port"`
	LogLevel      string `yaml:"log_level"`
	LogFormat     string `yaml:"log_format"`
	VerifyIDToken bool   `yaml:"verify_id_token"`

	Storage StorageConfig `yaml:"storage"`
}

// StorageConfig selects where session state persists.
type StorageConfig struct {
	Type        string `yaml:"type"`
	Path        string `yaml:"path,omitempty"`
	RedisAddr   string `yaml:"redis_addr,omitempty"`
	RedisDB     int    `yaml:"redis_db,omitempty"`
	RedisPrefix string `yaml:"redis_prefix,omitempty"`

	// Watch reloads the session when another process changes the file
	// store.
	Watch bool `yaml:"watch,omitempty"`
}

// ToStorageConfig converts to the storage package configuration.
func (s StorageConfig) ToStorageConfig() storage.Config {
	return storage.Config{
		Type:        s.Type,
		Path:        s.Path,
		RedisAddr:   s.RedisAddr,
		RedisDB:     s.RedisDB,
		RedisPrefix: s.RedisPrefix,
	}
}
