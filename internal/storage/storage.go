package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Keys used by the session layer.
const (
	KeyAccessToken    = "access_token"
	KeyIDToken        = "id_token"
	KeyTokenExpiresAt = "token_expires_at"
	KeyLastLocation   = "last_location"
	KeyCookies        = "auth_cookies"
)

// Backend types accepted by Open.
const (
	TypeMemory = "memory"
	TypeFile   = "file"
	TypeRedis  = "redis"
	TypeSQLite = "sqlite"
)

// DefaultStorageDir is the default directory for session state, relative
// to the user's home directory.
const DefaultStorageDir = ".config/sessionguard"

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("storage closed")

// Store is a persistent key/value store.
type Store interface {
	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores a single value.
	Set(ctx context.Context, key, value string) error

	// SetMany stores all values atomically.
	SetMany(ctx context.Context, values map[string]string) error

	// Delete removes the given keys. Missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error

	// Close releases the backend's resources.
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	// Type is one of TypeMemory, TypeFile, TypeRedis, TypeSQLite.
	// Defaults to TypeFile.
	Type string

	// Path is the file path for TypeFile and TypeSQLite.
	// Defaults to ~/.config/sessionguard/session.json (or session.db).
	Path string

	// RedisAddr is the host:port of the Redis server.
	RedisAddr string

	// RedisDB is the Redis database number.
	RedisDB int

	// RedisPrefix namespaces the session hash key.
	RedisPrefix string
}

// Open creates the backend described by cfg.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(cfg.Type) {
	case TypeMemory:
		return NewMemoryStore(), nil
	case "", TypeFile:
		path, err := defaultPath(cfg.Path, "session.json")
		if err != nil {
			return nil, err
		}
		return NewFileStore(path)
	case TypeSQLite:
		path, err := defaultPath(cfg.Path, "session.db")
		if err != nil {
			return nil, err
		}
		return NewSQLiteStore(ctx, path)
	case TypeRedis:
		return NewRedisStore(ctx, RedisConfig{
			Addr:   cfg.RedisAddr,
			DB:     cfg.RedisDB,
			Prefix: cfg.RedisPrefix,
		})
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

func defaultPath(path, name string) (string, error) {
	if path != "" {
		return path, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, DefaultStorageDir, name), nil
}
