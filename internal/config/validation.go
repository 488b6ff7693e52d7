package config

import (
	"fmt"
	"net/url"
	"strings"

	"sessionguard/internal/storage"
	"sessionguard/pkg/logging"
)

// ValidationError represents a validation error with context
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface
func (ve ValidationError) Error() string {
	if ve.Field == "" {
		return ve.Message
	}
	return fmt.Sprintf("field '%s': %s", ve.Field, ve.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for multiple validation errors
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}
	if len(ve) == 1 {
		return ve[0].Error()
	}

	var messages []string
	for _, err := range ve {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(messages, "; "))
}

// HasErrors returns true if there are any validation errors
func (ve ValidationErrors) HasErrors() bool {
	return len(ve) > 0
}

// Add adds a new validation error
func (ve *ValidationErrors) Add(field, message string, value ...interface{}) {
	var val interface{}
	if len(value) > 0 {
		val = value[0]
	}
	*ve = append(*ve, ValidationError{
		Field:   field,
		Value:   val,
		Message: message,
	})
}

// Validate checks the configuration and returns every problem found.
func (c Config) Validate() error {
	var errs ValidationErrors

	if strings.TrimSpace(c.ClientID) == "" {
		errs.Add("client_id", "is required")
	}
	if c.AuthorizationURL == "" && c.Issuer == "" {
		errs.Add("authorization_url", "is required unless issuer is set")
	}
	for field, value := range map[string]string{
		"issuer":            c.Issuer,
		"authorization_url": c.AuthorizationURL,
		"revoke_url":        c.RevokeURL,
		"redirect_url":      c.RedirectURL,
		"api_base_url":      c.APIBaseURL,
	} {
		if value == "" {
			continue
		}
		if u, err := url.Parse(value); err != nil || u.Scheme == "" || u.Host == "" {
			errs.Add(field, "must be an absolute URL", value)
		}
	}
	if c.RenewalDeadline < 0 {
		errs.Add("renewal_deadline", "must not be negative", c.RenewalDeadline)
	}
	if c.SilentRefreshTimeout < 0 {
		errs.Add("silent_refresh_timeout", "must not be negative", c.SilentRefreshTimeout)
	}
	if c.CallbackPort < 0 || c.CallbackPort > 65535 {
		errs.Add("callback_port", "must be between 0 and 65535", c.CallbackPort)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs.Add("log_level", err.Error(), c.LogLevel)
	}
	if c.LogFormat != "" && c.LogFormat != string(logging.FormatText) && c.LogFormat != string(logging.FormatJSON) {
		errs.Add("log_format", "must be one of: text, json", c.LogFormat)
	}

	switch c.Storage.Type {
	case "", storage.TypeFile, storage.TypeMemory, storage.TypeSQLite:
	case storage.TypeRedis:
		if c.Storage.RedisAddr == "" {
			errs.Add("storage.redis_addr", "is required for redis storage")
		}
	default:
		errs.Add("storage.type", "must be one of: file, memory, redis, sqlite", c.Storage.Type)
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}
