// Package logging provides the structured logging used across sessionguard.
//
// It is a thin wrapper over log/slog that tags every entry with the
// subsystem that produced it, so output can be filtered by component:
//
//	logging.Init(logging.LevelInfo, os.Stderr, logging.FormatText)
//	logging.Info("Coordinator", "Session renewed, expires at %s", expiresAt)
//	logging.Error("Guard", err, "Retry failed for %s", req.URL)
//
// # Subsystems
//
//   - Config: configuration loading and validation
//   - Storage: persistent key/value backends
//   - TokenStore: access token persistence
//   - AuthClient: authorization endpoint interaction
//   - Coordinator: session state machine
//   - Guard: request interception and retry
//   - App: session assembly and file watching
//   - CLI: command execution
//
// # Audit Logging
//
// Security-relevant events (token stored, cleared, revoked) go through
// Audit, which logs at INFO level with a SECURITY_AUDIT prefix and an
// "event" attribute. Token values must never be passed to any function of
// this package; log lengths or expiry instants instead.
package logging
