// Package app assembles a ready-to-use session from configuration.
//
// # Assembly Order
//
// New builds the components bottom-up so each one receives its
// dependencies fully constructed:
//
//  1. Validate the configuration
//  2. Discover endpoints from the issuer, when one is configured
//  3. Open the storage backend and load the persisted cookie jar
//  4. Create the implicit-grant authorization client on that jar
//  5. Load the persisted token set
//  6. Create the session coordinator and location memory
//  7. Wrap the base HTTP transport in the request guard
//  8. Start watching the session file, when storage.watch is set
//
// # Usage
//
//	a, err := app.New(ctx, cfg, app.Options{})
//	if err != nil {
//	    return err
//	}
//	defer a.Close()
//
//	resp, err := a.HTTPClient.Get(cfg.APIBaseURL + "/orders")
//
// The App owns the storage backend; Close releases it and stops the
// file watcher.
package app
