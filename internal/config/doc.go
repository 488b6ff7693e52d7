// Package config loads the sessionguard configuration.
//
// Configuration lives in a single directory containing config.yaml. The
// default directory is ~/.config/sessionguard; commands accept --config to
// point elsewhere. A missing file means defaults.
//
// Example config.yaml:
//
//	client_id: admin-ui
//	issuer: https://auth.example.com
//	redirect_url: http://localhost:3000/callback
//	api_base_url: https://api.example.com
//	renewal_deadline: 2s
//	storage:
//	  type: sqlite
//	  watch: true
//
// When issuer is set, authorization and revocation endpoints not given
// explicitly are discovered from it.
//
// # Environment
//
// SESSIONGUARD_CLIENT_ID, SESSIONGUARD_AUTHORIZATION_URL and
// SESSIONGUARD_API_BASE_URL override the corresponding file values.
package config
