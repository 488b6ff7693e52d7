// Package authclient talks to an OAuth2 authorization server using the
// implicit grant.
//
// It covers the three interactions a browser-style client has with the
// authorization endpoint:
//
//   - interactive login: the user is navigated to the authorize URL with
//     prompt=login and comes back through a redirect whose fragment carries
//     the token (see CallbackServer and ImplicitClient.CompleteCallback);
//   - silent refresh: the authorize URL is requested out-of-band with
//     prompt=none and the token is read from the redirect Location;
//   - revocation: the access token is posted to the revoke endpoint.
//
// Endpoints can be configured directly or discovered from an OIDC issuer
// with Discovery. When a verifier is configured, ID tokens are checked
// against the issuer's keys and the request nonce.
//
// SECURITY: token values are never logged.
package authclient
