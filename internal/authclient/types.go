package authclient

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

var (
	// ErrRevokeFailed is returned when the revoke endpoint rejected the
	// token or could not be reached. Callers treat it as best-effort.
	ErrRevokeFailed = errors.New("token revocation failed")

	// ErrNoToken is returned when a callback carries neither a token nor
	// an error.
	ErrNoToken = errors.New("no access token in authorization response")

	// ErrStateMismatch is returned when the callback state does not match
	// the one sent in the authorization request.
	ErrStateMismatch = errors.New("state mismatch - possible CSRF attack")

	// ErrInteractionRequired is returned by a silent refresh when the
	// authorization server needs the user to log in again.
	ErrInteractionRequired = errors.New("interaction required")
)

// TokenResponse is the raw token set returned by the authorization
// endpoint, either in the redirect fragment or through the silent channel.
type TokenResponse struct {
	// AccessToken is the bearer token.
	AccessToken string

	// IDToken is the OIDC ID token, empty if none was issued.
	IDToken string

	// TokenType is typically "Bearer".
	TokenType string

	// ExpiresIn is the token lifetime in seconds. Zero if not provided.
	ExpiresIn int

	// Scope is the granted scope, space-separated.
	Scope string

	// State echoes the state parameter of the authorization request.
	State string
}

// CallbackError is an error reported by the authorization server in the
// redirect (error and error_description parameters).
type CallbackError struct {
	Code        string
	Description string
}

// Error implements the error interface.
func (e *CallbackError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("authorization failed: %s - %s", e.Code, e.Description)
	}
	return fmt.Sprintf("authorization failed: %s", e.Code)
}

// Is maps prompt=none failures onto ErrInteractionRequired.
func (e *CallbackError) Is(target error) bool {
	if target != ErrInteractionRequired {
		return false
	}
	switch e.Code {
	case "login_required", "interaction_required", "consent_required", "account_selection_required":
		return true
	}
	return false
}

// ParseTokenResponse reads an implicit-grant response from URL parameters.
func ParseTokenResponse(values url.Values) (*TokenResponse, error) {
	if code := values.Get("error"); code != "" {
		return nil, &CallbackError{Code: code, Description: values.Get("error_description")}
	}

	resp := &TokenResponse{
		AccessToken: values.Get("access_token"),
		IDToken:     values.Get("id_token"),
		TokenType:   values.Get("token_type"),
		Scope:       values.Get("scope"),
		State:       values.Get("state"),
	}
	if resp.AccessToken == "" {
		return nil, ErrNoToken
	}
	if resp.TokenType != "" && !strings.EqualFold(resp.TokenType, "bearer") {
		return nil, fmt.Errorf("unsupported token type %q", resp.TokenType)
	}
	if raw := values.Get("expires_in"); raw != "" {
		expiresIn, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid expires_in %q: %w", raw, err)
		}
		resp.ExpiresIn = expiresIn
	}
	return resp, nil
}

// ResponseValues extracts the response parameters from a redirect
// location: the fragment for the implicit grant, falling back to the query.
func ResponseValues(location *url.URL) (url.Values, error) {
	if location == nil {
		return nil, errors.New("no callback location")
	}
	if location.Fragment != "" {
		values, err := url.ParseQuery(location.EscapedFragment())
		if err != nil {
			return nil, fmt.Errorf("failed to parse callback fragment: %w", err)
		}
		return values, nil
	}
	return location.Query(), nil
}
