package authclient

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is the display information carried by an ID token.
type Identity struct {
	Subject   string
	Issuer    string
	Email     string
	Name      string
	ExpiresAt time.Time
}

type identityClaims struct {
	Email             string `json:"email"`
	Name              string `json:"name"`
	PreferredUsername string `json:"preferred_username"`
	jwt.RegisteredClaims
}

// ParseIdentity reads the claims of idToken WITHOUT verifying its
// signature. The result is for display only and must not be used for
// authorization decisions.
func ParseIdentity(idToken string) (*Identity, error) {
	var claims identityClaims
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, &claims); err != nil {
		return nil, fmt.Errorf("failed to parse id token: %w", err)
	}

	id := &Identity{
		Subject: claims.Subject,
		Issuer:  claims.Issuer,
		Email:   claims.Email,
		Name:    claims.Name,
	}
	if id.Name == "" {
		id.Name = claims.PreferredUsername
	}
	if claims.ExpiresAt != nil {
		id.ExpiresAt = claims.ExpiresAt.Time
	}
	return id, nil
}
