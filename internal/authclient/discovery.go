package authclient

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/sync/singleflight"

	"sessionguard/pkg/logging"
)

// Endpoints are the authorization server URLs used by ImplicitClient.
type Endpoints struct {
	Authorization string
	Revocation    string
}

// Discovery resolves endpoints and ID token verification keys from an OIDC
// issuer. The provider document is fetched once; concurrent callers share
// a single fetch.
type Discovery struct {
	issuer     string
	httpClient *http.Client

	group    singleflight.Group
	mu       sync.RWMutex
	provider *oidc.Provider
}

// NewDiscovery creates a Discovery for issuer. A nil httpClient uses
// http.DefaultClient.
func NewDiscovery(issuer string, httpClient *http.Client) *Discovery {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Discovery{
		issuer:     strings.TrimSuffix(issuer, "/"),
		httpClient: httpClient,
	}
}

// Provider returns the issuer's OIDC provider, fetching it on first use.
func (d *Discovery) Provider(ctx context.Context) (*oidc.Provider, error) {
	d.mu.RLock()
	provider := d.provider
	d.mu.RUnlock()
	if provider != nil {
		return provider, nil
	}

	result, err, _ := d.group.Do(d.issuer, func() (interface{}, error) {
		d.mu.RLock()
		cached := d.provider
		d.mu.RUnlock()
		if cached != nil {
			return cached, nil
		}

		logging.Debug("AuthClient", "Discovering OIDC provider at %s", d.issuer)
		p, err := oidc.NewProvider(oidc.ClientContext(ctx, d.httpClient), d.issuer)
		if err != nil {
			return nil, fmt.Errorf("failed to discover issuer %s: %w", d.issuer, err)
		}

		d.mu.Lock()
		d.provider = p
		d.mu.Unlock()
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*oidc.Provider), nil
}

// Endpoints returns the authorization and revocation endpoints advertised
// by the issuer. Revocation is empty when the issuer does not advertise one.
func (d *Discovery) Endpoints(ctx context.Context) (Endpoints, error) {
	p, err := d.Provider(ctx)
	if err != nil {
		return Endpoints{}, err
	}

	var extra struct {
		Revocation string `json:"revocation_endpoint"`
	}
	if err := p.Claims(&extra); err != nil {
		return Endpoints{}, fmt.Errorf("failed to decode provider metadata: %w", err)
	}
	return Endpoints{
		Authorization: p.Endpoint().AuthURL,
		Revocation:    extra.Revocation,
	}, nil
}

// Verifier returns an ID token verifier for clientID backed by the
// issuer's published keys.
func (d *Discovery) Verifier(ctx context.Context, clientID string) (*oidc.IDTokenVerifier, error) {
	p, err := d.Provider(ctx)
	if err != nil {
		return nil, err
	}
	return p.Verifier(&oidc.Config{ClientID: clientID}), nil
}
