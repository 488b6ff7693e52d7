package authclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"sessionguard/pkg/logging"
)

// Prompt values sent with the authorization request.
const (
	PromptLogin = "login"
	PromptNone  = "none"
)

// DefaultSilentRefreshTimeout bounds a silent refresh when none is
// configured.
const DefaultSilentRefreshTimeout = 10 * time.Second

// DefaultHTTPTimeout is the timeout for revoke requests.
const DefaultHTTPTimeout = 30 * time.Second

// Options configures an ImplicitClient.
type Options struct {
	// ClientID is the OAuth client identifier. Required.
	ClientID string

	// Endpoints are the authorization server URLs. Authorization is
	// required; an empty Revocation makes Revoke a no-op.
	Endpoints Endpoints

	// RedirectURL is where the authorization server sends the user back.
	RedirectURL string

	// Scopes requested. Defaults to "openid".
	Scopes []string

	// SilentRefreshTimeout bounds one silent refresh.
	SilentRefreshTimeout time.Duration

	// HTTPClient is used for revocation and as the base transport of
	// silent refresh.
	HTTPClient *http.Client

	// Jar holds the authorization server session cookies used by silent
	// refresh. A fresh in-memory jar is used when nil.
	Jar http.CookieJar

	// Navigator is used by Login. Defaults to OpenBrowser.
	Navigator Navigator

	// Verifier, if set, verifies every ID token including its nonce.
	Verifier *oidc.IDTokenVerifier
}

type authRequest struct {
	state string
	nonce string
}

// ImplicitClient obtains tokens from an authorization endpoint with the
// implicit grant. It is safe for concurrent use.
type ImplicitClient struct {
	opts         Options
	oauth        *oauth2.Config
	httpClient   *http.Client
	silentClient *http.Client

	mu        sync.Mutex
	onRenewal func(uint64, *TokenResponse, error)
	login     *authRequest
}

// NewImplicitClient creates an ImplicitClient.
func NewImplicitClient(opts Options) (*ImplicitClient, error) {
	if opts.ClientID == "" {
		return nil, errors.New("client id is required")
	}
	if opts.Endpoints.Authorization == "" {
		return nil, errors.New("authorization endpoint is required")
	}
	if len(opts.Scopes) == 0 {
		opts.Scopes = []string{oidc.ScopeOpenID}
	}
	if opts.SilentRefreshTimeout <= 0 {
		opts.SilentRefreshTimeout = DefaultSilentRefreshTimeout
	}
	if opts.Navigator == nil {
		opts.Navigator = OpenBrowser
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	jar := opts.Jar
	if jar == nil {
		var err error
		if jar, err = cookiejar.New(nil); err != nil {
			return nil, fmt.Errorf("failed to create cookie jar: %w", err)
		}
	}

	return &ImplicitClient{
		opts: opts,
		oauth: &oauth2.Config{
			ClientID:    opts.ClientID,
			RedirectURL: opts.RedirectURL,
			Scopes:      opts.Scopes,
			Endpoint:    oauth2.Endpoint{AuthURL: opts.Endpoints.Authorization},
		},
		httpClient: httpClient,
		silentClient: &http.Client{
			Transport: httpClient.Transport,
			Jar:       jar,
			Timeout:   opts.SilentRefreshTimeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}, nil
}

// authorizeURL builds an implicit-grant authorization URL with the given
// prompt and returns it together with the state and nonce it carries.
func (c *ImplicitClient) authorizeURL(prompt string) (string, authRequest) {
	req := authRequest{state: uuid.NewString(), nonce: uuid.NewString()}
	authURL := c.oauth.AuthCodeURL(req.state,
		oauth2.SetAuthURLParam("response_type", "token"),
		oauth2.SetAuthURLParam("prompt", prompt),
		oauth2.SetAuthURLParam("nonce", req.nonce),
	)
	return authURL, req
}

// LoginURL returns the interactive login URL and remembers its state for
// CompleteCallback. Each call supersedes the previous one.
func (c *ImplicitClient) LoginURL() string {
	authURL, req := c.authorizeURL(PromptLogin)

	c.mu.Lock()
	c.login = &req
	c.mu.Unlock()
	return authURL
}

// Login navigates to the interactive login URL. The session is completed
// later by CompleteCallback.
func (c *ImplicitClient) Login(ctx context.Context) error {
	authURL := c.LoginURL()
	logging.Info("AuthClient", "Navigating to authorization endpoint")
	if err := c.opts.Navigator(authURL); err != nil {
		return fmt.Errorf("failed to navigate to login: %w", err)
	}
	return nil
}

// CompleteCallback parses the redirect that ends an interactive login and
// checks it against the pending login request.
func (c *ImplicitClient) CompleteCallback(ctx context.Context, location *url.URL) (*TokenResponse, error) {
	c.mu.Lock()
	pending := c.login
	c.login = nil
	c.mu.Unlock()

	values, err := ResponseValues(location)
	if err != nil {
		return nil, err
	}
	resp, err := ParseTokenResponse(values)
	if err != nil {
		return nil, err
	}
	if pending == nil || resp.State != pending.state {
		logging.Audit("login_state_mismatch")
		return nil, ErrStateMismatch
	}
	if err := c.verifyIDToken(ctx, resp.IDToken, pending.nonce); err != nil {
		return nil, err
	}
	return resp, nil
}

// OnRenewal sets the callback that receives SilentRefresh results.
func (c *ImplicitClient) OnRenewal(fn func(cycle uint64, resp *TokenResponse, err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onRenewal = fn
}

// SilentRefresh starts a renewal in the background and returns at once.
// The result goes to the OnRenewal callback together with cycle, which
// the client does not interpret.
func (c *ImplicitClient) SilentRefresh(cycle uint64) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.opts.SilentRefreshTimeout)
		defer cancel()

		resp, err := c.silentAuthorize(ctx)

		c.mu.Lock()
		fn := c.onRenewal
		c.mu.Unlock()
		if fn != nil {
			fn(cycle, resp, err)
		}
	}()
}

func (c *ImplicitClient) silentAuthorize(ctx context.Context) (*TokenResponse, error) {
	authURL, req := c.authorizeURL(PromptNone)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, authURL, nil)
	if err != nil {
		return nil, err
	}
	httpResp, err := c.silentClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("silent refresh request failed: %w", err)
	}
	defer httpResp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(httpResp.Body, 64<<10))

	if httpResp.StatusCode < 300 || httpResp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: authorization endpoint answered %d instead of redirecting",
			ErrInteractionRequired, httpResp.StatusCode)
	}
	location, err := httpResp.Location()
	if err != nil {
		return nil, fmt.Errorf("invalid redirect from authorization endpoint: %w", err)
	}
	values, err := ResponseValues(location)
	if err != nil {
		return nil, err
	}
	resp, err := ParseTokenResponse(values)
	if err != nil {
		return nil, err
	}
	if resp.State != req.state {
		logging.Audit("renewal_state_mismatch")
		return nil, ErrStateMismatch
	}
	if err := c.verifyIDToken(ctx, resp.IDToken, req.nonce); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *ImplicitClient) verifyIDToken(ctx context.Context, raw, nonce string) error {
	if c.opts.Verifier == nil || raw == "" {
		return nil
	}
	idToken, err := c.opts.Verifier.Verify(ctx, raw)
	if err != nil {
		return fmt.Errorf("id token verification failed: %w", err)
	}
	if idToken.Nonce != nonce {
		return errors.New("id token nonce mismatch")
	}
	return nil
}

// Revoke asks the authorization server to invalidate accessToken.
func (c *ImplicitClient) Revoke(ctx context.Context, accessToken string) error {
	if c.opts.Endpoints.Revocation == "" {
		logging.Debug("AuthClient", "No revocation endpoint configured, skipping revoke")
		return nil
	}

	form := url.Values{
		"token":           {accessToken},
		"token_type_hint": {"access_token"},
		"client_id":       {c.opts.ClientID},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.Endpoints.Revocation, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRevokeFailed, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRevokeFailed, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d", ErrRevokeFailed, resp.StatusCode)
	}
	return nil
}
