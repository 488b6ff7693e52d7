package authclient

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"sessionguard/pkg/logging"
)

// DefaultCallbackPort is the default port for the local callback server.
const DefaultCallbackPort = 3000

// CallbackTimeout is how long the CLI waits for the login redirect.
const CallbackTimeout = 10 * time.Minute

// The implicit grant returns the token in the URL fragment, which browsers
// never send to the server. The relay page reads the fragment and replays
// it to /callback/token as a query string.
var relayPage = template.Must(template.New("relay").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>Signing in</title></head>
<body><p>Completing sign-in...</p>
<script>
var params = window.location.hash ? window.location.hash.substring(1) : window.location.search.substring(1);
window.location.replace("{{.}}?" + params);
</script></body></html>`))

var resultPage = template.Must(template.New("result").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>{{if .Error}}Sign-in failed{{else}}Signed in{{end}}</title></head>
<body>{{if .Error}}<h1>Sign-in failed</h1><p>{{.Error}}{{if .Description}}: {{.Description}}{{end}}</p>
{{else}}<h1>Signed in</h1><p>You can close this window and return to the terminal.</p>{{end}}</body></html>`))

// CallbackServer is a temporary local HTTP server that receives a single
// login redirect.
type CallbackServer struct {
	port      int
	server    *http.Server
	listener  net.Listener
	resultCh  chan *url.URL
	errorCh   chan error
	once      sync.Once
	serverURL string
}

// NewCallbackServer creates a callback server on port. Port 0 means
// DefaultCallbackPort; a negative port picks a free one.
func NewCallbackServer(port int) *CallbackServer {
	if port == 0 {
		port = DefaultCallbackPort
	}
	if port < 0 {
		port = 0
	}
	return &CallbackServer{
		port:     port,
		resultCh: make(chan *url.URL, 1),
		errorCh:  make(chan error, 1),
	}
}

// Start listens on localhost and returns the redirect URL to register with
// the authorization request. The server stops when ctx is cancelled.
func (s *CallbackServer) Start(ctx context.Context) (string, error) {
	addr := fmt.Sprintf("127.0.0.1:%d", s.port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("failed to start callback server on %s: %w", addr, err)
	}

	s.listener = listener
	s.port = listener.Addr().(*net.TCPAddr).Port
	s.serverURL = fmt.Sprintf("http://localhost:%d", s.port)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", s.handleRelay)
	mux.HandleFunc("/callback/token", s.handleToken)

	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case s.errorCh <- err:
			default:
			}
		}
	}()
	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	logging.Debug("AuthClient", "Callback server listening on %s", s.serverURL)
	return s.RedirectURL(), nil
}

// WaitForCallback blocks until the redirect arrives and returns it as a
// URL whose query holds the authorization response.
func (s *CallbackServer) WaitForCallback(ctx context.Context) (*url.URL, error) {
	select {
	case result := <-s.resultCh:
		return result, nil
	case err := <-s.errorCh:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func setSecurityHeaders(w http.ResponseWriter) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
}

func (s *CallbackServer) handleRelay(w http.ResponseWriter, r *http.Request) {
	setSecurityHeaders(w)
	if err := relayPage.Execute(w, "/callback/token"); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

func (s *CallbackServer) handleToken(w http.ResponseWriter, r *http.Request) {
	var handled bool
	s.once.Do(func() {
		handled = true
		s.processToken(w, r)
	})
	if !handled {
		http.Error(w, "Callback already processed", http.StatusBadRequest)
	}
}

func (s *CallbackServer) processToken(w http.ResponseWriter, r *http.Request) {
	setSecurityHeaders(w)

	query := r.URL.Query()
	data := map[string]string{
		"Error":       query.Get("error"),
		"Description": query.Get("error_description"),
	}
	if err := resultPage.Execute(w, data); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}

	result := &url.URL{
		Scheme:   "http",
		Host:     r.Host,
		Path:     r.URL.Path,
		RawQuery: r.URL.RawQuery,
	}
	select {
	case s.resultCh <- result:
	default:
	}

	go func() {
		time.Sleep(time.Second)
		s.Stop()
	}()
}

// Stop shuts the server down.
func (s *CallbackServer) Stop() {
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(ctx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
}

// RedirectURL returns the URL the authorization server redirects to.
func (s *CallbackServer) RedirectURL() string {
	return s.serverURL + "/callback"
}

// Port returns the port the server listens on.
func (s *CallbackServer) Port() int {
	return s.port
}
