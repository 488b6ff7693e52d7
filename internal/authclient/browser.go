package authclient

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// Navigator sends the user to url. Login uses it to leave the application
// for the authorization endpoint.
type Navigator func(url string) error

// ErrNoBrowser is returned when no browser command is known for the
// platform and $BROWSER is unset.
var ErrNoBrowser = errors.New("no browser available")

// OpenBrowser opens loginURL with the command from $BROWSER, or with the
// platform's URL handler. Only http and https URLs are opened.
func OpenBrowser(loginURL string) error {
	name, args, err := browserCommand(runtime.GOOS, os.Getenv("BROWSER"), loginURL)
	if err != nil {
		return err
	}

	// #nosec G204 -- the command comes from $BROWSER or a fixed table and
	// the URL was checked to be http(s).
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", name, err)
	}
	go func() { _ = cmd.Wait() }()
	return nil
}

// browserCommand resolves the command line that opens loginURL. browserEnv
// follows the $BROWSER convention: a colon separated list whose first
// entry wins, with "%s" replaced by the URL when present.
func browserCommand(goos, browserEnv, loginURL string) (string, []string, error) {
	u, err := url.Parse(loginURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "", nil, fmt.Errorf("refusing to open non-http URL %q", loginURL)
	}

	if first, _, _ := strings.Cut(browserEnv, ":"); strings.TrimSpace(first) != "" {
		fields := strings.Fields(first)
		substituted := false
		for i, f := range fields[1:] {
			if strings.Contains(f, "%s") {
				fields[i+1] = strings.ReplaceAll(f, "%s", loginURL)
				substituted = true
			}
		}
		if !substituted {
			fields = append(fields, loginURL)
		}
		return fields[0], fields[1:], nil
	}

	switch goos {
	case "linux", "freebsd", "openbsd", "netbsd":
		return "xdg-open", []string{loginURL}, nil
	case "darwin":
		return "open", []string{loginURL}, nil
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", loginURL}, nil
	default:
		return "", nil, fmt.Errorf("%w on %s", ErrNoBrowser, goos)
	}
}

// PrintNavigator writes the login URL to w for the user to open by hand.
func PrintNavigator(w io.Writer) Navigator {
	return func(loginURL string) error {
		_, err := fmt.Fprintf(w, "Open this URL to log in:\n\n  %s\n\n", loginURL)
		return err
	}
}

// BrowserNavigator tries OpenBrowser and falls back to printing the URL
// to w when no browser could be started.
func BrowserNavigator(w io.Writer) Navigator {
	return fallbackNavigator(OpenBrowser, w)
}

func fallbackNavigator(open Navigator, w io.Writer) Navigator {
	printURL := PrintNavigator(w)
	return func(loginURL string) error {
		if err := open(loginURL); err != nil {
			return printURL(loginURL)
		}
		_, err := fmt.Fprintln(w, "Opening browser for login...")
		return err
	}
}
