// Package guard provides an http.RoundTripper that attaches the session's
// bearer token to every request and recovers requests rejected with
// 401 Unauthorized because the shared token expired mid-flight.
//
// A rejected request is parked until the session broadcasts a renewal,
// then resubmitted exactly once with the fresh token. All requests
// rejected during one renewal window share a single silent refresh. If no
// renewal arrives within the renewal deadline the session is expired and
// the request fails with a *session.AuthError.
//
//	client := guard.NewClient(coordinator, guard.Options{})
//	resp, err := client.Get(apiURL + "/orders")
//	if errors.Is(err, session.ErrNotAuthenticated) {
//	    // start the login flow
//	}
package guard
