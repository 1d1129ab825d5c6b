// Package session resolves the Steam identity of an incoming request. The
// OpenID handshake and cookie management live in an external collaborator;
// this package only answers "current Steam identity or none".
package session

import "net/http"

// Resolver extracts the authenticated Steam identity from a request. An empty
// string means unauthenticated.
type Resolver interface {
	SteamID(r *http.Request) string
}

// HeaderResolver trusts an identity header set by the authenticating proxy in
// front of this service.
type HeaderResolver struct {
	Header string
}

// NewHeaderResolver creates a resolver reading the given header, defaulting to
// X-Steam-ID
func NewHeaderResolver(header string) *HeaderResolver {
	if header == "" {
		header = "X-Steam-ID"
	}
	return &HeaderResolver{Header: header}
}

// SteamID returns the identity carried by the request, or empty
func (h *HeaderResolver) SteamID(r *http.Request) string {
	return r.Header.Get(h.Header)
}
