package entity

// Session is the live authenticated handle derived from a channel's
// credentials. It is owned exclusively by the provider client instance that
// created it; it is never shared across channels or stored globally.
type Session struct {
	// AccessToken is the bearer value presented on each authenticated call
	AccessToken string

	// RefreshToken rotates the access token when it expires
	RefreshToken string

	// DID is the account's decentralized identifier (AT-protocol providers)
	DID string

	// Handle is the account handle resolved at session creation
	Handle string
}

// Active reports whether the session holds a usable bearer value.
func (s *Session) Active() bool {
	return s != nil && s.AccessToken != ""
}

// Clear invalidates the session after the provider reports the token
// expired or revoked.
func (s *Session) Clear() {
	s.AccessToken = ""
	s.RefreshToken = ""
}
