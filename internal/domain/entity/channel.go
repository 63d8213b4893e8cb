// Package entity defines the core domain entities for the publishing layer.
// It contains the fundamental business objects such as Channel, Post, Session
// and Facet, along with their validation rules and domain-specific errors.
package entity

// ProviderKind identifies which social platform a channel publishes to.
type ProviderKind string

const (
	ProviderTwitter  ProviderKind = "twitter"
	ProviderFacebook ProviderKind = "facebook"
	ProviderLinkedIn ProviderKind = "linkedin"
	ProviderBluesky  ProviderKind = "bluesky"
)

// Valid reports whether the provider kind is one of the supported platforms.
func (k ProviderKind) Valid() bool {
	switch k {
	case ProviderTwitter, ProviderFacebook, ProviderLinkedIn, ProviderBluesky:
		return true
	}
	return false
}

// Channel represents one configured destination account.
// It is immutable once loaded; the caller owns it and passes it by reference
// into every provider client operation.
type Channel struct {
	// Provider selects the client variant used to publish to this channel
	Provider ProviderKind

	// Code is the channel identifier, also used to locate its credential file
	Code string

	// Name is the human-readable display name
	Name string
}

// Validate checks that the channel carries everything needed to construct
// a provider client for it.
func (c *Channel) Validate() error {
	if !c.Provider.Valid() {
		return &ValidationError{Field: "provider", Message: "unknown provider kind: " + string(c.Provider)}
	}
	if c.Code == "" {
		return &ValidationError{Field: "code", Message: "channel code must not be empty"}
	}
	return nil
}
