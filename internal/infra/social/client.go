// Package social implements the provider publishing adapters. One client
// variant exists per supported platform (Twitter/X, Facebook, LinkedIn,
// Bluesky), all behind the ProviderClient interface; a factory selects the
// variant from the channel's declared provider kind.
//
// Each client owns its channel's session exclusively. Tokens are never held
// in package-level state; they live in the client instance and are persisted
// through the credential store whenever they rotate.
package social

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"socialpub/internal/domain/entity"
	"socialpub/internal/infra/credstore"
	"socialpub/internal/infra/linkpreview"
)

// apiTimeout is the request budget for provider API calls.
const apiTimeout = 15 * time.Second

// ProviderClient is the polymorphic publishing adapter for one channel.
//
// Lifecycle: Configure loads the channel's credentials, Create establishes
// (or refreshes) the authenticated session, then SendPost/DeletePost/
// ListPosts operate against the platform. The three error queries classify
// any error returned by those operations for the caller's retry scheduler.
type ProviderClient interface {
	// Configure loads the channel's credentials from the credential store.
	Configure() error

	// Create establishes an authenticated session, refreshing or creating
	// it as the provider requires. It reports whether a session is active.
	Create(ctx context.Context) (bool, error)

	// Close releases transport resources held by the client.
	Close()

	// Name returns the provider name for logging.
	Name() string

	// SendPost publishes the text and returns the resulting post keyed by
	// the server-assigned content identifier. It requires an active session.
	SendPost(ctx context.Context, text string) (*entity.Post, error)

	// DeletePost removes the post with the given id. Deleting an id the
	// provider reports as not found yields an AlreadyGone outcome with a
	// stub post, not an error, for providers whose contract defines this.
	DeletePost(ctx context.Context, id string) (entity.DeleteOutcome, error)

	// ListPosts returns the channel's recent posts.
	ListPosts(ctx context.Context) ([]entity.Post, error)

	// IsRecoverable classifies err for the external retry scheduler.
	IsRecoverable(err error) bool

	// ErrorCode extracts the platform's numeric error code from err.
	ErrorCode(err error) int

	// ErrorMessage extracts the platform's error message from err.
	ErrorMessage(err error) string
}

// Deps bundles the collaborators shared by all client variants.
type Deps struct {
	// Store supplies and persists channel credentials
	Store *credstore.Store

	// Preview crawls linked pages for providers that embed link previews
	Preview *linkpreview.Fetcher

	// HTTPClient overrides the default API client, mainly for tests
	HTTPClient *http.Client
}

func (d Deps) httpClient() *http.Client {
	if d.HTTPClient != nil {
		return d.HTTPClient
	}
	return &http.Client{Timeout: apiTimeout}
}

// NewClient constructs the provider client variant matching the channel's
// declared provider kind.
func NewClient(channel *entity.Channel, deps Deps) (ProviderClient, error) {
	if err := channel.Validate(); err != nil {
		return nil, fmt.Errorf("invalid channel: %w", err)
	}

	switch channel.Provider {
	case entity.ProviderBluesky:
		return NewBlueskyClient(channel, deps), nil
	case entity.ProviderTwitter:
		return NewTwitterClient(channel, deps), nil
	case entity.ProviderFacebook:
		return NewFacebookClient(channel, deps), nil
	case entity.ProviderLinkedIn:
		return NewLinkedInClient(channel, deps), nil
	default:
		return nil, fmt.Errorf("no client for provider kind %q", channel.Provider)
	}
}
