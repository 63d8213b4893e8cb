package social

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"socialpub/internal/domain/entity"
	"socialpub/internal/infra/credstore"
	"socialpub/internal/observability/metrics"
	"socialpub/internal/resilience/retry"
)

// sessionFuncs are the provider-specific halves of the session lifecycle.
// create exchanges long-lived credentials (password, or app id/secret plus
// verification code) for a session; refresh exchanges the refresh token for
// rotated tokens. Either may be nil when the provider has no such exchange.
type sessionFuncs struct {
	create  func(ctx context.Context) (*entity.Session, error)
	refresh func(ctx context.Context) (*entity.Session, error)

	// adoptStored marks providers whose stored access token is long-lived
	// enough to use as the bearer directly, without an exchange (Facebook
	// page tokens, LinkedIn member tokens). Providers with short-lived
	// access tokens rotate through refresh instead; AT-style providers
	// always exchange, because the session also resolves the DID.
	adoptStored bool
}

// sessionManager owns one channel's authentication lifecycle: initial
// session creation, bounded-retry refresh, expiry and revocation handling,
// and persistence of rotated tokens back to the credential store.
type sessionManager struct {
	provider entity.ProviderKind
	channel  *entity.Channel
	creds    *entity.Credentials
	store    *credstore.Store
	session  entity.Session
	retryCfg retry.Config
	funcs    sessionFuncs
}

func newSessionManager(provider entity.ProviderKind, channel *entity.Channel, store *credstore.Store, funcs sessionFuncs) *sessionManager {
	return &sessionManager{
		provider: provider,
		channel:  channel,
		store:    store,
		retryCfg: retry.SessionRefreshConfig(),
		funcs:    funcs,
	}
}

// Active reports whether a non-empty bearer value is present.
func (m *sessionManager) Active() bool {
	return m.session.Active()
}

// Create establishes a session. Long-lived-token providers adopt the stored
// access token as the bearer directly; everyone else prefers rotating
// through the refresh exchange when a refresh token is stored, so a stale
// access token is replaced before the first API call. When refresh is
// unavailable or fails short of revocation the manager falls back to the
// provider's create exchange, or as a last resort to the stored access
// token for providers that have no create exchange.
func (m *sessionManager) Create(ctx context.Context) (bool, error) {
	if m.session.Active() {
		return true, nil
	}
	if m.creds == nil {
		return false, &AuthError{Provider: m.provider, Message: "client not configured"}
	}

	if m.funcs.adoptStored && m.creds.AccessToken != "" {
		m.session = entity.Session{
			AccessToken:  m.creds.AccessToken,
			RefreshToken: m.creds.RefreshToken,
		}
		return true, nil
	}

	var refreshErr error
	if m.creds.RefreshToken != "" && m.funcs.refresh != nil {
		refreshErr = m.Refresh(ctx)
		if refreshErr == nil {
			return true, nil
		}
		if errors.Is(refreshErr, entity.ErrCredentialsRevoked) {
			return false, refreshErr
		}
	}

	if m.funcs.create == nil {
		if refreshErr != nil {
			return false, refreshErr
		}
		if m.creds.AccessToken != "" {
			m.session = entity.Session{
				AccessToken:  m.creds.AccessToken,
				RefreshToken: m.creds.RefreshToken,
			}
			return true, nil
		}
		return false, &AuthError{Provider: m.provider, Message: "no usable credentials for session creation"}
	}

	sess, err := m.funcs.create(ctx)
	if err != nil {
		return false, err
	}
	if err := m.persistRotation(sess); err != nil {
		return false, err
	}
	m.session = *sess

	slog.Info("session created",
		slog.String("provider", string(m.provider)),
		slog.String("channel", m.channel.Code))

	return true, nil
}

// Refresh exchanges the refresh token for rotated tokens under the bounded
// fixed-delay retry policy. On success the rotated tokens are persisted to
// the credential store before the new session becomes visible, so a crash
// after this call cannot lose a valid token. A revoked signal clears both
// tokens, persists the cleared state, and terminates the retry loop.
func (m *sessionManager) Refresh(ctx context.Context) error {
	var (
		rotated *entity.Session
		revoked error
	)

	err := retry.WithFixedDelay(ctx, m.retryCfg, func() error {
		sess, err := m.funcs.refresh(ctx)
		if err != nil {
			if isRevokedError(err) {
				// Terminal without new credentials; stop retrying.
				revoked = err
				return nil
			}
			return err
		}
		rotated = sess
		return nil
	})

	if revoked != nil {
		m.session.Clear()
		m.creds.ClearTokens()
		if saveErr := m.store.Save(m.channel.Code, m.creds); saveErr != nil {
			slog.Error("failed to persist cleared credentials",
				slog.String("provider", string(m.provider)),
				slog.String("channel", m.channel.Code),
				slog.Any("error", saveErr))
		}
		metrics.RecordSessionRefresh(string(m.provider), "revoked")
		return fmt.Errorf("%s refresh token revoked for channel %s: %w (%v)",
			m.provider, m.channel.Code, entity.ErrCredentialsRevoked, revoked)
	}
	if err != nil {
		metrics.RecordSessionRefresh(string(m.provider), "failure")
		return err
	}

	if err := m.persistRotation(rotated); err != nil {
		metrics.RecordSessionRefresh(string(m.provider), "failure")
		return err
	}
	m.session = *rotated
	metrics.RecordSessionRefresh(string(m.provider), "success")

	slog.Info("session refreshed",
		slog.String("provider", string(m.provider)),
		slog.String("channel", m.channel.Code))

	return nil
}

// persistRotation writes the rotated tokens into the credential object and
// saves the full object, not just the changed fields.
func (m *sessionManager) persistRotation(sess *entity.Session) error {
	m.creds.AccessToken = sess.AccessToken
	if sess.RefreshToken != "" {
		m.creds.RefreshToken = sess.RefreshToken
	}
	if err := m.store.Save(m.channel.Code, m.creds); err != nil {
		return fmt.Errorf("persist rotated tokens for channel %s: %w", m.channel.Code, err)
	}
	return nil
}
