package social

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"socialpub/internal/domain/entity"
	"socialpub/internal/observability/metrics"
)

const defaultTwitterBaseURL = "https://api.twitter.com"

// TwitterClient publishes short posts to a Twitter/X account. Posts are
// plain text; the platform renders its own link cards, so no facet or
// preview work happens here.
type TwitterClient struct {
	// BaseURL points at the API host; overridable for tests
	BaseURL string

	channel *entity.Channel
	deps    Deps
	http    *http.Client
	limiter *RateLimiter
	creds   *entity.Credentials
	manager *sessionManager
}

// NewTwitterClient creates the Twitter provider client for one channel.
func NewTwitterClient(channel *entity.Channel, deps Deps) *TwitterClient {
	c := &TwitterClient{
		BaseURL: defaultTwitterBaseURL,
		channel: channel,
		deps:    deps,
		http:    deps.httpClient(),
		limiter: NewRateLimiter(1.0, 1),
	}
	// OAuth2 access tokens are short-lived, so the stored one is never
	// adopted blindly; Create rotates through the refresh exchange whenever
	// a refresh token is on file.
	c.manager = newSessionManager(entity.ProviderTwitter, channel, deps.Store, sessionFuncs{
		refresh: c.refreshToken,
	})
	return c
}

// Name returns the provider name.
func (c *TwitterClient) Name() string { return string(entity.ProviderTwitter) }

// Configure loads the channel's credentials from the credential store.
func (c *TwitterClient) Configure() error {
	creds, err := c.deps.Store.Load(c.channel.Code)
	if err != nil {
		return err
	}
	c.creds = creds
	c.manager.creds = creds
	return nil
}

// Create establishes a session, rotating the tokens through the refresh
// exchange when a refresh token is stored and falling back to the stored
// access token otherwise.
func (c *TwitterClient) Create(ctx context.Context) (bool, error) {
	return c.manager.Create(ctx)
}

// Close releases idle transport connections.
func (c *TwitterClient) Close() {
	c.http.CloseIdleConnections()
}

// refreshToken rotates the OAuth2 tokens.
func (c *TwitterClient) refreshToken(ctx context.Context) (*entity.Session, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {c.creds.RefreshToken},
		"client_id":     {c.creds.AppID},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/2/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &AuthError{Provider: entity.ProviderTwitter, Message: "refresh exchange failed", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &AuthError{Provider: entity.ProviderTwitter, Message: "read refresh response", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		var payload struct {
			Error            string `json:"error"`
			ErrorDescription string `json:"error_description"`
		}
		pErr := &PlatformError{
			Provider:   entity.ProviderTwitter,
			StatusCode: resp.StatusCode,
			Body:       string(raw),
		}
		if jsonErr := json.Unmarshal(raw, &payload); jsonErr == nil {
			pErr.Kind = payload.Error
			pErr.Message = payload.ErrorDescription
		}
		if pErr.Message == "" {
			pErr.Message = string(raw)
		}
		return nil, pErr
	}

	var payload struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, &AuthError{Provider: entity.ProviderTwitter, Message: "malformed refresh response", Err: err}
	}
	if payload.AccessToken == "" {
		return nil, &AuthError{Provider: entity.ProviderTwitter, Message: "refresh returned no access token"}
	}

	return &entity.Session{
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
	}, nil
}

// SendPost publishes the text as a tweet and returns the post keyed by the
// tweet id.
func (c *TwitterClient) SendPost(ctx context.Context, text string) (*entity.Post, error) {
	start := time.Now()

	post, err := c.sendPost(ctx, text)

	metrics.RecordPostPublished(c.Name(), err == nil)
	metrics.RecordPublishDuration(c.Name(), time.Since(start))
	if err != nil {
		slog.Error("tweet publish failed",
			slog.String("channel", c.channel.Code),
			slog.Any("error", err))
		return nil, err
	}
	slog.Info("tweet published",
		slog.String("channel", c.channel.Code),
		slog.String("post_id", post.ID))
	return post, nil
}

func (c *TwitterClient) sendPost(ctx context.Context, text string) (*entity.Post, error) {
	if !c.manager.Active() {
		return nil, entity.ErrNoSession
	}

	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, fmt.Errorf("marshal tweet: %w", err)
	}

	var resp struct {
		Data struct {
			ID   string `json:"id"`
			Text string `json:"text"`
		} `json:"data"`
	}
	if err := c.api(ctx, http.MethodPost, "/2/tweets", body, &resp); err != nil {
		return nil, err
	}

	return &entity.Post{
		ID:          resp.Data.ID,
		ChannelCode: c.channel.Code,
		Text:        text,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// DeletePost removes the tweet. A 404 yields an AlreadyGone outcome with a
// stub post instead of an error.
func (c *TwitterClient) DeletePost(ctx context.Context, id string) (entity.DeleteOutcome, error) {
	if !c.manager.Active() {
		return entity.DeleteOutcome{}, entity.ErrNoSession
	}

	if err := c.api(ctx, http.MethodDelete, "/2/tweets/"+id, nil, nil); err != nil {
		if pErr, ok := asPlatformError(err); ok && pErr.StatusCode == http.StatusNotFound {
			return entity.DeleteOutcome{
				Status: entity.DeleteStatusAlreadyGone,
				Post:   &entity.Post{ID: id, ChannelCode: c.channel.Code},
			}, nil
		}
		return entity.DeleteOutcome{}, err
	}

	return entity.DeleteOutcome{
		Status: entity.DeleteStatusDeleted,
		Post:   &entity.Post{ID: id, ChannelCode: c.channel.Code},
	}, nil
}

// ListPosts returns the account's recent tweets.
func (c *TwitterClient) ListPosts(ctx context.Context) ([]entity.Post, error) {
	if !c.manager.Active() {
		return nil, entity.ErrNoSession
	}

	var resp struct {
		Data []struct {
			ID        string    `json:"id"`
			Text      string    `json:"text"`
			CreatedAt time.Time `json:"created_at"`
		} `json:"data"`
	}
	if err := c.api(ctx, http.MethodGet, "/2/users/"+c.creds.AccountID+"/tweets", nil, &resp); err != nil {
		return nil, err
	}

	posts := make([]entity.Post, 0, len(resp.Data))
	for _, tw := range resp.Data {
		posts = append(posts, entity.Post{
			ID:          tw.ID,
			ChannelCode: c.channel.Code,
			Text:        tw.Text,
			CreatedAt:   tw.CreatedAt,
		})
	}
	return posts, nil
}

// IsRecoverable classifies err for the external retry scheduler.
func (c *TwitterClient) IsRecoverable(err error) bool { return twitterRecoverable(err) }

// ErrorCode extracts the platform's numeric error code.
func (c *TwitterClient) ErrorCode(err error) int { return errorCode(err, false) }

// ErrorMessage extracts the platform's error message.
func (c *TwitterClient) ErrorMessage(err error) string { return errorMessage(err) }

// api performs one authenticated API round trip.
func (c *TwitterClient) api(ctx context.Context, method, path string, body []byte, out interface{}) error {
	if err := c.limiter.Allow(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.manager.session.AccessToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return twitterPlatformError(resp.StatusCode, raw)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("malformed response body for %s: %w", path, err)
	}
	return nil
}

// twitterPlatformError decodes both the legacy errors array and the v2
// problem-details shape.
func twitterPlatformError(status int, raw []byte) *PlatformError {
	pErr := &PlatformError{
		Provider:   entity.ProviderTwitter,
		StatusCode: status,
		Body:       string(raw),
	}

	var legacy struct {
		Errors []struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(raw, &legacy); err == nil && len(legacy.Errors) > 0 {
		pErr.Code = legacy.Errors[0].Code
		pErr.Message = legacy.Errors[0].Message
		return pErr
	}

	var problem struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(raw, &problem); err == nil && problem.Detail != "" {
		pErr.Kind = problem.Title
		pErr.Message = problem.Detail
		return pErr
	}

	pErr.Message = string(raw)
	return pErr
}
