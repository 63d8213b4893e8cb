package social

import (
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

const defaultFacebookBaseURL = "https://graph.facebook.com/v19.0"

// FacebookClient publishes to a Facebook page feed through the Graph API.
// The page access token is long-lived; refresh exchanges it for a new
// long-lived token before it expires.
type FacebookClient struct {
	// BaseURL points at the Graph API host; overridable for tests
	BaseURL string

	channel *entity.Channel
	deps    Deps
	http    *http.Client
	limiter *RateLimiter
	creds   *entity.Credentials
	manager *sessionManager
}

// NewFacebookClient creates the Facebook provider client for one channel.
func NewFacebookClient(channel *entity.Channel, deps Deps) *FacebookClient {
	c := &FacebookClient{
		BaseURL: defaultFacebookBaseURL,
		channel: channel,
		deps:    deps,
		http:    deps.httpClient(),
		limiter: NewRateLimiter(1.0, 1),
	}
	c.manager = newSessionManager(entity.ProviderFacebook, channel, deps.Store, sessionFuncs{
		refresh:     c.exchangeToken,
		adoptStored: true,
	})
	return c
}

// Name returns the provider name.
func (c *FacebookClient) Name() string { return string(entity.ProviderFacebook) }

// Configure loads the channel's credentials from the credential store.
func (c *FacebookClient) Configure() error {
	creds, err := c.deps.Store.Load(c.channel.Code)
	if err != nil {
		return err
	}
	c.creds = creds
	c.manager.creds = creds
	return nil
}

// Create establishes a session from the stored page token.
func (c *FacebookClient) Create(ctx context.Context) (bool, error) {
	return c.manager.Create(ctx)
}

// Close releases idle transport connections.
func (c *FacebookClient) Close() {
	c.http.CloseIdleConnections()
}

// exchangeToken trades the current long-lived token for a fresh one.
// The Graph API has no separate refresh token; the access token itself is
// exchanged, so the manager stores it as both bearer and refresh value.
func (c *FacebookClient) exchangeToken(ctx context.Context) (*entity.Session, error) {
	query := url.Values{
		"grant_type":        {"fb_exchange_token"},
		"client_id":         {c.creds.AppID},
		"client_secret":     {c.creds.AppSecret},
		"fb_exchange_token": {c.creds.RefreshToken},
	}

	var resp struct {
		AccessToken string `json:"access_token"`
	}
	if err := c.api(ctx, http.MethodGet, "/oauth/access_token?"+query.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, &AuthError{Provider: entity.ProviderFacebook, Message: "token exchange returned no access token"}
	}

	return &entity.Session{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.AccessToken,
	}, nil
}

// SendPost publishes the text to the page feed. The first URL in the text,
// when present, is attached as the post's link so the platform renders its
// preview card.
func (c *FacebookClient) SendPost(ctx context.Context, text string) (*entity.Post, error) {
	start := time.Now()

	post, err := c.sendPost(ctx, text)

	metrics.RecordPostPublished(c.Name(), err == nil)
	metrics.RecordPublishDuration(c.Name(), time.Since(start))
	if err != nil {
		slog.Error("page post publish failed",
			slog.String("channel", c.channel.Code),
			slog.Any("error", err))
		return nil, err
	}
	slog.Info("page post published",
		slog.String("channel", c.channel.Code),
		slog.String("post_id", post.ID))
	return post, nil
}

func (c *FacebookClient) sendPost(ctx context.Context, text string) (*entity.Post, error) {
	if !c.manager.Active() {
		return nil, entity.ErrNoSession
	}

	form := url.Values{"message": {text}}
	if urls := entity.ExtractURLs(text); len(urls) > 0 {
		form.Set("link", urls[0])
	}

	var resp struct {
		ID string `json:"id"`
	}
	if err := c.api(ctx, http.MethodPost, "/"+c.creds.AccountID+"/feed", form, &resp); err != nil {
		return nil, err
	}

	return &entity.Post{
		ID:          resp.ID,
		ChannelCode: c.channel.Code,
		Text:        text,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// DeletePost removes the page post. Graph API delete failures propagate;
// this provider's contract does not define an idempotent not-found answer,
// its code 100 is a fatal invalid-parameter error.
func (c *FacebookClient) DeletePost(ctx context.Context, id string) (entity.DeleteOutcome, error) {
	if !c.manager.Active() {
		return entity.DeleteOutcome{}, entity.ErrNoSession
	}

	var resp struct {
		Success bool `json:"success"`
	}
	if err := c.api(ctx, http.MethodDelete, "/"+id, nil, &resp); err != nil {
		return entity.DeleteOutcome{}, err
	}

	return entity.DeleteOutcome{
		Status: entity.DeleteStatusDeleted,
		Post:   &entity.Post{ID: id, ChannelCode: c.channel.Code},
	}, nil
}

// ListPosts returns the page's recent posts.
func (c *FacebookClient) ListPosts(ctx context.Context) ([]entity.Post, error) {
	if !c.manager.Active() {
		return nil, entity.ErrNoSession
	}

	var resp struct {
		Data []struct {
			ID          string    `json:"id"`
			Message     string    `json:"message"`
			CreatedTime time.Time `json:"created_time"`
		} `json:"data"`
	}
	if err := c.api(ctx, http.MethodGet, "/"+c.creds.AccountID+"/posts", nil, &resp); err != nil {
		return nil, err
	}

	posts := make([]entity.Post, 0, len(resp.Data))
	for _, p := range resp.Data {
		posts = append(posts, entity.Post{
			ID:          p.ID,
			ChannelCode: c.channel.Code,
			Text:        p.Message,
			CreatedAt:   p.CreatedTime,
		})
	}
	return posts, nil
}

// IsRecoverable classifies err for the external retry scheduler.
func (c *FacebookClient) IsRecoverable(err error) bool { return facebookRecoverable(err) }

// ErrorCode extracts the platform code, falling back to the HTTP status
// (>= 400) when the payload carried none.
func (c *FacebookClient) ErrorCode(err error) int { return errorCode(err, true) }

// ErrorMessage extracts the platform's error message.
func (c *FacebookClient) ErrorMessage(err error) string { return errorMessage(err) }

// api performs one Graph API round trip. The access token rides as a query
// parameter, as the Graph API expects; form bodies are URL-encoded.
func (c *FacebookClient) api(ctx context.Context, method, path string, form url.Values, out interface{}) error {
	if err := c.limiter.Allow(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	endpoint := c.BaseURL + path
	token := c.manager.session.AccessToken
	if token == "" {
		// Token exchange calls authenticate with app id/secret instead.
		token = c.creds.AccessToken
	}
	if token != "" {
		sep := "?"
		if strings.Contains(endpoint, "?") {
			sep = "&"
		}
		endpoint += sep + "access_token=" + url.QueryEscape(token)
	}

	var reader io.Reader
	if form != nil {
		reader = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
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
		return facebookPlatformError(resp.StatusCode, raw)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("malformed response body for %s: %w", path, err)
	}
	return nil
}

// facebookPlatformError decodes the Graph API error envelope
// ({"error": {"message", "type", "code"}}).
func facebookPlatformError(status int, raw []byte) *PlatformError {
	var payload struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    int    `json:"code"`
		} `json:"error"`
	}
	pErr := &PlatformError{
		Provider:   entity.ProviderFacebook,
		StatusCode: status,
		Body:       string(raw),
	}
	if err := json.Unmarshal(raw, &payload); err == nil {
		pErr.Code = payload.Error.Code
		pErr.Kind = payload.Error.Type
		pErr.Message = payload.Error.Message
	}
	if pErr.Message == "" {
		pErr.Message = string(raw)
	}
	return pErr
}
