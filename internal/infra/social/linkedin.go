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

const defaultLinkedInBaseURL = "https://api.linkedin.com"

// LinkedInClient publishes UGC posts on behalf of an organization page.
// Sessions start from the three-legged OAuth authorization code and are
// refreshed with the issued refresh token.
type LinkedInClient struct {
	// BaseURL points at the REST host; overridable for tests
	BaseURL string

	channel *entity.Channel
	deps    Deps
	http    *http.Client
	limiter *RateLimiter
	creds   *entity.Credentials
	manager *sessionManager
}

// NewLinkedInClient creates the LinkedIn provider client for one channel.
func NewLinkedInClient(channel *entity.Channel, deps Deps) *LinkedInClient {
	c := &LinkedInClient{
		BaseURL: defaultLinkedInBaseURL,
		channel: channel,
		deps:    deps,
		http:    deps.httpClient(),
		limiter: NewRateLimiter(1.0, 1),
	}
	c.manager = newSessionManager(entity.ProviderLinkedIn, channel, deps.Store, sessionFuncs{
		create:      c.createSession,
		refresh:     c.refreshSession,
		adoptStored: true,
	})
	return c
}

// Name returns the provider name.
func (c *LinkedInClient) Name() string { return string(entity.ProviderLinkedIn) }

// Configure loads the channel's credentials from the credential store.
func (c *LinkedInClient) Configure() error {
	creds, err := c.deps.Store.Load(c.channel.Code)
	if err != nil {
		return err
	}
	c.creds = creds
	c.manager.creds = creds
	return nil
}

// Create establishes a session, adopting the stored token when one exists.
func (c *LinkedInClient) Create(ctx context.Context) (bool, error) {
	return c.manager.Create(ctx)
}

// Close releases idle transport connections.
func (c *LinkedInClient) Close() {
	c.http.CloseIdleConnections()
}

// createSession exchanges the one-time authorization code for tokens.
func (c *LinkedInClient) createSession(ctx context.Context) (*entity.Session, error) {
	return c.tokenRequest(ctx, url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {c.creds.VerificationCode},
		"redirect_uri":  {c.creds.RedirectURI},
		"client_id":     {c.creds.AppID},
		"client_secret": {c.creds.AppSecret},
	})
}

// refreshSession trades the refresh token for a new token pair.
func (c *LinkedInClient) refreshSession(ctx context.Context) (*entity.Session, error) {
	return c.tokenRequest(ctx, url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {c.creds.RefreshToken},
		"client_id":     {c.creds.AppID},
		"client_secret": {c.creds.AppSecret},
	})
}

func (c *LinkedInClient) tokenRequest(ctx context.Context, form url.Values) (*entity.Session, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/oauth/v2/accessToken",
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, linkedinPlatformError(resp.StatusCode, raw)
	}

	var payload struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("malformed token response: %w", err)
	}
	if payload.AccessToken == "" {
		return nil, &AuthError{Provider: entity.ProviderLinkedIn, Message: "token endpoint returned no access token"}
	}

	return &entity.Session{
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
	}, nil
}

// SendPost publishes a UGC post authored by the configured organization.
func (c *LinkedInClient) SendPost(ctx context.Context, text string) (*entity.Post, error) {
	start := time.Now()

	post, err := c.sendPost(ctx, text)

	metrics.RecordPostPublished(c.Name(), err == nil)
	metrics.RecordPublishDuration(c.Name(), time.Since(start))
	if err != nil {
		slog.Error("ugc post publish failed",
			slog.String("channel", c.channel.Code),
			slog.Any("error", err))
		return nil, err
	}
	slog.Info("ugc post published",
		slog.String("channel", c.channel.Code),
		slog.String("post_id", post.ID))
	return post, nil
}

func (c *LinkedInClient) sendPost(ctx context.Context, text string) (*entity.Post, error) {
	if !c.manager.Active() {
		return nil, entity.ErrNoSession
	}

	body := map[string]interface{}{
		"author":         "urn:li:organization:" + c.creds.OrganizationID,
		"lifecycleState": "PUBLISHED",
		"specificContent": map[string]interface{}{
			"com.linkedin.ugc.ShareContent": map[string]interface{}{
				"shareCommentary":    map[string]string{"text": text},
				"shareMediaCategory": "NONE",
			},
		},
		"visibility": map[string]string{
			"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC",
		},
	}

	var resp struct {
		ID string `json:"id"`
	}
	if err := c.api(ctx, http.MethodPost, "/v2/ugcPosts", body, &resp); err != nil {
		return nil, err
	}

	return &entity.Post{
		ID:          resp.ID,
		ChannelCode: c.channel.Code,
		Text:        text,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// DeletePost removes the UGC post. A 404 means the post is already gone,
// which counts as success for delete.
func (c *LinkedInClient) DeletePost(ctx context.Context, id string) (entity.DeleteOutcome, error) {
	if !c.manager.Active() {
		return entity.DeleteOutcome{}, entity.ErrNoSession
	}

	err := c.api(ctx, http.MethodDelete, "/v2/ugcPosts/"+url.PathEscape(id), nil, nil)
	if err != nil {
		if pErr, ok := asPlatformError(err); ok && pErr.StatusCode == http.StatusNotFound {
			slog.Info("ugc post already deleted",
				slog.String("channel", c.channel.Code),
				slog.String("post_id", id))
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

// ListPosts returns the organization's recent UGC posts.
func (c *LinkedInClient) ListPosts(ctx context.Context) ([]entity.Post, error) {
	if !c.manager.Active() {
		return nil, entity.ErrNoSession
	}

	query := url.Values{
		"q":       {"authors"},
		"authors": {"List(urn:li:organization:" + c.creds.OrganizationID + ")"},
		"count":   {"50"},
	}

	var resp struct {
		Elements []struct {
			ID              string `json:"id"`
			SpecificContent struct {
				ShareContent struct {
					ShareCommentary struct {
						Text string `json:"text"`
					} `json:"shareCommentary"`
				} `json:"com.linkedin.ugc.ShareContent"`
			} `json:"specificContent"`
			Created struct {
				Time int64 `json:"time"`
			} `json:"created"`
		} `json:"elements"`
	}
	if err := c.api(ctx, http.MethodGet, "/v2/ugcPosts?"+query.Encode(), nil, &resp); err != nil {
		return nil, err
	}

	posts := make([]entity.Post, 0, len(resp.Elements))
	for _, el := range resp.Elements {
		posts = append(posts, entity.Post{
			ID:          el.ID,
			ChannelCode: c.channel.Code,
			Text:        el.SpecificContent.ShareContent.ShareCommentary.Text,
			CreatedAt:   time.UnixMilli(el.Created.Time).UTC(),
		})
	}
	return posts, nil
}

// IsRecoverable classifies err for the external retry scheduler.
func (c *LinkedInClient) IsRecoverable(err error) bool { return linkedinRecoverable(err) }

// ErrorCode extracts the service error code from err.
func (c *LinkedInClient) ErrorCode(err error) int { return errorCode(err, false) }

// ErrorMessage extracts the platform's error message.
func (c *LinkedInClient) ErrorMessage(err error) string { return errorMessage(err) }

// api performs one REST round trip with the Restli protocol header set.
func (c *LinkedInClient) api(ctx context.Context, method, path string, body, out interface{}) error {
	if err := c.limiter.Allow(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.manager.session.AccessToken)
	req.Header.Set("X-Restli-Protocol-Version", "2.0.0")
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
		return linkedinPlatformError(resp.StatusCode, raw)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("malformed response body for %s: %w", path, err)
	}
	return nil
}

// linkedinPlatformError decodes the Restli error envelope
// ({"serviceErrorCode", "message", "status", "code"}).
func linkedinPlatformError(status int, raw []byte) *PlatformError {
	var payload struct {
		ServiceErrorCode int    `json:"serviceErrorCode"`
		Message          string `json:"message"`
		Code             string `json:"code"`
	}
	pErr := &PlatformError{
		Provider:   entity.ProviderLinkedIn,
		StatusCode: status,
		Body:       string(raw),
	}
	if err := json.Unmarshal(raw, &payload); err == nil {
		pErr.Code = payload.ServiceErrorCode
		pErr.Kind = payload.Code
		pErr.Message = payload.Message
	}
	if pErr.Message == "" {
		pErr.Message = string(raw)
	}
	return pErr
}
