package social

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"socialpub/internal/domain/entity"
	"socialpub/internal/observability/metrics"
	"socialpub/internal/resilience/circuitbreaker"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
)

const (
	defaultBlueskyBaseURL = "https://bsky.social"

	blueskyPostCollection = "app.bsky.feed.post"

	maxResponseSize = 4 * 1024 * 1024 // 4MB
)

// BlueskyClient publishes to an AT-protocol (Bluesky) account over XRPC.
//
// Its post format mandates rich-text facets (byte-addressed hashtag and link
// spans) and a link-preview embed, so SendPost runs the full pipeline: span
// extraction, facet indexing, page crawl, image download, blob upload,
// record assembly, record creation.
type BlueskyClient struct {
	// BaseURL points at the XRPC service; overridable for tests
	BaseURL string

	channel *entity.Channel
	deps    Deps
	http    *http.Client
	breaker *circuitbreaker.CircuitBreaker
	limiter *RateLimiter
	creds   *entity.Credentials
	manager *sessionManager
}

// NewBlueskyClient creates the Bluesky provider client for one channel.
func NewBlueskyClient(channel *entity.Channel, deps Deps) *BlueskyClient {
	c := &BlueskyClient{
		BaseURL: defaultBlueskyBaseURL,
		channel: channel,
		deps:    deps,
		http:    deps.httpClient(),
		breaker: circuitbreaker.New(circuitbreaker.ProviderAPIConfig("bluesky")),
		// One logical publish issues several XRPC calls (blob upload plus
		// record create), so the bucket allows a small burst.
		limiter: NewRateLimiter(1.0, 5),
	}
	c.manager = newSessionManager(entity.ProviderBluesky, channel, deps.Store, sessionFuncs{
		create:  c.createSession,
		refresh: c.refreshSession,
	})
	return c
}

// Name returns the provider name.
func (c *BlueskyClient) Name() string { return string(entity.ProviderBluesky) }

// Configure loads the channel's credentials from the credential store.
func (c *BlueskyClient) Configure() error {
	creds, err := c.deps.Store.Load(c.channel.Code)
	if err != nil {
		return err
	}
	c.creds = creds
	c.manager.creds = creds
	return nil
}

// Create establishes an authenticated session, preferring a refresh-token
// exchange and falling back to the password grant.
func (c *BlueskyClient) Create(ctx context.Context) (bool, error) {
	return c.manager.Create(ctx)
}

// Close releases idle transport connections.
func (c *BlueskyClient) Close() {
	c.http.CloseIdleConnections()
}

type blueskySessionResponse struct {
	AccessJwt  string `json:"accessJwt"`
	RefreshJwt string `json:"refreshJwt"`
	DID        string `json:"did"`
	Handle     string `json:"handle"`
}

// createSession exchanges the account identifier and app password for a
// short-lived session.
func (c *BlueskyClient) createSession(ctx context.Context) (*entity.Session, error) {
	body, err := json.Marshal(map[string]string{
		"identifier": c.creds.Identifier,
		"password":   c.creds.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal session request: %w", err)
	}

	var resp blueskySessionResponse
	if err := c.xrpc(ctx, http.MethodPost, "com.atproto.server.createSession", nil, "", "application/json", body, &resp); err != nil {
		if _, ok := asPlatformError(err); ok {
			return nil, err
		}
		return nil, &AuthError{Provider: entity.ProviderBluesky, Message: "session create exchange failed", Err: err}
	}
	if resp.AccessJwt == "" {
		return nil, &AuthError{Provider: entity.ProviderBluesky, Message: "session create returned no access token"}
	}

	return &entity.Session{
		AccessToken:  resp.AccessJwt,
		RefreshToken: resp.RefreshJwt,
		DID:          resp.DID,
		Handle:       resp.Handle,
	}, nil
}

// refreshSession exchanges the refresh token for rotated tokens.
func (c *BlueskyClient) refreshSession(ctx context.Context) (*entity.Session, error) {
	var resp blueskySessionResponse
	if err := c.xrpc(ctx, http.MethodPost, "com.atproto.server.refreshSession", nil, c.creds.RefreshToken, "application/json", nil, &resp); err != nil {
		if _, ok := asPlatformError(err); ok {
			return nil, err
		}
		return nil, &AuthError{Provider: entity.ProviderBluesky, Message: "session refresh exchange failed", Err: err}
	}
	if resp.AccessJwt == "" {
		return nil, &AuthError{Provider: entity.ProviderBluesky, Message: "session refresh returned no access token"}
	}

	return &entity.Session{
		AccessToken:  resp.AccessJwt,
		RefreshToken: resp.RefreshJwt,
		DID:          resp.DID,
		Handle:       resp.Handle,
	}, nil
}

// Bluesky record wire types.

type blueskyFacetIndex struct {
	ByteStart int `json:"byteStart"`
	ByteEnd   int `json:"byteEnd"`
}

type blueskyFacetFeature struct {
	Type string `json:"$type"`
	URI  string `json:"uri,omitempty"`
	Tag  string `json:"tag,omitempty"`
	DID  string `json:"did,omitempty"`
}

type blueskyFacet struct {
	Index    blueskyFacetIndex     `json:"index"`
	Features []blueskyFacetFeature `json:"features"`
}

type blueskyExternal struct {
	URI         string          `json:"uri"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Thumb       json.RawMessage `json:"thumb,omitempty"`
}

type blueskyEmbed struct {
	Type     string          `json:"$type"`
	External blueskyExternal `json:"external"`
}

type blueskyRecord struct {
	Type      string         `json:"$type"`
	Text      string         `json:"text"`
	CreatedAt string         `json:"createdAt"`
	Facets    []blueskyFacet `json:"facets,omitempty"`
	Embed     *blueskyEmbed  `json:"embed,omitempty"`
}

// SendPost publishes text with rich-text facets and a link-preview embed.
// The text must contain at least one http(s) URL; its absence is a
// caller-input error, never a network error.
func (c *BlueskyClient) SendPost(ctx context.Context, text string) (*entity.Post, error) {
	start := time.Now()
	requestID := uuid.New().String()
	log := slog.With(
		slog.String("request_id", requestID),
		slog.String("provider", c.Name()),
		slog.String("channel", c.channel.Code))

	post, err := c.sendPost(ctx, log, text)

	metrics.RecordPostPublished(c.Name(), err == nil)
	metrics.RecordPublishDuration(c.Name(), time.Since(start))
	if err != nil {
		log.Error("post publish failed", slog.Any("error", err))
		return nil, err
	}

	log.Info("post published",
		slog.String("post_id", post.ID),
		slog.Duration("elapsed", time.Since(start)))
	return post, nil
}

func (c *BlueskyClient) sendPost(ctx context.Context, log *slog.Logger, text string) (*entity.Post, error) {
	if !c.manager.Active() {
		return nil, entity.ErrNoSession
	}

	urls := entity.ExtractURLs(text)
	if len(urls) == 0 {
		return nil, entity.ErrLinkRequired
	}

	facets := entity.NewIndex(text).Facets(entity.ExtractSpans(text))

	embed, err := c.linkEmbed(ctx, log, urls[0])
	if err != nil {
		return nil, err
	}

	record := blueskyRecord{
		Type:      blueskyPostCollection,
		Text:      text,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Facets:    recordFacets(facets),
		Embed:     embed,
	}

	body, err := json.Marshal(map[string]interface{}{
		"repo":       c.manager.session.DID,
		"collection": blueskyPostCollection,
		"record":     record,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}

	var resp struct {
		URI string `json:"uri"`
		CID string `json:"cid"`
	}
	if err := c.xrpc(ctx, http.MethodPost, "com.atproto.repo.createRecord", nil, c.manager.session.AccessToken, "application/json", body, &resp); err != nil {
		return nil, err
	}

	return &entity.Post{
		ID:          resp.URI,
		CID:         resp.CID,
		ChannelCode: c.channel.Code,
		Text:        text,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// linkEmbed crawls the first linked page and assembles the external embed.
// The preview fetcher is an optional collaborator; when it is absent the
// post goes out with facets only and no embed.
func (c *BlueskyClient) linkEmbed(ctx context.Context, log *slog.Logger, pageURL string) (*blueskyEmbed, error) {
	if c.deps.Preview == nil {
		return nil, nil
	}

	preview, err := c.deps.Preview.Fetch(ctx, pageURL)
	metrics.RecordLinkPreviewFetch(err == nil)
	if err != nil {
		return nil, err
	}

	var thumb json.RawMessage
	if preview.ImageURL != "" {
		data, contentType, err := c.deps.Preview.DownloadImage(ctx, preview.ImageURL)
		if err != nil {
			return nil, err
		}
		thumb, err = c.uploadBlob(ctx, data, contentType)
		if err != nil {
			return nil, err
		}
		log.Debug("preview image uploaded",
			slog.Int("bytes", len(data)),
			slog.String("content_type", contentType))
	}

	return &blueskyEmbed{
		Type: "app.bsky.embed.external",
		External: blueskyExternal{
			URI:         preview.URL,
			Title:       preview.Title,
			Description: preview.Description,
			Thumb:       thumb,
		},
	}, nil
}

// recordFacets converts domain facets into the wire representation.
func recordFacets(facets []entity.Facet) []blueskyFacet {
	var out []blueskyFacet
	for _, f := range facets {
		feature := blueskyFacetFeature{}
		switch f.Kind {
		case entity.FacetKindLink:
			feature.Type = "app.bsky.richtext.facet#link"
			feature.URI = f.Payload
		case entity.FacetKindHashtag:
			feature.Type = "app.bsky.richtext.facet#tag"
			feature.Tag = f.Payload
		case entity.FacetKindMention:
			feature.Type = "app.bsky.richtext.facet#mention"
			feature.DID = f.Payload
		default:
			continue
		}
		out = append(out, blueskyFacet{
			Index:    blueskyFacetIndex{ByteStart: f.ByteStart, ByteEnd: f.ByteEnd},
			Features: []blueskyFacetFeature{feature},
		})
	}
	return out
}

// uploadBlob uploads raw image bytes and returns the platform's blob
// reference for embedding.
func (c *BlueskyClient) uploadBlob(ctx context.Context, data []byte, contentType string) (json.RawMessage, error) {
	var resp struct {
		Blob json.RawMessage `json:"blob"`
	}
	if err := c.xrpc(ctx, http.MethodPost, "com.atproto.repo.uploadBlob", nil, c.manager.session.AccessToken, contentType, data, &resp); err != nil {
		return nil, err
	}
	return resp.Blob, nil
}

// DeletePost removes the record behind the given AT-URI. A RecordNotFound
// answer yields an AlreadyGone outcome with a stub post instead of an error.
func (c *BlueskyClient) DeletePost(ctx context.Context, id string) (entity.DeleteOutcome, error) {
	if !c.manager.Active() {
		return entity.DeleteOutcome{}, entity.ErrNoSession
	}

	body, err := json.Marshal(map[string]string{
		"repo":       c.manager.session.DID,
		"collection": blueskyPostCollection,
		"rkey":       recordKey(id),
	})
	if err != nil {
		return entity.DeleteOutcome{}, fmt.Errorf("marshal delete request: %w", err)
	}

	if err := c.xrpc(ctx, http.MethodPost, "com.atproto.repo.deleteRecord", nil, c.manager.session.AccessToken, "application/json", body, nil); err != nil {
		if pErr, ok := asPlatformError(err); ok && isBlueskyNotFound(pErr) {
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

func isBlueskyNotFound(pErr *PlatformError) bool {
	return pErr.Kind == "RecordNotFound" ||
		strings.Contains(strings.ToLower(pErr.Message), "could not locate record")
}

// recordKey extracts the record key from an AT-URI
// (at://did:plc:abc/app.bsky.feed.post/3l3qo2vuowo2b -> 3l3qo2vuowo2b).
func recordKey(uri string) string {
	parts := strings.Split(uri, "/")
	return parts[len(parts)-1]
}

// ListPosts returns the channel's recent records.
func (c *BlueskyClient) ListPosts(ctx context.Context) ([]entity.Post, error) {
	if !c.manager.Active() {
		return nil, entity.ErrNoSession
	}

	query := url.Values{
		"repo":       {c.manager.session.DID},
		"collection": {blueskyPostCollection},
		"limit":      {"50"},
	}

	var resp struct {
		Records []struct {
			URI   string `json:"uri"`
			CID   string `json:"cid"`
			Value struct {
				Text      string    `json:"text"`
				CreatedAt time.Time `json:"createdAt"`
			} `json:"value"`
		} `json:"records"`
	}
	if err := c.xrpc(ctx, http.MethodGet, "com.atproto.repo.listRecords", query, c.manager.session.AccessToken, "", nil, &resp); err != nil {
		return nil, err
	}

	posts := make([]entity.Post, 0, len(resp.Records))
	for _, r := range resp.Records {
		posts = append(posts, entity.Post{
			ID:          r.URI,
			CID:         r.CID,
			ChannelCode: c.channel.Code,
			Text:        r.Value.Text,
			CreatedAt:   r.Value.CreatedAt,
		})
	}
	return posts, nil
}

// IsRecoverable classifies err for the external retry scheduler.
func (c *BlueskyClient) IsRecoverable(err error) bool { return blueskyRecoverable(err) }

// ErrorCode returns the HTTP status of the failed XRPC call; AT-protocol
// error payloads carry symbolic kinds rather than numeric codes.
func (c *BlueskyClient) ErrorCode(err error) int {
	if pErr, ok := asPlatformError(err); ok {
		return pErr.StatusCode
	}
	return 0
}

// ErrorMessage extracts the platform's error message.
func (c *BlueskyClient) ErrorMessage(err error) string { return errorMessage(err) }

// xrpc performs one XRPC round trip through the rate limiter and circuit
// breaker. Error payloads are decoded into PlatformError with the raw body
// attached; a malformed success body is a protocol error.
func (c *BlueskyClient) xrpc(ctx context.Context, method, nsid string, query url.Values, bearer, contentType string, body []byte, out interface{}) error {
	if err := c.limiter.Allow(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	endpoint := c.BaseURL + "/xrpc/" + nsid
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		if bearer != "" {
			req.Header.Set("Authorization", "Bearer "+bearer)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("execute request: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, blueskyPlatformError(resp.StatusCode, raw)
		}
		return raw, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) {
			slog.Warn("bluesky circuit breaker open, request rejected",
				slog.String("nsid", nsid),
				slog.String("state", c.breaker.State().String()))
		}
		return err
	}

	if out == nil {
		return nil
	}
	raw := result.([]byte)
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("malformed response body for %s: %w", nsid, err)
	}
	return nil
}

// blueskyPlatformError decodes an XRPC error payload
// ({"error": "...", "message": "..."}).
func blueskyPlatformError(status int, raw []byte) *PlatformError {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	pErr := &PlatformError{
		Provider:   entity.ProviderBluesky,
		StatusCode: status,
		Body:       string(raw),
	}
	if err := json.Unmarshal(raw, &payload); err == nil {
		pErr.Kind = payload.Error
		pErr.Message = payload.Message
	}
	if pErr.Message == "" {
		pErr.Message = string(raw)
	}
	return pErr
}
