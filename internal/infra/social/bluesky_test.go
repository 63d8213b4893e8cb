package social

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"socialpub/internal/domain/entity"
	"socialpub/internal/infra/credstore"
	"socialpub/internal/infra/linkpreview"
)

func blueskyChannel() *entity.Channel {
	return &entity.Channel{Provider: entity.ProviderBluesky, Code: "bsky-main", Name: "Bluesky Main"}
}

// newBlueskyTestClient wires a BlueskyClient against the given XRPC handler
// with credentials pre-seeded in a temp store.
func newBlueskyTestClient(t *testing.T, creds *entity.Credentials, handler http.Handler) (*BlueskyClient, *credstore.Store, *httptest.Server) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	store := credstore.New(t.TempDir())
	if err := store.Save("bsky-main", creds); err != nil {
		t.Fatalf("seed credentials: %v", err)
	}

	client := NewBlueskyClient(blueskyChannel(), Deps{
		Store:   store,
		Preview: linkpreview.NewFetcher(),
	})
	client.BaseURL = srv.URL
	if err := client.Configure(); err != nil {
		t.Fatalf("configure: %v", err)
	}
	return client, store, srv
}

func TestBlueskyClient_Create(t *testing.T) {
	t.Run("TC-1: should create session from identifier and password", func(t *testing.T) {
		// Arrange
		var sawCreate bool
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/xrpc/com.atproto.server.createSession" {
				t.Errorf("unexpected path %s", r.URL.Path)
				http.NotFound(w, r)
				return
			}
			sawCreate = true
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["identifier"] != "alice.example.com" {
				t.Errorf("expected identifier=alice.example.com, got %q", body["identifier"])
			}
			_ = json.NewEncoder(w).Encode(map[string]string{
				"accessJwt":  "access-1",
				"refreshJwt": "refresh-1",
				"did":        "did:plc:alice",
				"handle":     "alice.example.com",
			})
		})
		client, store, _ := newBlueskyTestClient(t, &entity.Credentials{
			Identifier: "alice.example.com",
			Password:   "app-password",
		}, handler)

		// Act
		ok, err := client.Create(context.Background())

		// Assert
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !ok {
			t.Fatal("expected active session")
		}
		if !sawCreate {
			t.Fatal("expected createSession call")
		}
		if client.manager.session.DID != "did:plc:alice" {
			t.Errorf("expected did=did:plc:alice, got %q", client.manager.session.DID)
		}

		// Rotated tokens must be durable before the session is usable.
		persisted, err := store.Load("bsky-main")
		if err != nil {
			t.Fatalf("load persisted credentials: %v", err)
		}
		if persisted.AccessToken != "access-1" {
			t.Errorf("expected persisted access token=access-1, got %q", persisted.AccessToken)
		}
		if persisted.RefreshToken != "refresh-1" {
			t.Errorf("expected persisted refresh token=refresh-1, got %q", persisted.RefreshToken)
		}
	})

	t.Run("TC-2: should prefer refresh exchange when a refresh token is stored", func(t *testing.T) {
		// Arrange
		var paths []string
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			paths = append(paths, r.URL.Path)
			if r.URL.Path != "/xrpc/com.atproto.server.refreshSession" {
				http.NotFound(w, r)
				return
			}
			if got := r.Header.Get("Authorization"); got != "Bearer old-refresh" {
				t.Errorf("expected refresh token bearer, got %q", got)
			}
			_ = json.NewEncoder(w).Encode(map[string]string{
				"accessJwt":  "access-2",
				"refreshJwt": "refresh-2",
				"did":        "did:plc:alice",
				"handle":     "alice.example.com",
			})
		})
		client, _, _ := newBlueskyTestClient(t, &entity.Credentials{
			Identifier:   "alice.example.com",
			Password:     "app-password",
			AccessToken:  "stale-access",
			RefreshToken: "old-refresh",
		}, handler)

		// Act
		ok, err := client.Create(context.Background())

		// Assert
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !ok {
			t.Fatal("expected active session")
		}
		if len(paths) != 1 || paths[0] != "/xrpc/com.atproto.server.refreshSession" {
			t.Errorf("expected a single refreshSession call, got %v", paths)
		}
		if client.manager.session.AccessToken != "access-2" {
			t.Errorf("expected rotated access token, got %q", client.manager.session.AccessToken)
		}
	})

	t.Run("TC-3: should fall back to password grant when refresh fails", func(t *testing.T) {
		// Arrange
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/xrpc/com.atproto.server.refreshSession":
				w.WriteHeader(http.StatusBadRequest)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"error": "InvalidToken", "message": "token malformed",
				})
			case "/xrpc/com.atproto.server.createSession":
				_ = json.NewEncoder(w).Encode(map[string]string{
					"accessJwt": "access-3", "refreshJwt": "refresh-3",
					"did": "did:plc:alice", "handle": "alice.example.com",
				})
			default:
				http.NotFound(w, r)
			}
		})
		client, _, _ := newBlueskyTestClient(t, &entity.Credentials{
			Identifier:   "alice.example.com",
			Password:     "app-password",
			RefreshToken: "broken-refresh",
		}, handler)
		client.manager.retryCfg.Delay = 0

		// Act
		ok, err := client.Create(context.Background())

		// Assert
		if err != nil {
			t.Fatalf("expected fallback to succeed, got %v", err)
		}
		if !ok {
			t.Fatal("expected active session")
		}
		if client.manager.session.AccessToken != "access-3" {
			t.Errorf("expected access token from password grant, got %q", client.manager.session.AccessToken)
		}
	})
}

func TestBlueskyClient_SendPost(t *testing.T) {
	t.Run("TC-1: should run the full publish pipeline", func(t *testing.T) {
		// Arrange: a page server for the preview crawl and image download.
		pageSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/article":
				w.Header().Set("Content-Type", "text/html")
				_, _ = io.WriteString(w, `<html><head>
					<meta property="og:title" content="Release Notes">
					<meta property="og:description" content="What changed">
					<meta property="og:image" content="/cover.png">
					</head><body>hi</body></html>`)
			case "/cover.png":
				w.Header().Set("Content-Type", "image/png")
				_, _ = w.Write([]byte{0x89, 0x50, 0x4e, 0x47})
			default:
				http.NotFound(w, r)
			}
		}))
		defer pageSrv.Close()

		var gotRecord blueskyRecord
		var gotBlobType string
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/xrpc/com.atproto.repo.uploadBlob":
				gotBlobType = r.Header.Get("Content-Type")
				_, _ = io.WriteString(w, `{"blob":{"$type":"blob","ref":{"$link":"bafyblob"},"mimeType":"image/png","size":4}}`)
			case "/xrpc/com.atproto.repo.createRecord":
				var body struct {
					Repo       string        `json:"repo"`
					Collection string        `json:"collection"`
					Record     blueskyRecord `json:"record"`
				}
				if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
					t.Errorf("decode createRecord body: %v", err)
				}
				if body.Repo != "did:plc:alice" {
					t.Errorf("expected repo=did:plc:alice, got %q", body.Repo)
				}
				if body.Collection != "app.bsky.feed.post" {
					t.Errorf("expected post collection, got %q", body.Collection)
				}
				gotRecord = body.Record
				_ = json.NewEncoder(w).Encode(map[string]string{
					"uri": "at://did:plc:alice/app.bsky.feed.post/3kabc",
					"cid": "bafyreicid",
				})
			default:
				t.Errorf("unexpected XRPC path %s", r.URL.Path)
				http.NotFound(w, r)
			}
		})
		client, _, _ := newBlueskyTestClient(t, &entity.Credentials{
			Identifier: "alice.example.com",
			Password:   "app-password",
		}, handler)
		client.manager.session = entity.Session{AccessToken: "access", DID: "did:plc:alice"}

		text := "New release #golang " + pageSrv.URL + "/article"

		// Act
		post, err := client.SendPost(context.Background(), text)

		// Assert
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if post.ID != "at://did:plc:alice/app.bsky.feed.post/3kabc" {
			t.Errorf("unexpected post id %q", post.ID)
		}
		if post.CID != "bafyreicid" {
			t.Errorf("unexpected cid %q", post.CID)
		}
		if gotBlobType != "image/png" {
			t.Errorf("expected blob content type image/png, got %q", gotBlobType)
		}

		if gotRecord.Text != text {
			t.Errorf("expected record text %q, got %q", text, gotRecord.Text)
		}
		if gotRecord.Embed == nil || gotRecord.Embed.External.Title != "Release Notes" {
			t.Errorf("expected embed with crawled title, got %+v", gotRecord.Embed)
		}
		if len(gotRecord.Embed.External.Thumb) == 0 {
			t.Error("expected embed thumb from uploaded blob")
		}

		// One link facet then one hashtag facet, byte-addressed into the
		// text with the index's first-character convention.
		if len(gotRecord.Facets) != 2 {
			t.Fatalf("expected 2 facets, got %d", len(gotRecord.Facets))
		}
		link := gotRecord.Facets[0]
		if link.Features[0].Type != "app.bsky.richtext.facet#link" {
			t.Errorf("expected link facet, got %+v", link.Features[0])
		}
		if link.Features[0].URI != pageSrv.URL+"/article" {
			t.Errorf("expected link uri %q, got %q", pageSrv.URL+"/article", link.Features[0].URI)
		}
		tag := gotRecord.Facets[1]
		if tag.Features[0].Type != "app.bsky.richtext.facet#tag" || tag.Features[0].Tag != "golang" {
			t.Errorf("expected #golang tag facet, got %+v", tag.Features[0])
		}
		tagIdx := strings.Index(text, "#golang")
		wantStart := tagIdx + 1
		wantEnd := tagIdx + len("#golang")
		if tag.Index.ByteStart != wantStart || tag.Index.ByteEnd != wantEnd {
			t.Errorf("expected tag span (%d,%d], got (%d,%d]",
				wantStart, wantEnd, tag.Index.ByteStart, tag.Index.ByteEnd)
		}
	})

	t.Run("TC-2: should reject text without a link before any network call", func(t *testing.T) {
		// Arrange
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Errorf("unexpected network call to %s", r.URL.Path)
		})
		client, _, _ := newBlueskyTestClient(t, &entity.Credentials{
			Identifier: "alice.example.com",
			Password:   "app-password",
		}, handler)
		client.manager.session = entity.Session{AccessToken: "access", DID: "did:plc:alice"}

		// Act
		_, err := client.SendPost(context.Background(), "no link here #tag")

		// Assert
		if !errors.Is(err, entity.ErrLinkRequired) {
			t.Fatalf("expected ErrLinkRequired, got %v", err)
		}
	})

	t.Run("TC-3: should require an active session", func(t *testing.T) {
		// Arrange
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Errorf("unexpected network call to %s", r.URL.Path)
		})
		client, _, _ := newBlueskyTestClient(t, &entity.Credentials{
			Identifier: "alice.example.com",
			Password:   "app-password",
		}, handler)

		// Act
		_, err := client.SendPost(context.Background(), "https://example.com")

		// Assert
		if !errors.Is(err, entity.ErrNoSession) {
			t.Fatalf("expected ErrNoSession, got %v", err)
		}
	})

	t.Run("TC-4: should publish without an embed when no preview fetcher is configured", func(t *testing.T) {
		// Arrange: no page server, no preview fetcher in the deps.
		var gotRecord blueskyRecord
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/xrpc/com.atproto.repo.createRecord" {
				t.Errorf("unexpected XRPC path %s", r.URL.Path)
				http.NotFound(w, r)
				return
			}
			var body struct {
				Record blueskyRecord `json:"record"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Errorf("decode createRecord body: %v", err)
			}
			gotRecord = body.Record
			_ = json.NewEncoder(w).Encode(map[string]string{
				"uri": "at://did:plc:alice/app.bsky.feed.post/3kdef",
				"cid": "bafyreicid2",
			})
		})
		srv := httptest.NewServer(handler)
		t.Cleanup(srv.Close)

		store := credstore.New(t.TempDir())
		creds := &entity.Credentials{Identifier: "alice.example.com", Password: "pw"}
		if err := store.Save("bsky-main", creds); err != nil {
			t.Fatalf("seed credentials: %v", err)
		}
		client := NewBlueskyClient(blueskyChannel(), Deps{Store: store})
		client.BaseURL = srv.URL
		if err := client.Configure(); err != nil {
			t.Fatalf("configure: %v", err)
		}
		client.manager.session = entity.Session{AccessToken: "access", DID: "did:plc:alice"}

		// Act
		post, err := client.SendPost(context.Background(), "New release #golang https://example.com/notes")

		// Assert
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if post.ID != "at://did:plc:alice/app.bsky.feed.post/3kdef" {
			t.Errorf("unexpected post id %q", post.ID)
		}
		if gotRecord.Embed != nil {
			t.Errorf("expected no embed, got %+v", gotRecord.Embed)
		}
		if len(gotRecord.Facets) != 2 {
			t.Errorf("expected link and tag facets to survive, got %d", len(gotRecord.Facets))
		}
	})
}

func TestBlueskyClient_DeletePost(t *testing.T) {
	const postURI = "at://did:plc:alice/app.bsky.feed.post/3kabc"

	t.Run("TC-1: should delete by record key", func(t *testing.T) {
		// Arrange
		var gotRkey string
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/xrpc/com.atproto.repo.deleteRecord" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			gotRkey = body["rkey"]
			_, _ = io.WriteString(w, `{}`)
		})
		client, _, _ := newBlueskyTestClient(t, &entity.Credentials{
			Identifier: "alice.example.com", Password: "pw",
		}, handler)
		client.manager.session = entity.Session{AccessToken: "access", DID: "did:plc:alice"}

		// Act
		outcome, err := client.DeletePost(context.Background(), postURI)

		// Assert
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if outcome.Status != entity.DeleteStatusDeleted {
			t.Errorf("expected deleted outcome, got %v", outcome.Status)
		}
		if gotRkey != "3kabc" {
			t.Errorf("expected rkey=3kabc, got %q", gotRkey)
		}
	})

	t.Run("TC-2: should treat RecordNotFound as already gone", func(t *testing.T) {
		// Arrange
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"error":   "RecordNotFound",
				"message": "could not locate record",
			})
		})
		client, _, _ := newBlueskyTestClient(t, &entity.Credentials{
			Identifier: "alice.example.com", Password: "pw",
		}, handler)
		client.manager.session = entity.Session{AccessToken: "access", DID: "did:plc:alice"}

		// Act
		outcome, err := client.DeletePost(context.Background(), postURI)

		// Assert
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if outcome.Status != entity.DeleteStatusAlreadyGone {
			t.Errorf("expected already-gone outcome, got %v", outcome.Status)
		}
		if outcome.Post == nil || outcome.Post.ID != postURI {
			t.Errorf("expected stub post with id %q, got %+v", postURI, outcome.Post)
		}
	})

	t.Run("TC-3: should propagate other delete failures", func(t *testing.T) {
		// Arrange
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"error": "InvalidRequest", "message": "not your record",
			})
		})
		client, _, _ := newBlueskyTestClient(t, &entity.Credentials{
			Identifier: "alice.example.com", Password: "pw",
		}, handler)
		client.manager.session = entity.Session{AccessToken: "access", DID: "did:plc:alice"}

		// Act
		_, err := client.DeletePost(context.Background(), postURI)

		// Assert
		pErr, ok := asPlatformError(err)
		if !ok {
			t.Fatalf("expected PlatformError, got %v", err)
		}
		if pErr.StatusCode != http.StatusForbidden {
			t.Errorf("expected status 403, got %d", pErr.StatusCode)
		}
	})
}

func TestBlueskyClient_ListPosts(t *testing.T) {
	t.Run("TC-1: should list the channel's records", func(t *testing.T) {
		// Arrange
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/xrpc/com.atproto.repo.listRecords" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			if got := r.URL.Query().Get("repo"); got != "did:plc:alice" {
				t.Errorf("expected repo query did:plc:alice, got %q", got)
			}
			_, _ = io.WriteString(w, `{"records":[
				{"uri":"at://did:plc:alice/app.bsky.feed.post/1","cid":"c1","value":{"text":"first","createdAt":"2026-08-01T10:00:00Z"}},
				{"uri":"at://did:plc:alice/app.bsky.feed.post/2","cid":"c2","value":{"text":"second","createdAt":"2026-08-02T10:00:00Z"}}
			]}`)
		})
		client, _, _ := newBlueskyTestClient(t, &entity.Credentials{
			Identifier: "alice.example.com", Password: "pw",
		}, handler)
		client.manager.session = entity.Session{AccessToken: "access", DID: "did:plc:alice"}

		// Act
		posts, err := client.ListPosts(context.Background())

		// Assert
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(posts) != 2 {
			t.Fatalf("expected 2 posts, got %d", len(posts))
		}
		if posts[0].Text != "first" || posts[1].CID != "c2" {
			t.Errorf("unexpected posts %+v", posts)
		}
	})
}
