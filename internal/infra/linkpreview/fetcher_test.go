package linkpreview

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestFetcher_Fetch(t *testing.T) {
	t.Run("TC-1: should prefer OpenGraph metadata", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `<html><head>
				<title>Plain title</title>
				<meta property="og:title" content="OG Title">
				<meta property="og:description" content="OG description">
				<meta property="og:image" content="/img/preview.png">
			</head><body></body></html>`)
		}))
		defer server.Close()

		preview, err := NewFetcher().Fetch(context.Background(), server.URL)
		if err != nil {
			t.Fatalf("fetch: %v", err)
		}

		if preview.Title != "OG Title" {
			t.Errorf("expected OG title, got %q", preview.Title)
		}
		if preview.Description != "OG description" {
			t.Errorf("expected OG description, got %q", preview.Description)
		}
		if preview.ImageURL != server.URL+"/img/preview.png" {
			t.Errorf("expected resolved image URL, got %q", preview.ImageURL)
		}
	})

	t.Run("TC-2: should fall back to title tag and meta description", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `<html><head>
				<title>Fallback Title</title>
				<meta name="description" content="Plain description">
			</head><body></body></html>`)
		}))
		defer server.Close()

		preview, err := NewFetcher().Fetch(context.Background(), server.URL)
		if err != nil {
			t.Fatalf("fetch: %v", err)
		}

		if preview.Title != "Fallback Title" {
			t.Errorf("expected fallback title, got %q", preview.Title)
		}
		if preview.Description != "Plain description" {
			t.Errorf("expected meta description, got %q", preview.Description)
		}
		if preview.ImageURL != "" {
			t.Errorf("expected no image URL, got %q", preview.ImageURL)
		}
	})

	t.Run("TC-3: should report non-200 responses as crawl errors", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		_, err := NewFetcher().Fetch(context.Background(), server.URL)

		var crawlErr *CrawlError
		if !errors.As(err, &crawlErr) {
			t.Fatalf("expected CrawlError, got %v", err)
		}
		if crawlErr.Timeout {
			t.Error("status errors must not classify as timeouts")
		}
	})

	t.Run("TC-4: should classify deadline expiry as a timeout", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
		}))
		defer server.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		_, err := NewFetcher().Fetch(ctx, server.URL)

		if !IsTimeout(err) {
			t.Errorf("expected timeout classification, got %v", err)
		}
	})
}

func TestFetcher_DownloadImage(t *testing.T) {
	t.Run("TC-1: should return image bytes and extension-derived content type", func(t *testing.T) {
		payload := []byte{0x89, 'P', 'N', 'G'}
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write(payload)
		}))
		defer server.Close()

		data, contentType, err := NewFetcher().DownloadImage(context.Background(), server.URL+"/preview.PNG")
		if err != nil {
			t.Fatalf("download: %v", err)
		}

		if string(data) != string(payload) {
			t.Errorf("image bytes differ")
		}
		if contentType != "image/png" {
			t.Errorf("expected image/png, got %q", contentType)
		}
	})
}

func TestContentTypeFromURL(t *testing.T) {
	cases := []struct {
		url  string
		want string
	}{
		{"https://example.com/a.png", "image/png"},
		{"https://example.com/a.jpg?size=2", "image/jpg"},
		{"https://example.com/noext", "image/jpeg"},
		{"https://example.com/pic.WEBP", "image/webp"},
	}

	for _, tc := range cases {
		if got := ContentTypeFromURL(tc.url); got != tc.want {
			t.Errorf("ContentTypeFromURL(%q) = %q, want %q", tc.url, got, tc.want)
		}
	}
}
