// Package linkpreview fetches page metadata and preview images for the
// link-embed step of providers whose post format mandates a link preview.
package linkpreview

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"github.com/sony/gobreaker"

	"socialpub/internal/resilience/circuitbreaker"
)

const (
	maxBodySize  = 10 * 1024 * 1024 // 10MB
	maxImageSize = 5 * 1024 * 1024  // 5MB

	userAgent = "socialpub/1.0 (+link preview)"

	readTimeout = 15 * time.Second
	dialTimeout = 5 * time.Second
)

// Preview holds the metadata extracted from a linked page.
type Preview struct {
	URL         string
	Title       string
	Description string
	ImageURL    string
}

// Fetcher crawls linked pages and downloads preview images.
// It is safe for concurrent use.
type Fetcher struct {
	client  *http.Client
	breaker *circuitbreaker.CircuitBreaker
}

// NewFetcher creates a Fetcher with the crawl timeout budget used for both
// page fetches and image downloads. Crawls share one circuit breaker so a
// run against a dead or crawling-hostile site stops hammering it.
func NewFetcher() *Fetcher {
	return &Fetcher{
		client: &http.Client{
			Timeout: readTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: dialTimeout,
				}).DialContext,
				MaxIdleConns:    10,
				IdleConnTimeout: 90 * time.Second,
			},
		},
		breaker: circuitbreaker.New(circuitbreaker.LinkCrawlConfig()),
	}
}

// Fetch retrieves the page at pageURL and extracts title, description and
// preview-image URL. OpenGraph tags win; plain meta tags and the readability
// excerpt serve as fallbacks. Transport timeouts are reported as a timeout
// CrawlError.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (*Preview, error) {
	body, err := f.get(ctx, pageURL, maxBodySize)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, &CrawlError{URL: pageURL, Err: fmt.Errorf("parse HTML: %w", err)}
	}

	preview := &Preview{
		URL:         pageURL,
		Title:       metaContent(doc, "og:title"),
		Description: metaContent(doc, "og:description"),
		ImageURL:    metaContent(doc, "og:image"),
	}

	if preview.Title == "" {
		preview.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	if preview.Description == "" {
		preview.Description = metaName(doc, "description")
	}
	if preview.Description == "" {
		preview.Description = readabilityExcerpt(body, pageURL)
	}
	if preview.ImageURL != "" {
		preview.ImageURL = resolveURL(pageURL, preview.ImageURL)
	}

	slog.Debug("link preview fetched",
		slog.String("url", pageURL),
		slog.String("title", preview.Title),
		slog.Bool("has_image", preview.ImageURL != ""))

	return preview, nil
}

// DownloadImage fetches the preview image bytes. The returned content type is
// image/<ext>, derived from the image URL's file extension.
func (f *Fetcher) DownloadImage(ctx context.Context, imageURL string) ([]byte, string, error) {
	body, err := f.get(ctx, imageURL, maxImageSize)
	if err != nil {
		return nil, "", err
	}
	return body, ContentTypeFromURL(imageURL), nil
}

// get performs a bounded GET through the crawl circuit breaker and
// classifies transport failures.
func (f *Fetcher) get(ctx context.Context, rawURL string, limit int64) ([]byte, error) {
	result, err := f.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, &CrawlError{URL: rawURL, Err: fmt.Errorf("create request: %w", err)}
		}
		req.Header.Set("User-Agent", userAgent)

		resp, err := f.client.Do(req)
		if err != nil {
			return nil, &CrawlError{URL: rawURL, Timeout: isTimeoutErr(err), Err: err}
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			return nil, &CrawlError{URL: rawURL, Err: fmt.Errorf("unexpected status: %s", resp.Status)}
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
		if err != nil {
			return nil, &CrawlError{URL: rawURL, Timeout: isTimeoutErr(err), Err: fmt.Errorf("read body: %w", err)}
		}
		return body, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) {
			return nil, &CrawlError{URL: rawURL, Err: err}
		}
		return nil, err
	}
	return result.([]byte), nil
}

// ContentTypeFromURL derives an image/<ext> content type from the URL's file
// extension, defaulting to image/jpeg when the URL carries no extension.
func ContentTypeFromURL(rawURL string) string {
	ext := ""
	if u, err := url.Parse(rawURL); err == nil {
		ext = strings.TrimPrefix(path.Ext(u.Path), ".")
	}
	if ext == "" {
		ext = "jpeg"
	}
	return "image/" + strings.ToLower(ext)
}

// metaContent returns the content of a <meta property=...> tag.
func metaContent(doc *goquery.Document, property string) string {
	content, _ := doc.Find(fmt.Sprintf(`meta[property=%q]`, property)).First().Attr("content")
	return strings.TrimSpace(content)
}

// metaName returns the content of a <meta name=...> tag.
func metaName(doc *goquery.Document, name string) string {
	content, _ := doc.Find(fmt.Sprintf(`meta[name=%q]`, name)).First().Attr("content")
	return strings.TrimSpace(content)
}

// readabilityExcerpt extracts a short description from the page body when no
// meta description is present.
func readabilityExcerpt(body []byte, pageURL string) string {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	article, err := readability.FromReader(bytes.NewReader(body), parsed)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(article.Excerpt)
}

// resolveURL resolves a possibly relative image reference against the page URL.
func resolveURL(base, ref string) string {
	baseURL, err := url.Parse(base)
	if err != nil {
		return ref
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return baseURL.ResolveReference(refURL).String()
}
