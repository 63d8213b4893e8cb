package linkpreview

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// CrawlError wraps a failure while crawling a linked page or downloading its
// preview image. Timeout marks transport timeouts as a distinct kind so
// callers can retry the crawl independently of the post submission.
type CrawlError struct {
	URL     string
	Timeout bool
	Err     error
}

func (e *CrawlError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("timeout crawling %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("crawl %s: %v", e.URL, e.Err)
}

func (e *CrawlError) Unwrap() error {
	return e.Err
}

// IsTimeout reports whether err is a crawl failure caused by a transport
// timeout rather than any other I/O or protocol failure.
func IsTimeout(err error) bool {
	var crawlErr *CrawlError
	return errors.As(err, &crawlErr) && crawlErr.Timeout
}

// isTimeoutErr classifies the raw transport error.
func isTimeoutErr(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
