package metrics

import "time"

// RecordPostPublished records the outcome of one publish attempt.
// Status should be either "success" or "failure".
func RecordPostPublished(provider string, success bool) {
	status := "success"
	if !success {
		status = "failure"
	}
	PostsPublishedTotal.WithLabelValues(provider, status).Inc()
}

// RecordPublishDuration records the time taken to publish one post.
func RecordPublishDuration(provider string, duration time.Duration) {
	PublishDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordSessionRefresh records a session refresh outcome.
// Status is one of "success", "failure" or "revoked".
func RecordSessionRefresh(provider, status string) {
	SessionRefreshTotal.WithLabelValues(provider, status).Inc()
}

// RecordLinkPreviewFetch records a link-preview crawl outcome.
func RecordLinkPreviewFetch(success bool) {
	status := "success"
	if !success {
		status = "failure"
	}
	LinkPreviewFetchTotal.WithLabelValues(status).Inc()
}
