// Package metrics provides centralized Prometheus metrics for the application.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Publishing metrics track post delivery per provider.
var (
	// PostsPublishedTotal counts publish attempts by provider and status
	PostsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "social_posts_published_total",
			Help: "Total number of post publish attempts",
		},
		[]string{"provider", "status"},
	)

	// PublishDuration measures end-to-end publish duration in seconds
	PublishDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "social_publish_duration_seconds",
			Help:    "Post publish duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	// SessionRefreshTotal counts session refresh outcomes by provider
	SessionRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "social_session_refresh_total",
			Help: "Total number of session refresh attempts",
		},
		[]string{"provider", "status"},
	)

	// LinkPreviewFetchTotal counts link-preview crawl outcomes
	LinkPreviewFetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linkpreview_fetch_total",
			Help: "Total number of link preview fetches",
		},
		[]string{"status"},
	)
)
