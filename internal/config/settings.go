package config

import (
	"fmt"
	"time"

	pkgconfig "socialpub/pkg/config"
)

// Settings holds the publisher's runtime configuration.
type Settings struct {
	// CredentialsDir is the directory holding per-channel credential files.
	// Default: "./credentials"
	CredentialsDir string

	// ChannelsFile is the path of the YAML channel roster.
	// Default: "./channels.yaml"
	ChannelsFile string

	// APITimeout bounds a single provider API round trip.
	// Default: 15 seconds
	APITimeout time.Duration

	// PublishTimeout bounds one whole publish run across all channels,
	// including session refreshes and their retry delays.
	// Default: 5 minutes
	PublishTimeout time.Duration

	// LinkPreviewEnabled controls whether linked pages are crawled for
	// preview embeds on providers that use them.
	// Default: true
	LinkPreviewEnabled bool

	// Channels lists the channel codes to publish to when the caller does
	// not pick any. Empty means every channel in the roster.
	Channels []string
}

// Load reads the settings from environment variables, applying defaults for
// anything unset.
//
// Environment variables:
//   - CREDENTIALS_DIR: Per-channel credential file directory (default: "./credentials")
//   - CHANNELS_FILE: YAML channel roster path (default: "./channels.yaml")
//   - API_TIMEOUT: Provider API request timeout (default: 15s)
//   - PUBLISH_TIMEOUT: Whole-run timeout (default: 5m)
//   - LINK_PREVIEW_ENABLED: Enable link preview crawling (default: true)
//   - PUBLISH_CHANNELS: Comma-separated default channel codes (default: all)
func Load() *Settings {
	return &Settings{
		CredentialsDir:     pkgconfig.GetEnvString("CREDENTIALS_DIR", "./credentials"),
		ChannelsFile:       pkgconfig.GetEnvString("CHANNELS_FILE", "./channels.yaml"),
		APITimeout:         pkgconfig.GetEnvDuration("API_TIMEOUT", 15*time.Second),
		PublishTimeout:     pkgconfig.GetEnvDuration("PUBLISH_TIMEOUT", 5*time.Minute),
		LinkPreviewEnabled: pkgconfig.GetEnvBool("LINK_PREVIEW_ENABLED", true),
		Channels:           pkgconfig.GetEnvStringList("PUBLISH_CHANNELS", nil),
	}
}

// Validate checks the settings for values that would break a publish run.
func (s *Settings) Validate() error {
	if s.CredentialsDir == "" {
		return fmt.Errorf("credentials directory must not be empty")
	}
	if s.ChannelsFile == "" {
		return fmt.Errorf("channels file must not be empty")
	}
	if err := pkgconfig.ValidateDurationRange(s.APITimeout, time.Second, time.Minute); err != nil {
		return fmt.Errorf("invalid API timeout: %w", err)
	}
	if err := pkgconfig.ValidatePositiveDuration(s.PublishTimeout); err != nil {
		return fmt.Errorf("invalid publish timeout: %w", err)
	}
	if s.PublishTimeout < s.APITimeout {
		return fmt.Errorf("publish timeout %v must not be shorter than API timeout %v",
			s.PublishTimeout, s.APITimeout)
	}
	return nil
}
