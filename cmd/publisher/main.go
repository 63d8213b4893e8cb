// Command publisher posts a text to a set of configured social channels.
//
// Usage:
//
//	publisher -text "Release 1.4 is out https://example.com/notes #release"
//	publisher -channels bsky-main,tw-main -text "..." -config ./channels.yaml -creds-dir ./credentials
//
// Channels come from the YAML roster; each channel's credentials live in
// <creds-dir>/<code>.json and are rewritten in place when tokens rotate.
// The command exits non-zero when any channel fails permanently.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"socialpub/internal/config"
	"socialpub/internal/domain/entity"
	"socialpub/internal/infra/credstore"
	"socialpub/internal/infra/linkpreview"
	"socialpub/internal/infra/social"
	"socialpub/internal/observability/logging"
	"socialpub/internal/usecase/publish"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		channelsFlag = flag.String("channels", "", "comma-separated channel codes (default: every channel in the roster)")
		textFlag     = flag.String("text", "", "post text (required)")
		configFlag   = flag.String("config", "", "channel roster path (overrides CHANNELS_FILE)")
		credsDirFlag = flag.String("creds-dir", "", "credentials directory (overrides CREDENTIALS_DIR)")
	)
	flag.Parse()

	logger := logging.NewLogger()
	slog.SetDefault(logger)

	settings := config.Load()
	if *configFlag != "" {
		settings.ChannelsFile = *configFlag
	}
	if *credsDirFlag != "" {
		settings.CredentialsDir = *credsDirFlag
	}
	if err := settings.Validate(); err != nil {
		logger.Error("invalid configuration", slog.Any("error", err))
		return 1
	}

	if *textFlag == "" {
		fmt.Fprintln(os.Stderr, "missing required -text flag")
		flag.Usage()
		return 2
	}

	channels, err := selectChannels(settings, *channelsFlag)
	if err != nil {
		logger.Error("channel selection failed", slog.Any("error", err))
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, settings.PublishTimeout)
	defer cancel()

	svc := publish.NewService(clientFactory(settings))

	results, err := svc.PublishAll(ctx, channels, *textFlag)
	if err != nil {
		logger.Error("publish run rejected", slog.Any("error", err))
		return 1
	}

	return reportResults(logger, results)
}

// selectChannels loads the roster and narrows it to the requested codes.
// The -channels flag wins over the PUBLISH_CHANNELS default; with neither,
// every roster channel is selected.
func selectChannels(settings *config.Settings, codesFlag string) ([]entity.Channel, error) {
	roster, err := config.LoadRoster(settings.ChannelsFile)
	if err != nil {
		return nil, err
	}

	codes := settings.Channels
	if codesFlag != "" {
		codes = nil
		for _, code := range strings.Split(codesFlag, ",") {
			if trimmed := strings.TrimSpace(code); trimmed != "" {
				codes = append(codes, trimmed)
			}
		}
	}
	return roster.Select(codes)
}

// clientFactory wires the shared collaborators into per-channel clients.
func clientFactory(settings *config.Settings) publish.ClientFactory {
	deps := social.Deps{
		Store: credstore.New(settings.CredentialsDir),
	}
	if settings.LinkPreviewEnabled {
		deps.Preview = linkpreview.NewFetcher()
	}
	return func(channel *entity.Channel) (social.ProviderClient, error) {
		return social.NewClient(channel, deps)
	}
}

// reportResults logs every outcome and picks the exit code: 0 when all
// channels succeeded, 3 when every failure is recoverable (a rerun may
// succeed), 1 when any failure is permanent.
func reportResults(logger *slog.Logger, results []publish.Result) int {
	code := 0
	for _, r := range results {
		log := logging.WithChannel(logger, string(r.Channel.Provider), r.Channel.Code)
		if r.Err == nil {
			log.Info("published", slog.String("post_id", r.Post.ID))
			continue
		}

		log.Error("publish failed",
			slog.Bool("recoverable", r.Recoverable),
			slog.Int("code", r.Code),
			slog.String("message", r.Message))
		if r.Recoverable {
			if code == 0 {
				code = 3
			}
		} else {
			code = 1
		}
	}
	return code
}
