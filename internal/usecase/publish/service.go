// Package publish provides the use case for fanning a post out to a set of
// publishing channels. Each channel gets its own provider client and session;
// failures on one channel never stop the others, and every outcome is
// reported with its retry classification so an external scheduler can decide
// what to do with the failures.
package publish

import (
	"context"
	"log/slog"
	"time"

	"socialpub/internal/domain/entity"
	"socialpub/internal/infra/social"
	"socialpub/internal/observability/logging"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// defaultMaxConcurrent bounds how many channels publish at the same time.
const defaultMaxConcurrent = 4

// ClientFactory builds the provider client for a channel. It exists as a
// seam so tests can substitute fake clients.
type ClientFactory func(channel *entity.Channel) (social.ProviderClient, error)

// Result is the outcome of publishing to one channel.
type Result struct {
	// Channel the outcome belongs to
	Channel entity.Channel

	// Post is the created post, nil when publishing failed
	Post *entity.Post

	// Err is the failure, nil on success
	Err error

	// Recoverable is the provider's classification of Err: true when the
	// same publish may be retried later, false for permanent rejections.
	// Meaningless when Err is nil.
	Recoverable bool

	// Code is the provider's numeric error code for Err, 0 when none
	Code int

	// Message is the provider's error message for Err
	Message string
}

// Service fans posts out to publishing channels.
type Service interface {
	// PublishAll posts text to every given channel and returns one result
	// per channel, in channel order. It never returns early: a failure on
	// one channel is recorded in its result while the others proceed.
	//
	// Parameters:
	//   - ctx: Context bounding the whole run
	//   - channels: Channels to publish to (must not be empty)
	//   - text: Post text (must not be empty)
	//
	// Returns:
	//   - []Result: One outcome per channel
	//   - error: Non-nil only for invalid input, never for channel failures
	PublishAll(ctx context.Context, channels []entity.Channel, text string) ([]Result, error)

	// Delete removes a post from one channel. Deleting a post the provider
	// no longer has is a success where the provider's contract defines an
	// already-gone outcome.
	Delete(ctx context.Context, channel *entity.Channel, postID string) (entity.DeleteOutcome, error)

	// List returns the recent posts of one channel.
	List(ctx context.Context, channel *entity.Channel) ([]entity.Post, error)
}

type service struct {
	factory       ClientFactory
	maxConcurrent int
}

// NewService creates the publish service.
//
// Parameters:
//   - factory: Provider client factory, usually wrapping social.NewClient
//
// Returns:
//   - Service: Configured publish service
func NewService(factory ClientFactory) Service {
	return &service{
		factory:       factory,
		maxConcurrent: defaultMaxConcurrent,
	}
}

// PublishAll implements Service.PublishAll.
func (s *service) PublishAll(ctx context.Context, channels []entity.Channel, text string) ([]Result, error) {
	if len(channels) == 0 {
		return nil, ErrNoChannels
	}
	if text == "" {
		return nil, ErrEmptyText
	}

	runID := uuid.New().String()
	log := slog.With(slog.String("run_id", runID))
	log.Info("publish run started",
		slog.Int("channels", len(channels)),
		slog.Int("text_bytes", len(text)))

	start := time.Now()
	results := make([]Result, len(channels))

	// The run-scoped logger travels in the context so every layer below
	// tags its records with the run id.
	g, gctx := errgroup.WithContext(logging.WithLogger(ctx, log))
	g.SetLimit(s.maxConcurrent)
	for i := range channels {
		i := i
		g.Go(func() error {
			results[i] = s.publishOne(gctx, channels[i], text)
			// Channel failures live in the result, not the group error,
			// so one bad channel cannot cancel the siblings.
			return nil
		})
	}
	_ = g.Wait()

	succeeded := 0
	for _, r := range results {
		if r.Err == nil {
			succeeded++
		}
	}
	log.Info("publish run finished",
		slog.Int("succeeded", succeeded),
		slog.Int("failed", len(channels)-succeeded),
		slog.Duration("elapsed", time.Since(start)))

	return results, nil
}

// publishOne runs the full lifecycle for one channel: build the client,
// load credentials, establish the session, post, close.
func (s *service) publishOne(ctx context.Context, channel entity.Channel, text string) Result {
	log := logging.FromContext(ctx)
	result := Result{Channel: channel}

	client, err := s.factory(&channel)
	if err != nil {
		result.Err = err
		result.Message = err.Error()
		return result
	}
	defer client.Close()

	if err := s.prepare(ctx, client); err != nil {
		return s.classified(client, result, err)
	}

	post, err := client.SendPost(ctx, text)
	if err != nil {
		return s.classified(client, result, err)
	}

	result.Post = post
	log.Info("channel published",
		slog.String("channel", channel.Code),
		slog.String("post_id", post.ID))
	return result
}

// prepare configures the client and establishes its session.
func (s *service) prepare(ctx context.Context, client social.ProviderClient) error {
	if err := client.Configure(); err != nil {
		return err
	}
	if _, err := client.Create(ctx); err != nil {
		return err
	}
	return nil
}

// classified fills the result's error fields using the client's own
// per-provider classification.
func (s *service) classified(client social.ProviderClient, result Result, err error) Result {
	result.Err = err
	result.Recoverable = client.IsRecoverable(err)
	result.Code = client.ErrorCode(err)
	result.Message = client.ErrorMessage(err)
	return result
}

// Delete implements Service.Delete.
func (s *service) Delete(ctx context.Context, channel *entity.Channel, postID string) (entity.DeleteOutcome, error) {
	client, err := s.factory(channel)
	if err != nil {
		return entity.DeleteOutcome{}, err
	}
	defer client.Close()

	if err := s.prepare(ctx, client); err != nil {
		return entity.DeleteOutcome{}, err
	}
	return client.DeletePost(ctx, postID)
}

// List implements Service.List.
func (s *service) List(ctx context.Context, channel *entity.Channel) ([]entity.Post, error) {
	client, err := s.factory(channel)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	if err := s.prepare(ctx, client); err != nil {
		return nil, err
	}
	return client.ListPosts(ctx)
}
