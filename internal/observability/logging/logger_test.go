package logging

import (
	"context"
	"log/slog"
	"testing"
)

func TestFromContext(t *testing.T) {
	t.Run("TC-1: should return the logger stored in the context", func(t *testing.T) {
		logger := NewTextLogger()
		ctx := WithLogger(context.Background(), logger)

		if FromContext(ctx) != logger {
			t.Error("expected the stored logger")
		}
	})

	t.Run("TC-2: should fall back to the default logger", func(t *testing.T) {
		if FromContext(context.Background()) != slog.Default() {
			t.Error("expected the default logger")
		}
	})
}

func TestWithChannel(t *testing.T) {
	t.Run("TC-1: should return a scoped logger", func(t *testing.T) {
		logger := WithChannel(NewLogger(), "bluesky", "bsky-main")
		if logger == nil {
			t.Fatal("expected a logger")
		}
	})
}
