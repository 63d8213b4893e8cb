package social

import (
	"testing"

	"socialpub/internal/domain/entity"
	"socialpub/internal/infra/credstore"
)

func TestNewClient(t *testing.T) {
	deps := Deps{Store: credstore.New(t.TempDir())}

	t.Run("TC-1: should select the variant from the provider kind", func(t *testing.T) {
		tests := []struct {
			provider entity.ProviderKind
			wantName string
		}{
			{entity.ProviderTwitter, "twitter"},
			{entity.ProviderFacebook, "facebook"},
			{entity.ProviderLinkedIn, "linkedin"},
			{entity.ProviderBluesky, "bluesky"},
		}
		for _, tt := range tests {
			channel := &entity.Channel{Provider: tt.provider, Code: "c-" + string(tt.provider), Name: "Channel"}
			client, err := NewClient(channel, deps)
			if err != nil {
				t.Fatalf("NewClient(%s): %v", tt.provider, err)
			}
			if client.Name() != tt.wantName {
				t.Errorf("expected name %q, got %q", tt.wantName, client.Name())
			}
		}
	})

	t.Run("TC-2: should reject an unknown provider kind", func(t *testing.T) {
		channel := &entity.Channel{Provider: "myspace", Code: "ms-1", Name: "MySpace"}
		if _, err := NewClient(channel, deps); err == nil {
			t.Fatal("expected error for unknown provider kind")
		}
	})

	t.Run("TC-3: should reject an invalid channel", func(t *testing.T) {
		channel := &entity.Channel{Provider: entity.ProviderTwitter}
		if _, err := NewClient(channel, deps); err == nil {
			t.Fatal("expected validation error for channel without a code")
		}
	})
}
