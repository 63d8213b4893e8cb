package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChannel_Validate(t *testing.T) {
	t.Run("TC-1: should accept a fully populated channel", func(t *testing.T) {
		ch := &Channel{Provider: ProviderBluesky, Code: "bsky-main", Name: "Main account"}

		assert.NoError(t, ch.Validate())
	})

	t.Run("TC-2: should reject an unknown provider kind", func(t *testing.T) {
		ch := &Channel{Provider: ProviderKind("myspace"), Code: "ms-1"}

		err := ch.Validate()

		var vErr *ValidationError
		assert.ErrorAs(t, err, &vErr)
		assert.Equal(t, "provider", vErr.Field)
	})

	t.Run("TC-3: should reject an empty channel code", func(t *testing.T) {
		ch := &Channel{Provider: ProviderTwitter}

		err := ch.Validate()

		var vErr *ValidationError
		assert.ErrorAs(t, err, &vErr)
		assert.Equal(t, "code", vErr.Field)
	})
}

func TestSession_Active(t *testing.T) {
	t.Run("TC-1: should be active only with a non-empty bearer", func(t *testing.T) {
		assert.False(t, (&Session{}).Active())
		assert.False(t, (*Session)(nil).Active())
		assert.True(t, (&Session{AccessToken: "tok"}).Active())
	})

	t.Run("TC-2: clear should drop both tokens", func(t *testing.T) {
		s := &Session{AccessToken: "a", RefreshToken: "r"}

		s.Clear()

		assert.False(t, s.Active())
		assert.Empty(t, s.RefreshToken)
	})
}
