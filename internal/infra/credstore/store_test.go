package credstore

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"socialpub/internal/domain/entity"
)

func TestStore_LoadSave(t *testing.T) {
	t.Run("TC-1: should round-trip a credential object", func(t *testing.T) {
		store := New(t.TempDir())

		creds := &entity.Credentials{
			Identifier:   "bot.example.com",
			Password:     "app-password",
			AccessToken:  "access",
			RefreshToken: "refresh",
		}
		if err := store.Save("bsky-main", creds); err != nil {
			t.Fatalf("save: %v", err)
		}

		loaded, err := store.Load("bsky-main")
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if loaded.Identifier != creds.Identifier || loaded.RefreshToken != creds.RefreshToken {
			t.Errorf("loaded credentials differ: %+v", loaded)
		}
	})

	t.Run("TC-2: should report a missing file as ErrNotFound", func(t *testing.T) {
		store := New(t.TempDir())

		_, err := store.Load("never-configured")

		if !errors.Is(err, entity.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("TC-3: should fail on a malformed credential file", func(t *testing.T) {
		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{not json"), 0o600); err != nil {
			t.Fatal(err)
		}
		store := New(dir)

		_, err := store.Load("broken")

		if err == nil || errors.Is(err, entity.ErrNotFound) {
			t.Errorf("expected decode error, got %v", err)
		}
	})

	t.Run("TC-4: save should overwrite the whole file on rotation", func(t *testing.T) {
		store := New(t.TempDir())

		creds := &entity.Credentials{Identifier: "id", AccessToken: "old", RefreshToken: "old-r"}
		if err := store.Save("ch", creds); err != nil {
			t.Fatal(err)
		}

		creds.AccessToken = "new"
		creds.RefreshToken = "new-r"
		if err := store.Save("ch", creds); err != nil {
			t.Fatal(err)
		}

		loaded, err := store.Load("ch")
		if err != nil {
			t.Fatal(err)
		}
		if loaded.AccessToken != "new" || loaded.RefreshToken != "new-r" || loaded.Identifier != "id" {
			t.Errorf("rotation not persisted in full: %+v", loaded)
		}
	})
}
