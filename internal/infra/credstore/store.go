// Package credstore reads and writes per-channel credential files.
// Each channel owns one JSON file named after its channel code under a
// configured base directory. This layer does not coordinate concurrent
// writers to the same file; callers serialize access per channel.
package credstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"socialpub/internal/domain/entity"
)

// Store locates and persists channel credential files.
type Store struct {
	dir string
}

// New creates a Store rooted at the given base directory.
func New(dir string) *Store {
	return &Store{dir: dir}
}

// Load reads and decodes the credential file for the given channel code.
// A missing file is reported as entity.ErrNotFound so callers can tell
// "never configured" apart from a malformed file.
func (s *Store) Load(code string) (*entity.Credentials, error) {
	data, err := os.ReadFile(s.path(code))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("credentials for channel %q: %w", code, entity.ErrNotFound)
		}
		return nil, fmt.Errorf("read credential file for channel %q: %w", code, err)
	}

	var creds entity.Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("decode credential file for channel %q: %w", code, err)
	}

	return &creds, nil
}

// Save writes the full credential object for the given channel code,
// replacing the previous file contents. The whole object is always written,
// not just changed fields, so the file mirrors the in-memory state after
// every token rotation.
func (s *Store) Save(code string, creds *entity.Credentials) error {
	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return fmt.Errorf("encode credentials for channel %q: %w", code, err)
	}

	if err := os.WriteFile(s.path(code), data, 0o600); err != nil {
		return fmt.Errorf("write credential file for channel %q: %w", code, err)
	}

	return nil
}

func (s *Store) path(code string) string {
	return filepath.Join(s.dir, code+".json")
}
