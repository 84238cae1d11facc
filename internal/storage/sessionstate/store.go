// Package sessionstate persists the wallet session so restarts keep the
// connected address until the provider says otherwise.
package sessionstate

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/aitradehq/tradeflow/internal/domain"
)

const fileName = "session.json"

// Store keeps the wallet session in a single JSON file.
type Store struct {
	path string
}

// NewStore creates a session store under the given state directory.
func NewStore(stateDir string) (*Store, error) {
	if stateDir == "" {
		stateDir = "./state"
	}
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create state dir")
	}
	return &Store{path: filepath.Join(stateDir, fileName)}, nil
}

// Load reads the persisted session. A missing or empty file means no
// session was ever saved and returns nil without error.
func (s *Store) Load() (*domain.WalletSession, error) {
	if s == nil || s.path == "" {
		return nil, nil
	}

	payload, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "read session state")
	}
	if len(payload) == 0 {
		return nil, nil
	}

	var session domain.WalletSession
	if err := json.Unmarshal(payload, &session); err != nil {
		return nil, errors.Wrap(err, "decode session state")
	}
	return &session, nil
}

// Save writes the session to disk atomically via temp file.
func (s *Store) Save(session domain.WalletSession) error {
	if s == nil || s.path == "" {
		return nil
	}

	payload, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode session state")
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return errors.Wrap(err, "write session state temp file")
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return errors.Wrap(err, "persist session state")
	}
	return nil
}

// Clear removes the persisted session. Clearing a never-saved session is
// not an error.
func (s *Store) Clear() error {
	if s == nil || s.path == "" {
		return nil
	}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.Wrap(err, "clear session state")
	}
	return nil
}
