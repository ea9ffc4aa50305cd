// Package secrets stores the account credentials and per-library
// passwords in a single owner-only JSON file with atomic writes. This is
// a leaf package imported by both the CLI and the sync engine.
package secrets

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FilePerms restricts the secrets file to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating the secrets directory.
const DirPerms = 0o700

// Account holds the server credentials obtained at login. Token is the
// static API token; there is no refresh flow.
type Account struct {
	ServerURL string `json:"server_url"`
	Username  string `json:"username"`
	Token     string `json:"token"`
}

// file is the on-disk format. Libraries maps library ID to the plaintext
// password for encrypted libraries.
type file struct {
	Account   *Account          `json:"account,omitempty"`
	Libraries map[string]string `json:"libraries,omitempty"`
}

// Store reads and writes the secrets file at a fixed path.
type Store struct {
	path string
}

// NewStore returns a store backed by the file at path. The file need not
// exist yet.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Account returns the saved account, or nil if none has been saved.
func (s *Store) Account() (*Account, error) {
	f, err := s.read()
	if err != nil {
		return nil, err
	}

	return f.Account, nil
}

// SaveAccount persists the account, preserving any library passwords.
func (s *Store) SaveAccount(acct *Account) error {
	f, err := s.read()
	if err != nil {
		return err
	}

	f.Account = acct

	return s.write(f)
}

// LibraryPassword returns the saved password for a library, or "" if none
// has been saved. Absence is not an error.
func (s *Store) LibraryPassword(libraryID string) (string, error) {
	f, err := s.read()
	if err != nil {
		return "", err
	}

	return f.Libraries[libraryID], nil
}

// SaveLibraryPassword persists the password for an encrypted library.
func (s *Store) SaveLibraryPassword(libraryID, password string) error {
	f, err := s.read()
	if err != nil {
		return err
	}

	if f.Libraries == nil {
		f.Libraries = make(map[string]string)
	}

	f.Libraries[libraryID] = password

	return s.write(f)
}

// DeleteAll removes the secrets file. Used on logout. A missing file is
// not an error.
func (s *Store) DeleteAll() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("secrets: removing %s: %w", s.path, err)
	}

	return nil
}

// read loads the current file contents. A missing file yields an empty
// value, never an error.
func (s *Store) read() (file, error) {
	var f file

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return f, nil
	}

	if err != nil {
		return f, fmt.Errorf("secrets: reading %s: %w", s.path, err)
	}

	if err := json.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("secrets: decoding %s: %w", s.path, err)
	}

	return f, nil
}

// write saves the file atomically (write-to-temp + rename) with 0600
// permissions. Never logs secret values.
func (s *Store) write(f file) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("secrets: encoding: %w", err)
	}

	dir := filepath.Dir(s.path)
	if mkErr := os.MkdirAll(dir, DirPerms); mkErr != nil {
		return fmt.Errorf("secrets: creating directory %s: %w", dir, mkErr)
	}

	// Atomic write: temp file in the same directory, then rename.
	// Same directory guarantees same filesystem for rename(2).
	tmp, err := os.CreateTemp(dir, ".secrets-*.tmp")
	if err != nil {
		return fmt.Errorf("secrets: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	// Clean up temp file on any error path.
	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, FilePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("secrets: setting permissions: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("secrets: writing: %w", err)
	}

	// Flush to stable storage before rename so a power loss between close
	// and rename cannot leave an empty or partial file at the final path.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("secrets: syncing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("secrets: closing: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("secrets: renaming: %w", err)
	}

	success = true

	return nil
}
