package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Storage keys for the two persisted credentials. These are the well-known
// names shared with any other process reading the same credentials file.
const (
	accessKey  = "access_token"
	refreshKey = "refresh_token"
)

// Storage is the persistence boundary for credentials. An absent entry is
// indistinguishable from "no credential".
type Storage interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(key string) error
}

// FileStorage persists credentials as a JSON object in a single file, created
// with owner-only permissions. Reads and writes go through the full file so
// the on-disk state is always a consistent snapshot.
type FileStorage struct {
	path string
}

// NewFileStorage creates a FileStorage at the given path. The containing
// directory is created if needed.
func NewFileStorage(path string) (*FileStorage, error) {
	if path == "" {
		return nil, errors.New("credentials file path is empty")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("could not create credentials directory: %w", err)
	}

	return &FileStorage{path: path}, nil
}

// DefaultFilePath returns the conventional credentials location in the user's
// configuration directory.
func DefaultFilePath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("could not resolve user config dir: %w", err)
	}

	return filepath.Join(dir, "djwr", "credentials.json"), nil
}

func (f *FileStorage) read() (map[string]string, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not read credentials file: %w", err)
	}

	entries := map[string]string{}
	if err := json.Unmarshal(data, &entries); err != nil {
		// A corrupt file is treated as empty: the user re-authenticates
		// rather than being locked out by an unreadable cache of secrets.
		return map[string]string{}, nil
	}

	return entries, nil
}

func (f *FileStorage) write(entries map[string]string) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("could not encode credentials: %w", err)
	}

	if err := os.WriteFile(f.path, data, 0o600); err != nil {
		return fmt.Errorf("could not write credentials file: %w", err)
	}

	return nil
}

func (f *FileStorage) Get(key string) (string, bool, error) {
	entries, err := f.read()
	if err != nil {
		return "", false, err
	}

	value, ok := entries[key]
	return value, ok, nil
}

func (f *FileStorage) Set(key, value string) error {
	entries, err := f.read()
	if err != nil {
		return err
	}

	entries[key] = value
	return f.write(entries)
}

func (f *FileStorage) Delete(key string) error {
	entries, err := f.read()
	if err != nil {
		return err
	}

	if _, ok := entries[key]; !ok {
		return nil
	}

	delete(entries, key)
	return f.write(entries)
}

// MemoryStorage is a non-persistent Storage for tests and ephemeral sessions.
type MemoryStorage struct {
	entries map[string]string
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{entries: map[string]string{}}
}

func (m *MemoryStorage) Get(key string) (string, bool, error) {
	value, ok := m.entries[key]
	return value, ok, nil
}

func (m *MemoryStorage) Set(key, value string) error {
	m.entries[key] = value
	return nil
}

func (m *MemoryStorage) Delete(key string) error {
	delete(m.entries, key)
	return nil
}
