package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketPrefs  = []byte("prefs")
	keyAuthToken = []byte("authToken")
	keyTheme     = []byte("theme")
)

// ErrInvalidTheme is returned for theme values other than light or dark.
var ErrInvalidTheme = errors.New("theme must be light or dark")

// Theme is the persisted UI colour scheme preference.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// Store persists the only state that survives restarts: the credential and
// the theme preference.
type Store struct {
	db *bolt.DB
}

// Open opens (or creates) the state file at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open state file %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketPrefs)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init state bucket: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the file lock.
func (s *Store) Close() error {
	return s.db.Close()
}

// LoadToken returns the persisted credential, or "" when none is stored.
func (s *Store) LoadToken() (string, error) {
	return s.get(keyAuthToken)
}

// SaveToken persists the credential; an empty token removes it.
func (s *Store) SaveToken(token string) error {
	if token == "" {
		return s.ClearToken()
	}
	return s.put(keyAuthToken, token)
}

// ClearToken removes the persisted credential.
func (s *Store) ClearToken() error {
	return s.delete(keyAuthToken)
}

// Theme returns the stored preference, light when unset.
func (s *Store) Theme() (Theme, error) {
	value, err := s.get(keyTheme)
	if err != nil {
		return ThemeLight, err
	}
	if Theme(value) == ThemeDark {
		return ThemeDark, nil
	}
	return ThemeLight, nil
}

// SetTheme persists theme.
func (s *Store) SetTheme(theme Theme) error {
	if theme != ThemeLight && theme != ThemeDark {
		return fmt.Errorf("%w: %q", ErrInvalidTheme, theme)
	}
	return s.put(keyTheme, string(theme))
}

// ToggleTheme flips between light and dark and returns the new value.
func (s *Store) ToggleTheme() (Theme, error) {
	current, err := s.Theme()
	if err != nil {
		return current, err
	}
	next := ThemeDark
	if current == ThemeDark {
		next = ThemeLight
	}
	return next, s.SetTheme(next)
}

func (s *Store) get(key []byte) (string, error) {
	var value string
	err := s.db.View(func(tx *bolt.Tx) error {
		if raw := tx.Bucket(bucketPrefs).Get(key); raw != nil {
			value = string(raw)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("read %s: %w", key, err)
	}
	return value, nil
}

func (s *Store) put(key []byte, value string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPrefs).Put(key, []byte(value))
	})
	if err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

func (s *Store) delete(key []byte) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPrefs).Delete(key)
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}
