// Package keystore holds named API keys for the terminal client. Keys are
// stored base64-encoded in a JSON file under the user's home directory; the
// encoding keeps keys out of casual view but is deliberately reversible, so
// the file must be protected by permissions, not secrecy.
package keystore

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

var (
	ErrDuplicateName = errors.New("a key with that name already exists")
	ErrNotFound      = errors.New("no key with that name")
	ErrNoCurrent     = errors.New("no key selected")
)

type record struct {
	Type      string    `json:"type,omitempty"`
	Value     string    `json:"value"`
	DateAdded time.Time `json:"dateAdded"`
}

type fileFormat struct {
	Keys    map[string]record `json:"keys"`
	Current string            `json:"current,omitempty"`
}

// Entry describes a stored key for display; the value stays on disk.
type Entry struct {
	Name      string
	Type      string
	DateAdded time.Time
}

// Store manages the on-disk key file. It is not safe for concurrent use; the
// client is single-threaded.
type Store struct {
	path  string
	data  fileFormat
	clock func() time.Time
}

// DefaultPath places the key file under the user's home directory.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".voxchat", "keys.json"), nil
}

// Open loads the store, creating an empty one when the file does not exist.
func Open(path string) (*Store, error) {
	s := &Store{path: path, data: fileFormat{Keys: map[string]record{}}, clock: time.Now}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	if err := json.Unmarshal(raw, &s.data); err != nil {
		return nil, fmt.Errorf("parse key file: %w", err)
	}
	if s.data.Keys == nil {
		s.data.Keys = map[string]record{}
	}
	return s, nil
}

func (s *Store) save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create key dir: %w", err)
	}
	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.path, raw, 0o600); err != nil {
		return fmt.Errorf("write key file: %w", err)
	}
	return nil
}

// Add stores a new key under name with a provider type label. Names are
// unique; re-adding is an error so a stored key is never silently
// overwritten.
func (s *Store) Add(name, keyType, key string) error {
	if name == "" {
		return errors.New("key name must not be empty")
	}
	if _, exists := s.data.Keys[name]; exists {
		return ErrDuplicateName
	}
	s.data.Keys[name] = record{
		Type:      keyType,
		Value:     base64.StdEncoding.EncodeToString([]byte(key)),
		DateAdded: s.clock().UTC(),
	}
	if s.data.Current == "" {
		s.data.Current = name
	}
	return s.save()
}

// Use selects the named key as current.
func (s *Store) Use(name string) error {
	if _, exists := s.data.Keys[name]; !exists {
		return ErrNotFound
	}
	s.data.Current = name
	return s.save()
}

// Delete removes the named key. Deleting the current key clears the
// selection rather than silently pointing at another key.
func (s *Store) Delete(name string) error {
	if _, exists := s.data.Keys[name]; !exists {
		return ErrNotFound
	}
	delete(s.data.Keys, name)
	if s.data.Current == name {
		s.data.Current = ""
	}
	return s.save()
}

// Current returns the selected key's name and decoded value.
func (s *Store) Current() (string, string, error) {
	if s.data.Current == "" {
		return "", "", ErrNoCurrent
	}
	rec, exists := s.data.Keys[s.data.Current]
	if !exists {
		return "", "", ErrNoCurrent
	}
	decoded, err := base64.StdEncoding.DecodeString(rec.Value)
	if err != nil {
		return "", "", fmt.Errorf("decode stored key: %w", err)
	}
	return s.data.Current, string(decoded), nil
}

// Entries lists stored keys sorted by name, for display.
func (s *Store) Entries() []Entry {
	entries := make([]Entry, 0, len(s.data.Keys))
	for name, rec := range s.data.Keys {
		entries = append(entries, Entry{Name: name, Type: rec.Type, DateAdded: rec.DateAdded})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries
}

// CurrentName returns the selected name, empty when none is selected.
func (s *Store) CurrentName() string {
	return s.data.Current
}
