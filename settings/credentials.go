// Package settings keeps provider API keys between runs.
//
// Keys are stored per user, not per project, in
// $XDG_DATA_HOME/binloc/auth.json (~/.local/share/binloc/auth.json when
// XDG_DATA_HOME is unset), mode 0600.
//
// When translating, a key is taken from the first of: the --api-key flag,
// BINLOC_API_KEY, the provider's own variable, the store.
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// EnvAPIKey overrides every provider's stored key.
const EnvAPIKey = "BINLOC_API_KEY"

const (
	appDir   = "binloc"
	authFile = "auth.json"
)

// providerEnv maps provider IDs to the variable their own tooling reads.
var providerEnv = map[string]string{
	"google":        "GOOGLE_API_KEY",
	"groq":          "GROQ_API_KEY",
	"custom-openai": "OPENAI_API_KEY",
}

// Credential is one provider's entry.
type Credential struct {
	Key       string    `json:"key"`
	BaseURL   string    `json:"baseUrl,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// Store maps provider IDs to credentials.
type Store map[string]*Credential

// Set inserts or replaces the entry for id.
func (s Store) Set(id, key, baseURL string) {
	s[id] = &Credential{Key: key, BaseURL: baseURL, UpdatedAt: time.Now().UTC()}
}

// Delete reports whether id had an entry.
func (s Store) Delete(id string) bool {
	if _, ok := s[id]; !ok {
		return false
	}
	delete(s, id)
	return true
}

// IDs returns the stored provider IDs in sorted order.
func (s Store) IDs() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ---------------------------------------------------------------------------
// Location
// ---------------------------------------------------------------------------

// DataDir is the per-user binloc directory.
func DataDir() (string, error) {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("locating home directory: %w", err)
		}
		base = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(base, appDir), nil
}

// FilePath is the auth file location, or "" when it cannot be determined.
func FilePath() string {
	dir, err := DataDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, authFile)
}

// ---------------------------------------------------------------------------
// Persistence
// ---------------------------------------------------------------------------

// Load reads the store. A missing or unreadable file yields an empty store,
// so a corrupt file is replaced on the next Save.
func Load() Store {
	store := make(Store)
	path := FilePath()
	if path == "" {
		return store
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return store
	}
	if err := json.Unmarshal(data, &store); err != nil || store == nil {
		return make(Store)
	}
	return store
}

// Save replaces the auth file atomically with mode 0600.
func Save(store Store) error {
	path := FilePath()
	if path == "" {
		_, err := DataDir()
		return err
	}
	data, err := json.MarshalIndent(store, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding credentials: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, authFile+".*")
	if err != nil {
		return fmt.Errorf("writing credentials: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("writing credentials: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("writing credentials: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing credentials: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("writing credentials: %w", err)
	}
	return nil
}

// update loads the store, applies fn and saves when fn reports a change.
func update(fn func(Store) bool) error {
	store := Load()
	if !fn(store) {
		return nil
	}
	return Save(store)
}

// ---------------------------------------------------------------------------
// Accessors
// ---------------------------------------------------------------------------

// Get returns the entry for id or nil.
func Get(id string) *Credential {
	return Load()[id]
}

// GetAPIKey returns the stored key for id or "".
func GetAPIKey(id string) string {
	if c := Get(id); c != nil {
		return c.Key
	}
	return ""
}

// GetBaseURL returns the stored endpoint for id or "".
func GetBaseURL(id string) string {
	if c := Get(id); c != nil {
		return c.BaseURL
	}
	return ""
}

// SetAPIKey stores key for id. baseURL may be empty.
func SetAPIKey(id, key, baseURL string) error {
	return update(func(s Store) bool {
		s.Set(id, key, baseURL)
		return true
	})
}

// Remove deletes the entry for id. Removing an unknown ID is not an error.
func Remove(id string) error {
	return update(func(s Store) bool { return s.Delete(id) })
}

// Providers lists the IDs that have stored credentials.
func Providers() []string {
	return Load().IDs()
}

// EnvVarForProvider names the provider's own key variable, "" if it has none.
func EnvVarForProvider(id string) string {
	return providerEnv[id]
}

// ResolveAPIKey returns the key for id, applying the lookup order in the
// package doc. It returns "" when no source has one.
func ResolveAPIKey(flagValue, id string) string {
	candidates := []string{flagValue, os.Getenv(EnvAPIKey)}
	if name := EnvVarForProvider(id); name != "" {
		candidates = append(candidates, os.Getenv(name))
	}
	for _, c := range candidates {
		if c != "" {
			return c
		}
	}
	return GetAPIKey(id)
}

// MaskKey shortens key for display. Keys of eight bytes or fewer are fully
// hidden.
func MaskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
