// Package settings stores langsync user settings, currently the API tokens
// of the Weblate servers the user has logged in to.
//
// Settings live in the XDG data directory:
//
//	$XDG_DATA_HOME/langsync/  (default: ~/.local/share/langsync/)
//
// Files stored:
//   - auth.json: API tokens keyed by server URL
//
// Auth.json format:
// The file is a JSON object keyed by normalized server URL
// (https://weblate.example.org); each value is an entry whose "type" field
// is currently always "token".
//
// File permissions are 0600 (owner read/write only).
//
// Lookup order for tokens:
//  1. --token flag (highest priority)
//  2. LANGSYNC_TOKEN / WEBLATE_API_KEY environment variables
//  3. This credential store
package settings

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

const (
	dataDirName = "langsync"
	fileName    = "auth.json"
)

// ---------------------------------------------------------------------------
// Auth entries
// ---------------------------------------------------------------------------

// Info is one stored credential.
type Info struct {
	// Type discriminator: "token"
	Type string `json:"type"`

	// Key is the API token sent as "Authorization: Token <key>".
	Key string `json:"key,omitempty"`

	// User is the account the token belongs to, for display only.
	User string `json:"user,omitempty"`
}

// IsToken returns true if this is an API token entry.
func (i *Info) IsToken() bool {
	return i.Type == "token"
}

// Store holds all server credentials, keyed by normalized server URL.
type Store map[string]*Info

// ServerKey normalizes a server URL into a store key: lower-case scheme and
// host, no trailing slash, no query. A URL without a scheme is read as https.
func ServerKey(server string) string {
	server = strings.TrimSpace(server)
	if server == "" {
		return ""
	}
	if !strings.Contains(server, "://") {
		server = "https://" + server
	}
	u, err := url.Parse(server)
	if err != nil || u.Host == "" {
		return strings.TrimRight(server, "/")
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host) + strings.TrimRight(u.Path, "/")
}

// ---------------------------------------------------------------------------
// File path
// ---------------------------------------------------------------------------

// dataDir returns the XDG data directory for langsync.
// Respects $XDG_DATA_HOME (falls back to ~/.local/share).
func dataDir() (string, error) {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, dataDirName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", dataDirName), nil
}

func filePath() (string, error) {
	dir, err := dataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, fileName), nil
}

// FilePath returns the auth.json file path for display purposes.
func FilePath() string {
	p, err := filePath()
	if err != nil {
		return ""
	}
	return p
}

// ---------------------------------------------------------------------------
// Load / Save
// ---------------------------------------------------------------------------

// Load reads the credential store from disk.
// Returns an empty store if the file doesn't exist or is invalid.
func Load() Store {
	path, err := filePath()
	if err != nil {
		return make(Store)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return make(Store)
	}

	var store Store
	if err := json.Unmarshal(data, &store); err != nil {
		return make(Store)
	}

	if store == nil {
		return make(Store)
	}

	return store
}

// Save writes the credential store to disk with 0600 permissions.
func Save(store Store) error {
	path, err := filePath()
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(store, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling credentials: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing auth file: %w", err)
	}

	return nil
}

// ---------------------------------------------------------------------------
// Get / Set / Remove
// ---------------------------------------------------------------------------

// Get returns the entry for a server, or nil if not found.
func Get(server string) *Info {
	return Load()[ServerKey(server)]
}

// SetToken stores the API token for a server (upsert).
func SetToken(server, key, user string) error {
	id := ServerKey(server)
	if id == "" {
		return fmt.Errorf("server URL is empty")
	}
	store := Load()
	store[id] = &Info{Type: "token", Key: key, User: user}
	return Save(store)
}

// Token returns the stored token for a server, or "" if none.
func Token(server string) string {
	info := Get(server)
	if info == nil || !info.IsToken() {
		return ""
	}
	return info.Key
}

// Remove deletes the credentials of a server.
func Remove(server string) error {
	store := Load()
	id := ServerKey(server)
	if _, ok := store[id]; !ok {
		return nil
	}
	delete(store, id)
	return Save(store)
}

// RemoveAll removes all stored credentials.
func RemoveAll() error {
	path, err := filePath()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing auth file: %w", err)
	}
	return nil
}

// ResolveToken returns explicit if set (flag or environment, already merged
// by the caller), else the stored token for server.
func ResolveToken(server, explicit string) string {
	if explicit = strings.TrimSpace(explicit); explicit != "" {
		return explicit
	}
	return Token(server)
}

// ---------------------------------------------------------------------------
// Display helpers
// ---------------------------------------------------------------------------

// MaskKey returns a masked version of a key/token for display.
func MaskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
