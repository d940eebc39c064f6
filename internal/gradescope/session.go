package gradescope

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Cookie is one serialized browser cookie. Expires is Unix seconds; zero or
// negative means a session cookie.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
	HTTPOnly bool    `json:"http_only,omitempty"`
}

// SessionState is the persisted authenticated-session snapshot. It is a cache:
// a stale or missing state is recovered by logging in again, never an error.
type SessionState struct {
	Cookies   []Cookie  `json:"cookies"`
	ExpiresAt time.Time `json:"expires_at"`
	SavedAt   time.Time `json:"saved_at"`
}

// Valid reports whether the state is worth probing at all.
func (s *SessionState) Valid(now time.Time) bool {
	return s != nil && len(s.Cookies) > 0 && now.Before(s.ExpiresAt)
}

// LoadSession reads a persisted SessionState. A missing file returns
// (nil, nil): absence is the normal first-run case.
func LoadSession(path string) (*SessionState, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}
	var state SessionState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parse session: %w", err)
	}
	return &state, nil
}

// SaveSession persists the state, creating the parent directory if needed.
// The file holds credentials-equivalent cookies, hence 0600.
func SaveSession(path string, state *SessionState) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}
