package domain

import "time"

// Session represents a persisted login session. The authoritative copy lives
// in the repository; a JSON-serialized copy is cached under the session id for
// fast lookup and must be evicted whenever the repository copy changes.
type Session struct {
	ID         string         `json:"id"`
	UserID     string         `json:"user_id"`
	CSRFToken  string         `json:"csrf_token"`
	OAuthToken *string        `json:"oauth_token,omitempty"`
	Provider   *OAuthProvider `json:"provider,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	ExpiresAt  time.Time      `json:"expires_at"`
}

// Valid reports whether the session has not expired at the supplied moment.
func (s Session) Valid(at time.Time) bool {
	return s.ExpiresAt.After(at)
}
