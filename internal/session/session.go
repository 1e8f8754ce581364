package session

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Role is the kind of authenticated subject.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleRespondent Role = "respondent"
)

// Session is the authenticated state for one browser scope. LastActivityAt
// and the timeout live under their own store keys because several signals
// (activity ping, visibility restore, reload) rewrite the timestamp
// independently of the rest of the session.
type Session struct {
	SubjectID string    `json:"subject_id"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// Store keys. Kept stable because operators grep logs and dumps for them.
const (
	sessionKey       = "user_session"
	timestampKey     = "login_timestamp"
	timeoutKey       = "session_timeout"
	windowIDKey      = "window_id"
	refreshMarkerKey = "page_refresh_marker"
)

// ExpiryReason says why a session ended. The user-facing message differs
// per reason.
type ExpiryReason string

const (
	ExpiredInactivity ExpiryReason = "timeout"
	ExpiredAway       ExpiryReason = "away"
	ExpiredClosed     ExpiryReason = "closed"
	ExpiredLogout     ExpiryReason = "logout"
)

// ExpiryError is returned to callers that hit a terminated session.
type ExpiryError struct {
	Reason ExpiryReason
}

func (e *ExpiryError) Error() string {
	return fmt.Sprintf("session expired (%s)", e.Reason)
}

func encodeSession(s *Session) (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeSession(blob string) (*Session, error) {
	var s Session
	if err := json.Unmarshal([]byte(blob), &s); err != nil {
		return nil, fmt.Errorf("corrupt session blob: %w", err)
	}
	if s.SubjectID == "" {
		return nil, fmt.Errorf("session blob missing subject")
	}
	return &s, nil
}

// Timestamps are stored as unix milliseconds.
func encodeMillis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func decodeMillis(value string) (time.Time, error) {
	ms, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("corrupt timestamp %q: %w", value, err)
	}
	return time.UnixMilli(ms), nil
}
