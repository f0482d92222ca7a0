package shared

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SessionManager resolves redis backed sessions issued by the authentication
// service. Sessions are looked up from the cookie or a bearer token.
type SessionManager struct {
	client     *redis.Client
	cookieName string
	ttl        time.Duration
}

// Session holds per-request session data.
type Session struct {
	ID     string
	userID string
	values map[string]string
}

type sessionPayload struct {
	Values map[string]string `json:"values"`
	UserID string            `json:"user_id"`
}

// NewSessionManager constructs a SessionManager.
func NewSessionManager(client *redis.Client, cookieName string, ttl time.Duration) *SessionManager {
	return &SessionManager{
		client:     client,
		cookieName: cookieName,
		ttl:        ttl,
	}
}

// Load resolves the session attached to the request. A request without a
// session token or with an unknown token yields an anonymous session.
func (sm *SessionManager) Load(ctx context.Context, r *http.Request) (*Session, error) {
	id := sm.tokenFromRequest(r)
	if id == "" {
		return &Session{}, nil
	}

	payload, err := sm.client.Get(ctx, sm.redisKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return &Session{}, nil
		}
		return nil, err
	}

	var stored sessionPayload
	if err := json.Unmarshal(payload, &stored); err != nil {
		return nil, err
	}
	if sm.ttl > 0 {
		_ = sm.client.Expire(ctx, sm.redisKey(id), sm.ttl).Err()
	}
	return &Session{ID: id, userID: stored.UserID, values: stored.Values}, nil
}

// Issue stores a new session for the user and returns its token.
func (sm *SessionManager) Issue(ctx context.Context, userID string) (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(sessionPayload{UserID: userID, Values: map[string]string{}})
	if err != nil {
		return "", err
	}
	if err := sm.client.Set(ctx, sm.redisKey(id.String()), data, sm.ttl).Err(); err != nil {
		return "", err
	}
	return id.String(), nil
}

// Revoke deletes a session token.
func (sm *SessionManager) Revoke(ctx context.Context, id string) error {
	if err := sm.client.Del(ctx, sm.redisKey(id)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return nil
}

// CookieName returns the cookie identifier used for sessions.
func (sm *SessionManager) CookieName() string {
	return sm.cookieName
}

// User returns the current user ID.
func (s *Session) User() string {
	if s == nil {
		return ""
	}
	return s.userID
}

// Get retrieves a value.
func (s *Session) Get(key string) string {
	if s == nil || s.values == nil {
		return ""
	}
	return s.values[key]
}

func (sm *SessionManager) tokenFromRequest(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	cookie, err := r.Cookie(sm.cookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func (sm *SessionManager) redisKey(id string) string {
	return "session:" + id
}
