package shared

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const sessionKeyPrefix = "assetdesk:session:"

// FlashMessage is a one-time notice carried to the next response.
type FlashMessage struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Flash kinds used by handlers and the authorization gate.
const (
	FlashSuccess = "success"
	FlashError   = "error"
	FlashWarning = "warning"
)

// SessionManager keeps sessions in Redis under assetdesk:session:<id> and
// hands the id to the browser in an HttpOnly cookie.
type SessionManager struct {
	client     *redis.Client
	cookieName string
	ttl        time.Duration
	secure     bool
	secret     []byte
}

// Session is the per-request view of a stored session. The principal is
// only set after a successful login.
type Session struct {
	ID string

	principal  *Principal
	values     map[string]string
	flashes    []FlashMessage
	previousID string
	isNew      bool
	dirty      bool
	destroyed  bool
}

type storedSession struct {
	Principal *Principal        `json:"principal,omitempty"`
	Values    map[string]string `json:"values,omitempty"`
	Flashes   []FlashMessage    `json:"flashes,omitempty"`
}

// NewSessionManager constructs a SessionManager. secure marks cookies
// Secure and should be set in production.
func NewSessionManager(client *redis.Client, cookieName string, secret string, ttl time.Duration, secure bool) *SessionManager {
	return &SessionManager{
		client:     client,
		cookieName: cookieName,
		ttl:        ttl,
		secure:     secure,
		secret:     []byte(secret),
	}
}

// Load returns the stored session named by the request cookie, or a fresh
// anonymous session when there is no cookie or Redis no longer knows the
// id. A client-chosen id is never adopted.
func (sm *SessionManager) Load(ctx context.Context, r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(sm.cookieName)
	if errors.Is(err, http.ErrNoCookie) || (err == nil && cookie.Value == "") {
		return sm.newSession(), nil
	}
	if err != nil {
		return nil, err
	}

	raw, err := sm.client.Get(ctx, sm.redisKey(cookie.Value)).Bytes()
	if errors.Is(err, redis.Nil) {
		return sm.newSession(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("shared: load session: %w", err)
	}

	var stored storedSession
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("shared: decode session: %w", err)
	}
	sess := &Session{
		ID:        cookie.Value,
		principal: stored.Principal,
		values:    stored.Values,
		flashes:   stored.Flashes,
	}
	if sess.values == nil {
		sess.values = make(map[string]string)
	}
	return sess, nil
}

// Commit writes the session back and sets the cookie. Unchanged sessions
// only have their expiry extended.
func (sm *SessionManager) Commit(ctx context.Context, w http.ResponseWriter, _ *http.Request, sess *Session) error {
	if sess == nil {
		return nil
	}
	if sess.destroyed {
		if err := sm.client.Del(ctx, sm.redisKey(sess.ID)).Err(); err != nil {
			return fmt.Errorf("shared: delete session: %w", err)
		}
		http.SetCookie(w, sm.cookie("", -1))
		return nil
	}

	if sess.previousID != "" {
		if err := sm.client.Del(ctx, sm.redisKey(sess.previousID)).Err(); err != nil {
			return fmt.Errorf("shared: delete previous session: %w", err)
		}
		sess.previousID = ""
	}

	switch {
	case sess.dirty || sess.isNew:
		data, err := json.Marshal(storedSession{Principal: sess.principal, Values: sess.values, Flashes: sess.flashes})
		if err != nil {
			return fmt.Errorf("shared: encode session: %w", err)
		}
		if err := sm.client.Set(ctx, sm.redisKey(sess.ID), data, sm.ttl).Err(); err != nil {
			return fmt.Errorf("shared: save session: %w", err)
		}
		sess.dirty, sess.isNew = false, false
	default:
		if err := sm.client.Expire(ctx, sm.redisKey(sess.ID), sm.ttl).Err(); err != nil {
			return fmt.Errorf("shared: extend session: %w", err)
		}
	}

	http.SetCookie(w, sm.cookie(sess.ID, 0))
	return nil
}

func (sm *SessionManager) cookie(value string, maxAge int) *http.Cookie {
	c := &http.Cookie{
		Name:     sm.cookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: http.SameSiteStrictMode,
	}
	if maxAge == 0 {
		c.Expires = time.Now().Add(sm.ttl)
	}
	return c
}

// Destroy marks the session for deletion on Commit.
func (sm *SessionManager) Destroy(sess *Session) {
	if sess != nil {
		sess.destroyed = true
	}
}

// Regenerate moves the session data to a new id. Login calls it so an
// anonymous id is never promoted to an authenticated one.
func (sm *SessionManager) Regenerate(sess *Session) {
	if sess == nil {
		return
	}
	if !sess.isNew {
		sess.previousID = sess.ID
	}
	sess.ID = sm.generateSessionID()
	sess.dirty = true
}

// TTL is the idle lifetime of a session.
func (sm *SessionManager) TTL() time.Duration {
	return sm.ttl
}

// CookieName returns the session cookie name.
func (sm *SessionManager) CookieName() string {
	return sm.cookieName
}

// Set stores a string value.
func (s *Session) Set(key, value string) {
	if s.values == nil {
		s.values = make(map[string]string)
	}
	s.values[key] = value
	s.dirty = true
}

// Get returns a stored value or "".
func (s *Session) Get(key string) string {
	if s == nil {
		return ""
	}
	return s.values[key]
}

// Delete removes a stored value.
func (s *Session) Delete(key string) {
	if _, ok := s.values[key]; !ok {
		return
	}
	delete(s.values, key)
	s.dirty = true
}

// SetPrincipal binds the authenticated actor to the session.
func (s *Session) SetPrincipal(p Principal) {
	s.principal = &p
	s.dirty = true
}

// ClearPrincipal signs the session out without destroying it.
func (s *Session) ClearPrincipal() {
	if s.principal == nil {
		return
	}
	s.principal = nil
	s.dirty = true
}

// Principal returns the signed-in actor, if any.
func (s *Session) Principal() (Principal, bool) {
	if s == nil || s.principal == nil || s.principal.UserID < 0 {
		return Principal{}, false
	}
	return *s.principal, true
}

// AddFlash queues a flash message.
func (s *Session) AddFlash(msg FlashMessage) {
	s.flashes = append(s.flashes, msg)
	s.dirty = true
}

// PopFlash removes and returns the oldest flash message.
func (s *Session) PopFlash() *FlashMessage {
	if s == nil || len(s.flashes) == 0 {
		return nil
	}
	msg := s.flashes[0]
	s.flashes = s.flashes[1:]
	s.dirty = true
	return &msg
}

func (sm *SessionManager) newSession() *Session {
	return &Session{
		ID:     sm.generateSessionID(),
		values: make(map[string]string),
		isNew:  true,
		dirty:  true,
	}
}

func (sm *SessionManager) redisKey(id string) string {
	return sessionKeyPrefix + id
}

// generateSessionID prefers a random UUID. If the UUID source fails it
// falls back to 32 random bytes keyed with the session secret.
func (sm *SessionManager) generateSessionID() string {
	if id, err := uuid.NewRandom(); err == nil {
		return id.String()
	}
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	mac := hmac.New(sha256.New, sm.secret)
	_, _ = mac.Write(b)
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
