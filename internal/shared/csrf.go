package shared

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

const (
	// CSRFSessionKey is the session value holding the issued token.
	CSRFSessionKey = "csrf_token"
	// CSRFFormField is the form field browsers post the token in.
	CSRFFormField = "csrf_token"
	// CSRFHeader carries the token for JSON clients.
	CSRFHeader = "X-CSRF-Token"

	csrfNonceSize = 16
)

// CSRFManager issues tokens of the form <nonce>.<mac>, where mac signs the
// nonce together with the session id. A token only verifies against the
// session that stored it and only while that session keeps its id.
type CSRFManager struct {
	secret []byte
}

// NewCSRFManager returns a CSRFManager keyed with secret.
func NewCSRFManager(secret string) *CSRFManager {
	return &CSRFManager{secret: []byte(secret)}
}

// EnsureToken returns the session's token, issuing a new one when there is
// none or the stored one was signed for a previous session id.
func (m *CSRFManager) EnsureToken(_ context.Context, sess *Session) (string, error) {
	if sess == nil {
		return "", errors.New("shared: csrf: session missing")
	}
	if token := sess.Get(CSRFSessionKey); token != "" && m.signedFor(sess.ID, token) {
		return token, nil
	}
	token, err := m.issue(sess.ID)
	if err != nil {
		return "", err
	}
	sess.Set(CSRFSessionKey, token)
	return token, nil
}

// RotateToken drops the current token so the next EnsureToken issues a new one.
func (m *CSRFManager) RotateToken(sess *Session) {
	if sess != nil {
		sess.Delete(CSRFSessionKey)
	}
}

// VerifyToken accepts token only if it is the one stored in sess and its
// signature matches the session id.
func (m *CSRFManager) VerifyToken(_ context.Context, sess *Session, token string) error {
	if sess == nil || token == "" {
		return ErrCSRFTokenMissing
	}
	expected := sess.Get(CSRFSessionKey)
	if expected == "" {
		return ErrCSRFTokenMissing
	}
	if !hmac.Equal([]byte(expected), []byte(token)) || !m.signedFor(sess.ID, token) {
		return ErrCSRFTokenMismatch
	}
	return nil
}

// TokenFromRequest reads the token from the header, then the form field.
func TokenFromRequest(r *http.Request) string {
	if token := r.Header.Get(CSRFHeader); token != "" {
		return token
	}
	return r.PostFormValue(CSRFFormField)
}

func (m *CSRFManager) issue(sessionID string) (string, error) {
	nonce := make([]byte, csrfNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("shared: csrf nonce: %w", err)
	}
	encoded := base64.RawURLEncoding.EncodeToString(nonce)
	return encoded + "." + m.sign(sessionID, encoded), nil
}

func (m *CSRFManager) signedFor(sessionID, token string) bool {
	nonce, mac, ok := strings.Cut(token, ".")
	if !ok || nonce == "" {
		return false
	}
	return hmac.Equal([]byte(mac), []byte(m.sign(sessionID, nonce)))
}

func (m *CSRFManager) sign(sessionID, nonce string) string {
	h := hmac.New(sha256.New, m.secret)
	_, _ = h.Write([]byte(sessionID))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(nonce))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}
