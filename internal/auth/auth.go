// Package auth issues and checks admin session cookies.
package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// CookieName is the admin session cookie.
const CookieName = "admin-session"

// SessionTTL is how long an issued session stays valid.
const SessionTTL = 24 * time.Hour

var (
	// ErrNotConfigured is returned by Login when no admin password is set.
	ErrNotConfigured = eris.New("auth: admin login not configured")
	// ErrInvalidCredentials is returned by Login on an email or password mismatch.
	ErrInvalidCredentials = eris.New("auth: invalid credentials")
	// ErrInvalidSession is returned by Validate for malformed, forged or expired tokens.
	ErrInvalidSession = eris.New("auth: invalid session")
)

// Config holds the admin credentials and the signing secret.
type Config struct {
	Email    string
	Password string
	Secret   string
	Secure   bool
}

// Sessions issues and validates signed admin session tokens of the form
// base64(email:unix_ms).base64(hmac_sha256).
type Sessions struct {
	email    string
	password string
	secret   []byte
	secure   bool
	now      func() time.Time
}

// NewSessions creates a session manager. Without a configured secret a random
// one is generated, so sessions do not survive a restart.
func NewSessions(cfg Config) *Sessions {
	secret := []byte(cfg.Secret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			panic(eris.Wrap(err, "auth: generate secret"))
		}
		zap.L().Warn("auth: no session secret configured, using an ephemeral one")
	}
	return &Sessions{
		email:    cfg.Email,
		password: cfg.Password,
		secret:   secret,
		secure:   cfg.Secure,
		now:      time.Now,
	}
}

func (s *Sessions) sign(payload string) []byte {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(payload))
	return mac.Sum(nil)
}

// Login checks the credentials in constant time and returns a fresh token.
func (s *Sessions) Login(email, password string) (string, error) {
	if s.password == "" || s.email == "" {
		return "", ErrNotConfigured
	}
	emailOK := subtle.ConstantTimeCompare([]byte(strings.ToLower(strings.TrimSpace(email))), []byte(strings.ToLower(s.email)))
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(s.password))
	if emailOK&passOK != 1 {
		return "", ErrInvalidCredentials
	}
	return s.Issue(s.email), nil
}

// Issue returns a signed token for email stamped with the current time.
func (s *Sessions) Issue(email string) string {
	payload := email + ":" + strconv.FormatInt(s.now().UnixMilli(), 10)
	enc := base64.RawURLEncoding
	return enc.EncodeToString([]byte(payload)) + "." + enc.EncodeToString(s.sign(payload))
}

// Validate checks the signature, the expiry and that the token belongs to the
// configured admin. It returns the session's email.
func (s *Sessions) Validate(token string) (string, error) {
	encPayload, encSig, ok := strings.Cut(token, ".")
	if !ok {
		return "", ErrInvalidSession
	}
	enc := base64.RawURLEncoding
	payload, err := enc.DecodeString(encPayload)
	if err != nil {
		return "", ErrInvalidSession
	}
	sig, err := enc.DecodeString(encSig)
	if err != nil {
		return "", ErrInvalidSession
	}
	if !hmac.Equal(sig, s.sign(string(payload))) {
		return "", ErrInvalidSession
	}

	idx := strings.LastIndexByte(string(payload), ':')
	if idx < 0 {
		return "", ErrInvalidSession
	}
	email := string(payload[:idx])
	ms, err := strconv.ParseInt(string(payload[idx+1:]), 10, 64)
	if err != nil {
		return "", ErrInvalidSession
	}
	issued := time.UnixMilli(ms)
	now := s.now()
	if now.Sub(issued) > SessionTTL || issued.After(now.Add(time.Minute)) {
		return "", ErrInvalidSession
	}
	if subtle.ConstantTimeCompare([]byte(email), []byte(s.email)) != 1 {
		return "", ErrInvalidSession
	}
	return email, nil
}

// Cookie returns the session cookie carrying token.
func (s *Sessions) Cookie(token string) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(SessionTTL / time.Second),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteStrictMode,
	}
}

// ClearCookie returns a cookie that deletes the session.
func (s *Sessions) ClearCookie() *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteStrictMode,
	}
}

// Middleware rejects requests without a valid session cookie with 401.
func (s *Sessions) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(CookieName)
		if err != nil || c.Value == "" {
			unauthorized(w)
			return
		}
		if _, err := s.Validate(c.Value); err != nil {
			unauthorized(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"success":false,"error":"Unauthorized"}`)) //nolint:errcheck
}
