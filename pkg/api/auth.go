package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// requireAuth wraps a handler with a bearer-token check. With auth
// disabled the handler runs as-is.
func (s *Server) requireAuth(next http.HandlerFunc) http.Handler {
	if !s.cfg.AuthEnabled {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "missing_token", "Authorization: Bearer token required")
			return
		}

		subject, err := VerifyToken(token, s.cfg.JWTSecret)
		if err != nil {
			s.log.Debug("token rejected", "error", err)
			writeError(w, http.StatusUnauthorized, "invalid_token", "token is invalid or expired")
			return
		}

		s.log.Debug("authenticated request", "subject", subject, "path", r.URL.Path)
		next(w, r)
	})
}

// IssueToken mints an HMAC-signed token for API access.
func IssueToken(secret, subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		Issuer:    "fieldgate",
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// VerifyToken validates an HMAC-signed token and returns its subject.
func VerifyToken(raw, secret string) (string, error) {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithExpirationRequired())
	if err != nil {
		return "", err
	}

	subject, err := token.Claims.GetSubject()
	if err != nil {
		return "", err
	}
	return subject, nil
}
