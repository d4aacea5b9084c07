package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/studyaddict/studyaddict/internal/domain"
)

// SessionHeader carries the guest session ID. The server generates one when
// the client sends none and echoes it on every response.
const SessionHeader = "X-Session-ID"

// Claims is the bearer token payload. Subject is the user ID.
type Claims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

var errNoSecret = errors.New("bearer tokens are not accepted: no jwt secret configured")

// SignToken issues an HS256 token for userID, valid for ttl.
func SignToken(secret, userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseToken verifies an HS256 token and returns its claims.
func ParseToken(tokenString, secret string) (*Claims, error) {
	if secret == "" {
		return nil, errNoSecret
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("token has no subject")
	}
	return claims, nil
}

type sessionKey struct{}

// SessionFrom returns the session resolved by the identity middleware.
func SessionFrom(ctx context.Context) (domain.Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(domain.Session)
	return s, ok
}

// identity resolves the caller: a valid bearer token is an authenticated
// user, anything else a guest keyed by SessionHeader. A bearer token that
// fails verification is rejected rather than downgraded to a guest.
func (s *Server) identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var session domain.Session

		if auth := r.Header.Get("Authorization"); auth != "" {
			raw, ok := strings.CutPrefix(auth, "Bearer ")
			if !ok {
				writeError(w, http.StatusUnauthorized, "authorization must be a bearer token")
				return
			}
			claims, err := ParseToken(strings.TrimSpace(raw), s.opts.JWTSecret)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid token: "+err.Error())
				return
			}
			session = domain.UserSession(claims.Subject)
		} else {
			id := r.Header.Get(SessionHeader)
			if id == "" {
				// Browsers cannot set headers on a websocket handshake.
				id = r.URL.Query().Get("session_id")
			}
			if _, err := uuid.Parse(id); err != nil {
				id = uuid.NewString()
			}
			w.Header().Set(SessionHeader, id)
			session = domain.GuestSession(id)
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, session)))
	})
}
