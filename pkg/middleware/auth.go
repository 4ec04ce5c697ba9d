package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type contextKeyType string

const subjectKey contextKeyType = "subject"

// Claims represents the capability-token claims extracted by the auth middleware.
type Claims struct {
	Subject string `json:"sub"`
	Scope   string `json:"scope"`
}

// TokenValidator validates a capability token and returns its claims.
// Verification itself belongs to the external auth collaborator; this
// service only consumes the yes/no outcome.
type TokenValidator func(token string) (*Claims, error)

// HMACValidator returns a TokenValidator that verifies HS256-signed tokens
// with the given shared secret.
func HMACValidator(secret []byte) TokenValidator {
	return func(token string) (*Claims, error) {
		parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
			return secret, nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err != nil {
			return nil, fmt.Errorf("parse token: %w", err)
		}

		mapClaims, ok := parsed.Claims.(jwt.MapClaims)
		if !ok {
			return nil, fmt.Errorf("unexpected claims type")
		}

		claims := &Claims{}
		if sub, err := mapClaims.GetSubject(); err == nil {
			claims.Subject = sub
		}
		if scope, ok := mapClaims["scope"].(string); ok {
			claims.Scope = scope
		}
		return claims, nil
	}
}

// Auth validates bearer tokens and injects the subject into context.
func Auth(validate TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeAuthError(w, "missing authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				writeAuthError(w, "invalid authorization header format")
				return
			}

			claims, err := validate(parts[1])
			if err != nil {
				writeAuthError(w, "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), subjectKey, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SubjectFromContext returns the authenticated subject, or "" if none.
func SubjectFromContext(ctx context.Context) string {
	if sub, ok := ctx.Value(subjectKey).(string); ok {
		return sub
	}
	return ""
}

func writeAuthError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"code":    "UNAUTHORIZED",
		"message": message,
	})
}
