// Package middleware provides HTTP middleware for the API server.
package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/socratic-ai/tutor-platform/internal/apperr"
	"github.com/socratic-ai/tutor-platform/internal/model"
	"github.com/socratic-ai/tutor-platform/pkg/logger"
)

// ContextKey is a type for context keys.
type ContextKey string

const (
	// AuthKey is the context key for the caller's AuthContext.
	AuthKey ContextKey = "auth"
)

// Claims are the JWT claims the platform reads. The subject is the user id.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
	Name string `json:"name,omitempty"`
}

// ProfileSyncer records the caller's display name.
type ProfileSyncer interface {
	SyncProfile(ctx context.Context, auth model.AuthContext) error
}

// Auth verifies the bearer token and stores the caller's AuthContext in the
// request context. When syncer is set, the caller's profile is refreshed on
// state-changing requests; a failed refresh is logged and does not fail the
// request.
func Auth(jwtSecret string, syncer ProfileSyncer, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, apperr.Unauthenticated("missing authorization header"))
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				writeError(w, apperr.Unauthenticated("invalid authorization header format"))
				return
			}

			auth, err := ParseToken(jwtSecret, parts[1])
			if err != nil {
				writeError(w, apperr.Unauthenticated("invalid token"))
				return
			}

			ctx := context.WithValue(r.Context(), AuthKey, auth)
			recordAuth(ctx, auth)

			if syncer != nil && !readOnly(r.Method) {
				if err := syncer.SyncProfile(ctx, auth); err != nil {
					log.Warn("failed to sync profile", zap.String("user_id", auth.UserID), zap.Error(err))
				}
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func readOnly(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

// ParseToken verifies an HS256 token and returns the identity it carries.
func ParseToken(jwtSecret, tokenString string) (model.AuthContext, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(jwtSecret), nil
	})
	if err != nil {
		return model.AuthContext{}, err
	}
	if !token.Valid {
		return model.AuthContext{}, errors.New("token is not valid")
	}

	role := model.Role(claims.Role)
	if claims.Subject == "" || !role.Valid() {
		return model.AuthContext{}, errors.New("token is missing subject or role")
	}

	return model.AuthContext{
		UserID:      claims.Subject,
		Role:        role,
		DisplayName: claims.Name,
	}, nil
}

// SignToken issues an HS256 token for local testing.
func SignToken(jwtSecret string, auth model.AuthContext, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   auth.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: string(auth.Role),
		Name: auth.DisplayName,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(jwtSecret))
}

// AuthFromContext returns the caller's identity set by Auth.
func AuthFromContext(ctx context.Context) (model.AuthContext, bool) {
	auth, ok := ctx.Value(AuthKey).(model.AuthContext)
	return auth, ok
}

// RequireRole rejects callers without the given role.
func RequireRole(role model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth, ok := AuthFromContext(r.Context())
			if !ok {
				writeError(w, apperr.Unauthenticated("missing credentials"))
				return
			}
			if auth.Role != role {
				writeError(w, apperr.Forbidden("insufficient permissions"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type errorBody struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

func writeError(w http.ResponseWriter, err error) {
	body := errorBody{Error: apperr.PublicMessage(err)}
	if e, ok := apperr.As(err); ok {
		body.Code = e.Code
		body.Retryable = e.Retryable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apperr.HTTPStatus(err))
	json.NewEncoder(w).Encode(body)
}
