package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Sidd-007/experiment-analytics/pkg/auth"
	"github.com/Sidd-007/experiment-analytics/pkg/rbac"
)

type contextKey string

const ClaimsContextKey contextKey = "claims"

type AuthMiddleware struct {
	tokenManager  *auth.TokenManager
	apiKeyManager *auth.APIKeyManager
	rbac          *rbac.RBAC
	logger        zerolog.Logger
}

func NewAuthMiddleware(tokens *auth.TokenManager, apiKeys *auth.APIKeyManager, enforcer *rbac.RBAC, logger zerolog.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		tokenManager:  tokens,
		apiKeyManager: apiKeys,
		rbac:          enforcer,
		logger:        logger.With().Str("component", "auth").Logger(),
	}
}

// Authenticate accepts a bearer JWT or an ak_ API key and stores the
// resulting claims in the request context.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			m.logger.Warn().
				Str("path", r.URL.Path).
				Str("method", r.Method).
				Msg("Missing authorization header")
			writeUnauthorized(w, "Authorization header required")
			return
		}

		token, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok || token == "" {
			m.logger.Warn().
				Str("path", r.URL.Path).
				Str("method", r.Method).
				Msg("Invalid authorization header format")
			writeUnauthorized(w, "Invalid authorization header format")
			return
		}

		var (
			claims *auth.Claims
			err    error
		)
		if strings.HasPrefix(token, auth.APIKeyPrefix) {
			claims, err = m.apiKeyManager.VerifyAPIKey(token)
		} else {
			claims, err = m.tokenManager.ValidateToken(token)
		}
		if err != nil {
			m.logger.Warn().
				Str("path", r.URL.Path).
				Str("method", r.Method).
				Err(err).
				Msg("Rejected credentials")
			writeUnauthorized(w, "Invalid credentials")
			return
		}

		m.logger.Debug().
			Str("principal", claims.Principal()).
			Str("token_type", string(claims.TokenType)).
			Str("path", r.URL.Path).
			Msg("Request authenticated")

		recordPrincipal(r.Context(), claims.Principal())

		ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Require rejects requests whose caller may not perform action on objectType.
// It must run after Authenticate.
func (m *AuthMiddleware) Require(objectType string, action rbac.Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetClaims(r.Context())
			if claims == nil {
				writeUnauthorized(w, "Authentication required")
				return
			}

			allowed, err := m.rbac.Enforce(subjectFor(claims), rbac.Object{Type: objectType, ID: "*"}, action)
			if err != nil {
				m.logger.Error().Err(err).Str("principal", claims.Principal()).Msg("Authorization check failed")
				http.Error(w, `{"error":"Internal server error"}`, http.StatusInternalServerError)
				return
			}
			if !allowed {
				m.logger.Warn().
					Str("principal", claims.Principal()).
					Str("object", objectType).
					Str("action", string(action)).
					Msg("Permission denied")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"error":"Permission denied"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// subjectFor maps claims to the casbin subject: analysts act through their
// role, API keys and service tokens through their scope.
func subjectFor(claims *auth.Claims) rbac.Subject {
	if claims.TokenType == auth.TokenTypeUser {
		return rbac.Subject{Type: "role", ID: claims.Role}
	}
	return rbac.Subject{Type: "scope", ID: string(claims.Scope)}
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}

func GetClaims(ctx context.Context) *auth.Claims {
	if claims, ok := ctx.Value(ClaimsContextKey).(*auth.Claims); ok {
		return claims
	}
	return nil
}

func GetPrincipal(ctx context.Context) string {
	if claims := GetClaims(ctx); claims != nil {
		return claims.Principal()
	}
	return ""
}
