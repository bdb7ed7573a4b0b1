package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/slotkeeper/server/internal/auth"
)

type contextKey string

const operatorKey contextKey = "operator"

// TokenVerifier turns a bearer token into an operator identity
type TokenVerifier interface {
	VerifyToken(token string) (auth.Operator, error)
}

// AuthMiddleware validates operator JWTs and attaches the operator to the context
func AuthMiddleware(verifier TokenVerifier) func(http.Handler) http.Handler {
	return authenticate(verifier, false)
}

// StreamAuthMiddleware is AuthMiddleware for WebSocket upgrades. Browsers
// cannot set headers on the handshake, so a missing Authorization header falls
// back to the access_token query parameter.
func StreamAuthMiddleware(verifier TokenVerifier) func(http.Handler) http.Handler {
	return authenticate(verifier, true)
}

func authenticate(verifier TokenVerifier, allowQuery bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var tokenString string
			authHeader := r.Header.Get("Authorization")
			switch {
			case authHeader != "":
				parts := strings.SplitN(authHeader, " ", 2)
				if len(parts) != 2 || parts[0] != "Bearer" {
					respondWithError(w, http.StatusUnauthorized, "invalid authorization header format")
					return
				}
				tokenString = strings.TrimSpace(parts[1])
				if tokenString == "" {
					respondWithError(w, http.StatusUnauthorized, "missing token")
					return
				}
			case allowQuery && r.URL.Query().Get("access_token") != "":
				tokenString = r.URL.Query().Get("access_token")
			default:
				respondWithError(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			op, err := verifier.VerifyToken(tokenString)
			if err != nil {
				respondWithError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithOperator(r.Context(), op)))
		})
	}
}

// RequireRole rejects requests whose operator lacks the role. Admins pass every check.
func RequireRole(role auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			op, ok := GetOperator(r.Context())
			if !ok {
				respondWithError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			if op.Role != role && !op.IsAdmin() {
				respondWithError(w, http.StatusForbidden, "requires role "+string(role))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithOperator returns a context carrying op
func WithOperator(ctx context.Context, op auth.Operator) context.Context {
	return context.WithValue(ctx, operatorKey, op)
}

// GetOperator returns the operator attached by AuthMiddleware
func GetOperator(ctx context.Context) (auth.Operator, bool) {
	op, ok := ctx.Value(operatorKey).(auth.Operator)
	return op, ok
}

// respondWithError sends a JSON error response
func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	response := map[string]string{"error": message}
	_ = json.NewEncoder(w).Encode(response)
}
