package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gridforge/gpumesh/internal/auth"
)

// Context keys for authenticated request information.
type contextKey string

// WalletKey is the context key for the authenticated wallet address.
const WalletKey contextKey = "wallet"

// GetWallet extracts the authenticated wallet address from the request context.
func GetWallet(ctx context.Context) string {
	if v := ctx.Value(WalletKey); v != nil {
		return v.(string)
	}
	return ""
}

// AuthMiddleware validates wallet session tokens.
type AuthMiddleware struct {
	authService *auth.Service
	logger      *slog.Logger
}

// NewAuthMiddleware creates a new authentication middleware.
func NewAuthMiddleware(authService *auth.Service, logger *slog.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		authService: authService,
		logger:      logger,
	}
}

// Authenticate is a middleware that validates JWT session tokens.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := auth.ExtractBearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeUnauthorized(w, "Missing authentication token")
			return
		}

		claims, err := m.authService.ValidateToken(token)
		if err != nil {
			m.logger.Debug("token validation failed", "error", err)
			writeUnauthorized(w, "Invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), WalletKey, claims.Wallet)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"code":    "unauthorized",
		"message": message,
	})
}
