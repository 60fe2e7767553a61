package middleware

import (
	"context"
	"net/http"
	"strings"

	"hashscope/internal/auth"
	"hashscope/internal/config"
	"hashscope/internal/utils"
)

const (
	// WalletKey is the context key for the authenticated wallet address
	WalletKey ContextKey = "wallet"
)

// WalletJWTMiddleware validates wallet session tokens issued by the
// signature login flow and stores the wallet address in the request context.
func WalletJWTMiddleware(cfg *config.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := r.Header.Get("Authorization")
			if tokenString == "" {
				utils.RespondWithError(w, http.StatusUnauthorized, "Missing authentication token")
				return
			}
			tokenString = strings.TrimPrefix(tokenString, "Bearer ")

			wallet, err := auth.DecodeJWT(tokenString, cfg)
			if err != nil {
				utils.RespondWithError(w, http.StatusUnauthorized, "Invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), WalletKey, utils.NormalizeAddress(wallet))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetWallet retrieves the authenticated wallet address from the request context
func GetWallet(ctx context.Context) (string, bool) {
	wallet, ok := ctx.Value(WalletKey).(string)
	return wallet, ok
}
