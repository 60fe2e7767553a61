package httpapi

import (
	"context"

	"hashscope/internal/middleware"
)

// walletFromContext reads the wallet address placed by the session middleware.
func walletFromContext(ctx context.Context) (string, bool) {
	return middleware.GetWallet(ctx)
}
