package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"hashscope/internal/auth"
	"hashscope/internal/models"
	"hashscope/internal/utils"
)

// ContextKey defines the type for context keys to avoid conflicts
type ContextKey string

const (
	// APIKeyRecordKey is the context key for storing the authenticated API key record
	APIKeyRecordKey ContextKey = "apiKeyRecord"
)

// Credential headers for data endpoints. Both must be present.
const (
	HeaderKeyID  = "api-key-id"
	HeaderSecret = "api-key-secret"
)

// RateLimitChecker enforces per-key request limits. *ratelimit.RateLimiter
// satisfies it; nil disables limiting.
type RateLimitChecker interface {
	AllowWithDetails(ctx context.Context, apiKeyID string, limit int) (bool, int, time.Time, error)
}

// UsageRecorder books one billable call. *billing.Meter satisfies it.
type UsageRecorder interface {
	Record(ctx context.Context, key *models.APIKey, endpoint, method string) error
}

// APIKeyMiddleware authenticates data requests with the key-id/secret header
// pair, applies the key's rate limit, and meters the call before it reaches
// the handler. A call that cannot be recorded is refused: usage that is not
// metered cannot be billed, so it must not be served.
func APIKeyMiddleware(validator *auth.Validator, limiter RateLimitChecker, meter UsageRecorder) func(http.Handler) http.Handler {
	logger := utils.NewLogger("api-key-middleware")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			creds := auth.Credentials{
				KeyID:  r.Header.Get(HeaderKeyID),
				Secret: r.Header.Get(HeaderSecret),
			}

			key, err := validator.Validate(ctx, creds)
			if err != nil {
				switch {
				case errors.Is(err, auth.ErrUnauthenticated):
					// One message for missing, unknown and mismatched
					// credentials; the response never says which.
					utils.RespondWithError(w, http.StatusUnauthorized, "Invalid API key credentials")
				case errors.Is(err, auth.ErrForbidden):
					utils.RespondWithError(w, http.StatusForbidden, "API key is inactive or expired")
				default:
					logger.Error("Credential validation failed", "error", err)
					utils.RespondWithError(w, http.StatusInternalServerError, "Error validating API key")
				}
				return
			}

			if limiter != nil {
				allowed, remaining, resetAt, err := limiter.AllowWithDetails(ctx, key.ID.String(), key.RateLimitPerMinute)
				if err != nil {
					// Fail open: a limiter outage must not take data
					// endpoints down with it.
					logger.Warn("Rate limit check failed", "key_id", key.KeyID, "error", err)
				} else if remaining >= 0 {
					w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
					w.Header().Set("X-RateLimit-Reset", resetAt.UTC().Format(time.RFC3339))
				}
				if err == nil && !allowed {
					utils.RespondWithError(w, http.StatusTooManyRequests, "Rate limit exceeded")
					return
				}
			}

			if meter != nil {
				if err := meter.Record(ctx, key, r.URL.Path, r.Method); err != nil {
					logger.Error("Failed to record usage", "key_id", key.KeyID, "error", err)
					utils.RespondWithError(w, http.StatusInternalServerError, "Failed to record API usage")
					return
				}
			}

			ctx = context.WithValue(ctx, APIKeyRecordKey, key)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetAPIKeyRecord retrieves the authenticated API key from the request context
func GetAPIKeyRecord(ctx context.Context) (*models.APIKey, bool) {
	key, ok := ctx.Value(APIKeyRecordKey).(*models.APIKey)
	return key, ok
}
