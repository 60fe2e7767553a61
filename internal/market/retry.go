package market

import (
	"context"
	"errors"
	"time"

	"hashscope/internal/config"
	"hashscope/internal/utils"
)

// withRetries runs fetch up to cfg.MaxRetries+1 times with a fixed delay
// between attempts. Schema errors abort immediately: the upstream changed
// shape and retrying cannot help.
func withRetries(ctx context.Context, cfg config.MarketConfig, logger *utils.Logger, source string, fetch func(context.Context) (float64, error)) (float64, error) {
	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			logger.Debug("Retrying upstream fetch", "source", source, "attempt", attempt)
			select {
			case <-time.After(cfg.RetryDelay):
			case <-ctx.Done():
				return 0, ctx.Err()
			}
		}

		value, err := fetch(ctx)
		if err == nil {
			return value, nil
		}
		lastErr = err

		var schemaErr *SchemaError
		if errors.As(err, &schemaErr) {
			logger.Error("Upstream schema drift", "source", source, "error", err)
			return 0, err
		}
		logger.Warn("Upstream fetch failed", "source", source, "attempt", attempt, "error", err)
	}
	return 0, lastErr
}
