package middleware

import (
	"fmt"
	"net/http"

	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

// RateLimit throttles requests using a formatted rate such as "600-M".
// Authenticated requests are keyed by user, anonymous ones by client IP.
func RateLimit(formatted string) (func(http.Handler) http.Handler, error) {
	rate, err := limiter.NewRateFromFormatted(formatted)
	if err != nil {
		return nil, fmt.Errorf("parse rate limit %q: %w", formatted, err)
	}

	instance := limiter.New(memory.NewStore(), rate)
	mw := stdlib.NewMiddleware(instance,
		stdlib.WithKeyGetter(func(r *http.Request) string {
			if claims := ClaimsFromContext(r.Context()); claims != nil {
				return "user:" + claims.UserID.String()
			}
			return "ip:" + instance.GetIPKey(r)
		}),
		stdlib.WithLimitReachedHandler(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, http.StatusTooManyRequests, "too many requests")
		}),
	)
	return mw.Handler, nil
}
