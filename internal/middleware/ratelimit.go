package middleware

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/pivoter/pivoter/internal/metrics"
	"github.com/pivoter/pivoter/internal/ratelimit"
	"github.com/pivoter/pivoter/pkg/logger"
)

// RateLimitConfig configures the RateLimit middleware.
type RateLimitConfig struct {
	// APIKeyHeader, when set, keys callers by the header value instead of IP.
	APIKeyHeader string
	Logger       *logger.Logger
}

// RateLimitResponse is the body of a 429 response.
type RateLimitResponse struct {
	Error      string `json:"error"`
	Code       string `json:"code"`
	RetryAfter int    `json:"retry_after"`
}

// RateLimit rejects callers that exceed the limiter's budget. Limiter errors
// fail open so a cache outage does not take the API down.
func RateLimit(limiter ratelimit.Limiter, cfg RateLimitConfig) Middleware {
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := rateLimitKey(r, cfg.APIKeyHeader)

			result, err := limiter.Allow(r.Context(), id)
			if err != nil {
				log.Warn("rate limiter unavailable", "error", err.Error(), "request_id", GetRequestID(r.Context()))
				next.ServeHTTP(w, r)
				return
			}

			setRateLimitHeaders(w, result)
			if !result.Allowed {
				metrics.RecordRateLimited()
				writeRateLimitResponse(w, result)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func rateLimitKey(r *http.Request, apiKeyHeader string) string {
	if apiKeyHeader != "" {
		if key := r.Header.Get(apiKeyHeader); key != "" {
			return "api:" + key
		}
	}
	return "ip:" + clientIdentity(r)
}

func setRateLimitHeaders(w http.ResponseWriter, result *ratelimit.Result) {
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	if result.ResetAfter > 0 {
		h.Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(result.ResetAfter).Unix(), 10))
	}
	if !result.Allowed {
		h.Set("Retry-After", strconv.Itoa(retrySeconds(result.RetryAfter)))
	}
}

// retrySeconds rounds up to whole seconds, never below one.
func retrySeconds(d time.Duration) int {
	s := int((d + time.Second - 1) / time.Second)
	if s < 1 {
		return 1
	}
	return s
}

func writeRateLimitResponse(w http.ResponseWriter, result *ratelimit.Result) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(RateLimitResponse{
		Error:      "rate limit exceeded",
		Code:       "RATE_LIMIT_EXCEEDED",
		RetryAfter: retrySeconds(result.RetryAfter),
	})
}
