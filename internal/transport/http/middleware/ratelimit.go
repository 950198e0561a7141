package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	limiter "github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"animalfaces-api/internal/transport/http/response"
)

// RateLimit limits requests per client IP, e.g. rate "10-S".
func RateLimit(rate string) (gin.HandlerFunc, error) {
	parsed, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, fmt.Errorf("parse rate limit %q failed: %w", rate, err)
	}
	instance := limiter.New(memory.NewStore(), parsed)

	return mgin.NewMiddleware(instance,
		mgin.WithLimitReachedHandler(func(c *gin.Context) {
			response.Error(c, http.StatusTooManyRequests, response.CodeRateLimited, "too many requests, slow down")
		}),
		mgin.WithErrorHandler(func(c *gin.Context, err error) {
			log.Ctx(c.Request.Context()).Error().Err(err).Msg("rate limiter failed")
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "Internal Server Error")
		}),
	), nil
}
